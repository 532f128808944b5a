package extensions

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
)

func registerStringsLibrary(l *lua.State) {
	l.Global("azimuth")

	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, stringsLibrary())

	l.SetField(-2, "strings")

	l.Pop(1)
}

// stringsLibrary returns a list of Lua functions for string manipulation.
// These functions are available under the `azimuth.strings` table in Lua scripts.
func stringsLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// upper converts a string to uppercase.
		//
		// @param input string The string to convert.
		// @return string The uppercase string.
		{Name: "upper", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)

			l.PushString(strings.ToUpper(inputString))
			return 1
		}},
		// lower converts a string to lowercase.
		//
		// @param input string The string to convert.
		// @return string The lowercase string.
		{Name: "lower", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)

			l.PushString(strings.ToLower(inputString))
			return 1
		}},
		// reverse reverses a string.
		//
		// @param input string The string to reverse.
		// @return string The reversed string.
		{Name: "reverse", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			runes := []rune(inputString)
			slices.Reverse(runes)

			l.PushString(string(runes))
			return 1
		}},
		// len returns the length of a string.
		//
		// @param input string The string.
		// @return number The length of the string.
		{Name: "len", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)

			l.PushInteger(len(inputString))
			return 1
		}},
		// replace replaces all occurrences of a substring with another string.
		//
		// @param input string The original string.
		// @param target string The substring to replace.
		// @param replacement string The string to replace with.
		// @param n number (optional) The maximum number of replacements. -1 means all.
		// @return string The new string.
		{Name: "replace", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			target := lua.CheckString(l, 3)
			replacement := lua.OptString(l, 4, "")
			occurences := lua.OptInteger(l, 5, -1)

			l.PushString(strings.Replace(inputString, target, replacement, occurences))
			return 1
		}},
		// contains checks if a string contains a substring.
		//
		// @param input string The string to check.
		// @param subString string The substring to look for.
		// @return boolean True if the string contains the substring.
		{Name: "contains", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			subString := lua.CheckString(l, 3)

			l.PushBoolean(strings.Contains(inputString, subString))
			return 1
		}},
		// has_prefix checks if a string starts with a prefix.
		//
		// @param input string The string to check.
		// @param prefix string The prefix to look for.
		// @return boolean True if the string starts with the prefix.
		{Name: "has_prefix", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			prefix := lua.CheckString(l, 3)

			l.PushBoolean(strings.HasPrefix(inputString, prefix))
			return 1
		}},
		// has_suffix checks if a string ends with a suffix.
		//
		// @param input string The string to check.
		// @param suffix string The suffix to look for.
		// @return boolean True if the string ends with the suffix.
		{Name: "has_suffix", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			suffix := lua.CheckString(l, 3)

			l.PushBoolean(strings.HasSuffix(inputString, suffix))
			return 1
		}},
		// split splits a string by a separator.
		//
		// @param input string The string to split.
		// @param separator string The separator to split by.
		// @return table A table of the split parts.
		{Name: "split", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			separator := lua.CheckString(l, 3)

			parts := strings.Split(inputString, separator)
			util.DeepPush(l, parts)
			return 1
		}},
		// trim removes leading and trailing whitespace from a string.
		//
		// @param input string The string to trim.
		// @return string The trimmed string.
		{Name: "trim", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)

			l.PushString(strings.TrimSpace(inputString))
			return 1
		}},
		// substring returns a substring of a string.
		//
		// @param input string The original string.
		// @param start number The starting index (0-based).
		// @param end number (optional) The ending index.
		// @return string The substring.
		{Name: "substring", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)
			runes := []rune(inputString)
			lenRunes := len(runes)

			start := lua.CheckInteger(l, 3)
			end := lua.OptInteger(l, 4, lenRunes)

			if start < 0 {
				start = 0
			} else if start > lenRunes {
				start = lenRunes
			}

			if end < start {
				end = start
			}
			if end > lenRunes {
				end = lenRunes
			}

			l.PushString(string(runes[start:end]))
			return 1
		}},
		// ra_sex formats a right ascension in decimal degrees as sexagesimal
		// hours. The angle is wrapped into [0, 360) first.
		//
		// @param degrees number Right ascension in decimal degrees.
		// @return string The coordinate as "HH MM SS.ss".
		{Name: "ra_sex", Function: func(l *lua.State) int {
			degrees := lua.CheckNumber(l, 2)

			degrees = math.Mod(degrees, 360)
			if degrees < 0 {
				degrees += 360
			}

			// Integer centiseconds of time keep the carry at 60s exact.
			total := int64(math.Round(degrees / 15 * 360000))
			total %= 24 * 360000

			hours := total / 360000
			minutes := (total / 6000) % 60
			seconds := float64(total%6000) / 100

			l.PushString(fmt.Sprintf("%02d %02d %05.2f", hours, minutes, seconds))
			return 1
		}},
		// dec_sex formats a declination in decimal degrees as signed
		// sexagesimal degrees.
		//
		// @param degrees number Declination in decimal degrees.
		// @return string The coordinate as "+DD MM SS.s".
		{Name: "dec_sex", Function: func(l *lua.State) int {
			degrees := lua.CheckNumber(l, 2)

			sign := "+"
			if degrees < 0 {
				sign = "-"
				degrees = -degrees
			}

			total := int64(math.Round(degrees * 36000))

			d := total / 36000
			m := (total / 600) % 60
			s := float64(total%600) / 10

			l.PushString(fmt.Sprintf("%s%02d %02d %04.1f", sign, d, m, s))
			return 1
		}},
	}
}
