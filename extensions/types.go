package extensions

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
	"github.com/tfkr-ae/azimuth/scope"
)

// RegisterType creates a new metatable in the Lua state and associates it with a name.
// It registers a set of functions as methods for the type and a `__tostring` metamethod.
// This is a generic helper for exposing Go types to Lua.
func RegisterType(l *lua.State, name string, functions map[string]lua.Function, toString func(l *lua.State) int) {
	lua.NewMetaTable(l, name)
	l.PushGoFunction(FunctionIndex(functions))
	l.SetField(-2, "__index")
	l.PushGoFunction(toString)
	l.SetField(-2, "__tostring")
	l.Pop(1)
}

// FunctionIndex returns a Lua function that acts as an `__index` metamethod.
// It looks up a field name in the provided functions map and pushes the corresponding
// function onto the stack if found.
func FunctionIndex(functions map[string]lua.Function) func(l *lua.State) int {
	return func(l *lua.State) int {
		field := lua.CheckString(l, 2)
		if function, ok := functions[field]; ok {
			l.PushGoFunction(function)
		} else {
			l.PushNil()
		}
		return 1
	}
}

// RegisterStarType registers the "star" type wrapping one matched star.
// Fields are read as plain values, star.color rather than star:color(), which
// keeps filter functions short. Unknown fields read as nil.
func RegisterStarType(l *lua.State) {
	lua.NewMetaTable(l, "star")

	l.PushGoFunction(func(l *lua.State) int {
		star := lua.CheckUserData(l, 1, "star").(*domain.MatchedStar)
		field := lua.CheckString(l, 2)

		switch field {
		case "ra":
			l.PushNumber(star.RA)
		case "dec":
			l.PushNumber(star.Dec)
		case "x":
			l.PushNumber(star.X)
		case "y":
			l.PushNumber(star.Y)
		case "sep":
			l.PushNumber(star.Sep)
		case "ref_mag":
			l.PushNumber(star.RefMag)
		case "ref_err":
			l.PushNumber(star.RefErr)
		case "inst_mag":
			l.PushNumber(star.InstMag)
		case "inst_err":
			l.PushNumber(star.InstErr)
		case "color":
			l.PushNumber(star.Color)
		case "residual":
			l.PushNumber(star.Residual)
		case "kept":
			l.PushBoolean(star.Kept)
		default:
			l.PushNil()
		}

		return 1
	})
	l.SetField(-2, "__index")

	l.PushGoFunction(func(l *lua.State) int {
		star := lua.CheckUserData(l, 1, "star").(*domain.MatchedStar)
		l.PushString(fmt.Sprintf("Star { RA: %.5f, Dec: %.5f, RefMag: %.3f, InstMag: %.3f, Color: %.3f }",
			star.RA, star.Dec, star.RefMag, star.InstMag, star.Color))
		return 1
	})
	l.SetField(-2, "__tostring")

	l.Pop(1)
}

// RegisterHeaderType registers the "header" type wrapping a FITS header.
// Keywords are folded to upper case on the way in, the typed getters push nil
// when the keyword is missing or malformed.
func RegisterHeaderType(l *lua.State) {
	funcs := map[string]lua.Function{
		"get": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))

			value, err := header.Str(keyword)
			if err != nil {
				l.PushNil()
				return 1
			}
			l.PushString(value)
			return 1
		},
		"int": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))

			value, err := header.Int(keyword)
			if err != nil {
				l.PushNil()
				return 1
			}
			l.PushInteger(value)
			return 1
		},
		"float": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))

			value, err := header.Float(keyword)
			if err != nil {
				l.PushNil()
				return 1
			}
			l.PushNumber(value)
			return 1
		},
		"bool": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))

			value, err := header.Bool(keyword)
			if err != nil {
				l.PushNil()
				return 1
			}
			l.PushBoolean(value)
			return 1
		},
		"has": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))
			l.PushBoolean(header.Has(keyword))
			return 1
		},
		"set": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))
			value := lua.CheckString(l, 3)
			comment := lua.OptString(l, 4, "")

			header.SetStr(keyword, value, comment)
			return 0
		},
		"set_int": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))
			value := lua.CheckInteger(l, 3)
			comment := lua.OptString(l, 4, "")

			header.SetInt(keyword, value, comment)
			return 0
		},
		"set_float": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)
			keyword := strings.ToUpper(lua.CheckString(l, 2))
			value := lua.CheckNumber(l, 3)
			decimals := lua.OptInteger(l, 4, 6)
			comment := lua.OptString(l, 5, "")

			header.SetFloat(keyword, value, decimals, comment)
			return 0
		},
		"to_table": func(l *lua.State) int {
			header := lua.CheckUserData(l, 1, "header").(*fits.Header)

			table := make(map[string]string)
			for _, card := range header.Cards() {
				if card.Keyword == "" || card.Value == "" {
					continue
				}
				value, err := header.Str(card.Keyword)
				if err != nil {
					continue
				}
				table[card.Keyword] = value
			}

			util.DeepPush(l, table)
			return 1
		},
	}

	RegisterType(l, "header", funcs, func(l *lua.State) int {
		header := lua.CheckUserData(l, 1, "header").(*fits.Header)
		l.PushString(fmt.Sprintf("Header { Cards: %d }", len(header.Cards())))
		return 1
	})
}

// formatRules renders a rule set sorted by key, one rule per line.
func formatRules(rules map[string]scope.Rule) string {
	if len(rules) == 0 {
		return " none"
	}

	keys := make([]string, 0, len(rules))
	for key := range rules {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var builder strings.Builder
	for _, key := range keys {
		builder.WriteString("\n    ")
		builder.WriteString(key)
	}

	return builder.String()
}

// RegisterScopeType registers the "scope" type. Rules are added through the
// explicit include and exclude methods, both taking the match type first so
// calls read scope:exclude("path", pattern). Patterns are stored verbatim, a
// leading dash is part of the pattern and not an exclusion marker.
func RegisterScopeType(l *lua.State) {
	funcs := map[string]lua.Function{
		"include": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			matchType := lua.CheckString(l, 2)
			pattern := lua.CheckString(l, 3)

			if err := s.AddRule(pattern, matchType, false); err != nil {
				lua.Errorf(l, "adding rule : %s", err.Error())
				return 0
			}

			l.PushBoolean(true)
			return 1
		},
		"exclude": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			matchType := lua.CheckString(l, 2)
			pattern := lua.CheckString(l, 3)

			if err := s.AddRule(pattern, matchType, true); err != nil {
				lua.Errorf(l, "adding rule : %s", err.Error())
				return 0
			}

			l.PushBoolean(true)
			return 1
		},
		"remove_include": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			matchType := lua.CheckString(l, 2)
			pattern := lua.CheckString(l, 3)

			if err := s.RemoveRule(pattern, matchType, false); err != nil {
				lua.Errorf(l, "removing rule : %s", err.Error())
				return 0
			}

			l.PushBoolean(true)
			return 1
		},
		"remove_exclude": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			matchType := lua.CheckString(l, 2)
			pattern := lua.CheckString(l, 3)

			if err := s.RemoveRule(pattern, matchType, true); err != nil {
				lua.Errorf(l, "removing rule : %s", err.Error())
				return 0
			}

			l.PushBoolean(true)
			return 1
		},
		"matches": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			galaxy := lua.CheckString(l, 2)
			path := lua.CheckString(l, 3)

			l.PushBoolean(s.Matches(galaxy, path))
			return 1
		},
		"matches_string": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			input := lua.CheckString(l, 2)
			matchType := lua.CheckString(l, 3)

			l.PushBoolean(s.MatchesString(input, matchType))
			return 1
		},
		"set_default_allow": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			s.DefaultAllow = l.ToBoolean(2)
			l.PushBoolean(true)
			return 1
		},
		"clear_rules": func(l *lua.State) int {
			s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)
			s.ClearRules()
			l.PushBoolean(true)
			return 1
		},
	}

	RegisterType(l, "scope", funcs, func(l *lua.State) int {
		s := lua.CheckUserData(l, 1, "scope").(*scope.Scope)

		policy := "deny"
		if s.DefaultAllow {
			policy = "allow"
		}

		l.PushString(fmt.Sprintf("Scope (Default: %s)\n  Include Rules:%s\n  Exclude Rules:%s",
			policy, formatRules(s.IncludeRules), formatRules(s.ExcludeRules)))
		return 1
	})
}

// RegisterRegexType registers the "regexp" type wrapping a compiled Go regular
// expression. The finders push nil when nothing matches.
func RegisterRegexType(l *lua.State) {
	funcs := map[string]lua.Function{
		"match": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)
			l.PushBoolean(re.MatchString(text))
			return 1
		},
		"is_anchored_match": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			loc := re.FindStringIndex(text)
			l.PushBoolean(loc != nil && loc[0] == 0 && loc[1] == len(text))
			return 1
		},
		"find": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			loc := re.FindStringIndex(text)
			if loc == nil {
				l.PushNil()
				return 1
			}
			l.PushString(text[loc[0]:loc[1]])
			return 1
		},
		"find_submatch": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			submatches := re.FindStringSubmatch(text)
			if submatches == nil {
				l.PushNil()
				return 1
			}
			util.DeepPush(l, submatches)
			return 1
		},
		"find_submatch_indices": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			indices := re.FindStringSubmatchIndex(text)
			if indices == nil {
				l.PushNil()
				return 1
			}
			util.DeepPush(l, indices)
			return 1
		},
		"find_named_submatch": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			submatches := re.FindStringSubmatch(text)
			if submatches == nil {
				l.PushNil()
				return 1
			}

			result := make(map[string]string)
			for i, name := range re.SubexpNames() {
				if i > 0 && name != "" {
					result[name] = submatches[i]
				}
			}
			util.DeepPush(l, result)
			return 1
		},
		"find_all": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			matches := re.FindAllString(text, -1)
			if matches == nil {
				l.PushNil()
				return 1
			}
			util.DeepPush(l, matches)
			return 1
		},
		"find_all_submatches": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			submatches := re.FindAllStringSubmatch(text, -1)
			if submatches == nil {
				l.PushNil()
				return 1
			}
			util.DeepPush(l, submatches)
			return 1
		},
		"replace": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)
			replacement := lua.CheckString(l, 3)

			l.PushString(re.ReplaceAllString(text, replacement))
			return 1
		},
		"split": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			text := lua.CheckString(l, 2)

			util.DeepPush(l, re.Split(text, -1))
			return 1
		},
		"pattern": func(l *lua.State) int {
			re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
			l.PushString(re.String())
			return 1
		},
	}

	RegisterType(l, "regexp", funcs, func(l *lua.State) int {
		re := lua.CheckUserData(l, 1, "regexp").(*regexp.Regexp)
		l.PushString(fmt.Sprintf("Regexp { Pattern: %s, Subexpressions: %d }", re.String(), re.NumSubexp()))
		return 1
	})
}
