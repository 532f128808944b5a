package extensions

import (
	"fmt"
	"regexp"

	"github.com/Shopify/go-lua"
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/core"
)

// registerAzimuthLibrary registers the `azimuth` global library and its
// sub-libraries into the Lua state. This is the main entry point for exposing
// the pipeline's functionality to Lua scripts.
func registerAzimuthLibrary(l *lua.State, service PipelineService) {
	funcs := []lua.RegistryFunction{
		// log writes a message to the pipeline's log.
		//
		// @param message string The message to log.
		// @param level string (optional) The log level (e.g., "INFO", "WARN", "ERROR").
		// Defaults to "INFO".
		{Name: "log", Function: func(l *lua.State) int {
			message := lua.CheckString(l, 2)
			level := lua.OptString(l, 3, "INFO")
			if extID := getExtensionID(l); extID != uuid.Nil {
				err := service.WriteLog(level, message, core.LogWithExtensionID(extID))
				if err != nil {
					lua.Errorf(l, fmt.Sprintf("writing log : %s", err.Error()))
					return 0
				}
			} else {
				err := service.WriteLog(level, message)
				if err != nil {
					lua.Errorf(l, fmt.Sprintf("writing log : %s", err.Error()))
					return 0
				}
			}
			return 0
		}},
		// config returns the path to the pipeline's configuration directory.
		//
		// @return string The configuration directory path.
		{Name: "config", Function: func(l *lua.State) int {
			config, err := service.GetConfigDir()
			if err != nil {
				l.PushString("")
				return 1
			}
			l.PushString(config)
			return 1
		}},
		// scope returns the batch scope.
		//
		// @return Scope The scope object.
		{Name: "scope", Function: func(l *lua.State) int {
			scope, err := service.GetScope()
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("getting scope : %s", err.Error()))
				return 0
			}
			l.PushUserData(scope)
			lua.SetMetaTableNamed(l, "scope")
			return 1
		}},
		// compile compiles a regular expression into a regexp object.
		//
		// @param pattern string The pattern to compile.
		// @return Regexp The compiled expression.
		{Name: "compile", Function: func(l *lua.State) int {
			pattern := lua.CheckString(l, 2)
			re, err := regexp.Compile(pattern)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("compiling pattern : %s", err.Error()))
				return 0
			}
			l.PushUserData(re)
			lua.SetMetaTableNamed(l, "regexp")
			return 1
		}},
		// quote_meta escapes regular expression metacharacters in a string.
		//
		// @param text string The text to escape.
		// @return string The escaped text.
		{Name: "quote_meta", Function: func(l *lua.State) int {
			text := lua.CheckString(l, 2)
			l.PushString(regexp.QuoteMeta(text))
			return 1
		}},
		// match tests a pattern against a string without keeping the
		// compiled expression around.
		//
		// @param pattern string The pattern to compile.
		// @param text string The text to test.
		// @return boolean Whether the pattern matched.
		{Name: "match", Function: func(l *lua.State) int {
			pattern := lua.CheckString(l, 2)
			text := lua.CheckString(l, 3)
			re, err := regexp.Compile(pattern)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("compiling pattern : %s", err.Error()))
				return 0
			}
			l.PushBoolean(re.MatchString(text))
			return 1
		}},
	}

	lua.NewLibrary(l, funcs)
	l.SetGlobal("azimuth")

	registerSettingsLibrary(l, service)
	registerRepoLibrary(l, service)
	registerEncodingLibrary(l)
	registerCryptoLibrary(l)
	registerUtilsLibrary(l)
	registerStringsLibrary(l)
	registerRandomLibrary(l)
}
