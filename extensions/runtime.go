package extensions

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
	"github.com/tfkr-ae/azimuth/scope"
)

// extensionIDKey is the registry slot holding the ID of the extension that
// owns a Lua state.
const extensionIDKey = "azimuth_extension_id"

// restrictedGlobals are removed from every extension state after the standard
// libraries are opened. The string library stays available, formatting log
// lines is the bread and butter of most extensions.
var restrictedGlobals = []string{
	"collectgarbage",
	"debug",
	"dofile",
	"io",
	"load",
	"loadfile",
	"loadstring",
	"os",
	"package",
	"require",
}

// PipelineService is the surface the pipeline exposes to a running extension.
// Implementations hand out the pieces the azimuth Lua library needs without
// giving scripts the run of the whole archive.
type PipelineService interface {
	GetConfigDir() (string, error)
	GetScope() (*scope.Scope, error)
	WriteLog(level string, message string, options ...func(*domain.Log) error) error
	GetExtensionRepo() (domain.ExtensionRepository, error)
	GetCalibrationRepo() (domain.CalibrationRepository, error)
}

// ExtensionLog is one print line captured from a running extension.
type ExtensionLog struct {
	Time time.Time
	Text string
}

// Runtime hosts a single extension inside its own sandboxed Lua state.
// Mu serializes calls into the state, the hook methods take it themselves so
// callers never lock it directly.
type Runtime struct {
	Data     *domain.Extension
	LuaState *lua.State
	Logs     []ExtensionLog
	OnLog    func(ExtensionLog) error
	Mu       sync.Mutex
}

// ExtensionWithLogHandler sets the callback invoked for every captured print
// line. A runtime can only carry one handler.
func ExtensionWithLogHandler(handler func(ExtensionLog) error) func(*Runtime) error {
	return func(runtime *Runtime) error {
		if runtime.OnLog != nil {
			return fmt.Errorf("%s already has a log handler", runtime.Data.Name)
		}
		runtime.OnLog = handler
		return nil
	}
}

// PrepareState builds the sandboxed Lua state for the extension: it opens the
// allowed standard libraries, registers the azimuth types and library against
// the given service, applies the options and finally executes the extension
// source so its hook functions become globals.
func (runtime *Runtime) PrepareState(service PipelineService, options []func(*Runtime) error) error {
	l := lua.NewState()
	runtime.LuaState = l

	openRestrictedLibraries(l)

	l.PushUserData(runtime.Data.ID)
	l.SetField(lua.RegistryIndex, extensionIDKey)

	RegisterStarType(l)
	RegisterHeaderType(l)
	RegisterScopeType(l)
	RegisterRegexType(l)

	registerAzimuthLibrary(l, service)
	runtime.registerCustomPrint()

	for _, option := range options {
		if err := option(runtime); err != nil {
			return fmt.Errorf("applying extension option : %w", err)
		}
	}

	if err := runtime.ExecuteLua(runtime.Data.LuaContent); err != nil {
		return fmt.Errorf("executing extension %s : %w", runtime.Data.Name, err)
	}

	return nil
}

// ExecuteLua runs a chunk of Lua in the extension state. Values returned by
// the chunk are left on the stack.
func (runtime *Runtime) ExecuteLua(code string) error {
	return lua.DoString(runtime.LuaState, code)
}

// openRestrictedLibraries opens the standard libraries and then removes the
// globals that would let a script touch the filesystem or load foreign code.
func openRestrictedLibraries(l *lua.State) {
	lua.OpenLibraries(l)

	for _, name := range restrictedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
}

// registerCustomPrint replaces print so extension output lands in the runtime
// log instead of stdout. Arguments are joined with tabs the way stock print
// renders them, userdata goes through its __tostring metamethod.
func (runtime *Runtime) registerCustomPrint() {
	runtime.LuaState.Register("print", func(l *lua.State) int {
		n := l.Top()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			part, ok := lua.ToStringMeta(l, i)
			if !ok {
				part = lua.TypeNameOf(l, i)
			}
			l.Pop(1)
			parts = append(parts, part)
		}

		entry := ExtensionLog{Time: time.Now(), Text: strings.Join(parts, "\t")}
		runtime.Logs = append(runtime.Logs, entry)

		if runtime.OnLog != nil {
			if err := runtime.OnLog(entry); err != nil {
				lua.Errorf(l, "forwarding print output : %s", err.Error())
				return 0
			}
		}

		return 0
	})
}

// FilterStar runs the extension's filter_star function against one matched
// star. The function has to return true to keep the star and may return a
// reason string alongside false. Extensions without filter_star keep
// everything.
func (runtime *Runtime) FilterStar(star *domain.MatchedStar) (bool, string, error) {
	runtime.Mu.Lock()
	defer runtime.Mu.Unlock()

	l := runtime.LuaState
	l.Global("filter_star")
	if !l.IsFunction(-1) {
		l.Pop(1)
		return true, "", nil
	}

	l.PushUserData(star)
	lua.SetMetaTableNamed(l, "star")

	if err := l.ProtectedCall(1, 2, 0); err != nil {
		return false, "", fmt.Errorf("calling filter_star in %s : %w", runtime.Data.Name, err)
	}

	keep := l.ToBoolean(-2)
	reason, _ := l.ToString(-1)
	l.Pop(2)

	return keep, reason, nil
}

// CallRunComplete invokes the extension's on_run_complete function with a
// table describing the finished fit. Extensions without the function are
// skipped.
func (runtime *Runtime) CallRunComplete(result map[string]any) error {
	runtime.Mu.Lock()
	defer runtime.Mu.Unlock()

	l := runtime.LuaState
	l.Global("on_run_complete")
	if !l.IsFunction(-1) {
		l.Pop(1)
		return nil
	}

	util.DeepPush(l, result)

	if err := l.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("calling on_run_complete in %s : %w", runtime.Data.Name, err)
	}

	return nil
}

// CallHeaderHandler invokes the extension's on_header function with the image
// header about to be written back, letting scripts stamp their own keywords.
// Extensions without the function are skipped.
func (runtime *Runtime) CallHeaderHandler(header *fits.Header) error {
	runtime.Mu.Lock()
	defer runtime.Mu.Unlock()

	l := runtime.LuaState
	l.Global("on_header")
	if !l.IsFunction(-1) {
		l.Pop(1)
		return nil
	}

	l.PushUserData(header)
	lua.SetMetaTableNamed(l, "header")

	if err := l.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("calling on_header in %s : %w", runtime.Data.Name, err)
	}

	return nil
}

// CheckGlobalFlag reports whether the named global is the boolean true.
// Any other value, including truthy strings and numbers, counts as false.
func (runtime *Runtime) CheckGlobalFlag(name string) bool {
	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	return l.TypeOf(-1) == lua.TypeBoolean && l.ToBoolean(-1)
}

// GetGlobalString returns the named global when it holds a string.
func (runtime *Runtime) GetGlobalString(name string) (string, error) {
	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	if l.TypeOf(-1) != lua.TypeString {
		return "", fmt.Errorf("global %s is not a string", name)
	}

	value, _ := l.ToString(-1)
	return value, nil
}

// CheckGlobalFunction reports whether the named global is a function, which is
// how the pipeline discovers the hooks an extension implements.
func (runtime *Runtime) CheckGlobalFunction(name string) bool {
	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	return l.IsFunction(-1)
}

// goValue converts the Lua value at the given index into its Go counterpart.
// Tables become slices or maps through parseTable, functions and other
// uncovered types come back as nil.
func goValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return value
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return parseTable(l, index)
	case lua.TypeUserData:
		return l.ToUserData(index)
	default:
		return nil
	}
}

// parseTable walks the table at the given index. Tables with contiguous
// 1-based integer keys become []any, everything else becomes map[string]any
// with numeric keys rendered as strings.
func parseTable(l *lua.State, index int) any {
	index = l.AbsIndex(index)

	list := []any{}
	hash := make(map[string]any)
	arrayOnly := true

	l.PushNil()
	for l.Next(index) {
		value := goValue(l, -1)

		if l.TypeOf(-2) == lua.TypeNumber {
			key, _ := l.ToNumber(-2)
			if arrayOnly && key == float64(len(list)+1) {
				list = append(list, value)
			} else {
				arrayOnly = false
				hash[strconv.FormatFloat(key, 'f', -1, 64)] = value
			}
		} else {
			arrayOnly = false
			key, _ := l.ToString(-2)
			hash[key] = value
		}

		l.Pop(1)
	}

	if arrayOnly {
		return list
	}

	for i, value := range list {
		hash[strconv.Itoa(i+1)] = value
	}

	return hash
}

// asMap narrows a goValue result to a key-value table. An empty Lua table
// parses as an empty slice, which counts as an empty map here. Non-empty
// slices and everything else return nil.
func asMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return map[string]any{}
		}
		return nil
	default:
		return nil
	}
}

// getExtensionID recovers the owning extension's ID from the state registry,
// uuid.Nil when the state was not prepared by a Runtime.
func getExtensionID(l *lua.State) uuid.UUID {
	l.Field(lua.RegistryIndex, extensionIDKey)
	defer l.Pop(1)

	if id, ok := l.ToUserData(-1).(uuid.UUID); ok {
		return id
	}

	return uuid.Nil
}
