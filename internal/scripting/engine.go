// Package scripting evaluates Lua modifier expressions with gopher-lua.
package scripting

import (
	"context"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// DefaultTimeout bounds a single evaluation
const DefaultTimeout = 50 * time.Millisecond

// base library functions that reach the filesystem, load code or touch
// environments outside the script's own
var blockedGlobals = []string{
	"collectgarbage", "dofile", "getfenv", "load", "loadfile", "loadstring",
	"module", "newproxy", "print", "_printregs", "require", "setfenv",
}

// Vars are exposed to a script as globals
type Vars struct {
	Value int // the dice value being modified
	Round int
	Phase int
}

// Engine evaluates modifier scripts. A script is either an expression such
// as "value * 2" or a chunk ending in a return statement.
type Engine interface {
	Eval(ctx context.Context, script string, vars Vars) (int, error)
	// Compile checks a script without running it
	Compile(script string) error
	Close()
}

// Config configures the Lua engine
type Config struct {
	Timeout time.Duration
}

// Validate validates the config
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Timeout < 0 {
		vb.Field("Timeout", "must not be negative")
	}
	return vb.Build()
}

// luaEngine holds one VM behind a mutex; an LState is not goroutine safe.
// Each evaluation runs in a fresh environment that reads through to the
// shared globals, so assignments never outlive the call.
type luaEngine struct {
	mu       sync.Mutex
	vm       *lua.LState
	compiled map[string]*lua.LFunction
	envMeta  *lua.LTable
	timeout  time.Duration
}

// New creates a Lua engine with only the base, math and string libraries
func New(cfg *Config) (Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scripting config")
	}

	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := vm.CallByParam(lua.P{
			Fn:      vm.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			vm.Close()
			return nil, errors.Wrapf(err, "failed to open lua library %s", lib.name)
		}
	}
	for _, name := range blockedGlobals {
		vm.SetGlobal(name, lua.LNil)
	}
	vm.SetGlobal("clamp", vm.NewFunction(luaClamp))

	envMeta := vm.NewTable()
	envMeta.RawSetString("__index", vm.G.Global)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &luaEngine{
		vm:       vm,
		compiled: make(map[string]*lua.LFunction),
		envMeta:  envMeta,
		timeout:  timeout,
	}, nil
}

func luaClamp(L *lua.LState) int {
	v := L.CheckNumber(1)
	lo := L.CheckNumber(2)
	hi := L.CheckNumber(3)
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	L.Push(v)
	return 1
}

func source(script string) string {
	trimmed := strings.TrimSpace(script)
	if strings.Contains(trimmed, "return") {
		return trimmed
	}
	return "return " + trimmed
}

// compile must be called with mu held
func (e *luaEngine) compile(script string) (*lua.LFunction, error) {
	if fn, ok := e.compiled[script]; ok {
		return fn, nil
	}
	fn, err := e.vm.LoadString(source(script))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidArgument, "failed to compile modifier script")
	}
	e.compiled[script] = fn
	return fn, nil
}

func (e *luaEngine) Compile(script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.compile(script)
	return err
}

func (e *luaEngine) Eval(ctx context.Context, script string, vars Vars) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, err := e.compile(script)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	e.vm.SetContext(ctx)
	defer e.vm.RemoveContext()

	env := e.vm.NewTable()
	env.RawSetString("value", lua.LNumber(vars.Value))
	env.RawSetString("round", lua.LNumber(vars.Round))
	env.RawSetString("phase", lua.LNumber(vars.Phase))
	env.RawSetString("_G", env)
	e.vm.SetMetatable(env, e.envMeta)
	fn.Env = env

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return 0, errors.Wrap(err, "modifier script failed")
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return 0, errors.InvalidArgumentf("modifier script returned %s, want number", result.Type().String())
	}
	return int(n), nil
}

func (e *luaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
