package host

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/value"
)

// Version is the runtime version string process.version reports.
const Version = "0.4.0"

// processObject builds the process facade of spec.md §6. A `.env` file in
// the working directory is folded into process.env at first construction,
// the way the teacher's database tests hydrate their environment.
func (h *Host) processObject() value.Value {
	p := value.NewObject()
	p.Set("pid", value.Num(float64(os.Getpid())))
	p.Set("ppid", value.Num(float64(os.Getppid())))
	p.Set("platform", value.Str(runtime.GOOS))
	p.Set("arch", value.Str(runtime.GOARCH))
	p.Set("version", value.Str("v"+Version))

	versions := value.NewObject()
	versions.Set("ecrun", value.Str(Version))
	versions.Set("go", value.Str(strings.TrimPrefix(runtime.Version(), "go")))
	p.Set("versions", value.Obj(versions))

	argv := make([]value.Value, len(h.Argv))
	for i, a := range h.Argv {
		argv[i] = value.Str(a)
	}
	p.Set("argv", value.Arr(argv))
	p.Set("env", value.Obj(h.envObject()))
	if exe, err := os.Executable(); err == nil {
		p.Set("execPath", value.Str(exe))
	}
	p.Set("exitCode", value.Num(float64(h.ExitCode)))

	method(p, "cwd", func(args []value.Value) (value.Value, error) {
		wd, err := os.Getwd()
		if err != nil {
			return value.Undef(), hostErr("cwd: %v", err)
		}
		return value.Str(wd), nil
	})
	method(p, "chdir", func(args []value.Value) (value.Value, error) {
		if err := os.Chdir(value.ToString(arg(args, 0))); err != nil {
			return value.Undef(), hostErr("chdir: %v", err)
		}
		return value.Undef(), nil
	})
	method(p, "exit", func(args []value.Value) (value.Value, error) {
		if len(args) > 0 {
			h.ExitCode = int(value.ToNumber(args[0]))
			h.ExitExplicit = true
		} else if code, ok := p.Get("exitCode"); ok {
			h.ExitCode = int(value.ToNumber(code))
			if h.ExitCode != 0 {
				h.ExitExplicit = true
			}
		}
		h.Loop.Stop()
		return value.Undef(), fmt.Errorf("process exit: %w", evaluator.ErrHalt)
	})
	method(p, "memoryUsage", func(args []value.Value) (value.Value, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		usage := value.NewObject()
		usage.Set("rss", value.Num(float64(m.Sys)))
		usage.Set("heapTotal", value.Num(float64(m.HeapSys)))
		usage.Set("heapUsed", value.Num(float64(m.HeapAlloc)))
		usage.Set("external", value.Num(float64(m.StackSys)))
		return value.Obj(usage), nil
	})
	method(p, "uptime", func(args []value.Value) (value.Value, error) {
		return value.Num(time.Since(h.start).Seconds()), nil
	})
	method(p, "hrtime", func(args []value.Value) (value.Value, error) {
		elapsed := time.Since(h.start)
		sec := float64(elapsed / time.Second)
		nsec := float64(elapsed % time.Second)
		if len(args) > 0 && args[0].Kind == value.Array {
			prev := args[0].AsArray()
			if len(prev) == 2 {
				sec -= value.ToNumber(prev[0])
				nsec -= value.ToNumber(prev[1])
				if nsec < 0 {
					sec--
					nsec += 1e9
				}
			}
		}
		return value.Arr([]value.Value{value.Num(sec), value.Num(nsec)}), nil
	})
	method(p, "nextTick", func(args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].Kind == value.Function {
			h.Loop.NextTick(h.task(args[0].AsCallable()))
		}
		return value.Undef(), nil
	})
	method(p, "on", func(args []value.Value) (value.Value, error) {
		if len(args) < 2 || args[1].Kind != value.Function {
			return value.Undef(), nil
		}
		switch value.ToString(args[0]) {
		case "beforeExit":
			h.beforeExit = append(h.beforeExit, args[1].AsCallable())
		case "exit":
			h.onExit = append(h.onExit, args[1].AsCallable())
		}
		return value.Undef(), nil
	})

	h.processVal = p
	return value.Obj(p)
}

func (h *Host) envObject() *value.Object {
	if h.env != nil {
		return h.env
	}
	_ = godotenv.Load()
	env := value.NewObject()
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env.Set(kv[:i], value.Str(kv[i+1:]))
		}
	}
	h.env = env
	return env
}

// FireExitEvents runs the process exit callbacks per spec.md §6: beforeExit
// fires only for an implicit, zero-code completion; exit always fires with
// the final code.
func (h *Host) FireExitEvents() {
	// Adopt a process.exitCode the script assigned, unless an error path or
	// explicit exit already fixed the code.
	if h.processVal != nil && !h.ExitExplicit && h.ExitCode == 0 {
		if code, ok := h.processVal.Get("exitCode"); ok {
			h.ExitCode = int(value.ToNumber(code))
		}
	}
	codeVal := value.Num(float64(h.ExitCode))
	if h.ExitCode == 0 && !h.ExitExplicit {
		for _, cb := range h.beforeExit {
			_, _ = cb.Call([]value.Value{codeVal})
		}
	}
	for _, cb := range h.onExit {
		_, _ = cb.Call([]value.Value{codeVal})
	}
}
