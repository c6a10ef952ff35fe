// Package host supplies the facades of spec.md §4.J / §6: console, timers,
// the global constructors and utility namespaces, the process object, and
// the built-in modules reachable through import/require. The evaluator only
// sees stable value.Callable dispatch; method bodies live here.
package host

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/oxhq/ecrun/internal/environment"
	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/eventloop"
	"github.com/oxhq/ecrun/internal/value"
)

// fn adapts a Go closure to value.Callable for host-defined methods.
type fn func(args []value.Value) (value.Value, error)

func (f fn) Call(args []value.Value) (value.Value, error) { return f(args) }

// Host owns the process-wide state the facades share: output streams, the
// event loop timers post to, argv, and exit bookkeeping.
type Host struct {
	Loop   *eventloop.Loop
	Stdout io.Writer
	Stderr io.Writer
	Argv   []string

	// ExitCode mirrors process.exitCode; ExitExplicit records whether
	// process.exit was called with an explicit argument or a non-zero code
	// was set, which suppresses beforeExit (spec.md §6 exit semantics).
	ExitCode     int
	ExitExplicit bool

	beforeExit []value.Callable
	onExit     []value.Callable
	start      time.Time
	env        *value.Object
	processVal *value.Object
}

// New creates a Host writing to the given streams.
func New(loop *eventloop.Loop, stdout, stderr io.Writer) *Host {
	return &Host{
		Loop:   loop,
		Stdout: stdout,
		Stderr: stderr,
		Argv:   os.Args,
		start:  time.Now(),
	}
}

// Install wires every global facade into a module evaluator's global scope
// and registers the host property dispatcher for dates, regexes, and
// buffers.
func (h *Host) Install(ev *evaluator.Evaluator) {
	ev.HostProps = valueProps

	declare(ev, "console", h.consoleObject())
	h.installTimers(ev)
	h.installGlobals(ev)
	declare(ev, "process", h.processObject())
	declare(ev, "Buffer", bufferNamespace())
}

// Builtins returns the constructor map for the node: host modules of
// spec.md §6, for the module resolver.
func (h *Host) Builtins() map[string]func() *value.Object {
	return map[string]func() *value.Object{
		"fs":          fsModule,
		"path":        pathModule,
		"os":          osModule,
		"crypto":      cryptoModule,
		"url":         urlModule,
		"querystring": querystringModule,
		"events":      eventsModule,
		"stream":      h.streamModule,
		"buffer":      func() *value.Object { return objOf("Buffer", value.Obj(bufferNamespaceObj())) },
		"util":        utilModule,
		"http":        h.httpModule,
	}
}

// installTimers binds setTimeout/setInterval/clearTimeout/clearInterval/
// setImmediate/nextTick onto the global scope, delegating to the loop
// (spec.md §6 timers).
func (h *Host) installTimers(ev *evaluator.Evaluator) {
	declare(ev, "setTimeout", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		cb, ms, err := timerArgs(args)
		if err != nil {
			return value.Undef(), err
		}
		id := h.Loop.SetTimeout(h.task(cb), ms)
		return value.Num(float64(id)), nil
	})))
	declare(ev, "setInterval", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		cb, ms, err := timerArgs(args)
		if err != nil {
			return value.Undef(), err
		}
		id := h.Loop.SetInterval(h.task(cb), ms)
		return value.Num(float64(id)), nil
	})))
	declare(ev, "clearTimeout", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		if len(args) > 0 {
			h.Loop.Clear(int(value.ToNumber(args[0])))
		}
		return value.Undef(), nil
	})))
	declare(ev, "clearInterval", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		if len(args) > 0 {
			h.Loop.Clear(int(value.ToNumber(args[0])))
		}
		return value.Undef(), nil
	})))
	declare(ev, "setImmediate", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].Kind == value.Function {
			h.Loop.QueueMacro(h.task(args[0].AsCallable()))
		}
		return value.Undef(), nil
	})))
	declare(ev, "nextTick", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].Kind == value.Function {
			h.Loop.NextTick(h.task(args[0].AsCallable()))
		}
		return value.Undef(), nil
	})))
}

// task wraps an ec callback for the event loop, reporting an escaped error
// through the uncaught path: print the diagnostic, stop the loop, exit 1
// (spec.md §7 propagation policy).
func (h *Host) task(cb value.Callable) eventloop.Task {
	return func() {
		if _, err := cb.Call(nil); err != nil {
			h.ReportUncaught(err)
		}
	}
}

// ReportUncaught prints an error that escaped user code and schedules
// loop shutdown with exit code 1 unless an explicit code was already set.
func (h *Host) ReportUncaught(err error) {
	io.WriteString(h.Stderr, err.Error()+"\n")
	if !h.ExitExplicit {
		h.ExitCode = 1
	}
	h.Loop.Stop()
}

func timerArgs(args []value.Value) (value.Callable, time.Duration, error) {
	if len(args) == 0 || args[0].Kind != value.Function {
		return nil, 0, hostErr("timer callback must be a function")
	}
	ms := float64(0)
	if len(args) > 1 {
		ms = value.ToNumber(args[1])
		if math.IsNaN(ms) || ms < 0 {
			ms = 0
		}
	}
	return args[0].AsCallable(), time.Duration(ms) * time.Millisecond, nil
}

func declare(ev *evaluator.Evaluator, name string, v value.Value) {
	if err := ev.Global.Declare(name, environment.KindConst, true); err == nil {
		ev.Global.Initialize(name, v)
	}
}

// objOf builds a single-key object, for wrapping a namespace as a module.
func objOf(key string, v value.Value) *value.Object {
	o := value.NewObject()
	o.Set(key, v)
	return o
}

// method registers a host function as an object property.
func method(o *value.Object, name string, f fn) {
	o.Set(name, value.Fn(f))
}
