package host

import (
	"fmt"

	"github.com/oxhq/ecrun/internal/value"
)

// emitter is the listener table behind one EventEmitter handle. Emission is
// synchronous in registration order, like observer fan-out (spec.md §5).
type emitter struct {
	listeners map[string][]*listener
}

type listener struct {
	cb   value.Callable
	once bool
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[string][]*listener)}
}

func (e *emitter) on(event string, cb value.Callable, once bool) {
	e.listeners[event] = append(e.listeners[event], &listener{cb: cb, once: once})
}

func (e *emitter) off(event string, cb value.Callable) {
	list := e.listeners[event]
	for i, l := range list {
		// Identity comparison via %p: callables may be func values, which
		// Go forbids comparing with ==.
		if fmt.Sprintf("%p", l.cb) == fmt.Sprintf("%p", cb) {
			e.listeners[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(event string, args []value.Value) (bool, error) {
	list := e.listeners[event]
	if len(list) == 0 {
		return false, nil
	}
	var kept []*listener
	for _, l := range list {
		if !l.once {
			kept = append(kept, l)
		}
	}
	e.listeners[event] = kept
	for _, l := range list {
		if _, err := l.cb.Call(args); err != nil {
			return true, err
		}
	}
	return true, nil
}

// emitterObject wires an emitter's methods onto an ec object. The same
// surface backs EventEmitter instances, streams, and HTTP servers.
func emitterObject(class string) (*value.Object, *emitter) {
	em := newEmitter()
	obj := value.NewObject()
	obj.Class = class
	method(obj, "on", func(args []value.Value) (value.Value, error) {
		if len(args) >= 2 && args[1].Kind == value.Function {
			em.on(value.ToString(args[0]), args[1].AsCallable(), false)
		}
		return value.Obj(obj), nil
	})
	method(obj, "once", func(args []value.Value) (value.Value, error) {
		if len(args) >= 2 && args[1].Kind == value.Function {
			em.on(value.ToString(args[0]), args[1].AsCallable(), true)
		}
		return value.Obj(obj), nil
	})
	method(obj, "off", func(args []value.Value) (value.Value, error) {
		if len(args) >= 2 && args[1].Kind == value.Function {
			em.off(value.ToString(args[0]), args[1].AsCallable())
		}
		return value.Obj(obj), nil
	})
	method(obj, "removeAllListeners", func(args []value.Value) (value.Value, error) {
		if len(args) > 0 {
			delete(em.listeners, value.ToString(args[0]))
		} else {
			em.listeners = make(map[string][]*listener)
		}
		return value.Obj(obj), nil
	})
	method(obj, "emit", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Bool(false), nil
		}
		had, err := em.emit(value.ToString(args[0]), args[1:])
		return value.Bool(had), err
	})
	method(obj, "listenerCount", func(args []value.Value) (value.Value, error) {
		return value.Num(float64(len(em.listeners[value.ToString(arg(args, 0))]))), nil
	})
	return obj, em
}

func eventsModule() *value.Object {
	m := value.NewObject()
	m.Set("EventEmitter", constructorObject(value.NewObject(), func(args []value.Value) (value.Value, error) {
		obj, _ := emitterObject("EventEmitter")
		return value.Obj(obj), nil
	}))
	return m
}

// streamModule builds minimal Readable/Writable handles. Data delivery goes
// through the macro-task queue so a consumer's `on("data")` registered in
// the same tick always sees the chunks (spec.md §5: host resources hand
// work to the macro queue rather than invoking user code directly).
func (h *Host) streamModule() *value.Object {
	m := value.NewObject()

	m.Set("Readable", constructorObject(value.NewObject(), func(args []value.Value) (value.Value, error) {
		obj, em := emitterObject("Readable")
		ended := false
		method(obj, "push", func(args []value.Value) (value.Value, error) {
			if ended {
				return value.Bool(false), nil
			}
			chunk := arg(args, 0)
			if chunk.Kind == value.Null {
				ended = true
				h.Loop.QueueMacro(func() {
					if _, err := em.emit("end", nil); err != nil {
						h.ReportUncaught(err)
					}
				})
				return value.Bool(false), nil
			}
			h.Loop.QueueMacro(func() {
				if _, err := em.emit("data", []value.Value{chunk}); err != nil {
					h.ReportUncaught(err)
				}
			})
			return value.Bool(true), nil
		})
		return value.Obj(obj), nil
	}))

	m.Set("Writable", constructorObject(value.NewObject(), func(args []value.Value) (value.Value, error) {
		obj, em := emitterObject("Writable")
		var chunks []value.Value
		method(obj, "write", func(args []value.Value) (value.Value, error) {
			chunks = append(chunks, arg(args, 0))
			return value.Bool(true), nil
		})
		method(obj, "end", func(args []value.Value) (value.Value, error) {
			if len(args) > 0 {
				chunks = append(chunks, args[0])
			}
			h.Loop.QueueMacro(func() {
				if _, err := em.emit("finish", nil); err != nil {
					h.ReportUncaught(err)
				}
			})
			return value.Undef(), nil
		})
		method(obj, "chunks", func(args []value.Value) (value.Value, error) {
			return value.Arr(chunks), nil
		})
		return value.Obj(obj), nil
	}))

	return m
}
