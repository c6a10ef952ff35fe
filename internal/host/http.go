package host

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oxhq/ecrun/internal/value"
)

// httpModule builds the http host facade: createServer plus a synchronous
// get helper. Requests arrive on a net/http goroutine and are handed to the
// event loop's macro queue; the handler goroutine blocks until user code
// ends the response (spec.md §5: never invoke user callbacks from a foreign
// thread).
func (h *Host) httpModule() *value.Object {
	m := value.NewObject()

	m.Set("createServer", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		if len(args) == 0 || args[0].Kind != value.Function {
			return value.Undef(), hostErr("createServer requires a handler function")
		}
		handler := args[0].AsCallable()

		serverObj, em := emitterObject("Server")
		var srv *http.Server

		serve := func(w http.ResponseWriter, r *http.Request) {
			done := make(chan struct{})
			var once sync.Once
			finish := func() { once.Do(func() { close(done) }) }
			h.Loop.Post(func() {
				req, res := h.requestPair(w, r, finish)
				if _, err := handler.Call([]value.Value{req, res}); err != nil {
					h.ReportUncaught(err)
					finish()
				}
			})
			// Block this net/http goroutine until user code ends the
			// response (possibly from a later tick).
			<-done
		}

		method(serverObj, "listen", func(args []value.Value) (value.Value, error) {
			port := int(value.ToNumber(arg(args, 0)))
			addr := fmt.Sprintf(":%d", port)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return value.Undef(), hostErr("listen: %v", err)
			}
			srv = &http.Server{Handler: http.HandlerFunc(serve)}
			h.Loop.KeepAlive(1)
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					h.Loop.Post(func() {
						_, _ = em.emit("error", []value.Value{value.Str(err.Error())})
					})
				}
			}()
			if len(args) > 1 && args[1].Kind == value.Function {
				cb := args[1].AsCallable()
				h.Loop.QueueMacro(func() {
					if _, err := cb.Call(nil); err != nil {
						h.ReportUncaught(err)
					}
				})
			}
			return value.Obj(serverObj), nil
		})
		method(serverObj, "close", func(args []value.Value) (value.Value, error) {
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
				srv = nil
				h.Loop.KeepAlive(-1)
				_, _ = em.emit("close", nil)
			}
			return value.Undef(), nil
		})
		return value.Obj(serverObj), nil
	})))

	method(m, "get", func(args []value.Value) (value.Value, error) {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Undef(), hostErr("get: %v", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return value.Undef(), hostErr("get: %v", err)
		}
		out := value.NewObject()
		out.Set("statusCode", value.Num(float64(resp.StatusCode)))
		out.Set("body", value.Str(string(body)))
		headers := value.NewObject()
		for k, vs := range resp.Header {
			headers.Set(strings.ToLower(k), value.Str(strings.Join(vs, ", ")))
		}
		out.Set("headers", value.Obj(headers))
		return value.Obj(out), nil
	})

	return m
}

// requestPair converts a Go request/response into the ec-visible req/res
// objects. res.end releases the blocked handler goroutine via finish.
func (h *Host) requestPair(w http.ResponseWriter, r *http.Request, finish func()) (value.Value, value.Value) {
	req := value.NewObject()
	req.Class = "IncomingMessage"
	req.Set("method", value.Str(r.Method))
	req.Set("url", value.Str(r.URL.String()))
	headers := value.NewObject()
	for k, vs := range r.Header {
		headers.Set(strings.ToLower(k), value.Str(strings.Join(vs, ", ")))
	}
	req.Set("headers", value.Obj(headers))
	if body, err := io.ReadAll(r.Body); err == nil {
		req.Set("body", value.Str(string(body)))
	}

	res := value.NewObject()
	res.Class = "ServerResponse"
	status := 200
	ended := false
	method(res, "writeHead", func(args []value.Value) (value.Value, error) {
		status = int(value.ToNumber(arg(args, 0)))
		if len(args) > 1 && args[1].Kind == value.ObjectKind {
			hdrs := args[1].AsObject()
			for _, k := range hdrs.Keys() {
				v, _ := hdrs.Get(k)
				w.Header().Set(k, value.ToString(v))
			}
		}
		return value.Obj(res), nil
	})
	method(res, "setHeader", func(args []value.Value) (value.Value, error) {
		w.Header().Set(value.ToString(arg(args, 0)), value.ToString(arg(args, 1)))
		return value.Obj(res), nil
	})
	var wroteHeader bool
	writeChunk := func(v value.Value) {
		if !wroteHeader {
			w.WriteHeader(status)
			wroteHeader = true
		}
		if v.Kind == value.Buffer {
			w.Write(v.AsBuffer())
			return
		}
		io.WriteString(w, value.ToString(v))
	}
	method(res, "write", func(args []value.Value) (value.Value, error) {
		if !ended && len(args) > 0 {
			writeChunk(args[0])
		}
		return value.Bool(true), nil
	})
	method(res, "end", func(args []value.Value) (value.Value, error) {
		if ended {
			return value.Undef(), nil
		}
		ended = true
		if len(args) > 0 {
			writeChunk(args[0])
		} else if !wroteHeader {
			w.WriteHeader(status)
		}
		finish()
		return value.Undef(), nil
	})
	return value.Obj(req), value.Obj(res)
}
