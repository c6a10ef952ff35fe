package host

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oxhq/ecrun/internal/diagnostics"
	"github.com/oxhq/ecrun/internal/value"
)

func hostErr(format string, args ...any) error {
	return &diagnostics.Diagnostic{
		Kind: diagnostics.Code{Kind: diagnostics.Host, ID: "HOST_ERROR"},
		Msg:  fmt.Sprintf(format, args...),
	}
}

// consoleObject builds the console facade: log/info to stdout, warn/error
// to stderr, all using the deterministic formatting of spec.md §6.
func (h *Host) consoleObject() value.Value {
	console := value.NewObject()
	write := func(w io.Writer) fn {
		return func(args []value.Value) (value.Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = Inspect(a, false)
			}
			io.WriteString(w, strings.Join(parts, " ")+"\n")
			return value.Undef(), nil
		}
	}
	method(console, "log", write(h.Stdout))
	method(console, "info", write(h.Stdout))
	method(console, "warn", write(h.Stderr))
	method(console, "error", write(h.Stderr))
	method(console, "debug", write(h.Stderr))
	return value.Obj(console)
}

// Inspect renders a value for console output per spec.md §6: strings are
// unquoted at the top level but quoted when nested; objects render as
// {key: value, ...} in insertion order; arrays as [v0, v1, ...]; dates by
// their ISO string; functions as [Function name] or [Function].
func Inspect(v value.Value, nested bool) string {
	switch v.Kind {
	case value.String:
		if nested {
			return fmt.Sprintf("%q", v.AsString())
		}
		return v.AsString()
	case value.Array:
		arr := v.AsArray()
		parts := make([]string, len(arr))
		for i, el := range arr {
			parts[i] = Inspect(el, true)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case value.ObjectKind:
		obj := v.AsObject()
		keys := obj.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			pv, _ := obj.Get(k)
			parts[i] = k + ": " + Inspect(pv, true)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case value.DateKind:
		return isoString(v.AsDate())
	case value.Function:
		type named interface{ Name() string }
		if n, ok := v.AsCallable().(named); ok && n.Name() != "" {
			return "[Function " + n.Name() + "]"
		}
		return "[Function]"
	case value.Buffer:
		b := v.AsBuffer()
		parts := make([]string, len(b))
		for i, c := range b {
			parts[i] = fmt.Sprintf("%02x", c)
		}
		return "<Buffer " + strings.Join(parts, " ") + ">"
	default:
		return value.ToString(v)
	}
}

func isoString(ms float64) string {
	t := time.UnixMilli(int64(ms)).UTC()
	return t.Format("2006-01-02T15:04:05.000Z")
}
