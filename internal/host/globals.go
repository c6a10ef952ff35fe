package host

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oxhq/ecrun/internal/evaluator"
	"github.com/oxhq/ecrun/internal/value"
)

// installGlobals binds the ambient value namespaces: Math, JSON, Date, the
// built-in constructors, numeric parsing helpers, and the NaN/Infinity/
// undefined identifiers spec.md §4.B leaves to evaluation.
func (h *Host) installGlobals(ev *evaluator.Evaluator) {
	declare(ev, "undefined", value.Undef())
	declare(ev, "NaN", value.Num(math.NaN()))
	declare(ev, "Infinity", value.Num(math.Inf(1)))

	declare(ev, "Math", mathObject())
	declare(ev, "JSON", jsonObject())
	declare(ev, "Date", dateConstructor())
	declare(ev, "Object", objectConstructor())
	declare(ev, "Array", arrayConstructor())
	declare(ev, "String", stringConstructor())
	declare(ev, "Number", numberConstructor())
	declare(ev, "Boolean", booleanConstructor())

	declare(ev, "parseInt", value.Fn(fn(parseIntBuiltin)))
	declare(ev, "parseFloat", value.Fn(fn(parseFloatBuiltin)))
	declare(ev, "isNaN", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		return value.Bool(math.IsNaN(value.ToNumber(arg(args, 0)))), nil
	})))
	declare(ev, "isFinite", value.Fn(fn(func(args []value.Value) (value.Value, error) {
		n := value.ToNumber(arg(args, 0))
		return value.Bool(!math.IsNaN(n) && !math.IsInf(n, 0)), nil
	})))
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undef()
}

func num1(f func(float64) float64) fn {
	return func(args []value.Value) (value.Value, error) {
		return value.Num(f(value.ToNumber(arg(args, 0)))), nil
	}
}

func mathObject() value.Value {
	m := value.NewObject()
	m.Set("PI", value.Num(math.Pi))
	m.Set("E", value.Num(math.E))
	m.Set("LN2", value.Num(math.Ln2))
	m.Set("LN10", value.Num(math.Log(10)))
	m.Set("SQRT2", value.Num(math.Sqrt2))
	method(m, "abs", num1(math.Abs))
	method(m, "floor", num1(math.Floor))
	method(m, "ceil", num1(math.Ceil))
	method(m, "round", num1(func(n float64) float64 { return math.Floor(n + 0.5) }))
	method(m, "trunc", num1(math.Trunc))
	method(m, "sqrt", num1(math.Sqrt))
	method(m, "cbrt", num1(math.Cbrt))
	method(m, "exp", num1(math.Exp))
	method(m, "log", num1(math.Log))
	method(m, "log2", num1(math.Log2))
	method(m, "log10", num1(math.Log10))
	method(m, "sin", num1(math.Sin))
	method(m, "cos", num1(math.Cos))
	method(m, "tan", num1(math.Tan))
	method(m, "atan", num1(math.Atan))
	method(m, "asin", num1(math.Asin))
	method(m, "acos", num1(math.Acos))
	method(m, "sign", num1(func(n float64) float64 {
		switch {
		case n > 0:
			return 1
		case n < 0:
			return -1
		default:
			return n
		}
	}))
	method(m, "atan2", func(args []value.Value) (value.Value, error) {
		return value.Num(math.Atan2(value.ToNumber(arg(args, 0)), value.ToNumber(arg(args, 1)))), nil
	})
	method(m, "pow", func(args []value.Value) (value.Value, error) {
		return value.Num(math.Pow(value.ToNumber(arg(args, 0)), value.ToNumber(arg(args, 1)))), nil
	})
	method(m, "min", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Num(math.Inf(1)), nil
		}
		out := value.ToNumber(args[0])
		for _, a := range args[1:] {
			out = math.Min(out, value.ToNumber(a))
		}
		return value.Num(out), nil
	})
	method(m, "max", func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Num(math.Inf(-1)), nil
		}
		out := value.ToNumber(args[0])
		for _, a := range args[1:] {
			out = math.Max(out, value.ToNumber(a))
		}
		return value.Num(out), nil
	})
	method(m, "random", func(args []value.Value) (value.Value, error) {
		return value.Num(rand.Float64()), nil
	})
	return value.Obj(m)
}

func dateConstructor() value.Value {
	d := value.NewObject()
	method(d, "now", func(args []value.Value) (value.Value, error) {
		return value.Num(float64(time.Now().UnixMilli())), nil
	})
	method(d, "parse", func(args []value.Value) (value.Value, error) {
		t, err := parseDate(value.ToString(arg(args, 0)))
		if err != nil {
			return value.Num(math.NaN()), nil
		}
		return value.Num(float64(t.UnixMilli())), nil
	})
	// The Date binding is callable as a constructor: new Date(),
	// new Date(ms), new Date(isoString).
	ctor := constructorObject(d, func(args []value.Value) (value.Value, error) {
		switch {
		case len(args) == 0:
			return value.Date(float64(time.Now().UnixMilli())), nil
		case args[0].Kind == value.String:
			t, err := parseDate(args[0].AsString())
			if err != nil {
				return value.Date(math.NaN()), nil
			}
			return value.Date(float64(t.UnixMilli())), nil
		default:
			return value.Date(value.ToNumber(args[0])), nil
		}
	})
	return ctor
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
		time.RFC1123,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, hostErr("unrecognized date string %q", s)
}

// ctorFunc is a callable whose static properties are also reachable, so a
// single binding serves both `Date.now()` and `new Date(...)`.
type ctorFunc struct {
	statics *value.Object
	call    fn
}

func (c *ctorFunc) Call(args []value.Value) (value.Value, error) { return c.call(args) }

// Statics exposes the static-property table for evaluator member access.
func (c *ctorFunc) Statics() *value.Object { return c.statics }

func constructorObject(statics *value.Object, call fn) value.Value {
	return value.Fn(&ctorFunc{statics: statics, call: call})
}

func objectConstructor() value.Value {
	o := value.NewObject()
	method(o, "keys", func(args []value.Value) (value.Value, error) {
		a := arg(args, 0)
		if a.Kind != value.ObjectKind {
			return value.Arr(nil), nil
		}
		keys := a.AsObject().Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i] = value.Str(k)
		}
		return value.Arr(out), nil
	})
	method(o, "values", func(args []value.Value) (value.Value, error) {
		a := arg(args, 0)
		if a.Kind != value.ObjectKind {
			return value.Arr(nil), nil
		}
		obj := a.AsObject()
		keys := obj.Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			out[i], _ = obj.Get(k)
		}
		return value.Arr(out), nil
	})
	method(o, "entries", func(args []value.Value) (value.Value, error) {
		a := arg(args, 0)
		if a.Kind != value.ObjectKind {
			return value.Arr(nil), nil
		}
		obj := a.AsObject()
		keys := obj.Keys()
		out := make([]value.Value, len(keys))
		for i, k := range keys {
			v, _ := obj.Get(k)
			out[i] = value.Arr([]value.Value{value.Str(k), v})
		}
		return value.Arr(out), nil
	})
	method(o, "assign", func(args []value.Value) (value.Value, error) {
		target := arg(args, 0)
		if target.Kind != value.ObjectKind {
			return target, nil
		}
		for _, src := range args[1:] {
			if src.Kind != value.ObjectKind {
				continue
			}
			for _, k := range src.AsObject().Keys() {
				v, _ := src.AsObject().Get(k)
				target.AsObject().Set(k, v)
			}
		}
		return target, nil
	})
	return constructorObject(o, func(args []value.Value) (value.Value, error) {
		if len(args) > 0 && args[0].Kind == value.ObjectKind {
			return args[0], nil
		}
		return value.Obj(value.NewObject()), nil
	})
}

func arrayConstructor() value.Value {
	a := value.NewObject()
	method(a, "isArray", func(args []value.Value) (value.Value, error) {
		return value.Bool(arg(args, 0).Kind == value.Array), nil
	})
	method(a, "from", func(args []value.Value) (value.Value, error) {
		src := arg(args, 0)
		switch src.Kind {
		case value.Array:
			return value.Arr(src.AsArray()), nil
		case value.String:
			var out []value.Value
			for _, r := range src.AsString() {
				out = append(out, value.Str(string(r)))
			}
			return value.Arr(out), nil
		default:
			return value.Arr(nil), nil
		}
	})
	method(a, "of", func(args []value.Value) (value.Value, error) {
		return value.Arr(args), nil
	})
	return constructorObject(a, func(args []value.Value) (value.Value, error) {
		// new Array(n) pre-sizes with undefined; any other arity is the
		// element list.
		if len(args) == 1 && args[0].Kind == value.Number {
			n := int(args[0].AsNumber())
			out := make([]value.Value, n)
			for i := range out {
				out[i] = value.Undef()
			}
			return value.Arr(out), nil
		}
		return value.Arr(args), nil
	})
}

func stringConstructor() value.Value {
	s := value.NewObject()
	method(s, "fromCharCode", func(args []value.Value) (value.Value, error) {
		var b strings.Builder
		for _, a := range args {
			b.WriteRune(rune(int(value.ToNumber(a))))
		}
		return value.Str(b.String()), nil
	})
	return constructorObject(s, func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Str(""), nil
		}
		return value.Str(value.ToString(args[0])), nil
	})
}

func numberConstructor() value.Value {
	n := value.NewObject()
	n.Set("MAX_SAFE_INTEGER", value.Num(9007199254740991))
	n.Set("MIN_SAFE_INTEGER", value.Num(-9007199254740991))
	n.Set("EPSILON", value.Num(2.220446049250313e-16))
	method(n, "isInteger", func(args []value.Value) (value.Value, error) {
		a := arg(args, 0)
		if a.Kind != value.Number {
			return value.Bool(false), nil
		}
		return value.Bool(a.AsNumber() == math.Trunc(a.AsNumber())), nil
	})
	method(n, "isNaN", func(args []value.Value) (value.Value, error) {
		a := arg(args, 0)
		return value.Bool(a.Kind == value.Number && math.IsNaN(a.AsNumber())), nil
	})
	method(n, "parseFloat", fn(parseFloatBuiltin))
	method(n, "parseInt", fn(parseIntBuiltin))
	return constructorObject(n, func(args []value.Value) (value.Value, error) {
		if len(args) == 0 {
			return value.Num(0), nil
		}
		return value.Num(value.ToNumber(args[0])), nil
	})
}

func booleanConstructor() value.Value {
	b := value.NewObject()
	return constructorObject(b, func(args []value.Value) (value.Value, error) {
		return value.Bool(value.Truthy(arg(args, 0))), nil
	})
}

func parseIntBuiltin(args []value.Value) (value.Value, error) {
	s := strings.TrimSpace(value.ToString(arg(args, 0)))
	radix := 10
	if len(args) > 1 {
		if r := int(value.ToNumber(args[1])); r >= 2 && r <= 36 {
			radix = r
		}
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	if radix == 16 {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	// Consume the longest valid prefix, the way parseInt does.
	end := 0
	for end < len(s) {
		d := digitVal(s[end])
		if d < 0 || d >= radix {
			break
		}
		end++
	}
	if end == 0 {
		return value.Num(math.NaN()), nil
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return value.Num(math.NaN()), nil
	}
	out := float64(n)
	if neg {
		out = -out
	}
	return value.Num(out), nil
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func parseFloatBuiltin(args []value.Value) (value.Value, error) {
	s := strings.TrimSpace(value.ToString(arg(args, 0)))
	end := 0
	seenDot, seenExp := false, false
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && !seenExp && end > 0:
			seenExp = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		default:
			goto done
		}
		end++
	}
done:
	if end == 0 {
		return value.Num(math.NaN()), nil
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return value.Num(math.NaN()), nil
	}
	return value.Num(n), nil
}
