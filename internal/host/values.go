package host

import (
	"strings"
	"time"

	"github.com/oxhq/ecrun/internal/value"
)

// valueProps is the property dispatcher the evaluator consults for value
// kinds whose methods live in the host surface: dates, regexes, buffers,
// and constructor statics (spec.md §4.J: the evaluator needs stable
// dispatch, the bodies are host-owned).
func valueProps(recv value.Value, name string) (value.Value, bool) {
	switch recv.Kind {
	case value.DateKind:
		return dateMethod(recv, name)
	case value.RegexKind:
		return regexMethod(recv, name)
	case value.Buffer:
		return bufferMethod(recv, name)
	case value.Function:
		if c, ok := recv.AsCallable().(*ctorFunc); ok {
			v, found := c.Statics().Get(name)
			return v, found
		}
		return value.Undef(), false
	default:
		return value.Undef(), false
	}
}

func dateMethod(recv value.Value, name string) (value.Value, bool) {
	ms := recv.AsDate()
	t := time.UnixMilli(int64(ms)).UTC()
	numMethod := func(f func() float64) (value.Value, bool) {
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			return value.Num(f()), nil
		})), true
	}
	switch name {
	case "getTime", "valueOf":
		return numMethod(func() float64 { return ms })
	case "getFullYear":
		return numMethod(func() float64 { return float64(t.Year()) })
	case "getMonth":
		return numMethod(func() float64 { return float64(int(t.Month()) - 1) })
	case "getDate":
		return numMethod(func() float64 { return float64(t.Day()) })
	case "getDay":
		return numMethod(func() float64 { return float64(int(t.Weekday())) })
	case "getHours":
		return numMethod(func() float64 { return float64(t.Hour()) })
	case "getMinutes":
		return numMethod(func() float64 { return float64(t.Minute()) })
	case "getSeconds":
		return numMethod(func() float64 { return float64(t.Second()) })
	case "getMilliseconds":
		return numMethod(func() float64 { return float64(t.Nanosecond() / 1e6) })
	case "toISOString", "toJSON":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			return value.Str(isoString(ms)), nil
		})), true
	case "toString":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			return value.Str(t.Format(time.RFC1123)), nil
		})), true
	default:
		return value.Undef(), false
	}
}

func regexMethod(recv value.Value, name string) (value.Value, bool) {
	re := recv.AsRegex()
	switch name {
	case "source":
		return value.Str(re.Source), true
	case "flags":
		return value.Str(re.Flags), true
	case "global":
		return value.Bool(strings.ContainsRune(re.Flags, 'g')), true
	case "test":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			return value.Bool(re.Compiled.MatchString(value.ToString(arg(args, 0)))), nil
		})), true
	case "exec":
		return value.Fn(fn(func(args []value.Value) (value.Value, error) {
			groups := re.Compiled.FindStringSubmatch(value.ToString(arg(args, 0)))
			if groups == nil {
				return value.Nul(), nil
			}
			out := make([]value.Value, len(groups))
			for i, g := range groups {
				out[i] = value.Str(g)
			}
			return value.Arr(out), nil
		})), true
	default:
		return value.Undef(), false
	}
}
