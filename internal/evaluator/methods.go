package evaluator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/oxhq/ecrun/internal/value"
)

// compileRegex translates an ec regex literal into Go's regexp syntax. The
// `g` flag has no Go equivalent at compile time (it changes match iteration,
// handled by callers); `i` and `m` map to inline flag groups.
func compileRegex(pattern, flags string) (*value.Regex, error) {
	goPattern := pattern
	var prefix string
	if strings.ContainsRune(flags, 'i') {
		prefix += "i"
	}
	if strings.ContainsRune(flags, 'm') {
		prefix += "m"
	}
	if prefix != "" {
		goPattern = "(?" + prefix + ")" + goPattern
	}
	compiled, err := regexp.Compile(goPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression /%s/%s", pattern, flags)
	}
	return &value.Regex{Source: pattern, Flags: flags, Compiled: compiled}, nil
}

// arrayMethod vends the built-in methods reachable as properties of an array
// value. Mutating methods operate through ArrayRef so aliased references see
// the change.
func arrayMethod(e *Evaluator, recv value.Value, name string) value.Value {
	ref := recv.ArrayRef()
	switch name {
	case "push":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			*ref = append(*ref, args...)
			return value.Num(float64(len(*ref))), nil
		}))
	case "pop":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(*ref) == 0 {
				return value.Undef(), nil
			}
			last := (*ref)[len(*ref)-1]
			*ref = (*ref)[:len(*ref)-1]
			return last, nil
		}))
	case "shift":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(*ref) == 0 {
				return value.Undef(), nil
			}
			first := (*ref)[0]
			*ref = (*ref)[1:]
			return first, nil
		}))
	case "unshift":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			*ref = append(append([]value.Value{}, args...), *ref...)
			return value.Num(float64(len(*ref))), nil
		}))
	case "slice":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			start, end := sliceBounds(args, len(*ref))
			return value.Arr((*ref)[start:end]), nil
		}))
	case "splice":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			arr := *ref
			start := clampIndex(argNum(args, 0, 0), len(arr))
			count := len(arr) - start
			if len(args) > 1 {
				count = int(value.ToNumber(args[1]))
				if count < 0 {
					count = 0
				}
				if start+count > len(arr) {
					count = len(arr) - start
				}
			}
			removed := append([]value.Value{}, arr[start:start+count]...)
			var inserted []value.Value
			if len(args) > 2 {
				inserted = args[2:]
			}
			next := append([]value.Value{}, arr[:start]...)
			next = append(next, inserted...)
			next = append(next, arr[start+count:]...)
			*ref = next
			return value.Arr(removed), nil
		}))
	case "indexOf":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Num(-1), nil
			}
			for i, el := range *ref {
				if value.StrictEquals(el, args[0]) {
					return value.Num(float64(i)), nil
				}
			}
			return value.Num(-1), nil
		}))
	case "includes":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Bool(false), nil
			}
			for _, el := range *ref {
				if value.StrictEquals(el, args[0]) {
					return value.Bool(true), nil
				}
			}
			return value.Bool(false), nil
		}))
	case "join":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			sep := ","
			if len(args) > 0 {
				sep = value.ToString(args[0])
			}
			parts := make([]string, len(*ref))
			for i, el := range *ref {
				if el.Kind == value.Undefined || el.Kind == value.Null {
					parts[i] = ""
				} else {
					parts[i] = value.ToString(el)
				}
			}
			return value.Str(strings.Join(parts, sep)), nil
		}))
	case "concat":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			out := append([]value.Value{}, *ref...)
			for _, a := range args {
				if a.Kind == value.Array {
					out = append(out, a.AsArray()...)
				} else {
					out = append(out, a)
				}
			}
			return value.Arr(out), nil
		}))
	case "reverse":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			arr := *ref
			for i, j := 0, len(arr)-1; i < j; i, j = i+1, j-1 {
				arr[i], arr[j] = arr[j], arr[i]
			}
			return recv, nil
		}))
	case "sort":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			arr := *ref
			var sortErr error
			if len(args) > 0 && args[0].Kind == value.Function {
				cmp := args[0].AsCallable()
				sort.SliceStable(arr, func(i, j int) bool {
					if sortErr != nil {
						return false
					}
					r, err := cmp.Call([]value.Value{arr[i], arr[j]})
					if err != nil {
						sortErr = err
						return false
					}
					return value.ToNumber(r) < 0
				})
			} else {
				sort.SliceStable(arr, func(i, j int) bool {
					return value.ToString(arr[i]) < value.ToString(arr[j])
				})
			}
			return recv, sortErr
		}))
	case "map":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "map")
			if err != nil {
				return value.Undef(), err
			}
			out := make([]value.Value, len(*ref))
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				out[i] = r
			}
			return value.Arr(out), nil
		}))
	case "filter":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "filter")
			if err != nil {
				return value.Undef(), err
			}
			var out []value.Value
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				if value.Truthy(r) {
					out = append(out, el)
				}
			}
			return value.Arr(out), nil
		}))
	case "forEach":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "forEach")
			if err != nil {
				return value.Undef(), err
			}
			for i, el := range *ref {
				if _, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv}); err != nil {
					return value.Undef(), err
				}
			}
			return value.Undef(), nil
		}))
	case "reduce":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "reduce")
			if err != nil {
				return value.Undef(), err
			}
			arr := *ref
			var acc value.Value
			start := 0
			if len(args) > 1 {
				acc = args[1]
			} else {
				if len(arr) == 0 {
					return value.Undef(), fmt.Errorf("reduce of empty array with no initial value")
				}
				acc = arr[0]
				start = 1
			}
			for i := start; i < len(arr); i++ {
				acc, err = fn.Call([]value.Value{acc, arr[i], value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
			}
			return acc, nil
		}))
	case "find":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "find")
			if err != nil {
				return value.Undef(), err
			}
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				if value.Truthy(r) {
					return el, nil
				}
			}
			return value.Undef(), nil
		}))
	case "findIndex":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "findIndex")
			if err != nil {
				return value.Undef(), err
			}
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				if value.Truthy(r) {
					return value.Num(float64(i)), nil
				}
			}
			return value.Num(-1), nil
		}))
	case "some":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "some")
			if err != nil {
				return value.Undef(), err
			}
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				if value.Truthy(r) {
					return value.Bool(true), nil
				}
			}
			return value.Bool(false), nil
		}))
	case "every":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			fn, err := callableArg(args, 0, "every")
			if err != nil {
				return value.Undef(), err
			}
			for i, el := range *ref {
				r, err := fn.Call([]value.Value{el, value.Num(float64(i)), recv})
				if err != nil {
					return value.Undef(), err
				}
				if !value.Truthy(r) {
					return value.Bool(false), nil
				}
			}
			return value.Bool(true), nil
		}))
	case "toString":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(value.ToString(recv)), nil
		}))
	default:
		return value.Undef()
	}
}

// stringMethod vends the built-in methods reachable as properties of a
// string value. Strings are immutable; every method returns a new value.
func stringMethod(e *Evaluator, recv value.Value, name string) value.Value {
	s := recv.AsString()
	switch name {
	case "charAt":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			runes := []rune(s)
			i := int(argNum(args, 0, 0))
			if i < 0 || i >= len(runes) {
				return value.Str(""), nil
			}
			return value.Str(string(runes[i])), nil
		}))
	case "charCodeAt":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			runes := []rune(s)
			i := int(argNum(args, 0, 0))
			if i < 0 || i >= len(runes) {
				return value.Num(math.NaN()), nil
			}
			return value.Num(float64(runes[i])), nil
		}))
	case "indexOf":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Num(-1), nil
			}
			return value.Num(float64(strings.Index(s, value.ToString(args[0])))), nil
		}))
	case "lastIndexOf":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Num(-1), nil
			}
			return value.Num(float64(strings.LastIndex(s, value.ToString(args[0])))), nil
		}))
	case "includes":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Bool(false), nil
			}
			return value.Bool(strings.Contains(s, value.ToString(args[0]))), nil
		}))
	case "startsWith":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Bool(false), nil
			}
			return value.Bool(strings.HasPrefix(s, value.ToString(args[0]))), nil
		}))
	case "endsWith":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Bool(false), nil
			}
			return value.Bool(strings.HasSuffix(s, value.ToString(args[0]))), nil
		}))
	case "slice", "substring":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			runes := []rune(s)
			start, end := sliceBounds(args, len(runes))
			return value.Str(string(runes[start:end])), nil
		}))
	case "toUpperCase":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(strings.ToUpper(s)), nil
		}))
	case "toLowerCase":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(strings.ToLower(s)), nil
		}))
	case "trim":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(strings.TrimSpace(s)), nil
		}))
	case "split":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return value.Arr([]value.Value{value.Str(s)}), nil
			}
			var parts []string
			if args[0].Kind == value.RegexKind {
				parts = args[0].AsRegex().Compiled.Split(s, -1)
			} else {
				sep := value.ToString(args[0])
				if sep == "" {
					for _, r := range s {
						parts = append(parts, string(r))
					}
				} else {
					parts = strings.Split(s, sep)
				}
			}
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.Str(p)
			}
			return value.Arr(out), nil
		}))
	case "replace":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) < 2 {
				return value.Str(s), nil
			}
			repl := value.ToString(args[1])
			if args[0].Kind == value.RegexKind {
				re := args[0].AsRegex()
				if strings.ContainsRune(re.Flags, 'g') {
					return value.Str(re.Compiled.ReplaceAllString(s, repl)), nil
				}
				if loc := re.Compiled.FindStringIndex(s); loc != nil {
					return value.Str(s[:loc[0]] + repl + s[loc[1]:]), nil
				}
				return value.Str(s), nil
			}
			return value.Str(strings.Replace(s, value.ToString(args[0]), repl, 1)), nil
		}))
	case "repeat":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			n := int(argNum(args, 0, 0))
			if n < 0 {
				return value.Undef(), fmt.Errorf("invalid repeat count")
			}
			return value.Str(strings.Repeat(s, n)), nil
		}))
	case "padStart":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(pad(s, args, true)), nil
		}))
	case "padEnd":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(pad(s, args, false)), nil
		}))
	case "concat":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			out := s
			for _, a := range args {
				out += value.ToString(a)
			}
			return value.Str(out), nil
		}))
	case "match":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 || args[0].Kind != value.RegexKind {
				return value.Nul(), nil
			}
			re := args[0].AsRegex()
			if strings.ContainsRune(re.Flags, 'g') {
				matches := re.Compiled.FindAllString(s, -1)
				if matches == nil {
					return value.Nul(), nil
				}
				out := make([]value.Value, len(matches))
				for i, m := range matches {
					out[i] = value.Str(m)
				}
				return value.Arr(out), nil
			}
			groups := re.Compiled.FindStringSubmatch(s)
			if groups == nil {
				return value.Nul(), nil
			}
			out := make([]value.Value, len(groups))
			for i, g := range groups {
				out[i] = value.Str(g)
			}
			return value.Arr(out), nil
		}))
	case "toString":
		return value.Fn(hostFunc(func(args []value.Value) (value.Value, error) {
			return value.Str(s), nil
		}))
	default:
		return value.Undef()
	}
}

func pad(s string, args []value.Value, start bool) string {
	target := int(argNum(args, 0, 0))
	fill := " "
	if len(args) > 1 {
		fill = value.ToString(args[1])
	}
	if fill == "" || len([]rune(s)) >= target {
		return s
	}
	var b strings.Builder
	for len([]rune(s))+b.Len() < target {
		b.WriteString(fill)
	}
	padding := string([]rune(b.String())[:target-len([]rune(s))])
	if start {
		return padding + s
	}
	return s + padding
}

func argNum(args []value.Value, i int, def float64) float64 {
	if i >= len(args) {
		return def
	}
	n := value.ToNumber(args[i])
	if math.IsNaN(n) {
		return def
	}
	return n
}

func callableArg(args []value.Value, i int, method string) (value.Callable, error) {
	if i >= len(args) || args[i].Kind != value.Function {
		return nil, fmt.Errorf("%s requires a callback function", method)
	}
	return args[i].AsCallable(), nil
}

func clampIndex(n float64, length int) int {
	i := int(n)
	if i < 0 {
		i += length
	}
	if i < 0 {
		i = 0
	}
	if i > length {
		i = length
	}
	return i
}

// sliceBounds resolves the optional (start, end) arguments shared by
// Array.slice and String.slice, with negative-index wraparound.
func sliceBounds(args []value.Value, length int) (int, int) {
	start := 0
	end := length
	if len(args) > 0 {
		start = clampIndex(value.ToNumber(args[0]), length)
	}
	if len(args) > 1 && args[1].Kind != value.Undefined {
		end = clampIndex(value.ToNumber(args[1]), length)
	}
	if end < start {
		end = start
	}
	return start, end
}
