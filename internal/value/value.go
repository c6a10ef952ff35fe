// Package value implements the tagged-variant runtime value model of
// spec.md §4.E, grounded in termfx-morfx's internal/core/types.go style of
// one Go struct per concept (Operation/Status/Input) generalized here into
// a single discriminated Value carrying a Kind tag plus a payload field set.
package value

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	Undefined Kind = iota
	Null
	Boolean
	Number
	String
	Array
	ObjectKind
	Function
	DateKind
	RegexKind
	Buffer
	Host // opaque handle vended by a host facade (streams, events, etc.)
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case ObjectKind:
		return "object"
	case Function:
		return "function"
	case DateKind:
		return "date"
	case RegexKind:
		return "regexp"
	case Buffer:
		return "buffer"
	case Host:
		return "host"
	default:
		return "unknown"
	}
}

// Callable is implemented by anything invocable with the call operator,
// covering both ec-level closures (evaluator.Function) and host functions.
type Callable interface {
	Call(args []Value) (Value, error)
}

// Value is the universal runtime value. Only the field(s) matching Kind are
// meaningful; this mirrors a tagged union without needing an interface{}
// payload for the hot scalar cases (Number/Boolean).
type Value struct {
	Kind Kind

	num  float64
	str  string
	b    bool
	arr  *[]Value
	obj  *Object
	fn   Callable
	re   *Regex
	date float64 // ms since epoch, mirrors Number encoding of Date
	buf  *[]byte
	host any
}

// Object is an ordered string-keyed property map. Keys preserve insertion
// order so for-in enumeration matches spec.md §9's own-keys-in-insertion-
// order decision (recorded in DESIGN.md).
type Object struct {
	keys   []string
	values map[string]Value
	// Class names the host-defined "shape" of this object, e.g. "Error",
	// used by typeof/instanceof-like checks in the evaluator.
	Class string
}

func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns property names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// SortedKeys returns property names in lexical order rather than
// insertion order.
func (o *Object) SortedKeys() []string {
	out := o.Keys()
	sort.Strings(out)
	return out
}

// Regex wraps a compiled pattern with its original source and flag letters.
type Regex struct {
	Source   string
	Flags    string
	Compiled *regexp.Regexp
}

// ---- Constructors ----

func Undef() Value        { return Value{Kind: Undefined} }
func Nul() Value          { return Value{Kind: Null} }
func Bool(b bool) Value   { return Value{Kind: Boolean, b: b} }
func Num(n float64) Value { return Value{Kind: Number, num: n} }
func Str(s string) Value  { return Value{Kind: String, str: s} }

func Arr(elems []Value) Value {
	a := make([]Value, len(elems))
	copy(a, elems)
	return Value{Kind: Array, arr: &a}
}

func Obj(o *Object) Value { return Value{Kind: ObjectKind, obj: o} }

func Fn(c Callable) Value { return Value{Kind: Function, fn: c} }

func Date(ms float64) Value { return Value{Kind: DateKind, date: ms} }

func RegexValue(r *Regex) Value { return Value{Kind: RegexKind, re: r} }

func BufferValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: Buffer, buf: &cp}
}

func HostValue(h any) Value { return Value{Kind: Host, host: h} }

// ---- Accessors ----

func (v Value) AsBool() bool         { return v.b }
func (v Value) AsNumber() float64    { return v.num }
func (v Value) AsString() string     { return v.str }
func (v Value) AsDate() float64      { return v.date }
func (v Value) AsRegex() *Regex      { return v.re }
func (v Value) AsHost() any          { return v.host }
func (v Value) AsCallable() Callable { return v.fn }

func (v Value) AsArray() []Value {
	if v.arr == nil {
		return nil
	}
	return *v.arr
}

// ArrayRef exposes the backing slice pointer so mutating operations (push,
// pop, splice) can resize in place without a Value round-trip.
func (v Value) ArrayRef() *[]Value { return v.arr }

func (v Value) AsObject() *Object { return v.obj }

func (v Value) AsBuffer() []byte {
	if v.buf == nil {
		return nil
	}
	return *v.buf
}

// ---- Truthiness, typeof, equality, coercion (spec.md §4.E) ----

// Truthy implements spec.md §4.E's truthiness table: false, 0, NaN, "",
// null, and undefined are falsy; everything else, including empty arrays
// and objects, is truthy.
func Truthy(v Value) bool {
	switch v.Kind {
	case Undefined, Null:
		return false
	case Boolean:
		return v.b
	case Number:
		return v.num != 0 && !math.IsNaN(v.num)
	case String:
		return v.str != ""
	default:
		return true
	}
}

// TypeOf implements the `typeof` operator's string result.
func TypeOf(v Value) string {
	switch v.Kind {
	case Undefined:
		return "undefined"
	case Null:
		return "object" // matches the historical JS quirk spec.md §4.E preserves
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Function:
		return "function"
	default:
		return "object"
	}
}

// ToNumber coerces a value for arithmetic/bitwise/shift contexts
// (spec.md §4.E coercion rules).
func ToNumber(v Value) float64 {
	switch v.Kind {
	case Number:
		return v.num
	case Boolean:
		if v.b {
			return 1
		}
		return 0
	case Null:
		return 0
	case Undefined:
		return math.NaN()
	case String:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case DateKind:
		return v.date
	default:
		// Array/Object/Function/Regex/Buffer/Host: coerce via string form
		// first, mirroring spec.md §9(i)'s object-vs-number `==` decision.
		s := ToString(v)
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return math.NaN()
		}
		return n
	}
}

// ToInt32 applies ToNumber then spec.md §4.E's 32-bit wraparound used by
// bitwise and shift operators.
func ToInt32(v Value) int32 {
	n := ToNumber(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int32(uint32(int64(n)))
}

func ToUint32(v Value) uint32 {
	n := ToNumber(v)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return uint32(int64(n))
}

// ToString implements the default stringification used by `+`, template
// literals, and console output (spec.md §4.E / §6).
func ToString(v Value) string {
	switch v.Kind {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		if v.b {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.num)
	case String:
		return v.str
	case Array:
		parts := make([]string, len(*v.arr))
		for i, e := range *v.arr {
			if e.Kind == Undefined || e.Kind == Null {
				parts[i] = ""
			} else {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case ObjectKind:
		return "[object Object]"
	case Function:
		return "function"
	case DateKind:
		return formatNumber(v.date)
	case RegexKind:
		return "/" + v.re.Source + "/" + v.re.Flags
	case Buffer:
		return string(*v.buf)
	default:
		return "[host]"
	}
}

func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "NaN"
	}
	if math.IsInf(n, 1) {
		return "Infinity"
	}
	if math.IsInf(n, -1) {
		return "-Infinity"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Add implements `+`, which is either numeric addition or string
// concatenation depending on operand kinds (spec.md §4.E: string wins if
// either operand is a string).
func Add(a, b Value) Value {
	if a.Kind == String || b.Kind == String {
		return Str(ToString(a) + ToString(b))
	}
	return Num(ToNumber(a) + ToNumber(b))
}

// StrictEquals implements `===`: same Kind and same payload, no coercion.
func StrictEquals(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Undefined, Null:
		return true
	case Boolean:
		return a.b == b.b
	case Number:
		return a.num == b.num
	case String:
		return a.str == b.str
	case DateKind:
		return a.date == b.date
	case Array:
		return a.arr == b.arr
	case ObjectKind:
		return a.obj == b.obj
	case Function:
		return fmt.Sprintf("%p", a.fn) == fmt.Sprintf("%p", b.fn)
	case RegexKind:
		return a.re == b.re
	case Buffer:
		return a.buf == b.buf
	default:
		return a.host == b.host
	}
}

// LooseEquals implements `==` per spec.md §4.E: same-kind comparisons
// delegate to StrictEquals; null == undefined; number/string pairs coerce
// the string to a number; boolean operands coerce to number first; the
// unlisted object/number pair coerces the object via ToNumber (its string
// form parsed as a number), per spec.md §9(i) and DESIGN.md.
func LooseEquals(a, b Value) bool {
	if a.Kind == b.Kind {
		return StrictEquals(a, b)
	}
	if (a.Kind == Null && b.Kind == Undefined) || (a.Kind == Undefined && b.Kind == Null) {
		return true
	}
	if a.Kind == Null || a.Kind == Undefined || b.Kind == Null || b.Kind == Undefined {
		return false
	}
	if a.Kind == Boolean {
		return LooseEquals(Num(ToNumber(a)), b)
	}
	if b.Kind == Boolean {
		return LooseEquals(a, Num(ToNumber(b)))
	}
	if a.Kind == Number && b.Kind == String {
		return a.num == ToNumber(b)
	}
	if a.Kind == String && b.Kind == Number {
		return ToNumber(a) == b.num
	}
	// Any other mixed pairing (object/array/function vs number/string):
	// coerce the non-primitive side to a number via its string form.
	return ToNumber(a) == ToNumber(b)
}
