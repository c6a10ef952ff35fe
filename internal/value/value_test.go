package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthiness(t *testing.T) {
	falsy := []Value{Bool(false), Nul(), Undef(), Num(0), Num(math.NaN()), Str("")}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "expected falsy: %v", v)
	}
	truthy := []Value{
		Bool(true), Num(1), Num(-1), Str("0"), Str("false"),
		Arr(nil), Obj(NewObject()),
	}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "expected truthy: %v", v)
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "number", TypeOf(Num(1)))
	assert.Equal(t, "string", TypeOf(Str("")))
	assert.Equal(t, "boolean", TypeOf(Bool(true)))
	assert.Equal(t, "undefined", TypeOf(Undef()))
	assert.Equal(t, "object", TypeOf(Nul()))
	assert.Equal(t, "object", TypeOf(Arr(nil)))
	assert.Equal(t, "object", TypeOf(Obj(NewObject())))
	assert.Equal(t, "object", TypeOf(Date(0)))
}

func TestStrictEquals(t *testing.T) {
	assert.True(t, StrictEquals(Num(3), Num(3)))
	assert.False(t, StrictEquals(Num(3), Str("3")))
	assert.True(t, StrictEquals(Str("a"), Str("a")))
	assert.True(t, StrictEquals(Nul(), Nul()))
	assert.False(t, StrictEquals(Nul(), Undef()))

	// NaN is not equal to itself.
	assert.False(t, StrictEquals(Num(math.NaN()), Num(math.NaN())))

	// Reference identity for arrays and objects.
	a := Arr([]Value{Num(1)})
	assert.True(t, StrictEquals(a, a))
	assert.False(t, StrictEquals(Arr([]Value{Num(1)}), Arr([]Value{Num(1)})))

	o := Obj(NewObject())
	assert.True(t, StrictEquals(o, o))
	assert.False(t, StrictEquals(Obj(NewObject()), Obj(NewObject())))
}

func TestLooseEquals(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"number string coercion", Num(3), Str("3"), true},
		{"string number coercion", Str("3.5"), Num(3.5), true},
		{"boolean to number", Bool(true), Num(1), true},
		{"boolean false to zero", Bool(false), Num(0), true},
		{"null undefined", Nul(), Undef(), true},
		{"null not zero", Nul(), Num(0), false},
		{"undefined not empty string", Undef(), Str(""), false},
		{"mismatched strings", Str("a"), Num(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LooseEquals(tt.a, tt.b))
			assert.Equal(t, tt.want, LooseEquals(tt.b, tt.a), "== must be symmetric")
		})
	}
}

func TestAdd(t *testing.T) {
	assert.Equal(t, Num(3), Add(Num(1), Num(2)))
	assert.Equal(t, Str("a1"), Add(Str("a"), Num(1)))
	assert.Equal(t, Str("1a"), Add(Num(1), Str("a")))
	assert.Equal(t, Str("nullx"), Add(Nul(), Str("x")))
	assert.Equal(t, Str("undefinedx"), Add(Undef(), Str("x")))
	assert.Equal(t, Str("truex"), Add(Bool(true), Str("x")))
}

func TestToNumber(t *testing.T) {
	assert.Equal(t, 3.5, ToNumber(Str(" 3.5 ")))
	assert.Equal(t, 0.0, ToNumber(Str("")))
	assert.True(t, math.IsNaN(ToNumber(Str("abc"))))
	assert.Equal(t, 1.0, ToNumber(Bool(true)))
	assert.Equal(t, 0.0, ToNumber(Nul()))
	assert.True(t, math.IsNaN(ToNumber(Undef())))
}

func TestToStringFormatting(t *testing.T) {
	assert.Equal(t, "3", ToString(Num(3)))
	assert.Equal(t, "3.14", ToString(Num(3.14)))
	assert.Equal(t, "NaN", ToString(Num(math.NaN())))
	assert.Equal(t, "Infinity", ToString(Num(math.Inf(1))))
	assert.Equal(t, "-Infinity", ToString(Num(math.Inf(-1))))
	assert.Equal(t, "12.56", ToString(Num(3.14*2*2)))
	assert.Equal(t, "1,2,3", ToString(Arr([]Value{Num(1), Num(2), Num(3)})))
	assert.Equal(t, "[object Object]", ToString(Obj(NewObject())))
}

func TestToInt32Wraparound(t *testing.T) {
	assert.Equal(t, int32(0), ToInt32(Num(math.NaN())))
	assert.Equal(t, int32(0), ToInt32(Num(math.Inf(1))))
	assert.Equal(t, int32(-1), ToInt32(Num(4294967295)))
	assert.Equal(t, int32(5), ToInt32(Str("5")))
	assert.Equal(t, uint32(4294967295), ToUint32(Num(4294967295)))
}

func TestObjectInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("b", Num(1))
	o.Set("a", Num(2))
	o.Set("c", Num(3))
	assert.Equal(t, []string{"b", "a", "c"}, o.Keys())

	// Re-setting an existing key keeps its original position.
	o.Set("a", Num(9))
	assert.Equal(t, []string{"b", "a", "c"}, o.Keys())

	o.Delete("a")
	assert.Equal(t, []string{"b", "c"}, o.Keys())
}

func TestDivisionByZeroYieldsInfinity(t *testing.T) {
	q := ToNumber(Num(1)) / ToNumber(Num(0))
	assert.True(t, math.IsInf(q, 1))
}
