package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareAndGet(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 10)
	v, ok, tdz := s.Get("x")
	assert.True(t, ok)
	assert.False(t, tdz)
	assert.Equal(t, 10, v)
}

func TestLookupWalksOutward(t *testing.T) {
	global := NewGlobal()
	require.NoError(t, global.Declare("x", KindVar, true))
	global.Initialize("x", 1)

	inner := global.NewChild().NewChild()
	v, ok, _ := inner.Get("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestShadowingInnerWins(t *testing.T) {
	global := NewGlobal()
	require.NoError(t, global.Declare("x", KindLet, true))
	global.Initialize("x", "outer")

	inner := global.NewChild()
	require.NoError(t, inner.Declare("x", KindLet, true))
	inner.Initialize("x", "inner")

	v, _, _ := inner.Get("x")
	assert.Equal(t, "inner", v)
	v, _, _ = global.Get("x")
	assert.Equal(t, "outer", v)
}

func TestAssignmentWritesToDeclaringFrame(t *testing.T) {
	global := NewGlobal()
	require.NoError(t, global.Declare("x", KindVar, true))
	global.Initialize("x", 1)

	inner := global.NewChild()
	ok, constViolation := inner.Set("x", 2)
	assert.True(t, ok)
	assert.False(t, constViolation)

	v, _, _ := global.Get("x")
	assert.Equal(t, 2, v)
}

func TestAssignToUndeclaredFails(t *testing.T) {
	s := NewGlobal()
	ok, _ := s.Set("nope", 1)
	assert.False(t, ok)
}

func TestConstViolation(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("c", KindConst, false))
	s.Initialize("c", 5)

	ok, constViolation := s.Set("c", 6)
	assert.False(t, ok)
	assert.True(t, constViolation)

	// Value unchanged after the rejected write.
	v, _, _ := s.Get("c")
	assert.Equal(t, 5, v)
}

func TestTemporalDeadZone(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("l", KindLet, false))
	_, ok, tdz := s.Get("l")
	assert.False(t, ok)
	assert.True(t, tdz)

	s.Initialize("l", 1)
	v, ok, tdz := s.Get("l")
	assert.True(t, ok)
	assert.False(t, tdz)
	assert.Equal(t, 1, v)
}

func TestRedeclaration(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("v", KindVar, true))
	assert.NoError(t, s.Declare("v", KindVar, true), "var redeclaration reuses the slot")

	require.NoError(t, s.Declare("l", KindLet, true))
	assert.Error(t, s.Declare("l", KindLet, true))
	assert.Error(t, s.Declare("l", KindConst, true))
}

func TestHoistIsIdempotent(t *testing.T) {
	s := NewGlobal()
	s.Hoist("f", KindFunction)
	s.Initialize("f", "fn")
	s.Hoist("f", KindFunction)
	v, _, _ := s.Get("f")
	assert.Equal(t, "fn", v)
}

func TestObserversFireInRegistrationOrder(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 0)

	var calls []string
	_, err := s.Observe("x", func(old, new any) {
		calls = append(calls, "first")
		assert.Equal(t, 0, old)
		assert.Equal(t, 5, new)
	})
	require.NoError(t, err)
	_, err = s.Observe("x", func(old, new any) {
		calls = append(calls, "second")
	})
	require.NoError(t, err)

	s.Set("x", 5)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestObserverFiresOnSameValueReassignment(t *testing.T) {
	// Assignment is the trigger, not value change (spec round-trip law).
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 7)

	count := 0
	_, err := s.Observe("x", func(old, new any) { count++ })
	require.NoError(t, err)

	s.Set("x", 7)
	s.Set("x", 7)
	assert.Equal(t, 2, count)
}

func TestObserveUnknownNameFails(t *testing.T) {
	s := NewGlobal()
	_, err := s.Observe("ghost", func(old, new any) {})
	assert.Error(t, err)
}

func TestObserverRegisteredDuringNotifyIsDeferred(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 0)

	lateCalls := 0
	_, err := s.Observe("x", func(old, new any) {
		if lateCalls == 0 {
			// Registering from inside the fan-out must not fire within the
			// current notification.
			_, _ = s.Observe("x", func(old, new any) { lateCalls++ })
		}
	})
	require.NoError(t, err)

	s.Set("x", 1)
	assert.Equal(t, 0, lateCalls)
	s.Set("x", 2)
	assert.Equal(t, 1, lateCalls)
}

func TestObserverReentrancyIsBounded(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 0)

	fires := 0
	_, err := s.Observe("x", func(old, new any) {
		fires++
		s.Set("x", new.(int)+1)
	})
	require.NoError(t, err)

	s.Set("x", 1)
	assert.Less(t, fires, 200, "recursive assignment fan-out must be capped")
	assert.Greater(t, fires, 0)
}

func TestUnsubscribe(t *testing.T) {
	s := NewGlobal()
	require.NoError(t, s.Declare("x", KindVar, true))
	s.Initialize("x", 0)

	count := 0
	unsub, err := s.Observe("x", func(old, new any) { count++ })
	require.NoError(t, err)

	s.Set("x", 1)
	unsub()
	s.Set("x", 2)
	assert.Equal(t, 1, count)
}
