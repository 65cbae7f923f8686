package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	v := NewValue(1)

	var got []int
	sub := v.Observe(func(x int) { got = append(got, x) })

	assert.True(t, v.SetIfChanged(2))
	assert.False(t, v.SetIfChanged(2))
	v.Set(2)
	assert.Equal(t, []int{2, 2}, got)
	assert.Equal(t, 2, v.Get())

	sub.Close()
	sub.Close()
	v.Set(3)
	assert.Equal(t, []int{2, 2}, got)
	assert.Equal(t, 0, v.ObserverCount())
}

func TestValueFunc(t *testing.T) {
	type pair struct{ a []int }
	v := NewValueFunc(pair{}, func(x, y pair) bool { return len(x.a) == len(y.a) })

	calls := 0
	v.Observe(func(pair) { calls++ })
	v.SetIfChanged(pair{a: []int{1}})
	v.SetIfChanged(pair{a: []int{9}})
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeFromCallback(t *testing.T) {
	v := NewValue("a")

	calls := 0
	var sub *Subscription
	sub = v.Observe(func(string) {
		calls++
		sub.Close()
	})
	v.Set("b")
	v.Set("c")
	assert.Equal(t, 1, calls)
}

func TestList(t *testing.T) {
	l := NewList([]string{"a"})

	var got [][]string
	l.Observe(func(items []string) { got = append(got, items) })

	assert.False(t, l.SetIfChanged([]string{"a"}))
	assert.True(t, l.SetIfChanged([]string{"a", "b"}))
	l.Append("c")
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b", "c"}, got[1])
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "b", l.Item(1))

	items := l.Get()
	items[0] = "mutated"
	assert.Equal(t, "a", l.Item(0))

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestMap(t *testing.T) {
	m := NewMap(map[string]int{"a": 1})

	calls := 0
	m.Observe(func(map[string]int) { calls++ })

	assert.False(t, m.SetItem("a", 1))
	assert.True(t, m.SetItem("b", 2))
	assert.False(t, m.SetIfChanged(map[string]int{"a": 1, "b": 2}))
	assert.True(t, m.SetIfChanged(map[string]int{"a": 1}))
	assert.Equal(t, 2, calls)

	v, ok := m.Item("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
