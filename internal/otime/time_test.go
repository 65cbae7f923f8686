package otime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRationalTime(t *testing.T) {
	t.Run("rescale keeps the instant", func(t *testing.T) {
		a := New(48, 24)
		b := a.Rescale(48000)
		assert.Equal(t, 96000.0, b.Value)
		assert.True(t, a.Equal(b))
		assert.Equal(t, 2.0, b.Seconds())
	})

	t.Run("arithmetic uses the left rate", func(t *testing.T) {
		a := New(10, 24)
		b := FromSeconds(1, 48)
		assert.Equal(t, New(34, 24), a.Add(b))
		assert.Equal(t, New(-14, 24), a.Sub(b))
	})

	t.Run("invalid sentinel", func(t *testing.T) {
		assert.False(t, Invalid.IsValid())
		assert.True(t, New(0, 24).IsValid())
	})

	t.Run("floor absorbs float error", func(t *testing.T) {
		assert.Equal(t, int64(7), New(6.9999999999, 24).Frame(24))
		assert.Equal(t, int64(24), FromSeconds(1, 48000).Frame(24))
		assert.Equal(t, 3.0, New(2.9999999, 24).Floor().Value)
		assert.Equal(t, 2.0, New(2.99, 24).Floor().Value)
	})

	t.Run("quantize", func(t *testing.T) {
		assert.Equal(t, New(24, 24), Quantize(FromSeconds(1.01, 1000), 24))
		assert.Equal(t, New(23, 24), Quantize(New(23.9, 24), 24))
	})

	t.Run("compare across rates", func(t *testing.T) {
		assert.True(t, New(1, 24).Before(New(1, 12)))
		assert.True(t, New(2, 24).Equal(New(1, 12)))
		assert.Equal(t, New(1, 24), Min(New(1, 24), New(1, 12)))
		assert.Equal(t, New(1, 12), Max(New(1, 24), New(1, 12)))
	})
}

func TestTimeRange(t *testing.T) {
	r := RangeFromFrames(0, 120, 24)

	assert.Equal(t, New(120, 24), r.End())
	assert.Equal(t, New(119, 24), r.EndInclusive())
	assert.True(t, r.Contains(New(0, 24)))
	assert.True(t, r.Contains(New(119, 24)))
	assert.False(t, r.Contains(New(120, 24)))

	t.Run("intersection", func(t *testing.T) {
		o := RangeFromFrames(100, 40, 24)
		got, ok := r.Intersection(o)
		assert.True(t, ok)
		assert.Equal(t, RangeFromFrames(100, 20, 24), got)

		_, ok = r.Intersection(RangeFromFrames(120, 10, 24))
		assert.False(t, ok)
	})

	t.Run("extend", func(t *testing.T) {
		got := RangeFromFrames(10, 5, 24).Extend(RangeFromFrames(30, 5, 24))
		assert.Equal(t, RangeFromFrames(10, 25, 24), got)
	})

	t.Run("clamp", func(t *testing.T) {
		assert.Equal(t, New(0, 24), r.Clamp(New(-5, 24)))
		assert.Equal(t, New(120, 24), r.Clamp(New(500, 24)))
		assert.Equal(t, New(12, 24), r.Clamp(FromSeconds(0.5, 24)))
		assert.Equal(t, RangeFromFrames(0, 10, 24), r.ClampRange(RangeFromFrames(-10, 20, 24)))
	})

	t.Run("new range rescales to the start rate", func(t *testing.T) {
		got := NewRange(New(10, 24), New(96000, 48000))
		assert.Equal(t, New(48, 24), got.Duration)
	})

	t.Run("new range with an unset start keeps the duration", func(t *testing.T) {
		got := NewRange(Invalid, New(48, 24))
		assert.Equal(t, Invalid, got.Start)
		assert.Equal(t, New(48, 24), got.Duration)
		assert.Equal(t, int64(48), got.Duration.Frame(24))
	})

	t.Run("inclusive constructor", func(t *testing.T) {
		got := RangeFromStartEndInclusive(New(10, 24), New(19, 24))
		assert.Equal(t, 10.0, got.Duration.Value)
	})
}
