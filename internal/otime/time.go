package otime

import (
	"fmt"
	"math"
)

// frameEpsilon absorbs floating point error when snapping to frame boundaries.
const frameEpsilon = 1e-6

// Common frame rates
const (
	Rate23976 = 24000.0 / 1001.0
	Rate24    = 24.0
	Rate25    = 25.0
	Rate2997  = 30000.0 / 1001.0
	Rate30    = 30.0
	Rate50    = 50.0
	Rate5994  = 60000.0 / 1001.0
	Rate60    = 60.0
)

// RationalTime is a point in time expressed as a value at a rate, the same
// representation OpenTimelineIO documents use.
type RationalTime struct {
	Value float64 `json:"value"`
	Rate  float64 `json:"rate"`
}

// Invalid is the sentinel for an unset time.
var Invalid = RationalTime{Value: 0, Rate: -1}

func New(value, rate float64) RationalTime {
	return RationalTime{Value: value, Rate: rate}
}

func FromSeconds(seconds, rate float64) RationalTime {
	return RationalTime{Value: seconds * rate, Rate: rate}
}

func FromFrame(frame int64, rate float64) RationalTime {
	return RationalTime{Value: float64(frame), Rate: rate}
}

func (t RationalTime) IsValid() bool {
	return t.Rate > 0
}

func (t RationalTime) Seconds() float64 {
	if t.Rate <= 0 {
		return 0
	}
	return t.Value / t.Rate
}

// Rescale returns the same instant expressed at another rate.
func (t RationalTime) Rescale(rate float64) RationalTime {
	if t.Rate == rate || t.Rate <= 0 {
		return RationalTime{Value: t.Value, Rate: rate}
	}
	return RationalTime{Value: t.Value * rate / t.Rate, Rate: rate}
}

// Add returns t+o at t's rate.
func (t RationalTime) Add(o RationalTime) RationalTime {
	if !t.IsValid() {
		return o
	}
	return RationalTime{Value: t.Value + o.Rescale(t.Rate).Value, Rate: t.Rate}
}

// Sub returns t-o at t's rate.
func (t RationalTime) Sub(o RationalTime) RationalTime {
	if !t.IsValid() {
		return RationalTime{Value: -o.Value, Rate: o.Rate}
	}
	return RationalTime{Value: t.Value - o.Rescale(t.Rate).Value, Rate: t.Rate}
}

// Compare orders two times independent of their rates.
func (t RationalTime) Compare(o RationalTime) int {
	a := t.Value
	b := o.Rescale(t.Rate).Value
	switch {
	case math.Abs(a-b) < frameEpsilon:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

func (t RationalTime) Equal(o RationalTime) bool {
	return t.Compare(o) == 0
}

func (t RationalTime) Before(o RationalTime) bool {
	return t.Compare(o) < 0
}

func (t RationalTime) After(o RationalTime) bool {
	return t.Compare(o) > 0
}

// Floor snaps the value down to the frame that contains it.
func (t RationalTime) Floor() RationalTime {
	return RationalTime{Value: math.Floor(t.Value + frameEpsilon), Rate: t.Rate}
}

// Round snaps the value to the nearest frame boundary.
func (t RationalTime) Round() RationalTime {
	return RationalTime{Value: math.Round(t.Value), Rate: t.Rate}
}

// Frame returns the index of the frame containing t at the given rate.
func (t RationalTime) Frame(rate float64) int64 {
	return int64(math.Floor(t.Rescale(rate).Value + frameEpsilon))
}

func (t RationalTime) String() string {
	return fmt.Sprintf("%g/%g", t.Value, t.Rate)
}

// Quantize snaps t onto the frame grid of rate.
func Quantize(t RationalTime, rate float64) RationalTime {
	return t.Rescale(rate).Floor()
}

// Min returns the earlier of two times.
func Min(a, b RationalTime) RationalTime {
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of two times.
func Max(a, b RationalTime) RationalTime {
	if b.After(a) {
		return b
	}
	return a
}
