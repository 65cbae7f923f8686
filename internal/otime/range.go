package otime

import "fmt"

// TimeRange is a half-open interval [Start, Start+Duration).
type TimeRange struct {
	Start    RationalTime `json:"start_time"`
	Duration RationalTime `json:"duration"`
}

// InvalidRange is the sentinel for an unset range.
var InvalidRange = TimeRange{Start: Invalid, Duration: Invalid}

// NewRange expresses duration at the rate of start. An invalid start keeps
// the duration as given.
func NewRange(start, duration RationalTime) TimeRange {
	if !start.IsValid() {
		return TimeRange{Start: start, Duration: duration}
	}
	return TimeRange{Start: start, Duration: duration.Rescale(start.Rate)}
}

// RangeFromFrames builds a range of count frames starting at frame start.
func RangeFromFrames(start, count int64, rate float64) TimeRange {
	return TimeRange{Start: FromFrame(start, rate), Duration: FromFrame(count, rate)}
}

// RangeFromStartEnd builds a range from an exclusive end.
func RangeFromStartEnd(start, end RationalTime) TimeRange {
	return TimeRange{Start: start, Duration: end.Sub(start).Rescale(start.Rate)}
}

// RangeFromStartEndInclusive builds a range whose last frame is end.
func RangeFromStartEndInclusive(start, end RationalTime) TimeRange {
	d := end.Rescale(start.Rate).Value - start.Value + 1
	return TimeRange{Start: start, Duration: RationalTime{Value: d, Rate: start.Rate}}
}

func (r TimeRange) IsValid() bool {
	return r.Start.IsValid() && r.Duration.Value >= 0
}

// Rate is the rate of the range start.
func (r TimeRange) Rate() float64 {
	return r.Start.Rate
}

// End is the first instant after the range.
func (r TimeRange) End() RationalTime {
	return r.Start.Add(r.Duration)
}

// EndInclusive is the start of the last frame in the range.
func (r TimeRange) EndInclusive() RationalTime {
	end := r.End()
	return RationalTime{Value: end.Value - 1, Rate: end.Rate}
}

func (r TimeRange) Rescale(rate float64) TimeRange {
	return TimeRange{Start: r.Start.Rescale(rate), Duration: r.Duration.Rescale(rate)}
}

func (r TimeRange) Contains(t RationalTime) bool {
	return !t.Before(r.Start) && t.Before(r.End())
}

func (r TimeRange) ContainsRange(o TimeRange) bool {
	return !o.Start.Before(r.Start) && !o.End().After(r.End())
}

func (r TimeRange) Intersects(o TimeRange) bool {
	return r.Start.Before(o.End()) && o.Start.Before(r.End())
}

// Intersection returns the overlap of two ranges, or false when they do not overlap.
func (r TimeRange) Intersection(o TimeRange) (TimeRange, bool) {
	if !r.Intersects(o) {
		return TimeRange{}, false
	}
	start := Max(r.Start, o.Start.Rescale(r.Rate()))
	end := Min(r.End(), o.End().Rescale(r.Rate()))
	return RangeFromStartEnd(start, end), true
}

// Extend returns the smallest range covering both r and o.
func (r TimeRange) Extend(o TimeRange) TimeRange {
	start := Min(r.Start, o.Start.Rescale(r.Rate()))
	end := Max(r.End(), o.End().Rescale(r.Rate()))
	return RangeFromStartEnd(start, end)
}

// Clamp limits t to [Start, End].
func (r TimeRange) Clamp(t RationalTime) RationalTime {
	t = t.Rescale(r.Rate())
	if t.Before(r.Start) {
		return r.Start
	}
	if end := r.End(); t.After(end) {
		return end
	}
	return t
}

// ClampRange limits o to lie within r.
func (r TimeRange) ClampRange(o TimeRange) TimeRange {
	start := r.Clamp(o.Start)
	end := r.Clamp(o.End())
	return RangeFromStartEnd(start, end)
}

func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.Duration.Equal(o.Duration)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s+%s", r.Start, r.Duration)
}
