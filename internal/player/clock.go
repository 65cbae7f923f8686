package player

import (
	"sync/atomic"
	"time"
)

// Clock is the player's monotonic time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the process monotonic clock.
var SystemClock Clock = systemClock{}

// MockClock only moves when advanced. It is safe for concurrent use.
type MockClock struct {
	base    time.Time
	elapsed atomic.Int64
}

func NewMockClock() *MockClock {
	return &MockClock{base: time.Unix(0, 0)}
}

func (c *MockClock) Now() time.Time {
	return c.base.Add(time.Duration(c.elapsed.Load()))
}

func (c *MockClock) Advance(d time.Duration) {
	c.elapsed.Add(int64(d))
}
