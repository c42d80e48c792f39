package clock

import (
	"sync"
	"time"
)

// Clock is the time source for the engine, state machine and report footer
type Clock interface {
	Now() time.Time
}

// Real reads the wall clock
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a settable clock for replays and tests
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed; callers that care
// about monotonic session time must not do it.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
