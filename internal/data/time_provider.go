package data

import (
	"sync"
	"time"
)

// TimeProvider supplies the timestamps repositories write. Tests pin it.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock in UTC.
type RealTimeProvider struct{}

// Now returns the current time in UTC.
func (RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// FixedTimeProvider returns a pinned instant that tests move forward explicitly.
// It is safe for concurrent use.
type FixedTimeProvider struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedTimeProvider pins the clock at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{t: t}
}

// Now returns the pinned instant.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock by d and returns the new instant.
func (f *FixedTimeProvider) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
	return f.t
}
