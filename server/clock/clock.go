package clock

import "time"

// Timer is a scheduled callback that can be canceled.
type Timer interface {
	// Stop prevents the timer from firing. Returns false if the timer already fired or was stopped.
	Stop() bool
}

// Clock abstracts wall-clock time and timer scheduling so that timing behavior can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the production clock backed by the time package.
type Real struct{}

// New returns the real wall clock.
func New() Clock {
	return Real{}
}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f on its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
