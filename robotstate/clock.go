package robotstate

import "time"

// Clock schedules one-shot callbacks. The scheduler uses it for both the
// steady poll timer and backoff timers so tests can drive time by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realClock) Now() time.Time                            { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
