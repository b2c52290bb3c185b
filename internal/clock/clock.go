// Package clock abstracts the time source so delays, quiet hours, and
// reminder cadence are deterministic under test.
package clock

import "time"

// Clock is the time source injected into the planner, scheduler, and
// dispatcher.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks for d.
	Sleep(d time.Duration)
}

// realClock delegates to the time package.
type realClock struct{}

// New returns a Clock backed by real time.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
