package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced Clock for tests. Timers fire synchronously
// inside Advance, in due order.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	due time.Time
	ch  chan time.Time
}

// NewMock returns a Mock clock pinned to the given start time.
func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After returns a channel that fires when the mock time passes now+d.
// A non-positive duration fires immediately.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	due := m.now.Add(d)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, &waiter{due: due, ch: ch})
	return ch
}

// Sleep blocks until the mock time has advanced past now+d.
func (m *Mock) Sleep(d time.Duration) {
	<-m.After(d)
}

// Advance moves the mock time forward by d, firing expired waiters in due
// order. It yields briefly after each fire so goroutines woken by a timer
// get a chance to run before the next one fires.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *waiter
		idx := -1
		for i, w := range m.waiters {
			if !w.due.After(target) && (next == nil || w.due.Before(next.due)) {
				next = w
				idx = i
			}
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if next.due.After(m.now) {
			m.now = next.due
		}
		m.waiters = append(m.waiters[:idx], m.waiters[idx+1:]...)
		now := m.now
		m.mu.Unlock()

		next.ch <- now
		// Let the woken goroutine re-register its next timer.
		time.Sleep(time.Millisecond)
	}
}

// Set jumps the mock to an absolute time, firing waiters along the way.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	d := t.Sub(m.now)
	m.mu.Unlock()
	if d > 0 {
		m.Advance(d)
	}
}

// PendingWaiters reports how many timers are still registered.
func (m *Mock) PendingWaiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
