package robotstate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// --- Manual clock ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, running due callbacks in deadline order on the
// calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.fn()
	}
}

// Pending returns the original delays of timers that have not fired or been
// stopped, shortest first.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- Scripted fetcher ---

type fetchResult struct {
	state RobotState
	err   error
}

type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

func (f *scriptedFetcher) Fetch(ctx context.Context) (RobotState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return RobotState{}, networkError(errors.New("script exhausted"))
	}
	r := f.results[i]
	return r.state, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func failing(n int) []fetchResult {
	out := make([]fetchResult, n)
	for i := range out {
		out[i] = fetchResult{err: networkError(errors.New("connection refused"))}
	}
	return out
}

// --- Recording emitter ---

type emittedState struct {
	state  RobotState
	source Source
}

type recordingEmitter struct {
	mu       sync.Mutex
	states   []emittedState
	statuses []Status
}

func (e *recordingEmitter) EmitStateUpdated(state RobotState, source Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, emittedState{state, source})
}

func (e *recordingEmitter) EmitStatusChanged(status Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, status)
}

func (e *recordingEmitter) lastState() (emittedState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.states) == 0 {
		return emittedState{}, false
	}
	return e.states[len(e.states)-1], true
}

func (e *recordingEmitter) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states), len(e.statuses)
}
