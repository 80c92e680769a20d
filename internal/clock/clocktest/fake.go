// Package clocktest provides a manually advanced clock.Source for tests.
package clocktest

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-live/internal/clock"
)

// Fake is a clock.Source whose time only moves on Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a Fake set to a fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer registers a timer that fires once Advance reaches d.
func (f *Fake) NewTimer(d time.Duration) clock.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fake: f, at: f.now.Add(d), c: make(chan time.Time, 1)}
	f.timers = append(f.timers, t)
	return t
}

// NewTicker registers a ticker that fires every d of advanced time.
func (f *Fake) NewTicker(d time.Duration) clock.Ticker {
	if d <= 0 {
		panic("clocktest: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{fake: f, every: d, next: f.now.Add(d), c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves time forward by d and fires every timer and ticker that
// became due. Like time.Ticker, a ticker with an unread value drops ticks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)

	for _, tk := range f.tickers {
		if tk.stopped {
			continue
		}
		var last time.Time
		for !tk.next.After(f.now) {
			last = tk.next
			tk.next = tk.next.Add(tk.every)
		}
		if !last.IsZero() {
			select {
			case tk.c <- last:
			default:
			}
		}
	}
	for _, t := range f.timers {
		if t.stopped || t.fired || t.at.After(f.now) {
			continue
		}
		t.fired = true
		t.c <- t.at
	}
}

// Expire advances time straight to the earliest pending timer.
func (f *Fake) Expire() {
	f.mu.Lock()
	var next time.Time
	for _, t := range f.timers {
		if t.stopped || t.fired {
			continue
		}
		if next.IsZero() || t.at.Before(next) {
			next = t.at
		}
	}
	now := f.now
	f.mu.Unlock()
	if next.IsZero() {
		return
	}
	f.Advance(next.Sub(now))
}

// Pending reports the number of timers that have neither fired nor stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	fake    *Fake
	at      time.Time
	c       chan time.Time
	fired   bool
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	active := !t.fired && !t.stopped
	t.stopped = true
	return active
}

type fakeTicker struct {
	fake    *Fake
	every   time.Duration
	next    time.Time
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.fake.mu.Lock()
	t.stopped = true
	t.fake.mu.Unlock()
}
