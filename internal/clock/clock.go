// Package clock implements the one-shot countdown that bounds an exam attempt.
package clock

import (
	"sync"
	"time"
)

// DefaultTickInterval is how often remaining time is published.
const DefaultTickInterval = time.Second

// Tick carries the remaining time at the moment it was emitted.
type Tick struct {
	Remaining time.Duration
}

// Timer is the part of *time.Timer a countdown needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker is the part of *time.Ticker a countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Source supplies the current time and the timers a Clock runs on.
type Source interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

// System is the wall-clock Source.
var System Source = systemSource{}

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

func (systemSource) NewTimer(d time.Duration) Timer { return systemTimer{time.NewTimer(d)} }

func (systemSource) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

type systemTimer struct{ t *time.Timer }

func (t systemTimer) C() <-chan time.Time { return t.t.C }
func (t systemTimer) Stop() bool          { return t.t.Stop() }

type systemTicker struct{ t *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// Clock is a cancellable countdown handle. It emits ticks while running and
// closes Expired exactly once when the limit is reached. A zero limit yields a
// disabled clock whose channels never fire.
type Clock struct {
	limit    time.Duration
	deadline time.Time

	ticks   chan Tick
	expired chan struct{}
	stop    chan struct{}
	done    chan struct{}

	expireOnce sync.Once
	stopOnce   sync.Once
}

// Start begins a countdown of limit on the wall clock, ticking every interval.
func Start(limit, interval time.Duration) *Clock {
	return StartWith(System, limit, interval)
}

// StartWith begins a countdown driven by src. The timer and ticker are
// created before StartWith returns.
func StartWith(src Source, limit, interval time.Duration) *Clock {
	if limit <= 0 {
		return &Clock{}
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	c := &Clock{
		limit:    limit,
		deadline: src.Now().Add(limit),
		ticks:    make(chan Tick, 1),
		expired:  make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.run(src.NewTimer(limit), src.NewTicker(interval))
	return c
}

// Enabled reports whether the clock has a time limit.
func (c *Clock) Enabled() bool {
	return c != nil && c.limit > 0
}

// Limit returns the configured time limit.
func (c *Clock) Limit() time.Duration {
	if c == nil {
		return 0
	}
	return c.limit
}

// Deadline returns the moment the clock expires. Zero for a disabled clock.
func (c *Clock) Deadline() time.Time {
	if !c.Enabled() {
		return time.Time{}
	}
	return c.deadline
}

// Ticks delivers remaining time. A slow reader misses ticks, it never stalls the clock.
func (c *Clock) Ticks() <-chan Tick {
	if c == nil {
		return nil
	}
	return c.ticks
}

// Expired is closed once when the limit is reached.
func (c *Clock) Expired() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.expired
}

// Done is closed once the countdown goroutine has exited, after expiry or Stop.
func (c *Clock) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}

// Stop cancels the countdown. Safe to call more than once and after expiry.
func (c *Clock) Stop() {
	if !c.Enabled() {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Clock) run(timer Timer, ticker Ticker) {
	defer close(c.done)
	defer timer.Stop()
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return

		case <-timer.C():
			c.expire()
			return

		case now := <-ticker.C():
			remaining := c.deadline.Sub(now)
			if remaining <= 0 {
				c.expire()
				return
			}
			select {
			case c.ticks <- Tick{Remaining: remaining}:
			default:
			}
		}
	}
}

func (c *Clock) expire() {
	select {
	case <-c.stop:
		return
	default:
	}
	c.expireOnce.Do(func() { close(c.expired) })
}
