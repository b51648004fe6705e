package taskkit

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the injectable source of monotonic and wall-clock time used
// throughout taskkit. Every time-driven component takes one through its
// constructor rather than reaching for a package-global clock, so tests
// can swap in a mock without touching process-wide state.
//
// Clock is satisfied by the production implementation returned by
// NewRealClock, and by github.com/benbjohnson/clock's *clock.Mock wrapped
// with WrapClock in tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
	NewTimer(d time.Duration) *clock.Timer
	NewTicker(d time.Duration) *clock.Ticker
	After(d time.Duration) <-chan time.Time
	WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc)
	WithDeadline(parent context.Context, t time.Time) (context.Context, context.CancelFunc)
}

// clockAdapter implements Clock over any github.com/benbjohnson/clock.Clock
// value, real or mock. It is the sole Clock implementation: production
// code constructs it over clock.New() (NewRealClock), tests construct it
// over clock.NewMock() (WrapClock).
type clockAdapter struct {
	c clock.Clock
}

// NewRealClock returns the production Clock implementation, backed by the
// real wall clock.
func NewRealClock() Clock {
	return &clockAdapter{c: clock.New()}
}

// WrapClock adapts an existing benbjohnson/clock.Clock (typically
// clock.NewMock() in tests) to the Clock interface.
func WrapClock(c clock.Clock) Clock {
	return &clockAdapter{c: c}
}

func (a *clockAdapter) Now() time.Time                 { return a.c.Now() }
func (a *clockAdapter) Since(t time.Time) time.Duration { return a.c.Since(t) }
func (a *clockAdapter) Sleep(d time.Duration)           { a.c.Sleep(d) }
func (a *clockAdapter) NewTimer(d time.Duration) *clock.Timer   { return a.c.Timer(d) }
func (a *clockAdapter) NewTicker(d time.Duration) *clock.Ticker { return a.c.Ticker(d) }
func (a *clockAdapter) After(d time.Duration) <-chan time.Time  { return a.c.After(d) }

func (a *clockAdapter) WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

func (a *clockAdapter) WithDeadline(parent context.Context, t time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, t)
}
