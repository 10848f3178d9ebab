// Package clock provides the single time source for scheduling math.
package clock

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the only way core components read the wall clock or arm timers.
// It pins every instant to one configured zone so cron evaluation, interval
// arithmetic and window expiry all agree, and it is backed by a
// clockwork.Clock so tests can substitute a fake and drive time forward
// deterministically.
type Clock struct {
	inner clockwork.Clock
	loc   *time.Location
}

// New returns a real clock fixed to the named zone.
func New(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}

	return &Clock{inner: clockwork.NewRealClock(), loc: loc}, nil
}

// NewWith wraps an existing clockwork clock. Tests pass a
// clockwork.FakeClock here.
func NewWith(inner clockwork.Clock, loc *time.Location) *Clock {
	return &Clock{inner: inner, loc: loc}
}

// Now returns the current instant in the configured zone.
func (c *Clock) Now() time.Time {
	return c.inner.Now().In(c.loc)
}

// In rebinds an instant to the configured zone.
func (c *Clock) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// Location returns the configured zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Until returns the duration from now until t.
func (c *Clock) Until(t time.Time) time.Duration {
	return t.Sub(c.inner.Now())
}

// Sleep blocks for d on the underlying clock.
func (c *Clock) Sleep(d time.Duration) {
	c.inner.Sleep(d)
}

// AfterFunc arms a single-shot timer that calls f after d.
func (c *Clock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	return c.inner.AfterFunc(d, f)
}

// NewTicker returns a ticker on the underlying clock.
func (c *Clock) NewTicker(d time.Duration) clockwork.Ticker {
	return c.inner.NewTicker(d)
}
