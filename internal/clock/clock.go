// Package clock answers "now" and "is this in the past" in the clinic's fixed
// time zone, independent of the host machine's local zone.
package clock

import (
	"fmt"
	"time"

	"clinicflow/backend/internal/domain"
)

// Source supplies the current instant. Tests substitute a fixed function.
type Source func() time.Time

type Clock struct {
	loc *time.Location
	now Source
}

// New returns a Clock for the IANA zone. A nil src uses time.Now.
func New(zone string, src Source) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic time zone %q: %w", zone, err)
	}
	if src == nil {
		src = time.Now
	}
	return &Clock{loc: loc, now: src}, nil
}

// Fixed returns a Clock frozen at t, for tests and tools.
func Fixed(zone string, t time.Time) (*Clock, error) {
	return New(zone, func() time.Time { return t })
}

func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the clinic zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

func (c *Clock) Today() domain.Date {
	return domain.DateOf(c.Now())
}

// MinutesNow is the current minute of the clinic day.
func (c *Clock) MinutesNow() int {
	n := c.Now()
	return n.Hour()*60 + n.Minute()
}

// IsPastDate reports whether d is strictly before today.
func (c *Clock) IsPastDate(d domain.Date) bool {
	return d.Before(c.Today())
}

// IsPastTime reports whether d is before today, or d is today and hhmm is
// strictly before the current minute.
func (c *Clock) IsPastTime(d domain.Date, hhmm string) (bool, error) {
	minutes, err := domain.ParseClock(hhmm)
	if err != nil {
		return false, err
	}
	n := c.Now()
	today := domain.DateOf(n)
	switch d.Compare(today) {
	case -1:
		return true, nil
	case 1:
		return false, nil
	}
	return minutes < n.Hour()*60+n.Minute(), nil
}
