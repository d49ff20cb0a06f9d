package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const MinutesPerDay = 24 * 60

// ParseClock converts a wall-clock "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Interval is the half-open minute range [Start, End) within one day.
type Interval struct {
	Start int
	End   int
}

func NewInterval(clock string, duration int) (Interval, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return Interval{}, err
	}
	if duration <= 0 {
		return Interval{}, fmt.Errorf("invalid duration %d: must be positive", duration)
	}
	return Interval{Start: start, End: start + duration}, nil
}

func (i Interval) Duration() int {
	return i.End - i.Start
}

// Overlaps is false for intervals that only touch: 09:00-09:30 and 09:30-10:00 do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Intersection returns the overlapping minutes of i and o, zero when disjoint.
func (i Interval) Intersection(o Interval) int {
	lo := max(i.Start, o.Start)
	hi := min(i.End, o.End)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Hour returns the interval covering hour h.
func Hour(h int) Interval {
	return Interval{Start: h * 60, End: (h + 1) * 60}
}

func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}
