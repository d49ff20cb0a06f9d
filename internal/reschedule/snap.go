package reschedule

import (
	"math"

	"clinicflow/backend/internal/domain"
)

// SnapMinutes is the drop granularity.
const SnapMinutes = 15

// Bounds are the first and last hour rows a drop may land on.
type Bounds struct {
	FirstHour int
	LastHour  int
}

// Target is a pointer position inside the hour cell for Hour on Date.
// RelativeY is measured from the top of the cell.
type Target struct {
	Date       domain.Date
	Hour       int
	RelativeY  float64
	CellHeight float64
}

type Slot struct {
	Date   domain.Date
	Hour   int
	Minute int
}

// Time formats the slot as HH:MM.
func (s Slot) Time() string {
	return domain.FormatClock(s.Hour*60 + s.Minute)
}

func (s Slot) String() string {
	return s.Date.String() + " " + s.Time()
}

// PointerPositionToSnappedTime maps a pointer position to the nearest
// quarter hour, rolling 60 minutes into the next hour and keeping the hour
// inside b. A NaN position counts as the top of the cell.
func PointerPositionToSnappedTime(t Target, b Bounds) Slot {
	var frac float64
	if t.CellHeight > 0 {
		frac = t.RelativeY / t.CellHeight
	}
	if math.IsNaN(frac) {
		frac = 0
	}
	frac = math.Min(math.Max(frac, 0), 1)

	minutes := int(math.Round(frac * 60))
	minutes = int(math.Round(float64(minutes)/SnapMinutes)) * SnapMinutes

	hour := t.Hour
	if minutes >= 60 {
		hour++
		minutes = 0
	}
	switch {
	case hour < b.FirstHour:
		hour, minutes = b.FirstHour, 0
	case hour > b.LastHour:
		hour, minutes = b.LastHour, 0
	}
	return Slot{Date: t.Date, Hour: hour, Minute: minutes}
}
