package domain

import (
	"fmt"
	"time"
)

// LunchWindow is an optional break inside a working day.
type LunchWindow struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Start   string `json:"start" mapstructure:"start"`
	End     string `json:"end" mapstructure:"end"`
}

// DaySchedule is the working configuration for one weekday.
type DaySchedule struct {
	Enabled bool        `json:"enabled" mapstructure:"enabled"`
	Start   string      `json:"start" mapstructure:"start"`
	End     string      `json:"end" mapstructure:"end"`
	Lunch   LunchWindow `json:"lunch" mapstructure:"lunch"`
}

// LunchInterval returns the lunch range when the day is enabled, the lunch is
// enabled and it parses with start before end.
func (d DaySchedule) LunchInterval() (Interval, bool) {
	if !d.Enabled || !d.Lunch.Enabled {
		return Interval{}, false
	}
	start, err := ParseClock(d.Lunch.Start)
	if err != nil {
		return Interval{}, false
	}
	end, err := ParseClock(d.Lunch.End)
	if err != nil || end <= start {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

type WeeklySchedule struct {
	Sunday    DaySchedule `json:"sunday" mapstructure:"sunday"`
	Monday    DaySchedule `json:"monday" mapstructure:"monday"`
	Tuesday   DaySchedule `json:"tuesday" mapstructure:"tuesday"`
	Wednesday DaySchedule `json:"wednesday" mapstructure:"wednesday"`
	Thursday  DaySchedule `json:"thursday" mapstructure:"thursday"`
	Friday    DaySchedule `json:"friday" mapstructure:"friday"`
	Saturday  DaySchedule `json:"saturday" mapstructure:"saturday"`
}

func (w WeeklySchedule) Day(wd time.Weekday) DaySchedule {
	switch wd {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return DaySchedule{}
	}
}

// Validate checks the clock fields of every enabled day and lunch.
func (w WeeklySchedule) Validate() error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d := w.Day(wd)
		if !d.Enabled {
			continue
		}
		if err := validRange(d.Start, d.End); err != nil {
			return fmt.Errorf("%s: %w", wd, err)
		}
		if d.Lunch.Enabled {
			if err := validRange(d.Lunch.Start, d.Lunch.End); err != nil {
				return fmt.Errorf("%s lunch: %w", wd, err)
			}
		}
	}
	return nil
}

func validRange(start, end string) error {
	s, err := ParseClock(start)
	if err != nil {
		return err
	}
	e, err := ParseClock(end)
	if err != nil {
		return err
	}
	if e <= s {
		return fmt.Errorf("end %s must be after start %s", end, start)
	}
	return nil
}

func (w *WeeklySchedule) SetDay(wd time.Weekday, d DaySchedule) {
	switch wd {
	case time.Sunday:
		w.Sunday = d
	case time.Monday:
		w.Monday = d
	case time.Tuesday:
		w.Tuesday = d
	case time.Wednesday:
		w.Wednesday = d
	case time.Thursday:
		w.Thursday = d
	case time.Friday:
		w.Friday = d
	case time.Saturday:
		w.Saturday = d
	}
}

type ProfessionalSchedule struct {
	Name string         `json:"name" mapstructure:"name"`
	Week WeeklySchedule `json:"week" mapstructure:"week"`
}

// DefaultClinicSchedule is Monday to Friday 08:00-18:00 with lunch 12:00-13:00.
func DefaultClinicSchedule() WeeklySchedule {
	var w WeeklySchedule
	for wd := time.Monday; wd <= time.Friday; wd++ {
		w.SetDay(wd, DaySchedule{
			Enabled: true,
			Start:   "08:00",
			End:     "18:00",
			Lunch:   LunchWindow{Enabled: true, Start: "12:00", End: "13:00"},
		})
	}
	return w
}
