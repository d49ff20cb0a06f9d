package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BlockOccurrence is one concrete appearance of a blocked slot on a date.
type BlockOccurrence struct {
	SlotID       uuid.UUID
	Date         Date
	Interval     Interval
	Reason       string
	Professional string
}

// ExpandBlocks lists the occurrences of every block on the dates in [from, to],
// ordered by date, then start minute, then slot ID. Recurring blocks repeat
// weekly; dated blocks appear once when their date is in the window.
func ExpandBlocks(blocks []BlockedSlot, from, to Date) ([]BlockOccurrence, error) {
	if to.Before(from) {
		return nil, errors.New("invalid window: end before start")
	}
	days := from.DaysUntil(to) + 1

	out := make([]BlockOccurrence, 0, len(blocks))
	for _, b := range blocks {
		iv, err := b.Interval()
		if err != nil {
			return nil, err
		}
		switch k := b.When.(type) {
		case Dated:
			if k.Date.Before(from) || k.Date.After(to) {
				continue
			}
			out = append(out, occurrenceOf(b, k.Date, iv))
		case Recurring:
			first := from.AddDays(weekdayDistance(from.Weekday(), k.Weekday))
			for d := first; from.DaysUntil(d) < days; d = d.AddDays(7) {
				out = append(out, occurrenceOf(b, d, iv))
			}
		default:
			return nil, errors.New("blocked slot without weekday or date")
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].Interval.Start != out[j].Interval.Start {
			return out[i].Interval.Start < out[j].Interval.Start
		}
		return out[i].SlotID.String() < out[j].SlotID.String()
	})
	return out, nil
}

func occurrenceOf(b BlockedSlot, d Date, iv Interval) BlockOccurrence {
	return BlockOccurrence{
		SlotID:       b.ID,
		Date:         d,
		Interval:     iv,
		Reason:       b.Reason,
		Professional: b.Professional,
	}
}

// StartOfWeek returns the latest date on or before d that falls on weekStart.
func StartOfWeek(d Date, weekStart time.Weekday) Date {
	offset := weekdayDistance(weekStart, d.Weekday())
	return d.AddDays(-offset)
}

// WeekDates returns the seven dates of d's week.
func WeekDates(d Date, weekStart time.Weekday) []Date {
	start := StartOfWeek(d, weekStart)
	out := make([]Date, 7)
	for i := range out {
		out[i] = start.AddDays(i)
	}
	return out
}

// MonthGrid returns whole weeks covering d's month, padded with days of the
// neighbouring months so that every row starts on weekStart.
func MonthGrid(d Date, weekStart time.Weekday) [][]Date {
	first := NewDate(d.Year, d.Month, 1)
	last := NewDate(d.Year, d.Month+1, 1).AddDays(-1)

	var weeks [][]Date
	for w := StartOfWeek(first, weekStart); !w.After(last); w = w.AddDays(7) {
		row := make([]Date, 7)
		for i := range row {
			row[i] = w.AddDays(i)
		}
		weeks = append(weeks, row)
	}
	return weeks
}

// weekdayDistance is the number of days from weekday a forward to weekday b.
func weekdayDistance(a, b time.Weekday) int {
	return (int(b) - int(a) + 7) % 7
}
