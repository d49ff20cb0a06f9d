package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
)

type Mode string

const (
	ModeDay   Mode = "day"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDay, ModeWeek, ModeMonth:
		return m, nil
	case "":
		return ModeWeek, nil
	default:
		return "", fmt.Errorf("unknown calendar view %q", s)
	}
}

// Options shape the grid. Rows run from FirstHour to LastHour inclusive.
type Options struct {
	FirstHour   int
	LastHour    int
	RowHeightPx float64
	WeekStart   time.Weekday
}

func DefaultOptions() Options {
	return Options{FirstHour: 7, LastHour: 20, RowHeightPx: 60, WeekStart: time.Sunday}
}

func (o Options) Validate() error {
	if o.FirstHour < 0 || o.LastHour > 23 || o.FirstHour > o.LastHour {
		return fmt.Errorf("invalid hour range %d..%d", o.FirstHour, o.LastHour)
	}
	if o.RowHeightPx <= 0 {
		return fmt.Errorf("row height must be positive")
	}
	if o.WeekStart < time.Sunday || o.WeekStart > time.Saturday {
		return fmt.Errorf("invalid week start %d", o.WeekStart)
	}
	return nil
}

func (o Options) Hours() []int {
	out := make([]int, 0, o.LastHour-o.FirstHour+1)
	for h := o.FirstHour; h <= o.LastHour; h++ {
		out = append(out, h)
	}
	return out
}

type Query struct {
	Mode         Mode
	Anchor       domain.Date
	Professional string
}

type EntryKind string

const (
	KindAppointment EntryKind = "appointment"
	KindBlockedSlot EntryKind = "blocked_slot"
)

// Entry is an entity's slice of one hour cell. Percentages are of the row
// height (offset, height) and of the column width (left, width).
type Entry struct {
	Kind        EntryKind
	Appointment *domain.Appointment
	Block       *domain.BlockOccurrence
	Interval    domain.Interval

	OffsetPct float64
	HeightPct float64
	Column    int
	Columns   int
	LeftPct   float64
	WidthPct  float64
}

func (e Entry) ID() uuid.UUID {
	if e.Block != nil {
		return e.Block.SlotID
	}
	return e.Appointment.ID
}

type Cell struct {
	Date    domain.Date
	Hour    int
	Entries []Entry
}

// Placement renders an entity once, anchored at the first visible row it
// touches. HeightPct is the sum of its per-row heights.
type Placement struct {
	Kind      EntryKind
	ID        uuid.UUID
	Date      domain.Date
	Hour      int
	Rows      int
	OffsetPct float64
	HeightPct float64
	HeightPx  float64
}

// NowMarker sits Fraction of the way down the row for Hour on Date.
type NowMarker struct {
	Date     domain.Date
	Hour     int
	Fraction float64
}

type DaySummary struct {
	Date    domain.Date
	InMonth bool
	Today   bool
	Count   int
	Colors  []string
	Blocked bool
}

const maxDayMarkers = 3

type Projection struct {
	Query Query
	Days  []domain.Date
	Hours []int
	// Cells is indexed [hour row][day column].
	Cells      [][]Cell
	Placements []Placement
	Now        *NowMarker
	Month      [][]DaySummary
}

// Cell returns the cell for date and hour, if both are in view.
func (p Projection) Cell(d domain.Date, hour int) (Cell, bool) {
	for r, h := range p.Hours {
		if h != hour {
			continue
		}
		for c, day := range p.Days {
			if day == d {
				return p.Cells[r][c], true
			}
		}
	}
	return Cell{}, false
}

// Window returns the inclusive date range a query needs data for.
func Window(q Query, weekStart time.Weekday) (from, to domain.Date) {
	switch q.Mode {
	case ModeDay:
		return q.Anchor, q.Anchor
	case ModeMonth:
		grid := domain.MonthGrid(q.Anchor, weekStart)
		last := grid[len(grid)-1]
		return grid[0][0], last[len(last)-1]
	default:
		days := domain.WeekDates(q.Anchor, weekStart)
		return days[0], days[len(days)-1]
	}
}

// Today is what a projection needs from the clock.
type Today struct {
	Date    domain.Date
	Minutes int
}

// Build lays out appointments and block occurrences for q. It is pure: the
// caller supplies everything already read from the stores.
func Build(appts []domain.Appointment, blocks []domain.BlockOccurrence, q Query, opts Options, now Today) (Projection, error) {
	if err := opts.Validate(); err != nil {
		return Projection{}, err
	}
	p := Projection{Query: q}

	appts = visibleAppointments(appts, q.Professional)
	blocks = visibleBlocks(blocks, q.Professional)

	if q.Mode == ModeMonth {
		p.Month = buildMonth(appts, blocks, q.Anchor, opts.WeekStart, now.Date)
		return p, nil
	}

	if q.Mode == ModeDay {
		p.Days = []domain.Date{q.Anchor}
	} else {
		p.Days = domain.WeekDates(q.Anchor, opts.WeekStart)
	}
	p.Hours = opts.Hours()

	entities := make(map[domain.Date][]Entry, len(p.Days))
	for i := range appts {
		a := &appts[i]
		iv, err := a.Interval()
		if err != nil {
			return Projection{}, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		entities[a.Date] = append(entities[a.Date], Entry{Kind: KindAppointment, Appointment: a, Interval: iv})
	}
	for i := range blocks {
		b := &blocks[i]
		entities[b.Date] = append(entities[b.Date], Entry{Kind: KindBlockedSlot, Block: b, Interval: b.Interval})
	}

	p.Cells = make([][]Cell, len(p.Hours))
	for r, h := range p.Hours {
		p.Cells[r] = make([]Cell, len(p.Days))
		for c, d := range p.Days {
			cell := Cell{Date: d, Hour: h}
			for _, e := range entities[d] {
				offset, height, ok := rowGeometry(e.Interval, h)
				if !ok {
					continue
				}
				e.OffsetPct, e.HeightPct = offset, height
				cell.Entries = append(cell.Entries, e)
			}
			pack(cell.Entries)
			p.Cells[r][c] = cell
		}
	}

	for _, d := range p.Days {
		for _, e := range entities[d] {
			if pl, ok := place(e, d, opts); ok {
				p.Placements = append(p.Placements, pl)
			}
		}
	}
	sortPlacements(p.Placements)

	for _, d := range p.Days {
		if d != now.Date {
			continue
		}
		hour := now.Minutes / 60
		if hour < opts.FirstHour || hour > opts.LastHour {
			break
		}
		p.Now = &NowMarker{Date: d, Hour: hour, Fraction: float64(now.Minutes-hour*60) / 60}
	}
	return p, nil
}

func visibleAppointments(appts []domain.Appointment, professional string) []domain.Appointment {
	if professional == "" || professional == domain.AllProfessionals {
		return appts
	}
	out := make([]domain.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Professional == professional {
			out = append(out, a)
		}
	}
	return out
}

func visibleBlocks(blocks []domain.BlockOccurrence, professional string) []domain.BlockOccurrence {
	out := make([]domain.BlockOccurrence, 0, len(blocks))
	for _, b := range blocks {
		slot := domain.BlockedSlot{Professional: b.Professional}
		if slot.AppliesTo(professional) {
			out = append(out, b)
		}
	}
	return out
}

// rowGeometry returns the offset and height, in percent of the row, of the
// part of iv inside the given hour.
func rowGeometry(iv domain.Interval, hour int) (offset, height float64, ok bool) {
	inside := iv.Intersection(domain.Hour(hour))
	if inside <= 0 {
		return 0, 0, false
	}
	start := max(iv.Start, hour*60)
	return float64(start-hour*60) / 60 * 100, float64(inside) / 60 * 100, true
}

// pack assigns side-by-side columns to entries sharing a cell.
func pack(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Interval, entries[j].Interval
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return entries[i].ID().String() < entries[j].ID().String()
	})

	// Entries arrive in start order, so the lowest free column never exceeds
	// the largest number of entries overlapping at one instant.
	columns := 1
	for i := range entries {
		taken := make(map[int]bool)
		for j := 0; j < i; j++ {
			if entries[j].Interval.Overlaps(entries[i].Interval) {
				taken[entries[j].Column] = true
			}
		}
		col := 0
		for taken[col] {
			col++
		}
		entries[i].Column = col
		columns = max(columns, col+1)
	}

	width := 100 / float64(columns)
	for i := range entries {
		entries[i].Columns = columns
		entries[i].WidthPct = width
		entries[i].LeftPct = float64(entries[i].Column) * width
	}
}

func place(e Entry, d domain.Date, opts Options) (Placement, bool) {
	pl := Placement{Kind: e.Kind, ID: e.ID(), Date: d, Hour: -1}
	for h := opts.FirstHour; h <= opts.LastHour; h++ {
		offset, height, ok := rowGeometry(e.Interval, h)
		if !ok {
			continue
		}
		if pl.Hour < 0 {
			pl.Hour = h
			pl.OffsetPct = offset
		}
		pl.Rows++
		pl.HeightPct += height
	}
	if pl.Hour < 0 {
		return Placement{}, false
	}
	pl.HeightPx = pl.HeightPct / 100 * opts.RowHeightPx
	return pl, true
}

func sortPlacements(pls []Placement) {
	sort.Slice(pls, func(i, j int) bool {
		if c := pls[i].Date.Compare(pls[j].Date); c != 0 {
			return c < 0
		}
		if pls[i].Hour != pls[j].Hour {
			return pls[i].Hour < pls[j].Hour
		}
		if pls[i].OffsetPct != pls[j].OffsetPct {
			return pls[i].OffsetPct < pls[j].OffsetPct
		}
		return pls[i].ID.String() < pls[j].ID.String()
	})
}

func buildMonth(appts []domain.Appointment, blocks []domain.BlockOccurrence, anchor domain.Date, weekStart time.Weekday, today domain.Date) [][]DaySummary {
	byDate := make(map[domain.Date][]domain.Appointment)
	for _, a := range appts {
		if a.Cancelled() {
			continue
		}
		byDate[a.Date] = append(byDate[a.Date], a)
	}
	blocked := make(map[domain.Date]bool)
	for _, b := range blocks {
		blocked[b.Date] = true
	}

	grid := domain.MonthGrid(anchor, weekStart)
	out := make([][]DaySummary, len(grid))
	for w, week := range grid {
		out[w] = make([]DaySummary, len(week))
		for i, d := range week {
			day := byDate[d]
			sort.Slice(day, func(i, j int) bool { return day[i].Time < day[j].Time })

			s := DaySummary{
				Date:    d,
				InMonth: d.Year == anchor.Year && d.Month == anchor.Month,
				Today:   d == today,
				Count:   len(day),
				Blocked: blocked[d],
			}
			for _, a := range day {
				if len(s.Colors) == maxDayMarkers {
					break
				}
				s.Colors = append(s.Colors, a.Type.Color())
			}
			out[w][i] = s
		}
	}
	return out
}
