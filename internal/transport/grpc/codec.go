package grpc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicflow/backend/internal/calendar"
	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/reschedule"
	"clinicflow/backend/internal/service/appointments"
	"clinicflow/backend/internal/service/blockedslots"
	"clinicflow/backend/internal/store"
)

// fieldError is a malformed request field.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + " " + e.reason }

func stringField(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func intField(req *structpb.Struct, name string) (int, bool, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false, &fieldError{field: name, reason: "must be a number"}
	}
	f := v.GetNumberValue()
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false, &fieldError{field: name, reason: "must be an integer"}
	}
	return int(f), true, nil
}

func floatField(req *structpb.Struct, name string) (float64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, &fieldError{field: name, reason: "must be a number"}
	}
	n := v.GetNumberValue()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &fieldError{field: name, reason: "must be a finite number"}
	}
	return n, nil
}

func dateField(req *structpb.Struct, name string, required bool) (domain.Date, error) {
	s := stringField(req, name)
	if s == "" {
		if required {
			return domain.Date{}, &fieldError{field: name, reason: "is required"}
		}
		return domain.Date{}, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}, &fieldError{field: name, reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

func idField(req *structpb.Struct, name string, required bool) (uuid.UUID, error) {
	s := stringField(req, name)
	if s == "" {
		if required {
			return uuid.Nil, &fieldError{field: name, reason: "is required"}
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &fieldError{field: name, reason: "must be a UUID"}
	}
	return id, nil
}

func targetFrom(req *structpb.Struct) (uuid.UUID, reschedule.Target, error) {
	id, err := idField(req, "appointment_id", true)
	if err != nil {
		return uuid.Nil, reschedule.Target{}, err
	}
	date, err := dateField(req, "date", true)
	if err != nil {
		return uuid.Nil, reschedule.Target{}, err
	}
	hour, ok, err := intField(req, "hour")
	if err != nil {
		return uuid.Nil, reschedule.Target{}, err
	}
	if !ok {
		return uuid.Nil, reschedule.Target{}, &fieldError{field: "hour", reason: "is required"}
	}
	y, err := floatField(req, "relative_y")
	if err != nil {
		return uuid.Nil, reschedule.Target{}, err
	}
	h, err := floatField(req, "cell_height")
	if err != nil {
		return uuid.Nil, reschedule.Target{}, err
	}
	return id, reschedule.Target{Date: date, Hour: hour, RelativeY: y, CellHeight: h}, nil
}

// patchFrom reads an UpdateAppointment request. Absent fields stay unchanged.
func patchFrom(req *structpb.Struct) (uuid.UUID, store.AppointmentPatch, error) {
	var p store.AppointmentPatch
	id, err := idField(req, "appointment_id", true)
	if err != nil {
		return uuid.Nil, p, err
	}
	fields := req.GetFields()
	optional := func(name string) *string {
		if _, ok := fields[name]; !ok {
			return nil
		}
		v := stringField(req, name)
		return &v
	}

	p.PatientName = optional("patient_name")
	p.Professional = optional("professional")
	p.Time = optional("time")
	p.Notes = optional("notes")
	if t := optional("type"); t != nil {
		typ := domain.AppointmentType(*t)
		p.Type = &typ
	}
	if m := optional("modality"); m != nil {
		mod := domain.Modality(*m)
		p.Modality = &mod
	}
	if _, ok := fields["date"]; ok {
		d, err := dateField(req, "date", true)
		if err != nil {
			return uuid.Nil, p, err
		}
		p.Date = &d
	}
	duration, ok, err := intField(req, "duration")
	if err != nil {
		return uuid.Nil, p, err
	}
	if ok {
		p.Duration = &duration
	}
	return id, p, nil
}

func blockInputFrom(req *structpb.Struct) (appointments.BlockInput, error) {
	in := appointments.BlockInput{
		Time:         stringField(req, "time"),
		Reason:       stringField(req, "reason"),
		Professional: stringField(req, "professional"),
	}
	date, err := dateField(req, "date", false)
	if err != nil {
		return in, err
	}
	in.Date = date
	if name := stringField(req, "weekday"); name != "" {
		wd, ok := parseWeekday(name)
		if !ok {
			return in, &fieldError{field: "weekday", reason: "must be a weekday name"}
		}
		in.Weekday = &wd
	}
	duration, _, err := intField(req, "duration")
	if err != nil {
		return in, err
	}
	in.Duration = duration
	return in, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(name, wd.String()) {
			return wd, true
		}
	}
	return 0, false
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return s, nil
}

func appointmentDoc(a domain.Appointment) map[string]any {
	return map[string]any{
		"id":           a.ID.String(),
		"patient_name": a.PatientName,
		"professional": a.Professional,
		"date":         a.Date.String(),
		"time":         a.Time,
		"duration":     a.Duration,
		"type":         string(a.Type),
		"modality":     string(a.Modality),
		"status":       string(a.Status),
		"notes":        a.Notes,
		"created_at":   a.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func blockedSlotDoc(b domain.BlockedSlot) map[string]any {
	doc := map[string]any{
		"id":           b.ID.String(),
		"time":         b.Time,
		"duration":     b.Duration,
		"reason":       b.Reason,
		"professional": b.Professional,
		"created_at":   b.CreatedAt.UTC().Format(time.RFC3339),
	}
	switch k := b.When.(type) {
	case domain.Dated:
		doc["date"] = k.Date.String()
	case domain.Recurring:
		doc["weekday"] = strings.ToLower(k.Weekday.String())
	}
	return doc
}

func conflictDoc(c appointments.Conflict) map[string]any {
	doc := map[string]any{
		"kind":        c.Kind(),
		"description": c.String(),
	}
	if c.Appointment != nil {
		doc["appointment_id"] = c.Appointment.ID.String()
	}
	if c.Block != nil {
		doc["blocked_slot_id"] = c.Block.ID.String()
	}
	return doc
}

func previewDoc(p reschedule.Preview) map[string]any {
	doc := map[string]any{
		"date":    p.Slot.Date.String(),
		"time":    p.Slot.Time(),
		"past":    p.Past,
		"allowed": p.Allowed(),
	}
	if p.Conflict != nil {
		doc["conflict"] = conflictDoc(*p.Conflict)
	}
	return doc
}

func entryLabel(e calendar.Entry) string {
	if e.Block != nil {
		return e.Block.Reason
	}
	return e.Appointment.PatientName
}

func projectionDoc(p calendar.Projection) map[string]any {
	days := make([]any, len(p.Days))
	for i, d := range p.Days {
		days[i] = d.String()
	}
	hours := make([]any, len(p.Hours))
	for i, h := range p.Hours {
		hours[i] = h
	}

	var cells []any
	for _, row := range p.Cells {
		for _, c := range row {
			if len(c.Entries) == 0 {
				continue
			}
			entries := make([]any, len(c.Entries))
			for i, e := range c.Entries {
				entries[i] = map[string]any{
					"kind":       string(e.Kind),
					"id":         e.ID().String(),
					"label":      entryLabel(e),
					"offset_pct": e.OffsetPct,
					"height_pct": e.HeightPct,
					"column":     e.Column,
					"columns":    e.Columns,
					"left_pct":   e.LeftPct,
					"width_pct":  e.WidthPct,
				}
			}
			cells = append(cells, map[string]any{
				"date":    c.Date.String(),
				"hour":    c.Hour,
				"entries": entries,
			})
		}
	}

	placements := make([]any, len(p.Placements))
	for i, pl := range p.Placements {
		placements[i] = map[string]any{
			"kind":       string(pl.Kind),
			"id":         pl.ID.String(),
			"date":       pl.Date.String(),
			"hour":       pl.Hour,
			"rows":       pl.Rows,
			"offset_pct": pl.OffsetPct,
			"height_pct": pl.HeightPct,
			"height_px":  pl.HeightPx,
		}
	}

	doc := map[string]any{
		"view":         string(p.Query.Mode),
		"anchor":       p.Query.Anchor.String(),
		"professional": p.Query.Professional,
		"days":         days,
		"hours":        hours,
		"cells":        cells,
		"placements":   placements,
	}
	if p.Now != nil {
		doc["now"] = map[string]any{
			"date":     p.Now.Date.String(),
			"hour":     p.Now.Hour,
			"fraction": p.Now.Fraction,
		}
	}
	if p.Month != nil {
		weeks := make([]any, len(p.Month))
		for w, week := range p.Month {
			row := make([]any, len(week))
			for i, d := range week {
				colors := make([]any, len(d.Colors))
				for j, c := range d.Colors {
					colors[j] = c
				}
				row[i] = map[string]any{
					"date":     d.Date.String(),
					"in_month": d.InMonth,
					"today":    d.Today,
					"count":    d.Count,
					"colors":   colors,
					"blocked":  d.Blocked,
				}
			}
			weeks[w] = row
		}
		doc["month"] = weeks
	}
	return doc
}

func syncReportDoc(r blockedslots.Report) map[string]any {
	scopes := make([]any, len(r.Scopes))
	for i, s := range r.Scopes {
		scopes[i] = map[string]any{
			"scope":   s.Scope,
			"added":   s.Added,
			"removed": s.Removed,
			"kept":    s.Kept,
		}
	}
	added, removed := r.Totals()
	return map[string]any{
		"scopes":  scopes,
		"added":   added,
		"removed": removed,
	}
}
