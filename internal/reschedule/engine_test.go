package reschedule

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicflow/backend/internal/clock"
	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/service/appointments"
	"clinicflow/backend/internal/store/memory"
)

var bounds = Bounds{FirstHour: 7, LastHour: 20}

func TestPointerPositionToSnappedTime(t *testing.T) {
	d := domain.MustParseDate("2024-01-15")
	tests := []struct {
		name       string
		hour       int
		y, h       float64
		wantHour   int
		wantMinute int
	}{
		{name: "top of cell", hour: 9, y: 0, h: 60, wantHour: 9, wantMinute: 0},
		{name: "quarter", hour: 9, y: 15, h: 60, wantHour: 9, wantMinute: 15},
		{name: "rounds down", hour: 9, y: 22, h: 60, wantHour: 9, wantMinute: 15},
		{name: "rounds up", hour: 9, y: 23, h: 60, wantHour: 9, wantMinute: 30},
		{name: "scaled cell", hour: 9, y: 90, h: 120, wantHour: 9, wantMinute: 45},
		{name: "rolls into next hour", hour: 9, y: 55, h: 60, wantHour: 10, wantMinute: 0},
		{name: "below cell clamps", hour: 9, y: 500, h: 60, wantHour: 10, wantMinute: 0},
		{name: "above cell clamps", hour: 9, y: -40, h: 60, wantHour: 9, wantMinute: 0},
		{name: "last row rollover stays in bounds", hour: 20, y: 58, h: 60, wantHour: 20, wantMinute: 0},
		{name: "hour before bounds", hour: 5, y: 30, h: 60, wantHour: 7, wantMinute: 0},
		{name: "zero height", hour: 11, y: 30, h: 0, wantHour: 11, wantMinute: 0},
		{name: "nan position", hour: 11, y: math.NaN(), h: 60, wantHour: 11, wantMinute: 0},
		{name: "nan height", hour: 11, y: 30, h: math.NaN(), wantHour: 11, wantMinute: 0},
		{name: "infinite position", hour: 11, y: math.Inf(1), h: 60, wantHour: 12, wantMinute: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointerPositionToSnappedTime(Target{Date: d, Hour: tt.hour, RelativeY: tt.y, CellHeight: tt.h}, bounds)
			assert.Equal(t, d, got.Date)
			assert.Equal(t, tt.wantHour, got.Hour)
			assert.Equal(t, tt.wantMinute, got.Minute)
			assert.Zero(t, got.Minute%SnapMinutes)
		})
	}
}

type fixture struct {
	engine *Engine
	svc    *appointments.Service
	appts  *memory.AppointmentStore
	blocks *memory.BlockedSlotStore
}

// newFixture anchors now at 2024-01-02 00:00 in Sao Paulo.
func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureAt(t, time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC))
}

func newFixtureAt(t *testing.T, now time.Time) fixture {
	t.Helper()
	clk, err := clock.Fixed("America/Sao_Paulo", now)
	require.NoError(t, err)
	appts := memory.NewAppointmentStore()
	blocks := memory.NewBlockedSlotStore()
	svc := appointments.NewService(appts, blocks, clk)
	return fixture{engine: New(svc, clk, bounds), svc: svc, appts: appts, blocks: blocks}
}

func (f fixture) book(t *testing.T, professional, date, hhmm string, duration int) domain.Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), appointments.CreateInput{
		PatientName:  "Ana",
		Professional: professional,
		Date:         domain.MustParseDate(date),
		Time:         hhmm,
		Duration:     duration,
	})
	require.NoError(t, err)
	return a
}

func target(date string, hour int, y float64) Target {
	return Target{Date: domain.MustParseDate(date), Hour: hour, RelativeY: y, CellHeight: 60}
}

func TestDrop_PastDateRejectedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.engine.Drop(ctx, target("2024-01-01", 9, 0))
	var pastErr *appointments.PastTimeError
	require.ErrorAs(t, err, &pastErr)
	assert.Equal(t, "2024-01-01", pastErr.Date.String())
	assert.Equal(t, Idle, f.engine.State())

	stored, err := f.appts.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)
}

func TestDrop_MovesAndPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	f.book(t, "Dr. X", "2024-01-04", "09:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)

	moved, err := f.engine.Drop(ctx, target("2024-01-04", 9, 30))
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.Equal(t, a.Duration, moved.Duration)
	assert.Equal(t, a.Professional, moved.Professional)
	assert.Equal(t, "2024-01-04", moved.Date.String())
	assert.Equal(t, "09:30", moved.Time)
	assert.Equal(t, Idle, f.engine.State())

	_, ok := f.engine.Active()
	assert.False(t, ok)
}

func TestDrop_ConflictRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	other := f.book(t, "Dr. X", "2024-01-04", "09:00", 60)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.engine.Drop(ctx, target("2024-01-04", 9, 15))
	var conflictErr *appointments.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.NotNil(t, conflictErr.Conflict.Appointment)
	assert.Equal(t, other.ID, conflictErr.Conflict.Appointment.ID)

	stored, err := f.appts.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", stored.Date.String())
	assert.Equal(t, "10:00", stored.Time)
}

func TestDrop_ClinicBlockRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	_, err := f.blocks.AddBlockedSlot(ctx, domain.BlockedSlot{
		When:     domain.Recurring{Weekday: time.Thursday},
		Time:     "12:00",
		Duration: 60,
		Reason:   domain.ClinicLunchReason,
	})
	require.NoError(t, err)

	_, err = f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.Drop(ctx, target("2024-01-04", 11, 45))

	var conflictErr *appointments.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, appointments.ConflictBlockedSlot, conflictErr.Conflict.Kind())
}

func TestHover_PreviewsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	f.book(t, "Dr. X", "2024-01-04", "09:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, Dragging, f.engine.State())

	p, err := f.engine.Hover(ctx, target("2024-01-04", 9, 10))
	require.NoError(t, err)
	assert.Equal(t, "09:15", p.Slot.Time())
	assert.NotNil(t, p.Conflict)
	assert.False(t, p.Allowed())
	assert.Equal(t, Previewing, f.engine.State())

	p, err = f.engine.Hover(ctx, target("2024-01-01", 9, 0))
	require.NoError(t, err)
	assert.True(t, p.Past)

	p, err = f.engine.Hover(ctx, target("2024-01-04", 9, 30))
	require.NoError(t, err)
	assert.True(t, p.Allowed())

	last, ok := f.engine.LastPreview()
	require.True(t, ok)
	assert.Equal(t, p, last)

	f.engine.Cancel()
	assert.Equal(t, Idle, f.engine.State())

	stored, err := f.appts.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)
}

func TestBeginDrag_SingleActiveDrag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	b := f.book(t, "Dr. X", "2024-01-03", "11:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.BeginDrag(ctx, b.ID)
	assert.ErrorIs(t, err, ErrDragInProgress)

	active, ok := f.engine.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)

	f.engine.Cancel()
	_, err = f.engine.Drop(ctx, target("2024-01-04", 9, 0))
	assert.ErrorIs(t, err, ErrNoDrag)
	_, err = f.engine.Hover(ctx, target("2024-01-04", 9, 0))
	assert.ErrorIs(t, err, ErrNoDrag)
}

func TestBeginDrag_RejectsCancelledAndUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
	_, err := f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.engine.BeginDrag(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotDraggable)
	assert.Equal(t, Idle, f.engine.State())

	var nfErr *appointments.NotFoundError
	_, err = f.engine.BeginDrag(ctx, uuid.New())
	assert.True(t, errors.As(err, &nfErr), "err = %v", err)
}

func TestDrop_EarlierTimeTodayRejected(t *testing.T) {
	ctx := context.Background()
	// 10:00 in Sao Paulo on 2024-01-02.
	f := newFixtureAt(t, time.Date(2024, 1, 2, 13, 0, 0, 0, time.UTC))
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.Drop(ctx, target("2024-01-02", 9, 45))
	var pastErr *appointments.PastTimeError
	require.ErrorAs(t, err, &pastErr)
	assert.Equal(t, "2024-01-02", pastErr.Date.String())
	assert.Equal(t, "09:45", pastErr.Time)

	stored, err := f.appts.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, stored)

	_, err = f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	moved, err := f.engine.Drop(ctx, target("2024-01-02", 10, 15))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", moved.Date.String())
	assert.Equal(t, "10:15", moved.Time)
}

func TestDrop_UsesDropPositionNotLastPreview(t *testing.T) {
	tests := []struct {
		name         string
		hoverY       float64
		hoverAllowed bool
		dropY        float64
		wantTime     string
		wantError    bool
	}{
		{name: "blocked hover, free drop", hoverY: 15, hoverAllowed: false, dropY: 30, wantTime: "09:30"},
		{name: "free hover, blocked drop", hoverY: 30, hoverAllowed: true, dropY: 15, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)
			f.book(t, "Dr. X", "2024-01-04", "09:00", 30)

			_, err := f.engine.BeginDrag(ctx, a.ID)
			require.NoError(t, err)
			p, err := f.engine.Hover(ctx, target("2024-01-04", 9, tt.hoverY))
			require.NoError(t, err)
			assert.Equal(t, tt.hoverAllowed, p.Allowed())

			moved, err := f.engine.Drop(ctx, target("2024-01-04", 9, tt.dropY))
			if tt.wantError {
				var conflictErr *appointments.ConflictError
				require.ErrorAs(t, err, &conflictErr)
				stored, err := f.appts.GetAppointment(ctx, a.ID)
				require.NoError(t, err)
				assert.Equal(t, a, stored)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTime, moved.Time)
			assert.Equal(t, "2024-01-04", moved.Date.String())
		})
	}
}

func TestDrop_TargetWithoutDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.book(t, "Dr. X", "2024-01-03", "10:00", 30)

	_, err := f.engine.BeginDrag(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.engine.Drop(ctx, Target{Hour: 9, CellHeight: 60})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, Idle, f.engine.State())
}
