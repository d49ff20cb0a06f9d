package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinicflow/backend/internal/clock"
	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
	"clinicflow/backend/internal/store/memory"
)

func fixedClock(t *testing.T) *clock.Clock {
	t.Helper()
	c, err := clock.Fixed("America/Sao_Paulo", time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("clock.Fixed error: %v", err)
	}
	return c
}

func newTestService(t *testing.T) (*Service, *memory.AppointmentStore, *memory.BlockedSlotStore) {
	t.Helper()
	appts := memory.NewAppointmentStore()
	blocks := memory.NewBlockedSlotStore()
	return NewService(appts, blocks, fixedClock(t)), appts, blocks
}

func mustCreate(t *testing.T, svc *Service, professional, date, hhmm string, duration int) domain.Appointment {
	t.Helper()
	a, err := svc.Create(context.Background(), CreateInput{
		PatientName:  "Ana",
		Professional: professional,
		Date:         domain.MustParseDate(date),
		Time:         hhmm,
		Duration:     duration,
	})
	if err != nil {
		t.Fatalf("Create(%s %s %s) error: %v", professional, date, hhmm, err)
	}
	return a
}

func TestServiceCreate_ValidationErrorType(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name string
		in   CreateInput
		want string
	}{
		{
			name: "missing patient",
			in:   CreateInput{Professional: "Dr. X", Date: domain.MustParseDate("2024-01-15"), Time: "09:00", Duration: 30},
			want: "patient_name is required",
		},
		{
			name: "non-positive duration",
			in:   CreateInput{PatientName: "Ana", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-15"), Time: "09:00"},
			want: "duration must be positive",
		},
		{
			name: "malformed time",
			in:   CreateInput{PatientName: "Ana", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-15"), Time: "25:00", Duration: 30},
			want: `invalid time "25:00": hour out of range`,
		},
		{
			name: "crosses midnight",
			in:   CreateInput{PatientName: "Ana", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-15"), Time: "23:30", Duration: 60},
			want: "appointment must end by midnight",
		},
		{
			name: "unknown type",
			in:   CreateInput{PatientName: "Ana", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-15"), Time: "09:00", Duration: 30, Type: "massage"},
			want: "invalid appointment type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestServiceCreate_NormalizesAndDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	a, err := svc.Create(context.Background(), CreateInput{
		PatientName:  "  Ana  ",
		Professional: "Dr. X",
		Date:         domain.MustParseDate("2024-01-15"),
		Time:         "9:05",
		Duration:     30,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.PatientName != "Ana" || a.Time != "09:05" {
		t.Fatalf("got patient=%q time=%q, want Ana 09:05", a.PatientName, a.Time)
	}
	if a.Type != domain.TypeConsultation || a.Modality != domain.ModalityInPerson || a.Status != domain.StatusPending {
		t.Fatalf("defaults = %s/%s/%s", a.Type, a.Modality, a.Status)
	}
}

func TestCheckTimeConflict_OverlapAndAdjacency(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)
	ctx := context.Background()
	day := domain.MustParseDate("2024-01-15")

	tests := []struct {
		name         string
		hhmm         string
		professional string
		want         bool
	}{
		{name: "overlap", hhmm: "09:15", professional: "Dr. X", want: true},
		{name: "adjacent after", hhmm: "09:30", professional: "Dr. X", want: false},
		{name: "adjacent before", hhmm: "08:30", professional: "Dr. X", want: false},
		{name: "other professional", hhmm: "09:15", professional: "Dr. Y", want: false},
		{name: "any professional", hhmm: "09:15", professional: "", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckTimeConflict(ctx, ConflictQuery{Date: day, Time: tt.hhmm, Duration: 30, Professional: tt.professional})
			if err != nil {
				t.Fatalf("CheckTimeConflict error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("CheckTimeConflict(%s) = %v, want %v", tt.hhmm, got, tt.want)
			}
		})
	}
}

func TestCheckTimeConflict_IgnoresCancelledAndExcluded(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)
	q := ConflictQuery{Date: a.Date, Time: "09:00", Duration: 30, Professional: "Dr. X"}

	got, err := svc.CheckTimeConflict(ctx, ConflictQuery{Date: q.Date, Time: q.Time, Duration: q.Duration, Professional: q.Professional, ExcludeID: a.ID})
	if err != nil || got {
		t.Fatalf("excluded self: conflict=%v err=%v, want false", got, err)
	}

	if _, err := svc.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	got, err = svc.CheckTimeConflict(ctx, q)
	if err != nil || got {
		t.Fatalf("cancelled: conflict=%v err=%v, want false", got, err)
	}
}

func TestCheckTimeConflict_BlockedSlotScoping(t *testing.T) {
	svc, _, blocks := newTestService(t)
	ctx := context.Background()
	monday := domain.MustParseDate("2024-01-15")

	for _, b := range []domain.BlockedSlot{
		{When: domain.Recurring{Weekday: time.Monday}, Time: "12:00", Duration: 60, Reason: domain.ClinicLunchReason},
		{When: domain.Dated{Date: monday}, Time: "15:00", Duration: 60, Reason: "Course", Professional: "Dr. Y"},
	} {
		if _, err := blocks.AddBlockedSlot(ctx, b); err != nil {
			t.Fatalf("AddBlockedSlot error: %v", err)
		}
	}

	tests := []struct {
		name         string
		date         domain.Date
		hhmm         string
		professional string
		want         bool
		kind         string
	}{
		{name: "clinic lunch blocks everyone", date: monday, hhmm: "12:30", professional: "Dr. X", want: true, kind: ConflictBlockedSlot},
		{name: "clinic lunch blocks unscoped", date: monday, hhmm: "11:45", professional: "", want: true, kind: ConflictBlockedSlot},
		{name: "lunch ends at 13:00", date: monday, hhmm: "13:00", professional: "Dr. X", want: false},
		{name: "recurring only on mondays", date: monday.AddDays(1), hhmm: "12:30", professional: "Dr. X", want: false},
		{name: "professional block for owner", date: monday, hhmm: "15:30", professional: "Dr. Y", want: true, kind: ConflictBlockedSlot},
		{name: "professional block for other", date: monday, hhmm: "15:30", professional: "Dr. X", want: false},
		{name: "professional block unscoped", date: monday, hhmm: "15:30", professional: "", want: false},
		{name: "dated block other week", date: monday.AddDays(7), hhmm: "15:30", professional: "Dr. Y", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, found, err := svc.FindConflict(ctx, ConflictQuery{Date: tt.date, Time: tt.hhmm, Duration: 30, Professional: tt.professional})
			if err != nil {
				t.Fatalf("FindConflict error: %v", err)
			}
			if found != tt.want {
				t.Fatalf("found = %v, want %v", found, tt.want)
			}
			if found && c.Kind() != tt.kind {
				t.Fatalf("kind = %q, want %q", c.Kind(), tt.kind)
			}
		})
	}
}

func TestServiceCreate_RejectsConflictAndPast(t *testing.T) {
	svc, appts, _ := newTestService(t)
	ctx := context.Background()
	first := mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)

	_, err := svc.Create(ctx, CreateInput{PatientName: "Bia", Professional: "Dr. X", Date: first.Date, Time: "09:15", Duration: 30})
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if cErr.Conflict.Appointment == nil || cErr.Conflict.Appointment.ID != first.ID {
		t.Fatalf("conflict = %v, want appointment %s", cErr.Conflict, first.ID)
	}

	// Clinic time is 2024-01-10 08:00 in Sao Paulo.
	_, err = svc.Create(ctx, CreateInput{PatientName: "Bia", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-10"), Time: "07:45", Duration: 30})
	var pErr *PastTimeError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want *PastTimeError", err)
	}
	if _, err := svc.Create(ctx, CreateInput{PatientName: "Bia", Professional: "Dr. X", Date: domain.MustParseDate("2024-01-10"), Time: "08:00", Duration: 30}); err != nil {
		t.Fatalf("current minute must be bookable: %v", err)
	}

	all, _ := appts.ListAppointments(ctx, domain.Date{}, domain.Date{})
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
}

func TestService_NoDoubleBookingUnderConcurrency(t *testing.T) {
	svc, appts, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(ctx, CreateInput{
				PatientName:  fmt.Sprintf("P%d", i),
				Professional: "Dr. X",
				Date:         domain.MustParseDate("2024-01-15"),
				Time:         fmt.Sprintf("09:%02d", (i%3)*10),
				Duration:     30,
			})
			mu.Lock()
			defer mu.Unlock()
			var cErr *ConflictError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &cErr):
				conflicts++
			default:
				t.Errorf("Create error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || conflicts != 11 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and 11", ok, conflicts)
	}
	assertNoOverlaps(t, appts)
}

func TestServiceReschedule_PreservesIdentity(t *testing.T) {
	svc, appts, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)
	mustCreate(t, svc, "Dr. X", "2024-01-16", "10:00", 30)

	moved, err := svc.Reschedule(ctx, a.ID, domain.MustParseDate("2024-01-16"), "10:30")
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if moved.ID != a.ID || moved.Duration != a.Duration || moved.Professional != a.Professional || moved.PatientName != a.PatientName {
		t.Fatalf("moved = %+v, want identity of %+v", moved, a)
	}
	if moved.Date.String() != "2024-01-16" || moved.Time != "10:30" {
		t.Fatalf("moved to %s %s, want 2024-01-16 10:30", moved.Date, moved.Time)
	}
	assertNoOverlaps(t, appts)

	_, err = svc.Reschedule(ctx, a.ID, domain.MustParseDate("2024-01-16"), "09:45")
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	_, err = svc.Reschedule(ctx, a.ID, domain.MustParseDate("2024-01-09"), "10:00")
	var pErr *PastTimeError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want *PastTimeError", err)
	}

	unchanged, err := svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if unchanged.Date != moved.Date || unchanged.Time != moved.Time {
		t.Fatalf("rejected reschedule mutated appointment: %s %s", unchanged.Date, unchanged.Time)
	}

	_, err = svc.Reschedule(ctx, uuid.New(), domain.MustParseDate("2024-01-16"), "14:00")
	var nErr *NotFoundError
	if !errors.As(err, &nErr) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

func TestServiceUpdate_MovingChecksConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)
	mustCreate(t, svc, "Dr. X", "2024-01-15", "10:00", 30)

	longer := 90
	_, err := svc.Update(ctx, a.ID, store.AppointmentPatch{Duration: &longer})
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}

	notes := "fasting"
	updated, err := svc.Update(ctx, a.ID, store.AppointmentPatch{Notes: &notes})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Notes != "fasting" || updated.Duration != 30 {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestService_StatusTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Dr. X", "2024-01-15", "09:00", 30)

	if _, err := svc.Confirm(ctx, a.ID); err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if _, err := svc.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	_, err := svc.Confirm(ctx, a.ID)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	var nErr *NotFoundError
	if err := svc.Delete(ctx, a.ID); !errors.As(err, &nErr) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

type fakeAppointmentStore struct {
	store.AppointmentStore

	getFn        func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn       func(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error)
	rescheduleFn func(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error)
	updateFn     func(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error)
}

func (f *fakeAppointmentStore) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentStore) ListAppointments(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listFn(ctx, from, to)
}

func (f *fakeAppointmentStore) RescheduleAppointment(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
	if f.rescheduleFn == nil {
		panic("RescheduleAppointment not configured")
	}
	return f.rescheduleFn(ctx, id, date, hhmm)
}

func (f *fakeAppointmentStore) UpdateAppointment(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("UpdateAppointment not configured")
	}
	return f.updateFn(ctx, id, patch)
}

func staleStore(original domain.Appointment, updateApplies bool) (*fakeAppointmentStore, *int) {
	updates := 0
	return &fakeAppointmentStore{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) { return original, nil },
		listFn: func(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
			return []domain.Appointment{original}, nil
		},
		rescheduleFn: func(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
			return original, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error) {
			updates++
			out := original
			if updateApplies {
				patch.Apply(&out)
			}
			return out, nil
		},
	}, &updates
}

func TestServiceReschedule_CorrectiveUpdate(t *testing.T) {
	original := domain.Appointment{
		ID:           uuid.MustParse("00000000-0000-0000-0000-000000000301"),
		PatientName:  "Ana",
		Professional: "Dr. X",
		Date:         domain.MustParseDate("2024-01-15"),
		Time:         "09:00",
		Duration:     30,
		Type:         domain.TypeConsultation,
		Modality:     domain.ModalityInPerson,
		Status:       domain.StatusPending,
	}
	target := domain.MustParseDate("2024-01-17")

	t.Run("corrected", func(t *testing.T) {
		fake, updates := staleStore(original, true)
		svc := NewService(fake, memory.NewBlockedSlotStore(), fixedClock(t))

		got, err := svc.Reschedule(context.Background(), original.ID, target, "11:00")
		if err != nil {
			t.Fatalf("Reschedule error: %v", err)
		}
		if *updates != 1 {
			t.Fatalf("updates = %d, want 1", *updates)
		}
		if got.Date != target || got.Time != "11:00" {
			t.Fatalf("got %s %s, want %s 11:00", got.Date, got.Time, target)
		}
	})

	t.Run("still stale", func(t *testing.T) {
		fake, updates := staleStore(original, false)
		svc := NewService(fake, memory.NewBlockedSlotStore(), fixedClock(t))

		_, err := svc.Reschedule(context.Background(), original.ID, target, "11:00")
		if !errors.Is(err, ErrNotApplied) {
			t.Fatalf("error = %v, want %v", err, ErrNotApplied)
		}
		if *updates != 1 {
			t.Fatalf("updates = %d, want exactly 1", *updates)
		}
	})
}

func assertNoOverlaps(t *testing.T, appts store.AppointmentStore) {
	t.Helper()
	all, err := appts.ListAppointments(context.Background(), domain.Date{}, domain.Date{})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.Cancelled() || b.Cancelled() || a.Professional != b.Professional || a.Date != b.Date {
				continue
			}
			ia, _ := a.Interval()
			ib, _ := b.Interval()
			if ia.Overlaps(ib) {
				t.Fatalf("double booking: %s %s and %s %s", a.Date, ia, b.Date, ib)
			}
		}
	}
}
