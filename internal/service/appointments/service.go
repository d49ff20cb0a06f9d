package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/lock"
	"clinicflow/backend/internal/metrics"
	"clinicflow/backend/internal/store"
)

const (
	MinDuration = 5
	MaxDuration = 12 * 60
)

// Clock is the part of the clinic clock the service needs.
type Clock interface {
	IsPastDate(d domain.Date) bool
	IsPastTime(d domain.Date, hhmm string) (bool, error)
}

type Service struct {
	appts   store.AppointmentStore
	blocks  store.BlockedSlotStore
	clock   Clock
	locker  lock.Locker
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(appts store.AppointmentStore, blocks store.BlockedSlotStore, clk Clock, opts ...Option) *Service {
	s := &Service{
		appts:  appts,
		blocks: blocks,
		clock:  clk,
		locker: lock.NewLocal(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "appointments"))
	return s
}

type CreateInput struct {
	PatientName  string
	Professional string
	Date         domain.Date
	Time         string
	Duration     int
	Type         domain.AppointmentType
	Modality     domain.Modality
	Notes        string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	appt := domain.Appointment{
		PatientName:  strings.TrimSpace(in.PatientName),
		Professional: strings.TrimSpace(in.Professional),
		Date:         in.Date,
		Time:         in.Time,
		Duration:     in.Duration,
		Type:         in.Type,
		Modality:     in.Modality,
		Status:       domain.StatusPending,
		Notes:        strings.TrimSpace(in.Notes),
	}
	if appt.Type == "" {
		appt.Type = domain.TypeConsultation
	}
	if appt.Modality == "" {
		appt.Modality = domain.ModalityInPerson
	}
	if err := normalize(&appt); err != nil {
		s.metrics.ObserveBooking("create", "invalid")
		return domain.Appointment{}, err
	}
	if err := s.ensureFuture(appt.Date, appt.Time); err != nil {
		s.metrics.ObserveBooking("create", "past")
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	key := lock.SlotKey(appt.Professional, appt.Date.String())
	err := s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, ConflictQuery{
			Date:         appt.Date,
			Time:         appt.Time,
			Duration:     appt.Duration,
			Professional: appt.Professional,
		}); err != nil {
			return err
		}
		created, err := s.appts.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		s.metrics.ObserveBooking("create", resultOf(err))
		return domain.Appointment{}, err
	}

	s.metrics.ObserveBooking("create", "ok")
	s.log.InfoContext(ctx, "appointment created",
		slog.String("appointment_id", out.ID.String()),
		slog.String("professional", out.Professional),
		slog.String("date", out.Date.String()),
		slog.String("time", out.Time),
	)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.appts.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, storeError(id, err)
	}
	return a, nil
}

// List returns appointments dated within [from, to].
func (s *Service) List(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, validationError("window end must not be before window start")
	}
	return s.appts.ListAppointments(ctx, from, to)
}

// Update applies a partial edit. Edits that move the occupied slot are checked
// for the past and for conflicts before the store is touched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	next := current
	patch.Apply(&next)
	next.PatientName = strings.TrimSpace(next.PatientName)
	next.Professional = strings.TrimSpace(next.Professional)
	if err := normalize(&next); err != nil {
		s.metrics.ObserveBooking("update", "invalid")
		return domain.Appointment{}, err
	}
	// Write back the normalized values so the store sees canonical fields.
	patch = patchFrom(patch, next)

	if !patch.MovesSlot() || current.Cancelled() {
		updated, err := s.appts.UpdateAppointment(ctx, id, patch)
		if err != nil {
			return domain.Appointment{}, storeError(id, err)
		}
		s.metrics.ObserveBooking("update", "ok")
		return updated, nil
	}

	if err := s.ensureFuture(next.Date, next.Time); err != nil {
		s.metrics.ObserveBooking("update", "past")
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	keys := []string{
		lock.SlotKey(current.Professional, current.Date.String()),
		lock.SlotKey(next.Professional, next.Date.String()),
	}
	err = lock.WithLocks(ctx, s.locker, keys, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, ConflictQuery{
			Date:         next.Date,
			Time:         next.Time,
			Duration:     next.Duration,
			ExcludeID:    id,
			Professional: next.Professional,
		}); err != nil {
			return err
		}
		updated, err := s.appts.UpdateAppointment(ctx, id, patch)
		if err != nil {
			return storeError(id, err)
		}
		out = updated
		return nil
	})
	if err != nil {
		s.metrics.ObserveBooking("update", resultOf(err))
		return domain.Appointment{}, err
	}
	s.metrics.ObserveBooking("update", "ok")
	return out, nil
}

// Reschedule moves an appointment to date at hhmm keeping every other field.
// If the store answers with a different date or time, one corrective update
// is issued; a second mismatch fails with ErrNotApplied.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
	if date.IsZero() {
		return domain.Appointment{}, validationError("date is required")
	}
	minutes, err := domain.ParseClock(hhmm)
	if err != nil {
		return domain.Appointment{}, validationError(err.Error())
	}
	hhmm = domain.FormatClock(minutes)

	if err := s.ensureFuture(date, hhmm); err != nil {
		s.metrics.ObserveBooking("reschedule", "past")
		return domain.Appointment{}, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if current.Cancelled() {
		return domain.Appointment{}, validationError("cancelled appointments cannot be rescheduled")
	}
	if minutes+current.Duration > domain.MinutesPerDay {
		return domain.Appointment{}, validationError("appointment must end by midnight")
	}

	var out domain.Appointment
	keys := []string{
		lock.SlotKey(current.Professional, current.Date.String()),
		lock.SlotKey(current.Professional, date.String()),
	}
	err = lock.WithLocks(ctx, s.locker, keys, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, ConflictQuery{
			Date:         date,
			Time:         hhmm,
			Duration:     current.Duration,
			ExcludeID:    id,
			Professional: current.Professional,
		}); err != nil {
			return err
		}
		moved, err := s.commitMove(ctx, id, date, hhmm)
		if err != nil {
			return err
		}
		out = moved
		return nil
	})
	if err != nil {
		s.metrics.ObserveBooking("reschedule", resultOf(err))
		return domain.Appointment{}, err
	}

	s.metrics.ObserveBooking("reschedule", "ok")
	s.log.InfoContext(ctx, "appointment rescheduled",
		slog.String("appointment_id", id.String()),
		slog.String("from", current.Date.String()+" "+current.Time),
		slog.String("to", date.String()+" "+hhmm),
	)
	return out, nil
}

func (s *Service) commitMove(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
	moved, err := s.appts.RescheduleAppointment(ctx, id, date, hhmm)
	if err != nil {
		return domain.Appointment{}, storeError(id, err)
	}
	if moved.Date == date && moved.Time == hhmm {
		return moved, nil
	}

	s.metrics.ObserveCorrectiveUpdate()
	s.log.WarnContext(ctx, "reschedule not reflected by store; issuing corrective update",
		slog.String("appointment_id", id.String()),
		slog.String("want", date.String()+" "+hhmm),
		slog.String("got", moved.Date.String()+" "+moved.Time),
	)
	fixed, err := s.appts.UpdateAppointment(ctx, id, store.AppointmentPatch{Date: &date, Time: &hhmm})
	if err != nil {
		return domain.Appointment{}, storeError(id, err)
	}
	if fixed.Date != date || fixed.Time != hhmm {
		return domain.Appointment{}, ErrNotApplied
	}
	return fixed, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.appts.ConfirmAppointment(ctx, id)
	if err != nil {
		s.metrics.ObserveBooking("confirm", "error")
		return domain.Appointment{}, storeError(id, err)
	}
	s.metrics.ObserveBooking("confirm", "ok")
	return a, nil
}

// Cancel keeps the appointment visible but frees its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.appts.CancelAppointment(ctx, id)
	if err != nil {
		s.metrics.ObserveBooking("cancel", "error")
		return domain.Appointment{}, storeError(id, err)
	}
	s.metrics.ObserveBooking("cancel", "ok")
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("appointment_id is required")
	}
	if err := s.appts.DeleteAppointment(ctx, id); err != nil {
		s.metrics.ObserveBooking("delete", "error")
		return storeError(id, err)
	}
	s.metrics.ObserveBooking("delete", "ok")
	return nil
}

func (s *Service) ensureFuture(date domain.Date, hhmm string) error {
	if s.clock.IsPastDate(date) {
		return &PastTimeError{Date: date}
	}
	past, err := s.clock.IsPastTime(date, hhmm)
	if err != nil {
		return validationError(err.Error())
	}
	if past {
		return &PastTimeError{Date: date, Time: hhmm}
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, q ConflictQuery) error {
	c, found, err := s.FindConflict(ctx, q)
	if err != nil {
		return err
	}
	if found {
		return &ConflictError{Conflict: c}
	}
	return nil
}

// normalize validates a and rewrites its time to canonical HH:MM.
func normalize(a *domain.Appointment) error {
	if a.PatientName == "" {
		return validationError("patient_name is required")
	}
	if a.Professional == "" {
		return validationError("professional is required")
	}
	if a.Professional == domain.AllProfessionals {
		return validationError("professional must name a person")
	}
	if a.Date.IsZero() {
		return validationError("date is required")
	}
	minutes, err := domain.ParseClock(a.Time)
	if err != nil {
		return validationError(err.Error())
	}
	a.Time = domain.FormatClock(minutes)
	if a.Duration <= 0 {
		return validationError("duration must be positive")
	}
	if a.Duration < MinDuration || a.Duration > MaxDuration {
		return validationError("duration must be between 5 and 720 minutes")
	}
	if minutes+a.Duration > domain.MinutesPerDay {
		return validationError("appointment must end by midnight")
	}
	if !a.Type.Valid() {
		return validationError("invalid appointment type")
	}
	if !a.Modality.Valid() {
		return validationError("invalid modality")
	}
	return nil
}

// patchFrom copies normalized values from next into the fields p sets.
func patchFrom(p store.AppointmentPatch, next domain.Appointment) store.AppointmentPatch {
	if p.PatientName != nil {
		p.PatientName = &next.PatientName
	}
	if p.Professional != nil {
		p.Professional = &next.Professional
	}
	if p.Time != nil {
		p.Time = &next.Time
	}
	return p
}

func resultOf(err error) string {
	var (
		vErr *ValidationError
		cErr *ConflictError
		pErr *PastTimeError
		nErr *NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &cErr):
		return "conflict"
	case errors.As(err, &pErr):
		return "past"
	case errors.As(err, &nErr):
		return "not_found"
	default:
		return "error"
	}
}
