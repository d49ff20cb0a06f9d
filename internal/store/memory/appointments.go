// Package memory keeps appointments and blocked slots in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

type AppointmentStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]domain.Appointment
	now   func() time.Time
	notes store.Notifier
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		byID: make(map[uuid.UUID]domain.Appointment),
		now:  time.Now,
	}
}

var _ store.AppointmentStore = (*AppointmentStore)(nil)

func (s *AppointmentStore) ListAppointments(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0, len(s.byID))
	for _, a := range s.byID {
		if store.InRange(a.Date, from, to) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *AppointmentStore) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *AppointmentStore) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if appt.Status == "" {
		appt.Status = domain.StatusPending
	}
	now := s.now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	s.mu.Lock()
	if _, exists := s.byID[appt.ID]; exists {
		s.mu.Unlock()
		return domain.Appointment{}, store.ErrConflict
	}
	s.byID[appt.ID] = appt
	s.mu.Unlock()

	s.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeCreated, ID: appt.ID})
	return appt, nil
}

func (s *AppointmentStore) UpdateAppointment(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error) {
	return s.mutate(id, func(a *domain.Appointment) error {
		patch.Apply(a)
		return nil
	})
}

func (s *AppointmentStore) RescheduleAppointment(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
	return s.mutate(id, func(a *domain.Appointment) error {
		a.Date = date
		a.Time = hhmm
		return nil
	})
}

func (s *AppointmentStore) ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(id, domain.StatusConfirmed)
}

func (s *AppointmentStore) CancelAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(id, domain.StatusCancelled)
}

func (s *AppointmentStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.byID, id)
	s.mu.Unlock()

	s.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeDeleted, ID: id})
	return nil
}

func (s *AppointmentStore) Subscribe(fn func(store.Change)) func() {
	return s.notes.Subscribe(fn)
}

func (s *AppointmentStore) transition(id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error) {
	return s.mutate(id, func(a *domain.Appointment) error {
		if !a.Status.CanTransitionTo(to) {
			return store.ErrInvalidTransition
		}
		a.Status = to
		return nil
	})
}

func (s *AppointmentStore) mutate(id uuid.UUID, fn func(a *domain.Appointment) error) (domain.Appointment, error) {
	s.mu.Lock()
	a, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return domain.Appointment{}, store.ErrNotFound
	}
	if err := fn(&a); err != nil {
		s.mu.Unlock()
		return domain.Appointment{}, err
	}
	a.ID = id
	a.UpdatedAt = s.now().UTC()
	s.byID[id] = a
	s.mu.Unlock()

	s.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeUpdated, ID: id})
	return a, nil
}

func sortAppointments(out []domain.Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}
