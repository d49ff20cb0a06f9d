package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
)

// ConflictQuery describes a candidate slot. An empty Professional compares
// against every appointment but only clinic-wide blocks.
type ConflictQuery struct {
	Date         domain.Date
	Time         string
	Duration     int
	ExcludeID    uuid.UUID
	Professional string
}

// Conflict names the first entity a candidate overlaps. Exactly one field is set.
type Conflict struct {
	Appointment *domain.Appointment
	Block       *domain.BlockedSlot
}

const (
	ConflictAppointment = "appointment"
	ConflictBlockedSlot = "blocked_slot"
)

func (c Conflict) Kind() string {
	if c.Block != nil {
		return ConflictBlockedSlot
	}
	return ConflictAppointment
}

func (c Conflict) String() string {
	switch {
	case c.Appointment != nil:
		a := c.Appointment
		iv, _ := a.Interval()
		return fmt.Sprintf("appointment %s with %s at %s", a.ID, a.Professional, iv)
	case c.Block != nil:
		b := c.Block
		iv, _ := b.Interval()
		reason := b.Reason
		if reason == "" {
			reason = "blocked period"
		}
		return fmt.Sprintf("%s at %s", reason, iv)
	default:
		return "nothing"
	}
}

// DetectConflict reports the first appointment, then blocked slot, whose
// interval overlaps the query under half-open semantics. Cancelled
// appointments and the excluded ID never conflict.
func DetectConflict(appts []domain.Appointment, blocks []domain.BlockedSlot, q ConflictQuery) (Conflict, bool, error) {
	candidate, err := domain.NewInterval(q.Time, q.Duration)
	if err != nil {
		return Conflict{}, false, validationError(err.Error())
	}

	for i := range appts {
		a := appts[i]
		if a.Cancelled() || a.Date != q.Date {
			continue
		}
		if q.ExcludeID != uuid.Nil && a.ID == q.ExcludeID {
			continue
		}
		if q.Professional != "" && a.Professional != q.Professional {
			continue
		}
		iv, err := a.Interval()
		if err != nil {
			continue
		}
		if candidate.Overlaps(iv) {
			return Conflict{Appointment: &a}, true, nil
		}
	}

	for i := range blocks {
		b := blocks[i]
		if !b.AppliesOn(q.Date) || !b.AppliesTo(q.Professional) {
			continue
		}
		iv, err := b.Interval()
		if err != nil {
			continue
		}
		if candidate.Overlaps(iv) {
			return Conflict{Block: &b}, true, nil
		}
	}

	return Conflict{}, false, nil
}

// FindConflict re-reads both stores and runs DetectConflict.
func (s *Service) FindConflict(ctx context.Context, q ConflictQuery) (Conflict, bool, error) {
	if q.Date.IsZero() {
		return Conflict{}, false, validationError("date is required")
	}
	appts, err := s.appts.ListAppointments(ctx, q.Date, q.Date)
	if err != nil {
		return Conflict{}, false, fmt.Errorf("list appointments: %w", err)
	}
	blocks, err := s.blocks.ListBlockedSlots(ctx)
	if err != nil {
		return Conflict{}, false, fmt.Errorf("list blocked slots: %w", err)
	}

	c, found, err := DetectConflict(appts, blocks, q)
	if err != nil {
		return Conflict{}, false, err
	}
	if found {
		s.metrics.ObserveConflictCheck(c.Kind())
	} else {
		s.metrics.ObserveConflictCheck("free")
	}
	return c, found, nil
}

// CheckTimeConflict reports whether the candidate slot is taken.
func (s *Service) CheckTimeConflict(ctx context.Context, q ConflictQuery) (bool, error) {
	_, found, err := s.FindConflict(ctx, q)
	return found, err
}
