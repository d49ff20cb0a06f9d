package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

// BlockInput describes a staff-created blocked slot. Exactly one of Date and
// Weekday is set.
type BlockInput struct {
	Date         domain.Date
	Weekday      *time.Weekday
	Time         string
	Duration     int
	Reason       string
	Professional string
}

func (s *Service) ListBlockedSlots(ctx context.Context) ([]domain.BlockedSlot, error) {
	return s.blocks.ListBlockedSlots(ctx)
}

// AddBlockedSlot stores a manual block. Lunch reasons are reserved for the
// lunch synchronizer, which would otherwise remove the block on its next run.
func (s *Service) AddBlockedSlot(ctx context.Context, in BlockInput) (domain.BlockedSlot, error) {
	b := domain.BlockedSlot{
		Time:         strings.TrimSpace(in.Time),
		Duration:     in.Duration,
		Reason:       strings.TrimSpace(in.Reason),
		Professional: strings.TrimSpace(in.Professional),
	}
	switch {
	case !in.Date.IsZero() && in.Weekday != nil:
		return domain.BlockedSlot{}, validationError("set either date or weekday, not both")
	case !in.Date.IsZero():
		if s.clock.IsPastDate(in.Date) {
			return domain.BlockedSlot{}, &PastTimeError{Date: in.Date}
		}
		b.When = domain.Dated{Date: in.Date}
	case in.Weekday != nil:
		b.When = domain.Recurring{Weekday: *in.Weekday}
	default:
		return domain.BlockedSlot{}, validationError("date or weekday is required")
	}

	if b.Reason == "" {
		return domain.BlockedSlot{}, validationError("reason is required")
	}
	if domain.IsGeneratedLunchReason(b.Reason) {
		return domain.BlockedSlot{}, validationError("reason is reserved for generated lunch blocks")
	}
	if b.Professional == domain.AllProfessionals {
		return domain.BlockedSlot{}, validationError("professional must name a person or be empty")
	}
	minutes, err := domain.ParseClock(b.Time)
	if err != nil {
		return domain.BlockedSlot{}, validationError(err.Error())
	}
	b.Time = domain.FormatClock(minutes)
	if b.Duration < MinDuration || b.Duration > MaxDuration {
		return domain.BlockedSlot{}, validationError("duration must be between 5 and 720 minutes")
	}
	if minutes+b.Duration > domain.MinutesPerDay {
		return domain.BlockedSlot{}, validationError("blocked slot must end by midnight")
	}
	if err := b.Validate(); err != nil {
		return domain.BlockedSlot{}, validationError(err.Error())
	}

	added, err := s.blocks.AddBlockedSlot(ctx, b)
	if err != nil {
		s.metrics.ObserveBooking("block_add", "error")
		return domain.BlockedSlot{}, err
	}
	s.metrics.ObserveBooking("block_add", "ok")
	s.log.InfoContext(ctx, "blocked slot added",
		slog.String("blocked_slot_id", added.ID.String()),
		slog.String("when", added.When.String()),
		slog.String("time", added.Time),
	)
	return added, nil
}

// RemoveBlockedSlot deletes one block by ID, manual or generated.
func (s *Service) RemoveBlockedSlot(ctx context.Context, id uuid.UUID) error {
	if err := s.blocks.RemoveBlockedSlot(ctx, id); err != nil {
		s.metrics.ObserveBooking("block_remove", "error")
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{ID: id, Entity: "blocked slot"}
		}
		return err
	}
	s.metrics.ObserveBooking("block_remove", "ok")
	return nil
}
