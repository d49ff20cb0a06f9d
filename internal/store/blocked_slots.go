package store

import (
	"context"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
)

// BlockedSlotStore owns blocked periods. Slots get an ID on insert and are
// removed by that ID only.
type BlockedSlotStore interface {
	ListBlockedSlots(ctx context.Context) ([]domain.BlockedSlot, error)
	AddBlockedSlot(ctx context.Context, slot domain.BlockedSlot) (domain.BlockedSlot, error)
	RemoveBlockedSlot(ctx context.Context, id uuid.UUID) error

	Subscribe(fn func(Change)) (unsubscribe func())
}
