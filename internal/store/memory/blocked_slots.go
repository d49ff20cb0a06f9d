package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

type BlockedSlotStore struct {
	mu    sync.RWMutex
	slots []domain.BlockedSlot
	now   func() time.Time
	notes store.Notifier
}

func NewBlockedSlotStore() *BlockedSlotStore {
	return &BlockedSlotStore{now: time.Now}
}

var _ store.BlockedSlotStore = (*BlockedSlotStore)(nil)

// ListBlockedSlots returns slots in insertion order.
func (s *BlockedSlotStore) ListBlockedSlots(ctx context.Context) ([]domain.BlockedSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BlockedSlot, len(s.slots))
	copy(out, s.slots)
	return out, nil
}

func (s *BlockedSlotStore) AddBlockedSlot(ctx context.Context, slot domain.BlockedSlot) (domain.BlockedSlot, error) {
	if err := slot.Validate(); err != nil {
		return domain.BlockedSlot{}, err
	}
	if slot.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.BlockedSlot{}, err
		}
		slot.ID = id
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	for _, existing := range s.slots {
		if existing.ID == slot.ID {
			s.mu.Unlock()
			return domain.BlockedSlot{}, store.ErrConflict
		}
	}
	s.slots = append(s.slots, slot)
	s.mu.Unlock()

	s.notes.Publish(store.Change{Entity: store.EntityBlockedSlot, Kind: store.ChangeCreated, ID: slot.ID})
	return slot, nil
}

func (s *BlockedSlotStore) RemoveBlockedSlot(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	idx := -1
	for i, existing := range s.slots {
		if existing.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	s.slots = append(s.slots[:idx], s.slots[idx+1:]...)
	s.mu.Unlock()

	s.notes.Publish(store.Change{Entity: store.EntityBlockedSlot, Kind: store.ChangeDeleted, ID: id})
	return nil
}

func (s *BlockedSlotStore) Subscribe(fn func(store.Change)) func() {
	return s.notes.Subscribe(fn)
}
