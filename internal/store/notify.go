package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

type Entity string

const (
	EntityAppointment Entity = "appointment"
	EntityBlockedSlot Entity = "blocked_slot"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes one committed mutation.
type Change struct {
	Entity Entity
	Kind   ChangeKind
	ID     uuid.UUID
}

// Notifier fans committed changes out to subscribers in subscription order.
// Publish must be called without holding the store's own lock.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
}

func (n *Notifier) Subscribe(fn func(Change)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) Publish(c Change) {
	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
