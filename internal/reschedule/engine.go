// Package reschedule turns drag-and-drop gestures on the calendar grid into
// validated appointment moves.
package reschedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/metrics"
	"clinicflow/backend/internal/service/appointments"
)

type State int

const (
	Idle State = iota
	Dragging
	Previewing
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Previewing:
		return "previewing"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrDragInProgress = errors.New("another drag is already in progress")
	ErrNoDrag         = errors.New("no drag in progress")
	ErrNotDraggable   = errors.New("cancelled appointments cannot be moved")
	ErrInvalidTarget  = errors.New("invalid drop target")
)

// Booker is the booking surface the engine drives.
type Booker interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	FindConflict(ctx context.Context, q appointments.ConflictQuery) (appointments.Conflict, bool, error)
	Reschedule(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error)
}

// Preview is where the dragged appointment would land. Stores are untouched.
type Preview struct {
	Slot     Slot
	Past     bool
	Conflict *appointments.Conflict
}

func (p Preview) Allowed() bool { return !p.Past && p.Conflict == nil }

// Engine holds at most one active drag.
type Engine struct {
	booker  Booker
	clock   appointments.Clock
	bounds  Bounds
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   State
	active  *domain.Appointment
	preview *Preview
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(booker Booker, clk appointments.Clock, bounds Bounds, opts ...Option) *Engine {
	e := &Engine{
		booker: booker,
		clock:  clk,
		bounds: bounds,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(slog.String("component", "reschedule"))
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active returns the dragged appointment as captured at BeginDrag.
func (e *Engine) Active() (domain.Appointment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return domain.Appointment{}, false
	}
	return *e.active, true
}

// LastPreview returns the most recent hover result of the active drag.
func (e *Engine) LastPreview() (Preview, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preview == nil {
		return Preview{}, false
	}
	return *e.preview, true
}

func (e *Engine) BeginDrag(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Idle {
		return domain.Appointment{}, ErrDragInProgress
	}

	a, err := e.booker.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if a.Cancelled() {
		return domain.Appointment{}, ErrNotDraggable
	}
	e.active = &a
	e.preview = nil
	e.state = Dragging
	return a, nil
}

// Hover previews the slot under the pointer.
func (e *Engine) Hover(ctx context.Context, t Target) (Preview, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.state == Committing {
		return Preview{}, ErrNoDrag
	}

	p, err := e.evaluate(ctx, *e.active, t)
	if err != nil {
		return Preview{}, err
	}
	e.preview = &p
	e.state = Previewing
	return p, nil
}

// Drop recomputes the slot from t, rejects past or conflicting targets and
// otherwise moves the appointment. The engine is idle afterwards whatever
// the outcome. The lock is released while the move commits.
func (e *Engine) Drop(ctx context.Context, t Target) (domain.Appointment, error) {
	e.mu.Lock()
	if e.active == nil || e.state == Committing {
		e.mu.Unlock()
		return domain.Appointment{}, ErrNoDrag
	}
	a := *e.active

	p, err := e.evaluate(ctx, a, t)
	if err != nil {
		e.reset()
		e.mu.Unlock()
		e.metrics.ObserveDrop("error")
		return domain.Appointment{}, err
	}
	if err := e.rejection(ctx, a, p); err != nil {
		e.reset()
		e.mu.Unlock()
		return domain.Appointment{}, err
	}
	e.state = Committing
	e.mu.Unlock()

	moved, err := e.booker.Reschedule(ctx, a.ID, p.Slot.Date, p.Slot.Time())

	e.mu.Lock()
	e.reset()
	e.mu.Unlock()

	if err != nil {
		e.metrics.ObserveDrop("error")
		e.log.WarnContext(ctx, "drop commit failed",
			slog.String("appointment_id", a.ID.String()),
			slog.String("target", p.Slot.String()),
			slog.Any("err", err),
		)
		return domain.Appointment{}, err
	}
	e.metrics.ObserveDrop("ok")
	return moved, nil
}

func (e *Engine) rejection(ctx context.Context, a domain.Appointment, p Preview) error {
	switch {
	case p.Past:
		e.metrics.ObserveDrop("past")
		e.log.InfoContext(ctx, "drop rejected: target in the past",
			slog.String("appointment_id", a.ID.String()),
			slog.String("target", p.Slot.String()),
		)
		return &appointments.PastTimeError{Date: p.Slot.Date, Time: p.Slot.Time()}
	case p.Conflict != nil:
		e.metrics.ObserveDrop("conflict")
		e.log.InfoContext(ctx, "drop rejected: slot unavailable",
			slog.String("appointment_id", a.ID.String()),
			slog.String("target", p.Slot.String()),
			slog.String("conflict", p.Conflict.String()),
		)
		return &appointments.ConflictError{Conflict: *p.Conflict}
	}
	return nil
}

// Cancel abandons the active drag without touching any store. A drop that
// is already committing runs to completion.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Committing {
		return
	}
	e.reset()
}

func (e *Engine) reset() {
	e.active = nil
	e.preview = nil
	e.state = Idle
}

func (e *Engine) evaluate(ctx context.Context, a domain.Appointment, t Target) (Preview, error) {
	if t.Date.IsZero() {
		return Preview{}, fmt.Errorf("%w: no date", ErrInvalidTarget)
	}
	slot := PointerPositionToSnappedTime(t, e.bounds)
	p := Preview{Slot: slot}

	if e.clock.IsPastDate(slot.Date) {
		p.Past = true
		return p, nil
	}
	past, err := e.clock.IsPastTime(slot.Date, slot.Time())
	if err != nil {
		return Preview{}, err
	}
	if past {
		p.Past = true
		return p, nil
	}

	c, found, err := e.booker.FindConflict(ctx, appointments.ConflictQuery{
		Date:         slot.Date,
		Time:         slot.Time(),
		Duration:     a.Duration,
		ExcludeID:    a.ID,
		Professional: a.Professional,
	})
	if err != nil {
		return Preview{}, err
	}
	if found {
		p.Conflict = &c
	}
	return p, nil
}
