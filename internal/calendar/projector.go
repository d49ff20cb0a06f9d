// Package calendar projects appointments and blocked slots onto day, week and
// month grids.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/metrics"
	"clinicflow/backend/internal/store"
)

// Clock reports the clinic's current date and minute of day.
type Clock interface {
	Today() domain.Date
	MinutesNow() int
}

type Projector struct {
	appts   store.AppointmentStore
	blocks  store.BlockedSlotStore
	clock   Clock
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Projector)

func WithLogger(log *slog.Logger) Option {
	return func(p *Projector) { p.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) { p.metrics = m }
}

func NewProjector(appts store.AppointmentStore, blocks store.BlockedSlotStore, clk Clock, opts Options, options ...Option) (*Projector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Projector{
		appts:  appts,
		blocks: blocks,
		clock:  clk,
		opts:   opts,
		log:    slog.Default(),
	}
	for _, o := range options {
		o(p)
	}
	p.log = p.log.With(slog.String("component", "calendar"))
	return p, nil
}

func (p *Projector) Options() Options { return p.opts }

// Project reads the stores and lays out q.
func (p *Projector) Project(ctx context.Context, q Query) (Projection, error) {
	started := time.Now()
	if q.Anchor.IsZero() {
		q.Anchor = p.clock.Today()
	}
	if q.Mode == "" {
		q.Mode = ModeWeek
	}

	from, to := Window(q, p.opts.WeekStart)
	appts, err := p.appts.ListAppointments(ctx, from, to)
	if err != nil {
		return Projection{}, fmt.Errorf("list appointments: %w", err)
	}
	slots, err := p.blocks.ListBlockedSlots(ctx)
	if err != nil {
		return Projection{}, fmt.Errorf("list blocked slots: %w", err)
	}
	occurrences, err := domain.ExpandBlocks(slots, from, to)
	if err != nil {
		return Projection{}, fmt.Errorf("expand blocked slots: %w", err)
	}

	proj, err := Build(appts, occurrences, q, p.opts, Today{Date: p.clock.Today(), Minutes: p.clock.MinutesNow()})
	if err != nil {
		return Projection{}, err
	}
	p.metrics.ObserveProjection(string(q.Mode), time.Since(started).Seconds())
	return proj, nil
}

// Watch projects q once, then again after every store change and every tick,
// until ctx is done. Bursts of changes collapse into one projection. A tick
// of zero disables the timer.
func (p *Projector) Watch(ctx context.Context, q Query, tick time.Duration, fn func(Projection, error)) {
	changed := make(chan struct{}, 1)
	notify := func(store.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubAppts := p.appts.Subscribe(notify)
	defer unsubAppts()
	unsubBlocks := p.blocks.Subscribe(notify)
	defer unsubBlocks()

	var ticks <-chan time.Time
	if tick > 0 {
		t := time.NewTicker(tick)
		defer t.Stop()
		ticks = t.C
	}

	for {
		proj, err := p.Project(ctx, q)
		if err != nil && ctx.Err() == nil {
			p.log.WarnContext(ctx, "projection failed", slog.String("view", string(q.Mode)), slog.Any("err", err))
		}
		if ctx.Err() != nil {
			return
		}
		fn(proj, err)

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-ticks:
		}
	}
}
