// Package blockedslots keeps generated lunch blocks in line with the work
// schedules supplied by a scheduleconfig.Provider.
package blockedslots

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/lock"
	"clinicflow/backend/internal/metrics"
	"clinicflow/backend/internal/scheduleconfig"
	"clinicflow/backend/internal/store"
)

const (
	ScopeClinic   = "clinic"
	ScopeOrphaned = "orphaned"

	syncLockKey = "lunch-sync"
)

// ScopeReport counts what one reconciliation did.
type ScopeReport struct {
	Scope   string
	Added   int
	Removed int
	Kept    int
}

func (r ScopeReport) Changed() bool { return r.Added > 0 || r.Removed > 0 }

type Report struct {
	Scopes []ScopeReport
}

func (r Report) Totals() (added, removed int) {
	for _, s := range r.Scopes {
		added += s.Added
		removed += s.Removed
	}
	return added, removed
}

type Synchronizer struct {
	blocks  store.BlockedSlotStore
	config  scheduleconfig.Provider
	locker  lock.Locker
	log     *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

type Option func(*Synchronizer)

// WithLocker serialises runs across processes sharing the locker.
func WithLocker(l lock.Locker) Option {
	return func(s *Synchronizer) { s.locker = l }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Synchronizer) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

func New(blocks store.BlockedSlotStore, config scheduleconfig.Provider, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		blocks: blocks,
		config: config,
		locker: lock.NewLocal(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "lunch_sync"))
	return s
}

// SyncClinic reconciles the clinic lunch blocks with the clinic schedule.
func (s *Synchronizer) SyncClinic(ctx context.Context) (ScopeReport, error) {
	var rep ScopeReport
	err := s.exclusive(ctx, func(ctx context.Context) error {
		var err error
		rep, err = s.syncClinic(ctx)
		return err
	})
	return rep, err
}

// SyncProfessional reconciles one professional's lunch blocks.
func (s *Synchronizer) SyncProfessional(ctx context.Context, p domain.ProfessionalSchedule) (ScopeReport, error) {
	var rep ScopeReport
	err := s.exclusive(ctx, func(ctx context.Context) error {
		var err error
		rep, err = s.syncProfessional(ctx, p)
		return err
	})
	return rep, err
}

// SyncAll reconciles the clinic, then every configured professional, then
// drops lunch blocks of professionals no longer configured.
func (s *Synchronizer) SyncAll(ctx context.Context) (Report, error) {
	var rep Report
	err := s.exclusive(ctx, func(ctx context.Context) error {
		var err error
		rep, err = s.syncAll(ctx)
		return err
	})
	s.metrics.ObserveSyncRun(err)
	if err != nil {
		s.log.ErrorContext(ctx, "lunch sync failed", slog.Any("err", err))
		return rep, err
	}
	added, removed := rep.Totals()
	s.log.InfoContext(ctx, "lunch sync finished", slog.Int("added", added), slog.Int("removed", removed))
	return rep, nil
}

// Bootstrap seeds lunch blocks on first run: the clinic scope when no clinic
// lunch block exists, and every professional when none of the configured
// professionals has a lunch block yet.
func (s *Synchronizer) Bootstrap(ctx context.Context) (Report, error) {
	var rep Report
	err := s.exclusive(ctx, func(ctx context.Context) error {
		stored, err := s.blocks.ListBlockedSlots(ctx)
		if err != nil {
			return fmt.Errorf("list blocked slots: %w", err)
		}

		hasClinic := false
		for _, b := range stored {
			if domain.IsClinicLunch(b) {
				hasClinic = true
				break
			}
		}
		if !hasClinic {
			r, err := s.syncClinic(ctx)
			if err != nil {
				return err
			}
			rep.Scopes = append(rep.Scopes, r)
		}

		profs, err := s.config.ProfessionalSchedules(ctx)
		if err != nil {
			return fmt.Errorf("load professional schedules: %w", err)
		}
		for _, b := range stored {
			for _, p := range profs {
				if domain.IsProfessionalLunch(b, p.Name) {
					return nil
				}
			}
		}
		for _, p := range profs {
			r, err := s.syncProfessional(ctx, p)
			if err != nil {
				return err
			}
			rep.Scopes = append(rep.Scopes, r)
		}
		return nil
	})
	if err != nil {
		return rep, err
	}
	if added, _ := rep.Totals(); added > 0 {
		s.log.InfoContext(ctx, "lunch blocks bootstrapped", slog.Int("added", added))
	}
	return rep, nil
}

func (s *Synchronizer) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locker.WithLock(ctx, syncLockKey, fn)
}

func (s *Synchronizer) syncAll(ctx context.Context) (Report, error) {
	var rep Report

	r, err := s.syncClinic(ctx)
	if err != nil {
		return rep, err
	}
	rep.Scopes = append(rep.Scopes, r)

	profs, err := s.config.ProfessionalSchedules(ctx)
	if err != nil {
		return rep, fmt.Errorf("load professional schedules: %w", err)
	}
	known := make(map[string]struct{}, len(profs))
	for _, p := range profs {
		known[p.Name] = struct{}{}
		r, err := s.syncProfessional(ctx, p)
		if err != nil {
			return rep, err
		}
		rep.Scopes = append(rep.Scopes, r)
	}

	r, err = s.reconcile(ctx, ScopeOrphaned, func(b domain.BlockedSlot) bool {
		if !domain.IsAnyProfessionalLunch(b) {
			return false
		}
		_, ok := known[b.Professional]
		return !ok
	}, nil)
	if err != nil {
		return rep, err
	}
	rep.Scopes = append(rep.Scopes, r)
	return rep, nil
}

func (s *Synchronizer) syncClinic(ctx context.Context) (ScopeReport, error) {
	week, err := s.config.ClinicSchedule(ctx)
	if err != nil {
		return ScopeReport{Scope: ScopeClinic}, fmt.Errorf("load clinic schedule: %w", err)
	}
	return s.reconcile(ctx, ScopeClinic, domain.IsClinicLunch, DeriveClinicBlocks(week))
}

func (s *Synchronizer) syncProfessional(ctx context.Context, p domain.ProfessionalSchedule) (ScopeReport, error) {
	owned := func(b domain.BlockedSlot) bool { return domain.IsProfessionalLunch(b, p.Name) }
	return s.reconcile(ctx, p.Name, owned, DeriveProfessionalBlocks(p))
}

// reconcile makes the stored blocks selected by owned equal, by value, to
// derived. Stored blocks that already match keep their IDs; duplicates and
// stale ones are removed by ID; missing ones are added.
func (s *Synchronizer) reconcile(ctx context.Context, scope string, owned func(domain.BlockedSlot) bool, derived []domain.BlockedSlot) (ScopeReport, error) {
	rep := ScopeReport{Scope: scope}

	stored, err := s.blocks.ListBlockedSlots(ctx)
	if err != nil {
		return rep, fmt.Errorf("list blocked slots: %w", err)
	}

	matched := make([]bool, len(derived))
	var stale []domain.BlockedSlot
	for _, b := range stored {
		if !owned(b) {
			continue
		}
		hit := -1
		for i, d := range derived {
			if !matched[i] && b.SameValue(d) {
				hit = i
				break
			}
		}
		if hit < 0 {
			stale = append(stale, b)
			continue
		}
		matched[hit] = true
		rep.Kept++
	}

	for _, b := range stale {
		if err := s.blocks.RemoveBlockedSlot(ctx, b.ID); err != nil {
			return rep, fmt.Errorf("remove blocked slot %s: %w", b.ID, err)
		}
		rep.Removed++
	}
	for i, d := range derived {
		if matched[i] {
			continue
		}
		if _, err := s.blocks.AddBlockedSlot(ctx, d); err != nil {
			return rep, fmt.Errorf("add %s lunch block %s: %w", scope, d.When, err)
		}
		rep.Added++
	}

	s.metrics.ObserveSync(metricScope(scope), rep.Added, rep.Removed)
	if rep.Changed() {
		s.log.DebugContext(ctx, "lunch blocks reconciled",
			slog.String("scope", scope),
			slog.Int("added", rep.Added),
			slog.Int("removed", rep.Removed),
			slog.Int("kept", rep.Kept),
		)
	}
	return rep, nil
}

// metricScope keeps label cardinality bounded by folding professionals together.
func metricScope(scope string) string {
	if scope == ScopeClinic || scope == ScopeOrphaned {
		return scope
	}
	return "professional"
}
