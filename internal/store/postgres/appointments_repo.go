package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

type AppointmentRepo struct {
	db    bun.IDB
	notes store.Notifier
}

func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

var _ store.AppointmentStore = (*AppointmentRepo)(nil)

func (r *AppointmentRepo) ListAppointments(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := conn(ctx, r.db).NewSelect().Model(&rows)
	if !from.IsZero() {
		q = q.Where("date >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", to)
	}
	err := q.OrderExpr("date ASC, time ASC, id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := conn(ctx, r.db).NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentRepo) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.Status == "" {
		appt.Status = domain.StatusPending
	}
	m := appt
	_, err := conn(ctx, r.db).NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}

	afterCommit(ctx, func() { r.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeCreated, ID: m.ID}) })
	return m, nil
}

func (r *AppointmentRepo) UpdateAppointment(ctx context.Context, id uuid.UUID, patch store.AppointmentPatch) (domain.Appointment, error) {
	return r.mutate(ctx, id, func(a *domain.Appointment) error {
		patch.Apply(a)
		return nil
	})
}

func (r *AppointmentRepo) RescheduleAppointment(ctx context.Context, id uuid.UUID, date domain.Date, hhmm string) (domain.Appointment, error) {
	return r.mutate(ctx, id, func(a *domain.Appointment) error {
		a.Date = date
		a.Time = hhmm
		return nil
	})
}

func (r *AppointmentRepo) ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return r.transition(ctx, id, domain.StatusConfirmed)
}

func (r *AppointmentRepo) CancelAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return r.transition(ctx, id, domain.StatusCancelled)
}

func (r *AppointmentRepo) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	afterCommit(ctx, func() { r.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeDeleted, ID: id}) })
	return nil
}

func (r *AppointmentRepo) Subscribe(fn func(store.Change)) func() {
	return r.notes.Subscribe(fn)
}

func (r *AppointmentRepo) transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error) {
	return r.mutate(ctx, id, func(a *domain.Appointment) error {
		if !a.Status.CanTransitionTo(to) {
			return store.ErrInvalidTransition
		}
		a.Status = to
		return nil
	})
}

// mutate loads the row under FOR UPDATE, applies fn and writes it back in one
// transaction. Subscribers hear about it only after commit.
func (r *AppointmentRepo) mutate(ctx context.Context, id uuid.UUID, fn func(a *domain.Appointment) error) (domain.Appointment, error) {
	var out domain.Appointment
	err := conn(ctx, r.db).RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var a domain.Appointment
		err := tx.NewSelect().Model(&a).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.ID = id
		if _, err := tx.NewUpdate().Model(&a).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	afterCommit(ctx, func() { r.notes.Publish(store.Change{Entity: store.EntityAppointment, Kind: store.ChangeUpdated, ID: id}) })
	return out, nil
}
