package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

// blockedSlotRow stores the Recurring/Dated union as two nullable columns; the
// table's CHECK constraint keeps exactly one of them set.
type blockedSlotRow struct {
	bun.BaseModel `bun:"table:blocked_slots"`

	ID           uuid.UUID    `bun:"id,pk,type:uuid"`
	Date         *domain.Date `bun:"date,type:date"`
	Weekday      *int16       `bun:"weekday"`
	Time         string       `bun:"time,notnull"`
	Duration     int          `bun:"duration_minutes,notnull"`
	Reason       string       `bun:"reason,notnull"`
	Professional string       `bun:"professional,notnull"`
	CreatedAt    time.Time    `bun:"created_at,notnull"`
}

func (r *blockedSlotRow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if r.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

func toBlockedSlotRow(b domain.BlockedSlot) blockedSlotRow {
	row := blockedSlotRow{
		ID:           b.ID,
		Time:         b.Time,
		Duration:     b.Duration,
		Reason:       b.Reason,
		Professional: b.Professional,
		CreatedAt:    b.CreatedAt,
	}
	switch k := b.When.(type) {
	case domain.Dated:
		d := k.Date
		row.Date = &d
	case domain.Recurring:
		wd := int16(k.Weekday)
		row.Weekday = &wd
	}
	return row
}

func (r blockedSlotRow) toDomain() domain.BlockedSlot {
	b := domain.BlockedSlot{
		ID:           r.ID,
		Time:         r.Time,
		Duration:     r.Duration,
		Reason:       r.Reason,
		Professional: r.Professional,
		CreatedAt:    r.CreatedAt,
	}
	switch {
	case r.Date != nil && !r.Date.IsZero():
		b.When = domain.Dated{Date: *r.Date}
	case r.Weekday != nil:
		b.When = domain.Recurring{Weekday: time.Weekday(*r.Weekday)}
	}
	return b
}

type BlockedSlotRepo struct {
	db    bun.IDB
	notes store.Notifier
}

func NewBlockedSlotRepo(db bun.IDB) *BlockedSlotRepo {
	return &BlockedSlotRepo{db: db}
}

var _ store.BlockedSlotStore = (*BlockedSlotRepo)(nil)

func (r *BlockedSlotRepo) ListBlockedSlots(ctx context.Context) ([]domain.BlockedSlot, error) {
	var rows []blockedSlotRow
	err := conn(ctx, r.db).NewSelect().
		Model(&rows).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BlockedSlot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *BlockedSlotRepo) AddBlockedSlot(ctx context.Context, slot domain.BlockedSlot) (domain.BlockedSlot, error) {
	if err := slot.Validate(); err != nil {
		return domain.BlockedSlot{}, err
	}
	row := toBlockedSlotRow(slot)
	if _, err := conn(ctx, r.db).NewInsert().Model(&row).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.BlockedSlot{}, store.ErrConflict
		}
		return domain.BlockedSlot{}, err
	}

	afterCommit(ctx, func() { r.notes.Publish(store.Change{Entity: store.EntityBlockedSlot, Kind: store.ChangeCreated, ID: row.ID}) })
	return row.toDomain(), nil
}

func (r *BlockedSlotRepo) RemoveBlockedSlot(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).NewDelete().
		Model((*blockedSlotRow)(nil)).
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

	afterCommit(ctx, func() { r.notes.Publish(store.Change{Entity: store.EntityBlockedSlot, Kind: store.ChangeDeleted, ID: id}) })
	return nil
}

func (r *BlockedSlotRepo) Subscribe(fn func(store.Change)) func() {
	return r.notes.Subscribe(fn)
}
