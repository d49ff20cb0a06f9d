package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
	"clinicflow/backend/migrations"
)

func TestPostgresIntegration_AppointmentLifecycleAndBlockedSlots(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("CLINICFLOW_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CLINICFLOW_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "clinicflow_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		appts := NewAppointmentRepo(tx)
		a, err := appts.CreateAppointment(ctx, domain.Appointment{
			PatientName:  "Ana",
			Professional: "Dr. X",
			Date:         domain.MustParseDate("2024-01-15"),
			Time:         "09:00",
			Duration:     30,
			Type:         domain.TypeConsultation,
			Modality:     domain.ModalityInPerson,
		})
		if err != nil {
			return err
		}

		moved, err := appts.RescheduleAppointment(ctx, a.ID, domain.MustParseDate("2024-01-16"), "10:15")
		if err != nil {
			return err
		}
		if moved.ID != a.ID || moved.Duration != 30 || moved.Date.String() != "2024-01-16" {
			return fmt.Errorf("moved = %+v, want same id and duration on 2024-01-16", moved)
		}

		if _, err := appts.ConfirmAppointment(ctx, a.ID); err != nil {
			return err
		}
		if _, err := appts.ConfirmAppointment(ctx, a.ID); !errors.Is(err, store.ErrInvalidTransition) {
			return fmt.Errorf("second confirm err = %v, want %v", err, store.ErrInvalidTransition)
		}

		rows, err := appts.ListAppointments(ctx, domain.MustParseDate("2024-01-16"), domain.MustParseDate("2024-01-16"))
		if err != nil {
			return err
		}
		if len(rows) != 1 || rows[0].Status != domain.StatusConfirmed {
			return fmt.Errorf("rows = %+v, want one confirmed appointment", rows)
		}

		blocks := NewBlockedSlotRepo(tx)
		lunch, err := blocks.AddBlockedSlot(ctx, domain.BlockedSlot{
			When:     domain.Recurring{Weekday: time.Monday},
			Time:     "12:00",
			Duration: 60,
			Reason:   domain.ClinicLunchReason,
		})
		if err != nil {
			return err
		}
		if _, err := blocks.AddBlockedSlot(ctx, domain.BlockedSlot{
			When:         domain.Dated{Date: domain.MustParseDate("2024-01-17")},
			Time:         "15:00",
			Duration:     30,
			Reason:       "Maintenance",
			Professional: "Dr. X",
		}); err != nil {
			return err
		}
		if err := blocks.RemoveBlockedSlot(ctx, lunch.ID); err != nil {
			return err
		}
		left, err := blocks.ListBlockedSlots(ctx)
		if err != nil {
			return err
		}
		if len(left) != 1 || left[0].When != (domain.Dated{Date: domain.MustParseDate("2024-01-17")}) {
			return fmt.Errorf("left = %+v, want the dated block only", left)
		}

		return appts.DeleteAppointment(ctx, a.ID)
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	names, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(b), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}
