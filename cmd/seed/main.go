package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"clinicflow/backend/internal/clock"
	"clinicflow/backend/internal/config"
	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/logging"
	"clinicflow/backend/internal/scheduleconfig"
	"clinicflow/backend/internal/service/appointments"
	"clinicflow/backend/internal/service/blockedslots"
	"clinicflow/backend/internal/store"
	"clinicflow/backend/internal/store/memory"
	"clinicflow/backend/internal/store/postgres"
)

var fallbackProfessionals = []string{"Dr. Ana Souza", "Dr. Bruno Lima", "Dr. Carla Dias"}

var (
	appointmentTypes = []domain.AppointmentType{
		domain.TypeConsultation, domain.TypeReturn, domain.TypeFirstVisit, domain.TypeSurgery, domain.TypeExam,
	}
	durations = []int{30, 30, 45, 60}
)

func main() {
	days := flag.Int("days", 14, "number of days to fill, starting tomorrow")
	perDay := flag.Int("per-day", 6, "booking attempts per professional per day")
	seed := flag.Uint64("seed", 0, "random seed; 0 picks one")
	flag.Parse()

	log := logging.New("clinicflow-seed", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		appts  store.AppointmentStore
		blocks store.BlockedSlotStore
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 4})
		if err != nil {
			log.Error("database connection failed", slog.Any("err", err), logging.Database(cfg.DatabaseURL))
			os.Exit(1)
		}
		defer func() { _ = postgres.Close(db) }()
		appts, blocks = postgres.NewAppointmentRepo(db), postgres.NewBlockedSlotRepo(db)
	default:
		log.Warn("memory store selected; seeded data is discarded on exit")
		appts, blocks = memory.NewAppointmentStore(), memory.NewBlockedSlotStore()
	}

	clk, err := clock.New(cfg.ClinicTimezone, time.Now)
	if err != nil {
		log.Error("clinic clock failed", slog.Any("err", err))
		os.Exit(1)
	}

	if _, err := blockedslots.New(blocks, cfg.Schedule, blockedslots.WithLogger(log)).Bootstrap(ctx); err != nil {
		log.Error("lunch block bootstrap failed", slog.Any("err", err))
		os.Exit(1)
	}

	svc := appointments.NewService(appts, blocks, clk, appointments.WithLogger(log))
	s := seeder{
		svc:    svc,
		faker:  gofakeit.New(*seed),
		config: cfg.Schedule,
	}

	stats, err := s.run(ctx, clk.Today().AddDays(1), *days, *perDay)
	if err != nil {
		log.Error("seed failed", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("seed complete",
		slog.Int("created", stats.created),
		slog.Int("skipped_conflicts", stats.conflicts),
	)
}

type seeder struct {
	svc    *appointments.Service
	faker  *gofakeit.Faker
	config *scheduleconfig.Static
}

type seedStats struct {
	created   int
	conflicts int
}

func (s seeder) professionals() []domain.ProfessionalSchedule {
	if len(s.config.Professionals) > 0 {
		return s.config.Professionals
	}
	out := make([]domain.ProfessionalSchedule, len(fallbackProfessionals))
	for i, name := range fallbackProfessionals {
		out[i] = domain.ProfessionalSchedule{Name: name, Week: s.config.Clinic}
	}
	return out
}

func (s seeder) run(ctx context.Context, from domain.Date, days, perDay int) (seedStats, error) {
	var stats seedStats
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		for _, p := range s.professionals() {
			day := p.Week.Day(d.Weekday())
			if !day.Enabled {
				continue
			}
			start, errStart := domain.ParseClock(day.Start)
			end, errEnd := domain.ParseClock(day.End)
			if errStart != nil || errEnd != nil || end-start < 60 {
				continue
			}
			for n := 0; n < perDay; n++ {
				duration := durations[s.faker.Number(0, len(durations)-1)]
				slots := (end - start - duration) / 15
				if slots < 0 {
					continue
				}
				at := start + 15*s.faker.Number(0, slots)

				_, err := s.svc.Create(ctx, appointments.CreateInput{
					PatientName:  s.faker.Name(),
					Professional: p.Name,
					Date:         d,
					Time:         domain.FormatClock(at),
					Duration:     duration,
					Type:         appointmentTypes[s.faker.Number(0, len(appointmentTypes)-1)],
					Modality:     modality(s.faker.Number(0, 3)),
				})
				var conflictErr *appointments.ConflictError
				switch {
				case err == nil:
					stats.created++
				case errors.As(err, &conflictErr):
					stats.conflicts++
				default:
					return stats, err
				}
			}
		}
	}
	return stats, nil
}

func modality(n int) domain.Modality {
	if n == 0 {
		return domain.ModalityRemote
	}
	return domain.ModalityInPerson
}
