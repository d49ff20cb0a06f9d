package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"clinicflow/backend/internal/api"
	"clinicflow/backend/internal/config"
	"clinicflow/backend/internal/lock"
	"clinicflow/backend/internal/logging"
	"clinicflow/backend/internal/scheduleconfig"
	"clinicflow/backend/internal/store"
	"clinicflow/backend/internal/store/memory"
	"clinicflow/backend/internal/store/postgres"
)

type dependencies struct {
	appts     store.AppointmentStore
	blocks    store.BlockedSlotStore
	schedules scheduleconfig.Provider
	// editor is set only when schedules live in Redis.
	editor *scheduleconfig.RedisStore
	locker    lock.Locker
	checks    []api.Check

	db    *bun.DB
	redis *redis.Client
}

// wire opens the configured backends. On error everything opened so far is
// closed again.
func wire(ctx context.Context, cfg config.Config, log *slog.Logger) (deps *dependencies, err error) {
	deps = &dependencies{}
	defer func() {
		if err != nil {
			deps.close(log)
		}
	}()

	switch cfg.StoreBackend {
	case config.StorePostgres:
		log.Info("connecting to database", logging.Database(cfg.DatabaseURL))
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return deps, fmt.Errorf("database: %w", err)
		}
		deps.db = db
		deps.appts = postgres.NewAppointmentRepo(db)
		deps.blocks = postgres.NewBlockedSlotRepo(db)
		deps.checks = append(deps.checks, api.Check{Name: "postgres", Required: true, Ping: db.PingContext})
	default:
		deps.appts = memory.NewAppointmentStore()
		deps.blocks = memory.NewBlockedSlotStore()
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		deps.redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return deps, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		required := cfg.ScheduleSource == config.ScheduleRedis || cfg.EffectiveLockBackend() == config.LockRedis
		deps.checks = append(deps.checks, api.RedisCheck(client, required))
	}

	switch cfg.ScheduleSource {
	case config.ScheduleRedis:
		rs := scheduleconfig.NewRedisStore(deps.redis)
		if err := rs.Seed(ctx, cfg.Schedule); err != nil {
			return deps, err
		}
		deps.schedules = rs
		deps.editor = rs
	default:
		deps.schedules = cfg.Schedule
	}

	switch cfg.EffectiveLockBackend() {
	case config.LockRedis:
		deps.locker = lock.NewRedis(deps.redis, cfg.LockTTL, cfg.LockRetry)
	case config.LockPostgres:
		deps.locker = postgres.NewAdvisoryLocker(deps.db)
	default:
		deps.locker = lock.NewLocal()
	}
	return deps, nil
}

func (d *dependencies) close(log *slog.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
		d.redis = nil
	}
	if d.db != nil {
		if err := postgres.Close(d.db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
		d.db = nil
	}
}
