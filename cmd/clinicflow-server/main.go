package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"

	"clinicflow/backend/internal/api"
	"clinicflow/backend/internal/calendar"
	"clinicflow/backend/internal/clock"
	"clinicflow/backend/internal/config"
	"clinicflow/backend/internal/logging"
	"clinicflow/backend/internal/metrics"
	"clinicflow/backend/internal/reschedule"
	"clinicflow/backend/internal/service/appointments"
	"clinicflow/backend/internal/service/blockedslots"
	grpcTransport "clinicflow/backend/internal/transport/grpc"
)

const serviceName = "clinicflow-server"

func main() {
	log := logging.New(serviceName, "info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = logging.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("admin_addr", cfg.AdminAddr),
		slog.String("store", cfg.StoreBackend),
		slog.String("schedule_source", cfg.ScheduleSource),
		slog.String("lock", cfg.EffectiveLockBackend()),
		slog.String("config_file", cfg.ConfigFile),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer deps.close(log)

	clk, err := clock.New(cfg.ClinicTimezone, time.Now)
	if err != nil {
		log.Error("clinic clock failed", slog.Any("err", err), slog.String("zone", cfg.ClinicTimezone))
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	svc := appointments.NewService(deps.appts, deps.blocks, clk,
		appointments.WithLocker(deps.locker),
		appointments.WithLogger(log),
		appointments.WithMetrics(m),
	)
	syncer := blockedslots.New(deps.blocks, deps.schedules,
		blockedslots.WithLocker(deps.locker),
		blockedslots.WithLogger(log),
		blockedslots.WithMetrics(m),
	)
	projector, err := calendar.NewProjector(deps.appts, deps.blocks, clk, calendar.Options{
		FirstHour:   cfg.FirstHour,
		LastHour:    cfg.LastHour,
		RowHeightPx: cfg.RowHeightPx,
		WeekStart:   cfg.WeekStart,
	}, calendar.WithLogger(log), calendar.WithMetrics(m))
	if err != nil {
		log.Error("calendar options invalid", slog.Any("err", err))
		os.Exit(1)
	}
	bounds := reschedule.Bounds{FirstHour: cfg.FirstHour, LastHour: cfg.LastHour}
	newEngine := func() *reschedule.Engine {
		return reschedule.New(svc, clk, bounds, reschedule.WithLogger(log), reschedule.WithMetrics(m))
	}

	if _, err := syncer.Bootstrap(ctx); err != nil {
		log.Error("lunch block bootstrap failed", slog.Any("err", err))
		os.Exit(1)
	}

	scheduler, err := startLunchSync(cfg.LunchSyncCron, syncer, log)
	if err != nil {
		log.Error("lunch sync schedule invalid", slog.Any("err", err), slog.String("spec", cfg.LunchSyncCron))
		os.Exit(1)
	}

	deadlines := grpcTransport.Deadlines{
		Default: cfg.GRPCRequestTimeout,
		PerMethod: map[string]time.Duration{
			grpcTransport.Method("SetSchedule"): cfg.GRPCSyncTimeout,
		},
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			deadlines.Unary(),
			grpcTransport.AccessLog(log),
		),
	)
	schedulingDeps := grpcTransport.Deps{
		Booking:   svc,
		NewEngine: newEngine,
		Projector: projector,
		Sync:      syncer,
		WatchTick: time.Minute,
		Log:       log,
	}
	if deps.editor != nil {
		schedulingDeps.Schedules = deps.editor
	}
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, grpcTransport.NewSchedulingServer(schedulingDeps))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	admin := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: api.NewRouter(api.RouterConfig{
			Checks:   deps.checks,
			Gatherer: prometheus.DefaultGatherer,
			Log:      log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("admin_addr", cfg.AdminAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
		}
	}

	stopLunchSync(scheduler, log)
	shutdown(log, grpcServer, admin, cfg.ShutdownTimeout)
}

func startLunchSync(spec string, syncer *blockedslots.Synchronizer, log *slog.Logger) (*cron.Cron, error) {
	if spec == "" {
		log.Info("periodic lunch sync disabled")
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		// SyncAll logs its own outcome.
		_, _ = syncer.SyncAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Info("periodic lunch sync scheduled", slog.String("spec", spec))
	return c, nil
}

func stopLunchSync(c *cron.Cron, log *slog.Logger) {
	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Info("periodic lunch sync stopped")
}

func shutdown(log *slog.Logger, s *grpc.Server, admin *http.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := admin.Shutdown(ctx); err != nil {
		log.Warn("admin http shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
