package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"faas/internal/api"
	"faas/internal/config"
	"faas/internal/invoker"
	"faas/internal/metrics"
	"faas/internal/monitor"
	"faas/internal/orchestrator"
	"faas/internal/registry"
	"faas/internal/runtime"

	"github.com/hibiken/asynq"
)

// Server wires the control plane's components together and owns the
// lifecycle hooks spec.md §4.6 describes: on Start, bring the warmup
// scheduler up; on Shutdown, cancel it and drain every pool (spec §4.6,
// §8 property 4 — no container leaks after shutdown).
type Server struct {
	cfg *config.Config

	httpServer  *http.Server
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux

	pool       *orchestrator.Pool
	maintainer *orchestrator.Maintainer
	warmup     *orchestrator.Warmup
	driver     runtime.Driver
	bridge     *registry.Bridge

	warmupCancel context.CancelFunc
	logger       *slog.Logger
}

func NewServer(cfg *config.Config, deps *Dependency) *Server {
	logger := deps.Logger

	driver := runtime.NewDockerDriver(deps.Docker, logger)
	pool := orchestrator.NewPool()
	poolCfg := toOrchestratorPoolConfig(cfg.Pool)

	maintainer := orchestrator.NewMaintainer(driver, pool, logger, poolCfg)

	regStore := registry.NewStore(deps.PG, deps.Redis)
	handlerStore := registry.NewHandlerStore(cfg.Pool.SharedVolumeRoot, cfg.Pool.SettleDelay)
	bridge := registry.NewBridge(regStore, handlerStore, maintainer, poolCfg, cfg.Pool.SharedVolumeRoot)

	metricsStore := metrics.NewStore(deps.PG)

	inv := invoker.New(pool, driver, bridge, metricsStore, poolCfg, cfg.Pool.SharedVolumeRoot, logger)

	warmup := orchestrator.NewWarmup(deps.AsynqRedis, maintainer, pool, driver, bridge, cfg.Pool.WarmupInterval, logger)

	asynqServer := asynq.NewServer(deps.AsynqRedis, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Logger:      newAsynqLogger(logger),
	})
	mux := asynq.NewServeMux()
	if err := warmup.Register(mux); err != nil {
		logger.Error("failed to register warmup task", "error", err)
	}

	router := api.NewRouter(bridge, inv, metricsStore, pool)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		cfg:         cfg,
		httpServer:  httpServer,
		asynqServer: asynqServer,
		asynqMux:    mux,
		pool:        pool,
		maintainer:  maintainer,
		warmup:      warmup,
		driver:      driver,
		bridge:      bridge,
		logger:      logger,
	}
}

// Start runs the API server, the asynq worker draining warmup ticks, the
// Prometheus metrics server, and the warmup scheduler itself — then blocks
// until ctx is cancelled or the HTTP server fails outright.
func (s *Server) Start(ctx context.Context) error {
	if err := s.warmupBootstrap(ctx); err != nil {
		s.logger.Warn("initial pool bootstrap failed, warmup loop will retry", "error", err)
	}

	warmupCtx, cancel := context.WithCancel(ctx)
	s.warmupCancel = cancel
	s.warmup.Start(warmupCtx)

	s.logger.Info("starting asynq worker", "concurrency", s.cfg.Worker.Concurrency)
	if err := s.asynqServer.Start(s.asynqMux); err != nil {
		s.logger.Error("asynq worker failed to start", "error", err)
	}

	go func() {
		if err := monitor.StartMetricsServer(ctx, s.cfg.Metrics.Addr, s.pool, s.logger); err != nil {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining...")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// warmupBootstrap runs one maintain pass over every registered function at
// startup, so the pool isn't empty for the first request of each function
// (spec §4.6 "Startup: ensure schema, launch Warmup").
func (s *Server) warmupBootstrap(ctx context.Context) error {
	specs, err := s.bridge.ListFunctionSpecs(ctx)
	if err != nil {
		return err
	}
	s.maintainer.MaintainAll(ctx, specs)
	return nil
}

// Shutdown cancels the warmup loop, drains every pool queue, and sweeps for
// containers stranded outside any queue, ancestored by a known function
// image (spec §4.6's belt-and-braces reap).
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.warmupCancel != nil {
		s.warmupCancel()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.asynqServer.Shutdown()

	s.maintainer.Drain(shutdownCtx)
	s.reapStrandedOnShutdown(shutdownCtx)

	s.logger.Info("server stopped gracefully")
	return nil
}

func (s *Server) reapStrandedOnShutdown(ctx context.Context) {
	specs, err := s.bridge.ListFunctionSpecs(ctx)
	if err != nil {
		s.logger.Warn("shutdown stranded sweep: failed to list functions", "error", err)
		return
	}
	seenImages := make(map[string]struct{})
	for _, fn := range specs {
		if _, ok := seenImages[fn.ImageName]; ok {
			continue
		}
		seenImages[fn.ImageName] = struct{}{}

		containers, err := s.driver.List(ctx, runtime.ListFilters{Ancestor: fn.ImageName})
		if err != nil {
			s.logger.Warn("shutdown stranded sweep: list failed", "image", fn.ImageName, "error", err)
			continue
		}
		for _, c := range containers {
			_ = s.driver.Stop(ctx, &runtime.Container{ID: c.ID})
			_ = s.driver.Remove(ctx, &runtime.Container{ID: c.ID})
		}
	}
}

func toOrchestratorPoolConfig(p config.PoolConfig) orchestrator.PoolConfig {
	return orchestrator.PoolConfig{
		PoolSize:           p.Size,
		ContainerMemory:    p.ContainerMemoryMB * 1024 * 1024,
		NetworkMode:        p.ContainerNetworkMode,
		SettleDelay:        p.SettleDelay,
		MaxConcurrentStart: p.MaxConcurrentStart,
		FailureCooldown:    p.FailureCooldown,
	}
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug("", "msg", args) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info("", "msg", args) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn("", "msg", args) }
func (a *asynqLogger) Error(args ...any) { a.l.Error("", "msg", args) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error("FATAL", "msg", args) }
