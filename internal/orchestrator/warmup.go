package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"faas/internal/runtime"
)

const WarmupTaskType = "warmup:tick"

// FunctionLister is the one registry capability the warmup loop needs: the
// current set of functions to maintain. Kept as a narrow interface here,
// the same way IPool keeps the invoker decoupled from the Pool's full
// surface, so this package never imports internal/registry.
type FunctionLister interface {
	ListFunctionSpecs(ctx context.Context) ([]FunctionSpec, error)
}

// Warmup is the background task described in spec §4.3: every Interval,
// maintain every function's pool, then issue a no-op ping against each
// resulting warm container so the OS doesn't freeze them as idle.
//
// The teacher has no periodic task of its own, but it already leans on
// asynq for background work off the request path (session creation is
// enqueued as an asynq.Task and drained by an asynq.Server). asynq ships a
// cron-backed Scheduler for exactly this "run this on an interval" shape,
// so the warmup tick rides the same queue infrastructure instead of a bare
// time.Ticker goroutine.
type Warmup struct {
	maintainer *Maintainer
	pool       *Pool
	driver     runtime.Driver
	lister     FunctionLister
	logger     *slog.Logger
	interval   time.Duration

	client    *asynq.Client
	scheduler *asynq.Scheduler
}

func NewWarmup(redisOpt asynq.RedisConnOpt, maintainer *Maintainer, pool *Pool, driver runtime.Driver, lister FunctionLister, interval time.Duration, logger *slog.Logger) *Warmup {
	return &Warmup{
		maintainer: maintainer,
		pool:       pool,
		driver:     driver,
		lister:     lister,
		logger:     logger.With("component", "warmup"),
		interval:   interval,
		client:     asynq.NewClient(redisOpt),
		scheduler:  asynq.NewScheduler(redisOpt, nil),
	}
}

// Register wires the tick handler into the shared asynq.ServeMux the
// asynq.Server drains, and schedules the recurring enqueue. Call before
// Start.
func (w *Warmup) Register(mux *asynq.ServeMux) error {
	mux.HandleFunc(WarmupTaskType, w.handleTick)

	spec := cronSpec(w.interval)
	if _, err := w.scheduler.Register(spec, asynq.NewTask(WarmupTaskType, nil)); err != nil {
		return err
	}
	return nil
}

// Start runs the cron scheduler until ctx is cancelled.
func (w *Warmup) Start(ctx context.Context) {
	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.logger.Error("warmup scheduler stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		_ = w.client.Close()
	}()
}

func (w *Warmup) handleTick(ctx context.Context, _ *asynq.Task) error {
	fns, err := w.lister.ListFunctionSpecs(ctx)
	if err != nil {
		w.logger.Error("warmup: failed to list functions", "error", err)
		return nil // transient listing errors must not poison the retry schedule
	}

	w.maintainer.MaintainAll(ctx, fns)

	for _, fn := range fns {
		for _, id := range w.pool.Snapshot()[fn.ID] {
			w.ping(ctx, id)
		}
	}
	return nil
}

// ping execs a static no-op instead of the handler file (spec §9 open
// question: running handler.py with no PAYLOAD manufactures spurious
// non-zero-exit metrics on every tick). A failed ping is logged, not
// treated as an eviction signal — the next Maintain call evicts if the
// driver itself reports the container dead.
func (w *Warmup) ping(ctx context.Context, containerID string) {
	c := &runtime.Container{ID: containerID}
	if _, err := w.driver.Exec(ctx, c, []string{"true"}, nil); err != nil {
		w.logger.Warn("warmup ping failed", "container_id", containerID, "error", err)
	}
}

// cronSpec renders a Go duration as the "@every" cron spec asynq.Scheduler
// accepts, keeping WARMUP_INTERVAL_SECONDS the single source of truth
// instead of a separate cron string in config.
func cronSpec(d time.Duration) string {
	return "@every " + d.String()
}
