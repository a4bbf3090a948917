package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"faas/internal/metrics"
	"faas/internal/monitor"
	"faas/internal/orchestrator"
	"faas/internal/registry"
	"faas/internal/runtime"

	"github.com/google/uuid"
)

// Resolver is the narrow view of the registry the Invoker needs: look up a
// function by route or id. Kept separate from *registry.Bridge so this
// package doesn't require the whole bridge surface.
type Resolver interface {
	GetByID(ctx context.Context, id int64) (*registry.Function, error)
	GetByRoute(ctx context.Context, route string) (*registry.Function, error)
}

// Recorder persists one InvocationRecord per attempt.
type Recorder interface {
	Save(ctx context.Context, r *metrics.InvocationRecord) error
}

// Result is the outcome handed back to the HTTP layer.
type Result struct {
	StatusCode int // HTTP status: 200, 400, or 500
	Output     string
	Error      string
}

// Invoker is the control plane's invocation core (spec §4.4): resolve
// function, borrow-or-create a container, exec the handler, record exactly
// one metric, and always either release the container back to the pool or
// dispose of it.
type Invoker struct {
	pool       orchestrator.IPool
	driver     runtime.Driver
	resolver   Resolver
	recorder   Recorder
	poolCfg    orchestrator.PoolConfig
	volumeRoot string
	logger     *slog.Logger
}

func New(pool orchestrator.IPool, driver runtime.Driver, resolver Resolver, recorder Recorder, poolCfg orchestrator.PoolConfig, volumeRoot string, logger *slog.Logger) *Invoker {
	return &Invoker{
		pool:       pool,
		driver:     driver,
		resolver:   resolver,
		recorder:   recorder,
		poolCfg:    poolCfg,
		volumeRoot: volumeRoot,
		logger:     logger.With("component", "invoker"),
	}
}

// InvokeByRoute resolves route → function, then invokes.
func (in *Invoker) InvokeByRoute(ctx context.Context, route string, payload any) (Result, error) {
	fn, err := in.resolver.GetByRoute(ctx, route)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Result{}, registry.ErrNotFound
		}
		return Result{}, err
	}
	return in.invoke(ctx, fn, payload), nil
}

// InvokeByID resolves id → function, then invokes.
func (in *Invoker) InvokeByID(ctx context.Context, id int64, payload any) (Result, error) {
	fn, err := in.resolver.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Result{}, registry.ErrNotFound
		}
		return Result{}, err
	}
	return in.invoke(ctx, fn, payload), nil
}

// invoke runs the full ten-step algorithm. It never returns an error: every
// outcome, including failure to acquire a container at all, is expressed as
// a Result plus a persisted metric record.
func (in *Invoker) invoke(ctx context.Context, fn *registry.Function, payload any) Result {
	t0 := time.Now()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	c, fromPool, err := in.acquireOrStart(ctx, fn)
	if err != nil {
		return in.recordAndReturn(ctx, fn, time.Since(t0), nil, 500, "", err.Error(), len(payloadJSON), nil, nil)
	}
	if !fromPool {
		monitor.ColdStarts.Inc()
	}

	container := &runtime.Container{ID: c.ContainerID, Image: fn.ImageName, Status: runtime.ContainerStatus(c.Status)}
	if err := in.driver.Reload(ctx, container); err != nil || !container.Status.IsLive() {
		in.disposeQuiet(context.Background(), container)
		reason := "container is not live after reload"
		if err != nil {
			reason = err.Error()
		}
		return in.recordAndReturn(ctx, fn, time.Since(t0), &c.ContainerID, 500, "", reason, len(payloadJSON), nil, nil)
	}

	preStats, _ := in.driver.Stats(ctx, container)

	cmd, err := handlerCommand(fn)
	if err != nil {
		in.disposeQuiet(context.Background(), container)
		return in.recordAndReturn(ctx, fn, time.Since(t0), &c.ContainerID, 500, "", err.Error(), len(payloadJSON), nil, nil)
	}

	// execCtx is deliberately detached from the inbound (HTTP request-scoped)
	// ctx: spec §5 requires that request cancellation never retract a
	// running exec, only the function's own declared timeout may cut it
	// short.
	execCtx := context.Background()
	cancel := func() {}
	if fn.TimeoutSeconds > 0 {
		execCtx, cancel = context.WithTimeout(context.Background(), time.Duration(fn.TimeoutSeconds)*time.Second)
	}
	defer cancel()

	execResult, execErr := in.driver.Exec(execCtx, container, cmd, []string{"PAYLOAD=" + string(payloadJSON)})
	execElapsed := time.Since(t0)

	postStats, _ := in.driver.Stats(context.Background(), container)
	cpuPct, memMB := combineStats(preStats, postStats)

	if execErr != nil {
		in.disposeQuiet(context.Background(), container)
		return in.recordAndReturn(ctx, fn, execElapsed, &c.ContainerID, 500, "", execErr.Error(), len(payloadJSON), cpuPct, memMB)
	}

	output := string(bytes.TrimRight(execResult.Output, "\n"))

	if execResult.ExitCode == 0 {
		in.releaseQuiet(fn.ID, c, container)
		return in.recordAndReturn(ctx, fn, execElapsed, &c.ContainerID, 0, output, "", len(payloadJSON), cpuPct, memMB)
	}

	in.disposeQuiet(context.Background(), container)
	return in.recordAndReturn(ctx, fn, execElapsed, &c.ContainerID, execResult.ExitCode, "", output, len(payloadJSON), cpuPct, memMB)
}

// acquireOrStart borrows a warm container, cold-starting one with the exact
// parameters the maintainer uses (spec §4.4 step 2) when the pool is empty.
func (in *Invoker) acquireOrStart(ctx context.Context, fn *registry.Function) (*orchestrator.WarmContainer, bool, error) {
	start := time.Now()
	if wc, ok := in.pool.Acquire(fn.ID); ok {
		monitor.PoolAcquisitionLatency.Observe(time.Since(start).Seconds())
		return wc, true, nil
	}
	monitor.PoolAcquisitionLatency.Observe(time.Since(start).Seconds())

	c, err := in.driver.Run(ctx, runtime.RunOptions{
		Name:    "faas-cold-" + uuid.NewString(),
		Image:   fn.ImageName,
		Command: []string{"sleep", "infinity"},
		Mounts: []runtime.Mount{
			{HostPath: in.volumeRoot, ContainerPath: "/functions", ReadOnly: true},
		},
		MemoryLimit: in.poolCfg.ContainerMemory,
		NetworkMode: in.poolCfg.NetworkMode,
		Labels: map[string]string{
			"managed_by":  "faas",
			"function_id": fmt.Sprintf("%d", fn.ID),
		},
		FunctionID: fn.ID,
	})
	if err != nil {
		return nil, false, err
	}

	if in.poolCfg.SettleDelay > 0 {
		select {
		case <-time.After(in.poolCfg.SettleDelay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	return &orchestrator.WarmContainer{
		ContainerID: c.ID,
		FunctionID:  fn.ID,
		ImageName:   fn.ImageName,
		Status:      string(c.Status),
		CreatedAt:   time.Now(),
	}, false, nil
}

func (in *Invoker) releaseQuiet(functionID int64, wc *orchestrator.WarmContainer, c *runtime.Container) {
	wc.Status = string(c.Status)
	in.pool.Release(functionID, wc)
}

func (in *Invoker) disposeQuiet(ctx context.Context, c *runtime.Container) {
	if err := in.driver.Stop(ctx, c); err != nil {
		in.logger.Warn("failed to stop container after invocation", "container_id", c.ID, "error", err)
	}
	if err := in.driver.Remove(ctx, c); err != nil {
		in.logger.Warn("failed to remove container after invocation", "container_id", c.ID, "error", err)
	}
}

func (in *Invoker) recordAndReturn(ctx context.Context, fn *registry.Function, elapsed time.Duration, containerID *string, statusCode int, output, errMsg string, payloadSize int, cpuPct, memMB *float64) Result {
	rec := &metrics.InvocationRecord{
		FunctionID:      fn.ID,
		Timestamp:       time.Now(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		StatusCode:      statusCode,
		ContainerID:     containerID,
		MemoryUsageMB:   memMB,
		CPUUsagePercent: cpuPct,
		PayloadSize:     payloadSize,
	}
	if errMsg != "" {
		rec.Error = &errMsg
	}

	if err := in.recorder.Save(ctx, rec); err != nil {
		in.logger.Error("failed to persist invocation record", "function_id", fn.ID, "error", err)
	}

	outcome := "success"
	httpStatus := 200
	switch {
	case statusCode == 0:
		outcome = "success"
		httpStatus = 200
	case statusCode >= 500:
		outcome = "driver_error"
		httpStatus = 500
	default:
		outcome = "function_error"
		httpStatus = 400
	}
	monitor.InvocationsTotal.WithLabelValues(outcome).Inc()
	monitor.InvocationDuration.Observe(elapsed.Seconds())
	if memMB != nil {
		monitor.InvocationMemoryMB.Observe(*memMB)
	}

	return Result{StatusCode: httpStatus, Output: output, Error: errMsg}
}

// handlerCommand builds the exec command for a function's language (spec
// §4.4 step 5).
func handlerCommand(fn *registry.Function) ([]string, error) {
	switch fn.Language {
	case "python":
		return []string{"python", fmt.Sprintf("/functions/%d/handler.py", fn.ID)}, nil
	case "javascript":
		return []string{"node", fmt.Sprintf("/functions/%d/handler.js", fn.ID)}, nil
	default:
		return nil, fmt.Errorf("unsupported language %q", fn.Language)
	}
}

// combineStats nils out anything stats collection couldn't produce rather
// than propagating a zero value (spec §4.4 step 6).
func combineStats(pre, post *runtime.StatsResult) (cpuPct, memMB *float64) {
	if post != nil {
		cpuPct = post.CPUUsagePercent
		memMB = post.MemoryUsageMB
	}
	if cpuPct == nil && pre != nil {
		cpuPct = pre.CPUUsagePercent
	}
	if memMB == nil && pre != nil {
		memMB = pre.MemoryUsageMB
	}
	return cpuPct, memMB
}
