package invoker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"faas/internal/invoker"
	"faas/internal/metrics"
	"faas/internal/orchestrator"
	"faas/internal/registry"
	"faas/internal/runtime"
)

type fakePool struct {
	queue    []*orchestrator.WarmContainer
	released []*orchestrator.WarmContainer
	dropped  []*orchestrator.WarmContainer
}

func (p *fakePool) Acquire(functionID int64) (*orchestrator.WarmContainer, bool) {
	if len(p.queue) == 0 {
		return nil, false
	}
	wc := p.queue[0]
	p.queue = p.queue[1:]
	return wc, true
}

func (p *fakePool) Release(functionID int64, c *orchestrator.WarmContainer) {
	p.released = append(p.released, c)
}

func (p *fakePool) Drop(functionID int64) []*orchestrator.WarmContainer {
	dropped := p.queue
	p.queue = nil
	return dropped
}

func (p *fakePool) Snapshot() map[int64][]string { return nil }

type fakeDriver struct {
	runErr       error
	reloadStatus runtime.ContainerStatus
	reloadErr    error
	execResult   *runtime.ExecResult
	execErr      error
	execCtxErr   error // ctx.Err() observed by Exec, for cancellation-detachment assertions
	stopped      []string
	removed      []string
}

func (d *fakeDriver) Run(ctx context.Context, opts runtime.RunOptions) (*runtime.Container, error) {
	if d.runErr != nil {
		return nil, d.runErr
	}
	return &runtime.Container{ID: "cold-started", Image: opts.Image, Status: runtime.StatusRunning}, nil
}

func (d *fakeDriver) Exec(ctx context.Context, c *runtime.Container, cmd []string, env []string) (*runtime.ExecResult, error) {
	d.execCtxErr = ctx.Err()
	if d.execErr != nil {
		return nil, d.execErr
	}
	return d.execResult, nil
}

func (d *fakeDriver) Stats(ctx context.Context, c *runtime.Container) (*runtime.StatsResult, error) {
	return &runtime.StatsResult{}, nil
}

func (d *fakeDriver) Reload(ctx context.Context, c *runtime.Container) error {
	if d.reloadErr != nil {
		return d.reloadErr
	}
	c.Status = d.reloadStatus
	return nil
}

func (d *fakeDriver) Stop(ctx context.Context, c *runtime.Container) error {
	d.stopped = append(d.stopped, c.ID)
	return nil
}

func (d *fakeDriver) Remove(ctx context.Context, c *runtime.Container) error {
	d.removed = append(d.removed, c.ID)
	return nil
}

func (d *fakeDriver) List(ctx context.Context, filters runtime.ListFilters) ([]runtime.ContainerSummary, error) {
	return nil, nil
}

type fakeResolver struct {
	fn  *registry.Function
	err error
}

func (r *fakeResolver) GetByID(ctx context.Context, id int64) (*registry.Function, error) {
	return r.fn, r.err
}

func (r *fakeResolver) GetByRoute(ctx context.Context, route string) (*registry.Function, error) {
	return r.fn, r.err
}

type fakeRecorder struct {
	saved []*metrics.InvocationRecord
}

func (r *fakeRecorder) Save(ctx context.Context, rec *metrics.InvocationRecord) error {
	r.saved = append(r.saved, rec)
	return nil
}

func testFunction() *registry.Function {
	return &registry.Function{ID: 1, Name: "echo", Route: "/echo", Language: "python", ImageName: "python-function"}
}

func TestInvokeByRoute_WarmSuccessReusesContainer(t *testing.T) {
	pool := &fakePool{queue: []*orchestrator.WarmContainer{{ContainerID: "warm-1", FunctionID: 1, Status: "running"}}}
	driver := &fakeDriver{reloadStatus: runtime.StatusRunning, execResult: &runtime.ExecResult{ExitCode: 0, Output: []byte("ok\n")}}
	resolver := &fakeResolver{fn: testFunction()}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := inv.InvokeByRoute(context.Background(), "/echo", map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected 200, got %d", result.StatusCode)
	}
	if result.Output != "ok" {
		t.Errorf("expected output %q, got %q", "ok", result.Output)
	}
	if len(pool.released) != 1 || pool.released[0].ContainerID != "warm-1" {
		t.Errorf("expected container to be released back to pool, got %+v", pool.released)
	}
	if len(recorder.saved) != 1 || recorder.saved[0].StatusCode != 0 {
		t.Fatalf("expected one success record, got %+v", recorder.saved)
	}
}

func TestInvoke_NonZeroExitDisposesAndReturns400(t *testing.T) {
	pool := &fakePool{queue: []*orchestrator.WarmContainer{{ContainerID: "warm-1", FunctionID: 1, Status: "running"}}}
	driver := &fakeDriver{reloadStatus: runtime.StatusRunning, execResult: &runtime.ExecResult{ExitCode: 1, Output: []byte("boom\n")}}
	resolver := &fakeResolver{fn: testFunction()}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := inv.InvokeByID(context.Background(), 1, map[string]int{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 400 {
		t.Errorf("expected 400, got %d", result.StatusCode)
	}
	if result.Error != "boom" {
		t.Errorf("expected error %q, got %q", "boom", result.Error)
	}
	if len(pool.released) != 0 {
		t.Errorf("container should not be released to pool after non-zero exit")
	}
	if len(driver.stopped) != 1 || len(driver.removed) != 1 {
		t.Errorf("expected container to be stopped and removed, got stopped=%v removed=%v", driver.stopped, driver.removed)
	}
	if len(recorder.saved) != 1 || recorder.saved[0].StatusCode != 1 {
		t.Fatalf("expected one record with status_code=1, got %+v", recorder.saved)
	}
}

func TestInvoke_DriverDownOnColdStartRecords500(t *testing.T) {
	pool := &fakePool{} // empty: forces cold start
	driver := &fakeDriver{runErr: errors.New("daemon unavailable")}
	resolver := &fakeResolver{fn: testFunction()}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := inv.InvokeByRoute(context.Background(), "/echo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 500 {
		t.Errorf("expected 500, got %d", result.StatusCode)
	}
	if len(recorder.saved) != 1 {
		t.Fatalf("expected exactly one record on cold-start failure, got %d", len(recorder.saved))
	}
	if recorder.saved[0].ContainerID != nil {
		t.Errorf("expected nil container_id on creation failure, got %v", *recorder.saved[0].ContainerID)
	}
}

func TestInvoke_UnknownRouteReturnsNotFound(t *testing.T) {
	pool := &fakePool{}
	driver := &fakeDriver{}
	resolver := &fakeResolver{err: registry.ErrNotFound}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := inv.InvokeByRoute(context.Background(), "/missing", nil)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(recorder.saved) != 0 {
		t.Errorf("expected no metric record for an unresolved route")
	}
}

func TestInvoke_DeadContainerReloadedDisposedAndDoesNotLeak(t *testing.T) {
	pool := &fakePool{queue: []*orchestrator.WarmContainer{{ContainerID: "stale-1", FunctionID: 1, Status: "running"}}}
	driver := &fakeDriver{reloadStatus: runtime.StatusOther}
	resolver := &fakeResolver{fn: testFunction()}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, _ := inv.InvokeByID(context.Background(), 1, nil)
	if result.StatusCode != 500 {
		t.Errorf("expected 500 for a dead container, got %d", result.StatusCode)
	}
	if len(driver.stopped) != 1 || len(driver.removed) != 1 {
		t.Errorf("expected dead container to be disposed, got stopped=%v removed=%v", driver.stopped, driver.removed)
	}
	if len(pool.released) != 0 {
		t.Errorf("a dead container must never be released back to the pool")
	}
}

// TestInvoke_ExecSurvivesRequestCancellation exercises spec §5's "HTTP
// request cancellation does not retract a running exec": a caller that
// disconnects mid-invocation must not abort the container's exec, and the
// invocation must still record a normal outcome.
func TestInvoke_ExecSurvivesRequestCancellation(t *testing.T) {
	pool := &fakePool{queue: []*orchestrator.WarmContainer{{ContainerID: "warm-1", FunctionID: 1, Status: "running"}}}
	driver := &fakeDriver{reloadStatus: runtime.StatusRunning, execResult: &runtime.ExecResult{ExitCode: 0, Output: []byte("ok\n")}}
	resolver := &fakeResolver{fn: testFunction()}
	recorder := &fakeRecorder{}

	inv := invoker.New(pool, driver, resolver, recorder, orchestrator.DefaultPoolConfig(), "/vol", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // simulate the client disconnecting before the exec step runs

	result, err := inv.InvokeByRoute(ctx, "/echo", map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected exec to complete despite a cancelled inbound context, got status %d (error=%q)", result.StatusCode, result.Error)
	}
	if driver.execCtxErr != nil {
		t.Errorf("expected Exec's context to be detached from the cancelled inbound context, got %v", driver.execCtxErr)
	}
	if len(recorder.saved) != 1 || recorder.saved[0].StatusCode != 0 {
		t.Fatalf("expected one success record, got %+v", recorder.saved)
	}
}
