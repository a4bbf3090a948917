package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"faas/internal/runtime"
)

// fakeDriver is a minimal in-memory stand-in for runtime.Driver, letting
// these tests exercise Maintain's dead/excess/stranded partition logic
// without a Docker daemon.
type fakeDriver struct {
	mu sync.Mutex

	runCount int32
	runErr   error
	created  []string
	statusOf map[string]runtime.ContainerStatus
	stopped  []string
	removed  []string
	listing  []runtime.ContainerSummary
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{statusOf: make(map[string]runtime.ContainerStatus)}
}

func (d *fakeDriver) Run(ctx context.Context, opts runtime.RunOptions) (*runtime.Container, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runErr != nil {
		return nil, d.runErr
	}
	n := atomic.AddInt32(&d.runCount, 1)
	id := opts.Image + "-" + string(rune('0'+n))
	d.created = append(d.created, id)
	d.statusOf[id] = runtime.StatusRunning
	return &runtime.Container{ID: id, Image: opts.Image, Status: runtime.StatusRunning}, nil
}

func (d *fakeDriver) Exec(ctx context.Context, c *runtime.Container, cmd []string, env []string) (*runtime.ExecResult, error) {
	return &runtime.ExecResult{ExitCode: 0}, nil
}

func (d *fakeDriver) Stats(ctx context.Context, c *runtime.Container) (*runtime.StatsResult, error) {
	return &runtime.StatsResult{}, nil
}

func (d *fakeDriver) Reload(ctx context.Context, c *runtime.Container) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statusOf[c.ID]
	if !ok {
		c.Status = runtime.StatusOther
		return errors.New("not found")
	}
	c.Status = st
	return nil
}

func (d *fakeDriver) Stop(ctx context.Context, c *runtime.Container) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, c.ID)
	return nil
}

func (d *fakeDriver) Remove(ctx context.Context, c *runtime.Container) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, c.ID)
	delete(d.statusOf, c.ID)
	return nil
}

func (d *fakeDriver) List(ctx context.Context, f runtime.ListFilters) ([]runtime.ContainerSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listing, nil
}

func (d *fakeDriver) setStatus(id string, st runtime.ContainerStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusOf[id] = st
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaintainRefillsToPoolSize(t *testing.T) {
	driver := newFakeDriver()
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 2, MaxConcurrentStart: 2})

	fn := FunctionSpec{ID: 1, ImageName: "python-function", PoolSize: 2}
	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("Maintain failed: %v", err)
	}

	snap := pool.Snapshot()
	if len(snap[1]) != 2 {
		t.Fatalf("expected pool to be refilled to 2, got %d", len(snap[1]))
	}
}

func TestMaintainIsIdempotent(t *testing.T) {
	driver := newFakeDriver()
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 2, MaxConcurrentStart: 2})

	fn := FunctionSpec{ID: 1, ImageName: "python-function", PoolSize: 2}
	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("first Maintain failed: %v", err)
	}
	firstCreated := driver.runCount

	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("second Maintain failed: %v", err)
	}
	if driver.runCount != firstCreated {
		t.Errorf("second Maintain call created more containers: %d -> %d", firstCreated, driver.runCount)
	}
	snap := pool.Snapshot()
	if len(snap[1]) != 2 {
		t.Fatalf("expected pool size to remain 2 after idempotent Maintain, got %d", len(snap[1]))
	}
}

func TestMaintainEvictsDeadContainers(t *testing.T) {
	driver := newFakeDriver()
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 2, MaxConcurrentStart: 2})

	fn := FunctionSpec{ID: 1, ImageName: "python-function", PoolSize: 2}
	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("initial Maintain failed: %v", err)
	}

	snap := pool.Snapshot()
	dead := snap[1][0]
	driver.setStatus(dead, runtime.StatusOther)

	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("second Maintain failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // disposeAsync runs in a goroutine

	snap = pool.Snapshot()
	for _, id := range snap[1] {
		if id == dead {
			t.Errorf("dead container %q should have been evicted", dead)
		}
	}
	if len(snap[1]) != 2 {
		t.Fatalf("expected pool refilled back to 2 after eviction, got %d", len(snap[1]))
	}

	found := false
	driver.mu.Lock()
	for _, id := range driver.removed {
		if id == dead {
			found = true
		}
	}
	driver.mu.Unlock()
	if !found {
		t.Errorf("expected dead container %q to have been stopped+removed", dead)
	}
}

func TestMaintainTrimsExcessToPoolSize(t *testing.T) {
	driver := newFakeDriver()
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 1, MaxConcurrentStart: 2})

	pool.Release(1, &WarmContainer{ContainerID: "x1", ImageName: "python-function", Status: "running"})
	pool.Release(1, &WarmContainer{ContainerID: "x2", ImageName: "python-function", Status: "running"})
	driver.setStatus("x1", runtime.StatusRunning)
	driver.setStatus("x2", runtime.StatusRunning)

	fn := FunctionSpec{ID: 1, ImageName: "python-function", PoolSize: 1}
	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("Maintain failed: %v", err)
	}

	snap := pool.Snapshot()
	if len(snap[1]) != 1 {
		t.Fatalf("expected excess container trimmed to PoolSize=1, got %d", len(snap[1]))
	}
	if snap[1][0] != "x1" {
		t.Errorf("expected the head (oldest) container x1 to survive, got %q", snap[1][0])
	}
}

func TestMaintainEntersCooldownAfterRepeatedFailures(t *testing.T) {
	driver := newFakeDriver()
	driver.runErr = errors.New("daemon down")
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 3, MaxConcurrentStart: 3, FailureCooldown: time.Minute})

	// A single tick needing all 3 slots and failing all 3 creations crosses
	// the maintainer's failures>=3 threshold in one call.
	fn := FunctionSpec{ID: 1, ImageName: "python-function", PoolSize: 3}
	if err := m.Maintain(context.Background(), fn); err != nil {
		t.Fatalf("Maintain returned unexpected top-level error: %v", err)
	}

	if !m.inCooldown(1) {
		t.Error("expected maintainer to enter cooldown after 3 creation failures in one tick")
	}
}

func TestDropAndDisposeEmptiesQueueAndStopsContainers(t *testing.T) {
	driver := newFakeDriver()
	pool := NewPool()
	m := NewMaintainer(driver, pool, testLogger(), PoolConfig{PoolSize: 2})

	pool.Release(5, &WarmContainer{ContainerID: "z1"})
	pool.Release(5, &WarmContainer{ContainerID: "z2"})

	m.DropAndDispose(context.Background(), 5)

	if snap := pool.Snapshot(); len(snap[5]) != 0 {
		t.Errorf("expected pool[5] empty after DropAndDispose, got %v", snap[5])
	}
	if len(driver.stopped) != 2 || len(driver.removed) != 2 {
		t.Errorf("expected both containers stopped and removed, got stopped=%v removed=%v", driver.stopped, driver.removed)
	}
}
