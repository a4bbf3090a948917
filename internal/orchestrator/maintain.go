package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"faas/internal/monitor"
	"faas/internal/runtime"

	"github.com/google/uuid"
)

// Maintainer reconciles one function's pool to PoolSize (spec §4.2). Its
// queue-mutation steps go through Pool's own lock; everything slow (driver
// Reload/Run/Stop/Remove/List) runs outside any lock, following the
// teacher's orchestrator.Pool.maintainPool split between "decide under the
// lock" and "act outside it".
type Maintainer struct {
	driver runtime.Driver
	pool   *Pool
	logger *slog.Logger
	cfg    PoolConfig

	cooldownMu sync.Mutex
	cooldownAt map[int64]time.Time

	strandedMu   sync.Mutex
	strandedSeen map[string]int
}

func NewMaintainer(driver runtime.Driver, pool *Pool, logger *slog.Logger, cfg PoolConfig) *Maintainer {
	return &Maintainer{
		driver:       driver,
		pool:         pool,
		logger:       logger.With("component", "maintainer"),
		cfg:          cfg,
		cooldownAt:   make(map[int64]time.Time),
		strandedSeen: make(map[string]int),
	}
}

// Maintain is idempotent: calling it twice back-to-back with no interleaved
// activity is a no-op the second time (spec §8 property 7).
func (m *Maintainer) Maintain(ctx context.Context, fn FunctionSpec) error {
	poolSize := fn.PoolSize
	if poolSize <= 0 {
		poolSize = m.cfg.PoolSize
	}

	snapshot := m.pool.snapshotQueue(fn.ID)

	live := make([]*WarmContainer, 0, len(snapshot))
	dead := make([]*WarmContainer, 0)
	for _, wc := range snapshot {
		c := &runtime.Container{ID: wc.ContainerID, Image: wc.ImageName}
		if err := m.driver.Reload(ctx, c); err != nil || !c.Status.IsLive() {
			dead = append(dead, wc)
			continue
		}
		wc.Status = string(c.Status)
		live = append(live, wc)
	}

	if len(live) > poolSize {
		dead = append(dead, live[poolSize:]...)
		live = live[:poolSize]
	}

	needed := poolSize - len(live)
	if needed > 0 && !m.inCooldown(fn.ID) {
		created, failures := m.refill(ctx, fn, needed)
		live = append(live, created...)
		if failures >= 3 {
			m.setCooldown(fn.ID)
		}
	}

	m.pool.replaceQueue(fn.ID, live)

	for _, wc := range dead {
		m.disposeAsync(wc.ContainerID)
	}

	m.reconcileStranded(ctx, fn, live)
	return nil
}

func (m *Maintainer) MaintainAll(ctx context.Context, fns []FunctionSpec) {
	for _, fn := range fns {
		if err := m.Maintain(ctx, fn); err != nil {
			m.logger.Error("maintain failed", "function_id", fn.ID, "error", err)
		}
	}
}

// refill starts up to `needed` new warm containers with bounded
// concurrency, grounded on the teacher's maintainPool semaphore pattern.
func (m *Maintainer) refill(ctx context.Context, fn FunctionSpec, needed int) ([]*WarmContainer, int) {
	sem := make(chan struct{}, m.cfg.MaxConcurrentStart)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int32

	created := make([]*WarmContainer, 0, needed)

	for i := 0; i < needed; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			wc, err := m.startWarmContainer(ctx, fn)
			if err != nil {
				m.logger.Error("failed to start warm container", "function_id", fn.ID, "error", err)
				monitor.ContainerCreationErrors.Inc()
				atomic.AddInt32(&failures, 1)
				return
			}

			mu.Lock()
			created = append(created, wc)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return created, int(failures)
}

func (m *Maintainer) startWarmContainer(ctx context.Context, fn FunctionSpec) (*WarmContainer, error) {
	memLimit := fn.ContainerMemory
	if memLimit <= 0 {
		memLimit = m.cfg.ContainerMemory
	}
	netMode := fn.NetworkMode
	if netMode == "" {
		netMode = m.cfg.NetworkMode
	}

	c, err := m.driver.Run(ctx, runtime.RunOptions{
		Name:    "faas-warm-" + uuid.NewString(),
		Image:   fn.ImageName,
		Command: []string{"sleep", "infinity"},
		Mounts: []runtime.Mount{
			{HostPath: fn.SharedVolume, ContainerPath: "/functions", ReadOnly: true},
		},
		MemoryLimit: memLimit,
		NetworkMode: netMode,
		Labels: map[string]string{
			"managed_by":  "faas",
			"function_id": idLabel(fn.ID),
		},
		FunctionID: fn.ID,
	})
	if err != nil {
		return nil, err
	}

	if m.cfg.SettleDelay > 0 {
		select {
		case <-time.After(m.cfg.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &WarmContainer{
		ContainerID: c.ID,
		FunctionID:  fn.ID,
		ImageName:   fn.ImageName,
		Status:      string(c.Status),
		CreatedAt:   time.Now(),
	}, nil
}

// reconcileStranded lists every container ancestored by fn's image and
// disposes any that belong to no pool queue. A container is only disposed
// after two consecutive reconciliation passes over its image have seen it
// as a stranded candidate (spec §9's mitigation for the race between two
// concurrent Maintain calls on functions sharing an image), since a
// container mid-creation in another goroutine's refill is briefly invisible
// to every queue. Functions sharing an image each run a pass, so such a
// container can reach that count within a single warmup tick.
func (m *Maintainer) reconcileStranded(ctx context.Context, fn FunctionSpec, justEnqueued []*WarmContainer) {
	owned := m.pool.allLiveIDs()
	for _, wc := range justEnqueued {
		owned[wc.ContainerID] = struct{}{}
	}

	listed, err := m.driver.List(ctx, runtime.ListFilters{Ancestor: fn.ImageName})
	if err != nil {
		m.logger.Warn("stranded list failed", "function_id", fn.ID, "error", err)
		return
	}

	candidates := make(map[string]struct{}, len(listed))
	listedIDs := make(map[string]struct{}, len(listed))
	for _, c := range listed {
		listedIDs[c.ID] = struct{}{}
		if _, ok := owned[c.ID]; ok {
			continue
		}
		if !c.Status.IsLive() {
			continue // belt-and-braces: don't touch containers another worker may still be bringing up
		}
		candidates[c.ID] = struct{}{}
	}

	m.strandedMu.Lock()
	for id := range m.strandedSeen {
		if _, inThisImage := listedIDs[id]; !inThisImage {
			continue // counted by a pass over another image
		}
		if _, stillCandidate := candidates[id]; !stillCandidate {
			delete(m.strandedSeen, id)
		}
	}
	toReap := make([]string, 0)
	for id := range candidates {
		m.strandedSeen[id]++
		if m.strandedSeen[id] >= 2 {
			toReap = append(toReap, id)
			delete(m.strandedSeen, id)
		}
	}
	m.strandedMu.Unlock()

	for _, id := range toReap {
		m.logger.Info("reaping stranded container", "container_id", id, "function_id", fn.ID)
		monitor.StrandedContainersReaped.Inc()
		m.disposeAsync(id)
	}
}

func (m *Maintainer) disposeAsync(containerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c := &runtime.Container{ID: containerID}
		if err := m.driver.Stop(ctx, c); err != nil {
			m.logger.Warn("failed to stop container", "container_id", containerID, "error", err)
		}
		if err := m.driver.Remove(ctx, c); err != nil {
			m.logger.Warn("failed to remove container", "container_id", containerID, "error", err)
		}
	}()
}

func (m *Maintainer) inCooldown(functionID int64) bool {
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	until, ok := m.cooldownAt[functionID]
	return ok && time.Now().Before(until)
}

func (m *Maintainer) setCooldown(functionID int64) {
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	m.cooldownAt[functionID] = time.Now().Add(m.cfg.FailureCooldown)
}

// DropAndDispose empties functionID's queue and synchronously stops+removes
// every container in it (spec §4.5 delete_function: "drain pool").
func (m *Maintainer) DropAndDispose(ctx context.Context, functionID int64) {
	for _, wc := range m.pool.Drop(functionID) {
		c := &runtime.Container{ID: wc.ContainerID}
		if err := m.driver.Stop(ctx, c); err != nil {
			m.logger.Warn("delete: failed to stop container", "container_id", wc.ContainerID, "error", err)
		}
		if err := m.driver.Remove(ctx, c); err != nil {
			m.logger.Warn("delete: failed to remove container", "container_id", wc.ContainerID, "error", err)
		}
	}
}

// Drain stops and removes every container in every queue (spec §4.6
// shutdown hook), synchronously so callers can wait for it to finish.
func (m *Maintainer) Drain(ctx context.Context) {
	for _, fid := range m.pool.allFunctionIDs() {
		for _, wc := range m.pool.Drop(fid) {
			c := &runtime.Container{ID: wc.ContainerID}
			if err := m.driver.Stop(ctx, c); err != nil {
				m.logger.Warn("drain: failed to stop container", "container_id", wc.ContainerID, "error", err)
			}
			if err := m.driver.Remove(ctx, c); err != nil {
				m.logger.Warn("drain: failed to remove container", "container_id", wc.ContainerID, "error", err)
			}
		}
	}
}
