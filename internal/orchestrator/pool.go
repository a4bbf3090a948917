package orchestrator

import (
	"strconv"
	"sync"

	"faas/internal/monitor"
)

var _ IPool = (*Pool)(nil)

// Pool is the single process-wide instance described in spec.md §9: a
// mutex-guarded map from function id to an ordered queue of warm
// containers. The lock protects only the map mutation — every driver call
// (run/stop/remove/stats/exec) happens outside it, in the Maintainer or the
// Invoker, exactly as spec §5 requires. This mirrors the locking discipline
// of the teacher's orchestrator.Pool, but the teacher pool is one shared
// LIFO stack with a global capacity-token channel; this one is keyed FIFO
// queues per function, with no global cap beyond each queue's own
// PoolSize (spec §3 Invariant C, §4.1 FIFO tie-break).
type Pool struct {
	mu     sync.Mutex
	queues map[int64][]*WarmContainer
}

func NewPool() *Pool {
	return &Pool{queues: make(map[int64][]*WarmContainer)}
}

// Acquire removes and returns the front of function's queue, FIFO. A miss
// (empty queue) signals the caller to cold-start (spec §4.1).
func (p *Pool) Acquire(functionID int64) (*WarmContainer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[functionID]
	if len(q) == 0 {
		return nil, false
	}
	c := q[0]
	p.queues[functionID] = q[1:]
	monitor.PoolWarmCount.WithLabelValues(idLabel(functionID)).Set(float64(len(p.queues[functionID])))
	return c, true
}

// Release appends c to the back of function's queue. Callers must have
// already verified c's status is live (spec §4.1: "caller must have
// verified status ∈ {created, running}").
func (p *Pool) Release(functionID int64, c *WarmContainer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queues[functionID] = append(p.queues[functionID], c)
	monitor.PoolWarmCount.WithLabelValues(idLabel(functionID)).Set(float64(len(p.queues[functionID])))
}

// Drop removes function's entire queue and returns its contents for the
// caller to dispose (stop + remove). Used by delete_function and shutdown.
func (p *Pool) Drop(functionID int64) []*WarmContainer {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[functionID]
	delete(p.queues, functionID)
	monitor.PoolWarmCount.DeleteLabelValues(idLabel(functionID))
	return q
}

// Snapshot returns a consistent, copied view of every queue's container
// ids, for diagnostics (spec §4.1) and for the warmup tick's ping pass.
func (p *Pool) Snapshot() map[int64][]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int64][]string, len(p.queues))
	for fid, q := range p.queues {
		ids := make([]string, len(q))
		for i, c := range q {
			ids[i] = c.ContainerID
		}
		out[fid] = ids
	}
	return out
}

// replaceQueue atomically swaps function's queue for a maintained one. Used
// only by the Maintainer after it has resolved live/dead/excess outside the
// lock. Maintain calls are not serialized per function: when two overlap
// for the same function, the queue published last replaces the other's.
func (p *Pool) replaceQueue(functionID int64, q []*WarmContainer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(q) == 0 {
		delete(p.queues, functionID)
	} else {
		p.queues[functionID] = q
	}
	monitor.PoolWarmCount.WithLabelValues(idLabel(functionID)).Set(float64(len(q)))
}

// snapshotQueue returns a shallow copy of function's queue, for the
// Maintainer to inspect outside the lock.
func (p *Pool) snapshotQueue(functionID int64) []*WarmContainer {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[functionID]
	cp := make([]*WarmContainer, len(q))
	copy(cp, q)
	return cp
}

// allLiveIDs returns every container id currently sitting in any queue,
// used by stranded-container reconciliation to avoid killing a container
// another function's pool already owns.
func (p *Pool) allLiveIDs() map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]struct{})
	for _, q := range p.queues {
		for _, c := range q {
			out[c.ContainerID] = struct{}{}
		}
	}
	return out
}

// allFunctionIDs returns the functions currently tracked, for shutdown
// drain.
func (p *Pool) allFunctionIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int64, 0, len(p.queues))
	for fid := range p.queues {
		ids = append(ids, fid)
	}
	return ids
}

func idLabel(functionID int64) string {
	return strconv.FormatInt(functionID, 10)
}
