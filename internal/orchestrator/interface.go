package orchestrator

// IPool is the surface the Invoker needs from the Pool (spec §4.1). A
// narrow interface so invoker tests can fake it without a real Pool.
type IPool interface {
	Acquire(functionID int64) (*WarmContainer, bool)
	Release(functionID int64, c *WarmContainer)
	Drop(functionID int64) []*WarmContainer
	Snapshot() map[int64][]string
}
