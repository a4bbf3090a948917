package orchestrator

import "time"

// FunctionSpec is the subset of a registry Function the orchestrator needs
// to maintain its pool. Kept separate from internal/registry's Function
// type so this package never imports the registry (the registry bridge
// calls into the orchestrator, not the other way around).
type FunctionSpec struct {
	ID              int64
	ImageName       string
	SharedVolume    string // host path mounted read-only at /functions
	PoolSize        int
	ContainerMemory int64 // bytes
	NetworkMode     string
}

// WarmContainer is a pool-owned handle on a pre-started container (spec §3).
type WarmContainer struct {
	ContainerID string
	FunctionID  int64
	ImageName   string
	Status      string // mirrors runtime.ContainerStatus at time of insertion
	CreatedAt   time.Time
}

// PoolConfig holds the values that are identical for every warm container
// regardless of function (spec §5's non-negotiable resource caps).
type PoolConfig struct {
	PoolSize           int
	ContainerMemory    int64 // bytes, default 128 MiB
	NetworkMode        string // default "none"
	SettleDelay        time.Duration
	MaxConcurrentStart int // bounded refill concurrency
	FailureCooldown    time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		PoolSize:           2,
		ContainerMemory:    128 * 1024 * 1024,
		NetworkMode:        "none",
		SettleDelay:        time.Second,
		MaxConcurrentStart: 3,
		FailureCooldown:    time.Minute,
	}
}
