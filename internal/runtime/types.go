package runtime

import "time"

// ContainerStatus mirrors the subset of Docker's reported container states
// the pool cares about. Anything outside {Created, Running} is treated as
// dead and triggers eviction.
type ContainerStatus string

const (
	StatusCreated ContainerStatus = "created"
	StatusRunning ContainerStatus = "running"
	StatusOther   ContainerStatus = "other"
)

// IsLive reports whether a status keeps a container eligible for the pool.
func (s ContainerStatus) IsLive() bool {
	return s == StatusCreated || s == StatusRunning
}

// Mount describes a single bind mount into a container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// RunOptions configures a new container. Every invocation-path and warmup
// container is created with exactly these fields populated the same way
// (memory cap, disabled network, read-only handler volume) per spec §5.
type RunOptions struct {
	Name         string // container name, caller-generated (uuid) to avoid Docker's random default
	Image        string
	Command      []string
	Env          []string
	Mounts       []Mount
	MemoryLimit  int64 // bytes
	NetworkMode  string
	Labels       map[string]string
	FunctionID   int64
}

// Container is an opaque handle returned by Run. Callers must not assume
// anything about its internal representation beyond ID and Status.
type Container struct {
	ID     string
	Image  string
	Status ContainerStatus
}

// ExecResult is the outcome of execing a command inside a running container.
type ExecResult struct {
	ExitCode int
	Output   []byte // combined stdout+stderr
	Duration time.Duration
}

// StatsResult is the parsed, ready-to-persist form of the driver's raw stats
// response. Fields are pointers so "unavailable" can be distinguished from
// zero (spec §4.4 step 6: stat collection failures yield nulls, never abort
// the invocation).
type StatsResult struct {
	CPUUsagePercent *float64
	MemoryUsageMB   *float64
}

// ListFilters narrows Driver.List for stranded-container reconciliation.
type ListFilters struct {
	Ancestor string
	Labels   map[string]string
}

// ContainerSummary is the lightweight view List returns, enough to decide
// whether a container is stranded without a full inspect.
type ContainerSummary struct {
	ID     string
	Image  string
	Status ContainerStatus
	Labels map[string]string
}
