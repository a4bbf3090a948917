package runtime

import "errors"

var (
	ErrContainerNotFound    = errors.New("container not found")
	ErrContainerStartFailed = errors.New("failed to start container")
	ErrExecFailed           = errors.New("exec failed")
	ErrStatsUnavailable     = errors.New("stats unavailable")
)
