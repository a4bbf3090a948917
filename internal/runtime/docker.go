package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

var _ Driver = (*DockerDriver)(nil)

// DockerDriver backs the Driver port with the Docker Engine API. It holds no
// state of its own beyond the client; all pool bookkeeping lives one layer
// up in internal/orchestrator.
type DockerDriver struct {
	client *client.Client
	logger *slog.Logger
}

func NewDockerDriver(cli *client.Client, logger *slog.Logger) *DockerDriver {
	return &DockerDriver{client: cli, logger: logger.With("component", "driver")}
}

func (d *DockerDriver) Run(ctx context.Context, opts RunOptions) (*Container, error) {
	if _, err := d.client.ImageInspect(ctx, opts.Image); errdefs.IsNotFound(err) {
		d.logger.Info("image not found, pulling", "image", opts.Image)
		reader, perr := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if perr != nil {
			return nil, fmt.Errorf("%w: pull %s: %v", ErrContainerStartFailed, opts.Image, perr)
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			d.logger.Warn("failed to drain image pull output", "error", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("inspect image: %w", err)
	}

	binds := make([]string, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, mode))
	}

	cfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    opts.Env,
		Labels: opts.Labels,
	}

	hostCfg := &container.HostConfig{
		Binds: binds,
		Resources: container.Resources{
			Memory: opts.MemoryLimit,
		},
		NetworkMode: container.NetworkMode(opts.NetworkMode),
		AutoRemove:  false,
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrContainerStartFailed, err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("%w: start: %v", ErrContainerStartFailed, err)
	}

	c := &Container{ID: resp.ID, Image: opts.Image, Status: StatusCreated}
	if err := d.Reload(ctx, c); err != nil {
		d.logger.Warn("failed to refresh status after start", "container_id", c.ID, "error", err)
	}

	d.logger.Info("container started", "container_id", c.ID, "image", opts.Image)
	return c, nil
}

func (d *DockerDriver) Exec(ctx context.Context, c *Container, cmd []string, env []string) (*ExecResult, error) {
	createResp, err := d.client.ContainerExecCreate(ctx, c.ID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		Tty:          false,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrExecFailed, err)
	}

	attachResp, err := d.client.ContainerExecAttach(ctx, createResp.ID, container.ExecAttachOptions{Tty: false})
	if err != nil {
		return nil, fmt.Errorf("%w: attach: %v", ErrExecFailed, err)
	}
	defer attachResp.Close()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&out, &out, attachResp.Reader)
		done <- copyErr
	}()

	select {
	case copyErr := <-done:
		if copyErr != nil {
			return nil, fmt.Errorf("%w: read output: %v", ErrExecFailed, copyErr)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inspect, err := d.client.ContainerExecInspect(ctx, createResp.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect: %v", ErrExecFailed, err)
	}

	return &ExecResult{ExitCode: inspect.ExitCode, Output: out.Bytes()}, nil
}

func (d *DockerDriver) Stats(ctx context.Context, c *Container) (*StatsResult, error) {
	resp, err := d.client.ContainerStats(ctx, c.ID, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	defer resp.Body.Close()

	var raw containerStatsPayload
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrStatsUnavailable, err)
	}

	result := &StatsResult{}

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage - raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemCPUUsage - raw.PreCPUStats.SystemCPUUsage)
	numCPUs := len(raw.CPUStats.CPUUsage.PercpuUsage)
	if systemDelta > 0 && cpuDelta >= 0 && numCPUs > 0 {
		pct := (cpuDelta / systemDelta) * float64(numCPUs) * 100
		result.CPUUsagePercent = &pct
	}

	if raw.MemoryStats.Usage > 0 {
		mb := float64(raw.MemoryStats.Usage) / (1 << 20)
		result.MemoryUsageMB = &mb
	}

	return result, nil
}

func (d *DockerDriver) Reload(ctx context.Context, c *Container) error {
	inspect, err := d.client.ContainerInspect(ctx, c.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			c.Status = StatusOther
			return ErrContainerNotFound
		}
		return fmt.Errorf("inspect: %w", err)
	}
	c.Status = mapStatus(string(inspect.State.Status))
	return nil
}

func (d *DockerDriver) Stop(ctx context.Context, c *Container) error {
	timeout := 5
	if err := d.client.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

func (d *DockerDriver) Remove(ctx context.Context, c *Container) error {
	if err := d.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func (d *DockerDriver) List(ctx context.Context, f ListFilters) ([]ContainerSummary, error) {
	args := filters.NewArgs()
	if f.Ancestor != "" {
		args.Add("ancestor", f.Ancestor)
	}
	for k, v := range f.Labels {
		args.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	containers, err := d.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	out := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		out = append(out, ContainerSummary{
			ID:     c.ID,
			Image:  c.Image,
			Status: mapStatus(c.State),
			Labels: c.Labels,
		})
	}
	return out, nil
}

// mapStatus compares against the raw state strings the Docker Engine API
// returns ("created", "running", ...) rather than SDK constants, matching
// the teacher's own string-literal comparisons (e.g. c.State == "running").
func mapStatus(s string) ContainerStatus {
	switch s {
	case "created":
		return StatusCreated
	case "running":
		return StatusRunning
	default:
		return StatusOther
	}
}

// containerStatsPayload mirrors the subset of the Docker stats JSON this
// driver needs (spec §6): cpu_stats/precpu_stats usage + memory_stats.usage.
type containerStatsPayload struct {
	CPUStats struct {
		CPUUsage struct {
			TotalUsage  uint64   `json:"total_usage"`
			PercpuUsage []uint64 `json:"percpu_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
	} `json:"cpu_stats"`
	PreCPUStats struct {
		CPUUsage struct {
			TotalUsage uint64 `json:"total_usage"`
		} `json:"cpu_usage"`
		SystemCPUUsage uint64 `json:"system_cpu_usage"`
	} `json:"precpu_stats"`
	MemoryStats struct {
		Usage uint64 `json:"usage"`
	} `json:"memory_stats"`
}
