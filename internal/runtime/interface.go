package runtime

import "context"

// Driver is the only capability surface the invocation core needs from the
// container runtime (spec §6). It is implemented by DockerDriver, and is
// the seam integration tests fake against.
type Driver interface {
	Run(ctx context.Context, opts RunOptions) (*Container, error)
	Exec(ctx context.Context, c *Container, cmd []string, env []string) (*ExecResult, error)
	Stats(ctx context.Context, c *Container) (*StatsResult, error)
	Reload(ctx context.Context, c *Container) error
	Stop(ctx context.Context, c *Container) error
	Remove(ctx context.Context, c *Container) error
	List(ctx context.Context, filters ListFilters) ([]ContainerSummary, error)
}
