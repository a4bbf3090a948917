package server

import (
	"context"
	"fmt"
	"log/slog"

	"faas/internal/config"
	"faas/internal/metrics"
	"faas/internal/registry"

	"github.com/docker/docker/client"
	"github.com/go-pg/pg/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Dependency owns every infrastructure handle the control plane needs:
// the Docker client backing internal/runtime, Redis (registry cache +
// asynq broker), Postgres (registry + metric stores), and the asynq Redis
// connection options for the warmup scheduler and worker. Grounded on the teacher's InitDeps: ping every
// dependency at startup, tear down whatever was already opened on the
// first failure.
type Dependency struct {
	Docker     *client.Client
	Redis      *redis.Client
	PG         *pg.DB
	AsynqRedis asynq.RedisConnOpt
	Logger     *slog.Logger
}

func InitDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependency, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("docker ping: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("redis ping (%s): %w", cfg.Redis.Addr, err)
	}

	pgDB := pg.Connect(&pg.Options{
		Addr:     cfg.Postgres.Addr,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
	})
	if _, err := pgDB.Exec("SELECT 1"); err != nil {
		redisClient.Close()
		dockerClient.Close()
		return nil, fmt.Errorf("postgres ping (%s): %w", cfg.Postgres.Addr, err)
	}

	registryStore := registry.NewStore(pgDB, redisClient)
	if err := registryStore.EnsureSchema(); err != nil {
		pgDB.Close()
		redisClient.Close()
		dockerClient.Close()
		return nil, fmt.Errorf("ensure function schema: %w", err)
	}

	metricsStore := metrics.NewStore(pgDB)
	if err := metricsStore.EnsureSchema(); err != nil {
		pgDB.Close()
		redisClient.Close()
		dockerClient.Close()
		return nil, fmt.Errorf("ensure invocation schema: %w", err)
	}

	asynqRedisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	return &Dependency{
		Docker:     dockerClient,
		Redis:      redisClient,
		PG:         pgDB,
		AsynqRedis: asynqRedisOpt,
		Logger:     logger,
	}, nil
}

func (d *Dependency) Close() {
	if d.PG != nil {
		d.PG.Close()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.Docker != nil {
		d.Docker.Close()
	}
}
