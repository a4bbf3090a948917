package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Pool     PoolConfig
	Worker   WorkerConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Addr     string
	User     string
	Password string
	Database string
}

// PoolConfig holds the non-negotiable resource caps of spec.md §5 plus the
// knobs spec.md §6 names as recognized configuration.
type PoolConfig struct {
	Size                 int
	WarmupInterval       time.Duration
	ContainerMemoryMB    int64
	ContainerNetworkMode string
	SharedVolumeRoot     string
	SettleDelay          time.Duration
	MaxConcurrentStart   int
	FailureCooldown      time.Duration
}

type WorkerConfig struct {
	Concurrency int
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

// Load populates Config from the environment, falling back to the
// defaults spec.md §6 names. Mirrors the teacher's config.Load: one
// getEnv/getIntEnv/... call per field, no validation framework.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Addr:     getEnv("POSTGRES_ADDR", "localhost:5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "faas"),
		},
		Pool: PoolConfig{
			Size:                 getIntEnv("POOL_SIZE", 2),
			WarmupInterval:       getDurationEnv("WARMUP_INTERVAL_SECONDS", 40*time.Second),
			ContainerMemoryMB:    int64(getIntEnv("CONTAINER_MEMORY_LIMIT_MB", 128)),
			ContainerNetworkMode: getEnv("CONTAINER_NETWORK_MODE", "none"),
			SharedVolumeRoot:     getEnv("SHARED_VOLUME_ROOT", "/functions"),
			SettleDelay:          getDurationEnv("HANDLER_SETTLE_DELAY", time.Second),
			MaxConcurrentStart:   getIntEnv("POOL_MAX_CONCURRENT_START", 3),
			FailureCooldown:      getDurationEnv("POOL_FAILURE_COOLDOWN", time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency: getIntEnv("WORKER_CONCURRENCY", 5),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
