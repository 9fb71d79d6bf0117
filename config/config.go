package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jcailloux/relais-core/backendconn"
	"github.com/jcailloux/relais-core/logging"
	"github.com/joeycumines/logiface"
)

// Config holds everything the relay needs to dial its two backends and
// size its pools and cache, per spec.md 6.
type Config struct {
	PGHost     string
	PGPort     int
	PGDatabase string
	PGUser     string
	PGPassword string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	PGPoolSize    int
	RedisPoolSize int

	CacheCapacity      int
	CacheGhostCapacity int

	LogLevel logiface.Level
}

// defaults mirror the teacher's command entry points: a local PG on 5432, a
// local Redis on 6379, small fixed pools sized for a single relay instance.
const (
	defaultPGPort         = 5432
	defaultPGDatabase     = "postgres"
	defaultPGUser         = "postgres"
	defaultRedisPort      = 6379
	defaultPoolSize       = 8
	defaultCacheCapacity  = 64 << 20 // 64 MiB of artifact bytes
	defaultGhostCapacity  = 4096
	defaultRedisPoolSize  = 8
	defaultPGHostFallback = "localhost"
)

// Load reads Config from the process environment. Missing values fall back
// to the defaults above; malformed numeric values are reported as errors
// rather than silently ignored.
func Load() (Config, error) {
	var c Config
	c.PGHost = envOr("PG_HOST", defaultPGHostFallback)
	c.PGDatabase = envOr("PG_DB", defaultPGDatabase)
	c.PGUser = envOr("PG_USER", defaultPGUser)
	c.PGPassword = os.Getenv("PG_PASSWORD")

	c.RedisHost = envOr("REDIS_HOST", defaultPGHostFallback)
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")

	var err error
	if c.PGPort, err = envOrInt("PG_PORT", defaultPGPort); err != nil {
		return Config{}, err
	}
	if c.RedisPort, err = envOrInt("REDIS_PORT", defaultRedisPort); err != nil {
		return Config{}, err
	}
	if c.PGPoolSize, err = envOrInt("PG_POOL_SIZE", defaultPoolSize); err != nil {
		return Config{}, err
	}
	if c.RedisPoolSize, err = envOrInt("REDIS_POOL_SIZE", defaultRedisPoolSize); err != nil {
		return Config{}, err
	}
	if c.CacheCapacity, err = envOrInt("CACHE_CAPACITY_BYTES", defaultCacheCapacity); err != nil {
		return Config{}, err
	}
	if c.CacheGhostCapacity, err = envOrInt("CACHE_GHOST_CAPACITY", defaultGhostCapacity); err != nil {
		return Config{}, err
	}

	c.LogLevel = logging.ParseLevel(os.Getenv("LOG_LEVEL"))

	if c.PGPoolSize <= 0 {
		return Config{}, fmt.Errorf("config: PG_POOL_SIZE must be positive, got %d", c.PGPoolSize)
	}
	if c.RedisPoolSize <= 0 {
		return Config{}, fmt.Errorf("config: REDIS_POOL_SIZE must be positive, got %d", c.RedisPoolSize)
	}
	if c.CacheCapacity <= 0 {
		return Config{}, fmt.Errorf("config: CACHE_CAPACITY_BYTES must be positive, got %d", c.CacheCapacity)
	}

	return c, nil
}

// PGConnConfig adapts the PG fields to backendconn's connection config, so
// callers don't hand-assemble a KV connection string just to re-parse it.
func (c Config) PGConnConfig() backendconn.PGConnConfig {
	return backendconn.PGConnConfig{
		Host:     c.PGHost,
		Port:     c.PGPort,
		Database: c.PGDatabase,
		User:     c.PGUser,
		Password: c.PGPassword,
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
