package config

import (
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "localhost", c.PGHost)
	require.Equal(t, defaultPGPort, c.PGPort)
	require.Equal(t, defaultPGDatabase, c.PGDatabase)
	require.Equal(t, defaultPGUser, c.PGUser)
	require.Equal(t, "localhost", c.RedisHost)
	require.Equal(t, defaultRedisPort, c.RedisPort)
	require.Equal(t, defaultPoolSize, c.PGPoolSize)
	require.Equal(t, defaultRedisPoolSize, c.RedisPoolSize)
	require.Equal(t, defaultCacheCapacity, c.CacheCapacity)
	require.Equal(t, defaultGhostCapacity, c.CacheGhostCapacity)
	require.Equal(t, logiface.LevelInformational, c.LogLevel)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_DB", "relais")
	t.Setenv("PG_USER", "relay")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "7000")
	t.Setenv("PG_POOL_SIZE", "16")
	t.Setenv("CACHE_CAPACITY_BYTES", "1024")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "db.internal", c.PGHost)
	require.Equal(t, 6543, c.PGPort)
	require.Equal(t, "relais", c.PGDatabase)
	require.Equal(t, "relay", c.PGUser)
	require.Equal(t, "secret", c.PGPassword)
	require.Equal(t, "cache.internal", c.RedisHost)
	require.Equal(t, 7000, c.RedisPort)
	require.Equal(t, 16, c.PGPoolSize)
	require.Equal(t, 1024, c.CacheCapacity)
	require.Equal(t, logiface.LevelDebug, c.LogLevel)

	pg := c.PGConnConfig()
	require.Equal(t, "db.internal", pg.Host)
	require.Equal(t, 6543, pg.Port)
	require.Equal(t, "relais", pg.Database)
}

func TestLoadRejectsMalformedPort(t *testing.T) {
	t.Setenv("PG_PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositivePoolSize(t *testing.T) {
	t.Setenv("PG_POOL_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
}
