package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.OperationTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.Contains(t, cfg.Database.DataSourceName(), "_foreign_keys=on")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_OPERATION_TIMEOUT", "750ms")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RATE_LIMIT_BURST", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Database.OperationTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 9, cfg.RateLimit.Burst)
	assert.Contains(t, cfg.Database.DataSourceName(), "host=db.internal")
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}
