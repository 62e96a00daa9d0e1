package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, AuthProviderJWT, cfg.Auth.Provider)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, []string{"1st Semester", "2nd Semester", "Summer"}, cfg.Calendar.SemesterNames)
	assert.Equal(t, 30*time.Second, cfg.Session.CacheTTL)
	assert.Equal(t, 3, cfg.Jobs.MaxRetries)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("SESSION_CACHE_ENABLED", "true")
	t.Setenv("SESSION_CACHE_TTL", "2m")
	t.Setenv("SEMESTER_NAMES", " 1st Semester , 2nd Semester ")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.True(t, cfg.Session.CacheEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Session.CacheTTL)
	assert.Equal(t, []string{"1st Semester", "2nd Semester"}, cfg.Calendar.SemesterNames)
	assert.Len(t, cfg.CORS.AllowedOrigins, 2)
	assert.Contains(t, cfg.Database.DSN(), "dbname=sma_attendance")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresMongoURI(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("nonsense", time.Second))
	assert.Equal(t, time.Minute, parseDuration("1m", time.Second))
}
