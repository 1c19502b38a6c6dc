package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitehostel/internal/schedule"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WHITEBOARD_REDIS_PASSWORD", "s3cret")
	path := writeConfig(t, dir, `
database:
  path: `+filepath.Join(dir, "db", "wb.db")+`
redis:
  enabled: true
  address: localhost:6379
  password: ${WHITEBOARD_REDIS_PASSWORD}
schedule:
  overlap_policy: reject
  min_duration_minutes: 15
api:
  enabled: true
  port: 9000
  rate_per_second: 2.5
  session_ttl_minutes: 10
backup:
  enabled: true
  interval_hours: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, schedule.Policy{Overlap: schedule.OverlapReject, MinDurationMinutes: 15}, cfg.SchedulePolicy())
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 9000, cfg.APIPort())
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL())
	rps, burst := cfg.APIRate()
	assert.Equal(t, 2.5, rps)
	assert.Equal(t, 20, burst)
	assert.Equal(t, 6*time.Hour, cfg.Backup.Interval())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "database:\n  path: "+filepath.Join(dir, "wb.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, schedule.DefaultPolicy(), cfg.SchedulePolicy())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, 8080, cfg.APIPort())
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 8081, cfg.HealthPort())
	assert.Equal(t, 9090, cfg.MetricsPort())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, 30*time.Second, cfg.WatchInterval())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown policy", "schedule:\n  overlap_policy: squash\n"},
		{"redis without address", "redis:\n  enabled: true\n"},
		{"negative rate", "api:\n  rate_per_second: -1\n"},
		{"negative session ttl", "api:\n  session_ttl_minutes: -5\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"malformed yaml", "schedule: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			body := "database:\n  path: " + filepath.Join(dir, "wb.db") + "\n" + tt.body
			_, err := Load(writeConfig(t, dir, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(PathEnv, "")
	assert.Equal(t, DefaultPath, PathFromEnv())

	t.Setenv(PathEnv, "/etc/whiteboard.yaml")
	assert.Equal(t, "/etc/whiteboard.yaml", PathFromEnv())
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	dbLine := "database:\n  path: " + filepath.Join(dir, "wb.db") + "\n"
	path := writeConfig(t, dir, dbLine+"schedule:\n  overlap_policy: clamp\n")

	var mu sync.Mutex
	var policies []schedule.OverlapPolicy

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := Watch(ctx, path, 10*time.Millisecond, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		policies = append(policies, cfg.SchedulePolicy().Overlap)
	})
	require.NoError(t, err)

	writeConfig(t, dir, dbLine+"schedule:\n  overlap_policy: reject\n")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(policies) == 2 && policies[1] == schedule.OverlapReject
	}, 2*time.Second, 10*time.Millisecond)
}
