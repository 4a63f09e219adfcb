package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "logsync.db", c.Store.Path)
	assert.Equal(t, 3, c.Sync.RetryCeiling)
	assert.Equal(t, time.Second, c.Sync.BaseDelay)
	assert.Equal(t, 100*time.Millisecond, c.Sync.ItemDelay)
	assert.Equal(t, 30*time.Second, c.Connectivity.ProbeInterval)
	assert.Equal(t, "mismatch", c.Integrity.AuditMode)
	require.NoError(t, c.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), cfg))
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "logsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  path: /var/lib/logsync/local.db
backend:
  dsn: postgres://logsync@db:5432/logsync
sync:
  retry_ceiling: 5
  item_delay: 250ms
log:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := defaults()
	want.Store.Path = "/var/lib/logsync/local.db"
	want.Backend.DSN = "postgres://logsync@db:5432/logsync"
	want.Sync.RetryCeiling = 5
	want.Sync.ItemDelay = 250 * time.Millisecond
	want.Log.Format = "json"
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  base_delay: 3s\n"), 0o600))
	t.Setenv(EnvConfigPath, path)
	t.Setenv("LOGSYNC_SYNC_BASE_DELAY", "5s")
	t.Setenv("LOGSYNC_BACKEND_OWNER_ID", "00000000-0000-4000-8000-000000000001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, "00000000-0000-4000-8000-000000000001", cfg.Backend.OwnerID)
	assert.Equal(t, 3, cfg.Sync.RetryCeiling)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := defaults()
	c.Sync.RetryCeiling = 0
	c.Integrity.AuditMode = "sometimes"
	c.Log.Format = "xml"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_ceiling")
	assert.Contains(t, err.Error(), "audit_mode")
	assert.Contains(t, err.Error(), "log.format")
}
