package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "congresstwin.db", cfg.Database.Path)
	assert.Equal(t, 10000, cfg.Simulation.Iterations)
	assert.InDelta(t, 0.25, cfg.Simulation.QueueDelayK, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.LockTTL())
	assert.Equal(t, []string{"congress-2022", "congress-2023", "congress-2024"}, cfg.History.PlanIDs)
	assert.InDelta(t, 1.2, cfg.Cost.Risk, 1e-9)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database:
  path: /tmp/test.db
simulation:
  iterations: 500
locks:
  ttl: 30m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 500, cfg.Simulation.Iterations)
	assert.Equal(t, 30*time.Minute, cfg.LockTTL())
	// Untouched sections keep defaults.
	assert.InDelta(t, 0.25, cfg.Simulation.QueueDelayK, 1e-9)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CONGRESSTWIN_DATABASE_PATH", "/var/lib/ct.db")
	t.Setenv("CONGRESSTWIN_SIMULATION_ITERATIONS", "2500")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ct.db", cfg.Database.Path)
	assert.Equal(t, 2500, cfg.Simulation.Iterations)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Locks.TTL = "soon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Simulation.Iterations = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Simulation.Iterations = 1234
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, loaded.Simulation.Iterations)
}
