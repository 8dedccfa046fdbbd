package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2048, cfg.Ring.Capacity)
	assert.Equal(t, uint8(50), cfg.Battery.MinCNSThreshold)
	assert.Equal(t, 600.0, cfg.Battery.MaxBattery)
	assert.Equal(t, uint8(10), cfg.Gate.DifficultyMinBits)
	assert.Equal(t, uint8(22), cfg.Gate.DifficultyMaxBits)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Ring.Capacity, cfg.Ring.Capacity)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
version = 1
[ring]
ring_capacity = 4096
[battery]
max_battery = 1200.0
min_cns_threshold = 60
state_path = "/tmp/custom-battery.bin"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Ring.Capacity)
	assert.Equal(t, 1200.0, cfg.Battery.MaxBattery)
	assert.Equal(t, uint8(60), cfg.Battery.MinCNSThreshold)
	assert.Equal(t, "/tmp/custom-battery.bin", cfg.Battery.StatePath)
}

func TestValidateRejectsInvertedDifficultyRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gate.DifficultyMinBits = 30
	cfg.Gate.DifficultyMaxBits = 10
	require.Error(t, cfg.Validate())
}

func TestEnvOverridesApplyAfterLoad(t *testing.T) {
	t.Setenv("POHW_LOG_LEVEL", "debug")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestCloneDeepCopiesSlices(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Telemetry.ProductiveExtensions[0] = "mutated"
	assert.NotEqual(t, cfg.Telemetry.ProductiveExtensions[0], clone.Telemetry.ProductiveExtensions[0])

	clone.Workspace.Paths[0] = "mutated"
	assert.NotEqual(t, cfg.Workspace.Paths[0], clone.Workspace.Paths[0])
}

func TestWorkspaceWatcherDisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Workspace.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyWorkspacePathsWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.Enabled = true
	cfg.Workspace.Paths = nil
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsTinyWorkspaceDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.Enabled = true
	cfg.Workspace.DebounceMs = 10
	require.Error(t, cfg.Validate())
}

func TestLoaderWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0600))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, loader.Watch())
	defer loader.Close()

	reloaded := make(chan *Config, 1)
	loader.OnChange(func(c *Config) { reloaded <- c })

	body := "version = 1\n[ring]\nring_capacity = 9999\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	select {
	case c := <-reloaded:
		assert.Equal(t, 9999, c.Ring.Capacity)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
