package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(WithConfigPaths(filepath.Join(dir, "missing.yaml")))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "loadsim", cfg.App.Name)
	assert.Equal(t, 1.0, cfg.Simulation.CPUSlowdownMultiplier)
	assert.Equal(t, 2, cfg.Simulation.TLSHandshakeRTTs)
	assert.Equal(t, 10, cfg.Simulation.InitialCongestionWindow)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: custom-app\nsimulation:\n  cpu_slowdown_multiplier: 4\n"), 0o644))

	loader := NewLoader(WithConfigPaths(path))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "custom-app", cfg.App.Name)
	assert.Equal(t, 4.0, cfg.Simulation.CPUSlowdownMultiplier)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: from-file\n"), 0o644))

	t.Setenv("LOADSIM_APP_NAME", "from-env")

	loader := NewLoader(WithConfigPaths(path))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.App.Name)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LOADSIM_LOG_LEVEL", "verbose")
	dir := t.TempDir()

	loader := NewLoader(WithConfigPaths(filepath.Join(dir, "missing.yaml")))
	_, err := loader.Load()
	assert.Error(t, err)
}
