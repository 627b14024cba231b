package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{Name: "loadsim"},
		Log: LogConfig{Level: "info"},
		Simulation: SimulationConfig{
			CPUSlowdownMultiplier:   1.0,
			TLSHandshakeRTTs:        2,
			InitialCongestionWindow: 10,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingAppName(t *testing.T) {
	cfg := validConfig()
	cfg.App.Name = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateDefaultsEmptyLogLevelToInfo(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidateRejectsNonPositiveCPUSlowdown(t *testing.T) {
	cfg := validConfig()
	cfg.Simulation.CPUSlowdownMultiplier = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTLSHandshakeRTTs(t *testing.T) {
	cfg := validConfig()
	cfg.Simulation.TLSHandshakeRTTs = 3
	assert.Error(t, cfg.Validate())
}

func TestIsDevelopment(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "dev"
	assert.True(t, cfg.IsDevelopment())

	cfg.App.Environment = "production"
	assert.False(t, cfg.IsDevelopment())
}
