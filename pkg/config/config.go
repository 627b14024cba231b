// Package config loads the ambient configuration for the engine's
// consuming binaries (logging, metrics, tracing, and the default
// simulation Settings). The engine's public API never reads this package
// directly — simcore.Settings is always an explicit argument — but
// cmd/simload and any other embedder uses this loader to assemble one
// from defaults, a YAML file, and environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration record for a binary embedding
// the simulator.
type Config struct {
	App        AppConfig        `koanf:"app"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Simulation SimulationConfig `koanf:"simulation"`
}

// AppConfig holds general application identity.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures pkg/metrics' Prometheus exposition.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures pkg/telemetry's tracer provider.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// SimulationConfig mirrors the fields of simcore.Settings (spec.md §6):
// it is the layer that lets an operator override simulation parameters
// via file or environment rather than editing Go code. cmd/simload
// converts this into a simcore.Settings value; the engine itself never
// parses koanf tags.
type SimulationConfig struct {
	CPUSlowdownMultiplier   float64       `koanf:"cpu_slowdown_multiplier"`
	ThroughputDownKbps      float64       `koanf:"throughput_down_kbps"` // 0 disables the cap
	ThroughputUpKbps        float64       `koanf:"throughput_up_kbps"`
	DefaultRTT              time.Duration `koanf:"default_rtt"`
	TLSHandshakeRTTs        int           `koanf:"tls_handshake_rtts"` // 1 or 2
	InitialCongestionWindow int           `koanf:"initial_congestion_window"`
	H2CoalescingEnabled     bool          `koanf:"h2_coalescing_enabled"`
	MaxIterations           int           `koanf:"max_iterations"`
}

// Validate checks invariants that would otherwise surface as confusing
// panics deep inside the simulator.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Simulation.CPUSlowdownMultiplier <= 0 {
		errs = append(errs, "simulation.cpu_slowdown_multiplier must be positive")
	}
	if c.Simulation.TLSHandshakeRTTs != 1 && c.Simulation.TLSHandshakeRTTs != 2 {
		errs = append(errs, fmt.Sprintf("simulation.tls_handshake_rtts must be 1 or 2, got %d", c.Simulation.TLSHandshakeRTTs))
	}
	if c.Simulation.InitialCongestionWindow <= 0 {
		errs = append(errs, "simulation.initial_congestion_window must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether App.Environment names a dev environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}
