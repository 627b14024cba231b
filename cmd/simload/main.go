// Command simload runs the page-load simulator against a recorded
// network log and prints the resulting FCP/LCP/TTI estimates.
//
// Usage:
//
//	simload -log trace.json [-tasks tasks.json] [-root-url https://example.com/]
//
// Configuration (logging format/level, metrics port, tracing endpoint,
// and the default simulation Settings) is loaded via pkg/config from
// config.yaml and LOADSIM_* environment variables; see pkg/config for
// the full list of keys.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/arkado/loadsim/internal/graph"
	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/config"
	"github.com/arkado/loadsim/pkg/logger"
	"github.com/arkado/loadsim/pkg/metrics"
	"github.com/arkado/loadsim/pkg/telemetry"
	"github.com/arkado/loadsim/simcore"
)

func main() {
	logPath := flag.String("log", "", "path to a recorded network log (JSON array of {method,params} events)")
	tasksPath := flag.String("tasks", "", "optional path to a main-thread task trace (JSON array of simcore task records)")
	rootURL := flag.String("root-url", "", "main document URL; defaults to the first root-frame Document record")
	flag.Parse()

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "simload: -log is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simload: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Log.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
		}
	}

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
				logger.Log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	records, err := loadRecords(*logPath)
	if err != nil {
		logger.Error("failed to load network log", "path", *logPath, "error", err)
		os.Exit(1)
	}
	tasks, err := loadTasks(*tasksPath)
	if err != nil {
		logger.Error("failed to load task trace", "path", *tasksPath, "error", err)
		os.Exit(1)
	}

	g, err := simcore.BuildGraph(ctx, records, tasks, *rootURL)
	if err != nil {
		logger.Error("failed to build request graph", "error", err)
		os.Exit(1)
	}

	settings := settingsFromConfig(cfg.Simulation)
	lcpNode := pickLCPCandidate(g)

	result, err := simcore.Simulate(ctx, g, settings, lcpNode)
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("simulation complete",
		"run_id", result.RunID,
		"total_ms", result.TimeInMs,
		"fcp_ms", result.FCPMs,
		"lcp_ms", result.LCPMs,
		"tti_ms", result.TTIMs,
		"iterations", result.Iterations,
		"critical_chain_len", len(simcore.CriticalChain(g)),
	)

	fmt.Printf("FCP: %.0fms\nLCP: %.0fms\nTTI: %.0fms\nTotal: %.0fms\n", result.FCPMs, result.LCPMs, result.TTIMs, result.TimeInMs)
}

func settingsFromConfig(sim config.SimulationConfig) simcore.Settings {
	return simcore.Settings{
		CPUSlowdownMultiplier:   sim.CPUSlowdownMultiplier,
		ThroughputDownKbps:      sim.ThroughputDownKbps,
		ThroughputUpKbps:        sim.ThroughputUpKbps,
		DefaultRTTMs:            float64(sim.DefaultRTT.Milliseconds()),
		TLSHandshakeRTTs:        sim.TLSHandshakeRTTs,
		InitialCongestionWindow: sim.InitialCongestionWindow,
		H2CoalescingEnabled:     sim.H2CoalescingEnabled,
		MaxIterations:           sim.MaxIterations,
	}
}

// pickLCPCandidate picks the largest network image node as the
// largest-contentful-paint candidate, falling back to the root document
// when the page has none — a reasonable default for a CLI that has no
// renderer to identify the true paint target.
func pickLCPCandidate(g *simcore.Graph) simcore.NodeID {
	best := g.RootID
	var bestSize int64
	for _, n := range g.Nodes() {
		if n.Kind != graph.KindNetwork || n.Record == nil {
			continue
		}
		if n.Record.ResourceType == record.ResourceImage && n.Record.TransferSize > bestSize {
			best = n.ID
			bestSize = n.Record.TransferSize
		}
	}
	return best
}

func loadRecords(path string) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []record.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return record.Parse(events)
}

func loadTasks(path string) ([]*record.Task, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tasks []*record.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
