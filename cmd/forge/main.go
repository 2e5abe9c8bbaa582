// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command forge generates components with an external oracle and accepts
// only candidates that pass structural validation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianForge/pkg/logging"
	"github.com/AleutianAI/AleutianForge/pkg/ux"
	"github.com/AleutianAI/AleutianForge/services/forge/config"
	"github.com/AleutianAI/AleutianForge/services/forge/events"
	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/store"
	"github.com/AleutianAI/AleutianForge/services/forge/telemetry"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

// app is the state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	logLevel   string
	logDir     string
	trace      string
	output     string

	cfg      config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

var state app

var rootCmd = &cobra.Command{
	Use:           "forge",
	Short:         "Generate components and accept only structurally valid ones",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return state.setup(cmd.Context())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&state.configPath, "config", "c", "forge.yaml", "configuration file")
	flags.StringVar(&state.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.StringVar(&state.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.StringVar(&state.trace, "trace", "", "override telemetry.trace_exporter (otlp, stdout, none)")
	flags.StringVarP(&state.output, "output", "o", "", "output mode: styled, plain or machine (default: styled on a terminal)")

	rootCmd.AddCommand(runCmd, validateCmd, serveCmd, versionCmd)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if cerr := state.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		ux.NewPrinter(os.Stderr).Error(err.Error())
		os.Exit(exitCode(err))
	}
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logDir != "" {
		cfg.Logging.Dir = a.logDir
	}
	if a.trace != "" {
		cfg.Telemetry.TraceExporter = a.trace
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger, err = logging.New(logging.Config{Level: level, LogDir: cfg.Logging.Dir, Service: "forge"})
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger.Slog())

	a.registry = prometheus.NewRegistry()
	tcfg := cfg.Telemetry
	tcfg.Registerer = a.registry
	tcfg.ServiceVersion = version
	tcfg.Writer = os.Stderr
	a.shutdown, err = telemetry.Init(ctx, tcfg)
	return err
}

// close flushes telemetry and closes the log file. Safe to call twice.
func (a *app) close() error {
	var err error
	if a.shutdown != nil {
		err = a.shutdown(context.Background())
		a.shutdown = nil
	}
	if a.logger != nil {
		if cerr := a.logger.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// printer writes to w in the mode chosen by --output.
func (a *app) printer(w io.Writer) (*ux.Printer, error) {
	if a.output == "" {
		return ux.NewPrinter(w), nil
	}
	mode, err := ux.ParseMode(a.output)
	if err != nil {
		return nil, err
	}
	return ux.NewPrinterMode(w, mode), nil
}

// pipeline is everything a command needs to run jobs.
type pipeline struct {
	orch    *orchestrator.Orchestrator
	guard   *oracle.Guard
	store   store.Store
	metrics *events.Metrics
}

// newPipeline wires the oracle, guard, events and store from configuration.
// Every event carries runID. Breaker transitions are reported as events.
func (a *app) newPipeline(reg prometheus.Registerer, runID string) (*pipeline, error) {
	logger := a.logger.Slog()
	settings, err := a.cfg.Settings()
	if err != nil {
		return nil, err
	}

	o, err := a.cfg.BuildOracle()
	if err != nil {
		return nil, err
	}

	p := &pipeline{metrics: events.NewMetrics(reg)}
	sink := events.Tagged{RunID: runID, Next: events.Multi{events.NewLogSink(logger), p.metrics}}

	p.guard, err = a.cfg.Guard(o, func(key string, from, to resilience.CircuitState) {
		e := events.New(events.BreakerChanged, "", "")
		e.Detail = fmt.Sprintf("%s: %s -> %s", key, from, to)
		e.Outcome = to.String()
		sink.Emit(context.Background(), e)
	})
	if err != nil {
		return nil, err
	}

	p.store, err = a.cfg.OpenStore(logger)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithValidator(validate.NewValidator(validate.WithQualityConfig(a.cfg.Quality))),
		orchestrator.WithEvents(sink),
		orchestrator.WithLogger(logger),
		orchestrator.WithSettings(settings),
	}
	if p.store != nil {
		opts = append(opts, orchestrator.WithArtifactSink(p.store))
	}
	p.orch = orchestrator.New(p.guard, opts...)
	return p, nil
}

func (p *pipeline) close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// watchConfig hot-reloads thresholds and policies into orch until ctx ends.
func (a *app) watchConfig(ctx context.Context, orch *orchestrator.Orchestrator) (*config.Watcher, error) {
	logger := a.logger.Slog()
	w, err := config.NewWatcher(a.configPath, func(cfg config.Config) {
		settings, err := cfg.Settings()
		if err != nil {
			logger.Warn("Ignoring config reload", slog.String("error", err.Error()))
			return
		}
		orch.UpdateSettings(settings)
		logger.Info("Pipeline settings updated",
			slog.Int("max_attempts", settings.MaxAttempts),
			slog.Any("thresholds", settings.Thresholds.Map()),
		)
	}, 0, logger)
	if err != nil {
		return nil, err
	}
	w.Start(ctx)
	return w, nil
}
