// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianForge/services/forge/config"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
)

var runOpts struct {
	manifest string
	watch    bool
	json     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate every component in a job manifest",
	Long: `Run loads a job manifest, generates each component through the
configured oracle and validates, repairs or retries until it is accepted or
its failure policy ends it. Exits 2 when any component fails.`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.manifest, "file", "f", "jobs.yaml", "job manifest")
	runCmd.Flags().BoolVar(&runOpts.watch, "watch-config", false, "apply threshold and policy edits while running")
	runCmd.Flags().BoolVar(&runOpts.json, "json", false, "print outcomes as JSON")
}

// outcomeJSON is the --json form of one outcome.
type outcomeJSON struct {
	ComponentID string                      `json:"component_id"`
	Operation   string                      `json:"operation"`
	Result      *orchestrator.Result        `json:"result,omitempty"`
	Failure     *orchestrator.PipelineError `json:"failure,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

func runJobs(cmd *cobra.Command, _ []string) error {
	jobs, err := config.LoadManifest(runOpts.manifest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := state.logger.Slog()
	runID := uuid.NewString()
	p, err := state.newPipeline(state.registry, runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.close(); cerr != nil {
			logger.Warn("Failed to close artifact store", slog.String("error", cerr.Error()))
		}
	}()

	if runOpts.watch {
		w, err := state.watchConfig(ctx, p.orch)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	logger.Info("Starting run",
		slog.String("run_id", runID),
		slog.String("manifest", runOpts.manifest),
		slog.Int("jobs", len(jobs)),
	)
	outcomes := p.orch.RunAll(ctx, jobs)
	summary := orchestrator.Summarize(outcomes)
	logger.Info("Run finished",
		slog.String("run_id", runID),
		slog.Int("accepted", summary.Accepted),
		slog.Int("failed", summary.Failed),
	)

	out := cmd.OutOrStdout()
	if runOpts.json {
		if err := writeOutcomesJSON(out, outcomes); err != nil {
			return err
		}
	} else {
		printer, err := state.printer(out)
		if err != nil {
			return err
		}
		renderOutcomes(printer, outcomes)
	}

	if summary.Failed > 0 {
		return &exitError{code: 2, err: fmt.Errorf("%d of %d component(s) failed", summary.Failed, len(outcomes))}
	}
	return nil
}

func writeOutcomesJSON(w io.Writer, outcomes []orchestrator.Outcome) error {
	rows := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		row := outcomeJSON{ComponentID: o.Job.ComponentID, Operation: o.Job.Operation, Result: o.Result}
		if o.Err != nil {
			row.Error = o.Err.Error()
			var perr *orchestrator.PipelineError
			if errors.As(o.Err, &perr) {
				row.Failure = perr
				row.Operation = perr.Operation
			}
		} else {
			row.Operation = o.Result.Operation
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
