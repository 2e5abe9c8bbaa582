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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

var validateOpts struct {
	base    string
	methods []string
	async   []string
	unwrap  bool
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate component source files without generating anything",
	Long: `Validate runs every detector over each file and gates the issues with
the configured thresholds. A file named "-" is read from stdin. Exits 1 when
any file is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateFiles,
}

func init() {
	flags := validateCmd.Flags()
	flags.StringVar(&validateOpts.base, "base", "", "base abstraction the component class must derive from")
	flags.StringSliceVar(&validateOpts.methods, "method", nil, "required method (repeatable)")
	flags.StringSliceVar(&validateOpts.async, "async", nil, "method that must be declared async (repeatable)")
	flags.BoolVar(&validateOpts.unwrap, "unwrap", false, "treat input as raw oracle output and strip code fences")
}

func validateFiles(cmd *cobra.Command, args []string) error {
	settings, err := state.cfg.Settings()
	if err != nil {
		return err
	}
	printer, err := state.printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	shape := validate.Shape{
		RequiredBase:      validateOpts.base,
		RequiredMethods:   validateOpts.methods,
		SuspendingMethods: validateOpts.async,
	}
	v := validate.NewValidator(validate.WithQualityConfig(state.cfg.Quality))

	rejected := 0
	for _, name := range args {
		text, err := readSource(cmd.InOrStdin(), name)
		if err != nil {
			return err
		}
		a := artifact.New(text)
		if validateOpts.unwrap {
			a = artifact.FromOracle(text)
		}

		issues := v.Validate(a, shape)
		verdict := gate.Evaluate(issues, settings.Thresholds)
		score := validate.Measure(a).Score(state.cfg.Quality)
		renderValidation(printer, name, issues, verdict, score)
		if !verdict.Passed {
			rejected++
		}
	}

	if rejected > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d of %d file(s) rejected", rejected, len(args))}
	}
	return nil
}

func readSource(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(b), nil
}
