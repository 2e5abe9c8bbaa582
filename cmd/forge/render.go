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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianForge/pkg/ux"
	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// renderOutcomes prints one row per job, a report for every failure and
// the run summary.
func renderOutcomes(p *ux.Printer, outcomes []orchestrator.Outcome) {
	p.Title("Forge run")

	var failures []*orchestrator.PipelineError
	for _, o := range outcomes {
		if o.Err == nil {
			note := plural(len(o.Result.Attempts), "attempt")
			if o.Result.Repaired {
				note += ", repaired"
			}
			p.Row(ux.IconSuccess, o.Result.ComponentID, note)
			continue
		}
		var perr *orchestrator.PipelineError
		if !errors.As(o.Err, &perr) {
			p.Row(ux.IconError, o.Job.ComponentID, o.Err.Error())
			continue
		}
		p.Row(ux.IconError, perr.ComponentID, fmt.Sprintf("%s failure, %s", perr.Failure.Kind, perr.Reason))
		failures = append(failures, perr)
	}

	for _, perr := range failures {
		p.ErrorBox(perr.ComponentID+" failed", perr.Report())
	}

	s := orchestrator.Summarize(outcomes)
	p.Summary(s.Accepted, s.Failed, len(outcomes))
}

func severityIcon(issue validate.Issue) ux.Icon {
	if issue.Informational {
		return ux.IconBullet
	}
	switch issue.Severity {
	case validate.SeverityCritical, validate.SeverityHigh:
		return ux.IconError
	case validate.SeverityMedium:
		return ux.IconWarning
	default:
		return ux.IconBullet
	}
}

// renderValidation prints the issues found in one file and its verdict.
func renderValidation(p *ux.Printer, name string, issues []validate.Issue, verdict gate.Verdict, score int) {
	p.Title(name)
	for _, issue := range issues {
		p.Row(severityIcon(issue), issue.String(), issue.Detector)
	}
	p.Info(fmt.Sprintf("quality score %d, counts %s", score, verdict.Counts))
	if verdict.Passed {
		p.Success("accepted")
		return
	}
	exceeded := make([]string, len(verdict.Exceeded))
	for i, s := range verdict.Exceeded {
		exceeded[i] = string(s)
	}
	p.Error(fmt.Sprintf("rejected: %s over threshold", joinWords(exceeded)))
}

func joinWords(words []string) string {
	switch len(words) {
	case 0:
		return "nothing"
	case 1:
		return words[0]
	}
	out := words[0]
	for _, w := range words[1 : len(words)-1] {
		out += ", " + w
	}
	return out + " and " + words[len(words)-1]
}
