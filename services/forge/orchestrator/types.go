// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
	"github.com/AleutianAI/AleutianForge/services/forge/classify"
	"github.com/AleutianAI/AleutianForge/services/forge/gate"
	"github.com/AleutianAI/AleutianForge/services/forge/policy"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Job is one component to generate.
type Job struct {
	ComponentID string         `json:"component_id" yaml:"id" validate:"required"`
	Operation   string         `json:"operation" yaml:"operation"`
	Prompt      string         `json:"prompt" yaml:"prompt"`
	PromptFile  string         `json:"-" yaml:"prompt_file"`
	Shape       validate.Shape `json:"shape" yaml:"shape"`
}

// DefaultOperation is used for jobs that name none.
const DefaultOperation = "generate"

func (j Job) operation() string {
	if j.Operation == "" {
		return DefaultOperation
	}
	return j.Operation
}

// Settings is the read-only configuration a pipeline runs under. A pipeline
// takes one snapshot when it starts and uses it to the end.
type Settings struct {
	// MaxAttempts bounds the attempt sequence across all failure kinds.
	MaxAttempts int

	// Concurrency bounds RunAll. Zero or less means one pipeline per job.
	Concurrency int

	// AbortSiblingsOnFailHard cancels the rest of a RunAll batch when one
	// pipeline fails hard.
	AbortSiblingsOnFailHard bool

	Thresholds gate.Thresholds
	Policies   *policy.Table
}

// DefaultSettings returns eight attempts, four concurrent pipelines, the
// default thresholds and the default policy table.
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts: 8,
		Concurrency: 4,
		Thresholds:  gate.DefaultThresholds(),
		Policies:    policy.DefaultTable(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultSettings().MaxAttempts
	}
	if s.Policies == nil {
		s.Policies = policy.DefaultTable()
	}
	return s
}

// Attempt records one pass through the state machine. Attempts are
// append-only.
type Attempt struct {
	Number   int           `json:"number"`
	Feedback string        `json:"feedback,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// Artifact is the candidate after any repair. Nil when the oracle failed.
	Artifact *artifact.Artifact `json:"-"`
	SHA256   string             `json:"sha256,omitempty"`

	Issues  []validate.Issue `json:"issues,omitempty"`
	Verdict *gate.Verdict    `json:"verdict,omitempty"`

	RepairApplied   bool   `json:"repair_applied,omitempty"`
	RepairDiscarded string `json:"repair_discarded,omitempty"`

	Failure *classify.FailureContext `json:"failure,omitempty"`
	Action  policy.Action            `json:"action,omitempty"`
	Outcome string                   `json:"outcome"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Result is a successful pipeline.
type Result struct {
	ComponentID string             `json:"component_id"`
	Operation   string             `json:"operation"`
	Artifact    *artifact.Artifact `json:"-"`
	Text        string             `json:"text"`
	SHA256      string             `json:"sha256"`
	Repaired    bool               `json:"repaired"`
	Attempts    []Attempt          `json:"attempts"`
}

// Termination reasons carried by PipelineError.
const (
	ReasonPolicy           = "policy"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonMaxAttempts      = "max_attempts"
	ReasonCanceled         = "canceled"
	ReasonInvalidJob       = "invalid_job"
	ReasonPersist          = "persist_failed"
)

// PipelineError is the terminal failure of one pipeline. It carries the full
// attempt history.
type PipelineError struct {
	ComponentID string                  `json:"component_id"`
	Operation   string                  `json:"operation"`
	Failure     classify.FailureContext `json:"failure"`
	Action      policy.Action           `json:"action"`
	Reason      string                  `json:"reason"`
	Attempts    []Attempt               `json:"attempts"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("component %s (%s) failed after %d attempt(s): %s failure, %s (%s)",
		e.ComponentID, e.Operation, len(e.Attempts), e.Failure.Kind, e.Action, e.Reason)
}

// Unwrap returns the runtime error behind the failure, if any.
func (e *PipelineError) Unwrap() error { return e.Failure.Err }

// FailedHard reports whether the failure must stop the whole batch when
// sibling abort is enabled.
func (e *PipelineError) FailedHard() bool {
	return e.Action == policy.ActionFailHard
}

// Report renders the failure with every attempt, its issues and the action
// taken.
func (e *PipelineError) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", e.Error())
	fmt.Fprintf(&b, "classification: %s (%s), severity %s\n",
		e.Failure.Kind.Taxonomy(), e.Failure.Kind, e.Failure.Severity)
	if e.Failure.Message != "" {
		fmt.Fprintf(&b, "cause: %s\n", e.Failure.Message)
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "attempt %d: %s", a.Number, a.Outcome)
		if a.Failure != nil {
			fmt.Fprintf(&b, ", %s -> %s", a.Failure.Kind, a.Action)
		}
		if a.RepairApplied {
			b.WriteString(", repaired")
		}
		if a.RepairDiscarded != "" {
			fmt.Fprintf(&b, ", repair discarded: %s", a.RepairDiscarded)
		}
		if a.Error != "" {
			fmt.Fprintf(&b, ", error: %s", a.Error)
		}
		b.WriteString("\n")
		for _, issue := range a.Issues {
			if issue.Informational {
				continue
			}
			fmt.Fprintf(&b, "  - %s\n", issue.String())
		}
	}
	return b.String()
}
