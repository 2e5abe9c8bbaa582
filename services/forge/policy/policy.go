// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy maps each failure kind to its remediation.
//
// The table is built once from defaults plus configuration and is never
// mutated afterwards. A configuration reload builds a new table and swaps it
// in wholesale.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianForge/services/forge/classify"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
)

// Action is what the pipeline does with a classified failure.
type Action string

const (
	// ActionFailHard terminates the artifact's pipeline immediately.
	ActionFailHard Action = "fail_hard"
	// ActionFailSoft fails this artifact but leaves sibling pipelines running.
	ActionFailSoft Action = "fail_soft"
	// ActionRetry asks the oracle again, bounded by MaxRetries.
	ActionRetry Action = "retry"
)

// ParseAction validates an action name.
func ParseAction(v string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(v)))
	switch a {
	case ActionFailHard, ActionFailSoft, ActionRetry:
		return a, nil
	}
	return "", fmt.Errorf("unknown policy action %q", v)
}

// ErrInvalidPolicy is wrapped by every table construction error.
var ErrInvalidPolicy = errors.New("invalid failure policy")

// FailurePolicy is the remediation for one failure kind.
type FailurePolicy struct {
	Action                Action        `json:"action" yaml:"action"`
	MaxRetries            int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay             time.Duration `json:"base_delay" yaml:"base_delay"`
	BackoffFactor         float64       `json:"backoff_factor" yaml:"backoff_factor"`
	MaxDelay              time.Duration `json:"max_delay" yaml:"max_delay"`
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
}

// Schedule returns a fresh backoff schedule for this policy.
func (p FailurePolicy) Schedule() *resilience.Schedule {
	return resilience.NewSchedule(p.BaseDelay, p.BackoffFactor, p.MaxDelay)
}

// Retries reports whether the policy allows another retry after used
// retries have already been spent.
func (p FailurePolicy) Retries(used int) bool {
	return p.Action == ActionRetry && used < p.MaxRetries
}

// Defaults returns the built-in policy for every failure kind.
func Defaults() map[classify.Kind]FailurePolicy {
	return map[classify.Kind]FailurePolicy{
		classify.KindSyntax:         {Action: ActionRetry, MaxRetries: 2, BackoffFactor: 1},
		classify.KindStructural:     {Action: ActionRetry, MaxRetries: 3, BackoffFactor: 1},
		classify.KindSecurity:       {Action: ActionFailHard},
		classify.KindConfiguration:  {Action: ActionFailHard},
		classify.KindInfrastructure: {
			Action:                ActionRetry,
			MaxRetries:            5,
			BaseDelay:             time.Second,
			BackoffFactor:         2,
			MaxDelay:              30 * time.Second,
			CircuitBreakerEnabled: true,
		},
		classify.KindGenericRuntime: {Action: ActionFailSoft},
	}
}

// Override is a partial policy from configuration. Nil fields keep the
// default.
type Override struct {
	Action                *string        `yaml:"action"`
	MaxRetries            *int           `yaml:"max_retries"`
	BaseDelay             *time.Duration `yaml:"base_delay"`
	BackoffFactor         *float64       `yaml:"backoff_factor"`
	MaxDelay              *time.Duration `yaml:"max_delay"`
	CircuitBreakerEnabled *bool          `yaml:"circuit_breaker_enabled"`
}

// Table is the read-only mapping from failure kind to policy.
//
// Thread Safety: Safe for concurrent use; a Table is immutable.
type Table struct {
	policies map[classify.Kind]FailurePolicy
}

// DefaultTable returns the table built from Defaults.
func DefaultTable() *Table {
	t, err := NewTable(nil)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable builds a table from the defaults and configured overrides.
//
// Description:
//
//	Overrides are applied field by field on top of Defaults. Security and
//	configuration failures must stay fail_hard: they are never retried.
//
// Inputs:
//
//	overrides - Failure kind name to partial policy. May be nil.
//
// Outputs:
//
//	*Table - The immutable table.
//	error - Wraps ErrInvalidPolicy for unknown kinds or invalid values.
func NewTable(overrides map[string]Override) (*Table, error) {
	policies := Defaults()
	for name, o := range overrides {
		kind, err := classify.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
		p := policies[kind]
		if o.Action != nil {
			action, err := ParseAction(*o.Action)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, kind, err)
			}
			p.Action = action
		}
		if o.MaxRetries != nil {
			p.MaxRetries = *o.MaxRetries
		}
		if o.BaseDelay != nil {
			p.BaseDelay = *o.BaseDelay
		}
		if o.BackoffFactor != nil {
			p.BackoffFactor = *o.BackoffFactor
		}
		if o.MaxDelay != nil {
			p.MaxDelay = *o.MaxDelay
		}
		if o.CircuitBreakerEnabled != nil {
			p.CircuitBreakerEnabled = *o.CircuitBreakerEnabled
		}
		policies[kind] = p
	}

	for kind, p := range policies {
		if err := check(kind, p); err != nil {
			return nil, err
		}
	}
	return &Table{policies: policies}, nil
}

func check(kind classify.Kind, p FailurePolicy) error {
	switch {
	case (kind == classify.KindSecurity || kind == classify.KindConfiguration) && p.Action != ActionFailHard:
		return fmt.Errorf("%w: %s failures must be %s, got %s", ErrInvalidPolicy, kind, ActionFailHard, p.Action)
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: %s: max_retries must not be negative", ErrInvalidPolicy, kind)
	case p.Action != ActionRetry && p.MaxRetries != 0:
		return fmt.Errorf("%w: %s: max_retries requires action %s", ErrInvalidPolicy, kind, ActionRetry)
	case p.BaseDelay < 0 || p.MaxDelay < 0:
		return fmt.Errorf("%w: %s: delays must not be negative", ErrInvalidPolicy, kind)
	case p.BackoffFactor != 0 && p.BackoffFactor < 1:
		return fmt.Errorf("%w: %s: backoff_factor must be at least 1", ErrInvalidPolicy, kind)
	}
	return nil
}

// For returns the policy for kind. Unknown kinds get the generic runtime
// policy.
func (t *Table) For(kind classify.Kind) FailurePolicy {
	if p, ok := t.policies[kind]; ok {
		return p
	}
	return t.policies[classify.KindGenericRuntime]
}

// Decide returns the policy for a classified failure.
func (t *Table) Decide(fc classify.FailureContext) FailurePolicy {
	return t.For(fc.Kind)
}
