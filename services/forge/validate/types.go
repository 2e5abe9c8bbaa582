// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from worst to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities: critical is 4, low is 1, unknown is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Worse reports whether s is strictly more severe than other.
func (s Severity) Worse(other Severity) bool {
	return s.Rank() > other.Rank()
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity accepts any letter case.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Kind identifies what an issue is about.
type Kind string

const (
	KindSyntaxError            Kind = "syntax_error"
	KindMissingBase            Kind = "missing_base_abstraction"
	KindMissingRequiredElement Kind = "missing_required_element"
	KindDuplicateDefinition    Kind = "duplicate_definition"
	KindNonSuspendingMethod    Kind = "non_suspending_method"
	KindPlaceholderStub        Kind = "placeholder_stub"
	KindPlaceholderMarker      Kind = "placeholder_marker"
	KindInsecureLiteral        Kind = "insecure_literal"
	KindQualityMetric          Kind = "quality_metric"
)

// Detector names.
const (
	DetectorParser      = "parser"
	DetectorPlaceholder = "placeholder"
	DetectorShape       = "shape"
	DetectorSecrets     = "insecure_literal"
	DetectorQuality     = "quality"
)

// Issue is one finding produced by a detector pass.
type Issue struct {
	// Kind is the issue kind.
	Kind Kind `json:"kind"`

	// Severity is the severity level.
	Severity Severity `json:"severity"`

	// Message is a human-readable description. Never contains secret values.
	Message string `json:"message"`

	// Line is the 1-indexed line the issue points at (0 when unknown).
	Line int `json:"line,omitempty"`

	// Column is the 1-indexed column the issue points at (0 when unknown).
	Column int `json:"column,omitempty"`

	// Detector names the pass that produced the issue.
	Detector string `json:"detector"`

	// Element is the symbol the issue concerns, such as a missing method name.
	Element string `json:"element,omitempty"`

	// Informational issues are reported but excluded from gating by default.
	Informational bool `json:"informational,omitempty"`
}

// Location renders "line:col" or "" when the issue has no position.
func (i Issue) Location() string {
	if i.Line == 0 {
		return ""
	}
	if i.Column == 0 {
		return fmt.Sprintf("%d", i.Line)
	}
	return fmt.Sprintf("%d:%d", i.Line, i.Column)
}

// String renders the issue on one line.
func (i Issue) String() string {
	loc := i.Location()
	if loc != "" {
		loc = " at " + loc
	}
	return fmt.Sprintf("[%s] %s%s: %s", i.Severity, i.Kind, loc, i.Message)
}

// Repairable reports whether the issue can be fixed by structural synthesis.
func (i Issue) Repairable() bool {
	return i.Kind == KindMissingRequiredElement
}

// Shape is the structural contract a candidate component must satisfy.
type Shape struct {
	// RequiredBase is the base abstraction the component class derives from.
	// Empty means any class qualifies.
	RequiredBase string `json:"required_base" yaml:"required_base"`

	// RequiredMethods must each be defined exactly once on the class.
	RequiredMethods []string `json:"required_methods" yaml:"required_methods"`

	// SuspendingMethods must be declared async. Entries should also appear in
	// RequiredMethods; extra entries are checked only when present.
	SuspendingMethods []string `json:"suspending_methods" yaml:"suspending_methods"`
}

// IsSuspending reports whether method must be declared async.
func (s Shape) IsSuspending(method string) bool {
	for _, m := range s.SuspendingMethods {
		if m == method {
			return true
		}
	}
	return false
}

// QualityConfig tunes the informational quality pass.
type QualityConfig struct {
	// MaxComplexity flags functions whose complexity proxy exceeds it.
	MaxComplexity int `yaml:"max_complexity" validate:"gte=1"`

	// MinDocCoverage flags modules whose documented function ratio is lower.
	MinDocCoverage float64 `yaml:"min_doc_coverage" validate:"gte=0,lte=1"`
}

// DefaultQualityConfig returns the default quality thresholds.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MaxComplexity:  10,
		MinDocCoverage: 0.5,
	}
}
