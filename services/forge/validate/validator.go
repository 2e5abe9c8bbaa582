// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate inspects candidate artifacts and reports typed,
// severity-tagged issues.
//
// Each detector is a pure function of (artifact, shape). The Validator only
// composes them, so one Validator may be shared by any number of pipelines.
package validate

import (
	"errors"
	"sort"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

// Detector is one independent pass over a parsed artifact.
type Detector interface {
	// Name identifies the detector in issues and metrics.
	Name() string

	// Detect returns the issues found. It must not retain the artifact or
	// keep state between calls.
	Detect(a *artifact.Artifact, shape Shape) []Issue
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithQualityConfig sets the thresholds for the quality pass.
func WithQualityConfig(cfg QualityConfig) ValidatorOption {
	return func(v *Validator) {
		v.quality = cfg
	}
}

// WithDetectors replaces the default detector set.
func WithDetectors(detectors ...Detector) ValidatorOption {
	return func(v *Validator) {
		v.detectors = detectors
	}
}

// Validator runs the detector passes over a candidate artifact.
//
// Thread Safety: Safe for concurrent use.
type Validator struct {
	quality   QualityConfig
	detectors []Detector
}

// NewValidator creates a Validator with the placeholder, shape,
// insecure-literal and quality detectors.
//
// Example:
//
//	v := NewValidator(WithQualityConfig(QualityConfig{MaxComplexity: 8, MinDocCoverage: 0.6}))
//	issues := v.Validate(artifact.New(src), shape)
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{quality: DefaultQualityConfig()}
	for _, opt := range opts {
		opt(v)
	}
	if v.detectors == nil {
		v.detectors = []Detector{
			PlaceholderDetector{},
			ShapeDetector{},
			NewSecretDetector(),
			QualityDetector{Config: v.quality},
		}
	}
	return v
}

// Validate runs every detector against the artifact.
//
// Description:
//
//	A candidate that does not parse yields exactly one critical
//	syntax_error issue and no detector runs. Otherwise the detectors run
//	independently and their issues are returned sorted by position, then
//	detector, then kind.
//
// Inputs:
//
//	a - The candidate artifact.
//	shape - The structural contract for the component category.
//
// Outputs:
//
//	[]Issue - All findings. Empty when the candidate is clean.
func (v *Validator) Validate(a *artifact.Artifact, shape Shape) []Issue {
	if _, err := a.Root(); err != nil {
		return []Issue{syntaxIssue(err)}
	}

	var issues []Issue
	for _, d := range v.detectors {
		issues = append(issues, d.Detect(a, shape)...)
	}
	SortIssues(issues)
	return issues
}

// Detectors returns the names of the configured detectors.
func (v *Validator) Detectors() []string {
	names := make([]string, 0, len(v.detectors))
	for _, d := range v.detectors {
		names = append(names, d.Name())
	}
	return names
}

func syntaxIssue(err error) Issue {
	issue := Issue{
		Kind:     KindSyntaxError,
		Severity: SeverityCritical,
		Message:  err.Error(),
		Detector: DetectorParser,
	}
	var se *artifact.SyntaxError
	if errors.As(err, &se) {
		issue.Line = se.Line
		issue.Column = se.Column
		issue.Message = se.Message
	}
	return issue
}

// SortIssues orders issues deterministically in place.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Detector != b.Detector {
			return a.Detector < b.Detector
		}
		return a.Kind < b.Kind
	})
}

// HasKind reports whether any issue is of kind k.
func HasKind(issues []Issue, k Kind) bool {
	for _, issue := range issues {
		if issue.Kind == k {
			return true
		}
	}
	return false
}

// AllRepairable reports whether issues is non-empty and every issue can be
// fixed by structural synthesis.
func AllRepairable(issues []Issue) bool {
	if len(issues) == 0 {
		return false
	}
	for _, issue := range issues {
		if !issue.Repairable() {
			return false
		}
	}
	return true
}

// Worst returns the most severe severity in issues, or "" when empty.
func Worst(issues []Issue) Severity {
	var worst Severity
	for _, issue := range issues {
		if issue.Severity.Worse(worst) {
			worst = issue.Severity
		}
	}
	return worst
}
