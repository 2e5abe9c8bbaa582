// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate aggregates validation issues by severity and decides whether
// a candidate is acceptable under the configured ceilings.
package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// SeverityCounts maps each severity to the number of issues carrying it.
// It is only ever derived from issues through Count.
type SeverityCounts map[validate.Severity]int

// Count derives SeverityCounts from issues. Informational issues are
// skipped unless includeInformational is set.
func Count(issues []validate.Issue, includeInformational bool) SeverityCounts {
	counts := make(SeverityCounts, len(validate.Severities))
	for _, issue := range issues {
		if issue.Informational && !includeInformational {
			continue
		}
		counts[issue.Severity]++
	}
	return counts
}

// String renders counts as "critical=0 high=2 medium=0 low=1".
func (c SeverityCounts) String() string {
	parts := make([]string, 0, len(validate.Severities))
	for _, s := range validate.Severities {
		parts = append(parts, fmt.Sprintf("%s=%d", s, c[s]))
	}
	return strings.Join(parts, " ")
}

// Thresholds is the maximum tolerated issue count per severity.
//
// A severity without a ceiling is unbounded, except critical which defaults
// to zero. Thresholds are read-only once built.
type Thresholds struct {
	ceilings map[validate.Severity]int

	// IncludeInformational counts informational issues against ceilings.
	IncludeInformational bool
}

// NewThresholds builds Thresholds from configuration keyed by severity name.
//
// Inputs:
//
//	ceilings - Severity name to maximum count. Names are case-insensitive.
//
// Outputs:
//
//	Thresholds - The ceilings, with critical defaulting to 0 when absent.
//	error - Non-nil for an unknown severity or a negative ceiling.
func NewThresholds(ceilings map[string]int) (Thresholds, error) {
	t := Thresholds{ceilings: map[validate.Severity]int{validate.SeverityCritical: 0}}
	for name, max := range ceilings {
		sev, err := validate.ParseSeverity(name)
		if err != nil {
			return Thresholds{}, err
		}
		if max < 0 {
			return Thresholds{}, fmt.Errorf("threshold for %s must not be negative, got %d", sev, max)
		}
		t.ceilings[sev] = max
	}
	return t, nil
}

// MustThresholds is NewThresholds for static configuration; it panics on error.
func MustThresholds(ceilings map[string]int) Thresholds {
	t, err := NewThresholds(ceilings)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultThresholds returns critical:0 high:2 medium:5 low:10.
func DefaultThresholds() Thresholds {
	return MustThresholds(map[string]int{"critical": 0, "high": 2, "medium": 5, "low": 10})
}

// Ceiling returns the ceiling for sev and whether one is set.
func (t Thresholds) Ceiling(sev validate.Severity) (int, bool) {
	if t.ceilings == nil {
		if sev == validate.SeverityCritical {
			return 0, true
		}
		return 0, false
	}
	max, ok := t.ceilings[sev]
	return max, ok
}

// Map returns a copy of the configured ceilings keyed by severity name.
func (t Thresholds) Map() map[string]int {
	out := make(map[string]int, len(t.ceilings))
	for sev, max := range t.ceilings {
		out[string(sev)] = max
	}
	if _, ok := out[string(validate.SeverityCritical)]; !ok {
		out[string(validate.SeverityCritical)] = 0
	}
	return out
}

// Verdict is the gate's decision for one set of issues.
type Verdict struct {
	// Passed is true iff every severity's count is within its ceiling.
	Passed bool `json:"passed"`

	// Violating holds every issue at a severity whose count exceeds its
	// ceiling. Empty when Passed.
	Violating []validate.Issue `json:"violating_issues,omitempty"`

	// Counts are the gated counts per severity.
	Counts SeverityCounts `json:"counts"`

	// Exceeded lists the severities over their ceiling, worst first.
	Exceeded []validate.Severity `json:"exceeded,omitempty"`
}

// Evaluate compares issue counts to the thresholds.
//
// Description:
//
//	Counts the gated issues per severity and fails every severity whose
//	count exceeds its ceiling. The verdict carries all issues of the
//	failing severities. Adding issues can never turn a failing verdict into
//	a passing one.
//
// Inputs:
//
//	issues - Validation issues for one candidate.
//	thresholds - Per-severity ceilings.
//
// Outputs:
//
//	Verdict - Pass/fail plus the violating issues.
func Evaluate(issues []validate.Issue, thresholds Thresholds) Verdict {
	counts := Count(issues, thresholds.IncludeInformational)

	exceeded := make(map[validate.Severity]bool)
	v := Verdict{Passed: true, Counts: counts}
	for _, sev := range validate.Severities {
		max, ok := thresholds.Ceiling(sev)
		if ok && counts[sev] > max {
			exceeded[sev] = true
			v.Exceeded = append(v.Exceeded, sev)
			v.Passed = false
		}
	}
	if v.Passed {
		return v
	}

	for _, issue := range issues {
		if issue.Informational && !thresholds.IncludeInformational {
			continue
		}
		if exceeded[issue.Severity] {
			v.Violating = append(v.Violating, issue)
		}
	}
	sort.SliceStable(v.Violating, func(i, j int) bool {
		return v.Violating[i].Severity.Worse(v.Violating[j].Severity)
	})
	return v
}
