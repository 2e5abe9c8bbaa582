// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

func issue(sev validate.Severity) validate.Issue {
	return validate.Issue{Kind: validate.KindPlaceholderStub, Severity: sev, Message: string(sev)}
}

func TestCount(t *testing.T) {
	issues := []validate.Issue{
		issue(validate.SeverityHigh),
		issue(validate.SeverityHigh),
		issue(validate.SeverityLow),
		{Severity: validate.SeverityLow, Informational: true},
	}
	counts := Count(issues, false)
	assert.Equal(t, 2, counts[validate.SeverityHigh])
	assert.Equal(t, 1, counts[validate.SeverityLow])
	assert.Equal(t, 0, counts[validate.SeverityCritical])
	assert.Equal(t, "critical=0 high=2 medium=0 low=1", counts.String())

	assert.Equal(t, 2, Count(issues, true)[validate.SeverityLow])
}

func TestNewThresholds(t *testing.T) {
	th, err := NewThresholds(map[string]int{"HIGH": 2})
	require.NoError(t, err)

	max, ok := th.Ceiling(validate.SeverityCritical)
	assert.True(t, ok)
	assert.Equal(t, 0, max)

	max, ok = th.Ceiling(validate.SeverityHigh)
	assert.True(t, ok)
	assert.Equal(t, 2, max)

	_, ok = th.Ceiling(validate.SeverityMedium)
	assert.False(t, ok, "absent severity is unbounded")

	_, err = NewThresholds(map[string]int{"severe": 1})
	assert.Error(t, err)
	_, err = NewThresholds(map[string]int{"low": -1})
	assert.Error(t, err)

	th, err = NewThresholds(map[string]int{"critical": 3})
	require.NoError(t, err)
	max, _ = th.Ceiling(validate.SeverityCritical)
	assert.Equal(t, 3, max)
}

func TestZeroThresholdsKeepCriticalCeiling(t *testing.T) {
	var th Thresholds
	v := Evaluate([]validate.Issue{issue(validate.SeverityCritical)}, th)
	assert.False(t, v.Passed)

	v = Evaluate([]validate.Issue{issue(validate.SeverityHigh), issue(validate.SeverityHigh)}, th)
	assert.True(t, v.Passed)
}

func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		issues    []validate.Issue
		passed    bool
		violating int
	}{
		{"empty", nil, true, 0},
		{"two high tolerated", []validate.Issue{issue(validate.SeverityHigh), issue(validate.SeverityHigh)}, true, 0},
		{"three high", []validate.Issue{issue(validate.SeverityHigh), issue(validate.SeverityHigh), issue(validate.SeverityHigh), issue(validate.SeverityLow)}, false, 3},
		{"one critical", []validate.Issue{issue(validate.SeverityCritical), issue(validate.SeverityMedium)}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.issues, th)
			assert.Equal(t, tt.passed, v.Passed)
			assert.Len(t, v.Violating, tt.violating)
		})
	}
}

func TestEvaluate_ViolatingOrderedWorstFirst(t *testing.T) {
	th := MustThresholds(map[string]int{"high": 0, "medium": 0})
	v := Evaluate([]validate.Issue{
		issue(validate.SeverityMedium),
		issue(validate.SeverityHigh),
		issue(validate.SeverityCritical),
	}, th)
	require.False(t, v.Passed)
	require.Len(t, v.Violating, 3)
	assert.Equal(t, validate.SeverityCritical, v.Violating[0].Severity)
	assert.Equal(t, validate.SeverityMedium, v.Violating[2].Severity)
	assert.Equal(t, []validate.Severity{validate.SeverityCritical, validate.SeverityHigh, validate.SeverityMedium}, v.Exceeded)
}

func TestEvaluate_InformationalExcludedByDefault(t *testing.T) {
	info := validate.Issue{Kind: validate.KindQualityMetric, Severity: validate.SeverityLow, Informational: true}
	th := MustThresholds(map[string]int{"low": 0})

	assert.True(t, Evaluate([]validate.Issue{info}, th).Passed)

	th.IncludeInformational = true
	v := Evaluate([]validate.Issue{info}, th)
	assert.False(t, v.Passed)
	assert.Len(t, v.Violating, 1)
}

func TestEvaluate_Monotonic(t *testing.T) {
	th := MustThresholds(map[string]int{"high": 1, "medium": 2, "low": 3})
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 500; round++ {
		var small []validate.Issue
		for i := 0; i < rng.Intn(6); i++ {
			small = append(small, issue(validate.Severities[rng.Intn(4)]))
		}
		large := append([]validate.Issue(nil), small...)
		for i := 0; i < rng.Intn(6); i++ {
			large = append(large, issue(validate.Severities[rng.Intn(4)]))
		}

		if !Evaluate(small, th).Passed {
			assert.False(t, Evaluate(large, th).Passed, "superset of a failing set must fail")
		}
	}
}

func TestThresholdsMap(t *testing.T) {
	th := MustThresholds(map[string]int{"high": 2})
	assert.Equal(t, map[string]int{"critical": 0, "high": 2}, th.Map())
}
