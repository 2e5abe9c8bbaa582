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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

var workerShape = Shape{
	RequiredBase:      "Component",
	RequiredMethods:   []string{"init", "process"},
	SuspendingMethods: []string{"process"},
}

const cleanWorker = `class Worker(Component):
    """Processes jobs."""

    def init(self, cfg):
        """Store configuration."""
        self.cfg = cfg

    async def process(self, item):
        """Handle one item."""
        try:
            return self.cfg.transform(item)
        except ValueError:
            return None
`

func filterKind(issues []Issue, kinds ...Kind) []Issue {
	var out []Issue
	for _, issue := range issues {
		for _, k := range kinds {
			if issue.Kind == k {
				out = append(out, issue)
			}
		}
	}
	return out
}

func TestValidate_CleanArtifact(t *testing.T) {
	v := NewValidator()
	issues := v.Validate(artifact.New(cleanWorker), workerShape)
	assert.Empty(t, issues)
}

func TestValidate_ParseFailureShortCircuits(t *testing.T) {
	inputs := []string{
		"class Worker(Component:\n    pass\n",
		"def process(self\n",
		"class Worker(Component):\n    password = 'abc123xyz'\n  def broken(:\n",
		string([]byte{0xc3, 0x28}),
	}
	v := NewValidator()
	for _, in := range inputs {
		issues := v.Validate(artifact.New(in), workerShape)
		require.Len(t, issues, 1, "input %q", in)
		assert.Equal(t, KindSyntaxError, issues[0].Kind)
		assert.Equal(t, SeverityCritical, issues[0].Severity)
		assert.Equal(t, DetectorParser, issues[0].Detector)
		assert.GreaterOrEqual(t, issues[0].Line, 1)
	}
}

func TestValidate_EmptyClassMissingMethods(t *testing.T) {
	v := NewValidator()
	issues := v.Validate(artifact.New("class Worker(Component):\n    pass\n"), workerShape)

	missing := filterKind(issues, KindMissingRequiredElement)
	require.Len(t, missing, 2)
	assert.Equal(t, "init", missing[0].Element)
	assert.Equal(t, "process", missing[1].Element)
	for _, issue := range missing {
		assert.Equal(t, SeverityHigh, issue.Severity)
		assert.True(t, issue.Repairable())
	}
	assert.True(t, AllRepairable(filterKind(issues, KindMissingRequiredElement)))
}

func TestValidate_InsecureLiteralScenario(t *testing.T) {
	src := cleanWorkerWithField(`    password = "abc123xyz"` + "\n")
	issues := NewValidator().Validate(artifact.New(src), workerShape)

	secrets := filterKind(issues, KindInsecureLiteral)
	require.Len(t, secrets, 1)
	assert.Equal(t, SeverityCritical, secrets[0].Severity)
	assert.NotContains(t, secrets[0].Message, "abc123xyz")
}

func TestValidate_DeterministicOrder(t *testing.T) {
	src := `class Worker(Component):
    def init(self):
        pass

    def process(self, item):
        # TODO: real logic
        return item
`
	v := NewValidator()
	first := v.Validate(artifact.New(src), workerShape)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, v.Validate(artifact.New(src), workerShape))
	}
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].Line, first[i].Line)
	}
}

func TestValidate_ConcurrentUse(t *testing.T) {
	v := NewValidator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := cleanWorker
			if i%2 == 1 {
				src = "class Worker(Component):\n    pass\n"
			}
			issues := v.Validate(artifact.New(src), workerShape)
			if i%2 == 0 {
				assert.Empty(t, issues)
			} else {
				assert.Len(t, filterKind(issues, KindMissingRequiredElement), 2)
			}
		}(i)
	}
	wg.Wait()
}

func TestNewValidator_Options(t *testing.T) {
	v := NewValidator(WithDetectors(ShapeDetector{}))
	assert.Equal(t, []string{DetectorShape}, v.Detectors())

	v = NewValidator()
	assert.Equal(t, []string{DetectorPlaceholder, DetectorShape, DetectorSecrets, DetectorQuality}, v.Detectors())
}

func TestSeverity(t *testing.T) {
	assert.True(t, SeverityCritical.Worse(SeverityHigh))
	assert.True(t, SeverityHigh.Worse(SeverityMedium))
	assert.True(t, SeverityMedium.Worse(SeverityLow))
	assert.False(t, SeverityLow.Worse(SeverityLow))

	s, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, Severity(""), Worst(nil))
	assert.Equal(t, SeverityHigh, Worst([]Issue{
		{Severity: SeverityLow}, {Severity: SeverityHigh}, {Severity: SeverityMedium},
	}))
}

func TestIssue_String(t *testing.T) {
	issue := Issue{Kind: KindMissingRequiredElement, Severity: SeverityHigh, Message: "class Worker is missing required method init", Line: 3, Column: 1}
	assert.Equal(t, "[high] missing_required_element at 3:1: class Worker is missing required method init", issue.String())

	issue.Line, issue.Column = 0, 0
	assert.Equal(t, "[high] missing_required_element: class Worker is missing required method init", issue.String())
}

func cleanWorkerWithField(field string) string {
	return "class Worker(Component):\n" + field + cleanWorker[len("class Worker(Component):\n"):]
}
