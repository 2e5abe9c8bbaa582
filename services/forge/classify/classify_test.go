// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

func issue(kind validate.Kind, sev validate.Severity) validate.Issue {
	return validate.Issue{Kind: kind, Severity: sev, Message: string(kind) + " found", Line: 1, Column: 1}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind(" Security ")
	require.NoError(t, err)
	assert.Equal(t, KindSecurity, got)

	_, err = ParseKind("cosmic")
	assert.Error(t, err)
}

func TestKind_Taxonomy(t *testing.T) {
	assert.Equal(t, "syntax_error", KindSyntax.Taxonomy())
	assert.Equal(t, "security_violation", KindSecurity.Taxonomy())
	assert.Equal(t, "generic_runtime_error", Kind("other").Taxonomy())
}

func TestFromIssues(t *testing.T) {
	tests := []struct {
		name     string
		issues   []validate.Issue
		kind     Kind
		severity validate.Severity
	}{
		{
			name:     "syntax",
			issues:   []validate.Issue{issue(validate.KindSyntaxError, validate.SeverityCritical)},
			kind:     KindSyntax,
			severity: validate.SeverityCritical,
		},
		{
			name: "structural takes worst severity",
			issues: []validate.Issue{
				issue(validate.KindNonSuspendingMethod, validate.SeverityMedium),
				issue(validate.KindMissingRequiredElement, validate.SeverityHigh),
			},
			kind:     KindStructural,
			severity: validate.SeverityHigh,
		},
		{
			name: "placeholders are structural",
			issues: []validate.Issue{
				issue(validate.KindPlaceholderStub, validate.SeverityHigh),
				issue(validate.KindPlaceholderMarker, validate.SeverityHigh),
			},
			kind:     KindStructural,
			severity: validate.SeverityHigh,
		},
		{
			name: "security wins over everything",
			issues: []validate.Issue{
				issue(validate.KindMissingRequiredElement, validate.SeverityHigh),
				issue(validate.KindInsecureLiteral, validate.SeverityHigh),
			},
			kind:     KindSecurity,
			severity: validate.SeverityCritical,
		},
		{
			name:     "unknown issue kind",
			issues:   []validate.Issue{issue(validate.Kind("mystery"), validate.SeverityLow)},
			kind:     KindGenericRuntime,
			severity: validate.SeverityLow,
		},
		{
			name:     "no issues",
			issues:   nil,
			kind:     KindGenericRuntime,
			severity: validate.SeverityHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := FromIssues("worker", "generate", tt.issues)
			assert.Equal(t, tt.kind, fc.Kind)
			assert.Equal(t, tt.severity, fc.Severity)
			assert.Equal(t, "worker", fc.ComponentID)
			assert.Equal(t, "generate", fc.Operation)
			assert.Nil(t, fc.Err)
			assert.NotEmpty(t, fc.Message)
		})
	}
}

func TestFromIssues_SecurityMessageNamesLiteral(t *testing.T) {
	secret := issue(validate.KindInsecureLiteral, validate.SeverityHigh)
	secret.Message = "literal value assigned to \"password\" looks like a credential"
	fc := FromIssues("c", "op", []validate.Issue{issue(validate.KindPlaceholderStub, validate.SeverityHigh), secret})
	assert.Contains(t, fc.Message, "2 security issues")
	assert.Contains(t, fc.Message, "password")
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		severity validate.Severity
	}{
		{"configuration error", &ConfigurationError{Resource: "template"}, KindConfiguration, validate.SeverityCritical},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), KindConfiguration, validate.SeverityCritical},
		{"missing executable", exec.ErrNotFound, KindConfiguration, validate.SeverityCritical},
		{"oracle misconfigured", fmt.Errorf("%w: no key", oracle.ErrMisconfigured), KindConfiguration, validate.SeverityCritical},
		{"oracle error", &oracle.Error{Provider: "openai", Op: "chat", Err: errors.New("503")}, KindInfrastructure, validate.SeverityHigh},
		{"oracle error over missing file", &oracle.Error{Provider: "x", Op: "y", Err: fs.ErrNotExist}, KindInfrastructure, validate.SeverityHigh},
		{"circuit open", fmt.Errorf("worker/generate: %w", resilience.ErrCircuitOpen), KindInfrastructure, validate.SeverityMedium},
		{"malformed", oracle.ErrMalformedResponse, KindInfrastructure, validate.SeverityHigh},
		{"deadline", context.DeadlineExceeded, KindInfrastructure, validate.SeverityHigh},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), KindInfrastructure, validate.SeverityHigh},
		{"anything else", errors.New("nil map write"), KindGenericRuntime, validate.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := FromError("worker", "generate", tt.err)
			assert.Equal(t, tt.kind, fc.Kind)
			assert.Equal(t, tt.severity, fc.Severity)
			assert.Equal(t, tt.err, fc.Err)
			assert.Equal(t, tt.err.Error(), fc.Message)
		})
	}
}

func TestClassify_ErrorTakesPrecedence(t *testing.T) {
	issues := []validate.Issue{issue(validate.KindInsecureLiteral, validate.SeverityHigh)}
	fc := Classify("c", "op", issues, &oracle.Error{Err: errors.New("down")})
	assert.Equal(t, KindInfrastructure, fc.Kind)

	fc = Classify("c", "op", issues, nil)
	assert.Equal(t, KindSecurity, fc.Kind)
}

func TestConfigurationError(t *testing.T) {
	assert.Equal(t, "configuration: template unavailable", (&ConfigurationError{Resource: "template"}).Error())
	err := &ConfigurationError{Resource: "replay", Err: fs.ErrPermission}
	assert.Equal(t, "configuration: replay: permission denied", err.Error())
	assert.ErrorIs(t, err, fs.ErrPermission)
}
