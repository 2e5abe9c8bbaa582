// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify maps validation issues and runtime errors to a fixed
// failure taxonomy.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os/exec"
	"strings"
	"syscall"

	"github.com/AleutianAI/AleutianForge/services/forge/oracle"
	"github.com/AleutianAI/AleutianForge/services/forge/resilience"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Kind is a failure kind. Each kind has one remediation policy.
type Kind string

const (
	KindSyntax         Kind = "syntax"
	KindStructural     Kind = "structural"
	KindSecurity       Kind = "security"
	KindConfiguration  Kind = "configuration"
	KindInfrastructure Kind = "infrastructure"
	KindGenericRuntime Kind = "generic_runtime"
)

// Kinds lists every failure kind.
var Kinds = []Kind{
	KindSyntax, KindStructural, KindSecurity,
	KindConfiguration, KindInfrastructure, KindGenericRuntime,
}

// ParseKind validates a kind name.
func ParseKind(v string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown failure kind %q", v)
}

// Taxonomy returns the error taxonomy name used in reports.
func (k Kind) Taxonomy() string {
	switch k {
	case KindSyntax:
		return "syntax_error"
	case KindStructural:
		return "structural_violation"
	case KindSecurity:
		return "security_violation"
	case KindConfiguration:
		return "configuration_violation"
	case KindInfrastructure:
		return "infrastructure_error"
	default:
		return "generic_runtime_error"
	}
}

// FailureContext is the unit handed to the policy table.
type FailureContext struct {
	Kind        Kind              `json:"kind"`
	Severity    validate.Severity `json:"severity"`
	ComponentID string            `json:"component_id"`
	Operation   string            `json:"operation"`
	Message     string            `json:"message"`
	RawIssues   []validate.Issue  `json:"raw_issues,omitempty"`

	// Err is the runtime error for non-issue failures.
	Err error `json:"-"`
}

// ConfigurationError reports a missing external resource or dependency
// discovered while setting up a pipeline.
type ConfigurationError struct {
	Resource string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration: %s unavailable", e.Resource)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Resource, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Classify maps either an error or an issue set to a FailureContext. A
// non-nil err takes precedence over issues.
func Classify(componentID, operation string, issues []validate.Issue, err error) FailureContext {
	if err != nil {
		return FromError(componentID, operation, err)
	}
	return FromIssues(componentID, operation, issues)
}

// FromIssues classifies validation issues.
//
// Description:
//
//	Any insecure literal makes the failure security. Otherwise a syntax
//	error makes it syntax. Shape and placeholder issues are structural. The
//	severity is the worst severity present.
//
// Inputs:
//
//	componentID - Identity of the component being generated.
//	operation - Pipeline operation name.
//	issues - The violating issues. May include non-violating security issues.
//
// Outputs:
//
//	FailureContext - Never has Err set.
func FromIssues(componentID, operation string, issues []validate.Issue) FailureContext {
	fc := FailureContext{
		ComponentID: componentID,
		Operation:   operation,
		Severity:    validate.Worst(issues),
		RawIssues:   issues,
	}

	switch {
	case len(issues) == 0:
		fc.Kind = KindGenericRuntime
		fc.Severity = validate.SeverityHigh
		fc.Message = "candidate rejected without issues"
		return fc
	case validate.HasKind(issues, validate.KindInsecureLiteral):
		fc.Kind = KindSecurity
		fc.Severity = validate.SeverityCritical
	case validate.HasKind(issues, validate.KindSyntaxError):
		fc.Kind = KindSyntax
	default:
		fc.Kind = KindStructural
		for _, issue := range issues {
			if !structuralKind(issue.Kind) {
				fc.Kind = KindGenericRuntime
				break
			}
		}
	}
	fc.Message = summarize(fc.Kind, issues)
	return fc
}

func structuralKind(k validate.Kind) bool {
	switch k {
	case validate.KindMissingBase, validate.KindMissingRequiredElement, validate.KindDuplicateDefinition,
		validate.KindNonSuspendingMethod, validate.KindPlaceholderStub, validate.KindPlaceholderMarker,
		validate.KindQualityMetric:
		return true
	}
	return false
}

func summarize(kind Kind, issues []validate.Issue) string {
	noun := "issues"
	if len(issues) == 1 {
		noun = "issue"
	}
	first := issues[0].Message
	if kind == KindSecurity {
		for _, issue := range issues {
			if issue.Kind == validate.KindInsecureLiteral {
				first = issue.Message
				break
			}
		}
	}
	return fmt.Sprintf("%d %s %s: %s", len(issues), kind, noun, first)
}

// FromError classifies a runtime error.
//
// Configuration errors and missing resources are configuration. Oracle
// failures, open circuits, timeouts and network errors are infrastructure.
// Everything else is generic runtime.
func FromError(componentID, operation string, err error) FailureContext {
	fc := FailureContext{
		ComponentID: componentID,
		Operation:   operation,
		Message:     err.Error(),
		Err:         err,
	}
	switch {
	case IsConfiguration(err):
		fc.Kind = KindConfiguration
		fc.Severity = validate.SeverityCritical
	case IsInfrastructure(err):
		fc.Kind = KindInfrastructure
		fc.Severity = validate.SeverityHigh
		if errors.Is(err, resilience.ErrCircuitOpen) {
			fc.Severity = validate.SeverityMedium
		}
	default:
		fc.Kind = KindGenericRuntime
		fc.Severity = validate.SeverityHigh
	}
	return fc
}

// IsConfiguration reports whether err is a setup-time resource problem.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) || errors.Is(err, oracle.ErrMisconfigured) {
		return true
	}
	var oracleErr *oracle.Error
	if errors.As(err, &oracleErr) {
		return false
	}
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, exec.ErrNotFound)
}

// IsInfrastructure reports whether err came from reaching the oracle.
func IsInfrastructure(err error) bool {
	var oracleErr *oracle.Error
	if errors.As(err, &oracleErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, oracle.ErrMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}
