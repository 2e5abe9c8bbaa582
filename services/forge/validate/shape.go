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

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

// ShapeDetector checks a candidate against its component shape.
//
// It reports a missing base abstraction (critical), missing required
// methods (high), duplicate method definitions (critical) and required
// suspending methods declared without async (medium).
type ShapeDetector struct{}

// Name implements Detector.
func (ShapeDetector) Name() string { return DetectorShape }

// Detect implements Detector.
func (ShapeDetector) Detect(a *artifact.Artifact, shape Shape) []Issue {
	classes := a.Classes()
	target, ok := TargetClass(classes, shape)
	if !ok {
		return []Issue{missingBaseIssue(classes, shape)}
	}

	var issues []Issue
	seen := make(map[string]artifact.Function)
	for _, m := range target.Methods {
		first, dup := seen[m.Name]
		if !dup {
			seen[m.Name] = m
			continue
		}
		if accessorPair(first, m) {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindDuplicateDefinition,
			Severity: SeverityCritical,
			Message: fmt.Sprintf("method %s is defined more than once in class %s (first at line %d)",
				m.Name, target.Name, first.Line),
			Line:     m.Line,
			Column:   m.Column,
			Detector: DetectorShape,
			Element:  m.Name,
		})
	}

	for _, name := range shape.RequiredMethods {
		if _, ok := seen[name]; ok {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindMissingRequiredElement,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("class %s is missing required method %s", target.Name, name),
			Line:     target.Line,
			Column:   target.Column,
			Detector: DetectorShape,
			Element:  name,
		})
	}

	for _, name := range shape.SuspendingMethods {
		m, ok := seen[name]
		if !ok || m.Async {
			continue
		}
		issues = append(issues, Issue{
			Kind:     KindNonSuspendingMethod,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("method %s must be declared async", name),
			Line:     m.Line,
			Column:   m.Column,
			Detector: DetectorShape,
			Element:  name,
		})
	}
	return issues
}

// TargetClass picks the class the shape applies to: the first class deriving
// from the required base, or the first class when the shape names no base.
func TargetClass(classes []artifact.Class, shape Shape) (artifact.Class, bool) {
	for _, c := range classes {
		if shape.RequiredBase == "" || c.DerivesFrom(shape.RequiredBase) {
			return c, true
		}
	}
	return artifact.Class{}, false
}

func missingBaseIssue(classes []artifact.Class, shape Shape) Issue {
	issue := Issue{
		Kind:     KindMissingBase,
		Severity: SeverityCritical,
		Detector: DetectorShape,
		Element:  shape.RequiredBase,
	}
	switch {
	case len(classes) == 0:
		issue.Message = "no class definition found"
		if shape.RequiredBase != "" {
			issue.Message = fmt.Sprintf("no class definition deriving from %s found", shape.RequiredBase)
		}
		issue.Line = 1
	default:
		first := classes[0]
		issue.Message = fmt.Sprintf("class %s does not derive from required base %s", first.Name, shape.RequiredBase)
		issue.Line = first.Line
		issue.Column = first.Column
	}
	return issue
}

// accessorPair reports whether a redefinition is a property setter or
// deleter, or one of a series of typing overloads.
func accessorPair(first, again artifact.Function) bool {
	for _, d := range again.Decorators {
		if d == first.Name+".setter" || d == first.Name+".deleter" || d == first.Name+".getter" {
			return true
		}
	}
	return first.HasDecorator("overload") || again.HasDecorator("overload")
}
