// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repair synthesizes missing required methods and splices them into
// a candidate's target class.
//
// Repair is fail-safe. The spliced text is re-parsed and re-checked against
// the shape, and any new defect discards the repair in favor of the
// original artifact.
package repair

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Plan is the ordered set of methods to add to one class.
type Plan struct {
	Class    string    `json:"class"`
	Elements []Element `json:"elements"`
}

// Names returns the planned method names in order.
func (p *Plan) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.Elements))
	for i, e := range p.Elements {
		names[i] = e.Name
	}
	return names
}

// Result is the outcome of a repair.
type Result struct {
	// Artifact is the repaired artifact when Applied, otherwise the input.
	Artifact *artifact.Artifact

	// Applied reports whether the repaired text was kept.
	Applied bool

	// Plan is nil when there was nothing to repair.
	Plan *Plan

	// Discarded explains why a planned repair was thrown away.
	Discarded string
}

// NewPlan builds the repair plan for the missing required element issues.
//
// Description:
//
//	Only missing_required_element issues contribute. Names already defined
//	in the target class and repeated names are skipped. Each element is
//	async when the shape lists it as suspending.
//
// Outputs:
//
//	*Plan - Nil when there is nothing to synthesize.
//	error - Non-nil when the target class cannot be found or an element
//	        fails its standalone check.
func NewPlan(a *artifact.Artifact, shape validate.Shape, issues []validate.Issue) (*Plan, error) {
	var names []string
	seen := make(map[string]bool)
	for _, issue := range issues {
		if issue.Kind != validate.KindMissingRequiredElement || issue.Element == "" || seen[issue.Element] {
			continue
		}
		seen[issue.Element] = true
		names = append(names, issue.Element)
	}
	if len(names) == 0 {
		return nil, nil
	}

	target, ok := validate.TargetClass(a.Classes(), shape)
	if !ok {
		return nil, fmt.Errorf("no class satisfies the required base %q", shape.RequiredBase)
	}
	defined := make(map[string]bool, len(target.Methods))
	for _, m := range target.Methods {
		defined[m.Name] = true
	}

	plan := &Plan{Class: target.Name}
	for _, name := range names {
		if defined[name] {
			continue
		}
		e := Synthesize(name, shape.IsSuspending(name))
		if err := e.Check(); err != nil {
			return nil, err
		}
		plan.Elements = append(plan.Elements, e)
	}
	if len(plan.Elements) == 0 {
		return nil, nil
	}
	return plan, nil
}

// Repair adds the missing methods named by issues to the target class.
//
// Description:
//
//	Callers pass only missing_required_element issues. With nothing to
//	synthesize the input artifact is returned unchanged. Otherwise the
//	methods are spliced after the last member of the class body, keeping
//	every existing byte in place, and the result is re-checked. A repair
//	that does not parse, loses a class or method, leaves a planned method
//	missing, or introduces any new shape issue is discarded.
//
// Inputs:
//
//	a - The candidate. Never modified.
//	shape - The component shape.
//	issues - Missing required element issues.
//
// Outputs:
//
//	Result - Always carries a usable artifact.
//
// Thread Safety: Safe for concurrent use.
func Repair(a *artifact.Artifact, shape validate.Shape, issues []validate.Issue) Result {
	plan, err := NewPlan(a, shape, issues)
	if err != nil {
		return Result{Artifact: a, Discarded: err.Error()}
	}
	if plan == nil {
		return Result{Artifact: a}
	}

	text, err := splice(a, shape, plan)
	if err != nil {
		return Result{Artifact: a, Plan: plan, Discarded: err.Error()}
	}
	repaired := artifact.New(text)
	if reason := recheck(a, repaired, shape, plan); reason != "" {
		return Result{Artifact: a, Plan: plan, Discarded: reason}
	}
	return Result{Artifact: repaired, Applied: true, Plan: plan}
}

// splice renders the plan into the target class and returns the new text.
func splice(a *artifact.Artifact, shape validate.Shape, plan *Plan) (string, error) {
	target, ok := validate.TargetClass(a.Classes(), shape)
	if !ok || target.Body == nil {
		return "", fmt.Errorf("class %s has no body", plan.Class)
	}
	src := a.Source()
	body := target.Body
	if body.NamedChildCount() == 0 {
		return "", fmt.Errorf("class %s has an empty body", plan.Class)
	}

	first := body.NamedChild(0)
	if stmt := artifact.FirstStatement(body); stmt != nil {
		first = stmt
	}
	last := body.NamedChild(int(body.NamedChildCount()) - 1)

	classIndent := linePrefix(src, target.Node.StartByte())
	prefix := linePrefix(src, first.StartByte())
	inline := strings.TrimSpace(prefix) != ""

	indent := prefix
	if inline {
		indent = classIndent + "    "
		if strings.Contains(classIndent, "\t") {
			indent = classIndent + "\t"
		}
	}
	unit := "    "
	if strings.Contains(indent, "\t") {
		unit = "\t"
	}

	var methods strings.Builder
	for _, e := range plan.Elements {
		methods.WriteString("\n\n")
		methods.WriteString(e.Render(indent, unit))
	}

	end := lineEnd(src, last.EndByte())

	var out bytes.Buffer
	out.Grow(len(src) + methods.Len() + len(indent) + 1)
	if inline {
		// class A(B): pass  ->  header, then the inline statements on their own line
		start := first.StartByte()
		out.Write(bytes.TrimRight(src[:start], " \t"))
		out.WriteString("\n")
		out.WriteString(indent)
		out.Write(src[start:end])
	} else {
		out.Write(src[:end])
	}
	out.WriteString(methods.String())
	out.Write(src[end:])
	return out.String(), nil
}

// linePrefix returns the text between the start of the line holding offset
// and offset.
func linePrefix(src []byte, offset uint32) string {
	start := bytes.LastIndexByte(src[:offset], '\n') + 1
	return string(src[start:offset])
}

// lineEnd returns the offset of the newline ending the line that holds
// offset, or len(src).
func lineEnd(src []byte, offset uint32) int {
	pos := int(offset)
	if pos > 0 && pos <= len(src) && src[pos-1] == '\n' {
		return pos - 1
	}
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(src)
}

// recheck returns a discard reason, or "" when the repaired artifact is an
// improvement.
func recheck(original, repaired *artifact.Artifact, shape validate.Shape, plan *Plan) string {
	if _, err := repaired.Root(); err != nil {
		return fmt.Sprintf("repaired text does not parse: %v", err)
	}

	before := original.Classes()
	after := repaired.Classes()
	if len(after) != len(before) {
		return fmt.Sprintf("repair changed the class count from %d to %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Name != before[i].Name {
			return fmt.Sprintf("repair lost class %s", before[i].Name)
		}
		if !keepsMethods(before[i], after[i]) {
			return fmt.Sprintf("repair lost a method of class %s", before[i].Name)
		}
	}

	var detector validate.ShapeDetector
	known := make(map[string]bool)
	for _, issue := range detector.Detect(original, shape) {
		known[issueKey(issue)] = true
	}
	planned := make(map[string]bool, len(plan.Elements))
	for _, name := range plan.Names() {
		planned[name] = true
	}
	for _, issue := range detector.Detect(repaired, shape) {
		if issue.Kind == validate.KindMissingRequiredElement && planned[issue.Element] {
			return fmt.Sprintf("method %s is still missing after repair", issue.Element)
		}
		if !known[issueKey(issue)] {
			return fmt.Sprintf("repair introduced %s", issue.String())
		}
	}
	return ""
}

func keepsMethods(before, after artifact.Class) bool {
	counts := make(map[string]int, len(after.Methods))
	for _, m := range after.Methods {
		counts[m.Name]++
	}
	for _, m := range before.Methods {
		if counts[m.Name] == 0 {
			return false
		}
		counts[m.Name]--
	}
	return true
}

func issueKey(i validate.Issue) string {
	return string(i.Kind) + "\x00" + i.Element
}
