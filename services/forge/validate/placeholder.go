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
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

var markerRe = regexp.MustCompile(`\b(TODO|FIXME|XXX|HACK)\b`)

// stubExempt decorators mark definitions whose empty body is intentional.
var stubExempt = []string{"abstractmethod", "abstractproperty", "overload"}

// PlaceholderDetector flags unfinished function bodies.
//
// A body is a stub when it holds nothing but pass, an ellipsis, or a
// docstring, or when its first real statement raises NotImplementedError. TODO,
// FIXME, XXX and HACK markers in docstrings and in comments inside function
// bodies are reported as placeholder markers.
type PlaceholderDetector struct{}

// Name implements Detector.
func (PlaceholderDetector) Name() string { return DetectorPlaceholder }

// Detect implements Detector.
func (d PlaceholderDetector) Detect(a *artifact.Artifact, _ Shape) []Issue {
	root, err := a.Root()
	if err != nil {
		return nil
	}

	protocols := protocolClasses(a)
	var issues []Issue

	if doc, ok := moduleDocstring(a, root); ok {
		if m := markerRe.FindString(doc.text); m != "" {
			issues = append(issues, markerIssue(m, "module docstring", doc.node))
		}
	}
	for _, c := range a.Classes() {
		if m := markerRe.FindString(c.Docstring); m != "" {
			issues = append(issues, markerIssue(m, fmt.Sprintf("docstring of class %s", c.Name), c.Node))
		}
	}

	for _, fn := range a.Functions() {
		if fn.Body == nil {
			continue
		}
		exempt := protocols[fn.Class]
		for _, name := range stubExempt {
			if fn.HasDecorator(name) {
				exempt = true
			}
		}
		if !exempt {
			if reason := stubReason(a, fn.Body); reason != "" {
				issues = append(issues, Issue{
					Kind:     KindPlaceholderStub,
					Severity: SeverityHigh,
					Message:  fmt.Sprintf("function %s %s", fn.Name, reason),
					Line:     fn.Line,
					Column:   fn.Column,
					Detector: DetectorPlaceholder,
					Element:  fn.Name,
				})
			}
		}

		if m := markerRe.FindString(fn.Docstring); m != "" {
			issues = append(issues, markerIssue(m, fmt.Sprintf("docstring of %s", fn.Name), fn.Node))
		}
		for _, c := range directComments(fn.Node) {
			if m := markerRe.FindString(a.Content(c)); m != "" {
				issues = append(issues, markerIssue(m, fmt.Sprintf("comment in %s", fn.Name), c))
			}
		}
	}
	return issues
}

func markerIssue(marker, where string, node *sitter.Node) Issue {
	return Issue{
		Kind:     KindPlaceholderMarker,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("%s marker in %s", marker, where),
		Line:     int(node.StartPoint().Row) + 1,
		Column:   int(node.StartPoint().Column) + 1,
		Detector: DetectorPlaceholder,
	}
}

// stubReason describes why a body is a stub, or returns "".
func stubReason(a *artifact.Artifact, body *sitter.Node) string {
	stmts := artifact.Statements(body)
	trivial := 0
	for i, stmt := range stmts {
		switch {
		case stmt.Type() == "pass_statement":
			trivial++
		case stmt.Type() == "expression_statement" && isEllipsisOrString(stmt, i == 0):
			trivial++
		case stmt.Type() == "raise_statement" && trivial == i && raisesNotImplemented(a, stmt):
			return "raises NotImplementedError"
		}
	}
	if trivial == len(stmts) {
		if len(stmts) == 1 && stmts[0].Type() == "expression_statement" && stmts[0].NamedChild(0).Type() == "string" {
			return "has only a docstring"
		}
		return "has an empty body"
	}
	return ""
}

func isEllipsisOrString(stmt *sitter.Node, first bool) bool {
	if stmt.NamedChildCount() != 1 {
		return false
	}
	switch stmt.NamedChild(0).Type() {
	case "ellipsis":
		return true
	case "string":
		return first
	}
	return false
}

func raisesNotImplemented(a *artifact.Artifact, stmt *sitter.Node) bool {
	if stmt.NamedChildCount() == 0 {
		return false
	}
	expr := stmt.NamedChild(0)
	if expr.Type() == "call" {
		expr = expr.ChildByFieldName("function")
	}
	return expr != nil && artifact.BaseIdent(a.Content(expr)) == "NotImplementedError"
}

// directComments returns comments inside a function definition, skipping
// nested functions which are inspected on their own.
func directComments(def *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	artifact.Walk(def, func(n *sitter.Node) bool {
		if n != def && n.Type() == "function_definition" {
			return false
		}
		if n.Type() == "comment" {
			out = append(out, n)
		}
		return true
	})
	return out
}

type docNode struct {
	text string
	node *sitter.Node
}

func moduleDocstring(a *artifact.Artifact, root *sitter.Node) (docNode, bool) {
	first := artifact.FirstStatement(root)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return docNode{}, false
	}
	if str := first.NamedChild(0); str.Type() == "string" {
		return docNode{text: artifact.StringValue(a.Content(str)), node: str}, true
	}
	return docNode{}, false
}

// protocolClasses returns the names of classes deriving from Protocol, whose
// bodies legitimately hold stubs.
func protocolClasses(a *artifact.Artifact) map[string]bool {
	out := make(map[string]bool)
	for _, c := range a.Classes() {
		for _, b := range c.Bases {
			if artifact.BaseIdent(b) == "Protocol" {
				out[c.Name] = true
			}
		}
	}
	return out
}
