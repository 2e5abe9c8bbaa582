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

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

// decisionNodes each add one to a function's complexity.
var decisionNodes = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"boolean_operator":       true,
	"conditional_expression": true,
	"for_in_clause":          true,
	"if_clause":              true,
	"case_clause":            true,
}

// FunctionMetrics describes one function.
type FunctionMetrics struct {
	Name       string `json:"name"`
	Class      string `json:"class,omitempty"`
	Complexity int    `json:"complexity"`
	Documented bool   `json:"documented"`
	Line       int    `json:"line"`
}

// Metrics are the informational quality measurements of an artifact.
type Metrics struct {
	Functions        []FunctionMetrics `json:"functions"`
	MaxComplexity    int               `json:"max_complexity"`
	HasErrorHandling bool              `json:"has_error_handling"`
	DocCoverage      float64           `json:"doc_coverage"`
}

// Measure computes quality metrics. A zero Metrics is returned when the
// artifact does not parse.
func Measure(a *artifact.Artifact) Metrics {
	root, err := a.Root()
	if err != nil {
		return Metrics{}
	}

	var m Metrics
	documented := 0
	for _, fn := range a.Functions() {
		fm := FunctionMetrics{
			Name:       fn.Name,
			Class:      fn.Class,
			Complexity: complexity(fn.Body),
			Documented: fn.HasDoc,
			Line:       fn.Line,
		}
		if fm.Documented {
			documented++
		}
		if fm.Complexity > m.MaxComplexity {
			m.MaxComplexity = fm.Complexity
		}
		m.Functions = append(m.Functions, fm)
	}
	if len(m.Functions) > 0 {
		m.DocCoverage = float64(documented) / float64(len(m.Functions))
	} else {
		m.DocCoverage = 1
	}

	artifact.Walk(root, func(n *sitter.Node) bool {
		if n.Type() == "try_statement" {
			m.HasErrorHandling = true
		}
		return !m.HasErrorHandling
	})
	return m
}

// Score condenses metrics into 0-100, where 100 means no quality findings.
func (m Metrics) Score(cfg QualityConfig) int {
	score := 100.0
	for _, fn := range m.Functions {
		if over := fn.Complexity - cfg.MaxComplexity; over > 0 {
			score -= float64(over) * 2
		}
	}
	if !m.HasErrorHandling && len(m.Functions) > 0 {
		score -= 15
	}
	if m.DocCoverage < cfg.MinDocCoverage {
		score -= (cfg.MinDocCoverage - m.DocCoverage) * 40
	}
	if score < 0 {
		return 0
	}
	return int(score + 0.5)
}

func complexity(body *sitter.Node) int {
	c := 1
	artifact.Walk(body, func(n *sitter.Node) bool {
		if n != body && (n.Type() == "function_definition" || n.Type() == "lambda") {
			return false
		}
		if decisionNodes[n.Type()] {
			c++
		}
		return true
	})
	return c
}

// QualityDetector reports informational quality findings. Its issues are low
// severity and marked Informational so gating ignores them by default.
type QualityDetector struct {
	Config QualityConfig
}

// Name implements Detector.
func (QualityDetector) Name() string { return DetectorQuality }

// Detect implements Detector.
func (d QualityDetector) Detect(a *artifact.Artifact, _ Shape) []Issue {
	cfg := d.Config
	if cfg.MaxComplexity <= 0 {
		cfg = DefaultQualityConfig()
	}
	m := Measure(a)

	var issues []Issue
	for _, fn := range m.Functions {
		if fn.Complexity <= cfg.MaxComplexity {
			continue
		}
		issues = append(issues, qualityIssue(
			fmt.Sprintf("function %s has complexity %d (limit %d)", fn.Name, fn.Complexity, cfg.MaxComplexity),
			fn.Line, fn.Name))
	}
	if len(m.Functions) > 0 && !m.HasErrorHandling {
		issues = append(issues, qualityIssue("no error handling found", 0, ""))
	}
	if m.DocCoverage < cfg.MinDocCoverage {
		issues = append(issues, qualityIssue(
			fmt.Sprintf("documentation coverage %.0f%% is below %.0f%%", m.DocCoverage*100, cfg.MinDocCoverage*100),
			0, ""))
	}
	return issues
}

func qualityIssue(msg string, line int, element string) Issue {
	return Issue{
		Kind:          KindQualityMetric,
		Severity:      SeverityLow,
		Message:       msg,
		Line:          line,
		Detector:      DetectorQuality,
		Element:       element,
		Informational: true,
	}
}
