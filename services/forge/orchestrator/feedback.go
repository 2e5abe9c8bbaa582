// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Feedback renders violating issues for the next prompt: one line per
// issue, grouped under the detector that found it. Detectors appear in
// order of first occurrence.
func Feedback(issues []validate.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	var order []string
	groups := make(map[string][]validate.Issue)
	for _, issue := range issues {
		d := issue.Detector
		if d == "" {
			d = "validator"
		}
		if _, ok := groups[d]; !ok {
			order = append(order, d)
		}
		groups[d] = append(groups[d], issue)
	}

	var b strings.Builder
	for i, d := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		group := groups[d]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Line != group[j].Line {
				return group[i].Line < group[j].Line
			}
			return group[i].Column < group[j].Column
		})
		fmt.Fprintf(&b, "%s issues:\n", d)
		for _, issue := range group {
			fmt.Fprintf(&b, "- %s\n", issue.String())
		}
	}
	return b.String()
}
