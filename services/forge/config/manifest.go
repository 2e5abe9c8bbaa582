// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianForge/services/forge/orchestrator"
	"github.com/AleutianAI/AleutianForge/services/forge/validate"
)

// Manifest is a job file for forge run.
//
// Example:
//
//	defaults:
//	  shape:
//	    required_base: Component
//	    required_methods: [init, process]
//	    suspending_methods: [process]
//	components:
//	  - id: ingest
//	    prompt_file: prompts/ingest.md
//	  - id: emit
//	    operation: regenerate
//	    prompt: Write a component that emits records.
type Manifest struct {
	Defaults   ManifestDefaults   `yaml:"defaults"`
	Components []orchestrator.Job `yaml:"components" validate:"required,min=1,dive"`
}

// ManifestDefaults apply to components that leave the field empty.
type ManifestDefaults struct {
	Operation string         `yaml:"operation"`
	Shape     validate.Shape `yaml:"shape"`
}

// LoadManifest reads a job manifest.
//
// Description:
//
//	Prompt files are resolved relative to the manifest and read eagerly.
//	Each component needs exactly one of prompt and prompt_file, and the
//	(id, operation) pairs must be unique.
//
// Outputs:
//
//	[]orchestrator.Job - The jobs in file order.
//	error - Wraps ErrInvalidConfig for invalid content.
func LoadManifest(path string) ([]orchestrator.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest %s: %v", ErrInvalidConfig, path, err)
	}
	if err := structValidator.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", ErrInvalidConfig, path, err)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool, len(m.Components))
	jobs := make([]orchestrator.Job, 0, len(m.Components))
	for i, job := range m.Components {
		if job.Operation == "" {
			job.Operation = m.Defaults.Operation
		}
		if job.Operation == "" {
			job.Operation = orchestrator.DefaultOperation
		}
		if emptyShape(job.Shape) {
			job.Shape = m.Defaults.Shape
		}

		hasPrompt := strings.TrimSpace(job.Prompt) != ""
		switch {
		case hasPrompt && job.PromptFile != "":
			return nil, fmt.Errorf("%w: component %d (%s): prompt and prompt_file are exclusive", ErrInvalidConfig, i, job.ComponentID)
		case job.PromptFile != "":
			p := job.PromptFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			text, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("component %s: read prompt: %w", job.ComponentID, err)
			}
			job.Prompt = string(text)
		case !hasPrompt:
			return nil, fmt.Errorf("%w: component %d (%s): prompt or prompt_file is required", ErrInvalidConfig, i, job.ComponentID)
		}

		key := job.ComponentID + "/" + job.Operation
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate component %s", ErrInvalidConfig, key)
		}
		seen[key] = true
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func emptyShape(s validate.Shape) bool {
	return s.RequiredBase == "" && len(s.RequiredMethods) == 0 && len(s.SuspendingMethods) == 0
}
