// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repair

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianForge/services/forge/artifact"
)

// Role selects the default body synthesized for a missing method.
type Role string

const (
	RoleConstructor Role = "constructor"
	RoleInitializer Role = "initializer"
	RoleProcessor   Role = "processor"
	RoleDefault     Role = "default"
)

var initializerNames = map[string]bool{
	"init": true, "initialize": true, "setup": true, "start": true,
	"open": true, "connect": true, "load": true,
}

var processorNames = map[string]bool{
	"process": true, "handle": true, "transform": true, "run": true,
	"execute": true, "apply": true, "__call__": true,
}

// RoleFor returns the synthesis role for a method name.
func RoleFor(name string) Role {
	switch {
	case name == "__init__":
		return RoleConstructor
	case initializerNames[strings.ToLower(name)]:
		return RoleInitializer
	case processorNames[strings.ToLower(name)]:
		return RoleProcessor
	}
	return RoleDefault
}

// Element is one synthesized method.
type Element struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Async bool   `json:"async"`

	// Signature is the def line without indentation.
	Signature string `json:"signature"`

	// Body holds the statements of the method, one per entry, unindented.
	Body []string `json:"body"`
}

// Synthesize builds the neutral default implementation for a method.
//
// Constructors delegate to the parent initializer. Processors return their
// first argument unchanged. Everything else returns None.
func Synthesize(name string, async bool) Element {
	e := Element{Name: name, Role: RoleFor(name), Async: async}
	prefix := "def "
	if async {
		prefix = "async def "
	}

	switch e.Role {
	case RoleConstructor:
		e.Signature = prefix + name + "(self, *args, **kwargs):"
		e.Body = []string{
			`"""Initialize the component."""`,
			"super().__init__(*args, **kwargs)",
		}
	case RoleProcessor:
		e.Signature = prefix + name + "(self, data=None, *args, **kwargs):"
		e.Body = []string{
			fmt.Sprintf(`"""Default %s implementation. Returns its input unchanged."""`, name),
			"return data",
		}
	case RoleInitializer:
		e.Signature = prefix + name + "(self, *args, **kwargs):"
		e.Body = []string{
			fmt.Sprintf(`"""Default %s implementation. Requires no setup."""`, name),
			"return None",
		}
	default:
		e.Signature = prefix + name + "(self, *args, **kwargs):"
		e.Body = []string{
			fmt.Sprintf(`"""Default %s implementation."""`, name),
			"return None",
		}
	}
	return e
}

// Render returns the method text with every line prefixed by indent and
// body lines further indented by unit. No trailing newline.
func (e Element) Render(indent, unit string) string {
	lines := make([]string, 0, len(e.Body)+1)
	lines = append(lines, indent+e.Signature)
	for _, stmt := range e.Body {
		lines = append(lines, indent+unit+stmt)
	}
	return strings.Join(lines, "\n")
}

// Check parses the element on its own and confirms it is exactly one
// function definition with the expected name.
func (e Element) Check() error {
	frag := artifact.New(e.Render("", "    ") + "\n")
	root, err := frag.Root()
	if err != nil {
		return fmt.Errorf("synthesized %s does not parse: %w", e.Name, err)
	}
	if root.NamedChildCount() != 1 {
		return fmt.Errorf("synthesized %s produced %d top-level nodes", e.Name, root.NamedChildCount())
	}
	fns := frag.Functions()
	if len(fns) != 1 || fns[0].Name != e.Name || fns[0].Async != e.Async {
		return fmt.Errorf("synthesized %s is not a single matching function definition", e.Name)
	}
	return nil
}
