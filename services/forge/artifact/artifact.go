// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact holds candidate source produced by a generation oracle.
//
// An Artifact is an immutable value: the raw Python text plus a syntax tree
// that is parsed on first use. Repair never mutates an Artifact; it builds a
// new one from new text.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Language is the one grammar candidates are parsed with.
const Language = "python"

// SyntaxError describes why a candidate could not be parsed.
type SyntaxError struct {
	// Line is 1-indexed.
	Line int
	// Column is 1-indexed.
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Artifact is one candidate source text and its lazily parsed tree.
//
// Thread Safety: Safe for concurrent use. The tree is built once and only
// read afterwards.
type Artifact struct {
	source []byte
	hash   string

	once      sync.Once
	tree      *sitter.Tree
	syntaxErr *SyntaxError
}

// New creates an Artifact from raw text. Parsing is deferred until the tree
// is first requested.
func New(text string) *Artifact {
	sum := sha256.Sum256([]byte(text))
	return &Artifact{
		source: []byte(text),
		hash:   hex.EncodeToString(sum[:]),
	}
}

// FromOracle creates an Artifact from an oracle response, unwrapping a
// markdown code fence when the response contains one.
func FromOracle(response string) *Artifact {
	return New(Normalize(response))
}

var fenceRe = regexp.MustCompile("(?s)```[ \\t]*(?:python3?|py)?[ \\t]*\\r?\\n(.*?)```")

// Normalize extracts the first fenced code block from an oracle response.
// Responses without a fence are returned unchanged.
func Normalize(response string) string {
	m := fenceRe.FindStringSubmatch(response)
	if m == nil {
		return response
	}
	return m[1]
}

// Text returns the source text.
func (a *Artifact) Text() string {
	return string(a.source)
}

// Hash returns the hex SHA-256 of the source text.
func (a *Artifact) Hash() string {
	return a.hash
}

// Len returns the source length in bytes.
func (a *Artifact) Len() int {
	return len(a.source)
}

// Content returns the source text covered by a node of this artifact's tree.
func (a *Artifact) Content(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(a.source[n.StartByte():n.EndByte()])
}

// Source exposes the underlying bytes. Callers must not modify the slice.
func (a *Artifact) Source() []byte {
	return a.source
}

// Root returns the module node of the parsed tree.
//
// Description:
//
//	Parses the source on first call. A source that is not valid UTF-8 or
//	whose tree contains an ERROR or missing node yields a *SyntaxError and
//	a nil node.
//
// Outputs:
//
//	*sitter.Node - The module node. Nil when parsing failed.
//	error - *SyntaxError when the source does not parse.
func (a *Artifact) Root() (*sitter.Node, error) {
	a.once.Do(a.parse)
	if a.syntaxErr != nil {
		return nil, a.syntaxErr
	}
	return a.tree.RootNode(), nil
}

func (a *Artifact) parse() {
	if !utf8.Valid(a.source) {
		a.syntaxErr = &SyntaxError{Line: 1, Column: 1, Message: "content is not valid UTF-8"}
		return
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	// Parsing is CPU-bound and never waits on I/O.
	tree, err := parser.ParseCtx(context.Background(), nil, a.source)
	if err != nil {
		a.syntaxErr = &SyntaxError{Line: 1, Column: 1, Message: err.Error()}
		return
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		a.syntaxErr = &SyntaxError{Line: 1, Column: 1, Message: "parser returned no tree"}
		return
	}
	if root.HasError() {
		a.syntaxErr = locateError(root, a.source)
		tree.Close()
		return
	}
	a.tree = tree
}

// locateError finds the first ERROR or missing node in document order.
func locateError(root *sitter.Node, src []byte) *SyntaxError {
	var found *sitter.Node
	Walk(root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.IsError() || n.IsMissing() {
			found = n
			return false
		}
		return n.HasError()
	})
	if found == nil {
		return &SyntaxError{Line: 1, Column: 1, Message: "source contains syntax errors"}
	}

	pos := found.StartPoint()
	msg := "unexpected syntax"
	if found.IsMissing() {
		msg = fmt.Sprintf("missing %q", found.Type())
	} else {
		snippet := strings.TrimSpace(string(src[found.StartByte():found.EndByte()]))
		if idx := strings.IndexByte(snippet, '\n'); idx >= 0 {
			snippet = snippet[:idx]
		}
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		if snippet != "" {
			msg = fmt.Sprintf("unexpected syntax near %q", snippet)
		}
	}
	return &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg}
}

// Walk visits n and its descendants depth-first in document order. Children
// of a node are visited only when fn returns true for it.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}
