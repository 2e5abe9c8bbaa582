// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Function is a function or method definition found in the tree.
type Function struct {
	Name       string
	Async      bool
	Decorators []string
	Docstring  string
	HasDoc     bool

	// Class is the enclosing class name for direct class members.
	Class string

	// Node is the function_definition node. Outer is the enclosing
	// decorated_definition when decorators are present, otherwise Node.
	Node  *sitter.Node
	Outer *sitter.Node
	Body  *sitter.Node

	// Line and Column are 1-indexed and point at the definition keyword.
	Line   int
	Column int
}

// HasDecorator reports whether any decorator ends with the given name,
// so "abstractmethod" matches both "@abstractmethod" and "@abc.abstractmethod".
func (f Function) HasDecorator(name string) bool {
	for _, d := range f.Decorators {
		if d == name || strings.HasSuffix(d, "."+name) {
			return true
		}
	}
	return false
}

// Class is a top-level class definition.
type Class struct {
	Name       string
	Bases      []string
	Decorators []string
	Docstring  string
	Methods    []Function

	Node *sitter.Node
	Body *sitter.Node

	Line   int
	Column int
}

// DerivesFrom reports whether the class lists base among its bases. Dotted
// and subscripted forms match on the final identifier.
func (c Class) DerivesFrom(base string) bool {
	want := BaseIdent(base)
	for _, b := range c.Bases {
		if BaseIdent(b) == want {
			return true
		}
	}
	return false
}

// BaseIdent reduces a base expression such as "abc.Base[T]" to "Base".
func BaseIdent(expr string) string {
	expr = strings.TrimSpace(expr)
	if i := strings.IndexByte(expr, '['); i >= 0 {
		expr = expr[:i]
	}
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		expr = expr[i+1:]
	}
	return strings.TrimSpace(expr)
}

// Classes returns the module's top-level classes, including decorated ones.
// It returns nil when the artifact does not parse.
func (a *Artifact) Classes() []Class {
	root, err := a.Root()
	if err != nil {
		return nil
	}

	var classes []Class
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "class_definition":
			classes = append(classes, a.class(child, nil))
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "class_definition" {
				classes = append(classes, a.class(def, a.decorators(child)))
			}
		}
	}
	return classes
}

func (a *Artifact) class(node *sitter.Node, decorators []string) Class {
	c := Class{
		Decorators: decorators,
		Node:       node,
		Line:       int(node.StartPoint().Row) + 1,
		Column:     int(node.StartPoint().Column) + 1,
	}
	if name := node.ChildByFieldName("name"); name != nil {
		c.Name = a.Content(name)
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			switch arg.Type() {
			case "identifier", "attribute", "subscript":
				c.Bases = append(c.Bases, a.Content(arg))
			}
		}
	}
	c.Body = node.ChildByFieldName("body")
	if c.Body == nil {
		return c
	}
	c.Docstring, _ = a.docstring(c.Body)

	for i := 0; i < int(c.Body.ChildCount()); i++ {
		member := c.Body.Child(i)
		switch member.Type() {
		case "function_definition":
			c.Methods = append(c.Methods, a.function(member, member, nil, c.Name))
		case "decorated_definition":
			def := member.ChildByFieldName("definition")
			if def != nil && def.Type() == "function_definition" {
				c.Methods = append(c.Methods, a.function(def, member, a.decorators(member), c.Name))
			}
		}
	}
	return c
}

// Functions returns every function definition in the module, nested ones
// included, in document order. It returns nil when the artifact does not parse.
func (a *Artifact) Functions() []Function {
	root, err := a.Root()
	if err != nil {
		return nil
	}

	var fns []Function
	Walk(root, func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		outer := n
		var decorators []string
		if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
			outer = p
			decorators = a.decorators(p)
		}
		fns = append(fns, a.function(n, outer, decorators, a.enclosingClass(outer)))
		return true
	})
	return fns
}

func (a *Artifact) function(node, outer *sitter.Node, decorators []string, class string) Function {
	f := Function{
		Decorators: decorators,
		Class:      class,
		Node:       node,
		Outer:      outer,
		Line:       int(node.StartPoint().Row) + 1,
		Column:     int(node.StartPoint().Column) + 1,
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		// async keyword is an anonymous child of function_definition
		if node.Child(i).Type() == "async" {
			f.Async = true
			break
		}
	}
	if name := node.ChildByFieldName("name"); name != nil {
		f.Name = a.Content(name)
	}
	f.Body = node.ChildByFieldName("body")
	if f.Body != nil {
		f.Docstring, f.HasDoc = a.docstring(f.Body)
	}
	return f
}

// enclosingClass returns the class name when node is a direct member of a
// class body.
func (a *Artifact) enclosingClass(node *sitter.Node) string {
	block := node.Parent()
	if block == nil || block.Type() != "block" {
		return ""
	}
	cls := block.Parent()
	if cls == nil || cls.Type() != "class_definition" {
		return ""
	}
	return a.Content(cls.ChildByFieldName("name"))
}

func (a *Artifact) decorators(node *sitter.Node) []string {
	var out []string
	for i := 0; i < int(node.ChildCount()); i++ {
		dec := node.Child(i)
		if dec.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(dec.NamedChildCount()); j++ {
			expr := dec.NamedChild(j)
			if expr.Type() == "call" {
				expr = expr.ChildByFieldName("function")
			}
			if expr != nil && (expr.Type() == "identifier" || expr.Type() == "attribute") {
				out = append(out, a.Content(expr))
				break
			}
		}
	}
	return out
}

// docstring returns the leading string statement of a block.
func (a *Artifact) docstring(block *sitter.Node) (string, bool) {
	first := FirstStatement(block)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return "", false
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return "", false
	}
	return StringValue(a.Content(str)), true
}

// FirstStatement returns the first child of a block that is not a comment.
func FirstStatement(block *sitter.Node) *sitter.Node {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}

// Statements returns the non-comment children of a block.
func Statements(block *sitter.Node) []*sitter.Node {
	if block == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() != "comment" {
			out = append(out, child)
		}
	}
	return out
}

// StringValue strips the prefix and quotes from a Python string literal.
func StringValue(raw string) string {
	s := strings.TrimLeft(raw, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
