// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"fmt"
)

// NodeID is a dense handle into the Program arena.
//
// IDs are assigned sequentially across all files in file-list order, in
// pre-order within each file, so a parent always has a smaller ID than
// any of its descendants.
type NodeID int32

// NoNode is the sentinel for "no node" (missing field, top-level code,
// unresolved binding).
const NoNode NodeID = -1

// Valid reports whether the ID refers to a node.
func (id NodeID) Valid() bool {
	return id >= 0
}

// NodeKind is the closed set of syntax categories the analysis distinguishes.
//
// Grammar node types that the analysis does not care about are lowered to
// KindOther; the raw grammar type is still available on Node.Type.
type NodeKind uint8

const (
	KindOther NodeKind = iota
	KindProgram
	KindFunction
	KindClass
	KindCall
	KindNew
	KindIdentifier
	KindPropertyIdentifier
	KindMember
	KindSubscript
	KindAssignment
	KindVarDeclaration
	KindVarDeclarator
	KindReturn
	KindObject
	KindPair
	KindArguments
	KindParameters
	KindCatch
	KindString
	KindLiteral
	KindThis
	KindParenthesized
	KindTernary
	KindBinary
	KindSequence
	KindSpread
	KindArray
	KindImport
	KindFieldDefinition
)

var kindNames = [...]string{
	KindOther:              "other",
	KindProgram:            "program",
	KindFunction:           "function",
	KindClass:              "class",
	KindCall:               "call",
	KindNew:                "new",
	KindIdentifier:         "identifier",
	KindPropertyIdentifier: "property_identifier",
	KindMember:             "member",
	KindSubscript:          "subscript",
	KindAssignment:         "assignment",
	KindVarDeclaration:     "var_declaration",
	KindVarDeclarator:      "var_declarator",
	KindReturn:             "return",
	KindObject:             "object",
	KindPair:               "pair",
	KindArguments:          "arguments",
	KindParameters:         "parameters",
	KindCatch:              "catch",
	KindString:             "string",
	KindLiteral:            "literal",
	KindThis:               "this",
	KindParenthesized:      "parenthesized",
	KindTernary:            "ternary",
	KindBinary:             "binary",
	KindSequence:           "sequence",
	KindSpread:             "spread",
	KindArray:              "array",
	KindImport:             "import",
	KindFieldDefinition:    "field_definition",
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Location is a source range. Lines are 1-based, columns 0-based.
type Location struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Position renders the start of the range as "line:column".
func (l Location) Position() string {
	return fmt.Sprintf("%d:%d", l.StartLine, l.StartCol)
}

// Node is one syntax element of the whole-program forest.
//
// Description:
//
//	Nodes are owned by the Program arena. Structural fields (Kind, Type,
//	Text, Loc, Parent, Children, Fields) are set when the file is lowered
//	from the tree-sitter tree. File and EnclosingFunction are set by the
//	linking pass inside Build, before the Program is returned.
//
// Thread Safety: Immutable once the Program is returned from Build.
type Node struct {
	// ID is the arena handle of this node.
	ID NodeID

	// Kind is the analysis-level category.
	Kind NodeKind

	// Type is the raw tree-sitter grammar type (e.g. "arrow_function").
	Type string

	// Text holds the source text for identifiers, property names and
	// literals, the unquoted content for strings, and the operator for
	// binary expressions. Empty otherwise.
	Text string

	// Loc is the source range of the node.
	Loc Location

	// Parent is the enclosing node, NoNode for a file root.
	Parent NodeID

	// Children are the named children in source order.
	Children []NodeID

	// Fields maps grammar field names ("function", "object", ...) to
	// children. Nil when the node has no named fields.
	Fields map[string]NodeID

	// File is the enclosing file path.
	File string

	// EnclosingFunction is the nearest ancestor function node, or NoNode
	// for top-level code.
	EnclosingFunction NodeID
}

// Field returns the child stored under a grammar field name, or NoNode.
func (n *Node) Field(name string) NodeID {
	if n.Fields == nil {
		return NoNode
	}
	if id, ok := n.Fields[name]; ok {
		return id
	}
	return NoNode
}

// IsFunctionDeclaration reports whether the node is a hoisted function
// declaration (as opposed to a function expression, arrow or method).
func (n *Node) IsFunctionDeclaration() bool {
	return n.Kind == KindFunction &&
		(n.Type == "function_declaration" || n.Type == "generator_function_declaration")
}

// IsMethod reports whether the node is a class or object method definition.
func (n *Node) IsMethod() bool {
	return n.Kind == KindFunction && n.Type == "method_definition"
}

// IsArrow reports whether the node is an arrow function.
func (n *Node) IsArrow() bool {
	return n.Kind == KindFunction && n.Type == "arrow_function"
}

// IsClassDeclaration reports whether the node is a class declaration
// statement (as opposed to a class expression).
func (n *Node) IsClassDeclaration() bool {
	return n.Kind == KindClass && n.Type == "class_declaration"
}

// Source is an in-memory source file.
type Source struct {
	// Path identifies the file in locations and exports.
	Path string

	// Content is the raw JavaScript source. Must be valid UTF-8.
	Content []byte
}

// File describes one parsed file of the Program.
type File struct {
	// Path is the file path as given to Build.
	Path string `json:"path"`

	// Hash is the hex SHA256 of the file content.
	Hash string `json:"hash"`

	// Root is the program node of the file.
	Root NodeID `json:"root"`

	// NodeCount is the number of nodes lowered from this file.
	NodeCount int `json:"node_count"`
}

// Binding is the resolved declaration of an identifier reference.
//
// Decl is the declaring identifier node, or NoNode when no enclosing scope
// declares Name (an implicit global or a built-in). ScopeID identifies the
// declaring scope, -1 when unresolved.
type Binding struct {
	Name    string
	Decl    NodeID
	ScopeID int
}

// Resolved reports whether some scope declares the name.
func (b Binding) Resolved() bool {
	return b.Decl.Valid()
}
