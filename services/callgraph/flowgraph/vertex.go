// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flowgraph

import (
	"fmt"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// VertexKind is the category of an abstract value position.
type VertexKind uint8

const (
	// VertexFunc is the definition site of a function value.
	VertexFunc VertexKind = iota

	// VertexVar is a declared variable, keyed by its declaring identifier.
	VertexVar

	// VertexProp is every property with a given name, on any object.
	// Unresolved globals are modeled as properties of the global object.
	VertexProp

	// VertexExpr is the value of an expression node.
	VertexExpr

	// VertexRet is the return value of a function.
	VertexRet

	// VertexCallee is the callee position of a call site.
	VertexCallee

	// VertexReflectiveCallee is the receiver of f.call(...) or f.apply(...).
	VertexReflectiveCallee
)

var vertexKindNames = [...]string{
	VertexFunc:             "Func",
	VertexVar:              "Var",
	VertexProp:             "Prop",
	VertexExpr:             "Expr",
	VertexRet:              "Ret",
	VertexCallee:           "Callee",
	VertexReflectiveCallee: "ReflectiveCallee",
}

// String returns the string representation of the VertexKind.
func (k VertexKind) String() string {
	if int(k) < len(vertexKindNames) {
		return vertexKindNames[k]
	}
	return fmt.Sprintf("VertexKind(%d)", uint8(k))
}

// Vertex is an abstract value position. Vertices are comparable and used
// directly as map keys; two vertices are the same position iff all fields
// are equal.
type Vertex struct {
	Kind VertexKind
	Node ast.NodeID
	Name string
}

// Func returns the definition-site position of fn.
func Func(fn ast.NodeID) Vertex { return Vertex{Kind: VertexFunc, Node: fn} }

// Var returns the position of the variable declared by decl.
func Var(decl ast.NodeID) Vertex { return Vertex{Kind: VertexVar, Node: decl} }

// Prop returns the position of every property called name.
func Prop(name string) Vertex { return Vertex{Kind: VertexProp, Node: ast.NoNode, Name: name} }

// Expr returns the position of the value of an expression node.
func Expr(node ast.NodeID) Vertex { return Vertex{Kind: VertexExpr, Node: node} }

// Ret returns the return-value position of fn.
func Ret(fn ast.NodeID) Vertex { return Vertex{Kind: VertexRet, Node: fn} }

// Callee returns the callee position of a call or new expression.
func Callee(call ast.NodeID) Vertex { return Vertex{Kind: VertexCallee, Node: call} }

// ReflectiveCallee returns the receiver position of a .call/.apply site.
func ReflectiveCallee(call ast.NodeID) Vertex {
	return Vertex{Kind: VertexReflectiveCallee, Node: call}
}

// String renders the vertex as Kind(node) or Prop(name).
func (v Vertex) String() string {
	if v.Kind == VertexProp {
		return fmt.Sprintf("Prop(%s)", v.Name)
	}
	return fmt.Sprintf("%s(%d)", v.Kind, v.Node)
}

// less orders vertices by kind, then node, then name.
func less(a, b Vertex) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Node != b.Node {
		return a.Node < b.Node
	}
	return a.Name < b.Name
}
