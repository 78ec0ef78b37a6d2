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
	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// CallMode describes how a resolved function is invoked at a call site.
type CallMode uint8

const (
	// CallDirect is f(a, b) or new F(a, b).
	CallDirect CallMode = iota

	// CallReflectiveCall is f.call(thisArg, a, b).
	CallReflectiveCall

	// CallReflectiveApply is f.apply(thisArg, args). Arguments are not tracked.
	CallReflectiveApply
)

// Builder derives flow edges from a Program with resolved bindings.
//
// Description:
//
//	Builder maps syntax to value positions and adds the intraprocedural
//	edges of the whole program. Interprocedural edges are added one call
//	edge at a time through ConnectCall, as a strategy discovers callees.
//
// Thread Safety: Not safe for concurrent use.
type Builder struct {
	prog  *ast.Program
	graph *Graph
}

// NewBuilder creates a builder writing into g.
//
// Outputs:
//
//	*Builder - The builder.
//	error    - ast.ErrBindingsNotResolved when prog has no bindings yet.
func NewBuilder(prog *ast.Program, g *Graph) (*Builder, error) {
	if !prog.BindingsResolved() {
		return nil, ast.ErrBindingsNotResolved
	}
	return &Builder{prog: prog, graph: g}, nil
}

// Graph returns the graph the builder writes into.
func (b *Builder) Graph() *Graph {
	return b.graph
}

// ValueOf returns the position holding the value of an expression.
//
// Identifiers map to their variable, or to the property of the same name
// when unresolved. Member accesses and string-literal subscripts map to
// the property. Parentheses, sequences and assignments pass their value
// through. Anything else is its own expression position.
func (b *Builder) ValueOf(id ast.NodeID) Vertex {
	for {
		n := b.prog.Node(id)
		switch n.Kind {
		case ast.KindIdentifier:
			bind, _ := b.prog.BindingOf(id)
			if bind.Resolved() {
				return Var(bind.Decl)
			}
			return Prop(n.Text)
		case ast.KindMember, ast.KindSubscript:
			if name, ok := b.prog.PropertyName(id); ok {
				return Prop(name)
			}
			return Expr(id)
		case ast.KindParenthesized, ast.KindSequence:
			if len(n.Children) == 0 {
				return Expr(id)
			}
			id = n.Children[len(n.Children)-1]
		case ast.KindAssignment:
			right := n.Field("right")
			if !right.Valid() || n.Type != "assignment_expression" {
				return Expr(id)
			}
			id = right
		default:
			return Expr(id)
		}
	}
}

func (b *Builder) add(from, to Vertex) {
	b.graph.AddEdge(from, to)
}

// declOf returns the variable position of a declaring identifier.
func (b *Builder) declOf(name ast.NodeID) Vertex {
	bind, _ := b.prog.BindingOf(name)
	if bind.Resolved() {
		return Var(bind.Decl)
	}
	return Prop(b.prog.Node(name).Text)
}

// AddIntraprocedural adds every flow edge that is derivable without
// knowing any call target.
func (b *Builder) AddIntraprocedural() {
	for i := 0; i < b.prog.Len(); i++ {
		id := ast.NodeID(i)
		n := b.prog.Node(id)

		switch n.Kind {
		case ast.KindFunction:
			b.addFunction(n)

		case ast.KindClass:
			b.addClass(n)

		case ast.KindVarDeclarator:
			name, value := n.Field("name"), n.Field("value")
			if value.Valid() && name.Valid() && b.prog.Node(name).Kind == ast.KindIdentifier {
				b.add(b.ValueOf(value), b.declOf(name))
			}

		case ast.KindAssignment:
			left, right := n.Field("left"), n.Field("right")
			if n.Type == "assignment_expression" && left.Valid() && right.Valid() {
				b.add(b.ValueOf(right), b.ValueOf(left))
			}

		case ast.KindReturn:
			fn := n.EnclosingFunction
			if fn.Valid() && len(n.Children) > 0 {
				b.add(b.ValueOf(n.Children[0]), Ret(fn))
			}

		case ast.KindCall, ast.KindNew:
			b.addCallee(n)

		case ast.KindPair:
			key, value := n.Field("key"), n.Field("value")
			if key.Valid() && value.Valid() {
				if name := b.keyName(key); name != "" {
					b.add(b.ValueOf(value), Prop(name))
				}
			}

		case ast.KindIdentifier:
			if n.Type == "shorthand_property_identifier" {
				b.add(b.ValueOf(id), Prop(n.Text))
			}

		case ast.KindFieldDefinition:
			prop, value := n.Field("property"), n.Field("value")
			if prop.Valid() && value.Valid() {
				if name := b.keyName(prop); name != "" {
					b.add(b.ValueOf(value), Prop(name))
				}
			}

		case ast.KindTernary:
			for _, field := range []string{"consequence", "alternative"} {
				if branch := n.Field(field); branch.Valid() {
					b.add(b.ValueOf(branch), Expr(id))
				}
			}

		case ast.KindBinary:
			switch n.Text {
			case "||", "&&", "??":
				for _, field := range []string{"left", "right"} {
					if operand := n.Field(field); operand.Valid() {
						b.add(b.ValueOf(operand), Expr(id))
					}
				}
			}
		}
	}
}

func (b *Builder) addFunction(n *ast.Node) {
	fn := n.ID
	b.add(Func(fn), Expr(fn))

	if name := n.Field("name"); name.Valid() {
		if n.IsMethod() {
			if prop := b.keyName(name); prop != "" {
				b.add(Func(fn), Prop(prop))
			}
		} else {
			b.add(Func(fn), b.declOf(name))
		}
	}

	if n.IsArrow() {
		if body := n.Field("body"); body.Valid() && b.prog.Node(body).Type != "statement_block" {
			b.add(b.ValueOf(body), Ret(fn))
		}
	}
}

// addClass routes the constructor of a class to the class value and name.
func (b *Builder) addClass(n *ast.Node) {
	ctor := b.Constructor(n.ID)
	if !ctor.Valid() {
		return
	}
	b.add(Func(ctor), Expr(n.ID))
	if name := n.Field("name"); name.Valid() {
		b.add(Func(ctor), b.declOf(name))
	}
}

// Constructor returns the constructor method of a class, or NoNode.
func (b *Builder) Constructor(class ast.NodeID) ast.NodeID {
	body := b.prog.Node(class).Field("body")
	if !body.Valid() {
		return ast.NoNode
	}
	for _, member := range b.prog.Node(body).Children {
		m := b.prog.Node(member)
		if !m.IsMethod() {
			continue
		}
		if name := m.Field("name"); name.Valid() && b.prog.Node(name).Text == "constructor" {
			return member
		}
	}
	return ast.NoNode
}

func (b *Builder) addCallee(n *ast.Node) {
	callee := b.prog.Callee(n.ID)
	if !callee.Valid() {
		return
	}
	b.add(b.ValueOf(callee), Callee(n.ID))

	if _, mode := b.ReflectiveTarget(n.ID); mode != CallDirect {
		recv := b.prog.Node(callee).Field("object")
		b.add(b.ValueOf(recv), ReflectiveCallee(n.ID))
	}
}

// ReflectiveTarget reports whether call is f.call(...) or f.apply(...),
// returning the receiver expression f and the mode.
func (b *Builder) ReflectiveTarget(call ast.NodeID) (ast.NodeID, CallMode) {
	n := b.prog.Node(call)
	if n.Kind != ast.KindCall {
		return ast.NoNode, CallDirect
	}
	callee := b.prog.Callee(call)
	if !callee.Valid() || b.prog.Node(callee).Kind != ast.KindMember {
		return ast.NoNode, CallDirect
	}
	recv := b.prog.Node(callee).Field("object")
	if !recv.Valid() {
		return ast.NoNode, CallDirect
	}
	name, _ := b.prog.PropertyName(callee)
	switch name {
	case "call":
		return recv, CallReflectiveCall
	case "apply":
		return recv, CallReflectiveApply
	}
	return ast.NoNode, CallDirect
}

// keyName returns the static name of an object key or class member name.
func (b *Builder) keyName(key ast.NodeID) string {
	k := b.prog.Node(key)
	switch k.Kind {
	case ast.KindIdentifier, ast.KindPropertyIdentifier, ast.KindString, ast.KindLiteral:
		return k.Text
	}
	return ""
}

// paramDecl returns the declaring identifier of a simple parameter,
// looking through a default value. Destructuring and rest parameters
// return NoNode.
func (b *Builder) paramDecl(param ast.NodeID) ast.NodeID {
	p := b.prog.Node(param)
	if p.Type == "assignment_pattern" {
		param = p.Field("left")
		if !param.Valid() {
			return ast.NoNode
		}
		p = b.prog.Node(param)
	}
	if p.Type != "identifier" {
		return ast.NoNode
	}
	return param
}

// ConnectCall adds the interprocedural edges for one call edge: argument
// to parameter and return value to call result.
//
// Outputs:
//
//	[]Edge - The edges that were not already in the graph.
func (b *Builder) ConnectCall(call, fn ast.NodeID, mode CallMode) []Edge {
	var added []Edge
	connect := func(from, to Vertex) {
		if b.graph.AddEdge(from, to) {
			added = append(added, Edge{From: from, To: to})
		}
	}

	args := b.prog.Args(call)
	switch mode {
	case CallReflectiveCall:
		if len(args) > 0 {
			args = args[1:]
		}
	case CallReflectiveApply:
		args = nil
	}

	params := b.prog.Params(fn)
	for i, arg := range args {
		if i >= len(params) {
			break
		}
		if b.prog.Node(arg).Kind == ast.KindSpread {
			break
		}
		decl := b.paramDecl(params[i])
		if !decl.Valid() {
			continue
		}
		connect(b.ValueOf(arg), b.declOf(decl))
	}
	connect(Ret(fn), Expr(call))
	return added
}
