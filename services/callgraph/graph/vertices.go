// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"sort"
	"sync"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// UnknownNative is the name of the native vertex used for call sites whose
// target cannot be determined.
const UnknownNative = "unknown"

// Callee is a possible target of a call site: *FuncVertex or *NativeVertex.
//
// The interface is sealed; consumers type-switch over the two variants.
type Callee interface {
	// VertexID returns the call-graph vertex id.
	VertexID() int

	// Name returns the function name, "" for anonymous functions.
	Name() string

	isCallee()
}

// FuncVertex is a function defined in the analyzed program.
type FuncVertex struct {
	// ID is the vertex id, distinct from the AST node id.
	ID int

	// Node is the function definition in the Program.
	Node ast.NodeID

	// FuncName is the declared or inferred name, "" when anonymous.
	FuncName string

	// File is the file defining the function.
	File string

	// Loc is the location of the function's name, or of the function
	// itself when anonymous.
	Loc ast.Location
}

// VertexID implements Callee.
func (f *FuncVertex) VertexID() int { return f.ID }

// Name implements Callee.
func (f *FuncVertex) Name() string { return f.FuncName }

func (*FuncVertex) isCallee() {}

// NativeVertex is a built-in or external function known only by name.
type NativeVertex struct {
	ID         int
	NativeName string
}

// VertexID implements Callee.
func (n *NativeVertex) VertexID() int { return n.ID }

// Name implements Callee.
func (n *NativeVertex) Name() string { return n.NativeName }

func (*NativeVertex) isCallee() {}

// CallVertex is a call or new expression of the analyzed program.
type CallVertex struct {
	// ID is the vertex id, distinct from the AST node id.
	ID int

	// Node is the call or new expression.
	Node ast.NodeID

	// Callee is the callee sub-expression, NoNode if absent.
	Callee ast.NodeID

	// Enclosing is the function containing the call, NoNode at top level.
	Enclosing ast.NodeID

	// File is the file containing the call.
	File string

	// Loc is the location of the call expression.
	Loc ast.Location

	// IsNew is true for new expressions.
	IsNew bool

	calleeName string
}

// TopLevel reports whether the call is outside every function.
func (c *CallVertex) TopLevel() bool {
	return !c.Enclosing.Valid()
}

// CalleeName renders the callee as "name", "object.property" or "null"
// when neither part has a static name.
func (c *CallVertex) CalleeName() string {
	return c.calleeName
}

// Vertices is the registry of call-graph vertices for one Program.
//
// Description:
//
//	Every function node maps to exactly one FuncVertex and every call or
//	new expression to exactly one CallVertex; both are created once in
//	NewVertices. Vertex ids continue after the last AST node id. Native
//	vertices are interned by name on first use.
//
// Thread Safety:
//
//	Func, Call, Funcs and CallSites are read-only and safe for concurrent
//	use. Native is guarded by a mutex, so a registry can be shared by
//	strategies running concurrently on the same Program.
type Vertices struct {
	prog *ast.Program

	funcs      []*FuncVertex
	funcByNode map[ast.NodeID]*FuncVertex
	calls      []*CallVertex
	callByNode map[ast.NodeID]*CallVertex

	mu      sync.Mutex
	natives map[string]*NativeVertex
	nextID  int
}

// NewVertices creates the registry for prog.
func NewVertices(prog *ast.Program) *Vertices {
	v := &Vertices{
		prog:       prog,
		funcByNode: make(map[ast.NodeID]*FuncVertex, len(prog.Functions())),
		callByNode: make(map[ast.NodeID]*CallVertex, len(prog.Calls())),
		natives:    make(map[string]*NativeVertex),
	}
	next := prog.Len()

	for _, fn := range prog.Functions() {
		n := prog.Node(fn)
		loc := n.Loc
		if name := n.Field("name"); name.Valid() {
			loc = prog.Node(name).Loc
		}
		fv := &FuncVertex{
			ID:       next,
			Node:     fn,
			FuncName: prog.FunctionName(fn),
			File:     n.File,
			Loc:      loc,
		}
		next++
		v.funcs = append(v.funcs, fv)
		v.funcByNode[fn] = fv
	}

	for _, call := range prog.Calls() {
		n := prog.Node(call)
		cv := &CallVertex{
			ID:         next,
			Node:       call,
			Callee:     prog.Callee(call),
			Enclosing:  n.EnclosingFunction,
			File:       n.File,
			Loc:        n.Loc,
			IsNew:      n.Kind == ast.KindNew,
			calleeName: calleeName(prog, prog.Callee(call)),
		}
		next++
		v.calls = append(v.calls, cv)
		v.callByNode[call] = cv
	}

	v.nextID = next
	return v
}

// calleeName renders a callee expression for reports.
func calleeName(prog *ast.Program, callee ast.NodeID) string {
	if !callee.Valid() {
		return nullField
	}
	n := prog.Node(callee)
	switch n.Kind {
	case ast.KindIdentifier:
		return n.Text
	case ast.KindMember, ast.KindSubscript:
		object := nullField
		if obj := n.Field("object"); obj.Valid() {
			o := prog.Node(obj)
			switch o.Kind {
			case ast.KindIdentifier, ast.KindThis:
				object = o.Text
			}
		}
		prop, ok := prog.PropertyName(callee)
		if !ok {
			prop = nullField
		}
		return object + "." + prop
	case ast.KindParenthesized:
		if len(n.Children) == 1 {
			return calleeName(prog, n.Children[0])
		}
	}
	return nullField
}

// Program returns the program the vertices belong to.
func (v *Vertices) Program() *ast.Program {
	return v.prog
}

// Func returns the FuncVertex of a function node, nil if fn is not one.
func (v *Vertices) Func(fn ast.NodeID) *FuncVertex {
	return v.funcByNode[fn]
}

// Call returns the CallVertex of a call node, nil if call is not one.
func (v *Vertices) Call(call ast.NodeID) *CallVertex {
	return v.callByNode[call]
}

// Funcs returns all function vertices in node order.
func (v *Vertices) Funcs() []*FuncVertex {
	return v.funcs
}

// CallSites returns all call vertices in node order.
func (v *Vertices) CallSites() []*CallVertex {
	return v.calls
}

// Native returns the native vertex for name, creating it on first use.
func (v *Vertices) Native(name string) *NativeVertex {
	v.mu.Lock()
	defer v.mu.Unlock()

	if nv, ok := v.natives[name]; ok {
		return nv
	}
	nv := &NativeVertex{ID: v.nextID, NativeName: name}
	v.nextID++
	v.natives[name] = nv
	return nv
}

// Natives returns the native vertices created so far, sorted by name.
func (v *Vertices) Natives() []*NativeVertex {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]*NativeVertex, 0, len(v.natives))
	for _, nv := range v.natives {
		out = append(out, nv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NativeName < out[j].NativeName })
	return out
}
