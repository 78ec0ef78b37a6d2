// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bindings builds the scope tree of a Program and resolves every
// identifier reference to its declaration.
//
// Scoping is function-level: var, let and const are all hoisted to the
// nearest enclosing function, and catch clauses get their own scope for the
// caught parameter only.
package bindings

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// Result is the output of Resolve.
type Result struct {
	// Global is the root of the scope tree.
	Global *Scope

	// Scopes lists every scope by ID.
	Scopes []*Scope

	// Resolved and Unresolved count identifier references by outcome.
	Resolved   int
	Unresolved int

	owned map[ast.NodeID]*Scope
}

// ScopeOf returns the scope owned by a function or catch clause node.
func (r *Result) ScopeOf(id ast.NodeID) (*Scope, bool) {
	s, ok := r.owned[id]
	return s, ok
}

// Resolve builds the scope tree and annotates prog with bindings.
//
// Description:
//
//	Pass 1 walks the arena in pre-order and records declarations:
//	function and class declarations and var/let/const declarators in the
//	nearest function scope, parameters and a named function expression's
//	own name in the function's scope, catch parameters in the catch scope
//	and import bindings in the global scope. Pass 2 resolves every
//	identifier by nearest-enclosing-scope lookup. Because all declarations
//	are known before pass 2 starts, reads that precede a declaration in
//	the same function resolve.
//
// Inputs:
//
//	prog - A linked Program without bindings.
//
// Outputs:
//
//	*Result - The scope tree and resolution counts.
//	error   - ast.ErrBindingsAlreadyResolved when prog was already annotated.
func Resolve(prog *ast.Program) (*Result, error) {
	if prog == nil {
		return nil, fmt.Errorf("resolve bindings: nil program")
	}
	if prog.BindingsResolved() {
		return nil, ast.ErrBindingsAlreadyResolved
	}

	r := &resolver{
		prog:       prog,
		containing: make([]*Scope, prog.Len()),
		result:     &Result{owned: make(map[ast.NodeID]*Scope)},
		selfNames:  make(map[ast.NodeID]bool),
	}
	r.result.Global = r.newScope(ScopeGlobal, ast.NoNode, nil)

	r.buildScopes()
	r.collectDeclarations()
	bindings := r.resolveReferences()

	if err := prog.AttachBindings(bindings); err != nil {
		return nil, err
	}

	slog.Debug("bindings resolved",
		slog.Int("scopes", len(r.result.Scopes)),
		slog.Int("resolved", r.result.Resolved),
		slog.Int("unresolved", r.result.Unresolved),
	)
	return r.result, nil
}

type resolver struct {
	prog *ast.Program

	// containing[id] is the innermost scope the node lives in. For a
	// function or catch node it is the outer scope, not the one it owns.
	containing []*Scope
	result     *Result

	// selfNames holds the name identifiers of named function expressions.
	// Any declaration in the body replaces them.
	selfNames map[ast.NodeID]bool
}

func (r *resolver) newScope(kind ScopeKind, node ast.NodeID, parent *Scope) *Scope {
	s := newScope(len(r.result.Scopes), kind, node, parent)
	r.result.Scopes = append(r.result.Scopes, s)
	if node.Valid() {
		r.result.owned[node] = s
	}
	return s
}

// buildScopes assigns the containing scope of every node. Parents precede
// children in the arena so a single forward sweep is enough.
func (r *resolver) buildScopes() {
	for i := 0; i < r.prog.Len(); i++ {
		n := r.prog.Node(ast.NodeID(i))
		if !n.Parent.Valid() {
			r.containing[i] = r.result.Global
			continue
		}
		if owned, ok := r.result.owned[n.Parent]; ok {
			r.containing[i] = owned
		} else {
			r.containing[i] = r.containing[n.Parent]
		}
		switch n.Kind {
		case ast.KindFunction:
			r.newScope(ScopeFunction, n.ID, r.containing[i])
		case ast.KindCatch:
			r.newScope(ScopeCatch, n.ID, r.containing[i])
		}
	}
}

func (r *resolver) collectDeclarations() {
	for i := 0; i < r.prog.Len(); i++ {
		n := r.prog.Node(ast.NodeID(i))
		outer := r.containing[i]

		switch n.Kind {
		case ast.KindFunction:
			own := r.result.owned[n.ID]
			if name := n.Field("name"); name.Valid() && !n.IsMethod() {
				if n.IsFunctionDeclaration() {
					outer.hoistTarget().redeclare(r.prog.Node(name).Text, name)
				} else {
					own.declare(r.prog.Node(name).Text, name)
					r.selfNames[name] = true
				}
			}
			for _, param := range r.prog.Params(n.ID) {
				for _, id := range PatternNames(r.prog, param) {
					own.redeclare(r.prog.Node(id).Text, id)
				}
			}

		case ast.KindClass:
			if name := n.Field("name"); name.Valid() && n.IsClassDeclaration() {
				r.declareHoisted(outer.hoistTarget(), name)
			}

		case ast.KindVarDeclarator:
			target := outer.hoistTarget()
			for _, id := range PatternNames(r.prog, n.Field("name")) {
				r.declareHoisted(target, id)
			}

		case ast.KindCatch:
			own := r.result.owned[n.ID]
			for _, id := range PatternNames(r.prog, n.Field("parameter")) {
				own.redeclare(r.prog.Node(id).Text, id)
			}

		case ast.KindImport:
			for _, id := range r.importNames(n.ID) {
				r.result.Global.declare(r.prog.Node(id).Text, id)
			}
		}
	}
}

// declareHoisted declares id in target. An earlier declaration wins unless
// it is a function expression's own name.
func (r *resolver) declareHoisted(target *Scope, id ast.NodeID) {
	name := r.prog.Node(id).Text
	if prev, ok := target.Declared(name); ok && r.selfNames[prev] {
		target.redeclare(name, id)
		return
	}
	target.declare(name, id)
}

// importNames returns the local identifiers an import statement introduces.
func (r *resolver) importNames(imp ast.NodeID) []ast.NodeID {
	var out []ast.NodeID
	r.prog.Walk(imp, func(n *ast.Node) bool {
		if n.Kind != ast.KindIdentifier {
			return true
		}
		parent := r.prog.Node(n.Parent)
		if parent.Type == "import_specifier" {
			if alias := parent.Field("alias"); alias.Valid() && alias != n.ID {
				return false
			}
		}
		out = append(out, n.ID)
		return false
	})
	return out
}

// PatternNames returns the identifiers bound by a binding pattern:
// a plain identifier, a default, a rest element or an object or array
// destructuring pattern.
func PatternNames(prog *ast.Program, pattern ast.NodeID) []ast.NodeID {
	if !pattern.Valid() {
		return nil
	}
	var out []ast.NodeID
	stack := []ast.NodeID{pattern}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !id.Valid() {
			continue
		}
		n := prog.Node(id)

		switch n.Type {
		case "identifier", "shorthand_property_identifier_pattern":
			out = append(out, id)
		case "assignment_pattern", "object_assignment_pattern":
			stack = append(stack, n.Field("left"))
		case "pair_pattern":
			stack = append(stack, n.Field("value"))
		case "object_pattern", "array_pattern", "rest_pattern":
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
	}
	return out
}

// lookupStart returns the scope an identifier is resolved from.
func (r *resolver) lookupStart(n *ast.Node) *Scope {
	start := r.containing[n.ID]
	if !n.Parent.Valid() {
		return start
	}
	parent := r.prog.Node(n.Parent)
	// A function declaration's name lives in the scope around the function.
	if parent.Kind == ast.KindFunction && parent.Field("name") == n.ID && parent.IsFunctionDeclaration() {
		return r.containing[parent.ID]
	}
	return start
}

func (r *resolver) resolveReferences() map[ast.NodeID]ast.Binding {
	bindings := make(map[ast.NodeID]ast.Binding)
	for i := 0; i < r.prog.Len(); i++ {
		n := r.prog.Node(ast.NodeID(i))
		if n.Kind != ast.KindIdentifier {
			continue
		}
		decl, scope := r.lookupStart(n).Lookup(n.Text)
		b := ast.Binding{Name: n.Text, Decl: decl, ScopeID: -1}
		if scope != nil {
			b.ScopeID = scope.ID
			r.result.Resolved++
		} else {
			r.result.Unresolved++
		}
		bindings[n.ID] = b
	}
	return bindings
}
