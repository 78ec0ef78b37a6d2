// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bindings

import (
	"sort"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// ScopeKind identifies what syntactic construct owns a scope.
type ScopeKind uint8

const (
	// ScopeGlobal is the single root scope shared by all files.
	ScopeGlobal ScopeKind = iota

	// ScopeFunction is the scope of one function body.
	ScopeFunction

	// ScopeCatch holds the parameter of a catch clause.
	ScopeCatch
)

// String returns the string representation of the ScopeKind.
func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	case ScopeCatch:
		return "catch"
	default:
		return "unknown"
	}
}

// Scope is one node of the scope tree.
//
// Thread Safety: Immutable once Resolve returns.
type Scope struct {
	// ID is the creation index of the scope; the global scope is 0.
	ID int

	// Kind is the owning construct.
	Kind ScopeKind

	// Node is the function or catch clause that owns the scope,
	// NoNode for the global scope.
	Node ast.NodeID

	// Parent is the statically enclosing scope, nil for the global scope.
	Parent *Scope

	// Children are the directly nested scopes in source order.
	Children []*Scope

	decls map[string]ast.NodeID
}

func newScope(id int, kind ScopeKind, node ast.NodeID, parent *Scope) *Scope {
	s := &Scope{
		ID:     id,
		Kind:   kind,
		Node:   node,
		Parent: parent,
		decls:  make(map[string]ast.NodeID),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	return s
}

// declare records name unless it is already declared in this scope.
func (s *Scope) declare(name string, decl ast.NodeID) {
	if name == "" {
		return
	}
	if _, ok := s.decls[name]; !ok {
		s.decls[name] = decl
	}
}

// redeclare records name, replacing an earlier declaration.
func (s *Scope) redeclare(name string, decl ast.NodeID) {
	if name == "" {
		return
	}
	s.decls[name] = decl
}

// Declared returns the declaring identifier for name in this scope only.
func (s *Scope) Declared(name string) (ast.NodeID, bool) {
	id, ok := s.decls[name]
	return id, ok
}

// Lookup resolves name by walking outward from s.
//
// Outputs:
//
//	ast.NodeID - The declaring identifier, NoNode when unresolved.
//	*Scope     - The declaring scope, nil when unresolved.
func (s *Scope) Lookup(name string) (ast.NodeID, *Scope) {
	for cur := s; cur != nil; cur = cur.Parent {
		if id, ok := cur.decls[name]; ok {
			return id, cur
		}
	}
	return ast.NoNode, nil
}

// Names returns the names declared directly in this scope, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.decls))
	for name := range s.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hoistTarget returns the nearest function or global scope.
func (s *Scope) hoistTarget() *Scope {
	cur := s
	for cur.Kind == ScopeCatch && cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}
