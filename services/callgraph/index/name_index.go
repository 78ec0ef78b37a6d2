// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index provides name-keyed lookups of the function definitions of
// a Program. It ignores scoping entirely.
package index

import (
	"errors"
	"sync"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// DefaultMaxEntries is the default maximum number of (name, function)
// entries the index can hold.
const DefaultMaxEntries = 1_000_000

// ErrMaxEntriesExceeded is returned when the index is full.
var ErrMaxEntriesExceeded = errors.New("name index: maximum entries exceeded")

// Namespace selects which of the index's name tables an entry goes into.
type Namespace uint8

const (
	// NamespaceDeclared holds names a function is bound to as a variable:
	// declarations, named expressions, var initializers, plain assignments.
	NamespaceDeclared Namespace = iota

	// NamespaceProperty holds names a function is stored under as an
	// object property: member assignments, object pairs, methods, fields.
	NamespaceProperty

	// NamespaceConstructor maps class names to constructor methods.
	NamespaceConstructor
)

// NameIndexOptions configures NameIndex limits.
type NameIndexOptions struct {
	// MaxEntries is the maximum number of entries across all namespaces.
	// Default: 1,000,000
	MaxEntries int
}

// NameIndexOption is a functional option for configuring NameIndex.
type NameIndexOption func(*NameIndexOptions)

// WithMaxEntries sets the maximum number of entries.
func WithMaxEntries(max int) NameIndexOption {
	return func(o *NameIndexOptions) {
		o.MaxEntries = max
	}
}

// NameIndex maps names to the function nodes defined under them.
//
// Thread Safety:
//
//	Safe for concurrent use.
type NameIndex struct {
	mu sync.RWMutex

	tables  [3]map[string][]ast.NodeID
	seen    map[entryKey]struct{}
	total   int
	options NameIndexOptions
}

type entryKey struct {
	ns   Namespace
	name string
	fn   ast.NodeID
}

// NewNameIndex creates an empty index.
func NewNameIndex(opts ...NameIndexOption) *NameIndex {
	options := NameIndexOptions{MaxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(&options)
	}
	idx := &NameIndex{
		seen:    make(map[entryKey]struct{}),
		options: options,
	}
	for i := range idx.tables {
		idx.tables[i] = make(map[string][]ast.NodeID)
	}
	return idx
}

// Add records fn under name in the given namespace. Duplicate entries are
// ignored. Empty names are ignored.
func (idx *NameIndex) Add(ns Namespace, name string, fn ast.NodeID) error {
	if name == "" {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	k := entryKey{ns: ns, name: name, fn: fn}
	if _, ok := idx.seen[k]; ok {
		return nil
	}
	if idx.total >= idx.options.MaxEntries {
		return ErrMaxEntriesExceeded
	}
	idx.seen[k] = struct{}{}
	idx.tables[ns][name] = append(idx.tables[ns][name], fn)
	idx.total++
	return nil
}

func (idx *NameIndex) lookup(ns Namespace, name string) []ast.NodeID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tables[ns][name]
}

// Declared returns functions bound to name as a variable.
func (idx *NameIndex) Declared(name string) []ast.NodeID {
	return idx.lookup(NamespaceDeclared, name)
}

// Properties returns functions stored in a property called name.
func (idx *NameIndex) Properties(name string) []ast.NodeID {
	return idx.lookup(NamespaceProperty, name)
}

// Constructors returns the constructor methods of classes called name.
func (idx *NameIndex) Constructors(name string) []ast.NodeID {
	return idx.lookup(NamespaceConstructor, name)
}

// Len returns the number of entries.
func (idx *NameIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.total
}

// BuildNameIndex indexes every function of prog by the names it is
// defined under.
//
// Description:
//
//	A function can be indexed under several names, e.g. a named function
//	expression assigned to a property is in both the declared and the
//	property table. Entries within a name are in node order.
//
// Outputs:
//
//	*NameIndex - The populated index.
//	error      - ErrMaxEntriesExceeded if the program has too many names.
func BuildNameIndex(prog *ast.Program, opts ...NameIndexOption) (*NameIndex, error) {
	idx := NewNameIndex(opts...)
	for _, fn := range prog.Functions() {
		for _, e := range definitionNames(prog, fn) {
			if err := idx.Add(e.ns, e.name, fn); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

type definition struct {
	ns   Namespace
	name string
}

// definitionNames lists the names a function is defined under.
func definitionNames(prog *ast.Program, fn ast.NodeID) []definition {
	var out []definition
	n := prog.Node(fn)

	if name := n.Field("name"); name.Valid() {
		text := prog.Node(name).Text
		if n.IsMethod() {
			out = append(out, definition{NamespaceProperty, text})
			if text == "constructor" {
				if class := enclosingClassName(prog, fn); class != "" {
					out = append(out, definition{NamespaceConstructor, class})
				}
			}
		} else {
			out = append(out, definition{NamespaceDeclared, text})
		}
	}

	if !n.Parent.Valid() {
		return out
	}
	parent := prog.Node(n.Parent)
	switch parent.Kind {
	case ast.KindVarDeclarator:
		if parent.Field("value") == fn {
			out = appendTarget(out, prog, parent.Field("name"))
		}
	case ast.KindAssignment:
		if parent.Field("right") == fn {
			out = appendTarget(out, prog, parent.Field("left"))
		}
	case ast.KindPair:
		if parent.Field("value") == fn {
			out = appendKey(out, prog, parent.Field("key"))
		}
	case ast.KindFieldDefinition:
		if parent.Field("value") == fn {
			out = appendKey(out, prog, parent.Field("property"))
		}
	}
	return out
}

// appendTarget classifies an assignment target.
func appendTarget(out []definition, prog *ast.Program, target ast.NodeID) []definition {
	if !target.Valid() {
		return out
	}
	t := prog.Node(target)
	switch t.Kind {
	case ast.KindIdentifier:
		return append(out, definition{NamespaceDeclared, t.Text})
	case ast.KindMember, ast.KindSubscript:
		if name, ok := prog.PropertyName(target); ok {
			return append(out, definition{NamespaceProperty, name})
		}
	}
	return out
}

func appendKey(out []definition, prog *ast.Program, key ast.NodeID) []definition {
	if !key.Valid() {
		return out
	}
	k := prog.Node(key)
	switch k.Kind {
	case ast.KindIdentifier, ast.KindPropertyIdentifier, ast.KindString, ast.KindLiteral:
		return append(out, definition{NamespaceProperty, k.Text})
	}
	return out
}

// enclosingClassName returns the name of the class whose body holds the
// method, looking through `var C = class {...}`.
func enclosingClassName(prog *ast.Program, method ast.NodeID) string {
	body := prog.Node(method).Parent
	if !body.Valid() {
		return ""
	}
	class := prog.Node(body).Parent
	if !class.Valid() || prog.Node(class).Kind != ast.KindClass {
		return ""
	}
	c := prog.Node(class)
	if name := c.Field("name"); name.Valid() {
		return prog.Node(name).Text
	}
	if c.Parent.Valid() {
		if p := prog.Node(c.Parent); p.Kind == ast.KindVarDeclarator && p.Field("value") == class {
			if name := p.Field("name"); name.Valid() && prog.Node(name).Kind == ast.KindIdentifier {
				return prog.Node(name).Text
			}
		}
	}
	return ""
}
