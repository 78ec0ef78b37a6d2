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
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Program is the whole-program AST forest shared by every analysis pass.
//
// Description:
//
//	Program owns one arena of nodes for all files. IDs are dense and
//	assigned in file order, pre-order within a file. The binding
//	annotations are attached once by the binding resolver; reading them
//	before that fails with ErrBindingsNotResolved.
//
// Thread Safety:
//
//	Safe for concurrent reads once Build returns and AttachBindings has run.
//	AttachBindings itself must not race with readers.
type Program struct {
	nodes     []Node
	files     []File
	functions []NodeID
	calls     []NodeID

	bindings map[NodeID]Binding
}

// Build reads, parses and links the given files into a Program.
//
// Description:
//
//	All file contents are read before parsing begins. Parsing runs in
//	parallel; the merge is sequential in the order of paths so IDs are
//	deterministic. The first parse error aborts the whole build.
//
// Inputs:
//
//	ctx   - Context for cancellation.
//	paths - JavaScript files in analysis order. Must not be empty.
//	opts  - Parser options.
//
// Outputs:
//
//	*Program - The linked program.
//	error    - ErrNoSources, a read error, or a *ParseError.
func Build(ctx context.Context, paths []string, opts ...JavaScriptParserOption) (*Program, error) {
	sources, err := ReadSources(paths)
	if err != nil {
		return nil, err
	}
	return BuildFromSources(ctx, sources, opts...)
}

// ReadSources reads files into Sources, keeping the order of paths.
func ReadSources(paths []string) ([]Source, error) {
	if len(paths) == 0 {
		return nil, ErrNoSources
	}
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		sources = append(sources, Source{Path: p, Content: content})
	}
	return sources, nil
}

// BuildFromSources parses and links in-memory sources into a Program.
//
// Same contract as Build, without touching the filesystem.
func BuildFromSources(ctx context.Context, sources []Source, opts ...JavaScriptParserOption) (*Program, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	ctx, span := tracer.Start(ctx, "ast.BuildFromSources")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(sources)))

	start := time.Now()
	parser := NewJavaScriptParser(opts...)

	trees := make([]*FileTree, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parser.options.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			ft, err := parser.Parse(gctx, src.Content, src.Path)
			if err != nil {
				return err
			}
			trees[i] = ft
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prog := merge(trees)
	prog.link()

	slog.Debug("program built",
		slog.Int("files", len(prog.files)),
		slog.Int("nodes", len(prog.nodes)),
		slog.Int("functions", len(prog.functions)),
		slog.Int("calls", len(prog.calls)),
		slog.Duration("duration", time.Since(start)),
	)
	span.SetAttributes(attribute.Int("nodes", len(prog.nodes)))
	return prog, nil
}

// merge rebases each file's local IDs by the running node count.
func merge(trees []*FileTree) *Program {
	total := 0
	for _, ft := range trees {
		total += len(ft.Nodes)
	}
	prog := &Program{
		nodes: make([]Node, 0, total),
		files: make([]File, 0, len(trees)),
	}
	for _, ft := range trees {
		offset := NodeID(len(prog.nodes))
		for _, n := range ft.Nodes {
			n.ID += offset
			if n.Parent.Valid() {
				n.Parent += offset
			}
			if len(n.Children) > 0 {
				children := make([]NodeID, len(n.Children))
				for i, c := range n.Children {
					children[i] = c + offset
				}
				n.Children = children
			}
			if n.Fields != nil {
				fields := make(map[string]NodeID, len(n.Fields))
				for k, v := range n.Fields {
					fields[k] = v + offset
				}
				n.Fields = fields
			}
			n.File = ft.Path
			prog.nodes = append(prog.nodes, n)
		}
		prog.files = append(prog.files, File{
			Path:      ft.Path,
			Hash:      ft.Hash,
			Root:      offset,
			NodeCount: len(ft.Nodes),
		})
	}
	return prog
}

// link sets EnclosingFunction and collects function and call indexes.
// Parents precede children in the arena, so one forward sweep suffices.
func (p *Program) link() {
	for i := range p.nodes {
		n := &p.nodes[i]
		if n.Parent.Valid() {
			parent := &p.nodes[n.Parent]
			if parent.Kind == KindFunction {
				n.EnclosingFunction = parent.ID
			} else {
				n.EnclosingFunction = parent.EnclosingFunction
			}
		}
		switch n.Kind {
		case KindFunction:
			p.functions = append(p.functions, n.ID)
		case KindCall, KindNew:
			p.calls = append(p.calls, n.ID)
		}
	}
}

// Node returns the node with the given ID. Panics on an invalid ID.
func (p *Program) Node(id NodeID) *Node {
	return &p.nodes[id]
}

// Len returns the number of nodes in the arena.
func (p *Program) Len() int {
	return len(p.nodes)
}

// Files returns the parsed files in analysis order.
func (p *Program) Files() []File {
	return p.files
}

// Roots returns the program node of each file.
func (p *Program) Roots() []NodeID {
	roots := make([]NodeID, len(p.files))
	for i, f := range p.files {
		roots[i] = f.Root
	}
	return roots
}

// Functions returns every function node in ID order.
func (p *Program) Functions() []NodeID {
	return p.functions
}

// Calls returns every call and new expression in ID order.
func (p *Program) Calls() []NodeID {
	return p.calls
}

// Params returns the parameter pattern nodes of a function in order.
//
// A single unparenthesized arrow parameter is returned as the only element.
func (p *Program) Params(fn NodeID) []NodeID {
	n := p.Node(fn)
	if param := n.Field("parameter"); param.Valid() {
		return []NodeID{param}
	}
	params := n.Field("parameters")
	if !params.Valid() {
		return nil
	}
	return p.Node(params).Children
}

// Args returns the argument expressions of a call or new expression.
// Template-tag calls and argument-less new expressions have none.
func (p *Program) Args(call NodeID) []NodeID {
	args := p.Node(call).Field("arguments")
	if !args.Valid() || p.Node(args).Kind != KindArguments {
		return nil
	}
	return p.Node(args).Children
}

// Callee returns the callee expression of a call or the constructor of a
// new expression.
func (p *Program) Callee(call NodeID) NodeID {
	n := p.Node(call)
	if n.Kind == KindNew {
		return n.Field("constructor")
	}
	return n.Field("function")
}

// Body returns the body of a function: a statement block, or an
// expression for concise arrow functions.
func (p *Program) Body(fn NodeID) NodeID {
	return p.Node(fn).Field("body")
}

// FunctionName returns the best-effort name of a function.
//
// Description:
//
//	The function's own name wins. Otherwise the name is inferred from the
//	syntactic context: `var f = function(){}`, `o.f = function(){}`,
//	`{f: function(){}}` and class fields `f = () => {}`. Anonymous
//	functions return "".
func (p *Program) FunctionName(fn NodeID) string {
	n := p.Node(fn)
	if name := n.Field("name"); name.Valid() {
		return p.Node(name).Text
	}
	if !n.Parent.Valid() {
		return ""
	}
	parent := p.Node(n.Parent)
	switch parent.Kind {
	case KindVarDeclarator:
		if parent.Field("value") == fn {
			return p.nameText(parent.Field("name"))
		}
	case KindAssignment:
		if parent.Field("right") == fn {
			return p.nameText(parent.Field("left"))
		}
	case KindPair:
		if parent.Field("value") == fn {
			return p.nameText(parent.Field("key"))
		}
	case KindFieldDefinition:
		if parent.Field("value") == fn {
			return p.nameText(parent.Field("property"))
		}
	}
	return ""
}

// nameText returns the name carried by an identifier, property, member
// expression or string key.
func (p *Program) nameText(id NodeID) string {
	if !id.Valid() {
		return ""
	}
	n := p.Node(id)
	switch n.Kind {
	case KindIdentifier, KindPropertyIdentifier, KindString:
		return n.Text
	case KindMember:
		return p.nameText(n.Field("property"))
	}
	return ""
}

// PropertyName returns the static property name of a member expression or
// a subscript with a string-literal index, and false otherwise.
func (p *Program) PropertyName(id NodeID) (string, bool) {
	n := p.Node(id)
	switch n.Kind {
	case KindMember:
		prop := n.Field("property")
		if !prop.Valid() {
			return "", false
		}
		return p.Node(prop).Text, true
	case KindSubscript:
		idx := n.Field("index")
		if idx.Valid() && p.Node(idx).Kind == KindString {
			return p.Node(idx).Text, true
		}
	}
	return "", false
}

// AttachBindings records the binding of every identifier reference.
// It may be called once per Program.
func (p *Program) AttachBindings(bindings map[NodeID]Binding) error {
	if p.bindings != nil {
		return ErrBindingsAlreadyResolved
	}
	if bindings == nil {
		bindings = map[NodeID]Binding{}
	}
	p.bindings = bindings
	return nil
}

// BindingsResolved reports whether AttachBindings has run.
func (p *Program) BindingsResolved() bool {
	return p.bindings != nil
}

// BindingOf returns the binding of an identifier.
//
// Outputs:
//
//	Binding - The binding. Decl is NoNode for unresolved names and for
//	          nodes that are not identifier references.
//	error   - ErrBindingsNotResolved before AttachBindings.
func (p *Program) BindingOf(id NodeID) (Binding, error) {
	if p.bindings == nil {
		return Binding{Decl: NoNode, ScopeID: -1}, ErrBindingsNotResolved
	}
	if b, ok := p.bindings[id]; ok {
		return b, nil
	}
	return Binding{Name: p.Node(id).Text, Decl: NoNode, ScopeID: -1}, nil
}

// Walk visits id and its descendants in pre-order. Returning false from
// visit skips the node's children.
func (p *Program) Walk(id NodeID, visit func(n *Node) bool) {
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := p.Node(cur)
		if !visit(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}
