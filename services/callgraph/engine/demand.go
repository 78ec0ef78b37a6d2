// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/flowgraph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// fact says that function value fn may be held at position pos.
type fact struct {
	fn  ast.NodeID
	pos flowgraph.Vertex
}

// demandSolver is the state of one DEMAND build.
type demandSolver struct {
	ctx     context.Context
	prog    *ast.Program
	flow    *flowgraph.Builder
	fg      *flowgraph.Graph
	cg      *graph.CallGraph
	budget  *budget
	visited map[fact]struct{}
	factsAt map[flowgraph.Vertex][]ast.NodeID
	queue   []fact
	pops    int
}

// BuildDemand builds a call graph by propagating function values over the
// flow graph until nothing changes.
//
// Description:
//
//	Every function starts as a fact at its own definition site. Facts
//	travel along flow edges; a fact that reaches the callee position of a
//	call site adds a call edge, and every new call edge adds the
//	argument-to-parameter and return-to-result flow edges for that pair,
//	replaying the facts already known at their sources. Each (fact,
//	position) pair is processed at most once, so the loop terminates after
//	at most positions × functions pops. Calls whose callee binds directly
//	to a function declaration, and immediately invoked function literals,
//	are linked before propagation starts. Call sites still without an edge
//	at the fixpoint are linked to the "unknown" native.
//
// Inputs:
//
//	ctx  - Context for cancellation. Checked periodically.
//	prog - The program with bindings resolved.
//	opts - Build options.
//
// Outputs:
//
//	*graph.CallGraph - The frozen call graph with its flow graph attached.
//	error            - ast.ErrBindingsNotResolved, *BudgetExceededError or
//	                   a context error.
//
// Thread Safety:
//
//	Safe to run concurrently with other builds over the same Program.
func BuildDemand(ctx context.Context, prog *ast.Program, opts ...Option) (*graph.CallGraph, error) {
	options := buildOptions(opts)

	ctx, span := tracer.Start(ctx, "engine.BuildDemand")
	defer span.End()

	start := time.Now()
	cg, err := buildDemand(ctx, prog, options)
	var edges int
	if cg != nil {
		edges = cg.EdgeCount()
	}
	recordBuild(StrategyDemand, time.Since(start), edges, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("call_edges", edges),
		attribute.Int("flow_edges", cg.FlowGraph().EdgeCount()),
		attribute.Int("iterations", cg.Stats().Iterations),
	)
	return cg, nil
}

func buildDemand(ctx context.Context, prog *ast.Program, options Options) (*graph.CallGraph, error) {
	if !prog.BindingsResolved() {
		return nil, ast.ErrBindingsNotResolved
	}
	start := time.Now()

	vertices := options.Vertices
	if vertices == nil {
		vertices = graph.NewVertices(prog)
	}
	fg := flowgraph.New()
	fb, err := flowgraph.NewBuilder(prog, fg)
	if err != nil {
		return nil, err
	}
	fb.AddIntraprocedural()

	s := &demandSolver{
		ctx:     ctx,
		prog:    prog,
		flow:    fb,
		fg:      fg,
		cg:      graph.NewCallGraph(vertices, StrategyDemand.String()),
		budget:  &budget{strategy: StrategyDemand, limit: options.MaxSteps},
		visited: make(map[fact]struct{}),
		factsAt: make(map[flowgraph.Vertex][]ast.NodeID),
	}
	s.cg.SetFlowGraph(fg)

	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	for _, fn := range prog.Functions() {
		s.addFact(fn, flowgraph.Func(fn))
	}
	if err := s.solve(); err != nil {
		return nil, err
	}

	fallbacks := 0
	unknown := vertices.Native(graph.UnknownNative)
	for _, call := range vertices.CallSites() {
		if len(s.cg.Targets(call)) > 0 {
			continue
		}
		if _, err := s.cg.AddEdge(call, unknown); err != nil {
			return nil, err
		}
		fallbacks++
	}

	stats := graph.Stats{
		Iterations: s.pops,
		Facts:      len(s.visited),
		Positions:  fg.VertexCount(),
		FlowEdges:  fg.EdgeCount(),
		CallEdges:  s.cg.EdgeCount(),
		Fallbacks:  fallbacks,
		Duration:   time.Since(start),
	}
	s.cg.SetStats(stats)
	s.cg.Freeze()

	options.Logger.Debug("demand call graph built",
		slog.Int("iterations", stats.Iterations),
		slog.Int("facts", stats.Facts),
		slog.Int("positions", stats.Positions),
		slog.Int("flow_edges", stats.FlowEdges),
		slog.Int("call_edges", stats.CallEdges),
		slog.Int("unknown_fallbacks", fallbacks),
		slog.Duration("duration", stats.Duration),
	)
	return s.cg, nil
}

// bootstrap links calls whose target is known without propagation.
func (s *demandSolver) bootstrap() error {
	for _, call := range s.prog.Calls() {
		callee := s.prog.Callee(call)
		mode := flowgraph.CallDirect
		if recv, m := s.flow.ReflectiveTarget(call); m != flowgraph.CallDirect {
			callee, mode = recv, m
		}
		callee = unwrapParens(s.prog, callee)
		if !callee.Valid() {
			continue
		}

		n := s.prog.Node(callee)
		switch n.Kind {
		case ast.KindFunction:
			if err := s.linkCall(call, callee, mode); err != nil {
				return err
			}
		case ast.KindIdentifier:
			if fn := s.declaredFunction(callee); fn.Valid() {
				if err := s.linkCall(call, fn, mode); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// declaredFunction returns the function declaration an identifier binds
// to, or NoNode.
func (s *demandSolver) declaredFunction(ident ast.NodeID) ast.NodeID {
	b, err := s.prog.BindingOf(ident)
	if err != nil || !b.Resolved() {
		return ast.NoNode
	}
	decl := s.prog.Node(b.Decl)
	if !decl.Parent.Valid() {
		return ast.NoNode
	}
	parent := s.prog.Node(decl.Parent)
	if parent.IsFunctionDeclaration() && parent.Field("name") == b.Decl {
		return parent.ID
	}
	return ast.NoNode
}

func (s *demandSolver) addFact(fn ast.NodeID, pos flowgraph.Vertex) {
	f := fact{fn: fn, pos: pos}
	if _, ok := s.visited[f]; ok {
		return
	}
	s.visited[f] = struct{}{}
	s.factsAt[pos] = append(s.factsAt[pos], fn)
	s.queue = append(s.queue, f)
}

// linkCall adds call -> fn and, when new, the interprocedural flow edges
// of the pair, replaying known facts over them.
func (s *demandSolver) linkCall(call, fn ast.NodeID, mode flowgraph.CallMode) error {
	if err := s.budget.step("link"); err != nil {
		return err
	}
	vertices := s.cg.Vertices()
	added, err := s.cg.AddEdge(vertices.Call(call), vertices.Func(fn))
	if err != nil || !added {
		return err
	}
	for _, e := range s.flow.ConnectCall(call, fn, mode) {
		for _, known := range s.factsAt[e.From] {
			s.addFact(known, e.To)
		}
	}
	return nil
}

// solve runs the worklist to its fixpoint.
func (s *demandSolver) solve() error {
	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]
		s.pops++

		if err := s.budget.step("propagate"); err != nil {
			return err
		}
		if s.pops%cancelCheckInterval == 0 {
			if err := s.ctx.Err(); err != nil {
				return fmt.Errorf("DEMAND build canceled: %w", err)
			}
		}

		switch f.pos.Kind {
		case flowgraph.VertexCallee:
			if err := s.linkCall(f.pos.Node, f.fn, flowgraph.CallDirect); err != nil {
				return err
			}
		case flowgraph.VertexReflectiveCallee:
			_, mode := s.flow.ReflectiveTarget(f.pos.Node)
			if err := s.linkCall(f.pos.Node, f.fn, mode); err != nil {
				return err
			}
		}

		for _, next := range s.fg.Successors(f.pos) {
			s.addFact(f.fn, next)
		}
	}
	return nil
}
