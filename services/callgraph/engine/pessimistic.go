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
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/index"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BuildPessimistic builds a call graph without tracking value flow.
//
// Description:
//
//	With conservative set (NONE) every call site is linked to every
//	function of the program plus the "unknown" native. Otherwise (ONESHOT)
//	call sites are matched to functions by name in one pass over a name
//	index, ignoring scope:
//	  - f(...) links to every function bound to the variable name f.
//	  - o.m(...) and o["m"](...) link to every function stored in a
//	    property m or bound to a variable m.
//	  - new C(...) additionally links to constructors of classes named C.
//	  - a callee that is a function literal links to that function.
//	  - anything else, or a name with no match, links to a native vertex
//	    named after the callee ("unknown" when it has no name).
//
// Inputs:
//
//	ctx          - Context for cancellation. Checked periodically.
//	prog         - The program. Bindings are not required.
//	conservative - true for NONE, false for ONESHOT.
//	opts         - Build options.
//
// Outputs:
//
//	*graph.CallGraph - The frozen call graph. Every call site has an edge.
//	error            - *BudgetExceededError or a context error.
//
// Thread Safety:
//
//	Safe to run concurrently with other builds over the same Program.
func BuildPessimistic(ctx context.Context, prog *ast.Program, conservative bool, opts ...Option) (*graph.CallGraph, error) {
	strategy := StrategyOneShot
	if conservative {
		strategy = StrategyNone
	}
	options := buildOptions(opts)

	ctx, span := tracer.Start(ctx, "engine.BuildPessimistic")
	defer span.End()
	span.SetAttributes(attribute.String("strategy", strategy.String()))

	start := time.Now()
	cg, err := buildPessimistic(ctx, prog, strategy, options)
	var edges int
	if cg != nil {
		edges = cg.EdgeCount()
	}
	recordBuild(strategy, time.Since(start), edges, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("call_edges", edges))
	return cg, nil
}

func buildPessimistic(ctx context.Context, prog *ast.Program, strategy Strategy, options Options) (*graph.CallGraph, error) {
	start := time.Now()
	vertices := options.Vertices
	if vertices == nil {
		vertices = graph.NewVertices(prog)
	}
	cg := graph.NewCallGraph(vertices, strategy.String())
	b := &budget{strategy: strategy, limit: options.MaxSteps}

	link := func(call *graph.CallVertex, callee graph.Callee) error {
		if err := b.step("link"); err != nil {
			return err
		}
		if b.steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%s build canceled: %w", strategy, err)
			}
		}
		_, err := cg.AddEdge(call, callee)
		return err
	}

	var stats graph.Stats
	if strategy == StrategyNone {
		unknown := vertices.Native(graph.UnknownNative)
		for _, call := range vertices.CallSites() {
			for _, fn := range vertices.Funcs() {
				if err := link(call, fn); err != nil {
					return nil, err
				}
			}
			if err := link(call, unknown); err != nil {
				return nil, err
			}
		}
	} else {
		idx, err := index.BuildNameIndex(prog)
		if err != nil {
			return nil, fmt.Errorf("building name index: %w", err)
		}
		for _, call := range vertices.CallSites() {
			targets, native := matchByName(prog, idx, call)
			if len(targets) == 0 {
				if err := link(call, vertices.Native(native)); err != nil {
					return nil, err
				}
				stats.Fallbacks++
				continue
			}
			for _, fn := range targets {
				if err := link(call, vertices.Func(fn)); err != nil {
					return nil, err
				}
			}
		}
	}

	stats.Iterations = b.steps
	stats.CallEdges = cg.EdgeCount()
	stats.Duration = time.Since(start)
	cg.SetStats(stats)
	cg.Freeze()

	options.Logger.Debug("pessimistic call graph built",
		slog.String("strategy", strategy.String()),
		slog.Int("call_sites", len(vertices.CallSites())),
		slog.Int("edges", stats.CallEdges),
		slog.Int("native_fallbacks", stats.Fallbacks),
		slog.Duration("duration", stats.Duration),
	)
	return cg, nil
}

// matchByName returns the functions a call may invoke by name, or the
// native name to fall back to when there are none.
func matchByName(prog *ast.Program, idx *index.NameIndex, call *graph.CallVertex) ([]ast.NodeID, string) {
	callee := unwrapParens(prog, call.Callee)
	if !callee.Valid() {
		return nil, graph.UnknownNative
	}
	n := prog.Node(callee)

	var name string
	var targets []ast.NodeID
	switch n.Kind {
	case ast.KindFunction:
		return []ast.NodeID{callee}, ""
	case ast.KindIdentifier:
		name = n.Text
		targets = append(targets, idx.Declared(name)...)
	case ast.KindMember, ast.KindSubscript:
		prop, ok := prog.PropertyName(callee)
		if !ok {
			return nil, graph.UnknownNative
		}
		name = prop
		targets = append(targets, idx.Properties(name)...)
		targets = append(targets, idx.Declared(name)...)
	default:
		return nil, graph.UnknownNative
	}
	if call.IsNew {
		targets = append(targets, idx.Constructors(name)...)
	}
	return dedupe(targets), name
}

// unwrapParens strips parentheses around an expression.
func unwrapParens(prog *ast.Program, id ast.NodeID) ast.NodeID {
	for id.Valid() {
		n := prog.Node(id)
		if n.Kind != ast.KindParenthesized || len(n.Children) != 1 {
			return id
		}
		id = n.Children[0]
	}
	return id
}

func dedupe(ids []ast.NodeID) []ast.NodeID {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[ast.NodeID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
