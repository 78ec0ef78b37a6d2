// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine builds call graphs over a Program with one of several
// strategies that trade precision for cost.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/bindings"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("jscg.engine")

// Build dispatches to the builder of the given strategy.
//
// FULL runs as DEMAND after logging a warning. NONE and ONESHOT do not
// need bindings; DEMAND does.
func Build(ctx context.Context, prog *ast.Program, strategy Strategy, opts ...Option) (*graph.CallGraph, error) {
	options := buildOptions(opts)
	switch strategy.Resolve(options.Logger) {
	case StrategyNone:
		return BuildPessimistic(ctx, prog, true, opts...)
	case StrategyOneShot:
		return BuildPessimistic(ctx, prog, false, opts...)
	case StrategyDemand:
		return BuildDemand(ctx, prog, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy)
	}
}

// Timings records the wall time of each pipeline phase.
type Timings struct {
	Parse     time.Duration `json:"parse"`
	Bindings  time.Duration `json:"bindings"`
	CallGraph time.Duration `json:"callgraph"`
}

// Analysis is the output of Analyze.
type Analysis struct {
	Program   *ast.Program
	Scopes    *bindings.Result
	CallGraph *graph.CallGraph
	Strategy  Strategy
	Timings   Timings
}

// Analyze runs the whole pipeline on in-memory sources: parse, resolve
// bindings, build the call graph.
//
// Inputs:
//
//	ctx        - Context for cancellation.
//	sources    - Files in analysis order.
//	strategy   - The strategy to run; FULL runs as DEMAND.
//	parserOpts - Parser options.
//	opts       - Build options.
//
// Outputs:
//
//	*Analysis - Every intermediate result, for consumers that need more
//	            than the call graph.
//	error     - *ast.ParseError, *BudgetExceededError or a context error.
func Analyze(ctx context.Context, sources []ast.Source, strategy Strategy, parserOpts []ast.JavaScriptParserOption, opts ...Option) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "engine.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int("files", len(sources)),
		attribute.String("strategy", strategy.String()),
	)

	a := &Analysis{Strategy: strategy.Resolve(buildOptions(opts).Logger)}

	start := time.Now()
	prog, err := ast.BuildFromSources(ctx, sources, parserOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.Program = prog
	a.Timings.Parse = time.Since(start)

	start = time.Now()
	scopes, err := bindings.Resolve(prog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("resolving bindings: %w", err)
	}
	a.Scopes = scopes
	a.Timings.Bindings = time.Since(start)

	start = time.Now()
	cg, err := Build(ctx, prog, a.Strategy, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.CallGraph = cg
	a.Timings.CallGraph = time.Since(start)

	return a, nil
}
