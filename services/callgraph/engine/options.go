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
	"log/slog"

	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

const (
	// DefaultMaxSteps bounds worklist pops plus edge insertions per build.
	DefaultMaxSteps = 10_000_000

	// cancelCheckInterval is how often builds check for context cancellation.
	cancelCheckInterval = 4096
)

// Options configures a call graph build.
type Options struct {
	// MaxSteps is the step budget. Zero or negative means unlimited.
	// Default: 10,000,000
	MaxSteps int

	// Vertices is a shared vertex registry. When nil each build creates
	// its own. Sharing lets exports of different strategies use the same
	// vertex ids.
	Vertices *graph.Vertices

	// Logger receives build diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for configuring a build.
type Option func(*Options)

// WithMaxSteps sets the step budget.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithVertices shares a vertex registry across builds.
func WithVertices(v *graph.Vertices) Option {
	return func(o *Options) {
		o.Vertices = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func buildOptions(opts []Option) Options {
	options := Options{MaxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return options
}

// budget counts steps against Options.MaxSteps.
type budget struct {
	strategy Strategy
	limit    int
	steps    int
}

// step consumes one unit and reports an error once the limit is passed.
func (b *budget) step(phase string) error {
	b.steps++
	if b.limit > 0 && b.steps > b.limit {
		return &BudgetExceededError{Strategy: b.strategy, Limit: b.limit, Steps: b.steps, Phase: phase}
	}
	return nil
}
