// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes call graph builds and queries over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/consumers"
	"github.com/AleutianAI/jscallgraph/services/callgraph/discovery"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

var (
	// ErrGraphNotFound is returned for an unknown graph id.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrPathsDisabled is returned when a request names filesystem paths
	// and the service only accepts inline sources.
	ErrPathsDisabled = errors.New("filesystem paths are disabled")

	// ErrSnapshotsDisabled is returned when a snapshot is requested
	// without a snapshot store.
	ErrSnapshotsDisabled = errors.New("snapshot persistence not configured")
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Strategy is used when a request names none.
	// Default: ONESHOT
	Strategy engine.Strategy

	// MaxSteps is the step budget per build. A request may lower it.
	// Default: engine.DefaultMaxSteps
	MaxSteps int

	// ParserOptions are passed to every parse.
	ParserOptions []ast.JavaScriptParserOption

	// DiscoveryOptions are used to expand request paths.
	DiscoveryOptions []discovery.Option

	// Loaders names the module loaders for dependency extraction.
	// Default: consumers.DefaultLoaders
	Loaders []string

	// AllowPaths lets requests analyze files on the server's filesystem.
	// Default: false
	AllowPaths bool

	// MaxCachedGraphs bounds the graphs kept for queries; the oldest is
	// evicted first.
	// Default: 16
	MaxCachedGraphs int
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Strategy:        engine.DefaultStrategy,
		MaxSteps:        engine.DefaultMaxSteps,
		Loaders:         consumers.DefaultLoaders,
		MaxCachedGraphs: 16,
	}
}

// CachedGraph is a finished analysis held for follow-up queries.
type CachedGraph struct {
	ID          string
	ProjectRoot string
	Analysis    *engine.Analysis
	Export      *graph.ExportedGraph
	BuiltAt     time.Time
}

// BuildInput describes one build.
type BuildInput struct {
	Sources     []ast.Source
	Paths       []string
	Strategy    engine.Strategy
	MaxSteps    int
	ProjectRoot string
}

// Service runs builds and caches their results.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg       ServiceConfig
	logger    *slog.Logger
	snapshots *graph.SnapshotManager

	mu     sync.RWMutex
	graphs map[string]*CachedGraph
	order  []string
}

// NewService creates a Service. snapshots may be nil.
func NewService(cfg ServiceConfig, logger *slog.Logger, snapshots *graph.SnapshotManager) *Service {
	if cfg.MaxCachedGraphs <= 0 {
		cfg.MaxCachedGraphs = 16
	}
	if len(cfg.Loaders) == 0 {
		cfg.Loaders = consumers.DefaultLoaders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		logger:    logger,
		snapshots: snapshots,
		graphs:    make(map[string]*CachedGraph),
	}
}

// Config returns the service configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Build analyzes the input and caches the result.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	in  - Inline sources and/or paths. Paths are expanded with the
//	      configured discovery options and read after inline sources.
//
// Outputs:
//
//	*CachedGraph - The cached result.
//	error        - ErrPathsDisabled, a discovery or read error, or any
//	               error of engine.Analyze.
func (s *Service) Build(ctx context.Context, in BuildInput) (*CachedGraph, error) {
	sources := append([]ast.Source(nil), in.Sources...)
	if len(in.Paths) > 0 {
		if !s.cfg.AllowPaths {
			return nil, ErrPathsDisabled
		}
		files, err := discovery.Expand(in.Paths, s.cfg.DiscoveryOptions...)
		if err != nil {
			return nil, err
		}
		read, err := ast.ReadSources(files)
		if err != nil {
			return nil, err
		}
		sources = append(sources, read...)
	}

	maxSteps := s.cfg.MaxSteps
	if in.MaxSteps > 0 && (maxSteps <= 0 || in.MaxSteps < maxSteps) {
		maxSteps = in.MaxSteps
	}

	a, err := engine.Analyze(ctx, sources, in.Strategy, s.cfg.ParserOptions,
		engine.WithMaxSteps(maxSteps), engine.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	cached := &CachedGraph{
		ID:          uuid.NewString(),
		ProjectRoot: in.ProjectRoot,
		Analysis:    a,
		Export:      graph.Export(a.CallGraph),
		BuiltAt:     time.Now(),
	}
	s.put(cached)

	s.logger.Info("call graph built",
		slog.String("graph_id", cached.ID),
		slog.String("strategy", a.Strategy.String()),
		slog.Int("files", len(sources)),
		slog.Int("edges", a.CallGraph.EdgeCount()),
	)
	return cached, nil
}

func (s *Service) put(g *CachedGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[g.ID] = g
	s.order = append(s.order, g.ID)
	for len(s.order) > s.cfg.MaxCachedGraphs {
		delete(s.graphs, s.order[0])
		s.order = s.order[1:]
	}
}

// GetGraph returns a cached graph.
func (s *Service) GetGraph(id string) (*CachedGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	return g, nil
}

// GraphCount returns the number of cached graphs.
func (s *Service) GraphCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}

// SaveSnapshot persists a cached graph.
func (s *Service) SaveSnapshot(ctx context.Context, g *CachedGraph, label string) (*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	root := g.ProjectRoot
	if root == "" {
		root = "inline"
	}
	return s.snapshots.Save(ctx, root, g.Analysis.Strategy.String(), g.Export, label)
}
