// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the call graph produced by the engine: its vertices,
// its edge set, the exchange-format export and persisted snapshots.
package graph

import (
	"errors"
	"iter"
	"time"

	"github.com/AleutianAI/jscallgraph/services/callgraph/flowgraph"
)

// ErrGraphFrozen is returned when an edge is added to a finished graph.
var ErrGraphFrozen = errors.New("call graph is frozen")

// Stats describes the work done while building a call graph.
type Stats struct {
	// Iterations is the number of worklist pops (DEMAND) or
	// edge insertions (NONE, ONESHOT).
	Iterations int `json:"iterations"`

	// Facts is the number of distinct (function, position) facts.
	Facts int `json:"facts"`

	// Positions is the number of flow-graph vertices.
	Positions int `json:"positions"`

	// FlowEdges is the number of flow-graph edges.
	FlowEdges int `json:"flow_edges"`

	// CallEdges is the number of call-graph edges.
	CallEdges int `json:"call_edges"`

	// Fallbacks is the number of call sites linked to the unknown native.
	Fallbacks int `json:"fallbacks"`

	// Duration is the wall time of the build.
	Duration time.Duration `json:"duration"`
}

type edgeKey struct {
	call   *CallVertex
	callee Callee
}

// CallGraph is the set of (call site, callee) edges of one strategy run.
//
// Description:
//
//	Edges have set semantics. While a strategy builds the graph it is the
//	only writer; Freeze marks the graph finished, after which AddEdge
//	reports ErrGraphFrozen and the graph is safe for concurrent reads.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Safe for concurrent reads once frozen.
type CallGraph struct {
	vertices *Vertices
	strategy string

	targets map[*CallVertex][]Callee
	edges   map[edgeKey]struct{}
	order   []edgeKey

	flow   *flowgraph.Graph
	stats  Stats
	frozen bool
}

// NewCallGraph creates an empty call graph over the given vertices.
func NewCallGraph(vertices *Vertices, strategy string) *CallGraph {
	return &CallGraph{
		vertices: vertices,
		strategy: strategy,
		targets:  make(map[*CallVertex][]Callee),
		edges:    make(map[edgeKey]struct{}),
	}
}

// AddEdge adds call -> callee and reports whether the edge is new.
func (g *CallGraph) AddEdge(call *CallVertex, callee Callee) (bool, error) {
	if g.frozen {
		return false, ErrGraphFrozen
	}
	k := edgeKey{call: call, callee: callee}
	if _, ok := g.edges[k]; ok {
		return false, nil
	}
	g.edges[k] = struct{}{}
	g.targets[call] = append(g.targets[call], callee)
	g.order = append(g.order, k)
	return true, nil
}

// HasEdge reports whether call -> callee is in the graph.
func (g *CallGraph) HasEdge(call *CallVertex, callee Callee) bool {
	_, ok := g.edges[edgeKey{call: call, callee: callee}]
	return ok
}

// Edges iterates over every edge. The sequence is finite and can be
// ranged over any number of times. Order carries no meaning.
func (g *CallGraph) Edges() iter.Seq2[*CallVertex, Callee] {
	return func(yield func(*CallVertex, Callee) bool) {
		for _, k := range g.order {
			if !yield(k.call, k.callee) {
				return
			}
		}
	}
}

// Targets returns the callees of a call site.
func (g *CallGraph) Targets(call *CallVertex) []Callee {
	return g.targets[call]
}

// EdgeCount returns the number of distinct edges.
func (g *CallGraph) EdgeCount() int {
	return len(g.edges)
}

// Calls returns every call site of the program, including those with no
// edge.
func (g *CallGraph) Calls() []*CallVertex {
	return g.vertices.CallSites()
}

// Vertices returns the vertex registry.
func (g *CallGraph) Vertices() *Vertices {
	return g.vertices
}

// Strategy returns the name of the strategy that built the graph.
func (g *CallGraph) Strategy() string {
	return g.strategy
}

// FlowGraph returns the flow graph built alongside the call graph, nil for
// strategies that do not track value flow.
func (g *CallGraph) FlowGraph() *flowgraph.Graph {
	return g.flow
}

// SetFlowGraph attaches the flow graph.
func (g *CallGraph) SetFlowGraph(fg *flowgraph.Graph) {
	g.flow = fg
}

// Stats returns the build statistics.
func (g *CallGraph) Stats() Stats {
	return g.stats
}

// SetStats records the build statistics.
func (g *CallGraph) SetStats(s Stats) {
	g.stats = s
}

// Freeze marks the graph as finished.
func (g *CallGraph) Freeze() {
	g.frozen = true
}

// IsFrozen reports whether Freeze was called.
func (g *CallGraph) IsFrozen() bool {
	return g.frozen
}
