// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flowgraph models how values move between abstract positions of a
// JavaScript program. Edges are only ever added; the set of edges grows
// monotonically while a call graph is being built.
package flowgraph

import (
	"iter"
	"sort"
)

// Edge is a directed flow edge.
type Edge struct {
	From Vertex
	To   Vertex
}

// Graph is a directed graph over value positions with set semantics.
//
// Thread Safety: Not safe for concurrent use. A Graph is owned by the
// strategy invocation that builds it and is read-only afterwards.
type Graph struct {
	succ     map[Vertex][]Vertex
	edges    map[Edge]struct{}
	vertices map[Vertex]struct{}
	order    []Edge
}

// New creates an empty flow graph.
func New() *Graph {
	return &Graph{
		succ:     make(map[Vertex][]Vertex),
		edges:    make(map[Edge]struct{}),
		vertices: make(map[Vertex]struct{}),
	}
}

// AddEdge adds from -> to and reports whether the edge is new.
// Adding an existing edge leaves the graph unchanged.
func (g *Graph) AddEdge(from, to Vertex) bool {
	e := Edge{From: from, To: to}
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.edges[e] = struct{}{}
	g.succ[from] = append(g.succ[from], to)
	g.vertices[from] = struct{}{}
	g.vertices[to] = struct{}{}
	g.order = append(g.order, e)
	return true
}

// HasEdge reports whether from -> to is in the graph.
func (g *Graph) HasEdge(from, to Vertex) bool {
	_, ok := g.edges[Edge{From: from, To: to}]
	return ok
}

// Successors returns the direct successors of v in insertion order.
// The slice must not be modified.
func (g *Graph) Successors(v Vertex) []Vertex {
	return g.succ[v]
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// VertexCount returns the number of vertices touched by any edge.
func (g *Graph) VertexCount() int {
	return len(g.vertices)
}

// Edges iterates over all edges in insertion order.
func (g *Graph) Edges() iter.Seq2[Vertex, Vertex] {
	return func(yield func(Vertex, Vertex) bool) {
		for _, e := range g.order {
			if !yield(e.From, e.To) {
				return
			}
		}
	}
}

// Vertices returns every vertex in a stable order.
func (g *Graph) Vertices() []Vertex {
	out := make([]Vertex, 0, len(g.vertices))
	for v := range g.vertices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
