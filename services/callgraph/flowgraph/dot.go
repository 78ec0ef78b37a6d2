// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flowgraph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// Label returns a human-readable label for v, using prog for names and
// locations. prog may be nil.
func Label(prog *ast.Program, v Vertex) string {
	if v.Kind == VertexProp {
		return "Prop(" + v.Name + ")"
	}
	if prog == nil || !v.Node.Valid() || int(v.Node) >= prog.Len() {
		return v.String()
	}
	n := prog.Node(v.Node)
	var name string
	switch v.Kind {
	case VertexFunc, VertexRet:
		name = prog.FunctionName(v.Node)
		if name == "" {
			name = "anon"
		}
	case VertexVar:
		name = n.Text
	default:
		name = n.Type
	}
	return fmt.Sprintf("%s(%s@%s:%s)", v.Kind, name, n.File, n.Loc.Position())
}

// WriteDot renders the graph in Graphviz DOT format with vertices and
// edges in a stable order.
func (g *Graph) WriteDot(w io.Writer, prog *ast.Program) error {
	vertices := g.Vertices()
	ids := make(map[Vertex]int, len(vertices))

	var sb strings.Builder
	sb.WriteString("digraph FlowGraph {\n")
	for i, v := range vertices {
		ids[v] = i
		fmt.Fprintf(&sb, "  n%d [label=%q];\n", i, Label(prog, v))
	}

	edges := make([]Edge, 0, len(g.order))
	edges = append(edges, g.order...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return less(edges[i].From, edges[j].From)
		}
		return less(edges[i].To, edges[j].To)
	})
	for _, e := range edges {
		fmt.Fprintf(&sb, "  n%d -> n%d;\n", ids[e.From], ids[e.To])
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// Dot returns the DOT rendering of the graph.
func (g *Graph) Dot(prog *ast.Program) string {
	var sb strings.Builder
	_ = g.WriteDot(&sb, prog)
	return sb.String()
}
