// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers read-only questions over a finished CallGraph.
package query

import (
	"sort"

	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

// Edge is one call graph edge seen from a query.
type Edge struct {
	// Call is the call site.
	Call *graph.CallVertex

	// Caller is the function containing the call, nil at top level.
	Caller *graph.FuncVertex

	// Target is the callee.
	Target graph.Callee
}

// CallerName returns the name of the calling function, "toplevel" for
// top-level calls and "null" for anonymous functions.
func (e Edge) CallerName() string {
	if e.Caller == nil {
		return "toplevel"
	}
	if e.Caller.FuncName == "" {
		return "null"
	}
	return e.Caller.FuncName
}

// TargetName returns the callee name, "null" for anonymous functions.
func (e Edge) TargetName() string {
	if name := e.Target.Name(); name != "" {
		return name
	}
	return "null"
}

// Callers returns the edges whose callee is named name.
//
// Description:
//
//	Function and native callees both match. Names are compared exactly, so
//	every function sharing the name contributes its callers.
//
// Outputs:
//
//	[]Edge - Sorted by call site, then callee vertex id. Nil when nothing
//	         matches.
//
// Thread Safety:
//
//	Safe for concurrent use on a frozen graph.
func Callers(cg *graph.CallGraph, name string) []Edge {
	return collect(cg, func(call *graph.CallVertex, callee graph.Callee) bool {
		return callee.Name() == name
	})
}

// Callees returns the edges of the call sites inside functions named name.
// The empty name selects top-level call sites.
//
// Thread Safety:
//
//	Safe for concurrent use on a frozen graph.
func Callees(cg *graph.CallGraph, name string) []Edge {
	vertices := cg.Vertices()
	return collect(cg, func(call *graph.CallVertex, callee graph.Callee) bool {
		if call.TopLevel() {
			return name == ""
		}
		fv := vertices.Func(call.Enclosing)
		return fv != nil && fv.FuncName == name
	})
}

// DeadFunctions returns the functions no call site may invoke, in vertex
// order.
//
// A function whose value escapes to code outside the program (an event
// handler, an exported API) is reported too; the call graph cannot tell
// the two apart.
func DeadFunctions(cg *graph.CallGraph) []*graph.FuncVertex {
	called := make(map[*graph.FuncVertex]bool)
	for _, callee := range cg.Edges() {
		if fv, ok := callee.(*graph.FuncVertex); ok {
			called[fv] = true
		}
	}
	var dead []*graph.FuncVertex
	for _, fv := range cg.Vertices().Funcs() {
		if !called[fv] {
			dead = append(dead, fv)
		}
	}
	return dead
}

func collect(cg *graph.CallGraph, match func(*graph.CallVertex, graph.Callee) bool) []Edge {
	vertices := cg.Vertices()
	var out []Edge
	for call, callee := range cg.Edges() {
		if !match(call, callee) {
			continue
		}
		e := Edge{Call: call, Target: callee}
		if !call.TopLevel() {
			e.Caller = vertices.Func(call.Enclosing)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Call.ID != out[j].Call.ID {
			return out[i].Call.ID < out[j].Call.ID
		}
		return out[i].Target.VertexID() < out[j].Target.VertexID()
	})
	return out
}
