// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// nullField is written for any field whose value is not available.
const nullField = "null"

// Function names used for export-only nodes.
const (
	topLevelName = "toplevel"
	nativeFile   = "native"
	nativePos    = "0:0"
)

// ExportedNode is a function, native function or top-level call site in the
// exchange format.
type ExportedNode struct {
	FunctionName     string `json:"function_name"`
	FileName         string `json:"file_name"`
	FunctionPosition string `json:"function_position"`
	ID               int    `json:"id"`
}

// ExportedLink is one call edge in the exchange format.
//
// Source is the FuncVertex id of the function containing the call, or the
// id of the call's "toplevel" node for calls outside any function.
type ExportedLink struct {
	Source       int    `json:"source"`
	Target       int    `json:"target"`
	CallFilePath string `json:"call_file_path"`
	CalleeName   string `json:"callee_name"`
	CallPosition string `json:"call_position"`
}

// ExportedGraph is the exchange format of a call graph.
//
// Description:
//
//	Nodes are sorted by id and links by (source, target, file, position,
//	callee name), so the same edge set always produces byte-identical
//	JSON. Unknown
//	values are written as the string "null".
//
// Thread Safety: ExportedGraph is a value type with no internal state.
type ExportedGraph struct {
	Directed bool           `json:"directed"`
	Nodes    []ExportedNode `json:"nodes"`
	Links    []ExportedLink `json:"links"`
}

func orNull(s string) string {
	if s == "" {
		return nullField
	}
	return s
}

// exportCallee converts a callee to its exchange node.
func exportCallee(c Callee) ExportedNode {
	switch v := c.(type) {
	case *FuncVertex:
		return ExportedNode{
			FunctionName:     orNull(v.FuncName),
			FileName:         orNull(v.File),
			FunctionPosition: v.Loc.Position(),
			ID:               v.ID,
		}
	case *NativeVertex:
		return ExportedNode{
			FunctionName:     orNull(v.NativeName),
			FileName:         nativeFile,
			FunctionPosition: nativePos,
			ID:               v.ID,
		}
	}
	panic(fmt.Sprintf("graph: unexpected callee type %T", c))
}

// Export converts a call graph to the exchange format.
//
// Description:
//
//	Every edge becomes one link. Calls inside a function use that
//	function's FuncVertex as source and the function is added as a node
//	even if nothing calls it. Calls at top level get a "toplevel" node of
//	their own. Every callee is added as a node.
//
// Outputs:
//
//	*ExportedGraph - The exchange graph. Never nil; an empty graph has
//	                 empty (not nil) node and link slices.
//
// Complexity:
//
//	O(V log V + E log E) where sorting dominates.
func Export(cg *CallGraph) *ExportedGraph {
	out := &ExportedGraph{
		Directed: true,
		Nodes:    []ExportedNode{},
		Links:    []ExportedLink{},
	}
	if cg == nil {
		return out
	}

	nodes := make(map[int]ExportedNode)
	add := func(n ExportedNode) {
		if _, ok := nodes[n.ID]; !ok {
			nodes[n.ID] = n
		}
	}

	for call, callee := range cg.Edges() {
		source := call.ID
		if call.TopLevel() {
			add(ExportedNode{
				FunctionName:     topLevelName,
				FileName:         orNull(call.File),
				FunctionPosition: call.Loc.Position(),
				ID:               call.ID,
			})
		} else if enclosing := cg.vertices.Func(call.Enclosing); enclosing != nil {
			source = enclosing.ID
			add(exportCallee(enclosing))
		}

		target := exportCallee(callee)
		add(target)

		out.Links = append(out.Links, ExportedLink{
			Source:       source,
			Target:       target.ID,
			CallFilePath: orNull(call.File),
			CalleeName:   orNull(call.CalleeName()),
			CallPosition: call.Loc.Position(),
		})
	}

	for _, n := range nodes {
		out.Nodes = append(out.Nodes, n)
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })
	sortLinks(out.Links)

	return out
}

func sortLinks(links []ExportedLink) {
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.CallFilePath != b.CallFilePath {
			return a.CallFilePath < b.CallFilePath
		}
		if a.CallPosition != b.CallPosition {
			return a.CallPosition < b.CallPosition
		}
		return a.CalleeName < b.CalleeName
	})
}

// WriteJSON writes the graph as indented JSON.
func (e *ExportedGraph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encoding call graph: %w", err)
	}
	return nil
}

// ReadExport decodes an exchange-format graph.
func ReadExport(r io.Reader) (*ExportedGraph, error) {
	var eg ExportedGraph
	if err := json.NewDecoder(r).Decode(&eg); err != nil {
		return nil, fmt.Errorf("decoding call graph: %w", err)
	}
	if eg.Nodes == nil {
		eg.Nodes = []ExportedNode{}
	}
	if eg.Links == nil {
		eg.Links = []ExportedLink{}
	}
	sort.Slice(eg.Nodes, func(i, j int) bool { return eg.Nodes[i].ID < eg.Nodes[j].ID })
	sortLinks(eg.Links)
	return &eg, nil
}

// Hash returns a deterministic SHA256 of the node and link sets.
func (e *ExportedGraph) Hash() string {
	h := sha256.New()
	for _, n := range e.Nodes {
		fmt.Fprintf(h, "n|%d|%s|%s|%s\n", n.ID, n.FunctionName, n.FileName, n.FunctionPosition)
	}
	links := make([]ExportedLink, len(e.Links))
	copy(links, e.Links)
	sortLinks(links)
	for _, l := range links {
		fmt.Fprintf(h, "l|%d|%d|%s|%s|%s\n", l.Source, l.Target, l.CallFilePath, l.CalleeName, l.CallPosition)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NodeByID returns the node with the given id.
func (e *ExportedGraph) NodeByID(id int) (ExportedNode, bool) {
	i := sort.Search(len(e.Nodes), func(i int) bool { return e.Nodes[i].ID >= id })
	if i < len(e.Nodes) && e.Nodes[i].ID == id {
		return e.Nodes[i], true
	}
	return ExportedNode{}, false
}
