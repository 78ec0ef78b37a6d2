// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consumers derives summaries from a parsed Program that do not
// need a call graph: callback usage and module loader dependencies.
package consumers

import (
	"sort"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// CallbackStats summarizes how often functions are passed as arguments.
type CallbackStats struct {
	// TotalCalls is the number of call and new expressions.
	TotalCalls int `json:"total_calls"`

	// CallbackCalls is the number of calls with at least one function
	// argument.
	CallbackCalls int `json:"callback_calls"`

	// CallbackArgs is the number of function arguments over all calls.
	CallbackArgs int `json:"callback_args"`

	// ByFile maps a file path to its CallbackCalls count. Files without
	// callbacks are absent.
	ByFile map[string]int `json:"by_file"`
}

// Files returns the keys of ByFile in sorted order.
func (s CallbackStats) Files() []string {
	files := make([]string, 0, len(s.ByFile))
	for f := range s.ByFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// CountCallbacks counts the call sites that pass a function as an argument.
//
// Description:
//
//	An argument is a callback when it is a function literal (possibly
//	parenthesized) or, once bindings are resolved, an identifier bound to a
//	function declaration. Spread arguments are not inspected.
//
// Inputs:
//
//	prog - The program. Bindings are optional.
//
// Outputs:
//
//	CallbackStats - The counts. ByFile is never nil.
func CountCallbacks(prog *ast.Program) CallbackStats {
	stats := CallbackStats{ByFile: make(map[string]int)}
	for _, call := range prog.Calls() {
		stats.TotalCalls++
		n := 0
		for _, arg := range prog.Args(call) {
			if isCallback(prog, arg) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		stats.CallbackCalls++
		stats.CallbackArgs += n
		stats.ByFile[prog.Node(call).File]++
	}
	return stats
}

func isCallback(prog *ast.Program, arg ast.NodeID) bool {
	arg = unwrapParens(prog, arg)
	n := prog.Node(arg)
	switch n.Kind {
	case ast.KindFunction:
		return true
	case ast.KindIdentifier:
		if !prog.BindingsResolved() {
			return false
		}
		b, err := prog.BindingOf(arg)
		if err != nil || !b.Resolved() {
			return false
		}
		decl := prog.Node(b.Decl)
		if !decl.Parent.Valid() {
			return false
		}
		parent := prog.Node(decl.Parent)
		return parent.IsFunctionDeclaration() && parent.Field("name") == b.Decl
	}
	return false
}

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
