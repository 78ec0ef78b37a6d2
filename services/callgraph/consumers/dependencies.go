// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consumers

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// DefaultLoaders are the module loader functions recognized when none are
// given.
var DefaultLoaders = []string{"require", "requirejs", "define"}

// defineLoader names the AMD definition function. Its string arguments
// name the module being defined, not a dependency.
const defineLoader = "define"

// DependencyEdge is one module dependency found at a loader call.
type DependencyEdge struct {
	// File is the file containing the loader call.
	File string `json:"file"`

	// Module is the dependency as written.
	Module string `json:"module"`

	// Resolved is Module joined to the directory of File for relative
	// names, with a ".js" suffix added when it has no extension. Other
	// names are kept as written.
	Resolved string `json:"resolved"`

	// Loader is the name of the called loader.
	Loader string `json:"loader"`

	// Loc is the location of the string literal.
	Loc ast.Location `json:"loc"`
}

// String renders the edge as "file -> resolved".
func (e DependencyEdge) String() string {
	return fmt.Sprintf("%s -> %s", e.File, e.Resolved)
}

// DependencyGraph extracts module dependencies from calls to loader
// functions such as require and define.
//
// Description:
//
//	A call qualifies when its callee is an identifier naming one of the
//	loaders. String-literal arguments and string-literal elements of array
//	arguments are dependencies, so both require("x") and the AMD forms
//	require(["a", "b"], cb) and define(["a"], factory) are covered. For
//	define only array elements count. Non-literal module names are
//	skipped.
//
// Inputs:
//
//	prog    - The program. Bindings are not required.
//	loaders - Loader names. DefaultLoaders when empty.
//
// Outputs:
//
//	[]DependencyEdge - Edges sorted by file, position and module.
func DependencyGraph(prog *ast.Program, loaders ...string) []DependencyEdge {
	if len(loaders) == 0 {
		loaders = DefaultLoaders
	}
	names := make(map[string]bool, len(loaders))
	for _, l := range loaders {
		names[l] = true
	}

	var edges []DependencyEdge
	for _, call := range prog.Calls() {
		callNode := prog.Node(call)
		if callNode.Kind != ast.KindCall {
			continue
		}
		callee := unwrapParens(prog, prog.Callee(call))
		if !callee.Valid() {
			continue
		}
		c := prog.Node(callee)
		if c.Kind != ast.KindIdentifier || !names[c.Text] {
			continue
		}
		loader := c.Text

		for _, arg := range prog.Args(call) {
			a := prog.Node(arg)
			switch {
			case isStringLiteral(a):
				if loader == defineLoader {
					continue
				}
				edges = append(edges, newDependencyEdge(callNode.File, loader, a))
			case a.Kind == ast.KindArray:
				for _, el := range a.Children {
					if e := prog.Node(el); isStringLiteral(e) {
						edges = append(edges, newDependencyEdge(callNode.File, loader, e))
					}
				}
			}
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Loc.StartLine != b.Loc.StartLine {
			return a.Loc.StartLine < b.Loc.StartLine
		}
		if a.Loc.StartCol != b.Loc.StartCol {
			return a.Loc.StartCol < b.Loc.StartCol
		}
		return a.Module < b.Module
	})
	return edges
}

func isStringLiteral(n *ast.Node) bool {
	return n.Kind == ast.KindString && n.Type == "string"
}

func newDependencyEdge(file, loader string, lit *ast.Node) DependencyEdge {
	return DependencyEdge{
		File:     file,
		Module:   lit.Text,
		Resolved: resolveModule(file, lit.Text),
		Loader:   loader,
		Loc:      lit.Loc,
	}
}

// resolveModule turns a relative module name into a path next to file.
func resolveModule(file, module string) string {
	if !strings.HasPrefix(module, "./") && !strings.HasPrefix(module, "../") {
		return module
	}
	resolved := filepath.Join(filepath.Dir(file), module)
	if filepath.Ext(resolved) == "" {
		resolved += ".js"
	}
	return resolved
}
