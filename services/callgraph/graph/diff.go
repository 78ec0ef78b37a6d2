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
	"fmt"
	"sort"
)

// LinkChange is one call edge present in only one of two exports, described
// by names and positions so it can be matched across runs.
type LinkChange struct {
	CallFilePath string `json:"call_file_path"`
	CallPosition string `json:"call_position"`
	CalleeName   string `json:"callee_name"`
	TargetName   string `json:"target_name"`
	TargetFile   string `json:"target_file"`
	TargetPos    string `json:"target_position"`
}

// String renders the change as "file:pos name -> target@file:pos".
func (c LinkChange) String() string {
	return fmt.Sprintf("%s:%s %s -> %s@%s:%s",
		c.CallFilePath, c.CallPosition, c.CalleeName, c.TargetName, c.TargetFile, c.TargetPos)
}

// ExportDiff contains the differences between two exported call graphs.
type ExportDiff struct {
	// LinksAdded are edges present in target but not in base.
	LinksAdded []LinkChange `json:"links_added"`

	// LinksRemoved are edges present in base but not in target.
	LinksRemoved []LinkChange `json:"links_removed"`

	// CallSitesAffected is the number of distinct call sites with a change.
	CallSitesAffected int `json:"call_sites_affected"`

	// BaseLinks and TargetLinks are the total link counts.
	BaseLinks   int `json:"base_links"`
	TargetLinks int `json:"target_links"`
}

// DiffExports compares two exported call graphs.
//
// Description:
//
//	Vertex ids are not stable across runs (native vertices are numbered on
//	first use), so links are compared by call site and target identity:
//	(file, position, callee name, target name, target file, target
//	position). Typical use is comparing ONESHOT against DEMAND on the
//	same program, or a snapshot against the current run.
//
// Inputs:
//
//	base - The base graph. Must not be nil.
//	target - The graph compared against base. Must not be nil.
//
// Outputs:
//
//	*ExportDiff - Sorted added and removed links.
//	error - Non-nil if either graph is nil.
//
// Complexity:
//
//	O(L log L) where L is max(base links, target links).
func DiffExports(base, target *ExportedGraph) (*ExportDiff, error) {
	if base == nil {
		return nil, fmt.Errorf("base graph must not be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target graph must not be nil")
	}

	baseSet := linkSet(base)
	targetSet := linkSet(target)

	diff := &ExportDiff{
		LinksAdded:   []LinkChange{},
		LinksRemoved: []LinkChange{},
		BaseLinks:    len(base.Links),
		TargetLinks:  len(target.Links),
	}
	sites := make(map[string]bool)

	for key := range targetSet {
		if !baseSet[key] {
			diff.LinksAdded = append(diff.LinksAdded, key)
			sites[key.CallFilePath+"|"+key.CallPosition] = true
		}
	}
	for key := range baseSet {
		if !targetSet[key] {
			diff.LinksRemoved = append(diff.LinksRemoved, key)
			sites[key.CallFilePath+"|"+key.CallPosition] = true
		}
	}

	sortChanges(diff.LinksAdded)
	sortChanges(diff.LinksRemoved)
	diff.CallSitesAffected = len(sites)

	return diff, nil
}

// linkSet keys every link by call site and target identity.
func linkSet(eg *ExportedGraph) map[LinkChange]bool {
	byID := make(map[int]ExportedNode, len(eg.Nodes))
	for _, n := range eg.Nodes {
		byID[n.ID] = n
	}
	set := make(map[LinkChange]bool, len(eg.Links))
	for _, l := range eg.Links {
		t := byID[l.Target]
		set[LinkChange{
			CallFilePath: l.CallFilePath,
			CallPosition: l.CallPosition,
			CalleeName:   l.CalleeName,
			TargetName:   t.FunctionName,
			TargetFile:   t.FileName,
			TargetPos:    t.FunctionPosition,
		}] = true
	}
	return set
}

func sortChanges(changes []LinkChange) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].String() < changes[j].String()
	})
}
