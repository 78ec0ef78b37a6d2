// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/jscallgraph/services/callgraph/consumers"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the body of GET /v1/callgraph/health.
type HealthResponse struct {
	Status string `json:"status"`
	Graphs int    `json:"graphs"`
}

// SourceFile is one inline source of a build request.
type SourceFile struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

// BuildRequest is the body of POST /v1/callgraph/build.
type BuildRequest struct {
	// Sources are inline files, analyzed in order.
	Sources []SourceFile `json:"sources" binding:"required_without=Paths,dive"`

	// Paths are files or directories on the server. Only honored when the
	// service allows paths.
	Paths []string `json:"paths" binding:"required_without=Sources"`

	// Strategy is NONE, ONESHOT, DEMAND or FULL. Empty means the service
	// default.
	Strategy string `json:"strategy"`

	// MaxSteps lowers the service step budget for this build.
	MaxSteps int `json:"max_steps" binding:"gte=0"`

	// ProjectRoot labels the build for snapshots.
	ProjectRoot string `json:"project_root"`

	// IncludeFlowGraph adds the DOT flow graph of a DEMAND build.
	IncludeFlowGraph bool `json:"include_flow_graph"`

	// IncludeDependencies adds module loader dependencies.
	IncludeDependencies bool `json:"include_dependencies"`

	// SaveSnapshot persists the result.
	SaveSnapshot bool   `json:"save_snapshot"`
	Label        string `json:"label"`
}

// BuildResponse is the body of a successful build.
type BuildResponse struct {
	GraphID      string                     `json:"graph_id"`
	Strategy     string                     `json:"strategy"`
	Stats        graph.Stats                `json:"stats"`
	Timings      engine.Timings             `json:"timings"`
	Callbacks    consumers.CallbackStats    `json:"callbacks"`
	Graph        *graph.ExportedGraph       `json:"graph"`
	FlowGraph    string                     `json:"flow_graph,omitempty"`
	Dependencies []consumers.DependencyEdge `json:"dependencies,omitempty"`
	SnapshotID   string                     `json:"snapshot_id,omitempty"`
}

// QueryRequest is the body of the callers and callees endpoints.
type QueryRequest struct {
	GraphID string `json:"graph_id" binding:"required"`

	// Name is the function name. For callees, empty selects top-level
	// call sites.
	Name string `json:"name"`
}

// EdgeInfo is one call edge in a query response.
type EdgeInfo struct {
	Caller       string `json:"caller"`
	CallFile     string `json:"call_file"`
	CallPosition string `json:"call_position"`
	CalleeName   string `json:"callee_name"`
	Target       string `json:"target"`
	TargetFile   string `json:"target_file"`
}

// QueryResponse is the body of the callers and callees endpoints.
type QueryResponse struct {
	GraphID string     `json:"graph_id"`
	Name    string     `json:"name"`
	Count   int        `json:"count"`
	Edges   []EdgeInfo `json:"edges"`
}

// FunctionInfo describes a function in a response.
type FunctionInfo struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Position string `json:"position"`
}

// DeadFunctionsResponse is the body of GET /v1/callgraph/graphs/:id/dead.
type DeadFunctionsResponse struct {
	GraphID   string         `json:"graph_id"`
	Count     int            `json:"count"`
	Functions []FunctionInfo `json:"functions"`
}
