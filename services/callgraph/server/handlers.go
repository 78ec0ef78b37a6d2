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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/consumers"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/query"
)

const requestIDHeader = "X-Request-ID"

// Handlers serves the /v1/callgraph endpoints.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers over svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns the request id set by the middleware, or
// the client's header, or a new one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := c.GetHeader(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func abort(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: getOrCreateRequestID(c),
	})
}

// HandleHealth handles GET /v1/callgraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Graphs: h.svc.GraphCount()})
}

// HandleBuild handles POST /v1/callgraph/build.
//
// Description:
//
//	Parses the sources, resolves bindings and builds the call graph with
//	the requested strategy. The result is cached under a new graph id for
//	the query endpoints.
//
// Request Body:
//
//	BuildRequest
//
// Response:
//
//	200 OK: BuildResponse
//	400 Bad Request: Invalid body, unknown strategy, parse error or bad path
//	403 Forbidden: Paths sent to a service that only accepts inline sources
//	422 Unprocessable Entity: Step budget exceeded
//	500 Internal Server Error: Build or snapshot failure
//	503 Service Unavailable: Snapshot requested without a store
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleBuild(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleBuild")

	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	strategy := h.svc.Config().Strategy
	if req.Strategy != "" {
		s, err := engine.ParseStrategy(req.Strategy)
		if err != nil {
			abort(c, http.StatusBadRequest, "UNSUPPORTED_STRATEGY", err)
			return
		}
		strategy = s
	}

	in := BuildInput{
		Paths:       req.Paths,
		Strategy:    strategy,
		MaxSteps:    req.MaxSteps,
		ProjectRoot: req.ProjectRoot,
	}
	for _, f := range req.Sources {
		in.Sources = append(in.Sources, ast.Source{Path: f.Path, Content: []byte(f.Content)})
	}

	cached, err := h.svc.Build(c.Request.Context(), in)
	if err != nil {
		var pe *ast.ParseError
		switch {
		case errors.As(err, &pe):
			abort(c, http.StatusBadRequest, "PARSE_ERROR", err)
		case errors.Is(err, ast.ErrNoSources):
			abort(c, http.StatusBadRequest, "NO_SOURCES", err)
		case errors.Is(err, ErrPathsDisabled):
			abort(c, http.StatusForbidden, "PATHS_DISABLED", err)
		case errors.Is(err, engine.ErrAnalysisBudgetExceeded):
			abort(c, http.StatusUnprocessableEntity, "BUDGET_EXCEEDED", err)
		default:
			logger.Error("build failed", slog.Any("error", err))
			abort(c, http.StatusInternalServerError, "BUILD_FAILED", err)
		}
		return
	}

	a := cached.Analysis
	resp := BuildResponse{
		GraphID:   cached.ID,
		Strategy:  a.Strategy.String(),
		Stats:     a.CallGraph.Stats(),
		Timings:   a.Timings,
		Callbacks: consumers.CountCallbacks(a.Program),
		Graph:     cached.Export,
	}
	if req.IncludeFlowGraph {
		if fg := a.CallGraph.FlowGraph(); fg != nil {
			resp.FlowGraph = fg.Dot(a.Program)
		}
	}
	if req.IncludeDependencies {
		resp.Dependencies = consumers.DependencyGraph(a.Program, h.svc.Config().Loaders...)
	}
	if req.SaveSnapshot {
		meta, err := h.svc.SaveSnapshot(c.Request.Context(), cached, req.Label)
		if err != nil {
			if errors.Is(err, ErrSnapshotsDisabled) {
				abort(c, http.StatusServiceUnavailable, "SNAPSHOTS_NOT_AVAILABLE", err)
				return
			}
			logger.Error("snapshot save failed", slog.Any("error", err))
			abort(c, http.StatusInternalServerError, "SNAPSHOT_SAVE_FAILED", err)
			return
		}
		resp.SnapshotID = meta.SnapshotID
	}

	c.JSON(http.StatusOK, resp)
}

// HandleCallers handles POST /v1/callgraph/callers.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Missing graph id or name
//	404 Not Found: Unknown graph id
func (h *Handlers) HandleCallers(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	if req.Name == "" {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", errors.New("name is required"))
		return
	}
	cached, ok := h.lookup(c, req.GraphID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, queryResponse(req, query.Callers(cached.Analysis.CallGraph, req.Name)))
}

// HandleCallees handles POST /v1/callgraph/callees.
func (h *Handlers) HandleCallees(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	cached, ok := h.lookup(c, req.GraphID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, queryResponse(req, query.Callees(cached.Analysis.CallGraph, req.Name)))
}

// HandleGetGraph handles GET /v1/callgraph/graphs/:id and returns the
// exchange-format graph.
func (h *Handlers) HandleGetGraph(c *gin.Context) {
	cached, ok := h.lookup(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cached.Export)
}

// HandleDeadFunctions handles GET /v1/callgraph/graphs/:id/dead.
func (h *Handlers) HandleDeadFunctions(c *gin.Context) {
	cached, ok := h.lookup(c, c.Param("id"))
	if !ok {
		return
	}
	resp := DeadFunctionsResponse{GraphID: cached.ID, Functions: []FunctionInfo{}}
	for _, fv := range query.DeadFunctions(cached.Analysis.CallGraph) {
		resp.Functions = append(resp.Functions, functionInfo(fv))
	}
	resp.Count = len(resp.Functions)
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) lookup(c *gin.Context, id string) (*CachedGraph, bool) {
	cached, err := h.svc.GetGraph(id)
	if err != nil {
		abort(c, http.StatusNotFound, "GRAPH_NOT_FOUND", err)
		return nil, false
	}
	return cached, true
}

func functionInfo(fv *graph.FuncVertex) FunctionInfo {
	name := fv.FuncName
	if name == "" {
		name = "null"
	}
	return FunctionInfo{Name: name, File: fv.File, Position: fv.Loc.Position()}
}

func queryResponse(req QueryRequest, edges []query.Edge) QueryResponse {
	resp := QueryResponse{GraphID: req.GraphID, Name: req.Name, Edges: []EdgeInfo{}}
	for _, e := range edges {
		info := EdgeInfo{
			Caller:       e.CallerName(),
			CallFile:     e.Call.File,
			CallPosition: e.Call.Loc.Position(),
			CalleeName:   e.Call.CalleeName(),
			Target:       e.TargetName(),
			TargetFile:   "native",
		}
		if fv, ok := e.Target.(*graph.FuncVertex); ok {
			info.TargetFile = fv.File
		}
		resp.Edges = append(resp.Edges, info)
	}
	resp.Count = len(resp.Edges)
	return resp
}
