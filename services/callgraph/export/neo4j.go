// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes call graphs to external stores.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

var tracer = otel.Tracer("jscg.export")

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 1000

// Node kinds stored on JSFunc.kind.
const (
	KindFunction = "function"
	KindNative   = "native"
	KindTopLevel = "toplevel"
)

// Neo4jOptions configures a Neo4jLoader.
type Neo4jOptions struct {
	// Database selects the Neo4j database. Empty means the server default.
	Database string

	// BatchSize caps the rows per statement.
	// Default: 1000
	BatchSize int

	// Logger receives progress messages. Default: slog.Default().
	Logger *slog.Logger
}

// Neo4jOption is a functional option for configuring a Neo4jLoader.
type Neo4jOption func(*Neo4jOptions)

// WithDatabase selects the Neo4j database.
func WithDatabase(name string) Neo4jOption {
	return func(o *Neo4jOptions) {
		o.Database = name
	}
}

// WithBatchSize sets the rows per statement.
func WithBatchSize(n int) Neo4jOption {
	return func(o *Neo4jOptions) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Neo4jOption {
	return func(o *Neo4jOptions) {
		o.Logger = l
	}
}

func buildNeo4jOptions(opts []Neo4jOption) Neo4jOptions {
	o := Neo4jOptions{BatchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// runFunc executes one Cypher statement.
type runFunc func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jLoader loads exchange graphs into Neo4j using batched UNWIND
// statements.
//
// Description:
//
//	Every exchange node becomes a JSFunc node keyed by (project, id) and
//	every link a MAY_CALL relationship keyed by its call site. Loading a
//	project first removes the nodes previously loaded for it, so a reload
//	replaces rather than accumulates.
//
// Thread Safety:
//
//	Safe for concurrent use; the driver manages its own connection pool.
type Neo4jLoader struct {
	driver  neo4j.DriverWithContext
	options Neo4jOptions
	run     runFunc
}

// NewNeo4jLoader connects to Neo4j and verifies connectivity.
//
// Inputs:
//
//	ctx      - Context for the connectivity check.
//	uri      - Bolt URI, e.g. "bolt://localhost:7687".
//	user     - User name.
//	password - Password.
//	opts     - Loader options.
//
// Outputs:
//
//	*Neo4jLoader - The loader. Close it when done.
//	error        - Non-nil if the driver cannot be created or the server
//	               is unreachable.
func NewNeo4jLoader(ctx context.Context, uri, user, password string, opts ...Neo4jOption) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", uri, err)
	}

	l := &Neo4jLoader{driver: driver, options: buildNeo4jOptions(opts)}
	l.run = l.executeQuery
	return l, nil
}

// Close releases the driver.
func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}
	return l.driver.Close(ctx)
}

func (l *Neo4jLoader) executeQuery(ctx context.Context, cypher string, params map[string]any) error {
	var cfg []neo4j.ExecuteQueryConfigurationOption
	if l.options.Database != "" {
		cfg = append(cfg, neo4j.ExecuteQueryWithDatabase(l.options.Database))
	}
	_, err := neo4j.ExecuteQuery(ctx, l.driver, cypher, params, neo4j.EagerResultTransformer, cfg...)
	return err
}

// Statements run by the loader.
const (
	createIndexCypher = "CREATE INDEX jsfunc_key IF NOT EXISTS FOR (n:JSFunc) ON (n.project, n.id)"

	cleanCypher = "MATCH (n:JSFunc {project: $project}) DETACH DELETE n"

	nodesCypher = `UNWIND $batch AS row
 MERGE (n:JSFunc {project: row.project, id: row.id})
 SET n.name = row.name, n.file = row.file, n.position = row.position, n.kind = row.kind`

	linksCypher = `UNWIND $batch AS row
 MATCH (caller:JSFunc {project: row.project, id: row.source})
 MATCH (callee:JSFunc {project: row.project, id: row.target})
 MERGE (caller)-[r:MAY_CALL {call_file: row.call_file, call_position: row.call_position}]->(callee)
 SET r.callee_name = row.callee_name, r.strategy = row.strategy`
)

// Load replaces the project's graph in Neo4j with eg.
//
// Inputs:
//
//	ctx      - Context for cancellation.
//	project  - Project key stored on every node. Must not be empty.
//	strategy - Strategy that built eg, stored on every relationship.
//	eg       - The exchange graph.
//
// Outputs:
//
//	error - The first failing statement's error, wrapped.
func (l *Neo4jLoader) Load(ctx context.Context, project, strategy string, eg *graph.ExportedGraph) error {
	if project == "" {
		return fmt.Errorf("project must not be empty")
	}
	if eg == nil {
		return fmt.Errorf("graph must not be nil")
	}

	ctx, span := tracer.Start(ctx, "Neo4jLoader.Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("project", project),
		attribute.Int("nodes", len(eg.Nodes)),
		attribute.Int("links", len(eg.Links)),
	)

	logger := l.options.Logger
	if err := l.run(ctx, createIndexCypher, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating index: %w", err)
	}
	if err := l.run(ctx, cleanCypher, map[string]any{"project": project}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("cleaning project %s: %w", project, err)
	}

	logger.Info("loading call graph nodes", slog.String("project", project), slog.Int("count", len(eg.Nodes)))
	for _, batch := range Chunk(NodeRows(project, eg), l.options.BatchSize) {
		if err := l.run(ctx, nodesCypher, map[string]any{"batch": batch}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("loading nodes: %w", err)
		}
	}

	logger.Info("loading call graph links", slog.String("project", project), slog.Int("count", len(eg.Links)))
	for _, batch := range Chunk(LinkRows(project, strategy, eg), l.options.BatchSize) {
		if err := l.run(ctx, linksCypher, map[string]any{"batch": batch}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("loading links: %w", err)
		}
	}
	return nil
}

// NodeRows converts exchange nodes to UNWIND rows.
func NodeRows(project string, eg *graph.ExportedGraph) []map[string]any {
	rows := make([]map[string]any, 0, len(eg.Nodes))
	for _, n := range eg.Nodes {
		rows = append(rows, map[string]any{
			"project":  project,
			"id":       int64(n.ID),
			"name":     n.FunctionName,
			"file":     n.FileName,
			"position": n.FunctionPosition,
			"kind":     nodeKind(n),
		})
	}
	return rows
}

// LinkRows converts exchange links to UNWIND rows.
func LinkRows(project, strategy string, eg *graph.ExportedGraph) []map[string]any {
	rows := make([]map[string]any, 0, len(eg.Links))
	for _, l := range eg.Links {
		rows = append(rows, map[string]any{
			"project":       project,
			"source":        int64(l.Source),
			"target":        int64(l.Target),
			"call_file":     l.CallFilePath,
			"call_position": l.CallPosition,
			"callee_name":   l.CalleeName,
			"strategy":      strategy,
		})
	}
	return rows
}

// Chunk splits rows into batches of at most size rows.
func Chunk(rows []map[string]any, size int) [][]map[string]any {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]map[string]any
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

func nodeKind(n graph.ExportedNode) string {
	switch {
	case n.FileName == "native" && n.FunctionPosition == "0:0":
		return KindNative
	case n.FunctionName == "toplevel":
		return KindTopLevel
	default:
		return KindFunction
	}
}
