// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/config"
	"github.com/AleutianAI/jscallgraph/services/callgraph/consumers"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/export"
	"github.com/AleutianAI/jscallgraph/services/callgraph/flowgraph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

// neo4jPasswordEnv holds the Neo4j password; it is never read from flags.
const neo4jPasswordEnv = "JSCG_NEO4J_PASSWORD"

type analyzeFlags struct {
	strategy    string
	printFlow   bool
	cgPath      string
	printTime   bool
	countCB     bool
	requireJS   bool
	snapshotDir string
	label       string
	neo4jURI    string
	neo4jUser   string
	neo4jDB     string
	maxSteps    int
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze [flags] <files or directories...>",
		Short: "Build the call graph of a JavaScript program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeCommand(cmd, g, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.strategy, "strategy", "", "call graph strategy: NONE, ONESHOT, DEMAND or FULL")
	fl.BoolVar(&f.printFlow, "fg", false, "print the flow graph in DOT format")
	fl.StringVar(&f.cgPath, "cg-path", "", "write the call graph as JSON to this file")
	fl.BoolVar(&f.printTime, "time", false, "print the time of each phase")
	fl.BoolVar(&f.countCB, "count-cb", false, "print callback counts")
	fl.BoolVar(&f.requireJS, "req-js", false, "print module dependency edges")
	fl.StringVar(&f.snapshotDir, "snapshot-dir", "", "save the call graph to this badger directory")
	fl.StringVar(&f.label, "label", "", "label for the saved snapshot")
	fl.StringVar(&f.neo4jURI, "neo4j-uri", "", "load the call graph into Neo4j at this URI (password from $"+neo4jPasswordEnv+")")
	fl.StringVar(&f.neo4jUser, "neo4j-user", "", "Neo4j user")
	fl.StringVar(&f.neo4jDB, "neo4j-database", "", "Neo4j database")
	fl.IntVar(&f.maxSteps, "max-steps", 0, "engine step budget, 0 for unlimited")
	return cmd
}

// apply overrides cfg with the flags the user set.
func (f *analyzeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("strategy") {
		cfg.Strategy = f.strategy
	}
	if fl.Changed("max-steps") {
		cfg.MaxSteps = f.maxSteps
	}
	if fl.Changed("snapshot-dir") {
		cfg.SnapshotDir = f.snapshotDir
	}
	if fl.Changed("neo4j-uri") {
		cfg.Neo4j.URI = f.neo4jURI
	}
	if fl.Changed("neo4j-user") {
		cfg.Neo4j.User = f.neo4jUser
	}
	if fl.Changed("neo4j-database") {
		cfg.Neo4j.Database = f.neo4jDB
	}
}

func runAnalyzeCommand(cmd *cobra.Command, g *globalFlags, f *analyzeFlags, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd, &cfg)

	// The strategy is checked before any file is read.
	strategy, err := cfg.StrategyValue()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := analyzePaths(ctx, cfg, strategy, args)
	if err != nil {
		return err
	}
	cg := a.CallGraph

	if f.printTime {
		fmt.Fprintf(out, "parsing  : %v\n", a.Timings.Parse)
		fmt.Fprintf(out, "bindings : %v\n", a.Timings.Bindings)
		fmt.Fprintf(out, "callgraph: %v\n", a.Timings.CallGraph)
	}

	if f.printFlow {
		if err := writeFlowGraph(out, a); err != nil {
			return err
		}
	}

	if f.countCB {
		printCallbacks(out, consumers.CountCallbacks(a.Program))
	}

	if f.requireJS {
		for _, e := range consumers.DependencyGraph(a.Program, cfg.Loaders...) {
			fmt.Fprintln(out, e.String())
		}
	}

	eg := graph.Export(cg)
	wrote := false

	if f.cgPath != "" {
		if err := writeExport(f.cgPath, eg); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote the call graph to %s\n", f.cgPath)
		wrote = true
	}

	root := projectRoot(args)
	if cfg.SnapshotDir != "" {
		meta, err := saveSnapshot(ctx, cfg.SnapshotDir, root, a.Strategy.String(), eg, f.label)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved snapshot %s (%d nodes, %d links)\n", meta.SnapshotID, meta.NodeCount, meta.LinkCount)
		wrote = true
	}

	if cfg.Neo4j.URI != "" {
		if err := loadNeo4j(ctx, cfg, root, a.Strategy.String(), eg); err != nil {
			return err
		}
		fmt.Fprintf(out, "Loaded %d nodes and %d links into Neo4j\n", len(eg.Nodes), len(eg.Links))
		wrote = true
	}

	if !wrote && !f.printFlow && !f.countCB && !f.requireJS && !f.printTime {
		printSummary(out, a)
	}
	return nil
}

// writeFlowGraph prints the flow graph. Strategies that do not build one
// get the intraprocedural graph.
func writeFlowGraph(w io.Writer, a *engine.Analysis) error {
	fg := a.CallGraph.FlowGraph()
	if fg == nil {
		fg = flowgraph.New()
		b, err := flowgraph.NewBuilder(a.Program, fg)
		if err != nil {
			return err
		}
		b.AddIntraprocedural()
	}
	return fg.WriteDot(w, a.Program)
}

func printCallbacks(w io.Writer, s consumers.CallbackStats) {
	fmt.Fprintf(w, "calls          : %d\n", s.TotalCalls)
	fmt.Fprintf(w, "callback calls : %d\n", s.CallbackCalls)
	fmt.Fprintf(w, "callback args  : %d\n", s.CallbackArgs)
	for _, file := range s.Files() {
		fmt.Fprintf(w, "  %s: %d\n", file, s.ByFile[file])
	}
}

func printSummary(w io.Writer, a *engine.Analysis) {
	cg := a.CallGraph
	fmt.Fprintf(w, "strategy  : %s\n", a.Strategy)
	fmt.Fprintf(w, "files     : %d\n", len(a.Program.Files()))
	fmt.Fprintf(w, "functions : %d\n", len(cg.Vertices().Funcs()))
	fmt.Fprintf(w, "call sites: %d\n", len(cg.Vertices().CallSites()))
	fmt.Fprintf(w, "edges     : %d\n", cg.EdgeCount())
}

func writeExport(path string, eg *graph.ExportedGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := eg.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func openSnapshots(dir string) (*graph.SnapshotManager, func(), error) {
	db, err := graph.OpenSnapshotDB(dir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := graph.NewSnapshotManager(db, slog.Default())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return mgr, func() { _ = db.Close() }, nil
}

func saveSnapshot(ctx context.Context, dir, root, strategy string, eg *graph.ExportedGraph, label string) (*graph.SnapshotMetadata, error) {
	mgr, closeDB, err := openSnapshots(dir)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return mgr.Save(ctx, root, strategy, eg, label)
}

func loadNeo4j(ctx context.Context, cfg config.Config, root, strategy string, eg *graph.ExportedGraph) error {
	opts := []export.Neo4jOption{export.WithLogger(slog.Default())}
	if cfg.Neo4j.Database != "" {
		opts = append(opts, export.WithDatabase(cfg.Neo4j.Database))
	}
	if cfg.Neo4j.BatchSize > 0 {
		opts = append(opts, export.WithBatchSize(cfg.Neo4j.BatchSize))
	}
	loader, err := export.NewNeo4jLoader(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, os.Getenv(neo4jPasswordEnv), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := loader.Close(context.WithoutCancel(ctx)); cerr != nil {
			slog.Warn("closing neo4j driver", slog.String("error", cerr.Error()))
		}
	}()
	return loader.Load(ctx, root, strategy, eg)
}

// isUsageError reports errors caused by bad input rather than a failure.
func isUsageError(err error) bool {
	var pe *ast.ParseError
	return errors.Is(err, engine.ErrUnsupportedStrategy) || errors.Is(err, ast.ErrNoSources) || errors.As(err, &pe)
}
