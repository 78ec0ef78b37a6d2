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
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

type compareFlags struct {
	base   string
	target string
	json   bool
}

func newCompareCmd(g *globalFlags) *cobra.Command {
	f := &compareFlags{}
	cmd := &cobra.Command{
		Use:   "compare [flags] <files or directories...>",
		Short: "Compare the call graphs of two strategies on the same program",
		Long: `Builds the program's call graph with two strategies and prints the
links only one of them has. By default ONESHOT is compared against DEMAND.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompareCommand(cmd, g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.base, "base", engine.StrategyOneShot.String(), "base strategy")
	cmd.Flags().StringVar(&f.target, "target", engine.StrategyDemand.String(), "target strategy")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the diff as JSON")
	return cmd
}

func runCompareCommand(cmd *cobra.Command, g *globalFlags, f *compareFlags, args []string) error {
	ctx := cmd.Context()

	base, err := engine.ParseStrategy(f.base)
	if err != nil {
		return err
	}
	target, err := engine.ParseStrategy(f.target)
	if err != nil {
		return err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	a, err := analyzePaths(ctx, cfg, target, args)
	if err != nil {
		return err
	}
	opts := append(cfg.EngineOptions(nil), engine.WithVertices(a.CallGraph.Vertices()))
	baseCG, err := engine.Build(ctx, a.Program, base, opts...)
	if err != nil {
		return fmt.Errorf("building %s call graph: %w", base, err)
	}

	diff, err := graph.DiffExports(graph.Export(baseCG), graph.Export(a.CallGraph))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}
	printDiff(out, base.String(), a.Strategy.String(), diff)
	return nil
}

func printDiff(w io.Writer, baseName, targetName string, d *graph.ExportDiff) {
	fmt.Fprintf(w, "%s: %d links\n", baseName, d.BaseLinks)
	fmt.Fprintf(w, "%s: %d links\n", targetName, d.TargetLinks)
	fmt.Fprintf(w, "call sites affected: %d\n", d.CallSitesAffected)
	for _, c := range d.LinksRemoved {
		fmt.Fprintf(w, "- %s\n", c)
	}
	for _, c := range d.LinksAdded {
		fmt.Fprintf(w, "+ %s\n", c)
	}
}
