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
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/config"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/watch"
)

type watchFlags struct {
	strategy string
	debounce time.Duration
	cgPath   string
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [flags] <files or directories...>",
		Short: "Rebuild the call graph whenever a source file changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchCommand(cmd, g, f, args)
		},
	}
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "call graph strategy: NONE, ONESHOT, DEMAND or FULL")
	cmd.Flags().DurationVar(&f.debounce, "debounce", watch.DefaultDebounce, "quiet period before a rebuild")
	cmd.Flags().StringVar(&f.cgPath, "cg-path", "", "rewrite the call graph JSON to this file after each build")
	return cmd
}

// rebuilder holds the last export so each rebuild can print what changed.
type rebuilder struct {
	cfg      config.Config
	strategy engine.Strategy
	paths    []string
	cgPath   string
	out      io.Writer

	mu   sync.Mutex
	last *graph.ExportedGraph
}

// build runs the analysis and prints the change against the last build.
func (r *rebuilder) build(ctx context.Context, changed []string) error {
	a, err := analyzePaths(ctx, r.cfg, r.strategy, r.paths)
	if err != nil {
		return err
	}
	eg := graph.Export(a.CallGraph)
	if r.cgPath != "" {
		if err := writeExport(r.cgPath, eg); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		fmt.Fprintf(r.out, "built %s call graph: %d nodes, %d links (%v)\n",
			a.Strategy, len(eg.Nodes), len(eg.Links), a.Timings.CallGraph)
	} else {
		diff, err := graph.DiffExports(r.last, eg)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "rebuilt after %d changed file(s): +%d -%d links, %d call sites affected\n",
			len(changed), len(diff.LinksAdded), len(diff.LinksRemoved), diff.CallSitesAffected)
		for _, c := range diff.LinksRemoved {
			fmt.Fprintf(r.out, "- %s\n", c)
		}
		for _, c := range diff.LinksAdded {
			fmt.Fprintf(r.out, "+ %s\n", c)
		}
	}
	r.last = eg
	return nil
}

func runWatchCommand(cmd *cobra.Command, g *globalFlags, f *watchFlags, args []string) error {
	ctx := cmd.Context()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy = f.strategy
	}
	strategy, err := cfg.StrategyValue()
	if err != nil {
		return err
	}

	r := &rebuilder{cfg: cfg, strategy: strategy, paths: args, cgPath: f.cgPath, out: cmd.OutOrStdout()}
	if err := r.build(ctx, nil); err != nil {
		return err
	}

	w, err := watch.New(args, r.build,
		watch.WithDebounce(f.debounce),
		watch.WithExtensions(cfg.Extensions...),
		watch.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	slog.Info("watching for changes", slog.Any("paths", args), slog.Duration("debounce", f.debounce))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
