// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// jscg builds static call graphs for JavaScript programs.
//
// Usage:
//
//	jscg analyze [flags] <files or directories...>
//	jscg compare <files or directories...>
//	jscg serve [--port 8080]
//	jscg watch [flags] <files or directories...>
//	jscg snapshots list|show|delete --snapshot-dir DIR
//
// Settings are read from ./jscg.yaml (or --config) and overridden by flags.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/config"
	"github.com/AleutianAI/jscallgraph/services/callgraph/discovery"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if isUsageError(err) {
			return 2
		}
		return 1
	}
	return 0
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	logLevel   string
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "jscg",
		Short:         "Static call graph builder for JavaScript",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd.ErrOrStderr(), g.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ./"+config.FileName+")")

	root.AddCommand(
		newAnalyzeCmd(g),
		newCompareCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
		newSnapshotsCmd(g),
	)
	return root
}

// setupLogging installs the default slog logger: text on a terminal, JSON
// otherwise.
func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func (g *globalFlags) loadConfig() (config.Config, error) {
	if g.configPath != "" {
		return config.Load(g.configPath)
	}
	return config.LoadDir(".")
}

// analyzePaths expands paths, reads the files and runs the pipeline.
func analyzePaths(ctx context.Context, cfg config.Config, strategy engine.Strategy, paths []string, extra ...engine.Option) (*engine.Analysis, error) {
	files, err := discovery.Expand(paths,
		discovery.WithExtensions(cfg.Extensions...),
		discovery.WithExclude(cfg.Exclude...),
	)
	if err != nil {
		return nil, err
	}
	sources, err := ast.ReadSources(files)
	if err != nil {
		return nil, err
	}
	opts := append(cfg.EngineOptions(slog.Default()), extra...)
	return engine.Analyze(ctx, sources, strategy, cfg.ParserOptions(), opts...)
}

// projectRoot returns the absolute path of the first argument, used to
// group snapshots and Neo4j graphs.
func projectRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	abs, err := filepath.Abs(paths[0])
	if err != nil {
		return paths[0]
	}
	return abs
}
