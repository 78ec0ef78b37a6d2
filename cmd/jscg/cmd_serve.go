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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/discovery"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
	"github.com/AleutianAI/jscallgraph/services/callgraph/server"
)

type serveFlags struct {
	port        int
	debug       bool
	allowPaths  bool
	snapshotDir string
	maxCached   int
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve call graph builds and queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.port, "port", 0, "listen port (default from config, 8080)")
	fl.BoolVar(&f.debug, "debug", false, "run gin in debug mode with request logging")
	fl.BoolVar(&f.allowPaths, "allow-paths", false, "let requests analyze files on this machine")
	fl.StringVar(&f.snapshotDir, "snapshot-dir", "", "badger directory for saved call graphs")
	fl.IntVar(&f.maxCached, "max-cached", 0, "graphs kept for queries (default 16)")
	return cmd
}

func runServeCommand(cmd *cobra.Command, g *globalFlags, f *serveFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if cmd.Flags().Changed("snapshot-dir") {
		cfg.SnapshotDir = f.snapshotDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	strategy, err := cfg.StrategyValue()
	if err != nil {
		return err
	}

	logger := slog.Default()
	svcCfg := server.DefaultServiceConfig()
	svcCfg.Strategy = strategy
	svcCfg.MaxSteps = cfg.MaxSteps
	svcCfg.ParserOptions = cfg.ParserOptions()
	svcCfg.DiscoveryOptions = []discovery.Option{
		discovery.WithExtensions(cfg.Extensions...),
		discovery.WithExclude(cfg.Exclude...),
	}
	svcCfg.Loaders = cfg.Loaders
	svcCfg.AllowPaths = f.allowPaths
	if f.maxCached > 0 {
		svcCfg.MaxCachedGraphs = f.maxCached
	}

	var snapshots *graph.SnapshotManager
	if cfg.SnapshotDir != "" {
		mgr, closeDB, err := openSnapshots(cfg.SnapshotDir)
		if err != nil {
			return err
		}
		defer closeDB()
		snapshots = mgr
		logger.Info("snapshot store opened", slog.String("dir", cfg.SnapshotDir))
	}

	svc := server.NewService(svcCfg, logger, snapshots)
	router := server.NewRouter(svc, f.debug)
	return server.Run(cmd.Context(), fmt.Sprintf(":%d", cfg.Server.Port), router, logger)
}
