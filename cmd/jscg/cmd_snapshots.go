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
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

type snapshotFlags struct {
	dir     string
	project string
	limit   int
	out     string
}

func newSnapshotsCmd(g *globalFlags) *cobra.Command {
	f := &snapshotFlags{}
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List, show, compare and delete saved call graphs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if f.dir != "" {
				return nil
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.SnapshotDir == "" {
				return fmt.Errorf("--snapshot-dir is required")
			}
			f.dir = cfg.SnapshotDir
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&f.dir, "snapshot-dir", "", "badger directory of saved call graphs")

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotsList(cmd, f)
		},
	}
	list.Flags().StringVar(&f.project, "project", "", "only snapshots of this project root")
	list.Flags().IntVar(&f.limit, "limit", 20, "maximum snapshots listed")

	show := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Print a snapshot's metadata, or write its graph with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsShow(cmd, f, args[0])
		},
	}
	show.Flags().StringVar(&f.out, "out", "", "write the call graph JSON to this file")

	diff := &cobra.Command{
		Use:   "diff <base-id> <target-id>",
		Short: "Print the links that differ between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsDiff(cmd, f, args[0], args[1])
		},
	}

	del := &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsDelete(cmd, f, args[0])
		},
	}

	cmd.AddCommand(list, show, diff, del)
	return cmd
}

func runSnapshotsList(cmd *cobra.Command, f *snapshotFlags) error {
	mgr, closeDB, err := openSnapshots(f.dir)
	if err != nil {
		return err
	}
	defer closeDB()

	var projectHash string
	if f.project != "" {
		projectHash = graph.ProjectHash(projectRoot([]string{f.project}))
	}
	metas, err := mgr.List(cmd.Context(), projectHash, f.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(metas) == 0 {
		fmt.Fprintln(out, "no snapshots")
		return nil
	}
	for _, m := range metas {
		fmt.Fprintf(out, "%s  %s  %-8s %5d nodes %6d links  %s",
			m.SnapshotID, formatMilli(m.CreatedAtMilli), m.Strategy, m.NodeCount, m.LinkCount, m.ProjectRoot)
		if m.Label != "" {
			fmt.Fprintf(out, "  [%s]", m.Label)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runSnapshotsShow(cmd *cobra.Command, f *snapshotFlags, id string) error {
	mgr, closeDB, err := openSnapshots(f.dir)
	if err != nil {
		return err
	}
	defer closeDB()

	eg, meta, err := mgr.Load(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if f.out != "" {
		if err := writeExport(f.out, eg); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote the call graph to %s\n", f.out)
		return nil
	}
	printMetadata(out, meta)
	return nil
}

func runSnapshotsDiff(cmd *cobra.Command, f *snapshotFlags, baseID, targetID string) error {
	mgr, closeDB, err := openSnapshots(f.dir)
	if err != nil {
		return err
	}
	defer closeDB()

	base, baseMeta, err := mgr.Load(cmd.Context(), baseID)
	if err != nil {
		return err
	}
	target, targetMeta, err := mgr.Load(cmd.Context(), targetID)
	if err != nil {
		return err
	}
	diff, err := graph.DiffExports(base, target)
	if err != nil {
		return err
	}
	printDiff(cmd.OutOrStdout(), baseMeta.SnapshotID, targetMeta.SnapshotID, diff)
	return nil
}

func runSnapshotsDelete(cmd *cobra.Command, f *snapshotFlags, id string) error {
	mgr, closeDB, err := openSnapshots(f.dir)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := mgr.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", id)
	return nil
}

func printMetadata(w io.Writer, m *graph.SnapshotMetadata) {
	fmt.Fprintf(w, "id       : %s\n", m.SnapshotID)
	fmt.Fprintf(w, "run      : %s\n", m.RunID)
	fmt.Fprintf(w, "project  : %s\n", m.ProjectRoot)
	fmt.Fprintf(w, "strategy : %s\n", m.Strategy)
	fmt.Fprintf(w, "created  : %s\n", formatMilli(m.CreatedAtMilli))
	fmt.Fprintf(w, "nodes    : %d\n", m.NodeCount)
	fmt.Fprintf(w, "links    : %d\n", m.LinkCount)
	fmt.Fprintf(w, "graph    : %s\n", m.GraphHash)
	if m.Label != "" {
		fmt.Fprintf(w, "label    : %s\n", m.Label)
	}
}

func formatMilli(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
