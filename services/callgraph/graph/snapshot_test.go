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
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSnapshotManager creates a SnapshotManager with in-memory DB.
func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewSnapshotManager(db, logger)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return mgr
}

func TestNewSnapshotManager_NilDB(t *testing.T) {
	if _, err := NewSnapshotManager(nil, slog.Default()); err == nil {
		t.Error("expected error for nil DB")
	}
}

func TestNewSnapshotManager_NilLogger(t *testing.T) {
	if _, err := NewSnapshotManager(newTestDB(t), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	eg := Export(buildSampleGraph(t))

	meta, err := mgr.Save(ctx, "/test/project", "DEMAND", eg, "first run")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.SnapshotID == "" || meta.RunID == "" {
		t.Error("snapshot and run IDs should be set")
	}
	if meta.ProjectHash != ProjectHash("/test/project") {
		t.Errorf("project hash = %q, want %q", meta.ProjectHash, ProjectHash("/test/project"))
	}
	if meta.NodeCount != len(eg.Nodes) || meta.LinkCount != len(eg.Links) {
		t.Errorf("counts = %d/%d, want %d/%d", meta.NodeCount, meta.LinkCount, len(eg.Nodes), len(eg.Links))
	}
	if meta.Strategy != "DEMAND" || meta.Label != "first run" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.CompressedSize <= 0 || meta.ContentHash == "" {
		t.Error("compressed size and content hash should be set")
	}

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Hash() != eg.Hash() {
		t.Error("loaded graph differs from saved graph")
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("loaded metadata id = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}
}

func TestSnapshotManager_LoadLatest(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	eg := Export(buildSampleGraph(t))

	if _, err := mgr.Save(ctx, "/p", "ONESHOT", eg, "one"); err != nil {
		t.Fatal(err)
	}
	second, err := mgr.Save(ctx, "/p", "DEMAND", eg, "two")
	if err != nil {
		t.Fatal(err)
	}

	_, meta, err := mgr.LoadLatest(ctx, ProjectHash("/p"))
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if meta.SnapshotID != second.SnapshotID {
		t.Errorf("latest = %q, want %q", meta.SnapshotID, second.SnapshotID)
	}

	if _, _, err := mgr.LoadLatest(ctx, ProjectHash("/other")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestSnapshotManager_ListAndDelete(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	eg := Export(buildSampleGraph(t))

	a, _ := mgr.Save(ctx, "/a", "ONESHOT", eg, "")
	b, _ := mgr.Save(ctx, "/b", "ONESHOT", eg, "")

	all, err := mgr.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(all))
	}

	onlyA, err := mgr.List(ctx, ProjectHash("/a"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyA) != 1 || onlyA[0].SnapshotID != a.SnapshotID {
		t.Errorf("expected only snapshot %s, got %+v", a.SnapshotID, onlyA)
	}

	if err := mgr.Delete(ctx, b.SnapshotID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := mgr.Load(ctx, b.SnapshotID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound after delete, got %v", err)
	}
	if _, _, err := mgr.LoadLatest(ctx, ProjectHash("/b")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected latest pointer removed, got %v", err)
	}
	if err := mgr.Delete(ctx, b.SnapshotID); err == nil {
		t.Error("expected error deleting a missing snapshot")
	}
}

func TestSnapshotManager_Validation(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	if _, err := mgr.Save(ctx, "/p", "NONE", nil, ""); err == nil {
		t.Error("expected error for nil graph")
	}
	if _, _, err := mgr.Load(ctx, ""); err == nil {
		t.Error("expected error for empty snapshot id")
	}
	if _, _, err := mgr.LoadLatest(ctx, ""); err == nil {
		t.Error("expected error for empty project hash")
	}
	if err := mgr.Delete(ctx, ""); err == nil {
		t.Error("expected error for empty snapshot id")
	}
}
