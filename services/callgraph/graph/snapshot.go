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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ExportSchemaVersion is the version of the stored snapshot payload.
const ExportSchemaVersion = "1"

// BadgerDB key prefixes for call graph snapshots.
const (
	keyPrefixSnap      = "cg:snap:"
	keyPrefixSnapIndex = "cg:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// ErrSnapshotNotFound is returned when a snapshot id or project has no
// stored snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotMetadata describes one stored call graph.
type SnapshotMetadata struct {
	// SnapshotID is SHA256(ProjectRoot + ":" + RunID)[:16].
	SnapshotID string `json:"snapshot_id"`

	// RunID is a random id of the analysis run that produced the graph.
	RunID string `json:"run_id"`

	// ProjectRoot is the path the analysis was run on.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16] for key grouping.
	ProjectHash string `json:"project_hash"`

	// Strategy is the strategy that built the graph.
	Strategy string `json:"strategy"`

	// GraphHash is ExportedGraph.Hash of the stored graph.
	GraphHash string `json:"graph_hash"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	NodeCount int `json:"node_count"`
	LinkCount int `json:"link_count"`

	// SchemaVersion is the payload schema version.
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager stores exported call graphs in BadgerDB.
//
// Description:
//
//	Each snapshot is the exchange-format graph of one analysis run,
//	stored as gzip-compressed JSON next to its metadata. A per-project
//	"latest" pointer lets callers compare a run against the previous one.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a new SnapshotManager.
//
// Inputs:
//
//	db - An opened BadgerDB instance owned by the caller. Must not be nil.
//	logger - Logger for diagnostic output. Must not be nil.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// OpenSnapshotDB opens (or creates) an on-disk snapshot store in dir.
func OpenSnapshotDB(dir string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store %s: %w", dir, err)
	}
	return db, nil
}

// Save persists an exported call graph.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	projectRoot - The analyzed root, used to group snapshots.
//	strategy - The strategy that built the graph.
//	eg - The graph to store. Must not be nil.
//	label - Optional human-readable label.
//
// Outputs:
//
//	*SnapshotMetadata - Metadata about the saved snapshot.
//	error - Non-nil if serialization or storage fails.
//
// Key Schema:
//
//	cg:snap:{projectHash}:{snapshotID}:data → gzip(JSON(ExportedGraph))
//	cg:snap:{projectHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	cg:snap:{projectHash}:latest            → snapshotID
//	cg:snap:index:{snapshotID}              → projectHash
func (m *SnapshotManager) Save(ctx context.Context, projectRoot, strategy string, eg *ExportedGraph, label string) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if eg == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(eg)
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	runID := uuid.NewString()
	projectHash := ProjectHash(projectRoot)
	snapshotID := hashString(projectRoot + ":" + runID)[:16]

	meta := &SnapshotMetadata{
		SnapshotID:     snapshotID,
		RunID:          runID,
		ProjectRoot:    projectRoot,
		ProjectHash:    projectHash,
		Strategy:       strategy,
		GraphHash:      eg.Hash(),
		Label:          label,
		CreatedAtMilli: time.Now().UnixMilli(),
		NodeCount:      len(eg.Nodes),
		LinkCount:      len(eg.Links),
		SchemaVersion:  ExportSchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey, metaKey := snapshotKeys(projectHash, snapshotID)
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(indexKey), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("project_root", projectRoot),
		slog.String("strategy", strategy),
		slog.Int("node_count", meta.NodeCount),
		slog.Int("link_count", meta.LinkCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)

	return meta, nil
}

// Load retrieves a snapshot by its ID.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*ExportedGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return m.loadByKeys(projectHash, snapshotID)
}

// LoadLatest loads the most recent snapshot for a project hash.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectHash string) (*ExportedGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if projectHash == "" {
		return nil, nil, fmt.Errorf("project hash must not be empty")
	}

	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return notFound(err)
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", projectHash, err)
	}

	return m.loadByKeys(projectHash, snapshotID)
}

// List returns metadata for snapshots, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	projectHash - Optional filter. If empty, returns all snapshots.
//	limit - Maximum number of results. If <= 0, defaults to 100.
func (m *SnapshotManager) List(ctx context.Context, projectHash string, limit int) ([]*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = 100
	}

	var results []*SnapshotMetadata

	prefix := keyPrefixSnap
	if projectHash != "" {
		prefix = keyPrefixSnap + projectHash + ":"
	}

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}

			var meta SnapshotMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot and, if it was the latest, the latest pointer.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	projectHash, err := m.getProjectHash(snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	dataKey, metaKey := snapshotKeys(projectHash, snapshotID)
	latestKey := keyPrefixSnap + projectHash + keySuffixLatest
	indexKey := keyPrefixSnapIndex + snapshotID

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{dataKey, metaKey, indexKey} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}

		item, err := txn.Get([]byte(latestKey))
		if err != nil {
			return nil
		}
		var currentLatest string
		_ = item.Value(func(val []byte) error {
			currentLatest = string(val)
			return nil
		})
		if currentLatest == snapshotID {
			if err := txn.Delete([]byte(latestKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

func (m *SnapshotManager) loadByKeys(projectHash, snapshotID string) (*ExportedGraph, *SnapshotMetadata, error) {
	dataKey, metaKey := snapshotKeys(projectHash, snapshotID)

	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, notFound(err))
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}

		metaItem, err := txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, notFound(err))
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}
	if meta.SchemaVersion != ExportSchemaVersion {
		return nil, nil, fmt.Errorf("unsupported schema version %q (expected %q)", meta.SchemaVersion, ExportSchemaVersion)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	eg, err := ReadExport(bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	return eg, &meta, nil
}

func (m *SnapshotManager) getProjectHash(snapshotID string) (string, error) {
	indexKey := keyPrefixSnapIndex + snapshotID
	var projectHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return notFound(err)
		}
		return item.Value(func(val []byte) error {
			projectHash = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return projectHash, nil
}

// notFound maps badger's missing-key error to ErrSnapshotNotFound.
func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSnapshotNotFound
	}
	return err
}

func snapshotKeys(projectHash, snapshotID string) (data, meta string) {
	base := keyPrefixSnap + projectHash + ":" + snapshotID
	return base + keySuffixData, base + keySuffixMeta
}

// ProjectHash returns SHA256(projectRoot)[:16] for use as a key prefix.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// isMetaKey returns true if the key ends with the metadata suffix.
func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}
