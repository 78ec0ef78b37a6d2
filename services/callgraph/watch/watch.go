// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch rebuilds call graphs when source files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for further changes before
// triggering a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc is called with the changed files, sorted, after the debounce
// period. An error is logged and watching continues.
type ChangeFunc func(ctx context.Context, changed []string) error

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a rebuild.
	// Default: 300ms
	Debounce time.Duration

	// Extensions are the file extensions that trigger a rebuild.
	// Default: [".js"]
	Extensions []string

	// Logger receives watch events. Default: slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for configuring a Watcher.
type Option func(*Options)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Debounce = d
		}
	}
}

// WithExtensions sets the extensions that trigger a rebuild.
func WithExtensions(exts ...string) Option {
	return func(o *Options) {
		if len(exts) > 0 {
			o.Extensions = exts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Watcher watches files and directory trees with fsnotify.
//
// Description:
//
//	Directories are watched recursively, skipping hidden directories and
//	node_modules; directories created later are added as they appear.
//	Files named directly are watched through their parent directory and
//	only their own events count. Events are collected until no new event
//	arrives for the debounce period, then ChangeFunc runs once.
//
// Thread Safety:
//
//	Run must be called once. Close is safe to call from another goroutine.
type Watcher struct {
	fsw      *fsnotify.Watcher
	options  Options
	onChange ChangeFunc

	// files restricts events in a directory to the named files. Nil for
	// recursively watched directories.
	files map[string]map[string]bool
}

// New creates a Watcher over paths.
//
// Outputs:
//
//	*Watcher - The watcher. Call Run to start and Close when done.
//	error    - Non-nil if a path does not exist or cannot be watched.
func New(paths []string, onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	o := Options{Debounce: DefaultDebounce, Extensions: []string{".js"}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, options: o, onChange: onChange, files: make(map[string]map[string]bool)}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		if info.IsDir() {
			err = w.addTree(p)
		} else {
			err = w.addFile(p)
		}
		if err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addFile(path string) error {
	dir := filepath.Dir(path)
	if _, ok := w.files[dir]; !ok {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.files[dir] = make(map[string]bool)
	}
	if w.files[dir] != nil {
		w.files[dir][filepath.Clean(path)] = true
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		w.files[path] = nil
		return nil
	})
}

// recursive reports whether dir is watched as part of a tree.
func (w *Watcher) recursive(dir string) bool {
	files, ok := w.files[dir]
	return ok && files == nil
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

// Relevant reports whether an event should trigger a rebuild.
func (w *Watcher) Relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if files := w.files[filepath.Dir(event.Name)]; files != nil && !files[filepath.Clean(event.Name)] {
		return false
	}
	lower := strings.ToLower(event.Name)
	for _, ext := range w.options.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Run delivers debounced changes until ctx is canceled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.options.Logger
	pending := make(map[string]bool)
	timer := time.NewTimer(w.options.Debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.recursive(filepath.Dir(event.Name)) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					if err := w.addTree(event.Name); err != nil {
						logger.Warn("failed to watch new directory", slog.String("path", event.Name), slog.Any("error", err))
					}
				}
			}
			if !w.Relevant(event) {
				continue
			}
			logger.Debug("source changed", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			pending[event.Name] = true
			timer.Reset(w.options.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", slog.Any("error", err))

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			if err := w.onChange(ctx, changed); err != nil {
				logger.Error("rebuild failed", slog.Int("changed", len(changed)), slog.Any("error", err))
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
