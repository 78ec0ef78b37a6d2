// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery expands command-line paths into the list of source
// files to analyze.
package discovery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSkipSuffixes are directory name suffixes whose subtrees are not
// searched.
var DefaultSkipSuffixes = []string{"test", "tests", "bin", "demo"}

// Options configures Expand.
type Options struct {
	// Extensions are the file extensions collected from directories,
	// compared case-insensitively.
	// Default: [".js"]
	Extensions []string

	// SkipSuffixes skips directories whose name ends with any entry.
	// Default: DefaultSkipSuffixes
	SkipSuffixes []string

	// Exclude skips paths whose slash-separated path relative to the
	// walked directory starts with any entry.
	Exclude []string

	// SkipDependencies skips node_modules and hidden directories.
	// Default: true
	SkipDependencies bool
}

// Option is a functional option for configuring Expand.
type Option func(*Options)

// WithExtensions sets the collected extensions.
func WithExtensions(exts ...string) Option {
	return func(o *Options) {
		if len(exts) > 0 {
			o.Extensions = exts
		}
	}
}

// WithExclude sets the excluded path prefixes.
func WithExclude(prefixes ...string) Option {
	return func(o *Options) {
		o.Exclude = prefixes
	}
}

// WithSkipSuffixes replaces the skipped directory suffixes.
func WithSkipSuffixes(suffixes ...string) Option {
	return func(o *Options) {
		o.SkipSuffixes = suffixes
	}
}

// WithDependencies includes node_modules and hidden directories.
func WithDependencies() Option {
	return func(o *Options) {
		o.SkipDependencies = false
	}
}

// Expand turns files and directories into a list of files.
//
// Description:
//
//	Files named explicitly are kept whatever their extension. Directories
//	are walked in lexical order; a directory whose name ends with one of
//	the skip suffixes is not entered, and that includes a directory given
//	directly. Paths are returned in argument order without duplicates.
//
// Inputs:
//
//	paths - Files and directories.
//	opts  - Options.
//
// Outputs:
//
//	[]string - The files to analyze.
//	error    - Non-nil if a path does not exist or a walk fails.
func Expand(paths []string, opts ...Option) ([]string, error) {
	o := Options{
		Extensions:       []string{".js"},
		SkipSuffixes:     DefaultSkipSuffixes,
		SkipDependencies: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range paths {
		info, err := os.Lstat(root)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, _ := filepath.Rel(root, path)
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if o.skipDir(path, d.Name(), rel) {
					slog.Debug("skipping directory", slog.String("path", path))
					return filepath.SkipDir
				}
				return nil
			}
			if o.excluded(rel) || !o.matches(d.Name()) {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return files, nil
}

func (o Options) skipDir(path, name, rel string) bool {
	for _, s := range o.SkipSuffixes {
		if strings.HasSuffix(filepath.Clean(path), s) {
			return true
		}
	}
	if rel == "." {
		return false
	}
	if o.SkipDependencies && (name == "node_modules" || strings.HasPrefix(name, ".")) {
		return true
	}
	return o.excluded(rel + "/")
}

func (o Options) excluded(rel string) bool {
	for _, prefix := range o.Exclude {
		if prefix != "" && strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

func (o Options) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range o.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
