// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the optional jscg.yaml project file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/consumers"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
)

// FileName is the config file looked up in a project root.
const FileName = "jscg.yaml"

// ErrInvalidConfig is returned when a config file parses but fails
// validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds project settings. CLI flags override them.
//
// Description:
//
//	Loaded from <projectRoot>/jscg.yaml. All fields are optional; zero
//	values fall back to Default. A missing config file is not an error.
//
// Thread Safety: Safe for concurrent reads after construction.
type Config struct {
	// Strategy is one of NONE, ONESHOT, DEMAND, FULL (any case).
	Strategy string `yaml:"strategy" validate:"omitempty,strategy"`

	// MaxSteps is the engine step budget. 0 means unlimited.
	MaxSteps int `yaml:"max_steps" validate:"gte=0"`

	// MaxFileSize is the largest file parsed, in bytes.
	MaxFileSize int `yaml:"max_file_size" validate:"gte=0"`

	// Concurrency is the number of files parsed in parallel.
	Concurrency int `yaml:"concurrency" validate:"gte=0,lte=256"`

	// Exclude lists path prefixes, relative to the project root, that
	// discovery skips.
	// Example: ["vendor/", "dist/"]
	Exclude []string `yaml:"exclude"`

	// Extensions lists the file extensions discovery collects.
	Extensions []string `yaml:"extensions" validate:"dive,startswith=."`

	// Loaders lists module loader function names for dependency
	// extraction.
	Loaders []string `yaml:"loaders" validate:"dive,required"`

	// SnapshotDir is the badger directory for saved call graphs.
	SnapshotDir string `yaml:"snapshot_dir"`

	Neo4j  Neo4jConfig  `yaml:"neo4j"`
	Server ServerConfig `yaml:"server"`
}

// Neo4jConfig configures the Neo4j export. The password is read from the
// JSCG_NEO4J_PASSWORD environment variable, never from the file.
type Neo4jConfig struct {
	URI       string `yaml:"uri" validate:"omitempty,uri"`
	User      string `yaml:"user"`
	Database  string `yaml:"database"`
	BatchSize int    `yaml:"batch_size" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	parser := ast.DefaultJavaScriptParserOptions()
	return Config{
		Strategy:    engine.DefaultStrategy.String(),
		MaxSteps:    engine.DefaultMaxSteps,
		MaxFileSize: parser.MaxFileSize,
		Concurrency: parser.Concurrency,
		Extensions:  []string{".js"},
		Loaders:     append([]string(nil), consumers.DefaultLoaders...),
		Neo4j: Neo4jConfig{
			User: "neo4j",
		},
		Server: ServerConfig{Port: 8080},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseStrategy(fl.Field().String())
		return err == nil
	})
	return v
}

// Load reads a config file.
//
// Description:
//
//	Fields absent from the file keep their Default values. A missing file
//	yields Default with no error.
//
// Inputs:
//
//	path - Path of the YAML file.
//
// Outputs:
//
//	Config - The merged, validated config.
//	error  - Non-nil if the file cannot be read or parsed, or wraps
//	         ErrInvalidConfig when validation fails.
//
// Thread Safety: Safe for concurrent use (stateless function).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no config file, using defaults", slog.String("path", path))
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads jscg.yaml from a project root. An empty root yields
// Default.
func LoadDir(projectRoot string) (Config, error) {
	if projectRoot == "" {
		return Default(), nil
	}
	return Load(filepath.Join(projectRoot, FileName))
}

// Validate checks field constraints.
//
// An unknown strategy wraps engine.ErrUnsupportedStrategy as well as
// ErrInvalidConfig so callers can report it as a usage error.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "strategy" {
				return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, engine.ErrUnsupportedStrategy, c.Strategy)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

// StrategyValue parses Strategy.
func (c Config) StrategyValue() (engine.Strategy, error) {
	return engine.ParseStrategy(c.Strategy)
}

// ParserOptions returns the parser options the config selects.
func (c Config) ParserOptions() []ast.JavaScriptParserOption {
	var opts []ast.JavaScriptParserOption
	if c.MaxFileSize > 0 {
		opts = append(opts, ast.WithMaxFileSize(c.MaxFileSize))
	}
	if c.Concurrency > 0 {
		opts = append(opts, ast.WithConcurrency(c.Concurrency))
	}
	return opts
}

// EngineOptions returns the build options the config selects.
func (c Config) EngineOptions(logger *slog.Logger) []engine.Option {
	opts := []engine.Option{engine.WithMaxSteps(c.MaxSteps)}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	return opts
}
