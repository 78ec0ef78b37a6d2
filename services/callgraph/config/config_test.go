package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoadDir_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadDir("")
	require.NoError(t, err)
	assert.Equal(t, "ONESHOT", cfg.Strategy)
}

func TestLoadDir_OverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
strategy: demand
max_steps: 5000
exclude: ["vendor/", "dist/"]
extensions: [".js", ".mjs"]
loaders: [require]
snapshot_dir: .jscg
neo4j:
  uri: bolt://localhost:7687
  batch_size: 200
server:
  port: 9000
`)
	cfg, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "demand", cfg.Strategy)
	assert.Equal(t, 5000, cfg.MaxSteps)
	assert.Equal(t, []string{"vendor/", "dist/"}, cfg.Exclude)
	assert.Equal(t, []string{".js", ".mjs"}, cfg.Extensions)
	assert.Equal(t, []string{"require"}, cfg.Loaders)
	assert.Equal(t, ".jscg", cfg.SnapshotDir)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.User, "unset fields keep defaults")
	assert.Equal(t, 200, cfg.Neo4j.BatchSize)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, Default().MaxFileSize, cfg.MaxFileSize)

	s, err := cfg.StrategyValue()
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyDemand, s)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown strategy", "strategy: precise\n"},
		{"negative steps", "max_steps: -1\n"},
		{"extension without dot", "extensions: [js]\n"},
		{"empty loader", "loaders: ['']\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad neo4j uri", "neo4j:\n  uri: not a uri\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDir(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestValidate_UnknownStrategyIsUnsupported(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "PRECISE"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, engine.ErrUnsupportedStrategy)

	cfg = Default()
	cfg.MaxSteps = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrUnsupportedStrategy)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := LoadDir(writeConfig(t, "strategy: [unclosed\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.ParserOptions(), 2)
	assert.Len(t, cfg.EngineOptions(nil), 1)

	cfg.MaxFileSize = 0
	cfg.Concurrency = 0
	assert.Empty(t, cfg.ParserOptions())
}
