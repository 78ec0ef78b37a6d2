package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

const (
	mainJS = `var dep = require("./util");
function call(cb) { cb(); }
call(function g() { return 1; });
[1, 2].forEach(function each(x) { return x; });
`
	utilJS = `function helper() { return 2; }
helper();
`
)

// project writes a two-file program and returns its directory.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte(mainJS), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.js"), []byte(utilJS), 0o644))
	return dir
}

// execute runs the root command and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	cmd.SetArgs(append([]string{"--config", cfg, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyze_WritesCallGraph(t *testing.T) {
	dir := project(t)
	cgPath := filepath.Join(t.TempDir(), "cg.json")

	out, err := execute(t, "analyze", "--strategy", "DEMAND", "--cg-path", cgPath, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote the call graph to "+cgPath)

	f, err := os.Open(cgPath)
	require.NoError(t, err)
	defer f.Close()
	eg, err := graph.ReadExport(f)
	require.NoError(t, err)
	assert.True(t, eg.Directed)
	assert.NotEmpty(t, eg.Links)

	names := map[string]bool{}
	for _, n := range eg.Nodes {
		names[n.FunctionName] = true
	}
	assert.True(t, names["g"])
	assert.True(t, names["helper"])
}

func TestAnalyze_Summary(t *testing.T) {
	out, err := execute(t, "analyze", project(t))
	require.NoError(t, err)
	assert.Contains(t, out, "strategy  : ONESHOT")
	assert.Contains(t, out, "files     : 2")
}

func TestAnalyze_Timings(t *testing.T) {
	out, err := execute(t, "analyze", "--time", project(t))
	require.NoError(t, err)
	assert.Contains(t, out, "parsing  : ")
	assert.Contains(t, out, "bindings : ")
	assert.Contains(t, out, "callgraph: ")
}

func TestAnalyze_FlowGraph(t *testing.T) {
	for _, strategy := range []string{"DEMAND", "ONESHOT"} {
		t.Run(strategy, func(t *testing.T) {
			out, err := execute(t, "analyze", "--fg", "--strategy", strategy, project(t))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "digraph FlowGraph {"), out)
		})
	}
}

func TestAnalyze_CallbacksAndDependencies(t *testing.T) {
	dir := project(t)
	out, err := execute(t, "analyze", "--count-cb", "--req-js", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "callback calls : 2")
	assert.Contains(t, out, filepath.Join(dir, "main.js")+" -> "+filepath.Join(dir, "util.js"))
}

func TestAnalyze_UnsupportedStrategyBeforeReading(t *testing.T) {
	_, err := execute(t, "analyze", "--strategy", "PRECISE", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnsupportedStrategy)
	assert.True(t, isUsageError(err))
}

func TestAnalyze_UnsupportedStrategyFromConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "jscg.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("strategy: precise\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--log-level", "error", "analyze", project(t)})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnsupportedStrategy)
	assert.True(t, isUsageError(err))
}

func TestAnalyze_MissingPath(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "absent.js"))
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	out, err := execute(t, "compare", project(t))
	require.NoError(t, err)
	assert.Contains(t, out, "ONESHOT: ")
	assert.Contains(t, out, "DEMAND: ")
	assert.Contains(t, out, "+ ")
	assert.Contains(t, out, "-> g@")
}

func TestSnapshots_Lifecycle(t *testing.T) {
	dir := project(t)
	store := t.TempDir()

	out, err := execute(t, "analyze", "--snapshot-dir", store, "--label", "first", dir)
	require.NoError(t, err)
	require.Contains(t, out, "Saved snapshot ")
	id := strings.Fields(strings.TrimPrefix(out, "Saved snapshot "))[0]

	out, err = execute(t, "snapshots", "list", "--snapshot-dir", store)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "[first]")

	out, err = execute(t, "snapshots", "show", "--snapshot-dir", store, id)
	require.NoError(t, err)
	assert.Contains(t, out, "strategy : ONESHOT")

	out, err = execute(t, "snapshots", "diff", "--snapshot-dir", store, id, id)
	require.NoError(t, err)
	assert.Contains(t, out, "call sites affected: 0")

	_, err = execute(t, "snapshots", "delete", "--snapshot-dir", store, id)
	require.NoError(t, err)

	out, err = execute(t, "snapshots", "list", "--snapshot-dir", store)
	require.NoError(t, err)
	assert.Contains(t, out, "no snapshots")
}

func TestSnapshots_RequireDirectory(t *testing.T) {
	_, err := execute(t, "snapshots", "list")
	require.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "analyze", "x.js"})
	require.Error(t, cmd.Execute())
}

func TestAnalyze_SampleProject(t *testing.T) {
	root := filepath.Join("..", "..", "test", "fixtures", "sample-js-project")
	cgPath := filepath.Join(t.TempDir(), "cg.json")

	out, err := execute(t, "analyze", "--strategy", "DEMAND", "--cg-path", cgPath, root)
	require.NoError(t, err)
	require.Contains(t, out, "Wrote the call graph to")

	f, err := os.Open(cgPath)
	require.NoError(t, err)
	defer f.Close()
	eg, err := graph.ReadExport(f)
	require.NoError(t, err)

	files := map[string]bool{}
	names := map[string]bool{}
	for _, n := range eg.Nodes {
		files[filepath.Base(n.FileName)] = true
		names[n.FunctionName] = true
	}
	assert.True(t, names["main"])
	assert.True(t, names["unused"])
	assert.False(t, names["shouldNotBeAnalyzed"], "test directories are skipped")
	assert.False(t, names["leftPad"], "node_modules is skipped")
	assert.False(t, files["util_test.js"])
	assert.False(t, files["index.js"])
}
