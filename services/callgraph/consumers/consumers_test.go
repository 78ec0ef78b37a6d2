package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/bindings"
)

func build(t *testing.T, resolve bool, sources ...ast.Source) *ast.Program {
	t.Helper()
	prog, err := ast.BuildFromSources(context.Background(), sources)
	require.NoError(t, err)
	if resolve {
		_, err = bindings.Resolve(prog)
		require.NoError(t, err)
	}
	return prog
}

func src(path, content string) ast.Source {
	return ast.Source{Path: path, Content: []byte(content)}
}

func TestCountCallbacks(t *testing.T) {
	prog := build(t, true,
		src("a.js", `
function handler() {}
on("click", function() {});
arr.map((x) => x * 2);
setTimeout(handler, 10);
plain(1, 2);
both(function() {}, (function() {}));
`),
		src("b.js", `load(); run(function() {});`),
	)

	stats := CountCallbacks(prog)
	assert.Equal(t, 7, stats.TotalCalls)
	assert.Equal(t, 5, stats.CallbackCalls)
	assert.Equal(t, 6, stats.CallbackArgs)
	assert.Equal(t, map[string]int{"a.js": 4, "b.js": 1}, stats.ByFile)
	assert.Equal(t, []string{"a.js", "b.js"}, stats.Files())
}

func TestCountCallbacks_WithoutBindingsCountsOnlyLiterals(t *testing.T) {
	prog := build(t, false, src("a.js", `function handler() {} setTimeout(handler, 10); on(function() {});`))

	stats := CountCallbacks(prog)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 1, stats.CallbackCalls)
}

func TestCountCallbacks_VariableHoldingFunctionIsNotCounted(t *testing.T) {
	prog := build(t, true, src("a.js", `var h = function() {}; on(h);`))
	assert.Equal(t, 0, CountCallbacks(prog).CallbackCalls)
}

func TestDependencyGraph(t *testing.T) {
	prog := build(t, false,
		src("app/main.js", `
var fs = require("fs");
var util = require("./util");
require(["../lib/a", "b.js", name], function(a, b) {});
define("main", ["./dep"], function(dep) {});
other("./ignored");
`),
	)

	edges := DependencyGraph(prog)
	require.Len(t, edges, 5)

	var got []string
	for _, e := range edges {
		got = append(got, e.Loader+" "+e.Module+" => "+e.Resolved)
	}
	assert.Equal(t, []string{
		"require fs => fs",
		"require ./util => app/util.js",
		"require ../lib/a => lib/a.js",
		"require b.js => b.js",
		"define ./dep => app/dep.js",
	}, got)
	assert.Equal(t, "app/main.js -> app/util.js", edges[1].String())
	assert.Equal(t, 3, edges[1].Loc.StartLine)
}

func TestDependencyGraph_CustomLoaders(t *testing.T) {
	prog := build(t, false, src("a.js", `require("x"); load("./y"); obj.load("z");`))

	edges := DependencyGraph(prog, "load")
	require.Len(t, edges, 1)
	assert.Equal(t, "./y", edges[0].Module)
	assert.Equal(t, "y.js", edges[0].Resolved)
}
