package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/bindings"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

func program(t *testing.T, sources ...string) *ast.Program {
	t.Helper()
	var srcs []ast.Source
	for i, s := range sources {
		srcs = append(srcs, ast.Source{Path: string(rune('a'+i)) + ".js", Content: []byte(s)})
	}
	prog, err := ast.BuildFromSources(context.Background(), srcs)
	require.NoError(t, err)
	_, err = bindings.Resolve(prog)
	require.NoError(t, err)
	return prog
}

// edgeSet renders a call graph as comparable strings keyed on AST nodes
// so graphs from different vertex registries can be compared.
func edgeSet(cg *graph.CallGraph) map[string]bool {
	out := map[string]bool{}
	for call, callee := range cg.Edges() {
		out[edgeString(call, callee)] = true
	}
	return out
}

func edgeString(call *graph.CallVertex, callee graph.Callee) string {
	switch c := callee.(type) {
	case *graph.FuncVertex:
		return call.Loc.Position() + "@" + call.File + " -> func " + c.Loc.Position() + "@" + c.File
	case *graph.NativeVertex:
		return call.Loc.Position() + "@" + call.File + " -> native " + c.NativeName
	}
	return ""
}

func callByName(t *testing.T, cg *graph.CallGraph, name string) *graph.CallVertex {
	t.Helper()
	for _, c := range cg.Calls() {
		if c.CalleeName() == name {
			return c
		}
	}
	t.Fatalf("call %q not found", name)
	return nil
}

func targetNames(cg *graph.CallGraph, call *graph.CallVertex) []string {
	var names []string
	for _, c := range cg.Targets(call) {
		switch v := c.(type) {
		case *graph.FuncVertex:
			names = append(names, v.FuncName)
		case *graph.NativeVertex:
			names = append(names, "native:"+v.NativeName)
		}
	}
	return names
}

const callbackSource = `function call(cb){ cb(); } call(function g(){ return 1; });`

const mixedSource = `
function helper(x) { return x; }
var api = {
    run: function() { helper(1); },
    twice(fn) { fn(); fn(); }
};
class Widget { constructor(cb) { cb(); } render() {} }
api.run();
api.twice(function once() {});
new Widget(function onBuild() {});
helper.call(null, 2);
(function iife() {})();
Math.max(1, 2);
unknownGlobal();
`

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"", StrategyOneShot},
		{"NONE", StrategyNone},
		{"oneshot", StrategyOneShot},
		{" Demand ", StrategyDemand},
		{"FULL", StrategyFull},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStrategy("PRECISE")
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)
}

func TestStrategy_FullResolvesToDemandWithWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Equal(t, StrategyDemand, StrategyFull.Resolve(logger))
	assert.Contains(t, buf.String(), "strategy FULL not implemented yet; using DEMAND instead")

	buf.Reset()
	assert.Equal(t, StrategyOneShot, StrategyOneShot.Resolve(logger))
	assert.Empty(t, buf.String())
}

func TestCallbackResolution_DemandFindsOneShotMisses(t *testing.T) {
	prog := program(t, callbackSource)

	demand, err := BuildDemand(context.Background(), prog)
	require.NoError(t, err)
	oneshot, err := BuildPessimistic(context.Background(), prog, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"g"}, targetNames(demand, callByName(t, demand, "cb")))
	assert.NotContains(t, targetNames(oneshot, callByName(t, oneshot, "cb")), "g")
	assert.Equal(t, []string{"native:cb"}, targetNames(oneshot, callByName(t, oneshot, "cb")))
}

func TestBuildPessimistic_OneShotMatching(t *testing.T) {
	prog := program(t, mixedSource)
	cg, err := BuildPessimistic(context.Background(), prog, false)
	require.NoError(t, err)

	tests := []struct {
		call string
		want []string
	}{
		{"api.run", []string{"run"}},
		{"helper", []string{"helper"}},
		{"Math.max", []string{"native:max"}},
		{"unknownGlobal", []string{"native:unknownGlobal"}},
		{"null", []string{"iife"}},
		{"Widget", []string{"constructor"}},
		{"fn", []string{"native:fn"}},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, targetNames(cg, callByName(t, cg, tt.call)))
		})
	}
	assert.Nil(t, cg.FlowGraph())
	assert.Equal(t, "ONESHOT", cg.Strategy())
}

func TestBuildPessimistic_NoneLinksEverything(t *testing.T) {
	prog := program(t, mixedSource)
	cg, err := BuildPessimistic(context.Background(), prog, true)
	require.NoError(t, err)

	funcs := len(cg.Vertices().Funcs())
	for _, call := range cg.Calls() {
		assert.Len(t, cg.Targets(call), funcs+1)
	}
	assert.Equal(t, len(cg.Calls())*(funcs+1), cg.EdgeCount())
}

func TestBuildDemand_Resolution(t *testing.T) {
	prog := program(t, mixedSource)
	cg, err := BuildDemand(context.Background(), prog)
	require.NoError(t, err)

	tests := []struct {
		call string
		want []string
	}{
		{"api.run", []string{"run"}},
		{"helper", []string{"helper"}},
		{"api.twice", []string{"twice"}},
		{"fn", []string{"once"}},
		{"Widget", []string{"constructor"}},
		{"cb", []string{"onBuild"}},
		{"helper.call", []string{"helper"}},
		{"null", []string{"iife"}},
		{"Math.max", []string{"native:unknown"}},
		{"unknownGlobal", []string{"native:unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, targetNames(cg, callByName(t, cg, tt.call)))
		})
	}
	require.NotNil(t, cg.FlowGraph())
	assert.Greater(t, cg.FlowGraph().EdgeCount(), 0)
}

func TestBuildDemand_ReturnedFunction(t *testing.T) {
	prog := program(t, `function make() { return function made() {}; } make()();`)
	cg, err := BuildDemand(context.Background(), prog)
	require.NoError(t, err)

	var outer *graph.CallVertex
	for _, c := range cg.Calls() {
		if prog.Node(c.Callee).Kind == ast.KindCall {
			outer = c
		}
	}
	require.NotNil(t, outer)
	assert.Equal(t, []string{"made"}, targetNames(cg, outer))
}

func TestBuildDemand_LocalVarShadowsExpressionName(t *testing.T) {
	prog := program(t, `var h = function g() { var g = function z() {}; g(); }; h();`)
	cg, err := BuildDemand(context.Background(), prog)
	require.NoError(t, err)

	assert.Equal(t, []string{"z"}, targetNames(cg, callByName(t, cg, "g")))
	assert.Equal(t, []string{"g"}, targetNames(cg, callByName(t, cg, "h")))
}

func TestBuildDemand_RequiresBindings(t *testing.T) {
	prog, err := ast.BuildFromSources(context.Background(), []ast.Source{{Path: "a.js", Content: []byte("f();")}})
	require.NoError(t, err)
	_, err = BuildDemand(context.Background(), prog)
	assert.ErrorIs(t, err, ast.ErrBindingsNotResolved)
}

func TestDeterminism(t *testing.T) {
	for _, s := range []Strategy{StrategyNone, StrategyOneShot, StrategyDemand} {
		t.Run(s.String(), func(t *testing.T) {
			first, err := Build(context.Background(), program(t, mixedSource, callbackSource), s)
			require.NoError(t, err)
			second, err := Build(context.Background(), program(t, mixedSource, callbackSource), s)
			require.NoError(t, err)
			assert.Equal(t, edgeSet(first), edgeSet(second))
			assert.Equal(t, graph.Export(first).Hash(), graph.Export(second).Hash())
		})
	}
}

func TestDemandEdgesContainedInNone(t *testing.T) {
	prog := program(t, mixedSource, callbackSource)
	vertices := graph.NewVertices(prog)

	none, err := BuildPessimistic(context.Background(), prog, true, WithVertices(vertices))
	require.NoError(t, err)
	demand, err := BuildDemand(context.Background(), prog, WithVertices(vertices))
	require.NoError(t, err)

	for call, callee := range demand.Edges() {
		assert.True(t, none.HasEdge(call, callee), "DEMAND edge %s missing from NONE", edgeString(call, callee))
	}
}

func TestNoOrphanCallSites(t *testing.T) {
	prog := program(t, mixedSource, callbackSource)
	for _, s := range []Strategy{StrategyNone, StrategyOneShot, StrategyDemand} {
		cg, err := Build(context.Background(), prog, s)
		require.NoError(t, err)
		for _, call := range cg.Calls() {
			assert.NotEmpty(t, cg.Targets(call), "%s: call %s at %s has no edge", s, call.CalleeName(), call.Loc.Position())
		}
	}
}

func TestBuildDemand_TerminationBound(t *testing.T) {
	prog := program(t, mixedSource, callbackSource, `
var a = function() {}; var b = a; a = b;
function loop(f) { return loop(f); }
loop(a);
`)
	cg, err := BuildDemand(context.Background(), prog)
	require.NoError(t, err)

	stats := cg.Stats()
	bound := stats.Positions * len(prog.Functions())
	assert.LessOrEqual(t, stats.Iterations, bound)
	assert.Equal(t, stats.Facts, stats.Iterations)
	assert.Equal(t, cg.EdgeCount(), stats.CallEdges)
}

func TestBudgetExceeded(t *testing.T) {
	prog := program(t, mixedSource)
	for _, s := range []Strategy{StrategyNone, StrategyOneShot, StrategyDemand} {
		t.Run(s.String(), func(t *testing.T) {
			_, err := Build(context.Background(), prog, s, WithMaxSteps(3))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAnalysisBudgetExceeded)

			var be *BudgetExceededError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, 3, be.Limit)
			assert.Equal(t, s, be.Strategy)
		})
	}

	_, err := Build(context.Background(), prog, StrategyDemand, WithMaxSteps(0))
	assert.NoError(t, err, "zero budget means unlimited")
}

func TestBuild_FullRunsDemand(t *testing.T) {
	var buf bytes.Buffer
	prog := program(t, callbackSource)
	cg, err := Build(context.Background(), prog, StrategyFull, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)
	assert.Equal(t, "DEMAND", cg.Strategy())
	assert.Contains(t, buf.String(), "not implemented")
}

func TestBuild_UnknownStrategyValue(t *testing.T) {
	prog := program(t, callbackSource)
	_, err := Build(context.Background(), prog, Strategy(42))
	assert.ErrorIs(t, err, ErrUnsupportedStrategy)
}

func TestAnalyze(t *testing.T) {
	sources := []ast.Source{{Path: "cb.js", Content: []byte(callbackSource)}}
	a, err := Analyze(context.Background(), sources, StrategyDemand, nil)
	require.NoError(t, err)
	assert.NotNil(t, a.Program)
	assert.NotNil(t, a.Scopes)
	assert.Equal(t, StrategyDemand, a.Strategy)
	assert.Equal(t, []string{"g"}, targetNames(a.CallGraph, callByName(t, a.CallGraph, "cb")))

	_, err = Analyze(context.Background(), []ast.Source{{Path: "bad.js", Content: []byte("var = ;")}}, StrategyOneShot, nil)
	var pe *ast.ParseError
	assert.True(t, errors.As(err, &pe))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Analyze(ctx, sources, StrategyOneShot, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
