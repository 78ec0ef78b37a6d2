package query

import (
	"context"
	"testing"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
	"github.com/AleutianAI/jscallgraph/services/callgraph/bindings"
	"github.com/AleutianAI/jscallgraph/services/callgraph/engine"
	"github.com/AleutianAI/jscallgraph/services/callgraph/graph"
)

const source = `
function parse(s) { return s; }
function load(path) { var s = read(path); return parse(s); }
function unused() { parse("x"); }
function main() { load("a"); load("b"); }
main();
parse("top");
`

func demandGraph(t *testing.T) *graph.CallGraph {
	t.Helper()
	prog, err := ast.BuildFromSources(context.Background(), []ast.Source{{Path: "q.js", Content: []byte(source)}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := bindings.Resolve(prog); err != nil {
		t.Fatalf("bindings: %v", err)
	}
	cg, err := engine.BuildDemand(context.Background(), prog)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return cg
}

func callerNames(edges []Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.CallerName())
	}
	return out
}

func TestCallers(t *testing.T) {
	cg := demandGraph(t)

	got := callerNames(Callers(cg, "parse"))
	want := []string{"load", "unused", "toplevel"}
	if len(got) != len(want) {
		t.Fatalf("expected callers %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("caller %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if got := Callers(cg, "load"); len(got) != 2 {
		t.Errorf("expected 2 call sites of load, got %d", len(got))
	}
	if got := Callers(cg, "nothing"); got != nil {
		t.Errorf("expected nil for unknown name, got %v", got)
	}
}

func TestCallers_Native(t *testing.T) {
	cg := demandGraph(t)

	edges := Callers(cg, graph.UnknownNative)
	if len(edges) != 1 {
		t.Fatalf("expected read() to fall back to unknown, got %d edges", len(edges))
	}
	if edges[0].Call.CalleeName() != "read" || edges[0].CallerName() != "load" {
		t.Errorf("unexpected edge %s -> %s", edges[0].CallerName(), edges[0].Call.CalleeName())
	}
}

func TestCallees(t *testing.T) {
	cg := demandGraph(t)

	var targets []string
	for _, e := range Callees(cg, "load") {
		targets = append(targets, e.TargetName())
	}
	if len(targets) != 2 || targets[0] != graph.UnknownNative || targets[1] != "parse" {
		t.Errorf("expected [unknown parse], got %v", targets)
	}

	top := Callees(cg, "")
	if len(top) != 2 {
		t.Fatalf("expected 2 top-level edges, got %d", len(top))
	}
	for _, e := range top {
		if e.Caller != nil {
			t.Errorf("expected nil caller for top-level call, got %s", e.Caller.FuncName)
		}
	}
}

func TestDeadFunctions(t *testing.T) {
	cg := demandGraph(t)

	dead := DeadFunctions(cg)
	if len(dead) != 1 || dead[0].FuncName != "unused" {
		var names []string
		for _, fv := range dead {
			names = append(names, fv.FuncName)
		}
		t.Errorf("expected only unused to be dead, got %v", names)
	}
}
