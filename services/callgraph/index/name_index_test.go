package index

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

func buildIndex(t *testing.T, src string, opts ...NameIndexOption) (*ast.Program, *NameIndex) {
	t.Helper()
	prog, err := ast.BuildFromSources(context.Background(), []ast.Source{{Path: "idx.js", Content: []byte(src)}})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	idx, err := BuildNameIndex(prog, opts...)
	if err != nil {
		t.Fatalf("unexpected index error: %v", err)
	}
	return prog, idx
}

func TestBuildNameIndex_Namespaces(t *testing.T) {
	_, idx := buildIndex(t, `
function decl() {}
var byVar = function() {};
assigned = function() {};
obj.byMember = function() {};
obj["bySubscript"] = function() {};
var o = { byPair: function() {}, byMethod() {} };
class Widget { constructor() {} render() {} }
var Gadget = class { constructor() {} };
o.named = function inner() {};
`)

	tests := []struct {
		name  string
		ns    func(string) []ast.NodeID
		key   string
		count int
	}{
		{"declaration", idx.Declared, "decl", 1},
		{"var initializer", idx.Declared, "byVar", 1},
		{"plain assignment", idx.Declared, "assigned", 1},
		{"member assignment", idx.Properties, "byMember", 1},
		{"string subscript", idx.Properties, "bySubscript", 1},
		{"object pair", idx.Properties, "byPair", 1},
		{"object method", idx.Properties, "byMethod", 1},
		{"class method", idx.Properties, "render", 1},
		{"class constructor", idx.Constructors, "Widget", 1},
		{"class expression constructor", idx.Constructors, "Gadget", 1},
		{"named expression own name", idx.Declared, "inner", 1},
		{"named expression property", idx.Properties, "named", 1},
		{"member is not declared", idx.Declared, "byMember", 0},
		{"both constructors are properties", idx.Properties, "constructor", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.ns(tt.key)); got != tt.count {
				t.Errorf("%s: expected %d entries, got %d", tt.key, tt.count, got)
			}
		})
	}
}

func TestBuildNameIndex_ParametersAreNotIndexed(t *testing.T) {
	_, idx := buildIndex(t, `function call(cb) { cb(); } call(function g() {});`)
	if len(idx.Declared("cb")) != 0 {
		t.Error("expected parameter names to stay out of the index")
	}
	if len(idx.Declared("g")) != 1 {
		t.Error("expected named function expression g to be indexed")
	}
}

func TestBuildNameIndex_SameNameManyDefinitions(t *testing.T) {
	prog, idx := buildIndex(t, `
function dup() {}
var x = { dup: function dup() {} };
`)
	declared := idx.Declared("dup")
	if len(declared) != 2 {
		t.Fatalf("expected 2 declared dup functions, got %d", len(declared))
	}
	if declared[0] >= declared[1] {
		t.Error("expected entries in node order")
	}
	if prog.Node(declared[0]).File != "idx.js" {
		t.Error("expected entries to be function nodes of the program")
	}
}

func TestNameIndex_AddDeduplicatesAndLimits(t *testing.T) {
	idx := NewNameIndex(WithMaxEntries(2))
	if err := idx.Add(NamespaceDeclared, "f", 1); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(NamespaceDeclared, "f", 1); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Errorf("expected duplicate to be ignored, got %d entries", idx.Len())
	}
	if err := idx.Add(NamespaceDeclared, "", 2); err != nil || idx.Len() != 1 {
		t.Error("expected empty name to be ignored")
	}
	if err := idx.Add(NamespaceProperty, "f", 1); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(NamespaceProperty, "g", 3); !errors.Is(err, ErrMaxEntriesExceeded) {
		t.Errorf("expected ErrMaxEntriesExceeded, got %v", err)
	}
}
