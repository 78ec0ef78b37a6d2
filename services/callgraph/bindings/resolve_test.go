package bindings

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

func resolveSource(t *testing.T, src string) (*ast.Program, *Result) {
	t.Helper()
	prog, err := ast.BuildFromSources(context.Background(), []ast.Source{{Path: "test.js", Content: []byte(src)}})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	res, err := Resolve(prog)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	return prog, res
}

// identifiers returns every identifier node with the given text, in source order.
func identifiers(prog *ast.Program, name string) []ast.NodeID {
	var out []ast.NodeID
	for i := 0; i < prog.Len(); i++ {
		n := prog.Node(ast.NodeID(i))
		if n.Kind == ast.KindIdentifier && n.Text == name {
			out = append(out, n.ID)
		}
	}
	return out
}

func bindingOf(t *testing.T, prog *ast.Program, id ast.NodeID) ast.Binding {
	t.Helper()
	b, err := prog.BindingOf(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}

func TestResolve_HoistedVariableReadBeforeDeclaration(t *testing.T) {
	prog, _ := resolveSource(t, `function f(){ return x; } var x = 1; f();`)

	xs := identifiers(prog, "x")
	if len(xs) != 2 {
		t.Fatalf("expected 2 x identifiers, got %d", len(xs))
	}
	read, decl := xs[0], xs[1]

	b := bindingOf(t, prog, read)
	if !b.Resolved() {
		t.Fatal("expected read of x inside f to resolve")
	}
	if b.Decl != decl {
		t.Errorf("expected x to resolve to top-level declaration %d, got %d", decl, b.Decl)
	}
}

func TestResolve_HoistedFunctionCalledBeforeDeclaration(t *testing.T) {
	prog, _ := resolveSource(t, `g(); function g() {}`)

	gs := identifiers(prog, "g")
	if len(gs) != 2 {
		t.Fatalf("expected 2 g identifiers, got %d", len(gs))
	}
	if b := bindingOf(t, prog, gs[0]); b.Decl != gs[1] {
		t.Errorf("expected call to bind to declaration %d, got %d", gs[1], b.Decl)
	}
}

func TestResolve_Shadowing(t *testing.T) {
	prog, res := resolveSource(t, `
var v = 1;
function outer(v) {
    function inner() { var v = 2; return v; }
    return v;
}
v;
`)
	vs := identifiers(prog, "v")
	// 0: global decl, 1: param, 2: inner decl, 3: inner read, 4: outer read, 5: global read
	if len(vs) != 6 {
		t.Fatalf("expected 6 v identifiers, got %d", len(vs))
	}
	want := map[int]ast.NodeID{3: vs[2], 4: vs[1], 5: vs[0]}
	for idx, decl := range want {
		if b := bindingOf(t, prog, vs[idx]); b.Decl != decl {
			t.Errorf("v[%d]: expected decl %d, got %d", idx, decl, b.Decl)
		}
	}
	if got := bindingOf(t, prog, vs[5]).ScopeID; got != res.Global.ID {
		t.Errorf("expected global scope id %d, got %d", res.Global.ID, got)
	}
}

func TestResolve_UnresolvedGlobal(t *testing.T) {
	prog, res := resolveSource(t, `console.log(undeclared);`)

	for _, name := range []string{"console", "undeclared"} {
		ids := identifiers(prog, name)
		if len(ids) != 1 {
			t.Fatalf("expected one %s identifier, got %d", name, len(ids))
		}
		b := bindingOf(t, prog, ids[0])
		if b.Resolved() {
			t.Errorf("expected %s to be unresolved", name)
		}
		if b.Name != name {
			t.Errorf("expected binding name %q, got %q", name, b.Name)
		}
	}
	if res.Unresolved != 2 {
		t.Errorf("expected 2 unresolved references, got %d", res.Unresolved)
	}
}

func TestResolve_LetConstAreFunctionScoped(t *testing.T) {
	prog, _ := resolveSource(t, `
function f() {
    if (true) { let inner = 1; }
    return inner;
}
`)
	ids := identifiers(prog, "inner")
	if len(ids) != 2 {
		t.Fatalf("expected 2 identifiers, got %d", len(ids))
	}
	if b := bindingOf(t, prog, ids[1]); b.Decl != ids[0] {
		t.Errorf("expected block-level let to be visible function-wide")
	}
}

func TestResolve_CatchParameter(t *testing.T) {
	prog, res := resolveSource(t, `
var e = 0;
try { risky(); } catch (e) { e; var hoisted = 1; }
e;
hoisted;
`)
	es := identifiers(prog, "e")
	// 0: global decl, 1: catch param, 2: catch read, 3: global read
	if len(es) != 4 {
		t.Fatalf("expected 4 e identifiers, got %d", len(es))
	}
	if b := bindingOf(t, prog, es[2]); b.Decl != es[1] {
		t.Errorf("expected catch read to bind to catch parameter")
	}
	if b := bindingOf(t, prog, es[3]); b.Decl != es[0] {
		t.Errorf("expected read after catch to bind to global e")
	}
	hs := identifiers(prog, "hoisted")
	if b := bindingOf(t, prog, hs[1]); b.Decl != hs[0] {
		t.Errorf("expected var inside catch to hoist out of the catch scope")
	}

	catchScopes := 0
	for _, s := range res.Scopes {
		if s.Kind == ScopeCatch {
			catchScopes++
		}
	}
	if catchScopes != 1 {
		t.Errorf("expected 1 catch scope, got %d", catchScopes)
	}
}

func TestResolve_NamedFunctionExpression(t *testing.T) {
	prog, _ := resolveSource(t, `
var fact = function self(n) { return n ? self(n - 1) : 1; };
self;
`)
	ids := identifiers(prog, "self")
	if len(ids) != 3 {
		t.Fatalf("expected 3 self identifiers, got %d", len(ids))
	}
	if b := bindingOf(t, prog, ids[1]); b.Decl != ids[0] {
		t.Errorf("expected recursive call to bind to the expression's own name")
	}
	if b := bindingOf(t, prog, ids[2]); b.Resolved() {
		t.Errorf("expected own name to be invisible outside the expression")
	}
}

func TestResolve_BodyVarShadowsExpressionName(t *testing.T) {
	prog, _ := resolveSource(t, `var h = function g() { var g = function z() {}; g(); };`)

	ids := identifiers(prog, "g")
	if len(ids) != 3 {
		t.Fatalf("expected 3 g identifiers, got %d", len(ids))
	}
	self, local, call := ids[0], ids[1], ids[2]
	b := bindingOf(t, prog, call)
	if b.Decl != local {
		t.Errorf("expected g() to bind to the local var %d, got %d (own name is %d)", local, b.Decl, self)
	}
}

func TestResolve_ParameterShadowsExpressionName(t *testing.T) {
	prog, _ := resolveSource(t, `var h = function g(g) { return g; };`)

	ids := identifiers(prog, "g")
	if len(ids) != 3 {
		t.Fatalf("expected 3 g identifiers, got %d", len(ids))
	}
	if b := bindingOf(t, prog, ids[2]); b.Decl != ids[1] {
		t.Errorf("expected g to bind to the parameter %d, got %d", ids[1], b.Decl)
	}
}

func TestResolve_DestructuringAndDefaults(t *testing.T) {
	prog, _ := resolveSource(t, `
function f({a, b: renamed}, [c, ...rest], d = 1) { return a + renamed + c + rest + d; }
`)
	for _, name := range []string{"a", "renamed", "c", "rest", "d"} {
		ids := identifiers(prog, name)
		if len(ids) != 2 {
			t.Fatalf("%s: expected 2 identifiers, got %d", name, len(ids))
		}
		if b := bindingOf(t, prog, ids[1]); b.Decl != ids[0] {
			t.Errorf("%s: expected read to bind to pattern declaration", name)
		}
	}
}

func TestResolve_ScopeTreeMirrorsNesting(t *testing.T) {
	_, res := resolveSource(t, `
function a() { function b() {} var c = () => {}; }
function d() {}
`)
	if res.Global.Parent != nil {
		t.Error("expected global scope to have no parent")
	}
	if len(res.Global.Children) != 2 {
		t.Fatalf("expected 2 top-level function scopes, got %d", len(res.Global.Children))
	}
	if got := len(res.Global.Children[0].Children); got != 2 {
		t.Errorf("expected a to own 2 nested scopes, got %d", got)
	}
	names := res.Global.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "d" {
		t.Errorf("expected global names [a d], got %v", names)
	}
	for _, s := range res.Scopes {
		if s.Kind == ScopeFunction {
			if owned, ok := res.ScopeOf(s.Node); !ok || owned != s {
				t.Errorf("scope %d not indexed by its function node", s.ID)
			}
		}
	}
}

func TestResolve_Imports(t *testing.T) {
	prog, _ := resolveSource(t, `
import def, { named, orig as alias } from "mod";
def(); named(); alias(); orig();
`)
	for _, name := range []string{"def", "named", "alias"} {
		ids := identifiers(prog, name)
		if b := bindingOf(t, prog, ids[len(ids)-1]); b.Decl != ids[0] {
			t.Errorf("%s: expected use to bind to import", name)
		}
	}
	origs := identifiers(prog, "orig")
	if b := bindingOf(t, prog, origs[len(origs)-1]); b.Resolved() {
		t.Errorf("expected the imported-as name to stay unbound")
	}
}

func TestResolve_Twice(t *testing.T) {
	prog, _ := resolveSource(t, `var x;`)
	if _, err := Resolve(prog); !errors.Is(err, ast.ErrBindingsAlreadyResolved) {
		t.Fatalf("expected ErrBindingsAlreadyResolved, got %v", err)
	}
}
