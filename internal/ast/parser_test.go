package ast_test

import (
	"testing"

	"solidc/internal/ast"
	"solidc/internal/sess"
)

// TestParseModule groups structurally distinct parse scenarios: a
// simple function, a templated struct, a struct with a pointer field,
// and an if/else/while expression mix.
func TestParseModule(t *testing.T) {
	t.Run("simple function", func(t *testing.T) {
		src := `
fn add(a: i32, b: i32) -> i32 {
    return a + b;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if len(mod.Items) != 1 {
			t.Fatalf("got %d items, want 1", len(mod.Items))
		}
		fn, ok := mod.Items[0].(*ast.FunctionDef)
		if !ok {
			t.Fatalf("item is %T, want *ast.FunctionDef", mod.Items[0])
		}
		if len(fn.Params) != 2 {
			t.Fatalf("got %d params, want 2", len(fn.Params))
		}
		if len(fn.Body.Stmts) != 1 {
			t.Fatalf("got %d stmts, want 1", len(fn.Body.Stmts))
		}
		if _, ok := fn.Body.Stmts[0].(*ast.ReturnStmt); !ok {
			t.Fatalf("stmt is %T, want *ast.ReturnStmt", fn.Body.Stmts[0])
		}
	})

	t.Run("templated struct", func(t *testing.T) {
		src := `
template<T> struct V {
    x: T,
    y: T,
    z: T,
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		st, ok := mod.Items[0].(*ast.StructDef)
		if !ok {
			t.Fatalf("item is %T, want *ast.StructDef", mod.Items[0])
		}
		if len(st.TemplateParams) != 1 {
			t.Fatalf("got %d template params, want 1", len(st.TemplateParams))
		}
		if len(st.Fields) != 3 {
			t.Fatalf("got %d fields, want 3", len(st.Fields))
		}
	})

	t.Run("struct with a pointer field", func(t *testing.T) {
		src := `
struct Node {
    val: i32,
    next: *Node,
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		st, ok := mod.Items[0].(*ast.StructDef)
		if !ok {
			t.Fatalf("item is %T, want *ast.StructDef", mod.Items[0])
		}
		if len(st.Fields) != 2 {
			t.Fatalf("got %d fields, want 2", len(st.Fields))
		}
		pt, ok := st.Fields[1].Type.(*ast.PointerType)
		if !ok {
			t.Fatalf("next field type is %T, want *ast.PointerType", st.Fields[1].Type)
		}
		nt, ok := pt.Pointee.(*ast.NamedType)
		if !ok || len(nt.Path) != 1 || s.Text(nt.Path[0]) != "Node" {
			t.Fatalf("pointer pointee = %+v, want NamedType{Node}", pt.Pointee)
		}
	})

	t.Run("if/else and while", func(t *testing.T) {
		src := `
fn f(n: i32) -> i32 {
    let x = if n > 0 { 1 } else { 2 };
    while n > 0 {
        n;
    }
    return x;
}
`
		s := sess.New()
		_, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
	})
}
