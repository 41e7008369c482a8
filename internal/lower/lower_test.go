package lower_test

import (
	"testing"

	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/ir/interp"
	"solidc/internal/lower"
	"solidc/internal/sess"
)

func u32Bytes(n uint32) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

func u32From(b []byte) uint32 {
	var n uint32
	for i := 0; i < 4 && i < len(b); i++ {
		n |= uint32(b[i]) << (8 * i)
	}
	return n
}

// TestOverloadResolutionPicksMatchingArgTypes lowers two overloads of
// "choose" (by u32, by bool) and a caller passing a u32 argument — only
// the u32 overload type-checks, so resolution must pick it without
// raising an ambiguous-call error (spec §4.6's testable overload
// scenario).
func TestOverloadResolutionPicksMatchingArgTypes(t *testing.T) {
	src := `
fn choose(a: u32) -> u32 {
    return a;
}
fn choose(a: bool) -> u32 {
    return 7;
}
fn caller(x: u32) -> u32 {
    return choose(x);
}
`
	s := sess.New()
	mod, err := ast.ParseModule(s, src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	irMod, err := lower.LowerModule(s, mod)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(irMod.Functions) != 3 {
		t.Fatalf("got %d functions, want 3", len(irMod.Functions))
	}

	vm := interp.New()
	vm.LoadModule(irMod)
	caller := irMod.Functions[2] // declared last, appended last
	r, err := vm.CallFunction(caller.Name, [][]byte{u32Bytes(9)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if u32From(r) != 9 {
		t.Errorf("caller(9) = %d, want 9 (the u32 overload, not the bool one)", u32From(r))
	}
}

// TestControlFlowLowering groups the if-expression and while-loop
// lowering scenarios: an if/else used as a value, an else-less if
// rejected when used as a value, and a while loop's begin/end label
// placement.
func TestControlFlowLowering(t *testing.T) {
	t.Run("if with else yields a value", func(t *testing.T) {
		src := `
fn pick(n: i32) -> i32 {
    let x = if n > 0 { 1 } else { 2 };
    return x;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		irMod, err := lower.LowerModule(s, mod)
		if err != nil {
			t.Fatalf("lower: %v", err)
		}
		if len(irMod.Functions) != 1 {
			t.Fatalf("got %d functions, want 1", len(irMod.Functions))
		}
		vm := interp.New()
		vm.LoadModule(irMod)

		r, err := vm.CallFunction(irMod.Functions[0].Name, [][]byte{u32Bytes(5)})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if u32From(r) != 1 {
			t.Errorf("pick(5) = %d, want 1", u32From(r))
		}

		r, err = vm.CallFunction(irMod.Functions[0].Name, [][]byte{u32Bytes(0)})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if u32From(r) != 2 {
			t.Errorf("pick(0) = %d, want 2", u32From(r))
		}
	})

	t.Run("if without else cannot yield a value", func(t *testing.T) {
		src := `
fn bad(n: i32) -> i32 {
    let x = if n > 0 { 1 };
    return x;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, err := lower.LowerModule(s, mod); err == nil {
			t.Fatal("expected a type error for an else-less if used as a value")
		}
	})

	t.Run("while loop places begin/end labels", func(t *testing.T) {
		src := `
fn sumTo(n: i32) -> i32 {
    let total = 0;
    let i = 0;
    while i < n {
        total;
        i;
    }
    return total;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		irMod, err := lower.LowerModule(s, mod)
		if err != nil {
			t.Fatalf("lower: %v", err)
		}
		fn := irMod.Functions[0]

		// The loop's jmp targets its begin label and its if targets its
		// end label; both must be placed, begin before end.
		var begin, end sess.Symbol
		for _, c := range fn.Comps {
			switch c := c.(type) {
			case *ir.Jmp:
				begin = c.Label
			case *ir.If:
				end = c.Label
			}
		}
		beginIdx, foundBegin := fn.Labels[begin]
		endIdx, foundEnd := fn.Labels[end]
		if !foundBegin || !foundEnd || beginIdx >= endIdx {
			t.Fatal("expected the while loop to place begin/end labels")
		}
	})
}

// TestStructLayoutFixUp groups registerStructLayouts' topological
// fix-up scenarios (spec §4.4): a by-value forward reference, a
// self-referential pointer field, a forward pointer reference between
// two structs, and the one shape that's genuinely unresolvable — a
// by-value cycle.
func TestStructLayoutFixUp(t *testing.T) {
	t.Run("forward by-value struct reference resolves", func(t *testing.T) {
		src := `
struct Wrapper {
    inner: Inner,
}
struct Inner {
    x: i32,
    y: i32,
}
fn identity(w: Wrapper) -> Wrapper {
    return w;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		irMod, err := lower.LowerModule(s, mod)
		if err != nil {
			t.Fatalf("lower: %v", err)
		}
		fn := irMod.Functions[0]
		if fn.Params[0].Type.Size != 8 || fn.Params[0].Type.Align != 4 {
			t.Errorf("Wrapper param layout = %+v, want size=8 align=4", fn.Params[0].Type)
		}
	})

	t.Run("self-referential pointer field resolves", func(t *testing.T) {
		src := `
struct Node {
    val: i32,
    next: *Node,
}
fn identity(n: Node) -> Node {
    return n;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		irMod, err := lower.LowerModule(s, mod)
		if err != nil {
			t.Fatalf("lower: %v", err)
		}
		fn := irMod.Functions[0]
		// val (4, align 4) then next (pointer, 8 bytes, 8-aligned): offset 8, size 16.
		if fn.Params[0].Type.Size != 16 || fn.Params[0].Type.Align != 8 {
			t.Errorf("Node param layout = %+v, want size=16 align=8", fn.Params[0].Type)
		}
	})

	t.Run("forward pointer reference resolves", func(t *testing.T) {
		src := `
struct A {
    next: *B,
}
struct B {
    val: i32,
}
fn identity(a: A) -> A {
    return a;
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		irMod, err := lower.LowerModule(s, mod)
		if err != nil {
			t.Fatalf("lower: %v", err)
		}
		fn := irMod.Functions[0]
		if fn.Params[0].Type.Size != 8 || fn.Params[0].Type.Align != 8 {
			t.Errorf("A param layout = %+v, want size=8 align=8", fn.Params[0].Type)
		}
	})

	t.Run("by-value cycle is rejected", func(t *testing.T) {
		src := `
struct A {
    b: B,
}
struct B {
    a: A,
}
`
		s := sess.New()
		mod, err := ast.ParseModule(s, src)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if _, err := lower.LowerModule(s, mod); err == nil {
			t.Fatal("expected a layout error for a by-value struct cycle")
		}
	})
}

// TestStructParamGetsLayoutComputedSize exercises a non-templated
// struct used as a function parameter/return type, checking that
// module-level preprocessing computed its layout (two i32 fields,
// 4-byte aligned, 8 bytes total) before the function referencing it
// was lowered.
func TestStructParamGetsLayoutComputedSize(t *testing.T) {
	src := `
struct Point {
    x: i32,
    y: i32,
}
fn identity(p: Point) -> Point {
    return p;
}
`
	s := sess.New()
	mod, err := ast.ParseModule(s, src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	irMod, err := lower.LowerModule(s, mod)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	fn := irMod.Functions[0]
	if fn.Params[0].Type.Size != 8 || fn.Params[0].Type.Align != 4 {
		t.Errorf("Point param layout = %+v, want size=8 align=4", fn.Params[0].Type)
	}
	if fn.ReturnType.Size != 8 || fn.ReturnType.Align != 4 {
		t.Errorf("Point return layout = %+v, want size=8 align=4", fn.ReturnType)
	}
}
