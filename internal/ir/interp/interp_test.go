package interp_test

import (
	"fmt"
	"testing"

	"solidc/internal/ir/asm"
	"solidc/internal/ir/interp"
	"solidc/internal/sess"
)

const fibIR = `
fn fib: %n := (1 1) -> (1 1)
    %a := const 1 0
    %b := const 1 1
    %i := const 1 0
    %one := const 1 1
    %zero := const 1 0
    :begin
    %cond := binop < %i %n
    %notcond := unop not %cond
    if %notcond end
    %sum := binop + %a %b
    %a := binop + %b %zero
    %b := binop + %sum %zero
    %i := binop + %i %one
    jmp begin
    :end
    return %a
endfn
`

func TestIterativeFibonacci(t *testing.T) {
	s := sess.New()
	mod, err := asm.Parse(s, fibIR)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	vm := interp.New()
	vm.LoadModule(mod)

	result, err := vm.CallFunction(s.Intern("fib"), [][]byte{{10}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(result) != 1 || result[0] != 55 {
		t.Fatalf("fib(10) = %v, want [55]", result)
	}
}

func TestRoundTrip(t *testing.T) {
	s := sess.New()
	mod, err := asm.Parse(s, fibIR)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	printed := asm.Print(s, mod)

	reparsed, err := asm.Parse(s, printed)
	if err != nil {
		t.Fatalf("re-assemble printed form: %v\n%s", err, printed)
	}
	reprinted := asm.Print(s, reparsed)
	if printed != reprinted {
		t.Fatalf("printing is not a fixed point:\n--- first ---\n%s\n--- second ---\n%s", printed, reprinted)
	}
}

// TestBinopArithmetic covers binop's byte-width contract: operands of
// matching width wrap per spec's two's-complement-by-width rule,
// operands of mismatched width yield void rather than a wrong answer.
func TestBinopArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want []byte // nil means a void result is expected
	}{
		{name: "mismatched width yields void", a: []byte{1}, b: []byte{2, 0}, want: nil},
		{name: "matching width wraps on overflow", a: []byte{250}, b: []byte{10}, want: []byte{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aw, bw := len(tt.a), len(tt.b)
			rw := aw
			if bw > rw {
				rw = bw
			}
			src := fmt.Sprintf(`
fn f: %%a := (%d %d) %%b := (%d %d) -> (%d %d)
    %%r := binop + %%a %%b
    return %%r
endfn
`, aw, aw, bw, bw, rw, rw)

			s := sess.New()
			mod, err := asm.Parse(s, src)
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			vm := interp.New()
			vm.LoadModule(mod)
			result, err := vm.CallFunction(s.Intern("f"), [][]byte{tt.a, tt.b})
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if tt.want == nil {
				if result != nil {
					t.Fatalf("expected void result, got %v", result)
				}
				return
			}
			if len(result) != len(tt.want) || result[0] != tt.want[0] {
				t.Fatalf("got %v, want %v", result, tt.want)
			}
		})
	}
}

func TestAllocStoreLoadRoundtrip(t *testing.T) {
	src := `
fn f: %v := (4 4) -> (4 4)
    %p := alloc (4 4)
    store (4 4) %p %v
    %r := load (4 4) %p
    return %r
endfn
`
	s := sess.New()
	mod, err := asm.Parse(s, src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	vm := interp.New()
	vm.LoadModule(mod)
	result, err := vm.CallFunction(s.Intern("f"), [][]byte{{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(result) != 4 || result[0] != 1 || result[3] != 4 {
		t.Fatalf("got %v, want [1 2 3 4]", result)
	}
}
