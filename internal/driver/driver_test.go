package driver_test

import (
	"testing"

	"solidc/internal/driver"
	"solidc/internal/ir/interp"
)

func u32From(b []byte) uint32 {
	var n uint32
	for i := 0; i < 4 && i < len(b); i++ {
		n |= uint32(b[i]) << (8 * i)
	}
	return n
}

func u32Bytes(n uint32) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

// TestCompileLowersAndRuns drives a Session end to end: parse, both
// lowering phases, and interpretation of the resulting IR.
func TestCompileLowersAndRuns(t *testing.T) {
	ds := driver.NewSession()
	mod, err := ds.Compile(`
fn double(n: u32) -> u32 {
    return n + n;
}
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	vm := interp.New()
	vm.LoadModule(mod)
	r, err := vm.CallFunction(mod.Functions[0].Name, [][]byte{u32Bytes(21)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if u32From(r) != 42 {
		t.Errorf("double(21) = %d, want 42", u32From(r))
	}
}

// TestCompileModules groups CompileModules batch scenarios: independent
// units getting their own Session (no cross-unit state leaks — a name
// reused across units must not collide, with results lining up by Key
// regardless of completion order), and a malformed unit's error coming
// back through CompileResult.Err rather than aborting the whole batch.
func TestCompileModules(t *testing.T) {
	t.Run("independent units don't leak state", func(t *testing.T) {
		units := []driver.CompileUnit{
			{Key: "inc", Source: `
fn compute(n: u32) -> u32 {
    return n + 1;
}
`},
			{Key: "dec", Source: `
fn compute(n: u32) -> u32 {
    return n - 1;
}
`},
		}

		results, err := driver.CompileModules(units)
		if err != nil {
			t.Fatalf("compile modules: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}

		byKey := make(map[string]driver.CompileResult, len(results))
		for _, r := range results {
			if r.Err != nil {
				t.Fatalf("unit %q: %v", r.Key, r.Err)
			}
			byKey[r.Key] = r
		}

		vm := interp.New()
		vm.LoadModule(byKey["inc"].Module)
		r, err := vm.CallFunction(byKey["inc"].Module.Functions[0].Name, [][]byte{u32Bytes(10)})
		if err != nil {
			t.Fatalf("call inc: %v", err)
		}
		if u32From(r) != 11 {
			t.Errorf("inc.compute(10) = %d, want 11", u32From(r))
		}

		vm2 := interp.New()
		vm2.LoadModule(byKey["dec"].Module)
		r, err = vm2.CallFunction(byKey["dec"].Module.Functions[0].Name, [][]byte{u32Bytes(10)})
		if err != nil {
			t.Fatalf("call dec: %v", err)
		}
		if u32From(r) != 9 {
			t.Errorf("dec.compute(10) = %d, want 9", u32From(r))
		}
	})

	t.Run("a unit's parse error doesn't abort the batch", func(t *testing.T) {
		units := []driver.CompileUnit{
			{Key: "ok", Source: `
fn identity(n: u32) -> u32 {
    return n;
}
`},
			{Key: "bad", Source: `fn (( not valid`},
		}

		results, err := driver.CompileModules(units)
		if err != nil {
			t.Fatalf("compile modules: %v", err)
		}

		byKey := make(map[string]driver.CompileResult, len(results))
		for _, r := range results {
			byKey[r.Key] = r
		}
		if byKey["ok"].Err != nil {
			t.Errorf("unit %q: unexpected error %v", "ok", byKey["ok"].Err)
		}
		if byKey["bad"].Err == nil {
			t.Error("unit \"bad\": expected a parse error, got nil")
		}
	})
}
