package types

import (
	"fmt"
	"sort"
	"testing"

	"solidc/internal/sess"
)

// TestLayout covers SizeAlign/CreateStruct's layout rules: a primitive's
// size/align comes straight from its registration, a struct pads fields
// to each field's own alignment and takes the max as its own, and a
// struct nested inside another is sized by its own layout rather than
// being re-flattened.
func TestLayout(t *testing.T) {
	tests := []struct {
		name        string
		build       func(c *Context, s *sess.Session) (size, align uint64, offsets []uint64, err error)
		wantSize    uint64
		wantAlign   uint64
		wantOffsets []uint64
	}{
		{
			name: "primitive",
			build: func(c *Context, s *sess.Session) (uint64, uint64, []uint64, error) {
				ref, ok := c.Resolve([]sess.Symbol{s.Intern("u32")})
				if !ok {
					return 0, 0, nil, fmt.Errorf("u32 not registered")
				}
				size, align, err := c.SizeAlign(ref)
				return size, align, nil, err
			},
			wantSize:  4,
			wantAlign: 4,
		},
		{
			// struct S { a: u8, b: u32, c: u8 } -> size 12, align 4, offsets 0,4,8
			name: "struct padding to widest field",
			build: func(c *Context, s *sess.Session) (uint64, uint64, []uint64, error) {
				u8, _ := c.Resolve([]sess.Symbol{s.Intern("u8")})
				u32, _ := c.Resolve([]sess.Symbol{s.Intern("u32")})
				st, err := c.CreateStruct([]FieldSpec{
					{Name: s.Intern("a"), Type: u8},
					{Name: s.Intern("b"), Type: u32},
					{Name: s.Intern("c"), Type: u8},
				})
				if err != nil {
					return 0, 0, nil, err
				}
				offsets := make([]uint64, len(st.Fields))
				for i, f := range st.Fields {
					offsets[i] = f.Offset
				}
				return st.Size, st.Align, offsets, nil
			},
			wantSize:    12,
			wantAlign:   4,
			wantOffsets: []uint64{0, 4, 8},
		},
		{
			name: "struct of struct aligns to its own max, not the outer's",
			build: func(c *Context, s *sess.Session) (uint64, uint64, []uint64, error) {
				u8, _ := c.Resolve([]sess.Symbol{s.Intern("u8")})
				inner, err := c.CreateStruct([]FieldSpec{{Name: s.Intern("x"), Type: u8}})
				if err != nil {
					return 0, 0, nil, err
				}
				innerRef := c.Pool.Add(inner)
				outer, err := c.CreateStruct([]FieldSpec{
					{Name: s.Intern("a"), Type: u8},
					{Name: s.Intern("b"), Type: innerRef},
				})
				if err != nil {
					return 0, 0, nil, err
				}
				return outer.Size, outer.Align, nil, nil
			},
			wantSize:  2,
			wantAlign: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sess.New()
			c := NewContext(s)
			size, align, offsets, err := tt.build(c, s)
			if err != nil {
				t.Fatal(err)
			}
			if size != tt.wantSize || align != tt.wantAlign {
				t.Errorf("got size=%d align=%d, want %d/%d", size, align, tt.wantSize, tt.wantAlign)
			}
			for i, want := range tt.wantOffsets {
				if i >= len(offsets) || offsets[i] != want {
					t.Errorf("field %d offset = %v, want %d", i, offsets, want)
				}
			}
		})
	}
}

func TestPlaceholderQueryBeforeResolutionErrors(t *testing.T) {
	s := sess.New()
	c := NewContext(s)
	ref := c.ReservePlaceholder()
	if _, _, err := c.SizeAlign(ref); err == nil {
		t.Fatal("expected error querying unresolved placeholder")
	}
	c.ResolvePlaceholder(ref, Ty{Kind: KindPrimitive, Primitive: U16, Size: 2, Align: 2})
	size, align, err := c.SizeAlign(ref)
	if err != nil {
		t.Fatal(err)
	}
	if size != 2 || align != 2 {
		t.Errorf("got size=%d align=%d, want 2/2", size, align)
	}
}

func TestKnownNamesIsSortedAndDeduplicatedAcrossScopes(t *testing.T) {
	s := sess.New()
	c := NewContext(s)
	c.StartScope()
	u8, _ := c.Resolve([]sess.Symbol{s.Intern("u8")})
	c.Register([]sess.Symbol{s.Intern("Widget")}, u8)
	c.Register([]sess.Symbol{s.Intern("Amp")}, u8)

	names := c.KnownNames()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("KnownNames() = %v, not sorted", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Fatalf("KnownNames() contains duplicate %q", n)
		}
		seen[n] = true
	}
	if !seen["Widget"] || !seen["Amp"] || !seen["u8"] {
		t.Fatalf("KnownNames() = %v, missing an expected entry", names)
	}
}

func TestScopeSnapshotRestore(t *testing.T) {
	s := sess.New()
	c := NewContext(s)
	snap := c.Snapshot()

	c.StartScope()
	u8, _ := c.Resolve([]sess.Symbol{s.Intern("u8")})
	c.Register([]sess.Symbol{s.Intern("Local")}, u8)
	if _, ok := c.Resolve([]sess.Symbol{s.Intern("Local")}); !ok {
		t.Fatal("Local should resolve in its own scope")
	}

	old := c.Swap(snap)
	if _, ok := c.Resolve([]sess.Symbol{s.Intern("Local")}); ok {
		t.Fatal("Local should not resolve after swapping to the snapshot")
	}
	c.Swap(old)
	if _, ok := c.Resolve([]sess.Symbol{s.Intern("Local")}); !ok {
		t.Fatal("Local should resolve again after swapping back")
	}
}
