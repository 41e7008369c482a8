// Package types implements Ty, the type system spec §3 describes:
// primitives, pointers, and structs with a declared-order layout
// algorithm, plus a scoped name-to-type registry. Grounded on
// original_source/solidlang/context/ty/mod.rs, translated from Rust's
// enum-of-variants into a Go struct-with-Kind-tag the way internal/ir
// represents IRComp.
package types

import (
	"sort"
	"strings"

	"golang.org/x/exp/maps"

	"solidc/internal/sess"
	"solidc/internal/solerr"
)

type Primitive int

const (
	U8 Primitive = iota
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	Bool
	Char
	Void
)

var primitiveNames = map[string]Primitive{
	"u8": U8, "i8": I8, "u16": U16, "i16": I16,
	"u32": U32, "i32": I32, "u64": U64, "i64": I64,
	"bool": Bool, "char": Char, "void": Void,
}

var primitiveLayout = map[Primitive][2]uint64{
	U8: {1, 1}, I8: {1, 1}, U16: {2, 2}, I16: {2, 2},
	U32: {4, 4}, I32: {4, 4}, U64: {8, 8}, I64: {8, 8},
	Bool: {1, 1}, Char: {4, 4}, Void: {0, 1},
}

// IsInteger reports whether p is one of the eight fixed-width integer
// primitives (excludes bool, char, void).
func IsInteger(p Primitive) bool {
	switch p {
	case U8, I8, U16, I16, U32, I32, U64, I64:
		return true
	}
	return false
}

// IsSigned reports whether p is a signed integer primitive.
func IsSigned(p Primitive) bool {
	switch p {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

func ByteWidth(p Primitive) uint64 { return primitiveLayout[p][0] }

// IntRange returns the representable [min, max] range of p as signed
// 64-bit bounds (sufficient since the widest primitive is 64 bits);
// unsigned primitives report min=0.
func IntRange(p Primitive) (min int64, max int64) {
	bits := ByteWidth(p) * 8
	if IsSigned(p) {
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1
	}
	if bits == 64 {
		return 0, 1<<63 - 1 // u64's true max doesn't fit in int64; literals this large are rejected separately
	}
	return 0, 1<<bits - 1
}

type Kind int

const (
	KindPrimitive Kind = iota
	KindPointer
	KindStruct
	// KindPlaceholderUnknown marks a Ref[Ty] slot reserved before its
	// real type is known — a template instantiation's own ref while its
	// fields are elaborated, or a pointer field's pointee during struct
	// layout. The slot is patched exactly once via
	// Context.ResolvePlaceholder (spec §4.4/§5).
	KindPlaceholderUnknown
)

type Field struct {
	Name   sess.Symbol
	Type   sess.Ref[Ty]
	Offset uint64
}

type Ty struct {
	Kind      Kind
	Primitive Primitive
	Pointee   sess.Ref[Ty]
	Fields    []Field
	Size      uint64
	Align     uint64
}

// Scope maps a dotted type path to the Ty that resolves it, mirroring
// TyScope's path_to_type map. Paths are joined with "::" for the map
// key since Solid identifiers cannot contain that sequence.
type Scope struct {
	pathToType map[string]sess.Ref[Ty]
}

func newScope() *Scope { return &Scope{pathToType: make(map[string]sess.Ref[Ty])} }

// Context owns the Ty pool and the stack of name scopes types resolve
// through, the Go analogue of TyContext. Scopes are snapshotted
// (shallow-copied map-by-reference is not enough for template
// elaboration's save/restore dance — see Snapshot/Swap) and swapped
// wholesale the way template instantiation needs to.
type Context struct {
	sess   *sess.Session
	Pool   *sess.Pool[Ty]
	scopes []*Scope
}

func NewContext(s *sess.Session) *Context {
	c := &Context{sess: s, Pool: sess.NewPool[Ty]()}
	c.StartScope()
	for name, prim := range primitiveNames {
		layout := primitiveLayout[prim]
		ref := c.Pool.Add(Ty{Kind: KindPrimitive, Primitive: prim, Size: layout[0], Align: layout[1]})
		c.Register([]sess.Symbol{s.Intern(name)}, ref)
	}
	return c
}

func pathKey(s *sess.Session, path []sess.Symbol) string {
	parts := make([]string, len(path))
	for i, sym := range path {
		parts[i] = s.Text(sym)
	}
	return strings.Join(parts, "::")
}

func (c *Context) Register(path []sess.Symbol, ref sess.Ref[Ty]) {
	c.scopes[len(c.scopes)-1].pathToType[pathKey(c.sess, path)] = ref
}

func (c *Context) Resolve(path []sess.Symbol) (sess.Ref[Ty], bool) {
	key := pathKey(c.sess, path)
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if ref, ok := c.scopes[i].pathToType[key]; ok {
			return ref, true
		}
	}
	return sess.Ref[Ty]{}, false
}

// KnownNames returns every registered path across all open scopes, in
// deterministic sorted order, for use in diagnostics that suggest what
// was actually in scope when a lookup failed (map iteration order is
// otherwise randomized, which would make two runs report a different
// suggestion for the same error).
func (c *Context) KnownNames() []string {
	seen := make(map[string]struct{})
	for _, sc := range c.scopes {
		for _, k := range maps.Keys(sc.pathToType) {
			seen[k] = struct{}{}
		}
	}
	names := maps.Keys(seen)
	sort.Strings(names)
	return names
}

func (c *Context) StartScope() { c.scopes = append(c.scopes, newScope()) }

func (c *Context) CloseScope() { c.scopes = c.scopes[:len(c.scopes)-1] }

// Snapshot returns a deep copy of the current scope stack, suitable for
// stashing inside a template item until instantiation time (spec §4.5's
// "captured ... scope stacks at declaration time").
func (c *Context) Snapshot() []*Scope {
	out := make([]*Scope, len(c.scopes))
	for i, sc := range c.scopes {
		cp := newScope()
		for k, v := range sc.pathToType {
			cp.pathToType[k] = v
		}
		out[i] = cp
	}
	return out
}

// Swap installs a previously captured scope stack and returns the one
// it replaced, so the caller can restore it afterward.
func (c *Context) Swap(with []*Scope) []*Scope {
	old := c.scopes
	c.scopes = with
	return old
}

// SizeAlign reports the storage footprint of the type ref points to.
// Querying an unresolved placeholder is a LayoutError: every real
// reference to a type parameter's Ty must happen after instantiation
// binds it.
func (c *Context) SizeAlign(ref sess.Ref[Ty]) (uint64, uint64, error) {
	t := c.Pool.Get(ref)
	if t.Kind == KindPlaceholderUnknown {
		return 0, 0, solerr.New(solerr.LayoutError, solerr.Location{}, "type is not yet resolved")
	}
	return t.Size, t.Align, nil
}

type FieldSpec struct {
	Name sess.Symbol
	Type sess.Ref[Ty]
}

// CreateStruct lays out fields in declaration order: each field's
// offset is the running offset rounded up to the field's own
// alignment, the struct's alignment is the max field alignment (at
// least 1), and the struct's size is the final offset rounded up to
// that alignment (spec §3's struct-layout invariants, ported from
// create_struct_ty).
func (c *Context) CreateStruct(specs []FieldSpec) (Ty, error) {
	var offset uint64
	maxAlign := uint64(1)
	fields := make([]Field, 0, len(specs))

	for _, spec := range specs {
		size, align, err := c.SizeAlign(spec.Type)
		if err != nil {
			return Ty{}, err
		}
		if align > maxAlign {
			maxAlign = align
		}
		if offset%align != 0 {
			offset += align - offset%align
		}
		fields = append(fields, Field{Name: spec.Name, Type: spec.Type, Offset: offset})
		offset += size
	}

	if offset%maxAlign != 0 {
		offset += maxAlign - offset%maxAlign
	}

	return Ty{Kind: KindStruct, Fields: fields, Size: offset, Align: maxAlign}, nil
}

// CreatePointer wraps pointee as a pointer type; pointers are always 8
// bytes, 8-aligned regardless of what they point to (spec §3).
func (c *Context) CreatePointer(pointee sess.Ref[Ty]) Ty {
	return Ty{Kind: KindPointer, Pointee: pointee, Size: 8, Align: 8}
}

// ReservePlaceholder adds an unresolved slot to the pool and returns its
// ref, for a type that must be referenced before it is built: a
// template instantiation's own ref (so a self-referential pointer field
// can name it) or a pointer field's not-yet-resolved pointee.
func (c *Context) ReservePlaceholder() sess.Ref[Ty] {
	return c.Pool.Add(Ty{Kind: KindPlaceholderUnknown})
}

// ResolvePlaceholder patches a previously reserved slot. Must be called
// at most once per ref (spec §4.4/§5).
func (c *Context) ResolvePlaceholder(ref sess.Ref[Ty], resolved Ty) {
	c.Pool.Set(ref, resolved)
}
