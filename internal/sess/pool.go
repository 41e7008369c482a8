package sess

// Pool is an arena of T, referenced by opaque handles (Ref). Types (and
// templates) live in a Pool so that copying a handle during template
// elaboration is cheap, and so a PlaceholderUnknown slot can be patched
// in place once it resolves — grounded on original_source's
// solidlang/context/pool/mod.rs.
type Pool[T any] struct {
	values []T
}

// Ref is a handle into a Pool[T]. The zero Ref is never returned by Add.
type Ref[T any] struct {
	index int
}

func (r Ref[T]) Valid() bool { return r.index != 0 }

func NewPool[T any]() *Pool[T] {
	var zero T
	return &Pool[T]{values: []T{zero}} // index 0 reserved, mirrors Symbol
}

func (p *Pool[T]) Add(v T) Ref[T] {
	p.values = append(p.values, v)
	return Ref[T]{index: len(p.values) - 1}
}

func (p *Pool[T]) Get(r Ref[T]) T {
	return p.values[r.index]
}

// Set overwrites the slot named by r. Used exactly once per ref, to patch
// a PlaceholderUnknown with its resolved Ty (spec §4.4/§5: "may be
// written exactly once when the placeholder is resolved").
func (p *Pool[T]) Set(r Ref[T], v T) {
	p.values[r.index] = v
}

// Len reports how many live entries the pool holds (excluding the
// reserved zero slot).
func (p *Pool[T]) Len() int { return len(p.values) - 1 }
