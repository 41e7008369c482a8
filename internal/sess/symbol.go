// Package sess owns the per-compilation session: the string interner and
// the type/template/function arenas that the rest of the toolchain treats
// as append-only singletons (see spec §5). Unlike the Rust original's
// scoped-thread-local SessionGlobals, a Session here is an explicit value
// the caller owns and threads through — the idiomatic Go shape for what
// would otherwise be global mutable state.
package sess

import "sync"

// Symbol is a stable, cheaply-comparable handle for an interned string.
// Two Symbols compare equal iff they were interned from equal strings.
// The zero Symbol is never produced by Intern; Valid reports whether a
// Symbol came from an Interner rather than being a zero value.
type Symbol struct {
	id int
}

func (s Symbol) Valid() bool { return s.id != 0 }

// Interner maps strings to Symbols, once, for the session's lifetime.
// Entries are never removed (spec §5: "the interner is append-only").
type Interner struct {
	mu       sync.Mutex
	strToSym map[string]Symbol
	symToStr []string
}

func NewInterner() *Interner {
	return &Interner{
		strToSym: make(map[string]Symbol),
		symToStr: []string{""}, // index 0 reserved so the zero Symbol is invalid
	}
}

// Intern returns the Symbol for s, creating one if this is the first
// time s has been observed in this session.
func (in *Interner) Intern(s string) Symbol {
	in.mu.Lock()
	defer in.mu.Unlock()
	if sym, ok := in.strToSym[s]; ok {
		return sym
	}
	sym := Symbol{id: len(in.symToStr)}
	in.symToStr = append(in.symToStr, s)
	in.strToSym[s] = sym
	return sym
}

// Text returns the original string for a Symbol. The zero Symbol yields
// "". Panics if the Symbol's id is beyond this Interner's table; a
// Symbol from another Interner whose id is in range is not detected and
// yields whatever string this Interner holds at that id.
func (in *Interner) Text(sym Symbol) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.symToStr[sym.id]
}
