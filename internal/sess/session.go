package sess

import "github.com/google/uuid"

// Session is the owner of everything spec §5 calls a "session-wide
// singleton": the interner, and (via the types/template/lower packages,
// which embed *Session) the type and template pools. It is created once
// per compilation and dropped at the end; nothing about it is global.
type Session struct {
	ID       uuid.UUID
	Interner *Interner

	counter int // monotonic counter backing mangled IR names (spec §4.6)
}

func New() *Session {
	return &Session{
		ID:       uuid.New(),
		Interner: NewInterner(),
	}
}

func (s *Session) Intern(str string) Symbol { return s.Interner.Intern(str) }
func (s *Session) Text(sym Symbol) string   { return s.Interner.Text(sym) }

// NextID returns the next value in the compiler-wide monotonic counter
// used for IR name mangling (spec §4.6: "base_name ++ __ ++ decimal(counter)").
func (s *Session) NextID() int {
	s.counter++
	return s.counter
}
