package asm

import (
	"strconv"

	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/solerr"
)

// Parser (the "IR assembler") turns IR text into an ir.Module, per the
// grammar in spec §4.2. Grounded on the cursor/peek style of
// internal/lexer/scanner.go and the recursive-descent shape of
// original_source/ir/assembly/assembler.rs.
type Parser struct {
	sess   *sess.Session
	toks   []Token
	pos    int
	src    string
	expect []string // accumulated "expected" set for the next error, mirrors assembler.rs's `expected`
}

func NewParser(s *sess.Session, src string) *Parser {
	return &Parser{
		sess: s,
		toks: NewScanner(src).ScanAll(),
		src:  src,
	}
}

func Parse(s *sess.Session, src string) (*ir.Module, error) {
	return NewParser(s, src).ParseModule()
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekAt(n int) Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

// checkAssign reports whether the upcoming tokens spell ":=" — a Colon
// token immediately followed by a Word token whose text is "=". The
// tokenizer has no single token for ":=" since ':' and '=' belong to
// different character classes (spec §4.2's grammar word-chars include
// '=' but not ':').
func (p *Parser) checkAssign() bool {
	return p.peek().Kind == TokenColon && p.peekAt(1).Kind == TokenWord && p.peekAt(1).Text == "="
}

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.expect = nil
	return t
}

func (p *Parser) errHere(format string, args ...interface{}) error {
	t := p.peek()
	return solerr.New(solerr.IRError, solerr.Location{Offset: t.Offset, Line: t.Line}, format, args...)
}

func (p *Parser) errUnexpected() error {
	t := p.peek()
	return solerr.New(solerr.IRError, solerr.Location{Offset: t.Offset, Line: t.Line},
		"unexpected token %q", tokenText(t))
}

func tokenText(t Token) string {
	if t.Kind == TokenEOF {
		return "<eof>"
	}
	return t.Text
}

func (p *Parser) checkKind(k TokenKind) bool {
	p.expect = append(p.expect, string(k))
	return p.peek().Kind == k
}

func (p *Parser) expectKind(k TokenKind) (Token, error) {
	if !p.checkKind(k) {
		return Token{}, p.errHere("expected %s, got %q", k, tokenText(p.peek()))
	}
	return p.advance(), nil
}

func (p *Parser) checkKeyword(kw string) bool {
	p.expect = append(p.expect, kw)
	return p.peek().Kind == TokenWord && p.peek().Text == kw
}

func (p *Parser) parseIntU64() (uint64, error) {
	t, err := p.expectKind(TokenInteger)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseUint(t.Text, 10, 64)
	if perr != nil {
		return 0, solerr.New(solerr.IRError, solerr.Location{Offset: t.Offset, Line: t.Line}, "integer does not fit in 64 bits: %q", t.Text)
	}
	return v, nil
}

func (p *Parser) parseIntU8() (byte, error) {
	t, err := p.expectKind(TokenInteger)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseUint(t.Text, 10, 8)
	if perr != nil {
		return 0, solerr.New(solerr.IRError, solerr.Location{Offset: t.Offset, Line: t.Line}, "integer does not fit in 8 bits: %q", t.Text)
	}
	return byte(v), nil
}

func (p *Parser) parseType() (ir.Type, error) {
	if _, err := p.expectKind(TokenLParen); err != nil {
		return ir.Type{}, err
	}
	size, err := p.parseIntU64()
	if err != nil {
		return ir.Type{}, err
	}
	align, err := p.parseIntU64()
	if err != nil {
		return ir.Type{}, err
	}
	if _, err := p.expectKind(TokenRParen); err != nil {
		return ir.Type{}, err
	}
	return ir.Type{Size: size, Align: align}, nil
}

func (p *Parser) parseValue() (ir.Value, error) {
	if _, err := p.expectKind(TokenPercent); err != nil {
		return ir.Value{}, err
	}
	name, err := p.expectKind(TokenWord)
	if err != nil {
		return ir.Value{}, err
	}
	return ir.Value{Name: p.sess.Intern(name.Text)}, nil
}

func (p *Parser) parseLabelRef() (sess.Symbol, error) {
	t := p.peek()
	if t.Kind == TokenWord {
		p.advance()
		return p.sess.Intern(t.Text), nil
	}
	if t.Kind == TokenInteger {
		p.advance()
		return p.sess.Intern(t.Text), nil
	}
	return sess.Symbol{}, p.errUnexpected()
}

var binOps = map[string]ir.BinOpKind{
	"+": ir.Plus, "-": ir.Minus, "*": ir.Mul, "/": ir.Div, "mod": ir.Mod,
	"&": ir.BitAnd, "|": ir.BitOr, "<<": ir.BitLShift, ">>": ir.BitRShift,
	"==": ir.Equal, "!=": ir.NotEqual, ">": ir.Greater, "<": ir.Lesser,
	">=": ir.GreaterEqual, "<=": ir.LesserEqual,
}

var unOps = map[string]ir.UnOpKind{
	"not": ir.BoolNot, "neg": ir.SignedNegation, "bitnot": ir.BitNot,
}

// parseComp parses one computation (label definitions are handled by
// parseStmt). The caller binds the result to the right value name.
func (p *Parser) parseComp() (ir.Comp, error) {
	switch {
	case p.checkKeyword("call"):
		p.advance()
		nameTok, err := p.expectKind(TokenWord)
		if err != nil {
			return nil, err
		}
		argc, err := p.parseIntU64()
		if err != nil {
			return nil, err
		}
		args := make([]ir.Value, 0, argc)
		for i := uint64(0); i < argc; i++ {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return &ir.FunctionCall{Callee: p.sess.Intern(nameTok.Text), Args: args}, nil

	case p.checkKeyword("binop"):
		p.advance()
		opTok := p.peek()
		kind, ok := binOps[opTok.Text]
		if !ok {
			return nil, p.errUnexpected()
		}
		p.advance()
		lhs, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		rhs, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ir.BinaryOp{Op: kind, Lhs: lhs, Rhs: rhs}, nil

	case p.checkKeyword("unop"):
		p.advance()
		opTok := p.peek()
		kind, ok := unOps[opTok.Text]
		if !ok {
			return nil, p.errUnexpected()
		}
		p.advance()
		operand, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ir.UnaryOp{Op: kind, Operand: operand}, nil

	case p.checkKeyword("const"):
		p.advance()
		n, err := p.parseIntU64()
		if err != nil {
			return nil, err
		}
		bytes := make([]byte, 0, n)
		for i := uint64(0); i < n; i++ {
			b, err := p.parseIntU8()
			if err != nil {
				return nil, err
			}
			bytes = append(bytes, b)
		}
		return &ir.Constant{Bytes: bytes}, nil

	case p.checkKeyword("alloc"):
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ir.Alloc{Type: t}, nil

	case p.checkKeyword("store"):
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ptr, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ir.Store{Type: t, Ptr: ptr, Value: val}, nil

	case p.checkKeyword("load"):
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ptr, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ir.Load{Type: t, Ptr: ptr}, nil

	case p.checkKeyword("offsetstore"):
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ptr, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		off, err := p.parseIntU64()
		if err != nil {
			return nil, err
		}
		return &ir.OffsetStore{Type: t, Ptr: ptr, Value: val, Offset: off}, nil

	case p.checkKeyword("offsetload"):
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ptr, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		off, err := p.parseIntU64()
		if err != nil {
			return nil, err
		}
		return &ir.OffsetLoad{Type: t, Ptr: ptr, Offset: off}, nil

	case p.checkKeyword("return"):
		p.advance()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &ir.Return{Value: v}, nil

	case p.checkKeyword("if"):
		p.advance()
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		label, err := p.parseLabelRef()
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: v, Label: label}, nil

	case p.checkKeyword("jmp"):
		p.advance()
		label, err := p.parseLabelRef()
		if err != nil {
			return nil, err
		}
		return &ir.Jmp{Label: label}, nil
	}

	return nil, p.errUnexpected()
}

// parseStmt parses one line inside a function body: a label definition
// (":" ident), or an optional "%ident :=" binding followed by a comp.
func (p *Parser) parseStmt() (label *sess.Symbol, boundName *sess.Symbol, comp ir.Comp, err error) {
	if p.checkKind(TokenColon) {
		p.advance()
		nameTok, err := p.expectKind(TokenWord)
		if err != nil {
			return nil, nil, nil, err
		}
		sym := p.sess.Intern(nameTok.Text)
		return &sym, nil, nil, nil
	}

	if p.checkKind(TokenPercent) {
		// Could be the start of a binding ("%name :=") — look ahead.
		save := p.pos
		p.advance()
		nameTok, err := p.expectKind(TokenWord)
		if err != nil {
			return nil, nil, nil, err
		}
		if p.checkAssign() {
			p.advance() // ":"
			p.advance() // "="
			sym := p.sess.Intern(nameTok.Text)
			c, err := p.parseComp()
			if err != nil {
				return nil, nil, nil, err
			}
			return nil, &sym, c, nil
		}
		// Not a binding after all — rewind and parse as a plain comp.
		p.pos = save
	}

	c, err := p.parseComp()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, nil, c, nil
}

func bindResult(c ir.Comp, name sess.Symbol) {
	switch v := c.(type) {
	case *ir.FunctionCall:
		v.Result = name
	case *ir.BinaryOp:
		v.Result = name
	case *ir.UnaryOp:
		v.Result = name
	case *ir.Constant:
		v.Result = name
	case *ir.Alloc:
		v.Result = name
	case *ir.Load:
		v.Result = name
	case *ir.OffsetLoad:
		v.Result = name
	}
}

func (p *Parser) parseFunction() (*ir.Function, error) {
	if _, err := p.expectKind(TokenWord); err != nil { // "fn" already matched by caller
		return nil, err
	}
	nameTok, err := p.expectKind(TokenWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(TokenColon); err != nil {
		return nil, err
	}

	var params []ir.Param
	for !p.checkKind(TokenArrow) {
		var name sess.Symbol
		save := p.pos
		if p.checkKind(TokenPercent) {
			p.advance()
			nmTok, err := p.expectKind(TokenWord)
			if err != nil {
				return nil, err
			}
			if p.checkAssign() {
				p.advance() // ":"
				p.advance() // "="
				name = p.sess.Intern(nmTok.Text)
			} else {
				p.pos = save
			}
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ir.Param{Name: name, Type: t})
	}
	p.advance() // "->"

	retType, err := p.parseType()
	if err != nil {
		return nil, err
	}

	fn := &ir.Function{
		Name:       p.sess.Intern(nameTok.Text),
		Params:     params,
		ReturnType: retType,
		Labels:     map[sess.Symbol]int{},
	}

	for !p.checkKeyword("endfn") {
		label, bound, comp, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		if label != nil {
			fn.Labels[*label] = len(fn.Comps)
			continue
		}
		if bound != nil {
			bindResult(comp, *bound)
		}
		fn.Comps = append(fn.Comps, comp)
	}
	p.advance() // "endfn"

	return fn, nil
}

func (p *Parser) ParseModule() (*ir.Module, error) {
	mod := &ir.Module{}
	for p.peek().Kind != TokenEOF {
		if !p.checkKeyword("fn") {
			return nil, p.errUnexpected()
		}
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		mod.Functions = append(mod.Functions, fn)
	}
	return mod, nil
}
