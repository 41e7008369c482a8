package asm

import (
	"fmt"
	"strconv"
	"strings"

	"solidc/internal/ir"
	"solidc/internal/sess"
)

var binOpText = map[ir.BinOpKind]string{
	ir.Plus: "+", ir.Minus: "-", ir.Mul: "*", ir.Div: "/", ir.Mod: "mod",
	ir.BitAnd: "&", ir.BitOr: "|", ir.BitLShift: "<<", ir.BitRShift: ">>",
	ir.Equal: "==", ir.NotEqual: "!=", ir.Greater: ">", ir.Lesser: "<",
	ir.GreaterEqual: ">=", ir.LesserEqual: "<=",
}

var unOpText = map[ir.UnOpKind]string{
	ir.BoolNot: "not", ir.SignedNegation: "neg", ir.BitNot: "bitnot",
}

// Printer renders an ir.Module back into the textual format parsed by
// Parser; Print(m) round-trips through Parse up to whitespace and
// comments (spec §4.2, §6). Canonical spacing: single spaces between
// tokens, one statement per line, four-space indent, blank line between
// functions.
type Printer struct {
	sess *sess.Session
}

func NewPrinter(s *sess.Session) *Printer { return &Printer{sess: s} }

func Print(s *sess.Session, m *ir.Module) string {
	return NewPrinter(s).PrintModule(m)
}

func (p *Printer) printType(t ir.Type) string {
	return fmt.Sprintf("(%d %d)", t.Size, t.Align)
}

func (p *Printer) printValue(v ir.Value) string {
	return "%" + p.sess.Text(v.Name)
}

func (p *Printer) printComp(c ir.Comp) string {
	var sb strings.Builder
	switch v := c.(type) {
	case *ir.FunctionCall:
		fmt.Fprintf(&sb, "call %s %d", p.sess.Text(v.Callee), len(v.Args))
		for _, a := range v.Args {
			sb.WriteString(" ")
			sb.WriteString(p.printValue(a))
		}
	case *ir.BinaryOp:
		fmt.Fprintf(&sb, "binop %s %s %s", binOpText[v.Op], p.printValue(v.Lhs), p.printValue(v.Rhs))
	case *ir.UnaryOp:
		fmt.Fprintf(&sb, "unop %s %s", unOpText[v.Op], p.printValue(v.Operand))
	case *ir.Constant:
		fmt.Fprintf(&sb, "const %d", len(v.Bytes))
		for _, b := range v.Bytes {
			sb.WriteString(" ")
			sb.WriteString(strconv.Itoa(int(b)))
		}
	case *ir.Alloc:
		fmt.Fprintf(&sb, "alloc %s", p.printType(v.Type))
	case *ir.Store:
		fmt.Fprintf(&sb, "store %s %s %s", p.printType(v.Type), p.printValue(v.Ptr), p.printValue(v.Value))
	case *ir.Load:
		fmt.Fprintf(&sb, "load %s %s", p.printType(v.Type), p.printValue(v.Ptr))
	case *ir.OffsetStore:
		fmt.Fprintf(&sb, "offsetstore %s %s %s %d", p.printType(v.Type), p.printValue(v.Ptr), p.printValue(v.Value), v.Offset)
	case *ir.OffsetLoad:
		fmt.Fprintf(&sb, "offsetload %s %s %d", p.printType(v.Type), p.printValue(v.Ptr), v.Offset)
	case *ir.Return:
		fmt.Fprintf(&sb, "return %s", p.printValue(v.Value))
	case *ir.If:
		fmt.Fprintf(&sb, "if %s %s", p.printValue(v.Cond), p.sess.Text(v.Label))
	case *ir.Jmp:
		fmt.Fprintf(&sb, "jmp %s", p.sess.Text(v.Label))
	}
	return sb.String()
}

func (p *Printer) PrintFunction(fn *ir.Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s: ", p.sess.Text(fn.Name))
	for _, param := range fn.Params {
		if param.Name.Valid() {
			fmt.Fprintf(&sb, "%%%s := ", p.sess.Text(param.Name))
		}
		sb.WriteString(p.printType(param.Type))
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "-> %s", p.printType(fn.ReturnType))

	labelAt := make(map[int][]sess.Symbol)
	for name, idx := range fn.Labels {
		labelAt[idx] = append(labelAt[idx], name)
	}

	for i, comp := range fn.Comps {
		for _, label := range labelAt[i] {
			fmt.Fprintf(&sb, "\n    :%s", p.sess.Text(label))
		}
		sb.WriteString("\n    ")
		if name, ok := ir.Result(comp); ok && name.Valid() {
			fmt.Fprintf(&sb, "%%%s := ", p.sess.Text(name))
		}
		sb.WriteString(p.printComp(comp))
	}
	// A label pointing past the last computation (e.g. the end of a loop)
	// has nothing to attach to inline; spec §4.1 allows a label to map to
	// len(comps), one past the end.
	for _, label := range labelAt[len(fn.Comps)] {
		fmt.Fprintf(&sb, "\n    :%s", p.sess.Text(label))
	}
	sb.WriteString("\nendfn")
	return sb.String()
}

func (p *Printer) PrintModule(m *ir.Module) string {
	var sb strings.Builder
	for _, fn := range m.Functions {
		sb.WriteString(p.PrintFunction(fn))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
