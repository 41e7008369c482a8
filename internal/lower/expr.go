package lower

import (
	"math"

	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/solerr"
	"solidc/internal/types"
)

// lowerExpr lowers e, threading expected through to literal/if/call
// lowering so they can pick the right width and checking the final
// result against it when it's set (a zero sess.Ref[types.Ty] — Valid()
// false — means "no constraint", matching Pool's reserved-zero-index
// convention).
func (lw *Lowerer) lowerExpr(cg *codegenContext, e ast.Expr, expected sess.Ref[types.Ty]) (result, error) {
	res, err := lw.lowerExprInner(cg, e, expected)
	if err != nil {
		return result{}, err
	}
	if res.returning {
		return res, nil
	}
	// A void expectation means "this is a statement context; whatever
	// value results is discarded" (spec §4.6: "value used only if this
	// is the last statement of a block expecting a non-void value"), not
	// a real type constraint — there's no void literal to mismatch
	// against, so skip the check rather than rejecting a perfectly
	// ordinary non-void trailing expression in void position.
	if expected.Valid() && expected != lw.primitiveRef("void") && res.ty != expected {
		return result{}, typeErr("expression has unexpected type")
	}
	return res, nil
}

func (lw *Lowerer) lowerExprInner(cg *codegenContext, e ast.Expr, expected sess.Ref[types.Ty]) (result, error) {
	switch ex := e.(type) {
	case *ast.IdentExpr:
		return lw.lowerIdent(cg, ex)
	case *ast.IntLiteralExpr:
		return lw.lowerIntLiteral(cg, ex, expected)
	case *ast.BoolLiteralExpr:
		return lw.lowerBoolLiteral(cg, ex)
	case *ast.UnaryExpr:
		return lw.lowerUnary(cg, ex)
	case *ast.BinaryExpr:
		return lw.lowerBinary(cg, ex)
	case *ast.LogicalExpr:
		return lw.lowerLogical(cg, ex)
	case *ast.IfExpr:
		return lw.lowerIf(cg, ex, expected)
	case *ast.WhileExpr:
		return lw.lowerWhile(cg, ex)
	case *ast.BlockExpr:
		return lw.lowerBlock(cg, ex.Block, expected)
	case *ast.CallExpr:
		return lw.lowerCall(cg, ex)
	}
	return result{}, typeErr("unrecognized expression form")
}

func (lw *Lowerer) lowerIdent(cg *codegenContext, e *ast.IdentExpr) (result, error) {
	name := e.Path[len(e.Path)-1]
	b, ok := cg.resolve(name)
	if !ok {
		return result{}, resolveErr("unknown identifier %q", lw.Sess.Text(name))
	}
	return result{value: b.value, ty: b.ty}, nil
}

func (lw *Lowerer) lowerIntLiteral(cg *codegenContext, e *ast.IntLiteralExpr, expected sess.Ref[types.Ty]) (result, error) {
	target := expected
	if !target.Valid() {
		target = lw.primitiveRef("i32")
	}
	ty := lw.Types.Pool.Get(target)
	if ty.Kind != types.KindPrimitive || !types.IsInteger(ty.Primitive) {
		return result{}, typeErr("integer literal requires an integer type")
	}

	if e.Value > math.MaxInt64 {
		return result{}, typeErr("integer literal %d out of range for its type", e.Value)
	}
	val := int64(e.Value)
	if e.Negative {
		val = -val
	}
	lo, hi := types.IntRange(ty.Primitive)
	if val < lo || val > hi {
		return result{}, typeErr("integer literal %d out of range for its type", val)
	}

	width := types.ByteWidth(ty.Primitive)
	bytes := make([]byte, width)
	u := uint64(val)
	for i := uint64(0); i < width; i++ {
		bytes[i] = byte(u >> (8 * i))
	}
	v := cg.emit(&ir.Constant{Bytes: bytes})
	return result{value: v, ty: target}, nil
}

func (lw *Lowerer) lowerBoolLiteral(cg *codegenContext, e *ast.BoolLiteralExpr) (result, error) {
	boolRef := lw.primitiveRef("bool")
	b := byte(0)
	if e.Value {
		b = 1
	}
	v := cg.emit(&ir.Constant{Bytes: []byte{b}})
	return result{value: v, ty: boolRef}, nil
}

func (lw *Lowerer) lowerUnary(cg *codegenContext, e *ast.UnaryExpr) (result, error) {
	operand, err := lw.lowerExpr(cg, e.Operand, sess.Ref[types.Ty]{})
	if err != nil {
		return result{}, err
	}
	if operand.returning {
		return operand, nil
	}
	ty := lw.Types.Pool.Get(operand.ty)

	var op ir.UnOpKind
	switch e.Op {
	case ast.UnaryNot:
		if ty.Kind != types.KindPrimitive || ty.Primitive != types.Bool {
			return result{}, typeErr("operator ! requires a bool operand")
		}
		op = ir.BoolNot
	case ast.UnaryNeg:
		if ty.Kind != types.KindPrimitive || !types.IsInteger(ty.Primitive) || !types.IsSigned(ty.Primitive) {
			return result{}, typeErr("unary - requires a signed integer operand")
		}
		op = ir.SignedNegation
	case ast.UnaryBitNot:
		if ty.Kind != types.KindPrimitive || !types.IsInteger(ty.Primitive) {
			return result{}, typeErr("operator ~ requires an integer operand")
		}
		op = ir.BitNot
	}

	v := cg.emit(&ir.UnaryOp{Op: op, Operand: operand.value})
	return result{value: v, ty: operand.ty}, nil
}

func binOpIsComparison(op ast.BinaryOp) bool {
	switch op {
	case ast.BinEqual, ast.BinNotEqual, ast.BinGreater, ast.BinLesser, ast.BinGreaterEqual, ast.BinLesserEqual:
		return true
	}
	return false
}

var astBinOpToIR = map[ast.BinaryOp]ir.BinOpKind{
	ast.BinPlus: ir.Plus, ast.BinMinus: ir.Minus, ast.BinMul: ir.Mul, ast.BinDiv: ir.Div, ast.BinMod: ir.Mod,
	ast.BinBitAnd: ir.BitAnd, ast.BinBitOr: ir.BitOr, ast.BinBitLShift: ir.BitLShift, ast.BinBitRShift: ir.BitRShift,
	ast.BinEqual: ir.Equal, ast.BinNotEqual: ir.NotEqual, ast.BinGreater: ir.Greater, ast.BinLesser: ir.Lesser,
	ast.BinGreaterEqual: ir.GreaterEqual, ast.BinLesserEqual: ir.LesserEqual,
}

func (lw *Lowerer) lowerBinary(cg *codegenContext, e *ast.BinaryExpr) (result, error) {
	lhs, err := lw.lowerExpr(cg, e.Lhs, sess.Ref[types.Ty]{})
	if err != nil {
		return result{}, err
	}
	if lhs.returning {
		return lhs, nil
	}
	rhs, err := lw.lowerExpr(cg, e.Rhs, lhs.ty)
	if err != nil {
		return result{}, err
	}
	if rhs.returning {
		return rhs, nil
	}

	isCmp := binOpIsComparison(e.Op)
	if !isCmp {
		lty := lw.Types.Pool.Get(lhs.ty)
		if lty.Kind != types.KindPrimitive || !types.IsInteger(lty.Primitive) {
			return result{}, typeErr("binary operator requires integer operands")
		}
	}

	v := cg.emit(&ir.BinaryOp{Op: astBinOpToIR[e.Op], Lhs: lhs.value, Rhs: rhs.value})
	resTy := lhs.ty
	if isCmp {
		resTy = lw.primitiveRef("bool")
	}
	return result{value: v, ty: resTy}, nil
}

func (lw *Lowerer) lowerLogical(cg *codegenContext, e *ast.LogicalExpr) (result, error) {
	boolRef := lw.primitiveRef("bool")
	lhs, err := lw.lowerExpr(cg, e.Lhs, boolRef)
	if err != nil {
		return result{}, err
	}
	if lhs.returning {
		return lhs, nil
	}
	rhs, err := lw.lowerExpr(cg, e.Rhs, boolRef)
	if err != nil {
		return result{}, err
	}
	if rhs.returning {
		return rhs, nil
	}
	op := ir.BitAnd
	if e.Op == ast.LogicalOr {
		op = ir.BitOr
	}
	v := cg.emit(&ir.BinaryOp{Op: op, Lhs: lhs.value, Rhs: rhs.value})
	return result{value: v, ty: boolRef}, nil
}

// lowerIf follows the shape spec §4.6 lays out: compute the condition,
// negate it, branch past the then-arm when the negation holds, then
// (if an else-arm exists) jump past it after the then-arm runs. When
// the if-expression is used for its value, both arms store into a
// stack slot reserved before the branch so either arm can reach it
// (the IR has no phi/merge instruction).
func (lw *Lowerer) lowerIf(cg *codegenContext, e *ast.IfExpr, expected sess.Ref[types.Ty]) (result, error) {
	boolRef := lw.primitiveRef("bool")
	voidRef := lw.primitiveRef("void")

	cond, err := lw.lowerExpr(cg, e.Cond, boolRef)
	if err != nil {
		return result{}, err
	}
	if cond.returning {
		return cond, nil
	}

	// expected == voidRef means "this result is discarded" (an explicit
	// signal from lowerBlock for non-last statements and void bodies);
	// anything else — including the zero/"unconstrained" ref used when
	// inferring a let-binding's type — means a real value is wanted, so
	// an else-less if is illegal there (spec §4.6).
	needsValue := expected != voidRef
	if needsValue && e.Else == nil {
		return result{}, typeErr("if-expression without else cannot yield a value")
	}

	if needsValue && !expected.Valid() {
		// The caller wants a value but hasn't pinned a type (e.g.
		// inferring a let-binding with no type annotation). The slot
		// this if-expression stores into has to be sized before the
		// branch is emitted, so discover the arms' type by lowering the
		// then-arm (falling back to the else-arm if the then-arm always
		// returns) in a throwaway clone first — the same trick overload
		// resolution uses to look before committing.
		trial := cg.clone()
		trialThen, err := lw.lowerBlock(trial, e.Then, sess.Ref[types.Ty]{})
		if err != nil {
			return result{}, err
		}
		valueTy := trialThen.ty
		if trialThen.returning {
			trialElse, err := lw.lowerBlock(trial, e.Else, sess.Ref[types.Ty]{})
			if err != nil {
				return result{}, err
			}
			valueTy = trialElse.ty
		}
		expected = valueTy
	}

	var slot ir.Value
	var slotType ir.Type
	if needsValue {
		size, align, err := lw.Types.SizeAlign(expected)
		if err != nil {
			return result{}, err
		}
		slotType = ir.Type{Size: size, Align: align}
		slot = cg.emit(&ir.Alloc{Type: slotType})
	}

	negCond := cg.emit(&ir.UnaryOp{Op: ir.BoolNot, Operand: cond.value})
	ifEnd := lw.freshLabelName()
	cg.emitVoid(&ir.If{Cond: negCond, Label: ifEnd})

	thenRes, err := lw.lowerBlock(cg, e.Then, expected)
	if err != nil {
		return result{}, err
	}
	if needsValue && !thenRes.returning {
		cg.emitVoid(&ir.Store{Type: slotType, Ptr: slot, Value: thenRes.value})
	}

	var elseEnd sess.Symbol
	if e.Else != nil {
		elseEnd = lw.freshLabelName()
		cg.emitVoid(&ir.Jmp{Label: elseEnd})
	}
	cg.placeLabel(ifEnd)

	if e.Else == nil {
		return voidResult(cg), nil
	}

	elseRes, err := lw.lowerBlock(cg, e.Else, expected)
	if err != nil {
		return result{}, err
	}
	if needsValue && !elseRes.returning {
		cg.emitVoid(&ir.Store{Type: slotType, Ptr: slot, Value: elseRes.value})
	}
	cg.placeLabel(elseEnd)

	if thenRes.returning && elseRes.returning {
		return result{returning: true}, nil
	}
	if !needsValue {
		return voidResult(cg), nil
	}
	if !thenRes.returning && !elseRes.returning && thenRes.ty != elseRes.ty {
		return result{}, typeErr("if and else branches have differing types")
	}
	loaded := cg.emit(&ir.Load{Type: slotType, Ptr: slot})
	return result{value: loaded, ty: expected}, nil
}

// lowerWhile emits exactly the comp-stream shape spec §4.6's testable
// while-loop scenario describes: label begin, condition, negated
// condition, conditional branch to end, body (expected void), jump
// back to begin, label end.
func (lw *Lowerer) lowerWhile(cg *codegenContext, e *ast.WhileExpr) (result, error) {
	begin := lw.freshLabelName()
	end := lw.freshLabelName()
	boolRef := lw.primitiveRef("bool")
	voidRef := lw.primitiveRef("void")

	cg.placeLabel(begin)
	cond, err := lw.lowerExpr(cg, e.Cond, boolRef)
	if err != nil {
		return result{}, err
	}
	if cond.returning {
		return cond, nil
	}
	negCond := cg.emit(&ir.UnaryOp{Op: ir.BoolNot, Operand: cond.value})
	cg.emitVoid(&ir.If{Cond: negCond, Label: end})

	cg.loops = append(cg.loops, loopLabels{begin: begin, end: end})
	_, err = lw.lowerBlock(cg, e.Body, voidRef)
	cg.loops = cg.loops[:len(cg.loops)-1]
	if err != nil {
		return result{}, err
	}

	cg.emitVoid(&ir.Jmp{Label: begin})
	cg.placeLabel(end)
	return voidResult(cg), nil
}

// lowerCall implements spec §4.6's overload-resolution algorithm:
// collect visible candidates of matching arity, speculatively lower
// each candidate's arguments against its parameter types in a cloned
// codegen context, discard candidates whose arguments don't type-check,
// and commit the unique survivor. Templated calls (TemplateArgs set)
// skip overload search entirely: the template argument list pins the
// exact instantiation.
func (lw *Lowerer) lowerCall(cg *codegenContext, e *ast.CallExpr) (result, error) {
	if len(e.TemplateArgs) > 0 {
		return lw.lowerTemplatedCall(cg, e)
	}

	candidates := lw.Funcs.Candidates(e.Callee)

	type survivor struct {
		desc FuncDescriptor
		cg   *codegenContext
		args []ir.Value
	}
	var survivors []survivor

	for _, cand := range candidates {
		if len(cand.Params) != len(e.Args) {
			continue
		}
		trial := cg.clone()
		args := make([]ir.Value, len(e.Args))
		ok := true
		for i, argExpr := range e.Args {
			ares, err := lw.lowerExpr(trial, argExpr, cand.Params[i])
			if err != nil {
				ok = false
				break
			}
			if ares.returning {
				return ares, nil
			}
			args[i] = ares.value
		}
		if !ok {
			continue
		}
		survivors = append(survivors, survivor{desc: cand, cg: trial, args: args})
	}

	if len(survivors) == 0 {
		return result{}, overloadErr("no matching function for call to %q", calleeName(lw, e.Callee))
	}
	if len(survivors) > 1 {
		return result{}, overloadErr("ambiguous call to %q", calleeName(lw, e.Callee))
	}

	chosen := survivors[0]
	*cg = *chosen.cg
	v := cg.emit(&ir.FunctionCall{Callee: chosen.desc.IRName, Args: chosen.args})
	return result{value: v, ty: chosen.desc.ReturnType}, nil
}

func calleeName(lw *Lowerer, path []sess.Symbol) string {
	return lw.Sess.Text(path[len(path)-1])
}

func overloadErr(format string, args ...interface{}) error {
	return solerr.New(solerr.OverloadError, solerr.Location{}, format, args...)
}
