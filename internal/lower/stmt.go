package lower

import (
	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/types"
)

// lowerBlock lowers a statement list as one nested scope. Nested item
// statements (local struct/function definitions) are registered in a
// pass over the block before any statement is lowered, so forward
// references within the same block resolve (spec §4.6's block
// preprocessing). Only the last statement's result is threaded through
// as the block's value, matching expected.
func (lw *Lowerer) lowerBlock(cg *codegenContext, block *ast.Block, expected sess.Ref[types.Ty]) (result, error) {
	cg.pushScope()
	defer cg.popScope()

	var nestedStructs []*ast.StructDef
	for _, st := range block.Stmts {
		is, ok := st.(*ast.ItemStmt)
		if !ok {
			continue
		}
		sd, ok := is.Item.(*ast.StructDef)
		if !ok || len(sd.TemplateParams) > 0 {
			continue
		}
		nestedStructs = append(nestedStructs, sd)
	}
	if err := lw.registerStructLayouts(nestedStructs); err != nil {
		return result{}, err
	}

	for _, st := range block.Stmts {
		if is, ok := st.(*ast.ItemStmt); ok {
			if err := lw.preprocessNestedItem(cg, is.Item); err != nil {
				return result{}, err
			}
		}
	}

	voidRef := lw.primitiveRef("void")
	last := voidResult(cg)
	for i, st := range block.Stmts {
		// Non-last statements discard whatever they evaluate to, so
		// they're lowered in explicit void position (an if-expression
		// used there needs no else-arm); the last statement gets the
		// block's real expected type.
		stExpected := voidRef
		if i == len(block.Stmts)-1 {
			stExpected = expected
		}
		res, err := lw.lowerStmt(cg, st, stExpected)
		if err != nil {
			return result{}, err
		}
		if res.returning {
			return res, nil
		}
		if i == len(block.Stmts)-1 {
			last = res
		}
	}
	return last, nil
}

func (lw *Lowerer) lowerStmt(cg *codegenContext, st ast.Stmt, expected sess.Ref[types.Ty]) (result, error) {
	switch s := st.(type) {
	case *ast.SemicolonStmt:
		return voidResult(cg), nil

	case *ast.LocalBindingStmt:
		var declared sess.Ref[types.Ty]
		if s.Type != nil {
			ref, err := lw.Template.ResolveTypeExpr(lw.Types, s.Type)
			if err != nil {
				return result{}, err
			}
			declared = ref
		}
		var bound result
		if s.Expr != nil {
			r, err := lw.lowerExpr(cg, s.Expr, declared)
			if err != nil {
				return result{}, err
			}
			if r.returning {
				return r, nil
			}
			bound = r
		} else {
			bound = result{ty: declared}
		}
		cg.bind(s.Name, bound.value, bound.ty)
		return voidResult(cg), nil

	case *ast.ExpressionStmt:
		return lw.lowerExpr(cg, s.Expr, expected)

	case *ast.ReturnStmt:
		if s.Expr == nil {
			cg.emitVoid(&ir.Return{})
			return result{returning: true}, nil
		}
		r, err := lw.lowerExpr(cg, s.Expr, cg.expectedReturn)
		if err != nil {
			return result{}, err
		}
		if r.returning {
			return r, nil
		}
		cg.emitVoid(&ir.Return{Value: r.value})
		return result{returning: true}, nil

	case *ast.BreakStmt:
		if len(cg.loops) == 0 {
			return result{}, resolveErr("break outside of a loop")
		}
		top := cg.loops[len(cg.loops)-1]
		cg.emitVoid(&ir.Jmp{Label: top.end})
		return result{returning: true}, nil

	case *ast.ContinueStmt:
		if len(cg.loops) == 0 {
			return result{}, resolveErr("continue outside of a loop")
		}
		top := cg.loops[len(cg.loops)-1]
		cg.emitVoid(&ir.Jmp{Label: top.begin})
		return result{returning: true}, nil

	case *ast.ItemStmt:
		return voidResult(cg), nil // already registered by lowerBlock's preprocessing pass
	}
	return result{}, typeErr("unrecognized statement form")
}

// preprocessNestedItem registers a struct or function declared inside a
// block. A non-templated struct's layout was already resolved by
// lowerBlock's registerStructLayouts pass over every nested struct in
// the block (run before this, so forward and self-referential pointer
// fields resolve the same way they do at module scope); there is
// nothing left to do for it here. Non-templated functions are lowered
// immediately (their IR function is appended to the Lowerer's
// generated-function list) so later statements in the same block can
// call them. Templated items are only captured, the same as at module
// scope.
func (lw *Lowerer) preprocessNestedItem(cg *codegenContext, item ast.Item) error {
	switch it := item.(type) {
	case *ast.StructDef:
		if len(it.TemplateParams) > 0 {
			lw.Template.RegisterStruct(it, it.TemplateParams, lw.Types.Snapshot())
		}
		return nil

	case *ast.FunctionDef:
		if len(it.TemplateParams) > 0 {
			lw.Template.RegisterFunction(it, it.TemplateParams, lw.Types.Snapshot())
			return nil
		}
		fn, desc, err := lw.lowerFunctionDef(it)
		if err != nil {
			return err
		}
		lw.Generated = append(lw.Generated, fn)
		lw.Funcs.Register(desc)
		return nil
	}
	return typeErr("unrecognized item form")
}
