package lower

import (
	"fmt"
	"strings"

	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/template"
	"solidc/internal/types"
)

// LowerModule drives spec §4.6's two-phase pipeline over a whole parsed
// module: first every item is preprocessed (templates captured,
// non-templated struct layouts resolved), then every non-templated
// function body is lowered in declaration order. A function's
// descriptor is registered only after its own body has been lowered, so
// a call resolves only to functions declared earlier in the module: a
// call to a function declared later, or a function calling itself, is
// reported as "no matching function".
func LowerModule(s *sess.Session, mod *ast.Module) (*ir.Module, error) {
	lw := NewLowerer(s)

	if err := lw.PreprocessModule(mod.Items); err != nil {
		return nil, err
	}
	return lw.LowerFunctionBodies(mod)
}

// PreprocessModule runs phase 1 over every item in mod.Items: templated
// structs/functions are only captured (AST + scope snapshot), and every
// non-templated struct's layout is resolved by registerStructLayouts'
// topological fix-up pass (spec §4.4) so declaration order between
// struct items never matters. Exported so internal/driver can call it
// directly — compilation is a synchronous function of the parsed module
// (spec §5), so there is no fan-out here to merge afterward.
func (lw *Lowerer) PreprocessModule(items []ast.Item) error {
	var structDefs []*ast.StructDef
	for _, item := range items {
		switch it := item.(type) {
		case *ast.StructDef:
			if len(it.TemplateParams) > 0 {
				lw.Template.RegisterStruct(it, it.TemplateParams, lw.Types.Snapshot())
				continue
			}
			structDefs = append(structDefs, it)

		case *ast.FunctionDef:
			if len(it.TemplateParams) > 0 {
				lw.Template.RegisterFunction(it, it.TemplateParams, lw.Types.Snapshot())
			}

		default:
			return typeErr("unrecognized top-level item form")
		}
	}
	return lw.registerStructLayouts(structDefs)
}

// pendingPointerPatch records a pointer field built against a
// placeholder pointee — one not yet resolvable, either because it
// forward-references a struct later in the same batch or because it is
// the enclosing struct itself (a self-referential pointer, the normal
// shape of a linked structure). Patched once every struct in the batch
// has a final ref (see patchPendingPointers).
type pendingPointerPatch struct {
	ref     sess.Ref[types.Ty]
	pointee ast.TypeExpr
}

// registerStructLayouts lays out every struct in defs, per spec §4.4's
// "recompute layout in topological order" fix-up: a struct's by-value
// field dependencies (other structs named directly in defs) are laid
// out first via recursion, so a struct may reference one declared
// earlier OR later in the same item list. inProgress tracks the
// recursion's current path; finding a struct already on that path means
// a genuine by-value cycle, raised as LayoutError rather than the
// ordinary "unknown type" ResolveError an out-of-order forward
// reference would otherwise produce. Pointer fields never recurse here
// — a pointer's layout (8 bytes, 8-aligned) never depends on its
// pointee's, so a cycle that only closes through a pointer field is not
// a cycle at all, per spec §4.4 — instead every pointer field gets a
// placeholder pointee up front, patched in one final pass once the
// whole batch (and so every name a pointee could name) is resolved.
func (lw *Lowerer) registerStructLayouts(defs []*ast.StructDef) error {
	byName := make(map[sess.Symbol]*ast.StructDef, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	inProgress := make(map[sess.Symbol]bool, len(defs))
	var pending []pendingPointerPatch
	for _, def := range defs {
		if err := lw.resolveStructLayout(def, byName, inProgress, &pending); err != nil {
			return err
		}
	}
	return lw.patchPendingPointers(pending)
}

func (lw *Lowerer) resolveStructLayout(def *ast.StructDef, byName map[sess.Symbol]*ast.StructDef, inProgress map[sess.Symbol]bool, pending *[]pendingPointerPatch) error {
	if _, ok := lw.Types.Resolve([]sess.Symbol{def.Name}); ok {
		return nil // already laid out, reached earlier via a sibling's field
	}
	if inProgress[def.Name] {
		return layoutErr("struct %q has a cycle through a by-value field", lw.Sess.Text(def.Name))
	}
	inProgress[def.Name] = true
	defer delete(inProgress, def.Name)

	specs := make([]types.FieldSpec, 0, len(def.Fields))
	for _, f := range def.Fields {
		ref, err := lw.resolveFieldTypeForLayout(f.Type, byName, inProgress, pending)
		if err != nil {
			return err
		}
		specs = append(specs, types.FieldSpec{Name: f.Name, Type: ref})
	}

	built, err := lw.Types.CreateStruct(specs)
	if err != nil {
		return err
	}
	ref := lw.Types.Pool.Add(built)
	lw.Types.Register([]sess.Symbol{def.Name}, ref)
	return nil
}

// resolveFieldTypeForLayout resolves one field's type expression during
// struct-layout registration. A pointer field never forces its pointee
// to be resolved yet — it gets a fresh placeholder ref, recorded in
// pending for patching once the whole batch is registered, so a
// pointer to a not-yet-laid-out sibling (or to the struct currently
// being built) never trips the by-value cycle check. A by-value field
// naming another struct in this same batch is still laid out eagerly,
// via the existing recursive fix-up, since its size does depend on its
// dependency's.
func (lw *Lowerer) resolveFieldTypeForLayout(te ast.TypeExpr, byName map[sess.Symbol]*ast.StructDef, inProgress map[sess.Symbol]bool, pending *[]pendingPointerPatch) (sess.Ref[types.Ty], error) {
	if pt, ok := te.(*ast.PointerType); ok {
		placeholder := lw.Types.ReservePlaceholder()
		*pending = append(*pending, pendingPointerPatch{ref: placeholder, pointee: pt.Pointee})
		return lw.Types.Pool.Add(lw.Types.CreatePointer(placeholder)), nil
	}
	if nt, ok := te.(*ast.NamedType); ok && len(nt.Args) == 0 && len(nt.Path) == 1 {
		if dep, isLocal := byName[nt.Path[0]]; isLocal {
			if err := lw.resolveStructLayout(dep, byName, inProgress, pending); err != nil {
				return sess.Ref[types.Ty]{}, err
			}
		}
	}
	return lw.Template.ResolveTypeExpr(lw.Types, te)
}

// patchPendingPointers resolves every pointer field's real pointee now
// that the whole batch has been registered (so even a self-reference or
// a forward reference to a sibling struct now resolves), and copies
// that type's data into the placeholder slot the pointer field already
// points to.
func (lw *Lowerer) patchPendingPointers(pending []pendingPointerPatch) error {
	for _, p := range pending {
		ref, err := lw.Template.ResolveTypeExpr(lw.Types, p.pointee)
		if err != nil {
			return err
		}
		lw.Types.ResolvePlaceholder(p.ref, lw.Types.Pool.Get(ref))
	}
	return nil
}

// LowerFunctionBodies runs phase 2: every non-templated top-level
// function's body is lowered in declaration order, and each function's
// descriptor is registered as soon as its body is lowered, so only
// earlier functions are visible to a body's calls. Must be called after
// phase 1 (PreprocessModule) completes for the whole module.
func (lw *Lowerer) LowerFunctionBodies(mod *ast.Module) (*ir.Module, error) {
	for _, item := range mod.Items {
		fn, ok := item.(*ast.FunctionDef)
		if !ok || len(fn.TemplateParams) > 0 {
			continue
		}
		irFn, desc, err := lw.lowerFunctionDef(fn)
		if err != nil {
			return nil, err
		}
		lw.Generated = append(lw.Generated, irFn)
		lw.Funcs.Register(desc)
	}
	return &ir.Module{Functions: lw.Generated}, nil
}

// lowerFunctionDef lowers one non-templated function definition (or a
// template instantiation with its type parameters already bound into
// lw.Types' current scope) into an IR function plus its descriptor.
func (lw *Lowerer) lowerFunctionDef(def *ast.FunctionDef) (*ir.Function, FuncDescriptor, error) {
	paramRefs := make([]sess.Ref[types.Ty], len(def.Params))
	for i, p := range def.Params {
		ref, err := lw.Template.ResolveTypeExpr(lw.Types, p.Type)
		if err != nil {
			return nil, FuncDescriptor{}, err
		}
		paramRefs[i] = ref
	}
	retRef, err := lw.Template.ResolveTypeExpr(lw.Types, def.ReturnType)
	if err != nil {
		return nil, FuncDescriptor{}, err
	}

	irName := lw.MangleName(lw.Sess.Text(def.Name))
	cg := newCodegenContext(lw, retRef)

	irParams := make([]ir.Param, len(def.Params))
	for i, p := range def.Params {
		paramName := lw.Sess.Intern(fmt.Sprintf("%s_%d", lw.Sess.Text(p.Name), i))
		size, align, err := lw.Types.SizeAlign(paramRefs[i])
		if err != nil {
			return nil, FuncDescriptor{}, err
		}
		irParams[i] = ir.Param{Name: paramName, Type: ir.Type{Size: size, Align: align}}
		cg.bind(p.Name, ir.Value{Name: paramName}, paramRefs[i])
	}

	bodyRes, err := lw.lowerBlock(cg, def.Body, retRef)
	if err != nil {
		return nil, FuncDescriptor{}, err
	}
	voidRef := lw.primitiveRef("void")
	if !bodyRes.returning {
		if retRef != voidRef {
			if bodyRes.ty != retRef {
				return nil, FuncDescriptor{}, typeErr("function %q body does not yield its declared return type", lw.Sess.Text(def.Name))
			}
			cg.emitVoid(&ir.Return{Value: bodyRes.value})
		} else {
			cg.emitVoid(&ir.Return{})
		}
	}

	retSize, retAlign, err := lw.Types.SizeAlign(retRef)
	if err != nil {
		return nil, FuncDescriptor{}, err
	}

	fn := &ir.Function{
		Name:       irName,
		Params:     irParams,
		ReturnType: ir.Type{Size: retSize, Align: retAlign},
		Comps:      cg.comps,
		Labels:     cg.labels,
	}
	desc := FuncDescriptor{Path: []sess.Symbol{def.Name}, Params: paramRefs, ReturnType: retRef, IRName: irName}
	return fn, desc, nil
}

// lowerTemplatedCall resolves a call expression's template-argument
// list and instantiates (or reuses a memoized instantiation of) the
// named function template, then emits the call directly — the
// template-argument list pins an exact candidate, so there is no
// overload search to run.
func (lw *Lowerer) lowerTemplatedCall(cg *codegenContext, e *ast.CallExpr) (result, error) {
	argRefs := make([]sess.Ref[types.Ty], len(e.TemplateArgs))
	for i, a := range e.TemplateArgs {
		ref, err := lw.Template.ResolveTypeExpr(lw.Types, a)
		if err != nil {
			return result{}, err
		}
		argRefs[i] = ref
	}

	desc, err := lw.instantiateFunctionTemplate(e.Callee, argRefs)
	if err != nil {
		return result{}, err
	}
	if len(desc.Params) != len(e.Args) {
		return result{}, typeErr("templated function %q expects %d argument(s), got %d",
			calleeName(lw, e.Callee), len(desc.Params), len(e.Args))
	}

	args := make([]ir.Value, len(e.Args))
	for i, argExpr := range e.Args {
		ares, err := lw.lowerExpr(cg, argExpr, desc.Params[i])
		if err != nil {
			return result{}, err
		}
		if ares.returning {
			return ares, nil
		}
		args[i] = ares.value
	}

	v := cg.emit(&ir.FunctionCall{Callee: desc.IRName, Args: args})
	return result{value: v, ty: desc.ReturnType}, nil
}

func templateFuncMemoKey(s *sess.Session, path []sess.Symbol, args []sess.Ref[types.Ty]) string {
	var sb strings.Builder
	for i, sym := range path {
		if i > 0 {
			sb.WriteString("::")
		}
		sb.WriteString(s.Text(sym))
	}
	for _, a := range args {
		fmt.Fprintf(&sb, "|%v", a)
	}
	return sb.String()
}

// instantiateFunctionTemplate runs the function half of spec §4.5's
// instantiation algorithm: swap in the template's captured type
// scopes, bind its type parameters, lower the body with those bindings
// in effect, then restore the caller's scopes. Unlike struct
// instantiation this produces a whole IR function, appended to
// lw.Generated the first time a given (path, args) pair is requested.
func (lw *Lowerer) instantiateFunctionTemplate(path []sess.Symbol, args []sess.Ref[types.Ty]) (FuncDescriptor, error) {
	key := templateFuncMemoKey(lw.Sess, path, args)
	if desc, ok := lw.templateFuncMemo[key]; ok {
		return desc, nil
	}

	item, ok := lw.Template.Resolve(path)
	if !ok || item.Kind != template.KindFunction {
		return FuncDescriptor{}, resolveErr("unknown templated function %q", calleeName(lw, path))
	}
	if len(item.Params) != len(args) {
		return FuncDescriptor{}, typeErr("templated function %q expects %d type argument(s), got %d",
			calleeName(lw, path), len(item.Params), len(args))
	}

	saved := lw.Types.Swap(item.SavedScopes)
	lw.Types.StartScope()
	for i, param := range item.Params {
		lw.Types.Register([]sess.Symbol{param}, args[i])
	}

	fn, desc, err := lw.lowerFunctionDef(item.FunctionDef)

	lw.Types.CloseScope()
	lw.Types.Swap(saved)

	if err != nil {
		return FuncDescriptor{}, err
	}

	lw.Generated = append(lw.Generated, fn)
	lw.templateFuncMemo[key] = desc
	return desc, nil
}
