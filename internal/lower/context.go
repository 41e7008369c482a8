// Package lower translates a parsed ast.Module into an ir.Module (spec
// §4.6). It owns the type, template, and function scope stacks used
// during a single compilation and drives the two-phase "preprocess
// items, then lower function bodies" pipeline spec §4.6 describes.
// Grounded on original_source/solidlang/lowerer/mod.rs and codegen/mod.rs,
// with the per-function codegen context translated from a Rust struct
// of Vecs into a Go struct holding slices and maps (still cheaply
// copyable by value-ish semantics via Clone, as §9's design note on
// speculative overload resolution requires).
package lower

import (
	"fmt"

	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/solerr"
	"solidc/internal/template"
	"solidc/internal/types"
)

// FuncDescriptor is the post-lowering function descriptor from spec §3:
// its source path, parameter/return Ty refs, and the mangled IR-level
// name call sites must use.
type FuncDescriptor struct {
	Path       []sess.Symbol
	Params     []sess.Ref[types.Ty]
	ReturnType sess.Ref[types.Ty]
	IRName     sess.Symbol
}

type funcScope struct {
	fns []FuncDescriptor
}

// FunctionContext is the visible-functions scope stack overload
// resolution searches, grounded on
// original_source/solidlang/context/function/mod.rs.
type FunctionContext struct {
	scopes []*funcScope
}

func NewFunctionContext() *FunctionContext {
	c := &FunctionContext{}
	c.StartScope()
	return c
}

func (c *FunctionContext) StartScope() { c.scopes = append(c.scopes, &funcScope{}) }
func (c *FunctionContext) CloseScope() { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *FunctionContext) Register(fn FuncDescriptor) {
	c.scopes[len(c.scopes)-1].fns = append(c.scopes[len(c.scopes)-1].fns, fn)
}

// Candidates returns every visible function whose path matches,
// collecting across all open scopes, outermost first
// (shadowing applies to types and locals, not to overload sets: spec
// §4.6 step 1 says "collect visible functions whose path equals the
// callee's static path", not "the innermost one").
func (c *FunctionContext) Candidates(path []sess.Symbol) []FuncDescriptor {
	var out []FuncDescriptor
	for _, sc := range c.scopes {
		for _, fn := range sc.fns {
			if pathEqual(fn.Path, path) {
				out = append(out, fn)
			}
		}
	}
	return out
}

func pathEqual(a, b []sess.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type binding struct {
	value ir.Value
	ty    sess.Ref[types.Ty]
}

type loopLabels struct {
	begin sess.Symbol
	end   sess.Symbol
}

// Lowerer owns the session-wide state for one compilation: the type,
// template, and function scopes. Value, label, and mangled names are
// drawn from the Session's monotonic counter (Sess.NextID).
type Lowerer struct {
	Sess     *sess.Session
	Types    *types.Context
	Template *template.Context
	Funcs    *FunctionContext

	// Generated collects the IR functions produced by lowering
	// (top-level and nested, plain and template-instantiated) in the
	// order they finish lowering.
	Generated []*ir.Function

	// templateFuncMemo caches function template instantiations by
	// (path, type args), the function analogue of template.Context's
	// struct memoization (spec §4.5: "the function case is analogous").
	templateFuncMemo map[string]FuncDescriptor
}

func NewLowerer(s *sess.Session) *Lowerer {
	return &Lowerer{
		Sess:             s,
		Types:            types.NewContext(s),
		Template:         template.NewContext(s),
		Funcs:            NewFunctionContext(),
		templateFuncMemo: make(map[string]FuncDescriptor),
	}
}

func (lw *Lowerer) freshValueName() sess.Symbol {
	return lw.Sess.Intern(fmt.Sprintf("_t%d", lw.Sess.NextID()))
}

func (lw *Lowerer) freshLabelName() sess.Symbol {
	return lw.Sess.Intern(fmt.Sprintf("_L%d", lw.Sess.NextID()))
}

// MangleName produces a globally unique IR-level name for a function
// (spec §4.6: "base_name ++ '__' ++ decimal(counter)").
func (lw *Lowerer) MangleName(base string) sess.Symbol {
	return lw.Sess.Intern(fmt.Sprintf("%s__%d", base, lw.Sess.NextID()))
}

// codegenContext is per-function mutable lowering state: the
// instruction buffer, the scope stack of name bindings, the
// label-definition map, the expected return type, and the loop-label
// stack that Break/Continue target.
type codegenContext struct {
	lw *Lowerer

	comps  []ir.Comp
	labels map[sess.Symbol]int
	scopes []map[sess.Symbol]binding
	loops  []loopLabels

	expectedReturn sess.Ref[types.Ty]
}

func newCodegenContext(lw *Lowerer, expectedReturn sess.Ref[types.Ty]) *codegenContext {
	cg := &codegenContext{lw: lw, labels: make(map[sess.Symbol]int), expectedReturn: expectedReturn}
	cg.pushScope()
	return cg
}

// clone deep-copies everything overload resolution's speculative
// lowering needs to roll back cheaply (spec §9): the instruction
// buffer, labels, and scope maps. The name counter lives on the shared
// Session and is deliberately NOT rolled back — a discarded candidate's
// temporary names are simply never referenced again, matching the
// spec's "the context must therefore be cheaply clonable" note without
// needing counter checkpoints.
func (cg *codegenContext) clone() *codegenContext {
	out := &codegenContext{
		lw:             cg.lw,
		comps:          append([]ir.Comp(nil), cg.comps...),
		labels:         make(map[sess.Symbol]int, len(cg.labels)),
		loops:          append([]loopLabels(nil), cg.loops...),
		expectedReturn: cg.expectedReturn,
	}
	for k, v := range cg.labels {
		out.labels[k] = v
	}
	out.scopes = make([]map[sess.Symbol]binding, len(cg.scopes))
	for i, sc := range cg.scopes {
		cp := make(map[sess.Symbol]binding, len(sc))
		for k, v := range sc {
			cp[k] = v
		}
		out.scopes[i] = cp
	}
	return out
}

func (cg *codegenContext) pushScope() { cg.scopes = append(cg.scopes, make(map[sess.Symbol]binding)) }
func (cg *codegenContext) popScope()  { cg.scopes = cg.scopes[:len(cg.scopes)-1] }

func (cg *codegenContext) bind(name sess.Symbol, v ir.Value, ty sess.Ref[types.Ty]) {
	cg.scopes[len(cg.scopes)-1][name] = binding{value: v, ty: ty}
}

func (cg *codegenContext) resolve(name sess.Symbol) (binding, bool) {
	for i := len(cg.scopes) - 1; i >= 0; i-- {
		if b, ok := cg.scopes[i][name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// emit appends comp to the buffer, binding its result (if any) to a
// fresh synthesized name, and returns a Value referencing it.
func (cg *codegenContext) emit(comp ir.Comp) ir.Value {
	name := cg.lw.freshValueName()
	if _, has := ir.Result(comp); has {
		bindResult(comp, name)
	}
	cg.comps = append(cg.comps, comp)
	return ir.Value{Name: name}
}

// emitVoid appends a void-yielding comp (Store/OffsetStore/Return/
// If/Jmp) with no bound name.
func (cg *codegenContext) emitVoid(comp ir.Comp) {
	cg.comps = append(cg.comps, comp)
}

func (cg *codegenContext) placeLabel(name sess.Symbol) {
	cg.labels[name] = len(cg.comps)
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

// result is expr/statement lowering's CompilationResult (spec §4.6): a
// Value of a given Ty, or a marker that control already left the
// enclosing block via Return/Break/Continue.
type result struct {
	value     ir.Value
	ty        sess.Ref[types.Ty]
	returning bool
}

func voidResult(cg *codegenContext) result {
	ref, _ := cg.lw.Types.Resolve([]sess.Symbol{cg.lw.Sess.Intern("void")})
	return result{value: ir.Value{}, ty: ref}
}

func (lw *Lowerer) primitiveRef(name string) sess.Ref[types.Ty] {
	ref, _ := lw.Types.Resolve([]sess.Symbol{lw.Sess.Intern(name)})
	return ref
}

func typeErr(format string, args ...interface{}) error {
	return solerr.New(solerr.TypeError, solerr.Location{}, format, args...)
}

func resolveErr(format string, args ...interface{}) error {
	return solerr.New(solerr.ResolveError, solerr.Location{}, format, args...)
}

func layoutErr(format string, args ...interface{}) error {
	return solerr.New(solerr.LayoutError, solerr.Location{}, format, args...)
}
