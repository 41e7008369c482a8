// Package template implements the generic elaborator: templated items
// are captured at declaration time (AST + scope snapshot) and expanded
// on demand given concrete type arguments (spec §4.5). Grounded on
// original_source/solidlang/context/template/mod.rs, adapted to operate
// over *types.Context's scope snapshots rather than a bespoke
// TyScope/FunctionScope pair, since spec §4.5's instantiation algorithm
// only ever needs to swap the type scopes during struct elaboration.
package template

import (
	"fmt"
	"strings"

	"solidc/internal/ast"
	"solidc/internal/sess"
	"solidc/internal/solerr"
	"solidc/internal/types"
)

type ItemKind int

const (
	KindStruct ItemKind = iota
	KindFunction
)

// Item is a captured templated declaration: its AST, its parameter
// names, and a deep snapshot of the type scopes in effect where it was
// declared (spec §4.5: "a snapshot of the scope stacks at the point of
// declaration").
type Item struct {
	Kind        ItemKind
	StructDef   *ast.StructDef
	FunctionDef *ast.FunctionDef
	Params      []sess.Symbol
	SavedScopes []*types.Scope
}

type scope struct {
	pathToItem map[string]*Item
}

func newScope() *scope { return &scope{pathToItem: make(map[string]*Item)} }

// Context owns the stack of template scopes and the memoization table
// keyed by (template, type args) that makes repeated instantiation
// requests return the same Ty handle (spec §4.5, §8's
// "instantiate(T, [A]) == instantiate(T, [A])").
type Context struct {
	sess   *sess.Session
	scopes []*scope
	memo   map[string]sess.Ref[types.Ty]

	// expansionDepth tracks how many nested instantiations are
	// currently in flight, guarding against unbounded self-referential
	// templates (spec §4.5's "Termination").
	expansionDepth int
	// MaxExpansionDepth bounds expansionDepth; exceeding it is a
	// TemplateError. 64 is generous for any realistic nesting of
	// generic structs while still catching runaway self-reference.
	MaxExpansionDepth int
}

func NewContext(s *sess.Session) *Context {
	c := &Context{sess: s, memo: make(map[string]sess.Ref[types.Ty]), MaxExpansionDepth: 64}
	c.StartScope()
	return c
}

func (c *Context) StartScope() { c.scopes = append(c.scopes, newScope()) }
func (c *Context) CloseScope() { c.scopes = c.scopes[:len(c.scopes)-1] }

func pathKey(s *sess.Session, path []sess.Symbol) string {
	parts := make([]string, len(path))
	for i, sym := range path {
		parts[i] = s.Text(sym)
	}
	return strings.Join(parts, "::")
}

func (c *Context) Resolve(path []sess.Symbol) (*Item, bool) {
	key := pathKey(c.sess, path)
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if item, ok := c.scopes[i].pathToItem[key]; ok {
			return item, true
		}
	}
	return nil, false
}

func (c *Context) RegisterStruct(def *ast.StructDef, params []sess.Symbol, saved []*types.Scope) {
	c.scopes[len(c.scopes)-1].pathToItem[pathKey(c.sess, []sess.Symbol{def.Name})] = &Item{
		Kind: KindStruct, StructDef: def, Params: params, SavedScopes: saved,
	}
}

func (c *Context) RegisterFunction(def *ast.FunctionDef, params []sess.Symbol, saved []*types.Scope) {
	c.scopes[len(c.scopes)-1].pathToItem[pathKey(c.sess, []sess.Symbol{def.Name})] = &Item{
		Kind: KindFunction, FunctionDef: def, Params: params, SavedScopes: saved,
	}
}

func memoKey(s *sess.Session, path []sess.Symbol, args []sess.Ref[types.Ty]) string {
	var sb strings.Builder
	sb.WriteString(pathKey(s, path))
	for _, a := range args {
		fmt.Fprintf(&sb, "|%v", a)
	}
	return sb.String()
}

// InstantiateStruct runs the struct half of spec §4.5's instantiation
// algorithm: arity check, scope swap, fresh parameter-binding scope,
// elaboration of each field type through tyCtx (which resolves
// template applications recursively by calling back into
// InstantiateStruct), then scope restore. Memoized by (path, args).
//
// The memo entry is reserved — as a placeholder ref — before any field
// is elaborated, not after the struct is fully built. A field that
// names this same (path, args) pair (the normal way to write a
// self-referential structure, e.g. a linked list's "next: *Node<T>")
// then hits the memo hit at the top of this function and gets the
// placeholder ref back immediately instead of recursing into another
// instantiation of the same template. A pointer field never needs its
// pointee's size/align to compute its own (spec §4.4 — pointers are
// always 8 bytes, 8-aligned), so handing back an unresolved placeholder
// is safe there. A genuine by-value cycle still fails: CreateStruct
// asks the placeholder for its size/align before it has been patched,
// which raises a LayoutError rather than looping to MaxExpansionDepth.
func (c *Context) InstantiateStruct(tyCtx *types.Context, path []sess.Symbol, args []sess.Ref[types.Ty]) (sess.Ref[types.Ty], error) {
	key := memoKey(c.sess, path, args)
	if ref, ok := c.memo[key]; ok {
		return ref, nil
	}

	c.expansionDepth++
	defer func() { c.expansionDepth-- }()
	if c.expansionDepth > c.MaxExpansionDepth {
		return sess.Ref[types.Ty]{}, solerr.New(solerr.TemplateError, solerr.Location{}, "template expansion depth exceeded (possible unbounded self-reference)")
	}

	item, ok := c.Resolve(path)
	if !ok || item.Kind != KindStruct {
		return sess.Ref[types.Ty]{}, solerr.New(solerr.ResolveError, solerr.Location{}, "unknown template %q", pathKey(c.sess, path))
	}
	if len(item.Params) != len(args) {
		return sess.Ref[types.Ty]{}, solerr.New(solerr.TemplateError, solerr.Location{},
			"template %q expects %d type argument(s), got %d", pathKey(c.sess, path), len(item.Params), len(args))
	}

	ref := tyCtx.ReservePlaceholder()
	c.memo[key] = ref

	saved := tyCtx.Swap(item.SavedScopes)
	tyCtx.StartScope()
	for i, param := range item.Params {
		tyCtx.Register([]sess.Symbol{param}, args[i])
	}

	specs := make([]types.FieldSpec, 0, len(item.StructDef.Fields))
	for _, f := range item.StructDef.Fields {
		fieldRef, err := c.resolveTypeExpr(tyCtx, f.Type)
		if err != nil {
			tyCtx.CloseScope()
			tyCtx.Swap(saved)
			delete(c.memo, key)
			return sess.Ref[types.Ty]{}, err
		}
		specs = append(specs, types.FieldSpec{Name: f.Name, Type: fieldRef})
	}

	built, err := tyCtx.CreateStruct(specs)
	tyCtx.CloseScope()
	tyCtx.Swap(saved)
	if err != nil {
		delete(c.memo, key)
		return sess.Ref[types.Ty]{}, err
	}

	tyCtx.ResolvePlaceholder(ref, built)
	return ref, nil
}

// ResolveTypeExpr resolves a source-level type expression to a Ty ref,
// instantiating a template when the expression carries type arguments.
// Exported so internal/lower can resolve parameter/return/field types
// without duplicating template-application logic.
func (c *Context) ResolveTypeExpr(tyCtx *types.Context, te ast.TypeExpr) (sess.Ref[types.Ty], error) {
	return c.resolveTypeExpr(tyCtx, te)
}

// resolveTypeExpr resolves a named or pointer AST type expression to a
// Ty ref, instantiating a template if the name carries type arguments.
// This is the bridge between template elaboration and the plain name
// resolution types.Context already provides.
func (c *Context) resolveTypeExpr(tyCtx *types.Context, te ast.TypeExpr) (sess.Ref[types.Ty], error) {
	switch t := te.(type) {
	case *ast.PointerType:
		pointee, err := c.resolveTypeExpr(tyCtx, t.Pointee)
		if err != nil {
			return sess.Ref[types.Ty]{}, err
		}
		return tyCtx.Pool.Add(tyCtx.CreatePointer(pointee)), nil

	case *ast.NamedType:
		if len(t.Args) == 0 {
			ref, ok := tyCtx.Resolve(t.Path)
			if !ok {
				return sess.Ref[types.Ty]{}, solerr.New(solerr.ResolveError, solerr.Location{},
					"unknown type %q (known: %s)", pathKey(c.sess, t.Path), strings.Join(tyCtx.KnownNames(), ", "))
			}
			return ref, nil
		}
		argRefs := make([]sess.Ref[types.Ty], len(t.Args))
		for i, a := range t.Args {
			r, err := c.resolveTypeExpr(tyCtx, a)
			if err != nil {
				return sess.Ref[types.Ty]{}, err
			}
			argRefs[i] = r
		}
		return c.InstantiateStruct(tyCtx, t.Path, argRefs)
	}
	return sess.Ref[types.Ty]{}, solerr.New(solerr.ResolveError, solerr.Location{}, "unrecognized type expression")
}
