// Package driver wires a Session (the interner plus the type/template/
// function pools a compilation shares) to the parser and lowerer, and
// runs the two-phase pipeline spec §4.6 describes end to end: parse
// source text, preprocess every module-level item, then lower function
// bodies. Grounded on internal/module/module.go's ModuleLoader
// orchestration shape. Phase 1's struct-layout fix-up (lower.Lowerer.
// PreprocessModule) resolves mutually-referencing struct declarations
// by walking a shared in-progress set, so it runs single-threaded on
// the calling goroutine — spec §5 requires exactly this ("no operation
// may suspend mid-mutation" on the pools), and a compilation's own
// struct graph is exactly the kind of per-module state the spec says
// not to shard within.
package driver

import (
	"log"

	"golang.org/x/sync/errgroup"

	"solidc/internal/ast"
	"solidc/internal/ir"
	"solidc/internal/lower"
	"solidc/internal/sess"
)

// Session owns one compilation: its Sess (interner + id), and the
// Lowerer that in turn owns the Types/Template/Funcs contexts.
type Session struct {
	Sess *sess.Session
	lw   *lower.Lowerer
}

func NewSession() *Session {
	s := sess.New()
	return &Session{Sess: s, lw: lower.NewLowerer(s)}
}

// Compile parses source and runs it through both lowering phases,
// returning the finished IR module or the first error raised by any
// stage (lexing, parsing, resolution, layout, templates, or lowering
// itself — all of which report through *solerr.Error).
func (ds *Session) Compile(source string) (*ir.Module, error) {
	mod, err := ast.ParseModule(ds.Sess, source)
	if err != nil {
		return nil, err
	}

	if err := ds.lw.PreprocessModule(mod.Items); err != nil {
		return nil, err
	}

	module, err := ds.lw.LowerFunctionBodies(mod)
	if err != nil {
		return nil, err
	}
	log.Printf("driver: session %s lowered %d function(s)", ds.Sess.ID, len(module.Functions))
	return module, nil
}

// CompileUnit is one independent source unit to compile, paired with a
// caller-assigned key so CompileModules' results can be matched back to
// their input regardless of completion order.
type CompileUnit struct {
	Key    string
	Source string
}

// CompileResult is one CompileUnit's outcome: exactly one of Module or
// Err is set.
type CompileResult struct {
	Key    string
	Module *ir.Module
	Err    error
}

// CompileModules compiles every unit concurrently, each under its own
// Session (own interner, own type/template/function pools) — spec §5's
// closing note: "implementers who wish to parallelize may shard by
// independent modules; no contract within a single module may be
// violated by parallel elaboration." Since no state is shared across
// units, this has none of CompileUnit-internal PreprocessModule's
// single-writer constraint to worry about. Every unit runs on its own
// goroutine with no concurrency limit; a unit's compile error is stored
// in its CompileResult.Err and never returned to the group, so one
// failing unit does not stop the others and the returned error is nil.
func CompileModules(units []CompileUnit) ([]CompileResult, error) {
	results := make([]CompileResult, len(units))
	g := new(errgroup.Group)

	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			ds := NewSession()
			mod, err := ds.Compile(u.Source)
			results[i] = CompileResult{Key: u.Key, Module: mod, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
