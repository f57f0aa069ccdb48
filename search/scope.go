package search

import (
	"context"

	"github.com/infodancer/sprucemail/summary"
)

// Binding is a name bound in a scope frame: exactly one of Func,
// IFunc, or Var is set.
type Binding struct {
	// Func operates on already-evaluated arguments.
	Func func(s *Scope, args []Value) (Value, error)
	// IFunc operates on unevaluated argument terms, controlling its
	// own evaluation order (used for if/begin/match-all/and/or).
	IFunc func(s *Scope, args []*Term) (Value, error)
	// Var is a plain evaluated value.
	Var *Value
}

// evalCtx is the per-evaluation context threaded through scopes: the
// folder a search runs against and, inside match-all, the message
// record currently bound.
type evalCtx struct {
	folder  FolderContext
	current *summary.Record

	// restrict limits match-all to this UID set; nil means no restriction.
	restrict map[string]struct{}
	// fsearch is the FolderSearch that initiated this evaluation, used
	// by body-contains to reach an overridden content-indexing hook.
	fsearch *FolderSearch
	goctx   context.Context
}

// Scope is a lexical frame mapping names to bindings. Lookup walks
// from innermost outward. Evaluating a function call creates a new
// frame for its arguments; throwing frees any frames accumulated on
// the evaluation stack simply by virtue of returning an error instead
// of recursing further.
type Scope struct {
	parent *Scope
	vars   map[string]Binding
	ctx    *evalCtx
}

func newGlobalScope(folder FolderContext) *Scope {
	return newGlobalScopeCtx(folder, context.Background(), nil, nil)
}

func newGlobalScopeCtx(folder FolderContext, goctx context.Context, restrict map[string]struct{}, fsearch *FolderSearch) *Scope {
	s := &Scope{vars: make(map[string]Binding), ctx: &evalCtx{folder: folder, restrict: restrict, fsearch: fsearch, goctx: goctx}}
	registerBuiltins(s)
	if folder != nil {
		registerFolderPredicates(s)
	}
	return s
}

// child returns a new frame nested under s, optionally with a
// different evaluation context (used by match-all to bind the current
// record for its body).
func (s *Scope) child(ctx *evalCtx) *Scope {
	if ctx == nil {
		ctx = s.ctx
	}
	return &Scope{parent: s, vars: make(map[string]Binding), ctx: ctx}
}

func (s *Scope) define(name string, b Binding) { s.vars[name] = b }

func (s *Scope) lookup(name string) (Binding, bool) {
	for f := s; f != nil; f = f.parent {
		if b, ok := f.vars[name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}
