package search

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/infodancer/sprucemail/summary"
)

// fold is the case folder used for every case-insensitive compare in
// this file (header-contains, system-flag lookup): golang.org/x/text's
// full Unicode case folding rather than strings.ToLower's ASCII/simple
// mapping, since header and flag names may arrive non-ASCII.
var fold = cases.Fold()

func foldString(s string) string { return fold.String(s) }

// FolderContext is the minimal surface a folder implementation must
// expose for the search engine's folder predicates. store.Folder
// satisfies this interface structurally; search does not import the
// store package to avoid a cycle.
type FolderContext interface {
	Summary() *summary.Summary
	GetMessage(ctx context.Context, uid string) (io.ReadCloser, error)
}

// systemFlags maps the names recognized by (system-flag "name") to
// their bit value.
var systemFlags = map[string]summary.Flag{
	"answered":  summary.FlagAnswered,
	"deleted":   summary.FlagDeleted,
	"draft":     summary.FlagDraft,
	"flagged":   summary.FlagFlagged,
	"seen":      summary.FlagSeen,
	"recent":    summary.FlagRecent,
	"forwarded": summary.FlagForwarded,
}

// FolderSearch evaluates expressions against one folder, caching the
// last-compiled AST so repeated identical queries (e.g. a client
// re-running the same filter) skip re-parsing.
type FolderSearch struct {
	folder FolderContext
	ctx    context.Context

	// BodyContains overrides the default body-contains stub (which
	// always returns false). A content-indexing layer can set this.
	BodyContains func(ctx context.Context, rec *summary.Record, needle string) (bool, error)

	lastExpr string
	lastAST  *Term
}

// NewFolderSearch creates a search instance bound to folder.
func NewFolderSearch(folder FolderContext) *FolderSearch {
	return &FolderSearch{folder: folder}
}

// Eval parses (or reuses the cached AST for) expr and evaluates it
// against the folder's summary, restricted to uids if non-nil.
// Non-match-all top-level expressions are evaluated once and their
// result returned directly; match-all (used at the top level in
// practice) returns the Array of matching UIDs.
func (fs *FolderSearch) Eval(ctx context.Context, uids map[string]struct{}, expr string) (Value, error) {
	var term *Term
	if fs.lastExpr == expr && fs.lastAST != nil {
		term = fs.lastAST
	} else {
		parsed, err := Parse(expr)
		if err != nil {
			return Value{}, err
		}
		term = parsed
		fs.lastExpr = expr
		fs.lastAST = parsed
	}

	fs.ctx = ctx
	scope := newGlobalScopeCtx(fs.folder, ctx, uids, fs)
	return Eval(term, scope)
}

func registerFolderPredicates(s *Scope) {
	s.define("match-all", Binding{IFunc: builtinMatchAll})
	s.define("header-contains", Binding{Func: builtinHeaderContains})
	s.define("system-flag", Binding{Func: builtinSystemFlag})
	s.define("sent-date", Binding{Func: builtinSentDate})
	s.define("received-date", Binding{Func: builtinReceivedDate})
	s.define("current-date", Binding{Func: builtinCurrentDate})
	s.define("size", Binding{Func: builtinSize})
	s.define("body-contains", Binding{Func: builtinBodyContains})
}

func builtinMatchAll(scope *Scope, args []*Term) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("match-all: requires exactly one argument")
	}
	if scope.ctx.folder == nil {
		return Value{}, throwf("match-all: not bound to a folder")
	}
	sum := scope.ctx.folder.Summary()
	var matched []string
	for _, rec := range sum.Records {
		if scope.ctx.restrict != nil {
			if _, ok := scope.ctx.restrict[rec.UID]; !ok {
				continue
			}
		}
		recCtx := &evalCtx{folder: scope.ctx.folder, current: rec, restrict: scope.ctx.restrict, fsearch: scope.ctx.fsearch, goctx: scope.ctx.goctx}
		child := scope.child(recCtx)
		v, err := Eval(args[0], child)
		if err != nil {
			return Value{}, err
		}
		ok, err := asBool(v)
		if err != nil {
			return Value{}, err
		}
		if ok {
			matched = append(matched, rec.UID)
		}
	}
	return Array(matched), nil
}

func currentRecord(scope *Scope) (*summary.Record, error) {
	if scope.ctx.current == nil {
		return nil, throwf("accessor used outside match-all")
	}
	return scope.ctx.current, nil
}

func builtinHeaderContains(scope *Scope, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, throwf("header-contains: requires (name needle)")
	}
	if args[0].Kind != KindString || args[1].Kind != KindString {
		return Value{}, throwf("header-contains: both arguments must be strings")
	}
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	name := foldString(args[0].Str)
	needle := foldString(args[1].Str)

	var haystack string
	var cached bool
	switch name {
	case "from":
		haystack, cached = rec.From, true
	case "to":
		haystack, cached = rec.To, true
	case "cc":
		haystack, cached = rec.Cc, true
	case "subject":
		haystack, cached = rec.Subject, true
	}
	if cached {
		return Bool(strings.Contains(foldString(haystack), needle)), nil
	}

	// Any other header requires fetching the full message.
	if scope.ctx.folder == nil {
		return Value{}, throwf("header-contains: not bound to a folder")
	}
	rc, err := scope.ctx.folder.GetMessage(scope.ctx.goctx, rec.UID)
	if err != nil {
		return Value{}, throwf("header-contains: %v", err)
	}
	defer func() { _ = rc.Close() }()

	value, err := readHeaderValue(rc, args[0].Str)
	if err != nil {
		return Value{}, throwf("header-contains: %v", err)
	}
	return Bool(strings.Contains(foldString(value), needle)), nil
}

// readHeaderValue scans raw RFC 5322 header lines for the named
// header (case-insensitive), returning its unfolded value.
func readHeaderValue(r io.Reader, name string) (string, error) {
	scanner := bufio.NewScanner(r)
	prefix := foldString(name) + ":"
	var sb strings.Builder
	inHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if (line[0] == ' ' || line[0] == '\t') && inHeader {
			sb.WriteByte(' ')
			sb.WriteString(strings.TrimSpace(line))
			continue
		}
		inHeader = false
		if strings.HasPrefix(foldString(line), prefix) {
			sb.WriteString(strings.TrimSpace(line[len(prefix):]))
			inHeader = true
		}
	}
	return sb.String(), scanner.Err()
}

func builtinSystemFlag(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindString {
		return Value{}, throwf("system-flag: requires a single string argument")
	}
	flag, ok := systemFlags[foldString(args[0].Str)]
	if !ok {
		return Value{}, throwf("system-flag: unknown flag %q", args[0].Str)
	}
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	if rec.Flags.Has(flag) {
		return Int(int64(flag)), nil
	}
	return Int(0), nil
}

func builtinSentDate(scope *Scope, args []Value) (Value, error) {
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	return TimeValue(rec.DateSent), nil
}

func builtinReceivedDate(scope *Scope, args []Value) (Value, error) {
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	return TimeValue(rec.DateReceived), nil
}

func builtinCurrentDate(scope *Scope, args []Value) (Value, error) {
	return TimeValue(time.Now()), nil
}

func builtinSize(scope *Scope, args []Value) (Value, error) {
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	return Int(rec.Size), nil
}

func builtinBodyContains(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindString {
		return Value{}, throwf("body-contains: requires a single string argument")
	}
	rec, err := currentRecord(scope)
	if err != nil {
		return Value{}, err
	}
	if scope.ctx.fsearch != nil && scope.ctx.fsearch.BodyContains != nil {
		ok, err := scope.ctx.fsearch.BodyContains(scope.ctx.goctx, rec, args[0].Str)
		if err != nil {
			return Value{}, err
		}
		return Bool(ok), nil
	}
	return Bool(false), nil
}
