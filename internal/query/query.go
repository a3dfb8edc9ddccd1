// Package query implements the LSP query subsystem (C7): the matcher
// that decides which bindings a definition/hover/completion/references
// request cares about, and the tagged response variants those matchers
// record as they walk the tree and CFG.
package query

import (
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
	"github.com/sorbet-go/checker/internal/symbols"
)

// Kind tags a Query's variant, per spec §4.4.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindLoc
	KindSymbol
	KindVar
	KindSuggestSig
)

// Query is one outstanding LSP request a typecheck pass matches bindings
// against. The zero Query is KindEmpty, which never matches anything.
type Query struct {
	Kind Kind

	AtLoc        loc.Loc      // KindLoc
	Sym          symbols.Ref  // KindSymbol
	Method       symbols.Ref  // KindVar, KindSuggestSig
	EnclosingLoc loc.Loc      // KindVar
	Local        names.Ref    // KindVar
}

// MatchesLoc reports whether l is relevant to this query.
func (q Query) MatchesLoc(l loc.Loc) bool {
	switch q.Kind {
	case KindLoc:
		return q.AtLoc.Overlaps(l)
	case KindVar:
		return q.EnclosingLoc.Overlaps(l)
	default:
		return false
	}
}

// MatchesSymbol reports whether sym is relevant to this query.
func (q Query) MatchesSymbol(sym symbols.Ref) bool {
	switch q.Kind {
	case KindSymbol:
		return q.Sym == sym
	case KindSuggestSig:
		return q.Method == sym
	default:
		return false
	}
}

// MatchesVar reports whether a reference to local inside method is
// relevant to this query.
func (q Query) MatchesVar(method symbols.Ref, local names.Ref) bool {
	return q.Kind == KindVar && q.Method == method && q.Local == local
}

// ResponseKind tags the variant of a Response, and orders "kind
// specificity" for the emission sort in spec §4.3: Edit > MethodDef >
// Send > Field > Ident > Constant > Literal > other.
type ResponseKind uint8

const (
	ResponseOther ResponseKind = iota
	ResponseLiteral
	ResponseConstant
	ResponseIdent
	ResponseField
	ResponseKwArg
	ResponseSend
	ResponseMethodDef
	ResponseDefinition
	ResponseEdit
)

// Specificity returns the sort key used when multiple responses cover
// the same span: higher sorts first.
func (k ResponseKind) Specificity() int { return int(k) }

// Response is one tagged result a query match produced.
type Response struct {
	Kind ResponseKind
	Loc  loc.Loc // the binding's own loc; drives the emission sort

	Name   names.Ref   // Ident, Field, KwArg, Constant
	Sym    symbols.Ref  // Send (dispatched method), MethodDef, Definition target
	Recv   symbols.Ref  // Send, Field: the receiver's symbol, if known
	Value  interface{}  // Literal
	Edit   Edit         // Edit
}

// Edit is a single textual autocorrect, applied by the flusher per
// spec §4.3's "Autocorrect application".
type Edit struct {
	File  loc.FileRef
	Begin int
	End   int
	Text  string
}

// Collector accumulates Responses for one active Query. Analysis
// components hold a *Collector and call Push as they traverse; nil is a
// valid, inert Collector (no query active), matching how the core spec
// threads an optional query through every phase without branching.
type Collector struct {
	Query     Query
	Responses []Response
}

// NewCollector returns a Collector for q, or nil if q is KindEmpty (the
// common case: most typechecks run with no LSP query active).
func NewCollector(q Query) *Collector {
	if q.Kind == KindEmpty {
		return nil
	}
	return &Collector{Query: q}
}

// Push records r if c is non-nil. Safe to call on a nil *Collector so
// callers never need an extra branch around every call site.
func (c *Collector) Push(r Response) {
	if c == nil {
		return
	}
	c.Responses = append(c.Responses, r)
}

// Active reports whether a query is in effect, mirroring the core
// spec's "if an LSP query is active" checks (e.g. gating dead-store
// elimination).
func (c *Collector) Active() bool { return c != nil }
