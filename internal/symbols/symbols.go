// Package symbols implements the global symbol table (C1): classes,
// modules, methods, fields, and type members, linked into an owner tree
// plus a mixin/superclass DAG resolved into a per-class linearization.
package symbols

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
)

// Ref is a handle into a Table. The zero Ref names no symbol; Root is the
// Ref of the implicit top-level owner every top-level class/module hangs
// off of.
type Ref uint32

// Root is the Ref of the synthetic top-level symbol.
const Root Ref = 1

// Flags records what kind of entity a symbol is and a handful of
// modifiers. Kind bits are mutually exclusive; modifier bits may combine
// freely with any kind.
type Flags uint16

const (
	Class Flags = 1 << iota
	Module
	Method
	Field
	TypeMember
	TypeArgument

	Abstract
	Override
	Final
	RewriterSynthesized
)

func (f Flags) Is(bit Flags) bool { return f&bit != 0 }

// Argument describes one formal argument of a Method symbol.
type Argument struct {
	Name     names.Ref
	Optional bool
	Repeated bool // splat (*args)
	Keyword  bool
	Block    bool // true for the method's synthesized-or-explicit block arg
	Type     Ref  // 0 if untyped
}

// Symbol is one entry in the global symbol table.
type Symbol struct {
	Owner Ref
	Name  names.Ref
	Flags Flags

	// Arguments holds a method's ordered formal argument list. Invariant
	// (spec §3): always non-empty for a Method symbol, with the last
	// element having Block == true — synthesized if the source did not
	// declare one explicitly.
	Arguments []Argument

	// Mixins is the class's included-module list in declaration order,
	// used together with SuperClass to compute Linearization.
	Mixins      []Ref
	SuperClass  Ref
	ResultType  Ref // 0 if untyped/inferred
	Locs        []loc.Loc

	// linearization is computed exactly once by Linearize and never
	// mutated afterward (spec §3 invariant). nil until computed.
	linearization []Ref
}

// FrozenTableError is returned by mutating calls made after Freeze.
type FrozenTableError struct{ Op string }

func (e *FrozenTableError) Error() string {
	return fmt.Sprintf("symbols: table is frozen: %s", e.Op)
}

// Table is the global symbol table.
type Table struct {
	mu      sync.Mutex
	symbols []Symbol // Ref 0 names no symbol; Ref i is symbols[i-1]
	byOwner map[Ref]map[names.Ref]Ref

	frozen atomic.Bool
}

// NewTable returns a Table with the root symbol already entered as Ref(1).
func NewTable() *Table {
	t := &Table{}
	t.symbols = append(t.symbols, Symbol{Owner: 0, Flags: Module})
	t.byOwner = map[Ref]map[names.Ref]Ref{}
	return t
}

func (t *Table) checkWritable(op string) error {
	if t.frozen.Load() {
		return &FrozenTableError{Op: op}
	}
	return nil
}

// EnterSymbol creates (or returns the existing) symbol named name, owned
// by owner, with the given flags. Re-entering an existing owner+name pair
// returns the existing Ref unchanged (flags are not merged in that case,
// and Table has no method that changes an existing symbol's flags).
func (t *Table) EnterSymbol(owner Ref, name names.Ref, flags Flags) (Ref, error) {
	if err := t.checkWritable("EnterSymbol"); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.byOwner[owner]; ok {
		if r, ok := m[name]; ok {
			return r, nil
		}
	}
	t.symbols = append(t.symbols, Symbol{Owner: owner, Name: name, Flags: flags})
	r := Ref(len(t.symbols))
	if t.byOwner[owner] == nil {
		t.byOwner[owner] = map[names.Ref]Ref{}
	}
	t.byOwner[owner][name] = r
	return r, nil
}

// Lookup finds a symbol named name directly owned by owner.
func (t *Table) Lookup(owner Ref, name names.Ref) (Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byOwner[owner]
	if !ok {
		return 0, false
	}
	r, ok := m[name]
	return r, ok
}

// Get returns a copy of the Symbol data for r. The linearization field is
// included if already computed.
func (t *Table) Get(r Ref) (Symbol, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int(r) - 1
	if idx < 0 || idx >= len(t.symbols) {
		return Symbol{}, false
	}
	return t.symbols[idx], true
}

func (t *Table) mutate(r Ref, op string, fn func(*Symbol) error) error {
	if err := t.checkWritable(op); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int(r) - 1
	if idx < 0 || idx >= len(t.symbols) {
		return fmt.Errorf("symbols: invalid ref %d", r)
	}
	return fn(&t.symbols[idx])
}

// AddArgument appends arg to a method symbol's argument list.
func (t *Table) AddArgument(r Ref, arg Argument) error {
	return t.mutate(r, "AddArgument", func(s *Symbol) error {
		if !s.Flags.Is(Method) {
			return fmt.Errorf("symbols: AddArgument on non-method symbol %d", r)
		}
		s.Arguments = append(s.Arguments, arg)
		return nil
	})
}

// FinalizeArguments ensures the last argument is a block argument,
// synthesizing one (named blockArgName, typically "<block>") if the
// source did not declare one. Call once all explicit arguments have been
// added, before Freeze.
func (t *Table) FinalizeArguments(r Ref, blockArgName names.Ref) error {
	return t.mutate(r, "FinalizeArguments", func(s *Symbol) error {
		if !s.Flags.Is(Method) {
			return fmt.Errorf("symbols: FinalizeArguments on non-method symbol %d", r)
		}
		if len(s.Arguments) == 0 || !s.Arguments[len(s.Arguments)-1].Block {
			s.Arguments = append(s.Arguments, Argument{Name: blockArgName, Block: true})
		}
		return nil
	})
}

// AddMixin appends mixin to a class/module's included-module list.
func (t *Table) AddMixin(r Ref, mixin Ref) error {
	return t.mutate(r, "AddMixin", func(s *Symbol) error {
		s.Mixins = append(s.Mixins, mixin)
		return nil
	})
}

// SetSuperClass sets r's superclass.
func (t *Table) SetSuperClass(r Ref, super Ref) error {
	return t.mutate(r, "SetSuperClass", func(s *Symbol) error {
		s.SuperClass = super
		return nil
	})
}

// SetResultType sets r's declared/inferred result type.
func (t *Table) SetResultType(r Ref, typ Ref) error {
	return t.mutate(r, "SetResultType", func(s *Symbol) error {
		s.ResultType = typ
		return nil
	})
}

// AddLoc appends a source location r was (re)defined at.
func (t *Table) AddLoc(r Ref, l loc.Loc) error {
	return t.mutate(r, "AddLoc", func(s *Symbol) error {
		s.Locs = append(s.Locs, l)
		return nil
	})
}

// Linearize computes r's C3-style linearization (self, then mixins
// nearest-first, then superclass chain, each appearing once) and caches it
// on the symbol. Safe to call more than once: subsequent calls return the
// cached result without recomputation, satisfying the "computed exactly
// once and never mutated afterwards" invariant.
func (t *Table) Linearize(r Ref) ([]Ref, error) {
	t.mu.Lock()
	idx := int(r) - 1
	if idx < 0 || idx >= len(t.symbols) {
		t.mu.Unlock()
		return nil, fmt.Errorf("symbols: invalid ref %d", r)
	}
	if t.symbols[idx].linearization != nil {
		lin := t.symbols[idx].linearization
		t.mu.Unlock()
		return lin, nil
	}
	t.mu.Unlock()

	seen := map[Ref]bool{}
	var order []Ref
	var visit func(Ref)
	visit = func(cur Ref) {
		if cur == 0 || seen[cur] {
			return
		}
		seen[cur] = true
		order = append(order, cur)
		t.mu.Lock()
		cidx := int(cur) - 1
		var mixins []Ref
		var super Ref
		if cidx >= 0 && cidx < len(t.symbols) {
			mixins = t.symbols[cidx].Mixins
			super = t.symbols[cidx].SuperClass
		}
		t.mu.Unlock()
		// Nearest-included-first: iterate mixins in reverse declaration
		// order so the most recently included module wins lookup ties,
		// matching Ruby's `include` semantics.
		for i := len(mixins) - 1; i >= 0; i-- {
			visit(mixins[i])
		}
		visit(super)
	}
	visit(r)

	t.mu.Lock()
	if t.symbols[idx].linearization == nil {
		t.symbols[idx].linearization = order
	}
	lin := t.symbols[idx].linearization
	t.mu.Unlock()
	return lin, nil
}

// DefinesBehavior reports whether cls has at least one Method symbol that
// is not RewriterSynthesized (spec §3 invariant: synthesized methods don't
// count).
func (t *Table) DefinesBehavior(cls Ref) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byOwner[cls]
	for _, r := range m {
		idx := int(r) - 1
		if idx < 0 || idx >= len(t.symbols) {
			continue
		}
		s := t.symbols[idx]
		if s.Flags.Is(Method) && !s.Flags.Is(RewriterSynthesized) {
			return true
		}
	}
	return false
}

// Freeze stops accepting mutations. Idempotent.
func (t *Table) Freeze() { t.frozen.Store(true) }

// IsFrozen reports whether Freeze has been called.
func (t *Table) IsFrozen() bool { return t.frozen.Load() }
