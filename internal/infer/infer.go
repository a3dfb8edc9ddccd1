// Package infer implements the narrow slice of type propagation (C5)
// that spec.md actually specifies testable behavior for: propagate a
// type lattice across a method's CFG, flag definitely-untyped values
// reaching a dispatch, and synthesize a signature suggestion from what
// was inferred. It is not a full gradual-typing algorithm — spec.md
// never defines the analyzed language's type lattice beyond "errors and
// inferred sigs" (see DESIGN.md for the Open Question this resolves).
package infer

import (
	"fmt"
	"sort"

	"github.com/sorbet-go/checker/internal/cfg"
	"github.com/sorbet-go/checker/internal/symbols"
)

// Type is the inferred type lattice: Untyped (top, nothing is known),
// Nil, or a named class/module symbol. There is no subtyping beyond
// "Untyped absorbs anything" and "two distinct named types join to
// Untyped" — a deliberately coarse join, adequate for the narrow
// untyped-dispatch diagnostic this package exists to produce.
type Type struct {
	Untyped bool
	Nil     bool
	Class   symbols.Ref // valid iff !Untyped && !Nil
}

var TypeUntyped = Type{Untyped: true}
var TypeNil = Type{Nil: true}

func classType(sym symbols.Ref) Type { return Type{Class: sym} }

func (t Type) String() string {
	switch {
	case t.Untyped:
		return "T.untyped"
	case t.Nil:
		return "NilClass"
	default:
		return fmt.Sprintf("<class %d>", t.Class)
	}
}

func (t Type) equal(o Type) bool {
	return t.Untyped == o.Untyped && t.Nil == o.Nil && t.Class == o.Class
}

// join computes the least upper bound used when merging types flowing
// in from multiple predecessors (block args): identical types survive,
// anything else widens to Untyped.
func join(a, b Type) Type {
	if a.equal(b) {
		return a
	}
	return TypeUntyped
}

// Environment resolves the static type of a method's receiver-class and
// its declared argument types, the only facts this package needs from
// the symbol table to seed propagation.
type Environment struct {
	Symbols     *symbols.Table
	SelfClass   symbols.Ref
	ArgTypes    []Type // parallel to the method's argument list
}

// Result is the outcome of running Infer over one method's CFG.
type Result struct {
	// PerLocal holds the most recently computed type for each local,
	// keyed by cfg.LocalID, taken from the last block that bound it.
	PerLocal map[cfg.LocalID]Type

	// UntypedDispatches lists bindings where a Send's receiver type was
	// definitely Untyped — the one diagnostic this narrow core reports.
	UntypedDispatches []UntypedDispatch
}

// UntypedDispatch is one Send binding whose receiver could not be
// resolved to a concrete class.
type UntypedDispatch struct {
	Block cfg.BlockID
	Local cfg.LocalID
	Fun   string
}

// Infer runs a forward fixed-point dataflow over g's forward topological
// order, assigning a Type to every local bound anywhere in the graph,
// and collects UntypedDispatch findings along the way.
func Infer(g *cfg.CFG, env Environment) Result {
	res := Result{PerLocal: map[cfg.LocalID]Type{}}

	order := g.ForwardOrder()
	blockOut := make(map[cfg.BlockID]map[cfg.LocalID]Type, len(order))
	for _, id := range order {
		blockOut[id] = map[cfg.LocalID]Type{}
	}

	for iter := 0; iter < len(order)+2; iter++ {
		changed := false
		res.UntypedDispatches = res.UntypedDispatches[:0]
		for _, id := range order {
			b := g.Block(id)
			if b == nil {
				continue
			}
			env2 := mergeIncoming(g, b, blockOut)
			for _, bind := range b.Bindings {
				t := typeOfInstruction(bind.Instr, env2, env)
				env2[bind.Local] = t
				res.PerLocal[bind.Local] = t

				if send, ok := bind.Instr.(cfg.SendInstr); ok {
					recvType := env2[send.Recv]
					if recvType.Untyped {
						res.UntypedDispatches = append(res.UntypedDispatches, UntypedDispatch{
							Block: id, Local: bind.Local, Fun: send.Fun,
						})
					}
				}
			}
			if !mapsEqual(env2, blockOut[id]) {
				blockOut[id] = env2
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	sort.Slice(res.UntypedDispatches, func(i, j int) bool {
		if res.UntypedDispatches[i].Block != res.UntypedDispatches[j].Block {
			return res.UntypedDispatches[i].Block < res.UntypedDispatches[j].Block
		}
		return res.UntypedDispatches[i].Local < res.UntypedDispatches[j].Local
	})
	return res
}

func mergeIncoming(g *cfg.CFG, b *cfg.BasicBlock, blockOut map[cfg.BlockID]map[cfg.LocalID]Type) map[cfg.LocalID]Type {
	out := map[cfg.LocalID]Type{}
	for _, pred := range b.BackEdges {
		for local, t := range blockOut[pred] {
			if existing, ok := out[local]; ok {
				out[local] = join(existing, t)
			} else {
				out[local] = t
			}
		}
	}
	return out
}

func typeOfInstruction(instr cfg.Instruction, env2 map[cfg.LocalID]Type, env Environment) Type {
	switch i := instr.(type) {
	case cfg.LiteralInstr:
		return typeOfLiteral(i.Value)
	case cfg.IdentInstr:
		if t, ok := env2[i.Source]; ok {
			return t
		}
		return TypeUntyped
	case cfg.LoadSelfInstr:
		return classType(env.SelfClass)
	case cfg.LoadArgInstr:
		if i.ArgIndex >= 0 && i.ArgIndex < len(env.ArgTypes) {
			return env.ArgTypes[i.ArgIndex]
		}
		return TypeUntyped
	default:
		// Send, LoadYieldParams, Return, Next, Break, Retry, Array, Hash,
		// TAbsurd: none of these has a statically-known result type
		// without a real dispatch/method-resolution algorithm, which is
		// out of scope for this narrow core (see package doc).
		return TypeUntyped
	}
}

func typeOfLiteral(v interface{}) Type {
	if v == nil {
		return TypeNil
	}
	return TypeUntyped
}

func mapsEqual(a, b map[cfg.LocalID]Type) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if ov, ok := b[k]; !ok || !ov.equal(v) {
			return false
		}
	}
	return true
}

// SuggestSig synthesizes a signature string for a method from its
// inferred argument and return types — the "inferred sigs" spec.md's
// component table promises, reduced to its simplest testable form: a
// textual suggestion, not a structural type AST.
func SuggestSig(methodName string, argNames []string, argTypes []Type, returnType Type) string {
	s := "sig { params("
	for i, name := range argNames {
		if i > 0 {
			s += ", "
		}
		t := TypeUntyped
		if i < len(argTypes) {
			t = argTypes[i]
		}
		s += fmt.Sprintf("%s: %s", name, t.String())
	}
	s += fmt.Sprintf(").returns(%s) }", returnType.String())
	return s
}
