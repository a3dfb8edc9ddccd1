// Package cfg implements the per-method control-flow graph (C3, C4): its
// construction from a desugared tree.Node body, the fixed-point
// simplification pass, dealiasing, liveness-driven block-argument
// synthesis, loop annotations, and dead-store elimination.
package cfg

import (
	"math"
	"sort"

	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
)

// LocalID identifies a local variable within one CFG. IDs are 1-based and
// dense; 0 is never a valid local.
type LocalID uint32

// Sentinel LocalID values used as a BlockExit's Cond, per spec §4.2: a
// plain conditional never has one of these as its real condition local,
// since real locals are allocated starting at 1 and these sit at the top
// of the uint32 range.
const (
	BlockCallSentinel     LocalID = math.MaxUint32
	UnconditionalSentinel LocalID = math.MaxUint32 - 1
)

// LocalInfo describes one local variable slot.
type LocalInfo struct {
	Name           names.Ref
	Counter        uint32
	AliasForGlobal bool
}

// BlockID identifies a basic block within one CFG. The dead block is
// always ID 0; the entry block is always ID 1 and is never eliminated by
// simplification.
type BlockID uint32

const (
	DeadBlockID  BlockID = 0
	EntryBlockID BlockID = 1
)

// BlockFlags records secondary facts about a block.
type BlockFlags uint8

const (
	FlagLoopHeader BlockFlags = 1 << iota
)

// BlockExit terminates a BasicBlock with either a conditional branch (Cond
// is a real local), a block-call dispatch (Cond == BlockCallSentinel), or
// an unconditional jump (Cond == UnconditionalSentinel and Then == Else).
type BlockExit struct {
	Cond Local
	Then BlockID
	Else BlockID
	Loc  loc.Loc
}

// Local wraps a LocalID so BlockExit.Cond can hold either a real local or
// one of the two sentinels above without an untyped uint32 leaking into
// call sites.
type Local = LocalID

// IsConditional reports whether the exit is a genuine data-dependent
// branch, i.e. neither a block-call dispatch nor an unconditional jump.
func (e BlockExit) IsConditional() bool {
	return e.Cond != BlockCallSentinel && e.Cond != UnconditionalSentinel
}

// IsUnconditional reports whether the exit is an unconditional jump.
func (e BlockExit) IsUnconditional() bool {
	return e.Cond == UnconditionalSentinel
}

// IsBlockCall reports whether the exit dispatches on "was a block given".
func (e BlockExit) IsBlockCall() bool {
	return e.Cond == BlockCallSentinel
}

// Binding is a three-address-style statement `Local := Instr`.
type Binding struct {
	Local LocalID
	Instr Instruction
	Loc   loc.Loc

	// Synthetic marks a binding inserted by desugaring for implementation
	// reasons rather than a direct lowering of source text. Dealiasing
	// must not rewrite into these (spec §4.2.3), since doing so would
	// confuse dead-code analysis.
	Synthetic bool
}

// BasicBlock is a straight-line sequence of Bindings terminated by exactly
// one BlockExit.
type BasicBlock struct {
	ID         BlockID
	Bindings   []Binding
	BackEdges  []BlockID // sorted ascending, deduplicated predecessors
	Exit       BlockExit
	OuterLoops int
	Flags      BlockFlags

	// Args is populated by SynthesizeBlockArgs (4.2.5): the locals that
	// must be live on entry to this block from every predecessor, sorted
	// by LocalID.
	Args []LocalID

	// Reads, Writes, Dead are populated by AnalyzeReadsWrites (4.2.4).
	Reads UIntSet
	Writes UIntSet
	Dead   UIntSet
}

func (b *BasicBlock) addBackEdge(id BlockID) {
	i := sort.Search(len(b.BackEdges), func(i int) bool { return b.BackEdges[i] >= id })
	if i < len(b.BackEdges) && b.BackEdges[i] == id {
		return
	}
	b.BackEdges = append(b.BackEdges, 0)
	copy(b.BackEdges[i+1:], b.BackEdges[i:])
	b.BackEdges[i] = id
}

func (b *BasicBlock) removeBackEdge(id BlockID) {
	for i, e := range b.BackEdges {
		if e == id {
			b.BackEdges = append(b.BackEdges[:i], b.BackEdges[i+1:]...)
			return
		}
	}
}

// dedupeBackEdges sorts and removes adjacent duplicates (simplify step 2).
func (b *BasicBlock) dedupeBackEdges() {
	sort.Slice(b.BackEdges, func(i, j int) bool { return b.BackEdges[i] < b.BackEdges[j] })
	out := b.BackEdges[:0]
	for i, e := range b.BackEdges {
		if i == 0 || e != b.BackEdges[i-1] {
			out = append(out, e)
		}
	}
	b.BackEdges = out
}

// CFG is the control-flow graph for a single method body.
type CFG struct {
	Blocks []*BasicBlock // index i holds the block whose ID is BlockID(i); index 0 is the dead block
	Locals []LocalInfo   // index i holds LocalID(i+1)'s info
	Entry  BlockID

	// ForwardsTopoSort is a dense vector of block IDs in post-order of DFS
	// from entry, populated by TopoSort. Per Design Notes §9, simplify
	// does not re-run the topo sort; it only removes entries for deleted
	// blocks, so after simplification this contains exactly the
	// surviving blocks in their original relative order, not necessarily
	// a perfect post-order anymore.
	ForwardsTopoSort []BlockID
}

// New returns an empty CFG with the dead block (ID 0) and entry block (ID
// 1) already present.
func New() *CFG {
	c := &CFG{}
	c.Blocks = append(c.Blocks, &BasicBlock{ID: DeadBlockID, Exit: BlockExit{Cond: UnconditionalSentinel, Then: DeadBlockID, Else: DeadBlockID}})
	c.Blocks = append(c.Blocks, &BasicBlock{ID: EntryBlockID})
	c.Entry = EntryBlockID
	return c
}

// Block returns the block with the given ID, or nil if it has been
// removed or never existed.
func (c *CFG) Block(id BlockID) *BasicBlock {
	idx := int(id)
	if idx < 0 || idx >= len(c.Blocks) {
		return nil
	}
	return c.Blocks[idx]
}

// NewBlock allocates and appends a fresh block with the given loop depth,
// returning it.
func (c *CFG) NewBlock(outerLoops int) *BasicBlock {
	b := &BasicBlock{ID: BlockID(len(c.Blocks)), OuterLoops: outerLoops}
	c.Blocks = append(c.Blocks, b)
	return b
}

// NewLocal allocates a fresh local variable slot.
func (c *CFG) NewLocal(info LocalInfo) LocalID {
	c.Locals = append(c.Locals, info)
	return LocalID(len(c.Locals))
}

// LocalInfoOf returns the LocalInfo for id.
func (c *CFG) LocalInfoOf(id LocalID) LocalInfo {
	idx := int(id) - 1
	if idx < 0 || idx >= len(c.Locals) {
		return LocalInfo{}
	}
	return c.Locals[idx]
}

// link records that from's exit targets to (updating to's BackEdges) for
// both arms of a conditional, or the single target of an unconditional
// jump / block-call dispatch.
func (c *CFG) link(from BlockID, exit BlockExit) {
	fb := c.Block(from)
	fb.Exit = exit
	if tb := c.Block(exit.Then); tb != nil {
		tb.addBackEdge(from)
	}
	if exit.Else != exit.Then {
		if eb := c.Block(exit.Else); eb != nil {
			eb.addBackEdge(from)
		}
	}
}

// jumpTo sets from's exit to an unconditional jump to target.
func (c *CFG) jumpTo(from, target BlockID, l loc.Loc) {
	c.link(from, BlockExit{Cond: UnconditionalSentinel, Then: target, Else: target, Loc: l})
}

// forEachLiveBlock calls fn for every block reachable from the entry's
// perspective (i.e. every block currently present except the dead block),
// in ID order. Used by passes that don't need topological order.
func (c *CFG) forEachLiveBlock(fn func(*BasicBlock)) {
	for i := 1; i < len(c.Blocks); i++ {
		if c.Blocks[i] != nil {
			fn(c.Blocks[i])
		}
	}
}
