package cfg

import (
	"testing"

	"github.com/sorbet-go/checker/internal/loc"
)

// buildS1 constructs {entry->A, A->B (both arms), B->dead}, all at loop
// depth 0, mirroring the dead-block pruning scenario.
func buildS1() (*CFG, LocalID, LocalID) {
	c := New()
	a := c.NewBlock(0)
	b := c.NewBlock(0)

	localA := c.NewLocal(LocalInfo{})
	a.Bindings = append(a.Bindings, Binding{Local: localA, Instr: LiteralInstr{Value: 1}})

	localB := c.NewLocal(LocalInfo{})
	b.Bindings = append(b.Bindings, Binding{Local: localB, Instr: LiteralInstr{Value: 2}})

	c.jumpTo(EntryBlockID, a.ID, loc.None)
	c.jumpTo(a.ID, b.ID, loc.None)
	c.jumpTo(b.ID, DeadBlockID, loc.None)

	return c, localA, localB
}

func TestSimplifyDeadBlockPruningCascades(t *testing.T) {
	c, localA, localB := buildS1()
	c.TopoSort()
	c.Simplify()

	// Inline-into-predecessor (4.2.2 step 3) has no exemption for the
	// entry block, so it cascades: entry absorbs A, then absorbs the
	// (now single-predecessor) B, leaving only entry and the dead block.
	live := 0
	for i, b := range c.Blocks {
		if b == nil {
			continue
		}
		live++
		if i != int(DeadBlockID) && i != int(EntryBlockID) {
			t.Fatalf("unexpected surviving block id %d", i)
		}
	}
	if live != 2 {
		t.Fatalf("expected 2 live blocks after simplify, got %d", live)
	}
	if len(c.ForwardsTopoSort) != 2 {
		t.Fatalf("expected ForwardsTopoSort.len == 2, got %d", len(c.ForwardsTopoSort))
	}

	entry := c.Block(EntryBlockID)
	if len(entry.Bindings) != 2 {
		t.Fatalf("expected entry to absorb both A and B's bindings, got %d", len(entry.Bindings))
	}
	if entry.Bindings[0].Local != localA || entry.Bindings[1].Local != localB {
		t.Fatalf("expected merged bindings in [A, B] order, got %v", entry.Bindings)
	}
	if entry.Exit.Then != DeadBlockID || entry.Exit.Else != DeadBlockID {
		t.Fatalf("expected entry's exit to now target dead, got %+v", entry.Exit)
	}
}

func TestSimplifyIsIdempotent(t *testing.T) {
	c, _, _ := buildS1()
	c.TopoSort()
	c.Simplify()

	before := len(c.Blocks)
	beforeTopo := append([]BlockID(nil), c.ForwardsTopoSort...)

	c.Simplify()

	if len(c.Blocks) != before {
		t.Fatalf("second Simplify changed block count: %d -> %d", before, len(c.Blocks))
	}
	if len(c.ForwardsTopoSort) != len(beforeTopo) {
		t.Fatalf("second Simplify changed ForwardsTopoSort length: %v -> %v", beforeTopo, c.ForwardsTopoSort)
	}
}

// buildS2 constructs a single block: x := LoadArg(0); t1 := Ident(x); t2 :=
// Ident(t1); y := Ident(t2), mirroring the alias-collapse scenario.
func buildS2() (c *CFG, x, t1, t2, y LocalID) {
	c = New()
	entry := c.Block(EntryBlockID)

	x = c.NewLocal(LocalInfo{})
	emit(entry, x, LoadArgInstr{ArgIndex: 0}, loc.None)

	t1 = c.NewLocal(LocalInfo{})
	emit(entry, t1, IdentInstr{Source: x}, loc.None)

	t2 = c.NewLocal(LocalInfo{})
	emit(entry, t2, IdentInstr{Source: t1}, loc.None)

	y = c.NewLocal(LocalInfo{})
	emit(entry, y, IdentInstr{Source: t2}, loc.None)

	c.jumpTo(entry.ID, DeadBlockID, loc.None)
	return c, x, t1, t2, y
}

func TestDealiasCollapsesChainedIdents(t *testing.T) {
	c, x, t1, _, y := buildS2()
	c.TopoSort()
	c.Dealias()

	entry := c.Block(EntryBlockID)

	// The binding that ultimately feeds y now reads x directly.
	var yInstr IdentInstr
	found := false
	for _, bind := range entry.Bindings {
		if bind.Local == y {
			yInstr, found = bind.Instr.(IdentInstr)
		}
	}
	if !found {
		t.Fatalf("expected a binding for y")
	}
	if yInstr.Source != x {
		t.Fatalf("expected y's binding to read x directly, got local %d", yInstr.Source)
	}

	// t1 is now unread anywhere in the block: a dead-store candidate.
	for _, bind := range entry.Bindings {
		for _, r := range bind.Instr.ReadLocals() {
			if r == t1 {
				t.Fatalf("expected t1 to no longer be read after dealias, found read in %+v", bind)
			}
		}
	}
}

func TestDealiasIsIdempotent(t *testing.T) {
	c, _, _, _, _ := buildS2()
	c.TopoSort()
	c.Dealias()

	entry := c.Block(EntryBlockID)
	before := append([]Binding(nil), entry.Bindings...)

	c.Dealias()

	if len(entry.Bindings) != len(before) {
		t.Fatalf("second Dealias changed binding count")
	}
	for i, bind := range entry.Bindings {
		if bind.Instr != before[i].Instr {
			t.Fatalf("second Dealias changed binding %d: %+v -> %+v", i, before[i], bind)
		}
	}
}

func TestDeadStoreEliminationDropsUnreadAliases(t *testing.T) {
	c, x, t1, t2, y := buildS2()
	c.TopoSort()
	c.Dealias()
	c.AnalyzeReadsWrites()
	stats := c.ComputeLoopStats()
	c.SynthesizeBlockArgs(stats)
	c.EliminateDeadStores(false)

	entry := c.Block(EntryBlockID)
	kept := map[LocalID]bool{}
	for _, bind := range entry.Bindings {
		kept[bind.Local] = true
	}
	if !kept[x] {
		t.Fatalf("expected x's binding to survive (it's read by t1's binding)")
	}
	// After dealias rewrote every use to read x directly, t1/t2/y are each
	// side-effect-free Ident bindings nothing reads and no successor's
	// Args needs: all three are eliminated.
	if kept[t1] || kept[t2] || kept[y] {
		t.Fatalf("expected t1, t2, and y to all be eliminated as dead stores, kept=%v", kept)
	}
}

func TestDeadStoreEliminationSkippedDuringQuery(t *testing.T) {
	c, _, _, _, _ := buildS2()
	c.TopoSort()
	c.Dealias()
	c.AnalyzeReadsWrites()
	stats := c.ComputeLoopStats()
	c.SynthesizeBlockArgs(stats)

	entry := c.Block(EntryBlockID)
	before := len(entry.Bindings)
	c.EliminateDeadStores(true)
	if len(entry.Bindings) != before {
		t.Fatalf("expected no bindings dropped while a query is active")
	}
}

func TestValidateCatchesBrokenBackEdges(t *testing.T) {
	c, _, _ := buildS1()
	c.TopoSort()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected a well-formed CFG to validate cleanly, got %v", err)
	}

	// Corrupt a back-edge list directly: claim a back-edge from the dead
	// block, whose exit never targets this block.
	a := c.Block(EntryBlockID).Exit.Then
	c.Block(a).BackEdges = []BlockID{DeadBlockID}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to catch the broken back-edge list")
	}
}
