package cfg

// DebugChecks enables the invariant re-validation the core spec calls a
// "debug-only consistency check" after every simplification change. Off by
// default; tests that want it turn it on explicitly.
var DebugChecks = false

// Simplify repeatedly applies the four rewrite rules of §4.2.2 in
// priority order until a full pass makes no change. Running Simplify
// twice is a no-op on the second invocation (§8 "Round-trip / idempotence").
func (c *CFG) Simplify() {
	for {
		changed := false
		changed = c.removeUnreachableBlocks() || changed
		c.dedupeAllBackEdges()
		changed = c.flattenUnconditionalJumps() || changed
		changed = c.shortcutBranches() || changed
		if DebugChecks {
			if err := c.Validate(); err != nil {
				panic(err)
			}
		}
		if !changed {
			return
		}
	}
}

func (c *CFG) removeID(id BlockID) {
	if int(id) < len(c.Blocks) {
		c.Blocks[id] = nil
	}
	out := c.ForwardsTopoSort[:0]
	for _, b := range c.ForwardsTopoSort {
		if b != id {
			out = append(out, b)
		}
	}
	c.ForwardsTopoSort = out
}

// unlinkExit removes from from the back-edge lists of exit's targets; used
// by the inline/lift/shortcut steps below, which compute the new exit
// themselves and call link to install it.
func (c *CFG) unlinkExit(from BlockID, exit BlockExit) {
	if tb := c.Block(exit.Then); tb != nil {
		tb.removeBackEdge(from)
	}
	if exit.Else != exit.Then {
		if eb := c.Block(exit.Else); eb != nil {
			eb.removeBackEdge(from)
		}
	}
}

func (c *CFG) removeUnreachableBlocks() bool {
	changed := false
	for i := 2; i < len(c.Blocks); i++ { // skip dead(0) and entry(1)
		b := c.Blocks[i]
		if b == nil {
			continue
		}
		if len(b.BackEdges) == 0 {
			c.unlinkExit(b.ID, b.Exit)
			c.removeID(b.ID)
			changed = true
		}
	}
	return changed
}

func (c *CFG) dedupeAllBackEdges() {
	for _, b := range c.Blocks {
		if b != nil {
			b.dedupeBackEdges()
		}
	}
}

func (c *CFG) flattenUnconditionalJumps() bool {
	changed := false
	for _, b := range c.Blocks {
		if b == nil || b.ID == DeadBlockID {
			continue
		}
		if b.Exit.Then != b.Exit.Else {
			continue
		}
		if b.Exit.Cond != UnconditionalSentinel {
			b.Exit.Cond = UnconditionalSentinel
			changed = true
		}
		target := c.Block(b.Exit.Then)
		if target == nil || target.ID == b.ID || target.ID == DeadBlockID {
			continue
		}

		if len(target.BackEdges) == 1 && target.BackEdges[0] == b.ID && target.OuterLoops == b.OuterLoops {
			// Inline-into-predecessor.
			b.Bindings = append(b.Bindings, target.Bindings...)
			oldExit := target.Exit
			c.unlinkExit(target.ID, oldExit) // drop target's own back-edge bookkeeping for its successors
			c.link(b.ID, oldExit)            // b now owns that exit, registers new back-edges
			c.removeID(target.ID)
			changed = true
			continue
		}

		if len(target.Bindings) == 0 && target.Exit.Cond != BlockCallSentinel && target.OuterLoops == b.OuterLoops && target.ID != target.Exit.Then {
			// Condition lift.
			oldExit := target.Exit
			c.unlinkExit(b.ID, b.Exit)
			c.link(b.ID, oldExit)
			changed = true
		}
	}
	return changed
}

// branchCandidate reports whether replacing a jump-to-branch with branch's
// own unconditional successor is safe: branch must be live, empty, end in
// an unconditional jump, and not loop back to itself.
func branchCandidate(c *CFG, branch BlockID) (BlockID, bool) {
	b := c.Block(branch)
	if b == nil || b.ID == DeadBlockID {
		return 0, false
	}
	if len(b.Bindings) != 0 {
		return 0, false
	}
	if !b.Exit.IsUnconditional() {
		return 0, false
	}
	succ := b.Exit.Then
	if succ == branch {
		return 0, false
	}
	return succ, true
}

func (c *CFG) shortcutBranches() bool {
	changed := false
	for _, b := range c.Blocks {
		if b == nil || b.ID == DeadBlockID {
			continue
		}
		newExit := b.Exit
		didThen, didElse := false, false
		if succ, ok := branchCandidate(c, b.Exit.Then); ok {
			newExit.Then = succ
			didThen = true
		}
		if succ, ok := branchCandidate(c, b.Exit.Else); ok {
			newExit.Else = succ
			didElse = true
		}
		if !didThen && !didElse {
			continue
		}
		// Maintain aliasing: if both arms targeted the same block before
		// and both got shortcut, keep them pointing at the same successor.
		if b.Exit.Then == b.Exit.Else && didThen && !didElse {
			newExit.Else = newExit.Then
		}
		if b.Exit.Then == b.Exit.Else && didElse && !didThen {
			newExit.Then = newExit.Else
		}
		c.unlinkExit(b.ID, b.Exit)
		c.link(b.ID, newExit)
		changed = true
	}
	return changed
}
