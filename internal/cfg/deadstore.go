package cfg

// EliminateDeadStores drops bindings whose value is never observed,
// per §4.2.7. Must run after AnalyzeReadsWrites and SynthesizeBlockArgs,
// since it consults both Dead-adjacent liveness facts and successor Args.
//
// If an LSP query is active, this is skipped entirely: the query may need
// to see a binding that would otherwise be eliminated.
func (c *CFG) EliminateDeadStores(queryActive bool) {
	if queryActive {
		return
	}
	c.forEachLiveBlock(func(b *BasicBlock) {
		successorArgs := NewUIntSet()
		for _, succ := range c.successorsOf(b) {
			if sb := c.Block(succ); sb != nil {
				for _, a := range sb.Args {
					successorArgs.Add(a)
				}
			}
		}

		kept := b.Bindings[:0:0]
		for i, bind := range b.Bindings {
			if c.LocalInfoOf(bind.Local).AliasForGlobal {
				kept = append(kept, bind)
				continue
			}
			if !isSideEffectFree(bind.Instr) {
				kept = append(kept, bind)
				continue
			}
			readLater := false
			for j := i + 1; j < len(b.Bindings); j++ {
				for _, r := range b.Bindings[j].Instr.ReadLocals() {
					if r == bind.Local {
						readLater = true
						break
					}
				}
				if readLater {
					break
				}
			}
			if !readLater && b.Exit.IsConditional() && b.Exit.Cond == bind.Local {
				readLater = true
			}
			if readLater || successorArgs.Contains(bind.Local) {
				kept = append(kept, bind)
				continue
			}
			// Dropped: not a global alias, not read later, not needed by
			// a successor's block args, and side-effect-free.
		}
		b.Bindings = kept
	})
}
