package cfg

// AnalyzeReadsWrites computes each block's Reads, Writes, and Dead sets
// (§4.2.4): Reads is locals read before any write in the block (including
// a read by the block's own exit condition), Writes is every local ever
// written in the block, and Dead is locals written but never read again
// within the same block — candidates for removal on entry by block-arg
// synthesis, and for dead-store elimination if also unused by a
// successor's Args.
func (c *CFG) AnalyzeReadsWrites() {
	c.forEachLiveBlock(func(b *BasicBlock) {
		b.Reads = NewUIntSet()
		b.Writes = NewUIntSet()
		b.Dead = NewUIntSet()

		writtenSoFar := NewUIntSet()
		lastWriteIndex := map[LocalID]int{}

		for i, bind := range b.Bindings {
			for _, r := range bind.Instr.ReadLocals() {
				if !writtenSoFar.Contains(r) {
					b.Reads.Add(r)
				}
			}
			b.Writes.Add(bind.Local)
			writtenSoFar.Add(bind.Local)
			lastWriteIndex[bind.Local] = i
		}
		if b.Exit.IsConditional() {
			if !writtenSoFar.Contains(b.Exit.Cond) {
				b.Reads.Add(b.Exit.Cond)
			}
		}

		// A written local is dead if it is not read by any later binding
		// in the block, nor by the exit condition.
		for local, writeIdx := range lastWriteIndex {
			readAfter := false
			for j := writeIdx + 1; j < len(b.Bindings); j++ {
				for _, r := range b.Bindings[j].Instr.ReadLocals() {
					if r == local {
						readAfter = true
						break
					}
				}
				if readAfter {
					break
				}
			}
			if !readAfter && b.Exit.IsConditional() && b.Exit.Cond == local {
				readAfter = true
			}
			if !readAfter {
				b.Dead.Add(local)
			}
		}
	})
}

// LoopStats holds the two per-local statistics of §4.2.6, derived from
// each block's OuterLoops (supplied by the builder at construction time).
type LoopStats struct {
	MinLoops     map[LocalID]int
	MaxLoopWrite map[LocalID]int
}

// ComputeLoopStats derives MinLoops/MaxLoopWrite and marks loop-header
// blocks. A block is a loop header iff some predecessor recorded in its
// BackEdges has a strictly smaller OuterLoops than the block itself.
func (c *CFG) ComputeLoopStats() LoopStats {
	stats := LoopStats{MinLoops: map[LocalID]int{}, MaxLoopWrite: map[LocalID]int{}}
	c.forEachLiveBlock(func(b *BasicBlock) {
		touch := func(local LocalID) {
			if cur, ok := stats.MinLoops[local]; !ok || b.OuterLoops < cur {
				stats.MinLoops[local] = b.OuterLoops
			}
		}
		b.Reads.ForEach(touch)
		b.Writes.ForEach(func(local LocalID) {
			touch(local)
			if cur, ok := stats.MaxLoopWrite[local]; !ok || b.OuterLoops > cur {
				stats.MaxLoopWrite[local] = b.OuterLoops
			}
		})
	})
	c.forEachLiveBlock(func(b *BasicBlock) {
		b.Flags &^= FlagLoopHeader
		for _, pred := range b.BackEdges {
			if pb := c.Block(pred); pb != nil && pb.OuterLoops < b.OuterLoops {
				b.Flags |= FlagLoopHeader
				break
			}
		}
	})
	return stats
}

// IsLoopHeader reports whether b was marked a loop header by the last
// ComputeLoopStats call.
func (b *BasicBlock) IsLoopHeader() bool { return b.Flags&FlagLoopHeader != 0 }

func (c *CFG) successorsOf(b *BasicBlock) []BlockID {
	if b.Exit.Then == b.Exit.Else {
		return []BlockID{b.Exit.Then}
	}
	return []BlockID{b.Exit.Then, b.Exit.Else}
}

// SynthesizeBlockArgs computes, for each block, the set of locals that
// must be passed in as arguments from its predecessors — the locals live
// on entry (§4.2.5). Must run after AnalyzeReadsWrites and
// ComputeLoopStats.
func (c *CFG) SynthesizeBlockArgs(stats LoopStats) {
	upper1 := map[BlockID]UIntSet{}
	upper2 := map[BlockID]UIntSet{}
	c.forEachLiveBlock(func(b *BasicBlock) {
		upper1[b.ID] = b.Reads.Clone()
		upper2[b.ID] = NewUIntSet()
	})

	order := c.forwardOrder()
	maxIter := len(c.Blocks) + 2

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for _, id := range order {
			b := c.Block(id)
			if b == nil {
				continue
			}
			union := b.Reads.Clone()
			for _, succ := range c.successorsOf(b) {
				if su, ok := upper1[succ]; ok {
					union.AddSet(su)
				}
			}
			b.Dead.ForEach(func(local LocalID) {
				if b.OuterLoops <= stats.MinLoops[local] {
					union.Remove(local)
				}
			})
			if !union.Equals(upper1[id]) {
				upper1[id] = union
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for _, id := range c.reverseOrder() {
			b := c.Block(id)
			if b == nil {
				continue
			}
			union := NewUIntSet()
			for _, pred := range b.BackEdges {
				pb := c.Block(pred)
				if pb == nil {
					continue
				}
				tmp := pb.Writes.Clone()
				tmp.AddSet(upper2[pred])
				union.AddSet(tmp)
			}
			if !union.Equals(upper2[id]) {
				upper2[id] = union
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	c.forEachLiveBlock(func(b *BasicBlock) {
		inter := upper1[b.ID].Clone()
		inter.Intersect(upper2[b.ID])
		b.Args = inter.Slice()
	})
}
