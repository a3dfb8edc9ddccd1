package cfg

// aliasMap maps a local to the ultimate source local it was copied from.
type aliasMap map[LocalID]LocalID

func (m aliasMap) resolve(x LocalID) LocalID {
	// Acyclic by construction: an Ident binding only ever points at a
	// local defined earlier in program order.
	for {
		v, ok := m[x]
		if !ok {
			return x
		}
		x = v
	}
}

func intersectAliasMaps(maps []aliasMap) aliasMap {
	if len(maps) == 0 {
		return aliasMap{}
	}
	out := aliasMap{}
	for k, v := range maps[0] {
		allMatch := true
		for _, m := range maps[1:] {
			if mv, ok := m[k]; !ok || mv != v {
				allMatch = false
				break
			}
		}
		if allMatch {
			out[k] = v
		}
	}
	return out
}

func equalAliasMaps(a, b aliasMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Dealias rewrites references to synthetic temporaries back to the
// original local they copied from (§4.2.3). Idempotent: calling it twice
// leaves the CFG unchanged the second time (§8).
func (c *CFG) Dealias() {
	order := c.forwardOrder()
	aliasOut := make(map[BlockID]aliasMap, len(order))
	for _, id := range order {
		aliasOut[id] = aliasMap{}
	}

	for iter := 0; iter < len(order)+2; iter++ {
		changed := false
		for _, id := range order {
			b := c.Block(id)
			if b == nil {
				continue
			}

			var preds []aliasMap
			for _, pred := range b.BackEdges {
				preds = append(preds, aliasOut[pred])
			}
			current := intersectAliasMaps(preds)

			for i := range b.Bindings {
				bind := &b.Bindings[i]
				if !bind.Synthetic {
					bind.Instr = bind.Instr.RewriteLocals(current.resolve)
				}

				// A write to bind.Local invalidates any alias entries
				// that pointed at its old value.
				for k, v := range current {
					if v == bind.Local {
						delete(current, k)
					}
				}
				if !bind.Synthetic {
					if ident, ok := bind.Instr.(IdentInstr); ok {
						current[bind.Local] = current.resolve(ident.Source)
					}
				}
			}

			if b.Exit.IsConditional() {
				b.Exit.Cond = current.resolve(b.Exit.Cond)
			}

			if !equalAliasMaps(aliasOut[id], current) {
				aliasOut[id] = current
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}
