package cfg

type visitState uint8

const (
	unvisited visitState = iota
	processing
	done
)

type stackAction uint8

const (
	actionEnter stackAction = iota
	actionExit
)

type stackItem struct {
	block  BlockID
	action stackAction
}

// TopoSort computes c.ForwardsTopoSort: a post-order DFS from entry,
// visiting Then before Else for conditional exits (4.2.1). Implemented
// with an explicit work stack rather than recursion so arbitrarily deep
// CFGs never overflow the Go stack.
func (c *CFG) TopoSort() {
	state := make(map[BlockID]visitState, len(c.Blocks))
	c.ForwardsTopoSort = c.ForwardsTopoSort[:0]

	stack := []stackItem{{block: c.Entry, action: actionEnter}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch top.action {
		case actionEnter:
			if state[top.block] != unvisited {
				continue
			}
			state[top.block] = processing
			stack = append(stack, stackItem{block: top.block, action: actionExit})

			b := c.Block(top.block)
			if b == nil {
				continue
			}
			// Push elseBlock first so thenBlock is processed (and thus
			// finishes) first, per spec: "push thenBlock first, then
			// elseBlock only if the exit is conditional." Here that means
			// any exit other than an unconditional jump, so the else arm of
			// a block-call dispatch is visited too.
			if !b.Exit.IsUnconditional() && b.Exit.Else != top.block {
				if state[b.Exit.Else] == unvisited {
					stack = append(stack, stackItem{block: b.Exit.Else, action: actionEnter})
				}
			}
			if b.Exit.Then != top.block {
				if state[b.Exit.Then] == unvisited {
					stack = append(stack, stackItem{block: b.Exit.Then, action: actionEnter})
				}
			}
		case actionExit:
			if state[top.block] == done {
				continue
			}
			state[top.block] = done
			c.ForwardsTopoSort = append(c.ForwardsTopoSort, top.block)
		}
	}
}

// forwardOrder returns ForwardsTopoSort read forward: entry to exit order
// callers use to iterate "in forward topological order" (§4.2.5 upper
// bound 1: "iterate to fixed point over forward topo order").
//
// ForwardsTopoSort is recorded in DFS post-order (leaves finish first), so
// the forward topological order is its reverse.
func (c *CFG) forwardOrder() []BlockID {
	n := len(c.ForwardsTopoSort)
	out := make([]BlockID, n)
	for i, id := range c.ForwardsTopoSort {
		out[n-1-i] = id
	}
	return out
}

// ForwardOrder is the exported form of forwardOrder, for callers outside
// this package (e.g. internal/infer's type propagation, §4.2.5 upper
// bound 1) that need to iterate a CFG in forward topological order.
func (c *CFG) ForwardOrder() []BlockID {
	return c.forwardOrder()
}

// reverseOrder returns ForwardsTopoSort as-is: "the reverse iterator is
// post-order of reverse edges" per spec §3, which is exactly DFS
// post-order from entry — the order callers use for a "reverse topo order"
// pass (§4.2.5 upper bound 2).
func (c *CFG) reverseOrder() []BlockID {
	out := make([]BlockID, len(c.ForwardsTopoSort))
	copy(out, c.ForwardsTopoSort)
	return out
}
