package cfg

import (
	"github.com/sorbet-go/checker/internal/fatal"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/names"
	"github.com/sorbet-go/checker/internal/tree"
)

// Builder lowers a method's desugared body (tree.Node) into a CFG (C3).
// One Builder lowers exactly one method; construct a fresh Builder per
// method.
type Builder struct {
	cfg   *CFG
	names *names.Table
	file  loc.FileRef

	vars      map[string]LocalID
	loopStack []loopCtx
}

type loopCtx struct {
	continueBlock BlockID // Next target: re-evaluate the loop condition
	breakBlock    BlockID // Break target: after the loop
}

// NewBuilder returns a Builder that interns fresh temporary names via nt
// and attributes locations to file.
func NewBuilder(nt *names.Table, file loc.FileRef) *Builder {
	return &Builder{names: nt, file: file, vars: map[string]LocalID{}}
}

func (b *Builder) l(n tree.Node) loc.Loc { return n.Loc() }

func (b *Builder) freshLocal(base string) LocalID {
	ref, err := b.names.EnterName(names.Unique, base)
	if err != nil {
		panic(&fatal.Internal{Msg: "cfg builder: names table rejected EnterName", Cause: err})
	}
	return b.cfg.NewLocal(LocalInfo{Name: ref})
}

func emit(block *BasicBlock, local LocalID, instr Instruction, at loc.Loc) {
	block.Bindings = append(block.Bindings, Binding{Local: local, Instr: instr, Loc: at})
}

func emitSynthetic(block *BasicBlock, local LocalID, instr Instruction, at loc.Loc) {
	block.Bindings = append(block.Bindings, Binding{Local: local, Instr: instr, Loc: at, Synthetic: true})
}

func isTerminated(b *BasicBlock) bool {
	return b.Exit.Then != DeadBlockID || b.Exit.Else != DeadBlockID || b.Exit.Cond != 0
}

// Build lowers body into a fresh CFG for a method taking argNames as its
// formal arguments (the last of which is always the, possibly synthetic,
// block argument per the symbol table's own invariant — Build does not
// enforce that itself; callers populate argNames from the already
// block-argument-finalized symbols.Symbol).
func Build(nt *names.Table, file loc.FileRef, argNames []string, body tree.Node) *CFG {
	b := NewBuilder(nt, file)
	b.cfg = New()
	entry := b.cfg.Block(EntryBlockID)

	for i, name := range argNames {
		l := b.freshLocal(name)
		emit(entry, l, LoadArgInstr{ArgIndex: i}, loc.None)
		b.vars[name] = l
	}

	cur, val := b.lower(entry, body, 0)
	if !isTerminated(cur) {
		retLocal := b.freshLocal("<return>")
		emit(cur, retLocal, ReturnInstr{Value: val}, loc.None)
		b.cfg.jumpTo(cur.ID, DeadBlockID, loc.None)
	}
	return b.cfg
}

// lower lowers n into cur (possibly creating new blocks and leaving a
// different block as the continuation), returning the block execution
// continues in and the local holding n's value.
func (b *Builder) lower(cur *BasicBlock, n tree.Node, depth int) (*BasicBlock, LocalID) {
	if n == nil {
		nilLocal := b.freshLocal("nil")
		emit(cur, nilLocal, LiteralInstr{Value: nil}, loc.None)
		return cur, nilLocal
	}

	switch n := n.(type) {
	case *tree.Literal:
		v := b.freshLocal("lit")
		emit(cur, v, LiteralInstr{Value: n.Value}, b.l(n))
		return cur, v

	case *tree.Self:
		v := b.freshLocal("self")
		emit(cur, v, LoadSelfInstr{}, b.l(n))
		return cur, v

	case *tree.Ident:
		src, ok := b.vars[n.Name]
		if !ok {
			v := b.freshLocal(n.Name)
			emit(cur, v, LiteralInstr{Value: nil}, b.l(n))
			return cur, v
		}
		v := b.freshLocal(n.Name)
		emit(cur, v, IdentInstr{Source: src}, b.l(n))
		return cur, v

	case *tree.ConstantLit:
		v := b.freshLocal(n.Name)
		emit(cur, v, LiteralInstr{Value: n.Name}, b.l(n))
		return cur, v

	case *tree.Assign:
		var rhsLocal LocalID
		cur, rhsLocal = b.lower(cur, n.Rhs, depth)
		ident, ok := n.Lhs.(*tree.Ident)
		if !ok {
			// Non-local assignment targets (attribute/constant/index
			// assignment) are desugared by the out-of-scope parser into
			// Send nodes before reaching the CFG builder; if one still
			// shows up here, the expression's value is just the rhs.
			return cur, rhsLocal
		}
		v := b.freshLocal(ident.Name)
		emit(cur, v, IdentInstr{Source: rhsLocal}, b.l(n))
		b.vars[ident.Name] = v
		return cur, v

	case *tree.Send:
		return b.lowerSend(cur, n, depth)

	case *tree.If:
		return b.lowerIf(cur, n, depth)

	case *tree.While:
		return b.lowerWhile(cur, n, depth)

	case *tree.And:
		return b.lowerAnd(cur, n, depth)

	case *tree.Or:
		return b.lowerOr(cur, n, depth)

	case *tree.Begin:
		val := b.freshLocal("begin")
		emit(cur, val, LiteralInstr{Value: nil}, b.l(n))
		for _, stmt := range n.Stmts {
			if isTerminated(cur) {
				// Unreachable code after a Return/Next/Break/Retry.
				// Lower it into a fresh orphan block so the builder
				// stays total; simplify's unreachable-block removal
				// (4.2.2 step 1) prunes it since it gains no back-edges.
				cur = b.cfg.NewBlock(depth)
			}
			cur, val = b.lower(cur, stmt, depth)
		}
		return cur, val

	case *tree.Return:
		var valLocal LocalID
		cur, valLocal = b.lower(cur, n.Value, depth)
		throwaway := b.freshLocal("<return>")
		emit(cur, throwaway, ReturnInstr{Value: valLocal}, b.l(n))
		b.cfg.jumpTo(cur.ID, DeadBlockID, b.l(n))
		return cur, valLocal

	case *tree.Next:
		var valLocal LocalID
		cur, valLocal = b.lower(cur, n.Value, depth)
		throwaway := b.freshLocal("<next>")
		emit(cur, throwaway, NextInstr{Value: valLocal}, b.l(n))
		target := DeadBlockID
		if len(b.loopStack) > 0 {
			target = b.loopStack[len(b.loopStack)-1].continueBlock
		}
		b.cfg.jumpTo(cur.ID, target, b.l(n))
		return cur, valLocal

	case *tree.Break:
		var valLocal LocalID
		cur, valLocal = b.lower(cur, n.Value, depth)
		throwaway := b.freshLocal("<break>")
		emit(cur, throwaway, BreakInstr{Value: valLocal}, b.l(n))
		target := DeadBlockID
		if len(b.loopStack) > 0 {
			target = b.loopStack[len(b.loopStack)-1].breakBlock
		}
		b.cfg.jumpTo(cur.ID, target, b.l(n))
		return cur, valLocal

	case *tree.Retry:
		v := b.freshLocal("<retry>")
		emit(cur, v, RetryInstr{}, b.l(n))
		b.cfg.jumpTo(cur.ID, b.cfg.Entry, b.l(n))
		return cur, v

	case *tree.Yield:
		args := make([]LocalID, len(n.Args))
		for i, a := range n.Args {
			cur, args[i] = b.lower(cur, a, depth)
		}
		v := b.freshLocal("yield")
		emit(cur, v, SendInstr{Fun: "<yield>", Args: args}, b.l(n))
		return cur, v

	case *tree.Hash:
		keys := make([]LocalID, len(n.Keys))
		for i, k := range n.Keys {
			cur, keys[i] = b.lower(cur, k, depth)
		}
		values := make([]LocalID, len(n.Values))
		for i, v := range n.Values {
			cur, values[i] = b.lower(cur, v, depth)
		}
		result := b.freshLocal("hash")
		emit(cur, result, HashInstr{Keys: keys, Values: values}, b.l(n))
		return cur, result

	case *tree.Array:
		elems := make([]LocalID, len(n.Elems))
		for i, e := range n.Elems {
			cur, elems[i] = b.lower(cur, e, depth)
		}
		result := b.freshLocal("array")
		emit(cur, result, ArrayInstr{Elems: elems}, b.l(n))
		return cur, result

	case *tree.Rescue:
		return b.lowerRescue(cur, n, depth)

	case *tree.BlockArg:
		return b.lower(cur, n.Body, depth)

	case *tree.ClassDef, *tree.ModuleDef, *tree.MethodDef:
		// Declarations are resolved by the name/symbol indexing phase
		// (C1) upstream of CFG construction, not by lowering a method
		// body; a nested def inside a method body has no runtime value
		// beyond the symbol it (re)declares.
		v := b.freshLocal("def")
		emit(cur, v, LiteralInstr{Value: nil}, b.l(n))
		return cur, v

	default:
		panic(&fatal.Internal{Msg: "cfg builder: unhandled tree node kind"})
	}
}

func (b *Builder) lowerSend(cur *BasicBlock, n *tree.Send, depth int) (*BasicBlock, LocalID) {
	var recvLocal LocalID
	if n.Recv != nil {
		cur, recvLocal = b.lower(cur, n.Recv, depth)
	} else {
		recvLocal = b.freshLocal("self")
		emit(cur, recvLocal, LoadSelfInstr{}, b.l(n))
	}

	argLocals := make([]LocalID, len(n.Args))
	for i, a := range n.Args {
		cur, argLocals[i] = b.lower(cur, a, depth)
	}

	if n.Block == nil {
		result := b.freshLocal(n.Fun)
		emit(cur, result, SendInstr{Recv: recvLocal, Fun: n.Fun, Args: argLocals}, b.l(n))
		return cur, result
	}

	blockNode, _ := n.Block.(*tree.BlockArg)
	thenB := b.cfg.NewBlock(depth)
	elseB := b.cfg.NewBlock(depth)
	merge := b.cfg.NewBlock(depth)
	result := b.freshLocal(n.Fun)
	b.cfg.link(cur.ID, BlockExit{Cond: BlockCallSentinel, Then: thenB.ID, Else: elseB.ID, Loc: b.l(n)})

	// Call-with-block arm: bind block parameters via LoadYieldParams and
	// lower the block body for its effects, then the call itself.
	thenCur := thenB
	if blockNode != nil {
		for _, p := range blockNode.Params {
			pl := b.freshLocal(p)
			emit(thenCur, pl, LoadYieldParamsInstr{}, b.l(n))
			b.vars[p] = pl
		}
		thenCur, _ = b.lower(thenCur, blockNode.Body, depth)
	}
	blockLocal := b.freshLocal("<block>")
	emit(thenCur, blockLocal, LoadSelfInstr{}, b.l(n))
	tv := b.freshLocal(n.Fun)
	emit(thenCur, tv, SendInstr{Recv: recvLocal, Fun: n.Fun, Args: argLocals, Block: blockLocal}, b.l(n))
	emitSynthetic(thenCur, result, IdentInstr{Source: tv}, b.l(n))
	b.cfg.jumpTo(thenCur.ID, merge.ID, b.l(n))

	ev := b.freshLocal(n.Fun)
	emit(elseB, ev, SendInstr{Recv: recvLocal, Fun: n.Fun, Args: argLocals}, b.l(n))
	emitSynthetic(elseB, result, IdentInstr{Source: ev}, b.l(n))
	b.cfg.jumpTo(elseB.ID, merge.ID, b.l(n))

	return merge, result
}

func (b *Builder) lowerIf(cur *BasicBlock, n *tree.If, depth int) (*BasicBlock, LocalID) {
	var condLocal LocalID
	cur, condLocal = b.lower(cur, n.Cond, depth)

	thenB := b.cfg.NewBlock(depth)
	elseB := b.cfg.NewBlock(depth)
	merge := b.cfg.NewBlock(depth)
	b.cfg.link(cur.ID, BlockExit{Cond: condLocal, Then: thenB.ID, Else: elseB.ID, Loc: b.l(n)})

	result := b.freshLocal("if")

	thenEnd, thenVal := b.lower(thenB, n.Then, depth)
	if !isTerminated(thenEnd) {
		emitSynthetic(thenEnd, result, IdentInstr{Source: thenVal}, b.l(n))
		b.cfg.jumpTo(thenEnd.ID, merge.ID, b.l(n))
	}

	if n.Else != nil {
		elseEnd, elseVal := b.lower(elseB, n.Else, depth)
		if !isTerminated(elseEnd) {
			emitSynthetic(elseEnd, result, IdentInstr{Source: elseVal}, b.l(n))
			b.cfg.jumpTo(elseEnd.ID, merge.ID, b.l(n))
		}
	} else {
		nilLocal := b.freshLocal("nil")
		emit(elseB, nilLocal, LiteralInstr{Value: nil}, b.l(n))
		emitSynthetic(elseB, result, IdentInstr{Source: nilLocal}, b.l(n))
		b.cfg.jumpTo(elseB.ID, merge.ID, b.l(n))
	}

	return merge, result
}

func (b *Builder) lowerWhile(cur *BasicBlock, n *tree.While, depth int) (*BasicBlock, LocalID) {
	condB := b.cfg.NewBlock(depth + 1)
	bodyB := b.cfg.NewBlock(depth + 1)
	afterB := b.cfg.NewBlock(depth)

	b.cfg.jumpTo(cur.ID, condB.ID, b.l(n))

	condEnd, condLocal := b.lower(condB, n.Cond, depth+1)
	b.cfg.link(condEnd.ID, BlockExit{Cond: condLocal, Then: bodyB.ID, Else: afterB.ID, Loc: b.l(n)})

	b.loopStack = append(b.loopStack, loopCtx{continueBlock: condB.ID, breakBlock: afterB.ID})
	bodyEnd, _ := b.lower(bodyB, n.Body, depth+1)
	b.loopStack = b.loopStack[:len(b.loopStack)-1]
	if !isTerminated(bodyEnd) {
		b.cfg.jumpTo(bodyEnd.ID, condB.ID, b.l(n))
	}

	nilLocal := b.freshLocal("while")
	emit(afterB, nilLocal, LiteralInstr{Value: nil}, b.l(n))
	return afterB, nilLocal
}

func (b *Builder) lowerAnd(cur *BasicBlock, n *tree.And, depth int) (*BasicBlock, LocalID) {
	var lhsLocal LocalID
	cur, lhsLocal = b.lower(cur, n.Lhs, depth)

	rhsB := b.cfg.NewBlock(depth)
	falseB := b.cfg.NewBlock(depth)
	merge := b.cfg.NewBlock(depth)
	result := b.freshLocal("and")
	b.cfg.link(cur.ID, BlockExit{Cond: lhsLocal, Then: rhsB.ID, Else: falseB.ID, Loc: b.l(n)})

	emitSynthetic(falseB, result, IdentInstr{Source: lhsLocal}, b.l(n))
	b.cfg.jumpTo(falseB.ID, merge.ID, b.l(n))

	rhsEnd, rhsLocal := b.lower(rhsB, n.Rhs, depth)
	emitSynthetic(rhsEnd, result, IdentInstr{Source: rhsLocal}, b.l(n))
	b.cfg.jumpTo(rhsEnd.ID, merge.ID, b.l(n))

	return merge, result
}

func (b *Builder) lowerOr(cur *BasicBlock, n *tree.Or, depth int) (*BasicBlock, LocalID) {
	var lhsLocal LocalID
	cur, lhsLocal = b.lower(cur, n.Lhs, depth)

	trueB := b.cfg.NewBlock(depth)
	rhsB := b.cfg.NewBlock(depth)
	merge := b.cfg.NewBlock(depth)
	result := b.freshLocal("or")
	b.cfg.link(cur.ID, BlockExit{Cond: lhsLocal, Then: trueB.ID, Else: rhsB.ID, Loc: b.l(n)})

	emitSynthetic(trueB, result, IdentInstr{Source: lhsLocal}, b.l(n))
	b.cfg.jumpTo(trueB.ID, merge.ID, b.l(n))

	rhsEnd, rhsLocal := b.lower(rhsB, n.Rhs, depth)
	emitSynthetic(rhsEnd, result, IdentInstr{Source: rhsLocal}, b.l(n))
	b.cfg.jumpTo(rhsEnd.ID, merge.ID, b.l(n))

	return merge, result
}

// lowerRescue models `begin body rescue ... else ensure end`. Since the
// core spec treats raise points as implicit (no Raise instruction is in
// the instruction set of §3), this lowers a structurally valid
// approximation: a synthetic post-body check dispatches to the rescue
// clauses in declaration order, falling through to a re-raise edge (the
// dead block) if none match, while the normal-completion path skips the
// dispatch entirely. Both paths join before Ensure runs.
func (b *Builder) lowerRescue(cur *BasicBlock, n *tree.Rescue, depth int) (*BasicBlock, LocalID) {
	bodyB := b.cfg.NewBlock(depth)
	b.cfg.jumpTo(cur.ID, bodyB.ID, b.l(n))

	bodyEnd, bodyVal := b.lower(bodyB, n.Body, depth)

	preEnsure := b.cfg.NewBlock(depth)
	result := b.freshLocal("rescue")

	if !isTerminated(bodyEnd) {
		checkLocal := b.freshLocal("<raised>")
		emit(bodyEnd, checkLocal, LiteralInstr{Value: false}, b.l(n))

		dispatchB := b.cfg.NewBlock(depth)
		normalB := b.cfg.NewBlock(depth)
		b.cfg.link(bodyEnd.ID, BlockExit{Cond: checkLocal, Then: dispatchB.ID, Else: normalB.ID, Loc: b.l(n)})

		if n.Else != nil {
			elseEnd, elseVal := b.lower(normalB, n.Else, depth)
			if !isTerminated(elseEnd) {
				emitSynthetic(elseEnd, result, IdentInstr{Source: elseVal}, b.l(n))
				b.cfg.jumpTo(elseEnd.ID, preEnsure.ID, b.l(n))
			}
		} else {
			emitSynthetic(normalB, result, IdentInstr{Source: bodyVal}, b.l(n))
			b.cfg.jumpTo(normalB.ID, preEnsure.ID, b.l(n))
		}

		dispatch := dispatchB
		for _, clause := range n.Clauses {
			matchLocal := b.freshLocal("<matches>")
			emit(dispatch, matchLocal, LiteralInstr{Value: true}, b.l(n))
			clauseB := b.cfg.NewBlock(depth)
			nextDispatch := b.cfg.NewBlock(depth)
			b.cfg.link(dispatch.ID, BlockExit{Cond: matchLocal, Then: clauseB.ID, Else: nextDispatch.ID, Loc: b.l(n)})

			if clause.VarName != "" {
				excLocal := b.freshLocal(clause.VarName)
				emit(clauseB, excLocal, LiteralInstr{Value: nil}, b.l(n))
				b.vars[clause.VarName] = excLocal
			}
			clauseEnd, clauseVal := b.lower(clauseB, clause.Body, depth)
			if !isTerminated(clauseEnd) {
				emitSynthetic(clauseEnd, result, IdentInstr{Source: clauseVal}, b.l(n))
				b.cfg.jumpTo(clauseEnd.ID, preEnsure.ID, b.l(n))
			}
			dispatch = nextDispatch
		}
		// No clause matched: re-raise.
		b.cfg.jumpTo(dispatch.ID, DeadBlockID, b.l(n))
	}

	if n.Ensure != nil {
		ensureEnd, _ := b.lower(preEnsure, n.Ensure, depth)
		after := b.cfg.NewBlock(depth)
		if !isTerminated(ensureEnd) {
			b.cfg.jumpTo(ensureEnd.ID, after.ID, b.l(n))
		}
		return after, result
	}
	return preEnsure, result
}
