package flowgraph

import (
	"github.com/kitelang/kite/compiler/il"
	"github.com/kitelang/kite/compiler/rt"
	"github.com/kitelang/kite/compiler/set"
)

// computeDominators computes immediate dominators with the SEMI-NCA
// algorithm, a two-pass variant of Lengauer-Tarjan that derives the
// immediate dominator of a block as the nearest common ancestor of
// its spanning-tree parent and its semidominator (Georgiadis, Tarjan
// and Werneck, "Finding Dominators in Practice").
//
// All arrays map between preorder block numbers. parent encodes the
// depth-first spanning tree and is mutated by path compression. The
// returned array is the dominance frontier of each block.
func (b *Builder) computeDominators(preorder []il.BlockEntry, parent []int) []*set.Bitmap {
	size := len(parent)

	idom := make([]int, size)
	semi := make([]int, size)
	label := make([]int, size)
	frontier := make([]*set.Bitmap, size)

	for i := 0; i < size; i++ {
		idom[i] = parent[i]
		semi[i] = i
		label[i] = i
		frontier[i] = set.NewBitmap(size)
	}

	// First pass: compute semidominators bottom-up over reverse
	// preorder, with in-place path compression on the parent array.
	// Each label tracks the minimum semidominator on the compressed
	// path.
	for blockIndex := size - 1; blockIndex >= 1; blockIndex-- {
		block := preorder[blockIndex]

		for i := 0; i < block.PredecessorCount(); i++ {
			pred := block.PredecessorAt(i)

			predIndex := pred.PreorderNumber()
			best := predIndex

			if predIndex > blockIndex {
				compressPath(blockIndex, predIndex, parent, label)
				best = label[predIndex]
			}

			if semi[best] < semi[blockIndex] {
				semi[blockIndex] = semi[best]
			}
		}

		label[blockIndex] = semi[blockIndex]
	}

	// Second pass: derive immediate dominators as the NCA of the
	// spanning-tree parent and the semidominator.
	for blockIndex := 1; blockIndex < size; blockIndex++ {
		domIndex := idom[blockIndex]
		for domIndex > semi[blockIndex] {
			domIndex = idom[domIndex]
		}

		idom[blockIndex] = domIndex
		preorder[blockIndex].SetDominator(preorder[domIndex])
		preorder[domIndex].AddDominatedBlock(preorder[blockIndex])
	}

	// Dominance frontier per Ferrante et al. as presented in "A Simple,
	// Fast Dominance Algorithm" (Figure 5): for every merge point,
	// walk each predecessor up the dominator tree until the merge
	// point's dominator, adding the merge point along the way.
	for blockIndex := 0; blockIndex < size; blockIndex++ {
		block := preorder[blockIndex]

		count := block.PredecessorCount()
		if count <= 1 {
			continue
		}

		for i := 0; i < count; i++ {
			runner := block.PredecessorAt(i)
			for runner != block.Dominator() {
				frontier[runner.PreorderNumber()].Set(blockIndex)
				runner = runner.Dominator()
			}
		}
	}

	return frontier
}

func compressPath(startIndex, currentIndex int, parent, label []int) {
	nextIndex := parent[currentIndex]

	if nextIndex > startIndex {
		compressPath(startIndex, nextIndex, parent, label)

		if label[nextIndex] < label[currentIndex] {
			label[currentIndex] = label[nextIndex]
		}

		parent[currentIndex] = parent[nextIndex]
	}
}

// insertPhis places phi functions using the iterated dominance
// frontier of the blocks assigning each variable. The hasAlready and
// work arrays record the most recent variable a block was processed
// for, avoiding repeated queueing.
func (b *Builder) insertPhis(preorder []il.BlockEntry, assignedVars []*set.Bitmap, varCount int, frontier []*set.Bitmap) {
	blockCount := len(preorder)

	hasAlready := make([]int, blockCount)
	work := make([]int, blockCount)

	for i := 0; i < blockCount; i++ {
		hasAlready[i] = -1
		work[i] = -1
	}

	var worklist []il.BlockEntry

	for varIndex := 0; varIndex < varCount; varIndex++ {
		for blockIndex := 0; blockIndex < blockCount; blockIndex++ {
			if assignedVars[blockIndex].IsSet(varIndex) {
				work[blockIndex] = varIndex
				worklist = append(worklist, preorder[blockIndex])
			}
		}

		for len(worklist) != 0 {
			current := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]

			frontier[current.PreorderNumber()].Range(func(index int) bool {
				if hasAlready[index] >= varIndex {
					return true
				}

				join, ok := preorder[index].(*il.JoinEntry)
				if !ok {
					panic("phi insertion into non-join block")
				}

				join.InsertPhi(varIndex, varCount)
				hasAlready[index] = varIndex

				if work[index] < varIndex {
					work[index] = varIndex
					worklist = append(worklist, join)
				}

				return true
			})
		}
	}
}

func (b *Builder) newSSATempIndex() int {
	i := b.ssaTempIndex
	b.ssaTempIndex++

	return i
}

// rename eliminates LoadLocal and StoreLocal instructions and assigns
// every remaining definition a unique ssa temp index. Unsupported
// shapes bail out to the non-SSA pipeline.
func (b *Builder) rename(varCount int) {
	if b.graphEntry.SuccessorCount() > 1 {
		b.bailout("Catch-entry support in SSA.")
	}

	if b.parsed.CopiedParameterCount != 0 {
		b.bailout("Copied parameter support in SSA")
	}

	if varCount != b.parsed.StackLocalCount+b.parsed.Function.NumFixedParameters {
		panic("inconsistent variable count")
	}

	// The start environment holds a fresh Parameter definition per
	// fixed parameter and null for every local.
	startEnv := make([]il.Value, 0, varCount)

	for i := 0; i < b.parsed.Function.NumFixedParameters; i++ {
		param := il.NewParameter(i)
		param.SetSSATempIndex(b.newSSATempIndex())
		startEnv = append(startEnv, &il.UseVal{Def: param})
	}

	nullValue := &il.ConstantVal{Literal: rt.Null()}
	for i := len(startEnv); i < varCount; i++ {
		startEnv = append(startEnv, nullValue)
	}

	b.graphEntry.StartEnv = il.NewEnvironment(startEnv)

	normalEntry := b.graphEntry.SuccessorAt(0).(il.BlockEntry)

	env := append([]il.Value(nil), startEnv...)
	b.renameRecursive(normalEntry, &env, varCount)
}

func whichPred(pred il.BlockEntry, join *il.JoinEntry) int {
	for i := 0; i < join.PredecessorCount(); i++ {
		if join.PredecessorAt(i) == pred {
			return i
		}
	}

	panic("predecessor not found in join")
}

// renameRecursive walks the dominator tree. The environment doubles
// as the expression stack beyond varCount.
func (b *Builder) renameRecursive(blockEntry il.BlockEntry, env *[]il.Value, varCount int) {
	// Phis first: each gets a fresh ssa temp and defines its variable.
	if join, ok := blockEntry.(*il.JoinEntry); ok {
		for i, phi := range join.Phis {
			if phi == nil {
				continue
			}

			(*env)[i] = &il.UseVal{Def: phi}
			phi.SetSSATempIndex(b.newSSATempIndex())
		}
	}

	current := blockEntry.Successor()
	for current != nil && !il.IsBlockEntry(current) {
		// The environment snapshot feeds later deoptimization.
		current.SetEnv(il.NewEnvironment(*env))

		// Pop the expression stack per use; uses of LoadLocal and
		// StoreLocal definitions are rewritten to the environment
		// value of the variable.
		for i := 0; i < current.InputCount(); i++ {
			use, ok := current.InputAt(i).(*il.UseVal)
			if !ok {
				continue
			}

			if len(*env) <= varCount {
				b.bailout("expression stack underflow in SSA rename")
			}

			*env = (*env)[:len(*env)-1]

			bindDef, ok := use.Def.(*il.BindInstr)
			if !ok {
				continue
			}

			switch comp := bindDef.Comp.(type) {
			case *il.LoadLocalComp:
				current.SetInputAt(i, il.CopyValue((*env)[comp.Local.BitIndex()]))
			case *il.StoreLocalComp:
				current.SetInputAt(i, il.CopyValue((*env)[comp.Local.BitIndex()]))
			}
		}

		var load *il.LoadLocalComp
		var store *il.StoreLocalComp

		switch x := current.(type) {
		case *il.BindInstr:
			switch comp := x.Comp.(type) {
			case *il.LoadLocalComp:
				load = comp
			case *il.StoreLocalComp:
				store = comp
			}
		case *il.DoInstr:
			if _, ok := x.Comp.(*il.LoadLocalComp); ok {
				panic("load local for effect")
			}

			if comp, ok := x.Comp.(*il.StoreLocalComp); ok {
				store = comp
			}
		}

		switch {
		case load != nil:
			// Loads become environment reads on the expression stack.
			index := load.Local.BitIndex()
			*env = append(*env, il.CopyValue((*env)[index]))

			current = il.Remove(current)
		case store != nil:
			// Stores update the environment; a bound store also
			// yields the stored value.
			index := store.Local.BitIndex()
			(*env)[index] = store.Val

			if _, ok := current.(*il.BindInstr); ok {
				*env = append(*env, il.CopyValue((*env)[index]))
			}

			current = il.Remove(current)
		default:
			if bind, ok := current.(*il.BindInstr); ok {
				bind.SetSSATempIndex(b.newSSATempIndex())
				*env = append(*env, &il.UseVal{Def: bind})
			}

			current = current.Successor()
		}
	}

	for _, block := range blockEntry.DominatedBlocks() {
		newEnv := append([]il.Value(nil), *env...)
		b.renameRecursive(block, &newEnv, varCount)
	}

	// The graph is in edge-split form: only a block with a single
	// successor can flow into a join. Patch the phi operand for this
	// predecessor edge.
	last := blockEntry.LastInstruction()
	if last.SuccessorCount() != 1 {
		return
	}

	join, ok := last.SuccessorAt(0).(*il.JoinEntry)
	if !ok {
		return
	}

	predIndex := whichPred(blockEntry, join)

	for i, phi := range join.Phis {
		if phi != nil {
			phi.SetInputAt(predIndex, il.CopyValue((*env)[i]))
		}
	}
}
