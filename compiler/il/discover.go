package il

import (
	"github.com/kitelang/kite/compiler/set"
)

type discovery struct {
	varCount int

	visited map[BlockEntry]bool

	preorder  []BlockEntry
	postorder []BlockEntry
	parent    []int
	assigned  []*set.Bitmap
}

// DiscoverBlocks performs a depth-first traversal of the graph and
// returns the preorder and postorder block arrays, the spanning-tree
// parent of each block (by preorder number) and the set of variables
// assigned in each block. Blocks are numbered in reverse postorder.
// Re-running discovery on the same graph reproduces the same arrays.
func (g *GraphEntry) DiscoverBlocks(varCount int) (preorder, postorder []BlockEntry, parent []int, assignedVars []*set.Bitmap) {
	d := &discovery{
		varCount: varCount,
		visited:  map[BlockEntry]bool{},
	}

	d.visit(g, nil)

	n := len(d.postorder)
	for i, b := range d.postorder {
		b.SetBlockID(n - i - 1)
	}

	g.PreorderBlocks = d.preorder
	g.PostorderBlocks = d.postorder

	return d.preorder, d.postorder, d.parent, d.assigned
}

func (d *discovery) visit(block, pred BlockEntry) {
	if d.visited[block] {
		block.AddPredecessor(pred)
		return
	}

	d.visited[block] = true

	block.ClearPredecessors()
	block.ClearDominance()

	if pred != nil {
		block.AddPredecessor(pred)
	}

	parentNum := -1
	if pred != nil {
		parentNum = pred.PreorderNumber()
	}

	block.SetPreorderNumber(len(d.preorder))
	block.SetPostorderNumber(-1)
	d.preorder = append(d.preorder, block)
	d.parent = append(d.parent, parentNum)

	vars := set.NewBitmap(d.varCount)

	// Walk the straight-line body up to the next block entry or the
	// end of the block.
	last := Instruction(block)
	next := Instruction(nil)

	if _, ok := block.(*GraphEntry); !ok {
		cur := block.Successor()
		for cur != nil && !IsBlockEntry(cur) {
			recordAssignedVars(cur, vars, d.varCount)
			last = cur
			cur = cur.Successor()
		}

		next = cur
	}

	block.SetLastInstruction(last)
	d.assigned = append(d.assigned, vars)

	switch x := last.(type) {
	case *GraphEntry:
		for i := 0; i < x.SuccessorCount(); i++ {
			d.visit(x.SuccessorAt(i).(BlockEntry), block)
		}
	case *BranchInstr:
		d.visit(x.True, block)
		d.visit(x.False, block)
	default:
		if next != nil {
			d.visit(next.(BlockEntry), block)
		}
	}

	block.SetPostorderNumber(len(d.postorder))
	d.postorder = append(d.postorder, block)
}

func recordAssignedVars(i Instruction, vars *set.Bitmap, varCount int) {
	var comp Computation

	switch x := i.(type) {
	case *BindInstr:
		comp = x.Comp
	case *DoInstr:
		comp = x.Comp
	default:
		return
	}

	store, ok := comp.(*StoreLocalComp)
	if !ok || store.Local.Captured {
		return
	}

	if idx := store.Local.BitIndex(); idx < varCount {
		vars.Set(idx)
	}
}

// ThreadPrevious links instructions backwards within each block; the
// SSA passes need the links to unlink eliminated instructions.
func ThreadPrevious(postorder []BlockEntry) {
	for _, block := range postorder {
		prev := Instruction(block)
		cur := prev.Successor()

		if _, ok := block.(*GraphEntry); ok {
			continue
		}

		for cur != nil && !IsBlockEntry(cur) {
			cur.SetPrevious(prev)
			prev = cur
			cur = cur.Successor()
		}
	}
}
