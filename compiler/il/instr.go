package il

import (
	"github.com/kitelang/kite/compiler/ast"
)

type (
	// Instruction is a node of the flow graph. Straight-line
	// instructions have one successor; branches have two; block
	// entries are structural; terminators have none.
	Instruction interface {
		Successor() Instruction
		SetSuccessor(Instruction)

		Previous() Instruction
		SetPrevious(Instruction)

		Env() *Environment
		SetEnv(*Environment)

		InputCount() int
		InputAt(i int) Value
		SetInputAt(i int, v Value)

		SuccessorCount() int
		SuccessorAt(i int) Instruction
	}

	// Definition is an instruction producing a value: it owns an
	// expression-stack temp index and, after SSA, an ssa temp index.
	Definition interface {
		Instruction

		TempIndex() int
		SetTempIndex(int)
		SSATempIndex() int
		SetSSATempIndex(int)
	}

	BlockEntry interface {
		Instruction

		PreorderNumber() int
		SetPreorderNumber(int)
		PostorderNumber() int
		SetPostorderNumber(int)
		BlockID() int
		SetBlockID(int)

		Dominator() BlockEntry
		SetDominator(BlockEntry)
		DominatedBlocks() []BlockEntry
		AddDominatedBlock(BlockEntry)
		ClearDominance()

		PredecessorCount() int
		PredecessorAt(i int) BlockEntry
		AddPredecessor(BlockEntry)
		ClearPredecessors()

		LastInstruction() Instruction
		SetLastInstruction(Instruction)

		TryIndex() int
	}

	instr struct {
		succ Instruction
		prev Instruction
		env  *Environment
	}

	defn struct {
		instr

		temp    int
		ssaTemp int
	}

	blockEntry struct {
		instr

		preorderNum  int
		postorderNum int
		blockID      int

		dominator BlockEntry
		dominated []BlockEntry

		last Instruction
	}

	BindInstr struct {
		defn

		Comp Computation
	}

	DoInstr struct {
		instr

		Comp Computation
	}

	BranchInstr struct {
		instr

		Val Value

		True  *TargetEntry
		False *TargetEntry
	}

	ReturnInstr struct {
		instr

		P   ast.Pos
		Val Value
	}

	ThrowInstr struct {
		instr

		P         ast.Pos
		TryIdx    int
		Exception Value
	}

	ReThrowInstr struct {
		instr

		P          ast.Pos
		TryIdx     int
		Exception  Value
		Stacktrace Value
	}

	// ParameterInstr is a formal parameter definition materialized by
	// SSA renaming; it never appears in the instruction chain.
	ParameterInstr struct {
		defn

		Index int
	}

	PhiInstr struct {
		defn

		Inputs []Value
	}

	GraphEntry struct {
		blockEntry

		Normal       *TargetEntry
		CatchEntries []*TargetEntry

		// Block orders populated by discovery.
		PreorderBlocks  []BlockEntry
		PostorderBlocks []BlockEntry

		StartEnv *Environment
	}

	TargetEntry struct {
		blockEntry

		tryIdx int
		pred   BlockEntry
	}

	JoinEntry struct {
		blockEntry

		preds []BlockEntry

		// Phis is indexed by variable number; nil slots mean no phi
		// for that variable.
		Phis []*PhiInstr
	}
)

func (i *instr) Successor() Instruction { return i.succ }
func (i *instr) SetSuccessor(s Instruction) { i.succ = s }
func (i *instr) Previous() Instruction { return i.prev }
func (i *instr) SetPrevious(p Instruction) { i.prev = p }
func (i *instr) Env() *Environment { return i.env }
func (i *instr) SetEnv(e *Environment) { i.env = e }

func (i *instr) InputCount() int { return 0 }
func (i *instr) InputAt(int) Value { panic("no inputs") }
func (i *instr) SetInputAt(int, Value) { panic("no inputs") }

func (i *instr) SuccessorCount() int {
	if i.succ == nil {
		return 0
	}

	return 1
}

func (i *instr) SuccessorAt(n int) Instruction {
	if n != 0 || i.succ == nil {
		panic(n)
	}

	return i.succ
}

func (d *defn) TempIndex() int { return d.temp }
func (d *defn) SetTempIndex(i int) { d.temp = i }
func (d *defn) SSATempIndex() int { return d.ssaTemp }
func (d *defn) SetSSATempIndex(i int) { d.ssaTemp = i }

func newDefn() defn {
	return defn{temp: -1, ssaTemp: -1}
}

func NewBind(c Computation) *BindInstr {
	return &BindInstr{defn: newDefn(), Comp: c}
}

func NewDo(c Computation) *DoInstr {
	return &DoInstr{Comp: c}
}

func (b *BindInstr) InputCount() int { return b.Comp.InputCount() }
func (b *BindInstr) InputAt(i int) Value { return b.Comp.InputAt(i) }
func (b *BindInstr) SetInputAt(i int, v Value) { b.Comp.SetInputAt(i, v) }

func (d *DoInstr) InputCount() int { return d.Comp.InputCount() }
func (d *DoInstr) InputAt(i int) Value { return d.Comp.InputAt(i) }
func (d *DoInstr) SetInputAt(i int, v Value) { d.Comp.SetInputAt(i, v) }

func NewBranch(v Value) *BranchInstr {
	return &BranchInstr{Val: v}
}

func (b *BranchInstr) InputCount() int { return 1 }
func (b *BranchInstr) InputAt(i int) Value { return *pick(i, &b.Val) }
func (b *BranchInstr) SetInputAt(i int, v Value) { *pick(i, &b.Val) = v }

func (b *BranchInstr) SetSuccessor(Instruction) { panic("branch successors are slots") }

func (b *BranchInstr) SuccessorCount() int { return 2 }

func (b *BranchInstr) SuccessorAt(i int) Instruction {
	switch i {
	case 0:
		return b.True
	case 1:
		return b.False
	default:
		panic(i)
	}
}

// TrueSuccessorAddress is a stable slot a later caller assigns the
// true target into.
func (b *BranchInstr) TrueSuccessorAddress() **TargetEntry { return &b.True }
func (b *BranchInstr) FalseSuccessorAddress() **TargetEntry { return &b.False }

func (r *ReturnInstr) InputCount() int { return 1 }
func (r *ReturnInstr) InputAt(i int) Value { return *pick(i, &r.Val) }
func (r *ReturnInstr) SetInputAt(i int, v Value) { *pick(i, &r.Val) = v }

func (r *ReturnInstr) SetSuccessor(Instruction) { panic("terminator") }
func (r *ReturnInstr) SuccessorCount() int { return 0 }

func (t *ThrowInstr) InputCount() int { return 1 }
func (t *ThrowInstr) InputAt(i int) Value { return *pick(i, &t.Exception) }
func (t *ThrowInstr) SetInputAt(i int, v Value) { *pick(i, &t.Exception) = v }

// A throw in value position gets a trailing constant spliced after
// it, so the raw successor link stays writable; the instruction still
// reports no control-flow successors.
func (t *ThrowInstr) SuccessorCount() int { return 0 }

func (t *ReThrowInstr) InputCount() int { return 2 }
func (t *ReThrowInstr) InputAt(i int) Value { return *pick(i, &t.Exception, &t.Stacktrace) }
func (t *ReThrowInstr) SetInputAt(i int, v Value) {
	*pick(i, &t.Exception, &t.Stacktrace) = v
}

func (t *ReThrowInstr) SuccessorCount() int { return 0 }

func NewParameter(i int) *ParameterInstr {
	return &ParameterInstr{defn: newDefn(), Index: i}
}

func NewPhi(argc int) *PhiInstr {
	return &PhiInstr{defn: newDefn(), Inputs: make([]Value, argc)}
}

func (p *PhiInstr) InputCount() int { return len(p.Inputs) }
func (p *PhiInstr) InputAt(i int) Value { return p.Inputs[i] }
func (p *PhiInstr) SetInputAt(i int, v Value) { p.Inputs[i] = v }

func newBlockEntry() blockEntry {
	return blockEntry{preorderNum: -1, postorderNum: -1, blockID: -1}
}

func (b *blockEntry) PreorderNumber() int { return b.preorderNum }
func (b *blockEntry) SetPreorderNumber(n int) { b.preorderNum = n }
func (b *blockEntry) PostorderNumber() int { return b.postorderNum }
func (b *blockEntry) SetPostorderNumber(n int) { b.postorderNum = n }
func (b *blockEntry) BlockID() int { return b.blockID }
func (b *blockEntry) SetBlockID(n int) { b.blockID = n }

func (b *blockEntry) Dominator() BlockEntry { return b.dominator }
func (b *blockEntry) SetDominator(d BlockEntry) { b.dominator = d }
func (b *blockEntry) DominatedBlocks() []BlockEntry { return b.dominated }

func (b *blockEntry) AddDominatedBlock(d BlockEntry) {
	b.dominated = append(b.dominated, d)
}

func (b *blockEntry) ClearDominance() {
	b.dominator = nil
	b.dominated = nil
}

func (b *blockEntry) LastInstruction() Instruction { return b.last }
func (b *blockEntry) SetLastInstruction(i Instruction) { b.last = i }

func (b *blockEntry) TryIndex() int { return InvalidTryIndex }

func NewGraphEntry(normal *TargetEntry) *GraphEntry {
	return &GraphEntry{blockEntry: newBlockEntry(), Normal: normal}
}

func (g *GraphEntry) AddCatchEntry(e *TargetEntry) {
	g.CatchEntries = append(g.CatchEntries, e)
}

func (g *GraphEntry) SetSuccessor(Instruction) { panic("graph entry has fixed successors") }

func (g *GraphEntry) SuccessorCount() int { return 1 + len(g.CatchEntries) }

func (g *GraphEntry) SuccessorAt(i int) Instruction {
	if i == 0 {
		return g.Normal
	}

	return g.CatchEntries[i-1]
}

func (g *GraphEntry) PredecessorCount() int { return 0 }
func (g *GraphEntry) PredecessorAt(int) BlockEntry { panic("graph entry has no predecessors") }
func (g *GraphEntry) AddPredecessor(BlockEntry) { panic("graph entry has no predecessors") }
func (g *GraphEntry) ClearPredecessors() {}

func NewTargetEntry() *TargetEntry {
	return &TargetEntry{blockEntry: newBlockEntry(), tryIdx: InvalidTryIndex}
}

func NewCatchTargetEntry(tryIndex int) *TargetEntry {
	return &TargetEntry{blockEntry: newBlockEntry(), tryIdx: tryIndex}
}

func (t *TargetEntry) TryIndex() int { return t.tryIdx }

func (t *TargetEntry) PredecessorCount() int {
	if t.pred == nil {
		return 0
	}

	return 1
}

func (t *TargetEntry) PredecessorAt(i int) BlockEntry {
	if i != 0 || t.pred == nil {
		panic(i)
	}

	return t.pred
}

func (t *TargetEntry) AddPredecessor(p BlockEntry) {
	if t.pred != nil {
		panic("target entry predecessor already set")
	}

	t.pred = p
}

func (t *TargetEntry) ClearPredecessors() { t.pred = nil }

func NewJoinEntry() *JoinEntry {
	return &JoinEntry{blockEntry: newBlockEntry()}
}

func (j *JoinEntry) PredecessorCount() int { return len(j.preds) }
func (j *JoinEntry) PredecessorAt(i int) BlockEntry { return j.preds[i] }

func (j *JoinEntry) AddPredecessor(p BlockEntry) {
	j.preds = append(j.preds, p)
}

func (j *JoinEntry) ClearPredecessors() { j.preds = nil }

// InsertPhi places a phi for variable varIndex with one operand per
// predecessor, in predecessor-index order.
func (j *JoinEntry) InsertPhi(varIndex, varCount int) *PhiInstr {
	if j.Phis == nil {
		j.Phis = make([]*PhiInstr, varCount)
	}

	phi := NewPhi(j.PredecessorCount())
	j.Phis[varIndex] = phi

	return phi
}

// Remove unlinks a straight-line instruction from its block. Previous
// links must be threaded. Returns the removed instruction's successor.
func Remove(i Instruction) Instruction {
	prev := i.Previous()
	next := i.Successor()

	prev.SetSuccessor(next)

	if next != nil {
		next.SetPrevious(prev)
	}

	return next
}

func IsBlockEntry(i Instruction) bool {
	_, ok := i.(BlockEntry)
	return ok
}
