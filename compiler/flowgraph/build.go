// Package flowgraph lowers a type-checked function AST into a
// control-flow graph of three-address instructions and optionally
// converts it to semi-pruned SSA form.
package flowgraph

import (
	"context"
	"fmt"
	"io"
	"os"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/il"
)

type (
	Options struct {
		EliminateTypeChecks bool
		EnableTypeChecks    bool
		PrintAST            bool
		PrintFlowGraph      bool
		UseSSA              bool

		// Sink receives the pretty-printed AST and flow graph when
		// the print flags are set. Defaults to stdout.
		Sink io.Writer
	}

	Builder struct {
		opts   Options
		parsed *ast.ParsedFunction

		preorder  []il.BlockEntry
		postorder []il.BlockEntry

		contextLevel     int
		lastUsedTryIndex int
		tryIdx           int

		graphEntry *il.GraphEntry

		ssaTempIndex int

		breakJoins    map[*ast.SourceLabel]*il.JoinEntry
		continueJoins map[*ast.SourceLabel]*il.JoinEntry
	}

	// BailoutError is the non-fatal abort of the builder for a single
	// function. The driver retries with SSA disabled or reports it.
	BailoutError struct {
		Function string
		Reason   string
		At       loc.PC
	}

	resultMode int

	// fragment is an open piece of graph under construction plus the
	// result mode of the expression being lowered into it.
	fragment struct {
		owner *Builder

		entry il.Instruction
		exit  il.Instruction

		temp int

		mode resultMode
		val  il.Value

		condPos ast.Pos

		trueAddr  **il.TargetEntry
		falseAddr **il.TargetEntry
	}
)

const (
	modeEffect resultMode = iota
	modeValue
	modeTest
)

func DefaultOptions() Options {
	return Options{
		EliminateTypeChecks: true,
		UseSSA:              true,
	}
}

func NewBuilder(parsed *ast.ParsedFunction, opts Options) *Builder {
	if opts.Sink == nil {
		opts.Sink = os.Stdout
	}

	return &Builder{
		opts:             opts,
		parsed:           parsed,
		lastUsedTryIndex: il.InvalidTryIndex,
		tryIdx:           il.InvalidTryIndex,
		breakJoins:       map[*ast.SourceLabel]*il.JoinEntry{},
		continueJoins:    map[*ast.SourceLabel]*il.JoinEntry{},
	}
}

func (e *BailoutError) Error() string {
	return fmt.Sprintf("FlowGraphBuilder Bailout: %v %v", e.Function, e.Reason)
}

func (b *Builder) bailout(reason string) {
	panic(&BailoutError{
		Function: string(b.parsed.Function.Name),
		Reason:   reason,
		At:       loc.Caller(1),
	})
}

// BuildGraph lowers the function into a CFG, discovers and numbers
// its blocks, and runs the SSA pipeline when requested. The graph
// entry holds the preorder and postorder block arrays on return.
func (b *Builder) BuildGraph(ctx context.Context) (_ *il.GraphEntry, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "flowgraph: build", "function", b.parsed.Function.Name)
	defer tr.Finish("err", &err)

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		be, ok := r.(*BailoutError)
		if !ok {
			panic(r)
		}

		tr.Printw("bailout", "reason", be.Reason, "from", be.At)

		err = be
	}()

	if b.opts.PrintAST {
		ast.Print(b.opts.Sink, b.parsed)
	}

	normalEntry := il.NewTargetEntry()
	b.graphEntry = il.NewGraphEntry(normalEntry)

	forEffect := b.effectVisitor(0)
	forEffect.addInstruction(normalEntry)
	forEffect.visit(b.parsed.NodeSequence)

	if forEffect.isOpen() {
		panic("flow graph is not properly terminated")
	}

	varCount := b.parsed.VariableCount()

	preorder, postorder, parent, assignedVars := b.graphEntry.DiscoverBlocks(varCount)
	b.preorder = preorder
	b.postorder = postorder

	tr.Printw("blocks discovered", "blocks", len(postorder), "vars", varCount)

	if b.opts.UseSSA {
		il.ThreadPrevious(postorder)

		frontier := b.computeDominators(preorder, parent)
		b.insertPhis(preorder, assignedVars, varCount, frontier)
		b.rename(varCount)
	}

	if b.opts.PrintFlowGraph {
		il.Print(b.opts.Sink, b.postorder)
	}

	return b.graphEntry, nil
}

func (b *Builder) Preorder() []il.BlockEntry { return b.preorder }
func (b *Builder) Postorder() []il.BlockEntry { return b.postorder }

func (b *Builder) tryIndex() int { return b.tryIdx }

func (b *Builder) setTryIndex(idx int) { b.tryIdx = idx }

func (b *Builder) allocateTryIndex() int {
	b.lastUsedTryIndex++
	return b.lastUsedTryIndex
}

func (b *Builder) addCatchEntry(e *il.TargetEntry) {
	b.graphEntry.AddCatchEntry(e)
}

func (b *Builder) breakJoin(l *ast.SourceLabel) *il.JoinEntry { return b.breakJoins[l] }

func (b *Builder) ensureBreakJoin(l *ast.SourceLabel) *il.JoinEntry {
	j := b.breakJoins[l]
	if j == nil {
		j = il.NewJoinEntry()
		b.breakJoins[l] = j
	}

	return j
}

func (b *Builder) continueJoin(l *ast.SourceLabel) *il.JoinEntry { return b.continueJoins[l] }

func (b *Builder) ensureContinueJoin(l *ast.SourceLabel) *il.JoinEntry {
	j := b.continueJoins[l]
	if j == nil {
		j = il.NewJoinEntry()
		b.continueJoins[l] = j
	}

	return j
}

func (b *Builder) effectVisitor(temp int) *fragment {
	return &fragment{owner: b, temp: temp, mode: modeEffect}
}

func (b *Builder) valueVisitor(temp int) *fragment {
	return &fragment{owner: b, temp: temp, mode: modeValue}
}

func (b *Builder) testVisitor(temp int, condPos ast.Pos) *fragment {
	return &fragment{owner: b, temp: temp, mode: modeTest, condPos: condPos}
}

func (f *fragment) isEmpty() bool { return f.entry == nil }

func (f *fragment) isOpen() bool { return f.isEmpty() || f.exit != nil }

func (f *fragment) forValue() bool { return f.mode != modeEffect }

func (f *fragment) closeFragment() { f.exit = nil }

func (f *fragment) allocateTempIndex() int {
	i := f.temp
	f.temp++

	return i
}

func (f *fragment) deallocateTempIndex(n int) {
	f.temp -= n

	if f.temp < 0 {
		panic("temp index underflow")
	}
}

// append splices another fragment onto this one and inherits its temp
// index. No-op when the other fragment is empty.
func (f *fragment) append(other *fragment) {
	if !f.isOpen() {
		panic("append to closed fragment")
	}

	if other.isEmpty() {
		return
	}

	if f.isEmpty() {
		f.entry = other.entry
		f.exit = other.exit
	} else {
		f.exit.SetSuccessor(other.entry)
		f.exit = other.exit
	}

	f.temp = other.temp
}

// bind wraps a computation into a value-producing instruction,
// adjusting the expression stack accounting.
func (f *fragment) bind(comp il.Computation) *il.UseVal {
	if !f.isOpen() {
		panic("bind on closed fragment")
	}

	f.deallocateTempIndex(comp.InputCount())

	bi := il.NewBind(comp)
	bi.SetTempIndex(f.allocateTempIndex())

	if f.isEmpty() {
		f.entry = bi
	} else {
		f.exit.SetSuccessor(bi)
	}

	f.exit = bi

	return &il.UseVal{Def: bi}
}

func (f *fragment) do(comp il.Computation) {
	if !f.isOpen() {
		panic("do on closed fragment")
	}

	f.deallocateTempIndex(comp.InputCount())

	di := il.NewDo(comp)

	if f.isEmpty() {
		f.entry = di
	} else {
		f.exit.SetSuccessor(di)
	}

	f.exit = di
}

func (f *fragment) addInstruction(instr il.Instruction) {
	if !f.isOpen() {
		panic("add to closed fragment")
	}

	switch instr.(type) {
	case *il.BindInstr, *il.DoInstr:
		panic("use bind or do")
	}

	f.deallocateTempIndex(instr.InputCount())

	if d, ok := instr.(il.Definition); ok {
		d.SetTempIndex(f.allocateTempIndex())
	}

	if f.isEmpty() {
		f.entry = instr
		f.exit = instr
	} else {
		f.exit.SetSuccessor(instr)
		f.exit = instr
	}
}

// appendFragment attaches a fragment after a block entry and returns
// the exit of the result.
func appendFragment(entry il.BlockEntry, fragment *fragment) il.Instruction {
	if fragment.isEmpty() {
		return entry
	}

	entry.SetSuccessor(fragment.entry)

	return fragment.exit
}

// join appends the branch and, if both arms stay open, a join node.
// Open arms must agree on the temp index.
func (f *fragment) join(test, trueFragment, falseFragment *fragment) {
	if !f.isOpen() {
		panic("join on closed fragment")
	}

	f.append(test)

	trueEntry := il.NewTargetEntry()
	*test.trueAddr = trueEntry
	trueExit := appendFragment(trueEntry, trueFragment)

	falseEntry := il.NewTargetEntry()
	*test.falseAddr = falseEntry
	falseExit := appendFragment(falseEntry, falseFragment)

	if trueExit == nil {
		f.exit = falseExit
		if falseExit != nil {
			f.temp = falseFragment.temp
		}
	} else if falseExit == nil {
		f.exit = trueExit
		f.temp = trueFragment.temp
	} else {
		join := il.NewJoinEntry()
		trueExit.SetSuccessor(join)
		falseExit.SetSuccessor(join)
		f.exit = join

		if trueFragment.temp != falseFragment.temp {
			panic("mismatched temp index at join")
		}

		f.temp = trueFragment.temp
	}
}

// tieLoop wires test and body into a while loop and leaves the false
// successor of the test as the open exit.
func (f *fragment) tieLoop(test, body *fragment) {
	if !f.isOpen() {
		panic("tie loop on closed fragment")
	}

	bodyEntry := il.NewTargetEntry()
	*test.trueAddr = bodyEntry
	bodyExit := appendFragment(bodyEntry, body)

	if bodyExit == nil {
		f.append(test)
	} else {
		join := il.NewJoinEntry()
		f.addInstruction(join)
		join.SetSuccessor(test.entry)
		bodyExit.SetSuccessor(join)
	}

	loopExit := il.NewTargetEntry()
	*test.falseAddr = loopExit
	f.exit = loopExit
}

// returnComputation finishes lowering of an expression node according
// to the fragment's result mode.
func (f *fragment) returnComputation(comp il.Computation) {
	switch f.mode {
	case modeEffect:
		f.do(comp)
	default:
		f.returnValue(f.bind(comp))
	}
}

func (f *fragment) returnValue(v il.Value) {
	switch f.mode {
	case modeValue:
		f.val = v
	case modeTest:
		if f.owner.opts.EnableTypeChecks {
			v = f.bind(&il.AssertBooleanComp{
				P:        f.condPos,
				TryIndex: f.owner.tryIndex(),
				Val:      v,
			})
		}

		branch := il.NewBranch(v)
		f.addInstruction(branch)
		f.closeFragment()

		f.trueAddr = branch.TrueSuccessorAddress()
		f.falseAddr = branch.FalseSuccessorAddress()
	default:
		panic("value in effect context")
	}
}

func (f *fragment) value() il.Value {
	if f.val == nil {
		panic("expression produced no value")
	}

	return f.val
}
