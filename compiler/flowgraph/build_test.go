package flowgraph

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/il"
	"github.com/kitelang/kite/compiler/rt"
)

type funcFixture struct {
	parsed *ast.ParsedFunction
	scope  *ast.LocalScope
	vars   map[string]*ast.LocalVariable
}

func newFixture(name string, params []string, locals []string) *funcFixture {
	scope := ast.NewScope(nil)
	vars := map[string]*ast.LocalVariable{}

	for i, p := range params {
		vars[p] = scope.AddVariable(&ast.LocalVariable{
			Name:  rt.Intern(p),
			Type:  rt.Dynamic(),
			Index: i,
		})
	}

	for i, l := range locals {
		vars[l] = scope.AddVariable(&ast.LocalVariable{
			Name:  rt.Intern(l),
			Type:  rt.Dynamic(),
			Index: len(params) + i,
		})
	}

	return &funcFixture{
		parsed: &ast.ParsedFunction{
			Function: &rt.Function{
				Name:               rt.Intern(name),
				Kind:               rt.FuncNormal,
				Static:             true,
				Result:             rt.Dynamic(),
				NumFixedParameters: len(params),
			},
			StackLocalCount: len(locals),
		},
		scope: scope,
		vars:  vars,
	}
}

func (x *funcFixture) body(nodes ...ast.Node) *funcFixture {
	x.parsed.NodeSequence = &ast.SequenceNode{Scope: x.scope, Nodes: nodes}
	return x
}

func (x *funcFixture) load(name string) *ast.LoadLocalNode {
	return &ast.LoadLocalNode{Local: x.vars[name]}
}

func (x *funcFixture) store(name string, v ast.Node) *ast.StoreLocalNode {
	return &ast.StoreLocalNode{Local: x.vars[name], Value: v}
}

func intLit(v int) *ast.LiteralNode {
	return &ast.LiteralNode{Literal: rt.NewSmi(v)}
}

func nullLit() *ast.LiteralNode {
	return &ast.LiteralNode{Literal: rt.Null()}
}

func ret(v ast.Node) *ast.ReturnNode {
	return &ast.ReturnNode{Value: v}
}

func seq(nodes ...ast.Node) *ast.SequenceNode {
	return &ast.SequenceNode{Nodes: nodes}
}

func cmp(op ast.Token, l, r ast.Node) *ast.ComparisonNode {
	return &ast.ComparisonNode{Op: op, Left: l, Right: r}
}

func build(t *testing.T, parsed *ast.ParsedFunction, opts Options) (*il.GraphEntry, *Builder) {
	t.Helper()

	b := NewBuilder(parsed, opts)

	g, err := b.BuildGraph(context.Background())
	require.NoError(t, err)

	return g, b
}

// blockInstructions returns the straight-line body of a block.
func blockInstructions(block il.BlockEntry) (r []il.Instruction) {
	if _, ok := block.(*il.GraphEntry); ok {
		return nil
	}

	for cur := block.Successor(); cur != nil && !il.IsBlockEntry(cur); cur = cur.Successor() {
		r = append(r, cur)
	}

	return r
}

func computations(blocks []il.BlockEntry) (r []il.Computation) {
	for _, block := range blocks {
		for _, instr := range blockInstructions(block) {
			switch x := instr.(type) {
			case *il.BindInstr:
				r = append(r, x.Comp)
			case *il.DoInstr:
				r = append(r, x.Comp)
			}
		}
	}

	return r
}

func joins(blocks []il.BlockEntry) (r []*il.JoinEntry) {
	for _, block := range blocks {
		if j, ok := block.(*il.JoinEntry); ok {
			r = append(r, j)
		}
	}

	return r
}

func checkInvariants(t *testing.T, g *il.GraphEntry, ssa bool) {
	t.Helper()

	preorder := g.PreorderBlocks
	postorder := g.PostorderBlocks

	require.Equal(t, len(preorder), len(postorder))

	seen := map[il.BlockEntry]bool{}
	for _, block := range preorder {
		assert.False(t, seen[block], "preorder repeats a block")
		seen[block] = true
	}

	for _, block := range postorder {
		assert.True(t, seen[block], "postorder not a permutation of preorder")
	}

	ssaTemps := map[int]bool{}

	recordSSATemp := func(d il.Definition) {
		idx := d.SSATempIndex()
		require.GreaterOrEqual(t, idx, 0, "definition without ssa temp index")
		assert.False(t, ssaTemps[idx], "duplicate ssa temp index %d", idx)
		ssaTemps[idx] = true
	}

	if ssa {
		require.NotNil(t, g.StartEnv)

		for _, v := range g.StartEnv.Values {
			if use, ok := v.(*il.UseVal); ok {
				recordSSATemp(use.Def)
			}
		}
	}

	for _, block := range postorder {
		// Branches have two successors, terminators none, everything
		// else at most one.
		for _, instr := range blockInstructions(block) {
			switch instr.(type) {
			case *il.BranchInstr:
				assert.Equal(t, 2, instr.SuccessorCount())
			case *il.ReturnInstr, *il.ThrowInstr, *il.ReThrowInstr:
				assert.Equal(t, 0, instr.SuccessorCount())
			default:
				assert.LessOrEqual(t, instr.SuccessorCount(), 1)
			}

			if ssa {
				if bind, ok := instr.(*il.BindInstr); ok {
					switch bind.Comp.(type) {
					case *il.LoadLocalComp, *il.StoreLocalComp:
						t.Errorf("local access survived SSA: %T", bind.Comp)
					}

					recordSSATemp(bind)
				}

				for i := 0; i < instr.InputCount(); i++ {
					if use, ok := instr.InputAt(i).(*il.UseVal); ok {
						assert.GreaterOrEqual(t, use.Def.SSATempIndex(), 0,
							"use of definition without ssa temp index")
					}
				}
			}
		}

		if join, ok := block.(*il.JoinEntry); ok {
			for _, phi := range join.Phis {
				if phi == nil {
					continue
				}

				require.Equal(t, join.PredecessorCount(), len(phi.Inputs))

				if ssa {
					recordSSATemp(phi)

					for _, in := range phi.Inputs {
						assert.NotNil(t, in, "phi operand missing")
					}
				}
			}
		}

		if ssa {
			if block == il.BlockEntry(g) {
				continue
			}

			dom := block.Dominator()
			require.NotNil(t, dom, "block without dominator")

			found := false
			for _, d := range dom.DominatedBlocks() {
				if d == block {
					found = true
				}
			}

			assert.True(t, found, "dominator does not list dominated block")
		}
	}
}

func TestEmptyFunction(t *testing.T) {
	x := newFixture("empty", nil, nil).body(ret(nullLit()))

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	require.Len(t, g.PostorderBlocks, 2)

	normal := g.Normal
	instrs := blockInstructions(normal)
	require.Len(t, instrs, 2)

	retInstr, ok := instrs[1].(*il.ReturnInstr)
	require.True(t, ok)

	c, ok := retInstr.Val.(*il.UseVal)
	require.True(t, ok)

	constant, ok := c.Def.(*il.BindInstr).Comp.(*il.ConstantComp)
	require.True(t, ok)
	assert.True(t, constant.Literal.IsNull())

	assert.Empty(t, joins(g.PostorderBlocks))

	checkInvariants(t, g, false)
}

func TestShortCircuitAnd(t *testing.T) {
	x := newFixture("and", []string{"x", "y"}, []string{"b", ":expr_temp"})
	x.parsed.ExpressionTempVar = x.vars[":expr_temp"]

	x.body(
		x.store("b", &ast.BinaryOpNode{Op: ast.AND, Left: x.load("x"), Right: x.load("y")}),
		ret(x.load("b")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	allJoins := joins(g.PostorderBlocks)
	require.Len(t, allJoins, 1, "short-circuit and needs exactly one join")

	// Both arms converge by storing into the expression temp.
	storeCount := 0
	for _, comp := range computations(g.PostorderBlocks) {
		if s, ok := comp.(*il.StoreLocalComp); ok && s.Local == x.parsed.ExpressionTempVar {
			storeCount++
		}
	}

	assert.Equal(t, 2, storeCount)

	checkInvariants(t, g, false)
}

func TestWhileBreakContinue(t *testing.T) {
	x := newFixture("loop", []string{"p", "q", "n"}, nil)

	label := &ast.SourceLabel{Name: rt.Intern("L"), Owner: x.scope}

	x.body(
		&ast.WhileNode{
			Label:     label,
			Condition: cmp(ast.GT, x.load("n"), intLit(0)),
			Body: seq(
				&ast.IfNode{
					Condition:  cmp(ast.GT, x.load("p"), intLit(0)),
					TrueBranch: seq(&ast.JumpNode{Kind: ast.BREAK, Label: label}),
				},
				&ast.IfNode{
					Condition:  cmp(ast.GT, x.load("q"), intLit(0)),
					TrueBranch: seq(&ast.JumpNode{Kind: ast.CONTINUE, Label: label}),
				},
				x.store("n", &ast.BinaryOpNode{Op: ast.SUB, Left: x.load("n"), Right: intLit(1)}),
			),
		},
		ret(x.load("n")),
	)

	g, b := build(t, x.parsed, Options{EliminateTypeChecks: true})

	// Loop join, continue join, break join; the single-armed ifs fold
	// into the existing control flow without their own joins.
	allJoins := joins(g.PostorderBlocks)
	require.Len(t, allJoins, 3)

	breakJoin := b.breakJoin(label)
	continueJoin := b.continueJoin(label)
	require.NotNil(t, breakJoin)
	require.NotNil(t, continueJoin)
	assert.NotSame(t, breakJoin, continueJoin)

	// The loop condition's false successor is the loop exit, which
	// flows into the break join.
	var cond *il.BranchInstr
	for _, block := range g.PostorderBlocks {
		for _, instr := range blockInstructions(block) {
			if br, ok := instr.(*il.BranchInstr); ok {
				if br.False.Successor() == il.Instruction(breakJoin) {
					cond = br
				}
			}
		}
	}

	require.NotNil(t, cond, "loop exit target must flow into the break join")

	checkInvariants(t, g, false)
}

func TestTryCatchFinally(t *testing.T) {
	x := newFixture("guarded", []string{"a"}, []string{"e", "st", ":saved_try_context"})

	catch := &ast.CatchClauseNode{
		ExceptionVar:  x.vars["e"],
		StacktraceVar: x.vars["st"],
		ContextVar:    x.vars[":saved_try_context"],
		Body: seq(
			&ast.ThrowNode{Exception: x.load("e"), Stacktrace: x.load("st")},
		),
	}

	x.body(
		&ast.TryCatchNode{
			TryBlock: seq(
				&ast.StaticCallNode{
					Function: &rt.Function{Name: rt.Intern("may_throw"), Static: true},
					Args:     &ast.ArgumentListNode{},
				},
			),
			ContextVar:   x.vars[":saved_try_context"],
			CatchBlock:   catch,
			FinallyBlock: seq(x.store("e", nullLit())),
		},
		&ast.ReturnNode{
			Value: nullLit(),
			InlinedFinally: []*ast.InlinedFinallyNode{{
				FinallyBlock: seq(x.store("st", nullLit())),
				ContextVar:   x.vars[":saved_try_context"],
			}},
		},
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	require.Len(t, g.CatchEntries, 1)
	assert.Equal(t, 0, g.CatchEntries[0].TryIndex())
	assert.Equal(t, 0, catch.TryIndex)

	// Calls in the try block carry the try index; the rethrow inside
	// the catch belongs to the outer handler.
	foundGuarded := false
	for _, comp := range computations(g.PostorderBlocks) {
		if call, ok := comp.(*il.StaticCallComp); ok && call.Function.Name == rt.Intern("may_throw") {
			assert.Equal(t, 0, call.TryIndex)
			foundGuarded = true
		}
	}

	assert.True(t, foundGuarded)

	rethrows := 0
	for _, block := range g.PostorderBlocks {
		for _, instr := range blockInstructions(block) {
			if rti, ok := instr.(*il.ReThrowInstr); ok {
				assert.Equal(t, il.InvalidTryIndex, rti.TryIdx)
				rethrows++
			}
		}
	}

	assert.Equal(t, 1, rethrows)

	checkInvariants(t, g, false)
}

func TestCapturedVariableAccess(t *testing.T) {
	x := newFixture("capturing", nil, []string{":saved_context", "tmp"})

	// An outer scope allocating a context at level 1 owning a
	// captured variable, read from an inner scope at level 2: the
	// load walks one parent link before indexing the slot.
	outer := x.scope
	outer.NumContextVars = 1
	outer.ContextLvl = 1

	captured := outer.AddVariable(&ast.LocalVariable{
		Name:     rt.Intern("c"),
		Type:     rt.Dynamic(),
		Index:    0,
		Captured: true,
	})

	inner := ast.NewScope(outer)
	inner.NumContextVars = 1
	inner.ContextLvl = 2

	x.parsed.SavedContextVar = x.vars[":saved_context"]

	x.body(
		&ast.SequenceNode{
			Scope: inner,
			Nodes: []ast.Node{
				&ast.StoreLocalNode{Local: x.vars["tmp"], Value: &ast.LoadLocalNode{Local: captured}},
			},
		},
		ret(nullLit()),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	foundHop := false
	foundSlot := false

	for _, comp := range computations(g.PostorderBlocks) {
		load, ok := comp.(*il.LoadVMFieldComp)
		if !ok {
			continue
		}

		switch load.OffsetInBytes {
		case rt.ContextParentOffset():
			foundHop = true
		case rt.ContextVariableOffset(0):
			foundSlot = true
		}
	}

	assert.True(t, foundHop, "captured access must hop the context parent chain")
	assert.True(t, foundSlot, "captured access must index the variable slot")

	checkInvariants(t, g, false)
}

// Two case expressions and a default: the tests chain through their
// false successors and all matches converge on one statement join.
func TestSwitchCaseChain(t *testing.T) {
	x := newFixture("sw", []string{"v"}, nil)

	label := &ast.SourceLabel{Name: rt.Intern("S"), Owner: x.scope}

	x.body(
		&ast.SwitchNode{
			Label: label,
			Body: seq(&ast.CaseNode{
				Expressions: []ast.Node{
					cmp(ast.EQ, x.load("v"), intLit(1)),
					cmp(ast.EQ, x.load("v"), intLit(2)),
				},
				ContainsDefault: true,
				Statements:      seq(x.store("v", intLit(0))),
			}),
		},
		ret(x.load("v")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	allJoins := joins(g.PostorderBlocks)
	require.Len(t, allJoins, 1, "two cases plus default share one statement join")
	assert.Equal(t, 3, allJoins[0].PredecessorCount())

	checkInvariants(t, g, false)
}

func TestDeterministicRebuild(t *testing.T) {
	mk := func() *ast.ParsedFunction {
		x := newFixture("det", []string{"p", "x"}, nil)
		x.body(
			&ast.IfNode{
				Condition:   cmp(ast.GT, x.load("p"), intLit(0)),
				TrueBranch:  seq(x.store("x", intLit(1))),
				FalseBranch: seq(x.store("x", intLit(2))),
			},
			ret(x.load("x")),
		)

		return x.parsed
	}

	print := func(g *il.GraphEntry) string {
		var buf bytes.Buffer
		il.Print(&buf, g.PostorderBlocks)
		return buf.String()
	}

	g1, _ := build(t, mk(), Options{EliminateTypeChecks: true, UseSSA: true})
	g2, _ := build(t, mk(), Options{EliminateTypeChecks: true, UseSSA: true})

	assert.Equal(t, print(g1), print(g2))
}

func TestDiscoveryIdempotent(t *testing.T) {
	x := newFixture("rediscover", []string{"p"}, nil)
	x.body(
		&ast.IfNode{
			Condition:  cmp(ast.GT, x.load("p"), intLit(0)),
			TrueBranch: seq(ret(intLit(1))),
		},
		ret(intLit(2)),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true})

	varCount := x.parsed.VariableCount()

	pre1 := append([]il.BlockEntry(nil), g.PreorderBlocks...)
	post1 := append([]il.BlockEntry(nil), g.PostorderBlocks...)

	ids1 := make([]int, len(post1))
	for i, b := range post1 {
		ids1[i] = b.BlockID()
	}

	pre2, post2, _, _ := g.DiscoverBlocks(varCount)

	require.Equal(t, len(pre1), len(pre2))
	require.Equal(t, len(post1), len(post2))

	for i := range pre1 {
		assert.Same(t, pre1[i], pre2[i])
	}

	for i := range post1 {
		assert.Same(t, post1[i], post2[i])
		assert.Equal(t, ids1[i], post2[i].BlockID())
	}
}
