package flowgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/il"
	"github.com/kitelang/kite/compiler/rt"
)

func allPhis(g *il.GraphEntry) (r []*il.PhiInstr) {
	for _, j := range joins(g.PostorderBlocks) {
		for _, phi := range j.Phis {
			if phi != nil {
				r = append(r, phi)
			}
		}
	}

	return r
}

// A diamond with a store to x on each arm produces exactly one phi
// for x at the join and none for unassigned variables.
func TestDiamondSinglePhi(t *testing.T) {
	x := newFixture("diamond", []string{"p"}, []string{"x", "y"})
	x.body(
		&ast.IfNode{
			Condition:   cmp(ast.GT, x.load("p"), intLit(0)),
			TrueBranch:  seq(x.store("x", intLit(1))),
			FalseBranch: seq(x.store("x", intLit(2))),
		},
		ret(x.load("x")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	phis := allPhis(g)
	require.Len(t, phis, 1)

	join := joins(g.PostorderBlocks)[0]
	assert.Equal(t, x.vars["x"].BitIndex(), phiVarIndex(join, phis[0]))
	assert.Nil(t, join.Phis[x.vars["y"].BitIndex()], "no phi for unassigned variable")

	checkInvariants(t, g, true)
}

func phiVarIndex(join *il.JoinEntry, phi *il.PhiInstr) int {
	for i, p := range join.Phis {
		if p == phi {
			return i
		}
	}

	return -1
}

// In SSA the short-circuit AND leaves a single phi for the expression
// temp's slot at the post-test join.
func TestShortCircuitAndSSA(t *testing.T) {
	x := newFixture("and", []string{"x", "y"}, []string{"b", ":expr_temp"})
	x.parsed.ExpressionTempVar = x.vars[":expr_temp"]

	x.body(
		x.store("b", &ast.BinaryOpNode{Op: ast.AND, Left: x.load("x"), Right: x.load("y")}),
		ret(x.load("b")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	phis := allPhis(g)
	require.Len(t, phis, 1)

	join := joins(g.PostorderBlocks)[0]
	assert.Equal(t, x.parsed.ExpressionTempVar.BitIndex(), phiVarIndex(join, phis[0]))

	checkInvariants(t, g, true)
}

// Loops place a phi at the loop-top join for the assigned induction
// variable, fed by the entry edge and the back edge.
func TestLoopPhi(t *testing.T) {
	x := newFixture("countdown", []string{"n"}, nil)
	x.body(
		&ast.WhileNode{
			Label:     &ast.SourceLabel{Name: rt.Intern("L"), Owner: x.scope},
			Condition: cmp(ast.GT, x.load("n"), intLit(0)),
			Body: seq(
				x.store("n", &ast.BinaryOpNode{Op: ast.SUB, Left: x.load("n"), Right: intLit(1)}),
			),
		},
		ret(x.load("n")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	phis := allPhis(g)
	require.Len(t, phis, 1)
	assert.Len(t, phis[0].Inputs, 2)

	checkInvariants(t, g, true)
}

// A for loop with a continue keeps two joins (loop top and continue)
// but only the induction variable needs a phi, at the loop top.
func TestForLoopContinuePhi(t *testing.T) {
	x := newFixture("forloop", []string{"p", "n"}, []string{"i"})

	label := &ast.SourceLabel{Name: rt.Intern("F"), Owner: x.scope}

	x.body(
		&ast.ForNode{
			Label:       label,
			Initializer: seq(x.store("i", intLit(0))),
			Condition:   cmp(ast.LT, x.load("i"), x.load("n")),
			Increment: seq(x.store("i", &ast.BinaryOpNode{
				Op:    ast.ADD,
				Left:  x.load("i"),
				Right: intLit(1),
			})),
			Body: seq(
				&ast.IfNode{
					Condition:  cmp(ast.GT, x.load("p"), intLit(0)),
					TrueBranch: seq(&ast.JumpNode{Kind: ast.CONTINUE, Label: label}),
				},
			),
		},
		ret(x.load("i")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	require.Len(t, joins(g.PostorderBlocks), 2)

	phis := allPhis(g)
	require.Len(t, phis, 1)
	assert.Len(t, phis[0].Inputs, 2)

	checkInvariants(t, g, true)
}

// Do-while places the back edge after the bottom test; the body-entry
// join carries the phi.
func TestDoWhilePhi(t *testing.T) {
	x := newFixture("dowhile", []string{"n"}, nil)

	x.body(
		&ast.DoWhileNode{
			Label:     &ast.SourceLabel{Name: rt.Intern("D"), Owner: x.scope},
			Condition: cmp(ast.GT, x.load("n"), intLit(0)),
			Body: seq(x.store("n", &ast.BinaryOpNode{
				Op:    ast.SUB,
				Left:  x.load("n"),
				Right: intLit(1),
			})),
		},
		ret(x.load("n")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	require.Len(t, joins(g.PostorderBlocks), 1)

	phis := allPhis(g)
	require.Len(t, phis, 1)
	assert.Len(t, phis[0].Inputs, 2)

	checkInvariants(t, g, true)
}

func TestParametersGetSSAIndexes(t *testing.T) {
	x := newFixture("params", []string{"a", "b"}, nil)
	x.body(ret(x.load("a")))

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	require.NotNil(t, g.StartEnv)
	require.Len(t, g.StartEnv.Values, 2)

	for i, v := range g.StartEnv.Values {
		use, ok := v.(*il.UseVal)
		require.True(t, ok)

		param, ok := use.Def.(*il.ParameterInstr)
		require.True(t, ok)
		assert.Equal(t, i, param.Index)
		assert.GreaterOrEqual(t, param.SSATempIndex(), 0)
	}

	checkInvariants(t, g, true)
}

func TestSSABailsOutOnCatchEntries(t *testing.T) {
	x := newFixture("guarded", nil, []string{"e", "st", ":ctx"})
	x.body(
		&ast.TryCatchNode{
			TryBlock:   seq(x.store("e", intLit(1))),
			ContextVar: x.vars[":ctx"],
			CatchBlock: &ast.CatchClauseNode{
				ExceptionVar:  x.vars["e"],
				StacktraceVar: x.vars["st"],
				ContextVar:    x.vars[":ctx"],
				Body:          seq(&ast.ThrowNode{Exception: x.load("e")}),
			},
		},
		ret(nullLit()),
	)

	b := NewBuilder(x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	_, err := b.BuildGraph(context.Background())
	require.Error(t, err)

	bailout, ok := err.(*BailoutError)
	require.True(t, ok)
	assert.Contains(t, bailout.Error(), "FlowGraphBuilder Bailout: guarded")
	assert.Contains(t, bailout.Reason, "Catch-entry")

	// The same function builds fine without SSA.
	_, err = NewBuilder(x.parsed, Options{EliminateTypeChecks: true}).BuildGraph(context.Background())
	require.NoError(t, err)
}

func TestSSABailsOutOnCopiedParameters(t *testing.T) {
	x := newFixture("optional", []string{"a"}, nil)
	x.parsed.CopiedParameterCount = 1
	x.body(ret(x.load("a")))

	_, err := NewBuilder(x.parsed, Options{EliminateTypeChecks: true, UseSSA: true}).
		BuildGraph(context.Background())
	require.Error(t, err)

	bailout, ok := err.(*BailoutError)
	require.True(t, ok)
	assert.Contains(t, bailout.Reason, "Copied parameter")
}

// Every phi operand must be the environment value on the edge from
// the corresponding predecessor: for the diamond, the two constant
// stores arrive in predecessor order.
func TestPhiOperandsFollowPredecessorOrder(t *testing.T) {
	x := newFixture("order", []string{"p"}, []string{"x"})
	x.body(
		&ast.IfNode{
			Condition:   cmp(ast.GT, x.load("p"), intLit(0)),
			TrueBranch:  seq(x.store("x", intLit(1))),
			FalseBranch: seq(x.store("x", intLit(2))),
		},
		ret(x.load("x")),
	)

	g, _ := build(t, x.parsed, Options{EliminateTypeChecks: true, UseSSA: true})

	join := joins(g.PostorderBlocks)[0]
	phi := allPhis(g)[0]

	for i := 0; i < join.PredecessorCount(); i++ {
		pred := join.PredecessorAt(i)

		use, ok := phi.Inputs[i].(*il.UseVal)
		require.True(t, ok)

		bind, ok := use.Def.(*il.BindInstr)
		require.True(t, ok)

		constant, ok := bind.Comp.(*il.ConstantComp)
		require.True(t, ok, "phi operand should be the stored constant")

		// The store constant must live in the predecessor block.
		found := false
		for _, instr := range blockInstructions(pred) {
			if instr == il.Instruction(bind) {
				found = true
			}
		}

		assert.True(t, found, "phi operand %d does not come from predecessor %d", i, i)

		want := 1
		if i == 1 {
			want = 2
		}

		assert.Equal(t, want, constant.Literal.Value)
	}
}
