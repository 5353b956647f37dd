package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/flowgraph"
	"github.com/kitelang/kite/compiler/rt"
)

// A function with catch entries bails out of SSA; the driver retries
// it with SSA disabled and still produces a graph.
func TestBuildFunctionRetriesBailout(t *testing.T) {
	scope := ast.NewScope(nil)

	e := scope.AddVariable(&ast.LocalVariable{Name: rt.Intern("e"), Type: rt.Dynamic(), Index: 0})
	st := scope.AddVariable(&ast.LocalVariable{Name: rt.Intern("st"), Type: rt.Dynamic(), Index: 1})
	ctxVar := scope.AddVariable(&ast.LocalVariable{Name: rt.Intern(":ctx"), Type: rt.Dynamic(), Index: 2})

	parsed := &ast.ParsedFunction{
		Function: &rt.Function{
			Name:   rt.Intern("guarded"),
			Kind:   rt.FuncNormal,
			Static: true,
			Result: rt.Dynamic(),
		},
		StackLocalCount: 3,
	}

	parsed.NodeSequence = &ast.SequenceNode{
		Scope: scope,
		Nodes: []ast.Node{
			&ast.TryCatchNode{
				TryBlock: &ast.SequenceNode{Nodes: []ast.Node{
					&ast.StoreLocalNode{Local: e, Value: &ast.LiteralNode{Literal: rt.NewSmi(1)}},
				}},
				ContextVar: ctxVar,
				CatchBlock: &ast.CatchClauseNode{
					ExceptionVar:  e,
					StacktraceVar: st,
					ContextVar:    ctxVar,
					Body: &ast.SequenceNode{Nodes: []ast.Node{
						&ast.ThrowNode{Exception: &ast.LoadLocalNode{Local: e}},
					}},
				},
			},
			&ast.ReturnNode{Value: &ast.LiteralNode{Literal: rt.Null()}},
		},
	}

	opts := flowgraph.DefaultOptions()

	g, err := BuildFunction(context.Background(), parsed, opts)
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.Len(t, g.CatchEntries, 1)

	// Without SSA nothing was renamed.
	assert.Nil(t, g.StartEnv)
}
