package ast

import (
	"github.com/kitelang/kite/compiler/rt"
)

type (
	Pos int

	// LocalVariable is a resolved local. Index is the frame slot for
	// ordinary locals (parameters first, then stack locals) and the
	// context slot for captured ones.
	LocalVariable struct {
		Name  rt.Symbol
		P     Pos
		Type  rt.Type
		Index int

		Captured bool
		Owner    *LocalScope
	}

	LocalScope struct {
		Parent *LocalScope

		Variables []*LocalVariable

		// NumContextVars is the number of captured variables declared
		// here; nonzero means entering the scope allocates a context.
		NumContextVars int
		ContextLvl     int
	}

	// SourceLabel is a break/continue target resolved by the parser.
	// The builder attaches join blocks to it on first use.
	SourceLabel struct {
		Name  rt.Symbol
		Owner *LocalScope

		ContinueTarget bool
	}
)

func NewScope(parent *LocalScope) *LocalScope {
	s := &LocalScope{Parent: parent}

	if parent != nil {
		s.ContextLvl = parent.ContextLvl
	}

	return s
}

func (s *LocalScope) AddVariable(v *LocalVariable) *LocalVariable {
	v.Owner = s
	s.Variables = append(s.Variables, v)

	return v
}

func (s *LocalScope) VariableAt(i int) *LocalVariable {
	return s.Variables[i]
}

func (s *LocalScope) NumContextVariables() int { return s.NumContextVars }

func (s *LocalScope) ContextLevel() int { return s.ContextLvl }

// BitIndex is the variable number used for assigned-variable sets and
// SSA environments. Only meaningful for non-captured locals.
func (v *LocalVariable) BitIndex() int {
	return v.Index
}
