// Package ast is the type-checked abstract syntax tree the flow-graph
// builder consumes, together with the resolved scope information
// produced by the semantic analyzer.
package ast

import (
	"github.com/kitelang/kite/compiler/rt"
)

type (
	Node interface {
		Pos() Pos
	}

	Base struct {
		P Pos
	}

	Token int

	// ParsedFunction is the analyzed function handed to the builder.
	ParsedFunction struct {
		Function *rt.Function

		NodeSequence *SequenceNode

		StackLocalCount      int
		CopiedParameterCount int

		ExpressionTempVar *LocalVariable
		SavedContextVar   *LocalVariable

		// InstantiatorNode evaluates to the receiver (or the first
		// factory parameter) when uninstantiated types occur.
		InstantiatorNode Node
	}

	SequenceNode struct {
		Base

		Scope *LocalScope
		Nodes []Node
		Label *SourceLabel
	}

	ReturnNode struct {
		Base

		Value          Node
		InlinedFinally []*InlinedFinallyNode
	}

	LiteralNode struct {
		Base

		Literal *rt.Instance
	}

	TypeNode struct {
		Base

		Type rt.Type
	}

	AssignableNode struct {
		Base

		Expr Node
		Type rt.Type
		Name rt.Symbol
	}

	BinaryOpNode struct {
		Base

		Op    Token
		Left  Node
		Right Node
	}

	ComparisonNode struct {
		Base

		Op    Token
		Left  Node
		Right Node
	}

	UnaryOpNode struct {
		Base

		Op      Token
		Operand Node
	}

	ConditionalExprNode struct {
		Base

		Condition Node
		TrueExpr  Node
		FalseExpr Node
	}

	IfNode struct {
		Base

		Condition   Node
		TrueBranch  *SequenceNode
		FalseBranch *SequenceNode
	}

	SwitchNode struct {
		Base

		Label *SourceLabel
		Body  *SequenceNode
	}

	CaseNode struct {
		Base

		Label           *SourceLabel
		Expressions     []Node
		ContainsDefault bool
		Statements      *SequenceNode
	}

	WhileNode struct {
		Base

		Label     *SourceLabel
		Condition Node
		Body      *SequenceNode
	}

	DoWhileNode struct {
		Base

		Label     *SourceLabel
		Condition Node
		Body      *SequenceNode
	}

	ForNode struct {
		Base

		Label       *SourceLabel
		Initializer *SequenceNode
		Condition   Node
		Increment   *SequenceNode
		Body        *SequenceNode
	}

	JumpNode struct {
		Base

		Kind           Token
		Label          *SourceLabel
		InlinedFinally []*InlinedFinallyNode
	}

	ArgumentListNode struct {
		Base

		Nodes []Node
		Names []rt.Symbol
	}

	ArrayNode struct {
		Base

		Elements []Node
		TypeArgs *rt.TypeArguments
	}

	ClosureNode struct {
		Base

		Function *rt.Function
		Receiver Node
		Scope    *LocalScope
	}

	InstanceCallNode struct {
		Base

		Receiver Node
		Name     rt.Symbol
		Args     *ArgumentListNode
	}

	InstanceGetterNode struct {
		Base

		Receiver  Node
		FieldName rt.Symbol
	}

	InstanceSetterNode struct {
		Base

		Receiver  Node
		FieldName rt.Symbol
		Value     Node
	}

	StaticGetterNode struct {
		Base

		Class     *rt.Class
		FieldName rt.Symbol
	}

	StaticSetterNode struct {
		Base

		Class     *rt.Class
		FieldName rt.Symbol
		Value     Node
	}

	StaticCallNode struct {
		Base

		Function *rt.Function
		Args     *ArgumentListNode
	}

	ClosureCallNode struct {
		Base

		Closure Node
		Args    *ArgumentListNode
	}

	CloneContextNode struct {
		Base
	}

	ConstructorCallNode struct {
		Base

		Constructor *rt.Function
		TypeArgs    *rt.TypeArguments
		Args        *ArgumentListNode

		// AllocatedObjectVar shuttles the allocated instance across
		// the constructor call in value position.
		AllocatedObjectVar *LocalVariable
	}

	LoadLocalNode struct {
		Base

		Local *LocalVariable

		// Pseudo is evaluated for effect before the load, if set.
		Pseudo Node
	}

	StoreLocalNode struct {
		Base

		Local *LocalVariable
		Value Node
	}

	LoadInstanceFieldNode struct {
		Base

		Field    *rt.Field
		Instance Node
	}

	StoreInstanceFieldNode struct {
		Base

		Field    *rt.Field
		Instance Node
		Value    Node
	}

	LoadStaticFieldNode struct {
		Base

		Field *rt.Field
	}

	StoreStaticFieldNode struct {
		Base

		Field *rt.Field
		Value Node
	}

	LoadIndexedNode struct {
		Base

		Array Node
		Index Node
	}

	StoreIndexedNode struct {
		Base

		Array Node
		Index Node
		Value Node
	}

	CatchClauseNode struct {
		Base

		ExceptionVar  *LocalVariable
		StacktraceVar *LocalVariable
		ContextVar    *LocalVariable
		Body          *SequenceNode

		TryIndex int
	}

	TryCatchNode struct {
		Base

		TryBlock      *SequenceNode
		ContextVar    *LocalVariable
		CatchBlock    *CatchClauseNode
		FinallyBlock  *SequenceNode
		EndCatchLabel *SourceLabel
	}

	ThrowNode struct {
		Base

		Exception  Node
		Stacktrace Node
	}

	InlinedFinallyNode struct {
		Base

		FinallyBlock *SequenceNode
		ContextVar   *LocalVariable
	}

	NativeBodyNode struct {
		Base

		Name     rt.Symbol
		ArgCount int
	}
)

const (
	ILLEGAL Token = iota

	ADD
	SUB
	MUL
	DIV
	MOD
	BitAnd
	BitOr
	BitXor

	AND
	OR
	NOT
	NEGATE

	EQ
	NE
	LT
	GT
	LTE
	GTE
	EQStrict
	NEStrict

	IS
	ISNOT
	AS

	BREAK
	CONTINUE

	GET
	SET
)

func (b Base) Pos() Pos { return b.P }

func (t Token) IsTypeTestOperator() bool { return t == IS || t == ISNOT }

func (t Token) IsTypeCastOperator() bool { return t == AS }

// Name is the selector an overloadable operator dispatches through.
func (t Token) Name() string {
	switch t {
	case ADD:
		return "+"
	case SUB:
		return "-"
	case MUL:
		return "*"
	case DIV:
		return "/"
	case MOD:
		return "%"
	case BitAnd:
		return "&"
	case BitOr:
		return "|"
	case BitXor:
		return "^"
	case EQ:
		return "=="
	case NE:
		return "!="
	case LT:
		return "<"
	case GT:
		return ">"
	case LTE:
		return "<="
	case GTE:
		return ">="
	case NEGATE:
		return "unary-"
	default:
		panic(t)
	}
}

func (t Token) String() string {
	switch t {
	case AND:
		return "&&"
	case OR:
		return "||"
	case NOT:
		return "!"
	case EQStrict:
		return "==="
	case NEStrict:
		return "!=="
	case IS:
		return "is"
	case ISNOT:
		return "is!"
	case AS:
		return "as"
	case BREAK:
		return "break"
	case CONTINUE:
		return "continue"
	default:
		return t.Name()
	}
}

// VariableCount is the SSA environment width: fixed parameters, copied
// parameters, then stack locals.
func (pf *ParsedFunction) VariableCount() int {
	return pf.Function.NumFixedParameters + pf.CopiedParameterCount + pf.StackLocalCount
}
