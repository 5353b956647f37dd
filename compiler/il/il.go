// Package il is the flow-graph intermediate language: computations,
// the instructions wrapping them, values, basic-block entries and the
// SSA environment attached to instructions.
package il

import (
	"github.com/kitelang/kite/compiler/ast"
	"github.com/kitelang/kite/compiler/rt"
)

type (
	// Value is an instruction operand: either a constant or the use
	// of a definition. Every UseVal is a distinct node so a use maps
	// one-to-one onto a dataflow edge.
	Value interface {
		isValue()
	}

	ConstantVal struct {
		Literal *rt.Instance
	}

	UseVal struct {
		Def Definition
	}

	// Computation is an expression kind; wrapping it in a Bind or Do
	// instruction places it into the graph.
	Computation interface {
		InputCount() int
		InputAt(i int) Value
		SetInputAt(i int, v Value)
	}

	Environment struct {
		Values []Value
	}
)

// InvalidTryIndex marks instructions outside any try block.
const InvalidTryIndex = -1

func (*ConstantVal) isValue() {}
func (*UseVal) isValue() {}

// CopyValue clones v iff it is a UseVal; constants may be shared.
func CopyValue(v Value) Value {
	if u, ok := v.(*UseVal); ok {
		return &UseVal{Def: u.Def}
	}

	return v
}

func NewEnvironment(values []Value) *Environment {
	e := &Environment{Values: make([]Value, len(values))}
	copy(e.Values, values)

	return e
}

// StaticTypeOf is the compile-time type of a value, dynamic when
// nothing better is known.
func StaticTypeOf(v Value) rt.Type {
	switch x := v.(type) {
	case *ConstantVal:
		return rt.TypeOfInstance(x.Literal)
	case *UseVal:
		b, ok := x.Def.(*BindInstr)
		if !ok {
			return rt.Dynamic()
		}

		switch c := b.Comp.(type) {
		case *ConstantComp:
			return rt.TypeOfInstance(c.Literal)
		case *LoadLocalComp:
			return c.Local.Type
		case *StoreLocalComp:
			return c.Local.Type
		case *AssertAssignableComp:
			return c.DstType
		case *AssertBooleanComp, *BooleanNegateComp, *StrictCompareComp,
			*EqualityCompareComp, *InstanceOfComp:
			return rt.BoolType()
		default:
			return rt.Dynamic()
		}
	default:
		return rt.Dynamic()
	}
}

type (
	ConstantComp struct {
		noInputs

		Literal *rt.Instance
	}

	LoadLocalComp struct {
		noInputs

		Local        *ast.LocalVariable
		ContextLevel int
	}

	StoreLocalComp struct {
		Local        *ast.LocalVariable
		Val          Value
		ContextLevel int
	}

	LoadVMFieldComp struct {
		Obj           Value
		OffsetInBytes int
		Type          rt.Type
	}

	StoreVMFieldComp struct {
		Obj           Value
		OffsetInBytes int
		Val           Value
		Type          rt.Type
	}

	CurrentContextComp struct {
		noInputs
	}

	StoreContextComp struct {
		Val Value
	}

	ChainContextComp struct {
		Context Value
	}

	CloneContextComp struct {
		P        ast.Pos
		TryIndex int
		Context  Value
	}

	AllocateContextComp struct {
		noInputs

		P                   ast.Pos
		TryIndex            int
		NumContextVariables int
	}

	AllocateObjectComp struct {
		P           ast.Pos
		TryIndex    int
		Constructor *rt.Function
		Args        []Value
	}

	AllocateObjectWithBoundsCheckComp struct {
		P           ast.Pos
		TryIndex    int
		Constructor *rt.Function
		Args        []Value
	}

	CreateArrayComp struct {
		P           ast.Pos
		TryIndex    int
		Elements    []Value
		ElementType Value
	}

	CreateClosureComp struct {
		P             ast.Pos
		TryIndex      int
		Function      *rt.Function
		TypeArguments Value
		Receiver      Value
	}

	InstanceCallComp struct {
		P        ast.Pos
		TryIndex int
		Name     rt.Symbol
		Kind     ast.Token
		Args     []Value
		ArgNames []rt.Symbol

		// CheckedArgCount is the number of leading arguments the
		// runtime uses for receiver-class dispatch.
		CheckedArgCount int
	}

	StaticCallComp struct {
		P        ast.Pos
		TryIndex int
		Function *rt.Function
		ArgNames []rt.Symbol
		Args     []Value
	}

	ClosureCallComp struct {
		P        ast.Pos
		TryIndex int

		// Args holds the closure object first, then the arguments.
		Args []Value
	}

	NativeCallComp struct {
		noInputs

		P        ast.Pos
		TryIndex int
		Name     rt.Symbol
		ArgCount int
	}

	LoadInstanceFieldComp struct {
		Field    *rt.Field
		Instance Value
	}

	StoreInstanceFieldComp struct {
		Field    *rt.Field
		Instance Value
		Val      Value
	}

	LoadStaticFieldComp struct {
		noInputs

		Field *rt.Field
	}

	StoreStaticFieldComp struct {
		Field *rt.Field
		Val   Value
	}

	LoadIndexedComp struct {
		P        ast.Pos
		TryIndex int
		Array    Value
		Index    Value
	}

	StoreIndexedComp struct {
		P        ast.Pos
		TryIndex int
		Array    Value
		Index    Value
		Val      Value
	}

	InstanceSetterComp struct {
		P         ast.Pos
		TryIndex  int
		FieldName rt.Symbol
		Receiver  Value
		Val       Value
	}

	StaticSetterComp struct {
		P        ast.Pos
		TryIndex int
		Setter   *rt.Function
		Val      Value
	}

	StrictCompareComp struct {
		Kind  ast.Token
		Left  Value
		Right Value
	}

	EqualityCompareComp struct {
		P        ast.Pos
		TryIndex int
		Left     Value
		Right    Value
	}

	RelationalOpComp struct {
		P        ast.Pos
		TryIndex int
		Kind     ast.Token
		Left     Value
		Right    Value
	}

	BooleanNegateComp struct {
		Val Value
	}

	AssertAssignableComp struct {
		P                    ast.Pos
		TryIndex             int
		Val                  Value
		Instantiator         Value
		InstantiatorTypeArgs Value
		DstType              rt.Type
		DstName              rt.Symbol
	}

	AssertBooleanComp struct {
		P        ast.Pos
		TryIndex int
		Val      Value
	}

	InstanceOfComp struct {
		P                    ast.Pos
		TryIndex             int
		Val                  Value
		Instantiator         Value
		InstantiatorTypeArgs Value
		Type                 rt.Type
		Negate               bool
	}

	InstantiateTypeArgumentsComp struct {
		P             ast.Pos
		TryIndex      int
		TypeArguments *rt.TypeArguments
		Instantiator  Value
	}

	ExtractConstructorTypeArgumentsComp struct {
		P             ast.Pos
		TryIndex      int
		TypeArguments *rt.TypeArguments
		Instantiator  Value
	}

	ExtractConstructorInstantiatorComp struct {
		Constructor  *rt.Function
		Instantiator Value
	}

	CatchEntryComp struct {
		noInputs

		ExceptionVar  *ast.LocalVariable
		StacktraceVar *ast.LocalVariable
	}

	CheckStackOverflowComp struct {
		noInputs

		P        ast.Pos
		TryIndex int
	}
)

type noInputs struct{}

func (noInputs) InputCount() int { return 0 }
func (noInputs) InputAt(i int) Value { panic("no inputs") }
func (noInputs) SetInputAt(i int, v Value) { panic("no inputs") }

func pick(i int, vals ...*Value) *Value {
	if i < 0 || i >= len(vals) {
		panic(i)
	}

	return vals[i]
}

func (c *StoreLocalComp) InputCount() int { return 1 }
func (c *StoreLocalComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *StoreLocalComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *LoadVMFieldComp) InputCount() int { return 1 }
func (c *LoadVMFieldComp) InputAt(i int) Value { return *pick(i, &c.Obj) }
func (c *LoadVMFieldComp) SetInputAt(i int, v Value) { *pick(i, &c.Obj) = v }

func (c *StoreVMFieldComp) InputCount() int { return 2 }
func (c *StoreVMFieldComp) InputAt(i int) Value { return *pick(i, &c.Obj, &c.Val) }
func (c *StoreVMFieldComp) SetInputAt(i int, v Value) { *pick(i, &c.Obj, &c.Val) = v }

func (c *StoreContextComp) InputCount() int { return 1 }
func (c *StoreContextComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *StoreContextComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *ChainContextComp) InputCount() int { return 1 }
func (c *ChainContextComp) InputAt(i int) Value { return *pick(i, &c.Context) }
func (c *ChainContextComp) SetInputAt(i int, v Value) { *pick(i, &c.Context) = v }

func (c *CloneContextComp) InputCount() int { return 1 }
func (c *CloneContextComp) InputAt(i int) Value { return *pick(i, &c.Context) }
func (c *CloneContextComp) SetInputAt(i int, v Value) { *pick(i, &c.Context) = v }

func (c *AllocateObjectComp) InputCount() int { return len(c.Args) }
func (c *AllocateObjectComp) InputAt(i int) Value { return c.Args[i] }
func (c *AllocateObjectComp) SetInputAt(i int, v Value) { c.Args[i] = v }

func (c *AllocateObjectWithBoundsCheckComp) InputCount() int { return len(c.Args) }
func (c *AllocateObjectWithBoundsCheckComp) InputAt(i int) Value { return c.Args[i] }
func (c *AllocateObjectWithBoundsCheckComp) SetInputAt(i int, v Value) { c.Args[i] = v }

func (c *CreateArrayComp) InputCount() int { return len(c.Elements) + 1 }

func (c *CreateArrayComp) InputAt(i int) Value {
	if i == len(c.Elements) {
		return c.ElementType
	}

	return c.Elements[i]
}

func (c *CreateArrayComp) SetInputAt(i int, v Value) {
	if i == len(c.Elements) {
		c.ElementType = v
		return
	}

	c.Elements[i] = v
}

func (c *CreateClosureComp) InputCount() int { return 2 }
func (c *CreateClosureComp) InputAt(i int) Value { return *pick(i, &c.TypeArguments, &c.Receiver) }
func (c *CreateClosureComp) SetInputAt(i int, v Value) {
	*pick(i, &c.TypeArguments, &c.Receiver) = v
}

func (c *InstanceCallComp) InputCount() int { return len(c.Args) }
func (c *InstanceCallComp) InputAt(i int) Value { return c.Args[i] }
func (c *InstanceCallComp) SetInputAt(i int, v Value) { c.Args[i] = v }

func (c *StaticCallComp) InputCount() int { return len(c.Args) }
func (c *StaticCallComp) InputAt(i int) Value { return c.Args[i] }
func (c *StaticCallComp) SetInputAt(i int, v Value) { c.Args[i] = v }

func (c *ClosureCallComp) InputCount() int { return len(c.Args) }
func (c *ClosureCallComp) InputAt(i int) Value { return c.Args[i] }
func (c *ClosureCallComp) SetInputAt(i int, v Value) { c.Args[i] = v }

func (c *LoadInstanceFieldComp) InputCount() int { return 1 }
func (c *LoadInstanceFieldComp) InputAt(i int) Value { return *pick(i, &c.Instance) }
func (c *LoadInstanceFieldComp) SetInputAt(i int, v Value) { *pick(i, &c.Instance) = v }

func (c *StoreInstanceFieldComp) InputCount() int { return 2 }
func (c *StoreInstanceFieldComp) InputAt(i int) Value { return *pick(i, &c.Instance, &c.Val) }
func (c *StoreInstanceFieldComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Instance, &c.Val) = v
}

func (c *StoreStaticFieldComp) InputCount() int { return 1 }
func (c *StoreStaticFieldComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *StoreStaticFieldComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *LoadIndexedComp) InputCount() int { return 2 }
func (c *LoadIndexedComp) InputAt(i int) Value { return *pick(i, &c.Array, &c.Index) }
func (c *LoadIndexedComp) SetInputAt(i int, v Value) { *pick(i, &c.Array, &c.Index) = v }

func (c *StoreIndexedComp) InputCount() int { return 3 }
func (c *StoreIndexedComp) InputAt(i int) Value { return *pick(i, &c.Array, &c.Index, &c.Val) }
func (c *StoreIndexedComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Array, &c.Index, &c.Val) = v
}

func (c *InstanceSetterComp) InputCount() int { return 2 }
func (c *InstanceSetterComp) InputAt(i int) Value { return *pick(i, &c.Receiver, &c.Val) }
func (c *InstanceSetterComp) SetInputAt(i int, v Value) { *pick(i, &c.Receiver, &c.Val) = v }

func (c *StaticSetterComp) InputCount() int { return 1 }
func (c *StaticSetterComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *StaticSetterComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *StrictCompareComp) InputCount() int { return 2 }
func (c *StrictCompareComp) InputAt(i int) Value { return *pick(i, &c.Left, &c.Right) }
func (c *StrictCompareComp) SetInputAt(i int, v Value) { *pick(i, &c.Left, &c.Right) = v }

func (c *EqualityCompareComp) InputCount() int { return 2 }
func (c *EqualityCompareComp) InputAt(i int) Value { return *pick(i, &c.Left, &c.Right) }
func (c *EqualityCompareComp) SetInputAt(i int, v Value) { *pick(i, &c.Left, &c.Right) = v }

func (c *RelationalOpComp) InputCount() int { return 2 }
func (c *RelationalOpComp) InputAt(i int) Value { return *pick(i, &c.Left, &c.Right) }
func (c *RelationalOpComp) SetInputAt(i int, v Value) { *pick(i, &c.Left, &c.Right) = v }

func (c *BooleanNegateComp) InputCount() int { return 1 }
func (c *BooleanNegateComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *BooleanNegateComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *AssertAssignableComp) InputCount() int { return 3 }

func (c *AssertAssignableComp) InputAt(i int) Value {
	return *pick(i, &c.Val, &c.Instantiator, &c.InstantiatorTypeArgs)
}

func (c *AssertAssignableComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Val, &c.Instantiator, &c.InstantiatorTypeArgs) = v
}

func (c *AssertBooleanComp) InputCount() int { return 1 }
func (c *AssertBooleanComp) InputAt(i int) Value { return *pick(i, &c.Val) }
func (c *AssertBooleanComp) SetInputAt(i int, v Value) { *pick(i, &c.Val) = v }

func (c *InstanceOfComp) InputCount() int { return 3 }

func (c *InstanceOfComp) InputAt(i int) Value {
	return *pick(i, &c.Val, &c.Instantiator, &c.InstantiatorTypeArgs)
}

func (c *InstanceOfComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Val, &c.Instantiator, &c.InstantiatorTypeArgs) = v
}

func (c *InstantiateTypeArgumentsComp) InputCount() int { return 1 }
func (c *InstantiateTypeArgumentsComp) InputAt(i int) Value { return *pick(i, &c.Instantiator) }
func (c *InstantiateTypeArgumentsComp) SetInputAt(i int, v Value) { *pick(i, &c.Instantiator) = v }

func (c *ExtractConstructorTypeArgumentsComp) InputCount() int { return 1 }
func (c *ExtractConstructorTypeArgumentsComp) InputAt(i int) Value { return *pick(i, &c.Instantiator) }
func (c *ExtractConstructorTypeArgumentsComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Instantiator) = v
}

func (c *ExtractConstructorInstantiatorComp) InputCount() int { return 1 }
func (c *ExtractConstructorInstantiatorComp) InputAt(i int) Value { return *pick(i, &c.Instantiator) }
func (c *ExtractConstructorInstantiatorComp) SetInputAt(i int, v Value) {
	*pick(i, &c.Instantiator) = v
}
