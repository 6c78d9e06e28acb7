package moka

import (
	"fmt"
	"strings"

	"mokalift/classfile"
)

// Expression is the right-hand side of a Definition: a pure or effectful
// computation whose result (and, for effectful expressions, whose side
// effect) the Definition's LocalDef names.
type Expression interface {
	isExpression()
	String() string
}

// ConstExpr pushes a constant pool or immediate value (iconst_*, ldc,
// ldc2_w, bipush, sipush, aconst_null).
type ConstExpr struct{ Value classfile.ConstantValue }

func (ConstExpr) isExpression()    {}
func (e ConstExpr) String() string { return e.Value.String() }

// ThisReadExpr and ArgReadExpr/LocalReadExpr round out the Expression enum
// for reading `this`, a method argument or a local slot as an explicit
// expression. The semantics in this package never construct them: per the
// Loads rule, iload/aload-family instructions forward the local's current
// Argument unchanged and emit Nop rather than a Definition (see semantics.go).
// They exist so the Expression type remains a faithful enumeration of every
// kind of read the IR can in principle name.
type ThisReadExpr struct{}

func (ThisReadExpr) isExpression()    {}
func (ThisReadExpr) String() string   { return "%this" }

type ArgReadExpr struct{ Index uint16 }

func (ArgReadExpr) isExpression()    {}
func (e ArgReadExpr) String() string { return fmt.Sprintf("%%arg%d", e.Index) }

type LocalReadExpr struct{ Index uint16 }

func (LocalReadExpr) isExpression()    {}
func (e LocalReadExpr) String() string { return fmt.Sprintf("local(%d)", e.Index) }

// FieldReadExpr is the expression emitted by getfield/getstatic. Receiver
// is nil for a static field read.
type FieldReadExpr struct {
	Field    classfile.FieldReference
	Receiver *Argument
}

func (FieldReadExpr) isExpression() {}
func (e FieldReadExpr) String() string {
	if e.Receiver == nil {
		return fmt.Sprintf("getstatic(%s.%s)", e.Field.Owner, e.Field.Name)
	}
	return fmt.Sprintf("getfield(%s, %s)", e.Receiver, e.Field.Name)
}

// FieldWriteExpr is the side-effect expression emitted by putfield/
// putstatic. Its enclosing Definition's def is allocated but unused.
type FieldWriteExpr struct {
	Field    classfile.FieldReference
	Receiver *Argument
	Value    Argument
}

func (FieldWriteExpr) isExpression() {}
func (e FieldWriteExpr) String() string {
	if e.Receiver == nil {
		return fmt.Sprintf("putstatic(%s.%s, %s)", e.Field.Owner, e.Field.Name, e.Value)
	}
	return fmt.Sprintf("putfield(%s, %s, %s)", e.Receiver, e.Field.Name, e.Value)
}

// ArrayLoadExpr is the expression emitted by the *aload family.
type ArrayLoadExpr struct {
	Array, Index Argument
	ElementType  classfile.FieldType
}

func (ArrayLoadExpr) isExpression() {}
func (e ArrayLoadExpr) String() string {
	return fmt.Sprintf("arrayload(%s, %s)", e.Array, e.Index)
}

// ArrayStoreExpr is the side-effect expression emitted by the *astore
// family.
type ArrayStoreExpr struct {
	Array, Index, Value Argument
	ElementType         classfile.FieldType
}

func (ArrayStoreExpr) isExpression() {}
func (e ArrayStoreExpr) String() string {
	return fmt.Sprintf("arraystore(%s, %s, %s)", e.Array, e.Index, e.Value)
}

// ArrayLengthExpr is the expression emitted by arraylength.
type ArrayLengthExpr struct{ Array Argument }

func (ArrayLengthExpr) isExpression()    {}
func (e ArrayLengthExpr) String() string { return fmt.Sprintf("arraylength(%s)", e.Array) }

// NewExpr is the expression emitted by new.
type NewExpr struct{ Class classfile.ClassReference }

func (NewExpr) isExpression()    {}
func (e NewExpr) String() string { return fmt.Sprintf("new(%s)", e.Class) }

// NewArrayExpr is the expression emitted by newarray/anewarray.
type NewArrayExpr struct {
	ElementType classfile.FieldType
	Length      Argument
}

func (NewArrayExpr) isExpression() {}
func (e NewArrayExpr) String() string {
	return fmt.Sprintf("newarray(%s, %s)", e.ElementType, e.Length)
}

// MultiANewArrayExpr is the expression emitted by multianewarray.
type MultiANewArrayExpr struct {
	Class      classfile.ClassReference
	Dimensions []Argument
}

func (MultiANewArrayExpr) isExpression() {}
func (e MultiANewArrayExpr) String() string {
	dims := make([]string, len(e.Dimensions))
	for i, d := range e.Dimensions {
		dims[i] = d.String()
	}
	return fmt.Sprintf("multianewarray(%s, %s)", e.Class, strings.Join(dims, ", "))
}

// ArithExpr covers arithmetic, bitwise and shift instructions; Op is the
// originating classfile.Opcode so display can reuse its mnemonic.
type ArithExpr struct {
	Op   classfile.Opcode
	Args []Argument
}

func (ArithExpr) isExpression()    {}
func (e ArithExpr) String() string { return fmt.Sprintf("%s(%s)", e.Op, joinArgs(e.Args)) }

// ComparisonExpr covers lcmp/fcmpl/fcmpg/dcmpl/dcmpg, which produce an int
// result rather than branching directly.
type ComparisonExpr struct {
	Op   classfile.Opcode
	Args []Argument
}

func (ComparisonExpr) isExpression()    {}
func (e ComparisonExpr) String() string { return fmt.Sprintf("%s(%s)", e.Op, joinArgs(e.Args)) }

// IncExpr is the expression emitted by iinc: the prior local value plus
// a signed immediate.
type IncExpr struct {
	Arg    Argument
	Amount int32
}

func (IncExpr) isExpression()    {}
func (e IncExpr) String() string { return fmt.Sprintf("iinc(%s, %d)", e.Arg, e.Amount) }

// ConversionExpr covers the i2l/l2d/... family.
type ConversionExpr struct {
	Op  classfile.Opcode
	Arg Argument
}

func (ConversionExpr) isExpression()    {}
func (e ConversionExpr) String() string { return fmt.Sprintf("%s(%s)", e.Op, e.Arg) }

// InvokeExpr is the expression emitted by the invoke* family. Receiver is
// nil for invokestatic and invokedynamic. Args is in source (left-to-right)
// order.
type InvokeExpr struct {
	Kind     classfile.InvokeKind
	Target   classfile.MethodReference
	Receiver *Argument
	Args     []Argument
}

func (InvokeExpr) isExpression() {}
func (e InvokeExpr) String() string {
	parts := make([]string, 0, len(e.Args)+1)
	if e.Receiver != nil {
		parts = append(parts, e.Receiver.String())
	}
	for _, a := range e.Args {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("invoke%s(%s.%s, %s)", e.Kind, e.Target.Owner, e.Target.Name, strings.Join(parts, ", "))
}

// InstanceOfExpr is the expression emitted by instanceof.
type InstanceOfExpr struct {
	Class classfile.ClassReference
	Arg   Argument
}

func (InstanceOfExpr) isExpression() {}
func (e InstanceOfExpr) String() string {
	return fmt.Sprintf("instanceof(%s, %s)", e.Arg, e.Class)
}

// CheckCastExpr is the expression emitted by checkcast.
type CheckCastExpr struct {
	Class classfile.ClassReference
	Arg   Argument
}

func (CheckCastExpr) isExpression() {}
func (e CheckCastExpr) String() string {
	return fmt.Sprintf("checkcast(%s, %s)", e.Arg, e.Class)
}

// ThrowExpr is the expression emitted by athrow.
type ThrowExpr struct{ Arg Argument }

func (ThrowExpr) isExpression()    {}
func (e ThrowExpr) String() string { return fmt.Sprintf("throw(%s)", e.Arg) }

// MonitorEnterExpr and MonitorExitExpr are the expressions emitted by
// monitorenter/monitorexit.
type MonitorEnterExpr struct{ Arg Argument }

func (MonitorEnterExpr) isExpression()    {}
func (e MonitorEnterExpr) String() string { return fmt.Sprintf("monitor_enter(%s)", e.Arg) }

type MonitorExitExpr struct{ Arg Argument }

func (MonitorExitExpr) isExpression()    {}
func (e MonitorExitExpr) String() string { return fmt.Sprintf("monitor_exit(%s)", e.Arg) }

// SubroutineExpr is the expression emitted by jsr/jsr_w: it names the
// subroutine entry point and the PC execution resumes at on return.
type SubroutineExpr struct {
	Target        classfile.ProgramCounter
	ReturnAddress classfile.ProgramCounter
}

func (SubroutineExpr) isExpression() {}
func (e SubroutineExpr) String() string {
	return fmt.Sprintf("subroutine(target=%s, return=%s)", e.Target, e.ReturnAddress)
}

func joinArgs(args []Argument) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
