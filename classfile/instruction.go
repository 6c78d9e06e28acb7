package classfile

import "fmt"

// Instruction is one decoded bytecode instruction plus its operands. It is
// a fixed layout carrying every operand shape an opcode might require,
// leaving the rest at their zero value; Opcode alone determines which
// fields the semantics in package moka read.
type Instruction struct {
	Op Opcode

	// Index is a local variable slot (loads/stores/iinc) or a constant pool
	// index (ldc family carries the resolved ConstantValue directly below).
	Index uint16

	// IntImm is the immediate for bipush/sipush/iinc's const, or the raw
	// branch displacement when Target is not yet resolved.
	IntImm int32

	// Const is the resolved operand of ldc/ldc2_w, and the value pushed by
	// the iconst/lconst/fconst/dconst family.
	Const ConstantValue

	// Target is the resolved absolute branch target of a conditional or
	// unconditional jump, or of jsr/jsr_w.
	Target ProgramCounter

	// Field is the operand of get/putfield and get/putstatic.
	Field *FieldReference

	// Method is the operand of the invoke* family.
	Method *MethodReference
	Invoke InvokeKind

	// Class is the operand of new/anewarray/checkcast/instanceof/
	// multianewarray.
	Class *ClassReference
	// ArrayType is the primitive element type for newarray.
	ArrayType FieldType
	// Dimensions is the operand count for multianewarray.
	Dimensions byte

	// TableSwitch/LookupSwitch operands.
	Default ProgramCounter
	Low     int32
	High    int32
	Targets []ProgramCounter // tableswitch: Targets[i] corresponds to key Low+i
	Matches []int32          // lookupswitch: parallel to Targets, in declared order
}

func (i Instruction) String() string {
	return fmt.Sprintf("%v", i.Op)
}
