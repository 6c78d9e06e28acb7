package moka

import (
	"fmt"

	"mokalift/classfile"
)

// SlotKind discriminates the three shapes a local or stack slot can hold.
type SlotKind int

const (
	// SlotTop is the upper half of a category-2 (long/double) value, or
	// an unused/undefined local.
	SlotTop SlotKind = iota
	// SlotValue holds a category-1 value, or the lower half of a
	// category-2 value.
	SlotValue
	// SlotReturnAddress holds the possible return addresses live after a
	// jsr: pushed onto the stack by the jsr, and filed into a local by
	// astore.
	SlotReturnAddress
)

// Slot is one entry of the abstract frame's locals array or operand
// stack.
type Slot struct {
	Kind  SlotKind
	Value Argument
	// RetAddrs holds every jsr return address this slot might hold,
	// merged in from each predecessor that reaches this point with a
	// live subroutine return address in the slot. Valid when Kind ==
	// SlotReturnAddress, alongside Value (the jsr definition the
	// address flowed out of).
	RetAddrs map[classfile.ProgramCounter]struct{}
}

func TopSlot() Slot { return Slot{Kind: SlotTop} }

func ValueSlot(a Argument) Slot { return Slot{Kind: SlotValue, Value: a} }

func ReturnAddressSlot(pc classfile.ProgramCounter, def Argument) Slot {
	return Slot{
		Kind:     SlotReturnAddress,
		Value:    def,
		RetAddrs: map[classfile.ProgramCounter]struct{}{pc: {}},
	}
}

func (s Slot) String() string {
	switch s.Kind {
	case SlotTop:
		return "Top"
	case SlotValue:
		return s.Value.String()
	case SlotReturnAddress:
		return fmt.Sprintf("ReturnAddress%v", sortedPCs(s.RetAddrs))
	default:
		return "?slot?"
	}
}

// frameFault is the panic payload frame operations raise when the
// bytecode being simulated is inconsistent with the abstract frame
// (underflow, category mismatch, bad local index). step recovers it at
// the instruction boundary and converts it to an ExecutionError carrying
// the PC, so a malformed method aborts the lift instead of crashing the
// process.
type frameFault struct {
	Kind   ExecutionErrorKind
	Detail string
}

func fault(kind ExecutionErrorKind, detail string) frameFault {
	return frameFault{Kind: kind, Detail: detail}
}

// mergeSlot implements the merge table of two slots arriving at the same
// program point from different predecessors:
//
//   - Top against anything merges to Top.
//   - Value/Value merges to Value(Argument.Merge).
//   - ReturnAddress/ReturnAddress merges to ReturnAddress with the union
//     of the possible addresses and the merged defining arguments.
//   - Value against ReturnAddress is a merge error.
func mergeSlot(a, b Slot) (Slot, error) {
	if a.Kind == SlotTop || b.Kind == SlotTop {
		return TopSlot(), nil
	}
	if a.Kind != b.Kind {
		return Slot{}, &MergeError{Reason: fmt.Sprintf("cannot merge %s with %s", a, b)}
	}
	switch a.Kind {
	case SlotValue:
		return ValueSlot(a.Value.Merge(b.Value)), nil
	case SlotReturnAddress:
		merged := map[classfile.ProgramCounter]struct{}{}
		for pc := range a.RetAddrs {
			merged[pc] = struct{}{}
		}
		for pc := range b.RetAddrs {
			merged[pc] = struct{}{}
		}
		return Slot{Kind: SlotReturnAddress, Value: a.Value.Merge(b.Value), RetAddrs: merged}, nil
	default:
		return TopSlot(), nil
	}
}

func sortedPCs(set map[classfile.ProgramCounter]struct{}) []classfile.ProgramCounter {
	out := make([]classfile.ProgramCounter, 0, len(set))
	for pc := range set {
		out = append(out, pc)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// JvmStackFrame is the abstract state the fixed-point analyzer tracks at
// every program point: the method's locals array and operand stack, both
// modeled as slot sequences, plus whether the point is reachable at all.
type JvmStackFrame struct {
	Locals    []Slot
	Stack     []Slot
	MaxStack  int
	Reachable bool
}

// NewEntryFrame builds the frame on entry to a method: argument slots
// (receiver first, for an instance method) populated from identifiers,
// remaining locals Top, empty stack.
func NewEntryFrame(maxLocals, maxStack int, isStatic bool, paramTypes []classfile.FieldType) JvmStackFrame {
	f := JvmStackFrame{
		Locals:    make([]Slot, maxLocals),
		Stack:     make([]Slot, 0, maxStack),
		MaxStack:  maxStack,
		Reachable: true,
	}
	for i := range f.Locals {
		f.Locals[i] = TopSlot()
	}

	idx := 0
	if !isStatic {
		f.Locals[idx] = ValueSlot(ArgID(This()))
		idx++
	}
	argNum := uint16(0)
	for _, t := range paramTypes {
		f.Locals[idx] = ValueSlot(ArgID(Arg(argNum)))
		idx++
		if t.IsCategory2() {
			f.Locals[idx] = TopSlot()
			idx++
		}
		argNum++
	}
	return f
}

// UnreachableFrame is the bottom element used for program points with no
// live predecessor yet (before the worklist first visits them).
func UnreachableFrame() JvmStackFrame {
	return JvmStackFrame{Reachable: false}
}

func (f JvmStackFrame) Clone() JvmStackFrame {
	locals := make([]Slot, len(f.Locals))
	copy(locals, f.Locals)
	stack := make([]Slot, len(f.Stack))
	copy(stack, f.Stack)
	return JvmStackFrame{Locals: locals, Stack: stack, MaxStack: f.MaxStack, Reachable: f.Reachable}
}

// Push pushes a category-1 value.
func (f *JvmStackFrame) Push(a Argument) { f.pushSlot(ValueSlot(a)) }

// PushWide pushes a category-2 value (two slots: value, then Top).
func (f *JvmStackFrame) PushWide(a Argument) {
	f.pushSlot(ValueSlot(a))
	f.pushSlot(TopSlot())
}

// PushReturnAddress pushes a jsr return address onto the stack, recording
// both the address itself and the jsr definition it flowed out of so the
// eventual ret can name its operand.
func (f *JvmStackFrame) PushReturnAddress(pc classfile.ProgramCounter, def Argument) {
	f.pushSlot(ReturnAddressSlot(pc, def))
}

// Pop pops and returns the top category-1 value's Argument.
func (f *JvmStackFrame) Pop() Argument {
	s := f.popSlot()
	if s.Kind != SlotValue {
		panic(fault(ErrCategoryMismatch, "pop expected a value slot, found "+s.String()))
	}
	return s.Value
}

// PopWide pops a category-2 value: the Top slot then the Value slot.
func (f *JvmStackFrame) PopWide() Argument {
	top := f.popSlot()
	if top.Kind != SlotTop {
		panic(fault(ErrCategoryMismatch, "wide pop expected a Top slot, found "+top.String()))
	}
	value := f.popSlot()
	if value.Kind != SlotValue {
		panic(fault(ErrCategoryMismatch, "wide pop expected a value slot, found "+value.String()))
	}
	return value.Value
}

// PopReturnAddressSlot pops a slot expected to hold jsr return
// addresses.
func (f *JvmStackFrame) PopReturnAddressSlot() Slot {
	s := f.popSlot()
	if s.Kind != SlotReturnAddress {
		panic(fault(ErrCategoryMismatch, "expected a return address slot, found "+s.String()))
	}
	return s
}

func (f *JvmStackFrame) popSlot() Slot {
	n := len(f.Stack)
	if n == 0 {
		panic(fault(ErrStackUnderflow, "pop from an empty operand stack"))
	}
	s := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return s
}

func (f *JvmStackFrame) peekSlot(depthFromTop int) Slot {
	if depthFromTop >= len(f.Stack) {
		panic(fault(ErrStackUnderflow, "peek past the bottom of the operand stack"))
	}
	return f.Stack[len(f.Stack)-1-depthFromTop]
}

func (f *JvmStackFrame) pushSlot(s Slot) {
	if len(f.Stack) >= f.MaxStack {
		panic(fault(ErrStackOverflow, fmt.Sprintf("operand stack exceeds max_stack %d", f.MaxStack)))
	}
	f.Stack = append(f.Stack, s)
}

func (f JvmStackFrame) localSlot(index uint16) Slot {
	if int(index) >= len(f.Locals) {
		panic(fault(ErrBadLocalIndex, fmt.Sprintf("local %d out of range (max_locals %d)", index, len(f.Locals))))
	}
	return f.Locals[index]
}

func (f *JvmStackFrame) setLocalSlot(index uint16, s Slot) {
	if int(index) >= len(f.Locals) {
		panic(fault(ErrBadLocalIndex, fmt.Sprintf("local %d out of range (max_locals %d)", index, len(f.Locals))))
	}
	f.Locals[index] = s
}

// GetLocal reads a category-1 local.
func (f JvmStackFrame) GetLocal(index uint16) Argument {
	s := f.localSlot(index)
	if s.Kind != SlotValue {
		panic(fault(ErrCategoryMismatch, fmt.Sprintf("local %d holds %s, not a value", index, s)))
	}
	return s.Value
}

// GetLocalWide reads a category-2 local (index holds the value, index+1
// the paired Top slot).
func (f JvmStackFrame) GetLocalWide(index uint16) Argument {
	if f.localSlot(index+1).Kind != SlotTop {
		panic(fault(ErrCategoryMismatch, fmt.Sprintf("local %d is not the Top half of a wide pair", index+1)))
	}
	return f.GetLocal(index)
}

// GetLocalReturnAddressSlot reads the slot holding the possible jsr
// return addresses for a ret (which dereferences whatever astore filed
// into that local after the jsr).
func (f JvmStackFrame) GetLocalReturnAddressSlot(index uint16) Slot {
	s := f.localSlot(index)
	if s.Kind != SlotReturnAddress {
		panic(fault(ErrRetWithoutReturnAddress, fmt.Sprintf("local %d holds %s", index, s)))
	}
	return s
}

// SetLocal writes a category-1 value. The paired upper slot of a wide
// value previously occupying this index is already Top, so no extra
// clearing is needed on this path.
func (f *JvmStackFrame) SetLocal(index uint16, a Argument) {
	f.setLocalSlot(index, ValueSlot(a))
}

// SetLocalWide writes a category-2 value across index and index+1.
func (f *JvmStackFrame) SetLocalWide(index uint16, a Argument) {
	f.setLocalSlot(index, ValueSlot(a))
	f.setLocalSlot(index+1, TopSlot())
}

// SetLocalReturnAddressSlot stores a slot of jsr return addresses into a
// local (the lift of astore immediately following a jsr).
func (f *JvmStackFrame) SetLocalReturnAddressSlot(index uint16, s Slot) {
	if s.Kind != SlotReturnAddress {
		panic(fault(ErrInvalidOperand, "storing a non-return-address slot as a return address"))
	}
	f.setLocalSlot(index, s)
}

// TopIsReturnAddress reports whether the top-of-stack slot holds a jsr
// return address rather than a plain value (astore's dual use: filing a
// return address into a local vs. storing an ordinary reference).
func (f *JvmStackFrame) TopIsReturnAddress() bool {
	if len(f.Stack) == 0 {
		return false
	}
	return f.Stack[len(f.Stack)-1].Kind == SlotReturnAddress
}

// Dup implements the dup instruction.
func (f *JvmStackFrame) Dup() { f.pushSlot(f.peekSlot(0)) }

// DupX1 implements dup_x1.
func (f *JvmStackFrame) DupX1() {
	top := f.popSlot()
	below := f.popSlot()
	f.pushSlot(top)
	f.pushSlot(below)
	f.pushSlot(top)
}

// DupX2 implements dup_x2.
func (f *JvmStackFrame) DupX2() {
	s1 := f.popSlot()
	s2 := f.popSlot()
	s3 := f.popSlot()
	f.pushSlot(s1)
	f.pushSlot(s3)
	f.pushSlot(s2)
	f.pushSlot(s1)
}

// Dup2 implements dup2.
func (f *JvmStackFrame) Dup2() {
	s1 := f.peekSlot(0)
	s2 := f.peekSlot(1)
	f.pushSlot(s2)
	f.pushSlot(s1)
}

// Dup2X1 implements dup2_x1.
func (f *JvmStackFrame) Dup2X1() {
	s1 := f.popSlot()
	s2 := f.popSlot()
	s3 := f.popSlot()
	f.pushSlot(s2)
	f.pushSlot(s1)
	f.pushSlot(s3)
	f.pushSlot(s2)
	f.pushSlot(s1)
}

// Dup2X2 implements dup2_x2.
func (f *JvmStackFrame) Dup2X2() {
	s1 := f.popSlot()
	s2 := f.popSlot()
	s3 := f.popSlot()
	s4 := f.popSlot()
	f.pushSlot(s2)
	f.pushSlot(s1)
	f.pushSlot(s4)
	f.pushSlot(s3)
	f.pushSlot(s2)
	f.pushSlot(s1)
}

// Swap implements swap.
func (f *JvmStackFrame) Swap() {
	s1 := f.popSlot()
	s2 := f.popSlot()
	f.pushSlot(s1)
	f.pushSlot(s2)
}

// PopCategory1 discards the top category-1 slot without inspecting it
// (the lift of plain pop, used e.g. after a discarded invoke result).
func (f *JvmStackFrame) PopCategory1() { f.popSlot() }

// PopCategory2OrTwo1s discards either one category-2 slot pair or two
// category-1 slots (the lift of pop2, which is polymorphic over both).
func (f *JvmStackFrame) PopCategory2OrTwo1s() {
	f.popSlot()
	f.popSlot()
}

// Merge joins two frames reaching the same program point. An unreachable
// operand merges to the other operand unchanged (bottom is the identity
// for join); merging two reachable frames of mismatched stack height is a
// MergeError, since that can only happen if the bytecode's own structure
// is unverifiable.
func (f JvmStackFrame) Merge(other JvmStackFrame) (JvmStackFrame, error) {
	if !f.Reachable {
		return other, nil
	}
	if !other.Reachable {
		return f, nil
	}
	if len(f.Stack) != len(other.Stack) {
		return JvmStackFrame{}, &MergeError{Reason: fmt.Sprintf(
			"operand stack height mismatch: %d vs %d", len(f.Stack), len(other.Stack))}
	}
	if len(f.Locals) != len(other.Locals) {
		return JvmStackFrame{}, &MergeError{Reason: fmt.Sprintf(
			"locals count mismatch: %d vs %d", len(f.Locals), len(other.Locals))}
	}

	merged := JvmStackFrame{
		Locals:    make([]Slot, len(f.Locals)),
		Stack:     make([]Slot, len(f.Stack)),
		MaxStack:  f.MaxStack,
		Reachable: true,
	}
	var err error
	for i := range merged.Locals {
		if merged.Locals[i], err = mergeSlot(f.Locals[i], other.Locals[i]); err != nil {
			return JvmStackFrame{}, err
		}
	}
	for i := range merged.Stack {
		if merged.Stack[i], err = mergeSlot(f.Stack[i], other.Stack[i]); err != nil {
			return JvmStackFrame{}, err
		}
	}
	return merged, nil
}

// Equal reports whether two frames are identical slot-for-slot, used by
// the fixed-point driver to detect convergence.
func (f JvmStackFrame) Equal(other JvmStackFrame) bool {
	if f.Reachable != other.Reachable {
		return false
	}
	if len(f.Locals) != len(other.Locals) || len(f.Stack) != len(other.Stack) {
		return false
	}
	for i := range f.Locals {
		if !slotEqual(f.Locals[i], other.Locals[i]) {
			return false
		}
	}
	for i := range f.Stack {
		if !slotEqual(f.Stack[i], other.Stack[i]) {
			return false
		}
	}
	return true
}

func slotEqual(a, b Slot) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case SlotValue:
		return a.Value.Equal(b.Value)
	case SlotReturnAddress:
		if len(a.RetAddrs) != len(b.RetAddrs) {
			return false
		}
		for pc := range a.RetAddrs {
			if _, ok := b.RetAddrs[pc]; !ok {
				return false
			}
		}
		return a.Value.Equal(b.Value)
	default:
		return true
	}
}
