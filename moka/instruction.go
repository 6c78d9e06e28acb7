package moka

import (
	"fmt"
	"strings"

	"mokalift/classfile"
)

// MokaInstruction is a single instruction of the lifted IR, keyed by the
// classfile.ProgramCounter of the bytecode instruction it was lifted from.
// Unlike bytecode, a MokaInstruction never pushes or pops an implicit
// stack: every operand is a named Argument and every result (if any) is
// bound to a LocalDef.
type MokaInstruction interface {
	isMokaInstruction()
	String() string
}

// Nop is emitted for bytecode that only rearranges the abstract frame
// (dup/pop/swap/load) without itself defining a new value.
type Nop struct{}

func (Nop) isMokaInstruction() {}
func (Nop) String() string     { return "nop" }

// Definition binds the result of evaluating Expr to Def. A Definition
// whose Def is never referenced (a field write, an array store, throw,
// monitor enter/exit) is kept purely for its Expr's side effect.
type Definition struct {
	Def  LocalDef
	Expr Expression
}

func (Definition) isMokaInstruction() {}
func (d Definition) String() string {
	return fmt.Sprintf("%s := %s", d.Def, d.Expr)
}

// Jump transfers control unconditionally (Condition == nil) or only when
// Condition evaluates true, to Target.
type Jump struct {
	Condition *Condition
	Target    classfile.ProgramCounter
}

func (Jump) isMokaInstruction() {}
func (j Jump) String() string {
	if j.Condition == nil {
		return fmt.Sprintf("goto %s", j.Target)
	}
	return fmt.Sprintf("if %s goto %s", j.Condition, j.Target)
}

// SwitchCase is one matched value of a Switch.
type SwitchCase struct {
	Match  int32
	Target classfile.ProgramCounter
}

// Switch is the lift of tableswitch/lookupswitch: branch to the case
// whose Match equals Scrutinee, or to Default otherwise.
type Switch struct {
	Scrutinee Argument
	Default   classfile.ProgramCounter
	Cases     []SwitchCase
}

func (Switch) isMokaInstruction() {}
func (s Switch) String() string {
	parts := make([]string, len(s.Cases))
	for i, c := range s.Cases {
		parts[i] = fmt.Sprintf("%d => %s", c.Match, c.Target)
	}
	return fmt.Sprintf("switch %s { %s, else => %s }", s.Scrutinee, strings.Join(parts, ", "), s.Default)
}

// Return ends the method, optionally with a value (nil for the void
// return instruction).
type Return struct{ Value *Argument }

func (Return) isMokaInstruction() {}
func (r Return) String() string {
	if r.Value == nil {
		return "return"
	}
	return fmt.Sprintf("return %s", r.Value)
}

// SubroutineRet is the lift of the ret instruction: control resumes at
// whatever return address Addr currently holds.
type SubroutineRet struct{ Addr Argument }

func (SubroutineRet) isMokaInstruction() {}
func (r SubroutineRet) String() string   { return fmt.Sprintf("subroutine_ret %s", r.Addr) }
