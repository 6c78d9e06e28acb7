// Command mokalift lifts an in-memory fixture method to its SSA-style IR
// and prints the result. It exists to exercise package moka end to end;
// it does not parse real .class files (see package classfile's doc
// comment).
package main

import (
	"flag"
	"fmt"
	"os"

	"mokalift/classfile"
	"mokalift/moka"
)

var fixtureName = flag.String("fixture", "branch", "which built-in fixture method to lift (add, branch, trycatch, tableswitch, widelong)")

func main() {
	flag.Parse()

	method, ok := fixtures[*fixtureName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown fixture %q\n", *fixtureName)
		os.Exit(1)
	}

	ir, err := moka.Lift(method())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	moka.Dump(os.Stdout, ir)
}

var fixtures = map[string]func() *classfile.Method{
	"add":         fixtureAddTwoParams,
	"branch":      fixtureBranchWithPhi,
	"trycatch":    fixtureTryCatch,
	"tableswitch": fixtureTableSwitch,
	"widelong":    fixtureWideLong,
}

func owner() classfile.ClassReference { return classfile.NewClassReference("com/example/Demo") }

// fixtureAddTwoParams lifts: int add(int a, int b) { return a + b; }
func fixtureAddTwoParams() *classfile.Method {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int, classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.ILoad, Index: 1},
		2: {Op: classfile.IAdd},
		3: {Op: classfile.IReturn},
	}
	return &classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "add",
		Descriptor:  desc,
		Owner:       owner(),
		Body: &classfile.MethodBody{
			MaxStack:     2,
			MaxLocals:    2,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}
}

// fixtureBranchWithPhi lifts: int choose(int x) { return x > 0 ? 1 : -1; }
// Both branches join at one ireturn, whose operand is a phi.
func fixtureBranchWithPhi() *classfile.Method {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.IfLe, Target: 4},
		2: {Op: classfile.IConst, Const: classfile.IntValue(1)},
		3: {Op: classfile.Goto, Target: 5},
		4: {Op: classfile.IConst, Const: classfile.IntValue(-1)},
		5: {Op: classfile.IReturn},
	}
	return &classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "choose",
		Descriptor:  desc,
		Owner:       owner(),
		Body: &classfile.MethodBody{
			MaxStack:     1,
			MaxLocals:    1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}
}

// fixtureTryCatch lifts: int guarded() { try { return risky(); } catch (Exception e) { return -1; } }
func fixtureTryCatch() *classfile.Method {
	desc := classfile.MethodDescriptor{ReturnType: classfile.ReturnOf(classfile.Int)}
	riskyRef := classfile.MethodReference{
		Owner:      owner(),
		Name:       "risky",
		Descriptor: classfile.MethodDescriptor{ReturnType: classfile.ReturnOf(classfile.Int)},
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.InvokeStatic, Method: &riskyRef, Invoke: classfile.InvokeKindStatic},
		1: {Op: classfile.IReturn},
		2: {Op: classfile.IConst, Const: classfile.IntValue(-1)},
		3: {Op: classfile.IReturn},
	}
	exceptionClass := classfile.NewClassReference("java/lang/Exception")
	return &classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "guarded",
		Descriptor:  desc,
		Owner:       owner(),
		Body: &classfile.MethodBody{
			MaxStack:     2,
			MaxLocals:    0,
			Instructions: classfile.NewInstructionList(instrs),
			ExceptionTable: []classfile.ExceptionTableEntry{
				{StartPC: 0, EndPC: 0, HandlerPC: 2, CatchType: &exceptionClass},
			},
		},
	}
}

// fixtureTableSwitch lifts: int dispatch(int k) { switch (k) { case 0: return 10; case 1: return 11; default: return -1; } }
func fixtureTableSwitch() *classfile.Method {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Int},
		ReturnType:      classfile.ReturnOf(classfile.Int),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.ILoad, Index: 0},
		1: {Op: classfile.TableSwitch, Low: 0, High: 1, Default: 6, Targets: []classfile.ProgramCounter{2, 4}},
		2: {Op: classfile.IConst, Const: classfile.IntValue(10)},
		3: {Op: classfile.IReturn},
		4: {Op: classfile.IConst, Const: classfile.IntValue(11)},
		5: {Op: classfile.IReturn},
		6: {Op: classfile.IConst, Const: classfile.IntValue(-1)},
		7: {Op: classfile.IReturn},
	}
	return &classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "dispatch",
		Descriptor:  desc,
		Owner:       owner(),
		Body: &classfile.MethodBody{
			MaxStack:     1,
			MaxLocals:    1,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}
}

// fixtureWideLong lifts: long addOne(long x) { return x + 1L; }
func fixtureWideLong() *classfile.Method {
	desc := classfile.MethodDescriptor{
		ParametersTypes: []classfile.FieldType{classfile.Long},
		ReturnType:      classfile.ReturnOf(classfile.Long),
	}
	instrs := map[classfile.ProgramCounter]classfile.Instruction{
		0: {Op: classfile.LLoad, Index: 0},
		1: {Op: classfile.LConst, Const: classfile.LongValue(1)},
		2: {Op: classfile.LAdd},
		3: {Op: classfile.LReturn},
	}
	return &classfile.Method{
		AccessFlags: classfile.AccPublic | classfile.AccStatic,
		Name:        "addOne",
		Descriptor:  desc,
		Owner:       owner(),
		Body: &classfile.MethodBody{
			MaxStack:     4,
			MaxLocals:    2,
			Instructions: classfile.NewInstructionList(instrs),
		},
	}
}
