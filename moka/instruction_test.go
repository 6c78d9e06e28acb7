package moka

import (
	"testing"

	"mokalift/classfile"
)

func TestDefinitionRendering(t *testing.T) {
	d := Definition{
		Def:  LocalDef(2),
		Expr: ArithExpr{Op: classfile.IAdd, Args: []Argument{ArgID(Arg(0)), ArgID(Arg(1))}},
	}
	assert(t, d.String() == "%2 := iadd(%arg0, %arg1)", "unexpected rendering: %s", d.String())
}

func TestJumpRendering(t *testing.T) {
	unconditional := Jump{Target: 8}
	assert(t, unconditional.String() == "goto #8", "unexpected rendering: %s", unconditional.String())

	cond := UnaryCondition(CondIfGe, ArgID(Arg(0)))
	conditional := Jump{Condition: &cond, Target: 4}
	assert(t, conditional.String() == "if ifge(%arg0) goto #4", "unexpected rendering: %s", conditional.String())
}

func TestSwitchRendering(t *testing.T) {
	s := Switch{
		Scrutinee: ArgID(Arg(0)),
		Default:   9,
		Cases: []SwitchCase{
			{Match: 0, Target: 3},
			{Match: 1, Target: 6},
		},
	}
	assert(t, s.String() == "switch %arg0 { 0 => #3, 1 => #6, else => #9 }", "unexpected rendering: %s", s.String())
}

func TestReturnRendering(t *testing.T) {
	assert(t, Return{}.String() == "return", "unexpected void return rendering")
	v := ArgID(Def(LocalDef(5)))
	withValue := Return{Value: &v}
	assert(t, withValue.String() == "return %5", "unexpected rendering: %s", withValue.String())
}

func TestSubroutineRetRendering(t *testing.T) {
	r := SubroutineRet{Addr: ArgID(Def(LocalDef(0)))}
	assert(t, r.String() == "subroutine_ret %0", "unexpected rendering: %s", r.String())
}
