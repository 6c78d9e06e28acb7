// Package moka lifts JVM bytecode (as modeled by package classfile) into a
// register-based, SSA-style intermediate representation plus a control
// flow graph, by running an abstract-interpretation fixed-point analyzer
// over the method's operand stack and local variable array.
package moka

import (
	"strconv"

	"mokalift/classfile"
)

// LocalDef identifies a value defined at a specific program point. By
// convention it is the PC at which the defining instruction sits, which
// keeps the IR map's key space and the identifier space coincident.
type LocalDef classfile.ProgramCounter

func (d LocalDef) String() string {
	return "%" + strconv.Itoa(int(d))
}

// IdentifierKind discriminates the variants of Identifier.
type IdentifierKind int

const (
	IdentThis IdentifierKind = iota
	IdentArg
	IdentDef
	IdentCaughtException
)

// Identifier names a value in scope at some program point: the receiver,
// a method argument, a locally defined value, or the exception caught by
// a handler. It is the atomic unit Argument values are built from.
type Identifier struct {
	Kind IdentifierKind
	Arg  uint16   // valid when Kind == IdentArg
	Def  LocalDef // valid when Kind == IdentDef
}

func This() Identifier { return Identifier{Kind: IdentThis} }

func Arg(index uint16) Identifier { return Identifier{Kind: IdentArg, Arg: index} }

func Def(def LocalDef) Identifier { return Identifier{Kind: IdentDef, Def: def} }

func CaughtException() Identifier { return Identifier{Kind: IdentCaughtException} }

func (id Identifier) String() string {
	switch id.Kind {
	case IdentThis:
		return "%this"
	case IdentArg:
		return "%arg" + strconv.Itoa(int(id.Arg))
	case IdentDef:
		return id.Def.String()
	case IdentCaughtException:
		return "%caught_exception"
	default:
		return "%?"
	}
}

// Less gives Identifier a total order so Phi sets can be stored and
// rendered deterministically (identifiers compare by kind first, breaking
// ties on the payload relevant to that kind).
func (id Identifier) Less(other Identifier) bool {
	if id.Kind != other.Kind {
		return id.Kind < other.Kind
	}
	switch id.Kind {
	case IdentArg:
		return id.Arg < other.Arg
	case IdentDef:
		return id.Def < other.Def
	default:
		return false
	}
}
