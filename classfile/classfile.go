// Package classfile models the JVM class-file collaborator contracts that
// the lifter in package moka consumes: methods, method bodies, descriptors,
// the bytecode instruction list and the exception table.
//
// Parsing an actual .class file (magic, constant pool, attribute walking)
// is out of scope here; this package only carries the in-memory shapes a
// real parser would hand to the lifter, plus enough of a builder API to
// construct fixtures for tests and the demo CLI.
package classfile

import "fmt"

// ProgramCounter is a non-negative offset into a method's bytecode. It is
// the canonical identity of a program point: an index into InstructionList
// and a key into every per-PC map the lifter builds.
type ProgramCounter uint16

func (pc ProgramCounter) String() string {
	return fmt.Sprintf("#%d", uint16(pc))
}

// ClassReference names a class, interface or array type by its internal
// (slash-separated) binary name, e.g. "java/lang/NullPointerException".
type ClassReference struct {
	Name string
}

func NewClassReference(name string) ClassReference {
	return ClassReference{Name: name}
}

func (c ClassReference) String() string {
	return c.Name
}

// ObjectThrowable is the implicit catch type of an exception-table entry
// that declares no explicit catch_type.
var ObjectThrowable = NewClassReference("java/lang/Throwable")

// FieldReference names a field by its owning class, name and type.
type FieldReference struct {
	Owner ClassReference
	Name  string
	Type  FieldType
}

// MethodReference names a method by its owning class, name and descriptor.
type MethodReference struct {
	Owner      ClassReference
	Name       string
	Descriptor MethodDescriptor
}
