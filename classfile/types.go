package classfile

import "strings"

// FieldType is the descriptor-level type of a field, local variable,
// parameter or array element.
type FieldType struct {
	// Kind classifies the type; for KindObject, ClassName holds the
	// referenced class; for KindArray, Element holds the element type.
	Kind      FieldTypeKind
	ClassName string
	Element   *FieldType
}

type FieldTypeKind int

const (
	KindByte FieldTypeKind = iota
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindObject
	KindArray
)

var primitiveNames = map[FieldTypeKind]string{
	KindByte:    "byte",
	KindChar:    "char",
	KindDouble:  "double",
	KindFloat:   "float",
	KindInt:     "int",
	KindLong:    "long",
	KindShort:   "short",
	KindBoolean: "boolean",
}

// IsCategory2 reports whether a value of this type occupies two contiguous
// local/stack slots (long or double).
func (f FieldType) IsCategory2() bool {
	return f.Kind == KindLong || f.Kind == KindDouble
}

func (f FieldType) String() string {
	switch f.Kind {
	case KindObject:
		return "L" + f.ClassName + ";"
	case KindArray:
		return "[" + f.Element.String()
	default:
		return primitiveNames[f.Kind]
	}
}

var (
	Byte    = FieldType{Kind: KindByte}
	Char    = FieldType{Kind: KindChar}
	Double  = FieldType{Kind: KindDouble}
	Float   = FieldType{Kind: KindFloat}
	Int     = FieldType{Kind: KindInt}
	Long    = FieldType{Kind: KindLong}
	Short   = FieldType{Kind: KindShort}
	Boolean = FieldType{Kind: KindBoolean}
)

// Object builds the FieldType for a reference to the named class.
func Object(className string) FieldType {
	return FieldType{Kind: KindObject, ClassName: className}
}

// ArrayOf builds the FieldType for an array with the given element type.
func ArrayOf(element FieldType) FieldType {
	return FieldType{Kind: KindArray, Element: &element}
}

// ReturnType is either "void" or a FieldType.
type ReturnType struct {
	Void bool
	Type FieldType
}

var VoidReturn = ReturnType{Void: true}

func ReturnOf(t FieldType) ReturnType {
	return ReturnType{Type: t}
}

func (r ReturnType) String() string {
	if r.Void {
		return "void"
	}
	return r.Type.String()
}

// MethodDescriptor is the parameter and return type signature of a method.
type MethodDescriptor struct {
	ParametersTypes []FieldType
	ReturnType      ReturnType
}

func (d MethodDescriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range d.ParametersTypes {
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	b.WriteString(d.ReturnType.String())
	return b.String()
}

// MethodAccessFlags mirrors the JVM method access_flags bitmask.
type MethodAccessFlags uint16

const (
	AccPublic       MethodAccessFlags = 0x0001
	AccPrivate      MethodAccessFlags = 0x0002
	AccProtected    MethodAccessFlags = 0x0004
	AccStatic       MethodAccessFlags = 0x0008
	AccFinal        MethodAccessFlags = 0x0010
	AccSynchronized MethodAccessFlags = 0x0020
	AccBridge       MethodAccessFlags = 0x0040
	AccVarargs      MethodAccessFlags = 0x0080
	AccNative       MethodAccessFlags = 0x0100
	AccAbstract     MethodAccessFlags = 0x0400
	AccStrict       MethodAccessFlags = 0x0800
	AccSynthetic    MethodAccessFlags = 0x1000
)

// Has reports whether all bits of mask are set.
func (f MethodAccessFlags) Has(mask MethodAccessFlags) bool {
	return f&mask == mask
}
