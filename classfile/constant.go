package classfile

import "fmt"

// ConstantValue is the payload of an ldc/ldc2_w instruction.
type ConstantValue interface {
	isConstantValue()
	String() string
}

type IntValue int32

func (IntValue) isConstantValue()  {}
func (v IntValue) String() string  { return fmt.Sprintf("%d", int32(v)) }

type LongValue int64

func (LongValue) isConstantValue() {}
func (v LongValue) String() string { return fmt.Sprintf("%dL", int64(v)) }

type FloatValue float32

func (FloatValue) isConstantValue() {}
func (v FloatValue) String() string { return fmt.Sprintf("%gf", float32(v)) }

type DoubleValue float64

func (DoubleValue) isConstantValue() {}
func (v DoubleValue) String() string { return fmt.Sprintf("%gd", float64(v)) }

type StringValue string

func (StringValue) isConstantValue() {}
func (v StringValue) String() string { return fmt.Sprintf("%q", string(v)) }

type ClassValue struct {
	Class ClassReference
}

func (ClassValue) isConstantValue() {}
func (v ClassValue) String() string { return v.Class.Name + ".class" }

// NullValue represents the null literal pushed by aconst_null.
type NullValue struct{}

func (NullValue) isConstantValue() {}
func (NullValue) String() string   { return "null" }

// Null is the shared NullValue instance aconst_null lifts to.
var Null = NullValue{}
