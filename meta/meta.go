// Package meta holds the in-memory schema of one open dataset: a tree of
// groups, each owning dimensions, variables, attributes and types.
//
// Backends build a Model when creating a dataset or when parsing an
// existing file's schema at open time, and keep it synchronized as
// schema-defining calls are processed. Inquiry is answered from the
// Model alone, so backends that maintain it faithfully never implement
// inquiry themselves.
package meta

import "fmt"

// Object identifiers. IDs are dense small integers allocated per Model
// in definition order, never reused.
type (
	DimID  int
	VarID  int
	GrpID  int
	TypeID int
)

// Global is the attribute target that addresses a group itself rather
// than one of its variables.
const Global VarID = -1

// Root is the id of the root group of every Model.
const Root GrpID = 0

// Unlimited is the dimension length that marks a record dimension. The
// Dimension's Len then reports the current number of records.
const Unlimited uint64 = 0

// Kind enumerates the primitive value kinds.
type Kind uint8

const (
	KindNone Kind = iota
	KindByte
	KindUByte
	KindShort
	KindUShort
	KindInt
	KindUInt
	KindInt64
	KindUInt64
	KindFloat
	KindDouble
	KindChar
	KindString
)

var kindNames = [...]string{
	KindNone: "none", KindByte: "byte", KindUByte: "ubyte",
	KindShort: "short", KindUShort: "ushort", KindInt: "int",
	KindUInt: "uint", KindInt64: "int64", KindUInt64: "uint64",
	KindFloat: "float", KindDouble: "double", KindChar: "char",
	KindString: "string",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Size returns the fixed element size in bytes, or 0 for KindString and
// KindNone.
func (k Kind) Size() int {
	switch k {
	case KindByte, KindUByte, KindChar:
		return 1
	case KindShort, KindUShort:
		return 2
	case KindInt, KindUInt, KindFloat:
		return 4
	case KindInt64, KindUInt64, KindDouble:
		return 8
	default:
		return 0
	}
}

// Predefined type ids mirror the primitive kinds one to one. User-defined
// type ids start at UserBase.
const (
	Byte   TypeID = TypeID(KindByte)
	UByte  TypeID = TypeID(KindUByte)
	Short  TypeID = TypeID(KindShort)
	UShort TypeID = TypeID(KindUShort)
	Int    TypeID = TypeID(KindInt)
	UInt   TypeID = TypeID(KindUInt)
	Int64  TypeID = TypeID(KindInt64)
	UInt64 TypeID = TypeID(KindUInt64)
	Float  TypeID = TypeID(KindFloat)
	Double TypeID = TypeID(KindDouble)
	Char   TypeID = TypeID(KindChar)
	String TypeID = TypeID(KindString)

	UserBase TypeID = 32
)

// Class distinguishes primitive from user-defined type shapes.
type Class uint8

const (
	ClassPrimitive Class = iota
	ClassCompound
	ClassEnum
	ClassVarLen
	ClassOpaque
)

func (c Class) String() string {
	switch c {
	case ClassPrimitive:
		return "primitive"
	case ClassCompound:
		return "compound"
	case ClassEnum:
		return "enum"
	case ClassVarLen:
		return "vlen"
	case ClassOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Field is one member of a compound type.
type Field struct {
	Name   string
	Type   TypeID
	Offset int
}

// EnumMember is one named value of an enum type.
type EnumMember struct {
	Name  string
	Value int64
}

// Type describes a primitive or user-defined type. Base references the
// enum base or vlen element type; references are always resolvable
// within the owning Model.
type Type struct {
	ID      TypeID
	Name    string
	Class   Class
	Size    int
	Kind    Kind
	Base    TypeID
	Fields  []Field
	Members []EnumMember
	Group   GrpID
}

// TypeDef is the caller-facing description passed to DefType.
type TypeDef struct {
	Name    string
	Class   Class
	Size    int
	Base    TypeID
	Fields  []Field
	Members []EnumMember
}
