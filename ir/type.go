package ir

import "fmt"

// TypeID is an opaque index into a SymbolTable's type list.
type TypeID uint32

// TypeKind is the shape of a Type.
type TypeKind byte

const (
	TypeKindInvalid TypeKind = iota
	// TypeKindVoid has no runtime representation.
	TypeKindVoid
	// TypeKindBool is a one-bit value stored in a byte.
	TypeKindBool
	// TypeKindInt is a fixed-width integer; see Type.Bits and Type.Signed.
	TypeKindInt
	// TypeKindFloat is an IEEE 754 binary32 or binary64 value.
	TypeKindFloat
	// TypeKindPointer is an address. Elem is the pointee.
	TypeKindPointer
	// TypeKindFunc is a function pointer.
	TypeKindFunc
	// TypeKindSlice is a pointer+length pair. Elem is the element type.
	TypeKindSlice
	// TypeKindPair is a two-scalar aggregate carried in registers. Fields holds both halves.
	TypeKindPair
	// TypeKindStruct is a C-layout aggregate.
	TypeKindStruct
	// TypeKindArray is Len elements of Elem.
	TypeKindArray
	// TypeKindOptional holds either a payload of type Elem or null.
	TypeKindOptional
	// TypeKindVector is a SIMD vector of Len elements of Elem.
	TypeKindVector
)

// String implements fmt.Stringer.
func (k TypeKind) String() string {
	switch k {
	case TypeKindVoid:
		return "void"
	case TypeKindBool:
		return "bool"
	case TypeKindInt:
		return "int"
	case TypeKindFloat:
		return "float"
	case TypeKindPointer:
		return "pointer"
	case TypeKindFunc:
		return "func"
	case TypeKindSlice:
		return "slice"
	case TypeKindPair:
		return "pair"
	case TypeKindStruct:
		return "struct"
	case TypeKindArray:
		return "array"
	case TypeKindOptional:
		return "optional"
	case TypeKindVector:
		return "vector"
	}
	return "invalid"
}

// Type describes a value produced or consumed by an instruction.
//
// Only the fields relevant to Kind are meaningful.
type Type struct {
	Kind TypeKind
	// Bits is the width of TypeKindInt (8, 16, 32, 64) and TypeKindFloat (32, 64).
	Bits uint16
	// Signed is true for signed TypeKindInt.
	Signed bool
	// Elem is the pointee, element or payload type.
	Elem TypeID
	// Len is the number of elements of TypeKindArray and TypeKindVector.
	Len uint64
	// Fields are the members of TypeKindStruct and the two halves of TypeKindPair.
	Fields []TypeID
	// Sentinel is set by the front-end on TypeKindOptional when the payload can never be zero,
	// in which case null is stored as zero in the payload itself and no tag byte exists.
	Sentinel bool
}

// String implements fmt.Stringer.
func (t *Type) String() string {
	switch t.Kind {
	case TypeKindInt:
		if t.Signed {
			return fmt.Sprintf("i%d", t.Bits)
		}
		return fmt.Sprintf("u%d", t.Bits)
	case TypeKindFloat:
		return fmt.Sprintf("f%d", t.Bits)
	case TypeKindArray, TypeKindVector:
		return fmt.Sprintf("%s[%d]", t.Kind, t.Len)
	default:
		return t.Kind.String()
	}
}

// IsScalar returns true if a value of this type fits in one register.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case TypeKindBool, TypeKindInt, TypeKindFloat, TypeKindPointer, TypeKindFunc:
		return true
	}
	return false
}

// IsFloat returns true for TypeKindFloat.
func (t *Type) IsFloat() bool { return t.Kind == TypeKindFloat }

// IsRegisterPair returns true if a value of this type is carried in two registers.
func (t *Type) IsRegisterPair() bool {
	return t.Kind == TypeKindSlice || t.Kind == TypeKindPair
}

// ScalarBits returns the width in bits of a scalar type.
func (t *Type) ScalarBits() uint16 {
	switch t.Kind {
	case TypeKindBool:
		return 8
	case TypeKindInt, TypeKindFloat:
		return t.Bits
	case TypeKindPointer, TypeKindFunc:
		return 64
	}
	return 0
}

// Layout returns the size and alignment in bytes of the type id.
func Layout(tab SymbolTable, id TypeID) (size, align uint64) {
	t := tab.Type(id)
	switch t.Kind {
	case TypeKindVoid:
		return 0, 1
	case TypeKindBool:
		return 1, 1
	case TypeKindInt, TypeKindFloat:
		n := uint64(t.Bits) / 8
		return n, n
	case TypeKindPointer, TypeKindFunc:
		return 8, 8
	case TypeKindSlice:
		return 16, 8
	case TypeKindPair, TypeKindStruct:
		var off, maxAlign uint64 = 0, 1
		for _, f := range t.Fields {
			fs, fa := Layout(tab, f)
			off = alignUp(off, fa) + fs
			if fa > maxAlign {
				maxAlign = fa
			}
		}
		return alignUp(off, maxAlign), maxAlign
	case TypeKindArray, TypeKindVector:
		es, ea := Layout(tab, t.Elem)
		return es * t.Len, ea
	case TypeKindOptional:
		ps, pa := Layout(tab, t.Elem)
		if t.Sentinel {
			return ps, pa
		}
		return alignUp(ps+1, pa), pa
	}
	panic(fmt.Sprintf("BUG: layout of %s", t))
}

// FieldOffset returns the byte offset of the idx-th field of a struct or pair type.
func FieldOffset(tab SymbolTable, id TypeID, idx int) uint64 {
	t := tab.Type(id)
	var off uint64
	for i, f := range t.Fields {
		fs, fa := Layout(tab, f)
		off = alignUp(off, fa)
		if i == idx {
			return off
		}
		off += fs
	}
	panic(fmt.Sprintf("BUG: field %d out of range for %s", idx, t))
}

// OptionalTagOffset returns the offset of the tag byte of a non-sentinel optional type.
func OptionalTagOffset(tab SymbolTable, id TypeID) uint64 {
	t := tab.Type(id)
	ps, _ := Layout(tab, t.Elem)
	return ps
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
