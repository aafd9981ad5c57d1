package backend

import (
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// ShapeKind is how a value of some type is represented at run time.
type ShapeKind byte

const (
	// ShapeVoid has no representation.
	ShapeVoid ShapeKind = iota
	// ShapeScalar fits in one register.
	ShapeScalar
	// ShapePair takes two registers of one class.
	ShapePair
	// ShapeMemory lives in memory and is handled by address.
	ShapeMemory
)

// Shape is the run time representation of a type.
type Shape struct {
	Kind  ShapeKind
	Class regalloc.RegType
	// Bits is the width of a scalar, and of each half of a pair.
	Bits [2]uint16
	// Signed is set for signed integers, per half.
	Signed [2]bool
	// Offsets of the two halves of a pair when stored to memory.
	Offsets     [2]uint64
	Size, Align uint64
}

// ShapeOf returns the shape of the type id.
func ShapeOf(tab ir.SymbolTable, id ir.TypeID) (Shape, error) {
	t := tab.Type(id)
	switch {
	case t.Kind == ir.TypeKindVoid:
		return Shape{Kind: ShapeVoid}, nil
	case t.Kind == ir.TypeKindVector:
		return Shape{}, Unsupported("vector type %s", t)
	case t.IsScalar():
		return scalarShape(t), nil
	case t.Kind == ir.TypeKindSlice:
		return Shape{
			Kind: ShapePair, Class: regalloc.RegTypeInt,
			Bits: [2]uint16{64, 64}, Offsets: [2]uint64{0, 8},
			Size: 16, Align: 8,
		}, nil
	case t.Kind == ir.TypeKindPair:
		if len(t.Fields) != 2 {
			return Shape{}, Unsupported("pair of %d fields", len(t.Fields))
		}
		first, second := tab.Type(t.Fields[0]), tab.Type(t.Fields[1])
		if !first.IsScalar() || !second.IsScalar() {
			return Shape{}, Unsupported("pair of %s and %s", first, second)
		}
		if first.IsFloat() != second.IsFloat() {
			return Shape{}, Unsupported("pair mixing register classes: %s and %s", first, second)
		}
		a, b := scalarShape(first), scalarShape(second)
		size, align := ir.Layout(tab, id)
		return Shape{
			Kind: ShapePair, Class: a.Class,
			Bits:    [2]uint16{a.Bits[0], b.Bits[0]},
			Signed:  [2]bool{a.Signed[0], b.Signed[0]},
			Offsets: [2]uint64{ir.FieldOffset(tab, id, 0), ir.FieldOffset(tab, id, 1)},
			Size:    size, Align: align,
		}, nil
	case t.Kind == ir.TypeKindOptional && t.Sentinel:
		payload := tab.Type(t.Elem)
		if !payload.IsScalar() {
			return Shape{}, Unsupported("sentinel optional of %s", payload)
		}
		return scalarShape(payload), nil
	case t.Kind == ir.TypeKindStruct, t.Kind == ir.TypeKindArray, t.Kind == ir.TypeKindOptional:
		size, align := ir.Layout(tab, id)
		return Shape{Kind: ShapeMemory, Class: regalloc.RegTypeInvalid, Size: size, Align: align}, nil
	}
	return Shape{}, Unsupported("type %s", t)
}

func scalarShape(t *ir.Type) Shape {
	bits := t.ScalarBits()
	class := regalloc.RegTypeInt
	if t.IsFloat() {
		class = regalloc.RegTypeFloat
	}
	n := uint64(bits) / 8
	return Shape{
		Kind: ShapeScalar, Class: class,
		Bits:   [2]uint16{bits},
		Signed: [2]bool{t.Kind == ir.TypeKindInt && t.Signed},
		Size:   n, Align: n,
	}
}

// Regs returns the number of registers of the shape.
func (s Shape) Regs() int {
	switch s.Kind {
	case ShapeScalar:
		return 1
	case ShapePair:
		return 2
	}
	return 0
}
