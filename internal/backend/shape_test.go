package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

func TestShapeOf(t *testing.T) {
	mod := ir.NewModule()
	for _, tc := range []struct {
		name string
		typ  ir.TypeID
		exp  Shape
	}{
		{name: "void", typ: ir.TypeVoid, exp: Shape{Kind: ShapeVoid}},
		{
			name: "bool", typ: ir.TypeBool,
			exp: Shape{Kind: ShapeScalar, Class: regalloc.RegTypeInt, Bits: [2]uint16{8}, Size: 1, Align: 1},
		},
		{
			name: "i16", typ: ir.TypeI16,
			exp: Shape{Kind: ShapeScalar, Class: regalloc.RegTypeInt, Bits: [2]uint16{16}, Signed: [2]bool{true}, Size: 2, Align: 2},
		},
		{
			name: "f32", typ: ir.TypeF32,
			exp: Shape{Kind: ShapeScalar, Class: regalloc.RegTypeFloat, Bits: [2]uint16{32}, Size: 4, Align: 4},
		},
		{
			name: "pointer", typ: ir.TypePtr,
			exp: Shape{Kind: ShapeScalar, Class: regalloc.RegTypeInt, Bits: [2]uint16{64}, Size: 8, Align: 8},
		},
		{
			name: "slice", typ: mod.Slice(ir.TypeU32),
			exp: Shape{Kind: ShapePair, Class: regalloc.RegTypeInt, Bits: [2]uint16{64, 64}, Offsets: [2]uint64{0, 8}, Size: 16, Align: 8},
		},
		{
			name: "pair", typ: mod.Pair(ir.TypeI32, ir.TypeU64),
			exp: Shape{
				Kind: ShapePair, Class: regalloc.RegTypeInt,
				Bits: [2]uint16{32, 64}, Signed: [2]bool{true, false}, Offsets: [2]uint64{0, 8},
				Size: 16, Align: 8,
			},
		},
		{
			name: "float pair", typ: mod.Pair(ir.TypeF32, ir.TypeF32),
			exp: Shape{Kind: ShapePair, Class: regalloc.RegTypeFloat, Bits: [2]uint16{32, 32}, Offsets: [2]uint64{0, 4}, Size: 8, Align: 4},
		},
		{
			name: "sentinel optional", typ: mod.Optional(ir.TypePtr, true),
			exp: Shape{Kind: ShapeScalar, Class: regalloc.RegTypeInt, Bits: [2]uint16{64}, Size: 8, Align: 8},
		},
		{
			name: "optional", typ: mod.Optional(ir.TypeI32, false),
			exp: Shape{Kind: ShapeMemory, Size: 8, Align: 4},
		},
		{
			name: "struct", typ: mod.Struct(ir.TypeU8, ir.TypeU64, ir.TypeU16),
			exp: Shape{Kind: ShapeMemory, Size: 24, Align: 8},
		},
		{
			name: "array", typ: mod.Array(ir.TypeU16, 5),
			exp: Shape{Kind: ShapeMemory, Size: 10, Align: 2},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			shape, err := ShapeOf(mod, tc.typ)
			require.NoError(t, err)
			require.Equal(t, tc.exp, shape)
		})
	}
}

func TestShapeOf_unsupported(t *testing.T) {
	mod := ir.NewModule()
	for _, tc := range []struct {
		name string
		typ  ir.TypeID
	}{
		{name: "vector", typ: mod.AddType(ir.Type{Kind: ir.TypeKindVector, Elem: ir.TypeF32, Len: 4})},
		{name: "mixed pair", typ: mod.Pair(ir.TypeI64, ir.TypeF64)},
		{name: "pair of aggregates", typ: mod.Pair(mod.Slice(ir.TypeU8), ir.TypeI64)},
		{name: "sentinel optional of a struct", typ: mod.Optional(mod.Struct(ir.TypeI64), true)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ShapeOf(mod, tc.typ)
			require.True(t, errors.Is(err, ErrUnsupportedOperation), err)
		})
	}
}

func TestShape_Regs(t *testing.T) {
	require.Equal(t, 0, Shape{Kind: ShapeVoid}.Regs())
	require.Equal(t, 1, Shape{Kind: ShapeScalar}.Regs())
	require.Equal(t, 2, Shape{Kind: ShapePair}.Regs())
	require.Equal(t, 0, Shape{Kind: ShapeMemory}.Regs())
}
