package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// smallABI passes three integer and two float arguments in registers.
type smallABI struct{}

func (smallABI) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	return []regalloc.RealReg{1, 2, 3}, []regalloc.RealReg{10, 11}, []regalloc.RealReg{1, 2}, []regalloc.RealReg{10, 11}
}

func TestFunctionABI_Init(t *testing.T) {
	mod := ir.NewModule()
	pair := mod.Pair(ir.TypeI64, ir.TypeI64)
	slice := mod.Slice(ir.TypeU8)
	st := mod.Struct(ir.TypeI64, ir.TypeI64, ir.TypeI64)
	params := []ir.TypeID{ir.TypeI64, pair, ir.TypeI32, ir.TypeF64, slice, ir.TypeF32, ir.TypeF32, st}

	var abi FunctionABI
	require.NoError(t, abi.Init(mod, params, ir.TypeF64, smallABI{}))
	require.Equal(t, []ABIArg{
		{Index: 0, Kind: ABIArgKindReg, Regs: [2]regalloc.RealReg{1}, Type: ir.TypeI64},
		{Index: 1, Kind: ABIArgKindReg, Regs: [2]regalloc.RealReg{2, 3}, Type: pair},
		{Index: 2, Kind: ABIArgKindStack, Offset: 0, Type: ir.TypeI32},
		{Index: 3, Kind: ABIArgKindReg, Regs: [2]regalloc.RealReg{10}, Type: ir.TypeF64},
		{Index: 4, Kind: ABIArgKindStack, Offset: 8, Type: slice},
		{Index: 5, Kind: ABIArgKindReg, Regs: [2]regalloc.RealReg{11}, Type: ir.TypeF32},
		{Index: 6, Kind: ABIArgKindStack, Offset: 24, Type: ir.TypeF32},
		{Index: 7, Kind: ABIArgKindStack, Offset: 32, Type: st},
	}, withoutShapes(abi.Args))
	require.Equal(t, int64(40), abi.ArgStackSize)
	require.Equal(t, int64(48), abi.AlignedArgStackSize())

	require.Equal(t, ABIArgKindReg, abi.Ret.Kind)
	require.Equal(t, [2]regalloc.RealReg{10}, abi.Ret.Regs)

	require.True(t, abi.Args[7].ByRef())
	require.Equal(t, 1, abi.Args[7].NumRegs())
	require.Equal(t, regalloc.RegTypeInt, abi.Args[7].Class())
	require.Equal(t, 2, abi.Args[4].NumRegs())
	require.Equal(t, regalloc.RegTypeFloat, abi.Args[5].Class())
	require.Equal(t, "args[4]: stack", abi.Args[4].String())
}

func withoutShapes(args []ABIArg) []ABIArg {
	ret := make([]ABIArg, len(args))
	for k, a := range args {
		a.Shape = Shape{}
		ret[k] = a
	}
	return ret
}

func TestFunctionABI_Init_results(t *testing.T) {
	mod := ir.NewModule()
	for _, tc := range []struct {
		name string
		typ  ir.TypeID
		kind ABIArgKind
		regs [2]regalloc.RealReg
	}{
		{name: "void", typ: ir.TypeVoid, kind: ABIArgKindNone},
		{name: "scalar", typ: ir.TypeU8, kind: ABIArgKindReg, regs: [2]regalloc.RealReg{1}},
		{name: "slice", typ: mod.Slice(ir.TypeU8), kind: ABIArgKindReg, regs: [2]regalloc.RealReg{1, 2}},
		{name: "float pair", typ: mod.Pair(ir.TypeF64, ir.TypeF64), kind: ABIArgKindReg, regs: [2]regalloc.RealReg{10, 11}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var abi FunctionABI
			require.NoError(t, abi.Init(mod, nil, tc.typ, smallABI{}))
			require.Equal(t, tc.kind, abi.Ret.Kind)
			require.Equal(t, tc.regs, abi.Ret.Regs)
		})
	}
}

func TestFunctionABI_Init_unsupported(t *testing.T) {
	mod := ir.NewModule()
	vec := mod.AddType(ir.Type{Kind: ir.TypeKindVector, Elem: ir.TypeF32, Len: 4})
	for _, tc := range []struct {
		name   string
		params []ir.TypeID
		result ir.TypeID
	}{
		{name: "void parameter", params: []ir.TypeID{ir.TypeVoid}, result: ir.TypeVoid},
		{name: "vector parameter", params: []ir.TypeID{vec}, result: ir.TypeVoid},
		{name: "struct result", result: mod.Struct(ir.TypeI64, ir.TypeI64)},
		{name: "vector result", result: vec},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var abi FunctionABI
			err := abi.Init(mod, tc.params, tc.result, smallABI{})
			require.True(t, errors.Is(err, ErrUnsupportedOperation), err)
		})
	}
}

func TestCompileError(t *testing.T) {
	err := error(&CompileError{Function: "f", Index: 3, Tag: ir.TagRem, Err: Unsupported("%s of %s", ir.TagRem, "f64")})
	require.Equal(t, "compiling f: %3 (rem): unsupported operation: rem of f64", err.Error())
	require.True(t, errors.Is(err, ErrUnsupportedOperation))

	err = &CompileError{Function: "g", Err: ErrOutOfRegisters}
	require.Equal(t, "compiling g: "+ErrOutOfRegisters.Error(), err.Error())
	require.True(t, errors.Is(err, regalloc.ErrOutOfRegisters))
}
