package arm64

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

func TestMachine_ArgsResultsRegs(t *testing.T) {
	mod := ir.NewModule()
	slice := mod.Slice(ir.TypeU8)
	st := mod.Struct(ir.TypeI64, ir.TypeI64, ir.TypeI64)
	pair := mod.Pair(ir.TypeI64, ir.TypeI64)
	params := []ir.TypeID{
		ir.TypeI64, ir.TypeF64, slice, st,
		ir.TypeI32, ir.TypeI32, ir.TypeI32, ir.TypeI32,
		ir.TypeF32, pair, ir.TypeI64,
	}

	var abi backend.FunctionABI
	require.NoError(t, abi.Init(mod, params, slice, &machine{}))

	type loc struct {
		kind   backend.ABIArgKind
		regs   [2]regalloc.RealReg
		offset int64
	}
	exp := []loc{
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x0}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{v0}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x1, x2}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x3}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x4}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x5}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x6}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{x7}},
		{kind: backend.ABIArgKindReg, regs: [2]regalloc.RealReg{v1}},
		{kind: backend.ABIArgKindStack, offset: 0},
		{kind: backend.ABIArgKindStack, offset: 16},
	}
	require.Equal(t, len(exp), len(abi.Args))
	for k, a := range abi.Args {
		require.Equal(t, exp[k].kind, a.Kind, a.String())
		require.Equal(t, k, a.Index)
		if a.Kind == backend.ABIArgKindReg {
			require.Equal(t, exp[k].regs, a.Regs, a.String())
		} else {
			require.Equal(t, exp[k].offset, a.Offset, a.String())
		}
	}
	require.True(t, abi.Args[3].ByRef())
	require.Equal(t, int64(24), abi.ArgStackSize)
	require.Equal(t, int64(32), abi.AlignedArgStackSize())

	require.Equal(t, backend.ABIArgKindReg, abi.Ret.Kind)
	require.Equal(t, [2]regalloc.RealReg{x0, x1}, abi.Ret.Regs)
}

func TestCompiler_Compile_arguments(t *testing.T) {
	const n = 11
	t.Run("integer", func(t *testing.T) {
		mod := ir.NewModule()
		params := make([]ir.TypeID, n)
		for k := range params {
			params[k] = ir.TypeU64
		}
		for k := 0; k < n; k++ {
			k := k
			define(mod, "arg"+strconv.Itoa(k), params, ir.TypeU64, func(b *ir.FunctionBuilder, args []ir.Ref) {
				b.Ret(args[k])
			})
		}
		p := load(t, NewCompiler(true), mod)
		args := make([]uint64, n)
		for k := range args {
			args[k] = 0x100 + uint64(k)
		}
		for k := 0; k < n; k++ {
			require.Equal(t, args[k], p.call(t, "arg"+strconv.Itoa(k), args...), "argument %d", k)
		}
	})
	t.Run("float", func(t *testing.T) {
		mod := ir.NewModule()
		params := make([]ir.TypeID, 10)
		for k := range params {
			params[k] = ir.TypeF64
		}
		for k := range params {
			k := k
			define(mod, "arg"+strconv.Itoa(k), params, ir.TypeF64, func(b *ir.FunctionBuilder, args []ir.Ref) {
				b.Ret(args[k])
			})
		}
		p := load(t, NewCompiler(true), mod)
		values := make([]uint64, len(params))
		for k := range values {
			values[k] = math.Float64bits(float64(k) + 0.5)
		}
		for k := range params {
			copy(p.emu.D[:8], values[:8])
			// The last two are on the stack, after the unused integer registers.
			p.call(t, "arg"+strconv.Itoa(k), 0, 0, 0, 0, 0, 0, 0, 0, values[8], values[9])
			require.Equal(t, values[k], p.emu.D[0], "argument %d", k)
		}
	})
	t.Run("narrow on the stack", func(t *testing.T) {
		mod := ir.NewModule()
		params := make([]ir.TypeID, 10)
		for k := range params {
			params[k] = ir.TypeI64
		}
		params[9] = ir.TypeI8
		define(mod, "narrow", params, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
			b.Ret(b.Convert(ir.TagIntCast, ir.TypeI64, args[9]))
		})
		p := load(t, NewCompiler(true), mod)
		require.Equal(t, uint64(math.MaxUint64), p.call(t, "narrow", 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x12ff))
	})
	t.Run("aggregate by reference", func(t *testing.T) {
		mod := ir.NewModule()
		st := mod.Struct(ir.TypeI64, ir.TypeI64, ir.TypeI64)
		define(mod, "third", []ir.TypeID{st}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
			b.Ret(b.Emit(ir.Instruction{Tag: ir.TagStructFieldVal, Type: ir.TypeI64, Args: []ir.Ref{args[0]}, Imm: 2}))
		})
		p := load(t, NewCompiler(true), mod)
		require.NoError(t, p.emu.Store(p.data()+16, 8, 42))
		require.Equal(t, uint64(42), p.call(t, "third", p.data()))
	})
}

func TestCompiler_Compile_call(t *testing.T) {
	const n = 11
	mod := ir.NewModule()
	params := make([]ir.TypeID, n)
	for k := range params {
		params[k] = ir.TypeI64
	}
	sum11 := define(mod, "sum11", params, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		sum := args[0]
		for _, a := range args[1:] {
			sum = b.Binary(ir.TagAdd, sum, a)
		}
		b.Ret(sum)
	})
	define(mod, "forward", params, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		b.Ret(b.Call(ir.TypeI64, ir.SymbolRef(sum11), args...))
	})
	define(mod, "constants", nil, ir.TypeI64, func(b *ir.FunctionBuilder, _ []ir.Ref) {
		args := make([]ir.Ref, n)
		for k := range args {
			args[k] = ir.ConstRef(ir.TypeI64, uint64(k+1))
		}
		b.Ret(b.Call(ir.TypeI64, ir.SymbolRef(sum11), args...))
	})
	// The values live across the call are in caller-saved registers at the call.
	define(mod, "live_across", []ir.TypeID{ir.TypeI64}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		x := args[0]
		y := b.Binary(ir.TagMul, x, ir.ConstRef(ir.TypeI64, 3))
		call := make([]ir.Ref, n)
		for k := range call {
			call[k] = x
		}
		r := b.Call(ir.TypeI64, ir.SymbolRef(sum11), call...)
		b.Ret(b.Binary(ir.TagSub, r, y))
	})

	p := load(t, NewCompiler(true), mod)
	for _, name := range []string{"forward", "constants"} {
		code := p.codes[name]
		require.Equal(t, 1, len(code.Relocations), name)
		require.Equal(t, sum11, code.Relocations[0].Symbol)
		require.Equal(t, backend.RelocationCall26, code.Relocations[0].Kind)
	}

	args := make([]uint64, n)
	var exp uint64
	for k := range args {
		args[k] = uint64(k) * 1000
		exp += args[k]
	}
	require.Equal(t, exp, p.call(t, "forward", args...))
	require.Equal(t, uint64(66), p.call(t, "constants"))
	require.Equal(t, uint64(8*7), p.call(t, "live_across", 7))
}

func TestCompiler_Compile_callResults(t *testing.T) {
	mod := ir.NewModule()
	pair := mod.Pair(ir.TypeI64, ir.TypeI64)
	st := mod.Struct(ir.TypeI64, ir.TypeI64, ir.TypeI64)

	fadd := define(mod, "fadd", []ir.TypeID{ir.TypeF64, ir.TypeF64}, ir.TypeF64, binop(ir.TagAdd))
	define(mod, "fcall", []ir.TypeID{ir.TypeF64}, ir.TypeF64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		doubled := b.Call(ir.TypeF64, ir.SymbolRef(fadd), args[0], args[0])
		b.Ret(b.Binary(ir.TagSub, doubled, args[0]))
	})
	swap := define(mod, "swap", []ir.TypeID{ir.TypeI64, ir.TypeI64}, pair, func(b *ir.FunctionBuilder, args []ir.Ref) {
		b.Ret(b.Emit(ir.Instruction{Tag: ir.TagAggregateInit, Type: pair, Args: []ir.Ref{args[1], args[0]}}))
	})
	define(mod, "pair_call", []ir.TypeID{ir.TypeI64, ir.TypeI64}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		r := b.Call(pair, ir.SymbolRef(swap), args[0], args[1])
		first := b.Emit(ir.Instruction{Tag: ir.TagPairFirst, Type: ir.TypeI64, Args: []ir.Ref{r}})
		second := b.Emit(ir.Instruction{Tag: ir.TagPairSecond, Type: ir.TypeI64, Args: []ir.Ref{r}})
		b.Ret(b.Binary(ir.TagSub, first, second))
	})
	narrow := define(mod, "narrow", nil, ir.TypeI8, func(b *ir.FunctionBuilder, _ []ir.Ref) {
		b.Ret(ir.ConstRef(ir.TypeI8, 0xff))
	})
	define(mod, "narrow_call", nil, ir.TypeI64, func(b *ir.FunctionBuilder, _ []ir.Ref) {
		b.Ret(b.Convert(ir.TagIntCast, ir.TypeI64, b.Call(ir.TypeI8, ir.SymbolRef(narrow))))
	})
	third := define(mod, "third", []ir.TypeID{st}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		b.Ret(b.Emit(ir.Instruction{Tag: ir.TagStructFieldVal, Type: ir.TypeI64, Args: []ir.Ref{args[0]}, Imm: 2}))
	})
	define(mod, "aggregate_call", []ir.TypeID{ir.TypeI64}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		agg := b.Emit(ir.Instruction{Tag: ir.TagAggregateInit, Type: st, Args: []ir.Ref{
			ir.ConstRef(ir.TypeI64, 1), ir.ConstRef(ir.TypeI64, 2), args[0],
		}})
		b.Ret(b.Call(ir.TypeI64, ir.SymbolRef(third), agg))
	})
	define(mod, "indirect", []ir.TypeID{ir.TypeFuncPtr, ir.TypeI64, ir.TypeI64}, ir.TypeI64, func(b *ir.FunctionBuilder, args []ir.Ref) {
		r := b.Call(pair, args[0], args[1], args[2])
		b.Ret(b.Emit(ir.Instruction{Tag: ir.TagPairFirst, Type: ir.TypeI64, Args: []ir.Ref{r}}))
	})

	p := load(t, NewCompiler(true), mod)
	p.emu.D[0] = math.Float64bits(1.25)
	p.call(t, "fcall")
	require.Equal(t, 1.25, math.Float64frombits(p.emu.D[0]))

	require.Equal(t, uint64(7), p.call(t, "pair_call", 3, 10))
	require.Equal(t, uint64(math.MaxUint64), p.call(t, "narrow_call"))
	require.Equal(t, uint64(99), p.call(t, "aggregate_call", 99))

	require.Empty(t, p.codes["indirect"].Relocations)
	require.Equal(t, uint64(5), p.call(t, "indirect", p.addrs["swap"], 4, 5))
}
