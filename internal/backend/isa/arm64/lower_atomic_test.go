package arm64

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/ir"
)

var atomicStrategies = []struct {
	name string
	lse  bool
}{
	{name: "lse", lse: true},
	{name: "exclusive", lse: false},
}

func TestCompiler_Compile_atomicRmw(t *testing.T) {
	for _, tc := range []struct {
		typ          ir.TypeID
		op           ir.AtomicOp
		mem, operand uint64
		// old is the result in x0 and stored is the memory after the operation.
		old, stored uint64
	}{
		{typ: ir.TypeU64, op: ir.AtomicOpAdd, mem: 5, operand: 3, old: 5, stored: 8},
		{typ: ir.TypeU64, op: ir.AtomicOpSub, mem: 5, operand: 3, old: 5, stored: 2},
		{typ: ir.TypeU64, op: ir.AtomicOpAnd, mem: 0b1100, operand: 0b1010, old: 0b1100, stored: 0b1000},
		{typ: ir.TypeU64, op: ir.AtomicOpNand, mem: 0b1100, operand: 0b1010, old: 0b1100, stored: ^uint64(0b1000)},
		{typ: ir.TypeU64, op: ir.AtomicOpOr, mem: 0b1100, operand: 0b1010, old: 0b1100, stored: 0b1110},
		{typ: ir.TypeU64, op: ir.AtomicOpXor, mem: 0b1100, operand: 0b1010, old: 0b1100, stored: 0b0110},
		{typ: ir.TypeU64, op: ir.AtomicOpXchg, mem: 5, operand: 3, old: 5, stored: 3},
		{typ: ir.TypeI64, op: ir.AtomicOpMax, mem: i64(-1), operand: 3, old: i64(-1), stored: 3},
		{typ: ir.TypeI64, op: ir.AtomicOpMin, mem: i64(-1), operand: 3, old: i64(-1), stored: i64(-1)},
		{typ: ir.TypeU64, op: ir.AtomicOpMin, mem: math.MaxUint64, operand: 3, old: math.MaxUint64, stored: 3},
		{typ: ir.TypeU64, op: ir.AtomicOpMax, mem: math.MaxUint64, operand: 3, old: math.MaxUint64, stored: math.MaxUint64},
		{typ: ir.TypeU32, op: ir.AtomicOpSub, mem: 0, operand: 1, old: 0, stored: 0xffff_ffff},
		{typ: ir.TypeU8, op: ir.AtomicOpAdd, mem: 250, operand: 10, old: 250, stored: 4},
		{typ: ir.TypeI8, op: ir.AtomicOpMax, mem: 0x80, operand: 5, old: 0xffff_ff80, stored: 5},
		{typ: ir.TypeI16, op: ir.AtomicOpMin, mem: 0x8000, operand: 5, old: 0xffff_8000, stored: 0x8000},
		{typ: ir.TypeU16, op: ir.AtomicOpNand, mem: 0xff00, operand: 0x0ff0, old: 0xff00, stored: 0xf0ff},
	} {
		for _, s := range atomicStrategies {
			mod := ir.NewModule()
			size := int(mod.Type(tc.typ).Bits / 8)
			name := s.name + "/" + mod.Type(tc.typ).String() + "_" + tc.op.String()
			t.Run(name, func(t *testing.T) {
				define(mod, "rmw", []ir.TypeID{mod.Pointer(tc.typ), tc.typ}, tc.typ, func(b *ir.FunctionBuilder, args []ir.Ref) {
					b.Ret(b.AtomicRmw(tc.typ, tc.op, ir.OrderingSeqCst, args[0], args[1]))
				})
				p := load(t, NewCompiler(s.lse), mod)
				require.NoError(t, p.emu.Store(p.data(), 8, 0))
				require.NoError(t, p.emu.Store(p.data(), size, tc.mem))

				require.Equal(t, tc.old, p.call(t, "rmw", p.data(), tc.operand))
				stored, err := p.emu.Load(p.data(), 8)
				require.NoError(t, err)
				require.Equal(t, tc.stored, stored)
			})
		}
	}
}

func TestCompiler_Compile_cmpxchg(t *testing.T) {
	for _, tc := range []struct {
		name                string
		typ                 ir.TypeID
		mem, expected, repl uint64
		old, ok, stored     uint64
	}{
		{name: "u64 success", typ: ir.TypeU64, mem: 7, expected: 7, repl: 9, old: 7, ok: 1, stored: 9},
		{name: "u64 failure", typ: ir.TypeU64, mem: 7, expected: 8, repl: 9, old: 7, ok: 0, stored: 7},
		{name: "u8 success", typ: ir.TypeU8, mem: 0xfe, expected: 0xfe, repl: 1, old: 0xfe, ok: 1, stored: 1},
		{name: "u8 failure", typ: ir.TypeU8, mem: 0xfe, expected: 0xfd, repl: 1, old: 0xfe, ok: 0, stored: 0xfe},
		{name: "i8 success", typ: ir.TypeI8, mem: 0x80, expected: 0xffff_ff80, repl: 3, old: 0xffff_ff80, ok: 1, stored: 3},
		{name: "i8 failure", typ: ir.TypeI8, mem: 0x80, expected: 0x7f, repl: 3, old: 0xffff_ff80, ok: 0, stored: 0x80},
		{name: "u32 success", typ: ir.TypeU32, mem: 0xdead_beef, expected: 0xdead_beef, repl: 0, old: 0xdead_beef, ok: 1, stored: 0},
	} {
		for _, s := range atomicStrategies {
			t.Run(s.name+"/"+tc.name, func(t *testing.T) {
				mod := ir.NewModule()
				size := int(mod.Type(tc.typ).Bits / 8)
				pair := mod.Pair(tc.typ, ir.TypeBool)
				define(mod, "cas", []ir.TypeID{mod.Pointer(tc.typ), tc.typ, tc.typ}, pair, func(b *ir.FunctionBuilder, args []ir.Ref) {
					b.Ret(b.Cmpxchg(pair, ir.OrderingSeqCst, args[0], args[1], args[2]))
				})
				p := load(t, NewCompiler(s.lse), mod)
				require.NoError(t, p.emu.Store(p.data(), 8, 0))
				require.NoError(t, p.emu.Store(p.data(), size, tc.mem))

				require.Equal(t, tc.old, p.call(t, "cas", p.data(), tc.expected, tc.repl))
				require.Equal(t, tc.ok, p.emu.X[1])
				stored, err := p.emu.Load(p.data(), 8)
				require.NoError(t, err)
				require.Equal(t, tc.stored, stored)
			})
		}
	}
}

func TestCompiler_Compile_atomicLoadStore(t *testing.T) {
	for _, ord := range []ir.Ordering{ir.OrderingMonotonic, ir.OrderingAcquire, ir.OrderingRelease, ir.OrderingSeqCst} {
		for _, typ := range []ir.TypeID{ir.TypeU64, ir.TypeI16, ir.TypeF64} {
			mod := ir.NewModule()
			t.Run(fmt.Sprintf("%s/ordering=%d", mod.Type(typ), ord), func(t *testing.T) {
				define(mod, "swap", []ir.TypeID{ir.TypePtr, ir.TypePtr}, ir.TypeVoid, func(b *ir.FunctionBuilder, args []ir.Ref) {
					ptr := mod.Pointer(typ)
					src := b.Convert(ir.TagBitcast, ptr, args[0])
					dst := b.Convert(ir.TagBitcast, ptr, args[1])
					v := b.Emit(ir.Instruction{Tag: ir.TagAtomicLoad, Type: typ, Args: []ir.Ref{src}, Aux: uint64(ord)})
					b.Emit(ir.Instruction{Tag: ir.TagFence, Type: ir.TypeVoid, Aux: uint64(ord)})
					b.Emit(ir.Instruction{Tag: ir.TagAtomicStore, Type: ir.TypeVoid, Args: []ir.Ref{dst, v}, Aux: uint64(ord)})
					b.Ret(ir.RefNone)
				})
				p := load(t, NewCompiler(false), mod)
				size := int(mod.Type(typ).Bits / 8)
				src, dst := p.data(), p.data()+16
				require.NoError(t, p.emu.Store(src, 8, 0x1122_3344_5566_7788))
				require.NoError(t, p.emu.Store(dst, 8, 0))
				p.call(t, "swap", src, dst)

				stored, err := p.emu.Load(dst, 8)
				require.NoError(t, err)
				require.Equal(t, uint64(0x1122_3344_5566_7788)&(math.MaxUint64>>(64-8*size)), stored)
			})
		}
	}
}
