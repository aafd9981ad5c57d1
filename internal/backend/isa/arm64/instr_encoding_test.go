package arm64

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchyliquid64/golang-asm/obj"
	goarm64 "github.com/twitchyliquid64/golang-asm/obj/arm64"

	"github.com/tetratelabs/a64/internal/asm/golang_asm"
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/ir"
)

func encodeToHex(t *testing.T, i *instruction) string {
	e := &encoder{}
	require.NoError(t, i.encode(e), i.String())
	buf := make([]byte, 4*len(e.words))
	for k, w := range e.words {
		binary.LittleEndian.PutUint32(buf[4*k:], w)
	}
	return hex.EncodeToString(buf)
}

func TestInstruction_encode(t *testing.T) {
	for _, tc := range []struct {
		setup func(*instruction)
		want  string
	}{
		{want: "4100839a", setup: func(i *instruction) { i.asCSel(x1, x2, x3, eq, true) }},
		{want: "4110831a", setup: func(i *instruction) { i.asCSel(x1, x2, x3, ne, false) }},
		{want: "41cc631e", setup: func(i *instruction) { i.asFpuCSel(v1, v2, v3, gt, true) }},
		{want: "41bc231e", setup: func(i *instruction) { i.asFpuCSel(v1, v2, v3, lt, false) }},
		{want: "f2079f9a", setup: func(i *instruction) { i.asCSet(x18, ne, true) }},
		{want: "f2179f9a", setup: func(i *instruction) { i.asCSet(x18, eq, true) }},
		{want: "f2179f1a", setup: func(i *instruction) { i.asCSet(x18, eq, false) }},
		{want: "e1a79f1a", setup: func(i *instruction) { i.asCSet(x1, lt, false) }},
		{want: "e1979f9a", setup: func(i *instruction) { i.asCSet(x1, hi, true) }},
		{want: "5b28030b", setup: func(i *instruction) { i.asALUShiftedReg(aluOpAdd, x27, x2, x3, shiftOpLSL, 10, false) }},
		{want: "5b28038b", setup: func(i *instruction) { i.asALUShiftedReg(aluOpAdd, x27, x2, x3, shiftOpLSL, 10, true) }},
		{want: "5b2883eb", setup: func(i *instruction) { i.asALUShiftedReg(aluOpSubS, x27, x2, x3, shiftOpASR, 10, true) }},
		{want: "2030428a", setup: func(i *instruction) { i.asALUShiftedReg(aluOpAnd, x0, x1, x2, shiftOpLSR, 12, true) }},
		{want: "201082aa", setup: func(i *instruction) { i.asALUShiftedReg(aluOpOrr, x0, x1, x2, shiftOpASR, 4, true) }},
		{want: "40a034ab", setup: func(i *instruction) { i.asALUExtendedReg(aluOpAddS, x0, x2, x20, extendOpSXTH, 0, true) }},
		{want: "4040344b", setup: func(i *instruction) { i.asALUExtendedReg(aluOpSub, x0, x2, x20, extendOpUXTW, 0, false) }},
		{want: "fb633bcb", setup: func(i *instruction) { i.asALU(aluOpSub, x27, sp, x27, true) }},
		{want: "fb633b8b", setup: func(i *instruction) { i.asALU(aluOpAdd, x27, sp, x27, true) }},
		{want: "2000020a", setup: func(i *instruction) { i.asALU(aluOpAnd, x0, x1, x2, false) }},
		{want: "2000028a", setup: func(i *instruction) { i.asALU(aluOpAnd, x0, x1, x2, true) }},
		{want: "200002ea", setup: func(i *instruction) { i.asALU(aluOpAnds, x0, x1, x2, true) }},
		{want: "200002aa", setup: func(i *instruction) { i.asALU(aluOpOrr, x0, x1, x2, true) }},
		{want: "200002ca", setup: func(i *instruction) { i.asALU(aluOpEor, x0, x1, x2, true) }},
		{want: "202cc21a", setup: func(i *instruction) { i.asALU(aluOpRotR, x0, x1, x2, false) }},
		{want: "200022aa", setup: func(i *instruction) { i.asALU(aluOpOrn, x0, x1, x2, true) }},
		{want: "4000140b", setup: func(i *instruction) { i.asALU(aluOpAdd, x0, x2, x20, false) }},
		{want: "40001feb", setup: func(i *instruction) { i.asALU(aluOpSubS, x0, x2, xzr, true) }},
		{want: "0000010b", setup: func(i *instruction) { i.asALU(aluOpAdd, x0, x0, x1, false) }},
		{want: "60033fd6", setup: func(i *instruction) { i.asCallIndirect(x27) }},
		{want: "c0035fd6", setup: func(i *instruction) { i.asRet() }},
		{want: "e303042a", setup: func(i *instruction) { i.asMove32(x3, x4) }},
		{want: "e30304aa", setup: func(i *instruction) { i.asMove64(x3, x4) }},
		{want: "9f000091", setup: func(i *instruction) { i.asMove64(sp, x4) }},
		{want: "e0030091", setup: func(i *instruction) { i.asMove64(x0, sp) }},
		{want: "e17bc1a8", setup: func(i *instruction) { i.asLoadPair64(x1, x30, addressModePreOrPostIndex(sp, 16, false)) }},
		{want: "e17bc1a9", setup: func(i *instruction) { i.asLoadPair64(x1, x30, addressModePreOrPostIndex(sp, 16, true)) }},
		{want: "e17b81a8", setup: func(i *instruction) { i.asStorePair64(x1, x30, addressModePreOrPostIndex(sp, 16, false)) }},
		{want: "e17b81a9", setup: func(i *instruction) { i.asStorePair64(x1, x30, addressModePreOrPostIndex(sp, 16, true)) }},
		{want: "fd7bbfa9", setup: func(i *instruction) { i.asStorePair64(fp, lr, addressModePreOrPostIndex(sp, -16, true)) }},
		{want: "410440f9", setup: func(i *instruction) { i.asULoad(x1, regImm(x2, 8), 64) }},
		{want: "41c01fb8", setup: func(i *instruction) { i.asStore(x1, regImm(x2, -4), 32) }},
		{want: "20000014", setup: func(i *instruction) { i.asBr(0); i.resolveBranch(0x80) }},
		{want: "01040034", setup: func(i *instruction) { i.asCondBr(registerAsRegZeroCond(x1), 0, false); i.resolveBranch(0x80) }},
		{want: "010400b4", setup: func(i *instruction) { i.asCondBr(registerAsRegZeroCond(x1), 0, true); i.resolveBranch(0x80) }},
		{want: "01040035", setup: func(i *instruction) { i.asCondBr(registerAsRegNotZeroCond(x1), 0, false); i.resolveBranch(0x80) }},
		{want: "010400b5", setup: func(i *instruction) { i.asCondBr(registerAsRegNotZeroCond(x1), 0, true); i.resolveBranch(0x80) }},
		{want: "41000054", setup: func(i *instruction) { i.asCondBr(ne.asCond(), 0, false); i.resolveBranch(8) }},
		{want: "8220061b", setup: func(i *instruction) { i.asALURRRR(aluOpMAdd, x2, x4, x6, x8, false) }},
		{want: "8220069b", setup: func(i *instruction) { i.asALURRRR(aluOpMAdd, x2, x4, x6, x8, true) }},
		{want: "00213f1e", setup: func(i *instruction) { i.asFpuCmp(v8, v31, false) }},
		{want: "00217f1e", setup: func(i *instruction) { i.asFpuCmp(v8, v31, true) }},
		{want: "f21fbf0e", setup: func(i *instruction) { i.asFpuMov64(v18, v31) }},
		{want: "41c0221e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpCvt32To64, v1, v2, false) }},
		{want: "4140621e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpCvt64To32, v1, v2, true) }},
		{want: "4140211e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpNeg, v1, v2, false) }},
		{want: "4140611e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpNeg, v1, v2, true) }},
		{want: "41c0211e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpSqrt, v1, v2, false) }},
		{want: "41c0611e", setup: func(i *instruction) { i.asFpuRR(fpuUniOpSqrt, v1, v2, true) }},
		{want: "5000001c020000140000803f", setup: func(i *instruction) {
			i.asLoadFpuConst(v16, uint64(math.Float32bits(1.0)), false)
		}},
		{want: "5000005c03000014000000000000f03f", setup: func(i *instruction) {
			i.asLoadFpuConst(v16, math.Float64bits(1.0), true)
		}},
		{want: "b21c0053", setup: func(i *instruction) { i.asExtend(x18, x5, 8, 32, false) }},
		{want: "b23c0053", setup: func(i *instruction) { i.asExtend(x18, x5, 16, 32, false) }},
		{want: "b21c0053", setup: func(i *instruction) { i.asExtend(x18, x5, 8, 64, false) }},
		{want: "f203052a", setup: func(i *instruction) { i.asExtend(x18, x5, 32, 64, false) }},
		{want: "b21c0013", setup: func(i *instruction) { i.asExtend(x18, x5, 8, 32, true) }},
		{want: "b21c4093", setup: func(i *instruction) { i.asExtend(x18, x5, 8, 64, true) }},
		{want: "b27c4093", setup: func(i *instruction) { i.asExtend(x18, x5, 32, 64, true) }},
		{want: "32008012", setup: func(i *instruction) { i.asMOVN(x18, 1, 0, false) }},
		{want: "f2ffff92", setup: func(i *instruction) { i.asMOVN(x18, 0xffff, 3, true) }},
		{want: "5255b572", setup: func(i *instruction) { i.asMOVK(x18, 0xaaaa, 1, false) }},
		{want: "5255f5f2", setup: func(i *instruction) { i.asMOVK(x18, 0xaaaa, 3, true) }},
		{want: "5255b552", setup: func(i *instruction) { i.asMOVZ(x18, 0xaaaa, 1, false) }},
		{want: "5255f5d2", setup: func(i *instruction) { i.asMOVZ(x18, 0xaaaa, 3, true) }},
		{want: "4f020012", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpAnd, x15, x18, 0x1, false) }},
		{want: "4f7a1f12", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpAnd, x15, x18, 0xfffffffe, false) }},
		{want: "4f7a4092", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpAnd, x15, x18, 0x7fffffff, true) }},
		{want: "4f0240b2", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpOrr, x15, x18, 0x1, true) }},
		{want: "4f1640d2", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpEor, x15, x18, 0x3f, true) }},
		{want: "f20300b2", setup: func(i *instruction) { i.asALUBitmaskImm(aluOpOrr, x18, xzr, 0x100000001, true) }},
		{want: "4000c05a", setup: func(i *instruction) { i.asBitRR(bitOpRbit, x0, x2, false) }},
		{want: "4010c0da", setup: func(i *instruction) { i.asBitRR(bitOpClz, x0, x2, true) }},
		{want: "0200e1b8", setup: func(i *instruction) {
			i.asAtomicRmw(atomicRmwOpAdd, x2, x1, x0, 4, atomicOrderAcquire|atomicOrderRelease)
		}},
		{want: "0200e1f8", setup: func(i *instruction) {
			i.asAtomicRmw(atomicRmwOpAdd, x2, x1, x0, 8, atomicOrderAcquire|atomicOrderRelease)
		}},
		{want: "0210e1b8", setup: func(i *instruction) {
			i.asAtomicRmw(atomicRmwOpClr, x2, x1, x0, 4, atomicOrderAcquire|atomicOrderRelease)
		}},
		{want: "0230e1b8", setup: func(i *instruction) {
			i.asAtomicRmw(atomicRmwOpSet, x2, x1, x0, 4, atomicOrderAcquire|atomicOrderRelease)
		}},
		{want: "027ca1c8", setup: func(i *instruction) { i.asAtomicCas(x1, x2, x0, 8, 0) }},
		{want: "027c5fc8", setup: func(i *instruction) { i.asLoadExclusive(x2, x0, 8, false) }},
		{want: "027c03c8", setup: func(i *instruction) { i.asStoreExclusive(x3, x2, x0, 8, false) }},
		{want: "5f3f03d5", setup: func(i *instruction) { i.asClrex() }},
		{want: "bf3b03d5", setup: func(i *instruction) { i.asDMB(dmbOptionISH) }},
		{want: "00003ed4", setup: func(i *instruction) { i.asBrk(0xf000) }},
		{want: "00000000", setup: func(i *instruction) { i.asUDF() }},
		{want: "", setup: func(i *instruction) { i.asNop0() }},
		{want: "efbeadde", setup: func(i *instruction) { i.asRawWords([]uint32{0xdeadbeef}) }},
	} {
		i := &instruction{}
		tc.setup(i)
		t.Run(i.String(), func(t *testing.T) {
			require.Equal(t, tc.want, encodeToHex(t, i))
		})
	}
}

func TestInstruction_encode_call(t *testing.T) {
	e := &encoder{}
	e.emit(0xd503201f)

	i := &instruction{}
	i.asCall(5)
	require.NoError(t, i.encode(e))
	require.Equal(t, []uint32{0xd503201f, 0x94000000}, e.words)
	require.Equal(t, []backend.Relocation{{Offset: 4, Symbol: 5, Kind: backend.RelocationCall26}}, e.relocs)
}

func TestInstruction_encode_loadConst(t *testing.T) {
	for _, tc := range []struct {
		v      uint64
		_64bit bool
		exp    []uint32
	}{
		{v: 0, _64bit: true, exp: []uint32{0xd2800000}},
		{v: 0x1234, _64bit: true, exp: []uint32{0xd2824680}},
		{v: math.MaxUint64, _64bit: true, exp: []uint32{0x92800000}},
		{v: 0xffff_ffff, _64bit: false, exp: []uint32{0x12800000}},
		{v: 0x1_0000_0001, _64bit: true, exp: []uint32{0xd2800020, 0xf2c00020}},
	} {
		e := &encoder{}
		i := &instruction{}
		i.asLoadConst(x0, tc.v, tc._64bit)
		require.NoError(t, i.encode(e))
		require.Equal(t, tc.exp, e.words, "%#x", tc.v)
	}
}

func TestInstruction_encode_wideOffset(t *testing.T) {
	e := &encoder{}
	i := &instruction{}
	i.asULoad(x1, regImm(fp, 0x12345), 64)
	require.NoError(t, i.encode(e))
	require.True(t, len(e.words) > 1)
	last := e.words[len(e.words)-1]
	// ldr x1, [x29, x17, sxtx]
	require.Equal(t, uint32(0xf871eba1), last)

	i.asULoad(x1, regImm(encTmp, 0x12345), 64)
	err := i.encode(&encoder{})
	require.True(t, errors.Is(err, backend.ErrInvalidOperands), err)
}

func TestInstruction_encode_atomicLoops(t *testing.T) {
	e := &encoder{}
	i := &instruction{}
	i.asAtomicRmwLoop(ir.AtomicOpAdd, false, x2, x0, x1, x3, 8, 0)
	require.NoError(t, i.encode(e))
	require.Equal(t, []uint32{
		0xc85f7c02, // ldxr x2, [x0]
		0x8b010043, // add x3, x2, x1
		0xc8117c03, // stxr w17, x3, [x0]
		0x35ffffb1, // cbnz w17, #-12
	}, e.words)

	e = &encoder{}
	i = &instruction{}
	i.asAtomicCasLoop(x2, x0, x1, x3, 8, 0)
	require.NoError(t, i.encode(e))
	require.Equal(t, []uint32{
		0xc85f7c02, // ldxr x2, [x0]
		0xeb01005f, // cmp x2, x1
		0x54000061, // b.ne #12
		0xc8117c03, // stxr w17, x3, [x0]
		0x35ffff91, // cbnz w17, #-16
		0xd5033f5f, // clrex
	}, e.words)

	i.asAtomicCasLoop(x2, x0, encTmp, x3, 8, 0)
	err := i.encode(&encoder{})
	require.True(t, errors.Is(err, backend.ErrInvalidOperands), err)
}

// encodeParts returns the words of the instructions built by setups, one after the other.
func encodeParts(t *testing.T, setups ...func(i *instruction)) []uint32 {
	e := &encoder{}
	for _, setup := range setups {
		i := &instruction{}
		setup(i)
		require.NoError(t, i.encode(e), i.String())
	}
	return e.words
}

func TestInstruction_encode_expansionParts(t *testing.T) {
	t.Run("epilogue", func(t *testing.T) {
		e := &encoder{}
		i := &instruction{}
		i.asEpilogue()
		require.NoError(t, i.encode(e))
		require.Equal(t, encodeParts(t,
			func(i *instruction) { i.asMove64(sp, fp) },
			func(i *instruction) { i.asLoadPair64(fp, lr, addressModePreOrPostIndex(sp, 16, false)) },
			func(i *instruction) { i.asRet() },
		), e.words)
		require.Equal(t, []uint32{0x910003bf, 0xa8c17bfd, 0xd65f03c0}, e.words)
	})
	t.Run("loadConst", func(t *testing.T) {
		e := &encoder{}
		i := &instruction{}
		i.asLoadConst(x5, 0xffff_1234_ffff_5678, true)
		require.NoError(t, i.encode(e))
		require.Equal(t, encodeParts(t,
			func(i *instruction) { i.asMOVN(x5, ^uint64(0x5678)&0xffff, 0, true) },
			func(i *instruction) { i.asMOVK(x5, 0x1234, 2, true) },
		), e.words)

		e = &encoder{}
		i = &instruction{}
		i.asLoadConst(x5, 0x8000_0001, false)
		require.NoError(t, i.encode(e))
		require.Equal(t, encodeParts(t,
			func(i *instruction) { i.asMOVZ(x5, 1, 0, false) },
			func(i *instruction) { i.asMOVK(x5, 0x8000, 1, false) },
		), e.words)
	})
	t.Run("cas loop", func(t *testing.T) {
		e := &encoder{}
		i := &instruction{}
		i.asAtomicCasLoop(x2, x0, x1, x3, 1, atomicOrderAcquire|atomicOrderRelease)
		require.NoError(t, i.encode(e))
		require.Equal(t, 6, len(e.words))
		require.Equal(t, encodeParts(t, func(i *instruction) { i.asLoadExclusive(x2, x0, 1, true) }), e.words[:1])
		require.Equal(t, encodeParts(t, func(i *instruction) { i.asStoreExclusive(encTmp, x3, x0, 1, true) }), e.words[3:4])
		require.Equal(t, encodeParts(t, func(i *instruction) { i.asClrex() }), e.words[5:])
	})
	t.Run("rmw loop", func(t *testing.T) {
		e := &encoder{}
		i := &instruction{}
		i.asAtomicRmwLoop(ir.AtomicOpXchg, false, x2, x0, x1, x3, 4, atomicOrderRelease)
		require.NoError(t, i.encode(e))
		require.Equal(t, encodeParts(t,
			func(i *instruction) { i.asLoadExclusive(x2, x0, 4, false) },
			func(i *instruction) { i.asStoreExclusive(encTmp, x1, x0, 4, true) },
		), e.words[:2])
	})
}

func TestInstruction_encode_errors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*instruction)
		exp   error
	}{
		{
			name:  "movz shift",
			setup: func(i *instruction) { i.asMOVZ(x0, 1, 2, false) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "movk immediate",
			setup: func(i *instruction) { i.asMOVK(x0, 0x10000, 0, true) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "bitmask",
			setup: func(i *instruction) { i.asALUBitmaskImm(aluOpAnd, x0, x1, 0x1234, true) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "imm12",
			setup: func(i *instruction) { i.asALUImm12(aluOpAdd, x0, x1, 0xfff, 1, true); i.u2 = 0x2000 },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "shift amount",
			setup: func(i *instruction) { i.asALUShift(aluOpLsl, x0, x1, 32, false) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "branch alignment",
			setup: func(i *instruction) { i.asBr(0); i.resolveBranch(6) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "branch range",
			setup: func(i *instruction) { i.asCondBr(eq.asCond(), 0, false); i.resolveBranch(1 << 21) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "pair offset",
			setup: func(i *instruction) { i.asStorePair64(x0, x1, addressModePreOrPostIndex(sp, 12, true)) },
			exp:   backend.ErrInvalidImmediate,
		},
		{
			name:  "register class",
			setup: func(i *instruction) { i.asALU(aluOpAdd, x0, v1, x2, true) },
			exp:   backend.ErrInvalidOperands,
		},
		{
			name:  "float register class",
			setup: func(i *instruction) { i.asFpuRRR(fpuBinOpAdd, v0, x1, v2, true) },
			exp:   backend.ErrInvalidOperands,
		},
		{
			name:  "cset al",
			setup: func(i *instruction) { i.asCSet(x0, al, true) },
			exp:   backend.ErrInvalidOperands,
		},
		{
			name:  "exclusive status overlap",
			setup: func(i *instruction) { i.asStoreExclusive(x2, x2, x0, 8, false) },
			exp:   backend.ErrInvalidOperands,
		},
		{
			name:  "atomic size",
			setup: func(i *instruction) { i.asAtomicLoad(x0, x1, 3) },
			exp:   backend.ErrInvalidOperands,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			i := &instruction{}
			tc.setup(i)
			err := i.encode(&encoder{})
			require.True(t, errors.Is(err, tc.exp), err)
		})
	}
}

// TestInstruction_encode_golangAsm checks the register ALU encodings against the Go assembler.
func TestInstruction_encode_golangAsm(t *testing.T) {
	for _, tc := range []struct {
		op   aluOp
		as32 obj.As
		as64 obj.As
	}{
		{op: aluOpAdd, as32: goarm64.AADDW, as64: goarm64.AADD},
		{op: aluOpSub, as32: goarm64.ASUBW, as64: goarm64.ASUB},
		{op: aluOpAnd, as32: goarm64.AANDW, as64: goarm64.AAND},
		{op: aluOpOrr, as32: goarm64.AORRW, as64: goarm64.AORR},
		{op: aluOpEor, as32: goarm64.AEORW, as64: goarm64.AEOR},
		{op: aluOpLsl, as32: goarm64.ALSLW, as64: goarm64.ALSL},
		{op: aluOpLsr, as32: goarm64.ALSRW, as64: goarm64.ALSR},
		{op: aluOpAsr, as32: goarm64.AASRW, as64: goarm64.AASR},
		{op: aluOpSDiv, as32: goarm64.ASDIVW, as64: goarm64.ASDIV},
		{op: aluOpUDiv, as32: goarm64.AUDIVW, as64: goarm64.AUDIV},
	} {
		for _, _64bit := range []bool{false, true} {
			for _, regs := range [][3]uint32{{0, 1, 2}, {9, 10, 26}, {15, 0, 0}} {
				rd, rn, rm := intReg(regs[0]), intReg(regs[1]), intReg(regs[2])
				i := &instruction{}
				i.asALU(tc.op, rd, rn, rm, _64bit)
				t.Run(i.String(), func(t *testing.T) {
					e := &encoder{}
					require.NoError(t, i.encode(e))

					a, err := golang_asm.NewAssembler()
					require.NoError(t, err)
					as := tc.as32
					if _64bit {
						as = tc.as64
					}
					a.ThreeRegisters(as, golang_asm.IntReg(int(regs[2])), golang_asm.IntReg(int(regs[1])), golang_asm.IntReg(int(regs[0])))
					exp := a.Assemble()
					require.Equal(t, 1, len(exp))
					require.Equal(t, exp, e.words, "%#08x != %#08x", exp[0], e.words[0])
				})
			}
		}
	}
}

func TestInstruction_encode_golangAsm_mul(t *testing.T) {
	for _, _64bit := range []bool{false, true} {
		i := &instruction{}
		i.asALURRRR(aluOpMAdd, x3, x4, x5, xzr, _64bit)
		e := &encoder{}
		require.NoError(t, i.encode(e))

		a, err := golang_asm.NewAssembler()
		require.NoError(t, err)
		as := goarm64.AMULW
		if _64bit {
			as = goarm64.AMUL
		}
		a.ThreeRegisters(as, golang_asm.IntReg(5), golang_asm.IntReg(4), golang_asm.IntReg(3))
		require.Equal(t, a.Assemble(), e.words)
	}
}
