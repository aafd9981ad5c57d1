package arm64

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/backend"
)

func TestDecode_roundTrip(t *testing.T) {
	acqRel := atomicOrderAcquire | atomicOrderRelease
	var setups []func(*instruction)
	for op := aluOpAdd; op <= aluOpEor; op++ {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asALU(op, x1, x2, x3, true) },
			func(i *instruction) { i.asALU(op, x9, x10, x11, false) },
			func(i *instruction) { i.asALUShiftedReg(op, x1, x2, x3, shiftOpLSR, 7, true) },
		)
	}
	for _, op := range []aluOp{aluOpAdd, aluOpSub, aluOpAddS, aluOpSubS} {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asALUImm12(op, x1, x2, 0x123, 0, true) },
			func(i *instruction) { i.asALUImm12(op, x1, x2, 0x1, 1, false) },
			func(i *instruction) { i.asALUExtendedReg(op, x1, x2, x3, extendOpSXTW, 2, true) },
			func(i *instruction) { i.asALUExtendedReg(op, x1, x2, x3, extendOpUXTB, 0, false) },
		)
	}
	for _, op := range []aluOp{aluOpSDiv, aluOpUDiv, aluOpRotR, aluOpLsr, aluOpAsr, aluOpLsl} {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asALU(op, x4, x5, x6, true) },
			func(i *instruction) { i.asALU(op, x4, x5, x6, false) },
		)
	}
	for _, op := range []aluOp{aluOpLsr, aluOpAsr, aluOpLsl} {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asALUShift(op, x4, x5, 3, true) },
			func(i *instruction) { i.asALUShift(op, x4, x5, 31, false) },
		)
	}
	for op := fpuBinOpAdd; op <= fpuBinOpMin; op++ {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asFpuRRR(op, v1, v2, v3, true) },
			func(i *instruction) { i.asFpuRRR(op, v17, v18, v19, false) },
		)
	}
	for op := fpuUniOpNeg; op <= fpuUniOpCvt64To32; op++ {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asFpuRR(op, v1, v2, op != fpuUniOpCvt32To64) },
		)
	}
	for op := atomicRmwOpAdd; op <= atomicRmwOpSwp; op++ {
		op := op
		setups = append(setups,
			func(i *instruction) { i.asAtomicRmw(op, x2, x1, x0, 8, acqRel) },
			func(i *instruction) { i.asAtomicRmw(op, x2, x1, x0, 1, atomicOrderAcquire) },
		)
	}
	for _, kind := range []struct {
		bits   byte
		signed bool
	}{{8, false}, {16, false}, {32, false}, {64, false}, {8, true}, {16, true}, {32, true}} {
		kind := kind
		setups = append(setups,
			func(i *instruction) {
				if kind.signed {
					i.asSLoad(x1, regImm(x2, 4), kind.bits)
				} else {
					i.asULoad(x1, regImm(x2, int64(kind.bits/8)), kind.bits)
				}
			},
			func(i *instruction) {
				amode := addressMode{kind: addressModeKindRegScaledExtended, rn: x2, rm: x3, extOp: extendOpUXTW}
				if kind.signed {
					i.asSLoad(x1, amode, kind.bits)
				} else {
					i.asULoad(x1, amode, kind.bits)
				}
			},
		)
	}
	for _, bits := range []byte{8, 16, 32, 64} {
		bits := bits
		setups = append(setups,
			func(i *instruction) { i.asStore(x1, regImm(sp, -8), bits) },
			func(i *instruction) { i.asStore(x1, addressModePreOrPostIndex(x2, 16, true), bits) },
			func(i *instruction) { i.asStore(x1, addressMode{kind: addressModeKindRegReg, rn: x2, rm: x3, extOp: extendOpNone}, bits) },
		)
	}
	setups = append(setups,
		func(i *instruction) { i.asUDF() },
		func(i *instruction) { i.asRet() },
		func(i *instruction) { i.asBrk(0xf000) },
		func(i *instruction) { i.asClrex() },
		func(i *instruction) { i.asDMB(dmbOptionISH) },
		func(i *instruction) { i.asDMB(dmbOptionISHLD) },
		func(i *instruction) { i.asCallIndirect(tmp) },
		func(i *instruction) { i.asCall(0) },
		func(i *instruction) { i.asBr(0); i.resolveBranch(-0x40) },
		func(i *instruction) { i.asCondBr(registerAsRegNotZeroCond(x5), 0, true); i.resolveBranch(12) },
		func(i *instruction) { i.asCondBr(registerAsRegZeroCond(x5), 0, false); i.resolveBranch(-8) },
		func(i *instruction) { i.asCondBr(hi.asCond(), 0, false); i.resolveBranch(0x100) },
		func(i *instruction) { i.asMOVZ(x3, 0xbeef, 2, true) },
		func(i *instruction) { i.asMOVN(x3, 0x1, 1, false) },
		func(i *instruction) { i.asMOVK(x3, 0xffff, 0, true) },
		func(i *instruction) { i.asMove32(x3, x4) },
		func(i *instruction) { i.asMove64(x3, x4) },
		func(i *instruction) { i.asMove64(fp, sp) },
		func(i *instruction) { i.asALURRRR(aluOpMAdd, x1, x2, x3, x4, true) },
		func(i *instruction) { i.asALURRRR(aluOpMSub, x1, x2, x3, x4, false) },
		func(i *instruction) { i.asALUBitmaskImm(aluOpAnd, x1, x2, 0xff, true) },
		func(i *instruction) { i.asALUBitmaskImm(aluOpOrr, x1, x2, 0xf0f0f0f0, false) },
		func(i *instruction) { i.asALUBitmaskImm(aluOpEor, x1, x2, 0x8000_0000_0000_0000, true) },
		func(i *instruction) { i.asBitRR(bitOpRbit, x1, x2, true) },
		func(i *instruction) { i.asBitRR(bitOpClz, x1, x2, false) },
		func(i *instruction) { i.asExtend(x1, x2, 8, 32, true) },
		func(i *instruction) { i.asExtend(x1, x2, 16, 64, true) },
		func(i *instruction) { i.asExtend(x1, x2, 32, 64, true) },
		func(i *instruction) { i.asExtend(x1, x2, 16, 32, false) },
		// Decodes to mov32.
		func(i *instruction) { i.asExtend(x1, x2, 32, 64, false) },
		func(i *instruction) { i.asCSel(x1, x2, x3, ge, true) },
		func(i *instruction) { i.asCSel(x1, x2, x3, lo, false) },
		func(i *instruction) { i.asCSet(x1, vs, true) },
		func(i *instruction) { i.asCSet(x1, le, true) },
		func(i *instruction) { i.asCSet(x1, hi, true) },
		func(i *instruction) { i.asCSet(x1, lt, false) },
		func(i *instruction) { i.asCSet(x1, eq, false) },
		func(i *instruction) { i.asFpuCSel(v1, v2, v3, mi, true) },
		func(i *instruction) { i.asFpuCmp(v1, v2, true) },
		func(i *instruction) { i.asFpuCmp(v1, v2, false) },
		func(i *instruction) { i.asFpuMov64(v1, v9) },
		func(i *instruction) { i.asMovToFpu(v1, x2, true) },
		func(i *instruction) { i.asMovToFpu(v1, x2, false) },
		func(i *instruction) { i.asMovFromFpu(x1, v2, true) },
		func(i *instruction) { i.asMovFromFpu(x1, v2, false) },
		func(i *instruction) { i.asFpuToInt(x1, v2, true, true, true) },
		func(i *instruction) { i.asFpuToInt(x1, v2, false, false, true) },
		func(i *instruction) { i.asIntToFpu(v1, x2, true, false, true) },
		func(i *instruction) { i.asIntToFpu(v1, x2, false, true, false) },
		func(i *instruction) { i.asFpuLoad(v1, regImm(fp, 16), 64) },
		func(i *instruction) { i.asFpuLoad(v1, regImm(fp, -4), 32) },
		func(i *instruction) { i.asStore(v1, regImm(sp, 8), 64) },
		func(i *instruction) { i.asStore(v1, regImm(sp, 8), 32) },
		func(i *instruction) { i.asStorePair64(fp, lr, addressModePreOrPostIndex(sp, -16, true)) },
		func(i *instruction) { i.asLoadPair64(fp, lr, addressModePreOrPostIndex(sp, 16, false)) },
		func(i *instruction) { i.asAtomicCas(x1, x2, x0, 4, acqRel) },
		func(i *instruction) { i.asAtomicCas(x1, x2, x0, 2, 0) },
		func(i *instruction) { i.asAtomicLoad(x1, x0, 8) },
		func(i *instruction) { i.asAtomicStore(x1, x0, 1) },
		func(i *instruction) { i.asLoadExclusive(x1, x0, 4, true) },
		func(i *instruction) { i.asStoreExclusive(x3, x1, x0, 8, true) },
	)

	for _, setup := range setups {
		i := &instruction{}
		setup(i)
		t.Run(i.String(), func(t *testing.T) {
			e := &encoder{}
			require.NoError(t, i.encode(e))
			require.Equal(t, 1, len(e.words))
			w := e.words[0]

			decoded, err := decode(w)
			require.NoError(t, err)
			require.NotEmpty(t, decoded.String())

			e = &encoder{}
			require.NoError(t, decoded.encode(e), decoded.String())
			require.Equal(t, []uint32{w}, e.words, "%#08x decoded as %s", w, decoded)
		})
	}
}

func TestDecode_kinds(t *testing.T) {
	for _, tc := range []struct {
		word uint32
		kind instructionKind
		exp  string
	}{
		{word: 0x0b010000, kind: aluRRR, exp: "add w0, w0, w1"},
		{word: 0xd65f03c0, kind: ret, exp: "ret"},
		{word: 0x9a9f17e0, kind: cSet, exp: "cset x0, eq"},
		{word: 0x1a9fa7e1, kind: cSet, exp: "cset w1, lt"},
		{word: 0x9a9f97e1, kind: cSet, exp: "cset x1, hi"},
		{word: 0x94000000, kind: call},
		{word: 0, kind: udf},
	} {
		i, err := decode(tc.word)
		require.NoError(t, err)
		require.Equal(t, tc.kind, i.kind, i.String())
		if tc.exp != "" {
			require.Equal(t, tc.exp, i.String())
		}
	}
}

func TestDecode_errors(t *testing.T) {
	for _, w := range []uint32{
		0xffffffff,
		// bl with a resolved target.
		0x94000010,
	} {
		_, err := decode(w)
		require.True(t, errors.Is(err, backend.ErrInvalidOperands), err)
	}
}
