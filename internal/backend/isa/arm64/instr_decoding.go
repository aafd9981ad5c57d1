package arm64

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
)

// decode recovers the pseudo-instruction of a word produced by a single-word kind. Encoding
// the result yields w again. Branch offsets are kept in imm, and bl decodes to a call of
// symbol 0 since the target lives in the relocation.
func decode(w uint32) (*instruction, error) {
	i := &instruction{}
	rd, rn, rm := w&0x1f, w>>5&0x1f, w>>16&0x1f
	sf := w>>31 == 1

	switch {
	case w == 0:
		i.asUDF()
	case w == encodeRet():
		i.asRet()
	case w&0xffe0001f == 0xd4200000:
		i.asBrk(uint16(w >> 5))
	case w == 0xd5033f5f:
		i.asClrex()
	case w&0xfffff0ff == 0xd50330bf:
		i.asDMB(dmbOption(w >> 8 & 0xf))
	case w&0xfffffc1f == 0xd63f0000:
		i.asCallIndirect(intReg(rn))
	case w&0x7c000000 == 0x14000000:
		imm := int64(int32(w<<6)>>6) * 4
		if w>>31 == 1 {
			if imm != 0 {
				return nil, unknownEncoding(w)
			}
			i.asCall(0)
		} else {
			i.asBr(0)
			i.imm = imm
		}
	case w&0x7e000000 == 0x34000000:
		c := registerAsRegZeroCond(intReg(rd))
		if w>>24&1 == 1 {
			c = registerAsRegNotZeroCond(intReg(rd))
		}
		i.asCondBr(c, 0, sf)
		i.imm = int64(int32(w<<8)>>13) * 4
	case w&0xff000010 == 0x54000000:
		i.asCondBr(condFlag(w&0xf).asCond(), 0, false)
		i.imm = int64(int32(w<<8)>>13) * 4
	case w&0x1f800000 == 0x12800000:
		return decodeMoveWide(i, w)
	case w&0x1f000000 == 0x0a000000:
		return decodeLogicalShiftedRegister(i, w)
	case w&0x1f200000 == 0x0b000000:
		return decodeAddSubShiftedRegister(i, w)
	case w&0x1f200000 == 0x0b200000:
		return decodeAddSubExtendedRegister(i, w)
	case w&0x7fe00000 == 0x1ac00000:
		var op aluOp
		switch w >> 10 & 0x3f {
		case 0b000010:
			op = aluOpUDiv
		case 0b000011:
			op = aluOpSDiv
		case 0b001000:
			op = aluOpLsl
		case 0b001001:
			op = aluOpLsr
		case 0b001010:
			op = aluOpAsr
		case 0b001011:
			op = aluOpRotR
		default:
			return nil, unknownEncoding(w)
		}
		i.asALU(op, intReg(rd), intReg(rn), intReg(rm), sf)
	case w&0x7ffffc00 == 0x5ac00000:
		i.asBitRR(bitOpRbit, intReg(rd), intReg(rn), sf)
	case w&0x7ffffc00 == 0x5ac01000:
		i.asBitRR(bitOpClz, intReg(rd), intReg(rn), sf)
	case w&0x7fe00000 == 0x1b000000:
		op := aluOpMAdd
		if w>>15&1 == 1 {
			op = aluOpMSub
		}
		i.asALURRRR(op, intReg(rd), intReg(rn), intReg(rm), intReg(w>>10&0x1f), sf)
	case w&0x1f800000 == 0x11000000:
		return decodeAddSubImmediate(i, w)
	case w&0x1f800000 == 0x12000000:
		return decodeLogicalImmediate(i, w)
	case w&0x1f800000 == 0x13000000:
		return decodeBitfield(i, w)
	case w&0x7fe00c00 == 0x1a800000:
		i.asCSel(intReg(rd), intReg(rn), intReg(rm), condFlag(w>>12&0xf), sf)
	case w&0x7fe00c00 == 0x1a800400 && rn == 31 && rm == 31:
		// cset is csinc rd, xzr, xzr, !cond.
		i.asCSet(intReg(rd), condFlag(w>>12&0xf).invert(), sf)
	case w&0xffe0fc00 == 0x0ea01c00 && rm == rn:
		i.asFpuMov64(vecReg(rd), vecReg(rn))
	case w&0x5f200000 == 0x1e200000:
		return decodeFloat(i, w)
	case w&0x3f200c00 == 0x38200000:
		return decodeAtomicRmw(i, w)
	case w&0x3fa07c00 == 0x08a07c00:
		i.asAtomicCas(intReg(rm), intReg(rd), intRegOrSP(rn), 1<<(w>>30), decodeOrder(w>>22&1 == 1, w>>15&1 == 1))
	case w&0x3fbffc00 == 0x089ffc00:
		if w>>22&1 == 1 {
			i.asAtomicLoad(intReg(rd), intRegOrSP(rn), 1<<(w>>30))
		} else {
			i.asAtomicStore(intReg(rd), intRegOrSP(rn), 1<<(w>>30))
		}
	case w&0x3fff7c00 == 0x085f7c00:
		i.asLoadExclusive(intReg(rd), intRegOrSP(rn), 1<<(w>>30), w>>15&1 == 1)
	case w&0x3fe07c00 == 0x08007c00:
		i.asStoreExclusive(intReg(rm), intReg(rd), intRegOrSP(rn), 1<<(w>>30), w>>15&1 == 1)
	case w&0xfe800000 == 0xa8800000:
		return decodeLoadStorePair(i, w)
	case w&0x3a000000 == 0x38000000:
		return decodeLoadStore(i, w)
	default:
		return nil, unknownEncoding(w)
	}
	return i, nil
}

func unknownEncoding(w uint32) error {
	return fmt.Errorf("%w: cannot decode %#08x", backend.ErrInvalidOperands, w)
}

func decodeOrder(acquire, release bool) (o atomicOrder) {
	if acquire {
		o |= atomicOrderAcquire
	}
	if release {
		o |= atomicOrderRelease
	}
	return
}

func decodeMoveWide(i *instruction, w uint32) (*instruction, error) {
	rd, imm, hw, sf := intReg(w&0x1f), uint64(w>>5&0xffff), uint64(w>>21&0b11), w>>31 == 1
	switch w >> 29 & 0b11 {
	case 0b00:
		i.asMOVN(rd, imm, hw, sf)
	case 0b10:
		i.asMOVZ(rd, imm, hw, sf)
	case 0b11:
		i.asMOVK(rd, imm, hw, sf)
	default:
		return nil, unknownEncoding(w)
	}
	return i, nil
}

func decodeLogicalShiftedRegister(i *instruction, w uint32) (*instruction, error) {
	rd, rn, rm := intReg(w&0x1f), intReg(w>>5&0x1f), intReg(w>>16&0x1f)
	sf, opc, n := w>>31 == 1, w>>29&0b11, w>>21&1
	shift, amount := shiftOp(w>>22&0b11), byte(w>>10&0x3f)

	var op aluOp
	switch opc<<1 | n {
	case 0b000:
		op = aluOpAnd
	case 0b001:
		op = aluOpBic
	case 0b010:
		op = aluOpOrr
	case 0b011:
		op = aluOpOrn
	case 0b100:
		op = aluOpEor
	case 0b110:
		op = aluOpAnds
	default:
		return nil, unknownEncoding(w)
	}
	switch {
	case op == aluOpOrr && rn == xzr && shift == shiftOpLSL && amount == 0:
		if sf {
			i.asMove64(rd, rm)
		} else {
			i.asMove32(rd, rm)
		}
	case shift == shiftOpLSL && amount == 0:
		i.asALU(op, rd, rn, rm, sf)
	case shift > shiftOpASR:
		// ror is never emitted.
		return nil, unknownEncoding(w)
	default:
		i.asALUShiftedReg(op, rd, rn, rm, shift, amount, sf)
	}
	return i, nil
}

func addSubOp(w uint32) aluOp {
	switch w >> 29 & 0b11 {
	case 0b00:
		return aluOpAdd
	case 0b01:
		return aluOpAddS
	case 0b10:
		return aluOpSub
	default:
		return aluOpSubS
	}
}

func decodeAddSubShiftedRegister(i *instruction, w uint32) (*instruction, error) {
	rd, rn, rm := intReg(w&0x1f), intReg(w>>5&0x1f), intReg(w>>16&0x1f)
	sf, shift, amount := w>>31 == 1, shiftOp(w>>22&0b11), byte(w>>10&0x3f)
	switch {
	case shift > shiftOpASR:
		return nil, unknownEncoding(w)
	case shift == shiftOpLSL && amount == 0:
		i.asALU(addSubOp(w), rd, rn, rm, sf)
	default:
		i.asALUShiftedReg(addSubOp(w), rd, rn, rm, shift, amount, sf)
	}
	return i, nil
}

func decodeAddSubExtendedRegister(i *instruction, w uint32) (*instruction, error) {
	if w>>22&0b11 != 0 {
		return nil, unknownEncoding(w)
	}
	op := addSubOp(w)
	rd := intRegOrSP(w & 0x1f)
	if op == aluOpAddS || op == aluOpSubS {
		rd = intReg(w & 0x1f)
	}
	rn, rm := intRegOrSP(w>>5&0x1f), intReg(w>>16&0x1f)
	sf, ext, amount := w>>31 == 1, extendOp(w>>13&0b111), byte(w>>10&0b111)
	if sf && ext == extendOpUXTX && amount == 0 && rn == sp {
		i.asALU(op, rd, rn, rm, true)
	} else {
		i.asALUExtendedReg(op, rd, rn, rm, ext, amount, sf)
	}
	return i, nil
}

func decodeAddSubImmediate(i *instruction, w uint32) (*instruction, error) {
	op := addSubOp(w)
	rd := intRegOrSP(w & 0x1f)
	if op == aluOpAddS || op == aluOpSubS {
		rd = intReg(w & 0x1f)
	}
	rn := intRegOrSP(w >> 5 & 0x1f)
	sf, sh, imm12 := w>>31 == 1, byte(w>>22&1), uint16(w>>10&0xfff)
	if op == aluOpAdd && sf && sh == 0 && imm12 == 0 && (rd == sp || rn == sp) {
		i.asMove64(rd, rn)
	} else {
		i.asALUImm12(op, rd, rn, imm12, sh, sf)
	}
	return i, nil
}

func decodeLogicalImmediate(i *instruction, w uint32) (*instruction, error) {
	var op aluOp
	switch w >> 29 & 0b11 {
	case 0b00:
		op = aluOpAnd
	case 0b01:
		op = aluOpOrr
	case 0b10:
		op = aluOpEor
	default:
		op = aluOpAnds
	}
	sf := w>>31 == 1
	imm, ok := decodeBitMasks(w>>22&1, w>>10&0x3f, w>>16&0x3f, sf)
	if !ok {
		return nil, unknownEncoding(w)
	}
	rd := intRegOrSP(w & 0x1f)
	if op == aluOpAnds {
		rd = intReg(w & 0x1f)
	}
	i.asALUBitmaskImm(op, rd, intReg(w>>5&0x1f), imm, sf)
	return i, nil
}

// decodeBitMasks expands the N:immr:imms fields of a logical immediate. 32-bit immediates
// are returned in the low half.
func decodeBitMasks(n, imms, immr uint32, sf bool) (uint64, bool) {
	combined := n<<6 | ^imms&0x3f
	if combined == 0 || (!sf && n == 1) {
		return 0, false
	}
	length := uint32(6)
	for combined>>length&1 == 0 {
		length--
	}
	if length < 1 {
		return 0, false
	}
	esize := uint32(1) << length
	levels := esize - 1
	s, r := imms&levels, immr&levels
	if s == levels {
		return 0, false
	}
	elem := uint64(1)<<(s+1) - 1
	if r != 0 {
		elem = (elem>>r | elem<<(esize-r)) & (uint64(1)<<esize - 1)
	}
	var imm uint64
	for k := uint32(0); k < 64; k += esize {
		imm |= elem << k
	}
	if !sf {
		imm &= 0xffff_ffff
	}
	return imm, true
}

func decodeBitfield(i *instruction, w uint32) (*instruction, error) {
	rd, rn := intReg(w&0x1f), intReg(w>>5&0x1f)
	sf, opc := w>>31 == 1, w>>29&0b11
	immr, imms := uint64(w>>16&0x3f), uint64(w>>10&0x3f)
	if (w>>22&1 == 1) != sf {
		return nil, unknownEncoding(w)
	}
	width := uint64(32)
	if sf {
		width = 64
	}

	switch {
	case opc == 0b00 && immr == 0 && (imms == 7 || imms == 15 || (sf && imms == 31)):
		to := byte(32)
		if sf {
			to = 64
		}
		i.asExtend(rd, rn, byte(imms+1), to, true)
	case opc == 0b10 && !sf && immr == 0 && (imms == 7 || imms == 15):
		i.asExtend(rd, rn, byte(imms+1), 32, false)
	case opc == 0b00 && imms == width-1:
		i.asALUShift(aluOpAsr, rd, rn, immr, sf)
	case opc == 0b10 && imms == width-1:
		i.asALUShift(aluOpLsr, rd, rn, immr, sf)
	case opc == 0b10 && imms+1 == immr:
		i.asALUShift(aluOpLsl, rd, rn, width-1-imms, sf)
	default:
		return nil, unknownEncoding(w)
	}
	return i, nil
}

func decodeFloat(i *instruction, w uint32) (*instruction, error) {
	rd, rn, rm := w&0x1f, w>>5&0x1f, w>>16&0x1f
	ftype := w >> 22 & 0b11
	if ftype > 1 {
		return nil, unknownEncoding(w)
	}
	_64bit := ftype == 1

	if w>>10&0b111111 == 0 {
		// Conversion between floating-point and integer.
		sf := w>>31 == 1
		switch w >> 16 & 0b11111 {
		case 0b11_000:
			i.asFpuToInt(intReg(rd), vecReg(rn), true, _64bit, sf)
		case 0b11_001:
			i.asFpuToInt(intReg(rd), vecReg(rn), false, _64bit, sf)
		case 0b00_010:
			i.asIntToFpu(vecReg(rd), intReg(rn), true, sf, _64bit)
		case 0b00_011:
			i.asIntToFpu(vecReg(rd), intReg(rn), false, sf, _64bit)
		case 0b00_110:
			if sf != _64bit {
				return nil, unknownEncoding(w)
			}
			i.asMovFromFpu(intReg(rd), vecReg(rn), sf)
		case 0b00_111:
			if sf != _64bit {
				return nil, unknownEncoding(w)
			}
			i.asMovToFpu(vecReg(rd), intReg(rn), sf)
		default:
			return nil, unknownEncoding(w)
		}
		return i, nil
	}
	if w>>31 == 1 {
		return nil, unknownEncoding(w)
	}

	switch {
	case w>>10&0b11 == 0b11:
		i.asFpuCSel(vecReg(rd), vecReg(rn), vecReg(rm), condFlag(w>>12&0xf), _64bit)
	case w>>10&0b11 == 0b10:
		var op fpuBinOp
		switch w >> 12 & 0xf {
		case 0b0000:
			op = fpuBinOpMul
		case 0b0001:
			op = fpuBinOpDiv
		case 0b0010:
			op = fpuBinOpAdd
		case 0b0011:
			op = fpuBinOpSub
		case 0b0100:
			op = fpuBinOpMax
		case 0b0101:
			op = fpuBinOpMin
		default:
			return nil, unknownEncoding(w)
		}
		i.asFpuRRR(op, vecReg(rd), vecReg(rn), vecReg(rm), _64bit)
	case w>>10&0x3f == 0b001000 && rd == 0:
		i.asFpuCmp(vecReg(rn), vecReg(rm), _64bit)
	case w>>10&0b11111 == 0b10000:
		var op fpuUniOp
		switch w >> 15 & 0x3f {
		case 0b000001:
			op = fpuUniOpAbs
		case 0b000010:
			op = fpuUniOpNeg
		case 0b000011:
			op = fpuUniOpSqrt
		case 0b000100:
			op = fpuUniOpCvt64To32
		case 0b000101:
			op = fpuUniOpCvt32To64
		default:
			return nil, unknownEncoding(w)
		}
		i.asFpuRR(op, vecReg(rd), vecReg(rn), _64bit)
	default:
		return nil, unknownEncoding(w)
	}
	return i, nil
}

func decodeAtomicRmw(i *instruction, w uint32) (*instruction, error) {
	var op atomicRmwOp
	o3, opc := w>>15&1, w>>12&0b111
	switch {
	case o3 == 1 && opc == 0:
		op = atomicRmwOpSwp
	case o3 == 0:
		op = atomicRmwOp(opc)
	default:
		return nil, unknownEncoding(w)
	}
	order := decodeOrder(w>>23&1 == 1, w>>22&1 == 1)
	i.asAtomicRmw(op, intReg(w&0x1f), intReg(w>>16&0x1f), intRegOrSP(w>>5&0x1f), 1<<(w>>30), order)
	return i, nil
}

func decodeLoadStorePair(i *instruction, w uint32) (*instruction, error) {
	imm := int64(int32(w<<10)>>25) * 8
	rt, rt2, rn := intReg(w&0x1f), intReg(w>>10&0x1f), intRegOrSP(w>>5&0x1f)
	amode := addressModePreOrPostIndex(rn, imm, w>>24&1 == 1)
	if w>>22&1 == 1 {
		i.asLoadPair64(rt, rt2, amode)
	} else {
		i.asStorePair64(rt, rt2, amode)
	}
	return i, nil
}

// loadStoreKinds maps bits 31..22 of a single register load or store to its kind.
var loadStoreKinds = map[uint32]instructionKind{
	0b0011100001: uLoad8,
	0b0011100010: sLoad8,
	0b0111100001: uLoad16,
	0b0111100010: sLoad16,
	0b1011100001: uLoad32,
	0b1011100010: sLoad32,
	0b1111100001: uLoad64,
	0b1011110001: fpuLoad32,
	0b1111110001: fpuLoad64,
	0b0011100000: store8,
	0b0111100000: store16,
	0b1011100000: store32,
	0b1111100000: store64,
	0b1011110000: fpuStore32,
	0b1111110000: fpuStore64,
}

func decodeLoadStore(i *instruction, w uint32) (*instruction, error) {
	kind, ok := loadStoreKinds[w>>22&^(1<<2)]
	if !ok {
		return nil, unknownEncoding(w)
	}
	rn := intRegOrSP(w >> 5 & 0x1f)

	var amode addressMode
	switch {
	case w>>24&1 == 1:
		scale := int64(loadOrStoreSizeInBits(kind) / 8)
		amode = addressMode{kind: addressModeKindRegUnsignedImm12, rn: rn, imm: int64(w>>10&0xfff) * scale}
	case w>>21&1 == 0:
		imm := int64(int32(w<<11) >> 23)
		switch w >> 10 & 0b11 {
		case 0b00:
			amode = addressMode{kind: addressModeKindRegSignedImm9, rn: rn, imm: imm}
		case 0b01:
			amode = addressModePreOrPostIndex(rn, imm, false)
		case 0b11:
			amode = addressModePreOrPostIndex(rn, imm, true)
		default:
			return nil, unknownEncoding(w)
		}
	case w>>10&0b11 == 0b10:
		rm := intReg(w >> 16 & 0x1f)
		var ext extendOp
		switch w >> 13 & 0b111 {
		case 0b010:
			ext = extendOpUXTW
		case 0b110:
			ext = extendOpSXTW
		case 0b111:
			ext = extendOpNone
		default:
			return nil, unknownEncoding(w)
		}
		scaled := w>>12&1 == 1
		switch {
		case scaled && ext != extendOpNone:
			amode = addressMode{kind: addressModeKindRegScaledExtended, rn: rn, rm: rm, extOp: ext}
		case scaled:
			amode = addressMode{kind: addressModeKindRegScaled, rn: rn, rm: rm, extOp: ext}
		case ext != extendOpNone:
			amode = addressMode{kind: addressModeKindRegExtended, rn: rn, rm: rm, extOp: ext}
		default:
			amode = addressMode{kind: addressModeKindRegReg, rn: rn, rm: rm, extOp: ext}
		}
	default:
		return nil, unknownEncoding(w)
	}

	var rt regalloc.RealReg
	if kind == fpuLoad32 || kind == fpuLoad64 || kind == fpuStore32 || kind == fpuStore64 {
		rt = vecReg(w & 0x1f)
	} else {
		rt = intReg(w & 0x1f)
	}
	i.kind, i.amode = kind, amode
	if isIntStore(kind) || kind == fpuStore32 || kind == fpuStore64 {
		i.rn = rt
	} else {
		i.rd = rt
	}
	return i, nil
}
