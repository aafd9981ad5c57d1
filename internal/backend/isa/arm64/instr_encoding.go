package arm64

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
)

// encoder accumulates the machine words of one function.
type encoder struct {
	words  []uint32
	relocs []backend.Relocation
	// saved are the callee-saved registers restored by the epilogue.
	saved []backend.SavedReg
}

func (e *encoder) emit(w uint32) {
	e.words = append(e.words, w)
}

// offset returns the byte offset of the next word.
func (e *encoder) offset() int64 {
	return int64(len(e.words)) * 4
}

func (e *encoder) reset() {
	e.words = e.words[:0]
	e.relocs = e.relocs[:0]
}

func invalidImmediate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", backend.ErrInvalidImmediate, fmt.Sprintf(format, args...))
}

func (i *instruction) encode(e *encoder) error {
	if err := i.checkOperands(); err != nil {
		return err
	}

	switch kind := i.kind; kind {
	case nop0:
	case ret:
		// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/RET--Return-from-subroutine-?lang=en
		e.emit(encodeRet())
	case epilogue:
		return e.encodeEpilogue()
	case br:
		if err := checkBranchOffset(i.imm, 26); err != nil {
			return err
		}
		e.emit(encodeUnconditionalBranch(false, i.imm))
	case call:
		// The callee address is unknown until link time, so we emit a placeholder.
		e.relocs = append(e.relocs, backend.Relocation{
			Offset: e.offset(), Symbol: i.callSymbol(), Kind: backend.RelocationCall26,
		})
		e.emit(encodeUnconditionalBranch(true, 0)) // 0 = placeholder
	case callInd:
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/BLR--Branch-with-Link-to-Register-
		rn := regNumberInEncoding[i.rn]
		e.emit(0b1101011<<25 | 0b111111<<16 | rn<<5)
	case store8, store16, store32, store64, fpuStore32, fpuStore64:
		return e.encodeLoadOrStore(i.kind, regNumberInEncoding[i.rn], i.amode)
	case uLoad8, uLoad16, uLoad32, uLoad64, sLoad8, sLoad16, sLoad32, fpuLoad32, fpuLoad64:
		return e.encodeLoadOrStore(i.kind, regNumberInEncoding[i.rd], i.amode)
	case condBr:
		if err := checkBranchOffset(i.imm, 19); err != nil {
			return err
		}
		imm19U32 := uint32(i.imm/4) & 0b111_11111111_11111111
		brCond := i.condBrCond()
		switch brCond.kind() {
		case condKindRegisterZero:
			rt := regNumberInEncoding[brCond.register()]
			e.emit(encodeCBZCBNZ(rt, false, imm19U32, i.condBr64bit()))
		case condKindRegisterNotZero:
			rt := regNumberInEncoding[brCond.register()]
			e.emit(encodeCBZCBNZ(rt, true, imm19U32, i.condBr64bit()))
		case condKindCondFlagSet:
			// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/B-cond--Branch-conditionally-
			fl := brCond.flag()
			e.emit(0b01010100<<24 | (imm19U32 << 5) | uint32(fl))
		default:
			panic("BUG")
		}
	case movN, movZ, movK:
		if i.u1 > 0xffff || (i.u3 == 1 && i.u2 > 3) || (i.u3 == 0 && i.u2 > 1) {
			return invalidImmediate("%s", i)
		}
		var opc uint32
		switch kind {
		case movN:
			opc = 0b00
		case movZ:
			opc = 0b10
		case movK:
			opc = 0b11
		}
		e.emit(encodeMoveWideImmediate(opc, regNumberInEncoding[i.rd], i.u1, i.u2, i.u3))
	case mov32:
		to, from := i.rd, i.rn
		e.emit(encodeAsMov32(regNumberInEncoding[from], regNumberInEncoding[to]))
	case mov64:
		to, from := i.rd, i.rn
		toIsSp := to == sp
		fromIsSp := from == sp
		if toIsSp || fromIsSp {
			// This is an alias of ADD (immediate):
			// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MOV--to-from-SP---Move-between-register-and-stack-pointer--an-alias-of-ADD--immediate--
			e.emit(encodeAddSubtractImmediate(0b100, 0, 0,
				regNumberInEncoding[from], regNumberInEncoding[to]),
			)
		} else {
			// This is an alias of ORR (shifted register):
			// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MOV--register---Move--register---an-alias-of-ORR--shifted-register--
			e.emit(encodeLogicalShiftedRegister(0b101, 0, regNumberInEncoding[from], 0, regNumberInEncoding[xzr], regNumberInEncoding[to]))
		}
	case loadP64, storeP64:
		rt, rt2 := regNumberInEncoding[i.rn], regNumberInEncoding[i.rm]
		amode := i.amode
		rn := regNumberInEncoding[amode.rn]
		var pre bool
		switch amode.kind {
		case addressModeKindPostIndex:
		case addressModeKindPreIndex:
			pre = true
		default:
			return fmt.Errorf("%w: pair address mode %s", backend.ErrInvalidOperands, amode.format(64))
		}
		if amode.imm%8 != 0 || amode.imm < -512 || amode.imm > 504 {
			return invalidImmediate("pair offset %d", amode.imm)
		}
		e.emit(encodePreOrPostIndexLoadStorePair64(pre, kind == loadP64, rn, rt, rt2, amode.imm))
	case loadConst:
		return e.encodeLoadConst(i.rd, i.u1, i.u3 == 1)
	case loadFpuConst:
		if i.u3 == 1 {
			encodeLoadFpuConst64(e, regNumberInEncoding[i.rd], i.u1)
		} else {
			encodeLoadFpuConst32(e, regNumberInEncoding[i.rd], i.u1)
		}
	case aluRRRR:
		e.emit(encodeAluRRRR(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			regNumberInEncoding[i.ra],
			uint32(i.u3),
		))
	case aluRRImmShift:
		if (i.u3 == 1 && i.u2 > 63) || (i.u3 == 0 && i.u2 > 31) {
			return invalidImmediate("shift amount %d", i.u2)
		}
		e.emit(encodeAluRRImm(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			uint32(i.u2),
			uint32(i.u3),
		))
	case aluRRR:
		rn := i.rn
		e.emit(encodeAluRRR(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[rn],
			regNumberInEncoding[i.rm],
			i.u3 == 1,
			rn == sp,
		))
	case aluRRRShift:
		sop, amt := i.shiftedReg()
		if (i.u3 == 1 && amt > 63) || (i.u3 == 0 && amt > 31) {
			return invalidImmediate("shift amount %d", amt)
		}
		e.emit(encodeAluRRRShift(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			uint32(amt),
			sop,
			i.u3 == 1,
		))
	case aluRRRExtend:
		ext, amt := i.extendedReg()
		if amt > 4 {
			return invalidImmediate("extend amount %d", amt)
		}
		e.emit(encodeAluRRRExtend(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			ext, uint32(amt),
			i.u3 == 1,
		))
	case aluRRBitmaskImm:
		v := i.u2
		if i.u3 == 0 {
			// 32-bit patterns are checked as the repeated 64-bit pattern.
			v = v&0xffff_ffff | v<<32
		}
		if !isBitMaskImmediate(v) {
			return invalidImmediate("%#x is not a bitmask immediate", i.u2)
		}
		e.emit(encodeAluBitmaskImmediate(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			v,
			i.u3 == 1,
		))
	case bitRR:
		e.emit(encodeBitRR(
			bitOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			uint32(i.u3)),
		)
	case aluRRImm12:
		imm12, shift := i.imm12()
		if i.u2>>13 != 0 {
			return invalidImmediate("imm12 %#x", i.u2)
		}
		e.emit(encodeAluRRImm12(
			aluOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			imm12, shift,
			i.u3 == 1,
		))
	case fpuRRR:
		e.emit(encodeFpuRRR(
			fpuBinOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			i.u3 == 1,
		))
	case fpuRR:
		e.emit(encodeFpuRR(
			fpuUniOp(i.u1),
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			i.u3 == 1,
		))
	case fpuMov64:
		// https://developer.arm.com/documentation/ddi0596/2021-12/SIMD-FP-Instructions/MOV--vector---Move-vector--an-alias-of-ORR--vector--register--
		rd := regNumberInEncoding[i.rd]
		rn := regNumberInEncoding[i.rn]
		e.emit(0b1110101<<21 | rn<<16 | 0b000111<<10 | rn<<5 | rd)
	case cSet:
		rd := regNumberInEncoding[i.rd]
		cf := condFlag(i.u1)
		if cf == al || cf == nv {
			return fmt.Errorf("%w: cset with %s", backend.ErrInvalidOperands, cf)
		}
		// https://developer.arm.com/documentation/ddi0602/2022-06/Base-Instructions/CSET--Conditional-Set--an-alias-of-CSINC-
		w := 0b0001101010011111<<16 | uint32(cf.invert())<<12 | 0b111111<<5 | rd
		if i.u3 == 1 {
			w |= 1 << 31
		}
		e.emit(w)
	case extend:
		w, err := encodeExtend(i.u3 == 1, byte(i.u1), byte(i.u2), regNumberInEncoding[i.rd], regNumberInEncoding[i.rn])
		if err != nil {
			return err
		}
		e.emit(w)
	case fpuCmp:
		// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/FCMP--Floating-point-quiet-Compare--scalar--?lang=en
		rn, rm := regNumberInEncoding[i.rn], regNumberInEncoding[i.rm]
		var ftype uint32
		if i.u3 == 1 {
			ftype = 0b01 // double precision.
		}
		e.emit(0b1111<<25 | ftype<<22 | 1<<21 | rm<<16 | 0b1<<13 | rn<<5)
	case udf:
		// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/UDF--Permanently-Undefined-?lang=en
		e.emit(0)
	case brk:
		if i.u1 > 0xffff {
			return invalidImmediate("brk #%#x", i.u1)
		}
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/BRK--Breakpoint-instruction-
		e.emit(0b11010100001<<21 | uint32(i.u1)<<5)
	case cSel:
		e.emit(encodeConditionalSelect(
			kind,
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			condFlag(i.u1),
			i.u3 == 1,
		))
	case fpuCSel:
		e.emit(encodeFpuCSel(
			regNumberInEncoding[i.rd],
			regNumberInEncoding[i.rn],
			regNumberInEncoding[i.rm],
			condFlag(i.u1),
			i.u3 == 1,
		))
	case movToFpu:
		// FMOV (general): https://developer.arm.com/documentation/ddi0596/2021-12/SIMD-FP-Instructions/FMOV--general---Floating-point-Move-to-or-from-general-purpose-register-without-conversion-
		e.emit(encodeCnvBetweenFloatInt(regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], 0b00, 0b111, i.u3 == 1, i.u3 == 1))
	case movFromFpu:
		e.emit(encodeCnvBetweenFloatInt(regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], 0b00, 0b110, i.u3 == 1, i.u3 == 1))
	case fpuToInt:
		// FCVTZS/FCVTZU (scalar, integer)
		opcode := uint32(0b001)
		if i.u1 == 1 {
			opcode = 0b000
		}
		e.emit(encodeCnvBetweenFloatInt(regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], 0b11, opcode, i.u3 == 1, i.u2 == 1))
	case intToFpu:
		// SCVTF/UCVTF (scalar, integer)
		opcode := uint32(0b011)
		if i.u1 == 1 {
			opcode = 0b010
		}
		e.emit(encodeCnvBetweenFloatInt(regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], 0b00, opcode, i.u2 == 1, i.u3 == 1))
	case atomicRmw:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		e.emit(encodeAtomicRmw(atomicRmwOp(i.u1),
			regNumberInEncoding[i.rm], regNumberInEncoding[i.rn], regNumberInEncoding[i.rd],
			i.u2, atomicOrder(i.u3)))
	case atomicCas:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		e.emit(encodeAtomicCas(regNumberInEncoding[i.rd], regNumberInEncoding[i.rm], regNumberInEncoding[i.rn],
			i.u2, atomicOrder(i.u3)))
	case atomicLoad:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		e.emit(encodeLoadStoreOrdered(true, regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], i.u2))
	case atomicStore:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		e.emit(encodeLoadStoreOrdered(false, regNumberInEncoding[i.rm], regNumberInEncoding[i.rn], i.u2))
	case loadExclusive:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		e.emit(encodeLoadExclusive(regNumberInEncoding[i.rd], regNumberInEncoding[i.rn], i.u2, i.u3 == 1))
	case storeExclusive:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		if i.rd == i.rm || i.rd == i.rn {
			return fmt.Errorf("%w: exclusive store status register overlaps its operands", backend.ErrInvalidOperands)
		}
		e.emit(encodeStoreExclusive(regNumberInEncoding[i.rd], regNumberInEncoding[i.rm], regNumberInEncoding[i.rn], i.u2, i.u3 == 1))
	case clrex:
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CLREX--Clear-Exclusive-
		e.emit(0xd503305f | 0b1111<<8)
	case dmb:
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/DMB--Data-Memory-Barrier-
		e.emit(0xd50330bf | uint32(i.u1&0b1111)<<8)
	case atomicRmwLoop:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		return e.encodeAtomicRmwLoop(i)
	case atomicCasLoop:
		if err := checkAtomicSize(i.u2); err != nil {
			return err
		}
		return e.encodeAtomicCasLoop(i)
	case rawWords:
		for _, w := range i.words {
			e.emit(w)
		}
	default:
		panic(i.String())
	}
	return nil
}

// checkOperands verifies the register classes of the operands.
func (i *instruction) checkOperands() error {
	want := func(r regalloc.RealReg, typ regalloc.RegType) error {
		if r == regalloc.RealRegInvalid || r >= numRegs || regTypeOf(r) != typ {
			return fmt.Errorf("%w: %s expects a %s register, got %s", backend.ErrInvalidOperands, i.kind, typ, regNames[r%numRegs])
		}
		return nil
	}
	all := func(typ regalloc.RegType, regs ...regalloc.RealReg) error {
		for _, r := range regs {
			if err := want(r, typ); err != nil {
				return err
			}
		}
		return nil
	}
	const (
		gpr = regalloc.RegTypeInt
		fpr = regalloc.RegTypeFloat
	)

	switch i.kind {
	case aluRRR, aluRRRShift, aluRRRExtend, cSel:
		return all(gpr, i.rd, i.rn, i.rm)
	case aluRRRR:
		return all(gpr, i.rd, i.rn, i.rm, i.ra)
	case aluRRImm12, aluRRBitmaskImm, aluRRImmShift, bitRR, mov64, mov32, extend:
		return all(gpr, i.rd, i.rn)
	case movZ, movN, movK, cSet, loadConst:
		return want(i.rd, gpr)
	case callInd:
		return want(i.rn, gpr)
	case fpuRRR, fpuCSel:
		return all(fpr, i.rd, i.rn, i.rm)
	case fpuRR, fpuMov64:
		return all(fpr, i.rd, i.rn)
	case fpuCmp:
		return all(fpr, i.rn, i.rm)
	case loadFpuConst:
		return want(i.rd, fpr)
	case movToFpu, intToFpu:
		if err := want(i.rd, fpr); err != nil {
			return err
		}
		return want(i.rn, gpr)
	case movFromFpu, fpuToInt:
		if err := want(i.rd, gpr); err != nil {
			return err
		}
		return want(i.rn, fpr)
	case uLoad8, uLoad16, uLoad32, uLoad64, sLoad8, sLoad16, sLoad32:
		return all(gpr, i.rd, i.amode.rn)
	case store8, store16, store32, store64:
		return all(gpr, i.rn, i.amode.rn)
	case fpuLoad32, fpuLoad64:
		if err := want(i.rd, fpr); err != nil {
			return err
		}
		return want(i.amode.rn, gpr)
	case fpuStore32, fpuStore64:
		if err := want(i.rn, fpr); err != nil {
			return err
		}
		return want(i.amode.rn, gpr)
	case loadP64, storeP64:
		return all(gpr, i.rn, i.rm, i.amode.rn)
	case atomicRmw, atomicCas, storeExclusive:
		return all(gpr, i.rd, i.rn, i.rm)
	case atomicLoad, loadExclusive:
		return all(gpr, i.rd, i.rn)
	case atomicStore:
		return all(gpr, i.rn, i.rm)
	case atomicRmwLoop, atomicCasLoop:
		if err := all(gpr, i.rd, i.rn, i.rm, i.ra); err != nil {
			return err
		}
		if i.rd == encTmp || i.rn == encTmp || i.rm == encTmp || i.ra == encTmp {
			return fmt.Errorf("%w: %s uses the reserved status register", backend.ErrInvalidOperands, i.kind)
		}
	}
	return nil
}

func checkBranchOffset(imm int64, bits uint) error {
	if imm%4 != 0 {
		return invalidImmediate("branch offset %#x is not a multiple of 4", imm)
	}
	if limit := int64(1) << (bits + 1); imm < -limit || imm >= limit {
		return invalidImmediate("branch offset %#x does not fit in imm%d", imm, bits)
	}
	return nil
}

func checkAtomicSize(size uint64) error {
	switch size {
	case 1, 2, 4, 8:
		return nil
	}
	return fmt.Errorf("%w: atomic access of %d bytes", backend.ErrInvalidOperands, size)
}

// encodeLoadOrStore resolves addressModeKindRegImm to an encodable mode, materializing
// offsets which fit no immediate field in encTmp.
func (e *encoder) encodeLoadOrStore(kind instructionKind, rt uint32, amode addressMode) error {
	bits := loadOrStoreSizeInBits(kind)
	switch amode.kind {
	case addressModeKindRegImm:
		switch {
		case amode.imm >= 0 && offsetFitsInAddressModeKindRegUnsignedImm12(bits, amode.imm):
			amode.kind = addressModeKindRegUnsignedImm12
		case offsetFitsInAddressModeKindRegSignedImm9(amode.imm):
			amode.kind = addressModeKindRegSignedImm9
		default:
			if amode.rn == encTmp || (rt == regNumberInEncoding[encTmp] && isIntStore(kind)) {
				return fmt.Errorf("%w: wide offset with the reserved register as operand", backend.ErrInvalidOperands)
			}
			if err := e.encodeLoadConst(encTmp, uint64(amode.imm), true); err != nil {
				return err
			}
			amode = addressMode{kind: addressModeKindRegReg, rn: amode.rn, rm: encTmp, extOp: extendOpNone}
		}
	case addressModeKindRegUnsignedImm12:
		if amode.imm != 0 && !offsetFitsInAddressModeKindRegUnsignedImm12(bits, amode.imm) {
			return invalidImmediate("offset %#x for %d-bit access", amode.imm, bits)
		}
	case addressModeKindRegSignedImm9, addressModeKindPostIndex, addressModeKindPreIndex:
		if !offsetFitsInAddressModeKindRegSignedImm9(amode.imm) {
			return invalidImmediate("offset %#x does not fit in simm9", amode.imm)
		}
	}
	e.emit(encodeStoreOrStore(kind, rt, amode))
	return nil
}

func isIntStore(kind instructionKind) bool {
	switch kind {
	case store8, store16, store32, store64:
		return true
	}
	return false
}

func loadOrStoreSizeInBits(kind instructionKind) byte {
	switch kind {
	case uLoad8, sLoad8, store8:
		return 8
	case uLoad16, sLoad16, store16:
		return 16
	case uLoad32, sLoad32, store32, fpuLoad32, fpuStore32:
		return 32
	case uLoad64, store64, fpuLoad64, fpuStore64:
		return 64
	}
	panic("BUG")
}

// encodeLoadConst loads c into the register with MOVZ or MOVN followed by MOVKs, following
// the same logic as the Go assembler to decide the shortest sequence.
//
// See https://github.com/golang/go/blob/release-branch.go1.15/src/cmd/internal/obj/arm64/asm7.go#L6632-L6759
func (e *encoder) encodeLoadConst(rd regalloc.RealReg, c uint64, _64bit bool) error {
	n := 4
	if !_64bit {
		n = 2
		c &= 0xffff_ffff
	}
	var bits [4]uint64
	var zeros, negs int
	for k := 0; k < n; k++ {
		bits[k] = (c >> uint(k*16)) & 0xffff
		if v := bits[k]; v == 0 {
			zeros++
		} else if v == 0xffff {
			negs++
		}
	}

	// One MOVN then MOVKs if more halfwords are all ones than zero, else one MOVZ then MOVKs.
	inverted := negs > zeros
	var skip uint64
	if inverted {
		skip = 0xffff
	}
	first := true
	for k := 0; k < n; k++ {
		v := bits[k]
		if v == skip {
			continue
		}
		var mov instruction
		switch {
		case first && inverted:
			mov.asMOVN(rd, ^v&0xffff, uint64(k), _64bit)
		case first:
			mov.asMOVZ(rd, v, uint64(k), _64bit)
		default:
			mov.asMOVK(rd, v, uint64(k), _64bit)
		}
		first = false
		if err := mov.encode(e); err != nil {
			return err
		}
	}
	if first {
		// All zeros or all ones.
		var mov instruction
		if inverted {
			mov.asMOVN(rd, 0, 0, _64bit)
		} else {
			mov.asMOVZ(rd, 0, 0, _64bit)
		}
		return mov.encode(e)
	}
	return nil
}

// encodeSeq encodes insts in order.
func (e *encoder) encodeSeq(insts ...*instruction) error {
	for _, i := range insts {
		if err := i.encode(e); err != nil {
			return err
		}
	}
	return nil
}

// encodeEpilogue restores the callee-saved registers and the caller's frame, then returns:
//
//	ldr reg, [fp, #offset] ;; for each saved register
//	mov sp, fp
//	ldp fp, lr, [sp], #16
//	ret
func (e *encoder) encodeEpilogue() error {
	for _, s := range e.saved {
		kind := uLoad64
		if regTypeOf(s.Reg) == regalloc.RegTypeFloat {
			kind = fpuLoad64
		}
		amode := addressMode{kind: addressModeKindRegImm, rn: fp, imm: s.Offset}
		if err := e.encodeLoadOrStore(kind, regNumberInEncoding[s.Reg], amode); err != nil {
			return err
		}
	}
	var mov, ldp, r instruction
	mov.asMove64(sp, fp)
	ldp.asLoadPair64(fp, lr, addressModePreOrPostIndex(sp, 16, false))
	r.asRet()
	return e.encodeSeq(&mov, &ldp, &r)
}

// encodeAtomicRmwLoop encodes a read-modify-write as an exclusive load/store loop:
//
//	loop:
//	  ld{a}xr   old, [addr]
//	  <op>      new, old, operand
//	  st{l}xr   w17, new, [addr]
//	  cbnz      w17, loop
func (e *encoder) encodeAtomicRmwLoop(i *instruction) error {
	op, signed := i.rmwLoopOp()
	size, order := i.u2, atomicOrder(i.u3)
	old, addr, operand, tmp := i.rd, i.rn, i.rm, i.ra
	_64bit := size == 8
	status := regNumberInEncoding[encTmp]

	start := len(e.words)
	var ld instruction
	ld.asLoadExclusive(old, addr, size, order.acquire())
	if err := ld.encode(e); err != nil {
		return err
	}
	if signed && size < 4 {
		w, err := encodeExtend(true, byte(size*8), 32, regNumberInEncoding[old], regNumberInEncoding[old])
		if err != nil {
			return err
		}
		e.emit(w)
	}

	rd, rn, rm := regNumberInEncoding[tmp], regNumberInEncoding[old], regNumberInEncoding[operand]
	newValue := tmp
	switch op {
	case 0: // add
		e.emit(encodeAluRRR(aluOpAdd, rd, rn, rm, _64bit, false))
	case 1: // sub
		e.emit(encodeAluRRR(aluOpSub, rd, rn, rm, _64bit, false))
	case 2: // and
		e.emit(encodeAluRRR(aluOpAnd, rd, rn, rm, _64bit, false))
	case 3: // nand
		e.emit(encodeAluRRR(aluOpAnd, rd, rn, rm, _64bit, false))
		e.emit(encodeAluRRR(aluOpOrn, rd, regNumberInEncoding[xzr], rd, _64bit, false))
	case 4: // or
		e.emit(encodeAluRRR(aluOpOrr, rd, rn, rm, _64bit, false))
	case 5: // xor
		e.emit(encodeAluRRR(aluOpEor, rd, rn, rm, _64bit, false))
	case 6: // xchg
		newValue = operand
	case 7, 8: // max, min
		e.emit(encodeAluRRR(aluOpSubS, regNumberInEncoding[xzr], rn, rm, _64bit, false))
		var c condFlag
		switch {
		case op == 7 && signed:
			c = gt
		case op == 7:
			c = hi
		case signed:
			c = lt
		default:
			c = lo
		}
		e.emit(encodeConditionalSelect(cSel, rd, rn, rm, c, _64bit))
	default:
		return fmt.Errorf("%w: atomic operation %d", backend.ErrInvalidOperands, op)
	}
	var st instruction
	st.asStoreExclusive(encTmp, newValue, addr, size, order.release())
	if err := st.encode(e); err != nil {
		return err
	}
	e.emit(encodeCBZCBNZ(status, true, uint32(start-len(e.words))&0b111_11111111_11111111, false))
	return nil
}

// encodeAtomicCasLoop encodes a compare-and-swap as an exclusive load/store loop. The flags
// hold eq on success and ne on failure afterwards:
//
//	loop:
//	  ld{a}xr   old, [addr]
//	  cmp       old, expected
//	  b.ne      fail
//	  st{l}xr   w17, new, [addr]
//	  cbnz      w17, loop
//	fail:
//	  clrex
func (e *encoder) encodeAtomicCasLoop(i *instruction) error {
	size, order := i.u2, atomicOrder(i.u3)
	old, expected := regNumberInEncoding[i.rd], regNumberInEncoding[i.rm]
	status := regNumberInEncoding[encTmp]
	_64bit := size == 8

	start := len(e.words)
	var ld instruction
	ld.asLoadExclusive(i.rd, i.rn, size, order.acquire())
	if err := ld.encode(e); err != nil {
		return err
	}
	switch size {
	case 1:
		e.emit(encodeAluRRRExtend(aluOpSubS, regNumberInEncoding[xzr], old, expected, extendOpUXTB, 0, false))
	case 2:
		e.emit(encodeAluRRRExtend(aluOpSubS, regNumberInEncoding[xzr], old, expected, extendOpUXTH, 0, false))
	default:
		e.emit(encodeAluRRR(aluOpSubS, regNumberInEncoding[xzr], old, expected, _64bit, false))
	}
	// b.ne over the store and the loop back edge.
	e.emit(0b01010100<<24 | 3<<5 | uint32(ne))
	var st, cl instruction
	st.asStoreExclusive(encTmp, i.ra, i.rn, size, order.release())
	if err := st.encode(e); err != nil {
		return err
	}
	e.emit(encodeCBZCBNZ(status, true, uint32(start-len(e.words))&0b111_11111111_11111111, false))
	cl.asClrex()
	return cl.encode(e)
}

func encodeFpuCSel(rd, rn, rm uint32, c condFlag, _64bit bool) uint32 {
	var ftype uint32
	if _64bit {
		ftype = 0b01 // double precision.
	}
	return 0b1111<<25 | ftype<<22 | 0b1<<21 | rm<<16 | uint32(c)<<12 | 0b11<<10 | rn<<5 | rd
}

// encodeConditionalSelect encodes as "Conditional select" in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en#condsel
func encodeConditionalSelect(kind instructionKind, rd, rn, rm uint32, c condFlag, _64bit bool) uint32 {
	if kind != cSel {
		panic("BUG: unsupported conditional select")
	}

	ret := 0b110101<<23 | rm<<16 | uint32(c)<<12 | rn<<5 | rd
	if _64bit {
		ret |= 0b1 << 31
	}
	return ret
}

// encodeLoadFpuConst32 encodes the following three instructions:
//
//	ldr s8, #8  ;; literal load of data.f32
//	b 8           ;; skip the data
//	data.f32 xxxxxxx
func encodeLoadFpuConst32(e *encoder, rd uint32, rawF32 uint64) {
	e.emit(
		// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/LDR--literal--SIMD-FP---Load-SIMD-FP-Register--PC-relative-literal--?lang=en
		0b111<<26 | (0x8/4)<<5 | rd,
	)
	e.emit(encodeUnconditionalBranch(false, 8)) // b 8
	e.emit(uint32(rawF32))                      // data.f32 xxxxxxx
}

// encodeLoadFpuConst64 encodes the following three instructions:
//
//	ldr d8, #8  ;; literal load of data.f64
//	b 12           ;; skip the data
//	data.f64 xxxxxxx
func encodeLoadFpuConst64(e *encoder, rd uint32, rawF64 uint64) {
	e.emit(
		// https://developer.arm.com/documentation/ddi0596/2020-12/SIMD-FP-Instructions/LDR--literal--SIMD-FP---Load-SIMD-FP-Register--PC-relative-literal--?lang=en
		0b1<<30 | 0b111<<26 | (0x8/4)<<5 | rd,
	)
	e.emit(encodeUnconditionalBranch(false, 12)) // b 12
	// data.f64 xxxxxxx
	e.emit(uint32(rawF64))
	e.emit(uint32(rawF64 >> 32))
}

// encodeAluRRRR encodes as Data-processing (3 source) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en
func encodeAluRRRR(op aluOp, rd, rn, rm, ra, _64bit uint32) uint32 {
	var oO, op31 uint32
	switch op {
	case aluOpMAdd:
		op31, oO = 0b000, 0b0
	case aluOpMSub:
		op31, oO = 0b000, 0b1
	default:
		panic("BUG: " + op.String())
	}
	return _64bit<<31 | 0b11011<<24 | op31<<21 | rm<<16 | oO<<15 | ra<<10 | rn<<5 | rd
}

// encodeBitRR encodes as Data-processing (1 source) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en
func encodeBitRR(op bitOp, rd, rn, _64bit uint32) uint32 {
	var opcode2, opcode uint32
	switch op {
	case bitOpRbit:
		opcode2, opcode = 0b00000, 0b000000
	case bitOpClz:
		opcode2, opcode = 0b00000, 0b000100
	default:
		panic("BUG")
	}
	return _64bit<<31 | 0b1_0_11010110<<21 | opcode2<<16 | opcode<<10 | rn<<5 | rd
}

func encodeAsMov32(rn, rd uint32) uint32 {
	// This is an alias of ORR (shifted register):
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/MOV--register---Move--register---an-alias-of-ORR--shifted-register--
	return encodeLogicalShiftedRegister(0b001, 0, rn, 0, regNumberInEncoding[xzr], rd)
}

// encodeExtend encodes extension instructions.
func encodeExtend(signed bool, from, to byte, rd, rn uint32) (uint32, error) {
	// UTXB: https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/UXTB--Unsigned-Extend-Byte--an-alias-of-UBFM-?lang=en
	// UTXH: https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/UXTH--Unsigned-Extend-Halfword--an-alias-of-UBFM-?lang=en
	// STXB: https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SXTB--Signed-Extend-Byte--an-alias-of-SBFM-
	// STXH: https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SXTH--Sign-Extend-Halfword--an-alias-of-SBFM-
	// STXW: https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SXTW--Sign-Extend-Word--an-alias-of-SBFM-
	var _31to10 uint32
	switch {
	case !signed && from == 8 && to == 32:
		// 32-bit UXTB
		_31to10 = 0b0101001100000000000111
	case !signed && from == 16 && to == 32:
		// 32-bit UXTH
		_31to10 = 0b0101001100000000001111
	case !signed && from == 8 && to == 64:
		// 64-bit UXTB
		_31to10 = 0b0101001100000000000111
	case !signed && from == 16 && to == 64:
		// 64-bit UXTH
		_31to10 = 0b0101001100000000001111
	case !signed && from == 32 && to == 64:
		return encodeAsMov32(rn, rd), nil
	case signed && from == 8 && to == 32:
		// 32-bit SXTB
		_31to10 = 0b0001001100000000000111
	case signed && from == 16 && to == 32:
		// 32-bit SXTH
		_31to10 = 0b0001001100000000001111
	case signed && from == 8 && to == 64:
		// 64-bit SXTB
		_31to10 = 0b1001001101000000000111
	case signed && from == 16 && to == 64:
		// 64-bit SXTH
		_31to10 = 0b1001001101000000001111
	case signed && from == 32 && to == 64:
		// SXTW
		_31to10 = 0b1001001101000000011111
	default:
		return 0, fmt.Errorf("%w: extension from %d to %d bits", backend.ErrInvalidOperands, from, to)
	}
	return _31to10<<10 | rn<<5 | rd, nil
}

func encodeStoreOrStore(kind instructionKind, rt uint32, amode addressMode) uint32 {
	var _22to31 uint32
	var bits int64
	switch kind {
	case uLoad8:
		_22to31 = 0b0011100001
		bits = 8
	case sLoad8:
		_22to31 = 0b0011100010
		bits = 8
	case uLoad16:
		_22to31 = 0b0111100001
		bits = 16
	case sLoad16:
		_22to31 = 0b0111100010
		bits = 16
	case uLoad32:
		_22to31 = 0b1011100001
		bits = 32
	case sLoad32:
		_22to31 = 0b1011100010
		bits = 32
	case uLoad64:
		_22to31 = 0b1111100001
		bits = 64
	case fpuLoad32:
		_22to31 = 0b1011110001
		bits = 32
	case fpuLoad64:
		_22to31 = 0b1111110001
		bits = 64
	case store8:
		_22to31 = 0b0011100000
		bits = 8
	case store16:
		_22to31 = 0b0111100000
		bits = 16
	case store32:
		_22to31 = 0b1011100000
		bits = 32
	case store64:
		_22to31 = 0b1111100000
		bits = 64
	case fpuStore32:
		_22to31 = 0b1011110000
		bits = 32
	case fpuStore64:
		_22to31 = 0b1111110000
		bits = 64
	default:
		panic("BUG")
	}

	switch amode.kind {
	case addressModeKindRegScaledExtended:
		return encodeLoadOrStoreExtended(_22to31,
			regNumberInEncoding[amode.rn],
			regNumberInEncoding[amode.rm],
			rt, true, amode.extOp)
	case addressModeKindRegScaled:
		return encodeLoadOrStoreExtended(_22to31,
			regNumberInEncoding[amode.rn], regNumberInEncoding[amode.rm],
			rt, true, extendOpNone)
	case addressModeKindRegExtended:
		return encodeLoadOrStoreExtended(_22to31,
			regNumberInEncoding[amode.rn], regNumberInEncoding[amode.rm],
			rt, false, amode.extOp)
	case addressModeKindRegReg:
		return encodeLoadOrStoreExtended(_22to31,
			regNumberInEncoding[amode.rn], regNumberInEncoding[amode.rm],
			rt, false, extendOpNone)
	case addressModeKindRegSignedImm9:
		// e.g. https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDUR--Load-Register--unscaled--
		return encodeLoadOrStoreSIMM9(_22to31, 0b00 /* unscaled */, regNumberInEncoding[amode.rn], rt, amode.imm)
	case addressModeKindPostIndex:
		return encodeLoadOrStoreSIMM9(_22to31, 0b01 /* post index */, regNumberInEncoding[amode.rn], rt, amode.imm)
	case addressModeKindPreIndex:
		return encodeLoadOrStoreSIMM9(_22to31, 0b11 /* pre index */, regNumberInEncoding[amode.rn], rt, amode.imm)
	case addressModeKindRegUnsignedImm12:
		// "unsigned immediate" in https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Loads-and-Stores?lang=en
		rn := regNumberInEncoding[amode.rn]
		imm := amode.imm
		div := bits / 8
		imm /= div
		return _22to31<<22 | 0b1<<24 | uint32(imm&0b111111111111)<<10 | rn<<5 | rt
	default:
		panic("BUG")
	}
}

// encodeAluBitmaskImmediate encodes as Logical (immediate) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Immediate?lang=en
func encodeAluBitmaskImmediate(op aluOp, rd, rn uint32, imm uint64, _64bit bool) uint32 {
	var _31to23 uint32
	switch op {
	case aluOpAnd:
		_31to23 = 0b00_100100
	case aluOpOrr:
		_31to23 = 0b01_100100
	case aluOpEor:
		_31to23 = 0b10_100100
	case aluOpAnds:
		_31to23 = 0b11_100100
	default:
		panic("BUG")
	}
	if _64bit {
		_31to23 |= 0b1 << 8
	}
	immr, imms, N := bitmaskImmediate(imm, _64bit)
	return _31to23<<23 | uint32(N)<<22 | uint32(immr)<<16 | uint32(imms)<<10 | rn<<5 | rd
}

func bitmaskImmediate(c uint64, is64bit bool) (immr, imms, N byte) {
	var size uint32
	switch {
	case c != c>>32|c<<32:
		size = 64
	case c != c>>16|c<<48:
		size = 32
		c = uint64(int32(c))
	case c != c>>8|c<<56:
		size = 16
		c = uint64(int16(c))
	case c != c>>4|c<<60:
		size = 8
		c = uint64(int8(c))
	case c != c>>2|c<<62:
		size = 4
		c = uint64(int64(c<<60) >> 60)
	default:
		size = 2
		c = uint64(int64(c<<62) >> 62)
	}

	neg := false
	if int64(c) < 0 {
		c = ^c
		neg = true
	}

	onesSize, nonZeroPos := getOnesSequenceSize(c)
	if neg {
		nonZeroPos = onesSize + nonZeroPos
		onesSize = size - onesSize
	}

	var mode byte = 32
	if is64bit {
		N, mode = 0b1, 64
	}
	if size == 64 {
		N = 1
	} else {
		N = 0
	}

	immr = byte((size - nonZeroPos) & (size - 1) & uint32(mode-1))
	imms = byte((onesSize - 1) | 63&^(size<<1-1))
	return
}

// isBitMaskImmediate determines if the value can be encoded as "bitmask immediate".
//
//	Such an immediate is a 32-bit or 64-bit pattern viewed as a vector of identical elements of size e = 2, 4, 8, 16, 32, or 64 bits.
//	Each element contains the same sub-pattern: a single run of 1 to e-1 non-zero bits, rotated by 0 to e-1 bits.
//
// See https://developer.arm.com/documentation/dui0802/b/A64-General-Instructions/MOV--bitmask-immediate-
func isBitMaskImmediate(x uint64) bool {
	// All zeros and ones are not "bitmask immediate" by definition.
	if x == 0 || x == 0xffff_ffff_ffff_ffff {
		return false
	}

	switch {
	case x != x>>32|x<<32:
		// e = 64
	case x != x>>16|x<<48:
		// e = 32 (x == x>>32|x<<32).
		// e.g. 0x00ff_ff00_00ff_ff00
		x = uint64(int32(x))
	case x != x>>8|x<<56:
		// e = 16 (x == x>>16|x<<48).
		// e.g. 0x00ff_00ff_00ff_00ff
		x = uint64(int16(x))
	case x != x>>4|x<<60:
		// e = 8 (x == x>>8|x<<56).
		// e.g. 0x0f0f_0f0f_0f0f_0f0f
		x = uint64(int8(x))
	default:
		// e = 4 or 2.
		return true
	}
	return sequenceOfSetbits(x) || sequenceOfSetbits(^x)
}

// sequenceOfSetbits returns true if the number's binary representation is the sequence set bit (1).
// For example: 0b1110 -> true, 0b1010 -> false
func sequenceOfSetbits(x uint64) bool {
	y := getLowestBit(x)
	// If x is a sequence of set bit, this should results in the number
	// with only one set bit (i.e. power of two).
	y += x
	return (y-1)&y == 0
}

func getLowestBit(x uint64) uint64 {
	// See https://stackoverflow.com/questions/12247186/find-the-lowest-set-bit
	return x & (^x + 1)
}

func getOnesSequenceSize(x uint64) (size, nonZeroPos uint32) {
	// Take 0b00111000 for example:
	y := getLowestBit(x)               // = 0b0000100
	nonZeroPos = setBitPos(y)          // = 2
	size = setBitPos(x+y) - nonZeroPos // = setBitPos(0b0100000) - 2 = 5 - 2 = 3
	return
}

func setBitPos(x uint64) (ret uint32) {
	for ; ; ret++ {
		if x == 0b1 {
			break
		}
		x = x >> 1
	}
	return
}

// encodeLoadOrStoreExtended encodes store/load instruction as "extended register offset" in Load/store register (register offset):
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Loads-and-Stores?lang=en
func encodeLoadOrStoreExtended(_22to32 uint32, rn, rm, rt uint32, scaled bool, extOp extendOp) uint32 {
	var option uint32
	switch extOp {
	case extendOpUXTW:
		option = 0b010
	case extendOpSXTW:
		option = 0b110
	case extendOpNone:
		option = 0b111
	default:
		panic("BUG")
	}
	var s uint32
	if scaled {
		s = 0b1
	}
	return _22to32<<22 | 0b1<<21 | rm<<16 | option<<13 | s<<12 | 0b10<<10 | rn<<5 | rt
}

// encodeLoadOrStoreSIMM9 encodes store/load instruction as one of post-index, pre-index or unscaled immediate as in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Loads-and-Stores?lang=en
func encodeLoadOrStoreSIMM9(_22to32, _1011 uint32, rn, rt uint32, imm9 int64) uint32 {
	return _22to32<<22 | (uint32(imm9)&0b111111111)<<12 | _1011<<10 | rn<<5 | rt
}

// encodeFpuRRR encodes as single or double precision (depending on `_64bit`) of Floating-point data-processing (2 source) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Scalar-Floating-Point-and-Advanced-SIMD?lang=en
func encodeFpuRRR(op fpuBinOp, rd, rn, rm uint32, _64bit bool) (ret uint32) {
	// https://developer.arm.com/documentation/ddi0596/2021-12/SIMD-FP-Instructions/ADD--vector--Add-vectors--scalar--floating-point-and-integer-
	var opcode uint32
	switch op {
	case fpuBinOpAdd:
		opcode = 0b0010
	case fpuBinOpSub:
		opcode = 0b0011
	case fpuBinOpMul:
		opcode = 0b0000
	case fpuBinOpDiv:
		opcode = 0b0001
	case fpuBinOpMax:
		opcode = 0b0100
	case fpuBinOpMin:
		opcode = 0b0101
	default:
		panic("BUG")
	}
	var ptype uint32
	if _64bit {
		ptype = 0b01
	}
	return 0b1111<<25 | ptype<<22 | 0b1<<21 | rm<<16 | opcode<<12 | 0b1<<11 | rn<<5 | rd
}

// encodeFpuRR encodes as Floating-point data-processing (1 source) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Scalar-Floating-Point-and-Advanced-SIMD?lang=en
//
// _64bit is the precision of the source.
func encodeFpuRR(op fpuUniOp, rd, rn uint32, _64bit bool) (ret uint32) {
	var opcode uint32
	switch op {
	case fpuUniOpAbs:
		opcode = 0b000001
	case fpuUniOpNeg:
		opcode = 0b000010
	case fpuUniOpSqrt:
		opcode = 0b000011
	case fpuUniOpCvt64To32:
		opcode = 0b000100
	case fpuUniOpCvt32To64:
		opcode = 0b000101
	default:
		panic("BUG")
	}
	var ptype uint32
	if _64bit {
		ptype = 0b01
	}
	return 0b1111<<25 | ptype<<22 | 0b1<<21 | opcode<<15 | 0b1<<14 | rn<<5 | rd
}

// encodeCnvBetweenFloatInt encodes as "Conversion between floating-point and integer" in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Scalar-Floating-Point-and-Advanced-SIMD?lang=en
func encodeCnvBetweenFloatInt(rd, rn, rmode, opcode uint32, int64bit, float64bit bool) uint32 {
	var sf, ftype uint32
	if int64bit {
		sf = 0b1
	}
	if float64bit {
		ftype = 0b01
	}
	return sf<<31 | 0b1111<<25 | ftype<<22 | 0b1<<21 | rmode<<19 | opcode<<16 | rn<<5 | rd
}

// encodeAluRRImm12 encodes as Add/subtract (immediate) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Immediate?lang=en
func encodeAluRRImm12(op aluOp, rd, rn uint32, imm12 uint16, shiftBit byte, _64bit bool) uint32 {
	var _31to24 uint32
	switch op {
	case aluOpAdd:
		_31to24 = 0b00_10001
	case aluOpAddS:
		_31to24 = 0b01_10001
	case aluOpSub:
		_31to24 = 0b10_10001
	case aluOpSubS:
		_31to24 = 0b11_10001
	default:
		panic("BUG")
	}
	if _64bit {
		_31to24 |= 0b1 << 7
	}
	return _31to24<<24 | uint32(shiftBit)<<22 | uint32(imm12&0b111111111111)<<10 | rn<<5 | rd
}

// encodeAluRRRShift encodes as Data Processing (shifted register), depending on aluOp.
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en#addsub_shift
func encodeAluRRRShift(op aluOp, rd, rn, rm, amount uint32, shiftOp shiftOp, _64bit bool) uint32 {
	var shift uint32
	switch shiftOp {
	case shiftOpLSL:
		shift = 0b00
	case shiftOpLSR:
		shift = 0b01
	case shiftOpASR:
		shift = 0b10
	default:
		panic(shiftOp.String())
	}

	if sfOpc, n, ok := logicalOpc(op, _64bit); ok {
		return encodeLogicalShiftedRegister(sfOpc, shift<<1|n, rm, amount, rn, rd)
	}

	var _31to24 uint32
	switch op {
	case aluOpAdd:
		_31to24 = 0b00001011
	case aluOpAddS:
		_31to24 = 0b00101011
	case aluOpSub:
		_31to24 = 0b01001011
	case aluOpSubS:
		_31to24 = 0b01101011
	default:
		panic(op.String())
	}

	if _64bit {
		_31to24 |= 0b1 << 7
	}
	return _31to24<<24 | shift<<22 | rm<<16 | (amount << 10) | (rn << 5) | rd
}

// encodeAluRRRExtend encodes as Add/subtract (extended register) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en#addsub_ext
func encodeAluRRRExtend(op aluOp, rd, rn, rm uint32, extOp extendOp, amount uint32, _64bit bool) uint32 {
	var _31to21 uint32
	switch op {
	case aluOpAdd:
		_31to21 = 0b00001011_001
	case aluOpAddS:
		_31to21 = 0b00101011_001
	case aluOpSub:
		_31to21 = 0b01001011_001
	case aluOpSubS:
		_31to21 = 0b01101011_001
	default:
		panic(op.String())
	}
	if _64bit {
		_31to21 |= 0b1 << 10
	}
	return _31to21<<21 | rm<<16 | uint32(extOp)<<13 | amount<<10 | rn<<5 | rd
}

// logicalOpc returns the sf:opc and N fields of Logical (shifted register) for logical operations.
func logicalOpc(op aluOp, _64bit bool) (sfOpc, n uint32, ok bool) {
	switch op {
	case aluOpAnd:
		sfOpc, n = 0b00, 0
	case aluOpBic:
		sfOpc, n = 0b00, 1
	case aluOpOrr:
		sfOpc, n = 0b01, 0
	case aluOpOrn:
		sfOpc, n = 0b01, 1
	case aluOpEor:
		sfOpc, n = 0b10, 0
	case aluOpAnds:
		sfOpc, n = 0b11, 0
	default:
		return 0, 0, false
	}
	if _64bit {
		sfOpc |= 0b100
	}
	return sfOpc, n, true
}

// encodeAluRRR encodes as Data Processing (register), depending on aluOp.
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en
func encodeAluRRR(op aluOp, rd, rn, rm uint32, _64bit, isRnSp bool) uint32 {
	if sfOpc, n, ok := logicalOpc(op, _64bit); ok {
		return encodeLogicalShiftedRegister(sfOpc, n, rm, 0, rn, rd)
	}

	var _31to21, _15to10 uint32
	switch op {
	case aluOpAdd:
		if isRnSp {
			// "Extended register" with UXTX.
			_31to21 = 0b00001011_001
			_15to10 = 0b011000
		} else {
			// "Shifted register" with shift = 0
			_31to21 = 0b00001011_000
		}
	case aluOpAddS:
		if isRnSp {
			_31to21 = 0b00101011_001
			_15to10 = 0b011000
		} else {
			// "Shifted register" with shift = 0
			_31to21 = 0b00101011_000
		}
	case aluOpSub:
		if isRnSp {
			// "Extended register" with UXTX.
			_31to21 = 0b01001011_001
			_15to10 = 0b011000
		} else {
			// "Shifted register" with shift = 0
			_31to21 = 0b01001011_000
		}
	case aluOpSubS:
		if isRnSp {
			_31to21 = 0b01101011_001
			_15to10 = 0b011000
		} else {
			// "Shifted register" with shift = 0
			_31to21 = 0b01101011_000
		}
	case aluOpLsl, aluOpAsr, aluOpLsr, aluOpRotR, aluOpUDiv, aluOpSDiv:
		// "Data-processing (2 source)".
		_31to21 = 0b00011010_110
		switch op {
		case aluOpLsl:
			_15to10 = 0b001000
		case aluOpLsr:
			_15to10 = 0b001001
		case aluOpAsr:
			_15to10 = 0b001010
		case aluOpRotR:
			_15to10 = 0b001011
		case aluOpUDiv:
			_15to10 = 0b000010
		case aluOpSDiv:
			_15to10 = 0b000011
		}
	default:
		panic(op.String())
	}
	if _64bit {
		_31to21 |= 0b1 << 10
	}
	return _31to21<<21 | rm<<16 | (_15to10 << 10) | (rn << 5) | rd
}

// encodeLogicalShiftedRegister encodes as Logical (shifted register) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Register?lang=en
func encodeLogicalShiftedRegister(sf_opc uint32, shift_N uint32, rm uint32, imm6 uint32, rn, rd uint32) (ret uint32) {
	ret = sf_opc << 29
	ret |= 0b01010 << 24
	ret |= shift_N << 21
	ret |= rm << 16
	ret |= imm6 << 10
	ret |= rn << 5
	ret |= rd
	return
}

// encodeAddSubtractImmediate encodes as Add/subtract (immediate) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Immediate?lang=en
func encodeAddSubtractImmediate(sf_op_s uint32, sh uint32, imm12 uint32, rn, rd uint32) (ret uint32) {
	ret = sf_op_s << 29
	ret |= 0b100010 << 23
	ret |= sh << 22
	ret |= imm12 << 10
	ret |= rn << 5
	ret |= rd
	return
}

// encodePreOrPostIndexLoadStorePair64 encodes as Load/store pair (pre/post-indexed) in
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDP--Load-Pair-of-Registers-
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/STP--Store-Pair-of-Registers-
func encodePreOrPostIndexLoadStorePair64(pre bool, load bool, rn, rt, rt2 uint32, imm7 int64) (ret uint32) {
	if imm7%8 != 0 {
		panic("imm7 for pair load/store must be a multiple of 8")
	}
	imm7 /= 8
	ret = rt
	ret |= rn << 5
	ret |= rt2 << 10
	ret |= (uint32(imm7) & 0b1111111) << 15
	if load {
		ret |= 0b1 << 22
	}
	ret |= 0b101010001 << 23
	if pre {
		ret |= 0b1 << 24
	}
	return
}

// encodeUnconditionalBranch encodes as B or BL instructions:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/B--Branch-
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/BL--Branch-with-Link-
func encodeUnconditionalBranch(link bool, imm26 int64) (ret uint32) {
	if imm26%4 != 0 {
		panic("imm26 for branch must be a multiple of 4")
	}
	imm26 /= 4
	ret = uint32(imm26 & 0b11_11111111_11111111_11111111)
	ret |= 0b101 << 26
	if link {
		ret |= 0b1 << 31
	}
	return
}

// encodeCBZCBNZ encodes as either CBZ or CBNZ:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CBZ--Compare-and-Branch-on-Zero-
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CBNZ--Compare-and-Branch-on-Nonzero-
func encodeCBZCBNZ(rt uint32, nz bool, imm19 uint32, _64bit bool) (ret uint32) {
	ret = rt
	ret |= imm19 << 5
	if nz {
		ret |= 1 << 24
	}
	ret |= 0b11010 << 25
	if _64bit {
		ret |= 1 << 31
	}
	return
}

// encodeMoveWideImmediate encodes as either MOVZ, MOVN or MOVK, as Move wide (immediate) in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Immediate?lang=en
//
// "shift" must have been divided by 16 at this point.
func encodeMoveWideImmediate(opc uint32, rd uint32, imm, shift, _64bit uint64) (ret uint32) {
	ret = rd
	ret |= uint32(imm&0xffff) << 5
	ret |= (uint32(shift)) << 21
	ret |= 0b100101 << 23
	ret |= opc << 29
	ret |= uint32(_64bit) << 31
	return
}

// encodeAluRRImm encodes as "Bitfield" in
// https://developer.arm.com/documentation/ddi0596/2020-12/Index-by-Encoding/Data-Processing----Immediate?lang=en#log_imm
func encodeAluRRImm(op aluOp, rd, rn, amount, _64bit uint32) uint32 {
	var opc uint32
	var immr, imms uint32
	switch op {
	case aluOpLsl:
		// LSL (immediate) is an alias for UBFM.
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/UBFM--Unsigned-Bitfield-Move-?lang=en
		opc = 0b10
		if _64bit == 1 {
			immr = (64 - amount) & 63
			imms = 63 - amount
		} else {
			immr = (32 - amount) & 31
			imms = 31 - amount
		}
	case aluOpLsr:
		// LSR (immediate) is an alias for UBFM.
		// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LSR--immediate---Logical-Shift-Right--immediate---an-alias-of-UBFM-?lang=en
		opc = 0b10
		imms, immr = 0b011111|_64bit<<5, amount
	case aluOpAsr:
		// ASR (immediate) is an alias for SBFM.
		// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/SBFM--Signed-Bitfield-Move-?lang=en
		opc = 0b00
		imms, immr = 0b011111|_64bit<<5, amount
	default:
		panic(op.String())
	}
	return _64bit<<31 | opc<<29 | 0b100110<<23 | _64bit<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

// atomicSizeField returns the size field of load/store exclusive and atomic memory operations.
func atomicSizeField(size uint64) uint32 {
	switch size {
	case 1:
		return 0b00
	case 2:
		return 0b01
	case 4:
		return 0b10
	case 8:
		return 0b11
	}
	panic("BUG")
}

// encodeAtomicRmw encodes as Atomic memory operations in
// https://developer.arm.com/documentation/ddi0596/2021-12/Index-by-Encoding/Loads-and-Stores?lang=en#memop
//
// e.g. https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDADD--LDADDA--LDADDAL--LDADDL--Atomic-add-on-word-or-doubleword-in-memory-
func encodeAtomicRmw(op atomicRmwOp, rs, rn, rt uint32, size uint64, order atomicOrder) uint32 {
	var o3, opc uint32
	if op == atomicRmwOpSwp {
		o3, opc = 0b1, 0b000
	} else {
		opc = uint32(op)
	}
	var a, r uint32
	if order.acquire() {
		a = 1
	}
	if order.release() {
		r = 1
	}
	return atomicSizeField(size)<<30 | 0b111000<<24 | a<<23 | r<<22 | 0b1<<21 | rs<<16 | o3<<15 | opc<<12 | rn<<5 | rt
}

// encodeAtomicCas encodes as CAS, CASA, CASAL, CASL and their byte and halfword variants:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CAS--CASA--CASAL--CASL--Compare-and-Swap-word-or-doubleword-in-memory-
func encodeAtomicCas(rs, rt, rn uint32, size uint64, order atomicOrder) uint32 {
	var l, o0 uint32
	if order.acquire() {
		l = 1
	}
	if order.release() {
		o0 = 1
	}
	return atomicSizeField(size)<<30 | 0b0010001<<23 | l<<22 | 0b1<<21 | rs<<16 | o0<<15 | 0b11111<<10 | rn<<5 | rt
}

// encodeLoadStoreOrdered encodes as LDAR or STLR:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDAR--Load-Acquire-Register-
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/STLR--Store-Release-Register-
func encodeLoadStoreOrdered(load bool, rt, rn uint32, size uint64) uint32 {
	var l uint32
	if load {
		l = 1
	}
	return atomicSizeField(size)<<30 | 0b0010001<<23 | l<<22 | 0b11111<<16 | 0b1<<15 | 0b11111<<10 | rn<<5 | rt
}

// encodeLoadExclusive encodes as LDXR or LDAXR:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDAXR--Load-Acquire-Exclusive-Register-
func encodeLoadExclusive(rt, rn uint32, size uint64, acquire bool) uint32 {
	var o0 uint32
	if acquire {
		o0 = 1
	}
	return atomicSizeField(size)<<30 | 0b001000<<24 | 0b1<<22 | 0b11111<<16 | o0<<15 | 0b11111<<10 | rn<<5 | rt
}

// encodeStoreExclusive encodes as STXR or STLXR:
// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/STLXR--Store-Release-Exclusive-Register-
func encodeStoreExclusive(rs, rt, rn uint32, size uint64, release bool) uint32 {
	var o0 uint32
	if release {
		o0 = 1
	}
	return atomicSizeField(size)<<30 | 0b001000<<24 | rs<<16 | o0<<15 | 0b11111<<10 | rn<<5 | rt
}

func encodeRet() uint32 {
	// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/RET--Return-from-subroutine-?lang=en
	return 0b1101011001011111<<16 | regNumberInEncoding[lr]<<5
}
