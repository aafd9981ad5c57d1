package arm64

import (
	"fmt"
	"math"
	"strings"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

type (
	// instruction represents either a real instruction in arm64, or the meta instructions
	// that are convenient for code generation. For example, wide constants and atomic retry
	// loops are also treated as instructions.
	//
	// Each instruction knows how to get encoded in binaries. Hence, the final output of compilation
	// can be considered equivalent to the sequence of such instructions.
	//
	// Each field is interpreted depending on the kind. Registers are physical since the
	// allocation happens while lowering.
	instruction struct {
		kind           instructionKind
		u1, u2, u3     uint64
		rd, rn, rm, ra regalloc.RealReg
		amode          addressMode
		// imm is the resolved byte offset of br and condBr, relative to the branch itself.
		imm   int64
		words []uint32
	}

	// instructionKind represents the kind of instruction.
	// This controls how the instruction struct is interpreted.
	instructionKind int
)

const (
	// nop0 represents a no-op of zero size. Spill markers and block starts are nop0 until patched.
	nop0 instructionKind = iota + 1
	// aluRRR represents an ALU operation with two register sources and a register destination.
	aluRRR
	// aluRRRR represents an ALU operation with three register sources and a register destination.
	aluRRRR
	// aluRRImm12 represents an ALU operation with a register source and an immediate-12 source, with a register destination.
	aluRRImm12
	// aluRRBitmaskImm represents an ALU operation with a register source and a bitmask immediate, with a register destination.
	aluRRBitmaskImm
	// aluRRImmShift represents an ALU operation with a register source and an immediate-shifted source, with a register destination.
	aluRRImmShift
	// aluRRRShift represents an ALU operation with two register sources, one of which can be shifted, with a register destination.
	aluRRRShift
	// aluRRRExtend represents an ALU operation with two register sources, one of which can be extended, with a register destination.
	aluRRRExtend
	// bitRR represents a bit op instruction with a single register source.
	bitRR
	// uLoad8 represents an unsigned 8-bit load.
	uLoad8
	// sLoad8 represents a signed 8-bit load into 64-bit register.
	sLoad8
	// uLoad16 represents an unsigned 16-bit load into 64-bit register.
	uLoad16
	// sLoad16 represents a signed 16-bit load into 64-bit register.
	sLoad16
	// uLoad32 represents an unsigned 32-bit load into 64-bit register.
	uLoad32
	// sLoad32 represents a signed 32-bit load into 64-bit register.
	sLoad32
	// uLoad64 represents a 64-bit load.
	uLoad64
	// store8 represents an 8-bit store.
	store8
	// store16 represents a 16-bit store.
	store16
	// store32 represents a 32-bit store.
	store32
	// store64 represents a 64-bit store.
	store64
	// storeP64 represents a store of a pair of registers.
	storeP64
	// loadP64 represents a load of a pair of registers.
	loadP64
	// mov64 represents a MOV instruction. These are encoded as ORR's but we keep them separate for better handling.
	mov64
	// mov32 represents a 32-bit MOV. This zeroes the top 32 bits of the destination.
	mov32
	// movZ represents a MOVZ with a 16-bit immediate.
	movZ
	// movN represents a MOVN with a 16-bit immediate.
	movN
	// movK represents a MOVK with a 16-bit immediate.
	movK
	// extend represents a sign- or zero-extend operation.
	extend
	// cSel represents a conditional-select operation.
	cSel
	// cSet represents a conditional-set operation.
	cSet
	// fpuMov64 represents a FPU move.
	fpuMov64
	// fpuRR represents a 1-op FPU instruction.
	fpuRR
	// fpuRRR represents a 2-op FPU instruction.
	fpuRRR
	// fpuCmp represents a FPU comparison, either 32 or 64 bit.
	fpuCmp
	// fpuLoad32 represents a floating-point load, single-precision (32 bit).
	fpuLoad32
	// fpuStore32 represents a floating-point store, single-precision (32 bit).
	fpuStore32
	// fpuLoad64 represents a floating-point load, double-precision (64 bit).
	fpuLoad64
	// fpuStore64 represents a floating-point store, double-precision (64 bit).
	fpuStore64
	// fpuToInt represents a conversion from FP to integer.
	fpuToInt
	// intToFpu represents a conversion from integer to FP.
	intToFpu
	// fpuCSel represents a FP conditional select.
	fpuCSel
	// movToFpu represents a move from a GPR to a scalar FP register.
	movToFpu
	// movFromFpu represents a move from a scalar FP register to a GPR.
	movFromFpu
	// loadConst loads an arbitrary 64-bit constant with a MOVZ/MOVN and MOVKs.
	loadConst
	// loadFpuConst loads an arbitrary floating-point constant from a literal in the instruction stream.
	loadFpuConst
	// call represents a machine call instruction to a symbol, resolved by a relocation.
	call
	// callInd represents a machine indirect-call instruction.
	callInd
	// ret represents a machine return instruction.
	ret
	// epilogue restores the callee-saved registers and the frame, then returns.
	// It is expanded by the encoder once the frame is finalized.
	epilogue
	// br represents an unconditional branch.
	br
	// condBr represents a conditional branch.
	condBr
	// brk represents a breakpoint with a 16-bit immediate.
	brk
	// udf is the permanently undefined instruction.
	udf
	// atomicRmw represents an LSE atomic read-modify-write: LDADD, LDCLR, LDEOR, LDSET, LD{S,U}{MAX,MIN} and SWP.
	atomicRmw
	// atomicCas represents an LSE compare-and-swap.
	atomicCas
	// atomicLoad represents a load-acquire (LDAR).
	atomicLoad
	// atomicStore represents a store-release (STLR).
	atomicStore
	// loadExclusive represents LDXR or LDAXR.
	loadExclusive
	// storeExclusive represents STXR or STLXR.
	storeExclusive
	// clrex clears the local exclusive monitor.
	clrex
	// dmb represents a data memory barrier.
	dmb
	// atomicRmwLoop is a read-modify-write implemented with an exclusive load/store retry loop.
	atomicRmwLoop
	// atomicCasLoop is a compare-and-swap implemented with an exclusive load/store retry loop.
	atomicCasLoop
	// rawWords emits pre-encoded words as-is.
	rawWords

	// ------------------- do not define below this line -------------------
	numInstructionKinds
)

func (i *instruction) asNop0() {
	i.kind = nop0
}

func (i *instruction) asCall(sym ir.SymbolID) {
	i.kind = call
	i.u1 = uint64(sym)
}

func (i *instruction) asCallIndirect(ptr regalloc.RealReg) {
	i.kind = callInd
	i.rn = ptr
}

func (i *instruction) callSymbol() ir.SymbolID {
	return ir.SymbolID(i.u1)
}

// shift must be divided by 16 and must be in range 0-3 (if dst64bit is true) or 0-1 (if dst64bit is false)
func (i *instruction) asMOVZ(dst regalloc.RealReg, imm uint64, shift uint64, dst64bit bool) {
	i.kind = movZ
	i.rd = dst
	i.u1 = imm
	i.u2 = shift
	if dst64bit {
		i.u3 = 1
	}
}

// shift must be divided by 16 and must be in range 0-3 (if dst64bit is true) or 0-1 (if dst64bit is false)
func (i *instruction) asMOVK(dst regalloc.RealReg, imm uint64, shift uint64, dst64bit bool) {
	i.kind = movK
	i.rd = dst
	i.u1 = imm
	i.u2 = shift
	if dst64bit {
		i.u3 = 1
	}
}

// shift must be divided by 16 and must be in range 0-3 (if dst64bit is true) or 0-1 (if dst64bit is false)
func (i *instruction) asMOVN(dst regalloc.RealReg, imm uint64, shift uint64, dst64bit bool) {
	i.kind = movN
	i.rd = dst
	i.u1 = imm
	i.u2 = shift
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asLoadConst(dst regalloc.RealReg, v uint64, dst64bit bool) {
	i.kind = loadConst
	i.rd = dst
	i.u1 = v
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asLoadFpuConst(dst regalloc.RealReg, raw uint64, dst64bit bool) {
	i.kind = loadFpuConst
	i.rd = dst
	i.u1 = raw
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asRet() {
	i.kind = ret
}

func (i *instruction) asEpilogue() {
	i.kind = epilogue
}

func (i *instruction) asStorePair64(src1, src2 regalloc.RealReg, amode addressMode) {
	i.kind = storeP64
	i.rn = src1
	i.rm = src2
	i.amode = amode
}

func (i *instruction) asLoadPair64(dst1, dst2 regalloc.RealReg, amode addressMode) {
	i.kind = loadP64
	i.rn = dst1
	i.rm = dst2
	i.amode = amode
}

func (i *instruction) asStore(src regalloc.RealReg, amode addressMode, sizeInBits byte) {
	switch sizeInBits {
	case 8:
		i.kind = store8
	case 16:
		i.kind = store16
	case 32:
		if regTypeOf(src) == regalloc.RegTypeInt {
			i.kind = store32
		} else {
			i.kind = fpuStore32
		}
	case 64:
		if regTypeOf(src) == regalloc.RegTypeInt {
			i.kind = store64
		} else {
			i.kind = fpuStore64
		}
	default:
		panic(fmt.Sprintf("BUG: store of %d bits", sizeInBits))
	}
	i.rn = src
	i.amode = amode
}

func (i *instruction) asSLoad(dst regalloc.RealReg, amode addressMode, sizeInBits byte) {
	switch sizeInBits {
	case 8:
		i.kind = sLoad8
	case 16:
		i.kind = sLoad16
	case 32:
		i.kind = sLoad32
	default:
		panic("BUG")
	}
	i.rd = dst
	i.amode = amode
}

func (i *instruction) asULoad(dst regalloc.RealReg, amode addressMode, sizeInBits byte) {
	switch sizeInBits {
	case 8:
		i.kind = uLoad8
	case 16:
		i.kind = uLoad16
	case 32:
		i.kind = uLoad32
	case 64:
		i.kind = uLoad64
	default:
		panic("BUG")
	}
	i.rd = dst
	i.amode = amode
}

func (i *instruction) asFpuLoad(dst regalloc.RealReg, amode addressMode, sizeInBits byte) {
	switch sizeInBits {
	case 32:
		i.kind = fpuLoad32
	case 64:
		i.kind = fpuLoad64
	default:
		panic("BUG")
	}
	i.rd = dst
	i.amode = amode
}

func (i *instruction) asCSet(rd regalloc.RealReg, c condFlag, _64bit bool) {
	i.kind = cSet
	i.rd = rd
	i.u1 = uint64(c)
	if _64bit {
		i.u3 = 1
	}
}

func (i *instruction) asCSel(rd, rn, rm regalloc.RealReg, c condFlag, _64bit bool) {
	i.kind = cSel
	i.rd, i.rn, i.rm = rd, rn, rm
	i.u1 = uint64(c)
	if _64bit {
		i.u3 = 1
	}
}

func (i *instruction) asFpuCSel(rd, rn, rm regalloc.RealReg, c condFlag, _64bit bool) {
	i.kind = fpuCSel
	i.rd, i.rn, i.rm = rd, rn, rm
	i.u1 = uint64(c)
	if _64bit {
		i.u3 = 1
	}
}

func (i *instruction) asBr(target ir.Index) {
	i.kind = br
	i.u1 = uint64(target)
}

func (i *instruction) brTarget() ir.Index {
	return ir.Index(i.u1)
}

// asCondBr encodes a conditional branch instruction. is64bit is only needed when cond is not flag.
func (i *instruction) asCondBr(c cond, target ir.Index, is64bit bool) {
	i.kind = condBr
	i.u1 = c.asUint64()
	i.u2 = uint64(target)
	if is64bit {
		i.u3 = 1
	}
}

func (i *instruction) condBrTarget() ir.Index {
	return ir.Index(i.u2)
}

func (i *instruction) condBrCond() cond {
	return cond(i.u1)
}

func (i *instruction) condBr64bit() bool {
	return i.u3 == 1
}

// branchTarget returns the target block of br and condBr.
func (i *instruction) branchTarget() ir.Index {
	if i.kind == br {
		return i.brTarget()
	}
	return i.condBrTarget()
}

// resolveBranch is called when the offset of the target block is known.
func (i *instruction) resolveBranch(offset int64) {
	i.imm = offset
}

func (i *instruction) asFpuCmp(rn, rm regalloc.RealReg, is64bit bool) {
	i.kind = fpuCmp
	i.rn, i.rm = rn, rm
	if is64bit {
		i.u3 = 1
	}
}

// asALU setups a basic ALU instruction with two register sources.
func (i *instruction) asALU(aluOp aluOp, rd, rn, rm regalloc.RealReg, dst64bit bool) {
	i.kind = aluRRR
	i.u1 = uint64(aluOp)
	i.rd, i.rn, i.rm = rd, rn, rm
	if dst64bit {
		i.u3 = 1
	}
}

// asALUImm12 setups an add/sub with the immediate imm12 << (12*shiftBit).
func (i *instruction) asALUImm12(aluOp aluOp, rd, rn regalloc.RealReg, imm12 uint16, shiftBit byte, dst64bit bool) {
	i.kind = aluRRImm12
	i.u1 = uint64(aluOp)
	i.rd, i.rn = rd, rn
	i.u2 = uint64(imm12) | uint64(shiftBit)<<12
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) imm12() (imm12 uint16, shiftBit byte) {
	return uint16(i.u2 & 0xfff), byte(i.u2 >> 12 & 1)
}

// asALUShiftedReg setups "op rd, rn, rm, shiftOp #amount".
func (i *instruction) asALUShiftedReg(aluOp aluOp, rd, rn, rm regalloc.RealReg, sop shiftOp, amount byte, dst64bit bool) {
	i.kind = aluRRRShift
	i.u1 = uint64(aluOp)
	i.rd, i.rn, i.rm = rd, rn, rm
	i.u2 = uint64(amount) | uint64(sop)<<8
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) shiftedReg() (sop shiftOp, amount byte) {
	return shiftOp(i.u2 >> 8), byte(i.u2)
}

// asALUExtendedReg setups "op rd, rn, rm, extOp #amount". rn and rd may be sp.
func (i *instruction) asALUExtendedReg(aluOp aluOp, rd, rn, rm regalloc.RealReg, ext extendOp, amount byte, dst64bit bool) {
	i.kind = aluRRRExtend
	i.u1 = uint64(aluOp)
	i.rd, i.rn, i.rm = rd, rn, rm
	i.u2 = uint64(ext) | uint64(amount)<<8
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) extendedReg() (ext extendOp, amount byte) {
	return extendOp(i.u2), byte(i.u2 >> 8)
}

func (i *instruction) asALURRRR(aluOp aluOp, rd, rn, rm, ra regalloc.RealReg, dst64bit bool) {
	i.kind = aluRRRR
	i.u1 = uint64(aluOp)
	i.rd, i.rn, i.rm, i.ra = rd, rn, rm, ra
	if dst64bit {
		i.u3 = 1
	}
}

// asALUShift setups a shift by an immediate amount.
func (i *instruction) asALUShift(aluOp aluOp, rd, rn regalloc.RealReg, amount uint64, dst64bit bool) {
	i.kind = aluRRImmShift
	i.u1 = uint64(aluOp)
	i.rd, i.rn = rd, rn
	i.u2 = amount
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asALUBitmaskImm(aluOp aluOp, rd, rn regalloc.RealReg, imm uint64, dst64bit bool) {
	i.kind = aluRRBitmaskImm
	i.u1 = uint64(aluOp)
	i.rn, i.rd = rn, rd
	i.u2 = imm
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asBitRR(bitOp bitOp, rd, rn regalloc.RealReg, is64bit bool) {
	i.kind = bitRR
	i.rn, i.rd = rn, rd
	i.u1 = uint64(bitOp)
	if is64bit {
		i.u3 = 1
	}
}

func (i *instruction) asFpuRRR(op fpuBinOp, rd, rn, rm regalloc.RealReg, dst64bit bool) {
	i.kind = fpuRRR
	i.u1 = uint64(op)
	i.rd, i.rn, i.rm = rd, rn, rm
	if dst64bit {
		i.u3 = 1
	}
}

// asFpuRR setups a one-source FPU operation. For conversions between precisions, src64bit is
// the precision of the source.
func (i *instruction) asFpuRR(op fpuUniOp, rd, rn regalloc.RealReg, src64bit bool) {
	i.kind = fpuRR
	i.u1 = uint64(op)
	i.rd, i.rn = rd, rn
	if src64bit {
		i.u3 = 1
	}
}

func (i *instruction) asExtend(rd, rn regalloc.RealReg, fromBits, toBits byte, signed bool) {
	i.kind = extend
	i.rn, i.rd = rn, rd
	i.u1 = uint64(fromBits)
	i.u2 = uint64(toBits)
	if signed {
		i.u3 = 1
	}
}

func (i *instruction) asMove32(rd, rn regalloc.RealReg) {
	i.kind = mov32
	i.rn, i.rd = rn, rd
}

func (i *instruction) asMove64(rd, rn regalloc.RealReg) {
	i.kind = mov64
	i.rn, i.rd = rn, rd
}

func (i *instruction) asFpuMov64(rd, rn regalloc.RealReg) {
	i.kind = fpuMov64
	i.rn, i.rd = rn, rd
}

func (i *instruction) asMovToFpu(rd, rn regalloc.RealReg, is64bit bool) {
	i.kind = movToFpu
	i.rd, i.rn = rd, rn
	if is64bit {
		i.u3 = 1
	}
}

func (i *instruction) asMovFromFpu(rd, rn regalloc.RealReg, is64bit bool) {
	i.kind = movFromFpu
	i.rd, i.rn = rd, rn
	if is64bit {
		i.u3 = 1
	}
}

func (i *instruction) asFpuToInt(rd, rn regalloc.RealReg, signed, src64bit, dst64bit bool) {
	i.kind = fpuToInt
	i.rd, i.rn = rd, rn
	if signed {
		i.u1 = 1
	}
	if src64bit {
		i.u2 = 1
	}
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asIntToFpu(rd, rn regalloc.RealReg, signed, src64bit, dst64bit bool) {
	i.kind = intToFpu
	i.rd, i.rn = rd, rn
	if signed {
		i.u1 = 1
	}
	if src64bit {
		i.u2 = 1
	}
	if dst64bit {
		i.u3 = 1
	}
}

func (i *instruction) asBrk(imm uint16) {
	i.kind = brk
	i.u1 = uint64(imm)
}

func (i *instruction) asUDF() {
	i.kind = udf
}

// asAtomicRmw setups an LSE read-modify-write of size bytes at [rn]: rd receives the
// previous value and rs is the operand.
func (i *instruction) asAtomicRmw(op atomicRmwOp, rd, rs, rn regalloc.RealReg, size uint64, order atomicOrder) {
	i.kind = atomicRmw
	i.u1 = uint64(op)
	i.rd, i.rm, i.rn = rd, rs, rn
	i.u2 = size
	i.u3 = uint64(order)
}

// asAtomicCas setups an LSE compare-and-swap of size bytes at [rn]: rs holds the expected
// value and receives the previous one, rt is the replacement.
func (i *instruction) asAtomicCas(rs, rt, rn regalloc.RealReg, size uint64, order atomicOrder) {
	i.kind = atomicCas
	i.rd, i.rm, i.rn = rs, rt, rn
	i.u2 = size
	i.u3 = uint64(order)
}

func (i *instruction) asAtomicLoad(rd, rn regalloc.RealReg, size uint64) {
	i.kind = atomicLoad
	i.rd, i.rn = rd, rn
	i.u2 = size
}

func (i *instruction) asAtomicStore(rt, rn regalloc.RealReg, size uint64) {
	i.kind = atomicStore
	i.rm, i.rn = rt, rn
	i.u2 = size
}

func (i *instruction) asLoadExclusive(rd, rn regalloc.RealReg, size uint64, acquire bool) {
	i.kind = loadExclusive
	i.rd, i.rn = rd, rn
	i.u2 = size
	if acquire {
		i.u3 = 1
	}
}

func (i *instruction) asStoreExclusive(status, rt, rn regalloc.RealReg, size uint64, release bool) {
	i.kind = storeExclusive
	i.rd, i.rm, i.rn = status, rt, rn
	i.u2 = size
	if release {
		i.u3 = 1
	}
}

func (i *instruction) asClrex() {
	i.kind = clrex
}

func (i *instruction) asDMB(option dmbOption) {
	i.kind = dmb
	i.u1 = uint64(option)
}

// asAtomicRmwLoop setups a read-modify-write retry loop. rd receives the previous value, rm
// is the operand and ra is a scratch register for the new value.
func (i *instruction) asAtomicRmwLoop(op ir.AtomicOp, signed bool, rd, rn, rm, ra regalloc.RealReg, size uint64, order atomicOrder) {
	i.kind = atomicRmwLoop
	i.u1 = uint64(op)
	if signed {
		i.u1 |= 1 << 8
	}
	i.rd, i.rn, i.rm, i.ra = rd, rn, rm, ra
	i.u2 = size
	i.u3 = uint64(order)
}

func (i *instruction) rmwLoopOp() (op ir.AtomicOp, signed bool) {
	return ir.AtomicOp(i.u1 & 0xff), i.u1>>8&1 == 1
}

// asAtomicCasLoop setups a compare-and-swap retry loop. rd receives the previous value, rm is
// the expected value and ra the replacement. The flags hold eq on success.
func (i *instruction) asAtomicCasLoop(rd, rn, rm, ra regalloc.RealReg, size uint64, order atomicOrder) {
	i.kind = atomicCasLoop
	i.rd, i.rn, i.rm, i.ra = rd, rn, rm, ra
	i.u2 = size
	i.u3 = uint64(order)
}

func (i *instruction) asRawWords(words []uint32) {
	i.kind = rawWords
	i.words = words
}

func (i *instruction) isBranch() bool {
	return i.kind == br || i.kind == condBr
}

// String implements fmt.Stringer.
func (i *instruction) String() (str string) {
	is64SizeBitToSize := func(u3 uint64) byte {
		if u3 == 0 {
			return 32
		}
		return 64
	}

	switch i.kind {
	case nop0:
		str = "nop0"
	case aluRRR:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("%s %s, %s, %s", aluOp(i.u1).String(),
			formatRegSized(i.rd, size), formatRegSized(i.rn, size), formatRegSized(i.rm, size))
	case aluRRRR:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("%s %s, %s, %s, %s", aluOp(i.u1).String(),
			formatRegSized(i.rd, size), formatRegSized(i.rn, size), formatRegSized(i.rm, size), formatRegSized(i.ra, size))
	case aluRRImm12:
		size := is64SizeBitToSize(i.u3)
		v, shiftBit := i.imm12()
		if shiftBit == 1 {
			str = fmt.Sprintf("%s %s, %s, #%#x", aluOp(i.u1).String(),
				formatRegSized(i.rd, size), formatRegSized(i.rn, size), uint64(v)<<12)
		} else {
			str = fmt.Sprintf("%s %s, %s, #%#x", aluOp(i.u1).String(),
				formatRegSized(i.rd, size), formatRegSized(i.rn, size), v)
		}
	case aluRRBitmaskImm:
		size := is64SizeBitToSize(i.u3)
		rd, rn := formatRegSized(i.rd, size), formatRegSized(i.rn, size)
		if size == 32 {
			str = fmt.Sprintf("%s %s, %s, #%#x", aluOp(i.u1).String(), rd, rn, uint32(i.u2))
		} else {
			str = fmt.Sprintf("%s %s, %s, #%#x", aluOp(i.u1).String(), rd, rn, i.u2)
		}
	case aluRRImmShift:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("%s %s, %s, #%#x",
			aluOp(i.u1).String(),
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
			i.u2,
		)
	case aluRRRShift:
		size := is64SizeBitToSize(i.u3)
		sop, amount := i.shiftedReg()
		str = fmt.Sprintf("%s %s, %s, %s, %s #%d",
			aluOp(i.u1).String(),
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
			formatRegSized(i.rm, size),
			sop, amount,
		)
	case aluRRRExtend:
		ext, amount := i.extendedReg()
		size := is64SizeBitToSize(i.u3)
		rmSize := byte(32)
		if ext.srcBits() == 64 {
			rmSize = 64
		}
		str = fmt.Sprintf("%s %s, %s, %s, %s #%d", aluOp(i.u1).String(),
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
			formatRegSized(i.rm, rmSize),
			ext, amount,
		)
	case bitRR:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("%s %s, %s",
			bitOp(i.u1).String(),
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
		)
	case uLoad8:
		str = fmt.Sprintf("ldrb %s, %s", formatRegSized(i.rd, 32), i.amode.format(8))
	case sLoad8:
		str = fmt.Sprintf("ldrsb %s, %s", formatRegSized(i.rd, 64), i.amode.format(8))
	case uLoad16:
		str = fmt.Sprintf("ldrh %s, %s", formatRegSized(i.rd, 32), i.amode.format(16))
	case sLoad16:
		str = fmt.Sprintf("ldrsh %s, %s", formatRegSized(i.rd, 64), i.amode.format(16))
	case uLoad32:
		str = fmt.Sprintf("ldr %s, %s", formatRegSized(i.rd, 32), i.amode.format(32))
	case sLoad32:
		str = fmt.Sprintf("ldrsw %s, %s", formatRegSized(i.rd, 64), i.amode.format(32))
	case uLoad64:
		str = fmt.Sprintf("ldr %s, %s", formatRegSized(i.rd, 64), i.amode.format(64))
	case store8:
		str = fmt.Sprintf("strb %s, %s", formatRegSized(i.rn, 32), i.amode.format(8))
	case store16:
		str = fmt.Sprintf("strh %s, %s", formatRegSized(i.rn, 32), i.amode.format(16))
	case store32:
		str = fmt.Sprintf("str %s, %s", formatRegSized(i.rn, 32), i.amode.format(32))
	case store64:
		str = fmt.Sprintf("str %s, %s", formatRegSized(i.rn, 64), i.amode.format(64))
	case storeP64:
		str = fmt.Sprintf("stp %s, %s, %s",
			formatRegSized(i.rn, 64), formatRegSized(i.rm, 64), i.amode.format(64))
	case loadP64:
		str = fmt.Sprintf("ldp %s, %s, %s",
			formatRegSized(i.rn, 64), formatRegSized(i.rm, 64), i.amode.format(64))
	case mov64:
		str = fmt.Sprintf("mov %s, %s", formatRegSized(i.rd, 64), formatRegSized(i.rn, 64))
	case mov32:
		str = fmt.Sprintf("mov %s, %s", formatRegSized(i.rd, 32), formatRegSized(i.rn, 32))
	case movZ:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("movz %s, #%#x, lsl %d", formatRegSized(i.rd, size), uint16(i.u1), i.u2*16)
	case movN:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("movn %s, #%#x, lsl %d", formatRegSized(i.rd, size), uint16(i.u1), i.u2*16)
	case movK:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("movk %s, #%#x, lsl %d", formatRegSized(i.rd, size), uint16(i.u1), i.u2*16)
	case extend:
		fromBits, toBits := byte(i.u1), byte(i.u2)

		var signedStr string
		if i.u3 == 1 {
			signedStr = "s"
		} else {
			signedStr = "u"
		}
		var fromStr string
		switch fromBits {
		case 8:
			fromStr = "b"
		case 16:
			fromStr = "h"
		case 32:
			fromStr = "w"
		}
		str = fmt.Sprintf("%sxt%s %s, %s", signedStr, fromStr, formatRegSized(i.rd, toBits), formatRegSized(i.rn, 32))
	case cSel:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("csel %s, %s, %s, %s",
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
			formatRegSized(i.rm, size),
			condFlag(i.u1),
		)
	case cSet:
		str = fmt.Sprintf("cset %s, %s", formatRegSized(i.rd, is64SizeBitToSize(i.u3)), condFlag(i.u1))
	case fpuMov64:
		str = fmt.Sprintf("mov %s.8b, %s.8b", formatRegSized(i.rd, 128), formatRegSized(i.rn, 128))
	case fpuRR:
		size := is64SizeBitToSize(i.u3)
		dstSize := size
		switch fpuUniOp(i.u1) {
		case fpuUniOpCvt32To64:
			dstSize = 64
		case fpuUniOpCvt64To32:
			dstSize = 32
		}
		str = fmt.Sprintf("%s %s, %s", fpuUniOp(i.u1), formatRegSized(i.rd, dstSize), formatRegSized(i.rn, size))
	case fpuRRR:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("%s %s, %s, %s", fpuBinOp(i.u1).String(),
			formatRegSized(i.rd, size), formatRegSized(i.rn, size), formatRegSized(i.rm, size))
	case fpuCmp:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("fcmp %s, %s",
			formatRegSized(i.rn, size), formatRegSized(i.rm, size))
	case fpuLoad32:
		str = fmt.Sprintf("ldr %s, %s", formatRegSized(i.rd, 32), i.amode.format(32))
	case fpuStore32:
		str = fmt.Sprintf("str %s, %s", formatRegSized(i.rn, 32), i.amode.format(32))
	case fpuLoad64:
		str = fmt.Sprintf("ldr %s, %s", formatRegSized(i.rd, 64), i.amode.format(64))
	case fpuStore64:
		str = fmt.Sprintf("str %s, %s", formatRegSized(i.rn, 64), i.amode.format(64))
	case fpuToInt:
		var signed string
		if i.u1 == 1 {
			signed = "s"
		} else {
			signed = "u"
		}
		str = fmt.Sprintf("fcvtz%s %s, %s", signed,
			formatRegSized(i.rd, is64SizeBitToSize(i.u3)), formatRegSized(i.rn, is64SizeBitToSize(i.u2)))
	case intToFpu:
		var signed string
		if i.u1 == 1 {
			signed = "s"
		} else {
			signed = "u"
		}
		str = fmt.Sprintf("%scvtf %s, %s", signed,
			formatRegSized(i.rd, is64SizeBitToSize(i.u3)), formatRegSized(i.rn, is64SizeBitToSize(i.u2)))
	case fpuCSel:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("fcsel %s, %s, %s, %s",
			formatRegSized(i.rd, size),
			formatRegSized(i.rn, size),
			formatRegSized(i.rm, size),
			condFlag(i.u1),
		)
	case movToFpu:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("fmov %s, %s", formatRegSized(i.rd, size), formatRegSized(i.rn, size))
	case movFromFpu:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("fmov %s, %s", formatRegSized(i.rd, size), formatRegSized(i.rn, size))
	case loadConst:
		size := is64SizeBitToSize(i.u3)
		str = fmt.Sprintf("load_const %s, #%#x", formatRegSized(i.rd, size), i.u1)
	case loadFpuConst:
		if i.u3 == 1 {
			str = fmt.Sprintf("load_fpu_const %s, %v", formatRegSized(i.rd, 64), math.Float64frombits(i.u1))
		} else {
			str = fmt.Sprintf("load_fpu_const %s, %v", formatRegSized(i.rd, 32), math.Float32frombits(uint32(i.u1)))
		}
	case call:
		str = fmt.Sprintf("bl @%d", i.u1)
	case callInd:
		str = fmt.Sprintf("blr %s", formatRegSized(i.rn, 64))
	case ret:
		str = "ret"
	case epilogue:
		str = "epilogue"
	case br:
		str = fmt.Sprintf("b #%#x (%%%d)", i.imm, i.brTarget())
	case condBr:
		size := is64SizeBitToSize(i.u3)
		c := i.condBrCond()
		switch c.kind() {
		case condKindRegisterZero:
			str = fmt.Sprintf("cbz %s, #%#x (%%%d)", formatRegSized(c.register(), size), i.imm, i.condBrTarget())
		case condKindRegisterNotZero:
			str = fmt.Sprintf("cbnz %s, #%#x (%%%d)", formatRegSized(c.register(), size), i.imm, i.condBrTarget())
		case condKindCondFlagSet:
			str = fmt.Sprintf("b.%s #%#x (%%%d)", c.flag(), i.imm, i.condBrTarget())
		}
	case brk:
		str = fmt.Sprintf("brk #%#x", i.u1)
	case udf:
		str = "udf"
	case atomicRmw:
		size := atomicRegSize(i.u2)
		str = fmt.Sprintf("%s%s%s %s, %s, [%s]", atomicRmwOp(i.u1), atomicOrder(i.u3), atomicSizeSuffix(i.u2),
			formatRegSized(i.rm, size), formatRegSized(i.rd, size), formatRegSized(i.rn, 64))
	case atomicCas:
		size := atomicRegSize(i.u2)
		str = fmt.Sprintf("cas%s%s %s, %s, [%s]", atomicOrder(i.u3), atomicSizeSuffix(i.u2),
			formatRegSized(i.rd, size), formatRegSized(i.rm, size), formatRegSized(i.rn, 64))
	case atomicLoad:
		str = fmt.Sprintf("ldar%s %s, [%s]", atomicSizeSuffix(i.u2),
			formatRegSized(i.rd, atomicRegSize(i.u2)), formatRegSized(i.rn, 64))
	case atomicStore:
		str = fmt.Sprintf("stlr%s %s, [%s]", atomicSizeSuffix(i.u2),
			formatRegSized(i.rm, atomicRegSize(i.u2)), formatRegSized(i.rn, 64))
	case loadExclusive:
		a := ""
		if i.u3 == 1 {
			a = "a"
		}
		str = fmt.Sprintf("ld%sxr%s %s, [%s]", a, atomicSizeSuffix(i.u2),
			formatRegSized(i.rd, atomicRegSize(i.u2)), formatRegSized(i.rn, 64))
	case storeExclusive:
		l := ""
		if i.u3 == 1 {
			l = "l"
		}
		str = fmt.Sprintf("st%sxr%s %s, %s, [%s]", l, atomicSizeSuffix(i.u2), formatRegSized(i.rd, 32),
			formatRegSized(i.rm, atomicRegSize(i.u2)), formatRegSized(i.rn, 64))
	case clrex:
		str = "clrex"
	case dmb:
		str = fmt.Sprintf("dmb %s", dmbOption(i.u1))
	case atomicRmwLoop:
		op, _ := i.rmwLoopOp()
		size := atomicRegSize(i.u2)
		str = fmt.Sprintf("atomic_rmw_loop_%s%s %s, %s, [%s], tmp=%s", op, atomicSizeSuffix(i.u2),
			formatRegSized(i.rd, size), formatRegSized(i.rm, size), formatRegSized(i.rn, 64), formatRegSized(i.ra, size))
	case atomicCasLoop:
		size := atomicRegSize(i.u2)
		str = fmt.Sprintf("atomic_cas_loop%s %s, %s, %s, [%s]", atomicSizeSuffix(i.u2),
			formatRegSized(i.rd, size), formatRegSized(i.rm, size), formatRegSized(i.ra, size), formatRegSized(i.rn, 64))
	case rawWords:
		var sb strings.Builder
		sb.WriteString("words")
		for _, w := range i.words {
			fmt.Fprintf(&sb, " %#08x", w)
		}
		str = sb.String()
	default:
		panic(fmt.Sprintf("BUG: unknown instruction kind %d", i.kind))
	}
	return
}

// aluOp determines the type of ALU operation. Instructions whose kind is one of
// aluRRR, aluRRRR, aluRRImm12, aluRRBitmaskImm, aluRRImmShift, aluRRRShift and aluRRRExtend
// would use this type.
type aluOp int

func (a aluOp) String() string {
	switch a {
	case aluOpAdd:
		return "add"
	case aluOpSub:
		return "sub"
	case aluOpOrr:
		return "orr"
	case aluOpOrn:
		return "orn"
	case aluOpAnd:
		return "and"
	case aluOpAnds:
		return "ands"
	case aluOpBic:
		return "bic"
	case aluOpEor:
		return "eor"
	case aluOpAddS:
		return "adds"
	case aluOpSubS:
		return "subs"
	case aluOpSDiv:
		return "sdiv"
	case aluOpUDiv:
		return "udiv"
	case aluOpRotR:
		return "ror"
	case aluOpLsr:
		return "lsr"
	case aluOpAsr:
		return "asr"
	case aluOpLsl:
		return "lsl"
	case aluOpMAdd:
		return "madd"
	case aluOpMSub:
		return "msub"
	}
	panic(int(a))
}

const (
	// 32/64-bit Add.
	aluOpAdd aluOp = iota
	// 32/64-bit Subtract.
	aluOpSub
	// 32/64-bit Bitwise OR.
	aluOpOrr
	// 32/64-bit Bitwise OR NOT.
	aluOpOrn
	// 32/64-bit Bitwise AND.
	aluOpAnd
	// 32/64-bit Bitwise AND setting flags.
	aluOpAnds
	// 32/64-bit Bitwise AND NOT.
	aluOpBic
	// 32/64-bit Bitwise XOR (Exclusive OR).
	aluOpEor
	// 32/64-bit Add setting flags.
	aluOpAddS
	// 32/64-bit Subtract setting flags.
	aluOpSubS
	// 32/64-bit Signed divide.
	aluOpSDiv
	// 32/64-bit Unsigned divide.
	aluOpUDiv
	// 32/64-bit Rotate right.
	aluOpRotR
	// 32/64-bit Logical shift right.
	aluOpLsr
	// 32/64-bit Arithmetic shift right.
	aluOpAsr
	// 32/64-bit Logical shift left.
	aluOpLsl

	// MAdd and MSub are only applicable for aluRRRR.
	aluOpMAdd
	aluOpMSub
)

// bitOp determines the type of bitwise operation. Instructions whose kind is one of
// bitOpRbit and bitOpClz would use this type.
type bitOp int

func (b bitOp) String() string {
	switch b {
	case bitOpRbit:
		return "rbit"
	case bitOpClz:
		return "clz"
	}
	panic(int(b))
}

const (
	// 32/64-bit Rbit.
	bitOpRbit bitOp = iota
	// 32/64-bit Clz.
	bitOpClz
)

// fpuUniOp represents a unary floating-point unit (FPU) operation.
type fpuUniOp byte

const (
	fpuUniOpNeg fpuUniOp = iota
	fpuUniOpAbs
	fpuUniOpSqrt
	fpuUniOpCvt32To64
	fpuUniOpCvt64To32
)

// String implements the fmt.Stringer.
func (f fpuUniOp) String() string {
	switch f {
	case fpuUniOpNeg:
		return "fneg"
	case fpuUniOpAbs:
		return "fabs"
	case fpuUniOpSqrt:
		return "fsqrt"
	case fpuUniOpCvt32To64, fpuUniOpCvt64To32:
		return "fcvt"
	}
	panic(int(f))
}

// fpuBinOp represents a binary floating-point unit (FPU) operation.
type fpuBinOp byte

const (
	fpuBinOpAdd fpuBinOp = iota
	fpuBinOpSub
	fpuBinOpMul
	fpuBinOpDiv
	fpuBinOpMax
	fpuBinOpMin
)

// String implements the fmt.Stringer.
func (f fpuBinOp) String() string {
	switch f {
	case fpuBinOpAdd:
		return "fadd"
	case fpuBinOpSub:
		return "fsub"
	case fpuBinOpMul:
		return "fmul"
	case fpuBinOpDiv:
		return "fdiv"
	case fpuBinOpMax:
		return "fmax"
	case fpuBinOpMin:
		return "fmin"
	}
	panic(int(f))
}

type extendOp byte

const (
	extendOpUXTB extendOp = 0b000
	extendOpUXTH extendOp = 0b001
	extendOpUXTW extendOp = 0b010
	// extendOpUXTX does nothing, but convenient symbol that officially exists. See:
	// https://stackoverflow.com/questions/72041372/what-do-the-uxtx-and-sxtx-extensions-mean-for-32-bit-aarch64-adds-instruct
	extendOpUXTX extendOp = 0b011
	extendOpSXTB extendOp = 0b100
	extendOpSXTH extendOp = 0b101
	extendOpSXTW extendOp = 0b110
	// extendOpSXTX does nothing, but convenient symbol that officially exists. See:
	// https://stackoverflow.com/questions/72041372/what-do-the-uxtx-and-sxtx-extensions-mean-for-32-bit-aarch64-adds-instruct
	extendOpSXTX extendOp = 0b111
)

func (e extendOp) srcBits() byte {
	switch e {
	case extendOpUXTB, extendOpSXTB:
		return 8
	case extendOpUXTH, extendOpSXTH:
		return 16
	case extendOpUXTW, extendOpSXTW:
		return 32
	case extendOpUXTX, extendOpSXTX:
		return 64
	}
	panic(int(e))
}

func (e extendOp) String() string {
	switch e {
	case extendOpUXTB:
		return "uxtb"
	case extendOpUXTH:
		return "uxth"
	case extendOpUXTW:
		return "uxtw"
	case extendOpUXTX:
		return "uxtx"
	case extendOpSXTB:
		return "sxtb"
	case extendOpSXTH:
		return "sxth"
	case extendOpSXTW:
		return "sxtw"
	case extendOpSXTX:
		return "sxtx"
	}
	panic(int(e))
}

// extendOpFrom returns the extension of a from-bit wide register.
func extendOpFrom(signed bool, from byte) extendOp {
	switch from {
	case 8:
		if signed {
			return extendOpSXTB
		}
		return extendOpUXTB
	case 16:
		if signed {
			return extendOpSXTH
		}
		return extendOpUXTH
	case 32:
		if signed {
			return extendOpSXTW
		}
		return extendOpUXTW
	case 64:
		if signed {
			return extendOpSXTX
		}
		return extendOpUXTX
	}
	panic("invalid extendOpFrom")
}

type shiftOp byte

const (
	shiftOpLSL shiftOp = 0b00
	shiftOpLSR shiftOp = 0b01
	shiftOpASR shiftOp = 0b10
)

func (s shiftOp) String() string {
	switch s {
	case shiftOpLSL:
		return "lsl"
	case shiftOpLSR:
		return "lsr"
	case shiftOpASR:
		return "asr"
	}
	panic(int(s))
}

// atomicRmwOp is the operation of an LSE atomicRmw, numbered by its opc field.
type atomicRmwOp byte

const (
	atomicRmwOpAdd atomicRmwOp = iota
	atomicRmwOpClr
	atomicRmwOpEor
	atomicRmwOpSet
	atomicRmwOpSmax
	atomicRmwOpSmin
	atomicRmwOpUmax
	atomicRmwOpUmin
	atomicRmwOpSwp
)

func (o atomicRmwOp) String() string {
	switch o {
	case atomicRmwOpAdd:
		return "ldadd"
	case atomicRmwOpClr:
		return "ldclr"
	case atomicRmwOpEor:
		return "ldeor"
	case atomicRmwOpSet:
		return "ldset"
	case atomicRmwOpSmax:
		return "ldsmax"
	case atomicRmwOpSmin:
		return "ldsmin"
	case atomicRmwOpUmax:
		return "ldumax"
	case atomicRmwOpUmin:
		return "ldumin"
	case atomicRmwOpSwp:
		return "swp"
	}
	panic(int(o))
}

// atomicOrder holds the acquire and release semantics of an atomic instruction.
type atomicOrder uint64

const (
	atomicOrderAcquire atomicOrder = 1 << iota
	atomicOrderRelease
)

func atomicOrderOf(o ir.Ordering) (ret atomicOrder) {
	if o.Acquire() {
		ret |= atomicOrderAcquire
	}
	if o.Release() {
		ret |= atomicOrderRelease
	}
	return
}

func (o atomicOrder) acquire() bool { return o&atomicOrderAcquire != 0 }

func (o atomicOrder) release() bool { return o&atomicOrderRelease != 0 }

// String returns the mnemonic suffix.
func (o atomicOrder) String() string {
	switch {
	case o.acquire() && o.release():
		return "al"
	case o.acquire():
		return "a"
	case o.release():
		return "l"
	}
	return ""
}

func atomicSizeSuffix(size uint64) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "h"
	}
	return ""
}

func atomicRegSize(size uint64) byte {
	if size == 8 {
		return 64
	}
	return 32
}

// dmbOption is the CRm field of DMB.
type dmbOption byte

const (
	dmbOptionISHLD dmbOption = 0b1001
	dmbOptionISH   dmbOption = 0b1011
)

func (o dmbOption) String() string {
	switch o {
	case dmbOptionISHLD:
		return "ishld"
	case dmbOptionISH:
		return "ish"
	}
	return fmt.Sprintf("#%#x", byte(o))
}

var instructionKindNames = [numInstructionKinds]string{
	nop0:            "nop0",
	aluRRR:          "aluRRR",
	aluRRRR:         "aluRRRR",
	aluRRImm12:      "aluRRImm12",
	aluRRBitmaskImm: "aluRRBitmaskImm",
	aluRRImmShift:   "aluRRImmShift",
	aluRRRShift:     "aluRRRShift",
	aluRRRExtend:    "aluRRRExtend",
	bitRR:           "bitRR",
	uLoad8:          "uLoad8",
	sLoad8:          "sLoad8",
	uLoad16:         "uLoad16",
	sLoad16:         "sLoad16",
	uLoad32:         "uLoad32",
	sLoad32:         "sLoad32",
	uLoad64:         "uLoad64",
	store8:          "store8",
	store16:         "store16",
	store32:         "store32",
	store64:         "store64",
	storeP64:        "storeP64",
	loadP64:         "loadP64",
	mov64:           "mov64",
	mov32:           "mov32",
	movZ:            "movZ",
	movN:            "movN",
	movK:            "movK",
	extend:          "extend",
	cSel:            "cSel",
	cSet:            "cSet",
	fpuMov64:        "fpuMov64",
	fpuRR:           "fpuRR",
	fpuRRR:          "fpuRRR",
	fpuCmp:          "fpuCmp",
	fpuLoad32:       "fpuLoad32",
	fpuStore32:      "fpuStore32",
	fpuLoad64:       "fpuLoad64",
	fpuStore64:      "fpuStore64",
	fpuToInt:        "fpuToInt",
	intToFpu:        "intToFpu",
	fpuCSel:         "fpuCSel",
	movToFpu:        "movToFpu",
	movFromFpu:      "movFromFpu",
	loadConst:       "loadConst",
	loadFpuConst:    "loadFpuConst",
	call:            "call",
	callInd:         "callInd",
	ret:             "ret",
	epilogue:        "epilogue",
	br:              "br",
	condBr:          "condBr",
	brk:             "brk",
	udf:             "udf",
	atomicRmw:       "atomicRmw",
	atomicCas:       "atomicCas",
	atomicLoad:      "atomicLoad",
	atomicStore:     "atomicStore",
	loadExclusive:   "loadExclusive",
	storeExclusive:  "storeExclusive",
	clrex:           "clrex",
	dmb:             "dmb",
	atomicRmwLoop:   "atomicRmwLoop",
	atomicCasLoop:   "atomicCasLoop",
	rawWords:        "rawWords",
}

// String implements fmt.Stringer.
func (k instructionKind) String() string {
	if 0 < k && k < numInstructionKinds {
		return instructionKindNames[k]
	}
	return fmt.Sprintf("instructionKind(%d)", int(k))
}
