package arm64

import (
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// lower selects the instructions of inst. Every supported tag records the location of its
// result, or backend.None, before returning nil.
func (m *machine) lower(inst *ir.Instruction) error {
	switch inst.Tag {
	case ir.TagArg:
		// Bound by lowerEntry.
		return nil
	case ir.TagConst:
		return m.lowerConst(inst)
	case ir.TagAdd, ir.TagSub, ir.TagMul, ir.TagDiv, ir.TagRem,
		ir.TagAnd, ir.TagOr, ir.TagXor, ir.TagShl, ir.TagShr:
		return m.lowerBinary(inst)
	case ir.TagNot, ir.TagNeg:
		return m.lowerNotNeg(inst)
	case ir.TagClz, ir.TagCtz:
		return m.lowerClzCtz(inst)
	case ir.TagPopCount:
		return m.lowerPopCount(inst)
	case ir.TagCmpEq, ir.TagCmpNe, ir.TagCmpLt, ir.TagCmpLe, ir.TagCmpGt, ir.TagCmpGe:
		return m.lowerCmp(inst)
	case ir.TagSelect:
		return m.lowerSelect(inst)
	case ir.TagIntCast:
		return m.lowerIntCast(inst)
	case ir.TagFloatCast:
		return m.lowerFloatCast(inst)
	case ir.TagIntToFloat:
		return m.lowerIntToFloat(inst)
	case ir.TagFloatToInt:
		return m.lowerFloatToInt(inst)
	case ir.TagBitcast:
		return m.lowerBitcast(inst)
	case ir.TagBlock:
		return m.lowerBlock()
	case ir.TagBr:
		return m.lowerBr(inst)
	case ir.TagCondBr:
		return m.lowerCondBr(inst)
	case ir.TagSwitch:
		return m.lowerSwitch(inst)
	case ir.TagRet:
		return m.lowerReturn(inst)
	case ir.TagUnreachable:
		udf := m.allocateInstr()
		udf.asUDF()
		m.insert(udf)
		m.tracker.Put(m.cur, backend.None())
		return nil
	case ir.TagBreakpoint:
		brk := m.allocateInstr()
		brk.asBrk(0xf000)
		m.insert(brk)
		m.tracker.Put(m.cur, backend.None())
		return nil
	case ir.TagCall:
		return m.lowerCall(inst)
	case ir.TagAlloc:
		return m.lowerAlloc(inst)
	case ir.TagLoad:
		return m.lowerLoad(inst)
	case ir.TagStore:
		return m.lowerStore(inst)
	case ir.TagStructFieldPtr:
		return m.lowerStructFieldPtr(inst)
	case ir.TagStructFieldVal:
		return m.lowerStructFieldVal(inst)
	case ir.TagArrayElemPtr:
		return m.lowerArrayElemPtr(inst)
	case ir.TagArrayElemVal:
		return m.lowerArrayElemVal(inst)
	case ir.TagAggregateInit:
		return m.lowerAggregateInit(inst)
	case ir.TagMakeSlice:
		return m.lowerMakeSlice(inst)
	case ir.TagSlicePtr, ir.TagPairFirst:
		return m.lowerPairHalf(inst, 0)
	case ir.TagSliceLen, ir.TagPairSecond:
		return m.lowerPairHalf(inst, 1)
	case ir.TagWrapOptional:
		return m.lowerWrapOptional(inst)
	case ir.TagNullOptional:
		return m.lowerNullOptional(inst)
	case ir.TagIsNull:
		return m.lowerIsNull(inst, true)
	case ir.TagIsNonNull:
		return m.lowerIsNull(inst, false)
	case ir.TagOptionalPayload:
		return m.lowerOptionalPayload(inst)
	case ir.TagAtomicRmw:
		return m.lowerAtomicRmw(inst)
	case ir.TagCmpxchg:
		return m.lowerCmpxchg(inst)
	case ir.TagAtomicLoad:
		return m.lowerAtomicLoad(inst)
	case ir.TagAtomicStore:
		return m.lowerAtomicStore(inst)
	case ir.TagFence:
		return m.lowerFence(inst)
	case ir.TagDbgStmt:
		m.lines = append(m.lines, lineMark{instr: len(m.instrs), line: uint32(inst.Imm), column: uint32(inst.Aux)})
		m.tracker.Put(m.cur, backend.None())
		return nil
	case ir.TagDbgVar:
		m.tracker.Put(m.cur, backend.None())
		return nil
	case ir.TagAsm:
		raw := m.allocateInstr()
		raw.asRawWords(inst.Words)
		m.insert(raw)
		m.tracker.Put(m.cur, backend.None())
		return nil
	}
	return backend.Unsupported("instruction %s", inst.Tag)
}

func (m *machine) lowerConst(inst *ir.Instruction) error {
	shape, err := m.shapeOf(inst.Type)
	if err != nil {
		return err
	}
	switch shape.Kind {
	case backend.ShapeVoid:
		m.tracker.Put(m.cur, backend.None())
	case backend.ShapeScalar:
		m.tracker.Put(m.cur, backend.Immediate(canonicalBits(m.tab.Type(inst.Type), inst.Imm)))
	default:
		return backend.Unsupported("constant of %s", m.tab.Type(inst.Type))
	}
	return nil
}

// extendNarrow keeps the representation of a narrow integer canonical after an operation
// which can leave its width.
func (m *machine) extendNarrow(rd regalloc.RealReg, t *ir.Type) {
	if t.Kind != ir.TypeKindInt || t.Bits >= 32 {
		return
	}
	ext := m.allocateInstr()
	ext.asExtend(rd, rd, byte(t.Bits), 32, t.Signed)
	m.insert(ext)
}

// integerType returns true if values of t live in general purpose registers as integers.
func integerType(t *ir.Type) bool {
	switch t.Kind {
	case ir.TypeKindInt, ir.TypeKindBool, ir.TypeKindPointer, ir.TypeKindFunc:
		return true
	}
	return false
}

// bitmaskImm returns true if c is encodable as a logical immediate of the given width.
func bitmaskImm(c uint64, _64bit bool) bool {
	if !_64bit {
		c = c&0xffff_ffff | c<<32
	}
	return isBitMaskImmediate(c)
}

func (m *machine) lowerBinary(inst *ir.Instruction) error {
	t := m.typeOf(inst.Args[0])
	switch {
	case t.IsFloat():
		return m.lowerFpuBinary(inst)
	case t.Kind == ir.TypeKindBool:
		if inst.Tag != ir.TagAnd && inst.Tag != ir.TagOr && inst.Tag != ir.TagXor {
			return backend.Unsupported("%s of bool", inst.Tag)
		}
	case !integerType(t):
		return backend.Unsupported("%s of %s", inst.Tag, t)
	}
	_64bit := t.ScalarBits() == 64

	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	if c, ok := m.constOperand(inst.Args[1]); ok {
		if done, err := m.lowerBinaryImm(inst.Tag, rn, c, t); done || err != nil {
			return err
		}
	}
	rm, err := m.regOrZero(inst.Args[1])
	if err != nil {
		return err
	}
	if bits := t.ScalarBits(); bits < 32 && (inst.Tag == ir.TagShl || inst.Tag == ir.TagShr) {
		// The 32-bit shifts take the amount modulo 32; narrow types wrap at their own width.
		masked, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
		if err != nil {
			return err
		}
		and := m.allocateInstr()
		and.asALUBitmaskImm(aluOpAnd, masked, rm, uint64(bits-1), false)
		m.insert(and)
		rm = masked
	}

	var quotient regalloc.RealReg
	if inst.Tag == ir.TagRem {
		if quotient, err = m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0); err != nil {
			return err
		}
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}

	alu := m.allocateInstr()
	switch inst.Tag {
	case ir.TagAdd:
		alu.asALU(aluOpAdd, rd, rn, rm, _64bit)
	case ir.TagSub:
		alu.asALU(aluOpSub, rd, rn, rm, _64bit)
	case ir.TagMul:
		alu.asALURRRR(aluOpMAdd, rd, rn, rm, xzr, _64bit)
	case ir.TagDiv:
		alu.asALU(divOp(t), rd, rn, rm, _64bit)
	case ir.TagRem:
		// rd = rn - (rn / rm) * rm
		div := m.allocateInstr()
		div.asALU(divOp(t), quotient, rn, rm, _64bit)
		m.insert(div)
		alu.asALURRRR(aluOpMSub, rd, quotient, rm, rn, _64bit)
	case ir.TagAnd:
		alu.asALU(aluOpAnd, rd, rn, rm, _64bit)
	case ir.TagOr:
		alu.asALU(aluOpOrr, rd, rn, rm, _64bit)
	case ir.TagXor:
		alu.asALU(aluOpEor, rd, rn, rm, _64bit)
	case ir.TagShl:
		alu.asALU(aluOpLsl, rd, rn, rm, _64bit)
	case ir.TagShr:
		alu.asALU(shrOp(t), rd, rn, rm, _64bit)
	}
	m.insert(alu)
	if inst.Tag != ir.TagRem && inst.Tag != ir.TagShr {
		m.extendNarrow(rd, t)
	}
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

func divOp(t *ir.Type) aluOp {
	if t.Kind == ir.TypeKindInt && t.Signed {
		return aluOpSDiv
	}
	return aluOpUDiv
}

func shrOp(t *ir.Type) aluOp {
	if t.Kind == ir.TypeKindInt && t.Signed {
		return aluOpAsr
	}
	return aluOpLsr
}

// lowerBinaryImm lowers the binary operation with the constant c as the second operand if it
// fits in the instruction. It returns false if nothing was emitted.
func (m *machine) lowerBinaryImm(tag ir.Tag, rn regalloc.RealReg, c uint64, t *ir.Type) (bool, error) {
	_64bit := t.ScalarBits() == 64
	width, mask := uint64(t.ScalarBits()), uint64(0xffff_ffff)
	if _64bit {
		mask = ^uint64(0)
	}

	alu := m.allocateInstr()
	switch tag {
	case ir.TagAdd, ir.TagSub:
		op, inv := aluOpAdd, aluOpSub
		if tag == ir.TagSub {
			op, inv = inv, op
		}
		if imm12, shift, ok := asImm12(c & mask); ok {
			alu.asALUImm12(op, regalloc.RealRegInvalid, rn, imm12, shift, _64bit)
		} else if imm12, shift, ok := asImm12(-c & mask); ok {
			alu.asALUImm12(inv, regalloc.RealRegInvalid, rn, imm12, shift, _64bit)
		} else {
			return false, nil
		}
	case ir.TagAnd, ir.TagOr, ir.TagXor:
		if !bitmaskImm(c, _64bit) {
			return false, nil
		}
		op := aluOpAnd
		switch tag {
		case ir.TagOr:
			op = aluOpOrr
		case ir.TagXor:
			op = aluOpEor
		}
		alu.asALUBitmaskImm(op, regalloc.RealRegInvalid, rn, c&mask, _64bit)
	case ir.TagShl, ir.TagShr:
		op := aluOpLsl
		if tag == ir.TagShr {
			op = shrOp(t)
		}
		alu.asALUShift(op, regalloc.RealRegInvalid, rn, c&(width-1), _64bit)
	default:
		return false, nil
	}

	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return true, err
	}
	alu.rd = rd
	m.insert(alu)
	if tag != ir.TagShr && tag != ir.TagAnd && tag != ir.TagOr && tag != ir.TagXor {
		m.extendNarrow(rd, t)
	}
	m.defineReg(regalloc.RegTypeInt, rd)
	return true, nil
}

func (m *machine) lowerFpuBinary(inst *ir.Instruction) error {
	var op fpuBinOp
	switch inst.Tag {
	case ir.TagAdd:
		op = fpuBinOpAdd
	case ir.TagSub:
		op = fpuBinOpSub
	case ir.TagMul:
		op = fpuBinOpMul
	case ir.TagDiv:
		op = fpuBinOpDiv
	default:
		return backend.Unsupported("%s of %s", inst.Tag, m.typeOf(inst.Args[0]))
	}
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rm, err := m.reg(inst.Args[1])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeFloat, true)
	if err != nil {
		return err
	}
	fpu := m.allocateInstr()
	fpu.asFpuRRR(op, rd, rn, rm, m.typeOf(inst.Args[0]).Bits == 64)
	m.insert(fpu)
	m.defineReg(regalloc.RegTypeFloat, rd)
	return nil
}

func (m *machine) lowerNotNeg(inst *ir.Instruction) error {
	t := m.typeOf(inst.Args[0])
	if t.IsFloat() {
		if inst.Tag != ir.TagNeg {
			return backend.Unsupported("%s of %s", inst.Tag, t)
		}
		rn, err := m.reg(inst.Args[0])
		if err != nil {
			return err
		}
		rd, err := m.allocResult(regalloc.RegTypeFloat, true)
		if err != nil {
			return err
		}
		neg := m.allocateInstr()
		neg.asFpuRR(fpuUniOpNeg, rd, rn, t.Bits == 64)
		m.insert(neg)
		m.defineReg(regalloc.RegTypeFloat, rd)
		return nil
	}
	if !integerType(t) || (t.Kind == ir.TypeKindBool && inst.Tag == ir.TagNeg) {
		return backend.Unsupported("%s of %s", inst.Tag, t)
	}

	_64bit := t.ScalarBits() == 64
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}
	alu := m.allocateInstr()
	switch {
	case t.Kind == ir.TypeKindBool:
		alu.asALUBitmaskImm(aluOpEor, rd, rn, 1, false)
	case inst.Tag == ir.TagNot:
		alu.asALU(aluOpOrn, rd, xzr, rn, _64bit)
	default:
		alu.asALU(aluOpSub, rd, xzr, rn, _64bit)
	}
	m.insert(alu)
	m.extendNarrow(rd, t)
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

// zeroExtended sets rd to the bits of the integer rn of type t zero-extended to the operation
// width, i.e. 32 bits for narrow integers.
func (m *machine) zeroExtended(rd, rn regalloc.RealReg, t *ir.Type) {
	if bits := t.ScalarBits(); bits < 32 {
		ext := m.allocateInstr()
		ext.asExtend(rd, rn, byte(bits), 32, false)
		m.insert(ext)
		return
	}
	m.insertMove(rd, rn)
}

func (m *machine) lowerClzCtz(inst *ir.Instruction) error {
	t := m.typeOf(inst.Args[0])
	if t.Kind != ir.TypeKindInt {
		return backend.Unsupported("%s of %s", inst.Tag, t)
	}
	bits := t.ScalarBits()
	_64bit := bits == 64
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}

	if inst.Tag == ir.TagClz {
		m.zeroExtended(rd, rn, t)
		clz := m.allocateInstr()
		clz.asBitRR(bitOpClz, rd, rd, _64bit)
		m.insert(clz)
		if bits < 32 {
			// Discount the zero bits above the width.
			sub := m.allocateInstr()
			sub.asALUImm12(aluOpSub, rd, rd, 32-bits, 0, false)
			m.insert(sub)
		}
	} else {
		src := rn
		if bits < 32 {
			// A bit right above the width bounds the count for zero.
			orr := m.allocateInstr()
			orr.asALUBitmaskImm(aluOpOrr, rd, rn, 1<<bits, false)
			m.insert(orr)
			src = rd
		}
		rbit := m.allocateInstr()
		rbit.asBitRR(bitOpRbit, rd, src, _64bit)
		m.insert(rbit)
		clz := m.allocateInstr()
		clz.asBitRR(bitOpClz, rd, rd, _64bit)
		m.insert(clz)
	}
	m.extendNarrow(rd, m.tab.Type(inst.Type))
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

// lowerPopCount counts the set bits in general purpose registers:
//
//	x -= (x >> 1) & 0x5555...
//	x = (x & 0x3333...) + ((x >> 2) & 0x3333...)
//	x = (x + (x >> 4)) & 0x0f0f...
//	x = (x * 0x0101...) >> (width - 8)
func (m *machine) lowerPopCount(inst *ir.Instruction) error {
	t := m.typeOf(inst.Args[0])
	if t.Kind != ir.TypeKindInt {
		return backend.Unsupported("%s of %s", inst.Tag, t)
	}
	_64bit := t.ScalarBits() == 64
	width := uint64(32)
	if _64bit {
		width = 64
	}
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	t1, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}
	m.zeroExtended(rd, rn, t)

	const m1, m2, m4, h01 = 0x5555_5555_5555_5555, 0x3333_3333_3333_3333, 0x0f0f_0f0f_0f0f_0f0f, 0x0101_0101_0101_0101
	shift := func(rd, rn regalloc.RealReg, amount uint64) {
		i := m.allocateInstr()
		i.asALUShift(aluOpLsr, rd, rn, amount, _64bit)
		m.insert(i)
	}
	mask := func(rd, rn regalloc.RealReg, c uint64) {
		i := m.allocateInstr()
		i.asALUBitmaskImm(aluOpAnd, rd, rn, c, _64bit)
		m.insert(i)
	}
	alu := func(op aluOp, rd, rn, rm regalloc.RealReg) {
		i := m.allocateInstr()
		i.asALU(op, rd, rn, rm, _64bit)
		m.insert(i)
	}

	shift(t1, rd, 1)
	mask(t1, t1, m1)
	alu(aluOpSub, rd, rd, t1)
	shift(t1, rd, 2)
	mask(t1, t1, m2)
	mask(rd, rd, m2)
	alu(aluOpAdd, rd, rd, t1)
	shift(t1, rd, 4)
	alu(aluOpAdd, rd, rd, t1)
	mask(rd, rd, m4)
	m.lowerConstant(t1, h01, _64bit)
	mul := m.allocateInstr()
	mul.asALURRRR(aluOpMAdd, rd, rd, t1, xzr, _64bit)
	m.insert(mul)
	shift(rd, rd, width-8)
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

// compare emits the flag-setting comparison of the two operands of inst and returns the flag
// which holds when the comparison is true.
func (m *machine) compare(tag ir.Tag, x, y ir.Ref) (condFlag, error) {
	t := m.typeOf(x)
	if t.IsFloat() {
		rn, err := m.reg(x)
		if err != nil {
			return 0, err
		}
		rm, err := m.reg(y)
		if err != nil {
			return 0, err
		}
		cmp := m.allocateInstr()
		cmp.asFpuCmp(rn, rm, t.Bits == 64)
		m.insert(cmp)
		return condFlagFromFloatCmp(tag), nil
	}
	if !integerType(t) {
		return 0, backend.Unsupported("%s of %s", tag, t)
	}

	_64bit := t.ScalarBits() == 64
	rn, err := m.reg(x)
	if err != nil {
		return 0, err
	}
	cmp := m.allocateInstr()
	c, isConst := m.constOperand(y)
	if imm12, shift, ok := asImm12(c); isConst && ok {
		cmp.asALUImm12(aluOpSubS, xzr, rn, imm12, shift, _64bit)
	} else {
		rm, err := m.regOrZero(y)
		if err != nil {
			return 0, err
		}
		cmp.asALU(aluOpSubS, xzr, rn, rm, _64bit)
	}
	m.insert(cmp)
	return condFlagFromIntegerCmp(tag, t.Kind == ir.TypeKindInt && t.Signed), nil
}

func (m *machine) lowerCmp(inst *ir.Instruction) error {
	cf, err := m.compare(inst.Tag, inst.Args[0], inst.Args[1])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, false)
	if err != nil {
		return err
	}
	cset := m.allocateInstr()
	cset.asCSet(rd, cf, true)
	m.insert(cset)
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

// selectOperand returns the register of a select operand of class.
func (m *machine) selectOperand(r ir.Ref, class regalloc.RegType) (regalloc.RealReg, error) {
	if class == regalloc.RegTypeInt {
		return m.regOrZero(r)
	}
	return m.reg(r)
}

func (m *machine) lowerSelect(inst *ir.Instruction) error {
	shape, err := m.shapeOf(inst.Type)
	if err != nil {
		return err
	}
	c, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	cmp := m.allocateInstr()
	cmp.asALUImm12(aluOpSubS, xzr, c, 0, 0, false)
	m.insert(cmp)

	sel := func(rd, rn, rm regalloc.RealReg, bits uint16) {
		i := m.allocateInstr()
		if shape.Class == regalloc.RegTypeFloat {
			i.asFpuCSel(rd, rn, rm, ne, bits == 64)
		} else {
			i.asCSel(rd, rn, rm, ne, true)
		}
		m.insert(i)
	}

	switch shape.Kind {
	case backend.ShapeScalar:
		a, err := m.selectOperand(inst.Args[1], shape.Class)
		if err != nil {
			return err
		}
		b, err := m.selectOperand(inst.Args[2], shape.Class)
		if err != nil {
			return err
		}
		rd, err := m.allocResult(shape.Class, false)
		if err != nil {
			return err
		}
		sel(rd, a, b, shape.Bits[0])
		m.defineReg(shape.Class, rd)
	case backend.ShapePair:
		a1, a2, err := m.regPair(inst.Args[1])
		if err != nil {
			return err
		}
		b1, b2, err := m.regPair(inst.Args[2])
		if err != nil {
			return err
		}
		r1, r2, err := m.allocResultPair(shape.Class)
		if err != nil {
			return err
		}
		sel(r1, a1, b1, shape.Bits[0])
		sel(r2, a2, b2, shape.Bits[1])
		m.tracker.Put(m.cur, backend.RegisterPair(shape.Class, r1, r2))
	default:
		return backend.Unsupported("select of %s", m.tab.Type(inst.Type))
	}
	return nil
}

func (m *machine) lowerIntCast(inst *ir.Instruction) error {
	src, dst := m.typeOf(inst.Args[0]), m.tab.Type(inst.Type)
	if !integerType(src) || !integerType(dst) {
		return backend.Unsupported("int cast from %s to %s", src, dst)
	}
	if c, ok := m.constOperand(inst.Args[0]); ok {
		if src.Kind == ir.TypeKindInt && src.Signed && src.Bits < 64 {
			shift := 64 - src.Bits
			c = uint64(int64(c<<shift) >> shift)
		}
		if dst.Kind == ir.TypeKindBool {
			c = c & 1
		}
		m.tracker.Put(m.cur, backend.Immediate(canonicalBits(dst, c)))
		return nil
	}

	sb, db := src.ScalarBits(), dst.ScalarBits()
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}
	i := m.allocateInstr()
	switch {
	case dst.Kind == ir.TypeKindBool:
		i.asALUBitmaskImm(aluOpAnd, rd, rn, 1, false)
	case db == 64 && sb < 64 && src.Kind == ir.TypeKindInt && src.Signed:
		i.asExtend(rd, rn, 32, 64, true)
	case db == 64 && sb < 64:
		i.asMove32(rd, rn)
	case db < 32:
		i.asExtend(rd, rn, byte(db), 32, dst.Signed)
	default:
		// The low 32 bits are already right.
		i.asMove64(rd, rn)
	}
	if i.kind != mov64 || rd != rn {
		m.insert(i)
	}
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

func (m *machine) lowerFloatCast(inst *ir.Instruction) error {
	src, dst := m.typeOf(inst.Args[0]), m.tab.Type(inst.Type)
	if !src.IsFloat() || !dst.IsFloat() {
		return backend.Unsupported("float cast from %s to %s", src, dst)
	}
	if src.Bits == dst.Bits {
		return m.defineCopy(regalloc.RegTypeFloat, inst.Args[0])
	}
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeFloat, true)
	if err != nil {
		return err
	}
	cvt := m.allocateInstr()
	if src.Bits == 32 {
		cvt.asFpuRR(fpuUniOpCvt32To64, rd, rn, false)
	} else {
		cvt.asFpuRR(fpuUniOpCvt64To32, rd, rn, true)
	}
	m.insert(cvt)
	m.defineReg(regalloc.RegTypeFloat, rd)
	return nil
}

func (m *machine) lowerIntToFloat(inst *ir.Instruction) error {
	src, dst := m.typeOf(inst.Args[0]), m.tab.Type(inst.Type)
	if !integerType(src) || !dst.IsFloat() {
		return backend.Unsupported("int to float from %s to %s", src, dst)
	}
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeFloat, false)
	if err != nil {
		return err
	}
	cvt := m.allocateInstr()
	cvt.asIntToFpu(rd, rn, src.Kind == ir.TypeKindInt && src.Signed, src.ScalarBits() == 64, dst.Bits == 64)
	m.insert(cvt)
	m.defineReg(regalloc.RegTypeFloat, rd)
	return nil
}

func (m *machine) lowerFloatToInt(inst *ir.Instruction) error {
	src, dst := m.typeOf(inst.Args[0]), m.tab.Type(inst.Type)
	if !src.IsFloat() || dst.Kind != ir.TypeKindInt {
		return backend.Unsupported("float to int from %s to %s", src, dst)
	}
	rn, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, false)
	if err != nil {
		return err
	}
	cvt := m.allocateInstr()
	cvt.asFpuToInt(rd, rn, dst.Signed, src.Bits == 64, dst.Bits == 64)
	m.insert(cvt)
	m.extendNarrow(rd, dst)
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

func (m *machine) lowerBitcast(inst *ir.Instruction) error {
	src, dst := m.typeOf(inst.Args[0]), m.tab.Type(inst.Type)
	if !src.IsScalar() || !dst.IsScalar() || src.ScalarBits() != dst.ScalarBits() {
		return backend.Unsupported("bitcast from %s to %s", src, dst)
	}
	_64bit := src.ScalarBits() == 64
	switch {
	case src.IsFloat() && dst.IsFloat():
		return m.defineCopy(regalloc.RegTypeFloat, inst.Args[0])
	case src.IsFloat():
		rn, err := m.reg(inst.Args[0])
		if err != nil {
			return err
		}
		rd, err := m.allocResult(regalloc.RegTypeInt, false)
		if err != nil {
			return err
		}
		mov := m.allocateInstr()
		mov.asMovFromFpu(rd, rn, _64bit)
		m.insert(mov)
		m.extendNarrow(rd, dst)
		m.defineReg(regalloc.RegTypeInt, rd)
	case dst.IsFloat():
		if c, ok := m.constOperand(inst.Args[0]); ok {
			m.tracker.Put(m.cur, backend.Immediate(canonicalBits(dst, c)))
			return nil
		}
		rn, err := m.reg(inst.Args[0])
		if err != nil {
			return err
		}
		rd, err := m.allocResult(regalloc.RegTypeFloat, false)
		if err != nil {
			return err
		}
		mov := m.allocateInstr()
		mov.asMovToFpu(rd, rn, _64bit)
		m.insert(mov)
		m.defineReg(regalloc.RegTypeFloat, rd)
	default:
		if c, ok := m.constOperand(inst.Args[0]); ok {
			m.tracker.Put(m.cur, backend.Immediate(canonicalBits(dst, c)))
			return nil
		}
		if src.Kind == ir.TypeKindInt && dst.Kind == ir.TypeKindInt && src.Bits < 32 && src.Signed != dst.Signed {
			rn, err := m.reg(inst.Args[0])
			if err != nil {
				return err
			}
			rd, err := m.allocResult(regalloc.RegTypeInt, true)
			if err != nil {
				return err
			}
			ext := m.allocateInstr()
			ext.asExtend(rd, rn, byte(src.Bits), 32, dst.Signed)
			m.insert(ext)
			m.defineReg(regalloc.RegTypeInt, rd)
			return nil
		}
		return m.defineCopy(regalloc.RegTypeInt, inst.Args[0])
	}
	return nil
}

func (m *machine) lowerBlock() error {
	m.blockStarts[m.cur] = len(m.instrs)
	m.tracker.Put(m.cur, backend.None())
	return m.enterLoop(m.cur)
}

func (m *machine) lowerBr(inst *ir.Instruction) error {
	if len(inst.Targets) != 1 {
		return backend.Unsupported("br with %d targets", len(inst.Targets))
	}
	m.insertBr(inst.Targets[0])
	m.tracker.Put(m.cur, backend.None())
	return nil
}

func (m *machine) lowerCondBr(inst *ir.Instruction) error {
	if len(inst.Targets) != 2 {
		return backend.Unsupported("cond_br with %d targets", len(inst.Targets))
	}
	then, els := inst.Targets[0], inst.Targets[1]
	if c, ok := m.constOperand(inst.Args[0]); ok {
		if c&1 == 0 {
			then = els
		}
		m.insertBr(then)
	} else {
		r, err := m.reg(inst.Args[0])
		if err != nil {
			return err
		}
		m.insertCondBr(registerAsRegNotZeroCond(r), then, false)
		m.insertBr(els)
	}
	m.tracker.Put(m.cur, backend.None())
	return nil
}

// lowerSwitch lowers a switch to a chain of compare and branch:
//
//	cmp x, #case0
//	b.eq target0
//	...
//	b default
func (m *machine) lowerSwitch(inst *ir.Instruction) error {
	if len(inst.Targets) != len(inst.Cases)+1 {
		return backend.Unsupported("switch with %d cases and %d targets", len(inst.Cases), len(inst.Targets))
	}
	t := m.typeOf(inst.Args[0])
	if !integerType(t) {
		return backend.Unsupported("switch on %s", t)
	}
	_64bit := t.ScalarBits() == 64
	x, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	for k, c := range inst.Cases {
		c = canonicalBits(t, c)
		cmp := m.allocateInstr()
		if imm12, shift, ok := asImm12(c); ok {
			cmp.asALUImm12(aluOpSubS, xzr, x, imm12, shift, _64bit)
		} else {
			m.lowerConstant(tmp, c, _64bit)
			cmp.asALU(aluOpSubS, xzr, x, tmp, _64bit)
		}
		m.insert(cmp)
		m.insertCondBr(eq.asCond(), inst.Targets[k], false)
	}
	m.insertBr(inst.Targets[len(inst.Cases)])
	m.tracker.Put(m.cur, backend.None())
	return nil
}
