package arm64

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

type (
	// addressMode represents an ARM64 addressing mode.
	//
	// https://developer.arm.com/documentation/102374/0101/Loads-and-stores---addressing
	addressMode struct {
		kind   addressModeKind
		rn, rm regalloc.RealReg
		extOp  extendOp
		imm    int64
	}

	// addressModeKind represents the kind of ARM64 addressing mode.
	addressModeKind byte
)

const (
	// addressModeKindRegScaledExtended takes a base register and an index register. The index register is sign/zero-extended,
	// and then scaled by bits(type)/8.
	//
	// e.g.
	// 	- ldrh w1, [x2, w3, SXTW #1] ;; sign-extended and scaled by 2 (== LSL #1)
	// 	- strh w1, [x2, w3, UXTW #1] ;; zero-extended and scaled by 2 (== LSL #1)
	// 	- ldr w1, [x2, w3, SXTW #2] ;; sign-extended and scaled by 4 (== LSL #2)
	// 	- str x1, [x2, w3, UXTW #3] ;; zero-extended and scaled by 8 (== LSL #3)
	//
	// See the following pages:
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDRH--register---Load-Register-Halfword--register--
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--register---Load-Register--register--
	addressModeKindRegScaledExtended addressModeKind = iota

	// addressModeKindRegScaled is the same as addressModeKindRegScaledExtended, but without extension factor.
	addressModeKindRegScaled

	// addressModeKindRegExtended is the same as addressModeKindRegScaledExtended, but without scale factor.
	addressModeKindRegExtended

	// addressModeKindRegReg takes a base register and an index register. The index register is not either scaled or extended.
	addressModeKindRegReg

	// addressModeKindRegSignedImm9 takes a base register and a 9-bit "signed" immediate offset (-256 to 255).
	// The immediate will be sign-extended, and be added to the base register.
	// This is a.k.a. "unscaled" since the immediate is not scaled.
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDUR--Load-Register--unscaled--
	addressModeKindRegSignedImm9

	// addressModeKindRegUnsignedImm12 takes a base register and a 12-bit "unsigned" immediate offset.  scaled by
	// the size of the type. In other words, the actual offset will be imm12 * bits(type)/8.
	// See "Unsigned offset" in the following pages:
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDRB--immediate---Load-Register-Byte--immediate--
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDRH--immediate---Load-Register-Halfword--immediate--
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--immediate---Load-Register--immediate--
	addressModeKindRegUnsignedImm12

	// addressModeKindPostIndex takes a base register and a 9-bit "signed" immediate offset.
	// After the load/store, the base register will be updated by the offset.
	//
	// Note that when this is used for pair load/store, the offset will be 7-bit "signed" immediate offset.
	//
	// See "Post-index" in the following pages for examples:
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--immediate---Load-Register--immediate--
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDP--Load-Pair-of-Registers-
	addressModeKindPostIndex

	// addressModeKindPreIndex takes a base register and a 9-bit "signed" immediate offset.
	// Before the load/store, the base register will be updated by the offset.
	//
	// Note that when this is used for pair load/store, the offset will be 7-bit "signed" immediate offset.
	//
	// See "Pre-index" in the following pages for examples:
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDR--immediate---Load-Register--immediate--
	// https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/LDP--Load-Pair-of-Registers-
	addressModeKindPreIndex

	// addressModeKindRegImm takes a base register and any signed offset. Frame offsets are
	// only known to fit once the function is laid out, so the encoder picks
	// addressModeKindRegUnsignedImm12 or addressModeKindRegSignedImm9 when possible, and
	// otherwise materializes the offset in encTmp and uses it as the index register.
	addressModeKindRegImm
)

// extendOpNone marks a 64-bit index register which is used as-is.
const extendOpNone extendOp = 0xff

func (a addressMode) format(dstSizeBits byte) (ret string) {
	base := formatRegSized(a.rn, 64)
	if regTypeOf(a.rn) != regalloc.RegTypeInt {
		panic("invalid base register type: " + regTypeOf(a.rn).String())
	}

	switch a.kind {
	case addressModeKindRegScaledExtended:
		amount := a.sizeInBitsToShiftAmount(dstSizeBits)
		ret = fmt.Sprintf("[%s, %s, %s #%#x]", base, formatRegSized(a.rm, a.indexRegBits()), a.extOp, amount)
	case addressModeKindRegScaled:
		amount := a.sizeInBitsToShiftAmount(dstSizeBits)
		ret = fmt.Sprintf("[%s, %s, lsl #%#x]", base, formatRegSized(a.rm, a.indexRegBits()), amount)
	case addressModeKindRegExtended:
		ret = fmt.Sprintf("[%s, %s, %s]", base, formatRegSized(a.rm, a.indexRegBits()), a.extOp)
	case addressModeKindRegReg:
		ret = fmt.Sprintf("[%s, %s]", base, formatRegSized(a.rm, a.indexRegBits()))
	case addressModeKindRegSignedImm9, addressModeKindRegUnsignedImm12, addressModeKindRegImm:
		if a.imm != 0 {
			ret = fmt.Sprintf("[%s, #%#x]", base, a.imm)
		} else {
			ret = fmt.Sprintf("[%s]", base)
		}
	case addressModeKindPostIndex:
		ret = fmt.Sprintf("[%s], #%#x", base, a.imm)
	case addressModeKindPreIndex:
		ret = fmt.Sprintf("[%s, #%#x]!", base, a.imm)
	}
	return
}

func addressModePreOrPostIndex(rn regalloc.RealReg, imm int64, preIndex bool) addressMode {
	if !offsetFitsInAddressModeKindRegSignedImm9(imm) {
		panic(fmt.Sprintf("BUG: offset %#x does not fit in addressModeKindRegSignedImm9", imm))
	}
	if preIndex {
		return addressMode{kind: addressModeKindPreIndex, rn: rn, imm: imm}
	} else {
		return addressMode{kind: addressModeKindPostIndex, rn: rn, imm: imm}
	}
}

// regImm returns the address rn+offset.
func regImm(rn regalloc.RealReg, offset int64) addressMode {
	return addressMode{kind: addressModeKindRegImm, rn: rn, imm: offset}
}

func offsetFitsInAddressModeKindRegUnsignedImm12(dstSizeInBits byte, offset int64) bool {
	divisor := int64(dstSizeInBits) / 8
	return 0 <= offset && offset%divisor == 0 && offset/divisor < 4096
}

func offsetFitsInAddressModeKindRegSignedImm9(offset int64) bool {
	return -256 <= offset && offset <= 255
}

func (a addressMode) indexRegBits() byte {
	if a.extOp == extendOpNone {
		return 64
	}
	bits := a.extOp.srcBits()
	if bits != 32 && bits != 64 {
		panic("invalid index register for address mode. it must be either 32 or 64 bits")
	}
	return bits
}

func (a addressMode) sizeInBitsToShiftAmount(sizeInBits byte) (lsl byte) {
	switch sizeInBits {
	case 8:
		lsl = 0
	case 16:
		lsl = 1
	case 32:
		lsl = 2
	case 64:
		lsl = 3
	}
	return
}

// loadBits loads a scalar of the given width from amode into rd, keeping the register
// representation canonical: narrow signed integers are sign-extended.
func (m *machine) loadBits(rd regalloc.RealReg, amode addressMode, bits uint16, signed bool) {
	load := m.allocateInstr()
	switch {
	case regTypeOf(rd) == regalloc.RegTypeFloat:
		load.asFpuLoad(rd, amode, byte(bits))
	case signed && bits < 32:
		load.asSLoad(rd, amode, byte(bits))
	default:
		load.asULoad(rd, amode, byte(bits))
	}
	m.insert(load)
}

func (m *machine) storeBits(src regalloc.RealReg, amode addressMode, bits uint16) {
	store := m.allocateInstr()
	store.asStore(src, amode, byte(bits))
	m.insert(store)
}

// loadSlot reloads a register spilled into the frame slot at offset.
func (m *machine) loadSlot(rd regalloc.RealReg, offset int64) {
	m.loadBits(rd, regImm(fp, offset), 64, false)
}

// copyMemory copies size bytes from [src+srcOff] to [dst+dstOff] through tmp.
func (m *machine) copyMemory(dst regalloc.RealReg, dstOff int64, src regalloc.RealReg, srcOff int64, size uint64) {
	var off int64
	for _, chunk := range []uint16{64, 32, 16, 8} {
		n := int64(chunk / 8)
		for ; uint64(off+n) <= size; off += n {
			m.loadBits(tmp, regImm(src, srcOff+off), chunk, false)
			m.storeBits(tmp, regImm(dst, dstOff+off), chunk)
		}
	}
}

// memoryOperand returns the frame offset of an aggregate operand.
func (m *machine) memoryOperand(r ir.Ref) (int64, error) {
	loc, err := m.location(r)
	if err != nil {
		return 0, err
	}
	if loc.Kind != backend.LocStackSlot || loc.Class != regalloc.RegTypeInvalid {
		return 0, backend.Unsupported("aggregate operand %s at %s", r, loc)
	}
	return loc.Offset, nil
}

// allocLocal reserves frame memory for a value of type typ and defines it as the current result.
func (m *machine) allocLocal(typ ir.TypeID) (int64, error) {
	size, align := ir.Layout(m.tab, typ)
	off, err := m.frame.AllocLocal(size, align)
	if err != nil {
		return 0, err
	}
	m.tracker.Put(m.cur, backend.StackSlot(regalloc.RegTypeInvalid, off))
	return off, nil
}

// storeValue writes the value v at [base+off] in its memory layout.
func (m *machine) storeValue(base regalloc.RealReg, off int64, v ir.Ref) error {
	shape, err := m.shapeOf(m.fn.TypeOf(v))
	if err != nil {
		return err
	}
	switch shape.Kind {
	case backend.ShapeVoid:
	case backend.ShapeScalar:
		src, err := m.regOrZero(v)
		if err != nil {
			return err
		}
		m.storeBits(src, regImm(base, off), shape.Bits[0])
	case backend.ShapePair:
		r1, r2, err := m.regPair(v)
		if err != nil {
			return err
		}
		m.storeBits(r1, regImm(base, off+int64(shape.Offsets[0])), shape.Bits[0])
		m.storeBits(r2, regImm(base, off+int64(shape.Offsets[1])), shape.Bits[1])
	case backend.ShapeMemory:
		srcOff, err := m.memoryOperand(v)
		if err != nil {
			return err
		}
		m.copyMemory(base, off, fp, srcOff, shape.Size)
	}
	return nil
}

// defineLoaded defines the current result as the typ value at [base+off]. Aggregates are
// copied into a frame local.
func (m *machine) defineLoaded(base regalloc.RealReg, off int64, typ ir.TypeID) error {
	shape, err := m.shapeOf(typ)
	if err != nil {
		return err
	}
	switch shape.Kind {
	case backend.ShapeVoid:
		m.tracker.Put(m.cur, backend.None())
	case backend.ShapeScalar:
		rd, err := m.allocResult(shape.Class, true)
		if err != nil {
			return err
		}
		m.loadBits(rd, regImm(base, off), shape.Bits[0], shape.Signed[0])
		m.tracker.Put(m.cur, backend.Register(shape.Class, rd))
	case backend.ShapePair:
		r1, r2, err := m.allocResultPair(shape.Class)
		if err != nil {
			return err
		}
		m.loadBits(r1, regImm(base, off+int64(shape.Offsets[0])), shape.Bits[0], shape.Signed[0])
		m.loadBits(r2, regImm(base, off+int64(shape.Offsets[1])), shape.Bits[1], shape.Signed[1])
		m.tracker.Put(m.cur, backend.RegisterPair(shape.Class, r1, r2))
	case backend.ShapeMemory:
		local, err := m.allocLocal(typ)
		if err != nil {
			return err
		}
		m.copyMemory(fp, local, base, off, shape.Size)
	}
	return nil
}

// defineFrameValue defines the current result as the typ value inside the frame aggregate at
// off. Aggregates are immutable, so nested aggregates share the storage of their parent.
func (m *machine) defineFrameValue(off int64, typ ir.TypeID) error {
	shape, err := m.shapeOf(typ)
	if err != nil {
		return err
	}
	if shape.Kind == backend.ShapeMemory {
		m.tracker.Put(m.cur, backend.StackSlot(regalloc.RegTypeInvalid, off))
		return nil
	}
	return m.defineLoaded(fp, off, typ)
}

func (m *machine) lowerAlloc(inst *ir.Instruction) error {
	elem := ir.TypeID(inst.Imm)
	size, align := ir.Layout(m.tab, elem)
	off, err := m.frame.AllocLocal(size, align)
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, false)
	if err != nil {
		return err
	}
	m.addConst64(rd, fp, off)
	m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
	return nil
}

func (m *machine) lowerLoad(inst *ir.Instruction) error {
	base, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	return m.defineLoaded(base, 0, inst.Type)
}

func (m *machine) lowerStore(inst *ir.Instruction) error {
	base, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	if err := m.storeValue(base, 0, inst.Args[1]); err != nil {
		return err
	}
	m.tracker.Put(m.cur, backend.None())
	return nil
}

// pointee returns the type Args[0] points to.
func (m *machine) pointee(r ir.Ref, want ir.TypeKind) (ir.TypeID, error) {
	pt := m.typeOf(r)
	if pt.Kind != ir.TypeKindPointer {
		return 0, backend.Unsupported("address of %s", pt)
	}
	if e := m.tab.Type(pt.Elem); e.Kind != want {
		return 0, backend.Unsupported("%s pointer to %s", want, e)
	}
	return pt.Elem, nil
}

func (m *machine) lowerStructFieldPtr(inst *ir.Instruction) error {
	st, err := m.pointee(inst.Args[0], ir.TypeKindStruct)
	if err != nil {
		return err
	}
	if inst.Imm >= uint64(len(m.tab.Type(st).Fields)) {
		return backend.Unsupported("field %d of %d", inst.Imm, len(m.tab.Type(st).Fields))
	}
	base, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}
	m.addConst64(rd, base, int64(ir.FieldOffset(m.tab, st, int(inst.Imm))))
	m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
	return nil
}

func (m *machine) lowerStructFieldVal(inst *ir.Instruction) error {
	st := m.fn.TypeOf(inst.Args[0])
	t := m.tab.Type(st)
	if t.Kind != ir.TypeKindStruct || inst.Imm >= uint64(len(t.Fields)) {
		return backend.Unsupported("field %d of %s", inst.Imm, t)
	}
	off, err := m.memoryOperand(inst.Args[0])
	if err != nil {
		return err
	}
	return m.defineFrameValue(off+int64(ir.FieldOffset(m.tab, st, int(inst.Imm))), t.Fields[inst.Imm])
}

// index64 returns a 64-bit register holding the integer operand r.
func (m *machine) index64(r ir.Ref) (regalloc.RealReg, error) {
	t := m.typeOf(r)
	if t.Kind != ir.TypeKindInt && t.Kind != ir.TypeKindBool {
		return regalloc.RealRegInvalid, backend.Unsupported("index of type %s", t)
	}
	idx, err := m.reg(r)
	if err != nil {
		return regalloc.RealRegInvalid, err
	}
	if t.ScalarBits() == 64 {
		return idx, nil
	}
	wide, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
	if err != nil {
		return regalloc.RealRegInvalid, err
	}
	ext := m.allocateInstr()
	if t.Signed {
		ext.asExtend(wide, idx, 32, 64, true)
	} else {
		ext.asMove32(wide, idx)
	}
	m.insert(ext)
	return wide, nil
}

// elemAddress sets rd = base + idx*size. Power-of-two sizes use a shifted add, other sizes madd.
func (m *machine) elemAddress(rd, base, idx regalloc.RealReg, size uint64) error {
	switch {
	case size == 0:
		m.insertMove(rd, base)
	case size&(size-1) == 0:
		var shift byte
		for s := size; s > 1; s >>= 1 {
			shift++
		}
		add := m.allocateInstr()
		add.asALUShiftedReg(aluOpAdd, rd, base, idx, shiftOpLSL, shift, true)
		m.insert(add)
	default:
		sz, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
		if err != nil {
			return err
		}
		m.lowerConstant(sz, size, true)
		madd := m.allocateInstr()
		madd.asALURRRR(aluOpMAdd, rd, idx, sz, base, true)
		m.insert(madd)
	}
	return nil
}

func (m *machine) lowerArrayElemPtr(inst *ir.Instruction) error {
	at, err := m.pointee(inst.Args[0], ir.TypeKindArray)
	if err != nil {
		return err
	}
	size, _ := ir.Layout(m.tab, m.tab.Type(at).Elem)
	base, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	if c, ok := m.constOperand(inst.Args[1]); ok {
		rd, err := m.allocResult(regalloc.RegTypeInt, true)
		if err != nil {
			return err
		}
		m.addConst64(rd, base, int64(c*size))
		m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
		return nil
	}
	idx, err := m.index64(inst.Args[1])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, true)
	if err != nil {
		return err
	}
	if err := m.elemAddress(rd, base, idx, size); err != nil {
		return err
	}
	m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
	return nil
}

func (m *machine) lowerArrayElemVal(inst *ir.Instruction) error {
	t := m.typeOf(inst.Args[0])
	if t.Kind != ir.TypeKindArray {
		return backend.Unsupported("element of %s", t)
	}
	size, _ := ir.Layout(m.tab, t.Elem)
	off, err := m.memoryOperand(inst.Args[0])
	if err != nil {
		return err
	}
	if c, ok := m.constOperand(inst.Args[1]); ok {
		return m.defineFrameValue(off+int64(c*size), t.Elem)
	}

	idx, err := m.index64(inst.Args[1])
	if err != nil {
		return err
	}
	addr, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
	if err != nil {
		return err
	}
	m.addConst64(addr, fp, off)
	if err := m.elemAddress(addr, addr, idx, size); err != nil {
		return err
	}
	return m.defineLoaded(addr, 0, t.Elem)
}

func (m *machine) lowerAggregateInit(inst *ir.Instruction) error {
	shape, err := m.shapeOf(inst.Type)
	if err != nil {
		return err
	}
	t := m.tab.Type(inst.Type)
	if shape.Kind == backend.ShapePair {
		if len(inst.Args) != 2 {
			return backend.Unsupported("%s from %d values", t, len(inst.Args))
		}
		return m.definePair(shape.Class, inst.Args[0], inst.Args[1])
	}
	if shape.Kind != backend.ShapeMemory {
		return backend.Unsupported("aggregate of %s", t)
	}

	off, err := m.allocLocal(inst.Type)
	if err != nil {
		return err
	}
	switch t.Kind {
	case ir.TypeKindStruct:
		if len(inst.Args) != len(t.Fields) {
			return backend.Unsupported("%s of %d fields from %d values", t, len(t.Fields), len(inst.Args))
		}
		for k, a := range inst.Args {
			if err := m.storeValue(fp, off+int64(ir.FieldOffset(m.tab, inst.Type, k)), a); err != nil {
				return err
			}
			m.regAlloc.ReleaseTemps()
		}
	case ir.TypeKindArray:
		if uint64(len(inst.Args)) != t.Len {
			return backend.Unsupported("%s from %d values", t, len(inst.Args))
		}
		size, _ := ir.Layout(m.tab, t.Elem)
		for k, a := range inst.Args {
			if err := m.storeValue(fp, off+int64(uint64(k)*size), a); err != nil {
				return err
			}
			m.regAlloc.ReleaseTemps()
		}
	default:
		return backend.Unsupported("aggregate of %s", t)
	}
	return nil
}

// definePair defines the current result as the register pair (a, b).
func (m *machine) definePair(class regalloc.RegType, a, b ir.Ref) error {
	ra, err := m.regOrZero(a)
	if err != nil {
		return err
	}
	rb, err := m.regOrZero(b)
	if err != nil {
		return err
	}
	r1, r2, err := m.allocResultPair(class)
	if err != nil {
		return err
	}
	m.parallelMove([]regalloc.RealReg{r1, r2}, []regalloc.RealReg{ra, rb})
	m.tracker.Put(m.cur, backend.RegisterPair(class, r1, r2))
	return nil
}

func (m *machine) lowerMakeSlice(inst *ir.Instruction) error {
	if t := m.tab.Type(inst.Type); t.Kind != ir.TypeKindSlice {
		return backend.Unsupported("make_slice of %s", t)
	}
	return m.definePair(regalloc.RegTypeInt, inst.Args[0], inst.Args[1])
}

// lowerPairHalf defines the current result as the k-th half of a slice or pair.
func (m *machine) lowerPairHalf(inst *ir.Instruction, k int) error {
	shape, err := m.shapeOf(m.fn.TypeOf(inst.Args[0]))
	if err != nil {
		return err
	}
	if shape.Kind != backend.ShapePair {
		return backend.Unsupported("%s of %s", inst.Tag, m.typeOf(inst.Args[0]))
	}
	loc, err := m.location(inst.Args[0])
	if err != nil {
		return err
	}
	switch loc.Kind {
	case backend.LocRegisterPair:
		src := loc.Reg
		if k == 1 {
			src = loc.Reg2
		}
		m.regAlloc.Lock(src)
		rd, err := m.allocResult(shape.Class, false)
		if err != nil {
			return err
		}
		m.insertMove(rd, src)
		m.tracker.Put(m.cur, backend.Register(shape.Class, rd))
	case backend.LocStackSlot:
		rd, err := m.allocResult(shape.Class, false)
		if err != nil {
			return err
		}
		m.loadSlot(rd, loc.Offset+int64(8*k))
		m.tracker.Put(m.cur, backend.Register(shape.Class, rd))
	default:
		return backend.Unsupported("%s of %s", inst.Tag, loc)
	}
	return nil
}

func (m *machine) optionalShape(typ ir.TypeID) (*ir.Type, backend.Shape, error) {
	t := m.tab.Type(typ)
	if t.Kind != ir.TypeKindOptional {
		return nil, backend.Shape{}, backend.Unsupported("optional operation on %s", t)
	}
	shape, err := m.shapeOf(typ)
	return t, shape, err
}

func (m *machine) lowerWrapOptional(inst *ir.Instruction) error {
	t, shape, err := m.optionalShape(inst.Type)
	if err != nil {
		return err
	}
	if t.Sentinel {
		return m.defineCopy(shape.Class, inst.Args[0])
	}
	off, err := m.allocLocal(inst.Type)
	if err != nil {
		return err
	}
	if err := m.storeValue(fp, off, inst.Args[0]); err != nil {
		return err
	}
	m.lowerConstant(tmp, 1, false)
	m.storeBits(tmp, regImm(fp, off+int64(ir.OptionalTagOffset(m.tab, inst.Type))), 8)
	return nil
}

func (m *machine) lowerNullOptional(inst *ir.Instruction) error {
	t, _, err := m.optionalShape(inst.Type)
	if err != nil {
		return err
	}
	if t.Sentinel {
		m.tracker.Put(m.cur, backend.Immediate(0))
		return nil
	}
	off, err := m.allocLocal(inst.Type)
	if err != nil {
		return err
	}
	m.storeBits(xzr, regImm(fp, off+int64(ir.OptionalTagOffset(m.tab, inst.Type))), 8)
	return nil
}

func (m *machine) lowerIsNull(inst *ir.Instruction, null bool) error {
	typ := m.fn.TypeOf(inst.Args[0])
	t, shape, err := m.optionalShape(typ)
	if err != nil {
		return err
	}
	if t.Sentinel {
		v, err := m.reg(inst.Args[0])
		if err != nil {
			return err
		}
		_64bit := shape.Bits[0] == 64
		if shape.Class == regalloc.RegTypeFloat {
			mov := m.allocateInstr()
			mov.asMovFromFpu(tmp, v, _64bit)
			m.insert(mov)
			v = tmp
		}
		cmp := m.allocateInstr()
		cmp.asALUImm12(aluOpSubS, xzr, v, 0, 0, _64bit)
		m.insert(cmp)
		rd, err := m.allocResult(regalloc.RegTypeInt, false)
		if err != nil {
			return err
		}
		c := ne
		if null {
			c = eq
		}
		cset := m.allocateInstr()
		cset.asCSet(rd, c, true)
		m.insert(cset)
		m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
		return nil
	}

	off, err := m.memoryOperand(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, false)
	if err != nil {
		return err
	}
	m.loadBits(rd, regImm(fp, off+int64(ir.OptionalTagOffset(m.tab, typ))), 8, false)
	if null {
		eor := m.allocateInstr()
		eor.asALUBitmaskImm(aluOpEor, rd, rd, 1, false)
		m.insert(eor)
	}
	m.tracker.Put(m.cur, backend.Register(regalloc.RegTypeInt, rd))
	return nil
}

func (m *machine) lowerOptionalPayload(inst *ir.Instruction) error {
	t, shape, err := m.optionalShape(m.fn.TypeOf(inst.Args[0]))
	if err != nil {
		return err
	}
	if t.Sentinel {
		return m.defineCopy(shape.Class, inst.Args[0])
	}
	off, err := m.memoryOperand(inst.Args[0])
	if err != nil {
		return err
	}
	return m.defineFrameValue(off, t.Elem)
}
