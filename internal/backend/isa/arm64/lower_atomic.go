package arm64

import (
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// atomicLowering selects the instructions of read-modify-write and compare-and-swap
// operations on memory. addr holds the address, and size is the access width in bytes.
type atomicLowering interface {
	// lowerRmw applies op with val to the memory at addr, leaving the previous value in rd
	// in its canonical representation.
	lowerRmw(m *machine, op ir.AtomicOp, rd, addr, val regalloc.RealReg, size uint64, signed bool, order atomicOrder) error
	// lowerCas stores replacement if the memory at addr equals expected. old receives the
	// previous value zero-extended, and the flags hold eq on success.
	lowerCas(m *machine, old, addr, expected, replacement regalloc.RealReg, size uint64, order atomicOrder) error
}

// lseAtomics uses the single-instruction atomics of ARMv8.1 (FEAT_LSE).
type lseAtomics struct{}

// llscAtomics uses exclusive load/store retry loops, available on every ARMv8 core.
type llscAtomics struct{}

func (lseAtomics) lowerRmw(m *machine, op ir.AtomicOp, rd, addr, val regalloc.RealReg, size uint64, signed bool, order atomicOrder) error {
	var rmwOp atomicRmwOp
	operand := val
	switch op {
	case ir.AtomicOpAdd:
		rmwOp = atomicRmwOpAdd
	case ir.AtomicOpSub:
		// ldadd of the negated operand.
		neg, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
		if err != nil {
			return err
		}
		sub := m.allocateInstr()
		sub.asALU(aluOpSub, neg, xzr, val, true)
		m.insert(sub)
		rmwOp, operand = atomicRmwOpAdd, neg
	case ir.AtomicOpAnd:
		// ldclr clears the bits set in its operand.
		inv, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
		if err != nil {
			return err
		}
		orn := m.allocateInstr()
		orn.asALU(aluOpOrn, inv, xzr, val, true)
		m.insert(orn)
		rmwOp, operand = atomicRmwOpClr, inv
	case ir.AtomicOpNand:
		return llscAtomics{}.lowerRmw(m, op, rd, addr, val, size, signed, order)
	case ir.AtomicOpOr:
		rmwOp = atomicRmwOpSet
	case ir.AtomicOpXor:
		rmwOp = atomicRmwOpEor
	case ir.AtomicOpXchg:
		rmwOp = atomicRmwOpSwp
	case ir.AtomicOpMax:
		rmwOp = atomicRmwOpUmax
		if signed {
			rmwOp = atomicRmwOpSmax
		}
	case ir.AtomicOpMin:
		rmwOp = atomicRmwOpUmin
		if signed {
			rmwOp = atomicRmwOpSmin
		}
	default:
		return backend.Unsupported("atomic operation %s", op)
	}

	rmw := m.allocateInstr()
	rmw.asAtomicRmw(rmwOp, rd, operand, addr, size, order)
	m.insert(rmw)
	if signed && size < 4 {
		ext := m.allocateInstr()
		ext.asExtend(rd, rd, byte(size*8), 32, true)
		m.insert(ext)
	}
	return nil
}

func (lseAtomics) lowerCas(m *machine, old, addr, expected, replacement regalloc.RealReg, size uint64, order atomicOrder) error {
	m.insertMove(old, expected)
	cas := m.allocateInstr()
	cas.asAtomicCas(old, replacement, addr, size, order)
	m.insert(cas)

	cmp := m.allocateInstr()
	switch size {
	case 1:
		cmp.asALUExtendedReg(aluOpSubS, xzr, old, expected, extendOpUXTB, 0, false)
	case 2:
		cmp.asALUExtendedReg(aluOpSubS, xzr, old, expected, extendOpUXTH, 0, false)
	default:
		cmp.asALU(aluOpSubS, xzr, old, expected, size == 8)
	}
	m.insert(cmp)
	return nil
}

func (llscAtomics) lowerRmw(m *machine, op ir.AtomicOp, rd, addr, val regalloc.RealReg, size uint64, signed bool, order atomicOrder) error {
	if op > ir.AtomicOpMin {
		return backend.Unsupported("atomic operation %s", op)
	}
	scratch, err := m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0)
	if err != nil {
		return err
	}
	loop := m.allocateInstr()
	loop.asAtomicRmwLoop(op, signed, rd, addr, val, scratch, size, order)
	m.insert(loop)
	return nil
}

func (llscAtomics) lowerCas(m *machine, old, addr, expected, replacement regalloc.RealReg, size uint64, order atomicOrder) error {
	loop := m.allocateInstr()
	loop.asAtomicCasLoop(old, addr, expected, replacement, size, order)
	m.insert(loop)
	return nil
}

// atomicSize returns the access width in bytes of an atomic operation on typ.
func (m *machine) atomicSize(typ ir.TypeID) (shape backend.Shape, size uint64, err error) {
	shape, err = m.shapeOf(typ)
	if err != nil {
		return
	}
	if shape.Kind != backend.ShapeScalar {
		err = backend.Unsupported("atomic operation on %s", m.tab.Type(typ))
		return
	}
	size = uint64(shape.Bits[0]) / 8
	return
}

func (m *machine) lowerAtomicRmw(inst *ir.Instruction) error {
	shape, size, err := m.atomicSize(inst.Type)
	if err != nil {
		return err
	}
	if shape.Class != regalloc.RegTypeInt {
		return backend.Unsupported("atomic read-modify-write of %s", m.tab.Type(inst.Type))
	}
	addr, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	val, err := m.regOrZero(inst.Args[1])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(regalloc.RegTypeInt, false)
	if err != nil {
		return err
	}
	order := atomicOrderOf(ir.Ordering(inst.Aux))
	if err := m.atomics.lowerRmw(m, ir.AtomicOp(inst.Imm), rd, addr, val, size, shape.Signed[0], order); err != nil {
		return err
	}
	m.defineReg(regalloc.RegTypeInt, rd)
	return nil
}

func (m *machine) lowerCmpxchg(inst *ir.Instruction) error {
	t := m.tab.Type(inst.Type)
	if t.Kind != ir.TypeKindPair || len(t.Fields) != 2 || t.Fields[1] != ir.TypeBool {
		return backend.Unsupported("cmpxchg producing %s", t)
	}
	shape, size, err := m.atomicSize(t.Fields[0])
	if err != nil {
		return err
	}
	if shape.Class != regalloc.RegTypeInt {
		return backend.Unsupported("cmpxchg of %s", m.tab.Type(t.Fields[0]))
	}

	addr, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	expected, err := m.regOrZero(inst.Args[1])
	if err != nil {
		return err
	}
	replacement, err := m.regOrZero(inst.Args[2])
	if err != nil {
		return err
	}
	old, ok, err := m.allocResultPair(regalloc.RegTypeInt)
	if err != nil {
		return err
	}
	order := atomicOrderOf(ir.Ordering(inst.Aux))
	if err := m.atomics.lowerCas(m, old, addr, expected, replacement, size, order); err != nil {
		return err
	}

	cset := m.allocateInstr()
	cset.asCSet(ok, eq, true)
	m.insert(cset)
	if shape.Signed[0] && size < 4 {
		ext := m.allocateInstr()
		ext.asExtend(old, old, byte(size*8), 32, true)
		m.insert(ext)
	}
	m.tracker.Put(m.cur, backend.RegisterPair(regalloc.RegTypeInt, old, ok))
	return nil
}

func (m *machine) lowerAtomicLoad(inst *ir.Instruction) error {
	shape, size, err := m.atomicSize(inst.Type)
	if err != nil {
		return err
	}
	addr, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	rd, err := m.allocResult(shape.Class, false)
	if err != nil {
		return err
	}

	if !ir.Ordering(inst.Aux).Acquire() {
		m.loadBits(rd, regImm(addr, 0), shape.Bits[0], shape.Signed[0])
		m.defineReg(shape.Class, rd)
		return nil
	}

	dst := rd
	if shape.Class == regalloc.RegTypeFloat {
		dst = tmp
	}
	ldar := m.allocateInstr()
	ldar.asAtomicLoad(dst, addr, size)
	m.insert(ldar)
	switch {
	case shape.Class == regalloc.RegTypeFloat:
		mov := m.allocateInstr()
		mov.asMovToFpu(rd, tmp, size == 8)
		m.insert(mov)
	case shape.Signed[0] && size < 4:
		ext := m.allocateInstr()
		ext.asExtend(rd, rd, byte(size*8), 32, true)
		m.insert(ext)
	}
	m.defineReg(shape.Class, rd)
	return nil
}

func (m *machine) lowerAtomicStore(inst *ir.Instruction) error {
	shape, size, err := m.atomicSize(m.fn.TypeOf(inst.Args[1]))
	if err != nil {
		return err
	}
	addr, err := m.reg(inst.Args[0])
	if err != nil {
		return err
	}
	val, err := m.regOrZero(inst.Args[1])
	if err != nil {
		return err
	}

	if !ir.Ordering(inst.Aux).Release() {
		m.storeBits(val, regImm(addr, 0), shape.Bits[0])
	} else {
		if shape.Class == regalloc.RegTypeFloat {
			mov := m.allocateInstr()
			mov.asMovFromFpu(tmp, val, size == 8)
			m.insert(mov)
			val = tmp
		}
		stlr := m.allocateInstr()
		stlr.asAtomicStore(val, addr, size)
		m.insert(stlr)
	}
	m.tracker.Put(m.cur, backend.None())
	return nil
}

func (m *machine) lowerFence(inst *ir.Instruction) error {
	ord := ir.Ordering(inst.Aux)
	option := dmbOptionISH
	if ord.Acquire() && !ord.Release() {
		option = dmbOptionISHLD
	}
	dmb := m.allocateInstr()
	dmb.asDMB(option)
	m.insert(dmb)
	m.tracker.Put(m.cur, backend.None())
	return nil
}
