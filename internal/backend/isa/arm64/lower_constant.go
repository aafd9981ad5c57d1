package arm64

import (
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// canonicalBits returns the register representation of the constant bits of type t. Integers
// narrower than 32 bits are extended to 32 bits according to their signedness, and the upper
// half of the register is unspecified for every type of at most 32 bits.
func canonicalBits(t *ir.Type, bits uint64) uint64 {
	switch t.Kind {
	case ir.TypeKindBool:
		return bits & 1
	case ir.TypeKindInt:
		n := t.ScalarBits()
		if n >= 64 {
			return bits
		}
		if n < 32 && t.Signed {
			shift := 64 - n
			return uint64(int64(bits<<shift)>>shift) & 0xffff_ffff
		}
		return bits & (1<<n - 1)
	case ir.TypeKindFloat:
		if t.Bits == 32 {
			return bits & 0xffff_ffff
		}
	}
	return bits
}

// loadImmediate materializes the register representation bits into rd, which decides
// between an integer and a float constant.
func (m *machine) loadImmediate(rd regalloc.RealReg, bits uint64, _64bit bool) {
	if regTypeOf(rd) == regalloc.RegTypeFloat {
		m.lowerFpuConstant(rd, bits, _64bit)
		return
	}
	m.lowerConstant(rd, bits, _64bit)
}

func (m *machine) lowerConstant(rd regalloc.RealReg, c uint64, _64bit bool) {
	load := m.allocateInstr()
	load.asLoadConst(rd, c, _64bit)
	m.insert(load)
}

func (m *machine) lowerFpuConstant(rd regalloc.RealReg, raw uint64, _64bit bool) {
	load := m.allocateInstr()
	if raw == 0 {
		load.asMovToFpu(rd, xzr, _64bit)
	} else {
		load.asLoadFpuConst(rd, raw, _64bit)
	}
	m.insert(load)
}

// asImm12 returns the immediate 12-bit operand encoding of val if it fits, shifted by 12
// if shiftBit is 1.
func asImm12(val uint64) (v uint16, shiftBit byte, ok bool) {
	const mask1, mask2 uint64 = 0xfff, 0xfff_000
	if val&^mask1 == 0 {
		return uint16(val), 0, true
	} else if val&^mask2 == 0 {
		return uint16(val >> 12), 1, true
	} else {
		return 0, 0, false
	}
}

// addConst64 sets rd = rn + c with 64-bit arithmetic. Either register may be sp.
func (m *machine) addConst64(rd, rn regalloc.RealReg, c int64) {
	if c == 0 {
		if rd != rn {
			mov := m.allocateInstr()
			mov.asMove64(rd, rn)
			m.insert(mov)
		}
		return
	}

	op, abs := aluOpAdd, uint64(c)
	if c < 0 {
		op, abs = aluOpSub, uint64(-c)
	}
	if imm12, shift, ok := asImm12(abs); ok {
		alu := m.allocateInstr()
		alu.asALUImm12(op, rd, rn, imm12, shift, true)
		m.insert(alu)
		return
	}
	if abs < 1<<24 {
		hi := m.allocateInstr()
		hi.asALUImm12(op, rd, rn, uint16(abs>>12), 1, true)
		m.insert(hi)
		lo := m.allocateInstr()
		lo.asALUImm12(op, rd, rd, uint16(abs&0xfff), 0, true)
		m.insert(lo)
		return
	}

	m.lowerConstant(encTmp, uint64(c), true)
	add := m.allocateInstr()
	add.asALU(aluOpAdd, rd, rn, encTmp, true)
	m.insert(add)
}
