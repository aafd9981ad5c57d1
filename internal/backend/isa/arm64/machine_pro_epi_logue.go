package arm64

import (
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// setupPrologue emits the prologue into m.instrs, which must be empty. The frame must be
// finalized beforehand.
//
//	                 (high address)                        (high address)
//	               +-----------------+                  +------------------+
//	               |     .......     |                  |     .......      |
//	               |      argN       |                  |      argN        |
//	               |     .......     |                  |     .......      |
//	               |      arg0       |                  |      arg0        |
//	       SP----> +-----------------+                  |   caller's LR    |
//	                                        ====>       |   caller's FP    |  <----- FP
//	                                                    | locals & spills  |
//	                                                    |  callee-saved    |
//	                                           SP-----> +------------------+
//	                 (low address)                          (low address)
func (m *machine) setupPrologue() {
	// stp fp, lr, [sp, #-16]!
	stp := m.allocateInstr()
	stp.asStorePair64(fp, lr, addressModePreOrPostIndex(sp, -16, true))
	m.insert(stp)

	// mov fp, sp
	mov := m.allocateInstr()
	mov.asMove64(fp, sp)
	m.insert(mov)

	if size := m.frame.Size(); size > 0 {
		if hi := uint16(size >> 12); hi != 0 {
			sub := m.allocateInstr()
			sub.asALUImm12(aluOpSub, sp, sp, hi, 1, true)
			m.insert(sub)
		}
		if lo := uint16(size & 0xfff); lo != 0 {
			sub := m.allocateInstr()
			sub.asALUImm12(aluOpSub, sp, sp, lo, 0, true)
			m.insert(sub)
		}
	}

	for _, s := range m.frame.Saved() {
		m.storeBits(s.Reg, regImm(fp, s.Offset), 64)
	}
}

// lowerEntry binds the parameters to the TagArg instructions: register parameters are
// claimed in place, stack parameters stay in the caller's frame and aggregates passed by
// reference are copied into a local.
func (m *machine) lowerEntry() error {
	args := map[uint64]ir.Index{}
	for i := range m.fn.Body {
		inst := &m.fn.Body[i]
		if inst.Tag != ir.TagArg {
			continue
		}
		m.cur = ir.Index(i)
		if inst.Imm >= uint64(len(m.abi.Args)) {
			return backend.Unsupported("argument %d of a function with %d parameters", inst.Imm, len(m.abi.Args))
		}
		if _, dup := args[inst.Imm]; dup {
			return backend.Unsupported("argument %d defined twice", inst.Imm)
		}
		if inst.Type != m.abi.Args[inst.Imm].Type {
			return backend.Unsupported("argument %d of type %s declared as %s",
				inst.Imm, m.tab.Type(m.abi.Args[inst.Imm].Type), m.tab.Type(inst.Type))
		}
		args[inst.Imm] = ir.Index(i)
	}

	// Claim the register parameters first so that nothing below clobbers them.
	for k := range m.abi.Args {
		a := &m.abi.Args[k]
		idx, ok := args[uint64(k)]
		if !ok || a.Kind != backend.ABIArgKindReg {
			continue
		}
		m.cur = idx
		if a.ByRef() {
			m.regAlloc.Lock(a.Regs[0])
			continue
		}
		for r := 0; r < a.NumRegs(); r++ {
			if err := m.regAlloc.Claim(regalloc.Value(idx), a.Regs[r]); err != nil {
				return err
			}
		}
		if a.NumRegs() == 2 {
			m.tracker.Put(idx, backend.RegisterPair(a.Class(), a.Regs[0], a.Regs[1]))
		} else {
			m.tracker.Put(idx, backend.Register(a.Class(), a.Regs[0]))
		}
	}

	for k := range m.abi.Args {
		a := &m.abi.Args[k]
		idx, ok := args[uint64(k)]
		if !ok {
			continue
		}
		m.cur = idx
		var err error
		switch {
		case a.ByRef():
			err = m.copyArgByRef(idx, a)
		case a.Kind == backend.ABIArgKindReg:
			for r := 0; r < a.NumRegs(); r++ {
				m.canonicalizeArg(a.Regs[r], a.Shape.Bits[r], a.Shape.Signed[r])
			}
			m.insertSpillMarkers(idx, a.NumRegs())
		default:
			off := backend.IncomingArgOffset(int(a.Offset / 8))
			for r := 0; r < a.NumRegs(); r++ {
				if bits := a.Shape.Bits[r]; a.Class() == regalloc.RegTypeInt && bits < 32 {
					slot := regImm(fp, off+int64(8*r))
					m.loadBits(tmp, slot, bits, a.Shape.Signed[r])
					m.storeBits(tmp, slot, 64)
				}
			}
			m.tracker.Put(idx, backend.StackSlot(a.Class(), off))
		}
		if err != nil {
			return err
		}
	}
	m.regAlloc.ReleaseTemps()
	return nil
}

// canonicalizeArg extends a narrow integer parameter in r, since the caller leaves the upper
// bits unspecified.
func (m *machine) canonicalizeArg(r regalloc.RealReg, bits uint16, signed bool) {
	if regTypeOf(r) != regalloc.RegTypeInt || bits >= 32 {
		return
	}
	ext := m.allocateInstr()
	ext.asExtend(r, r, byte(bits), 32, signed)
	m.insert(ext)
}

func (m *machine) copyArgByRef(idx ir.Index, a *backend.ABIArg) error {
	src := a.Regs[0]
	if a.Kind == backend.ABIArgKindStack {
		var err error
		if src, err = m.regAlloc.AllocateTemp(regalloc.RegTypeInt, 0); err != nil {
			return err
		}
		m.loadSlot(src, backend.IncomingArgOffset(int(a.Offset/8)))
	}
	if _, err := m.allocLocal(a.Type); err != nil {
		return err
	}
	loc, err := m.tracker.Resolve(idx)
	if err != nil {
		return err
	}
	m.copyMemory(fp, loc.Offset, src, 0, a.Shape.Size)
	return nil
}
