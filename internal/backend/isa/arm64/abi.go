package arm64

import (
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// References to the registers of the procedure call standard.
// https://github.com/ARM-software/abi-aa/blob/main/aapcs64/aapcs64.rst#machine-registers
var (
	intParamResultRegs   = []regalloc.RealReg{x0, x1, x2, x3, x4, x5, x6, x7}
	floatParamResultRegs = []regalloc.RealReg{v0, v1, v2, v3, v4, v5, v6, v7}
)

// ArgsResultsRegs implements backend.FunctionABIRegInfo. Results use at most two registers of
// a class.
func (m *machine) ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg) {
	return intParamResultRegs, floatParamResultRegs, intParamResultRegs[:2], floatParamResultRegs[:2]
}

// argSource is the location of one register-sized piece of an outgoing value.
type argSource struct {
	loc   backend.Location
	half  int
	bits  uint16
	class regalloc.RegType
}

// sources returns the pieces of the operand r passed per abi.
func (m *machine) sources(r ir.Ref, a *backend.ABIArg) ([]argSource, error) {
	loc, err := m.location(r)
	if err != nil {
		return nil, err
	}
	if a.ByRef() {
		if loc.Kind != backend.LocStackSlot || loc.Class != regalloc.RegTypeInvalid {
			return nil, backend.Unsupported("aggregate argument %s at %s", r, loc)
		}
		return []argSource{{loc: loc, class: regalloc.RegTypeInt}}, nil
	}
	ret := make([]argSource, a.NumRegs())
	for k := range ret {
		ret[k] = argSource{loc: loc, half: k, bits: a.Shape.Bits[k], class: a.Class()}
	}
	return ret, nil
}

// register returns the register holding s, if any.
func (s *argSource) register() (regalloc.RealReg, bool) {
	switch s.loc.Kind {
	case backend.LocRegister:
		return s.loc.Reg, true
	case backend.LocRegisterPair:
		if s.half == 1 {
			return s.loc.Reg2, true
		}
		return s.loc.Reg, true
	}
	return regalloc.RealRegInvalid, false
}

// materialize writes a source which is not in a register into rd.
func (m *machine) materialize(rd regalloc.RealReg, s *argSource) error {
	switch s.loc.Kind {
	case backend.LocImmediate:
		m.loadImmediate(rd, s.loc.Imm, s.class == regalloc.RegTypeInt || s.bits == 64)
	case backend.LocStackSlot:
		if s.loc.Class == regalloc.RegTypeInvalid {
			// By reference: the address of the aggregate.
			m.addConst64(rd, fp, s.loc.Offset)
		} else {
			m.loadSlot(rd, s.loc.Offset+int64(8*s.half))
		}
	default:
		return backend.Unsupported("argument at %s", s.loc)
	}
	return nil
}

// moveInto sets dsts to the sources: register sources move in parallel first, then the rest is
// written directly into the destinations.
func (m *machine) moveInto(dsts []regalloc.RealReg, srcs []argSource) error {
	var pdsts, psrcs []regalloc.RealReg
	for k := range srcs {
		if r, ok := srcs[k].register(); ok {
			pdsts = append(pdsts, dsts[k])
			psrcs = append(psrcs, r)
		}
	}
	m.parallelMove(pdsts, psrcs)
	for k := range srcs {
		if _, ok := srcs[k].register(); ok {
			continue
		}
		if err := m.materialize(dsts[k], &srcs[k]); err != nil {
			return err
		}
	}
	return nil
}

// lowerCall lowers a call following the procedure call standard:
//
//	sub sp, sp, #outgoing      ;; if any argument is on the stack
//	str ..., [sp, #offset]     ;; stack arguments
//	mov x0.., v0.., ...        ;; register arguments
//	bl callee | blr x16
//	add sp, sp, #outgoing
//
// Every value in a caller-saved register which is read after the call is spilled first.
func (m *machine) lowerCall(inst *ir.Instruction) error {
	callee, args := inst.Args[0], inst.Args[1:]
	params := make([]ir.TypeID, len(args))
	for k, a := range args {
		params[k] = m.fn.TypeOf(a)
	}
	var abi backend.FunctionABI
	if err := abi.Init(m.tab, params, inst.Type, m); err != nil {
		return err
	}

	if err := m.regAlloc.SpillIn(regInfo.CallerSavedRegisters, func(v regalloc.Value) bool {
		return m.liveness.LiveAfter(ir.Index(v), m.cur)
	}); err != nil {
		return err
	}

	outgoing := abi.AlignedArgStackSize()
	if outgoing > 0 {
		m.addConst64(sp, sp, -outgoing)
	}

	var dsts []regalloc.RealReg
	var srcs []argSource
	for k, a := range args {
		abiArg := &abi.Args[k]
		pieces, err := m.sources(a, abiArg)
		if err != nil {
			return err
		}
		if abiArg.Kind == backend.ABIArgKindReg {
			dsts = append(dsts, abiArg.Regs[:len(pieces)]...)
			srcs = append(srcs, pieces...)
			continue
		}
		for p := range pieces {
			src, ok := pieces[p].register()
			if !ok {
				src = tmp
				if pieces[p].class == regalloc.RegTypeFloat {
					src = fpuTmp
				}
				if err := m.materialize(src, &pieces[p]); err != nil {
					return err
				}
			}
			m.storeBits(src, regImm(sp, abiArg.Offset+int64(8*p)), 64)
		}
	}

	call := m.allocateInstr()
	if callee.IsSymbol() {
		call.asCall(callee.Symbol())
	} else {
		loc, err := m.location(callee)
		if err != nil {
			return err
		}
		s := argSource{loc: loc, bits: 64, class: regalloc.RegTypeInt}
		if r, ok := s.register(); ok {
			m.insertMove(tmp, r)
		} else if err := m.materialize(tmp, &s); err != nil {
			return err
		}
		call.asCallIndirect(tmp)
	}

	if err := m.moveInto(dsts, srcs); err != nil {
		return err
	}
	m.insert(call)

	if outgoing > 0 {
		m.addConst64(sp, sp, outgoing)
	}

	for _, a := range inst.Args {
		if a.IsInst() && m.liveness.DiesAt(a.Index(), m.cur) {
			m.regAlloc.Free(regalloc.Value(a.Index()))
		}
	}
	return m.defineResult(&abi.Ret)
}

// defineResult binds the current instruction to the result registers of a call.
func (m *machine) defineResult(ret *backend.ABIArg) error {
	if ret.Kind == backend.ABIArgKindNone {
		m.tracker.Put(m.cur, backend.None())
		return nil
	}
	n := ret.NumRegs()
	for k := 0; k < n; k++ {
		if err := m.regAlloc.Claim(regalloc.Value(m.cur), ret.Regs[k]); err != nil {
			return err
		}
		m.regAlloc.Lock(ret.Regs[k])
		m.canonicalizeArg(ret.Regs[k], ret.Shape.Bits[k], ret.Shape.Signed[k])
	}
	if n == 2 {
		m.tracker.Put(m.cur, backend.RegisterPair(ret.Class(), ret.Regs[0], ret.Regs[1]))
	} else {
		m.tracker.Put(m.cur, backend.Register(ret.Class(), ret.Regs[0]))
	}
	return nil
}

// lowerReturn moves the result into the result registers and emits the epilogue.
func (m *machine) lowerReturn(inst *ir.Instruction) error {
	if len(inst.Args) > 0 && m.abi.Ret.Kind == backend.ABIArgKindReg {
		if m.fn.TypeOf(inst.Args[0]) != m.abi.Ret.Type {
			return backend.Unsupported("returning %s from a function of %s",
				m.typeOf(inst.Args[0]), m.tab.Type(m.abi.Ret.Type))
		}
		srcs, err := m.sources(inst.Args[0], &m.abi.Ret)
		if err != nil {
			return err
		}
		if err := m.moveInto(m.abi.Ret.Regs[:len(srcs)], srcs); err != nil {
			return err
		}
	} else if m.abi.Ret.Kind == backend.ABIArgKindReg {
		return backend.Unsupported("missing result of %s", m.tab.Type(m.abi.Ret.Type))
	}

	ep := m.allocateInstr()
	ep.asEpilogue()
	m.insert(ep)
	m.tracker.Put(m.cur, backend.None())
	return nil
}
