package arm64

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// Compiler lowers IR functions into arm64 machine code. It is safe for concurrent use:
// every Compile call works on its own machine.
type Compiler struct {
	atomics atomicLowering
}

// NewCompiler returns a Compiler. lse selects the ARMv8.1 atomic instructions instead of
// exclusive load/store loops.
func NewCompiler(lse bool) *Compiler {
	c := &Compiler{atomics: llscAtomics{}}
	if lse {
		c.atomics = lseAtomics{}
	}
	return c
}

// Compile lowers fn. On failure the error is a *backend.CompileError and no code is returned.
func (c *Compiler) Compile(fn *ir.Function, tab ir.SymbolTable) (*backend.Code, error) {
	m := newMachine(c.atomics, fn, tab)
	return m.compile()
}

type (
	// machine holds the state of compiling one function.
	machine struct {
		fn       *ir.Function
		tab      ir.SymbolTable
		atomics  atomicLowering
		tracker  *backend.Tracker
		regAlloc *regalloc.Allocator
		liveness *backend.Liveness
		frame    backend.Frame
		abi      backend.FunctionABI

		// instrs is the function body in program order. The prologue is prepended once the
		// frame is final.
		instrs []*instruction
		// fixups are the branches to resolve once the offsets of the blocks are known.
		fixups []fixup
		// blockStarts maps a TagBlock to the index of its first instruction.
		blockStarts map[ir.Index]int
		// spillMarkers are the nop0 placed right after the definition of a value in registers,
		// one per register. They become stores if the value is ever spilled.
		spillMarkers map[ir.Index][]int
		spillSlots   map[ir.Index]spillSlot
		// deaths lists the values whose last use is the key.
		deaths map[ir.Index][]ir.Index
		// pinned counts the loops a value is pinned for, and unpinAt lists the values to
		// unpin at the last back edge of a loop.
		pinned  map[ir.Index]int
		unpinAt map[ir.Index][]ir.Index
		lines   []lineMark
		// cur is the instruction being lowered.
		cur ir.Index
	}

	fixup struct {
		instr  int
		target ir.Index
	}

	spillSlot struct {
		offset int64
		size   uint64
	}

	lineMark struct {
		instr        int
		line, column uint32
	}
)

func newMachine(atomics atomicLowering, fn *ir.Function, tab ir.SymbolTable) *machine {
	m := &machine{
		fn:           fn,
		tab:          tab,
		atomics:      atomics,
		tracker:      backend.NewTracker(fn),
		liveness:     backend.ComputeLiveness(fn),
		blockStarts:  map[ir.Index]int{},
		spillMarkers: map[ir.Index][]int{},
		spillSlots:   map[ir.Index]spillSlot{},
		deaths:       map[ir.Index][]ir.Index{},
		pinned:       map[ir.Index]int{},
		unpinAt:      map[ir.Index][]ir.Index{},
	}
	m.regAlloc = regalloc.NewAllocator(regInfo, m)
	for i := range fn.Body {
		v := ir.Index(i)
		if last, ok := m.liveness.LastUse(v); ok {
			m.deaths[last] = append(m.deaths[last], v)
		}
	}
	return m
}

// allocateInstr returns a new instruction. Instructions are not pooled since a machine
// lives for one function only.
func (m *machine) allocateInstr() *instruction {
	return &instruction{}
}

// insert appends i to the function body.
func (m *machine) insert(i *instruction) {
	m.instrs = append(m.instrs, i)
}

func (m *machine) allocateNop() *instruction {
	instr := m.allocateInstr()
	instr.asNop0()
	return instr
}

func (m *machine) compile() (*backend.Code, error) {
	if err := m.abi.Init(m.tab, m.fn.Params, m.fn.Result, m); err != nil {
		return nil, &backend.CompileError{Function: m.fn.Name, Err: err}
	}
	if err := m.lowerEntry(); err != nil {
		return nil, m.errorAt(err)
	}
	for i := range m.fn.Body {
		if err := m.lowerInstr(ir.Index(i)); err != nil {
			return nil, m.errorAt(err)
		}
	}
	if !m.endsWithTerminator() {
		udf := m.allocateInstr()
		udf.asUDF()
		m.insert(udf)
	}

	code, err := m.encode()
	if err != nil {
		return nil, &backend.CompileError{Function: m.fn.Name, Err: err}
	}
	return code, nil
}

func (m *machine) errorAt(err error) error {
	ce := &backend.CompileError{Function: m.fn.Name, Index: m.cur, Err: err}
	if int(m.cur) < len(m.fn.Body) {
		ce.Tag = m.fn.Body[m.cur].Tag
	}
	return ce
}

func (m *machine) endsWithTerminator() bool {
	if len(m.fn.Body) == 0 {
		return false
	}
	switch m.fn.Body[len(m.fn.Body)-1].Tag {
	case ir.TagBr, ir.TagCondBr, ir.TagSwitch, ir.TagRet, ir.TagUnreachable:
		return true
	}
	return false
}

// lowerInstr lowers the instruction at idx and then releases what died there.
func (m *machine) lowerInstr(idx ir.Index) error {
	m.cur = idx
	inst := &m.fn.Body[idx]
	if err := m.lower(inst); err != nil {
		return err
	}
	loc, err := m.tracker.Resolve(idx)
	if err != nil {
		return err
	}

	if _, ok := m.spillMarkers[idx]; !ok {
		switch loc.Kind {
		case backend.LocRegister:
			m.insertSpillMarkers(idx, 1)
		case backend.LocRegisterPair:
			m.insertSpillMarkers(idx, 2)
		}
	}

	for _, v := range m.deaths[idx] {
		m.release(v)
	}
	if _, used := m.liveness.LastUse(idx); !used {
		m.release(idx)
	}
	m.regAlloc.ReleaseTemps()
	for _, v := range m.unpinAt[idx] {
		if m.pinned[v]--; m.pinned[v] == 0 {
			m.regAlloc.Unpin(regalloc.Value(v))
		}
	}
	return nil
}

func (m *machine) insertSpillMarkers(v ir.Index, n int) {
	markers := make([]int, n)
	for k := range markers {
		markers[k] = len(m.instrs)
		m.insert(m.allocateNop())
	}
	m.spillMarkers[v] = markers
}

// release frees the registers or the spill slot of a dead value.
func (m *machine) release(v ir.Index) {
	m.regAlloc.Free(regalloc.Value(v))
	if s, ok := m.spillSlots[v]; ok {
		m.frame.FreeSpillSlot(s.offset, s.size, 8, m.cur)
		delete(m.spillSlots, v)
	}
}

// Spill implements regalloc.Spiller. The spill markers after the definition of v become
// stores, so the slot holds the value on every path from the definition onwards.
func (m *machine) Spill(v regalloc.Value, regs []regalloc.RealReg) error {
	idx := ir.Index(v)
	markers := m.spillMarkers[idx]
	if len(markers) != len(regs) {
		panic(fmt.Sprintf("BUG: %%%d has %d spill markers for %d registers", idx, len(markers), len(regs)))
	}
	loc, err := m.tracker.Resolve(idx)
	if err != nil {
		return err
	}

	def := idx
	if m.fn.Body[idx].Tag == ir.TagArg {
		// Arguments are stored by the entry block, before any other definition.
		def = 0
	}
	size := uint64(8 * len(regs))
	off, err := m.frame.AllocSpillSlot(size, 8, def)
	if err != nil {
		return err
	}
	for k, r := range regs {
		m.instrs[markers[k]].asStore(r, regImm(fp, off+int64(8*k)), 64)
	}
	m.tracker.Put(idx, backend.StackSlot(loc.Class, off))
	m.spillSlots[idx] = spillSlot{offset: off, size: size}
	return nil
}

func (m *machine) typeOf(r ir.Ref) *ir.Type {
	return m.tab.Type(m.fn.TypeOf(r))
}

func (m *machine) shapeOf(typ ir.TypeID) (backend.Shape, error) {
	return backend.ShapeOf(m.tab, typ)
}

// location returns where the operand r lives. Constants are immediates in their register
// representation.
func (m *machine) location(r ir.Ref) (backend.Location, error) {
	switch {
	case r.IsInst():
		return m.tracker.Resolve(r.Index())
	case r.IsConst():
		return backend.Immediate(canonicalBits(m.tab.Type(r.ConstType()), r.Bits())), nil
	}
	return backend.Location{}, backend.Unsupported("operand %s", r)
}

// constOperand returns the register representation of r if it is known at compile time.
func (m *machine) constOperand(r ir.Ref) (uint64, bool) {
	loc, err := m.location(r)
	if err != nil || loc.Kind != backend.LocImmediate {
		return 0, false
	}
	return loc.Imm, true
}

// reg returns a register holding the scalar operand r. Registers of values are locked for
// the current instruction, immediates and spilled values are loaded into scratch registers.
func (m *machine) reg(r ir.Ref) (regalloc.RealReg, error) {
	loc, err := m.location(r)
	if err != nil {
		return regalloc.RealRegInvalid, err
	}
	switch loc.Kind {
	case backend.LocRegister:
		m.regAlloc.Lock(loc.Reg)
		return loc.Reg, nil
	case backend.LocImmediate:
		shape, err := m.shapeOf(m.fn.TypeOf(r))
		if err != nil {
			return regalloc.RealRegInvalid, err
		}
		if shape.Kind != backend.ShapeScalar {
			return regalloc.RealRegInvalid, backend.Unsupported("constant %s used as a scalar", r)
		}
		rd, err := m.regAlloc.AllocateTemp(shape.Class, 0)
		if err != nil {
			return regalloc.RealRegInvalid, err
		}
		m.loadImmediate(rd, loc.Imm, shape.Bits[0] == 64)
		return rd, nil
	case backend.LocStackSlot:
		if loc.Class == regalloc.RegTypeInvalid {
			return regalloc.RealRegInvalid, backend.Unsupported("aggregate %s used as a scalar", r)
		}
		rd, err := m.regAlloc.AllocateTemp(loc.Class, 0)
		if err != nil {
			return regalloc.RealRegInvalid, err
		}
		m.loadSlot(rd, loc.Offset)
		return rd, nil
	}
	return regalloc.RealRegInvalid, backend.Unsupported("scalar operand %s at %s", r, loc)
}

// regOrZero is reg, but returns xzr for an integer zero.
func (m *machine) regOrZero(r ir.Ref) (regalloc.RealReg, error) {
	if c, ok := m.constOperand(r); ok && c == 0 {
		if shape, err := m.shapeOf(m.fn.TypeOf(r)); err == nil && shape.Class == regalloc.RegTypeInt {
			return xzr, nil
		}
	}
	return m.reg(r)
}

// regPair returns the registers holding the two halves of r.
func (m *machine) regPair(r ir.Ref) (regalloc.RealReg, regalloc.RealReg, error) {
	loc, err := m.location(r)
	if err != nil {
		return regalloc.RealRegInvalid, regalloc.RealRegInvalid, err
	}
	switch loc.Kind {
	case backend.LocRegisterPair:
		m.regAlloc.Lock(loc.Reg)
		m.regAlloc.Lock(loc.Reg2)
		return loc.Reg, loc.Reg2, nil
	case backend.LocStackSlot:
		if loc.Class != regalloc.RegTypeInvalid {
			r1, err := m.regAlloc.AllocateTemp(loc.Class, 0)
			if err != nil {
				return regalloc.RealRegInvalid, regalloc.RealRegInvalid, err
			}
			r2, err := m.regAlloc.AllocateTemp(loc.Class, 0)
			if err != nil {
				return regalloc.RealRegInvalid, regalloc.RealRegInvalid, err
			}
			m.loadSlot(r1, loc.Offset)
			m.loadSlot(r2, loc.Offset+8)
			return r1, r2, nil
		}
	}
	return regalloc.RealRegInvalid, regalloc.RealRegInvalid, backend.Unsupported("pair operand %s at %s", r, loc)
}

// allocResult assigns a register of class to the current instruction. Registers of the
// operands dying here become available, but stay locked so that only the result can take
// them. With reuse the register of the first operand is preferred, so that e.g. "add w0,
// w0, w1" needs no move. Callers must have read every operand beforehand.
func (m *machine) allocResult(class regalloc.RegType, reuse bool) (regalloc.RealReg, error) {
	prefer := m.releaseDyingOperands(class, reuse)
	r, err := m.regAlloc.AllocatePreferring(regalloc.Value(m.cur), class, prefer)
	if err != nil {
		return regalloc.RealRegInvalid, err
	}
	m.regAlloc.Lock(r)
	return r, nil
}

// allocResultPair assigns two registers of class to the current instruction.
func (m *machine) allocResultPair(class regalloc.RegType) (regalloc.RealReg, regalloc.RealReg, error) {
	m.releaseDyingOperands(class, false)
	r1, err := m.regAlloc.Allocate(regalloc.Value(m.cur), class)
	if err != nil {
		return regalloc.RealRegInvalid, regalloc.RealRegInvalid, err
	}
	m.regAlloc.Lock(r1)
	r2, err := m.regAlloc.Allocate(regalloc.Value(m.cur), class)
	if err != nil {
		return regalloc.RealRegInvalid, regalloc.RealRegInvalid, err
	}
	m.regAlloc.Lock(r2)
	return r1, r2, nil
}

func (m *machine) releaseDyingOperands(class regalloc.RegType, reuse bool) regalloc.RealReg {
	prefer := regalloc.RealRegInvalid
	for k, a := range m.fn.Body[m.cur].Args {
		if !a.IsInst() || !m.liveness.DiesAt(a.Index(), m.cur) {
			continue
		}
		v := regalloc.Value(a.Index())
		regs := m.regAlloc.Registers(v)
		if len(regs) == 0 {
			continue
		}
		if k == 0 && reuse && len(regs) == 1 && regTypeOf(regs[0]) == class {
			prefer = regs[0]
		}
		for _, r := range regs {
			m.regAlloc.Lock(r)
		}
		m.regAlloc.Free(v)
	}
	return prefer
}

func (m *machine) defineReg(class regalloc.RegType, r regalloc.RealReg) {
	m.tracker.Put(m.cur, backend.Register(class, r))
}

// defineCopy defines the current result as a copy of the scalar r.
func (m *machine) defineCopy(class regalloc.RegType, r ir.Ref) error {
	loc, err := m.location(r)
	if err != nil {
		return err
	}
	if loc.Kind == backend.LocImmediate {
		m.tracker.Put(m.cur, loc)
		return nil
	}
	src, err := m.reg(r)
	if err != nil {
		return err
	}
	rd, err := m.allocResult(class, true)
	if err != nil {
		return err
	}
	m.insertMove(rd, src)
	m.defineReg(class, rd)
	return nil
}

// insertMove copies rn into rd, both of the same class.
func (m *machine) insertMove(rd, rn regalloc.RealReg) {
	if rd == rn {
		return
	}
	mov := m.allocateInstr()
	if regTypeOf(rd) == regalloc.RegTypeFloat {
		mov.asFpuMov64(rd, rn)
	} else {
		mov.asMove64(rd, rn)
	}
	m.insert(mov)
}

// parallelMove copies srcs[k] into dsts[k] for every k as if all moves happened at once.
// Cycles are broken through encTmp or fpuCycleTmp.
func (m *machine) parallelMove(dsts, srcs []regalloc.RealReg) {
	type move struct{ dst, src regalloc.RealReg }
	var pending []move
	for k := range dsts {
		if dsts[k] != srcs[k] {
			pending = append(pending, move{dst: dsts[k], src: srcs[k]})
		}
	}

	for len(pending) > 0 {
		progress := false
		for k := 0; k < len(pending); k++ {
			blocked := false
			for j := range pending {
				if j != k && pending[j].src == pending[k].dst {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			m.insertMove(pending[k].dst, pending[k].src)
			pending = append(pending[:k], pending[k+1:]...)
			k--
			progress = true
		}
		if progress {
			continue
		}

		// Every remaining destination is read by another move: a cycle.
		src := pending[0].src
		scratch := encTmp
		if regTypeOf(src) == regalloc.RegTypeFloat {
			scratch = fpuCycleTmp
		}
		m.insertMove(scratch, src)
		for k := range pending {
			if pending[k].src == src {
				pending[k].src = scratch
			}
		}
	}
}

func (m *machine) insertBr(target ir.Index) {
	b := m.allocateInstr()
	b.asBr(target)
	m.fixups = append(m.fixups, fixup{instr: len(m.instrs), target: target})
	m.insert(b)
}

func (m *machine) insertCondBr(c cond, target ir.Index, _64bit bool) {
	b := m.allocateInstr()
	b.asCondBr(c, target, _64bit)
	m.fixups = append(m.fixups, fixup{instr: len(m.instrs), target: target})
	m.insert(b)
}

// enterLoop is called at a block which starts a loop. Values defined before the loop and read
// inside it must stay where they are for the whole loop: they are either pinned to their
// registers, or spilled right away. With a call inside the loop, those in caller-saved
// registers are spilled since the call would spill them in the middle of the loop.
func (m *machine) enterLoop(header ir.Index) error {
	end, ok := m.liveness.LoopEnd(header)
	if !ok {
		return nil
	}
	usedInLoop := map[ir.Index]bool{}
	hasCall := false
	for i := header; i <= end; i++ {
		inst := &m.fn.Body[i]
		if inst.Tag == ir.TagCall {
			hasCall = true
		}
		for _, a := range inst.Args {
			if a.IsInst() && a.Index() < header {
				usedInLoop[a.Index()] = true
			}
		}
	}

	for _, class := range []regalloc.RegType{regalloc.RegTypeInt, regalloc.RegTypeFloat} {
		budget := len(regInfo.AllocatableRegisters[class]) - minFreeRegsInLoop
		live := m.regAlloc.Live(class)
		for _, v := range live {
			if m.pinned[ir.Index(v)] > 0 {
				budget--
			}
		}
		for _, v := range live {
			idx := ir.Index(v)
			if !usedInLoop[idx] || m.pinned[idx] > 0 && !hasCall {
				continue
			}
			inCallerSaved := false
			for _, r := range m.regAlloc.Registers(v) {
				if regInfo.CallerSavedRegisters.Has(r) {
					inCallerSaved = true
				}
			}
			if (hasCall && inCallerSaved) || budget <= 0 {
				if err := m.regAlloc.Spill(v); err != nil {
					return err
				}
				continue
			}
			if m.pinned[idx] == 0 {
				budget--
			}
			m.pinned[idx]++
			m.regAlloc.Pin(v)
			m.unpinAt[end] = append(m.unpinAt[end], idx)
		}
	}
	return nil
}

// minFreeRegsInLoop is the number of registers per class left for values defined in a loop.
const minFreeRegsInLoop = 8

// encode lays out the prologue and the body, resolves the branches and encodes everything.
func (m *machine) encode() (*backend.Code, error) {
	var saved []regalloc.RealReg
	m.regAlloc.UsedIn(regInfo.CalleeSavedRegisters).Range(func(r regalloc.RealReg) {
		saved = append(saved, r)
	})
	m.frame.Finalize(saved)

	body := m.instrs
	m.instrs = nil
	m.setupPrologue()
	shift := len(m.instrs)
	m.instrs = append(m.instrs, body...)

	e := &encoder{saved: m.frame.Saved()}
	offsets := make([]int64, len(m.instrs)+1)
	for k, i := range m.instrs {
		offsets[k] = e.offset()
		if err := i.encode(e); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", i, err)
		}
	}
	offsets[len(m.instrs)] = e.offset()

	for _, f := range m.fixups {
		start, ok := m.blockStarts[f.target]
		if !ok {
			return nil, backend.Unsupported("branch to %%%d which is not a block", f.target)
		}
		k := f.instr + shift
		m.instrs[k].resolveBranch(offsets[start+shift] - offsets[k])
	}

	e.reset()
	for _, i := range m.instrs {
		if err := i.encode(e); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", i, err)
		}
	}

	code := &backend.Code{
		Name:        m.fn.Name,
		Bytes:       make([]byte, 4*len(e.words)),
		Relocations: append([]backend.Relocation(nil), e.relocs...),
		Frame:       backend.FrameInfo{Size: m.frame.Size(), Saved: m.frame.Saved()},
		Spills:      m.regAlloc.Spills(),
	}
	for k, w := range e.words {
		binary.LittleEndian.PutUint32(code.Bytes[4*k:], w)
	}
	for _, l := range m.lines {
		code.Lines = append(code.Lines, backend.LineEntry{Offset: offsets[l.instr+shift], Line: l.line, Column: l.column})
	}
	return code, nil
}

// Format returns the string representation of the lowered instructions.
func (m *machine) Format() string {
	begins := map[int]ir.Index{}
	for b, k := range m.blockStarts {
		begins[k] = b
	}
	var lines []string
	for k, i := range m.instrs {
		if b, ok := begins[k]; ok {
			lines = append(lines, fmt.Sprintf("L%d:", b))
		}
		if i.kind == nop0 {
			continue
		}
		lines = append(lines, "\t"+i.String())
	}
	return "\n" + strings.Join(lines, "\n") + "\n"
}
