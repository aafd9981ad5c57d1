package arm64emu

import (
	"math"
	"math/bits"
)

// exec executes one instruction word and advances PC.
func (m *Machine) exec(w uint32) (err error) {
	next := m.PC + 4
	rd, rn, rm := w&0x1f, w>>5&0x1f, w>>16&0x1f
	sf := w>>31 == 1

	switch {
	case w == 0:
		return ErrUndefined
	case w&0xffe0001f == 0xd4200000:
		return ErrBreakpoint
	case w&0xfffffc1f == 0xd65f0000: // ret
		next = m.x(rn)
	case w&0xfffffc1f == 0xd63f0000: // blr
		target := m.x(rn)
		m.X[30] = next
		next = target
	case w&0xfffffc1f == 0xd61f0000: // br
		next = m.x(rn)
	case w&0x7c000000 == 0x14000000: // b, bl
		if sf {
			m.X[30] = next
		}
		next = m.PC + uint64(signExtend(uint64(w&0x3ff_ffff), 26)*4)
	case w&0x7e000000 == 0x34000000: // cbz, cbnz
		v := m.x(rd)
		if !sf {
			v &= 0xffff_ffff
		}
		if (v != 0) == (w>>24&1 == 1) {
			next = m.PC + uint64(signExtend(uint64(w>>5&0x7ffff), 19)*4)
		}
	case w&0xff000010 == 0x54000000: // b.cond
		if m.cond(w & 0xf) {
			next = m.PC + uint64(signExtend(uint64(w>>5&0x7ffff), 19)*4)
		}
	case w == 0xd503201f: // nop
	case w&0xfffff0ff == 0xd503305f: // clrex
		m.exclusive = false
	case w&0xfffff01f == 0xd503301f: // dmb, dsb, isb
	case w&0x1f800000 == 0x12800000:
		err = m.moveWide(w, rd, sf)
	case w&0x1f800000 == 0x11000000: // add/sub (immediate)
		imm := uint64(w >> 10 & 0xfff)
		if w>>22&1 == 1 {
			imm <<= 12
		}
		setFlags := w>>29&1 == 1
		m.addSub(sf, w>>30&1 == 1, setFlags, m.xsp(rn), imm, rd, !setFlags)
	case w&0x1f800000 == 0x12000000: // logical (immediate)
		width := uint(32)
		if sf {
			width = 64
		}
		n := w >> 22 & 1
		wmask, _, ok := decodeBitMasks(n, w>>10&0x3f, w>>16&0x3f, true, width)
		if !ok || (!sf && n == 1) {
			return ErrUnknownInstruction
		}
		opc := w >> 29 & 3
		m.logical(opc, m.x(rn), wmask, rd, sf, opc != 3)
	case w&0x1f800000 == 0x13000000:
		err = m.bitfield(w, rd, rn, sf)
	case w&0x1f000000 == 0x0a000000: // logical (shifted register)
		amount := w >> 10 & 0x3f
		if !sf && amount > 31 {
			return ErrUnknownInstruction
		}
		b := shifted(m.x(rm), w>>22&3, amount, sf)
		if w>>21&1 == 1 {
			b = ^b
		}
		m.logical(w>>29&3, m.x(rn), b, rd, sf, false)
	case w&0x1f200000 == 0x0b000000: // add/sub (shifted register)
		typ, amount := w>>22&3, w>>10&0x3f
		if typ == 3 || (!sf && amount > 31) {
			return ErrUnknownInstruction
		}
		m.addSub(sf, w>>30&1 == 1, w>>29&1 == 1, m.x(rn), shifted(m.x(rm), typ, amount, sf), rd, false)
	case w&0x1f200000 == 0x0b200000: // add/sub (extended register)
		amount := w >> 10 & 7
		if w>>22&3 != 0 || amount > 4 {
			return ErrUnknownInstruction
		}
		setFlags := w>>29&1 == 1
		m.addSub(sf, w>>30&1 == 1, setFlags, m.xsp(rn), extendReg(m.x(rm), w>>13&7, amount), rd, !setFlags)
	case w&0x1fe00000 == 0x1a800000:
		err = m.condSelect(w, rd, rn, rm, sf)
	case w&0x7fe00000 == 0x1ac00000:
		err = m.dataProcessing2(w, rd, rn, rm, sf)
	case w&0x7fe00000 == 0x5ac00000:
		err = m.dataProcessing1(w, rd, rn, sf)
	case w&0x1f000000 == 0x1b000000:
		err = m.dataProcessing3(w, rd, rn, rm, sf)
	case w&0x3f000000 == 0x08000000:
		err = m.exclusiveOrOrdered(w, rd, rn)
	case w&0x3b000000 == 0x18000000:
		err = m.loadLiteral(w, rd)
	case w&0x3a000000 == 0x28000000:
		err = m.loadStorePair(w, rd, rn)
	case w&0x3f200c00 == 0x38200000:
		err = m.atomicMemory(w, rd, rn)
	case w&0x3b000000 == 0x39000000, w&0x3b200000 == 0x38000000, w&0x3b200c00 == 0x38200800:
		err = m.loadStore(w, rd, rn)
	case w&0xbfe0fc00 == 0x0ea01c00: // orr (vector), the mov alias
		m.D[rd] = m.D[rn] | m.D[rm]
	case w&0x5f000000 == 0x1e000000:
		err = m.float(w, rd, rn, rm, sf)
	default:
		return ErrUnknownInstruction
	}
	if err != nil {
		return err
	}
	m.PC = next
	return nil
}

func signExtend(v uint64, n uint) int64 {
	return int64(v<<(64-n)) >> (64 - n)
}

func ones(n uint32) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

func widthOf(sf bool) uint {
	if sf {
		return 64
	}
	return 32
}

func ror(x uint64, r uint32, width uint) uint64 {
	if width == 64 {
		return bits.RotateLeft64(x, -int(r))
	}
	return uint64(bits.RotateLeft32(uint32(x), -int(r)))
}

// cond evaluates a condition code against NZCV.
func (m *Machine) cond(c uint32) bool {
	var r bool
	switch c >> 1 {
	case 0: // eq
		r = m.z
	case 1: // hs
		r = m.c
	case 2: // mi
		r = m.n
	case 3: // vs
		r = m.v
	case 4: // hi
		r = m.c && !m.z
	case 5: // ge
		r = m.n == m.v
	case 6: // gt
		r = m.n == m.v && !m.z
	case 7: // al
		r = true
	}
	if c&1 == 1 && c != 0xf {
		r = !r
	}
	return r
}

func addWithCarry(x, y, carry uint64, sf bool) (r uint64, n, z, c, v bool) {
	if sf {
		var co uint64
		r, co = bits.Add64(x, y, carry)
		c = co == 1
		v = ((x^r)&(y^r))>>63 == 1
		n = r>>63 == 1
	} else {
		x, y = x&0xffff_ffff, y&0xffff_ffff
		s := x + y + carry
		r = s & 0xffff_ffff
		c = s>>32 == 1
		v = ((x^r)&(y^r))>>31&1 == 1
		n = r>>31 == 1
	}
	z = r == 0
	return
}

func (m *Machine) addSub(sf, sub, setFlags bool, x, y uint64, rd uint32, rdIsSP bool) {
	var carry uint64
	if sub {
		y, carry = ^y, 1
	}
	r, n, z, c, v := addWithCarry(x, y, carry, sf)
	if setFlags {
		m.n, m.z, m.c, m.v = n, z, c, v
	}
	if rdIsSP {
		m.setXSP(rd, r, sf)
	} else {
		m.setX(rd, r, sf)
	}
}

func (m *Machine) logical(opc uint32, a, b uint64, rd uint32, sf, rdIsSP bool) {
	var r uint64
	switch opc {
	case 0, 3:
		r = a & b
	case 1:
		r = a | b
	case 2:
		r = a ^ b
	}
	if !sf {
		r &= 0xffff_ffff
	}
	if opc == 3 {
		m.n = r>>(widthOf(sf)-1)&1 == 1
		m.z = r == 0
		m.c, m.v = false, false
	}
	if rdIsSP {
		m.setXSP(rd, r, sf)
	} else {
		m.setX(rd, r, sf)
	}
}

// shifted applies a shift of the given type (lsl, lsr, asr, ror) to v.
func shifted(v uint64, typ, amount uint32, sf bool) uint64 {
	width := widthOf(sf)
	if !sf {
		v &= 0xffff_ffff
	}
	switch typ {
	case 0:
		v <<= amount
	case 1:
		v >>= amount
	case 2:
		if sf {
			v = uint64(int64(v) >> amount)
		} else {
			v = uint64(uint32(int32(uint32(v)) >> amount))
		}
	case 3:
		v = ror(v, amount, width)
	}
	if !sf {
		v &= 0xffff_ffff
	}
	return v
}

// extendReg applies an extend option (uxtb..sxtx) then a left shift.
func extendReg(v uint64, option, shift uint32) uint64 {
	size := uint(8) << (option & 3)
	if size < 64 {
		if option>>2 == 1 {
			v = uint64(signExtend(v, size))
		} else {
			v &= 1<<size - 1
		}
	}
	return v << shift
}

// decodeBitMasks follows the DecodeBitMasks pseudocode of the architecture manual.
func decodeBitMasks(n, imms, immr uint32, immediate bool, width uint) (wmask, tmask uint64, ok bool) {
	combined := n<<6 | ^imms&0x3f
	length := bits.Len32(combined) - 1
	if length < 1 {
		return 0, 0, false
	}
	esize := uint(1) << length
	if esize > width {
		return 0, 0, false
	}
	levels := uint32(esize - 1)
	if immediate && imms&levels == levels {
		return 0, 0, false
	}
	s, r := imms&levels, immr&levels
	diff := (s - r) & levels

	welem, telem := ones(s+1), ones(diff+1)
	if r != 0 {
		welem = (welem>>r | welem<<(uint32(esize)-r)) & ones(uint32(esize))
	}
	for e := esize; e < width; e *= 2 {
		welem |= welem << e
		telem |= telem << e
	}
	mask := ones(uint32(width))
	return welem & mask, telem & mask, true
}

func (m *Machine) moveWide(w, rd uint32, sf bool) error {
	hw := w >> 21 & 3
	if !sf && hw > 1 {
		return ErrUnknownInstruction
	}
	shift := 16 * hw
	imm := uint64(w>>5&0xffff) << shift
	switch w >> 29 & 3 {
	case 0: // movn
		m.setX(rd, ^imm, sf)
	case 2: // movz
		m.setX(rd, imm, sf)
	case 3: // movk
		m.setX(rd, m.x(rd)&^(0xffff<<shift)|imm, sf)
	default:
		return ErrUnknownInstruction
	}
	return nil
}

// bitfield executes sbfm, bfm and ubfm, which back the asr, lsr, lsl, sxt* and uxt* aliases.
func (m *Machine) bitfield(w, rd, rn uint32, sf bool) error {
	opc, n := w>>29&3, w>>22&1
	immr, imms := w>>16&0x3f, w>>10&0x3f
	if opc == 3 || (sf && n != 1) || (!sf && (n != 0 || immr > 31 || imms > 31)) {
		return ErrUnknownInstruction
	}
	width := widthOf(sf)
	wmask, tmask, ok := decodeBitMasks(n, imms, immr, false, width)
	if !ok {
		return ErrUnknownInstruction
	}

	src := m.x(rn)
	var dst uint64
	if opc == 1 {
		dst = m.x(rd)
	}
	bot := dst&^wmask | ror(src, immr, width)&wmask
	var top uint64
	switch opc {
	case 0:
		if src>>imms&1 == 1 {
			top = ones(uint32(width))
		}
	case 1:
		top = dst
	}
	m.setX(rd, top&^tmask|bot&tmask, sf)
	return nil
}

func (m *Machine) condSelect(w, rd, rn, rm uint32, sf bool) error {
	op2 := w >> 10 & 3
	if w>>29&1 == 1 || op2 > 1 {
		return ErrUnknownInstruction
	}
	var r uint64
	if m.cond(w >> 12 & 0xf) {
		r = m.x(rn)
	} else {
		r = m.x(rm)
		switch w>>30&1<<1 | op2 {
		case 1: // csinc
			r++
		case 2: // csinv
			r = ^r
		case 3: // csneg
			r = -r
		}
	}
	m.setX(rd, r, sf)
	return nil
}

func (m *Machine) dataProcessing2(w, rd, rn, rm uint32, sf bool) error {
	a, b := m.x(rn), m.x(rm)
	if !sf {
		a, b = a&0xffff_ffff, b&0xffff_ffff
	}
	var r uint64
	switch opcode := w >> 10 & 0x3f; opcode {
	case 0b000010: // udiv
		if b != 0 {
			r = a / b
		}
	case 0b000011: // sdiv
		switch {
		case b == 0:
		case sf:
			r = uint64(int64(a) / int64(b))
		default:
			r = uint64(uint32(int32(uint32(a)) / int32(uint32(b))))
		}
	case 0b001000, 0b001001, 0b001010, 0b001011: // lslv, lsrv, asrv, rorv
		r = shifted(a, opcode&3, uint32(b%uint64(widthOf(sf))), sf)
	default:
		return ErrUnknownInstruction
	}
	m.setX(rd, r, sf)
	return nil
}

func (m *Machine) dataProcessing1(w, rd, rn uint32, sf bool) error {
	if w>>16&0x1f != 0 {
		return ErrUnknownInstruction
	}
	a := m.x(rn)
	var r uint64
	switch opcode := w >> 10 & 0x3f; {
	case opcode == 0 && sf: // rbit
		r = bits.Reverse64(a)
	case opcode == 0:
		r = uint64(bits.Reverse32(uint32(a)))
	case opcode == 3 && sf: // rev
		r = bits.ReverseBytes64(a)
	case opcode == 2 && !sf:
		r = uint64(bits.ReverseBytes32(uint32(a)))
	case opcode == 4 && sf: // clz
		r = uint64(bits.LeadingZeros64(a))
	case opcode == 4:
		r = uint64(bits.LeadingZeros32(uint32(a)))
	default:
		return ErrUnknownInstruction
	}
	m.setX(rd, r, sf)
	return nil
}

func (m *Machine) dataProcessing3(w, rd, rn, rm uint32, sf bool) error {
	if w>>29&3 != 0 {
		return ErrUnknownInstruction
	}
	a, b, acc := m.x(rn), m.x(rm), m.x(w>>10&0x1f)
	sub := w>>15&1 == 1
	var p uint64
	switch op31 := w >> 21 & 7; {
	case op31 == 0: // madd, msub
		p = a * b
	case op31 == 1 && sf: // smaddl, smsubl
		p = uint64(int64(int32(uint32(a))) * int64(int32(uint32(b))))
	case op31 == 5 && sf: // umaddl, umsubl
		p = (a & 0xffff_ffff) * (b & 0xffff_ffff)
	case op31 == 2 && sf && !sub: // smulh
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		if int64(b) < 0 {
			hi -= a
		}
		m.setX(rd, hi, true)
		return nil
	case op31 == 6 && sf && !sub: // umulh
		hi, _ := bits.Mul64(a, b)
		m.setX(rd, hi, true)
		return nil
	default:
		return ErrUnknownInstruction
	}
	if sub {
		m.setX(rd, acc-p, sf)
	} else {
		m.setX(rd, acc+p, sf)
	}
	return nil
}

// exclusiveOrOrdered executes the load/store exclusive, load-acquire/store-release and
// compare-and-swap encodings.
func (m *Machine) exclusiveOrOrdered(w, rt, rn uint32) error {
	size := 1 << (w >> 30)
	o2, l, o1 := w>>23&1, w>>22&1, w>>21&1
	rs := w >> 16 & 0x1f
	addr := m.xsp(rn)

	switch {
	case o2 == 0 && o1 == 0 && l == 1: // ldxr, ldaxr
		v, err := m.Load(addr, size)
		if err != nil {
			return err
		}
		m.exclusive, m.exclusiveAddr = true, addr
		m.setX(rt, v, true)
	case o2 == 0 && o1 == 0: // stxr, stlxr
		status := uint64(1)
		if m.exclusive && m.exclusiveAddr == addr {
			if err := m.Store(addr, size, m.x(rt)); err != nil {
				return err
			}
			status = 0
		}
		m.exclusive = false
		m.setX(rs, status, false)
	case o2 == 1 && o1 == 0 && l == 1: // ldar
		v, err := m.Load(addr, size)
		if err != nil {
			return err
		}
		m.setX(rt, v, true)
	case o2 == 1 && o1 == 0: // stlr
		return m.Store(addr, size, m.x(rt))
	case o2 == 1 && o1 == 1: // cas
		old, err := m.Load(addr, size)
		if err != nil {
			return err
		}
		if old == m.x(rs)&ones(uint32(8*size)) {
			if err := m.Store(addr, size, m.x(rt)); err != nil {
				return err
			}
		}
		m.setX(rs, old, size == 8)
	default:
		return ErrUnknownInstruction
	}
	return nil
}

func (m *Machine) loadLiteral(w, rt uint32) error {
	addr := m.PC + uint64(signExtend(uint64(w>>5&0x7ffff), 19)*4)
	opc, vector := w>>30, w>>26&1 == 1
	switch {
	case vector && opc < 2:
		v, err := m.Load(addr, 4<<opc)
		if err != nil {
			return err
		}
		m.D[rt] = v
	case !vector && opc < 3:
		size := 4 << (opc & 1)
		v, err := m.Load(addr, size)
		if err != nil {
			return err
		}
		if opc == 2 { // ldrsw
			v = uint64(signExtend(v, 32))
		}
		m.setX(rt, v, true)
	default:
		return ErrUnknownInstruction
	}
	return nil
}

func (m *Machine) loadStorePair(w, rt, rn uint32) error {
	opc, vector := w>>30, w>>26&1 == 1
	var size int
	switch {
	case !vector && opc == 0, vector && opc == 0:
		size = 4
	case !vector && opc == 2, vector && opc == 1:
		size = 8
	default:
		return ErrUnknownInstruction
	}
	idx, load := w>>23&3, w>>22&1 == 1
	rt2 := w >> 10 & 0x1f
	offset := uint64(signExtend(uint64(w>>15&0x7f), 7) * int64(size))

	base := m.xsp(rn)
	addr := base
	if idx != 1 {
		addr += offset
	}
	if load {
		v1, err := m.Load(addr, size)
		if err != nil {
			return err
		}
		v2, err := m.Load(addr+uint64(size), size)
		if err != nil {
			return err
		}
		if vector {
			m.D[rt], m.D[rt2] = v1, v2
		} else {
			m.setX(rt, v1, true)
			m.setX(rt2, v2, true)
		}
	} else {
		v1, v2 := m.x(rt), m.x(rt2)
		if vector {
			v1, v2 = m.D[rt], m.D[rt2]
		}
		if err := m.Store(addr, size, v1); err != nil {
			return err
		}
		if err := m.Store(addr+uint64(size), size, v2); err != nil {
			return err
		}
	}
	if idx == 1 || idx == 3 {
		m.setXSP(rn, base+offset, true)
	}
	return nil
}

// atomicMemory executes the single-instruction atomics ldadd, ldclr, ldeor, ldset, ld{s,u}{max,min}
// and swp.
func (m *Machine) atomicMemory(w, rt, rn uint32) error {
	size := 1 << (w >> 30)
	nbits := uint(8 * size)
	o3, opc := w>>15&1, w>>12&7
	if w>>26&1 == 1 || (o3 == 1 && opc != 0) {
		return ErrUnknownInstruction
	}
	addr := m.xsp(rn)
	old, err := m.Load(addr, size)
	if err != nil {
		return err
	}
	operand := m.x(w>>16&0x1f) & ones(uint32(nbits))

	var nw uint64
	if o3 == 1 {
		nw = operand
	} else {
		so, sv := signExtend(old, nbits), signExtend(operand, nbits)
		switch opc {
		case 0: // add
			nw = old + operand
		case 1: // clr
			nw = old &^ operand
		case 2: // eor
			nw = old ^ operand
		case 3: // set
			nw = old | operand
		case 4: // smax
			nw = old
			if sv > so {
				nw = operand
			}
		case 5: // smin
			nw = old
			if sv < so {
				nw = operand
			}
		case 6: // umax
			nw = old
			if operand > old {
				nw = operand
			}
		case 7: // umin
			nw = old
			if operand < old {
				nw = operand
			}
		}
	}
	if err := m.Store(addr, size, nw); err != nil {
		return err
	}
	m.setX(rt, old, true)
	return nil
}

func (m *Machine) loadStore(w, rt, rn uint32) error {
	sizeLog2 := w >> 30
	size := 1 << sizeLog2
	vector, opc := w>>26&1 == 1, w>>22&3

	base := m.xsp(rn)
	addr := base
	var writeback bool
	var wb uint64
	switch {
	case w&0x3b000000 == 0x39000000: // unsigned offset
		addr = base + uint64(w>>10&0xfff)*uint64(size)
	case w&0x3b200c00 == 0x38200800: // register offset
		option := w >> 13 & 7
		if option&2 == 0 {
			return ErrUnknownInstruction
		}
		var shift uint32
		if w>>12&1 == 1 {
			shift = sizeLog2
		}
		addr = base + extendReg(m.x(w>>16&0x1f), option, shift)
	default:
		imm := uint64(signExtend(uint64(w>>12&0x1ff), 9))
		switch w >> 10 & 3 {
		case 0b01: // post-index
			writeback, wb = true, base+imm
		case 0b11: // pre-index
			addr = base + imm
			writeback, wb = true, addr
		default:
			addr = base + imm
		}
	}

	if vector {
		if opc&2 != 0 {
			return ErrUnknownInstruction
		}
		if opc == 1 {
			v, err := m.Load(addr, size)
			if err != nil {
				return err
			}
			m.D[rt] = v
		} else if err := m.Store(addr, size, m.D[rt]); err != nil {
			return err
		}
	} else {
		switch {
		case opc == 0:
			if err := m.Store(addr, size, m.x(rt)); err != nil {
				return err
			}
		case opc == 2 && size == 8: // prfm
		case opc == 3 && size >= 4:
			return ErrUnknownInstruction
		default:
			v, err := m.Load(addr, size)
			if err != nil {
				return err
			}
			switch opc {
			case 2: // ldrs* to 64 bits
				v = uint64(signExtend(v, uint(8*size)))
				m.setX(rt, v, true)
			case 3: // ldrs* to 32 bits
				v = uint64(signExtend(v, uint(8*size)))
				m.setX(rt, v, false)
			default:
				m.setX(rt, v, true)
			}
		}
	}
	if writeback {
		m.setXSP(rn, wb, true)
	}
	return nil
}

func (m *Machine) fget(n uint32, double bool) float64 {
	if double {
		return math.Float64frombits(m.D[n])
	}
	return float64(math.Float32frombits(uint32(m.D[n])))
}

// fset writes f rounded to the precision of the destination.
func (m *Machine) fset(n uint32, f float64, double bool) {
	if double {
		m.D[n] = math.Float64bits(f)
	} else {
		m.D[n] = uint64(math.Float32bits(float32(f)))
	}
}

// float executes the scalar floating-point encodings.
func (m *Machine) float(w, rd, rn, rm uint32, sf bool) error {
	ftype := w >> 22 & 3
	if ftype > 1 || w>>29&1 == 1 {
		return ErrUnknownInstruction
	}
	double := ftype == 1

	switch {
	case w&0x5f20fc00 == 0x1e200000: // conversion between floating-point and integer
		return m.convert(w, rd, rn, sf, double)
	case w&0x5f207c00 == 0x1e204000: // 1 source
		return m.float1(w, rd, rn, double)
	case w&0x5f203c00 == 0x1e202000: // fcmp
		a, b := m.fget(rn, double), 0.0
		if w&0b1000 == 0 {
			b = m.fget(rm, double)
		}
		switch {
		case math.IsNaN(a) || math.IsNaN(b):
			m.n, m.z, m.c, m.v = false, false, true, true
		case a == b:
			m.n, m.z, m.c, m.v = false, true, true, false
		case a < b:
			m.n, m.z, m.c, m.v = true, false, false, false
		default:
			m.n, m.z, m.c, m.v = false, false, true, false
		}
	case w&0x5f200c00 == 0x1e200800: // 2 source
		a, b := m.fget(rn, double), m.fget(rm, double)
		var r float64
		switch w >> 12 & 0xf {
		case 0:
			r = a * b
		case 1:
			r = a / b
		case 2:
			r = a + b
		case 3:
			r = a - b
		case 4:
			r = math.Max(a, b)
		case 5:
			r = math.Min(a, b)
		case 8:
			r = -(a * b)
		default:
			return ErrUnknownInstruction
		}
		m.fset(rd, r, double)
	case w&0x5f200c00 == 0x1e200c00: // fcsel
		src := rm
		if m.cond(w >> 12 & 0xf) {
			src = rn
		}
		v := m.D[src]
		if !double {
			v &= 0xffff_ffff
		}
		m.D[rd] = v
	default:
		return ErrUnknownInstruction
	}
	return nil
}

func (m *Machine) float1(w, rd, rn uint32, double bool) error {
	v := m.D[rn]
	signBit := uint64(1) << 31
	if double {
		signBit = 1 << 63
	} else {
		v &= 0xffff_ffff
	}
	switch w >> 15 & 0x3f {
	case 0: // fmov
		m.D[rd] = v
	case 1: // fabs
		m.D[rd] = v &^ signBit
	case 2: // fneg
		m.D[rd] = v ^ signBit
	case 3: // fsqrt
		m.fset(rd, math.Sqrt(m.fget(rn, double)), double)
	case 4: // fcvt to single
		if !double {
			return ErrUnknownInstruction
		}
		m.fset(rd, m.fget(rn, true), false)
	case 5: // fcvt to double
		if double {
			return ErrUnknownInstruction
		}
		m.fset(rd, m.fget(rn, false), true)
	default:
		return ErrUnknownInstruction
	}
	return nil
}

func (m *Machine) convert(w, rd, rn uint32, sf, double bool) error {
	rmode, opcode := w>>19&3, w>>16&7
	switch {
	case rmode == 0 && (opcode == 2 || opcode == 3): // scvtf, ucvtf
		v := m.x(rn)
		signed := opcode == 2
		if double {
			m.D[rd] = math.Float64bits(intToFloat64(v, signed, sf))
		} else {
			m.D[rd] = uint64(math.Float32bits(intToFloat32(v, signed, sf)))
		}
	case rmode == 3 && (opcode == 0 || opcode == 1): // fcvtzs, fcvtzu
		f := m.fget(rn, double)
		if opcode == 0 {
			m.setX(rd, fcvtzs(f, sf), sf)
		} else {
			m.setX(rd, fcvtzu(f, sf), sf)
		}
	case rmode == 0 && opcode == 6 && sf == double: // fmov to general
		m.setX(rd, m.D[rn], sf)
	case rmode == 0 && opcode == 7 && sf == double: // fmov to vector
		v := m.x(rn)
		if !double {
			v &= 0xffff_ffff
		}
		m.D[rd] = v
	default:
		return ErrUnknownInstruction
	}
	return nil
}

func intToFloat64(v uint64, signed, sf bool) float64 {
	switch {
	case sf && signed:
		return float64(int64(v))
	case sf:
		return float64(v)
	case signed:
		return float64(int32(uint32(v)))
	default:
		return float64(uint32(v))
	}
}

func intToFloat32(v uint64, signed, sf bool) float32 {
	switch {
	case sf && signed:
		return float32(int64(v))
	case sf:
		return float32(v)
	case signed:
		return float32(int32(uint32(v)))
	default:
		return float32(uint32(v))
	}
}

// fcvtzs truncates toward zero, saturating out of range values and mapping NaN to zero.
func fcvtzs(f float64, sf bool) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Trunc(f)
	if sf {
		switch {
		case f >= 0x1p63:
			return math.MaxInt64
		case f < -0x1p63:
			return 1 << 63
		}
		return uint64(int64(f))
	}
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return 1 << 31
	}
	return uint64(uint32(int32(f)))
}

func fcvtzu(f float64, sf bool) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Trunc(f)
	if f <= 0 {
		return 0
	}
	if sf {
		if f >= 0x1p64 {
			return math.MaxUint64
		}
		return uint64(f)
	}
	if f > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint64(uint32(f))
}
