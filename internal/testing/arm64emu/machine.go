// Package arm64emu interprets the subset of AArch64 which the backend emits, so that compiled
// code can be executed by tests on any host.
//
// The model has 31 general purpose registers, the stack pointer, the low 64
// bits of the 32 vector registers, the NZCV flags, a single exclusive monitor and one flat
// little-endian memory range.
package arm64emu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// DefaultBase is the address of the first byte of memory created by New.
	DefaultBase uint64 = 0x1_0000
	// DefaultMaxSteps bounds the instructions executed by a single Run.
	DefaultMaxSteps = 1 << 22
	// ReturnAddress is the link register value installed by Call. Returning to it stops Run.
	ReturnAddress uint64 = 0xdead_bee0
)

var (
	// ErrUndefined is returned when executing udf.
	ErrUndefined = errors.New("undefined instruction")
	// ErrBreakpoint is returned when executing brk.
	ErrBreakpoint = errors.New("breakpoint")
	// ErrStepLimit is returned when Run executes more than MaxSteps instructions.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrUnknownInstruction is returned for words outside of the interpreted subset.
	ErrUnknownInstruction = errors.New("unknown instruction")
	// ErrMemoryFault is returned for accesses outside of memory.
	ErrMemoryFault = errors.New("memory fault")
)

// Machine is the architectural state.
type Machine struct {
	// X holds x0 to x30. Register number 31 is sp or xzr depending on the instruction.
	X      [31]uint64
	SP, PC uint64
	// D holds the low 64 bits of v0 to v31. Single precision values occupy the low 32 bits.
	D [32]uint64

	// Base is the address of Mem[0].
	Base uint64
	Mem  []byte

	MaxSteps int
	// Steps counts the instructions executed by the last Run.
	Steps int

	n, z, c, v bool

	exclusive     bool
	exclusiveAddr uint64
}

// New returns a Machine with size bytes of zeroed memory at DefaultBase.
func New(size int) *Machine {
	return &Machine{Base: DefaultBase, Mem: make([]byte, size), MaxSteps: DefaultMaxSteps}
}

// StackTop returns the initial stack pointer used by Call: the end of memory aligned down to 16.
func (m *Machine) StackTop() uint64 {
	return (m.Base + uint64(len(m.Mem))) &^ 15
}

// Flags returns NZCV.
func (m *Machine) Flags() (n, z, c, v bool) {
	return m.n, m.z, m.c, m.v
}

func (m *Machine) slice(addr uint64, size int) ([]byte, error) {
	if addr < m.Base || addr-m.Base > uint64(len(m.Mem)) || uint64(len(m.Mem))-(addr-m.Base) < uint64(size) {
		return nil, fmt.Errorf("%w: %d bytes at %#x", ErrMemoryFault, size, addr)
	}
	off := addr - m.Base
	return m.Mem[off : off+uint64(size)], nil
}

// Write copies b into memory at addr.
func (m *Machine) Write(addr uint64, b []byte) error {
	dst, err := m.slice(addr, len(b))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Read returns a copy of size bytes of memory at addr.
func (m *Machine) Read(addr uint64, size int) ([]byte, error) {
	src, err := m.slice(addr, size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), src...), nil
}

// Load returns the little-endian value of size bytes (1, 2, 4 or 8) at addr.
func (m *Machine) Load(addr uint64, size int) (uint64, error) {
	b, err := m.slice(addr, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	panic(fmt.Sprintf("BUG: access of %d bytes", size))
}

// Store writes the low size bytes (1, 2, 4 or 8) of v at addr.
func (m *Machine) Store(addr uint64, size int, v uint64) error {
	b, err := m.slice(addr, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic(fmt.Sprintf("BUG: access of %d bytes", size))
	}
	return nil
}

// Call runs the function at entry with integer arguments passed per the procedure call
// standard: the first eight in x0 to x7 and the rest on the stack at 8-byte stride. It
// returns x0. Vector registers are left as they are, so float arguments can be set in D
// before calling.
func (m *Machine) Call(entry uint64, args ...uint64) (uint64, error) {
	m.SP = m.StackTop()
	if len(args) > 8 {
		stack := args[8:]
		m.SP -= (uint64(len(stack))*8 + 15) &^ 15
		for k, a := range stack {
			if err := m.Store(m.SP+uint64(8*k), 8, a); err != nil {
				return 0, err
			}
		}
		args = args[:8]
	}
	for k, a := range args {
		m.X[k] = a
	}
	m.X[30] = ReturnAddress
	m.PC = entry
	if err := m.Run(); err != nil {
		return 0, err
	}
	return m.X[0], nil
}

// Run executes from PC until it reaches ReturnAddress.
func (m *Machine) Run() error {
	m.Steps = 0
	for m.PC != ReturnAddress {
		if m.Steps >= m.MaxSteps {
			return fmt.Errorf("%w: %d instructions", ErrStepLimit, m.Steps)
		}
		m.Steps++
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes the instruction at PC.
func (m *Machine) Step() error {
	w, err := m.Load(m.PC, 4)
	if err != nil {
		return err
	}
	if err := m.exec(uint32(w)); err != nil {
		return fmt.Errorf("%w at pc %#x: %#08x", err, m.PC, w)
	}
	return nil
}

// x returns register n with 31 read as zero.
func (m *Machine) x(n uint32) uint64 {
	if n == 31 {
		return 0
	}
	return m.X[n]
}

// xsp returns register n with 31 read as sp.
func (m *Machine) xsp(n uint32) uint64 {
	if n == 31 {
		return m.SP
	}
	return m.X[n]
}

// setX writes register n, discarding writes to 31. 32-bit results clear the upper half.
func (m *Machine) setX(n uint32, v uint64, sf bool) {
	if !sf {
		v &= 0xffff_ffff
	}
	if n != 31 {
		m.X[n] = v
	}
}

// setXSP writes register n with 31 meaning sp.
func (m *Machine) setXSP(n uint32, v uint64, sf bool) {
	if !sf {
		v &= 0xffff_ffff
	}
	if n == 31 {
		m.SP = v
	} else {
		m.X[n] = v
	}
}
