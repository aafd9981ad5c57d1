package backend

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// MaxFrameSize bounds the bytes below the frame pointer of one function.
const MaxFrameSize = 1 << 24

// StackAlign is the required alignment of the stack pointer.
const StackAlign = 16

// Frame is the stack layout of one function. The frame pointer points at the saved
// frame pointer/link register pair, so every local, spill slot and saved register lives
// at a negative offset from it:
//
//	              (high address)
//	+------------------------------+
//	|   incoming stack arguments   |  <- fp + 16
//	|         saved LR             |  <- fp + 8
//	|         saved FP             |  <- fp
//	|  spill slots and locals      |
//	|  saved callee-saved regs     |
//	+------------------------------+  <- sp = fp - Size()
//	              (low address)
type Frame struct {
	used      int64
	free      []frameSlot
	spills    int
	saved     []SavedReg
	size      int64
	finalized bool
}

type frameSlot struct {
	offset      int64
	size, align uint64
	// freedAt is the last instruction which reads the previous occupant.
	freedAt ir.Index
}

// SavedReg is a callee-saved register stored by the prologue.
type SavedReg struct {
	Reg    regalloc.RealReg
	Offset int64
}

// AllocSpillSlot returns the offset of a slot for size bytes aligned to align, for a value
// defined by def. Freed slots of the same size and alignment are reused first-fit, as long as
// their previous occupant was dead before def stores into the slot.
func (f *Frame) AllocSpillSlot(size, align uint64, def ir.Index) (int64, error) {
	for i, s := range f.free {
		if s.size == size && s.align == align && s.freedAt <= def {
			f.free = append(f.free[:i], f.free[i+1:]...)
			return s.offset, nil
		}
	}
	off, err := f.alloc(size, align)
	if err != nil {
		return 0, err
	}
	f.spills++
	return off, nil
}

// FreeSpillSlot makes a slot returned by AllocSpillSlot available again. at is the last
// instruction reading the slot.
func (f *Frame) FreeSpillSlot(offset int64, size, align uint64, at ir.Index) {
	f.free = append(f.free, frameSlot{offset: offset, size: size, align: align, freedAt: at})
}

// AllocLocal returns the offset of a local that lives until the function returns.
func (f *Frame) AllocLocal(size, align uint64) (int64, error) {
	return f.alloc(size, align)
}

func (f *Frame) alloc(size, align uint64) (int64, error) {
	if f.finalized {
		panic("BUG: frame allocation after finalization")
	}
	if align == 0 {
		align = 1
	}
	if align > StackAlign {
		return 0, fmt.Errorf("%w: alignment %d exceeds the stack alignment", ErrUnsupportedOperation, align)
	}
	used := alignUp(f.used+int64(size), int64(align))
	if used > MaxFrameSize {
		return 0, fmt.Errorf("%w: frame exceeds %d bytes", ErrOutOfRegisters, MaxFrameSize)
	}
	f.used = used
	return -used, nil
}

// SpillSlots returns the number of distinct spill slots created.
func (f *Frame) SpillSlots() int { return f.spills }

// Finalize places the callee-saved registers below the locals and fixes the frame size.
func (f *Frame) Finalize(saved []regalloc.RealReg) {
	if f.finalized {
		panic("BUG: frame finalized twice")
	}
	f.finalized = true
	base := alignUp(f.used, 8)
	for i, r := range saved {
		f.saved = append(f.saved, SavedReg{Reg: r, Offset: -(base + 8*int64(i+1))})
	}
	f.size = alignUp(base+8*int64(len(saved)), StackAlign)
}

// Size returns the bytes between the frame pointer and the stack pointer.
func (f *Frame) Size() int64 {
	if !f.finalized {
		panic("BUG: frame size requested before finalization")
	}
	return f.size
}

// Saved returns the callee-saved registers with their offsets.
func (f *Frame) Saved() []SavedReg { return f.saved }

// IncomingArgOffset returns the offset of the k-th 8-byte incoming stack argument slot.
func IncomingArgOffset(k int) int64 {
	// Skips the saved frame pointer and link register.
	return 16 + 8*int64(k)
}

func alignUp(v, align int64) int64 {
	return (v + align - 1) &^ (align - 1)
}
