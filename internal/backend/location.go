package backend

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
)

// LocationKind is the tag of a Location.
type LocationKind byte

const (
	// LocNone is a value without runtime representation.
	LocNone LocationKind = iota
	// LocRegister is a value held in one register.
	LocRegister
	// LocImmediate is a compile-time constant.
	LocImmediate
	// LocStackSlot is a value held in the frame, at Offset from the frame pointer.
	LocStackSlot
	// LocRegisterPair is a two-register aggregate such as a slice.
	LocRegisterPair
)

// Location describes where the result of an IR instruction currently lives.
type Location struct {
	Kind LocationKind
	// Class is the register class of LocRegister and LocRegisterPair, and of the scalar held
	// in a LocStackSlot.
	Class regalloc.RegType
	// Reg and Reg2 are the registers of LocRegister and LocRegisterPair.
	Reg, Reg2 regalloc.RealReg
	// Imm holds the bits of LocImmediate.
	Imm uint64
	// Offset is the frame-pointer relative offset of LocStackSlot.
	Offset int64
}

// None is the Location of values without runtime representation.
func None() Location { return Location{Kind: LocNone} }

// Register returns a LocRegister.
func Register(class regalloc.RegType, r regalloc.RealReg) Location {
	return Location{Kind: LocRegister, Class: class, Reg: r}
}

// RegisterPair returns a LocRegisterPair.
func RegisterPair(class regalloc.RegType, r1, r2 regalloc.RealReg) Location {
	return Location{Kind: LocRegisterPair, Class: class, Reg: r1, Reg2: r2}
}

// Immediate returns a LocImmediate.
func Immediate(bits uint64) Location {
	return Location{Kind: LocImmediate, Imm: bits}
}

// StackSlot returns a LocStackSlot.
func StackSlot(class regalloc.RegType, offset int64) Location {
	return Location{Kind: LocStackSlot, Class: class, Offset: offset}
}

// String implements fmt.Stringer.
func (l Location) String() string {
	switch l.Kind {
	case LocNone:
		return "none"
	case LocRegister:
		return fmt.Sprintf("register(%s, %d)", l.Class, l.Reg)
	case LocImmediate:
		return fmt.Sprintf("immediate(%#x)", l.Imm)
	case LocStackSlot:
		return fmt.Sprintf("stack_slot(%d)", l.Offset)
	case LocRegisterPair:
		return fmt.Sprintf("register_pair(%s, %d, %d)", l.Class, l.Reg, l.Reg2)
	}
	return "invalid"
}
