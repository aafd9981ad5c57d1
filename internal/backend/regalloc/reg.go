// Package regalloc performs linear-scan register allocation during instruction selection.
// The allocator is ISA independent: a backend describes its registers with RegisterInfo and
// moves values out of registers by implementing Spiller.
package regalloc

import (
	"fmt"
	"strings"
)

// RealReg represents a physical register. The numbering is ISA specific.
type RealReg byte

const RealRegInvalid RealReg = 0

// String implements fmt.Stringer.
func (r RealReg) String() string {
	switch r {
	case RealRegInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("r%d", r)
	}
}

// RegType represents the class of a register.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	// RegTypeInt is the general purpose register class.
	RegTypeInt
	// RegTypeFloat is the vector/floating point register class.
	RegTypeFloat
	NumRegType
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	default:
		return "invalid"
	}
}

// RegisterInfo holds the statically-known ISA-specific register information.
type RegisterInfo struct {
	// AllocatableRegisters is indexed by RegType. The order matters: the first element is the
	// most preferred one when allocating.
	AllocatableRegisters [NumRegType][]RealReg
	CalleeSavedRegisters RegSet
	CallerSavedRegisters RegSet
	// RealRegName returns the name of the given RealReg for debugging.
	RealRegName func(r RealReg) string
	// RealRegType returns the class of the given RealReg.
	RealRegType func(r RealReg) RegType
}

// NewRegSet returns a new RegSet with the given registers.
func NewRegSet(regs ...RealReg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.Add(r)
	}
	return ret
}

// RegSet represents a set of registers. Registers numbered 64 and above are never members.
type RegSet uint64

// Format returns the names of the members joined by ", ".
func (rs RegSet) Format(info *RegisterInfo) string {
	var ret []string
	rs.Range(func(r RealReg) {
		ret = append(ret, info.RealRegName(r))
	})
	return strings.Join(ret, ", ")
}

// Has returns true if r is a member.
func (rs RegSet) Has(r RealReg) bool {
	return r < 64 && rs&(1<<uint(r)) != 0
}

// Add returns the set with r added.
func (rs RegSet) Add(r RealReg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs | 1<<uint(r)
}

// Remove returns the set without r.
func (rs RegSet) Remove(r RealReg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs &^ (1 << uint(r))
}

// Range calls f for each member in ascending order.
func (rs RegSet) Range(f func(r RealReg)) {
	for i := 0; i < 64; i++ {
		if rs&(1<<uint(i)) != 0 {
			f(RealReg(i))
		}
	}
}

// Len returns the number of members.
func (rs RegSet) Len() (n int) {
	rs.Range(func(RealReg) { n++ })
	return
}
