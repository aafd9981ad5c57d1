package arm64

import (
	"fmt"
	"strconv"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
)

// Arm64-specific registers.
//
// See https://developer.arm.com/documentation/dui0801/a/Overview-of-AArch64-state/Predeclared-core-register-names-in-AArch64-state

const (
	// General purpose registers. Note that we do not distinguish wn and xn registers
	// because they are the same from the perspective of register allocator, and
	// the size can be determined by the type of the instruction.

	x0 = regalloc.RealRegInvalid + 1 + iota
	x1
	x2
	x3
	x4
	x5
	x6
	x7
	x8
	x9
	x10
	x11
	x12
	x13
	x14
	x15
	x16
	x17
	x18
	x19
	x20
	x21
	x22
	x23
	x24
	x25
	x26
	x27
	x28
	x29
	x30

	// Vector registers. Note that we do not distinguish vn and dn, ... registers
	// because they are the same from the perspective of register allocator, and
	// the size can be determined by the type of the instruction.

	v0
	v1
	v2
	v3
	v4
	v5
	v6
	v7
	v8
	v9
	v10
	v11
	v12
	v13
	v14
	v15
	v16
	v17
	v18
	v19
	v20
	v21
	v22
	v23
	v24
	v25
	v26
	v27
	v28
	v29
	v30
	v31

	// Special registers

	sp
	xzr

	numRegs
)

const (
	fp = x29
	lr = x30

	// tmp is the scratch register of the instruction selector. It also holds the callee of
	// indirect calls.
	tmp = x16
	// encTmp is reserved for the expansions of the encoder (wide frame offsets, float
	// constants, exclusive status) and for breaking cycles of integer parallel moves.
	encTmp = x17
	// platformReg is reserved by the platform ABI.
	platformReg = x18

	// fpuTmp is the float scratch register of the instruction selector.
	fpuTmp = v30
	// fpuCycleTmp breaks cycles of float parallel moves.
	fpuCycleTmp = v31
)

var regInfo = &regalloc.RegisterInfo{
	AllocatableRegisters: [regalloc.NumRegType][]regalloc.RealReg{
		// Caller-saved temporaries first, then argument registers, then callee-saved which
		// cost a save and restore in the prologue and epilogue.
		regalloc.RegTypeInt: {
			x9, x10, x11, x12, x13, x14, x15,
			x0, x1, x2, x3, x4, x5, x6, x7, x8,
			x19, x20, x21, x22, x23, x24, x25, x26, x27, x28,
		},
		regalloc.RegTypeFloat: {
			v16, v17, v18, v19, v20, v21, v22, v23, v24, v25, v26, v27, v28, v29,
			v0, v1, v2, v3, v4, v5, v6, v7,
			v8, v9, v10, v11, v12, v13, v14, v15,
		},
	},
	CalleeSavedRegisters: regalloc.NewRegSet(
		x19, x20, x21, x22, x23, x24, x25, x26, x27, x28,
		v8, v9, v10, v11, v12, v13, v14, v15,
	),
	CallerSavedRegisters: regalloc.NewRegSet(
		x0, x1, x2, x3, x4, x5, x6, x7, x8, x9, x10, x11, x12, x13, x14, x15, x16, x17,
		v0, v1, v2, v3, v4, v5, v6, v7,
		v16, v17, v18, v19, v20, v21, v22, v23, v24, v25, v26, v27, v28, v29, v30, v31,
	),
	RealRegName: func(r regalloc.RealReg) string { return regNames[r] },
	RealRegType: regTypeOf,
}

// RegisterInfo returns the register description used by the allocator.
func RegisterInfo() *regalloc.RegisterInfo { return regInfo }

func regTypeOf(r regalloc.RealReg) regalloc.RegType {
	switch {
	case x0 <= r && r <= x30, r == sp, r == xzr:
		return regalloc.RegTypeInt
	case v0 <= r && r <= v31:
		return regalloc.RegTypeFloat
	}
	return regalloc.RegTypeInvalid
}

// regNumberInEncoding is the 5-bit field of a register in instruction encodings.
var regNumberInEncoding = [numRegs]uint32{}

var regNames = [numRegs]string{}

func init() {
	for r := x0; r <= x30; r++ {
		regNumberInEncoding[r] = uint32(r - x0)
		regNames[r] = "x" + strconv.Itoa(int(r-x0))
	}
	for r := v0; r <= v31; r++ {
		regNumberInEncoding[r] = uint32(r - v0)
		regNames[r] = "v" + strconv.Itoa(int(r-v0))
	}
	regNumberInEncoding[sp] = 31
	regNumberInEncoding[xzr] = 31
	regNames[sp] = "sp"
	regNames[xzr] = "xzr"
	regNames[regalloc.RealRegInvalid] = "invalid"
}

// intReg returns the general purpose register with the given encoding number, treating 31 as xzr.
func intReg(n uint32) regalloc.RealReg {
	if n == 31 {
		return xzr
	}
	return x0 + regalloc.RealReg(n)
}

// intRegOrSP is intReg for fields where 31 encodes the stack pointer.
func intRegOrSP(n uint32) regalloc.RealReg {
	if n == 31 {
		return sp
	}
	return x0 + regalloc.RealReg(n)
}

func vecReg(n uint32) regalloc.RealReg {
	return v0 + regalloc.RealReg(n)
}

func formatRegSized(r regalloc.RealReg, size byte) string {
	switch {
	case r == sp:
		if size == 32 {
			return "wsp"
		}
		return "sp"
	case r == xzr:
		if size == 32 {
			return "wzr"
		}
		return "xzr"
	case x0 <= r && r <= x30:
		if size == 32 {
			return "w" + strconv.Itoa(int(r-x0))
		}
		return "x" + strconv.Itoa(int(r-x0))
	case v0 <= r && r <= v31:
		n := int(r - v0)
		switch size {
		case 8:
			return "b" + strconv.Itoa(n)
		case 16:
			return "h" + strconv.Itoa(n)
		case 32:
			return "s" + strconv.Itoa(n)
		case 64:
			return "d" + strconv.Itoa(n)
		case 128:
			return "q" + strconv.Itoa(n)
		}
	}
	panic(fmt.Sprintf("BUG: cannot format register %d with size %d", r, size))
}
