package arm64

import (
	"strconv"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

type (
	// cond represents a condition for conditional branches: either a flag set by a previous
	// compare, or a register tested against zero by cbz/cbnz.
	cond     uint64
	condKind byte
)

const (
	// condKindRegisterZero represents a condition which checks if the register is zero.
	// This indicates that the instruction must be encoded as CBZ:
	// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/CBZ--Compare-and-Branch-on-Zero-
	condKindRegisterZero condKind = iota
	// condKindRegisterNotZero indicates that the instruction must be encoded as CBNZ:
	// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/CBNZ--Compare-and-Branch-on-Nonzero-
	condKindRegisterNotZero
	// condKindCondFlagSet indicates that the instruction must be encoded as B.cond:
	// https://developer.arm.com/documentation/ddi0596/2020-12/Base-Instructions/B-cond--Branch-conditionally-
	condKindCondFlagSet
)

// kind returns the kind of condition which is stored in the first two bits.
func (c cond) kind() condKind {
	return condKind(c & 0b11)
}

func (c cond) asUint64() uint64 {
	return uint64(c)
}

// register returns the register for register conditions.
// This panics if the condition is not a register condition (condKindRegisterZero or condKindRegisterNotZero).
func (c cond) register() regalloc.RealReg {
	if c.kind() != condKindRegisterZero && c.kind() != condKindRegisterNotZero {
		panic("condition is not a register")
	}
	return regalloc.RealReg(c >> 2)
}

func registerAsRegZeroCond(r regalloc.RealReg) cond {
	return cond(r)<<2 | cond(condKindRegisterZero)
}

func registerAsRegNotZeroCond(r regalloc.RealReg) cond {
	return cond(r)<<2 | cond(condKindRegisterNotZero)
}

func (c cond) flag() condFlag {
	if c.kind() != condKindCondFlagSet {
		panic("condition is not a flag")
	}
	return condFlag(c >> 2)
}

func (c condFlag) asCond() cond {
	return cond(c)<<2 | cond(condKindCondFlagSet)
}

// condFlag represents a condition flag for conditional branches.
// The value matches the encoding of condition flags in the ARM64 instruction set.
// https://developer.arm.com/documentation/den0024/a/The-A64-instruction-set/Data-processing-instructions/Conditional-instructions
type condFlag uint8

const (
	eq condFlag = iota // eq represents "equal"
	ne                 // ne represents "not equal"
	hs                 // hs represents "higher or same"
	lo                 // lo represents "lower"
	mi                 // mi represents "minus or negative result"
	pl                 // pl represents "plus or positive result"
	vs                 // vs represents "overflow set"
	vc                 // vc represents "overflow clear"
	hi                 // hi represents "higher"
	ls                 // ls represents "lower or same"
	ge                 // ge represents "greater or equal"
	lt                 // lt represents "less than"
	gt                 // gt represents "greater than"
	le                 // le represents "less than or equal"
	al                 // al represents "always"
	nv                 // nv represents "never"
)

// invert returns the inverted condition.
func (c condFlag) invert() condFlag {
	switch c {
	case al:
		return nv
	case nv:
		return al
	}
	return c ^ 1
}

// String implements fmt.Stringer.
func (c condFlag) String() string {
	switch c {
	case eq:
		return "eq"
	case ne:
		return "ne"
	case hs:
		return "hs"
	case lo:
		return "lo"
	case mi:
		return "mi"
	case pl:
		return "pl"
	case vs:
		return "vs"
	case vc:
		return "vc"
	case hi:
		return "hi"
	case ls:
		return "ls"
	case ge:
		return "ge"
	case lt:
		return "lt"
	case gt:
		return "gt"
	case le:
		return "le"
	case al:
		return "al"
	case nv:
		return "nv"
	}
	return "cond(" + strconv.Itoa(int(c)) + ")"
}

// condFlagFromIntegerCmp returns the flag which holds after "cmp x, y" when x tag y.
func condFlagFromIntegerCmp(tag ir.Tag, signed bool) condFlag {
	switch tag {
	case ir.TagCmpEq:
		return eq
	case ir.TagCmpNe:
		return ne
	case ir.TagCmpLt:
		if signed {
			return lt
		}
		return lo
	case ir.TagCmpLe:
		if signed {
			return le
		}
		return ls
	case ir.TagCmpGt:
		if signed {
			return gt
		}
		return hi
	case ir.TagCmpGe:
		if signed {
			return ge
		}
		return hs
	}
	panic("BUG: not a comparison: " + tag.String())
}

// condFlagFromFloatCmp returns the flag which holds after "fcmp x, y" when x tag y. Ordered
// comparisons are false if either operand is NaN, and not-equal is true.
func condFlagFromFloatCmp(tag ir.Tag) condFlag {
	switch tag {
	case ir.TagCmpEq:
		return eq
	case ir.TagCmpNe:
		return ne
	case ir.TagCmpLt:
		return mi
	case ir.TagCmpLe:
		return ls
	case ir.TagCmpGt:
		return gt
	case ir.TagCmpGe:
		return ge
	}
	panic("BUG: not a comparison: " + tag.String())
}
