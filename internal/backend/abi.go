package backend

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

// FunctionABIRegInfo provides the registers of a calling convention.
type FunctionABIRegInfo interface {
	// ArgsResultsRegs returns the registers used for passing parameters and results.
	ArgsResultsRegs() (argInts, argFloats, resultInts, resultFloats []regalloc.RealReg)
}

type (
	// FunctionABI is the location of the arguments and the result of a signature.
	FunctionABI struct {
		Args []ABIArg
		Ret  ABIArg
		// ArgStackSize is the size of the stack argument area before alignment.
		ArgStackSize int64
	}

	// ABIArg represents either argument or return value's location.
	ABIArg struct {
		// Index is the index of the argument.
		Index int
		// Kind is the kind of the argument.
		Kind ABIArgKind
		// Shape of the value. Memory values are passed by reference, i.e. as a pointer.
		Shape Shape
		// Regs is valid if Kind == ABIArgKindReg: one register, or two for a pair.
		Regs [2]regalloc.RealReg
		// Offset is valid if Kind == ABIArgKindStack.
		// This is the offset from the beginning of the argument stack area.
		Offset int64
		// Type is the type of the argument.
		Type ir.TypeID
	}

	// ABIArgKind is the kind of ABI argument.
	ABIArgKind byte
)

const (
	// ABIArgKindNone is a void result.
	ABIArgKindNone ABIArgKind = iota
	// ABIArgKindReg represents an argument passed in a register.
	ABIArgKindReg
	// ABIArgKindStack represents an argument passed in the stack.
	ABIArgKindStack
)

// String implements fmt.Stringer.
func (a *ABIArg) String() string {
	return fmt.Sprintf("args[%d]: %s", a.Index, a.Kind)
}

// String implements fmt.Stringer.
func (a ABIArgKind) String() string {
	switch a {
	case ABIArgKindNone:
		return "none"
	case ABIArgKindReg:
		return "reg"
	case ABIArgKindStack:
		return "stack"
	default:
		panic("BUG")
	}
}

// ByRef returns true if the argument is a memory value passed as a pointer.
func (a *ABIArg) ByRef() bool { return a.Shape.Kind == ShapeMemory }

// NumRegs returns the number of registers or 8-byte stack slots the argument takes.
func (a *ABIArg) NumRegs() int {
	if a.ByRef() {
		return 1
	}
	return a.Shape.Regs()
}

// Class returns the register class the argument is passed in.
func (a *ABIArg) Class() regalloc.RegType {
	if a.ByRef() {
		return regalloc.RegTypeInt
	}
	return a.Shape.Class
}

// Init computes the locations for the signature.
func (a *FunctionABI) Init(tab ir.SymbolTable, params []ir.TypeID, result ir.TypeID, r FunctionABIRegInfo) error {
	argInts, argFloats, resultInts, resultFloats := r.ArgsResultsRegs()

	a.Args = make([]ABIArg, len(params))
	var stackOffset int64
	next := [regalloc.NumRegType]int{}
	for i, typ := range params {
		arg := &a.Args[i]
		arg.Index, arg.Type = i, typ
		shape, err := ShapeOf(tab, typ)
		if err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if shape.Kind == ShapeVoid {
			return fmt.Errorf("parameter %d: %w", i, Unsupported("void parameter"))
		}
		arg.Shape = shape

		class, n := arg.Class(), arg.NumRegs()
		regs := argInts
		if class == regalloc.RegTypeFloat {
			regs = argFloats
		}
		if next[class]+n <= len(regs) {
			arg.Kind = ABIArgKindReg
			for k := 0; k < n; k++ {
				arg.Regs[k] = regs[next[class]+k]
			}
			next[class] += n
		} else {
			// A pair that does not fit is not split: it goes to the stack, and so do all the
			// following arguments of its class.
			next[class] = len(regs)
			arg.Kind = ABIArgKindStack
			const slotSize = 8
			arg.Offset = stackOffset
			stackOffset += slotSize * int64(n)
		}
	}
	a.ArgStackSize = stackOffset

	a.Ret = ABIArg{Type: result}
	shape, err := ShapeOf(tab, result)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	a.Ret.Shape = shape
	switch shape.Kind {
	case ShapeVoid:
		a.Ret.Kind = ABIArgKindNone
	case ShapeScalar, ShapePair:
		regs := resultInts
		if shape.Class == regalloc.RegTypeFloat {
			regs = resultFloats
		}
		a.Ret.Kind = ABIArgKindReg
		copy(a.Ret.Regs[:], regs[:shape.Regs()])
	default:
		return fmt.Errorf("result: %w", Unsupported("returning %s of %d bytes", tab.Type(result), shape.Size))
	}
	return nil
}

// AlignedArgStackSize returns the size of the stack argument area rounded to the stack alignment.
func (a *FunctionABI) AlignedArgStackSize() int64 {
	return alignUp(a.ArgStackSize, StackAlign)
}
