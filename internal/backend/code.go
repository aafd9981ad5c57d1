package backend

import "github.com/tetratelabs/a64/ir"

// RelocationKind determines how a Relocation is patched.
type RelocationKind byte

const (
	// RelocationCall26 is the 26-bit word offset of a BL instruction.
	RelocationCall26 RelocationKind = iota + 1
)

// String implements fmt.Stringer.
func (k RelocationKind) String() string {
	switch k {
	case RelocationCall26:
		return "call26"
	}
	return "invalid"
}

// Relocation is a reference to a symbol which the linker resolves.
type Relocation struct {
	// Offset is the byte offset of the instruction within Code.Bytes.
	Offset int64
	Symbol ir.SymbolID
	Kind   RelocationKind
}

// LineEntry maps the code at Offset to a source position.
type LineEntry struct {
	Offset       int64
	Line, Column uint32
}

// FrameInfo describes the frame of a compiled function for unwinders.
type FrameInfo struct {
	// Size is the number of bytes between the frame pointer and the stack pointer.
	Size int64
	// Saved are the callee-saved registers stored relative to the frame pointer, in addition
	// to the frame pointer and link register pair at the frame pointer itself.
	Saved []SavedReg
}

// Code is the result of compiling one function.
type Code struct {
	Name        string
	Bytes       []byte
	Relocations []Relocation
	Lines       []LineEntry
	Frame       FrameInfo
	// Spills is the number of values moved to the stack under register pressure.
	Spills int
}
