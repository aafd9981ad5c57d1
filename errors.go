package a64

import "github.com/tetratelabs/a64/internal/backend"

var (
	// ErrUnsupportedOperation is returned for an IR operation that cannot be lowered for the
	// target. Only the function using it fails to compile.
	ErrUnsupportedOperation = backend.ErrUnsupportedOperation
	// ErrOutOfRegisters is returned when a function needs more registers than exist even
	// after spilling, or a frame larger than supported.
	ErrOutOfRegisters = backend.ErrOutOfRegisters
	// ErrUntrackedInstruction means an operand was used before its definition was lowered.
	ErrUntrackedInstruction = backend.ErrUntrackedInstruction
	// ErrInvalidImmediate is an encoding failure of an immediate operand.
	ErrInvalidImmediate = backend.ErrInvalidImmediate
	// ErrInvalidOperands is an encoding failure of an operand combination.
	ErrInvalidOperands = backend.ErrInvalidOperands
)

// CompileError is the error of compiling one function. Use errors.Is with the sentinel errors
// above to classify it.
type CompileError = backend.CompileError
