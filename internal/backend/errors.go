package backend

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/a64/internal/backend/regalloc"
	"github.com/tetratelabs/a64/ir"
)

var (
	// ErrUnsupportedOperation is returned for an IR operation the backend cannot lower for
	// the current target. It fails the enclosing function only.
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrOutOfRegisters is returned when allocation failed even after spilling.
	ErrOutOfRegisters = regalloc.ErrOutOfRegisters
	// ErrUntrackedInstruction means an operand was used before its location was recorded.
	// This is always a backend defect.
	ErrUntrackedInstruction = errors.New("untracked instruction")
	// ErrInvalidImmediate is an encoder rejection of an immediate that does not fit its field.
	ErrInvalidImmediate = errors.New("invalid immediate")
	// ErrInvalidOperands is an encoder rejection of an operand shape.
	ErrInvalidOperands = errors.New("invalid operands")
)

// CompileError reports the failure to compile one function.
type CompileError struct {
	Function string
	Index    ir.Index
	Tag      ir.Tag
	Err      error
}

// Error implements error.
func (e *CompileError) Error() string {
	if e.Tag == ir.TagInvalid {
		return fmt.Sprintf("compiling %s: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("compiling %s: %%%d (%s): %v", e.Function, e.Index, e.Tag, e.Err)
}

// Unwrap allows errors.Is against the sentinel errors.
func (e *CompileError) Unwrap() error { return e.Err }

// Unsupported returns an ErrUnsupportedOperation with a reason.
func Unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOperation, fmt.Sprintf(format, args...))
}
