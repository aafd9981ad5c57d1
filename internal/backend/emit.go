package backend

import (
	"fmt"

	"github.com/tetratelabs/a64/internal/asm"
)

// Emit writes code into an exclusive region of seg and returns the offset of the region.
// On failure the region is aborted and holds only zero words.
func Emit(seg *asm.CodeSegment, code *Code) (int, error) {
	if err := validate(code); err != nil {
		return 0, fmt.Errorf("emitting %s: %w", code.Name, err)
	}
	r := seg.Reserve(code.Name, len(code.Bytes))
	if err := r.Commit(code.Bytes); err != nil {
		r.Abort()
		return 0, fmt.Errorf("emitting %s: %w", code.Name, err)
	}
	return r.Offset(), nil
}

func validate(code *Code) error {
	size := int64(len(code.Bytes))
	if size%4 != 0 {
		return fmt.Errorf("%w: code size %d is not a multiple of the instruction size", ErrInvalidOperands, size)
	}
	for _, rel := range code.Relocations {
		if rel.Offset < 0 || rel.Offset+4 > size || rel.Offset%4 != 0 {
			return fmt.Errorf("%w: relocation at %#x outside of %d bytes of code", ErrInvalidOperands, rel.Offset, size)
		}
	}
	for _, l := range code.Lines {
		if l.Offset < 0 || l.Offset > size {
			return fmt.Errorf("%w: line entry at %#x outside of %d bytes of code", ErrInvalidOperands, l.Offset, size)
		}
	}
	return nil
}
