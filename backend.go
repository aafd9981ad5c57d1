// Package a64 compiles a typed, instruction-indexed IR into ARM64 machine code.
//
// A Backend lowers functions one at a time into position-dependent code with relocations for
// calls, and emits them into a shared CodeSegment. Linking, object file writing and debug
// info generation belong to the caller.
package a64

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/a64/internal/asm"
	"github.com/tetratelabs/a64/internal/backend"
	"github.com/tetratelabs/a64/internal/backend/isa/arm64"
	"github.com/tetratelabs/a64/internal/objfile"
	"github.com/tetratelabs/a64/ir"
)

type (
	// Code is the machine code of one function with its relocations and debug records.
	Code = backend.Code
	// Relocation is a call site the linker patches with the address of Symbol.
	Relocation = backend.Relocation
	// LineEntry maps a code offset to a source position.
	LineEntry = backend.LineEntry
	// FrameInfo describes the stack frame of a function for unwinders.
	FrameInfo = backend.FrameInfo
	// CodeSegment is the buffer compiled functions are emitted into. The zero value is empty
	// and ready to use.
	CodeSegment = asm.CodeSegment
	// Segment describes a range of the address space of the output.
	Segment = objfile.Segment
)

// Backend compiles IR for one target. It is safe for concurrent use.
type Backend struct {
	config   *TargetConfig
	compiler *arm64.Compiler
}

// NewBackend returns a Backend for config, or for NewTargetConfig if nil.
func NewBackend(config *TargetConfig) *Backend {
	if config == nil {
		config = NewTargetConfig()
	}
	return &Backend{config: config, compiler: arm64.NewCompiler(config.lse)}
}

// Config returns the configuration of b.
func (b *Backend) Config() *TargetConfig { return b.config }

// Compile lowers fn. Symbols and types referenced by fn are resolved through tab. On failure
// the error is a *CompileError and no code is returned.
func (b *Backend) Compile(fn *ir.Function, tab ir.SymbolTable) (*Code, error) {
	code, err := b.compiler.Compile(fn, tab)
	if err != nil {
		return nil, err
	}
	b.config.logger.Debug("compiled function",
		slog.String("function", fn.Name),
		slog.Int("size", len(code.Bytes)),
		slog.Int("spills", code.Spills))
	return code, nil
}

// Function is a function emitted by CompileModule.
type Function struct {
	Code *Code
	// Offset is where Code starts in the CodeSegment.
	Offset int
}

// CompileModule compiles every function of mod in parallel, bounded by
// TargetConfig.Parallelism, then emits them into seg in module order. The offsets of
// relocations are relative to each function.
//
// If any function fails, nothing is emitted and the first error is returned.
func (b *Backend) CompileModule(ctx context.Context, mod *ir.Module, seg *CodeSegment) ([]Function, error) {
	codes := make([]*Code, len(mod.Functions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.parallelism)
	for i, fn := range mod.Functions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			code, err := b.Compile(fn, mod)
			if err != nil {
				b.config.logger.Warn("compilation failed", slog.String("function", fn.Name), slog.Any("error", err))
				return err
			}
			codes[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ret := make([]Function, len(codes))
	for i, code := range codes {
		off, err := backend.Emit(seg, code)
		if err != nil {
			b.config.logger.Warn("emission failed", slog.String("function", code.Name), slog.Any("error", err))
			return nil, err
		}
		ret[i] = Function{Code: code, Offset: off}
	}
	return ret, nil
}

// Segments returns the segments to map for textSize bytes of code at textBase followed by
// dataSize bytes of read-only data on the next page, in layout order.
func (b *Backend) Segments(textBase, textSize, dataSize uint64) ([]Segment, error) {
	if textBase != objfile.AlignPage(textBase) {
		return nil, fmt.Errorf("text base %#x is not aligned to %#x", textBase, objfile.MaxPageSize)
	}
	var table objfile.SegmentTable
	table.Add(objfile.Segment{Name: "text", Perm: objfile.PermRead | objfile.PermExec, VAddr: textBase, Size: textSize})
	if dataSize > 0 {
		table.Add(objfile.Segment{
			Name: "rodata", Perm: objfile.PermRead,
			VAddr: objfile.AlignPage(textBase + textSize), Size: dataSize,
		})
	}
	return table.Layout()
}
