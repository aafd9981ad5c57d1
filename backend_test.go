package a64

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/objfile"
	"github.com/tetratelabs/a64/internal/testing/arm64emu"
	"github.com/tetratelabs/a64/ir"
)

// testModule returns a module where sum3 calls add twice.
func testModule() *ir.Module {
	mod := ir.NewModule()
	add := ir.NewFunctionBuilder("add", []ir.TypeID{ir.TypeI32, ir.TypeI32}, ir.TypeI32)
	args := add.Args()
	add.Ret(add.Binary(ir.TagAdd, args[0], args[1]))
	addSym := mod.AddFunction(add.Function())

	sum := ir.NewFunctionBuilder("sum3", []ir.TypeID{ir.TypeI32, ir.TypeI32, ir.TypeI32}, ir.TypeI32)
	args = sum.Args()
	ab := sum.Call(ir.TypeI32, ir.SymbolRef(addSym), args[0], args[1])
	sum.Ret(sum.Call(ir.TypeI32, ir.SymbolRef(addSym), ab, args[2]))
	mod.AddFunction(sum.Function())

	double := ir.NewFunctionBuilder("double", []ir.TypeID{ir.TypeI64}, ir.TypeI64)
	args = double.Args()
	double.Ret(double.Binary(ir.TagAdd, args[0], args[0]))
	mod.AddFunction(double.Function())
	return mod
}

func TestBackend_Compile(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := NewBackend(NewTargetConfig().WithLogger(logger))

	mod := testModule()
	code, err := b.Compile(mod.Functions[0], mod)
	require.NoError(t, err)
	require.Equal(t, "add", code.Name)
	require.Empty(t, code.Relocations)
	require.Contains(t, buf.String(), `msg="compiled function" function=add`)
	require.Contains(t, buf.String(), "spills=0")
}

func TestNewBackend_nil(t *testing.T) {
	b := NewBackend(nil)
	require.Equal(t, NewTargetConfig(), b.Config())
}

func TestBackend_CompileModule(t *testing.T) {
	mod := testModule()
	var want []byte
	for _, n := range []int{1, 2, 8} {
		for _, lse := range []bool{false, true} {
			b := NewBackend(NewTargetConfig().WithParallelism(n).WithLSE(lse))
			var seg CodeSegment
			fns, err := b.CompileModule(context.Background(), mod, &seg)
			require.NoError(t, err)
			require.Equal(t, len(mod.Functions), len(fns))

			regions := seg.Regions()
			require.Equal(t, len(fns), len(regions))
			prev := -1
			for i, fn := range fns {
				require.Equal(t, mod.Functions[i].Name, fn.Code.Name)
				require.Equal(t, fn.Code.Name, regions[i].Name)
				require.Equal(t, fn.Offset, regions[i].Offset)
				require.True(t, regions[i].Committed)
				require.True(t, fn.Offset > prev)
				prev = fn.Offset
			}
			// Output doesn't depend on scheduling.
			if want == nil {
				want = seg.Bytes()
			} else {
				require.Equal(t, want, seg.Bytes())
			}
		}
	}
}

func TestBackend_CompileModule_run(t *testing.T) {
	mod := testModule()
	var seg CodeSegment
	fns, err := NewBackend(nil).CompileModule(context.Background(), mod, &seg)
	require.NoError(t, err)

	emu := arm64emu.New(1 << 16)
	addrs := map[string]uint64{}
	for _, fn := range fns {
		addrs[fn.Code.Name] = emu.Base + uint64(fn.Offset)
	}
	text := seg.Bytes()
	for _, fn := range fns {
		for _, rel := range fn.Code.Relocations {
			at := fn.Offset + int(rel.Offset)
			target := addrs[mod.Symbol(rel.Symbol).Name]
			disp := int64(target-(emu.Base+uint64(at))) / 4
			w := binary.LittleEndian.Uint32(text[at:])
			binary.LittleEndian.PutUint32(text[at:], w|uint32(disp)&0x3ff_ffff)
		}
	}
	require.NoError(t, emu.Write(emu.Base, text))

	ret, err := emu.Call(addrs["sum3"], 1, 2, 0xffff_fffe)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ret)

	ret, err = emu.Call(addrs["double"], 21)
	require.NoError(t, err)
	require.Equal(t, uint64(42), ret)
}

func TestBackend_CompileModule_error(t *testing.T) {
	mod := testModule()
	bad := ir.NewFunctionBuilder("bad", []ir.TypeID{ir.TypeF64, ir.TypeF64}, ir.TypeF64)
	args := bad.Args()
	bad.Ret(bad.Binary(ir.TagRem, args[0], args[1]))
	mod.AddFunction(bad.Function())

	var buf bytes.Buffer
	b := NewBackend(NewTargetConfig().WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	var seg CodeSegment
	fns, err := b.CompileModule(context.Background(), mod, &seg)
	require.Nil(t, fns)
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "bad", ce.Function)
	require.Equal(t, ir.TagRem, ce.Tag)

	require.Zero(t, seg.Len())
	require.Empty(t, seg.Regions())
	require.Contains(t, buf.String(), `level=WARN msg="compilation failed" function=bad`)
}

func TestBackend_CompileModule_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seg CodeSegment
	_, err := NewBackend(nil).CompileModule(ctx, testModule(), &seg)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, seg.Len())
}

func TestBackend_Segments(t *testing.T) {
	b := NewBackend(nil)
	t.Run("text and rodata", func(t *testing.T) {
		segs, err := b.Segments(0x40_0000, 0x1_2345, 0x100)
		require.NoError(t, err)
		require.Equal(t, []Segment{
			{Name: "text", Perm: objfile.PermRead | objfile.PermExec, VAddr: 0x40_0000, Size: 0x1_2345},
			{Name: "rodata", Perm: objfile.PermRead, VAddr: 0x42_0000, Size: 0x100},
		}, segs)
	})
	t.Run("text only", func(t *testing.T) {
		segs, err := b.Segments(0x10000, 0x10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, len(segs))
		require.Equal(t, "r-x", segs[0].Perm.String())
	})
	t.Run("unaligned base", func(t *testing.T) {
		_, err := b.Segments(0x1000, 0x10, 0x10)
		require.EqualError(t, err, "text base 0x1000 is not aligned to 0x10000")
	})
}
