package backend

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/internal/asm"
)

func TestEmit(t *testing.T) {
	var seg asm.CodeSegment
	off, err := Emit(&seg, &Code{Name: "f", Bytes: []byte{0xc0, 0x03, 0x5f, 0xd6}})
	require.NoError(t, err)
	require.Equal(t, 0, off)

	off, err = Emit(&seg, &Code{Name: "g", Bytes: []byte{0x1f, 0x20, 0x03, 0xd5, 0xc0, 0x03, 0x5f, 0xd6}})
	require.NoError(t, err)
	require.Equal(t, asm.FunctionAlign, off)
	require.Equal(t, []byte{
		0xc0, 0x03, 0x5f, 0xd6, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x1f, 0x20, 0x03, 0xd5, 0xc0, 0x03, 0x5f, 0xd6,
	}, seg.Bytes())
}

func TestEmit_invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		code *Code
	}{
		{name: "odd size", code: &Code{Name: "f", Bytes: []byte{1, 2, 3}}},
		{name: "relocation outside", code: &Code{Name: "f", Bytes: make([]byte, 4), Relocations: []Relocation{{Offset: 4, Kind: RelocationCall26}}}},
		{name: "unaligned relocation", code: &Code{Name: "f", Bytes: make([]byte, 8), Relocations: []Relocation{{Offset: 2, Kind: RelocationCall26}}}},
		{name: "line outside", code: &Code{Name: "f", Bytes: make([]byte, 4), Lines: []LineEntry{{Offset: 8, Line: 1}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var seg asm.CodeSegment
			_, err := Emit(&seg, tc.code)
			require.True(t, errors.Is(err, ErrInvalidOperands), err)
			// Nothing was reserved.
			require.Zero(t, seg.Len())
			require.Empty(t, seg.Regions())
		})
	}
}

func TestEmit_concurrent(t *testing.T) {
	var seg asm.CodeSegment
	const n = 32
	offsets := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := []byte{byte(i), 0, 0, 0, byte(i), 1, 1, 1}
			offsets[i], errs[i] = Emit(&seg, &Code{Name: "f", Bytes: b})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	code := seg.Bytes()
	seen := map[int]bool{}
	for i, off := range offsets {
		require.False(t, seen[off])
		seen[off] = true
		require.Equal(t, []byte{byte(i), 0, 0, 0, byte(i), 1, 1, 1}, code[off:off+8])
	}
	for _, r := range seg.Regions() {
		require.True(t, r.Committed)
	}
}
