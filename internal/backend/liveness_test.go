package backend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/a64/ir"
)

func TestComputeLiveness(t *testing.T) {
	b := ir.NewFunctionBuilder("f", []ir.TypeID{ir.TypeU64}, ir.TypeU64)
	x := b.Args()[0]                                        // %0
	y := b.Binary(ir.TagAdd, x, ir.ConstRef(ir.TypeU64, 1)) // %1
	header := b.Block()                                     // %2
	z := b.Binary(ir.TagAdd, y, ir.ConstRef(ir.TypeU64, 2)) // %3
	c := b.Cmp(ir.TagCmpEq, z, ir.ConstRef(ir.TypeU64, 0))  // %4
	br := b.CondBr(c, 0, header)                            // %5
	exit := b.Block()                                       // %6
	b.Ret(x)                                                // %7
	b.SetTargets(br, exit, header)

	l := ComputeLiveness(b.Function())

	end, ok := l.LoopEnd(header)
	require.True(t, ok)
	require.Equal(t, br, end)
	_, ok = l.LoopEnd(exit)
	require.False(t, ok)

	for _, tc := range []struct {
		v    ir.Index
		last ir.Index
		used bool
	}{
		{v: 0, last: 7, used: true},
		// Defined before the loop and read inside it: lives until the back edge.
		{v: 1, last: 5, used: true},
		{v: 3, last: 4, used: true},
		{v: 4, last: 5, used: true},
		{v: 7},
	} {
		last, used := l.LastUse(tc.v)
		require.Equal(t, tc.used, used, "%%%d", tc.v)
		if used {
			require.Equal(t, tc.last, last, "%%%d", tc.v)
		}
	}

	require.True(t, l.LiveAfter(1, 4))
	require.False(t, l.LiveAfter(1, 5))
	require.True(t, l.DiesAt(4, 5))
	require.False(t, l.DiesAt(0, 5))
}

func TestComputeLiveness_nestedLoops(t *testing.T) {
	b := ir.NewFunctionBuilder("f", []ir.TypeID{ir.TypeBool, ir.TypeU64}, ir.TypeVoid)
	args := b.Args()                       // %0, %1
	outer := b.Block()                     // %2
	inner := b.Block()                     // %3
	b.Binary(ir.TagAdd, args[1], args[1])  // %4
	innerBr := b.CondBr(args[0], inner, 0) // %5
	outerBr := b.CondBr(args[0], outer, 0) // %6
	exit := b.Block()                      // %7
	b.Ret(ir.RefNone)                      // %8
	b.SetTargets(innerBr, inner, exit)
	b.SetTargets(outerBr, outer, exit)

	l := ComputeLiveness(b.Function())
	for _, v := range []ir.Index{0, 1} {
		last, ok := l.LastUse(v)
		require.True(t, ok)
		require.Equal(t, outerBr, last, "%%%d", v)
	}
}
