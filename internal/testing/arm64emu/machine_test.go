package arm64emu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const ret = 0xd65f03c0

func load(t *testing.T, words ...uint32) *Machine {
	m := New(1 << 16)
	code := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(code[4*i:], w)
	}
	require.NoError(t, m.Write(m.Base, code))
	return m
}

func TestMachine_Call(t *testing.T) {
	for _, tc := range []struct {
		name  string
		words []uint32
		args  []uint64
		exp   uint64
	}{
		{
			name:  "movz",
			words: []uint32{0xd2824680, ret}, // movz x0, #0x1234
			exp:   0x1234,
		},
		{
			name:  "add",
			words: []uint32{0x8b010000, ret}, // add x0, x0, x1
			args:  []uint64{40, 2},
			exp:   42,
		},
		{
			name:  "sub 32-bit wraps",
			words: []uint32{0x51000400, ret}, // sub w0, w0, #1
			args:  []uint64{0},
			exp:   0xffff_ffff,
		},
		{
			name:  "mul",
			words: []uint32{0x9b017c00, ret}, // madd x0, x0, x1, xzr
			args:  []uint64{6, 7},
			exp:   42,
		},
		{
			name: "loop",
			words: []uint32{
				0xd2800001, // movz x1, #0
				0x8b000021, // add x1, x1, x0
				0xd1000400, // sub x0, x0, #1
				0xb5ffffc0, // cbnz x0, #-8
				0xaa0103e0, // mov x0, x1
				ret,
			},
			args: []uint64{10},
			exp:  55,
		},
		{
			name:  "logical immediate",
			words: []uint32{0x92401c00, ret}, // and x0, x0, #0xff
			args:  []uint64{0x1234},
			exp:   0x34,
		},
		{
			name:  "lsl",
			words: []uint32{0x531c6c00, ret}, // lsl w0, w0, #4
			args:  []uint64{0xf000_0001},
			exp:   0x10,
		},
		{
			name:  "asr",
			words: []uint32{0x937ffc00, ret}, // asr x0, x0, #63
			args:  []uint64{1 << 63},
			exp:   math.MaxUint64,
		},
		{
			name:  "sxtb",
			words: []uint32{0x13001c00, ret}, // sxtb w0, w0
			args:  []uint64{0x80},
			exp:   0xffff_ff80,
		},
		{
			name:  "cset",
			words: []uint32{0xeb01001f, 0x9a9fa7e0, ret}, // cmp x0, x1; cset x0, lt
			args:  []uint64{math.MaxUint64, 1},
			exp:   1,
		},
		{
			name:  "stack argument",
			words: []uint32{0xf94007e0, ret}, // ldr x0, [sp, #8]
			args:  []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			exp:   9,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := load(t, tc.words...)
			actual, err := m.Call(m.Base, tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual)
		})
	}
}

func TestMachine_exclusive(t *testing.T) {
	m := load(t,
		0xc85f7c02, // ldxr x2, [x0]
		0x8b010042, // add x2, x2, x1
		0xc8037c02, // stxr w3, x2, [x0]
		0x35ffffa3, // cbnz w3, #-12
		0xaa0203e0, // mov x0, x2
		ret,
	)
	addr := m.Base + 0x8000
	require.NoError(t, m.Store(addr, 8, 100))
	actual, err := m.Call(m.Base, addr, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(105), actual)
	v, err := m.Load(addr, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(105), v)
}

func TestMachine_cas(t *testing.T) {
	for _, tc := range []struct {
		name             string
		expected, stored uint64
	}{
		{name: "success", expected: 7, stored: 9},
		{name: "failure", expected: 8, stored: 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := load(t, 0xc8a17c02, 0xaa0103e0, ret) // cas x1, x2, [x0]; mov x0, x1
			addr := m.Base + 0x8000
			require.NoError(t, m.Store(addr, 8, 7))
			old, err := m.Call(m.Base, addr, tc.expected, 9)
			require.NoError(t, err)
			require.Equal(t, uint64(7), old)
			v, err := m.Load(addr, 8)
			require.NoError(t, err)
			require.Equal(t, tc.stored, v)
		})
	}
}

func TestMachine_float(t *testing.T) {
	m := load(t, 0x1e612800, ret) // fadd d0, d0, d1
	m.D[0], m.D[1] = math.Float64bits(1.5), math.Float64bits(2.25)
	_, err := m.Call(m.Base)
	require.NoError(t, err)
	require.Equal(t, 3.75, math.Float64frombits(m.D[0]))

	m = load(t, 0x9e620000, 0x9e780000, ret) // scvtf d0, x0; fcvtzs x0, d0
	actual, err := m.Call(m.Base, uint64(math.MaxUint64))
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), actual)
	require.Equal(t, -1.0, math.Float64frombits(m.D[0]))
}

func TestMachine_errors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		words []uint32
		exp   error
	}{
		{name: "udf", words: []uint32{0}, exp: ErrUndefined},
		{name: "brk", words: []uint32{0xd4200000}, exp: ErrBreakpoint},
		{name: "fault", words: []uint32{0xf9400000, ret}, exp: ErrMemoryFault}, // ldr x0, [x0]
		{name: "infinite loop", words: []uint32{0x14000000}, exp: ErrStepLimit},
		{name: "unknown", words: []uint32{0xffffffff}, exp: ErrUnknownInstruction},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := load(t, tc.words...)
			m.MaxSteps = 100
			_, err := m.Call(m.Base, 0)
			require.True(t, errors.Is(err, tc.exp), err)
		})
	}
}

func TestDecodeBitMasks(t *testing.T) {
	for _, tc := range []struct {
		n, imms, immr uint32
		width         uint
		exp           uint64
	}{
		{n: 1, imms: 7, immr: 0, width: 64, exp: 0xff},
		{n: 0, imms: 0b111100, immr: 0, width: 32, exp: 0x5555_5555},
		{n: 0, imms: 0, immr: 1, width: 32, exp: 0x8000_0000},
		{n: 1, imms: 0, immr: 63, width: 64, exp: 2},
	} {
		wmask, _, ok := decodeBitMasks(tc.n, tc.imms, tc.immr, true, tc.width)
		require.True(t, ok)
		require.Equal(t, tc.exp, wmask)
	}
	_, _, ok := decodeBitMasks(1, 0x3f, 0, true, 64)
	require.False(t, ok)
}
