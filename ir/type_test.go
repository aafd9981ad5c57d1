package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	m := NewModule()
	point := m.Struct(TypeU8, TypeI32, TypeU16)
	arr := m.Array(TypeU16, 5)
	optPtr := m.Optional(TypePtr, true)
	optU32 := m.Optional(TypeU32, false)
	pair := m.Pair(TypeU64, TypeBool)

	for _, tc := range []struct {
		name        string
		id          TypeID
		size, align uint64
	}{
		{name: "void", id: TypeVoid, size: 0, align: 1},
		{name: "bool", id: TypeBool, size: 1, align: 1},
		{name: "i16", id: TypeI16, size: 2, align: 2},
		{name: "f64", id: TypeF64, size: 8, align: 8},
		{name: "ptr", id: TypePtr, size: 8, align: 8},
		{name: "slice", id: m.Slice(TypeU8), size: 16, align: 8},
		{name: "struct", id: point, size: 12, align: 4},
		{name: "array", id: arr, size: 10, align: 2},
		{name: "optional sentinel", id: optPtr, size: 8, align: 8},
		{name: "optional tagged", id: optU32, size: 8, align: 4},
		{name: "pair", id: pair, size: 16, align: 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			size, align := Layout(m, tc.id)
			require.Equal(t, tc.size, size)
			require.Equal(t, tc.align, align)
		})
	}

	require.Equal(t, uint64(0), FieldOffset(m, point, 0))
	require.Equal(t, uint64(4), FieldOffset(m, point, 1))
	require.Equal(t, uint64(8), FieldOffset(m, point, 2))
	require.Equal(t, uint64(4), OptionalTagOffset(m, optU32))
}

func TestType_String(t *testing.T) {
	m := NewModule()
	require.Equal(t, "i32", m.Type(TypeI32).String())
	require.Equal(t, "u8", m.Type(TypeU8).String())
	require.Equal(t, "f64", m.Type(TypeF64).String())
	require.Equal(t, "array[3]", m.Type(m.Array(TypeU8, 3)).String())
	require.Equal(t, "pointer", m.Type(TypePtr).String())
}

func TestFunctionBuilder(t *testing.T) {
	b := NewFunctionBuilder("add", []TypeID{TypeI32, TypeI32}, TypeI32)
	args := b.Args()
	sum := b.Binary(TagAdd, args[0], args[1])
	b.Ret(sum)

	f := b.Function()
	require.Equal(t, 4, len(f.Body))
	require.Equal(t, TypeI32, f.TypeOf(sum))
	require.Equal(t, TypeI32, f.TypeOf(ConstRef(TypeI32, 1)))
	require.Equal(t, TypeFuncPtr, f.TypeOf(SymbolRef(0)))
	require.Equal(t, `add:
	%0 = arg
	%1 = arg
	%2 = add %0, %1
	%3 = ret %2
`, f.String())
}

func TestTags(t *testing.T) {
	for _, tag := range Tags() {
		require.NotEqual(t, "", tag.String())
		require.NotEqual(t, "invalid", tag.String())
	}
	require.Equal(t, "tag(65535)", Tag(0xffff).String())
}

func TestOrdering(t *testing.T) {
	for _, tc := range []struct {
		o                Ordering
		acquire, release bool
	}{
		{o: OrderingMonotonic},
		{o: OrderingAcquire, acquire: true},
		{o: OrderingRelease, release: true},
		{o: OrderingAcqRel, acquire: true, release: true},
		{o: OrderingSeqCst, acquire: true, release: true},
	} {
		require.Equal(t, tc.acquire, tc.o.Acquire())
		require.Equal(t, tc.release, tc.o.Release())
	}
}
