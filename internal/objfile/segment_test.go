package objfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentTable_Layout(t *testing.T) {
	var table SegmentTable
	// Added in descending order.
	table.Add(Segment{Name: "data", Perm: PermRead | PermWrite, VAddr: 0x30000, Size: 0x100})
	table.Add(Segment{Name: "rodata", Perm: PermRead, VAddr: 0x20000, Size: 0x100})
	table.Add(Segment{Name: "text", Perm: PermRead | PermExec, VAddr: 0x10000, Size: 0x10000})
	require.Equal(t, 3, table.Len())

	segs, err := table.Layout()
	require.NoError(t, err)
	var names []string
	for _, s := range segs {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"text", "rodata", "data"}, names)
}

func TestSegmentTable_Layout_priority(t *testing.T) {
	var table SegmentTable
	table.Add(Segment{Name: "b", VAddr: 0x1000, Size: 0x10, Priority: 1})
	table.Add(Segment{Name: "d", VAddr: 0x4000, Size: 0x10})
	table.Add(Segment{Name: "a", VAddr: 0x3000, Size: 0x10, Priority: 1})
	table.Add(Segment{Name: "c", VAddr: 0x2000, Size: 0x10})

	segs, err := table.Layout()
	require.NoError(t, err)
	var names []string
	for _, s := range segs {
		names = append(names, s.Name)
	}
	// Neither alphabetical nor insertion order.
	require.Equal(t, []string{"c", "d", "b", "a"}, names)
}

func TestSegmentTable_Layout_errors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		segments []Segment
		exp      error
	}{
		{
			name:     "same address",
			segments: []Segment{{Name: "a", VAddr: 0x1000, Size: 0x10}, {Name: "b", VAddr: 0x1000, Size: 0x20, Priority: 2}},
			exp:      ErrDuplicateAddress,
		},
		{
			name:     "overlap",
			segments: []Segment{{Name: "a", VAddr: 0x2000, Size: 0x10}, {Name: "b", VAddr: 0x1000, Size: 0x1001}},
			exp:      ErrOverlap,
		},
		{
			name:     "wraps",
			segments: []Segment{{Name: "a", VAddr: ^uint64(0) - 1, Size: 0x10}},
			exp:      ErrOverlap,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var table SegmentTable
			for _, s := range tc.segments {
				table.Add(s)
			}
			_, err := table.Layout()
			require.True(t, errors.Is(err, tc.exp), err)
		})
	}
}

func TestSegmentTable_Layout_adjacent(t *testing.T) {
	var table SegmentTable
	table.Add(Segment{Name: "b", VAddr: 0x1010, Size: 0x10})
	table.Add(Segment{Name: "a", VAddr: 0x1000, Size: 0x10})
	segs, err := table.Layout()
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), segs[0].VAddr)
	require.Equal(t, uint64(0x1010), segs[0].End())
}

func TestPerm_String(t *testing.T) {
	require.Equal(t, "r-x", (PermRead | PermExec).String())
	require.Equal(t, "rw-", (PermRead | PermWrite).String())
	require.Equal(t, "---", Perm(0).String())
}

func TestAlignPage(t *testing.T) {
	require.Equal(t, uint64(0), AlignPage(0))
	require.Equal(t, uint64(MaxPageSize), AlignPage(1))
	require.Equal(t, uint64(2*MaxPageSize), AlignPage(MaxPageSize+1))
}
