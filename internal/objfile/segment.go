// Package objfile describes the memory segments the backend asks an object writer to map.
package objfile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxPageSize is the largest page size of arm64 hosts. Segments with different permissions
// start on distinct pages of this size.
const MaxPageSize = 0x10000

var (
	// ErrOverlap is returned by Layout when two segments share bytes.
	ErrOverlap = errors.New("overlapping segments")
	// ErrDuplicateAddress is returned by Layout when two segments start at the same address.
	ErrDuplicateAddress = errors.New("duplicate segment address")
)

// Perm is the access permission of a segment.
type Perm byte

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// String returns the permission in the "rwx" notation.
func (p Perm) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Perm
		c   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExec, 'x'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Segment is a contiguous range of the address space of the output.
type Segment struct {
	Name  string
	Perm  Perm
	VAddr uint64
	Size  uint64
	// Priority groups segments: lower priorities are laid out first.
	Priority int
}

// End returns the first address after the segment.
func (s *Segment) End() uint64 { return s.VAddr + s.Size }

func (s *Segment) String() string {
	return fmt.Sprintf("%s %s [%#x, %#x)", s.Name, s.Perm, s.VAddr, s.End())
}

// SegmentTable collects segments in any order.
type SegmentTable struct {
	segments []Segment
}

// Add appends s to the table.
func (t *SegmentTable) Add(s Segment) {
	t.segments = append(t.segments, s)
}

// Len returns the number of segments added.
func (t *SegmentTable) Len() int { return len(t.segments) }

// Layout returns the segments ordered by priority, then by ascending address within a
// priority. It fails if two segments start at the same address or overlap.
func (t *SegmentTable) Layout() ([]Segment, error) {
	byAddr := append([]Segment(nil), t.segments...)
	sort.SliceStable(byAddr, func(i, j int) bool { return byAddr[i].VAddr < byAddr[j].VAddr })
	for i := range byAddr {
		s := &byAddr[i]
		if s.End() < s.VAddr {
			return nil, fmt.Errorf("%w: %s wraps around the address space", ErrOverlap, s)
		}
		if i == 0 {
			continue
		}
		prev := &byAddr[i-1]
		if prev.VAddr == s.VAddr {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateAddress, prev, s)
		}
		if prev.End() > s.VAddr {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, prev, s)
		}
	}

	ret := byAddr
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Priority < ret[j].Priority })
	return ret, nil
}

// AlignPage rounds addr up to MaxPageSize.
func AlignPage(addr uint64) uint64 {
	return (addr + MaxPageSize - 1) &^ (MaxPageSize - 1)
}
