// Package asm holds the output buffer that compiled functions are written into.
package asm

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// FunctionAlign is the alignment of every region handed out by a CodeSegment.
const FunctionAlign = 16

// CodeSegment is the shared, append-only buffer where native CPU instructions of many
// functions are written.
//
// Writers obtain an exclusive region with Reserve, then either Commit the whole function body
// at once or Abort. Readers never observe a partially written function: the bytes of a region
// stay zero (a permanently undefined instruction on arm64) until Commit.
//
// The zero value is a valid, empty code segment. CodeSegment is safe for concurrent use.
type CodeSegment struct {
	mux     sync.Mutex
	code    []byte
	regions []RegionInfo
}

// RegionInfo describes one reserved range of a CodeSegment.
type RegionInfo struct {
	Name      string
	Offset    int
	Size      int
	Committed bool
}

// Region is an exclusive range of a CodeSegment reserved for one function.
type Region struct {
	seg   *CodeSegment
	index int
	off   int
	size  int
	done  bool
}

// Reserve returns a region of size bytes aligned to FunctionAlign.
func (seg *CodeSegment) Reserve(name string, size int) *Region {
	seg.mux.Lock()
	defer seg.mux.Unlock()

	off := (len(seg.code) + FunctionAlign - 1) &^ (FunctionAlign - 1)
	seg.grow(off + size)
	seg.regions = append(seg.regions, RegionInfo{Name: name, Offset: off, Size: size})
	return &Region{seg: seg, index: len(seg.regions) - 1, off: off, size: size}
}

func (seg *CodeSegment) grow(n int) {
	if n <= len(seg.code) {
		return
	}
	if n <= cap(seg.code) {
		seg.code = seg.code[:n]
		return
	}
	size := cap(seg.code)
	if size == 0 {
		size = 65536
	}
	for size < n {
		size *= 2
	}
	b := make([]byte, n, size)
	copy(b, seg.code)
	seg.code = b
}

// Len returns the number of bytes reserved so far, including padding.
func (seg *CodeSegment) Len() int {
	seg.mux.Lock()
	defer seg.mux.Unlock()
	return len(seg.code)
}

// Bytes returns a copy of the segment contents.
func (seg *CodeSegment) Bytes() []byte {
	seg.mux.Lock()
	defer seg.mux.Unlock()
	if seg.code == nil {
		return nil
	}
	return append([]byte(nil), seg.code...)
}

// Regions returns the reserved regions in reservation order.
func (seg *CodeSegment) Regions() []RegionInfo {
	seg.mux.Lock()
	defer seg.mux.Unlock()
	return append([]RegionInfo(nil), seg.regions...)
}

// Offset returns the offset of the region in its segment.
func (r *Region) Offset() int { return r.off }

// Size returns the size of the region.
func (r *Region) Size() int { return r.size }

// Commit writes code, which must be exactly the reserved size, and closes the region.
func (r *Region) Commit(code []byte) error {
	if r.done {
		return fmt.Errorf("region at %#x already closed", r.off)
	}
	if len(code) != r.size {
		return fmt.Errorf("region at %#x holds %d bytes, got %d", r.off, r.size, len(code))
	}
	r.seg.mux.Lock()
	defer r.seg.mux.Unlock()
	copy(r.seg.code[r.off:r.off+r.size], code)
	r.seg.regions[r.index].Committed = true
	r.done = true
	return nil
}

// CommitWords is Commit for little-endian 32-bit instruction words.
func (r *Region) CommitWords(words []uint32) error {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return r.Commit(b)
}

// Abort closes the region leaving its bytes zero.
func (r *Region) Abort() {
	r.done = true
}
