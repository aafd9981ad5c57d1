package backend

import (
	"fmt"

	"github.com/tetratelabs/a64/ir"
)

// Tracker maps IR instructions to the current Location of their result.
type Tracker struct {
	fn   *ir.Function
	locs []Location
	set  []bool
	n    int
}

// NewTracker returns a Tracker sized for fn.
func NewTracker(fn *ir.Function) *Tracker {
	return &Tracker{fn: fn, locs: make([]Location, len(fn.Body)), set: make([]bool, len(fn.Body))}
}

// Put records or overwrites the location of i.
func (t *Tracker) Put(i ir.Index, loc Location) {
	if int(i) >= len(t.locs) {
		panic(fmt.Sprintf("BUG: put of %%%d outside function of %d instructions", i, len(t.locs)))
	}
	if !t.set[i] {
		t.set[i] = true
		t.n++
	}
	t.locs[i] = loc
}

// Resolve returns the location of i. It fails with ErrUntrackedInstruction if i was never put.
func (t *Tracker) Resolve(i ir.Index) (Location, error) {
	if int(i) >= len(t.locs) || !t.set[i] {
		tag := ir.TagInvalid
		if int(i) < len(t.fn.Body) {
			tag = t.fn.Body[i].Tag
		}
		return Location{}, fmt.Errorf("%w: %%%d (%s) in %s, %d of %d instructions tracked",
			ErrUntrackedInstruction, i, tag, t.fn.Name, t.n, len(t.locs))
	}
	return t.locs[i], nil
}

// Has returns true if i has a location.
func (t *Tracker) Has(i ir.Index) bool {
	return int(i) < len(t.set) && t.set[i]
}

// Len returns the number of tracked instructions.
func (t *Tracker) Len() int { return t.n }
