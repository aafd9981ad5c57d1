package backend

import "github.com/tetratelabs/a64/ir"

const noUse = ^ir.Index(0)

// Liveness holds the last use of every instruction result in program order. Values used
// inside a loop but defined before it live until the loop's last back edge.
type Liveness struct {
	lastUse []ir.Index
	loopEnd map[ir.Index]ir.Index
}

// ComputeLiveness analyzes fn.
func ComputeLiveness(fn *ir.Function) *Liveness {
	l := &Liveness{lastUse: make([]ir.Index, len(fn.Body)), loopEnd: map[ir.Index]ir.Index{}}
	for i := range l.lastUse {
		l.lastUse[i] = noUse
	}
	for i := range fn.Body {
		for _, a := range fn.Body[i].Args {
			if a.IsInst() {
				l.lastUse[a.Index()] = ir.Index(i)
			}
		}
		for _, t := range fn.Body[i].Targets {
			if t <= ir.Index(i) {
				if end, ok := l.loopEnd[t]; !ok || end < ir.Index(i) {
					l.loopEnd[t] = ir.Index(i)
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for header, end := range l.loopEnd {
			for v, last := range l.lastUse {
				if ir.Index(v) < header && last != noUse && last >= header && last < end {
					l.lastUse[v] = end
					changed = true
				}
			}
		}
	}
	return l
}

// LastUse returns the index of the last instruction reading v.
func (l *Liveness) LastUse(v ir.Index) (ir.Index, bool) {
	last := l.lastUse[v]
	return last, last != noUse
}

// DiesAt returns true if v is last read by at.
func (l *Liveness) DiesAt(v, at ir.Index) bool {
	return l.lastUse[v] == at
}

// LiveAfter returns true if v is read after at.
func (l *Liveness) LiveAfter(v, at ir.Index) bool {
	last := l.lastUse[v]
	return last != noUse && last > at
}

// LoopEnd returns the last back edge to header if header starts a loop.
func (l *Liveness) LoopEnd(header ir.Index) (ir.Index, bool) {
	end, ok := l.loopEnd[header]
	return end, ok
}
