package regalloc

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfRegisters is returned when no register of a class can be freed, even by spilling.
var ErrOutOfRegisters = errors.New("out of registers")

// Value identifies the owner of registers, i.e. the IR instruction whose result they hold.
type Value uint32

// Spiller moves a value out of the registers it occupies. The allocator releases the
// registers once Spill returns successfully.
type Spiller interface {
	Spill(v Value, regs []RealReg) error
}

type regState struct {
	owner Value
	// seq is the allocation order of the owner and decides the oldest spill candidate.
	seq    uint64
	used   bool
	temp   bool
	locked bool
}

type ownerState struct {
	regs   [2]RealReg
	n      int
	seq    uint64
	pinned bool
}

// Allocator assigns physical registers to values in program order. Each register holds at
// most one value at a time. When a class is exhausted the oldest non-pinned value of that
// class is handed to the Spiller.
type Allocator struct {
	info     *RegisterInfo
	spiller  Spiller
	regs     [64]regState
	owners   map[Value]*ownerState
	seq      uint64
	everUsed RegSet
	spills   int
}

// NewAllocator returns a new Allocator.
func NewAllocator(info *RegisterInfo, spiller Spiller) *Allocator {
	return &Allocator{info: info, spiller: spiller, owners: map[Value]*ownerState{}}
}

// Allocate assigns a free register of class typ to v, spilling another value if necessary.
func (a *Allocator) Allocate(v Value, typ RegType) (RealReg, error) {
	return a.AllocatePreferring(v, typ, RealRegInvalid)
}

// AllocatePreferring is like Allocate but returns prefer if it is free, even when locked.
func (a *Allocator) AllocatePreferring(v Value, typ RegType, prefer RealReg) (RealReg, error) {
	// The first half of a pair must survive allocating the second.
	for _, r := range a.Registers(v) {
		a.Lock(r)
	}
	r, err := a.pick(typ, 0, prefer)
	if err != nil {
		return RealRegInvalid, fmt.Errorf("allocating %s register for v%d: %w", typ, v, err)
	}
	a.assign(r, v)
	return r, nil
}

// AllocateTemp assigns a scratch register of class typ which is not in exclude. The register
// stays locked until ReleaseTemps.
func (a *Allocator) AllocateTemp(typ RegType, exclude RegSet) (RealReg, error) {
	r, err := a.pick(typ, exclude, RealRegInvalid)
	if err != nil {
		return RealRegInvalid, fmt.Errorf("allocating %s scratch register: %w", typ, err)
	}
	a.everUsed = a.everUsed.Add(r)
	a.regs[r] = regState{used: true, temp: true, locked: true}
	return r, nil
}

// ReleaseTemps frees every scratch register and unlocks all registers.
func (a *Allocator) ReleaseTemps() {
	for i := range a.regs {
		if a.regs[i].temp {
			a.regs[i] = regState{}
		}
		a.regs[i].locked = false
	}
}

// Claim assigns the specific register r to v. A previous owner of r is spilled first.
func (a *Allocator) Claim(v Value, r RealReg) error {
	st := &a.regs[r]
	if st.used {
		if st.temp || st.locked {
			return fmt.Errorf("claiming %s for v%d: register is in use by the current instruction: %w",
				a.info.RealRegName(r), v, ErrOutOfRegisters)
		}
		if st.owner != v {
			if err := a.Spill(st.owner); err != nil {
				return err
			}
		}
	}
	a.assign(r, v)
	return nil
}

func (a *Allocator) assign(r RealReg, v Value) {
	o, ok := a.owners[v]
	if !ok {
		a.seq++
		o = &ownerState{seq: a.seq}
		a.owners[v] = o
	}
	if a.regs[r].used && a.regs[r].owner == v {
		return
	}
	if o.n == len(o.regs) {
		panic(fmt.Sprintf("BUG: v%d already owns %d registers", v, o.n))
	}
	o.regs[o.n] = r
	o.n++
	a.regs[r] = regState{owner: v, seq: o.seq, used: true}
	a.everUsed = a.everUsed.Add(r)
}

// pick returns a free register of class typ, spilling the oldest evictable value if needed.
func (a *Allocator) pick(typ RegType, exclude RegSet, prefer RealReg) (RealReg, error) {
	if prefer != RealRegInvalid && !a.regs[prefer].used && !exclude.Has(prefer) {
		return prefer, nil
	}
	candidates := a.info.AllocatableRegisters[typ]
	for _, r := range candidates {
		if !a.regs[r].used && !a.regs[r].locked && !exclude.Has(r) {
			return r, nil
		}
	}

	victim := RealRegInvalid
	for _, r := range candidates {
		st := &a.regs[r]
		if !st.used || exclude.Has(r) || st.temp || st.locked || a.owners[st.owner].pinned {
			continue
		}
		if victim == RealRegInvalid || st.seq < a.regs[victim].seq {
			victim = r
		}
	}
	if victim == RealRegInvalid {
		return RealRegInvalid, ErrOutOfRegisters
	}
	if err := a.Spill(a.regs[victim].owner); err != nil {
		return RealRegInvalid, err
	}
	return victim, nil
}

// Spill hands v to the Spiller and releases its registers.
func (a *Allocator) Spill(v Value) error {
	o, ok := a.owners[v]
	if !ok {
		return nil
	}
	regs := o.regs[:o.n]
	for _, r := range regs {
		if a.regs[r].locked {
			return fmt.Errorf("spilling v%d: %s is in use by the current instruction: %w",
				v, a.info.RealRegName(r), ErrOutOfRegisters)
		}
	}
	if err := a.spiller.Spill(v, regs); err != nil {
		return fmt.Errorf("spilling v%d: %w", v, err)
	}
	a.spills++
	a.Free(v)
	return nil
}

// SpillIn spills every value held in a register of set for which keep returns true.
// Values are spilled oldest first.
func (a *Allocator) SpillIn(set RegSet, keep func(Value) bool) error {
	var victims []Value
	seen := map[Value]bool{}
	set.Range(func(r RealReg) {
		st := &a.regs[r]
		if st.used && !st.temp && !seen[st.owner] && keep(st.owner) {
			seen[st.owner] = true
			victims = append(victims, st.owner)
		}
	})
	sort.Slice(victims, func(i, j int) bool { return a.owners[victims[i]].seq < a.owners[victims[j]].seq })
	for _, v := range victims {
		if err := a.Spill(v); err != nil {
			return err
		}
	}
	return nil
}

// Free releases the registers of v, e.g. when v is dead.
func (a *Allocator) Free(v Value) {
	o, ok := a.owners[v]
	if !ok {
		return
	}
	for _, r := range o.regs[:o.n] {
		locked := a.regs[r].locked
		a.regs[r] = regState{locked: locked}
	}
	delete(a.owners, v)
}

// Lock keeps r from being chosen or spilled until ReleaseTemps.
func (a *Allocator) Lock(r RealReg) {
	if r < 64 {
		a.regs[r].locked = true
	}
}

// Pin keeps v from being chosen as a spill candidate.
func (a *Allocator) Pin(v Value) {
	if o, ok := a.owners[v]; ok {
		o.pinned = true
	}
}

// Unpin undoes Pin.
func (a *Allocator) Unpin(v Value) {
	if o, ok := a.owners[v]; ok {
		o.pinned = false
	}
}

// Registers returns the registers held by v.
func (a *Allocator) Registers(v Value) []RealReg {
	o, ok := a.owners[v]
	if !ok {
		return nil
	}
	return o.regs[:o.n]
}

// Owner returns the value held in r.
func (a *Allocator) Owner(r RealReg) (Value, bool) {
	st := &a.regs[r]
	if !st.used || st.temp {
		return 0, false
	}
	return st.owner, true
}

// Live returns the values held in registers of class typ, oldest first.
func (a *Allocator) Live(typ RegType) []Value {
	var ret []Value
	seen := map[Value]bool{}
	for _, r := range a.info.AllocatableRegisters[typ] {
		st := &a.regs[r]
		if st.used && !st.temp && !seen[st.owner] {
			seen[st.owner] = true
			ret = append(ret, st.owner)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return a.owners[ret[i]].seq < a.owners[ret[j]].seq })
	return ret
}

// UsedIn returns the registers of set that held a value or a scratch at any point.
func (a *Allocator) UsedIn(set RegSet) RegSet {
	return a.everUsed & set
}

// Spills returns the number of values spilled so far.
func (a *Allocator) Spills() int { return a.spills }

// CheckInvariants verifies that every register has at most one owner and that the owner
// table agrees with the register table.
func (a *Allocator) CheckInvariants() error {
	for v, o := range a.owners {
		for _, r := range o.regs[:o.n] {
			st := &a.regs[r]
			if !st.used || st.temp || st.owner != v {
				return fmt.Errorf("v%d claims %s which is held by v%d", v, a.info.RealRegName(r), st.owner)
			}
		}
	}
	for i := range a.regs {
		st := &a.regs[i]
		if !st.used || st.temp {
			continue
		}
		o, ok := a.owners[st.owner]
		if !ok {
			return fmt.Errorf("%s held by dead v%d", a.info.RealRegName(RealReg(i)), st.owner)
		}
		found := false
		for _, r := range o.regs[:o.n] {
			if r == RealReg(i) {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%s held by v%d which does not know about it", a.info.RealRegName(RealReg(i)), st.owner)
		}
	}
	return nil
}
