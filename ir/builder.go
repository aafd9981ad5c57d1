package ir

// FunctionBuilder appends instructions to a Function.
type FunctionBuilder struct {
	f *Function
}

// NewFunctionBuilder starts a function named name.
func NewFunctionBuilder(name string, params []TypeID, result TypeID) *FunctionBuilder {
	return &FunctionBuilder{f: &Function{Name: name, Params: params, Result: result}}
}

// Function returns the built function.
func (b *FunctionBuilder) Function() *Function { return b.f }

// Next returns the index the next instruction will get.
func (b *FunctionBuilder) Next() Index { return Index(len(b.f.Body)) }

// Emit appends inst and returns a reference to it.
func (b *FunctionBuilder) Emit(inst Instruction) Ref {
	b.f.Body = append(b.f.Body, inst)
	return InstRef(Index(len(b.f.Body) - 1))
}

// Args emits one TagArg per parameter and returns them.
func (b *FunctionBuilder) Args() []Ref {
	ret := make([]Ref, len(b.f.Params))
	for i, p := range b.f.Params {
		ret[i] = b.Emit(Instruction{Tag: TagArg, Type: p, Imm: uint64(i)})
	}
	return ret
}

// Const emits a TagConst.
func (b *FunctionBuilder) Const(typ TypeID, bits uint64) Ref {
	return b.Emit(Instruction{Tag: TagConst, Type: typ, Imm: bits})
}

// Binary emits a two-operand instruction whose result has the type of x.
func (b *FunctionBuilder) Binary(tag Tag, x, y Ref) Ref {
	return b.Emit(Instruction{Tag: tag, Type: b.f.TypeOf(x), Args: []Ref{x, y}})
}

// Unary emits a one-operand instruction whose result has the type of x.
func (b *FunctionBuilder) Unary(tag Tag, x Ref) Ref {
	return b.Emit(Instruction{Tag: tag, Type: b.f.TypeOf(x), Args: []Ref{x}})
}

// Cmp emits a comparison.
func (b *FunctionBuilder) Cmp(tag Tag, x, y Ref) Ref {
	return b.Emit(Instruction{Tag: tag, Type: TypeBool, Args: []Ref{x, y}})
}

// Convert emits a conversion of x to typ.
func (b *FunctionBuilder) Convert(tag Tag, typ TypeID, x Ref) Ref {
	return b.Emit(Instruction{Tag: tag, Type: typ, Args: []Ref{x}})
}

// Block emits a TagBlock and returns its index.
func (b *FunctionBuilder) Block() Index {
	b.Emit(Instruction{Tag: TagBlock, Type: TypeVoid})
	return Index(len(b.f.Body) - 1)
}

// Br emits an unconditional branch. The target may be patched later with SetTargets.
func (b *FunctionBuilder) Br(target Index) Index {
	b.Emit(Instruction{Tag: TagBr, Type: TypeVoid, Targets: []Index{target}})
	return Index(len(b.f.Body) - 1)
}

// CondBr emits a two-way branch.
func (b *FunctionBuilder) CondBr(cond Ref, then, els Index) Index {
	b.Emit(Instruction{Tag: TagCondBr, Type: TypeVoid, Args: []Ref{cond}, Targets: []Index{then, els}})
	return Index(len(b.f.Body) - 1)
}

// Switch emits a switch on x. targets has one more entry than cases: the default arm.
func (b *FunctionBuilder) Switch(x Ref, cases []uint64, targets []Index) Index {
	b.Emit(Instruction{Tag: TagSwitch, Type: TypeVoid, Args: []Ref{x}, Cases: cases, Targets: targets})
	return Index(len(b.f.Body) - 1)
}

// SetTargets replaces the branch targets of the instruction at i.
func (b *FunctionBuilder) SetTargets(i Index, targets ...Index) {
	b.f.Body[i].Targets = targets
}

// Ret emits a return of v, or of nothing if v is RefNone.
func (b *FunctionBuilder) Ret(v Ref) {
	inst := Instruction{Tag: TagRet, Type: TypeVoid}
	if v.Valid() {
		inst.Args = []Ref{v}
	}
	b.Emit(inst)
}

// Call emits a call of callee returning result.
func (b *FunctionBuilder) Call(result TypeID, callee Ref, args ...Ref) Ref {
	return b.Emit(Instruction{Tag: TagCall, Type: result, Args: append([]Ref{callee}, args...)})
}

// Alloc emits a frame local of type elem; ptr is the pointer type of the result.
func (b *FunctionBuilder) Alloc(ptr, elem TypeID) Ref {
	return b.Emit(Instruction{Tag: TagAlloc, Type: ptr, Imm: uint64(elem)})
}

// Load emits a load of typ from ptr.
func (b *FunctionBuilder) Load(typ TypeID, ptr Ref) Ref {
	return b.Emit(Instruction{Tag: TagLoad, Type: typ, Args: []Ref{ptr}})
}

// Store emits a store of v to ptr.
func (b *FunctionBuilder) Store(ptr, v Ref) {
	b.Emit(Instruction{Tag: TagStore, Type: TypeVoid, Args: []Ref{ptr, v}})
}

// AtomicRmw emits an atomic read-modify-write producing the previous value.
func (b *FunctionBuilder) AtomicRmw(typ TypeID, op AtomicOp, ord Ordering, ptr, v Ref) Ref {
	return b.Emit(Instruction{Tag: TagAtomicRmw, Type: typ, Args: []Ref{ptr, v}, Imm: uint64(op), Aux: uint64(ord)})
}

// Cmpxchg emits a compare-exchange whose result is the pair type result.
func (b *FunctionBuilder) Cmpxchg(result TypeID, ord Ordering, ptr, expected, replacement Ref) Ref {
	return b.Emit(Instruction{Tag: TagCmpxchg, Type: result, Args: []Ref{ptr, expected, replacement}, Aux: uint64(ord)})
}

// DbgStmt emits a statement marker.
func (b *FunctionBuilder) DbgStmt(line, column uint32) {
	b.Emit(Instruction{Tag: TagDbgStmt, Type: TypeVoid, Imm: uint64(line), Aux: uint64(column)})
}
