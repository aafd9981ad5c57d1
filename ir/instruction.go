package ir

import (
	"fmt"
	"strings"
)

// Index identifies an instruction by its position in Function.Body.
type Index uint32

// Tag is the operation kind of an Instruction.
type Tag uint16

const (
	TagInvalid Tag = iota

	// TagArg is the Imm-th parameter of the function.
	TagArg
	// TagConst is the constant Imm of Type.
	TagConst

	// Binary integer and float arithmetic: Args[0] op Args[1].
	TagAdd
	TagSub
	TagMul
	TagDiv
	TagRem
	TagAnd
	TagOr
	TagXor
	TagShl
	TagShr

	// Unary: op Args[0].
	TagNot
	TagNeg
	TagClz
	TagCtz
	TagPopCount

	// Comparisons produce a bool from Args[0] and Args[1].
	TagCmpEq
	TagCmpNe
	TagCmpLt
	TagCmpLe
	TagCmpGt
	TagCmpGe

	// TagSelect is Args[1] if Args[0] is true, else Args[2].
	TagSelect

	// Conversions of Args[0] to Type.
	TagIntCast
	TagFloatCast
	TagIntToFloat
	TagFloatToInt
	TagBitcast

	// TagBlock starts a basic block. Branches target the index of a TagBlock.
	TagBlock
	// TagBr jumps to Targets[0].
	TagBr
	// TagCondBr jumps to Targets[0] if Args[0] is true, else to Targets[1].
	TagCondBr
	// TagSwitch jumps to Targets[i] when Args[0] == Cases[i], else to the last target.
	TagSwitch
	// TagRet returns Args[0], if any.
	TagRet
	TagUnreachable
	TagBreakpoint

	// TagCall calls Args[0] with Args[1:].
	TagCall

	// TagAlloc reserves a frame local of type Elem of Type, and produces its address.
	TagAlloc
	// TagLoad reads a Type value from the address Args[0].
	TagLoad
	// TagStore writes Args[1] to the address Args[0].
	TagStore

	// TagStructFieldPtr is the address of field Imm of the struct pointed to by Args[0].
	TagStructFieldPtr
	// TagStructFieldVal is field Imm of the struct value Args[0].
	TagStructFieldVal
	// TagArrayElemPtr is the address of element Args[1] of the array pointed to by Args[0].
	TagArrayElemPtr
	// TagArrayElemVal is element Args[1] of the array value Args[0].
	TagArrayElemVal
	// TagAggregateInit builds a struct or array value of Type from Args.
	TagAggregateInit
	// TagMakeSlice builds a slice from the pointer Args[0] and length Args[1].
	TagMakeSlice
	TagSlicePtr
	TagSliceLen
	TagPairFirst
	TagPairSecond

	// TagWrapOptional makes a non-null optional of Type from Args[0].
	TagWrapOptional
	// TagNullOptional is the null value of the optional Type.
	TagNullOptional
	TagIsNull
	TagIsNonNull
	// TagOptionalPayload is the payload of the non-null optional Args[0].
	TagOptionalPayload

	// TagAtomicRmw applies AtomicOp(Imm) with Args[1] to the memory at Args[0] with
	// ordering Ordering(Aux), producing the previous value.
	TagAtomicRmw
	// TagCmpxchg compares the memory at Args[0] with Args[1] and stores Args[2] if equal,
	// with ordering Ordering(Aux). The result is a pair of the previous value and a success bool.
	TagCmpxchg
	TagAtomicLoad
	TagAtomicStore
	TagFence

	// TagDbgStmt marks the statement at line Imm, column Aux.
	TagDbgStmt
	// TagDbgVar associates a variable with Args[0].
	TagDbgVar
	// TagAsm emits Words as-is.
	TagAsm

	tagEnd
)

var tagNames = [tagEnd]string{
	TagInvalid:         "invalid",
	TagArg:             "arg",
	TagConst:           "const",
	TagAdd:             "add",
	TagSub:             "sub",
	TagMul:             "mul",
	TagDiv:             "div",
	TagRem:             "rem",
	TagAnd:             "and",
	TagOr:              "or",
	TagXor:             "xor",
	TagShl:             "shl",
	TagShr:             "shr",
	TagNot:             "not",
	TagNeg:             "neg",
	TagClz:             "clz",
	TagCtz:             "ctz",
	TagPopCount:        "popcount",
	TagCmpEq:           "cmp_eq",
	TagCmpNe:           "cmp_ne",
	TagCmpLt:           "cmp_lt",
	TagCmpLe:           "cmp_le",
	TagCmpGt:           "cmp_gt",
	TagCmpGe:           "cmp_ge",
	TagSelect:          "select",
	TagIntCast:         "intcast",
	TagFloatCast:       "floatcast",
	TagIntToFloat:      "int_to_float",
	TagFloatToInt:      "float_to_int",
	TagBitcast:         "bitcast",
	TagBlock:           "block",
	TagBr:              "br",
	TagCondBr:          "cond_br",
	TagSwitch:          "switch",
	TagRet:             "ret",
	TagUnreachable:     "unreachable",
	TagBreakpoint:      "breakpoint",
	TagCall:            "call",
	TagAlloc:           "alloc",
	TagLoad:            "load",
	TagStore:           "store",
	TagStructFieldPtr:  "struct_field_ptr",
	TagStructFieldVal:  "struct_field_val",
	TagArrayElemPtr:    "array_elem_ptr",
	TagArrayElemVal:    "array_elem_val",
	TagAggregateInit:   "aggregate_init",
	TagMakeSlice:       "make_slice",
	TagSlicePtr:        "slice_ptr",
	TagSliceLen:        "slice_len",
	TagPairFirst:       "pair_first",
	TagPairSecond:      "pair_second",
	TagWrapOptional:    "wrap_optional",
	TagNullOptional:    "null_optional",
	TagIsNull:          "is_null",
	TagIsNonNull:       "is_non_null",
	TagOptionalPayload: "optional_payload",
	TagAtomicRmw:       "atomic_rmw",
	TagCmpxchg:         "cmpxchg",
	TagAtomicLoad:      "atomic_load",
	TagAtomicStore:     "atomic_store",
	TagFence:           "fence",
	TagDbgStmt:         "dbg_stmt",
	TagDbgVar:          "dbg_var",
	TagAsm:             "asm",
}

// String implements fmt.Stringer.
func (t Tag) String() string {
	if t < tagEnd {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint16(t))
}

// Tags returns every valid tag.
func Tags() []Tag {
	ret := make([]Tag, 0, tagEnd-1)
	for t := TagInvalid + 1; t < tagEnd; t++ {
		ret = append(ret, t)
	}
	return ret
}

// AtomicOp is the read-modify-write operation of TagAtomicRmw.
type AtomicOp byte

const (
	AtomicOpAdd AtomicOp = iota
	AtomicOpSub
	AtomicOpAnd
	AtomicOpNand
	AtomicOpOr
	AtomicOpXor
	AtomicOpXchg
	AtomicOpMax
	AtomicOpMin
)

// String implements fmt.Stringer.
func (o AtomicOp) String() string {
	switch o {
	case AtomicOpAdd:
		return "add"
	case AtomicOpSub:
		return "sub"
	case AtomicOpAnd:
		return "and"
	case AtomicOpNand:
		return "nand"
	case AtomicOpOr:
		return "or"
	case AtomicOpXor:
		return "xor"
	case AtomicOpXchg:
		return "xchg"
	case AtomicOpMax:
		return "max"
	case AtomicOpMin:
		return "min"
	}
	return "invalid"
}

// Ordering is the memory ordering of an atomic instruction.
type Ordering byte

const (
	OrderingMonotonic Ordering = iota
	OrderingAcquire
	OrderingRelease
	OrderingAcqRel
	OrderingSeqCst
)

// Acquire returns true if the ordering includes acquire semantics.
func (o Ordering) Acquire() bool {
	return o == OrderingAcquire || o == OrderingAcqRel || o == OrderingSeqCst
}

// Release returns true if the ordering includes release semantics.
func (o Ordering) Release() bool {
	return o == OrderingRelease || o == OrderingAcqRel || o == OrderingSeqCst
}

type refKind byte

const (
	refKindNone refKind = iota
	refKindInst
	refKindConst
	refKindSymbol
)

// Ref is an operand: a reference to an earlier instruction, a typed constant or a symbol.
type Ref struct {
	kind refKind
	typ  TypeID
	v    uint64
}

// RefNone is the absent operand.
var RefNone = Ref{}

// InstRef references the result of the instruction at i.
func InstRef(i Index) Ref { return Ref{kind: refKindInst, v: uint64(i)} }

// ConstRef is the constant bits of type typ.
func ConstRef(typ TypeID, bits uint64) Ref { return Ref{kind: refKindConst, typ: typ, v: bits} }

// SymbolRef references the global symbol s.
func SymbolRef(s SymbolID) Ref { return Ref{kind: refKindSymbol, v: uint64(s)} }

// IsInst returns true if the operand references an instruction.
func (r Ref) IsInst() bool { return r.kind == refKindInst }

// IsConst returns true if the operand is a constant.
func (r Ref) IsConst() bool { return r.kind == refKindConst }

// IsSymbol returns true if the operand is a symbol.
func (r Ref) IsSymbol() bool { return r.kind == refKindSymbol }

// Valid returns true unless this is RefNone.
func (r Ref) Valid() bool { return r.kind != refKindNone }

// Index returns the referenced instruction. Only valid if IsInst.
func (r Ref) Index() Index { return Index(r.v) }

// Bits returns the constant bits. Only valid if IsConst.
func (r Ref) Bits() uint64 { return r.v }

// Symbol returns the symbol. Only valid if IsSymbol.
func (r Ref) Symbol() SymbolID { return SymbolID(r.v) }

// ConstType returns the type of a constant operand.
func (r Ref) ConstType() TypeID { return r.typ }

// String implements fmt.Stringer.
func (r Ref) String() string {
	switch r.kind {
	case refKindInst:
		return fmt.Sprintf("%%%d", r.v)
	case refKindConst:
		return fmt.Sprintf("#%#x", r.v)
	case refKindSymbol:
		return fmt.Sprintf("@%d", r.v)
	}
	return "none"
}

// Instruction is one IR operation. Only the fields relevant to Tag are meaningful.
type Instruction struct {
	Tag     Tag
	Type    TypeID
	Args    []Ref
	Imm     uint64
	Aux     uint64
	Targets []Index
	Cases   []uint64
	Words   []uint32
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Tag.String())
	for j, a := range i.Args {
		if j == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	for _, t := range i.Targets {
		fmt.Fprintf(&sb, " ->%%%d", t)
	}
	return sb.String()
}

// Function is one function's IR.
type Function struct {
	Name   string
	Params []TypeID
	Result TypeID
	Body   []Instruction
}

// TypeOf returns the type of the operand r within f.
func (f *Function) TypeOf(r Ref) TypeID {
	switch r.kind {
	case refKindInst:
		return f.Body[r.Index()].Type
	case refKindConst:
		return r.typ
	case refKindSymbol:
		return TypeFuncPtr
	}
	return TypeVoid
}

// String implements fmt.Stringer.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", f.Name)
	for i := range f.Body {
		fmt.Fprintf(&sb, "\t%%%d = %s\n", i, f.Body[i].String())
	}
	return sb.String()
}
