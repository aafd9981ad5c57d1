package ir

import "fmt"

// SymbolID is an opaque index into a SymbolTable's symbol list.
type SymbolID uint32

// Symbol is a global entity that code can refer to, e.g. a callee.
type Symbol struct {
	Name string
}

// SymbolTable is the lookup capability the front-end hands to the backend.
type SymbolTable interface {
	// Type returns the type with the given id.
	Type(TypeID) *Type
	// Symbol returns the symbol with the given id.
	Symbol(SymbolID) *Symbol
}

// Builtin type ids present in every Module.
const (
	TypeVoid TypeID = iota
	TypeBool
	TypeI8
	TypeU8
	TypeI16
	TypeU16
	TypeI32
	TypeU32
	TypeI64
	TypeU64
	TypeF32
	TypeF64
	// TypePtr is a pointer to bytes.
	TypePtr
	// TypeFuncPtr is an untyped function pointer.
	TypeFuncPtr
	numBuiltinTypes
)

// Module is a compilation unit: the types, symbols and functions of one build.
// Module implements SymbolTable.
type Module struct {
	Types     []Type
	Symbols   []Symbol
	Functions []*Function
}

var _ SymbolTable = (*Module)(nil)

// NewModule returns a Module holding the builtin types.
func NewModule() *Module {
	m := &Module{Types: make([]Type, numBuiltinTypes)}
	m.Types[TypeVoid] = Type{Kind: TypeKindVoid}
	m.Types[TypeBool] = Type{Kind: TypeKindBool}
	m.Types[TypeI8] = Type{Kind: TypeKindInt, Bits: 8, Signed: true}
	m.Types[TypeU8] = Type{Kind: TypeKindInt, Bits: 8}
	m.Types[TypeI16] = Type{Kind: TypeKindInt, Bits: 16, Signed: true}
	m.Types[TypeU16] = Type{Kind: TypeKindInt, Bits: 16}
	m.Types[TypeI32] = Type{Kind: TypeKindInt, Bits: 32, Signed: true}
	m.Types[TypeU32] = Type{Kind: TypeKindInt, Bits: 32}
	m.Types[TypeI64] = Type{Kind: TypeKindInt, Bits: 64, Signed: true}
	m.Types[TypeU64] = Type{Kind: TypeKindInt, Bits: 64}
	m.Types[TypeF32] = Type{Kind: TypeKindFloat, Bits: 32}
	m.Types[TypeF64] = Type{Kind: TypeKindFloat, Bits: 64}
	m.Types[TypePtr] = Type{Kind: TypeKindPointer, Elem: TypeU8}
	m.Types[TypeFuncPtr] = Type{Kind: TypeKindFunc}
	return m
}

// Type implements SymbolTable.Type.
func (m *Module) Type(id TypeID) *Type {
	if int(id) >= len(m.Types) {
		panic(fmt.Sprintf("BUG: type %d out of range (%d types)", id, len(m.Types)))
	}
	return &m.Types[id]
}

// Symbol implements SymbolTable.Symbol.
func (m *Module) Symbol(id SymbolID) *Symbol {
	if int(id) >= len(m.Symbols) {
		panic(fmt.Sprintf("BUG: symbol %d out of range (%d symbols)", id, len(m.Symbols)))
	}
	return &m.Symbols[id]
}

// AddType registers t and returns its id.
func (m *Module) AddType(t Type) TypeID {
	m.Types = append(m.Types, t)
	return TypeID(len(m.Types) - 1)
}

// Pointer registers a pointer to elem.
func (m *Module) Pointer(elem TypeID) TypeID {
	return m.AddType(Type{Kind: TypeKindPointer, Elem: elem})
}

// Slice registers a slice of elem.
func (m *Module) Slice(elem TypeID) TypeID {
	return m.AddType(Type{Kind: TypeKindSlice, Elem: elem})
}

// Pair registers a register pair of the two scalar types.
func (m *Module) Pair(first, second TypeID) TypeID {
	return m.AddType(Type{Kind: TypeKindPair, Fields: []TypeID{first, second}})
}

// Struct registers a struct with the given field types.
func (m *Module) Struct(fields ...TypeID) TypeID {
	return m.AddType(Type{Kind: TypeKindStruct, Fields: fields})
}

// Array registers an array of n elem.
func (m *Module) Array(elem TypeID, n uint64) TypeID {
	return m.AddType(Type{Kind: TypeKindArray, Elem: elem, Len: n})
}

// Optional registers an optional of payload. sentinel selects the null-in-payload representation.
func (m *Module) Optional(payload TypeID, sentinel bool) TypeID {
	return m.AddType(Type{Kind: TypeKindOptional, Elem: payload, Sentinel: sentinel})
}

// AddSymbol registers a symbol named name.
func (m *Module) AddSymbol(name string) SymbolID {
	m.Symbols = append(m.Symbols, Symbol{Name: name})
	return SymbolID(len(m.Symbols) - 1)
}

// SymbolByName returns the id of the symbol named name.
func (m *Module) SymbolByName(name string) (SymbolID, bool) {
	for i := range m.Symbols {
		if m.Symbols[i].Name == name {
			return SymbolID(i), true
		}
	}
	return 0, false
}

// AddFunction adds f and a symbol for it, returning the symbol id.
func (m *Module) AddFunction(f *Function) SymbolID {
	m.Functions = append(m.Functions, f)
	if id, ok := m.SymbolByName(f.Name); ok {
		return id
	}
	return m.AddSymbol(f.Name)
}
