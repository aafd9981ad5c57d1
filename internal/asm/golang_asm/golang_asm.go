// Package golang_asm wraps golang-asm, the assembler of the Go toolchain, to produce
// reference encodings that the backend's own encoder is checked against.
package golang_asm

import (
	"encoding/binary"
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
)

// Assembler accumulates golang-asm programs for arm64.
type Assembler struct {
	b *goasm.Builder
}

// NewAssembler returns an arm64 Assembler.
func NewAssembler() (*Assembler, error) {
	b, err := goasm.NewBuilder("arm64", 1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new assembly builder: %w", err)
	}
	a := &Assembler{b: b}
	// Builder.Assemble takes the first Prog as the function header and emits nothing for it.
	a.Nullary(obj.ANOP)
	return a, nil
}

// IntReg returns the golang-asm name of general purpose register n.
func IntReg(n int) int16 {
	if n == 31 {
		return arm64.REGZERO
	}
	return arm64.REG_R0 + int16(n)
}

// FloatReg returns the golang-asm name of vector register n.
func FloatReg(n int) int16 {
	return arm64.REG_F0 + int16(n)
}

// ThreeRegisters adds "as src1, src2, dst", i.e. dst = src2 op src1.
func (a *Assembler) ThreeRegisters(as obj.As, src1, src2, dst int16) {
	p := a.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src1
	p.Reg = src2
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	a.b.AddInstruction(p)
}

// TwoRegisters adds "as src, dst".
func (a *Assembler) TwoRegisters(as obj.As, src, dst int16) {
	p := a.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	a.b.AddInstruction(p)
}

// RegisterAndConst adds "as $c, src, dst".
func (a *Assembler) RegisterAndConst(as obj.As, c int64, src, dst int16) {
	p := a.b.NewProg()
	p.As = as
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = c
	p.Reg = src
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	a.b.AddInstruction(p)
}

// Nullary adds an instruction without operands.
func (a *Assembler) Nullary(as obj.As) {
	p := a.b.NewProg()
	p.As = as
	a.b.AddInstruction(p)
}

// Assemble returns the encoded words, without the zero words padding the function to its
// alignment.
func (a *Assembler) Assemble() []uint32 {
	code := a.b.Assemble()
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	for len(words) > 0 && words[len(words)-1] == 0 {
		words = words[:len(words)-1]
	}
	return words
}
