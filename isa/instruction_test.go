package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInstruction() Instruction {
	return Instruction{
		Arch:   X86_64,
		Opcode: 0x8B,
		Operands: []Operand{
			RegOp(Reg(X86_64, 0)),
			MemOp(Reg(X86_64, 5), -8, 8),
		},
		Length: 4,
	}
}

func TestCloneIsIndependent(t *testing.T) {
	in := sampleInstruction()
	out := in.Clone()
	require.True(t, in.Equal(out))

	out.Operands[0].Reg.Index = 9
	out.Operands[1].Disp = 64
	assert.Equal(t, uint8(0), in.Operands[0].Reg.Index)
	assert.Equal(t, int64(-8), in.Operands[1].Disp)
}

func TestEqualDistinguishes(t *testing.T) {
	base := sampleInstruction()

	tests := []struct {
		name   string
		mutate func(*Instruction)
	}{
		{"arch", func(in *Instruction) { in.Arch = ARM64 }},
		{"opcode", func(in *Instruction) { in.Opcode = 0x89 }},
		{"operand count", func(in *Instruction) { in.Operands = in.Operands[:1] }},
		{"register", func(in *Instruction) { in.Operands[0].Reg.Index = 3 }},
		{"displacement", func(in *Instruction) { in.Operands[1].Disp = 0 }},
		{"length", func(in *Instruction) { in.Length = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.mutate(&other)
			assert.False(t, base.Equal(other))
		})
	}
}

func TestHashStability(t *testing.T) {
	in := sampleInstruction()
	h := in.Hash()
	assert.Equal(t, h, in.Hash())
	assert.Equal(t, h, in.Clone().Hash())
}

func TestHashDiverges(t *testing.T) {
	a := sampleInstruction()

	b := a.Clone()
	b.Opcode = 0x89
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := a.Clone()
	c.Arch = ARM64
	assert.NotEqual(t, a.Hash(), c.Hash())

	d := a.Clone()
	d.Operands[1].Disp = -16
	assert.NotEqual(t, a.Hash(), d.Hash())
}

func TestOperandHashIgnoresOpcode(t *testing.T) {
	a := sampleInstruction()
	b := a.Clone()
	b.Opcode = 0x89

	assert.Equal(t, a.OperandHash(), b.OperandHash())

	c := a.Clone()
	c.Operands[0].Reg.Index = 2
	assert.NotEqual(t, a.OperandHash(), c.OperandHash())
}

func TestHashBlockOrderSensitive(t *testing.T) {
	a := sampleInstruction()
	b := a.Clone()
	b.Opcode = 0x01

	forward := HashBlock([]Instruction{a, b})
	reversed := HashBlock([]Instruction{b, a})
	assert.NotEqual(t, forward, reversed)
	assert.Equal(t, forward, HashBlock([]Instruction{a.Clone(), b.Clone()}))
}

func TestHashBlockLengthFraming(t *testing.T) {
	// An empty block and a nil block hash equally; appending an
	// instruction changes the hash even if the instruction is zero.
	assert.Equal(t, HashBlock(nil), HashBlock([]Instruction{}))
	assert.NotEqual(t, HashBlock(nil), HashBlock([]Instruction{{}}))
}

func TestBlockKey(t *testing.T) {
	block := []Instruction{sampleInstruction()}

	k1 := BlockKey(X86_64, ARM64, block)
	k2 := BlockKey(X86_64, ARM64, block)
	assert.Equal(t, k1, k2)

	k3 := BlockKey(X86_64, RISCV64, block)
	assert.NotEqual(t, k1, k3)
	assert.Equal(t, k1.Hash, k3.Hash)
}

func TestCloneBlock(t *testing.T) {
	block := []Instruction{sampleInstruction(), sampleInstruction()}
	copied := CloneBlock(block)
	require.True(t, EqualBlocks(block, copied))

	copied[0].Operands[0].Reg.Index = 11
	assert.Equal(t, uint8(0), block[0].Operands[0].Reg.Index)

	assert.Nil(t, CloneBlock(nil))
}
