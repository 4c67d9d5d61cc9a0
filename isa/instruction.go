package isa

import "fmt"

// OperandKind tags the variants of Operand.
type OperandKind uint8

const (
	KindReg OperandKind = iota
	KindImm
	KindMem
)

func (k OperandKind) String() string {
	switch k {
	case KindReg:
		return "reg"
	case KindImm:
		return "imm"
	case KindMem:
		return "mem"
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Operand is one instruction operand. Exactly the fields selected by Kind
// are meaningful:
//
//	KindReg: Reg
//	KindImm: Imm
//	KindMem: Base, Index (HasIndex), Scale, Disp, Size
type Operand struct {
	Kind OperandKind

	Reg RegId
	Imm int64

	Base     RegId
	Index    RegId
	HasIndex bool
	Scale    uint8
	Disp     int64
	Size     uint8 // access width in bytes
}

// RegOp builds a register operand.
func RegOp(r RegId) Operand { return Operand{Kind: KindReg, Reg: r} }

// ImmOp builds an immediate operand.
func ImmOp(v int64) Operand { return Operand{Kind: KindImm, Imm: v} }

// MemOp builds a base+displacement memory operand.
func MemOp(base RegId, disp int64, size uint8) Operand {
	return Operand{Kind: KindMem, Base: base, Disp: disp, Size: size}
}

// MemIndexOp builds a base+index*scale+displacement memory operand.
func MemIndexOp(base, index RegId, scale uint8, disp int64, size uint8) Operand {
	return Operand{
		Kind:     KindMem,
		Base:     base,
		Index:    index,
		HasIndex: true,
		Scale:    scale,
		Disp:     disp,
		Size:     size,
	}
}

// Instruction is one decoded guest instruction. Values are treated as
// immutable once constructed; anything that needs to retain an Instruction
// past the caller's frame must Clone it.
type Instruction struct {
	Arch     Arch
	Opcode   uint32
	Operands []Operand
	Length   uint8 // encoded length in bytes on the source machine
}

// Clone deep-copies the instruction, detaching the operand slice.
func (in Instruction) Clone() Instruction {
	out := in
	if in.Operands != nil {
		out.Operands = make([]Operand, len(in.Operands))
		copy(out.Operands, in.Operands)
	}
	return out
}

// Equal reports structural equality, operand by operand.
func (in Instruction) Equal(other Instruction) bool {
	if in.Arch != other.Arch || in.Opcode != other.Opcode || in.Length != other.Length {
		return false
	}
	if len(in.Operands) != len(other.Operands) {
		return false
	}
	for i := range in.Operands {
		if in.Operands[i] != other.Operands[i] {
			return false
		}
	}
	return true
}

// CloneBlock deep-copies a block of instructions.
func CloneBlock(block []Instruction) []Instruction {
	if block == nil {
		return nil
	}
	out := make([]Instruction, len(block))
	for i := range block {
		out[i] = block[i].Clone()
	}
	return out
}

// EqualBlocks reports instruction-by-instruction equality of two blocks.
func EqualBlocks(a, b []Instruction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
