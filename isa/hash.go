package isa

import (
	"encoding/binary"

	"github.com/bytedance/gopkg/util/xxhash3"
)

// Key identifies a cached translation: the ordered architecture pair plus a
// content hash of the input unit. Two distinct inputs under the same pair
// collide only on hash equality, and a collision costs a redundant
// recomputation, not a wrong answer (result-cache lookups are verified by
// the pure-function memoization contract, not by the key alone).
type Key struct {
	Src  Arch
	Dst  Arch
	Hash uint64
}

// BlockKey builds the result-cache key for a whole instruction block.
func BlockKey(src, dst Arch, block []Instruction) Key {
	return Key{Src: src, Dst: dst, Hash: HashBlock(block)}
}

// Hash returns the content hash of the instruction. The serialization is
// canonical: equal instructions hash equally on every call and across
// pipelines.
func (in Instruction) Hash() uint64 {
	return xxhash3.Hash(in.appendCanonical(make([]byte, 0, 16+24*len(in.Operands))))
}

// OperandHash hashes only the operand list; the encoding cache keys on
// (arch, opcode, operand hash) so opcode-equal instructions with different
// operands never share an entry.
func (in Instruction) OperandHash() uint64 {
	buf := make([]byte, 0, 24*len(in.Operands))
	for i := range in.Operands {
		buf = in.Operands[i].appendCanonical(buf)
	}
	return xxhash3.Hash(buf)
}

// HashBlock hashes a block of instructions in order.
func HashBlock(block []Instruction) uint64 {
	buf := make([]byte, 0, 64*len(block)+8)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(block)))
	for i := range block {
		buf = block[i].appendCanonical(buf)
	}
	return xxhash3.Hash(buf)
}

func (in Instruction) appendCanonical(buf []byte) []byte {
	buf = append(buf, byte(in.Arch), in.Length)
	buf = binary.LittleEndian.AppendUint32(buf, in.Opcode)
	buf = append(buf, byte(len(in.Operands)))
	for i := range in.Operands {
		buf = in.Operands[i].appendCanonical(buf)
	}
	return buf
}

func (op Operand) appendCanonical(buf []byte) []byte {
	buf = append(buf, byte(op.Kind))
	switch op.Kind {
	case KindReg:
		buf = op.Reg.appendCanonical(buf)
	case KindImm:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(op.Imm))
	case KindMem:
		buf = op.Base.appendCanonical(buf)
		if op.HasIndex {
			buf = append(buf, 1, op.Scale)
			buf = op.Index.appendCanonical(buf)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(op.Disp))
		buf = append(buf, op.Size)
	}
	return buf
}

func (r RegId) appendCanonical(buf []byte) []byte {
	return append(buf, byte(r.Arch), byte(r.Class), r.Index)
}
