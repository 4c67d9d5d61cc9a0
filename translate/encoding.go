package translate

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"xlate/isa"
)

type encKey struct {
	arch     isa.Arch
	opcode   uint32
	operands uint64
}

// InstructionEncodingCache memoizes the canonical encoded form of a
// decoded instruction. Encoding is a pure function of the instruction, so
// entries never need invalidation; the cache exists purely to avoid
// recomputation on hot code.
//
// The canonical form is NOT host machine code (emission belongs to the
// downstream code generator). It is a deterministic byte packing that the
// pattern matcher classifies: fixed 4-byte words for the RISC
// architectures (2 bytes for RISC-V compressed opcodes), opcode-prefixed
// variable packing for x86_64.
type InstructionEncodingCache struct {
	mu      sync.RWMutex
	entries map[encKey][]byte

	hits      atomic.Uint64
	misses    atomic.Uint64
	encodings atomic.Uint64
}

// NewInstructionEncodingCache builds an empty encoding cache.
func NewInstructionEncodingCache() *InstructionEncodingCache {
	return &InstructionEncodingCache{entries: make(map[encKey][]byte, 1024)}
}

// EncodeOrLookup returns the canonical encoding of in, computing and
// caching it on first sight. The returned slice is the caller's to keep.
func (c *InstructionEncodingCache) EncodeOrLookup(in isa.Instruction) ([]byte, error) {
	key := encKey{arch: in.Arch, opcode: in.Opcode, operands: in.OperandHash()}

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		out := make([]byte, len(cached))
		copy(out, cached)
		return out, nil
	}

	encoded, err := encode(in)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = encoded
	c.mu.Unlock()

	c.misses.Add(1)
	c.encodings.Add(1)

	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}

// InvalidateArch drops every entry for one architecture. Used when a guest
// repatches a code region and its decoded stream changes wholesale.
func (c *InstructionEncodingCache) InvalidateArch(a isa.Arch) {
	c.mu.Lock()
	for k := range c.entries {
		if k.arch == a {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Clear empties the cache. Counters are preserved.
func (c *InstructionEncodingCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[encKey][]byte, 1024)
	c.mu.Unlock()
}

// Len returns the number of cached encodings.
func (c *InstructionEncodingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits and Misses expose the lookup counters.
func (c *InstructionEncodingCache) Hits() uint64   { return c.hits.Load() }
func (c *InstructionEncodingCache) Misses() uint64 { return c.misses.Load() }

// encode produces the canonical byte form. Any well-formed decoded
// instruction encodes successfully; an error here means the decoder handed
// us garbage.
func encode(in isa.Instruction) ([]byte, error) {
	switch in.Arch {
	case isa.X86_64:
		return encodeX86(in)
	case isa.ARM64, isa.PPC64:
		return encodeWord(in)
	case isa.RISCV64:
		return encodeRiscv(in)
	case isa.Unknown:
		return nil, errEncoding(in.Arch, "instruction carries no architecture tag")
	}
	return nil, errEncoding(in.Arch, "invalid architecture tag %d", uint8(in.Arch))
}

// encodeX86 packs opcode bytes followed by one descriptor byte per operand
// plus immediate/displacement payloads, mirroring the shape (not the exact
// bits) of legacy x86 encoding.
func encodeX86(in isa.Instruction) ([]byte, error) {
	if len(in.Operands) > 15 {
		return nil, errEncoding(in.Arch, "operand list too long: %d", len(in.Operands))
	}
	buf := make([]byte, 0, 15)
	if in.Opcode > 0xFF {
		buf = append(buf, 0x0F, byte(in.Opcode>>8))
	}
	buf = append(buf, byte(in.Opcode))
	for i := range in.Operands {
		op := &in.Operands[i]
		switch op.Kind {
		case isa.KindReg:
			buf = append(buf, 0xC0|op.Reg.Index&0x3F)
		case isa.KindImm:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(op.Imm))
		case isa.KindMem:
			mod := byte(0x40)
			if op.HasIndex {
				mod = 0x80
			}
			buf = append(buf, mod|op.Base.Index&0x3F)
			if op.HasIndex {
				buf = append(buf, op.Scale<<6|op.Index.Index&0x3F)
			}
			buf = binary.LittleEndian.AppendUint32(buf, uint32(op.Disp))
		default:
			return nil, errEncoding(in.Arch, "operand %d has invalid kind %d", i, op.Kind)
		}
	}
	return buf, nil
}

// encodeWord packs a fixed 32-bit word: the opcode with operand indices
// folded into its low register fields, the way ARM64 and PPC64 lay out
// registers. Immediates and displacements are masked to their mid-word
// fields so they never disturb the top-level opcode group bits.
func encodeWord(in isa.Instruction) ([]byte, error) {
	word := in.Opcode
	shift := uint(0)
	for i := range in.Operands {
		op := &in.Operands[i]
		switch op.Kind {
		case isa.KindReg:
			word |= uint32(op.Reg.Index&0x1F) << shift
			shift += 5
		case isa.KindImm:
			word ^= uint32(op.Imm&0xFFFF) << 5
		case isa.KindMem:
			word |= uint32(op.Base.Index&0x1F) << shift
			shift += 5
			word ^= uint32(op.Disp&0xFFF) << 10
		default:
			return nil, errEncoding(in.Arch, "operand %d has invalid kind %d", i, op.Kind)
		}
		if shift > 20 {
			shift = 0
		}
	}
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), word), nil
}

// encodeRiscv packs a 4-byte word in RISC-V field positions (rd at bit 7,
// rs1 at 15, rs2 at 20), or 2 bytes when the opcode's low bits mark a
// compressed (C extension) instruction. The 7-bit major opcode and the
// funct3 field stay untouched so the pattern analyzer can read them back.
func encodeRiscv(in isa.Instruction) ([]byte, error) {
	regFields := [3]uint{7, 15, 20}
	word := in.Opcode
	slot := 0
	nextField := func() uint {
		s := regFields[slot%len(regFields)]
		slot++
		return s
	}
	for i := range in.Operands {
		op := &in.Operands[i]
		switch op.Kind {
		case isa.KindReg:
			word |= uint32(op.Reg.Index&0x1F) << nextField()
		case isa.KindImm:
			word ^= uint32(op.Imm&0xFFF) << 20
		case isa.KindMem:
			word |= uint32(op.Base.Index&0x1F) << nextField()
			word ^= uint32(op.Disp&0xFFF) << 20
		default:
			return nil, errEncoding(in.Arch, "operand %d has invalid kind %d", i, op.Kind)
		}
	}
	full := binary.LittleEndian.AppendUint32(make([]byte, 0, 4), word)
	if in.Opcode&0x3 != 0x3 {
		return full[:2], nil
	}
	return full, nil
}
