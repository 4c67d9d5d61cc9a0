package translate

import (
	"fmt"
	"sync/atomic"

	"github.com/bytedance/gopkg/util/xxhash3"
	lru "github.com/hashicorp/golang-lru"

	"xlate/isa"
)

// PatternKind classifies the shape of an instruction. The kind selects
// which generation rule the pipeline applies.
type PatternKind uint8

const (
	PatternUnknown PatternKind = iota
	PatternArithmetic
	PatternLogic
	PatternMove
	PatternLoad
	PatternStore
	PatternBranch
	PatternCall
	PatternReturn
	PatternStack
	PatternFloat
	PatternVector
	PatternSystem
	PatternNop
)

func (k PatternKind) String() string {
	switch k {
	case PatternArithmetic:
		return "arithmetic"
	case PatternLogic:
		return "logic"
	case PatternMove:
		return "move"
	case PatternLoad:
		return "load"
	case PatternStore:
		return "store"
	case PatternBranch:
		return "branch"
	case PatternCall:
		return "call"
	case PatternReturn:
		return "return"
	case PatternStack:
		return "stack"
	case PatternFloat:
		return "float"
	case PatternVector:
		return "vector"
	case PatternSystem:
		return "system"
	case PatternNop:
		return "nop"
	case PatternUnknown:
		return "unknown"
	}
	return fmt.Sprintf("PatternKind(%d)", uint8(k))
}

// Features are the raw classification bits extracted from an encoded
// instruction.
type Features struct {
	HasLoad       bool
	HasStore      bool
	HasBranch     bool
	HasArithmetic bool
	HasLogic      bool
	HasFloat      bool
	HasVector     bool
	Compressed    bool
	Length        uint8
}

// Pattern is the classification result. For a fixed architecture the
// mapping from encoded bytes to Pattern never changes, so cached patterns
// need no invalidation.
type Pattern struct {
	Kind          PatternKind
	Arch          isa.Arch
	Features      Features
	IsMemory      bool
	IsControlFlow bool
}

// Name renders an arch-qualified pattern label for logs and reports.
func (p Pattern) Name() string {
	return fmt.Sprintf("%s_%s", p.Arch, p.Kind)
}

type patternKey struct {
	arch isa.Arch
	hash uint64
}

// PatternMatchCache memoizes instruction classification. The internal lock
// (inside the LRU) covers only the lookup or the insert, never the
// analysis and never target-instruction generation; that scoping is what
// keeps many translation workers out of each other's way.
type PatternMatchCache struct {
	entries *lru.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPatternMatchCache builds a bounded pattern cache. maxEntries must be
// positive.
func NewPatternMatchCache(maxEntries int) (*PatternMatchCache, error) {
	entries, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("pattern cache: %w", err)
	}
	return &PatternMatchCache{entries: entries}, nil
}

// MatchOrAnalyze classifies encoded bytes for the given architecture,
// reusing a cached classification when one exists. Analysis runs outside
// any lock; it is a pure function of (arch, encoded).
func (c *PatternMatchCache) MatchOrAnalyze(arch isa.Arch, encoded []byte) Pattern {
	key := patternKey{arch: arch, hash: hashEncoded(encoded)}

	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return v.(Pattern)
	}
	c.misses.Add(1)

	p := analyze(arch, encoded)
	c.entries.Add(key, p)
	return p
}

// InvalidateArch drops cached patterns for one architecture.
func (c *PatternMatchCache) InvalidateArch(arch isa.Arch) {
	for _, k := range c.entries.Keys() {
		if k.(patternKey).arch == arch {
			c.entries.Remove(k)
		}
	}
}

// Clear empties the cache; counters are preserved.
func (c *PatternMatchCache) Clear() { c.entries.Purge() }

// Len returns the number of cached patterns.
func (c *PatternMatchCache) Len() int { return c.entries.Len() }

// Hits and Misses expose the lookup counters.
func (c *PatternMatchCache) Hits() uint64   { return c.hits.Load() }
func (c *PatternMatchCache) Misses() uint64 { return c.misses.Load() }

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (c *PatternMatchCache) HitRate() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// analyze extracts classification features from the canonical encoding.
func analyze(arch isa.Arch, encoded []byte) Pattern {
	var f Features
	f.Length = uint8(len(encoded))

	switch arch {
	case isa.X86_64:
		f = analyzeX86(encoded, f)
	case isa.RISCV64:
		f = analyzeRiscv(encoded, f)
	case isa.ARM64:
		f = analyzeArm64(encoded, f)
	case isa.PPC64:
		f = analyzePPC64(encoded, f)
	case isa.Unknown:
	}

	p := Pattern{
		Kind:          kindOf(f),
		Arch:          arch,
		Features:      f,
		IsMemory:      f.HasLoad || f.HasStore,
		IsControlFlow: f.HasBranch,
	}
	return p
}

func kindOf(f Features) PatternKind {
	switch {
	case f.HasVector:
		return PatternVector
	case f.HasFloat:
		return PatternFloat
	case f.HasBranch:
		return PatternBranch
	case f.HasLoad:
		return PatternLoad
	case f.HasStore:
		return PatternStore
	case f.HasLogic:
		return PatternLogic
	case f.HasArithmetic:
		return PatternArithmetic
	}
	return PatternUnknown
}

func analyzeX86(b []byte, f Features) Features {
	if len(b) == 0 {
		return f
	}
	op := b[0]
	if op == 0x0F && len(b) > 1 {
		// Two-byte opcode map: SSE moves and packed ops.
		f.HasVector = true
		return f
	}
	switch {
	case op == 0x8B || op == 0x8D || op == 0xA1 || (op >= 0xB8 && op <= 0xBF):
		f.HasLoad = true
	case op == 0x89 || op == 0x8C || op == 0xA2 || op == 0xA3:
		f.HasStore = true
	case (op >= 0x70 && op <= 0x7F) || op == 0xE8 || op == 0xE9 || op == 0xEB || op == 0xC3:
		f.HasBranch = true
	case (op >= 0x20 && op <= 0x25) || (op >= 0x30 && op <= 0x35) ||
		(op >= 0x08 && op <= 0x0D) || (op >= 0x84 && op <= 0x86):
		f.HasLogic = true
	case op <= 0x05 || (op >= 0x28 && op <= 0x2D) || (op >= 0x38 && op <= 0x3D) ||
		(op >= 0x50 && op <= 0x5F) || op == 0xF7:
		f.HasArithmetic = true
	case op >= 0xD8 && op <= 0xDF:
		f.HasFloat = true
	}
	return f
}

func analyzeRiscv(b []byte, f Features) Features {
	if len(b) == 0 {
		return f
	}
	if b[0]&0x3 != 0x3 {
		f.Compressed = true
	}
	switch b[0] & 0x7F {
	case 0x03:
		f.HasLoad = true
	case 0x23:
		f.HasStore = true
	case 0x63, 0x6F, 0x67:
		f.HasBranch = true
	case 0x33, 0x13, 0x3B, 0x1B:
		// OP/OP-IMM (and their W forms): funct3 separates logic from
		// arithmetic.
		f.HasArithmetic = true
		if len(b) >= 2 {
			funct3 := (b[1] >> 4) & 0x7
			if funct3 == 0x4 || funct3 == 0x6 || funct3 == 0x7 || funct3 == 0x1 || funct3 == 0x5 {
				f.HasLogic = true
				f.HasArithmetic = false
			}
		}
	case 0x07, 0x27, 0x53:
		f.HasFloat = true
	case 0x57:
		f.HasVector = true
	}
	return f
}

func analyzeArm64(b []byte, f Features) Features {
	if len(b) < 4 {
		return f
	}
	word := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	// op0, bits 25-28, is the top-level A64 encoding group.
	op0 := (word >> 25) & 0xF
	switch {
	case op0 == 0xA || op0 == 0xB:
		// Branches, exception generation, system.
		if word == 0xD503201F { // NOP sits in the system group
			break
		}
		f.HasBranch = true
	case op0 == 0x4 || op0 == 0x6 || op0 == 0xC || op0 == 0xE:
		// Loads and stores; bit 22 is the load flag in most layouts.
		if word&(1<<22) != 0 {
			f.HasLoad = true
		} else {
			f.HasStore = true
		}
	case op0 == 0x8 || op0 == 0x9:
		f.HasArithmetic = true
	case op0 == 0x5 || op0 == 0xD:
		// Logical (shifted register) and data processing (register).
		f.HasLogic = true
	case op0 == 0x7 || op0 == 0xF:
		f.HasVector = true
	}
	return f
}

func analyzePPC64(b []byte, f Features) Features {
	if len(b) < 4 {
		return f
	}
	word := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	switch word >> 26 {
	case 14, 31: // addi / X-form register ops
		f.HasArithmetic = true
	case 24, 26, 28: // ori, xori, andi.
		f.HasLogic = true
	case 32, 58: // lwz, ld
		f.HasLoad = true
	case 36, 62: // stw, std
		f.HasStore = true
	case 16, 18, 19: // bc, b, bclr
		f.HasBranch = true
	case 48, 50: // lfs, lfd
		f.HasFloat = true
	}
	return f
}

func hashEncoded(encoded []byte) uint64 {
	return xxhash3.Hash(encoded)
}
