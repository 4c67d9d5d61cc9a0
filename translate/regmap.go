package translate

import (
	"sync"
	"sync/atomic"

	"xlate/isa"
)

type regKey struct {
	src isa.Arch
	dst isa.Arch
	reg isa.RegId
}

// RegisterMappingCache maps a source-architecture register to its
// destination-architecture counterpart. It is seeded at construction with
// curated mappings for all six ordered pairs among x86_64/ARM64/RISC-V
// (plus the partial PPC64->x86_64 direction) and grows only during warm-up
// or explicit extension, so the access profile is many readers, rare
// writers.
type RegisterMappingCache struct {
	mu      sync.RWMutex
	entries map[regKey]isa.RegId

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRegisterMappingCache builds the cache and seeds the curated tables.
func NewRegisterMappingCache() *RegisterMappingCache {
	c := &RegisterMappingCache{entries: make(map[regKey]isa.RegId, 512)}
	c.seed()
	return c
}

// Lookup returns the curated (or previously inserted) mapping, if any.
// Concurrent lookups never block each other.
func (c *RegisterMappingCache) Lookup(src, dst isa.Arch, reg isa.RegId) (isa.RegId, bool) {
	c.mu.RLock()
	mapped, ok := c.entries[regKey{src: src, dst: dst, reg: reg}]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return mapped, ok
}

// Insert adds or replaces a mapping. Intended for warm-up and for callers
// that extend the curated set with verified mappings.
func (c *RegisterMappingCache) Insert(src, dst isa.Arch, reg, mapped isa.RegId) {
	c.mu.Lock()
	c.entries[regKey{src: src, dst: dst, reg: reg}] = mapped
	c.mu.Unlock()
}

// Map resolves reg for the given pair. If no curated entry exists it falls
// back to the same ordinal position in the destination GPR file, but only
// within the GPR class and only when that ordinal exists there; fallback
// use is reported so the pipeline can log it. ok=false means neither path
// produced a mapping.
func (c *RegisterMappingCache) Map(src, dst isa.Arch, reg isa.RegId) (mapped isa.RegId, fallback, ok bool) {
	if m, found := c.Lookup(src, dst, reg); found {
		return m, false, true
	}
	if reg.Class != isa.GPR {
		return isa.RegId{}, false, false
	}
	if int(reg.Index) >= dst.GPRCount() {
		return isa.RegId{}, false, false
	}
	return isa.Reg(dst, reg.Index), true, true
}

// Len returns the number of mapping entries.
func (c *RegisterMappingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits and Misses expose the lookup counters.
func (c *RegisterMappingCache) Hits() uint64   { return c.hits.Load() }
func (c *RegisterMappingCache) Misses() uint64 { return c.misses.Load() }

// seed installs the curated tables. GPRs map ordinally within the smaller
// register file, except the stack and frame pointers which map onto the
// destination's dedicated stack/frame registers:
//
//	x86_64 RSP(4) <-> ARM64 SP(31) <-> RISC-V x2
//	x86_64 RBP(5) <-> ARM64 X29    <-> RISC-V x8
//
// SIMD is curated only where widths line up: x86_64 XMM0-15 <-> ARM64
// V0-15. Everything else goes through the ordinal fallback or fails.
func (c *RegisterMappingCache) seed() {
	const (
		x86RSP  = 4
		x86RBP  = 5
		armSP   = isa.ARM64SPIndex
		armFP   = 29
		riscvSP = 2
		riscvFP = 8
	)

	special := map[[2]isa.Arch][][2]uint8{
		{isa.X86_64, isa.ARM64}:   {{x86RSP, armSP}, {x86RBP, armFP}},
		{isa.X86_64, isa.RISCV64}: {{x86RSP, riscvSP}, {x86RBP, riscvFP}},
		{isa.ARM64, isa.X86_64}:   {{armSP, x86RSP}, {armFP, x86RBP}},
		{isa.ARM64, isa.RISCV64}:  {{armSP, riscvSP}, {armFP, riscvFP}},
		{isa.RISCV64, isa.X86_64}: {{riscvSP, x86RSP}, {riscvFP, x86RBP}},
		{isa.RISCV64, isa.ARM64}:  {{riscvSP, armSP}, {riscvFP, armFP}},
	}

	pairs := [][2]isa.Arch{
		{isa.X86_64, isa.ARM64},
		{isa.X86_64, isa.RISCV64},
		{isa.ARM64, isa.X86_64},
		{isa.ARM64, isa.RISCV64},
		{isa.RISCV64, isa.X86_64},
		{isa.RISCV64, isa.ARM64},
	}

	for _, p := range pairs {
		src, dst := p[0], p[1]
		taken := make(map[uint8]bool, 4)
		srcSpecial := make(map[uint8]uint8, 2)
		for _, sp := range special[p] {
			srcSpecial[sp[0]] = sp[1]
			taken[sp[1]] = true
		}

		n := src.GPRCount()
		if d := dst.GPRCount(); d < n {
			n = d
		}
		for i := 0; i < n; i++ {
			si := uint8(i)
			di, isSpecial := srcSpecial[si]
			if !isSpecial {
				if taken[si] {
					// Ordinal slot already claimed by a stack/frame
					// special case; leave it to the fallback path.
					continue
				}
				di = si
			}
			c.entries[regKey{src: src, dst: dst, reg: isa.Reg(src, si)}] = isa.Reg(dst, di)
		}
		for si, di := range srcSpecial {
			c.entries[regKey{src: src, dst: dst, reg: isa.Reg(src, si)}] = isa.Reg(dst, di)
		}
	}

	// x86_64 XMM <-> ARM64 V, both 128-bit files.
	for i := uint8(0); i < 16; i++ {
		c.entries[regKey{src: isa.X86_64, dst: isa.ARM64, reg: isa.Vec(isa.X86_64, i)}] = isa.Vec(isa.ARM64, i)
		c.entries[regKey{src: isa.ARM64, dst: isa.X86_64, reg: isa.Vec(isa.ARM64, i)}] = isa.Vec(isa.X86_64, i)
	}

	// PPC64 is partial: only the r0-r15 GPR window toward x86_64.
	for i := uint8(0); i < 16; i++ {
		c.entries[regKey{src: isa.PPC64, dst: isa.X86_64, reg: isa.Reg(isa.PPC64, i)}] = isa.Reg(isa.X86_64, i)
	}
}
