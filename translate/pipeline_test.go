package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xlate/isa"
)

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(opts...)
	require.NoError(t, err)
	return p
}

func x86Add(dstReg, srcReg uint8) isa.Instruction {
	return isa.Instruction{
		Arch:   isa.X86_64,
		Opcode: 0x01,
		Operands: []isa.Operand{
			isa.RegOp(isa.Reg(isa.X86_64, dstReg)),
			isa.RegOp(isa.Reg(isa.X86_64, srcReg)),
		},
		Length: 2,
	}
}

func TestTranslateAddX86ToArm64(t *testing.T) {
	p := newPipeline(t)

	out, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, x86Add(0, 1))
	require.NoError(t, err)

	assert.Equal(t, isa.ARM64, out.Arch)
	assert.Equal(t, uint32(0x8B000000), out.Opcode)
	require.Len(t, out.Operands, 2)
	assert.Equal(t, isa.Reg(isa.ARM64, 0), out.Operands[0].Reg)
	assert.Equal(t, isa.Reg(isa.ARM64, 1), out.Operands[1].Reg)
}

func TestTranslateDeterminism(t *testing.T) {
	p := newPipeline(t)

	pairs := [][2]isa.Arch{
		{isa.X86_64, isa.ARM64},
		{isa.X86_64, isa.RISCV64},
		{isa.ARM64, isa.X86_64},
		{isa.ARM64, isa.RISCV64},
		{isa.RISCV64, isa.X86_64},
		{isa.RISCV64, isa.ARM64},
	}
	for _, pair := range pairs {
		in := addInstruction(pair[0], map[isa.Arch]uint32{
			isa.X86_64: 0x01, isa.ARM64: 0x8B000000, isa.RISCV64: 0x00000033,
		}[pair[0]])

		first, err := p.TranslateInstruction(pair[0], pair[1], in)
		require.NoError(t, err, "%s -> %s", pair[0], pair[1])
		second, err := p.TranslateInstruction(pair[0], pair[1], in)
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "%s -> %s not deterministic", pair[0], pair[1])
	}
}

func TestSameArchPassthrough(t *testing.T) {
	p := newPipeline(t)

	in := addInstruction(isa.RISCV64, 0x00000033)
	out, err := p.TranslateInstruction(isa.RISCV64, isa.RISCV64, in)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	// Passthrough must still be a detached copy.
	out.Operands[0] = isa.ImmOp(7)
	assert.Equal(t, isa.KindReg, in.Operands[0].Kind)
}

func TestUnsupportedArchPair(t *testing.T) {
	p := newPipeline(t)
	in := x86Add(0, 1)

	tests := []struct {
		name string
		src  isa.Arch
		dst  isa.Arch
	}{
		{"x86 to ppc64", isa.X86_64, isa.PPC64},
		{"ppc64 to arm64", isa.PPC64, isa.ARM64},
		{"unknown source", isa.Unknown, isa.ARM64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := in
			in.Arch = tt.src
			_, err := p.TranslateInstruction(tt.src, tt.dst, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedArchPair)
		})
	}
}

func TestUnsupportedInstruction(t *testing.T) {
	p := newPipeline(t)

	// INT3 has no translation rule.
	in := isa.Instruction{Arch: isa.X86_64, Opcode: 0xCC, Length: 1}
	_, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestConditionTranslation(t *testing.T) {
	p := newPipeline(t)

	// je -> b.eq
	je := isa.Instruction{Arch: isa.X86_64, Opcode: 0x74, Length: 2}
	out, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, je)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x54000000), out.Opcode)

	// jl -> blt on riscv
	jl := isa.Instruction{Arch: isa.X86_64, Opcode: 0x7C, Length: 2}
	out, err = p.TranslateInstruction(isa.X86_64, isa.RISCV64, jl)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00000063|0x4<<12), out.Opcode)

	// jp has no single-instruction counterpart anywhere.
	jp := isa.Instruction{Arch: isa.X86_64, Opcode: 0x7A, Length: 2}
	_, err = p.TranslateInstruction(isa.X86_64, isa.ARM64, jp)
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)
	_, err = p.TranslateInstruction(isa.X86_64, isa.RISCV64, jp)
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestRegisterMappingNotFound(t *testing.T) {
	p := newPipeline(t)

	in := isa.Instruction{
		Arch:   isa.ARM64,
		Opcode: 0x8B000000,
		Operands: []isa.Operand{
			isa.RegOp(isa.Reg(isa.ARM64, 20)),
			isa.RegOp(isa.Reg(isa.ARM64, 21)),
		},
		Length: 4,
	}
	_, err := p.TranslateInstruction(isa.ARM64, isa.X86_64, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegisterMappingNotFound)
}

func TestFallbackIsCounted(t *testing.T) {
	p := newPipeline(t)

	// riscv x4 toward x86 resolves via the ordinal fallback.
	in := isa.Instruction{
		Arch:   isa.RISCV64,
		Opcode: 0x00000033,
		Operands: []isa.Operand{
			isa.RegOp(isa.Reg(isa.RISCV64, 4)),
			isa.RegOp(isa.Reg(isa.RISCV64, 10)),
			isa.RegOp(isa.Reg(isa.RISCV64, 11)),
		},
		Length: 4,
	}
	_, err := p.TranslateInstruction(isa.RISCV64, isa.X86_64, in)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Stats().MappingFallbacks)
}

func TestImmediateRangeChecked(t *testing.T) {
	p := newPipeline(t)

	in := isa.Instruction{
		Arch:   isa.X86_64,
		Opcode: 0xB8,
		Operands: []isa.Operand{
			isa.RegOp(isa.Reg(isa.X86_64, 0)),
			isa.ImmOp(1 << 20), // exceeds riscv's 12-bit field
		},
		Length: 5,
	}
	_, err := p.TranslateInstruction(isa.X86_64, isa.RISCV64, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)

	// The same immediate fits x86's 32-bit field.
	_, err = p.TranslateInstruction(isa.X86_64, isa.X86_64, in)
	assert.NoError(t, err)
}

func TestCacheTransparency(t *testing.T) {
	warm := newPipeline(t)
	fresh := newPipeline(t)

	block := []isa.Instruction{x86Add(0, 1), x86Add(2, 3), x86Add(1, 7)}

	first, err := warm.TranslateBlock(isa.X86_64, isa.ARM64, block)
	require.NoError(t, err)
	cached, err := warm.TranslateBlock(isa.X86_64, isa.ARM64, block)
	require.NoError(t, err)
	reference, err := fresh.TranslateBlock(isa.X86_64, isa.ARM64, block)
	require.NoError(t, err)

	assert.True(t, isa.EqualBlocks(first, cached))
	assert.True(t, isa.EqualBlocks(first, reference))
	assert.Equal(t, uint64(1), warm.Stats().ResultHits)
}

func TestHotBlockRetranslation(t *testing.T) {
	p := newPipeline(t)

	block := make([]isa.Instruction, 0, 1000)
	for i := 0; i < 1000; i++ {
		block = append(block, x86Add(uint8(i%16), uint8((i+3)%16)))
	}

	first, err := p.TranslateBlock(isa.X86_64, isa.RISCV64, block)
	require.NoError(t, err)
	translatedAfterFirst := p.Stats().Translated

	second, err := p.TranslateBlock(isa.X86_64, isa.RISCV64, block)
	require.NoError(t, err)

	assert.True(t, isa.EqualBlocks(first, second))
	// The whole second pass is served from the result cache; no
	// instruction is re-translated.
	assert.Equal(t, translatedAfterFirst, p.Stats().Translated)
	assert.GreaterOrEqual(t, p.HitRates().Result, 0.5)
}

func TestParallelMatchesSequential(t *testing.T) {
	parallel := newPipeline(t, WithWorkers(4))
	sequential := newPipeline(t)

	blocks := make([][]isa.Instruction, 8)
	for b := range blocks {
		block := make([]isa.Instruction, 50)
		for i := range block {
			block[i] = x86Add(uint8((b+i)%16), uint8(i%16))
		}
		blocks[b] = block
	}

	got, err := parallel.TranslateBlocksParallel(isa.X86_64, isa.ARM64, blocks)
	require.NoError(t, err)
	require.Len(t, got, len(blocks))

	for i, block := range blocks {
		want, err := sequential.TranslateBlock(isa.X86_64, isa.ARM64, block)
		require.NoError(t, err)
		assert.True(t, isa.EqualBlocks(want, got[i]), "block %d diverged", i)
	}
}

func TestParallelSmallBatch(t *testing.T) {
	p := newPipeline(t, WithWorkers(2))

	blocks := [][]isa.Instruction{
		{x86Add(0, 1)},
		{x86Add(2, 3)},
	}
	got, err := p.TranslateBlocksParallel(isa.X86_64, isa.RISCV64, blocks)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range blocks {
		want, err := p.TranslateBlock(isa.X86_64, isa.RISCV64, blocks[i])
		require.NoError(t, err)
		assert.True(t, isa.EqualBlocks(want, got[i]))
	}
}

func TestParallelPropagatesError(t *testing.T) {
	p := newPipeline(t)

	blocks := [][]isa.Instruction{
		{x86Add(0, 1)},
		{{Arch: isa.X86_64, Opcode: 0xCC, Length: 1}}, // untranslatable
	}
	_, err := p.TranslateBlocksParallel(isa.X86_64, isa.ARM64, blocks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedInstruction)
}

func TestPoisonedPipelineRefusesWork(t *testing.T) {
	p := newPipeline(t)
	p.Poison()

	_, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, x86Add(0, 1))
	assert.ErrorIs(t, err, ErrPoisonedCache)

	_, err = p.TranslateBlock(isa.X86_64, isa.ARM64, []isa.Instruction{x86Add(0, 1)})
	assert.ErrorIs(t, err, ErrPoisonedCache)

	_, err = p.TranslateBlocksParallel(isa.X86_64, isa.ARM64, nil)
	assert.ErrorIs(t, err, ErrPoisonedCache)

	assert.True(t, p.Poisoned())
}

func TestWarmupPrimesCaches(t *testing.T) {
	p := newPipeline(t)

	in := x86Add(0, 1)
	p.Warmup([]isa.Instruction{in})

	_, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, in)
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, uint64(1), s.EncodingHits)
	assert.Equal(t, uint64(1), s.PatternHits)
}

func TestStatsAccumulate(t *testing.T) {
	p := newPipeline(t)

	_, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, x86Add(0, 1))
	require.NoError(t, err)
	_, err = p.TranslateBlock(isa.X86_64, isa.ARM64, []isa.Instruction{x86Add(2, 3), x86Add(4, 6)})
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, uint64(3), s.Translated)
	assert.Equal(t, uint64(1), s.Blocks)
	assert.Greater(t, s.TimeNanos, uint64(0))
	assert.Greater(t, s.AvgNanosPerInstruction(), 0.0)
}

func TestClearKeepsCounters(t *testing.T) {
	p := newPipeline(t)

	_, err := p.TranslateBlock(isa.X86_64, isa.ARM64, []isa.Instruction{x86Add(0, 1)})
	require.NoError(t, err)
	before := p.Stats()
	require.Greater(t, before.Translated, uint64(0))
	require.Equal(t, 1, before.ResultLen)

	p.Clear()
	after := p.Stats()
	assert.Equal(t, before.Translated, after.Translated)
	assert.Equal(t, 0, after.ResultLen)
}

func TestMismatchedInstructionTag(t *testing.T) {
	p := newPipeline(t)

	in := addInstruction(isa.RISCV64, 0x00000033)
	_, err := p.TranslateInstruction(isa.X86_64, isa.ARM64, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
}
