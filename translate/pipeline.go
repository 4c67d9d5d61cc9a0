package translate

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/charmbracelet/log"

	"xlate/isa"
)

const (
	// DefaultResultCapacity bounds the result cache to roughly the hot
	// working set of a tier-2 code cache.
	DefaultResultCapacity = 4096
	// DefaultPatternCapacity matches the upstream pattern cache sizing.
	DefaultPatternCapacity = 10_000

	// smallBatch is the block count at or below which parallel batches
	// are scheduled one block per task to minimize dispatch overhead.
	smallBatch = 4
)

var poolSeq atomic.Uint64

// Options configure a Pipeline.
type Options struct {
	// ResultCapacity bounds the translation result cache (LRU).
	ResultCapacity int
	// PatternCapacity bounds the pattern match cache.
	PatternCapacity int
	// Workers caps the worker pool for parallel block translation.
	// Defaults to GOMAXPROCS.
	Workers int
	// Logger receives warnings for register-mapping fallbacks. Defaults
	// to a discard logger; pass logging's logger to surface them.
	Logger *log.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithResultCapacity overrides the result-cache capacity.
func WithResultCapacity(n int) Option { return func(o *Options) { o.ResultCapacity = n } }

// WithPatternCapacity overrides the pattern-cache capacity.
func WithPatternCapacity(n int) Option { return func(o *Options) { o.PatternCapacity = n } }

// WithWorkers overrides the parallel worker cap.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) Option { return func(o *Options) { o.Logger = l } }

// Pipeline orchestrates the four caches to translate instructions, blocks,
// and batches of independent blocks. Every pipeline owns its caches; two
// pipelines never share state, so isolated guests (or isolated tests)
// cannot interfere with one another.
//
// All methods are safe for concurrent use. Each cache carries its own
// synchronization, so contention on one never blocks access to another,
// and no lock is ever held across a call into another component.
type Pipeline struct {
	encoding *InstructionEncodingCache
	patterns *PatternMatchCache
	regs     *RegisterMappingCache
	results  *TranslationResultCache

	stats    stats
	pool     gopool.Pool
	workers  int
	logger   *log.Logger
	poisoned atomic.Bool
}

// New builds a pipeline with freshly seeded caches.
func New(opts ...Option) (*Pipeline, error) {
	o := Options{
		ResultCapacity:  DefaultResultCapacity,
		PatternCapacity: DefaultPatternCapacity,
		Workers:         runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}

	patterns, err := NewPatternMatchCache(o.PatternCapacity)
	if err != nil {
		return nil, err
	}
	results, err := NewTranslationResultCache(o.ResultCapacity)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		encoding: NewInstructionEncodingCache(),
		patterns: patterns,
		regs:     NewRegisterMappingCache(),
		results:  results,
		workers:  o.Workers,
		logger:   o.Logger,
	}
	// Pool names must be unique per process; a sequence number keeps
	// independent pipelines apart.
	p.pool = gopool.NewPool(
		fmt.Sprintf("xlate.pipeline-%d", poolSeq.Add(1)),
		int32(o.Workers),
		gopool.NewConfig(),
	)
	p.pool.SetPanicHandler(func(_ context.Context, r interface{}) {
		p.poisoned.Store(true)
		p.logger.Error("translation worker panicked", "panic", r)
	})
	return p, nil
}

// PairSupported reports whether generation rules exist for the ordered
// pair. Same-arch passthrough always works; PPC64 is a partial source
// toward x86_64 only.
func PairSupported(src, dst isa.Arch) bool {
	if !src.Valid() || !dst.Valid() {
		return false
	}
	if src == dst {
		return true
	}
	switch src {
	case isa.X86_64, isa.ARM64, isa.RISCV64:
		switch dst {
		case isa.X86_64, isa.ARM64, isa.RISCV64:
			return true
		case isa.PPC64, isa.Unknown:
			return false
		}
	case isa.PPC64:
		return dst == isa.X86_64
	case isa.Unknown:
	}
	return false
}

// TranslateInstruction translates one instruction from src to dst.
func (p *Pipeline) TranslateInstruction(src, dst isa.Arch, in isa.Instruction) (isa.Instruction, error) {
	if p.poisoned.Load() {
		return isa.Instruction{}, &Error{Kind: KindPoisonedCache, Src: src, Dst: dst}
	}
	if !PairSupported(src, dst) {
		return isa.Instruction{}, errUnsupportedPair(src, dst)
	}

	start := time.Now()
	out, err := p.translateOne(src, dst, in)
	if err != nil {
		return isa.Instruction{}, err
	}
	p.stats.timeNanos.Add(uint64(time.Since(start)))
	p.stats.translated.Add(1)
	return out, nil
}

// translateOne runs encode -> match -> generate. The pattern cache's lock
// is released before generation starts; generation touches only the
// register map (its own lock) and pure tables.
func (p *Pipeline) translateOne(src, dst isa.Arch, in isa.Instruction) (isa.Instruction, error) {
	if in.Arch != src {
		return isa.Instruction{}, errEncoding(src, "instruction tagged %s, expected %s", in.Arch, src)
	}
	encoded, err := p.encoding.EncodeOrLookup(in)
	if err != nil {
		return isa.Instruction{}, err
	}

	pattern := p.patterns.MatchOrAnalyze(src, encoded)

	return p.generate(src, dst, in, pattern)
}

// generate builds the destination instruction from the source instruction,
// its pattern, and the register map. Lock-free apart from register-map
// reads.
func (p *Pipeline) generate(src, dst isa.Arch, in isa.Instruction, pattern Pattern) (isa.Instruction, error) {
	if src == dst {
		return in.Clone(), nil
	}

	mn, c, cerr := classify(src, in, pattern)
	if cerr != nil {
		return isa.Instruction{}, cerr
	}
	if mn == mnInvalid {
		return isa.Instruction{}, errUnsupportedInstruction(src, dst, "opcode %#x (%s)", in.Opcode, pattern.Name())
	}

	opcode, eerr := emitOpcode(src, dst, mn, c)
	if eerr != nil {
		return isa.Instruction{}, eerr
	}

	operands, oerr := p.translateOperands(src, dst, in.Operands)
	if oerr != nil {
		return isa.Instruction{}, oerr
	}

	out := isa.Instruction{Arch: dst, Opcode: opcode, Operands: operands}
	enc, err := encode(out)
	if err != nil {
		return isa.Instruction{}, err
	}
	out.Length = uint8(len(enc))
	return out, nil
}

func (p *Pipeline) translateOperands(src, dst isa.Arch, in []isa.Operand) ([]isa.Operand, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]isa.Operand, len(in))
	for i := range in {
		op := in[i]
		switch op.Kind {
		case isa.KindReg:
			mapped, err := p.mapRegister(src, dst, op.Reg)
			if err != nil {
				return nil, err
			}
			op.Reg = mapped
		case isa.KindImm:
			if !immediateFits(op.Imm, immediateBits(dst)) {
				return nil, errUnsupportedInstruction(src, dst,
					"immediate %d exceeds %d-bit target field", op.Imm, immediateBits(dst))
			}
		case isa.KindMem:
			base, err := p.mapRegister(src, dst, op.Base)
			if err != nil {
				return nil, err
			}
			op.Base = base
			if op.HasIndex {
				index, err := p.mapRegister(src, dst, op.Index)
				if err != nil {
					return nil, err
				}
				op.Index = index
			}
		}
		out[i] = op
	}
	return out, nil
}

// mapRegister resolves one register through the mapping cache. Fallback
// mappings are never silent: they are counted and logged so the tiering
// driver can audit them.
func (p *Pipeline) mapRegister(src, dst isa.Arch, reg isa.RegId) (isa.RegId, error) {
	mapped, fallback, ok := p.regs.Map(src, dst, reg)
	if !ok {
		return isa.RegId{}, errRegisterNotFound(src, dst, reg)
	}
	if fallback {
		p.stats.fallbacks.Add(1)
		p.logger.Warn("register mapping fell back to ordinal position",
			"src", src, "dst", dst, "reg", reg.String(), "mapped", mapped.String())
	}
	return mapped, nil
}

// TranslateBlock translates a sequence of instructions, consulting the
// result cache by whole-block content hash first. The completed block is
// copied into the cache on exit; the copy is deliberate, it is what makes
// cached results immune to caller mutation.
func (p *Pipeline) TranslateBlock(src, dst isa.Arch, instructions []isa.Instruction) ([]isa.Instruction, error) {
	if p.poisoned.Load() {
		return nil, &Error{Kind: KindPoisonedCache, Src: src, Dst: dst}
	}
	if !PairSupported(src, dst) {
		return nil, errUnsupportedPair(src, dst)
	}

	key := isa.BlockKey(src, dst, instructions)
	if cached, ok := p.results.Get(key); ok {
		p.stats.blocks.Add(1)
		return cached, nil
	}

	start := time.Now()
	out := make([]isa.Instruction, 0, len(instructions))
	for i := range instructions {
		translated, err := p.translateOne(src, dst, instructions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, translated)
	}
	p.stats.timeNanos.Add(uint64(time.Since(start)))
	p.stats.translated.Add(uint64(len(instructions)))
	p.stats.blocks.Add(1)

	p.results.Add(key, out)
	return out, nil
}

// TranslateBlocksParallel translates independent blocks across the worker
// pool. Output order always matches input order. Small batches are
// scheduled one block per task; larger batches use contiguous chunks to
// amortize dispatch. Results are observationally identical to calling
// TranslateBlock on each block in sequence.
func (p *Pipeline) TranslateBlocksParallel(src, dst isa.Arch, blocks [][]isa.Instruction) ([][]isa.Instruction, error) {
	if p.poisoned.Load() {
		return nil, &Error{Kind: KindPoisonedCache, Src: src, Dst: dst}
	}
	if !PairSupported(src, dst) {
		return nil, errUnsupportedPair(src, dst)
	}
	p.stats.parallelBatches.Add(1)

	n := len(blocks)
	if n == 0 {
		return nil, nil
	}

	chunk := 1
	if n > smallBatch {
		chunk = (n + 4*p.workers - 1) / (4 * p.workers)
	}

	out := make([][]isa.Instruction, n)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		p.pool.Go(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.poisoned.Store(true)
					errOnce.Do(func() { firstErr = errPoisoned(src, dst, r) })
				}
			}()
			for i := lo; i < hi; i++ {
				translated, err := p.TranslateBlock(src, dst, blocks[i])
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				out[i] = translated
			}
		})
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Warmup primes the encoding and pattern caches with instructions known to
// be hot, so the first real translation pays no analysis cost.
func (p *Pipeline) Warmup(instructions []isa.Instruction) {
	for i := range instructions {
		encoded, err := p.encoding.EncodeOrLookup(instructions[i])
		if err != nil {
			continue
		}
		p.patterns.MatchOrAnalyze(instructions[i].Arch, encoded)
	}
}

// Stats returns a point-in-time snapshot of every counter.
func (p *Pipeline) Stats() Snapshot {
	return Snapshot{
		Translated:       p.stats.translated.Load(),
		Blocks:           p.stats.blocks.Load(),
		ParallelBatches:  p.stats.parallelBatches.Load(),
		MappingFallbacks: p.stats.fallbacks.Load(),
		TimeNanos:        p.stats.timeNanos.Load(),
		EncodingHits:     p.encoding.Hits(),
		EncodingMisses:   p.encoding.Misses(),
		PatternHits:      p.patterns.Hits(),
		PatternMisses:    p.patterns.Misses(),
		RegisterHits:     p.regs.Hits(),
		RegisterMisses:   p.regs.Misses(),
		ResultHits:       p.results.Hits(),
		ResultMisses:     p.results.Misses(),
		ResultLen:        p.results.Len(),
	}
}

// HitRates returns per-cache hit rates.
func (p *Pipeline) HitRates() HitRates {
	s := p.Stats()
	return HitRates{
		Encoding: rate(s.EncodingHits, s.EncodingMisses),
		Pattern:  rate(s.PatternHits, s.PatternMisses),
		Register: rate(s.RegisterHits, s.RegisterMisses),
		Result:   rate(s.ResultHits, s.ResultMisses),
	}
}

// Registers exposes the mapping cache for curated-table extension during
// warm-up.
func (p *Pipeline) Registers() *RegisterMappingCache { return p.regs }

// InvalidateArch drops encoding and pattern entries for one architecture;
// used when a guest repatches code. Result-cache entries keyed on that
// architecture remain valid (translation is pure) and are left to LRU.
func (p *Pipeline) InvalidateArch(a isa.Arch) {
	p.encoding.InvalidateArch(a)
	p.patterns.InvalidateArch(a)
}

// Clear empties every cache. Counters are preserved; they are monotonic by
// contract.
func (p *Pipeline) Clear() {
	p.encoding.Clear()
	p.patterns.Clear()
	p.results.Clear()
}

// Poisoned reports whether a worker panic has made the pipeline unusable.
func (p *Pipeline) Poisoned() bool { return p.poisoned.Load() }
