package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xlate/isa"
	"xlate/translate"
)

func TestCollectorRegistersAndScrapes(t *testing.T) {
	p, err := translate.New()
	require.NoError(t, err)

	in := isa.Instruction{
		Arch:   isa.X86_64,
		Opcode: 0x01,
		Operands: []isa.Operand{
			isa.RegOp(isa.Reg(isa.X86_64, 0)),
			isa.RegOp(isa.Reg(isa.X86_64, 1)),
		},
		Length: 2,
	}
	block := []isa.Instruction{in}
	_, err = p.TranslateBlock(isa.X86_64, isa.ARM64, block)
	require.NoError(t, err)
	_, err = p.TranslateBlock(isa.X86_64, isa.ARM64, block)
	require.NoError(t, err)

	reg := prom.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(p)))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	labeled := make(map[string]map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			}
			if len(m.GetLabel()) == 0 {
				byName[mf.GetName()] = v
				continue
			}
			if labeled[mf.GetName()] == nil {
				labeled[mf.GetName()] = make(map[string]float64)
			}
			labeled[mf.GetName()][m.GetLabel()[0].GetValue()] = v
		}
	}

	assert.Equal(t, 1.0, byName["xlate_instructions_translated_total"])
	assert.Equal(t, 2.0, byName["xlate_blocks_total"])
	assert.Equal(t, 1.0, byName["xlate_result_cache_entries"])
	assert.Greater(t, byName["xlate_translation_seconds_total"], 0.0)

	require.Contains(t, labeled, "xlate_cache_hits_total")
	assert.Equal(t, 1.0, labeled["xlate_cache_hits_total"]["result"])
	assert.Equal(t, 1.0, labeled["xlate_cache_misses_total"]["result"])
	assert.Equal(t, 0.5, labeled["xlate_cache_hit_rate"]["result"])

	for _, cache := range []string{"encoding", "pattern", "register", "result"} {
		assert.Contains(t, labeled["xlate_cache_hits_total"], cache)
		assert.Contains(t, labeled["xlate_cache_misses_total"], cache)
		assert.Contains(t, labeled["xlate_cache_hit_rate"], cache)
	}
}

func TestCollectorDescribe(t *testing.T) {
	p, err := translate.New()
	require.NoError(t, err)

	ch := make(chan *prom.Desc, 16)
	NewCollector(p).Describe(ch)
	close(ch)

	var n int
	for range ch {
		n++
	}
	assert.Equal(t, 8, n)
}
