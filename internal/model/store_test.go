package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/shard"
	"github.com/born-ml/tpload/internal/tensor"
)

func tinyConfig(arch string) *Config {
	return &Config{
		Architectures:     []string{arch},
		HiddenSize:        16,
		IntermediateSize:  32,
		NumAttentionHeads: 4,
		NumHiddenLayers:   2,
		VocabSize:         50,
		HiddenAct:         "silu",
		RopeTheta:         10000,
		VocabPadding:      shard.DefaultVocabPadding,
	}
}

func TestLocalShapes(t *testing.T) {
	cfg := tinyConfig("BaiChuan2ForCausalLM")

	got, err := LocalShapes(cfg, shard.Partition{WorldSize: 2, Rank: 1})
	require.NoError(t, err)
	want := &Shapes{
		VocabRows:    32,
		PaddedVocab:  64,
		QKVRows:      24,
		AttnCols:     8,
		GateUpRows:   32,
		MLPCols:      16,
		Hidden:       16,
		LocalHeads:   2,
		Intermediate: 16,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LocalShapes (-want +got):\n%s", diff)
	}
}

func TestLocalShapesNotDivisible(t *testing.T) {
	cfg := tinyConfig("BaiChuan2ForCausalLM")

	_, err := LocalShapes(cfg, shard.Partition{WorldSize: 3, Rank: 0})
	assert.ErrorIs(t, err, shard.ErrConfiguration)

	cfg.NumAttentionHeads = 8
	cfg.IntermediateSize = 30
	_, err = LocalShapes(cfg, shard.Partition{WorldSize: 4, Rank: 0})
	require.ErrorIs(t, err, shard.ErrConfiguration)
	assert.Contains(t, err.Error(), "intermediate_size")

	_, err = LocalShapes(cfg, shard.Partition{WorldSize: 2, Rank: 5})
	assert.ErrorIs(t, err, shard.ErrConfiguration)

	// 1000 pads to 1024 rows, which three ranks cannot split.
	cfg = tinyConfig("BaiChuan2ForCausalLM")
	cfg.HiddenSize = 24
	cfg.NumAttentionHeads = 3
	cfg.IntermediateSize = 30
	cfg.VocabSize = 1000
	_, err = LocalShapes(cfg, shard.Partition{WorldSize: 3, Rank: 0})
	require.ErrorIs(t, err, shard.ErrConfiguration)
	assert.Contains(t, err.Error(), "padded vocabulary")

	_, err = NewParameterStore(cfg, shard.Partition{WorldSize: 3, Rank: 0})
	assert.ErrorIs(t, err, shard.ErrConfiguration)
}

func TestNewParameterStore(t *testing.T) {
	cfg := tinyConfig("BaiChuan2ForCausalLM")
	cfg.TorchDType = "float16"

	store, err := NewParameterStore(cfg, shard.Partition{WorldSize: 4, Rank: 0})
	require.NoError(t, err)
	assert.Equal(t, 2+6*cfg.NumHiddenLayers+2, store.Len())

	shapes := map[string]tensor.Shape{
		EmbedTokens:                                      {16, 16},
		LMHead:                                           {16, 16},
		FinalNorm:                                        {16},
		LayerParam(1, "self_attn.W_pack.weight"):         {12, 16},
		LayerParam(1, "self_attn.o_proj.weight"):         {16, 4},
		LayerParam(1, "mlp.gate_up_proj.weight"):         {16, 16},
		LayerParam(1, "mlp.down_proj.weight"):            {16, 8},
		LayerParam(1, "post_attention_layernorm.weight"): {16},
	}
	for name, want := range shapes {
		p, ok := store.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, p.Shape(), name)
		assert.Equal(t, tensor.Float16, p.DType(), name)
	}

	cfg.TorchDType = "int8"
	_, err = NewParameterStore(cfg, shard.Single)
	require.Error(t, err)
}
