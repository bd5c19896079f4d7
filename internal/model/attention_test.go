package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/shard"
)

func TestAlibiSlopesPowerOfTwo(t *testing.T) {
	slopes := AlibiSlopes(8)
	require.Len(t, slopes, 8)
	for i, s := range slopes {
		assert.InDelta(t, math.Pow(0.5, float64(i+1)), s, 1e-12, "head %d", i)
	}
}

func TestAlibiSlopesInterleaved(t *testing.T) {
	slopes := AlibiSlopes(12)
	require.Len(t, slopes, 12)

	assert.InDeltaSlice(t, AlibiSlopes(8), slopes[:8], 1e-12)
	// Remaining heads take every other slope of 16 heads.
	base := math.Pow(2, -0.5)
	for i, s := range slopes[8:] {
		assert.InDelta(t, math.Pow(base, float64(2*i+1)), s, 1e-12, "extra head %d", i)
	}

	// Baichuan2 13B.
	slopes = AlibiSlopes(40)
	require.Len(t, slopes, 40)
	for i := 1; i < 32; i++ {
		assert.Less(t, slopes[i], slopes[i-1])
	}

	assert.Nil(t, AlibiSlopes(0))
}

func TestNewAttention(t *testing.T) {
	cfg := &Config{
		Architectures:     []string{"Baichuan2ForCausalLM"},
		HiddenSize:        64,
		NumAttentionHeads: 8,
		RopeTheta:         10000,
	}

	all := AlibiSlopes(8)
	for rank := range 2 {
		attn, err := NewAttention(cfg, shard.Partition{WorldSize: 2, Rank: rank})
		require.NoError(t, err)

		alibi, ok := attn.(*ALiBiAttention)
		require.True(t, ok)
		assert.Equal(t, 4, alibi.Heads())
		assert.Equal(t, all[rank*4:(rank+1)*4], alibi.Slopes)
		assert.InDelta(t, 1/math.Sqrt(8), alibi.Scale(), 1e-12)
	}

	cfg.Architectures = []string{"BaiChuan2ForCausalLM"}
	attn, err := NewAttention(cfg, shard.Partition{WorldSize: 4, Rank: 3})
	require.NoError(t, err)
	rope, ok := attn.(*RotaryAttention)
	require.True(t, ok)
	assert.Equal(t, RoPE, rope.Position())
	assert.Equal(t, 2, rope.Heads())
	assert.Equal(t, 8, rope.HeadDim())

	freqs := rope.InvFreq()
	require.Len(t, freqs, 4)
	assert.InDelta(t, 1, freqs[0], 0)
	assert.InDelta(t, 1/math.Pow(10000, 0.75), freqs[3], 1e-12)

	_, err = NewAttention(cfg, shard.Partition{WorldSize: 3, Rank: 0})
	assert.ErrorIs(t, err, shard.ErrConfiguration)
}
