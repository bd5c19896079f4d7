package model

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/born-ml/tpload/internal/shard"
)

// Attention is the per-rank attention strategy, fixed when the model is
// built. It is either *RotaryAttention or *ALiBiAttention.
type Attention interface {
	Position() PositionEmbedding
	// Heads returns the number of heads on this rank.
	Heads() int
	HeadDim() int
	// Scale is the factor applied to query-key products.
	Scale() float64
}

// RotaryAttention applies rotary position embeddings over the full head.
type RotaryAttention struct {
	NumHeads  int
	Dim       int
	RotaryDim int
	Base      float64
}

func (a *RotaryAttention) Position() PositionEmbedding { return RoPE }
func (a *RotaryAttention) Heads() int                  { return a.NumHeads }
func (a *RotaryAttention) HeadDim() int                { return a.Dim }
func (a *RotaryAttention) Scale() float64              { return 1 / math.Sqrt(float64(a.Dim)) }

// InvFreq returns the rotary inverse frequencies. Checkpoints store this as
// rotary_emb.inv_freq; it is recomputed here instead of loaded.
func (a *RotaryAttention) InvFreq() []float64 {
	freqs := make([]float64, a.RotaryDim/2)
	for i := range freqs {
		freqs[i] = 1 / math.Pow(a.Base, float64(2*i)/float64(a.RotaryDim))
	}
	return freqs
}

// ALiBiAttention adds per-head linear position biases.
type ALiBiAttention struct {
	Dim int
	// Slopes holds the bias slope of each head on this rank.
	Slopes []float64
}

func (a *ALiBiAttention) Position() PositionEmbedding { return ALiBi }
func (a *ALiBiAttention) Heads() int                  { return len(a.Slopes) }
func (a *ALiBiAttention) HeadDim() int                { return a.Dim }
func (a *ALiBiAttention) Scale() float64              { return 1 / math.Sqrt(float64(a.Dim)) }

// NewAttention builds the attention strategy for one rank.
func NewAttention(cfg *Config, part shard.Partition) (Attention, error) {
	pos, err := cfg.Position()
	if err != nil {
		return nil, err
	}
	start, end, err := part.Range(cfg.NumAttentionHeads)
	if err != nil {
		return nil, &shard.ConfigurationError{
			Details: fmt.Sprintf("%d attention heads are not divisible by world size %d", cfg.NumAttentionHeads, part.WorldSize),
		}
	}

	if pos == ALiBi {
		return &ALiBiAttention{
			Dim:    cfg.HeadDim(),
			Slopes: AlibiSlopes(cfg.NumAttentionHeads)[start:end],
		}, nil
	}
	return &RotaryAttention{
		NumHeads:  end - start,
		Dim:       cfg.HeadDim(),
		RotaryDim: cfg.HeadDim(),
		Base:      cfg.RopeTheta,
	}, nil
}

// AlibiSlopes returns the ALiBi slope of every head.
//
// For a power of two n the slopes are the geometric sequence start^(i+1)
// with start = 2^(-8/n). Other head counts take the slopes of the largest
// power of two below n, followed by every other slope of twice that power.
func AlibiSlopes(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n&(n-1) == 0 {
		return powerOfTwoSlopes(n)
	}

	closest := 1 << (bits.Len(uint(n)) - 1)
	slopes := powerOfTwoSlopes(closest)
	extra := AlibiSlopes(2 * closest)
	for i := 0; i < 2*closest && len(slopes) < n; i += 2 {
		slopes = append(slopes, extra[i])
	}
	return slopes
}

func powerOfTwoSlopes(n int) []float64 {
	start := math.Pow(2, -math.Pow(2, -(math.Log2(float64(n))-3)))
	slopes := make([]float64, n)
	for i := range slopes {
		slopes[i] = start * math.Pow(start, float64(i))
	}
	return slopes
}
