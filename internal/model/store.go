package model

import (
	"fmt"

	"github.com/born-ml/tpload/internal/shard"
	"github.com/born-ml/tpload/internal/tensor"
)

// Parameter names, as they appear in Baichuan checkpoints.
const (
	EmbedTokens = "model.embed_tokens.weight"
	FinalNorm   = "model.norm.weight"
	LMHead      = "lm_head.weight"
)

// LayerParam returns the name of a parameter of decoder layer i, e.g.
// LayerParam(3, "mlp.down_proj.weight").
func LayerParam(i int, suffix string) string {
	return fmt.Sprintf("model.layers.%d.%s", i, suffix)
}

// Shapes holds the local shape of every parameter on one rank.
type Shapes struct {
	VocabRows    int // local rows of embed_tokens and lm_head
	PaddedVocab  int
	QKVRows      int
	AttnCols     int // local input columns of o_proj
	GateUpRows   int
	MLPCols      int // local input columns of down_proj
	Hidden       int
	LocalHeads   int
	Intermediate int
}

// LocalShapes computes the per-rank parameter sizes. Every split dimension
// must divide evenly by the world size.
func LocalShapes(cfg *Config, part shard.Partition) (*Shapes, error) {
	if err := part.Validate(); err != nil {
		return nil, err
	}

	split := func(what string, n int) (int, error) {
		local, err := part.Local(n)
		if err != nil {
			return 0, &shard.ConfigurationError{
				Details: fmt.Sprintf("%s %d is not divisible by world size %d", what, n, part.WorldSize),
			}
		}
		return local, nil
	}

	heads, err := split("num_attention_heads", cfg.NumAttentionHeads)
	if err != nil {
		return nil, err
	}
	inter, err := split("intermediate_size", cfg.IntermediateSize)
	if err != nil {
		return nil, err
	}
	padded := shard.PadVocab(cfg.VocabSize, cfg.VocabPadding)
	vocab, err := split("padded vocabulary", padded)
	if err != nil {
		return nil, err
	}

	attn := heads * cfg.HeadDim()
	return &Shapes{
		VocabRows:    vocab,
		PaddedVocab:  padded,
		QKVRows:      3 * attn,
		AttnCols:     attn,
		GateUpRows:   2 * inter,
		MLPCols:      inter,
		Hidden:       cfg.HiddenSize,
		LocalHeads:   heads,
		Intermediate: inter,
	}, nil
}

type param struct {
	name  string
	shape tensor.Shape
}

// NewParameterStore allocates every parameter of the model with its local
// shape on part, zero-filled, in the data type of the config.
func NewParameterStore(cfg *Config, part shard.Partition) (*shard.Store, error) {
	shapes, err := LocalShapes(cfg, part)
	if err != nil {
		return nil, err
	}
	dtype, err := cfg.DType()
	if err != nil {
		return nil, err
	}

	h := shapes.Hidden
	params := []param{
		{EmbedTokens, tensor.Shape{shapes.VocabRows, h}},
	}
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		params = append(params, []param{
			{LayerParam(i, "self_attn.W_pack.weight"), tensor.Shape{shapes.QKVRows, h}},
			{LayerParam(i, "self_attn.o_proj.weight"), tensor.Shape{h, shapes.AttnCols}},
			{LayerParam(i, "mlp.gate_up_proj.weight"), tensor.Shape{shapes.GateUpRows, h}},
			{LayerParam(i, "mlp.down_proj.weight"), tensor.Shape{h, shapes.MLPCols}},
			{LayerParam(i, "input_layernorm.weight"), tensor.Shape{h}},
			{LayerParam(i, "post_attention_layernorm.weight"), tensor.Shape{h}},
		}...)
	}
	params = append(params, []param{
		{FinalNorm, tensor.Shape{h}},
		{LMHead, tensor.Shape{shapes.VocabRows, h}},
	}...)

	store := shard.NewStore()
	for _, p := range params {
		if _, err := store.Alloc(p.name, p.shape, dtype); err != nil {
			return nil, err
		}
	}
	return store, nil
}
