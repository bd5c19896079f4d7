package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/tensor"
)

// initStd is the standard deviation of synthetic weights, the
// initializer_range of Baichuan configs.
const initStd = 0.02

// Checkpoint returns an unsharded checkpoint for cfg filled with normally
// distributed weights drawn from seed, named and shaped the way Baichuan
// checkpoints on the Hugging Face hub are. MLP projections are stored as
// separate gate_proj and up_proj entries, and RoPE models carry a
// rotary_emb.inv_freq buffer per layer.
func Checkpoint(cfg *Config, seed uint64) ([]*loader.Entry, error) {
	dtype, err := cfg.DType()
	if err != nil {
		return nil, err
	}
	pos, err := cfg.Position()
	if err != nil {
		return nil, err
	}

	dist := distuv.Normal{Mu: 0, Sigma: initStd, Src: rand.NewSource(seed)}
	h, inter, vocab := cfg.HiddenSize, cfg.IntermediateSize, cfg.VocabSize

	var entries []*loader.Entry
	add := func(name string, shape tensor.Shape, fill func([]float32)) error {
		data := make([]float32, shape.NumElements())
		fill(data)
		dtype.Round(data)
		t, err := tensor.FromFloat32(data, shape, dtype)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		entries = append(entries, &loader.Entry{Name: name, Tensor: t})
		return nil
	}
	random := func(data []float32) {
		for i := range data {
			data[i] = float32(dist.Rand())
		}
	}
	ones := func(data []float32) {
		for i := range data {
			data[i] = 1
		}
	}

	if err := add(EmbedTokens, tensor.Shape{vocab, h}, random); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		layer := []struct {
			suffix string
			shape  tensor.Shape
			fill   func([]float32)
		}{
			{"self_attn.W_pack.weight", tensor.Shape{3 * h, h}, random},
			{"self_attn.o_proj.weight", tensor.Shape{h, h}, random},
			{"mlp.gate_proj.weight", tensor.Shape{inter, h}, random},
			{"mlp.up_proj.weight", tensor.Shape{inter, h}, random},
			{"mlp.down_proj.weight", tensor.Shape{h, inter}, random},
			{"input_layernorm.weight", tensor.Shape{h}, ones},
			{"post_attention_layernorm.weight", tensor.Shape{h}, ones},
		}
		for _, p := range layer {
			if err := add(LayerParam(i, p.suffix), p.shape, p.fill); err != nil {
				return nil, err
			}
		}

		if pos == RoPE {
			rope := &RotaryAttention{Dim: cfg.HeadDim(), RotaryDim: cfg.HeadDim(), Base: cfg.RopeTheta}
			freqs := rope.InvFreq()
			err := add(LayerParam(i, "self_attn.rotary_emb.inv_freq"), tensor.Shape{len(freqs)}, func(data []float32) {
				for j, f := range freqs {
					data[j] = float32(f)
				}
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if err := add(FinalNorm, tensor.Shape{h}, ones); err != nil {
		return nil, err
	}
	if err := add(LMHead, tensor.Shape{vocab, h}, random); err != nil {
		return nil, err
	}
	return entries, nil
}

// WriteCheckpoint writes cfg as config.json and entries as a single
// model.safetensors file into dir, creating it if needed.
func WriteCheckpoint(dir string, cfg *Config, entries []*loader.Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), b, 0o644); err != nil {
		return err
	}

	tensors := make(map[string]*tensor.RawTensor, len(entries))
	for _, e := range entries {
		tensors[e.Name] = e.Tensor
	}
	return loader.WriteSafeTensors(filepath.Join(dir, "model.safetensors"), tensors, map[string]string{"format": "pt"})
}
