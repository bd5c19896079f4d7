// Package model describes the Baichuan model graph that owns the parameter
// store: its configuration, the local shape of every parameter on a rank and
// the attention strategy each rank runs.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/tpload/internal/shard"
	"github.com/born-ml/tpload/internal/tensor"
)

// PositionEmbedding selects how attention encodes token positions.
type PositionEmbedding int

// Position embeddings.
const (
	RoPE PositionEmbedding = iota
	ALiBi
)

// String returns "ROPE" or "ALIBI".
func (p PositionEmbedding) String() string {
	if p == ALiBi {
		return "ALIBI"
	}
	return "ROPE"
}

// MarshalText implements encoding.TextMarshaler.
func (p PositionEmbedding) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PositionEmbedding) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "ROPE", "ROTARY":
		*p = RoPE
	case "ALIBI":
		*p = ALiBi
	default:
		return fmt.Errorf("unknown position embedding %q", b)
	}
	return nil
}

// Config is the subset of a Hugging Face config.json the loader needs.
type Config struct {
	Architectures     []string `json:"architectures"`
	HiddenSize        int      `json:"hidden_size"`
	IntermediateSize  int      `json:"intermediate_size"`
	NumAttentionHeads int      `json:"num_attention_heads"`
	NumHiddenLayers   int      `json:"num_hidden_layers"`
	VocabSize         int      `json:"vocab_size"`
	RMSNormEps        float64  `json:"rms_norm_eps"`
	HiddenAct         string   `json:"hidden_act"`
	RopeTheta         float64  `json:"rope_theta"`
	TorchDType        string   `json:"torch_dtype"`

	// PositionEmbedding overrides the choice derived from the architecture.
	PositionEmbedding *PositionEmbedding `json:"position_embedding,omitempty"`

	// VocabPadding is the multiple the vocabulary is padded to. It is not
	// part of config.json.
	VocabPadding int `json:"-"`
}

// architectures maps architecture names to their position embedding. The
// 13B Baichuan2 checkpoints use ALiBi, the 7B ones rotary embeddings.
var architectures = map[string]PositionEmbedding{
	"Baichuan2ForCausalLM": ALiBi,
	"BaiChuan2ForCausalLM": RoPE,
	"BaiChuanForCausalLM":  RoPE,
}

// LoadConfig reads config.json from a model directory, or from path itself
// when it names a file.
func LoadConfig(path string) (*Config, error) {
	if stat, err := os.Stat(path); err == nil && stat.IsDir() {
		path = filepath.Join(path, "config.json")
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes and validates a config.json document.
func ParseConfig(b []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.VocabPadding == 0 {
		cfg.VocabPadding = shard.DefaultVocabPadding
	}
	if cfg.RopeTheta == 0 {
		cfg.RopeTheta = 10000
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the sizes are positive and the activation is supported.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"hidden_size", c.HiddenSize},
		{"intermediate_size", c.IntermediateSize},
		{"num_attention_heads", c.NumAttentionHeads},
		{"num_hidden_layers", c.NumHiddenLayers},
		{"vocab_size", c.VocabSize},
	} {
		if f.value <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", f.name, f.value)
		}
	}

	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("config: hidden_size %d is not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads)
	}

	if act := c.HiddenAct; act != "" && act != "silu" {
		return fmt.Errorf("config: unsupported activation %q, only silu is supported", act)
	}
	return nil
}

// HeadDim returns the size of one attention head.
func (c *Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// Architecture returns the first listed architecture name.
func (c *Config) Architecture() string {
	if len(c.Architectures) == 0 {
		return ""
	}
	return c.Architectures[0]
}

// Position returns the position embedding used by the model. An explicit
// position_embedding wins; otherwise it follows the architecture name.
// BaichuanForCausalLM is shared by both sizes, so the 4096 hidden size of
// the 7B model selects rotary embeddings there.
func (c *Config) Position() (PositionEmbedding, error) {
	if c.PositionEmbedding != nil {
		return *c.PositionEmbedding, nil
	}

	arch := c.Architecture()
	if p, ok := architectures[arch]; ok {
		return p, nil
	}
	if arch == "BaichuanForCausalLM" {
		if c.HiddenSize == 4096 {
			return RoPE, nil
		}
		return ALiBi, nil
	}
	return RoPE, fmt.Errorf("config: unsupported architecture %q", arch)
}

// DType returns the data type parameters are stored in, float32 when unset.
func (c *Config) DType() (tensor.DataType, error) {
	if c.TorchDType == "" {
		return tensor.Float32, nil
	}
	return tensor.ParseDataType(c.TorchDType)
}

// LoadOptions returns the shard options that depend on the model.
func (c *Config) LoadOptions() []shard.Option {
	return []shard.Option{shard.WithHeads(c.NumAttentionHeads)}
}
