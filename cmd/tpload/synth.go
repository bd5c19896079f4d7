package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/tpload/internal/format"
	"github.com/born-ml/tpload/internal/model"
	"github.com/born-ml/tpload/internal/shard"
)

// SynthHandler writes a random checkpoint with the shape given by flags.
func SynthHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	arch, _ := flags.GetString("arch")
	hidden, _ := flags.GetInt("hidden")
	heads, _ := flags.GetInt("heads")
	inter, _ := flags.GetInt("intermediate")
	layers, _ := flags.GetInt("layers")
	vocab, _ := flags.GetInt("vocab")
	dtype, _ := flags.GetString("dtype")
	seed, _ := flags.GetUint64("seed")

	cfg := &model.Config{
		Architectures:     []string{arch},
		HiddenSize:        hidden,
		IntermediateSize:  inter,
		NumAttentionHeads: heads,
		NumHiddenLayers:   layers,
		VocabSize:         vocab,
		RMSNormEps:        1e-6,
		HiddenAct:         "silu",
		RopeTheta:         10000,
		TorchDType:        dtype,
		VocabPadding:      shard.DefaultVocabPadding,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	entries, err := model.Checkpoint(cfg, seed)
	if err != nil {
		return err
	}
	if err := model.WriteCheckpoint(args[0], cfg, entries); err != nil {
		return err
	}

	var size int64
	for _, e := range entries {
		size += int64(e.Tensor.ByteSize())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tensors (%s) to %s\n", len(entries), format.HumanBytes(size), args[0])
	return nil
}
