package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/tpload/internal/format"
	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/model"
	"github.com/born-ml/tpload/internal/shard"
)

// LoadHandler loads one rank of a checkpoint and prints what was placed.
func LoadHandler(cmd *cobra.Command, args []string) error {
	s, err := newShardSetup(cmd, args)
	if err != nil {
		return err
	}
	rank, err := cmd.Flags().GetInt("rank")
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	part := shard.Partition{WorldSize: s.world, Rank: rank}
	store, err := model.NewParameterStore(s.cfg, part)
	if err != nil {
		return err
	}
	attn, err := model.NewAttention(s.cfg, part)
	if err != nil {
		return err
	}

	stream, err := loader.OpenDir(s.dir)
	if err != nil {
		return err
	}
	defer stream.Close()

	report, err := shard.Load(stream, part, store, s.opts...)
	if err != nil {
		return err
	}

	printReport(cmd, s.cfg, attn, store, report)

	if out != "" {
		metadata := map[string]string{
			"format":             "pt",
			"rank":               strconv.Itoa(part.Rank),
			"world_size":         strconv.Itoa(part.WorldSize),
			"position_embedding": attn.Position().String(),
		}
		if err := loader.WriteSafeTensors(out, store.Tensors(), metadata); err != nil {
			return fmt.Errorf("writing shard: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %s (%s)\n", out, format.HumanBytes(store.ByteSize()))
	}
	return nil
}

func printReport(cmd *cobra.Command, cfg *model.Config, attn model.Attention, store *shard.Store, r *shard.Report) {
	table := newTable(cmd, "SHARD", "")
	table.AppendBulk([][]string{
		{"architecture", cfg.Architecture()},
		{"position embedding", attn.Position().String()},
		{"partition", r.Partition.String()},
		{"local heads", strconv.Itoa(attn.Heads())},
		{"head dim", strconv.Itoa(attn.HeadDim())},
		{"parameters", strconv.Itoa(store.Len())},
		{"shard size", format.HumanBytes(store.ByteSize())},
		{"entries read", strconv.Itoa(r.Entries)},
		{"entries written", strconv.Itoa(r.Written)},
		{"entries skipped", strconv.Itoa(r.Skipped)},
		{"vocab padding rows", strconv.Itoa(r.PaddingRows)},
		{"checkpoint bytes", format.HumanBytes(r.Bytes)},
		{"duration", r.Duration.String()},
	})
	table.Render()

	fmt.Fprintln(cmd.OutOrStdout())
	table = newTable(cmd, "CATEGORY", "ENTRIES")
	for _, c := range shard.Categories() {
		if n := r.Categories[c]; n > 0 {
			table.Append([]string{c.String(), strconv.Itoa(n)})
		}
	}
	table.Render()

	if len(r.Warnings) > 0 {
		fmt.Fprintln(cmd.OutOrStdout())
		table = newTable(cmd, "UNKNOWN ENTRY", "PARAMETER")
		for _, w := range r.Warnings {
			table.Append([]string{w.Name, w.Dest})
		}
		table.Render()
	}
}
