package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/tpload/internal/format"
	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/model"
	"github.com/born-ml/tpload/internal/shard"
)

// VerifyHandler loads every rank concurrently, then rebuilds each checkpoint
// entry from the shards and compares it with the checkpoint.
func VerifyHandler(cmd *cobra.Command, args []string) error {
	s, err := newShardSetup(cmd, args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	open := func(context.Context) (loader.Stream, error) {
		return loader.OpenDir(s.dir)
	}
	newStore := func(p shard.Partition) (*shard.Store, error) {
		return model.NewParameterStore(s.cfg, p)
	}
	stores, reports, err := shard.LoadAll(ctx, s.world, open, newStore, s.opts...)
	if err != nil {
		return err
	}

	table := newTable(cmd, "RANK", "WRITTEN", "PADDING ROWS", "SIZE", "DURATION")
	for i, r := range reports {
		table.Append([]string{
			r.Partition.String(),
			strconv.Itoa(r.Written),
			strconv.Itoa(r.PaddingRows),
			format.HumanBytes(stores[i].ByteSize()),
			r.Duration.String(),
		})
	}
	table.Render()

	checked, failed, err := compare(ctx, s.dir, stores, s.opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	table = newTable(cmd, "CATEGORY", "CHECKED", "MISMATCHED")
	for _, c := range shard.Categories() {
		if checked[c] > 0 {
			table.Append([]string{c.String(), strconv.Itoa(checked[c]), strconv.Itoa(len(failed[c]))})
		}
	}
	table.Render()

	var errs []error
	for _, c := range shard.Categories() {
		for _, name := range failed[c] {
			errs = append(errs, fmt.Errorf("%s (%s) does not reassemble", name, c))
		}
	}
	return errors.Join(errs...)
}

// compare reads the checkpoint again and checks every entry against the
// reassembled shards, grouped by category.
func compare(ctx context.Context, dir string, stores []*shard.Store, opts []shard.Option) (map[shard.Category]int, map[shard.Category][]string, error) {
	stream, err := loader.OpenDir(dir)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	rules := shard.BaichuanRules()
	checked := make(map[shard.Category]int)
	failed := make(map[shard.Category][]string)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		e, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		spec := rules.Classify(e.Name)
		if spec.Category == shard.Skip {
			continue
		}

		want := e.Tensor
		if spec.Normalize {
			want = shard.NormalizeRows(want)
		}
		checked[spec.Category]++

		got, err := shard.Assemble(e.Name, want.Shape(), stores, opts...)
		if err != nil || !slices.Equal(got.Data(), want.Data()) {
			failed[spec.Category] = append(failed[spec.Category], e.Name)
		}
	}
	return checked, failed, nil
}
