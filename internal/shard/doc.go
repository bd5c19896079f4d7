// Package shard places a full checkpoint into one tensor-parallel rank's
// parameter store.
//
// Load consumes checkpoint entries in stream order and, for each, decides
// how the local rank's slice is cut from it:
//   - rotary frequency caches are skipped
//   - the fused QKV projection (W_pack) is cut by attention head
//   - gate_proj and up_proj are merged into one gate_up_proj destination
//   - lm_head rows are L2-normalized before sharding
//   - embed_tokens and lm_head are split over the padded vocabulary
//   - o_proj and down_proj are row-parallel, everything else replicated
//
// Every destination row is tracked so that double writes and rows left
// unwritten are reported as errors. Padding rows of vocabulary shards are the
// only rows allowed to stay at their zero initialization.
//
// Example:
//
//	store, err := model.NewParameterStore(cfg, shard.Partition{WorldSize: 2, Rank: 0})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := shard.Load(stream, part, store, shard.WithHeads(cfg.NumAttentionHeads))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Written, "entries written")
package shard
