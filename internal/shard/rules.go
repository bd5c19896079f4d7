package shard

import "strings"

// Category is how a checkpoint entry is placed into the store.
type Category int

// Entry categories.
const (
	Skip Category = iota
	Replicated
	ColumnSharded
	RowSharded
	FusedPair
	FusedQKV
	PaddedVocab
)

var categoryNames = [...]string{
	Skip:          "skip",
	Replicated:    "replicated",
	ColumnSharded: "column",
	RowSharded:    "row",
	FusedPair:     "fused-pair",
	FusedQKV:      "fused-qkv",
	PaddedVocab:   "padded-vocab",
}

// String returns a short name for the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{Skip, Replicated, ColumnSharded, RowSharded, FusedPair, FusedQKV, PaddedVocab}
}

// Spec is the placement derived for one checkpoint entry name.
type Spec struct {
	Category  Category
	Dest      string // store key the entry is written to
	Ordinal   int    // half of a FusedPair destination
	Normalize bool   // L2-normalize rows before sharding
}

// Rules classifies checkpoint names by substring markers. The zero value
// replicates everything; BaichuanRules returns the rules for Baichuan-style
// checkpoints.
type Rules struct {
	// SkipMarkers name buffers that are recomputed, never loaded.
	SkipMarkers []string
	// QKVMarker names the fused query/key/value projection.
	QKVMarker string
	// PairMarkers are the halves of a fused pair, in ordinal order.
	PairMarkers []string
	// PairDest replaces the pair marker in the destination name.
	PairDest string
	// NormalizedHead is the exact name of the row-normalized output head.
	NormalizedHead string
	// VocabMarkers name parameters split over the padded vocabulary.
	VocabMarkers []string
	// ColumnParallel names are split along dimension 0.
	ColumnParallel []string
	// RowParallel names are split along dimension 1.
	RowParallel []string
}

// BaichuanRules returns the placement rules for Baichuan and Baichuan2
// checkpoints.
func BaichuanRules() *Rules {
	return &Rules{
		SkipMarkers:    []string{"rotary_emb.inv_freq"},
		QKVMarker:      "W_pack",
		PairMarkers:    []string{"gate_proj", "up_proj"},
		PairDest:       "gate_up_proj",
		NormalizedHead: "lm_head.weight",
		VocabMarkers:   []string{"embed_tokens", "lm_head"},
		RowParallel:    []string{"o_proj.weight", "down_proj.weight"},
	}
}

// Classify derives the placement of a checkpoint entry.
func (r *Rules) Classify(name string) Spec {
	for _, m := range r.SkipMarkers {
		if strings.Contains(name, m) {
			return Spec{Category: Skip}
		}
	}

	if r.QKVMarker != "" && strings.Contains(name, r.QKVMarker) {
		return Spec{Category: FusedQKV, Dest: name}
	}

	if r.PairDest != "" {
		for ordinal, m := range r.PairMarkers {
			if strings.Contains(name, m) {
				return Spec{
					Category: FusedPair,
					Dest:     strings.Replace(name, m, r.PairDest, 1),
					Ordinal:  ordinal,
				}
			}
		}
	}

	normalize := r.NormalizedHead != "" && name == r.NormalizedHead

	for _, m := range r.VocabMarkers {
		if strings.Contains(name, m) {
			return Spec{Category: PaddedVocab, Dest: name, Normalize: normalize}
		}
	}

	spec := Spec{Category: Replicated, Dest: name, Normalize: normalize}
	switch {
	case containsAny(name, r.ColumnParallel):
		spec.Category = ColumnSharded
	case containsAny(name, r.RowParallel):
		spec.Category = RowSharded
	}
	return spec
}

func containsAny(name string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
