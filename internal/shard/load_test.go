package shard

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/tensor"
)

const (
	qkvName  = "model.layers.0.self_attn.W_pack.weight"
	gateName = "model.layers.0.mlp.gate_proj.weight"
	upName   = "model.layers.0.mlp.up_proj.weight"
	pairName = "model.layers.0.mlp.gate_up_proj.weight"
	oName    = "model.layers.0.self_attn.o_proj.weight"
	normName = "model.layers.0.input_layernorm.weight"
	embName  = "model.embed_tokens.weight"
	headName = "lm_head.weight"
)

func TestLoadFusedQKV(t *testing.T) {
	const (
		world  = 2
		heads  = 4
		dim    = 8
		hidden = 32
	)
	src := ramp(t, tensor.Shape{3 * heads * dim, hidden}, 0)
	local := heads / world

	for rank := range world {
		store := storeOf(t, map[string]tensor.Shape{qkvName: {3 * local * dim, hidden}})
		report, err := Load(loader.NewSliceStream(entry(qkvName, src)), Partition{WorldSize: world, Rank: rank}, store,
			WithRules(noHead()), WithHeads(heads), quiet())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Categories[FusedQKV])

		dst, _ := store.Get(qkvName)
		require.Equal(t, tensor.Shape{48, 32}, dst.Shape())
		for q := range 3 {
			for h := range local {
				for d := range dim {
					srcRow := (q*heads+rank*local+h)*dim + d
					dstRow := (q*local+h)*dim + d
					assert.Equal(t, rows(t, src, srcRow, srcRow+1), rows(t, dst, dstRow, dstRow+1),
						"rank %d q %d head %d dim %d", rank, q, h, d)
				}
			}
		}
	}
}

func TestLoadFusedQKVHeadsNotDivisible(t *testing.T) {
	src := ramp(t, tensor.Shape{9, 4}, 0)
	store := storeOf(t, map[string]tensor.Shape{qkvName: {3, 4}})

	_, err := Load(loader.NewSliceStream(entry(qkvName, src)), Partition{WorldSize: 2, Rank: 0}, store,
		WithRules(noHead()), WithHeads(3), quiet())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Load(loader.NewSliceStream(entry(qkvName, src)), Partition{WorldSize: 2, Rank: 0}, store,
		WithRules(noHead()), quiet())
	assert.ErrorIs(t, err, ErrConfiguration, "missing head count")
}

func TestLoadFusedPair(t *testing.T) {
	const (
		world        = 2
		intermediate = 16
		hidden       = 4
	)
	gate := ramp(t, tensor.Shape{intermediate, hidden}, 0)
	up := ramp(t, tensor.Shape{intermediate, hidden}, 1000)
	full, err := tensor.Cat(gate, up)
	require.NoError(t, err)

	// Rows of the unsharded [gate; up] tensor each rank receives, per half.
	want := map[int][2][2]int{
		0: {{0, 8}, {16, 24}},
		1: {{8, 16}, {24, 32}},
	}

	for rank := range world {
		store := storeOf(t, map[string]tensor.Shape{pairName: {2 * intermediate / world, hidden}})
		report, err := Load(loader.NewSliceStream(entry(gateName, gate), entry(upName, up)),
			Partition{WorldSize: world, Rank: rank}, store, WithRules(noHead()), quiet())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Categories[FusedPair])

		dst, _ := store.Get(pairName)
		for ordinal, r := range want[rank] {
			half := intermediate / world
			assert.Equal(t, rows(t, full, r[0], r[1]), rows(t, dst, ordinal*half, (ordinal+1)*half),
				"rank %d ordinal %d", rank, ordinal)
		}
	}
}

func TestLoadFusedPairMissingHalf(t *testing.T) {
	gate := ramp(t, tensor.Shape{16, 4}, 0)
	store := storeOf(t, map[string]tensor.Shape{pairName: {16, 4}})

	_, err := Load(loader.NewSliceStream(entry(gateName, gate)), Partition{WorldSize: 2, Rank: 1}, store,
		WithRules(noHead()), quiet())

	var unwritten *UnwrittenParameterError
	require.ErrorAs(t, err, &unwritten)
	assert.Equal(t, pairName, unwritten.Name)
	assert.Equal(t, 8, unwritten.Start)
	assert.Equal(t, 16, unwritten.End)
	assert.ErrorIs(t, err, ErrUnwrittenParameter)
}

func TestLoadRowSharded(t *testing.T) {
	src := ramp(t, tensor.Shape{4, 8}, 0)
	store := storeOf(t, map[string]tensor.Shape{oName: {4, 4}})

	_, err := Load(loader.NewSliceStream(entry(oName, src)), Partition{WorldSize: 2, Rank: 1}, store,
		WithRules(noHead()), quiet())
	require.NoError(t, err)

	dst, _ := store.Get(oName)
	assert.Equal(t, []float32{
		4, 5, 6, 7,
		12, 13, 14, 15,
		20, 21, 22, 23,
		28, 29, 30, 31,
	}, dst.Data())
}

func TestLoadPaddedVocab(t *testing.T) {
	tests := []struct {
		name     string
		vocab    int
		multiple int
		world    int
	}{
		{"exact", 8, 8, 2},
		{"partial last shard", 10, 4, 4},
		{"empty last shard", 5, 8, 4},
		{"single rank", 7, 64, 1},
	}

	const hidden = 3
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := ramp(t, tensor.Shape{tt.vocab, hidden}, 1)
			padded := PadVocab(tt.vocab, tt.multiple)
			require.Zero(t, padded%tt.world)
			local := padded / tt.world

			padding := 0
			for rank := range tt.world {
				store := storeOf(t, map[string]tensor.Shape{embName: {local, hidden}})
				report, err := Load(loader.NewSliceStream(entry(embName, src)),
					Partition{WorldSize: tt.world, Rank: rank}, store, WithRules(noHead()), quiet())
				require.NoError(t, err)
				padding += report.PaddingRows

				dst, _ := store.Get(embName)
				start := rank * local
				n := max(min(start+local, tt.vocab)-start, 0)
				if n > 0 {
					assert.Equal(t, rows(t, src, start, start+n), rows(t, dst, 0, n), "rank %d", rank)
				}
				for _, v := range rows(t, dst, n, local) {
					assert.Zero(t, v, "rank %d padding", rank)
				}
			}
			assert.Equal(t, padded-tt.vocab, padding)
		})
	}
}

func TestLoadPaddedVocabTooLarge(t *testing.T) {
	src := ramp(t, tensor.Shape{10, 2}, 0)
	store := storeOf(t, map[string]tensor.Shape{embName: {4, 2}})

	_, err := Load(loader.NewSliceStream(entry(embName, src)), Partition{WorldSize: 2, Rank: 0}, store,
		WithRules(noHead()), quiet())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestLoadNormalizedHead(t *testing.T) {
	src := ramp(t, tensor.Shape{6, 4}, 1)
	store := storeOf(t, map[string]tensor.Shape{headName: {4, 4}})

	report, err := Load(loader.NewSliceStream(entry(headName, src)), Partition{WorldSize: 2, Rank: 1}, store, quiet())
	require.NoError(t, err)
	assert.True(t, report.Normalized)
	assert.Equal(t, 2, report.PaddingRows)

	dst, _ := store.Get(headName)
	for r := range 2 {
		var sum float64
		for _, v := range rows(t, dst, r, r+1) {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1, math.Sqrt(sum), 1e-6, "row %d", r)
	}
	assert.Equal(t, make([]float32, 8), rows(t, dst, 2, 4))

	// The checkpoint entry itself is not modified.
	assert.Equal(t, float32(1), src.Data()[0])
}

func TestLoadMissingNormalizedHead(t *testing.T) {
	norm := ramp(t, tensor.Shape{4}, 0)
	store := storeOf(t, map[string]tensor.Shape{normName: {4}})

	_, err := Load(loader.NewSliceStream(entry(normName, norm)), Single, store, quiet())

	var missing *MissingMandatoryStepError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, headName, missing.Name)
	assert.ErrorIs(t, err, ErrMissingMandatoryStep)
}

func TestLoadHeadWithoutDestination(t *testing.T) {
	// A head entry with nowhere to go does not count as normalized.
	src := ramp(t, tensor.Shape{4, 4}, 1)
	_, err := Load(loader.NewSliceStream(entry(headName, src)), Single, NewStore(), quiet())
	assert.ErrorIs(t, err, ErrMissingMandatoryStep)
}

func TestLoadDuplicateWrite(t *testing.T) {
	norm := ramp(t, tensor.Shape{4}, 0)
	emb := ramp(t, tensor.Shape{4, 2}, 0)

	tests := []struct {
		name    string
		entries []*loader.Entry
		store   map[string]tensor.Shape
		dest    string
	}{
		{"replicated", []*loader.Entry{entry(normName, norm), entry(normName, norm)}, map[string]tensor.Shape{normName: {4}}, normName},
		{"vocab", []*loader.Entry{entry(embName, emb), entry(embName, emb)}, map[string]tensor.Shape{embName: {4, 2}}, embName},
		{"head", []*loader.Entry{entry(headName, emb), entry(headName, emb)}, map[string]tensor.Shape{headName: {4, 2}}, headName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storeOf(t, tt.store)
			_, err := Load(loader.NewSliceStream(tt.entries...), Single, store, WithRules(noHead()), quiet())

			var dup *DuplicateWriteError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.dest, dup.Name)
			assert.ErrorIs(t, err, ErrDuplicateWrite)
		})
	}
}

func TestLoadUnwritten(t *testing.T) {
	norm := ramp(t, tensor.Shape{4}, 0)
	store := storeOf(t, map[string]tensor.Shape{
		normName:            {4},
		"model.norm.weight": {4},
		oName:               {4, 4},
	})

	_, err := Load(loader.NewSliceStream(entry(normName, norm)), Single, store, WithRules(noHead()), quiet())
	require.Error(t, err)

	var names []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var u *UnwrittenParameterError
		require.True(t, errors.As(e, &u))
		names = append(names, u.Name)
	}
	assert.ElementsMatch(t, []string{"model.norm.weight", oName}, names)
}

func TestLoadShapeMismatch(t *testing.T) {
	norm := ramp(t, tensor.Shape{5}, 0)
	store := storeOf(t, map[string]tensor.Shape{normName: {4}})

	_, err := Load(loader.NewSliceStream(entry(normName, norm)), Single, store, WithRules(noHead()), quiet())

	var mismatch *ShapeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, normName, mismatch.Name)
	assert.Equal(t, tensor.Shape{4}, mismatch.Expected)
	assert.Equal(t, tensor.Shape{5}, mismatch.Actual)
}

func TestLoadUnknownNames(t *testing.T) {
	extra := ramp(t, tensor.Shape{2}, 0)
	skipped := ramp(t, tensor.Shape{2}, 0)
	stream := func() loader.Stream {
		return loader.NewSliceStream(
			entry("model.layers.0.self_attn.rotary_emb.inv_freq", skipped),
			entry("model.extra.weight", extra),
		)
	}

	report, err := Load(stream(), Single, NewStore(), WithRules(noHead()), quiet())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []UnknownNameWarning{{Name: "model.extra.weight", Dest: "model.extra.weight"}}, report.Warnings)

	report, err = Load(stream(), Single, NewStore(), WithRules(noHead()), WithUnknownNames(UnknownIgnore), quiet())
	require.NoError(t, err)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 2, report.Entries)

	_, err = Load(stream(), Single, NewStore(), WithRules(noHead()), WithUnknownNames(UnknownError), quiet())
	var unknown *UnknownNameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "model.extra.weight", unknown.Name)
}

func TestParseUnknownNamePolicy(t *testing.T) {
	for _, p := range []UnknownNamePolicy{UnknownWarn, UnknownError, UnknownIgnore} {
		got, err := ParseUnknownNamePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParseUnknownNamePolicy(" ERROR ")
	require.NoError(t, err)
	assert.Equal(t, UnknownError, got)

	_, err = ParseUnknownNamePolicy("panic")
	require.Error(t, err)
}

func TestLoadInvalidPartition(t *testing.T) {
	_, err := Load(loader.NewSliceStream(), Partition{WorldSize: 2, Rank: 2}, NewStore(), quiet())
	assert.ErrorIs(t, err, ErrConfiguration)
}

type failingStream struct{}

func (s *failingStream) Next() (*loader.Entry, error) {
	return nil, errors.New("disk on fire")
}

func (s *failingStream) Close() error { return nil }

func TestLoadStreamError(t *testing.T) {
	_, err := Load(&failingStream{}, Single, NewStore(), quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestLoadAllPropagatesFailure(t *testing.T) {
	open := func(context.Context) (loader.Stream, error) {
		return loader.NewSliceStream(), nil
	}
	newStore := func(p Partition) (*Store, error) {
		if p.Rank == 1 {
			return nil, errors.New("out of memory")
		}
		return NewStore(), nil
	}

	_, _, err := LoadAll(context.Background(), 2, open, newStore, WithRules(noHead()), quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")

	_, _, err = LoadAll(context.Background(), 0, open, newStore)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadShardedSourceSize(t *testing.T) {
	tests := []struct {
		name     string
		entry    string
		src      tensor.Shape
		dest     string
		local    tensor.Shape
		expected tensor.Shape
	}{
		{"row too wide", oName, tensor.Shape{4, 12}, oName, tensor.Shape{4, 4}, tensor.Shape{4, 8}},
		{"row too narrow", oName, tensor.Shape{4, 6}, oName, tensor.Shape{4, 4}, tensor.Shape{4, 8}},
		{"column too tall", colName, tensor.Shape{12, 4}, colName, tensor.Shape{4, 4}, tensor.Shape{8, 4}},
		{"pair too tall", gateName, tensor.Shape{24, 4}, pairName, tensor.Shape{16, 4}, tensor.Shape{16, 4}},
		{"pair too short", upName, tensor.Shape{12, 4}, pairName, tensor.Shape{16, 4}, tensor.Shape{16, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storeOf(t, map[string]tensor.Shape{tt.dest: tt.local})
			_, err := Load(loader.NewSliceStream(entry(tt.entry, ramp(t, tt.src, 0))),
				Partition{WorldSize: 2, Rank: 0}, store, WithRules(columnRules()), quiet())

			var mismatch *ShapeMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.entry, mismatch.Name)
			assert.Equal(t, tt.expected, mismatch.Expected)
			assert.Equal(t, tt.src, mismatch.Actual)
		})
	}
}
