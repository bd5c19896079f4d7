package shard

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/tensor"
)

// ramp returns a float32 tensor whose elements are offset, offset+1, ...
func ramp(t *testing.T, shape tensor.Shape, offset float32) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = offset + float32(i)
	}
	raw, err := tensor.FromFloat32(data, shape, tensor.Float32)
	require.NoError(t, err)
	return raw
}

func entry(name string, t *tensor.RawTensor) *loader.Entry {
	return &loader.Entry{Name: name, Tensor: t}
}

// storeOf allocates a float32 store from name/shape pairs.
func storeOf(t *testing.T, params map[string]tensor.Shape) *Store {
	t.Helper()
	s := NewStore()
	for name, shape := range params {
		_, err := s.Alloc(name, shape, tensor.Float32)
		require.NoError(t, err)
	}
	return s
}

// noHead returns Baichuan rules without the mandatory lm_head normalization,
// for tests that exercise a single category.
func noHead() *Rules {
	r := BaichuanRules()
	r.NormalizedHead = ""
	return r
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// rows returns rows [start, end) of t as a flat slice.
func rows(t *testing.T, raw *tensor.RawTensor, start, end int) []float32 {
	t.Helper()
	v, err := raw.RowView(start, end)
	require.NoError(t, err)
	return v.Data()
}
