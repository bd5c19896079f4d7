package loader

import (
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tpload/internal/tensor"
)

func TestTorchTensor_Contiguous(t *testing.T) {
	pt := &pytorch.Tensor{
		Source: &pytorch.HalfStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{2, 3},
		Stride: []int{3, 1},
	}

	raw, err := torchTensor(pt)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float16, raw.DType())
	assert.Equal(t, tensor.Shape{2, 3}, raw.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, raw.Data())
}

func TestTorchTensor_TransposedView(t *testing.T) {
	// Storage holds [[0, 1, 2], [3, 4, 5]]; the view is its transpose,
	// offset by one element into a shared storage.
	pt := &pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{-1, 0, 1, 2, 3, 4, 5}},
		StorageOffset: 1,
		Size:          []int{3, 2},
		Stride:        []int{1, 3},
	}

	raw, err := torchTensor(pt)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, raw.DType())
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, raw.Data())
}

func TestTorchTensor_Errors(t *testing.T) {
	_, err := torchTensor(&pytorch.Tensor{
		Source: &pytorch.LongStorage{Data: []int64{1}},
		Size:   []int{1},
		Stride: []int{1},
	})
	require.Error(t, err)

	_, err = torchTensor(&pytorch.Tensor{
		Source: &pytorch.BFloat16Storage{Data: []float32{1, 2}},
		Size:   []int{3},
		Stride: []int{1},
	})
	require.Error(t, err)
}
