package shard

import (
	"fmt"

	ptensor "github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"github.com/born-ml/tpload/internal/tensor"
)

// sliceHeads cuts this rank's heads out of a fused QKV projection.
//
// The source [3*heads*headDim, hidden] is viewed as [3, heads, headDim, hidden],
// heads [rank*local, (rank+1)*local) are kept for each of q, k and v, and the
// result is flattened back to [3*local*headDim, hidden].
func sliceHeads(name string, src *tensor.RawTensor, heads int, part Partition) (*tensor.RawTensor, error) {
	if heads <= 0 {
		return nil, &ConfigurationError{Name: name, Details: "attention head count not configured"}
	}
	start, end, err := part.Range(heads)
	if err != nil {
		return nil, &ConfigurationError{
			Name:    name,
			Details: fmt.Sprintf("%d attention heads are not divisible by world size %d", heads, part.WorldSize),
		}
	}

	shape := src.Shape()
	if len(shape) != 2 || shape[0]%(3*heads) != 0 {
		return nil, &ShapeMismatchError{
			Name:     name,
			Expected: tensor.Shape{3 * heads, -1},
			Actual:   shape,
		}
	}
	headDim := shape[0] / (3 * heads)
	hidden := shape[1]
	local := end - start

	var tt ptensor.Tensor = ptensor.New(
		ptensor.WithShape(3, heads, headDim, hidden),
		ptensor.WithBacking(src.Data()),
	)
	tt, err = tt.Slice(nil, ptensor.S(start, end), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: slice heads [%d, %d): %w", name, start, end, err)
	}
	tt = ptensor.Materialize(tt)

	if err := tt.Reshape(tt.Shape().TotalSize()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	dense, ok := tt.(*ptensor.Dense)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected tensor type %T", name, tt)
	}
	data, err := native.VectorF32(dense)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return tensor.FromFloat32(data, tensor.Shape{3 * local * headDim, hidden}, src.DType())
}
