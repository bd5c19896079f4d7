package shard

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/tpload/internal/parallel"
	"github.com/born-ml/tpload/internal/tensor"
)

// normEpsilon is the smallest row norm divided by.
const normEpsilon = 1e-12

// NormalizeRows returns a copy of t with every row along dimension 0 scaled
// to unit L2 norm. Norms below 1e-12 are clamped, so all-zero rows stay zero.
// The math runs in float64 and the result is rounded back to t's data type.
// Rows are processed in parallel chunks.
func NormalizeRows(t *tensor.RawTensor) *tensor.RawTensor {
	out := t.Clone()
	shape := out.Shape()
	if len(shape) == 0 || shape[0] == 0 {
		return out
	}

	width := out.NumElements() / shape[0]
	data := out.Data()
	parallel.Chunks(shape[0], parallel.DefaultConfig(), func(start, end int) {
		row := make([]float64, width)
		for r := start; r < end; r++ {
			dst := data[r*width : (r+1)*width]
			for i, v := range dst {
				row[i] = float64(v)
			}

			norm := math.Max(floats.Norm(row, 2), normEpsilon)
			floats.Scale(1/norm, row)

			for i, v := range row {
				dst[i] = float32(v)
			}
		}
		out.DType().Round(data[start*width : end*width])
	})
	return out
}
