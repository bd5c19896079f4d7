package tensor

import (
	"fmt"
)

// RowView returns rows [start, end) along dimension 0 as a view.
// The view shares memory with r, so writes through it land in r.
func (r *RawTensor) RowView(start, end int) (*RawTensor, error) {
	if len(r.shape) == 0 {
		return nil, fmt.Errorf("row view of scalar tensor")
	}
	if start < 0 || end < start || end > r.shape[0] {
		return nil, fmt.Errorf("row range [%d, %d) out of bounds for %d rows", start, end, r.shape[0])
	}

	rowSize := 1
	if len(r.shape) > 1 {
		rowSize = r.stride[0]
	}
	shape := r.shape.With(0, end-start)
	return &RawTensor{
		data:   r.data[start*rowSize : end*rowSize],
		shape:  shape,
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
	}, nil
}

// Reshape returns a view with a new shape and the same number of elements.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.ValidateAllowEmpty(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
	}, nil
}

// Narrow copies the slice [start, start+length) of dimension dim into a new
// contiguous tensor.
func (r *RawTensor) Narrow(dim, start, length int) (*RawTensor, error) {
	if dim < 0 || dim >= len(r.shape) {
		return nil, fmt.Errorf("dimension %d out of range for %d-d tensor", dim, len(r.shape))
	}
	if start < 0 || length < 0 || start+length > r.shape[dim] {
		return nil, fmt.Errorf("narrow [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, dim, r.shape[dim])
	}

	shape := r.shape.With(dim, length)
	out := &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape,
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
	}
	if length == 0 {
		return out, nil
	}

	// outer: product of dims before dim; inner: contiguous block per outer index.
	outer := 1
	for _, d := range r.shape[:dim] {
		outer *= d
	}
	inner := r.stride[dim]
	srcBlock := r.shape[dim] * inner
	dstBlock := length * inner
	for o := 0; o < outer; o++ {
		src := r.data[o*srcBlock+start*inner : o*srcBlock+(start+length)*inner]
		copy(out.data[o*dstBlock:(o+1)*dstBlock], src)
	}
	return out, nil
}

// CopyFrom copies src into r. Shapes must match exactly.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) {
		return fmt.Errorf("shape mismatch: destination %v, source %v", r.shape, src.shape)
	}
	copy(r.data, src.data)
	return nil
}

// Cat concatenates tensors along dimension 0.
func Cat(tensors ...*RawTensor) (*RawTensor, error) {
	return Concat(0, tensors...)
}

// Concat concatenates tensors along dim. All other dimensions must match.
func Concat(dim int, tensors ...*RawTensor) (*RawTensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat: no tensors")
	}
	first := tensors[0]
	if dim < 0 || dim >= len(first.shape) {
		return nil, fmt.Errorf("concat: dimension %d out of range for %d-d tensor", dim, len(first.shape))
	}

	size := 0
	for i, t := range tensors {
		if len(t.shape) != len(first.shape) || !t.shape.With(dim, 0).Equal(first.shape.With(dim, 0)) {
			return nil, fmt.Errorf("concat: tensor %d has shape %v, incompatible with %v along dimension %d", i, t.shape, first.shape, dim)
		}
		size += t.shape[dim]
	}

	shape := first.shape.With(dim, size)
	out := &RawTensor{
		data:   make([]float32, 0, shape.NumElements()),
		shape:  shape,
		stride: shape.ComputeStrides(),
		dtype:  first.dtype,
	}

	outer := 1
	for _, d := range first.shape[:dim] {
		outer *= d
	}
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			block := t.shape[dim] * t.stride[dim]
			out.data = append(out.data, t.data[o*block:(o+1)*block]...)
		}
	}
	return out, nil
}
