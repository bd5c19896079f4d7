package tensor

import (
	"fmt"
)

// RawTensor is a dense, row-major tensor held as float32 values.
// Views created by RowView and Reshape share the backing slice with their parent,
// which is how the shard loader writes into a sub-range of a destination slot.
type RawTensor struct {
	data   []float32
	shape  Shape
	stride []int
	dtype  DataType
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// FromFloat32 wraps data as a tensor of the given shape. The slice is not copied.
func FromFloat32(data []float32, shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.ValidateAllowEmpty(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, shape.NumElements())
	}

	return &RawTensor{
		data:   data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the size the tensor occupies in its on-disk data type.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the backing slice.
// WARNING: Direct access to underlying memory. Writes are visible to every view.
func (r *RawTensor) Data() []float32 {
	return r.data
}

// At returns the element at the given indices.
func (r *RawTensor) At(indices ...int) float32 {
	return r.data[r.offset(indices)]
}

// Set stores value at the given indices.
func (r *RawTensor) Set(value float32, indices ...int) {
	r.data[r.offset(indices)] = value
}

func (r *RawTensor) offset(indices []int) int {
	if len(indices) != len(r.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(r.shape), len(indices)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= r.shape[i] {
			panic(fmt.Sprintf("index %d out of range for dimension %d of size %d", idx, i, r.shape[i]))
		}
		off += idx * r.stride[i]
	}
	return off
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
	}
}

// String returns a short description, not the values.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor(%v, %s)", r.shape, r.dtype)
}
