// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense host tensors checkpoints are read into
// and parameter stores are made of.
//
// Values are held as float32 in memory. The DataType records the precision
// a tensor had on disk and is used when it is written back.
//
// Example:
//
//	t, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.BFloat16)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	row, _ := t.RowView(1, 2) // shares memory with t
package tensor

import "github.com/born-ml/tpload/internal/tensor"

// RawTensor is a dense row-major tensor.
type RawTensor = tensor.RawTensor

// Shape is a tensor shape, outermost dimension first.
type Shape = tensor.Shape

// DataType is the element type a tensor is stored with on disk.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32  DataType = tensor.Float32
	Float16  DataType = tensor.Float16
	BFloat16 DataType = tensor.BFloat16
)

// New creates a zero-filled tensor.
func New(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 wraps data as a tensor of the given shape without copying it.
func FromFloat32(data []float32, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, dtype)
}

// ParseDataType maps SafeTensors and PyTorch dtype names ("BF16", "float16").
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Concat joins tensors along dim.
func Concat(dim int, tensors ...*RawTensor) (*RawTensor, error) {
	return tensor.Concat(dim, tensors...)
}
