// Package tensor provides the dense host tensors that checkpoint entries and
// parameter store slots are made of.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DataType is the element type a tensor was stored with on disk.
// Values are always held as float32 in memory; the data type records the
// precision they originally had and controls rounding in Round.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float16
	BFloat16
)

// Size returns the on-disk byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16, BFloat16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	default:
		return "unknown"
	}
}

// Reduced reports whether the data type has less precision than float32.
func (dt DataType) Reduced() bool {
	return dt == Float16 || dt == BFloat16
}

// ParseDataType maps the dtype strings used by safetensors headers.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "F32", "float32":
		return Float32, nil
	case "F16", "float16":
		return Float16, nil
	case "BF16", "bfloat16":
		return BFloat16, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", s)
	}
}

// Round rounds every value in data to the precision of dt, in place.
func (dt DataType) Round(data []float32) {
	switch dt {
	case Float16:
		for i, v := range data {
			data[i] = float16.Fromfloat32(v).Float32()
		}
	case BFloat16:
		copy(data, bfloat16.DecodeFloat32(encodeBFloat16(data)))
	}
}

// Decode converts little-endian raw bytes of type dt into float32 values.
func (dt DataType) Decode(raw []byte) ([]float32, error) {
	if len(raw)%dt.Size() != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a multiple of element size %d", dt, len(raw), dt.Size())
	}

	switch dt {
	case Float32:
		f32s := make([]float32, len(raw)/4)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return f32s, nil
	case Float16:
		f32s := make([]float32, len(raw)/2)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return f32s, nil
	case BFloat16:
		return bfloat16.DecodeFloat32(raw), nil
	default:
		return nil, fmt.Errorf("unknown data type: %d", dt)
	}
}

// Encode converts float32 values into little-endian bytes of type dt.
func (dt DataType) Encode(data []float32) []byte {
	switch dt {
	case Float16:
		raw := make([]byte, len(data)*2)
		for i, v := range data {
			binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
		}
		return raw
	case BFloat16:
		return encodeBFloat16(data)
	default:
		raw := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
		}
		return raw
	}
}

// bfloat16Bits rounds v to the nearest bfloat16, ties to even. NaN stays a
// quiet NaN.
func bfloat16Bits(v float32) uint16 {
	u := math.Float32bits(v)
	if math.IsNaN(float64(v)) {
		return uint16(u>>16) | 0x40
	}
	return uint16((u + 0x7FFF + (u>>16)&1) >> 16)
}

func encodeBFloat16(data []float32) []byte {
	raw := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(raw[i*2:], bfloat16Bits(v))
	}
	return raw
}

// SafeTensorsName returns the dtype string used in SafeTensors headers.
func (dt DataType) SafeTensorsName() string {
	switch dt {
	case Float16:
		return "F16"
	case BFloat16:
		return "BF16"
	default:
		return "F32"
	}
}
