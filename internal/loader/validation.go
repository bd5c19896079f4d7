package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/tpload/internal/tensor"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// ValidateTensorOffsets checks every tensor's data region for overlaps,
// out-of-bounds access and a byte size that disagrees with its shape.
func ValidateTensorOffsets(tensors map[string]SafeTensorInfo, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	type region struct {
		name       string
		start, end int64
	}
	regions := make([]region, 0, len(tensors))
	for name, info := range tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", start, end),
			}
		}
		if end > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  name,
				Details: fmt.Sprintf("end %d > data_size %d", end, dataSize),
			}
		}
		if dt, err := tensor.ParseDataType(string(info.DType)); err == nil {
			want := int64(tensor.Shape(info.Shape).NumElements() * dt.Size())
			if end-start != want {
				return &ValidationError{
					Type:    "size_mismatch",
					Tensor:  name,
					Details: fmt.Sprintf("%d bytes for shape %v of %s, want %d", end-start, info.Shape, dt, want),
				}
			}
		}
		regions = append(regions, region{name: name, start: start, end: end})
	}

	// Sort by offset for linear overlap detection.
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].start < regions[j].start
	})
	for i := 0; i+1 < len(regions); i++ {
		cur, next := regions[i], regions[i+1]
		if cur.end > next.start {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  cur.name,
				Tensor2: next.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", cur.start, cur.end, next.start, next.end),
			}
		}
	}

	return nil
}

// ValidateTensorName rejects names that could not come from a module path.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{
			Type:    "invalid_name",
			Details: "empty tensor name",
		}
	}

	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}

	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..'",
		}
	}

	if strings.ContainsAny(name, "/\\\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator or null byte",
		}
	}

	return nil
}
