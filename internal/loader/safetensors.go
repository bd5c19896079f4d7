package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/tpload/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorsDType represents SafeTensors data types.
type SafeTensorsDType string

// SafeTensors dtypes. Only the floating point ones can be streamed.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string         `json:"__metadata__"`
	Tensors  map[string]SafeTensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for SafeTensorsHeader.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Everything except __metadata__ is a tensor.
	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// SafeTensorsReader reads a SafeTensors file through a read-only memory map.
type SafeTensorsReader struct {
	path       string
	file       *os.File
	data       []byte // mapped file
	header     SafeTensorsHeader
	dataOffset int64 // Offset where tensor data starts
	closed     bool
}

// NewSafeTensorsReader maps path and validates its header.
//
// Important: Always call Close() when done to unmap the file (use defer).
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	r := &SafeTensorsReader{
		path: path,
		file: file,
		data: data,
	}
	if err := r.parseHeader(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return r, nil
}

func (r *SafeTensorsReader) parseHeader() error {
	size := int64(len(r.data))
	if size < 8 {
		return fmt.Errorf("file too small: %d bytes", size)
	}

	headerSize := binary.LittleEndian.Uint64(r.data[:8])
	if headerSize > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerEnd := 8 + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if headerEnd > size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, size)
	}

	if err := json.Unmarshal(r.data[8:headerEnd], &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}
	r.dataOffset = headerEnd

	for name := range r.header.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
	}
	if err := ValidateTensorOffsets(r.header.Tensors, size-headerEnd); err != nil {
		return fmt.Errorf("header validation failed: %w", err)
	}

	return nil
}

// Close unmaps and closes the file.
func (r *SafeTensorsReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Path returns the file the reader was opened on.
func (r *SafeTensorsReader) Path() string {
	return r.path
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in the file, sorted.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData returns the raw bytes of a tensor.
// The slice points into the mapped file and is valid only while the reader is open.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	end := r.dataOffset + info.DataOffsets[1]
	return r.data[start:end], nil
}

// LoadTensor decodes a floating point tensor into a float32 RawTensor.
func (r *SafeTensorsReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype, err := tensor.ParseDataType(string(info.DType))
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	raw, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}

	data, err := dtype.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	t, err := tensor.FromFloat32(data, tensor.Shape(info.Shape), dtype)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return t, nil
}

// safeTensorsStream walks one or more SafeTensors files in order. Only one
// file is mapped at a time.
type safeTensorsStream struct {
	paths  []string
	seen   map[string]string
	reader *SafeTensorsReader
	names  []string
}

func newSafeTensorsStream(paths ...string) *safeTensorsStream {
	return &safeTensorsStream{
		paths: paths,
		seen:  make(map[string]string),
	}
}

// Next returns the next tensor, opening the next file when the current one is exhausted.
func (s *safeTensorsStream) Next() (*Entry, error) {
	for len(s.names) == 0 {
		if err := s.advance(); err != nil {
			return nil, err
		}
	}

	name := s.names[0]
	s.names = s.names[1:]

	if prev, ok := s.seen[name]; ok {
		return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateTensor, name, prev, s.reader.Path())
	}
	s.seen[name] = s.reader.Path()

	t, err := s.reader.LoadTensor(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.reader.Path(), err)
	}
	return &Entry{Name: name, Tensor: t}, nil
}

func (s *safeTensorsStream) advance() error {
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			return err
		}
		s.reader = nil
	}
	if len(s.paths) == 0 {
		return io.EOF
	}

	r, err := NewSafeTensorsReader(s.paths[0])
	if err != nil {
		return err
	}
	if err := r.VerifyChecksum(); err != nil {
		_ = r.Close()
		return err
	}
	s.paths = s.paths[1:]
	s.reader = r
	s.names = r.TensorNames()
	return nil
}

// Close releases the currently mapped file.
func (s *safeTensorsStream) Close() error {
	s.paths = nil
	s.names = nil
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
