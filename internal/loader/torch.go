package loader

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/tpload/internal/tensor"
)

// torchStream walks PyTorch pickled state dicts. A pickle cannot be read
// lazily, so each file is unpickled whole when the stream reaches it.
type torchStream struct {
	paths   []string
	current string
	dict    *types.Dict
	keys    []interface{}
	seen    map[string]string
}

func newTorchStream(paths ...string) *torchStream {
	return &torchStream{
		paths: paths,
		seen:  make(map[string]string),
	}
}

// Next returns the next tensor in state dict order.
func (s *torchStream) Next() (*Entry, error) {
	for len(s.keys) == 0 {
		if err := s.advance(); err != nil {
			return nil, err
		}
	}

	key := s.keys[0]
	s.keys = s.keys[1:]

	name, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("%s: non-string state dict key %v", s.current, key)
	}
	if err := ValidateTensorName(name); err != nil {
		return nil, fmt.Errorf("%s: %w", s.current, err)
	}
	if prev, ok := s.seen[name]; ok {
		return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateTensor, name, prev, s.current)
	}
	s.seen[name] = s.current

	pt, ok := s.dict.MustGet(key).(*pytorch.Tensor)
	if !ok {
		return nil, fmt.Errorf("%s: %s is not a tensor", s.current, name)
	}

	t, err := torchTensor(pt)
	if err != nil {
		return nil, fmt.Errorf("%s: tensor %s: %w", s.current, name, err)
	}
	return &Entry{Name: name, Tensor: t}, nil
}

func (s *torchStream) advance() error {
	s.dict = nil
	if len(s.paths) == 0 {
		return io.EOF
	}

	path := s.paths[0]
	s.paths = s.paths[1:]

	slog.Debug("unpickling torch checkpoint", "path", path)
	m, err := pytorch.Load(path)
	if err != nil {
		return fmt.Errorf("error unpickling %s: %w", path, err)
	}

	dict, ok := m.(*types.Dict)
	if !ok {
		return fmt.Errorf("%s: unexpected state dict type %T", path, m)
	}

	s.current = path
	s.dict = dict
	s.keys = dict.Keys()
	return nil
}

// Close drops the unpickled state dict.
func (s *torchStream) Close() error {
	s.paths = nil
	s.keys = nil
	s.dict = nil
	return nil
}

// torchTensor gathers a possibly strided torch view into a dense tensor.
func torchTensor(pt *pytorch.Tensor) (*tensor.RawTensor, error) {
	var (
		storage []float32
		dtype   tensor.DataType
	)
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		storage, dtype = s.Data, tensor.Float32
	case *pytorch.HalfStorage:
		storage, dtype = s.Data, tensor.Float16
	case *pytorch.BFloat16Storage:
		storage, dtype = s.Data, tensor.BFloat16
	default:
		return nil, fmt.Errorf("unknown data type: %T", s)
	}

	shape := tensor.Shape(append([]int(nil), pt.Size...))
	if len(pt.Stride) != len(shape) {
		return nil, fmt.Errorf("stride %v does not match size %v", pt.Stride, pt.Size)
	}

	n := shape.NumElements()
	data := make([]float32, n)
	index := make([]int, len(shape))
	for i := 0; i < n; i++ {
		off := pt.StorageOffset
		for d, idx := range index {
			off += idx * pt.Stride[d]
		}
		if off < 0 || off >= len(storage) {
			return nil, fmt.Errorf("element %d at storage offset %d outside storage of %d", i, off, len(storage))
		}
		data[i] = storage[off]

		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}

	return tensor.FromFloat32(data, shape, dtype)
}
