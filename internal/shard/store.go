package shard

import (
	"fmt"
	"sort"

	"github.com/born-ml/tpload/internal/tensor"
)

// Store maps parameter names to pre-allocated destination tensors. The
// loader writes into existing storage and never replaces a tensor.
type Store struct {
	params map[string]*tensor.RawTensor
	order  []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{params: make(map[string]*tensor.RawTensor)}
}

// Add registers a destination tensor under name.
func (s *Store) Add(name string, t *tensor.RawTensor) error {
	if _, ok := s.params[name]; ok {
		return fmt.Errorf("parameter %q already registered", name)
	}
	if len(t.Shape()) == 0 {
		return fmt.Errorf("parameter %q: scalar destinations are not supported", name)
	}
	s.params[name] = t
	s.order = append(s.order, name)
	return nil
}

// Alloc creates a zero-filled destination of the given shape and type.
func (s *Store) Alloc(name string, shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	if err := s.Add(name, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the destination registered under name.
func (s *Store) Get(name string) (*tensor.RawTensor, bool) {
	t, ok := s.params[name]
	return t, ok
}

// Names returns parameter names in registration order.
func (s *Store) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of parameters.
func (s *Store) Len() int {
	return len(s.order)
}

// ByteSize returns the total size of all parameters in their data types.
func (s *Store) ByteSize() int64 {
	var n int64
	for _, t := range s.params {
		n += int64(t.ByteSize())
	}
	return n
}

// Tensors returns the underlying map. Callers must not add or remove keys.
func (s *Store) Tensors() map[string]*tensor.RawTensor {
	return s.params
}

// span is a half-open row interval.
type span struct {
	start, end int
	source     string
}

// coverage tracks which rows of each destination have been written during
// one load.
type coverage struct {
	spans map[string][]span // sorted by start, non-overlapping
}

func newCoverage() *coverage {
	return &coverage{spans: make(map[string][]span)}
}

// mark records rows [start, end) of dest as written by source. It fails
// without recording anything if any of those rows were already written.
func (c *coverage) mark(dest, source string, start, end int) error {
	if start >= end {
		return nil
	}
	spans := c.spans[dest]
	i := sort.Search(len(spans), func(i int) bool { return spans[i].end > start })
	if i < len(spans) && spans[i].start < end {
		return &DuplicateWriteError{
			Name:   dest,
			Source: source,
			Start:  max(start, spans[i].start),
			End:    min(end, spans[i].end),
		}
	}

	spans = append(spans, span{})
	copy(spans[i+1:], spans[i:])
	spans[i] = span{start: start, end: end, source: source}
	c.spans[dest] = spans
	return nil
}

// gaps returns the row intervals of a destination with rows rows that were
// never marked.
func (c *coverage) gaps(dest string, rows int) [][2]int {
	var out [][2]int
	next := 0
	for _, s := range c.spans[dest] {
		if s.start > next {
			out = append(out, [2]int{next, s.start})
		}
		next = s.end
	}
	if next < rows {
		out = append(out, [2]int{next, rows})
	}
	return out
}
