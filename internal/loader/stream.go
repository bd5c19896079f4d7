package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/tpload/internal/tensor"
)

// Entry is one named tensor read from a checkpoint.
// Consumers must treat the tensor as read-only.
type Entry struct {
	Name   string
	Tensor *tensor.RawTensor
}

// Stream yields checkpoint entries one at a time.
type Stream interface {
	// Next returns the next entry, or io.EOF once the checkpoint is exhausted.
	Next() (*Entry, error)

	// Close releases any files held by the stream.
	Close() error
}

// Format represents the checkpoint file format.
type Format int

// Supported checkpoint formats.
const (
	FormatUnknown Format = iota
	FormatSafeTensors
	FormatPyTorch
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatSafeTensors:
		return "SafeTensors"
	case FormatPyTorch:
		return "PyTorch"
	default:
		return "Unknown"
	}
}

// dirPatterns lists checkpoint file globs in lookup order. The first pattern
// that matches wins.
var dirPatterns = []struct {
	glob   string
	format Format
}{
	{"model-*-of-*.safetensors", FormatSafeTensors},
	{"model.safetensors", FormatSafeTensors},
	{"pytorch_model-*-of-*.bin", FormatPyTorch},
	{"pytorch_model.bin", FormatPyTorch},
	{"consolidated.*.pth", FormatPyTorch},
}

// DetectDir finds the checkpoint files in dir.
func DetectDir(dir string) (Format, []string, error) {
	for _, p := range dirPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, p.glob))
		if err != nil {
			return FormatUnknown, nil, err
		}
		if len(matches) > 0 {
			return p.format, matches, nil
		}
	}
	return FormatUnknown, nil, fmt.Errorf("%w: no checkpoint files in %s", ErrUnknownFormat, dir)
}

// DetectFile returns the format of a single checkpoint file from its extension.
func DetectFile(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".safetensors":
		return FormatSafeTensors
	case ".bin", ".pth", ".pt":
		return FormatPyTorch
	default:
		return FormatUnknown
	}
}

// Open opens a checkpoint at path, which may be a single file or a model
// directory, and auto-detects the format.
//
// Example:
//
//	stream, err := loader.Open("path/to/model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
func Open(path string) (Stream, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return OpenDir(path)
	}
	return OpenFiles(DetectFile(path), path)
}

// OpenDir opens the checkpoint stored in a Hugging Face model directory.
func OpenDir(dir string) (Stream, error) {
	format, paths, err := DetectDir(dir)
	if err != nil {
		return nil, err
	}
	return OpenFiles(format, paths...)
}

// OpenFiles streams the given files of one format in order.
func OpenFiles(format Format, paths ...string) (Stream, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no checkpoint files given")
	}
	switch format {
	case FormatSafeTensors:
		return newSafeTensorsStream(paths...), nil
	case FormatPyTorch:
		return newTorchStream(paths...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, paths[0])
	}
}

// SliceStream streams entries held in memory.
type SliceStream struct {
	entries []*Entry
}

// NewSliceStream returns a stream over entries, in order.
func NewSliceStream(entries ...*Entry) *SliceStream {
	return &SliceStream{entries: entries}
}

// Next returns the next entry or io.EOF.
func (s *SliceStream) Next() (*Entry, error) {
	if len(s.entries) == 0 {
		return nil, io.EOF
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	return e, nil
}

// Close drops any remaining entries.
func (s *SliceStream) Close() error {
	s.entries = nil
	return nil
}

// ReadAll drains a stream into memory. It is meant for small checkpoints and
// reassembly checks, not for model loading.
func ReadAll(s Stream) ([]*Entry, error) {
	var entries []*Entry
	for {
		e, err := s.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
