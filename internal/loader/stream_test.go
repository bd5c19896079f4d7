package loader

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDir(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		format Format
		count  int
	}{
		{"sharded safetensors wins", []string{"model-00001-of-00002.safetensors", "model-00002-of-00002.safetensors", "pytorch_model.bin"}, FormatSafeTensors, 2},
		{"single safetensors", []string{"model.safetensors"}, FormatSafeTensors, 1},
		{"sharded torch", []string{"pytorch_model-00001-of-00003.bin", "pytorch_model-00002-of-00003.bin", "pytorch_model-00003-of-00003.bin"}, FormatPyTorch, 3},
		{"consolidated", []string{"consolidated.00.pth"}, FormatPyTorch, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o600))
			}

			format, paths, err := DetectDir(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Len(t, paths, tt.count)
		})
	}

	_, _, err := DetectDir(t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDetectFile(t *testing.T) {
	assert.Equal(t, FormatSafeTensors, DetectFile("a/model.safetensors"))
	assert.Equal(t, FormatPyTorch, DetectFile("pytorch_model.BIN"))
	assert.Equal(t, FormatPyTorch, DetectFile("consolidated.00.pth"))
	assert.Equal(t, FormatUnknown, DetectFile("model.gguf"))
}

func TestOpenSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.safetensors")
	createTestSafeTensorsFile(t, path)

	stream, err := Open(path)
	require.NoError(t, err)
	defer stream.Close()

	entries, err := ReadAll(stream)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream(&Entry{Name: "a"}, &Entry{Name: "b"})

	e, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", e.Name)

	require.NoError(t, s.Close())
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
