package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowViewSharesMemory(t *testing.T) {
	raw := seq(t, Shape{4, 3})

	view, err := raw.RowView(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, view.Shape())
	assert.Equal(t, []float32{3, 4, 5, 6, 7, 8}, view.Data())

	view.Data()[0] = 42
	assert.Equal(t, float32(42), raw.At(1, 0))
}

func TestRowViewBounds(t *testing.T) {
	raw := seq(t, Shape{4, 3})

	empty, err := raw.RowView(4, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumElements())

	_, err = raw.RowView(3, 5)
	require.Error(t, err)
	_, err = raw.RowView(2, 1)
	require.Error(t, err)
}

func TestNarrow(t *testing.T) {
	raw := seq(t, Shape{2, 4})

	tests := []struct {
		name          string
		dim, start, n int
		want          []float32
		shape         Shape
	}{
		{"rows", 0, 1, 1, []float32{4, 5, 6, 7}, Shape{1, 4}},
		{"columns", 1, 2, 2, []float32{2, 3, 6, 7}, Shape{2, 2}},
		{"empty", 1, 4, 0, []float32{}, Shape{2, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := raw.Narrow(tt.dim, tt.start, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, out.Shape())
			assert.Equal(t, tt.want, out.Data())
		})
	}

	_, err := raw.Narrow(1, 3, 2)
	require.Error(t, err)
	_, err = raw.Narrow(2, 0, 1)
	require.Error(t, err)
}

func TestNarrowMiddleDim(t *testing.T) {
	raw := seq(t, Shape{3, 4, 2})

	out, err := raw.Narrow(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2, 2}, out.Shape())
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				assert.Equal(t, raw.At(i, j+1, k), out.At(i, j, k))
			}
		}
	}
}

func TestReshape(t *testing.T) {
	raw := seq(t, Shape{3, 4})

	view, err := raw.Reshape(Shape{3, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, float32(7), view.At(1, 1, 1))

	_, err = raw.Reshape(Shape{5, 2})
	require.Error(t, err)
}

func TestCopyFrom(t *testing.T) {
	dst, err := NewRaw(Shape{2, 2}, Float32)
	require.NoError(t, err)

	require.NoError(t, dst.CopyFrom(seq(t, Shape{2, 2})))
	assert.Equal(t, []float32{0, 1, 2, 3}, dst.Data())

	require.Error(t, dst.CopyFrom(seq(t, Shape{4, 1})))
}

func TestCatInvertsNarrow(t *testing.T) {
	raw := seq(t, Shape{6, 3})

	var parts []*RawTensor
	for i := 0; i < 3; i++ {
		part, err := raw.Narrow(0, i*2, 2)
		require.NoError(t, err)
		parts = append(parts, part)
	}

	joined, err := Cat(parts...)
	require.NoError(t, err)
	assert.Equal(t, raw.Data(), joined.Data())

	_, err = Cat(seq(t, Shape{1, 3}), seq(t, Shape{1, 2}))
	require.Error(t, err)
}

func TestConcatInvertsNarrowAlongColumns(t *testing.T) {
	raw := seq(t, Shape{3, 6})

	var parts []*RawTensor
	for i := 0; i < 2; i++ {
		part, err := raw.Narrow(1, i*3, 3)
		require.NoError(t, err)
		parts = append(parts, part)
	}

	joined, err := Concat(1, parts...)
	require.NoError(t, err)
	assert.Equal(t, raw.Shape(), joined.Shape())
	assert.Equal(t, raw.Data(), joined.Data())

	_, err = Concat(2, parts...)
	require.Error(t, err)
}
