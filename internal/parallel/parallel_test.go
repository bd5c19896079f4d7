package parallel

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(n int, cfg Config) [][2]int {
	var (
		mu     sync.Mutex
		chunks [][2]int
	)
	Chunks(n, cfg, func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, [2]int{start, end})
	})
	sort.Slice(chunks, func(i, j int) bool { return chunks[i][0] < chunks[j][0] })
	return chunks
}

func TestChunksCover(t *testing.T) {
	for _, n := range []int{1, 7, 255, 512, 1000, 125696} {
		chunks := collect(n, Config{Workers: 8, MinRows: 64})

		next := 0
		for _, c := range chunks {
			assert.Equal(t, next, c[0], "n=%d", n)
			assert.Less(t, c[0], c[1], "n=%d", n)
			next = c[1]
		}
		assert.Equal(t, n, next, "n=%d", n)
		assert.LessOrEqual(t, len(chunks), 8, "n=%d", n)
	}
}

func TestChunksSequential(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 1000}}, collect(1000, Config{Workers: 1, MinRows: 1}))
	assert.Equal(t, [][2]int{{0, 100}}, collect(100, Config{Workers: 8, MinRows: 64}))
	assert.Empty(t, collect(0, DefaultConfig()))
}

func TestChunksMinRows(t *testing.T) {
	chunks := collect(1000, Config{Workers: 100, MinRows: 300})
	assert.Equal(t, [][2]int{{0, 300}, {300, 600}, {600, 900}, {900, 1000}}, chunks)
}

func BenchmarkChunks(b *testing.B) {
	data := make([]float64, 1<<20)
	cfg := DefaultConfig()

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			Chunks(len(data), cfg, func(start, end int) {
				for j := start; j < end; j++ {
					data[j] += 1
				}
			})
		}
	})

	b.Run("sequential", func(b *testing.B) {
		seq := Config{Workers: 1}
		for i := 0; i < b.N; i++ {
			Chunks(len(data), seq, func(start, end int) {
				for j := start; j < end; j++ {
					data[j] += 1
				}
			})
		}
	})
}
