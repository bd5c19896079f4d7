package shard

import "fmt"

// DefaultVocabPadding is the multiple vocabularies are padded to before
// being split across ranks.
const DefaultVocabPadding = 64

// Partition identifies one rank of a tensor-parallel group.
type Partition struct {
	WorldSize int
	Rank      int
}

// Single is the partition of an unsharded load.
var Single = Partition{WorldSize: 1, Rank: 0}

// Validate checks WorldSize >= 1 and 0 <= Rank < WorldSize.
func (p Partition) Validate() error {
	if p.WorldSize < 1 {
		return &ConfigurationError{Details: fmt.Sprintf("world size %d must be >= 1", p.WorldSize)}
	}
	if p.Rank < 0 || p.Rank >= p.WorldSize {
		return &ConfigurationError{Details: fmt.Sprintf("rank %d out of range [0, %d)", p.Rank, p.WorldSize)}
	}
	return nil
}

// Range returns the contiguous [start, end) slice of a dimension of the given
// size owned by this rank. size must divide evenly by the world size.
func (p Partition) Range(size int) (start, end int, err error) {
	if size < 0 || size%p.WorldSize != 0 {
		return 0, 0, &ConfigurationError{
			Details: fmt.Sprintf("size %d is not divisible by world size %d", size, p.WorldSize),
		}
	}
	n := size / p.WorldSize
	return p.Rank * n, (p.Rank + 1) * n, nil
}

// Local returns the size of this rank's share of a dimension.
func (p Partition) Local(size int) (int, error) {
	start, end, err := p.Range(size)
	return end - start, err
}

// String returns "rank/world".
func (p Partition) String() string {
	return fmt.Sprintf("%d/%d", p.Rank, p.WorldSize)
}

// PadVocab rounds vocab up to a multiple of multiple. The padded size must
// still divide by the world size; Range reports it when it does not.
func PadVocab(vocab, multiple int) int {
	if multiple < 1 {
		multiple = 1
	}
	return roundUp(vocab, multiple)
}

func roundUp(n, multiple int) int {
	return (n + multiple - 1) / multiple * multiple
}
