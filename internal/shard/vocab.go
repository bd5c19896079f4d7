package shard

import (
	"github.com/born-ml/tpload/internal/tensor"
)

// loadPaddedVocab copies this rank's rows of a vocabulary-indexed parameter.
//
// The destination holds S = padded/worldSize rows. Rank r owns padded rows
// [r*S, (r+1)*S); the ones below the true vocabulary size V are copied into
// destination rows [0, n) and the rest stay untouched. It returns n.
func loadPaddedVocab(name string, dst, src *tensor.RawTensor, part Partition) (int, error) {
	ds, ss := dst.Shape(), src.Shape()
	if len(ds) != len(ss) || !ds[1:].Equal(ss[1:]) {
		return 0, &ShapeMismatchError{Name: name, Expected: ds.With(0, ss[0]), Actual: ss}
	}

	local := ds[0]
	vocab := ss[0]
	if vocab > local*part.WorldSize {
		return 0, &ShapeMismatchError{Name: name, Expected: ds.With(0, local*part.WorldSize), Actual: ss}
	}

	start := part.Rank * local
	end := min(start+local, vocab)
	n := max(end-start, 0)
	if n == 0 {
		return 0, nil
	}

	rows, err := src.RowView(start, end)
	if err != nil {
		return 0, err
	}
	target, err := dst.RowView(0, n)
	if err != nil {
		return 0, err
	}
	if err := target.CopyFrom(rows); err != nil {
		return 0, &ShapeMismatchError{Name: name, Expected: target.Shape(), Actual: rows.Shape()}
	}
	return n, nil
}
