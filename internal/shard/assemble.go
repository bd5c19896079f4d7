package shard

import (
	"fmt"
	"slices"

	"github.com/born-ml/tpload/internal/tensor"
)

// Assemble rebuilds the unsharded value of checkpoint entry name, whose full
// shape is shape, from the stores of every rank in order. It inverts the
// placement Load applied, so a normalized head comes back normalized.
//
// Replicated parameters must be identical on every rank and vocabulary
// padding rows must still be zero; both are reported as errors otherwise.
func Assemble(name string, shape tensor.Shape, stores []*Store, opts ...Option) (*tensor.RawTensor, error) {
	o := &options{rules: BaichuanRules()}
	for _, opt := range opts {
		opt(o)
	}
	if len(stores) == 0 {
		return nil, fmt.Errorf("assemble %s: no stores", name)
	}
	world := len(stores)

	spec := o.rules.Classify(name)
	if spec.Category == Skip {
		return nil, fmt.Errorf("assemble %s: entry is skipped", name)
	}

	parts := make([]*tensor.RawTensor, world)
	for rank, s := range stores {
		t, ok := s.Get(spec.Dest)
		if !ok {
			return nil, fmt.Errorf("assemble %s: rank %d has no parameter %q", name, rank, spec.Dest)
		}
		parts[rank] = t
	}

	var (
		out *tensor.RawTensor
		err error
	)
	switch spec.Category {
	case ColumnSharded:
		out, err = tensor.Concat(0, parts...)
	case RowSharded:
		out, err = tensor.Concat(1, parts...)
	case FusedPair:
		out, err = assemblePair(spec, parts, len(o.rules.PairMarkers))
	case FusedQKV:
		out, err = assembleHeads(name, parts, o.heads)
	case PaddedVocab:
		out, err = assembleVocab(name, parts, shape[0])
	default:
		out, err = assembleReplicated(name, parts)
	}
	if err != nil {
		return nil, err
	}

	if !out.Shape().Equal(shape) {
		return nil, &ShapeMismatchError{Name: name, Expected: shape, Actual: out.Shape()}
	}
	return out, nil
}

func assembleReplicated(name string, parts []*tensor.RawTensor) (*tensor.RawTensor, error) {
	first := parts[0]
	for rank, p := range parts[1:] {
		if !p.Shape().Equal(first.Shape()) || !slices.Equal(p.Data(), first.Data()) {
			return nil, fmt.Errorf("assemble %s: rank %d differs from rank 0", name, rank+1)
		}
	}
	return first, nil
}

func assemblePair(spec Spec, parts []*tensor.RawTensor, halves int) (*tensor.RawTensor, error) {
	rows := parts[0].Shape()[0]
	if halves == 0 || rows%halves != 0 {
		return nil, &ConfigurationError{Name: spec.Dest, Details: fmt.Sprintf("%d rows cannot hold %d equal halves", rows, halves)}
	}
	shard := rows / halves

	views := make([]*tensor.RawTensor, len(parts))
	for rank, p := range parts {
		v, err := p.RowView(shard*spec.Ordinal, shard*(spec.Ordinal+1))
		if err != nil {
			return nil, err
		}
		views[rank] = v
	}
	return tensor.Cat(views...)
}

func assembleHeads(name string, parts []*tensor.RawTensor, heads int) (*tensor.RawTensor, error) {
	world := len(parts)
	if heads <= 0 || heads%world != 0 {
		return nil, &ConfigurationError{Name: name, Details: fmt.Sprintf("%d attention heads across %d ranks", heads, world)}
	}
	local := heads / world

	views := make([]*tensor.RawTensor, world)
	for rank, p := range parts {
		s := p.Shape()
		if len(s) != 2 || s[0]%(3*local) != 0 {
			return nil, &ShapeMismatchError{Name: name, Expected: tensor.Shape{3 * local, -1}, Actual: s}
		}
		v, err := p.Reshape(tensor.Shape{3, local, s[0] / (3 * local), s[1]})
		if err != nil {
			return nil, err
		}
		views[rank] = v
	}

	full, err := tensor.Concat(1, views...)
	if err != nil {
		return nil, err
	}
	s := full.Shape()
	return full.Reshape(tensor.Shape{s[0] * s[1] * s[2], s[3]})
}

func assembleVocab(name string, parts []*tensor.RawTensor, vocab int) (*tensor.RawTensor, error) {
	full, err := tensor.Cat(parts...)
	if err != nil {
		return nil, err
	}
	if vocab > full.Shape()[0] {
		return nil, &ShapeMismatchError{Name: name, Expected: full.Shape().With(0, vocab), Actual: full.Shape()}
	}

	padding, err := full.RowView(vocab, full.Shape()[0])
	if err != nil {
		return nil, err
	}
	for i, v := range padding.Data() {
		if v != 0 {
			return nil, fmt.Errorf("assemble %s: padding element %d is %v, want 0", name, i, v)
		}
	}
	return full.RowView(0, vocab)
}
