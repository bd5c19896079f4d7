package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/internal/logutil"
	"github.com/born-ml/tpload/internal/tensor"
)

// UnknownNamePolicy controls entries whose destination is not in the store.
type UnknownNamePolicy int

const (
	// UnknownWarn drops the entry, logs a warning and records it in the report.
	UnknownWarn UnknownNamePolicy = iota
	// UnknownError fails the load.
	UnknownError
	// UnknownIgnore drops the entry silently.
	UnknownIgnore
)

// String returns the policy name accepted by ParseUnknownNamePolicy.
func (p UnknownNamePolicy) String() string {
	switch p {
	case UnknownError:
		return "error"
	case UnknownIgnore:
		return "ignore"
	default:
		return "warn"
	}
}

// ParseUnknownNamePolicy parses "warn", "error" or "ignore".
func ParseUnknownNamePolicy(s string) (UnknownNamePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return UnknownWarn, nil
	case "error":
		return UnknownError, nil
	case "ignore":
		return UnknownIgnore, nil
	default:
		return UnknownWarn, fmt.Errorf("unknown name policy %q (want warn, error or ignore)", s)
	}
}

// Option configures a Load.
type Option func(*options)

type options struct {
	rules  *Rules
	heads  int
	policy UnknownNamePolicy
	logger *slog.Logger
}

// WithRules replaces the Baichuan placement rules.
func WithRules(r *Rules) Option {
	return func(o *options) {
		o.rules = r
	}
}

// WithHeads sets the total attention head count used to cut the fused QKV
// projection.
func WithHeads(n int) Option {
	return func(o *options) {
		o.heads = n
	}
}

// WithUnknownNames sets the policy for entries without a destination.
func WithUnknownNames(p UnknownNamePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Report summarizes a completed load.
type Report struct {
	Partition   Partition
	Entries     int // entries read from the stream
	Skipped     int
	Written     int
	Bytes       int64 // bytes of source data consumed by written entries
	PaddingRows int   // vocabulary rows left at zero
	Categories  map[Category]int
	Warnings    []UnknownNameWarning
	Normalized  bool
	Duration    time.Duration
}

// Load reads every entry of stream and writes this rank's slice of it into
// store. It returns once the stream reports io.EOF, after checking that the
// head was normalized and every destination row was written.
//
// A failed load leaves store partially written; callers must discard it.
func Load(stream loader.Stream, part Partition, store *Store, opts ...Option) (*Report, error) {
	o := &options{
		rules:  BaichuanRules(),
		policy: UnknownWarn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := part.Validate(); err != nil {
		return nil, err
	}

	l := &load{
		options: o,
		part:    part,
		store:   store,
		cov:     newCoverage(),
		report: &Report{
			Partition:  part,
			Categories: make(map[Category]int),
		},
	}

	start := time.Now()
	if err := l.run(stream); err != nil {
		return l.report, err
	}
	l.report.Duration = time.Since(start)

	o.logger.Info("loaded shard",
		"rank", part.Rank,
		"world_size", part.WorldSize,
		"entries", l.report.Entries,
		"written", l.report.Written,
		"skipped", l.report.Skipped,
		"warnings", len(l.report.Warnings),
		"duration", l.report.Duration)
	return l.report, nil
}

// load is the state of a single Load call.
type load struct {
	*options
	part   Partition
	store  *Store
	cov    *coverage
	report *Report
}

func (l *load) run(stream loader.Stream) error {
	for {
		entry, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading checkpoint after %d entries: %w", l.report.Entries, err)
		}
		l.report.Entries++

		if err := l.place(entry); err != nil {
			return err
		}
	}

	if l.rules.NormalizedHead != "" && !l.report.Normalized {
		return &MissingMandatoryStepError{Name: l.rules.NormalizedHead, Step: "row normalization"}
	}
	return l.verify()
}

func (l *load) place(entry *loader.Entry) error {
	spec := l.rules.Classify(entry.Name)
	logutil.Trace(l.logger, "placing entry",
		"name", entry.Name,
		"category", spec.Category,
		"dest", spec.Dest,
		"shape", entry.Tensor.Shape())

	if spec.Category == Skip {
		l.report.Skipped++
		l.report.Categories[Skip]++
		return nil
	}

	dst, ok := l.store.Get(spec.Dest)
	if !ok {
		return l.dropUnknown(entry.Name, spec.Dest)
	}

	src := entry.Tensor
	if spec.Normalize {
		src = NormalizeRows(src)
		l.report.Normalized = true
	}

	var err error
	switch spec.Category {
	case FusedQKV:
		if src, err = sliceHeads(entry.Name, src, l.heads, l.part); err != nil {
			return err
		}
		err = l.copyWhole(entry.Name, spec.Dest, dst, src)
	case FusedPair:
		err = l.copyPair(entry.Name, spec, dst, src)
	case PaddedVocab:
		err = l.copyVocab(entry.Name, spec.Dest, dst, src)
	case ColumnSharded:
		err = l.copySharded(entry.Name, spec.Dest, dst, src, 0)
	case RowSharded:
		err = l.copySharded(entry.Name, spec.Dest, dst, src, 1)
	default:
		err = l.copyWhole(entry.Name, spec.Dest, dst, src)
	}
	if err != nil {
		return err
	}

	l.report.Written++
	l.report.Categories[spec.Category]++
	l.report.Bytes += int64(entry.Tensor.ByteSize())
	return nil
}

func (l *load) dropUnknown(name, dest string) error {
	switch l.policy {
	case UnknownError:
		return &UnknownNameError{Name: name}
	case UnknownIgnore:
		logutil.Trace(l.logger, "ignoring unknown entry", "name", name)
	default:
		l.logger.Warn("checkpoint entry has no parameter", "name", name, "dest", dest)
		l.report.Warnings = append(l.report.Warnings, UnknownNameWarning{Name: name, Dest: dest})
	}
	return nil
}

// copyWhole copies src into all of dst.
func (l *load) copyWhole(name, dest string, dst, src *tensor.RawTensor) error {
	if !dst.Shape().Equal(src.Shape()) {
		return &ShapeMismatchError{Name: name, Expected: dst.Shape(), Actual: src.Shape()}
	}
	if err := l.cov.mark(dest, name, 0, dst.Shape()[0]); err != nil {
		return err
	}
	return dst.CopyFrom(src)
}

// copySharded copies this rank's slice of src along dim into dst. The slice
// size is taken from the destination.
func (l *load) copySharded(name, dest string, dst, src *tensor.RawTensor, dim int) error {
	ds, ss := dst.Shape(), src.Shape()
	if len(ss) <= dim || len(ds) != len(ss) {
		return &ShapeMismatchError{Name: name, Expected: ds, Actual: ss}
	}

	size := ds[dim]
	start := size * l.part.Rank
	if ss[dim] != size*l.part.WorldSize {
		return &ShapeMismatchError{Name: name, Expected: ds.With(dim, size*l.part.WorldSize), Actual: ss}
	}

	var (
		part *tensor.RawTensor
		err  error
	)
	if dim == 0 {
		part, err = src.RowView(start, start+size)
	} else {
		part, err = src.Narrow(dim, start, size)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return l.copyWhole(name, dest, dst, part)
}

// copyPair copies this rank's rows of one half of a fused pair into its half
// of the destination.
func (l *load) copyPair(name string, spec Spec, dst, src *tensor.RawTensor) error {
	ds := dst.Shape()
	halves := len(l.rules.PairMarkers)
	if halves == 0 || ds[0]%halves != 0 {
		return &ConfigurationError{
			Name:    spec.Dest,
			Details: fmt.Sprintf("%d rows cannot hold %d equal halves", ds[0], halves),
		}
	}

	shard := ds[0] / halves
	srcStart := shard * l.part.Rank
	if len(src.Shape()) != len(ds) || src.Shape()[0] != shard*l.part.WorldSize {
		return &ShapeMismatchError{Name: name, Expected: ds.With(0, shard*l.part.WorldSize), Actual: src.Shape()}
	}

	rows, err := src.RowView(srcStart, srcStart+shard)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	dstStart := shard * spec.Ordinal
	target, err := dst.RowView(dstStart, dstStart+shard)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !target.Shape().Equal(rows.Shape()) {
		return &ShapeMismatchError{Name: name, Expected: target.Shape(), Actual: rows.Shape()}
	}

	if err := l.cov.mark(spec.Dest, name, dstStart, dstStart+shard); err != nil {
		return err
	}
	return target.CopyFrom(rows)
}

// copyVocab copies the valid vocabulary rows and records the remaining local
// rows as padding.
func (l *load) copyVocab(name, dest string, dst, src *tensor.RawTensor) error {
	// Duplicates are checked before copying so a second entry cannot
	// overwrite the first.
	rows := dst.Shape()[0]
	if len(l.cov.spans[dest]) > 0 {
		return &DuplicateWriteError{Name: dest, Source: name, Start: 0, End: rows}
	}

	n, err := loadPaddedVocab(name, dst, src, l.part)
	if err != nil {
		return err
	}
	if err := l.cov.mark(dest, name, 0, n); err != nil {
		return err
	}
	if n < rows {
		l.report.PaddingRows += rows - n
		if err := l.cov.mark(dest, "padding", n, rows); err != nil {
			return err
		}
	}
	return nil
}

// verify reports every destination row range that no entry wrote.
func (l *load) verify() error {
	var errs []error
	names := l.store.Names()
	sort.Strings(names)
	for _, name := range names {
		t, _ := l.store.Get(name)
		for _, g := range l.cov.gaps(name, t.Shape()[0]) {
			errs = append(errs, &UnwrittenParameterError{Name: name, Start: g[0], End: g[1]})
		}
	}
	return errors.Join(errs...)
}

// LoadAll loads every rank of a world concurrently, one goroutine per rank.
// Each rank opens its own stream through open and loads into the store built
// by newStore. The first failure cancels the context passed to open and
// newStore; loads already running finish their current stream.
func LoadAll(ctx context.Context, worldSize int,
	open func(context.Context) (loader.Stream, error),
	newStore func(Partition) (*Store, error),
	opts ...Option,
) ([]*Store, []*Report, error) {
	if worldSize < 1 {
		return nil, nil, &ConfigurationError{Details: fmt.Sprintf("world size %d must be >= 1", worldSize)}
	}

	stores := make([]*Store, worldSize)
	reports := make([]*Report, worldSize)

	g, ctx := errgroup.WithContext(ctx)
	for rank := range worldSize {
		part := Partition{WorldSize: worldSize, Rank: rank}
		g.Go(func() error {
			store, err := newStore(part)
			if err != nil {
				return fmt.Errorf("rank %s: %w", part, err)
			}
			stream, err := open(ctx)
			if err != nil {
				return fmt.Errorf("rank %s: %w", part, err)
			}
			defer stream.Close()

			report, err := Load(stream, part, store, opts...)
			if err != nil {
				return fmt.Errorf("rank %s: %w", part, err)
			}
			stores[rank], reports[rank] = store, report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return stores, reports, nil
}
