// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package shard places the entries of an unsharded checkpoint into the
// parameter store of one tensor-parallel rank.
//
// Every entry is classified by name: replicated, split along rows or columns,
// one half of a fused gate/up projection, a fused QKV projection split by
// attention head, a vocabulary-indexed matrix padded to an even split, or
// skipped. Load writes each rank's slice into pre-allocated destinations and
// fails if any destination row is written twice or left unwritten.
//
// Example:
//
//	cfg, _ := model.LoadConfig(dir)
//	part := shard.Partition{WorldSize: 4, Rank: 1}
//	store, _ := model.NewParameterStore(cfg, part)
//	stream, _ := loader.OpenDir(dir)
//	defer stream.Close()
//
//	report, err := shard.Load(stream, part, store, cfg.LoadOptions()...)
package shard

import (
	"context"
	"log/slog"

	"github.com/born-ml/tpload/internal/shard"
	"github.com/born-ml/tpload/loader"
	"github.com/born-ml/tpload/tensor"
)

// Partition identifies one rank of a tensor-parallel group.
type Partition = shard.Partition

// Store maps parameter names to pre-allocated destination tensors.
type Store = shard.Store

// Report summarizes a completed load.
type Report = shard.Report

// Option configures Load, LoadAll and Assemble.
type Option = shard.Option

// Rules classifies checkpoint entry names.
type Rules = shard.Rules

// Category is the placement class of a checkpoint entry.
type Category = shard.Category

// UnknownNamePolicy controls entries that have no destination.
type UnknownNamePolicy = shard.UnknownNamePolicy

// Unknown-name policies.
const (
	UnknownWarn   UnknownNamePolicy = shard.UnknownWarn
	UnknownError  UnknownNamePolicy = shard.UnknownError
	UnknownIgnore UnknownNamePolicy = shard.UnknownIgnore
)

// Load errors. Match them with errors.Is.
var (
	ErrConfiguration        = shard.ErrConfiguration
	ErrShapeMismatch        = shard.ErrShapeMismatch
	ErrMissingMandatoryStep = shard.ErrMissingMandatoryStep
	ErrDuplicateWrite       = shard.ErrDuplicateWrite
	ErrUnwrittenParameter   = shard.ErrUnwrittenParameter
	ErrUnknownName          = shard.ErrUnknownName
)

// NewStore creates an empty parameter store.
func NewStore() *Store {
	return shard.NewStore()
}

// BaichuanRules returns the placement rules of Baichuan checkpoints.
func BaichuanRules() *Rules {
	return shard.BaichuanRules()
}

// Load writes this rank's slice of every entry of stream into store.
func Load(stream loader.Stream, part Partition, store *Store, opts ...Option) (*Report, error) {
	return shard.Load(stream, part, store, opts...)
}

// LoadAll loads every rank of a world concurrently.
func LoadAll(ctx context.Context, worldSize int,
	open func(context.Context) (loader.Stream, error),
	newStore func(Partition) (*Store, error),
	opts ...Option,
) ([]*Store, []*Report, error) {
	return shard.LoadAll(ctx, worldSize, open, newStore, opts...)
}

// Assemble rebuilds the unsharded value of a checkpoint entry from the
// stores of every rank.
func Assemble(name string, shape tensor.Shape, stores []*Store, opts ...Option) (*tensor.RawTensor, error) {
	return shard.Assemble(name, shape, stores, opts...)
}

// WithRules replaces the Baichuan placement rules.
func WithRules(r *Rules) Option { return shard.WithRules(r) }

// WithHeads sets the attention head count of fused QKV projections.
func WithHeads(n int) Option { return shard.WithHeads(n) }

// WithUnknownNames sets the unknown-name policy.
func WithUnknownNames(p UnknownNamePolicy) Option { return shard.WithUnknownNames(p) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return shard.WithLogger(l) }
