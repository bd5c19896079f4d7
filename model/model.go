// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model describes the Baichuan model that owns a parameter store.
package model

import (
	"github.com/born-ml/tpload/internal/model"
	"github.com/born-ml/tpload/shard"
)

// Config is the subset of config.json the loader uses.
type Config = model.Config

// PositionEmbedding is ROPE or ALIBI.
type PositionEmbedding = model.PositionEmbedding

// Position embeddings.
const (
	RoPE  PositionEmbedding = model.RoPE
	ALiBi PositionEmbedding = model.ALiBi
)

// Attention is the per-rank attention strategy.
type Attention = model.Attention

// LoadConfig reads config.json from a model directory or file.
func LoadConfig(path string) (*Config, error) {
	return model.LoadConfig(path)
}

// NewParameterStore allocates every parameter with its local shape on part.
func NewParameterStore(cfg *Config, part shard.Partition) (*shard.Store, error) {
	return model.NewParameterStore(cfg, part)
}

// NewAttention builds the attention strategy of one rank.
func NewAttention(cfg *Config, part shard.Partition) (Attention, error) {
	return model.NewAttention(cfg, part)
}

// AlibiSlopes returns the ALiBi slope of each of n heads.
func AlibiSlopes(n int) []float64 {
	return model.AlibiSlopes(n)
}
