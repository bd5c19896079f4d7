// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader streams checkpoint entries from SafeTensors and PyTorch
// files.
//
// Entries are produced one at a time so a checkpoint never has to be held in
// memory as a whole.
//
// Example usage:
//
//	stream, err := loader.OpenDir("path/to/Baichuan2-13B-Chat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for {
//	    entry, err := stream.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(entry.Name, entry.Tensor.Shape())
//	}
package loader

import (
	"github.com/born-ml/tpload/internal/loader"
	"github.com/born-ml/tpload/tensor"
)

// Entry is one named tensor of a checkpoint.
type Entry = loader.Entry

// Stream yields checkpoint entries in order and returns io.EOF after the
// last one.
type Stream = loader.Stream

// Format is a checkpoint file format.
type Format = loader.Format

// Supported formats.
const (
	FormatUnknown     Format = loader.FormatUnknown
	FormatSafeTensors Format = loader.FormatSafeTensors
	FormatPyTorch     Format = loader.FormatPyTorch
)

// ValidationError reports a malformed SafeTensors header.
type ValidationError = loader.ValidationError

// OpenDir opens the checkpoint files of a model directory. SafeTensors shards
// (model-00001-of-00003.safetensors) are preferred over PyTorch files.
func OpenDir(dir string) (Stream, error) {
	return loader.OpenDir(dir)
}

// Open opens a single checkpoint file, detecting its format from the name.
func Open(path string) (Stream, error) {
	return loader.Open(path)
}

// NewSliceStream streams entries held in memory.
func NewSliceStream(entries ...*Entry) Stream {
	return loader.NewSliceStream(entries...)
}

// WriteSafeTensors writes tensors to a SafeTensors file, each in its own
// data type.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	return loader.WriteSafeTensors(path, tensors, metadata)
}
