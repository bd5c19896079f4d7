// Package loader streams checkpoint entries from model weight files.
//
// This package implements readers for the formats Hugging Face checkpoints
// ship in:
//   - SafeTensors: single file or model-*-of-*.safetensors shards, memory
//     mapped on Unix
//   - PyTorch: pytorch_model*.bin and consolidated.*.pth pickles
//
// Every reader yields entries one at a time through the Stream interface, so
// a consumer never holds the whole checkpoint in memory. Reduced precision
// tensors (F16, BF16) are widened to float32 and keep their on-disk data type
// so they can be rounded back after any float math.
//
// Example:
//
//	stream, err := loader.OpenDir("path/to/baichuan2-13b")
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
