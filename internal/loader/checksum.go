package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChecksumKey is the metadata key holding the hex SHA-256 of a file's data
// section. Files written by WriteSafeTensors carry it.
const ChecksumKey = "data_sha256"

// ComputeChecksum returns the hex SHA-256 of data.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares the data section against the checksum recorded
// in the metadata. Files without one are accepted.
func (r *SafeTensorsReader) VerifyChecksum() error {
	stored, ok := r.header.Metadata[ChecksumKey]
	if !ok {
		return nil
	}
	if r.closed {
		return fmt.Errorf("reader is closed")
	}
	if computed := ComputeChecksum(r.data[r.dataOffset:]); computed != stored {
		return fmt.Errorf("%w: %s: computed %s, stored %s", ErrChecksumMismatch, r.path, computed, stored)
	}
	return nil
}
