package serialization

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChecksumKey is the metadata key holding the hex SHA-256 of the data section.
const ChecksumKey = "checksum"

// ComputeChecksum returns the hex-encoded SHA-256 of data.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateChecksum returns ErrChecksumMismatch if data does not hash to
// stored. An empty stored checksum is accepted.
func ValidateChecksum(data []byte, stored string) error {
	if stored == "" {
		return nil
	}
	if ComputeChecksum(data) != stored {
		return ErrChecksumMismatch
	}
	return nil
}
