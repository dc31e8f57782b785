package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// DoubleSHA256 computes SHA256(SHA256(data)). Every hash in the coded
// Merkle tree — symbol digests, header roots, the header hash itself —
// uses this construction.
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// HashToHex returns the hex string of a 32-byte hash.
func HashToHex(hash [32]byte) string {
	return hex.EncodeToString(hash[:])
}

// HexToHash converts a hex string back to a [32]byte hash.
func HexToHash(s string) ([32]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	if len(b) != 32 {
		return [32]byte{}, hex.ErrLength
	}
	var h [32]byte
	copy(h[:], b)
	return h, nil
}
