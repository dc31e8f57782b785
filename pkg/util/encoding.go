package util

import (
	"encoding/binary"
	"encoding/hex"
)

// HexToBytes decodes a hex string to bytes, returning an error if invalid.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes to a hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Uint64Key converts a block id to its 8-byte little-endian store key.
func Uint64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// KeyToUint64 is the inverse of Uint64Key.
func KeyToUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
