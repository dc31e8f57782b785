package types

import (
	"encoding/binary"
	"fmt"

	"github.com/aced-network/aced/pkg/util"
)

// HeaderLen is the canonical serialized size of a block header:
// the 80-byte classic prefix plus HeaderSize coded-Merkle root hashes.
const HeaderLen = 80 + HeaderSize*32

// BlockHeader anchors a block: the classic chain fields plus the hashes of
// the top layer of the coded Merkle tree. The roots are what scale nodes
// sign and what every decode verifies against.
type BlockHeader struct {
	Version        uint32
	PrevHeaderHash [32]byte
	MerkleRoot     [32]byte
	Time           uint32
	Bits           uint32
	Nonce          uint32
	CodedRoots     [HeaderSize][32]byte
}

// Serialize encodes the header in canonical byte order: version (u32 LE),
// previous header hash, Merkle root, time, bits, nonce (u32 LE each),
// then the HeaderSize root hashes.
func (h *BlockHeader) Serialize() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	copy(buf[4:36], h.PrevHeaderHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	for i, root := range h.CodedRoots {
		copy(buf[80+i*32:80+(i+1)*32], root[:])
	}
	return buf
}

// DeserializeHeader decodes a canonical HeaderLen-byte header.
func DeserializeHeader(data []byte) (*BlockHeader, error) {
	if len(data) != HeaderLen {
		return nil, fmt.Errorf("header is %d bytes, want %d", len(data), HeaderLen)
	}
	h := &BlockHeader{
		Version: binary.LittleEndian.Uint32(data[0:4]),
		Time:    binary.LittleEndian.Uint32(data[68:72]),
		Bits:    binary.LittleEndian.Uint32(data[72:76]),
		Nonce:   binary.LittleEndian.Uint32(data[76:80]),
	}
	copy(h.PrevHeaderHash[:], data[4:36])
	copy(h.MerkleRoot[:], data[36:68])
	for i := range h.CodedRoots {
		copy(h.CodedRoots[i][:], data[80+i*32:80+(i+1)*32])
	}
	return h, nil
}

// Hash computes the double-SHA256 hash of the serialized header.
func (h *BlockHeader) Hash() [32]byte {
	return util.DoubleSHA256(h.Serialize())
}

// HashHex returns the header hash as a hex string.
func (h *BlockHeader) HashHex() string {
	hash := h.Hash()
	return util.HashToHex(hash)
}

// Roots returns the coded Merkle roots as a slice.
func (h *BlockHeader) Roots() [][32]byte {
	out := make([][32]byte, HeaderSize)
	copy(out, h.CodedRoots[:])
	return out
}
