package types

import (
	"encoding/binary"
	"fmt"

	"github.com/aced-network/aced/pkg/util"
)

// TxMagic marks the first four bytes of every serialized transaction.
// Zero-padding at the end of a block payload fails this check, which is
// what lets the extractor skip padding records safely.
const TxMagic = 0x41434544 // "ACED"

const txPayloadSize = TransactionSize - 4 - 8 - 32 - 32 - 8 - 64

// Transaction is an opaque fixed-size value transfer. The availability
// layer never validates semantics; the fields exist so records serialize
// deterministically and padding is distinguishable from data.
type Transaction struct {
	Nonce   uint64
	From    [32]byte
	To      [32]byte
	Value   uint64
	Payload [txPayloadSize]byte
	Sig     [64]byte
}

// Serialize encodes the transaction to its canonical TransactionSize bytes.
func (tx *Transaction) Serialize() []byte {
	buf := make([]byte, TransactionSize)
	binary.LittleEndian.PutUint32(buf[0:4], TxMagic)
	binary.LittleEndian.PutUint64(buf[4:12], tx.Nonce)
	copy(buf[12:44], tx.From[:])
	copy(buf[44:76], tx.To[:])
	binary.LittleEndian.PutUint64(buf[76:84], tx.Value)
	copy(buf[84:84+txPayloadSize], tx.Payload[:])
	copy(buf[84+txPayloadSize:], tx.Sig[:])
	return buf
}

// DeserializeTransaction decodes a TransactionSize-byte record. Records
// that do not start with TxMagic (block padding) fail closed.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	if len(data) != TransactionSize {
		return nil, fmt.Errorf("transaction record is %d bytes, want %d", len(data), TransactionSize)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != TxMagic {
		return nil, fmt.Errorf("bad transaction magic %#x", binary.LittleEndian.Uint32(data[0:4]))
	}
	tx := &Transaction{
		Nonce: binary.LittleEndian.Uint64(data[4:12]),
		Value: binary.LittleEndian.Uint64(data[76:84]),
	}
	copy(tx.From[:], data[12:44])
	copy(tx.To[:], data[44:76])
	copy(tx.Payload[:], data[84:84+txPayloadSize])
	copy(tx.Sig[:], data[84+txPayloadSize:])
	return tx, nil
}

// Hash returns the double-SHA256 of the serialized transaction.
func (tx *Transaction) Hash() [32]byte {
	return util.DoubleSHA256(tx.Serialize())
}
