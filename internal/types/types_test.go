package types

import (
	"bytes"
	"testing"
)

func TestTransaction_SerializeSize(t *testing.T) {
	tx := &Transaction{Nonce: 7, Value: 100}
	data := tx.Serialize()
	if len(data) != TransactionSize {
		t.Fatalf("serialized size = %d, want %d", len(data), TransactionSize)
	}
}

func TestTransaction_RoundTrip(t *testing.T) {
	tx := &Transaction{Nonce: 42, Value: 1 << 40}
	tx.From[0] = 0xaa
	tx.To[31] = 0xbb
	tx.Payload[3] = 0xcc
	tx.Sig[63] = 0xdd

	back, err := DeserializeTransaction(tx.Serialize())
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.Nonce != 42 || back.Value != 1<<40 {
		t.Error("scalar field mismatch")
	}
	if back.From != tx.From || back.To != tx.To || back.Payload != tx.Payload || back.Sig != tx.Sig {
		t.Error("byte field mismatch")
	}
}

func TestTransaction_PaddingFailsClosed(t *testing.T) {
	padding := make([]byte, TransactionSize)
	if _, err := DeserializeTransaction(padding); err == nil {
		t.Error("expected zero padding to fail deserialization")
	}
	if _, err := DeserializeTransaction(padding[:100]); err == nil {
		t.Error("expected short record to fail deserialization")
	}
}

func TestHeader_SerializeLayout(t *testing.T) {
	h := &BlockHeader{Version: 1, Time: 4, Bits: 5, Nonce: 99}
	h.PrevHeaderHash[0] = 0x11
	h.CodedRoots[0][0] = 0x22
	h.CodedRoots[HeaderSize-1][31] = 0x33

	data := h.Serialize()
	if len(data) != HeaderLen {
		t.Fatalf("header length = %d, want %d", len(data), HeaderLen)
	}
	if data[0] != 1 || data[4] != 0x11 || data[80] != 0x22 || data[HeaderLen-1] != 0x33 {
		t.Error("field placement mismatch")
	}

	back, err := DeserializeHeader(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if *back != *h {
		t.Error("round trip mismatch")
	}
	if back.Hash() != h.Hash() {
		t.Error("hash mismatch after round trip")
	}
}

func TestBlock_EncodeDecode(t *testing.T) {
	b := &Block{Header: BlockHeader{Version: 1, Nonce: 5}}
	for i := 0; i < 3; i++ {
		b.Transactions = append(b.Transactions, &Transaction{Nonce: uint64(i)})
	}

	data, err := EncodeBlock(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeBlock(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back.Transactions) != 3 {
		t.Fatalf("got %d transactions, want 3", len(back.Transactions))
	}
	if !bytes.Equal(back.Header.Serialize(), b.Header.Serialize()) {
		t.Error("header mismatch")
	}
	if back.Transactions[2].Nonce != 2 {
		t.Error("transaction mismatch")
	}
}
