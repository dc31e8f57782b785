package types

import (
	"github.com/fxamacker/cbor/v2"
)

// ContractState is the anchor contract's view of the chain: the running
// hash chained over all accepted headers and the id of the latest block.
type ContractState struct {
	CurrHash [32]byte `cbor:"1,keyasint"`
	BlockID  uint64   `cbor:"2,keyasint"`
}

// GenesisState is the contract state before any block is anchored.
func GenesisState() ContractState {
	return ContractState{}
}

// Block is a decoded block: its header plus the recovered transactions.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// blockWire is the persisted form of a Block.
type blockWire struct {
	Header       []byte   `cbor:"1,keyasint"`
	Transactions [][]byte `cbor:"2,keyasint"`
}

// EncodeBlock serializes a block for the BLOCK store bucket.
func EncodeBlock(b *Block) ([]byte, error) {
	w := blockWire{Header: b.Header.Serialize()}
	w.Transactions = make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		w.Transactions[i] = tx.Serialize()
	}
	return cbor.Marshal(&w)
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(data []byte) (*Block, error) {
	var w blockWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	hdr, err := DeserializeHeader(w.Header)
	if err != nil {
		return nil, err
	}
	b := &Block{Header: *hdr}
	b.Transactions = make([]*Transaction, 0, len(w.Transactions))
	for _, raw := range w.Transactions {
		tx, err := DeserializeTransaction(raw)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return b, nil
}
