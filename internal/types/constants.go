package types

// Compile-time protocol constants. These must match across every node in
// the deployment and against the on-disk code tables; changing any of them
// is a wire- and storage-breaking change.
const (
	// BlockSize is the transaction payload capacity of a block in bytes.
	BlockSize = 16 * 1024 * 1024

	// TransactionSize is the exact serialized size of one transaction.
	TransactionSize = 316

	// BaseSymbolSize is the size of a base-layer coded symbol in bytes.
	BaseSymbolSize = 128 * 1024

	// Aggregate is the number of 32-byte digests concatenated into one
	// upper-layer symbol.
	Aggregate = 8

	// Rate is the coding rate of every layer: k = floor(n * Rate).
	Rate = 0.25

	// HeaderSize is the number of top-layer root hashes carried in a
	// block header.
	HeaderSize = 16

	// UndecodableRatio is the base-layer fraction above which decoding is
	// guaranteed to succeed for this code ensemble.
	UndecodableRatio = 0.9

	// SampleComplexity is the number of coded symbols a light node samples
	// to check availability.
	SampleComplexity = 30

	// NumberIteration is the number of sampling rounds a light node runs.
	NumberIteration = 10

	// NumBaseSymbols is the base-layer code length implied by the block
	// shape: BlockSize/BaseSymbolSize systematic symbols at rate 1/4.
	NumBaseSymbols = (BlockSize / BaseSymbolSize) * 4
)
