package network

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/types"
)

// Kind identifies the type of a wire message.
type Kind uint8

const (
	KindPing Kind = iota + 1
	KindPong
	KindSendTransaction
	KindProposeBlock
	KindScaleReqChunks
	KindScaleReqChunksReply
	KindMySign
	KindScaleGetAllChunks
	KindScaleGetAllChunksReply
	KindScaleReqSample
	KindScaleReqSampleReply
)

// Message is any decoded wire message.
type Message interface {
	Kind() Kind
}

// Ping and Pong carry a liveness probe.
type Ping struct {
	Text string `cbor:"1,keyasint"`
}

type Pong struct {
	Text string `cbor:"1,keyasint"`
}

// SendTransaction submits one serialized transaction for mempool
// ingestion.
type SendTransaction struct {
	Tx []byte `cbor:"1,keyasint"`
}

// ProposeBlock announces a freshly encoded block from its slot proposer.
type ProposeBlock struct {
	Addr    string `cbor:"1,keyasint"`
	BlockID uint64 `cbor:"2,keyasint"`
	Header  []byte `cbor:"3,keyasint"`
}

// ScaleReqChunks asks the proposer for the sender's shard of a block.
type ScaleReqChunks struct {
	Addr    string `cbor:"1,keyasint"`
	BlockID uint64 `cbor:"2,keyasint"`
	ScaleID uint64 `cbor:"3,keyasint"`
}

// ScaleReqChunksReply carries one scale node's shard.
type ScaleReqChunksReply struct {
	Addr    string      `cbor:"1,keyasint"`
	BlockID uint64      `cbor:"2,keyasint"`
	Samples cmt.Samples `cbor:"3,keyasint"`
}

// MySign broadcasts one scale node's availability signature.
type MySign struct {
	HeaderHex string `cbor:"1,keyasint"`
	SID       uint64 `cbor:"2,keyasint"`
	BlockID   uint64 `cbor:"3,keyasint"`
	SigX      string `cbor:"4,keyasint"`
	SigY      string `cbor:"5,keyasint"`
	ScaleID   uint64 `cbor:"6,keyasint"`
}

// ScaleGetAllChunks asks scale nodes for their stored samples of the
// block a contract state refers to.
type ScaleGetAllChunks struct {
	State types.ContractState `cbor:"1,keyasint"`
}

// ScaleGetAllChunksReply answers with the stored samples, if any.
type ScaleGetAllChunksReply struct {
	Samples *cmt.Samples `cbor:"1,keyasint,omitempty"`
	BlockID uint64       `cbor:"2,keyasint"`
}

// ScaleReqSample asks a serving node for one base-layer symbol together
// with its Merkle path; light nodes sample availability with these.
type ScaleReqSample struct {
	Addr    string `cbor:"1,keyasint"`
	BlockID uint64 `cbor:"2,keyasint"`
	Index   uint64 `cbor:"3,keyasint"`
}

// ScaleReqSampleReply answers a sample request. Found is false when the
// serving node no longer holds the block.
type ScaleReqSampleReply struct {
	BlockID uint64       `cbor:"1,keyasint"`
	Index   uint64       `cbor:"2,keyasint"`
	Found   bool         `cbor:"3,keyasint"`
	Symbol  cmt.Symbol   `cbor:"4,keyasint,omitempty"`
	Path    []cmt.Symbol `cbor:"5,keyasint,omitempty"`
}

func (*Ping) Kind() Kind                   { return KindPing }
func (*Pong) Kind() Kind                   { return KindPong }
func (*SendTransaction) Kind() Kind        { return KindSendTransaction }
func (*ProposeBlock) Kind() Kind           { return KindProposeBlock }
func (*ScaleReqChunks) Kind() Kind         { return KindScaleReqChunks }
func (*ScaleReqChunksReply) Kind() Kind    { return KindScaleReqChunksReply }
func (*MySign) Kind() Kind                 { return KindMySign }
func (*ScaleGetAllChunks) Kind() Kind      { return KindScaleGetAllChunks }
func (*ScaleGetAllChunksReply) Kind() Kind { return KindScaleGetAllChunksReply }
func (*ScaleReqSample) Kind() Kind         { return KindScaleReqSample }
func (*ScaleReqSampleReply) Kind() Kind    { return KindScaleReqSampleReply }

// envelope is the outermost wire structure.
type envelope struct {
	Kind Kind            `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// Encode serializes a message to its framed body.
func Encode(msg Message) ([]byte, error) {
	body, err := cbor.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&envelope{Kind: msg.Kind(), Body: body})
}

// Decode parses a framed body back into a typed message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var msg Message
	switch env.Kind {
	case KindPing:
		msg = &Ping{}
	case KindPong:
		msg = &Pong{}
	case KindSendTransaction:
		msg = &SendTransaction{}
	case KindProposeBlock:
		msg = &ProposeBlock{}
	case KindScaleReqChunks:
		msg = &ScaleReqChunks{}
	case KindScaleReqChunksReply:
		msg = &ScaleReqChunksReply{}
	case KindMySign:
		msg = &MySign{}
	case KindScaleGetAllChunks:
		msg = &ScaleGetAllChunks{}
	case KindScaleGetAllChunksReply:
		msg = &ScaleGetAllChunksReply{}
	case KindScaleReqSample:
		msg = &ScaleReqSample{}
	case KindScaleReqSampleReply:
		msg = &ScaleReqSampleReply{}
	default:
		return nil, fmt.Errorf("unknown message kind %d", env.Kind)
	}
	if err := cbor.Unmarshal(env.Body, msg); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return msg, nil
}
