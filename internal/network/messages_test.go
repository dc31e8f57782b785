package network

import (
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/types"
)

func TestProposeBlock_RoundTrip(t *testing.T) {
	original := &ProposeBlock{
		Addr:    "127.0.0.1:7000",
		BlockID: 42,
		Header:  []byte{0x01, 0x02, 0x03},
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	msg, ok := decoded.(*ProposeBlock)
	if !ok {
		t.Fatalf("decoded %T, want *ProposeBlock", decoded)
	}
	if msg.Addr != original.Addr || msg.BlockID != 42 || len(msg.Header) != 3 {
		t.Error("field mismatch")
	}
}

func TestMySign_RoundTrip(t *testing.T) {
	original := &MySign{
		HeaderHex: "abcd",
		SID:       0,
		BlockID:   7,
		SigX:      "123456789",
		SigY:      "987654321",
		ScaleID:   3,
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*MySign)
	if msg.SigX != original.SigX || msg.ScaleID != 3 || msg.BlockID != 7 {
		t.Error("field mismatch")
	}
}

func TestScaleReqChunksReply_CarriesSamples(t *testing.T) {
	sym := cmt.NewBaseSymbol(16)
	sym.Data[0] = 0x5a
	original := &ScaleReqChunksReply{
		Addr:    "127.0.0.1:7001",
		BlockID: 9,
		Samples: cmt.Samples{
			Header:  []byte{0xaa},
			Symbols: [][]cmt.Symbol{{sym}},
			Indices: [][]uint64{{4}},
		},
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*ScaleReqChunksReply)
	if msg.Samples.NumBase() != 1 || msg.Samples.Indices[0][0] != 4 {
		t.Error("sample indices mismatch")
	}
	if msg.Samples.Symbols[0][0].Data[0] != 0x5a {
		t.Error("sample payload mismatch")
	}
}

func TestScaleGetAllChunksReply_OptionalSamples(t *testing.T) {
	// Absent samples survive the round trip as nil.
	data, err := Encode(&ScaleGetAllChunksReply{BlockID: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*ScaleGetAllChunksReply)
	if msg.Samples != nil {
		t.Error("expected nil samples")
	}
	if msg.BlockID != 3 {
		t.Error("block id mismatch")
	}
}

func TestScaleGetAllChunks_State(t *testing.T) {
	state := types.ContractState{BlockID: 12}
	state.CurrHash[0] = 0xee

	data, err := Encode(&ScaleGetAllChunks{State: state})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*ScaleGetAllChunks)
	if msg.State.BlockID != 12 || msg.State.CurrHash[0] != 0xee {
		t.Error("state mismatch")
	}
}

func TestScaleReqSample_RoundTrip(t *testing.T) {
	data, err := Encode(&ScaleReqSample{Addr: "127.0.0.1:7002", BlockID: 4, Index: 17})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*ScaleReqSample)
	if msg.BlockID != 4 || msg.Index != 17 || msg.Addr != "127.0.0.1:7002" {
		t.Error("field mismatch")
	}
}

func TestScaleReqSampleReply_RoundTrip(t *testing.T) {
	sym := cmt.NewBaseSymbol(8)
	sym.Data[0] = 0x77
	parent := cmt.NewUpperSymbol()
	parent.Data[0] = 0x88

	data, err := Encode(&ScaleReqSampleReply{
		BlockID: 4,
		Index:   17,
		Found:   true,
		Symbol:  sym,
		Path:    []cmt.Symbol{parent},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(*ScaleReqSampleReply)
	if !msg.Found || msg.Symbol.Data[0] != 0x77 || len(msg.Path) != 1 || msg.Path[0].Data[0] != 0x88 {
		t.Error("payload mismatch")
	}

	// Not-found replies carry no symbol.
	data, err = Encode(&ScaleReqSampleReply{BlockID: 4, Index: 17})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err = Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.(*ScaleReqSampleReply).Found {
		t.Error("found flag wrong")
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("garbage must not decode")
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	data, err := cbor.Marshal(&envelope{Kind: 99, Body: cbor.RawMessage{0xa0}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Decode(data); err == nil {
		t.Error("unknown kind must be rejected")
	}
}
