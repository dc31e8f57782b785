package contract

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/pkg/util"
)

func TestMock_SubmitAdvancesState(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	state, err := mock.GetCurrState(ctx)
	if err != nil || state.BlockID != 0 {
		t.Fatalf("genesis state = %+v, err %v", state, err)
	}

	vote := Vote{HeaderHex: util.BytesToHex([]byte("header-1")), BlockID: 1, Bitset: 0b111}
	if err := mock.SubmitVote(ctx, vote); err != nil {
		t.Fatalf("SubmitVote: %v", err)
	}

	state, _ = mock.GetCurrState(ctx)
	if state.BlockID != 1 {
		t.Errorf("block id = %d, want 1", state.BlockID)
	}
	var zero [32]byte
	if state.CurrHash == zero {
		t.Error("curr hash not chained")
	}

	// Duplicate for an anchored block is accepted and ignored.
	if err := mock.SubmitVote(ctx, vote); err != nil {
		t.Fatalf("duplicate SubmitVote: %v", err)
	}
	if len(mock.Votes()) != 1 {
		t.Errorf("votes recorded = %d, want 1", len(mock.Votes()))
	}
}

func TestMock_GetAllRange(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()
	for id := uint64(1); id <= 5; id++ {
		_ = mock.SubmitVote(ctx, Vote{HeaderHex: "aa", BlockID: id})
	}

	all, err := mock.GetAll(ctx, 0, 0)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 6 { // genesis + 5
		t.Errorf("got %d states, want 6", len(all))
	}

	sub, _ := mock.GetAll(ctx, 2, 4)
	if len(sub) != 3 || sub[0].BlockID != 2 || sub[2].BlockID != 4 {
		t.Errorf("range query wrong: %+v", sub)
	}
}

func TestMock_ScaleNodeRegistry(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	_ = mock.AddScaleNode(ctx, "0xabc", "127.0.0.1:7001", [4]string{"1", "2", "3", "4"})
	_ = mock.AddScaleNode(ctx, "0xdef", "127.0.0.1:7002", [4]string{"5", "6", "7", "8"})

	count, _ := mock.CountScaleNodes(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	nodes, _ := mock.GetScaleNodes(ctx)
	if len(nodes) != 2 || nodes[0] != "0xabc" {
		t.Errorf("nodes = %v", nodes)
	}

	_ = mock.ResetChain(ctx)
	state, _ := mock.GetCurrState(ctx)
	if state.BlockID != 0 {
		t.Error("reset did not return to genesis")
	}
}

func TestSubmitter_RetriesUntilSuccess(t *testing.T) {
	mock := NewMock()
	mock.FailSubmits = 2

	sub := NewSubmitter(mock, zap.NewNop())
	sub.retryBase = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	sub.Enqueue(Vote{HeaderHex: "bb", BlockID: 1})

	deadline := time.After(15 * time.Second)
	for {
		state, _ := mock.GetCurrState(context.Background())
		if state.BlockID == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("vote never landed despite retries")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
