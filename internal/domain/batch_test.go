package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestBatchStateTransitions(t *testing.T) {
	order := []BatchState{BatchPending, BatchStaged, BatchActive, BatchSequencing, BatchCompleted, BatchPurged}
	for i, s := range order[:len(order)-1] {
		if !s.CanTransitionTo(order[i+1]) {
			t.Fatalf("%s should transition to %s", s, order[i+1])
		}
		for j, other := range order {
			if j != i+1 && s.CanTransitionTo(other) {
				t.Fatalf("%s must not transition to %s", s, other)
			}
		}
	}
	if _, ok := BatchPurged.Next(); ok {
		t.Fatal("purged must be terminal")
	}
	if BatchState(9).Valid() {
		t.Fatal("state 9 must be invalid")
	}
}

func TestParseBatchState(t *testing.T) {
	got, err := ParseBatchState("  Sequencing ")
	if err != nil {
		t.Fatalf("ParseBatchState returned error: %v", err)
	}
	if got != BatchSequencing {
		t.Fatalf("expected sequencing, got %s", got)
	}
	if _, err := ParseBatchState("shipped"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestBatchStateJSON(t *testing.T) {
	raw, err := json.Marshal(Batch{ID: 3, State: BatchActive})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	var decoded Batch
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if decoded.State != BatchActive {
		t.Fatalf("expected active, got %s", decoded.State)
	}
	if _, err := json.Marshal(Batch{State: BatchState(12)}); err == nil {
		t.Fatal("expected marshal error for invalid state")
	}
}

func TestBatchFull(t *testing.T) {
	b := Batch{MaxSize: 2, ParticipantCount: 1}
	if b.Full() {
		t.Fatal("batch with a free slot reported full")
	}
	b.ParticipantCount = 2
	if !b.Full() {
		t.Fatal("batch at capacity not reported full")
	}
}

func TestParticipantRefundable(t *testing.T) {
	p := Participant{DepositAmount: 13, BalanceAmount: 100}
	if got := p.Refundable(); got != 13 {
		t.Fatalf("unpaid participant refund = %d, want 13", got)
	}
	p.BalancePaid = true
	if got := p.Refundable(); got != 113 {
		t.Fatalf("paid participant refund = %d, want 113", got)
	}
}

func TestEventBuilders(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	account := common.HexToAddress("0x1234")
	ev := NewEvent(EventBatchStateChanged, common.Address{}, at).
		WithBatch(7).
		WithAccount(account).
		WithTransition(BatchStaged, BatchActive)

	if ev.BatchID != 7 || ev.Account == nil || *ev.Account != account {
		t.Fatalf("unexpected event fields: %+v", ev)
	}
	if ev.FromState == nil || *ev.FromState != BatchStaged || ev.ToState == nil || *ev.ToState != BatchActive {
		t.Fatalf("unexpected transition: %+v", ev)
	}
	if !ev.OccurredAt.Equal(at) {
		t.Fatalf("unexpected timestamp %s", ev.OccurredAt)
	}

	other := NewEvent(EventBatchStateChanged, common.Address{}, at)
	if other.ID == ev.ID {
		t.Fatal("events must get distinct ids")
	}
}
