package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

func TestMemoryRepository_CommitAndSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	if !snap.Empty() {
		t.Fatal("new repository should be empty")
	}

	addr := common.HexToAddress("0x42")
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cs := Changeset{
		Global:       &domain.GlobalState{DepositPrice: 25, DefaultMaxSize: 2, CurrentBatchID: 1, OperatingFunds: 25},
		Batches:      []domain.Batch{{ID: 1, State: domain.BatchPending, MaxSize: 2, ParticipantCount: 1}},
		Participants: []domain.Participant{{BatchID: 1, Address: addr, DepositAmount: 25, JoinedAt: at}},
		Roles:        []domain.RoleAssignment{{Address: addr, Role: domain.RoleAdmin, GrantedAt: at}},
		Events:       []domain.Event{domain.NewEvent(domain.EventParticipantJoined, addr, at).WithBatch(1)},
	}
	settled := false
	if err := repo.Commit(ctx, cs, func(context.Context) error { settled = true; return nil }); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if !settled {
		t.Fatal("settle callback was not invoked")
	}

	snap, err = repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	if snap.Empty() || snap.Global.OperatingFunds != 25 {
		t.Fatalf("unexpected global state: %+v", snap.Global)
	}
	if len(snap.Participants) != 1 || snap.Participants[0].Address != addr {
		t.Fatalf("unexpected participants: %+v", snap.Participants)
	}

	removal := Changeset{
		Removed: []domain.ParticipantKey{{BatchID: 1, Address: addr}},
		Roles:   []domain.RoleAssignment{{Address: addr, Role: domain.RoleNone}},
	}
	if err := repo.Commit(ctx, removal, nil); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	snap, _ = repo.LoadSnapshot(ctx)
	if len(snap.Participants) != 0 || len(snap.Roles) != 0 {
		t.Fatalf("expected participant and role removed, got %+v / %+v", snap.Participants, snap.Roles)
	}
}

func TestMemoryRepository_SettleFailureDiscardsChangeset(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	settleErr := errors.New("transfer rejected")

	err := repo.Commit(ctx, Changeset{Global: &domain.GlobalState{DepositPrice: 25}}, func(context.Context) error {
		return settleErr
	})
	if !errors.Is(err, settleErr) {
		t.Fatalf("expected settle error, got %v", err)
	}
	snap, _ := repo.LoadSnapshot(ctx)
	if !snap.Empty() {
		t.Fatal("failed commit must not persist anything")
	}
}

func TestMemoryRepository_FailCommitAfterSettlement(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.FailCommit = errors.New("disk full")

	err := repo.Commit(ctx, Changeset{Global: &domain.GlobalState{DepositPrice: 25}}, func(context.Context) error { return nil })
	if !errors.Is(err, ErrCommitAfterSettlement) {
		t.Fatalf("expected ErrCommitAfterSettlement, got %v", err)
	}
	if repo.FailCommit != nil {
		t.Fatal("FailCommit should reset after one use")
	}
	if err := repo.Commit(ctx, Changeset{Global: &domain.GlobalState{DepositPrice: 25}}, nil); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
}

func TestMemoryRepository_ListEvents(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	at := time.Now().UTC()
	var events []domain.Event
	for i := 0; i < 5; i++ {
		batchID := uint64(1)
		if i%2 == 1 {
			batchID = 2
		}
		events = append(events, domain.NewEvent(domain.EventParticipantJoined, common.Address{}, at).WithBatch(batchID).WithAmount(int64(i)))
	}
	if err := repo.Commit(ctx, Changeset{Events: events}, nil); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	got, err := repo.ListEvents(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(got) != 2 || got[0].Amount != 2 || got[1].Amount != 4 {
		t.Fatalf("expected the two latest batch 1 events oldest first, got %+v", got)
	}

	all, _ := repo.ListEvents(ctx, 0, 0)
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}
}

func TestMemoryRepository_RecordAuditEventDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	ev := domain.NewEvent(domain.EventLedgerPaused, common.Address{}, time.Now())

	inserted, err := repo.RecordAuditEvent(ctx, ev, string(ev.Type), []byte(`{}`))
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = repo.RecordAuditEvent(ctx, ev, string(ev.Type), []byte(`{}`))
	if err != nil || inserted {
		t.Fatalf("duplicate insert: inserted=%v err=%v", inserted, err)
	}
}
