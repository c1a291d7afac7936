package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
)

type failingAuditRepository struct {
	store.AuditRepository
	err error
}

func (r failingAuditRepository) RecordAuditEvent(ctx context.Context, event domain.Event, routingKey string, payload []byte) (bool, error) {
	return false, r.err
}

func TestAuditConsumer_HandleEvent(t *testing.T) {
	repo := store.NewMemoryRepository()
	consumer := NewAuditConsumer(repo, discardLogger())

	ev := domain.NewEvent(domain.EventParticipantJoined, common.HexToAddress("0x01"), time.Now().UTC()).WithBatch(1).WithAmount(25)
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	if !consumer.HandleEvent(string(ev.Type), body) {
		t.Fatal("expected first delivery to be acknowledged")
	}
	if !consumer.HandleEvent(string(ev.Type), body) {
		t.Fatal("expected duplicate delivery to be acknowledged")
	}
	inserted, _ := repo.RecordAuditEvent(context.Background(), ev, string(ev.Type), body)
	if inserted {
		t.Fatal("event should already be recorded")
	}
}

func TestAuditConsumer_DropsMalformedPayloads(t *testing.T) {
	consumer := NewAuditConsumer(failingAuditRepository{err: errors.New("must not be called")}, discardLogger())

	if !consumer.HandleEvent("participant.joined", []byte("{not json")) {
		t.Fatal("malformed payload should be dropped, not requeued")
	}
	if !consumer.HandleEvent("participant.joined", []byte(`{"event_type":"participant.joined"}`)) {
		t.Fatal("payload without id should be dropped, not requeued")
	}
}

func TestAuditConsumer_RequeuesOnStoreFailure(t *testing.T) {
	consumer := NewAuditConsumer(failingAuditRepository{err: errors.New("connection refused")}, discardLogger())
	ev := domain.NewEvent(domain.EventLedgerPaused, common.Address{}, time.Now().UTC())
	body, _ := json.Marshal(ev)

	if consumer.HandleEvent(string(ev.Type), body) {
		t.Fatal("store failure should requeue the delivery")
	}
}
