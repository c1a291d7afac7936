package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

type publishedMessage struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.messages = append(p.messages, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

type countingEventObserver struct {
	seen int
}

func (o *countingEventObserver) ObserveEvents(events []domain.Event) {
	o.seen += len(events)
}

func TestEventForwarder_PublishesWithTypeAsRoutingKey(t *testing.T) {
	publisher := &recordingPublisher{}
	observer := &countingEventObserver{}
	forwarder := NewEventForwarder(publisher, "batcher.events", observer, discardLogger())

	at := time.Now().UTC()
	events := []domain.Event{
		domain.NewEvent(domain.EventParticipantJoined, common.HexToAddress("0x01"), at).WithBatch(1),
		domain.NewEvent(domain.EventBatchStateChanged, common.HexToAddress("0x01"), at).WithBatch(1),
	}
	forwarder.Publish(context.Background(), events)

	if len(publisher.messages) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(publisher.messages))
	}
	if publisher.messages[0].exchange != "batcher.events" || publisher.messages[0].routingKey != "participant.joined" {
		t.Fatalf("unexpected first message: %+v", publisher.messages[0])
	}
	if publisher.messages[1].routingKey != "batch.state_changed" {
		t.Fatalf("unexpected second routing key %q", publisher.messages[1].routingKey)
	}
	if observer.seen != 2 {
		t.Fatalf("observer saw %d events, want 2", observer.seen)
	}
}

func TestEventForwarder_PublishFailureIsNotFatal(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("channel closed")}
	forwarder := NewEventForwarder(publisher, "batcher.events", nil, discardLogger())

	events := []domain.Event{
		domain.NewEvent(domain.EventLedgerPaused, common.Address{}, time.Now().UTC()),
		domain.NewEvent(domain.EventLedgerUnpaused, common.Address{}, time.Now().UTC()),
	}
	forwarder.Publish(context.Background(), events)

	if len(publisher.messages) != 2 {
		t.Fatalf("every event should be attempted, got %d", len(publisher.messages))
	}
}
