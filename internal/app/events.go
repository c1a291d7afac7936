package app

import (
	"context"
	"log/slog"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// EventObserver receives every committed event, e.g. for metrics.
type EventObserver interface {
	ObserveEvents(events []domain.Event)
}

// EventForwarder publishes committed ledger events to the message bus. Events
// are already durable in the ledger journal, so a failed publish is logged and
// does not fail the operation.
type EventForwarder struct {
	publisher EventPublisher
	exchange  string
	observer  EventObserver
	logger    *slog.Logger
}

func NewEventForwarder(publisher EventPublisher, exchange string, observer EventObserver, logger *slog.Logger) *EventForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventForwarder{publisher: publisher, exchange: exchange, observer: observer, logger: logger}
}

func (f *EventForwarder) Publish(ctx context.Context, events []domain.Event) {
	if f.observer != nil {
		f.observer.ObserveEvents(events)
	}
	for _, ev := range events {
		f.logger.Info("ledger event",
			"event_id", ev.ID.String(),
			"event_type", string(ev.Type),
			"batch_id", ev.BatchID,
			"amount", ev.Amount)
		if f.publisher == nil {
			continue
		}
		if err := f.publisher.Publish(ctx, f.exchange, string(ev.Type), ev); err != nil {
			f.logger.Warn("failed to publish ledger event",
				"event_id", ev.ID.String(),
				"event_type", string(ev.Type),
				"error", err)
		}
	}
}
