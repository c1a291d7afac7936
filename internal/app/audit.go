package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
)

// AuditConsumer persists every ledger event delivered by the message bus.
type AuditConsumer struct {
	repo    store.AuditRepository
	logger  *slog.Logger
	timeout time.Duration
}

func NewAuditConsumer(repo store.AuditRepository, logger *slog.Logger) *AuditConsumer {
	return &AuditConsumer{repo: repo, logger: logger, timeout: 10 * time.Second}
}

// HandleEvent returns false only for failures worth retrying. Malformed
// payloads are dropped.
func (c *AuditConsumer) HandleEvent(routingKey string, body []byte) bool {
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error("failed to decode ledger event, dropping", "routing_key", routingKey, "error", err)
		return true
	}
	if event.ID == uuid.Nil {
		c.logger.Error("ledger event without id, dropping", "routing_key", routingKey)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	inserted, err := c.repo.RecordAuditEvent(ctx, event, routingKey, body)
	if err != nil {
		c.logger.Error("failed to record audit event", "event_id", event.ID.String(), "error", err)
		return false
	}
	if !inserted {
		c.logger.Info("duplicate ledger event ignored", "event_id", event.ID.String())
	}
	return true
}
