/**
 * @description
 * This file defines the `Repository` contract the ledger persists through. The ledger
 * keeps its working state in memory and hands the store one Changeset per committed
 * operation; the store writes the whole changeset atomically or nothing at all.
 *
 * @dependencies
 * - internal/domain: For the ledger's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

var (
	ErrSnapshotCorrupt = errors.New("stored ledger snapshot is inconsistent")
	// ErrCommitAfterSettlement means the settle callback succeeded but the
	// changeset could not be committed afterwards.
	ErrCommitAfterSettlement = errors.New("commit failed after settlement")
)

// Snapshot is the full persisted ledger state.
type Snapshot struct {
	Global       *domain.GlobalState
	Batches      []domain.Batch
	Participants []domain.Participant
	Codes        []domain.DiscountCode
	Redemptions  []domain.Redemption
	Roles        []domain.RoleAssignment
}

// Empty reports whether nothing has ever been committed.
func (s Snapshot) Empty() bool {
	return s.Global == nil && len(s.Batches) == 0
}

// Changeset is everything one ledger operation modified.
type Changeset struct {
	Global       *domain.GlobalState
	Batches      []domain.Batch
	Participants []domain.Participant
	Removed      []domain.ParticipantKey
	Codes        []domain.DiscountCode
	Redemptions  []domain.Redemption
	Roles        []domain.RoleAssignment
	Events       []domain.Event
}

// SettleFunc performs the external side of an operation (token transfers). It runs
// after every row has been written and before the transaction commits.
type SettleFunc func(ctx context.Context) error

// Repository defines the persistence required by the ledger.
type Repository interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	Commit(ctx context.Context, cs Changeset, settle SettleFunc) error
	ListEvents(ctx context.Context, batchID uint64, limit int) ([]domain.Event, error)
}

// AuditRepository stores events received from the message bus.
type AuditRepository interface {
	// RecordAuditEvent returns false when the event id was already recorded.
	RecordAuditEvent(ctx context.Context, event domain.Event, routingKey string, payload []byte) (bool, error)
}
