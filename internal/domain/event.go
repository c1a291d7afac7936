package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType doubles as the routing key events are published under.
type EventType string

const (
	EventBatchCreated          EventType = "batch.created"
	EventBatchStateChanged     EventType = "batch.state_changed"
	EventBatchMaxSizeChanged   EventType = "batch.max_size_changed"
	EventParticipantJoined     EventType = "participant.joined"
	EventBalancePaid           EventType = "participant.balance_paid"
	EventParticipantSlashed    EventType = "participant.slashed"
	EventParticipantRemoved    EventType = "participant.removed"
	EventCommitmentStored      EventType = "participant.commitment_stored"
	EventDepositPriceChanged   EventType = "pricing.deposit_changed"
	EventBalancePriceChanged   EventType = "pricing.balance_changed"
	EventDefaultSizeChanged    EventType = "pricing.default_size_changed"
	EventDiscountRegistered    EventType = "discount.registered"
	EventDiscountUsed          EventType = "discount.used"
	EventDiscountDeactivated   EventType = "discount.deactivated"
	EventFundsWithdrawn        EventType = "funds.withdrawn"
	EventSlashedFundsWithdrawn EventType = "funds.slashed_withdrawn"
	EventLedgerPaused          EventType = "ledger.paused"
	EventLedgerUnpaused        EventType = "ledger.unpaused"
	EventRoleGranted           EventType = "role.granted"
	EventRoleRevoked           EventType = "role.revoked"
	// EventSettlementPending journals a token transfer whose outcome is unknown
	// after its operation was rolled back. It needs manual reconciliation.
	EventSettlementPending EventType = "settlement.pending"
)

// Event is the structured record every ledger mutation emits.
type Event struct {
	ID         uuid.UUID       `json:"event_id"`
	Type       EventType       `json:"event_type"`
	Actor      common.Address  `json:"actor"`
	BatchID    uint64          `json:"batch_id,omitempty"`
	Account    *common.Address `json:"account,omitempty"`
	Amount     int64           `json:"amount,omitempty"`
	FromState  *BatchState     `json:"from_state,omitempty"`
	ToState    *BatchState     `json:"to_state,omitempty"`
	CodeHash   *common.Hash    `json:"code_hash,omitempty"`
	Commitment *common.Hash    `json:"commitment,omitempty"`
	TxHash     *common.Hash    `json:"tx_hash,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, actor common.Address, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Actor:      actor,
		OccurredAt: at,
	}
}

func (e Event) WithBatch(id uint64) Event {
	e.BatchID = id
	return e
}

func (e Event) WithAccount(addr common.Address) Event {
	e.Account = &addr
	return e
}

func (e Event) WithAmount(amount int64) Event {
	e.Amount = amount
	return e
}

func (e Event) WithTransition(from, to BatchState) Event {
	e.FromState = &from
	e.ToState = &to
	return e
}

func (e Event) WithCode(hash common.Hash) Event {
	e.CodeHash = &hash
	return e
}

func (e Event) WithCommitment(hash common.Hash) Event {
	e.Commitment = &hash
	return e
}

func (e Event) WithTxHash(hash common.Hash) Event {
	e.TxHash = &hash
	return e
}
