/**
 * @description
 * Domain models for sequencing batches and their lifecycle.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common: participant addresses and commitment hashes.
 */
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BatchState is the lifecycle position of a batch. The set is closed.
type BatchState uint8

const (
	BatchPending BatchState = iota
	BatchStaged
	BatchActive
	BatchSequencing
	BatchCompleted
	BatchPurged
)

var batchStateNames = [...]string{
	BatchPending:    "pending",
	BatchStaged:     "staged",
	BatchActive:     "active",
	BatchSequencing: "sequencing",
	BatchCompleted:  "completed",
	BatchPurged:     "purged",
}

// nextBatchState is the transition table. Purged has no successor.
var nextBatchState = map[BatchState]BatchState{
	BatchPending:    BatchStaged,
	BatchStaged:     BatchActive,
	BatchActive:     BatchSequencing,
	BatchSequencing: BatchCompleted,
	BatchCompleted:  BatchPurged,
}

func (s BatchState) String() string {
	if int(s) < len(batchStateNames) {
		return batchStateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Valid reports whether s is one of the six known states.
func (s BatchState) Valid() bool {
	return int(s) < len(batchStateNames)
}

// Next returns the only state s may move to.
func (s BatchState) Next() (BatchState, bool) {
	next, ok := nextBatchState[s]
	return next, ok
}

// CanTransitionTo reports whether target is the immediate successor of s.
func (s BatchState) CanTransitionTo(target BatchState) bool {
	next, ok := s.Next()
	return ok && next == target
}

func (s BatchState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid batch state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *BatchState) UnmarshalText(text []byte) error {
	parsed, err := ParseBatchState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseBatchState accepts the lower-case state name, case-insensitively.
func ParseBatchState(raw string) (BatchState, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range batchStateNames {
		if name == normalized {
			return BatchState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown batch state %q", raw)
}

// Batch is a fixed-capacity cohort that jointly funds one sequencing run.
type Batch struct {
	ID               uint64     `json:"id"`
	State            BatchState `json:"state"`
	MaxSize          uint32     `json:"max_size"`
	ParticipantCount uint32     `json:"participant_count"`
	// BalancePrice is zero until set. It becomes immutable once the batch is Active.
	BalancePrice       int64     `json:"balance_price"`
	BalancePriceLocked bool      `json:"balance_price_locked"`
	CreatedAt          time.Time `json:"created_at"`
	StateChangedAt     time.Time `json:"state_changed_at"`
}

// Full reports whether the batch has no free slot left.
func (b Batch) Full() bool {
	return b.ParticipantCount >= b.MaxSize
}

// ParticipantKey identifies a participant record.
type ParticipantKey struct {
	BatchID uint64
	Address common.Address
}

// Participant is one address's membership record in one batch.
type Participant struct {
	BatchID         uint64         `json:"batch_id"`
	Address         common.Address `json:"address"`
	DepositAmount   int64          `json:"deposit_amount"`
	BalanceAmount   int64          `json:"balance_amount"`
	BalancePaid     bool           `json:"balance_paid"`
	Slashed         bool           `json:"slashed"`
	SlashedAmount   int64          `json:"slashed_amount"`
	CommitmentHash  *common.Hash   `json:"commitment_hash,omitempty"`
	JoinedAt        time.Time      `json:"joined_at"`
	PaymentDeadline *time.Time     `json:"payment_deadline,omitempty"`
}

func (p Participant) Key() ParticipantKey {
	return ParticipantKey{BatchID: p.BatchID, Address: p.Address}
}

// Refundable is what custody still owes the participant if they are removed.
func (p Participant) Refundable() int64 {
	total := p.DepositAmount
	if p.BalancePaid {
		total += p.BalanceAmount
	}
	return total
}
