package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// MemoryRepository keeps the ledger in process memory. It backs local runs
// without DATABASE_URL and the unit tests.
type MemoryRepository struct {
	mu           sync.Mutex
	global       *domain.GlobalState
	batches      map[uint64]domain.Batch
	participants map[domain.ParticipantKey]domain.Participant
	codes        map[common.Hash]domain.DiscountCode
	redemptions  map[redemptionKey]domain.Redemption
	roles        map[common.Address]domain.RoleAssignment
	events       []domain.Event
	audit        map[uuid.UUID]string

	// FailCommit, when set, is returned by the next Commit after settle ran.
	FailCommit error
}

type redemptionKey struct {
	code    common.Hash
	address common.Address
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches:      make(map[uint64]domain.Batch),
		participants: make(map[domain.ParticipantKey]domain.Participant),
		codes:        make(map[common.Hash]domain.DiscountCode),
		redemptions:  make(map[redemptionKey]domain.Redemption),
		roles:        make(map[common.Address]domain.RoleAssignment),
		audit:        make(map[uuid.UUID]string),
	}
}

func (r *MemoryRepository) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap Snapshot
	if r.global != nil {
		global := *r.global
		snap.Global = &global
	}
	for _, b := range r.batches {
		snap.Batches = append(snap.Batches, b)
	}
	sort.Slice(snap.Batches, func(i, j int) bool { return snap.Batches[i].ID < snap.Batches[j].ID })
	for _, p := range r.participants {
		snap.Participants = append(snap.Participants, p)
	}
	for _, c := range r.codes {
		snap.Codes = append(snap.Codes, c)
	}
	for _, red := range r.redemptions {
		snap.Redemptions = append(snap.Redemptions, red)
	}
	for _, role := range r.roles {
		snap.Roles = append(snap.Roles, role)
	}
	return snap, nil
}

func (r *MemoryRepository) Commit(ctx context.Context, cs Changeset, settle SettleFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}
	if r.FailCommit != nil {
		err := r.FailCommit
		r.FailCommit = nil
		if settle != nil {
			return fmt.Errorf("%w: %v", ErrCommitAfterSettlement, err)
		}
		return err
	}

	if cs.Global != nil {
		global := *cs.Global
		r.global = &global
	}
	for _, b := range cs.Batches {
		r.batches[b.ID] = b
	}
	for _, key := range cs.Removed {
		delete(r.participants, key)
	}
	for _, p := range cs.Participants {
		r.participants[p.Key()] = p
	}
	for _, c := range cs.Codes {
		r.codes[c.CodeHash] = c
	}
	for _, red := range cs.Redemptions {
		r.redemptions[redemptionKey{code: red.CodeHash, address: red.Address}] = red
	}
	for _, role := range cs.Roles {
		if role.Role == domain.RoleNone {
			delete(r.roles, role.Address)
			continue
		}
		r.roles[role.Address] = role
	}
	r.events = append(r.events, cs.Events...)
	return nil
}

// ListEvents returns the most recent events, oldest first. batchID 0 matches every batch.
func (r *MemoryRepository) ListEvents(ctx context.Context, batchID uint64, limit int) ([]domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if batchID != 0 && r.events[i].BatchID != batchID {
			continue
		}
		out = append(out, r.events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryRepository) RecordAuditEvent(ctx context.Context, event domain.Event, routingKey string, payload []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.audit[event.ID]; seen {
		return false, nil
	}
	r.audit[event.ID] = routingKey
	return true, nil
}
