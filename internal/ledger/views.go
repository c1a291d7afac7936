package ledger

import (
	"bytes"
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// BatchInfo returns a batch by id.
func (l *Ledger) BatchInfo(batchID uint64) (domain.Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.state.batches[batchID]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return b, nil
}

// CurrentBatch returns the batch accepting joins.
func (l *Ledger) CurrentBatch() domain.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state.batches[l.state.global.CurrentBatchID]
}

// ParticipantInfo returns the record of account in a batch.
func (l *Ledger) ParticipantInfo(batchID uint64, account common.Address) (domain.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.state.batches[batchID]; !ok {
		return domain.Participant{}, ErrBatchNotFound
	}
	p, ok := l.state.participant(batchID, account)
	if !ok {
		return domain.Participant{}, ErrNotParticipant
	}
	return p, nil
}

// IsParticipant reports whether account joined the batch.
func (l *Ledger) IsParticipant(batchID uint64, account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.state.participant(batchID, account)
	return ok
}

// Participants lists a batch's participants ordered by address.
func (l *Ledger) Participants(batchID uint64) ([]domain.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.state.batches[batchID]; !ok {
		return nil, ErrBatchNotFound
	}
	out := make([]domain.Participant, 0, len(l.state.participants[batchID]))
	for _, p := range l.state.participants[batchID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

// CanStillPay is false for addresses that are not in the batch.
func (l *Ledger) CanStillPay(batchID uint64, account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.state.participant(batchID, account)
	if !ok {
		return false
	}
	return canStillPay(p, l.clock.Now().UTC(), l.policy)
}

// AllParticipantsPaid reports whether every participant of the batch paid the balance.
func (l *Ledger) AllParticipantsPaid(batchID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.state.batches[batchID]; !ok {
		return false, ErrBatchNotFound
	}
	for _, p := range l.state.participants[batchID] {
		if !p.BalancePaid {
			return false, nil
		}
	}
	return true, nil
}

// DiscountCodeInfo returns a registered code by its hash.
func (l *Ledger) DiscountCodeInfo(hash common.Hash) (domain.DiscountCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.state.codes[hash]
	if !ok {
		return domain.DiscountCode{}, ErrCodeNotFound
	}
	return c, nil
}

// HasRedeemed reports whether account already used the code.
func (l *Ledger) HasRedeemed(hash common.Hash, account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.state.redemptions[hash][account]
	return ok
}

// Funds returns the operating and slashed pools.
func (l *Ledger) Funds() domain.Funds {
	l.mu.Lock()
	defer l.mu.Unlock()

	g := l.state.global
	return domain.Funds{
		Operating: g.OperatingFunds,
		Slashed:   g.SlashedFunds,
		Total:     g.OperatingFunds + g.SlashedFunds,
	}
}

// DepositPrice is the price charged to the next joiner.
func (l *Ledger) DepositPrice() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state.global.DepositPrice
}

// Paused reports whether participant operations are blocked.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state.global.Paused
}

// IsAdmin reports whether account holds the admin role.
func (l *Ledger) IsAdmin(account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state.roles[account].Role == domain.RoleAdmin
}

// Policy returns the deadline and penalty settings the ledger runs with.
func (l *Ledger) Policy() domain.Policy {
	return l.policy
}

// OverdueParticipants lists participants of Active batches whose payment window
// has passed while they are neither paid nor slashed.
func (l *Ledger) OverdueParticipants() []domain.ParticipantKey {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	var overdue []domain.ParticipantKey
	for id, b := range l.state.batches {
		if b.State != domain.BatchActive {
			continue
		}
		for _, p := range l.state.participants[id] {
			if p.BalancePaid || p.Slashed || p.PaymentDeadline == nil {
				continue
			}
			if now.After(*p.PaymentDeadline) {
				overdue = append(overdue, p.Key())
			}
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if overdue[i].BatchID != overdue[j].BatchID {
			return overdue[i].BatchID < overdue[j].BatchID
		}
		return bytes.Compare(overdue[i].Address.Bytes(), overdue[j].Address.Bytes()) < 0
	})
	return overdue
}

// Events returns the most recent committed events of a batch (0 for all batches).
func (l *Ledger) Events(ctx context.Context, batchID uint64, limit int) ([]domain.Event, error) {
	return l.repo.ListEvents(ctx, batchID, limit)
}
