package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// WithdrawFunds sends amount of the operating funds to the calling admin.
func (l *Ledger) WithdrawFunds(ctx context.Context, caller common.Address, amount int64) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if amount <= 0 {
			return ErrInvalidAmount
		}
		if amount > t.global.OperatingFunds {
			return ErrInsufficientBalance
		}
		g := t.global
		g.OperatingFunds -= amount
		t.setGlobal(g)
		t.push(caller, amount)
		t.emit(t.event(domain.EventFundsWithdrawn).WithAccount(caller).WithAmount(amount))
		return nil
	})
}

// WithdrawSlashedFunds sends the whole penalty pool to the calling admin and
// returns the amount sent.
func (l *Ledger) WithdrawSlashedFunds(ctx context.Context, caller common.Address) (int64, error) {
	var amount int64
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if t.global.SlashedFunds <= 0 {
			return ErrInsufficientBalance
		}
		amount = t.global.SlashedFunds
		g := t.global
		g.SlashedFunds = 0
		t.setGlobal(g)
		t.push(caller, amount)
		t.emit(t.event(domain.EventSlashedFundsWithdrawn).WithAccount(caller).WithAmount(amount))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// RemoveParticipant refunds and deletes a participant of a batch that has not
// started sequencing yet. Slashed penalties stay in the slashed pool.
func (l *Ledger) RemoveParticipant(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (int64, error) {
	var refund int64
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if batch.State > domain.BatchActive {
			return ErrParticipantSettled
		}
		p, ok := t.participant(batchID, account)
		if !ok {
			return ErrNotParticipant
		}

		refund = p.Refundable()
		if refund > t.global.OperatingFunds {
			return ErrInsufficientBalance
		}
		g := t.global
		g.OperatingFunds -= refund
		t.setGlobal(g)

		t.removeParticipant(p.Key())
		batch.ParticipantCount--
		t.putBatch(batch)
		t.push(account, refund)
		t.emit(t.event(domain.EventParticipantRemoved).WithBatch(batchID).WithAccount(account).WithAmount(refund))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}
