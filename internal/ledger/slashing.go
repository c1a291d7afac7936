package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// canStillPay reports whether p may still settle (or has settled) the balance at now.
func canStillPay(p domain.Participant, now time.Time, policy domain.Policy) bool {
	if p.BalancePaid {
		return true
	}
	if p.PaymentDeadline == nil {
		return false
	}
	deadline := *p.PaymentDeadline
	if !now.After(deadline) {
		return true
	}
	return p.Slashed && !now.After(deadline.Add(policy.PatienceWindow))
}

// paymentWindowError explains why p can no longer pay at now, or returns nil.
func paymentWindowError(p domain.Participant, now time.Time, policy domain.Policy) error {
	if canStillPay(p, now, policy) {
		return nil
	}
	if p.Slashed {
		return ErrPatienceWindowExpired
	}
	return ErrPaymentWindowExpired
}

// PayBalance settles caller's balance in an Active batch at the batch price.
func (l *Ledger) PayBalance(ctx context.Context, caller common.Address, batchID uint64) (domain.Participant, error) {
	return l.payBalance(ctx, caller, batchID, nil)
}

// PayBalanceWithDiscount settles caller's balance, redeeming code.
func (l *Ledger) PayBalanceWithDiscount(ctx context.Context, caller common.Address, batchID uint64, code common.Hash) (domain.Participant, error) {
	return l.payBalance(ctx, caller, batchID, &code)
}

func (l *Ledger) payBalance(ctx context.Context, caller common.Address, batchID uint64, code *common.Hash) (domain.Participant, error) {
	var paid domain.Participant
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireRunning(t); err != nil {
			return err
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if batch.State != domain.BatchActive {
			return ErrBatchNotActive
		}
		p, ok := t.participant(batchID, caller)
		if !ok {
			return ErrNotParticipant
		}
		if p.BalancePaid {
			return ErrUserAlreadyPaid
		}
		if err := paymentWindowError(p, t.now, l.policy); err != nil {
			return err
		}

		due, err := resolveAmount(t, caller, batchID, batch.BalancePrice, code, domain.PaymentBalance)
		if err != nil {
			return err
		}
		if err := l.requireAllowance(ctx, caller, due); err != nil {
			return err
		}

		p.BalanceAmount = due
		p.BalancePaid = true
		t.putParticipant(p)
		t.pull(caller, due)

		g := t.global
		g.OperatingFunds += due
		t.setGlobal(g)

		t.emit(t.event(domain.EventBalancePaid).WithBatch(batchID).WithAccount(caller).WithAmount(due))
		paid = p
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return paid, nil
}

// SlashUser penalises a participant whose payment window passed without payment.
// The penalty leaves the deposit and moves into the slashed pool. It fails with
// ErrInsufficientBalance when the operating pool no longer covers the penalty.
func (l *Ledger) SlashUser(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (domain.Participant, error) {
	var slashed domain.Participant
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if batch.State != domain.BatchActive {
			return ErrBatchNotActive
		}
		p, ok := t.participant(batchID, account)
		if !ok {
			return ErrNotParticipant
		}
		switch {
		case p.BalancePaid:
			return ErrUserAlreadyPaid
		case p.Slashed:
			return ErrAlreadySlashed
		case p.PaymentDeadline == nil || !t.now.After(*p.PaymentDeadline):
			return ErrPaymentWindowNotExpired
		}

		// The penalty must still be held in custody; withdrawals may have taken it.
		penalty := p.DepositAmount * l.policy.SlashPenaltyPercent / 100
		if penalty > t.global.OperatingFunds {
			return ErrInsufficientBalance
		}
		p.DepositAmount -= penalty
		p.SlashedAmount = penalty
		p.Slashed = true
		t.putParticipant(p)

		g := t.global
		g.OperatingFunds -= penalty
		g.SlashedFunds += penalty
		t.setGlobal(g)

		t.emit(t.event(domain.EventParticipantSlashed).WithBatch(batchID).WithAccount(account).WithAmount(penalty))
		slashed = p
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return slashed, nil
}

// StoreCommitmentHash records (or replaces) caller's commitment for a batch.
func (l *Ledger) StoreCommitmentHash(ctx context.Context, caller common.Address, batchID uint64, hash common.Hash) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireRunning(t); err != nil {
			return err
		}
		if hash == (common.Hash{}) {
			return ErrInvalidCommitment
		}
		if _, err := t.batch(batchID); err != nil {
			return err
		}
		p, ok := t.participant(batchID, caller)
		if !ok {
			return ErrNotParticipant
		}
		if !p.BalancePaid {
			return ErrCommitmentRequiresPayment
		}
		h := hash
		p.CommitmentHash = &h
		t.putParticipant(p)
		t.emit(t.event(domain.EventCommitmentStored).WithBatch(batchID).WithAccount(caller).WithCommitment(hash))
		return nil
	})
}
