package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// TransitionBatchState advances a batch to target, which must be its immediate
// successor. balancePrice is only read for the move to Active; zero means the
// price set earlier with SetBatchBalancePrice.
//
// Pending to Staged cannot be requested here: it happens when the last slot fills.
func (l *Ledger) TransitionBatchState(ctx context.Context, caller common.Address, batchID uint64, target domain.BatchState, balancePrice int64) (domain.Batch, error) {
	var result domain.Batch
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if !target.Valid() || !batch.State.CanTransitionTo(target) || target == domain.BatchStaged {
			return ErrInvalidTransition
		}

		switch target {
		case domain.BatchActive:
			if err := activate(t, &batch, balancePrice, l.policy); err != nil {
				return err
			}
		case domain.BatchSequencing:
			for _, p := range t.participantsOf(batch.ID) {
				if !p.BalancePaid {
					return ErrParticipantsUnpaid
				}
			}
		}

		from := batch.State
		batch.State = target
		batch.StateChangedAt = t.now
		t.putBatch(batch)
		t.emit(t.event(domain.EventBatchStateChanged).WithBatch(batch.ID).WithTransition(from, target))
		result = batch
		return nil
	})
	if err != nil {
		return domain.Batch{}, err
	}
	return result, nil
}

// activate fixes the balance price and starts every participant's payment window.
func activate(t *txn, batch *domain.Batch, balancePrice int64, policy domain.Policy) error {
	if balancePrice < 0 {
		return ErrZeroPrice
	}
	price := balancePrice
	if price == 0 {
		price = batch.BalancePrice
	}
	if price <= 0 {
		return ErrZeroPrice
	}
	if price != batch.BalancePrice {
		t.emit(t.event(domain.EventBalancePriceChanged).WithBatch(batch.ID).WithAmount(price))
	}
	batch.BalancePrice = price
	batch.BalancePriceLocked = true

	deadline := t.now.Add(policy.PaymentWindow)
	for _, p := range t.participantsOf(batch.ID) {
		d := deadline
		p.PaymentDeadline = &d
		t.putParticipant(p)
	}
	return nil
}
