package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// JoinBatch admits caller to the current batch at the current deposit price.
func (l *Ledger) JoinBatch(ctx context.Context, caller common.Address) (domain.Participant, error) {
	return l.join(ctx, caller, nil)
}

// JoinBatchWithDiscount admits caller to the current batch, redeeming code on the deposit.
func (l *Ledger) JoinBatchWithDiscount(ctx context.Context, caller common.Address, code common.Hash) (domain.Participant, error) {
	return l.join(ctx, caller, &code)
}

func (l *Ledger) join(ctx context.Context, caller common.Address, code *common.Hash) (domain.Participant, error) {
	var joined domain.Participant
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireRunning(t); err != nil {
			return err
		}
		if caller == (common.Address{}) {
			return ErrInvalidAddress
		}

		batch, err := t.batch(t.global.CurrentBatchID)
		if err != nil {
			return err
		}
		if batch.State != domain.BatchPending || batch.Full() {
			return ErrBatchNotPending
		}
		if _, exists := t.participant(batch.ID, caller); exists {
			return ErrAlreadyJoined
		}

		due, err := resolveAmount(t, caller, batch.ID, t.global.DepositPrice, code, domain.PaymentDeposit)
		if err != nil {
			return err
		}
		if err := l.requireAllowance(ctx, caller, due); err != nil {
			return err
		}

		joined = domain.Participant{
			BatchID:       batch.ID,
			Address:       caller,
			DepositAmount: due,
			JoinedAt:      t.now,
		}
		t.putParticipant(joined)
		t.pull(caller, due)

		g := t.global
		g.OperatingFunds += due
		t.setGlobal(g)

		batch.ParticipantCount++
		t.emit(t.event(domain.EventParticipantJoined).WithBatch(batch.ID).WithAccount(caller).WithAmount(due))

		if batch.Full() {
			stageBatch(t, &batch)
		}
		t.putBatch(batch)
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return joined, nil
}

// stageBatch moves a filled batch to Staged and opens its successor.
func stageBatch(t *txn, batch *domain.Batch) {
	from := batch.State
	batch.State = domain.BatchStaged
	batch.StateChangedAt = t.now
	t.emit(t.event(domain.EventBatchStateChanged).WithBatch(batch.ID).WithTransition(from, domain.BatchStaged))
	openBatch(t, batch.ID+1)
}

func openBatch(t *txn, id uint64) {
	t.putBatch(domain.Batch{
		ID:             id,
		State:          domain.BatchPending,
		MaxSize:        t.global.DefaultMaxSize,
		CreatedAt:      t.now,
		StateChangedAt: t.now,
	})
	g := t.global
	g.CurrentBatchID = id
	t.setGlobal(g)
	t.emit(t.event(domain.EventBatchCreated).WithBatch(id))
}
