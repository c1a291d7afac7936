package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// SetBatchMaxSize resizes a Pending batch. The new size must leave at least one
// free slot, otherwise the batch would be full without ever being staged.
func (l *Ledger) SetBatchMaxSize(ctx context.Context, caller common.Address, batchID uint64, size uint32) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if batch.State != domain.BatchPending {
			return ErrBatchNotPending
		}
		if size <= batch.ParticipantCount {
			return ErrInvalidMaxSize
		}
		batch.MaxSize = size
		t.putBatch(batch)
		t.emit(t.event(domain.EventBatchMaxSizeChanged).WithBatch(batchID).WithAmount(int64(size)))
		return nil
	})
}

// SetDefaultBatchSize changes the capacity of batches opened from now on.
func (l *Ledger) SetDefaultBatchSize(ctx context.Context, caller common.Address, size uint32) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if size == 0 {
			return ErrInvalidMaxSize
		}
		g := t.global
		g.DefaultMaxSize = size
		t.setGlobal(g)
		t.emit(t.event(domain.EventDefaultSizeChanged).WithAmount(int64(size)))
		return nil
	})
}

// Pause blocks joins, balance payments and commitments until Unpause.
func (l *Ledger) Pause(ctx context.Context, caller common.Address) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if t.global.Paused {
			return ErrPaused
		}
		g := t.global
		g.Paused = true
		t.setGlobal(g)
		t.emit(t.event(domain.EventLedgerPaused))
		return nil
	})
}

// Unpause lets participant operations run again.
func (l *Ledger) Unpause(ctx context.Context, caller common.Address) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if !t.global.Paused {
			return ErrNotPaused
		}
		g := t.global
		g.Paused = false
		t.setGlobal(g)
		t.emit(t.event(domain.EventLedgerUnpaused))
		return nil
	})
}

// GrantAdmin gives account the admin role.
func (l *Ledger) GrantAdmin(ctx context.Context, caller common.Address, account common.Address) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if account == (common.Address{}) {
			return ErrInvalidAddress
		}
		if t.role(account) == domain.RoleAdmin {
			return ErrAlreadyAdmin
		}
		t.setRole(account, domain.RoleAdmin)
		t.emit(t.event(domain.EventRoleGranted).WithAccount(account))
		return nil
	})
}

// RevokeAdmin removes account's admin role. The last admin cannot be removed.
func (l *Ledger) RevokeAdmin(ctx context.Context, caller common.Address, account common.Address) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if t.role(account) != domain.RoleAdmin {
			return ErrNotAdmin
		}
		if len(t.admins()) <= 1 {
			return ErrLastAdmin
		}
		t.setRole(account, domain.RoleNone)
		t.emit(t.event(domain.EventRoleRevoked).WithAccount(account))
		return nil
	})
}
