package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

// DiscountTerms describes a code being registered.
type DiscountTerms struct {
	Value            int64
	IsPercentage     bool
	MaxUses          uint32
	AppliesToDeposit bool
	AppliesToBalance bool
}

func (d DiscountTerms) validate() error {
	if d.IsPercentage {
		if d.Value < 1 || d.Value > 100 {
			return ErrInvalidPercentage
		}
	} else if d.Value <= 0 {
		return ErrInvalidDiscountValue
	}
	if !d.AppliesToDeposit && !d.AppliesToBalance {
		return ErrInvalidDiscountScope
	}
	if d.MaxUses == 0 {
		return ErrInvalidUsageLimit
	}
	return nil
}

// resolveAmount prices a payment of basePrice, redeeming code when given.
// Code checks run in a fixed order: inactive, exhausted, already used, not applicable.
func resolveAmount(t *txn, payer common.Address, batchID uint64, basePrice int64, code *common.Hash, kind domain.PaymentKind) (int64, error) {
	if code == nil {
		return basePrice, nil
	}
	c, ok := t.code(*code)
	if !ok {
		return 0, ErrCodeNotFound
	}
	switch {
	case !c.Active:
		return 0, ErrCodeInactive
	case c.RemainingUses == 0:
		return 0, ErrCodeExhausted
	case t.redeemed(c.CodeHash, payer):
		return 0, ErrCodeAlreadyUsed
	case !c.AppliesTo(kind):
		return 0, ErrCodeNotApplicable
	}

	due := c.Apply(basePrice)
	c.RemainingUses--
	t.putCode(c)
	t.redemptions = append(t.redemptions, domain.Redemption{
		CodeHash:      c.CodeHash,
		Address:       payer,
		BatchID:       batchID,
		Kind:          kind,
		ChargedAmount: due,
		RedeemedAt:    t.now,
	})
	t.emit(t.event(domain.EventDiscountUsed).WithBatch(batchID).WithAccount(payer).WithCode(c.CodeHash).WithAmount(due))
	return due, nil
}

// SetDepositPrice changes the price charged to future joins.
func (l *Ledger) SetDepositPrice(ctx context.Context, caller common.Address, price int64) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if price <= 0 {
			return ErrZeroPrice
		}
		g := t.global
		g.DepositPrice = price
		t.setGlobal(g)
		t.emit(t.event(domain.EventDepositPriceChanged).WithAmount(price))
		return nil
	})
}

// SetBatchBalancePrice sets the balance price a Pending or Staged batch will be
// activated with.
func (l *Ledger) SetBatchBalancePrice(ctx context.Context, caller common.Address, batchID uint64, price int64) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if price <= 0 {
			return ErrZeroPrice
		}
		batch, err := t.batch(batchID)
		if err != nil {
			return err
		}
		if batch.BalancePriceLocked || batch.State > domain.BatchStaged {
			return ErrBalancePriceLocked
		}
		batch.BalancePrice = price
		t.putBatch(batch)
		t.emit(t.event(domain.EventBalancePriceChanged).WithBatch(batchID).WithAmount(price))
		return nil
	})
}

// RegisterDiscountCode registers the code identified by hash.
func (l *Ledger) RegisterDiscountCode(ctx context.Context, caller common.Address, hash common.Hash, terms DiscountTerms) (domain.DiscountCode, error) {
	var registered domain.DiscountCode
	err := l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		if err := terms.validate(); err != nil {
			return err
		}
		if _, exists := t.code(hash); exists {
			return ErrCodeAlreadyRegistered
		}
		registered = domain.DiscountCode{
			CodeHash:         hash,
			DiscountValue:    terms.Value,
			IsPercentage:     terms.IsPercentage,
			RemainingUses:    terms.MaxUses,
			Active:           true,
			AppliesToDeposit: terms.AppliesToDeposit,
			AppliesToBalance: terms.AppliesToBalance,
			CreatedAt:        t.now,
		}
		t.putCode(registered)
		t.emit(t.event(domain.EventDiscountRegistered).WithCode(hash).WithAmount(terms.Value))
		return nil
	})
	if err != nil {
		return domain.DiscountCode{}, err
	}
	return registered, nil
}

// DeactivateDiscountCode disables a code. Deactivating an inactive code is a no-op.
func (l *Ledger) DeactivateDiscountCode(ctx context.Context, caller common.Address, hash common.Hash) error {
	return l.execute(ctx, caller, func(t *txn) error {
		if err := requireAdmin(t); err != nil {
			return err
		}
		c, ok := t.code(hash)
		if !ok {
			return ErrCodeNotFound
		}
		if !c.Active {
			return nil
		}
		c.Active = false
		t.putCode(c)
		t.emit(t.event(domain.EventDiscountDeactivated).WithCode(hash))
		return nil
	})
}
