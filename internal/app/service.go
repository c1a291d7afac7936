/**
 * @description
 * Application service in front of the ledger. It turns human-facing inputs
 * (plain discount codes, state names) into ledger calls and records metrics.
 *
 * @dependencies
 * - internal/ledger: The batch state machine.
 * - internal/metrics: Operation counters.
 */
package app

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
)

// OperationObserver records the outcome of each mutating call.
type OperationObserver interface {
	ObserveOperation(operation, result string)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string) {}

// Service exposes the ledger's views directly and wraps its mutations.
type Service struct {
	*ledger.Ledger
	observer OperationObserver
}

func NewService(l *ledger.Ledger, observer OperationObserver) *Service {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Service{Ledger: l, observer: observer}
}

func (s *Service) observe(operation string, err error) error {
	result := "ok"
	if err != nil {
		result = ledger.CodeOf(err)
	}
	s.observer.ObserveOperation(operation, result)
	return err
}

// ResolveCodeHash accepts either a 0x-prefixed 32-byte hash or a plain code.
func ResolveCodeHash(code string) common.Hash {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) == 66 && strings.HasPrefix(trimmed, "0x") {
		if raw, err := hexutil.Decode(trimmed); err == nil {
			return common.BytesToHash(raw)
		}
	}
	return domain.HashDiscountCode(trimmed)
}

// Join adds caller to the current batch, redeeming code when it is not empty.
func (s *Service) Join(ctx context.Context, caller common.Address, code string) (domain.Participant, error) {
	var (
		p   domain.Participant
		err error
	)
	if strings.TrimSpace(code) == "" {
		p, err = s.Ledger.JoinBatch(ctx, caller)
	} else {
		p, err = s.Ledger.JoinBatchWithDiscount(ctx, caller, ResolveCodeHash(code))
	}
	return p, s.observe("join_batch", err)
}

// Pay settles caller's balance in batchID, redeeming code when it is not empty.
func (s *Service) Pay(ctx context.Context, caller common.Address, batchID uint64, code string) (domain.Participant, error) {
	var (
		p   domain.Participant
		err error
	)
	if strings.TrimSpace(code) == "" {
		p, err = s.Ledger.PayBalance(ctx, caller, batchID)
	} else {
		p, err = s.Ledger.PayBalanceWithDiscount(ctx, caller, batchID, ResolveCodeHash(code))
	}
	return p, s.observe("pay_balance", err)
}

func (s *Service) Commit(ctx context.Context, caller common.Address, batchID uint64, commitment common.Hash) error {
	return s.observe("store_commitment", s.Ledger.StoreCommitmentHash(ctx, caller, batchID, commitment))
}

// Transition parses the target state name and advances the batch.
func (s *Service) Transition(ctx context.Context, caller common.Address, batchID uint64, target string, balancePrice int64) (domain.Batch, error) {
	state, err := domain.ParseBatchState(target)
	if err != nil {
		return domain.Batch{}, s.observe("transition_batch", ledger.ErrInvalidTransition)
	}
	b, err := s.Ledger.TransitionBatchState(ctx, caller, batchID, state, balancePrice)
	return b, s.observe("transition_batch", err)
}

func (s *Service) Slash(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (domain.Participant, error) {
	p, err := s.Ledger.SlashUser(ctx, caller, batchID, account)
	return p, s.observe("slash_user", err)
}

func (s *Service) Remove(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (int64, error) {
	refund, err := s.Ledger.RemoveParticipant(ctx, caller, batchID, account)
	return refund, s.observe("remove_participant", err)
}

func (s *Service) RegisterCode(ctx context.Context, caller common.Address, code string, terms ledger.DiscountTerms) (domain.DiscountCode, error) {
	if strings.TrimSpace(code) == "" {
		return domain.DiscountCode{}, s.observe("register_discount_code", ledger.ErrInvalidCode)
	}
	c, err := s.Ledger.RegisterDiscountCode(ctx, caller, domain.HashDiscountCode(code), terms)
	return c, s.observe("register_discount_code", err)
}

func (s *Service) DeactivateCode(ctx context.Context, caller common.Address, code string) error {
	return s.observe("deactivate_discount_code", s.Ledger.DeactivateDiscountCode(ctx, caller, ResolveCodeHash(code)))
}

func (s *Service) LookupCode(code string) (domain.DiscountCode, error) {
	return s.Ledger.DiscountCodeInfo(ResolveCodeHash(code))
}

func (s *Service) UpdateDepositPrice(ctx context.Context, caller common.Address, price int64) error {
	return s.observe("set_deposit_price", s.Ledger.SetDepositPrice(ctx, caller, price))
}

func (s *Service) UpdateBalancePrice(ctx context.Context, caller common.Address, batchID uint64, price int64) error {
	return s.observe("set_balance_price", s.Ledger.SetBatchBalancePrice(ctx, caller, batchID, price))
}

func (s *Service) UpdateMaxSize(ctx context.Context, caller common.Address, batchID uint64, size uint32) error {
	return s.observe("set_batch_max_size", s.Ledger.SetBatchMaxSize(ctx, caller, batchID, size))
}

func (s *Service) UpdateDefaultSize(ctx context.Context, caller common.Address, size uint32) error {
	return s.observe("set_default_batch_size", s.Ledger.SetDefaultBatchSize(ctx, caller, size))
}

func (s *Service) Withdraw(ctx context.Context, caller common.Address, amount int64) error {
	return s.observe("withdraw_funds", s.Ledger.WithdrawFunds(ctx, caller, amount))
}

func (s *Service) WithdrawSlashed(ctx context.Context, caller common.Address) (int64, error) {
	amount, err := s.Ledger.WithdrawSlashedFunds(ctx, caller)
	return amount, s.observe("withdraw_slashed_funds", err)
}

func (s *Service) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	if paused {
		return s.observe("pause", s.Ledger.Pause(ctx, caller))
	}
	return s.observe("unpause", s.Ledger.Unpause(ctx, caller))
}

func (s *Service) SetAdmin(ctx context.Context, caller, account common.Address, admin bool) error {
	if admin {
		return s.observe("grant_admin", s.Ledger.GrantAdmin(ctx, caller, account))
	}
	return s.observe("revoke_admin", s.Ledger.RevokeAdmin(ctx, caller, account))
}
