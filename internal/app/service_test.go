package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
	"github.com/Monadic-DNA/Batcher-sub000/pkg/tokenclient"
)

type recordingOperations struct {
	results map[string]string
}

func (r *recordingOperations) ObserveOperation(operation, result string) {
	if r.results == nil {
		r.results = make(map[string]string)
	}
	r.results[operation] = result
}

var (
	testAdmin   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	testCustody = common.HexToAddress("0x000000000000000000000000000000000000c057")
)

func newTestService(t *testing.T) (*Service, *tokenclient.MemoryToken, *recordingOperations) {
	t.Helper()
	token := tokenclient.NewMemoryToken(testCustody)
	l, err := ledger.Open(context.Background(), ledger.Options{
		Repository: store.NewMemoryRepository(),
		Token:      token,
		Logger:     discardLogger(),
		Policy:     domain.Policy{PaymentWindow: 7 * 24 * time.Hour, PatienceWindow: 180 * 24 * time.Hour, SlashPenaltyPercent: 50},
		Genesis:    ledger.Genesis{DepositPrice: 25, DefaultMaxSize: 2, Admins: []common.Address{testAdmin}},
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	ops := &recordingOperations{}
	return NewService(l, ops), token, ops
}

func TestResolveCodeHash(t *testing.T) {
	plain := ResolveCodeHash("save20")
	if plain != domain.HashDiscountCode("SAVE20") {
		t.Fatal("plain codes should be hashed")
	}
	if got := ResolveCodeHash(plain.Hex()); got != plain {
		t.Fatalf("hex hash should pass through, got %s", got.Hex())
	}
}

func TestService_JoinWithPlainCode(t *testing.T) {
	svc, token, ops := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCode(ctx, testAdmin, "Welcome", ledger.DiscountTerms{Value: 20, IsPercentage: true, MaxUses: 1, AppliesToDeposit: true}); err != nil {
		t.Fatalf("RegisterCode returned error: %v", err)
	}
	caller := common.HexToAddress("0x01")
	token.Mint(caller, 25)
	token.Approve(caller, testCustody, 25)

	p, err := svc.Join(ctx, caller, " welcome ")
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if p.DepositAmount != 20 {
		t.Fatalf("deposit = %d, want 20", p.DepositAmount)
	}
	if ops.results["join_batch"] != "ok" {
		t.Fatalf("join not observed as ok: %v", ops.results)
	}

	code, err := svc.LookupCode("WELCOME")
	if err != nil {
		t.Fatalf("LookupCode returned error: %v", err)
	}
	if code.RemainingUses != 0 {
		t.Fatalf("remaining uses = %d, want 0", code.RemainingUses)
	}
}

func TestService_ObservesErrorCodes(t *testing.T) {
	svc, _, ops := newTestService(t)
	ctx := context.Background()

	_, err := svc.Join(ctx, common.HexToAddress("0x01"), "")
	if !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if ops.results["join_batch"] != "InsufficientAllowance" {
		t.Fatalf("unexpected observed result %q", ops.results["join_batch"])
	}

	_, err = svc.RegisterCode(ctx, testAdmin, "   ", ledger.DiscountTerms{Value: 5, MaxUses: 1, AppliesToDeposit: true})
	if !errors.Is(err, ledger.ErrInvalidCode) {
		t.Fatalf("expected invalid code error, got %v", err)
	}

	_, err = svc.Transition(ctx, testAdmin, 1, "shipping", 0)
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for unknown state, got %v", err)
	}
}

func TestService_PauseAndAdminToggles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	other := common.HexToAddress("0x02")

	if err := svc.SetPaused(ctx, testAdmin, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !svc.Paused() {
		t.Fatal("ledger should be paused")
	}
	if err := svc.SetPaused(ctx, testAdmin, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := svc.SetAdmin(ctx, testAdmin, other, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !svc.IsAdmin(other) {
		t.Fatal("expected granted admin")
	}
	if err := svc.SetAdmin(ctx, other, testAdmin, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if svc.IsAdmin(testAdmin) {
		t.Fatal("expected revoked admin")
	}
}
