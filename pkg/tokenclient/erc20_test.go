package tokenclient

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// stubReceipts answers receipt lookups from a fixed table.
type stubReceipts struct {
	receipts map[common.Hash]*types.Receipt
}

func (s *stubReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := s.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (s *stubReceipts) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func testTx(nonce uint64) *types.Transaction {
	return types.NewTransaction(nonce, common.HexToAddress("0x70"), big.NewInt(0), 60000, big.NewInt(1), nil)
}

func TestAwaitReceipt(t *testing.T) {
	mined, reverted, lost := testTx(1), testTx(2), testTx(3)
	client := &ERC20Client{
		receipts: &stubReceipts{receipts: map[common.Hash]*types.Receipt{
			mined.Hash():    {Status: types.ReceiptStatusSuccessful},
			reverted.Hash(): {Status: types.ReceiptStatusFailed},
		}},
		receiptTimeout: 20 * time.Millisecond,
	}
	ctx := context.Background()

	if err := client.awaitReceipt(ctx, "transfer", mined); err != nil {
		t.Fatalf("mined transaction returned error: %v", err)
	}

	err := client.awaitReceipt(ctx, "transfer", reverted)
	if !errors.Is(err, ErrTransactionReverted) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if errors.Is(err, ErrTransactionPending) {
		t.Fatal("a reverted transaction has a known outcome")
	}

	err = client.awaitReceipt(ctx, "transferFrom", lost)
	if !errors.Is(err, ErrTransactionPending) {
		t.Fatalf("expected pending error, got %v", err)
	}
	var pending *PendingError
	if !errors.As(err, &pending) {
		t.Fatalf("expected *PendingError, got %T", err)
	}
	if pending.Hash != lost.Hash() || pending.Method != "transferFrom" {
		t.Fatalf("unexpected pending details: %+v", pending)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("pending error should wrap the wait failure, got %v", err)
	}
}
