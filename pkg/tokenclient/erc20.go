/**
 * @description
 * ERC-20 client used as the custody token. Reads go through eth_call, writes are
 * signed with the custody key and waited on until mined.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum: ABI binding, JSON-RPC client, transaction signing.
 */
package tokenclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	ErrTransactionReverted = errors.New("token transaction reverted")
	// ErrTransactionPending means a transaction was submitted but its receipt
	// never arrived, so it may still be mined.
	ErrTransactionPending = errors.New("token transaction outcome unknown")
)

// PendingError identifies a submitted transaction whose outcome is unknown.
type PendingError struct {
	Method string
	Hash   common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("token %s %s not mined: %v", e.Method, e.Hash.Hex(), e.Err)
}

func (e *PendingError) Is(target error) bool {
	return target == ErrTransactionPending
}

func (e *PendingError) Unwrap() error {
	return e.Err
}

// Config configures an ERC-20 client.
type Config struct {
	RPCURL         string
	TokenAddress   string
	ChainID        int64
	CustodyKey     string
	ReceiptTimeout time.Duration
}

// ERC20Client moves the custody token on chain.
type ERC20Client struct {
	backend        *ethclient.Client
	receipts       bind.DeployBackend
	contract       *bind.BoundContract
	key            *ecdsa.PrivateKey
	custody        common.Address
	chainID        *big.Int
	receiptTimeout time.Duration
}

// Dial connects to the RPC endpoint and binds the token contract.
func Dial(ctx context.Context, cfg Config) (*ERC20Client, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.CustodyKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid custody key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token abi: %w", err)
	}
	backend, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial token rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = backend.ChainID(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	address := common.HexToAddress(cfg.TokenAddress)
	return &ERC20Client{
		backend:        backend,
		receipts:       backend,
		contract:       bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:            key,
		custody:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		receiptTimeout: timeout,
	}, nil
}

func (c *ERC20Client) Close() {
	c.backend.Close()
}

func (c *ERC20Client) Custody() common.Address {
	return c.custody
}

func (c *ERC20Client) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, "allowance", owner, spender)
}

func (c *ERC20Client) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, "balanceOf", account)
}

// TransferFrom pulls amount from an account that approved the custody address.
func (c *ERC20Client) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return c.transact(ctx, "transferFrom", from, to, amount)
}

// Transfer sends amount out of custody.
func (c *ERC20Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return c.transact(ctx, "transfer", to, amount)
}

func (c *ERC20Client) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("token %s call failed: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("token %s returned %d values", method, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("token %s returned %T", method, out[0])
	}
	return value, nil
}

func (c *ERC20Client) transact(ctx context.Context, method string, params ...interface{}) error {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("token %s failed: %w", method, err)
	}

	return c.awaitReceipt(ctx, method, tx)
}

// awaitReceipt waits for tx to be mined. Running out of time is reported as a
// PendingError because the transaction can still land afterwards.
func (c *ERC20Client) awaitReceipt(ctx context.Context, method string, tx *types.Transaction) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.receipts, tx)
	if err != nil {
		return &PendingError{Method: method, Hash: tx.Hash(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s %s", ErrTransactionReverted, method, tx.Hash().Hex())
	}
	return nil
}
