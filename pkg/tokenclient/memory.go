package tokenclient

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientTokenBalance   = errors.New("token balance too low")
	ErrInsufficientTokenAllowance = errors.New("token allowance too low")
)

// MemoryToken is an in-process ERC-20 ledger with the same semantics as the
// on-chain token: transferFrom consumes allowance granted to the custody address.
type MemoryToken struct {
	mu         sync.Mutex
	custody    common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	// FailTransfers, when set, is returned by every transfer.
	FailTransfers error
	// PendTransfers makes every transfer move the tokens but report a
	// PendingError, like a transaction mined after its receipt wait gave up.
	PendTransfers bool
	submitted     uint64
}

func NewMemoryToken(custody common.Address) *MemoryToken {
	return &MemoryToken{
		custody:    custody,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (m *MemoryToken) Custody() common.Address {
	return m.custody
}

// Mint credits amount to account.
func (m *MemoryToken) Mint(account common.Address, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Add(m.balanceLocked(account), big.NewInt(amount))
}

// Approve sets owner's allowance for spender, replacing any previous value.
func (m *MemoryToken) Approve(owner, spender common.Address, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOwner, ok := m.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		m.allowances[owner] = byOwner
	}
	byOwner[spender] = big.NewInt(amount)
}

func (m *MemoryToken) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowanceLocked(owner, spender)), nil
}

func (m *MemoryToken) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balanceLocked(account)), nil
}

func (m *MemoryToken) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTransfers != nil {
		return m.FailTransfers
	}
	allowance := m.allowanceLocked(from, m.custody)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientTokenAllowance
	}
	if err := m.moveLocked(from, to, amount); err != nil {
		return err
	}
	if byOwner, ok := m.allowances[from]; ok {
		byOwner[m.custody] = new(big.Int).Sub(allowance, amount)
	}
	return m.outcomeLocked("transferFrom")
}

func (m *MemoryToken) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTransfers != nil {
		return m.FailTransfers
	}
	if err := m.moveLocked(m.custody, to, amount); err != nil {
		return err
	}
	return m.outcomeLocked("transfer")
}

func (m *MemoryToken) outcomeLocked(method string) error {
	m.submitted++
	if !m.PendTransfers {
		return nil
	}
	return &PendingError{
		Method: method,
		Hash:   common.BigToHash(new(big.Int).SetUint64(m.submitted)),
		Err:    context.DeadlineExceeded,
	}
}

func (m *MemoryToken) moveLocked(from, to common.Address, amount *big.Int) error {
	balance := m.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientTokenBalance
	}
	m.balances[from] = new(big.Int).Sub(balance, amount)
	m.balances[to] = new(big.Int).Add(m.balanceLocked(to), amount)
	return nil
}

func (m *MemoryToken) balanceLocked(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (m *MemoryToken) allowanceLocked(owner, spender common.Address) *big.Int {
	if a, ok := m.allowances[owner][spender]; ok {
		return a
	}
	return new(big.Int)
}
