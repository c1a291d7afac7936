/**
 * @description
 * The ledger is the batch coordination and payment state machine. Every operation
 * runs under a single mutex: checks read the committed state, effects are staged in
 * a txn, the store persists the changeset and only then are tokens moved and the
 * in-memory state updated.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common: Wallet addresses and hashes.
 * - internal/store: Durable changeset commits.
 * - pkg/tokenclient: Recognises transfers whose outcome is unknown.
 */
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
	"github.com/Monadic-DNA/Batcher-sub000/pkg/tokenclient"
)

// Token is the stable-value token custody moves funds through.
type Token interface {
	// Custody is the address holding the pooled funds.
	Custody() common.Address
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Clock supplies the current time deadlines are evaluated against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// EventSink receives the events of every committed operation, in order.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event)
}

// Genesis seeds an empty store.
type Genesis struct {
	DepositPrice   int64
	DefaultMaxSize uint32
	Admins         []common.Address
}

type Options struct {
	Repository store.Repository
	Token      Token
	Clock      Clock
	Sink       EventSink
	Logger     *slog.Logger
	Policy     domain.Policy
	Genesis    Genesis
}

type Ledger struct {
	mu     sync.Mutex
	state  *state
	repo   store.Repository
	token  Token
	clock  Clock
	sink   EventSink
	logger *slog.Logger
	policy domain.Policy
}

// Open loads the ledger from the repository, seeding it from opts.Genesis when
// the store has never been written.
func Open(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Repository == nil {
		return nil, errors.New("ledger: repository is required")
	}
	if opts.Token == nil {
		return nil, errors.New("ledger: token is required")
	}
	if err := validatePolicy(opts.Policy); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	l := &Ledger{
		repo:   opts.Repository,
		token:  opts.Token,
		clock:  opts.Clock,
		sink:   opts.Sink,
		logger: opts.Logger,
		policy: opts.Policy,
	}

	snap, err := opts.Repository.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load snapshot: %w", err)
	}
	if !snap.Empty() {
		l.state = stateFromSnapshot(snap)
		if _, ok := l.state.batches[l.state.global.CurrentBatchID]; !ok {
			return nil, fmt.Errorf("ledger: %w: current batch %d missing", store.ErrSnapshotCorrupt, l.state.global.CurrentBatchID)
		}
		l.logger.Info("ledger restored",
			"current_batch_id", l.state.global.CurrentBatchID,
			"batches", len(l.state.batches),
			"admins", len(l.state.roles))
		return l, nil
	}

	l.state = newState()
	if err := l.seed(ctx, opts.Genesis); err != nil {
		return nil, err
	}
	l.logger.Info("ledger initialised", "deposit_price", opts.Genesis.DepositPrice, "default_max_size", opts.Genesis.DefaultMaxSize)
	return l, nil
}

func validatePolicy(p domain.Policy) error {
	if p.PaymentWindow <= 0 {
		return errors.New("ledger: payment window must be positive")
	}
	if p.PatienceWindow < 0 {
		return errors.New("ledger: patience window must not be negative")
	}
	if p.SlashPenaltyPercent < 0 || p.SlashPenaltyPercent > 100 {
		return errors.New("ledger: slash penalty percent must be between 0 and 100")
	}
	return nil
}

func (l *Ledger) seed(ctx context.Context, g Genesis) error {
	if g.DepositPrice <= 0 {
		return fmt.Errorf("ledger: genesis: %w", ErrZeroPrice)
	}
	if g.DefaultMaxSize == 0 {
		return fmt.Errorf("ledger: genesis: %w", ErrInvalidMaxSize)
	}
	if len(g.Admins) == 0 {
		return errors.New("ledger: genesis: at least one admin is required")
	}

	return l.execute(ctx, common.Address{}, func(t *txn) error {
		t.setGlobal(domain.GlobalState{
			DepositPrice:   g.DepositPrice,
			DefaultMaxSize: g.DefaultMaxSize,
		})
		for _, admin := range g.Admins {
			t.setRole(admin, domain.RoleAdmin)
			t.emit(t.event(domain.EventRoleGranted).WithAccount(admin))
		}
		openBatch(t, 1)
		return nil
	})
}

// execute runs fn as one serialized, all-or-nothing operation.
func (l *Ledger) execute(ctx context.Context, actor common.Address, fn func(t *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := newTxn(l.state, actor, l.clock.Now().UTC())
	if err := fn(t); err != nil {
		return err
	}
	cs := t.changeset()

	var settled []transfer
	var pending *pendingTransfer
	err := l.repo.Commit(ctx, cs, func(ctx context.Context) error {
		var settleErr error
		settled, pending, settleErr = l.settle(ctx, t.transfers)
		return settleErr
	})
	if pending != nil {
		l.journalPending(ctx, t, *pending)
	}
	if err != nil {
		if errors.Is(err, store.ErrCommitAfterSettlement) {
			l.compensate(ctx, settled)
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		return err
	}

	l.state.apply(cs)
	if l.sink != nil && len(cs.Events) > 0 {
		l.sink.Publish(ctx, cs.Events)
	}
	return nil
}

// pendingTransfer is a transfer that was submitted but never confirmed.
type pendingTransfer struct {
	transfer
	hash common.Hash
}

// settle performs the staged transfers in order. On failure the transfers that
// already went through are reversed. A transfer with an unknown outcome cannot
// be reversed and is returned so it can be journaled.
func (l *Ledger) settle(ctx context.Context, transfers []transfer) ([]transfer, *pendingTransfer, error) {
	custody := l.token.Custody()
	done := make([]transfer, 0, len(transfers))
	for _, tr := range transfers {
		var err error
		amount := big.NewInt(tr.amount)
		if tr.inbound {
			err = l.token.TransferFrom(ctx, tr.account, custody, amount)
		} else {
			err = l.token.Transfer(ctx, tr.account, amount)
		}
		if err != nil {
			l.compensate(ctx, done)
			var pending *tokenclient.PendingError
			if errors.As(err, &pending) {
				return nil, &pendingTransfer{transfer: tr, hash: pending.Hash}, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
		done = append(done, tr)
	}
	return done, nil, nil
}

// journalPending records a transfer that may still land after its operation
// was rolled back, so custody can be reconciled against the chain.
func (l *Ledger) journalPending(ctx context.Context, t *txn, p pendingTransfer) {
	l.logger.Error("token transfer outcome unknown, operation rolled back",
		"tx_hash", p.hash.Hex(),
		"account", p.account.Hex(),
		"amount", p.amount,
		"inbound", p.inbound)

	ev := t.event(domain.EventSettlementPending).WithAccount(p.account).WithAmount(p.amount).WithTxHash(p.hash)
	ctx = context.WithoutCancel(ctx)
	if err := l.repo.Commit(ctx, store.Changeset{Events: []domain.Event{ev}}, nil); err != nil {
		l.logger.Error("failed to journal pending transfer", "tx_hash", p.hash.Hex(), "error", err)
		return
	}
	if l.sink != nil {
		l.sink.Publish(ctx, []domain.Event{ev})
	}
}

func (l *Ledger) compensate(ctx context.Context, done []transfer) {
	custody := l.token.Custody()
	for i := len(done) - 1; i >= 0; i-- {
		tr := done[i]
		var err error
		amount := big.NewInt(tr.amount)
		if tr.inbound {
			err = l.token.Transfer(ctx, tr.account, amount)
		} else {
			err = l.token.TransferFrom(ctx, tr.account, custody, amount)
		}
		if err != nil {
			l.logger.Error("failed to reverse token transfer",
				"account", tr.account.Hex(),
				"amount", tr.amount,
				"inbound", tr.inbound,
				"error", err)
		}
	}
}

func (l *Ledger) requireAllowance(ctx context.Context, owner common.Address, due int64) error {
	if due <= 0 {
		return nil
	}
	allowance, err := l.token.Allowance(ctx, owner, l.token.Custody())
	if err != nil {
		return fmt.Errorf("failed to read allowance of %s: %w", owner.Hex(), err)
	}
	if allowance.Cmp(big.NewInt(due)) < 0 {
		return ErrInsufficientAllowance
	}
	return nil
}

func requireAdmin(t *txn) error {
	if t.role(t.actor) != domain.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

func requireRunning(t *txn) error {
	if t.global.Paused {
		return ErrPaused
	}
	return nil
}
