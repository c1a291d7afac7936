package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
	"github.com/Monadic-DNA/Batcher-sub000/pkg/tokenclient"
)

const (
	day          = 24 * time.Hour
	depositPrice = int64(25)
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	custody = common.HexToAddress("0x000000000000000000000000000000000000c057")
	t0      = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
)

func user(n int64) common.Address {
	return common.BigToAddress(big.NewInt(0x1000 + n))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingSink struct {
	events []domain.Event
}

func (s *recordingSink) Publish(ctx context.Context, events []domain.Event) {
	s.events = append(s.events, events...)
}

func (s *recordingSink) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	ledger *Ledger
	token  *tokenclient.MemoryToken
	repo   *store.MemoryRepository
	clock  *fakeClock
	sink   *recordingSink
	size   uint32
}

func testPolicy() domain.Policy {
	return domain.Policy{
		PaymentWindow:       7 * day,
		PatienceWindow:      180 * day,
		SlashPenaltyPercent: 50,
	}
}

func newFixture(t *testing.T, batchSize uint32) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		token: tokenclient.NewMemoryToken(custody),
		repo:  store.NewMemoryRepository(),
		clock: &fakeClock{now: t0},
		sink:  &recordingSink{},
		size:  batchSize,
	}
	f.ledger = f.open()
	return f
}

func (f *fixture) open() *Ledger {
	f.t.Helper()
	l, err := Open(f.ctx, Options{
		Repository: f.repo,
		Token:      f.token,
		Clock:      f.clock,
		Sink:       f.sink,
		Policy:     testPolicy(),
		Genesis: Genesis{
			DepositPrice:   depositPrice,
			DefaultMaxSize: f.size,
			Admins:         []common.Address{admin},
		},
	})
	require.NoError(f.t, err)
	return l
}

// fund mints amount to account and approves custody to pull all of it.
func (f *fixture) fund(account common.Address, amount int64) {
	f.token.Mint(account, amount)
	f.token.Approve(account, custody, amount)
}

func (f *fixture) balance(account common.Address) int64 {
	b, err := f.token.BalanceOf(f.ctx, account)
	require.NoError(f.t, err)
	return b.Int64()
}

func (f *fixture) join(account common.Address) domain.Participant {
	f.t.Helper()
	f.fund(account, depositPrice)
	p, err := f.ledger.JoinBatch(f.ctx, account)
	require.NoError(f.t, err)
	return p
}

// activeBatch fills the current batch with n funded users and activates it at price.
func (f *fixture) activeBatch(n int, price int64) (uint64, []common.Address) {
	f.t.Helper()
	batchID := f.ledger.CurrentBatch().ID
	require.NoError(f.t, f.ledger.SetBatchMaxSize(f.ctx, admin, batchID, uint32(n)))
	users := make([]common.Address, n)
	for i := range users {
		users[i] = user(int64(batchID)*100 + int64(i))
		f.join(users[i])
	}
	_, err := f.ledger.TransitionBatchState(f.ctx, admin, batchID, domain.BatchActive, price)
	require.NoError(f.t, err)
	return batchID, users
}

func TestOpen_SeedsGenesis(t *testing.T) {
	f := newFixture(t, 3)

	current := f.ledger.CurrentBatch()
	assert.Equal(t, uint64(1), current.ID)
	assert.Equal(t, domain.BatchPending, current.State)
	assert.Equal(t, uint32(3), current.MaxSize)
	assert.Equal(t, depositPrice, f.ledger.DepositPrice())
	assert.True(t, f.ledger.IsAdmin(admin))
	assert.False(t, f.ledger.IsAdmin(user(1)))
	assert.Equal(t, []domain.EventType{domain.EventRoleGranted, domain.EventBatchCreated}, f.sink.types())
}

func TestOpen_RejectsInvalidPolicy(t *testing.T) {
	_, err := Open(context.Background(), Options{
		Repository: store.NewMemoryRepository(),
		Token:      tokenclient.NewMemoryToken(custody),
		Policy:     domain.Policy{PaymentWindow: 0, PatienceWindow: day, SlashPenaltyPercent: 50},
		Genesis:    Genesis{DepositPrice: 25, DefaultMaxSize: 3, Admins: []common.Address{admin}},
	})
	require.Error(t, err)

	_, err = Open(context.Background(), Options{
		Repository: store.NewMemoryRepository(),
		Token:      tokenclient.NewMemoryToken(custody),
		Policy:     testPolicy(),
		Genesis:    Genesis{DepositPrice: 25, DefaultMaxSize: 3},
	})
	require.Error(t, err)
}

func TestOpen_RestoresCommittedState(t *testing.T) {
	f := newFixture(t, 3)
	batchID, users := f.activeBatch(2, 100)
	f.fund(users[0], 100)
	_, err := f.ledger.PayBalance(f.ctx, users[0], batchID)
	require.NoError(t, err)

	restored := f.open()

	batch, err := restored.BatchInfo(batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchActive, batch.State)
	assert.Equal(t, int64(100), batch.BalancePrice)
	assert.True(t, batch.BalancePriceLocked)

	p, err := restored.ParticipantInfo(batchID, users[0])
	require.NoError(t, err)
	assert.True(t, p.BalancePaid)
	assert.Equal(t, depositPrice, p.DepositAmount)
	assert.Equal(t, f.ledger.Funds(), restored.Funds())
	assert.Equal(t, f.ledger.CurrentBatch().ID, restored.CurrentBatch().ID)
	assert.True(t, restored.IsAdmin(admin))
}

func TestExecute_CommitFailureReversesTransfers(t *testing.T) {
	f := newFixture(t, 3)
	account := user(1)
	f.fund(account, depositPrice)
	f.repo.FailCommit = errors.New("connection reset")

	_, err := f.ledger.JoinBatch(f.ctx, account)
	require.ErrorIs(t, err, ErrSettlementFailed)
	assert.Equal(t, KindInternal, KindOf(err))

	assert.Equal(t, depositPrice, f.balance(account))
	assert.Equal(t, int64(0), f.balance(custody))
	assert.False(t, f.ledger.IsParticipant(1, account))
	assert.Equal(t, domain.Funds{}, f.ledger.Funds())
	assert.Equal(t, uint32(0), f.ledger.CurrentBatch().ParticipantCount)
}

func TestExecute_SettlementFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 3)
	account := user(1)
	f.fund(account, depositPrice)
	published := len(f.sink.events)
	f.token.FailTransfers = errors.New("rpc unavailable")

	_, err := f.ledger.JoinBatch(f.ctx, account)
	require.ErrorIs(t, err, ErrSettlementFailed)
	assert.False(t, f.ledger.IsParticipant(1, account))
	assert.Len(t, f.sink.events, published)

	f.token.FailTransfers = nil
	_, err = f.ledger.JoinBatch(f.ctx, account)
	require.NoError(t, err)
	assert.True(t, f.ledger.IsParticipant(1, account))
}

func TestExecute_UnconfirmedTransferIsJournaled(t *testing.T) {
	f := newFixture(t, 3)
	account := user(1)
	f.fund(account, depositPrice)
	f.token.PendTransfers = true

	_, err := f.ledger.JoinBatch(f.ctx, account)
	require.ErrorIs(t, err, ErrSettlementFailed)
	require.ErrorIs(t, err, tokenclient.ErrTransactionPending)
	assert.False(t, f.ledger.IsParticipant(1, account))
	assert.Equal(t, domain.Funds{}, f.ledger.Funds())
	// The transfer landed anyway; only the journal entry accounts for it.
	assert.Equal(t, int64(depositPrice), f.balance(custody))

	latest, err := f.ledger.Events(f.ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	ev := latest[0]
	assert.Equal(t, domain.EventSettlementPending, ev.Type)
	assert.Equal(t, account, *ev.Account)
	assert.Equal(t, int64(depositPrice), ev.Amount)
	require.NotNil(t, ev.TxHash)
	assert.NotEqual(t, common.Hash{}, *ev.TxHash)
	assert.Equal(t, domain.EventSettlementPending, f.sink.events[len(f.sink.events)-1].Type)
}

func TestEvents_JournalIsFilteredByBatch(t *testing.T) {
	f := newFixture(t, 3)
	f.join(user(1))
	f.join(user(2))

	events, err := f.ledger.Events(f.ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventBatchCreated, events[0].Type)
	assert.Equal(t, domain.EventParticipantJoined, events[1].Type)
	assert.Equal(t, domain.EventParticipantJoined, events[2].Type)

	latest, err := f.ledger.Events(f.ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, user(2), *latest[0].Account)
}

func TestErrorClassification(t *testing.T) {
	assert.Equal(t, KindAuthorization, KindOf(ErrUnauthorized))
	assert.Equal(t, KindTemporal, KindOf(ErrPaymentWindowExpired))
	assert.Equal(t, KindResource, KindOf(ErrInsufficientAllowance))
	assert.Equal(t, KindNotFound, KindOf(ErrBatchNotFound))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "BatchNotPending", CodeOf(ErrBatchNotPending))
	assert.Equal(t, "Internal", CodeOf(errors.New("boom")))
}
