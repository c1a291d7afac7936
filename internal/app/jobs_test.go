package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
)

type stubSlashingLedger struct {
	overdue []domain.ParticipantKey
	results map[common.Address]error
	callers []common.Address
}

func (s *stubSlashingLedger) OverdueParticipants() []domain.ParticipantKey {
	return s.overdue
}

func (s *stubSlashingLedger) SlashUser(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (domain.Participant, error) {
	s.callers = append(s.callers, caller)
	if err := s.results[account]; err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{BatchID: batchID, Address: account, Slashed: true, SlashedAmount: 12}, nil
}

type stubSweepObserver struct {
	slashed, failed int
}

func (s *stubSweepObserver) ObserveSweep(slashed, failed int) {
	s.slashed, s.failed = slashed, failed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSlashOverdueParticipants(t *testing.T) {
	operator := common.HexToAddress("0x0f")
	slashed := common.HexToAddress("0x01")
	paidMeanwhile := common.HexToAddress("0x02")
	broken := common.HexToAddress("0x03")

	stub := &stubSlashingLedger{
		overdue: []domain.ParticipantKey{
			{BatchID: 1, Address: slashed},
			{BatchID: 1, Address: paidMeanwhile},
			{BatchID: 2, Address: broken},
		},
		results: map[common.Address]error{
			paidMeanwhile: ledger.ErrUserAlreadyPaid,
			broken:        errors.New("database unavailable"),
		},
	}
	observer := &stubSweepObserver{}
	jobs := NewJobs(stub, operator, observer, discardLogger())

	result := jobs.SlashOverdueParticipants(context.Background())

	want := SweepResult{Evaluated: 3, Slashed: 1, Skipped: 1, Failed: 1, Penalties: 12}
	if result != want {
		t.Fatalf("unexpected result: got %+v want %+v", result, want)
	}
	if observer.slashed != 1 || observer.failed != 1 {
		t.Fatalf("observer not updated: %+v", observer)
	}
	for _, caller := range stub.callers {
		if caller != operator {
			t.Fatalf("sweep must act as the operator, got %s", caller.Hex())
		}
	}
}

func TestSlashOverdueParticipants_NothingDue(t *testing.T) {
	jobs := NewJobs(&stubSlashingLedger{}, common.Address{}, nil, discardLogger())
	if result := jobs.SlashOverdueParticipants(context.Background()); result != (SweepResult{}) {
		t.Fatalf("expected empty result, got %+v", result)
	}
}
