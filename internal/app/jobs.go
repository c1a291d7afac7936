/**
 * @description
 * Scheduled job implementations for the batch ledger.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
)

// SlashingLedger is the part of the ledger the slashing sweep needs.
type SlashingLedger interface {
	OverdueParticipants() []domain.ParticipantKey
	SlashUser(ctx context.Context, caller common.Address, batchID uint64, account common.Address) (domain.Participant, error)
}

// SweepObserver records sweep outcomes.
type SweepObserver interface {
	ObserveSweep(slashed, failed int)
}

// SweepResult summarizes one slashing sweep.
type SweepResult struct {
	Evaluated int   `json:"evaluated"`
	Slashed   int   `json:"slashed"`
	Skipped   int   `json:"skipped"`
	Failed    int   `json:"failed"`
	Penalties int64 `json:"penalties"`
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	ledger   SlashingLedger
	operator common.Address
	observer SweepObserver
	logger   *slog.Logger
}

// NewJobs creates a new Jobs runner. operator must hold the admin role.
func NewJobs(l SlashingLedger, operator common.Address, observer SweepObserver, logger *slog.Logger) *Jobs {
	return &Jobs{
		ledger:   l,
		operator: operator,
		observer: observer,
		logger:   logger,
	}
}

// SlashOverdueParticipants slashes every participant whose payment window has
// passed unpaid. A participant that cannot be slashed any more (paid or slashed
// in the meantime) is skipped.
func (j *Jobs) SlashOverdueParticipants(ctx context.Context) SweepResult {
	var result SweepResult
	for _, key := range j.ledger.OverdueParticipants() {
		result.Evaluated++
		p, err := j.ledger.SlashUser(ctx, j.operator, key.BatchID, key.Address)
		switch {
		case err == nil:
			result.Slashed++
			result.Penalties += p.SlashedAmount
			j.logger.Info("participant slashed",
				"batch_id", key.BatchID,
				"address", key.Address.Hex(),
				"penalty", p.SlashedAmount)
		case ledger.KindOf(err) == ledger.KindState || ledger.KindOf(err) == ledger.KindTemporal:
			result.Skipped++
		default:
			result.Failed++
			j.logger.Error("failed to slash participant",
				"batch_id", key.BatchID,
				"address", key.Address.Hex(),
				"error", err)
		}
	}
	if j.observer != nil {
		j.observer.ObserveSweep(result.Slashed, result.Failed)
	}
	return result
}

// RunSlashingSweep is the cron entry point.
func (j *Jobs) RunSlashingSweep() {
	j.logger.Info("starting slashing sweep job")
	result := j.SlashOverdueParticipants(context.Background())
	j.logger.Info("slashing sweep job finished",
		"evaluated", result.Evaluated,
		"slashed", result.Slashed,
		"skipped", result.Skipped,
		"failed", result.Failed)
}
