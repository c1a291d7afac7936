/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Each ledger commit is a single database transaction: every changed row and the
 * emitted events are written first, the settle callback moves the tokens, and only
 * then is the transaction committed.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/ethereum/go-ethereum/common: Address and hash encoding.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

var ErrSchemaMissing = errors.New("ledger schema missing, run the migrate command")

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUndefinedTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// LoadSnapshot reads the whole ledger. It is called once at start-up.
func (r *PostgresRepository) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var global domain.GlobalState
	err := r.db.QueryRow(ctx, `
		SELECT deposit_price, default_max_size, current_batch_id, paused, operating_funds, slashed_funds
		FROM ledger_globals
		WHERE id = 1
	`).Scan(&global.DepositPrice, &global.DefaultMaxSize, &global.CurrentBatchID, &global.Paused, &global.OperatingFunds, &global.SlashedFunds)
	switch {
	case err == nil:
		snap.Global = &global
	case errors.Is(err, pgx.ErrNoRows):
	case isUndefinedTableError(err):
		return Snapshot{}, ErrSchemaMissing
	default:
		return Snapshot{}, fmt.Errorf("failed to load ledger globals: %w", err)
	}

	if snap.Batches, err = r.loadBatches(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Participants, err = r.loadParticipants(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Codes, err = r.loadCodes(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Redemptions, err = r.loadRedemptions(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Roles, err = r.loadRoles(ctx); err != nil {
		return Snapshot{}, err
	}

	if snap.Global == nil && len(snap.Batches) > 0 {
		return Snapshot{}, ErrSnapshotCorrupt
	}
	return snap, nil
}

func (r *PostgresRepository) loadBatches(ctx context.Context) ([]domain.Batch, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, state, max_size, participant_count, balance_price, balance_price_locked, created_at, state_changed_at
		FROM batches
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		var b domain.Batch
		var state int16
		if err := rows.Scan(&b.ID, &state, &b.MaxSize, &b.ParticipantCount, &b.BalancePrice, &b.BalancePriceLocked, &b.CreatedAt, &b.StateChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.State = domain.BatchState(state)
		if !b.State.Valid() {
			return nil, fmt.Errorf("%w: batch %d has state %d", ErrSnapshotCorrupt, b.ID, state)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *PostgresRepository) loadParticipants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT batch_id, address, deposit_amount, balance_amount, balance_paid, slashed, slashed_amount,
		       commitment_hash, joined_at, payment_deadline
		FROM batch_participants
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var address string
		var commitment *string
		if err := rows.Scan(&p.BatchID, &address, &p.DepositAmount, &p.BalanceAmount, &p.BalancePaid, &p.Slashed, &p.SlashedAmount,
			&commitment, &p.JoinedAt, &p.PaymentDeadline); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("%w: participant address %q", ErrSnapshotCorrupt, address)
		}
		p.Address = common.HexToAddress(address)
		if commitment != nil {
			hash := common.HexToHash(*commitment)
			p.CommitmentHash = &hash
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *PostgresRepository) loadCodes(ctx context.Context) ([]domain.DiscountCode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code_hash, discount_value, is_percentage, remaining_uses, active, applies_to_deposit, applies_to_balance, created_at
		FROM discount_codes
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query discount codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.DiscountCode
	for rows.Next() {
		var c domain.DiscountCode
		var hash string
		if err := rows.Scan(&hash, &c.DiscountValue, &c.IsPercentage, &c.RemainingUses, &c.Active, &c.AppliesToDeposit, &c.AppliesToBalance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discount code: %w", err)
		}
		c.CodeHash = common.HexToHash(hash)
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *PostgresRepository) loadRedemptions(ctx context.Context) ([]domain.Redemption, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code_hash, address, batch_id, kind, charged_amount, redeemed_at
		FROM discount_redemptions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query discount redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []domain.Redemption
	for rows.Next() {
		var red domain.Redemption
		var hash, address, kind string
		if err := rows.Scan(&hash, &address, &red.BatchID, &kind, &red.ChargedAmount, &red.RedeemedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discount redemption: %w", err)
		}
		red.CodeHash = common.HexToHash(hash)
		red.Address = common.HexToAddress(address)
		red.Kind = domain.PaymentKind(kind)
		redemptions = append(redemptions, red)
	}
	return redemptions, rows.Err()
}

func (r *PostgresRepository) loadRoles(ctx context.Context) ([]domain.RoleAssignment, error) {
	rows, err := r.db.Query(ctx, `SELECT address, role, granted_at FROM ledger_roles`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.RoleAssignment
	for rows.Next() {
		var ra domain.RoleAssignment
		var address, role string
		if err := rows.Scan(&address, &role, &ra.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		ra.Address = common.HexToAddress(address)
		ra.Role = domain.Role(role)
		roles = append(roles, ra)
	}
	return roles, rows.Err()
}

// Commit writes a changeset, runs settle, and commits. Any failure before the
// final commit rolls every write back.
func (r *PostgresRepository) Commit(ctx context.Context, cs Changeset, settle SettleFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := writeChangeset(ctx, tx, cs); err != nil {
		return err
	}

	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if settle != nil {
			return fmt.Errorf("%w: %v", ErrCommitAfterSettlement, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func writeChangeset(ctx context.Context, tx pgx.Tx, cs Changeset) error {
	if g := cs.Global; g != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_globals (id, deposit_price, default_max_size, current_batch_id, paused, operating_funds, slashed_funds, updated_at)
			VALUES (1, $1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				deposit_price = EXCLUDED.deposit_price,
				default_max_size = EXCLUDED.default_max_size,
				current_batch_id = EXCLUDED.current_batch_id,
				paused = EXCLUDED.paused,
				operating_funds = EXCLUDED.operating_funds,
				slashed_funds = EXCLUDED.slashed_funds,
				updated_at = NOW()
		`, g.DepositPrice, g.DefaultMaxSize, g.CurrentBatchID, g.Paused, g.OperatingFunds, g.SlashedFunds)
		if err != nil {
			return fmt.Errorf("failed to write ledger globals: %w", err)
		}
	}

	for _, b := range cs.Batches {
		_, err := tx.Exec(ctx, `
			INSERT INTO batches (id, state, max_size, participant_count, balance_price, balance_price_locked, created_at, state_changed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				state = EXCLUDED.state,
				max_size = EXCLUDED.max_size,
				participant_count = EXCLUDED.participant_count,
				balance_price = EXCLUDED.balance_price,
				balance_price_locked = EXCLUDED.balance_price_locked,
				state_changed_at = EXCLUDED.state_changed_at
		`, b.ID, int16(b.State), b.MaxSize, b.ParticipantCount, b.BalancePrice, b.BalancePriceLocked, b.CreatedAt, b.StateChangedAt)
		if err != nil {
			return fmt.Errorf("failed to write batch %d: %w", b.ID, err)
		}
	}

	for _, key := range cs.Removed {
		_, err := tx.Exec(ctx, `DELETE FROM batch_participants WHERE batch_id = $1 AND address = $2`, key.BatchID, key.Address.Hex())
		if err != nil {
			return fmt.Errorf("failed to delete participant %s from batch %d: %w", key.Address.Hex(), key.BatchID, err)
		}
	}

	for _, p := range cs.Participants {
		var commitment *string
		if p.CommitmentHash != nil {
			hex := p.CommitmentHash.Hex()
			commitment = &hex
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO batch_participants (batch_id, address, deposit_amount, balance_amount, balance_paid, slashed, slashed_amount,
			                                commitment_hash, joined_at, payment_deadline)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (batch_id, address) DO UPDATE SET
				deposit_amount = EXCLUDED.deposit_amount,
				balance_amount = EXCLUDED.balance_amount,
				balance_paid = EXCLUDED.balance_paid,
				slashed = EXCLUDED.slashed,
				slashed_amount = EXCLUDED.slashed_amount,
				commitment_hash = EXCLUDED.commitment_hash,
				payment_deadline = EXCLUDED.payment_deadline
		`, p.BatchID, p.Address.Hex(), p.DepositAmount, p.BalanceAmount, p.BalancePaid, p.Slashed, p.SlashedAmount,
			commitment, p.JoinedAt, p.PaymentDeadline)
		if err != nil {
			return fmt.Errorf("failed to write participant %s in batch %d: %w", p.Address.Hex(), p.BatchID, err)
		}
	}

	for _, c := range cs.Codes {
		_, err := tx.Exec(ctx, `
			INSERT INTO discount_codes (code_hash, discount_value, is_percentage, remaining_uses, active, applies_to_deposit, applies_to_balance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (code_hash) DO UPDATE SET
				remaining_uses = EXCLUDED.remaining_uses,
				active = EXCLUDED.active
		`, c.CodeHash.Hex(), c.DiscountValue, c.IsPercentage, c.RemainingUses, c.Active, c.AppliesToDeposit, c.AppliesToBalance, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to write discount code: %w", err)
		}
	}

	for _, red := range cs.Redemptions {
		_, err := tx.Exec(ctx, `
			INSERT INTO discount_redemptions (code_hash, address, batch_id, kind, charged_amount, redeemed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, red.CodeHash.Hex(), red.Address.Hex(), red.BatchID, string(red.Kind), red.ChargedAmount, red.RedeemedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: code already redeemed by %s", ErrSnapshotCorrupt, red.Address.Hex())
			}
			return fmt.Errorf("failed to write discount redemption: %w", err)
		}
	}

	for _, ra := range cs.Roles {
		var err error
		if ra.Role == domain.RoleNone {
			_, err = tx.Exec(ctx, `DELETE FROM ledger_roles WHERE address = $1`, ra.Address.Hex())
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO ledger_roles (address, role, granted_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (address) DO UPDATE SET role = EXCLUDED.role, granted_at = EXCLUDED.granted_at
			`, ra.Address.Hex(), string(ra.Role), ra.GrantedAt)
		}
		if err != nil {
			return fmt.Errorf("failed to write role for %s: %w", ra.Address.Hex(), err)
		}
	}

	for _, ev := range cs.Events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.Type, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ledger_events (id, event_type, batch_id, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ev.ID, string(ev.Type), ev.BatchID, payload, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to write event %s: %w", ev.Type, err)
		}
	}
	return nil
}

// ListEvents returns the most recent events, oldest first. batchID 0 matches every batch.
func (r *PostgresRepository) ListEvents(ctx context.Context, batchID uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT payload FROM (
			SELECT payload, seq
			FROM ledger_events
			WHERE ($1 = 0 OR batch_id = $1)
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`
	rows, err := r.db.Query(ctx, query, int64(batchID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordAuditEvent stores an event received from the bus. Redeliveries are ignored.
func (r *PostgresRepository) RecordAuditEvent(ctx context.Context, event domain.Event, routingKey string, payload []byte) (bool, error) {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (event_id, routing_key, event_type, batch_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, event.ID, routingKey, string(event.Type), event.BatchID, payload, occurredAt)
	if err != nil {
		if isUndefinedTableError(err) {
			return false, ErrSchemaMissing
		}
		return false, fmt.Errorf("failed to record audit event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
