package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonlotto/backend/internal/models"
)

// ErrRoundNotActive is returned when a close races another closer or
// hits an already-closed round; the caller treats it as a no-op.
var ErrRoundNotActive = errors.New("round is not active")

// ErrBuybackNotPending is returned when a buyback claim races another
// worker tick; the caller treats it as a no-op.
var ErrBuybackNotPending = errors.New("round buyback is not pending")

const roundColumns = `
	id, jackpot_id, seq, status, opens_at, closes_at, closed_at,
	entry_count, pool_amount, fee_amount, draw_seed,
	buyback_status, buyback_tx_ref, buyback_amount, created_at, updated_at
`

type RoundRepo struct {
	pool *pgxpool.Pool
}

func NewRoundRepo(pool *pgxpool.Pool) *RoundRepo {
	return &RoundRepo{pool: pool}
}

func (r *RoundRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	return scanRound(r.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
}

// GetDueActive returns active rounds whose wagering window has elapsed,
// oldest close first, bounded by limit.
func (r *RoundRepo) GetDueActive(ctx context.Context, limit int) ([]models.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status = $1 AND closes_at <= now()
		ORDER BY closes_at ASC
		LIMIT $2
	`, models.RoundStatusActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *rd)
	}
	return rounds, rows.Err()
}

// Close transitions the round to closed and writes its payout
// obligations in one transaction, so no other worker can observe
// obligations for an open round, or a closed round missing them.
// The status guard makes the transition happen exactly once.
func (r *RoundRepo) Close(ctx context.Context, id uuid.UUID, pool, fee int64, entryCount int, drawSeed string, closedAt time.Time, obligations []models.PayoutObligation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE rounds
		SET status = $2, pool_amount = $3, fee_amount = $4, entry_count = $5,
		    draw_seed = $6, closed_at = $7, updated_at = now()
		WHERE id = $1 AND status = $8
	`, id, models.RoundStatusClosed, pool, fee, entryCount, drawSeed, closedAt, models.RoundStatusActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrRoundNotActive
	}

	for _, ob := range obligations {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payout_obligations (round_id, recipient, amount, rank, status)
			VALUES ($1, $2, $3, $4, $5)
		`, ob.RoundID, ob.Recipient, ob.Amount, ob.Rank, models.PayoutStatusPending); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// MarkDistributed bumps a closed round to distributed. Guarded so a
// concurrent disburser tick cannot double-transition.
func (r *RoundRepo) MarkDistributed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rounds SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.RoundStatusDistributed, models.RoundStatusClosed)
	return err
}

// GetBuybackPending returns rounds whose pool has been tallied but
// whose platform fee has not yet been converted.
func (r *RoundRepo) GetBuybackPending(ctx context.Context, limit int) ([]models.Round, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE buyback_status = $1 AND status <> $2
		ORDER BY closed_at ASC
		LIMIT $3
	`, models.BuybackStatusPending, models.RoundStatusActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *rd)
	}
	return rounds, rows.Err()
}

// MarkBuybackProcessing claims a round before the first swap leg is
// broadcast. A claimed round disappears from GetBuybackPending, so a
// lost terminal write can never cause the fee to be swapped twice; the
// round sits in processing until the operator resolves it.
func (r *RoundRepo) MarkBuybackProcessing(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE rounds SET buyback_status = $2, updated_at = now()
		WHERE id = $1 AND buyback_status = $3
	`, id, models.BuybackStatusProcessing, models.BuybackStatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrBuybackNotPending
	}
	return nil
}

func (r *RoundRepo) MarkBuybackCompleted(ctx context.Context, id uuid.UUID, txRef string, amount int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rounds
		SET buyback_status = $2, buyback_tx_ref = $3, buyback_amount = $4, updated_at = now()
		WHERE id = $1 AND buyback_status = $5
	`, id, models.BuybackStatusCompleted, txRef, amount, models.BuybackStatusProcessing)
	return err
}

func (r *RoundRepo) MarkBuybackFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rounds SET buyback_status = $2, updated_at = now()
		WHERE id = $1 AND buyback_status = $3
	`, id, models.BuybackStatusFailed, models.BuybackStatusProcessing)
	return err
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var rd models.Round
	err := row.Scan(&rd.ID, &rd.JackpotID, &rd.Seq, &rd.Status, &rd.OpensAt, &rd.ClosesAt, &rd.ClosedAt,
		&rd.EntryCount, &rd.PoolAmount, &rd.FeeAmount, &rd.DrawSeed,
		&rd.BuybackStatus, &rd.BuybackTxRef, &rd.BuybackAmount, &rd.CreatedAt, &rd.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}
