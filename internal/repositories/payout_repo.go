package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonlotto/backend/internal/models"
)

// ErrPayoutNotPending signals the obligation is no longer pending;
// the guarded claim refused to touch it.
var ErrPayoutNotPending = errors.New("payout obligation is not pending")

// ErrPayoutNotProcessing signals a terminal write on an obligation that
// was never claimed, or that already reached a terminal status.
var ErrPayoutNotProcessing = errors.New("payout obligation is not processing")

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// GetPending returns unsettled obligations ordered by age, oldest
// first, bounded by limit.
func (r *PayoutRepo) GetPending(ctx context.Context, limit int) ([]models.PayoutObligation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, round_id, recipient, amount, rank, status, tx_hash, created_at, updated_at
		FROM payout_obligations
		WHERE status = $1
		ORDER BY created_at ASC, rank ASC
		LIMIT $2
	`, models.PayoutStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.PayoutObligation
	for rows.Next() {
		var ob models.PayoutObligation
		if err := rows.Scan(&ob.ID, &ob.RoundID, &ob.Recipient, &ob.Amount, &ob.Rank, &ob.Status, &ob.TxHash, &ob.CreatedAt, &ob.UpdatedAt); err != nil {
			return nil, err
		}
		obs = append(obs, ob)
	}
	return obs, rows.Err()
}

// MarkProcessing claims a pending obligation before any transfer is
// broadcast. A claimed obligation disappears from GetPending, so even
// a crash between broadcast and the terminal write cannot lead to a
// second payment; it just leaves the row in processing for the
// operator.
func (r *PayoutRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE payout_obligations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.PayoutStatusProcessing, models.PayoutStatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrPayoutNotPending
	}
	return nil
}

// MarkCompleted sets the terminal completed status with the settlement
// tx hash. The status guard means an obligation can complete at most
// once; a second attempt gets ErrPayoutNotProcessing instead of a
// double payment record.
func (r *PayoutRepo) MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE payout_obligations
		SET status = $2, tx_hash = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.PayoutStatusCompleted, txHash, models.PayoutStatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrPayoutNotProcessing
	}
	return nil
}

func (r *PayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE payout_obligations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.PayoutStatusFailed, models.PayoutStatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrPayoutNotProcessing
	}
	return nil
}

// CountUnsettled counts the round's obligations not yet completed.
// Zero means the round is fully distributed.
func (r *PayoutRepo) CountUnsettled(ctx context.Context, roundID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM payout_obligations
		WHERE round_id = $1 AND status <> $2
	`, roundID, models.PayoutStatusCompleted).Scan(&n)
	return n, err
}

// ListByRound returns a round's obligations in rank order, used by the
// draw verification tool.
func (r *PayoutRepo) ListByRound(ctx context.Context, roundID uuid.UUID) ([]models.PayoutObligation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, round_id, recipient, amount, rank, status, tx_hash, created_at, updated_at
		FROM payout_obligations
		WHERE round_id = $1
		ORDER BY rank ASC
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.PayoutObligation
	for rows.Next() {
		var ob models.PayoutObligation
		if err := rows.Scan(&ob.ID, &ob.RoundID, &ob.Recipient, &ob.Amount, &ob.Rank, &ob.Status, &ob.TxHash, &ob.CreatedAt, &ob.UpdatedAt); err != nil {
			return nil, err
		}
		obs = append(obs, ob)
	}
	return obs, rows.Err()
}
