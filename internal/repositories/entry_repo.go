package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonlotto/backend/internal/models"
)

type EntryRepo struct {
	pool *pgxpool.Pool
}

func NewEntryRepo(pool *pgxpool.Pool) *EntryRepo {
	return &EntryRepo{pool: pool}
}

// ListByRound returns a round's entries in insertion order. The order
// is part of the draw's public inputs, so it must be stable.
func (r *EntryRepo) ListByRound(ctx context.Context, roundID uuid.UUID) ([]models.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, round_id, participant, amount, created_at
		FROM entries
		WHERE round_id = $1
		ORDER BY id ASC
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.RoundID, &e.Participant, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
