package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonlotto/backend/internal/models"
)

type JackpotRepo struct {
	pool *pgxpool.Pool
}

func NewJackpotRepo(pool *pgxpool.Pool) *JackpotRepo {
	return &JackpotRepo{pool: pool}
}

func (r *JackpotRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Jackpot, error) {
	var j models.Jackpot
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, creator_user_id, creator_wallet, created_at
		FROM jackpots WHERE id = $1
	`, id).Scan(&j.ID, &j.Title, &j.CreatorUserID, &j.CreatorWallet, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetCreatorKey returns the creator's most recent encrypted wallet seed,
// or (nil, nil) when none was registered. Satisfies keys.Store.
func (r *JackpotRepo) GetCreatorKey(ctx context.Context, creatorUserID uuid.UUID) ([]byte, error) {
	var box []byte
	err := r.pool.QueryRow(ctx, `
		SELECT encrypted_seed FROM creator_keys
		WHERE creator_user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, creatorUserID).Scan(&box)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return box, nil
}
