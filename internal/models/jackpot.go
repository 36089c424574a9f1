package models

import (
	"time"

	"github.com/google/uuid"
)

// Jackpot is one wagering product instance. The creator may register
// an encrypted payout-wallet seed (creator_keys); otherwise payouts
// fall back to the platform wallet.
type Jackpot struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	CreatorUserID uuid.UUID `json:"creator_user_id"`
	CreatorWallet *string   `json:"creator_wallet,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
