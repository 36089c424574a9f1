package models

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one wager in a round. Written only by the intake path,
// immutable afterwards; the settlement workers read it and nothing
// else. The serial ID fixes the order entries feed into the draw.
type Entry struct {
	ID          int64     `json:"id"`
	RoundID     uuid.UUID `json:"round_id"`
	Participant string    `json:"participant"` // TON address
	Amount      int64     `json:"amount"`      // USDT base units
	CreatedAt   time.Time `json:"created_at"`
}
