package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout obligation statuses. The disburser claims an obligation
// (pending -> processing) before broadcasting, so a row that may have
// moved money is never re-selected by a later tick. A processing row
// whose terminal write was lost is stuck there for the operator; it is
// never paid again automatically.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// Valid payout transitions: one-way, both terminal states final.
// A failed obligation is operator territory, never retried here.
var ValidPayoutTransitions = map[string][]string{
	PayoutStatusPending:    {PayoutStatusProcessing},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusCompleted:  {},
	PayoutStatusFailed:     {},
}

func IsValidPayoutTransition(from, to string) bool {
	return contains(ValidPayoutTransitions[from], to)
}

// PayoutObligation is a debt to one winner for one round. At most one
// per (round, rank), enforced by a unique constraint. TxHash is set
// exactly when the status becomes completed.
type PayoutObligation struct {
	ID        uuid.UUID `json:"id"`
	RoundID   uuid.UUID `json:"round_id"`
	Recipient string    `json:"recipient"` // TON address
	Amount    int64     `json:"amount"`    // USDT base units
	Rank      int       `json:"rank"`      // 1..3
	Status    string    `json:"status"`
	TxHash    *string   `json:"tx_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
