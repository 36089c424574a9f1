package models

import (
	"time"

	"github.com/google/uuid"
)

// Round statuses
const (
	RoundStatusActive      = "active"
	RoundStatusClosed      = "closed"
	RoundStatusDistributed = "distributed"
)

// Buyback statuses. The buyback worker claims a round
// (pending -> processing) before touching the swap API, so a round
// whose fee may already be in flight is never picked up again.
const (
	BuybackStatusPending    = "pending"
	BuybackStatusProcessing = "processing"
	BuybackStatusCompleted  = "completed"
	BuybackStatusFailed     = "failed"
)

// Valid round transitions: from -> []to. Statuses never regress.
var ValidRoundTransitions = map[string][]string{
	RoundStatusActive:      {RoundStatusClosed},
	RoundStatusClosed:      {RoundStatusDistributed},
	RoundStatusDistributed: {},
}

// Valid buyback transitions: both terminal states are final.
var ValidBuybackTransitions = map[string][]string{
	BuybackStatusPending:    {BuybackStatusProcessing},
	BuybackStatusProcessing: {BuybackStatusCompleted, BuybackStatusFailed},
	BuybackStatusCompleted:  {},
	BuybackStatusFailed:     {},
}

func IsValidRoundTransition(from, to string) bool {
	return contains(ValidRoundTransitions[from], to)
}

func IsValidBuybackTransition(from, to string) bool {
	return contains(ValidBuybackTransitions[from], to)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Round is one wagering cycle of a jackpot. Amounts are USDT base
// units (6 decimals). DrawSeed is published so anyone can replay the
// winner selection; ClosedAt is the decision timestamp it was derived
// from.
type Round struct {
	ID            uuid.UUID  `json:"id"`
	JackpotID     uuid.UUID  `json:"jackpot_id"`
	Seq           int64      `json:"seq"`
	Status        string     `json:"status"`
	OpensAt       time.Time  `json:"opens_at"`
	ClosesAt      time.Time  `json:"closes_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	EntryCount    int        `json:"entry_count"`
	PoolAmount    int64      `json:"pool_amount"`
	FeeAmount     int64      `json:"fee_amount"`
	DrawSeed      *string    `json:"draw_seed,omitempty"`
	BuybackStatus string     `json:"buyback_status"`
	BuybackTxRef  *string    `json:"buyback_tx_ref,omitempty"`
	BuybackAmount *int64     `json:"buyback_amount,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
