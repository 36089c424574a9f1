package events

import "context"

// Settlement event stream and types, consumed by the notification
// bridge and any operator tooling listening on redis.
const StreamSettlement = "settlement"

const (
	EventRoundClosed      = "round_closed"
	EventRoundDistributed = "round_distributed"
	EventPayoutCompleted  = "payout_completed"
	EventPayoutFailed     = "payout_failed"
	EventBuybackCompleted = "buyback_completed"
	EventBuybackFailed    = "buyback_failed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}
