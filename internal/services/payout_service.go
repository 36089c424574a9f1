package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tonlotto/backend/internal/config"
	"github.com/tonlotto/backend/internal/events"
	"github.com/tonlotto/backend/internal/keys"
	"github.com/tonlotto/backend/internal/models"
	"github.com/tonlotto/backend/internal/repositories"
	"go.uber.org/zap"
)

// payoutStore is the slice of the payout repository the disburser
// touches. Satisfied by *repositories.PayoutRepo.
type payoutStore interface {
	GetPending(ctx context.Context, limit int) ([]models.PayoutObligation, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	CountUnsettled(ctx context.Context, roundID uuid.UUID) (int, error)
}

// payoutRoundStore is the round-side view the disburser needs.
// Satisfied by *repositories.RoundRepo.
type payoutRoundStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Round, error)
	MarkDistributed(ctx context.Context, id uuid.UUID) error
}

// jackpotStore is satisfied by *repositories.JackpotRepo.
type jackpotStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Jackpot, error)
}

// jettonSender is satisfied by *ton.Client.
type jettonSender interface {
	SendJetton(ctx context.Context, seedWords []string, master, to string, amount int64, comment string) (string, error)
}

// PayoutService drains pending payout obligations. Obligations are
// settled one at a time to avoid seqno collisions on a shared signing
// wallet and to bound pressure on the settlement network. Every
// obligation is claimed (pending -> processing) before its transfer is
// broadcast, so a record failure after the broadcast leaves it parked
// in processing instead of eligible for a second payment. Terminal
// failures stay failed; retrying a money transfer risks paying twice.
type PayoutService struct {
	payouts   payoutStore
	rounds    payoutRoundStore
	jackpots  jackpotStore
	keys      *keys.Resolver
	chain     jettonSender
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewPayoutService(
	payouts payoutStore,
	rounds payoutRoundStore,
	jackpots jackpotStore,
	resolver *keys.Resolver,
	chain jettonSender,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *PayoutService {
	return &PayoutService{
		payouts:   payouts,
		rounds:    rounds,
		jackpots:  jackpots,
		keys:      resolver,
		chain:     chain,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// DisbursePending is one disburser tick.
func (s *PayoutService) DisbursePending(ctx context.Context) {
	obs, err := s.payouts.GetPending(ctx, s.cfg.DisburserBatchSize)
	if err != nil {
		s.log.Error("failed to fetch pending payouts", zap.Error(err))
		return
	}

	for _, ob := range obs {
		if err := s.settle(ctx, ob); err != nil {
			s.log.Error("failed to settle payout",
				zap.String("obligation_id", ob.ID.String()),
				zap.String("round_id", ob.RoundID.String()),
				zap.Int("rank", ob.Rank),
				zap.Error(err),
			)
		}
	}
}

func (s *PayoutService) settle(ctx context.Context, ob models.PayoutObligation) error {
	round, err := s.rounds.GetByID(ctx, ob.RoundID)
	if err != nil {
		return fmt.Errorf("load round: %w", err)
	}
	jackpot, err := s.jackpots.GetByID(ctx, round.JackpotID)
	if err != nil {
		return fmt.Errorf("load jackpot: %w", err)
	}

	// Claim before any money moves. If the claim itself fails the
	// obligation is still pending and a later tick retries safely;
	// once claimed it can never be selected again.
	if err := s.payouts.MarkProcessing(ctx, ob.ID); err != nil {
		if errors.Is(err, repositories.ErrPayoutNotPending) {
			return nil
		}
		return fmt.Errorf("claim obligation: %w", err)
	}

	seedWords, source, err := s.keys.ResolveForCreator(ctx, jackpot.CreatorUserID)
	if err != nil {
		// Missing signing material is a configuration error: fail the
		// obligation immediately and surface it for the operator.
		s.fail(ctx, ob, fmt.Sprintf("no signing key: %v", err))
		return nil
	}

	memo := fmt.Sprintf("lottery r%d rank %d", round.Seq, ob.Rank)
	txHash, err := s.chain.SendJetton(ctx, seedWords, s.cfg.USDTMasterAddress, ob.Recipient, ob.Amount, memo)
	if err != nil {
		s.fail(ctx, ob, err.Error())
		return nil
	}

	if err := s.payouts.MarkCompleted(ctx, ob.ID, txHash); err != nil {
		// The transfer happened. The obligation stays claimed, out of
		// the pending queue, so no tick can pay it a second time; the
		// operator reconciles it against the logged tx hash.
		return fmt.Errorf("record completed payout (tx %s): %w", txHash, err)
	}

	s.log.Info("payout settled",
		zap.String("obligation_id", ob.ID.String()),
		zap.String("round_id", ob.RoundID.String()),
		zap.Int("rank", ob.Rank),
		zap.Int64("amount", ob.Amount),
		zap.String("key_source", string(source)),
		zap.String("tx_hash", txHash),
	)
	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type: events.EventPayoutCompleted,
		Payload: map[string]any{
			"round_id": ob.RoundID.String(),
			"rank":     ob.Rank,
			"amount":   ob.Amount,
			"tx_hash":  txHash,
		},
	})

	return s.maybeDistribute(ctx, ob)
}

// maybeDistribute flips the round to distributed once every obligation
// for it has completed.
func (s *PayoutService) maybeDistribute(ctx context.Context, ob models.PayoutObligation) error {
	left, err := s.payouts.CountUnsettled(ctx, ob.RoundID)
	if err != nil {
		return fmt.Errorf("count unsettled: %w", err)
	}
	if left > 0 {
		return nil
	}

	if err := s.rounds.MarkDistributed(ctx, ob.RoundID); err != nil {
		return fmt.Errorf("mark distributed: %w", err)
	}
	s.log.Info("round distributed", zap.String("round_id", ob.RoundID.String()))
	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type:    events.EventRoundDistributed,
		Payload: map[string]any{"round_id": ob.RoundID.String()},
	})
	return nil
}

func (s *PayoutService) fail(ctx context.Context, ob models.PayoutObligation, reason string) {
	s.log.Error("payout failed, manual intervention required",
		zap.String("obligation_id", ob.ID.String()),
		zap.String("round_id", ob.RoundID.String()),
		zap.Int("rank", ob.Rank),
		zap.String("reason", reason),
	)
	if err := s.payouts.MarkFailed(ctx, ob.ID); err != nil {
		s.log.Error("failed to mark payout failed", zap.String("obligation_id", ob.ID.String()), zap.Error(err))
		return
	}
	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type: events.EventPayoutFailed,
		Payload: map[string]any{
			"round_id": ob.RoundID.String(),
			"rank":     ob.Rank,
			"reason":   reason,
		},
	})
}
