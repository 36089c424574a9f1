package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tonlotto/backend/internal/config"
	"github.com/tonlotto/backend/internal/events"
	"github.com/tonlotto/backend/internal/keys"
	"github.com/tonlotto/backend/internal/models"
	"github.com/tonlotto/backend/internal/repositories"
	"github.com/tonlotto/backend/internal/swap"
	"github.com/tonlotto/backend/internal/ton"
	"go.uber.org/zap"
)

// BuybackSkipReference marks a buyback completed without a swap
// because the fee was too small for the aggregator to route.
const BuybackSkipReference = "skipped:below-minimum"

// buybackRoundStore is the round-side view the buyback worker needs.
// Satisfied by *repositories.RoundRepo.
type buybackRoundStore interface {
	GetBuybackPending(ctx context.Context, limit int) ([]models.Round, error)
	MarkBuybackProcessing(ctx context.Context, id uuid.UUID) error
	MarkBuybackCompleted(ctx context.Context, id uuid.UUID, txRef string, amount int64) error
	MarkBuybackFailed(ctx context.Context, id uuid.UUID) error
}

// swapRouter is satisfied by *swap.Client.
type swapRouter interface {
	Quote(ctx context.Context, req swap.QuoteRequest) (*swap.Quote, error)
	Build(ctx context.Context, req swap.BuildRequest) (*swap.TxTemplate, error)
}

// externalSender is satisfied by *ton.Client.
type externalSender interface {
	SendExternal(ctx context.Context, seedWords []string, msgs []ton.ExternalMessage) (string, error)
}

// BuybackService converts each closed round's platform fee into the
// treasury jetton: USDT -> TON on a tight slippage tolerance, then
// TON -> treasury token on a wide one. The result stays in the
// platform wallet (burn by retention). A round is claimed
// (pending -> processing) before the first leg is broadcast, so a
// record failure after the swaps leaves it parked in processing
// instead of eligible for a second spend of the same fee.
type BuybackService struct {
	rounds    buybackRoundStore
	swapper   swapRouter
	chain     externalSender
	keys      *keys.Resolver
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewBuybackService(
	rounds buybackRoundStore,
	swapper swapRouter,
	chain externalSender,
	resolver *keys.Resolver,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *BuybackService {
	return &BuybackService{
		rounds:    rounds,
		swapper:   swapper,
		chain:     chain,
		keys:      resolver,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// ProcessPending is one buyback tick.
func (s *BuybackService) ProcessPending(ctx context.Context) {
	rounds, err := s.rounds.GetBuybackPending(ctx, s.cfg.BuybackBatchSize)
	if err != nil {
		s.log.Error("failed to fetch buyback-pending rounds", zap.Error(err))
		return
	}

	for _, round := range rounds {
		if err := s.process(ctx, round); err != nil {
			s.log.Error("buyback failed, manual follow-up required",
				zap.String("round_id", round.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *BuybackService) process(ctx context.Context, round models.Round) error {
	// Claim before anything else. If the claim itself fails the round
	// is still pending and the next tick retries safely; once claimed
	// it can never be selected again.
	if err := s.rounds.MarkBuybackProcessing(ctx, round.ID); err != nil {
		if errors.Is(err, repositories.ErrBuybackNotPending) {
			return nil
		}
		return fmt.Errorf("claim buyback: %w", err)
	}

	fee := models.PlatformFee(round.PoolAmount)

	if fee < s.cfg.MinBuybackFee {
		if err := s.rounds.MarkBuybackCompleted(ctx, round.ID, BuybackSkipReference, 0); err != nil {
			return fmt.Errorf("record skipped buyback: %w", err)
		}
		s.log.Info("buyback skipped, fee below minimum",
			zap.String("round_id", round.ID.String()),
			zap.Int64("fee", fee),
			zap.Int64("min", s.cfg.MinBuybackFee),
		)
		return nil
	}

	seedWords, err := s.keys.TreasurySeed()
	if err != nil {
		s.markFailed(ctx, round, fmt.Sprintf("no treasury key: %v", err))
		return nil
	}

	// Hop 1: stable -> intermediate. USDT/TON is deeply liquid, so the
	// tolerance is tight.
	tonOut, _, err := s.swapHop(ctx, s.cfg.USDTMasterAddress, swap.NativeTON, fee, s.cfg.TightSlippageBPS, seedWords)
	if err != nil {
		s.markFailed(ctx, round, fmt.Sprintf("hop 1 (usdt->ton): %v", err))
		return nil
	}

	// Hop 2: intermediate -> treasury token. Thin and volatile pair,
	// wide tolerance.
	bought, txRef, err := s.swapHop(ctx, swap.NativeTON, s.cfg.TreasuryJettonMaster, tonOut, s.cfg.WideSlippageBPS, seedWords)
	if err != nil {
		s.markFailed(ctx, round, fmt.Sprintf("hop 2 (ton->treasury): %v", err))
		return nil
	}

	if err := s.rounds.MarkBuybackCompleted(ctx, round.ID, txRef, bought); err != nil {
		// The swaps happened. The round stays claimed, out of the
		// pending queue, so the fee cannot be converted a second time;
		// the operator reconciles it against the logged tx ref.
		return fmt.Errorf("record completed buyback (tx %s): %w", txRef, err)
	}

	s.log.Info("buyback completed",
		zap.String("round_id", round.ID.String()),
		zap.Int64("fee", fee),
		zap.Int64("bought", bought),
		zap.String("tx_ref", txRef),
	)
	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type: events.EventBuybackCompleted,
		Payload: map[string]any{
			"round_id": round.ID.String(),
			"fee":      fee,
			"bought":   bought,
			"tx_ref":   txRef,
		},
	})
	return nil
}

// swapHop runs one quote -> build -> sign -> broadcast -> confirm
// cycle against the aggregator and returns the quoted output amount
// and the confirmation tx hash.
func (s *BuybackService) swapHop(ctx context.Context, inAsset, outAsset string, amount int64, slippageBPS int, seedWords []string) (int64, string, error) {
	quote, err := s.swapper.Quote(ctx, swap.QuoteRequest{
		InputAsset:  inAsset,
		OutputAsset: outAsset,
		InputAmount: amount,
		SlippageBPS: slippageBPS,
	})
	if err != nil {
		return 0, "", fmt.Errorf("quote: %w", err)
	}

	tpl, err := s.swapper.Build(ctx, swap.BuildRequest{
		RouteID:       quote.RouteID,
		SenderAddress: s.cfg.PlatformWalletAddress,
	})
	if err != nil {
		return 0, "", fmt.Errorf("build route %s: %w", quote.RouteID, err)
	}

	msgs := make([]ton.ExternalMessage, 0, len(tpl.Messages))
	for _, m := range tpl.Messages {
		payload, err := base64.StdEncoding.DecodeString(m.Payload)
		if err != nil {
			return 0, "", fmt.Errorf("decode payload for %s: %w", m.Address, err)
		}
		msgs = append(msgs, ton.ExternalMessage{To: m.Address, AmountNano: m.AmountNano, Payload: payload})
	}

	txHash, err := s.chain.SendExternal(ctx, seedWords, msgs)
	if err != nil {
		return 0, "", fmt.Errorf("broadcast: %w", err)
	}
	return quote.OutputAmount, txHash, nil
}

func (s *BuybackService) markFailed(ctx context.Context, round models.Round, reason string) {
	s.log.Error("buyback failed, manual follow-up required",
		zap.String("round_id", round.ID.String()),
		zap.String("reason", reason),
	)
	if err := s.rounds.MarkBuybackFailed(ctx, round.ID); err != nil {
		s.log.Error("failed to mark buyback failed", zap.String("round_id", round.ID.String()), zap.Error(err))
		return
	}
	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type: events.EventBuybackFailed,
		Payload: map[string]any{
			"round_id": round.ID.String(),
			"reason":   reason,
		},
	})
}
