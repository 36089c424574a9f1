package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonlotto/backend/internal/config"
	"github.com/tonlotto/backend/internal/events"
	"github.com/tonlotto/backend/internal/fair"
	"github.com/tonlotto/backend/internal/models"
	"github.com/tonlotto/backend/internal/repositories"
	"go.uber.org/zap"
)

// RoundService closes rounds whose wagering window has elapsed: it
// tallies the pool, runs the provably-fair draw, writes payout
// obligations and the closed status in one transaction.
type RoundService struct {
	rounds    *repositories.RoundRepo
	entries   *repositories.EntryRepo
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewRoundService(
	rounds *repositories.RoundRepo,
	entries *repositories.EntryRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *RoundService {
	return &RoundService{
		rounds:    rounds,
		entries:   entries,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// SettleDueRounds is one scheduler tick. Per-round errors are logged
// and skipped; a round that failed mid-processing is still active and
// gets picked up again next tick.
func (s *RoundService) SettleDueRounds(ctx context.Context) {
	due, err := s.rounds.GetDueActive(ctx, s.cfg.SchedulerBatchSize)
	if err != nil {
		s.log.Error("failed to fetch due rounds", zap.Error(err))
		return
	}

	for _, round := range due {
		if err := s.CloseRound(ctx, &round); err != nil {
			if errors.Is(err, repositories.ErrRoundNotActive) {
				continue
			}
			s.log.Error("failed to close round",
				zap.String("round_id", round.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// CloseRound settles a single round. The seed is derived from the
// round id and the close-decision timestamp, both persisted with the
// result, so the draw can be replayed by anyone.
func (s *RoundService) CloseRound(ctx context.Context, round *models.Round) error {
	entries, err := s.entries.ListByRound(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	decidedAt := time.Now().UTC().Truncate(time.Second)
	seed := fair.DeriveSeed(round.ID, decidedAt)

	var pool int64
	for _, e := range entries {
		pool += e.Amount
	}

	winners, err := fair.SelectWinners(seed, entries)
	if err != nil {
		return fmt.Errorf("select winners: %w", err)
	}

	obligations := make([]models.PayoutObligation, 0, len(winners))
	for i, w := range winners {
		obligations = append(obligations, models.PayoutObligation{
			RoundID:   round.ID,
			Recipient: w.Participant,
			Amount:    models.PrizeAmount(pool, i+1),
			Rank:      i + 1,
		})
	}

	fee := models.PlatformFee(pool)
	if err := s.rounds.Close(ctx, round.ID, pool, fee, len(entries), seed, decidedAt, obligations); err != nil {
		return err
	}

	s.log.Info("round closed",
		zap.String("round_id", round.ID.String()),
		zap.Int64("seq", round.Seq),
		zap.Int("entries", len(entries)),
		zap.Int64("pool", pool),
		zap.Int64("fee", fee),
		zap.Int("winners", len(winners)),
		zap.String("draw_seed", seed),
	)

	_ = s.publisher.Publish(ctx, events.StreamSettlement, events.Event{
		Type: events.EventRoundClosed,
		Payload: map[string]any{
			"round_id":  round.ID.String(),
			"pool":      pool,
			"winners":   len(winners),
			"draw_seed": seed,
		},
	})
	return nil
}
