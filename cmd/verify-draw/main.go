// verify-draw recomputes a round's winner selection from its public
// inputs (round id, close-decision timestamp, entry list) and checks
// the result against the stored obligations. Anyone with read access
// can run it to audit a draw.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/tonlotto/backend/internal/config"
	"github.com/tonlotto/backend/internal/db"
	"github.com/tonlotto/backend/internal/fair"
	"github.com/tonlotto/backend/internal/models"
	"github.com/tonlotto/backend/internal/repositories"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: verify-draw <round-id>")
		os.Exit(2)
	}
	roundID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid round id: %v\n", err)
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	roundRepo := repositories.NewRoundRepo(pool)
	entryRepo := repositories.NewEntryRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)

	round, err := roundRepo.GetByID(ctx, roundID)
	if err != nil {
		log.Fatal("failed to load round", zap.Error(err))
	}
	if round.Status == models.RoundStatusActive || round.DrawSeed == nil || round.ClosedAt == nil {
		fmt.Println("round has not been drawn yet")
		os.Exit(1)
	}

	entries, err := entryRepo.ListByRound(ctx, roundID)
	if err != nil {
		log.Fatal("failed to load entries", zap.Error(err))
	}
	stored, err := payoutRepo.ListByRound(ctx, roundID)
	if err != nil {
		log.Fatal("failed to load obligations", zap.Error(err))
	}

	seed := fair.DeriveSeed(round.ID, *round.ClosedAt)
	fmt.Printf("round:          %s (seq %d)\n", round.ID, round.Seq)
	fmt.Printf("decided at:     %s\n", round.ClosedAt.UTC())
	fmt.Printf("stored seed:    %s\n", *round.DrawSeed)
	fmt.Printf("recomputed:     %s\n", seed)

	if seed != *round.DrawSeed {
		fmt.Println("MISMATCH: seed does not reproduce from public inputs")
		os.Exit(1)
	}

	winners, err := fair.SelectWinners(seed, entries)
	if err != nil {
		log.Fatal("failed to rerun selection", zap.Error(err))
	}

	if len(winners) != len(stored) {
		fmt.Printf("MISMATCH: recomputed %d winners, %d obligations stored\n", len(winners), len(stored))
		os.Exit(1)
	}

	ok := true
	for i, w := range winners {
		ob := stored[i]
		match := ob.Rank == i+1 && ob.Recipient == w.Participant
		status := "ok"
		if !match {
			status = "MISMATCH"
			ok = false
		}
		fmt.Printf("rank %d: recomputed %s, stored %s (%s)\n", i+1, w.Participant, ob.Recipient, status)
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("draw verified")
}
