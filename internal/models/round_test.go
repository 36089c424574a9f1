package models

import "testing"

func TestIsValidRoundTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{RoundStatusActive, RoundStatusClosed, true},
		{RoundStatusClosed, RoundStatusDistributed, true},

		// No regressions, no skips
		{RoundStatusActive, RoundStatusDistributed, false},
		{RoundStatusClosed, RoundStatusActive, false},
		{RoundStatusDistributed, RoundStatusClosed, false},
		{RoundStatusDistributed, RoundStatusActive, false},
		{RoundStatusActive, RoundStatusActive, false},
		{"nonexistent", RoundStatusClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidRoundTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidRoundTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValidBuybackTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{BuybackStatusPending, BuybackStatusProcessing, true},
		{BuybackStatusProcessing, BuybackStatusCompleted, true},
		{BuybackStatusProcessing, BuybackStatusFailed, true},

		// Terminal writes require the claim first
		{BuybackStatusPending, BuybackStatusCompleted, false},
		{BuybackStatusPending, BuybackStatusFailed, false},

		// Terminal states are final
		{BuybackStatusCompleted, BuybackStatusPending, false},
		{BuybackStatusCompleted, BuybackStatusFailed, false},
		{BuybackStatusFailed, BuybackStatusCompleted, false},
		{BuybackStatusFailed, BuybackStatusPending, false},
		{BuybackStatusProcessing, BuybackStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidBuybackTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidBuybackTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValidPayoutTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{PayoutStatusPending, PayoutStatusProcessing, true},
		{PayoutStatusProcessing, PayoutStatusCompleted, true},
		{PayoutStatusProcessing, PayoutStatusFailed, true},

		// Terminal writes require the claim first
		{PayoutStatusPending, PayoutStatusCompleted, false},
		{PayoutStatusPending, PayoutStatusFailed, false},

		{PayoutStatusCompleted, PayoutStatusPending, false},
		{PayoutStatusProcessing, PayoutStatusPending, false},
		{PayoutStatusCompleted, PayoutStatusFailed, false},
		{PayoutStatusFailed, PayoutStatusPending, false},
		{PayoutStatusFailed, PayoutStatusCompleted, false},
		{PayoutStatusCompleted, PayoutStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidPayoutTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidPayoutTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestPrizeAmount(t *testing.T) {
	// $10 pool in USDT base units: 5 entries of $2
	const pool = 10_000_000

	tests := []struct {
		rank     int
		expected int64
	}{
		{1, 5_000_000}, // $5.00
		{2, 2_000_000}, // $2.00
		{3, 1_500_000}, // $1.50
		{0, 0},
		{4, 0},
	}

	for _, tt := range tests {
		if got := PrizeAmount(pool, tt.rank); got != tt.expected {
			t.Errorf("PrizeAmount(%d, %d) = %d, want %d", pool, tt.rank, got, tt.expected)
		}
	}

	if got := PlatformFee(pool); got != 1_500_000 {
		t.Errorf("PlatformFee(%d) = %d, want 1500000", pool, got)
	}
}

func TestPrizeSplitCoversFullPool(t *testing.T) {
	pools := []int64{10_000_000, 300_000, 1, 0, 999_999_999_999}

	for _, pool := range pools {
		sum := PlatformFee(pool)
		for rank := 1; rank <= MaxWinners; rank++ {
			sum += PrizeAmount(pool, rank)
		}
		// Shares are truncated individually, so the sum may fall short
		// by rounding dust but must never exceed the pool.
		if sum > pool {
			t.Errorf("pool %d: shares sum %d exceeds pool", pool, sum)
		}
		if pool%10000 == 0 && sum != pool {
			t.Errorf("pool %d: shares sum %d, want exact pool", pool, sum)
		}
	}
}

func TestPrizeAmountSmallRound(t *testing.T) {
	// Single $0.30 entry: winner takes 50%, fee is $0.045
	const pool = 300_000

	if got := PrizeAmount(pool, 1); got != 150_000 {
		t.Errorf("PrizeAmount(%d, 1) = %d, want 150000", pool, got)
	}
	if got := PlatformFee(pool); got != 45_000 {
		t.Errorf("PlatformFee(%d) = %d, want 45000", pool, got)
	}
}
