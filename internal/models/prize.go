package models

// Prize split in basis points. The three rank shares plus the
// platform fee add up to the full pool (50 + 20 + 15 + 15).
const (
	MaxWinners = 3

	PlatformFeeBPS = 1500
)

var PrizeShareBPS = [MaxWinners]int64{5000, 2000, 1500}

// PrizeAmount returns the share of the pool owed to the given rank
// (1-based). Integer bps math, truncating division.
func PrizeAmount(pool int64, rank int) int64 {
	if rank < 1 || rank > MaxWinners {
		return 0
	}
	return pool * PrizeShareBPS[rank-1] / 10000
}

// PlatformFee returns the 15% cut the buyback worker converts into
// the treasury token.
func PlatformFee(pool int64) int64 {
	return pool * PlatformFeeBPS / 10000
}
