// Package fair implements provably-fair winner selection. The seed is
// a SHA-256 digest of public inputs fixed at close-decision time, so
// any third party can recompute the same shuffle and check the result.
package fair

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tonlotto/backend/internal/models"
)

// DeriveSeed returns the hex SHA-256 digest of "<roundID>:<closeUnix>".
// Both inputs are published with the round, which is what makes the
// draw verifiable.
func DeriveSeed(roundID uuid.UUID, decidedAt time.Time) string {
	h := sha256.Sum256([]byte(roundID.String() + ":" + strconv.FormatInt(decidedAt.Unix(), 10)))
	return hex.EncodeToString(h[:])
}

// SelectWinners performs a Fisher-Yates shuffle of the entries using a
// PRNG seeded from the digest and returns the first min(3, len) in
// shuffled order (rank 1 first). Entries must already be in their
// canonical order (insertion id ascending); the input slice is not
// modified. No non-reproducible input is consulted.
func SelectWinners(seedHex string, entries []models.Entry) ([]models.Entry, error) {
	digest, err := hex.DecodeString(seedHex)
	if err != nil || len(digest) < 8 {
		return nil, fmt.Errorf("invalid draw seed %q", seedHex)
	}

	shuffled := make([]models.Entry, len(entries))
	copy(shuffled, entries)

	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(digest[:8]))))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := models.MaxWinners
	if len(shuffled) < n {
		n = len(shuffled)
	}
	return shuffled[:n], nil
}
