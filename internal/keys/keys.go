// Package keys resolves the signing material for value transfers.
// Seeds are stored secretbox-encrypted and decrypted only transiently,
// immediately before signing; plaintext never reaches logs or the store.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"
)

// Source tags which key ended up signing, so an operator can tell a
// creator-funded payout from a platform-funded fallback.
type Source string

const (
	SourceCreator  Source = "creator"
	SourcePlatform Source = "platform"
)

var (
	ErrNoKey   = errors.New("no signing key available")
	ErrDecrypt = errors.New("cannot decrypt key material")
)

// Store looks up a creator's encrypted wallet seed. Returns (nil, nil)
// when the creator never registered one.
type Store interface {
	GetCreatorKey(ctx context.Context, creatorUserID uuid.UUID) ([]byte, error)
}

type Resolver struct {
	store        Store
	secret       [32]byte
	platformSeed []string
	log          *zap.Logger
}

// NewResolver derives the secretbox key from the deployment secret and
// keeps the platform fallback seed pre-split.
func NewResolver(store Store, encryptionSecret, platformSeed string, log *zap.Logger) *Resolver {
	return &Resolver{
		store:        store,
		secret:       sha256.Sum256([]byte(encryptionSecret)),
		platformSeed: strings.Fields(platformSeed),
		log:          log,
	}
}

// ResolveForCreator returns the seed words controlling the payout
// source for the given creator. Order: the creator's own encrypted key,
// then the platform-wide key. A decryption failure is logged (not
// swallowed silently) before falling back, and ErrNoKey is returned
// only when neither source can serve.
func (r *Resolver) ResolveForCreator(ctx context.Context, creatorUserID uuid.UUID) ([]string, Source, error) {
	box, err := r.store.GetCreatorKey(ctx, creatorUserID)
	if err != nil {
		return nil, "", fmt.Errorf("load creator key: %w", err)
	}

	if box != nil {
		plain, derr := Decrypt(r.secret, box)
		if derr == nil {
			return strings.Fields(string(plain)), SourceCreator, nil
		}
		r.log.Warn("creator key decryption failed, falling back to platform key",
			zap.String("creator_user_id", creatorUserID.String()),
			zap.Error(derr),
		)
	}

	if len(r.platformSeed) == 0 {
		return nil, "", ErrNoKey
	}
	return r.platformSeed, SourcePlatform, nil
}

// TreasurySeed returns the platform treasury seed used for buyback
// swaps. Same material as the payout fallback key.
func (r *Resolver) TreasurySeed() ([]string, error) {
	if len(r.platformSeed) == 0 {
		return nil, ErrNoKey
	}
	return r.platformSeed, nil
}

// Encrypt seals plaintext with a random nonce prefix. Used by the
// creator onboarding path when registering a payout wallet.
func Encrypt(secret [32]byte, plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &secret), nil
}

// Decrypt opens a box produced by Encrypt.
func Decrypt(secret [32]byte, box []byte) ([]byte, error) {
	if len(box) < 24 {
		return nil, ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	plain, ok := secretbox.Open(nil, box[24:], &nonce, &secret)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// DeriveSecret exposes the key derivation for tooling and tests.
func DeriveSecret(encryptionSecret string) [32]byte {
	return sha256.Sum256([]byte(encryptionSecret))
}
