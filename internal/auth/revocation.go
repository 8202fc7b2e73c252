package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// ErrRegistryUnavailable wraps any failure of the backing store.
var ErrRegistryUnavailable = errors.New("revocation registry unavailable")

// TokenBlacklist records revoked session tokens until they expire.
type TokenBlacklist interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	// Claim blacklists token only if it is not already, and reports whether
	// this call was the one that did.
	Claim(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

// RevocationRegistry is a Redis-backed TokenBlacklist. Entries carry a TTL equal
// to the token's remaining lifetime, so they never outlive the token.
type RevocationRegistry struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRevocationRegistry wraps a Redis client; timeout bounds each call.
func NewRevocationRegistry(client redis.UniversalClient, timeout time.Duration) *RevocationRegistry {
	return &RevocationRegistry{client: client, timeout: timeout}
}

// Blacklist marks token revoked for ttl. Non-positive ttl means the token has
// already expired and nothing is written.
func (r *RevocationRegistry) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if r == nil || r.client == nil {
		return ErrRegistryUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(ctx, blacklistKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return nil
}

// Claim spends a single-use token with SET NX. Exactly one concurrent caller
// gets true; an expired token (ttl <= 0) is never claimable.
func (r *RevocationRegistry) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	if r == nil || r.client == nil {
		return false, ErrRegistryUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ok, err := r.client.SetNX(ctx, blacklistKey(token), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return ok, nil
}

// IsBlacklisted reports whether token was revoked. An error means the answer
// is unknown and must not be read as "not revoked" by default.
func (r *RevocationRegistry) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if r == nil || r.client == nil {
		return false, ErrRegistryUnavailable
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return n > 0, nil
}

func (r *RevocationRegistry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Raw bearer tokens are never written to the registry.
func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistPrefix + hex.EncodeToString(sum[:])
}
