package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/proptrade-auth/internal/config"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

// Scope separates counters of unrelated operations.
type Scope string

const (
	ScopeLogin              Scope = "login"
	ScopeTwoFactor          Scope = "2fa"
	ScopePasswordReset      Scope = "reset"
	ScopeResendVerification Scope = "resend"
)

const keyPrefix = "ratelimit:"

// Increment and window start in one step; the first hit opens the window.
var reserveLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter keeps fixed-window attempt counters in Redis. Counter failures are
// logged and never block a request; token revocation is the fail-closed path,
// not this one.
type Limiter struct {
	client  redis.UniversalClient
	cfg     config.RateLimitConfig
	logger  *zap.Logger
	timeout time.Duration
}

// New creates a limiter. A nil client or a disabled config yields a limiter
// that allows everything.
func New(client redis.UniversalClient, cfg config.RateLimitConfig, logger *zap.Logger, timeout time.Duration) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{client: client, cfg: cfg, logger: logger, timeout: timeout}
}

// Reserve counts an attempt before it is made and fails with RATE_LIMITED
// once the window's budget is spent. Concurrent callers each get their own
// slot, so no more than MaxAttempts attempts run per window. Callers Reset
// after a success.
func (l *Limiter) Reserve(ctx context.Context, scope Scope, id string) error {
	if !l.enabled() {
		return nil
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	count, err := reserveLua.Run(ctx, l.client, []string{key(scope, id)}, l.cfg.Window.Milliseconds()).Int64()
	if err != nil {
		l.logger.Warn("rate limit reserve failed", zap.String("scope", string(scope)), zap.Error(err))
		return nil
	}
	if count > int64(l.cfg.MaxAttempts) {
		return apperrors.ErrRateLimited
	}
	return nil
}

// Reset clears the counter after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, scope Scope, id string) {
	if !l.enabled() {
		return
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.client.Del(ctx, key(scope, id)).Err(); err != nil {
		l.logger.Warn("rate limit reset failed", zap.String("scope", string(scope)), zap.Error(err))
	}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.client != nil && l.cfg.Enabled && l.cfg.MaxAttempts > 0
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Identifiers are hashed so emails never appear in Redis keys.
func key(scope Scope, id string) string {
	sum := sha256.Sum256([]byte(id))
	return keyPrefix + string(scope) + ":" + hex.EncodeToString(sum[:])
}
