package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*miniredis.Miniredis, *RevocationRegistry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRevocationRegistry(client, time.Second)
}

func TestRevocationRegistry_BlacklistWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, reg := newTestRegistry(t)

	revoked, err := reg.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, reg.Blacklist(ctx, "tok", 90*time.Second))
	revoked, err = reg.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	key := blacklistKey("tok")
	assert.NotContains(t, key, "tok:")
	assert.Equal(t, 90*time.Second, mr.TTL(key))

	mr.FastForward(91 * time.Second)
	revoked, err = reg.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked, "entry must not outlive the token")
}

func TestRevocationRegistry_ExpiredTokenWritesNothing(t *testing.T) {
	mr, reg := newTestRegistry(t)
	require.NoError(t, reg.Blacklist(context.Background(), "tok", 0))
	assert.Empty(t, mr.Keys())
}

func TestRevocationRegistry_ClaimIsSingleUse(t *testing.T) {
	ctx := context.Background()
	mr, reg := newTestRegistry(t)

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := reg.Claim(ctx, "ticket", time.Minute)
			if err == nil && ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, won.Load())

	revoked, err := reg.IsBlacklisted(ctx, "ticket")
	require.NoError(t, err)
	assert.True(t, revoked, "a claimed token is blacklisted")
	assert.Equal(t, time.Minute, mr.TTL(blacklistKey("ticket")))

	require.NoError(t, reg.Blacklist(ctx, "revoked", time.Minute))
	ok, err := reg.Claim(ctx, "revoked", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.Claim(ctx, "expired", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevocationRegistry_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, reg := newTestRegistry(t)
	mr.Close()

	err := reg.Blacklist(ctx, "tok", time.Minute)
	require.ErrorIs(t, err, ErrRegistryUnavailable)

	_, err = reg.IsBlacklisted(ctx, "tok")
	require.ErrorIs(t, err, ErrRegistryUnavailable)

	_, err = reg.Claim(ctx, "tok", time.Minute)
	require.ErrorIs(t, err, ErrRegistryUnavailable)

	var nilRegistry *RevocationRegistry
	_, err = nilRegistry.IsBlacklisted(ctx, "tok")
	require.ErrorIs(t, err, ErrRegistryUnavailable)
}
