package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/proptrade-auth/internal/domain"
)

// memoryAccountRepository is a thread-safe in-memory store for tests and
// local development without POSTGRES_DSN.
type memoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Account
	byEmail map[string]string
}

// NewMemoryAccountRepository creates an empty in-memory account store.
func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		byID:    make(map[string]*domain.Account),
		byEmail: make(map[string]string),
	}
}

func (m *memoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := domain.NormalizeEmail(account.Email)
	if _, exists := m.byEmail[email]; exists {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.Email = email
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	m.byID[account.ID] = &stored
	m.byEmail[email] = account.ID
	return nil
}

// mutate applies fn to the stored row under the write lock. fn reports
// whether the row still matched the caller's expectation.
func (m *memoryAccountRepository) mutate(id string, fn func(*domain.Account) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok || !fn(account) {
		return false
	}
	account.UpdatedAt = time.Now().UTC()
	return true
}

func (m *memoryAccountRepository) conditional(id string, fn func(*domain.Account) bool) error {
	if !m.mutate(id, fn) {
		return ErrStaleAccount
	}
	return nil
}

func (m *memoryAccountRepository) RecordLogin(_ context.Context, id, expectedHash string, at time.Time, ip string) error {
	return m.conditional(id, func(a *domain.Account) bool {
		if !a.Active || a.PasswordHash != expectedHash {
			return false
		}
		a.RecordLogin(at, ip)
		return true
	})
}

func (m *memoryAccountRepository) UpdatePasswordHash(_ context.Context, id, expectedHash, newHash string) error {
	return m.conditional(id, func(a *domain.Account) bool {
		if a.PasswordHash != expectedHash {
			return false
		}
		a.PasswordHash = newHash
		return true
	})
}

func (m *memoryAccountRepository) StageTwoFactorSecret(_ context.Context, id, secret string) error {
	return m.conditional(id, func(a *domain.Account) bool {
		return a.StageTwoFactorSecret(secret) == nil
	})
}

func (m *memoryAccountRepository) EnableTwoFactor(_ context.Context, id, secret string) error {
	return m.conditional(id, func(a *domain.Account) bool {
		if !a.HasTwoFactorSecret() || *a.TwoFactorSecret != secret {
			return false
		}
		return a.ConfirmTwoFactor() == nil
	})
}

func (m *memoryAccountRepository) DisableTwoFactor(_ context.Context, id, expectedHash string) error {
	return m.conditional(id, func(a *domain.Account) bool {
		if a.PasswordHash != expectedHash {
			return false
		}
		a.DisableTwoFactor()
		return true
	})
}

func (m *memoryAccountRepository) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	return m.mutate(id, func(a *domain.Account) bool {
		if a.Verified {
			return false
		}
		a.MarkVerified(at)
		return true
	}), nil
}

func (m *memoryAccountRepository) Deactivate(_ context.Context, id string) (bool, error) {
	return m.mutate(id, func(a *domain.Account) bool {
		if !a.Active {
			return false
		}
		a.Deactivate()
		return true
	}), nil
}

func (m *memoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *account
	return &out, nil
}

func (m *memoryAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	m.mu.RLock()
	id, ok := m.byEmail[domain.NormalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

type memoryEphemeralTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*domain.EphemeralToken
}

// NewMemoryEphemeralTokenRepository creates an empty in-memory token store.
func NewMemoryEphemeralTokenRepository() EphemeralTokenRepository {
	return &memoryEphemeralTokenRepository{byHash: make(map[string]*domain.EphemeralToken)}
}

func (m *memoryEphemeralTokenRepository) Create(_ context.Context, token *domain.EphemeralToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token.ID = uuid.NewString()
	token.CreatedAt = time.Now().UTC()
	stored := *token
	stored.Value = ""
	m.byHash[token.ValueHash] = &stored
	return nil
}

func (m *memoryEphemeralTokenRepository) Consume(_ context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.byHash[valueHash]
	if !ok || token.Purpose != purpose || !token.IsValid(now) {
		return "", pgx.ErrNoRows
	}
	usedAt := now
	token.Used = true
	token.UsedAt = &usedAt
	return token.AccountID, nil
}

func (m *memoryEphemeralTokenRepository) InvalidateOutstanding(_ context.Context, accountID string, purpose domain.TokenPurpose, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, token := range m.byHash {
		if token.AccountID == accountID && token.Purpose == purpose && token.IsValid(now) {
			usedAt := now
			token.Used = true
			token.UsedAt = &usedAt
			n++
		}
	}
	return n, nil
}

func (m *memoryEphemeralTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for hash, token := range m.byHash {
		if token.ExpiresAt.Before(before) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}
