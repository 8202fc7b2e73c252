package repository

import (
	"context"
	"time"

	"github.com/spec-kit/proptrade-auth/internal/domain"
)

// EphemeralTokenRepository manages single-use token persistence. Token values
// are stored and looked up by hash only.
type EphemeralTokenRepository interface {
	Create(ctx context.Context, token *domain.EphemeralToken) error
	// Consume marks the token used if it is unused and unexpired at now and
	// returns its owner. It returns pgx.ErrNoRows when nothing matched.
	Consume(ctx context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (string, error)
	InvalidateOutstanding(ctx context.Context, accountID string, purpose domain.TokenPurpose, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type ephemeralTokenRepository struct {
	db DBTX
}

// NewEphemeralTokenRepository constructs repository.
func NewEphemeralTokenRepository(db DBTX) EphemeralTokenRepository {
	return &ephemeralTokenRepository{db: db}
}

func (r *ephemeralTokenRepository) Create(ctx context.Context, token *domain.EphemeralToken) error {
	const query = `
        INSERT INTO ephemeral_tokens (account_id, purpose, token_hash, expires_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		token.AccountID,
		string(token.Purpose),
		token.ValueHash,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)
}

func (r *ephemeralTokenRepository) Consume(ctx context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (string, error) {
	const query = `
        UPDATE ephemeral_tokens SET used=TRUE, used_at=$3
        WHERE token_hash=$1 AND purpose=$2 AND used=FALSE AND expires_at > $3
        RETURNING account_id`
	var accountID string
	if err := r.db.QueryRow(ctx, query, valueHash, string(purpose), now).Scan(&accountID); err != nil {
		return "", err
	}
	return accountID, nil
}

func (r *ephemeralTokenRepository) InvalidateOutstanding(ctx context.Context, accountID string, purpose domain.TokenPurpose, now time.Time) (int64, error) {
	const query = `
        UPDATE ephemeral_tokens SET used=TRUE, used_at=$3
        WHERE account_id=$1 AND purpose=$2 AND used=FALSE AND expires_at > $3`
	cmd, err := r.db.Exec(ctx, query, accountID, string(purpose), now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ephemeralTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM ephemeral_tokens WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
