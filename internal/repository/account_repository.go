package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/proptrade-auth/internal/domain"
)

// AccountRepository defines persistence access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// Each transition writes only its own columns and applies only while the
	// row still matches what the caller checked. A miss is ErrStaleAccount.
	RecordLogin(ctx context.Context, id, expectedHash string, at time.Time, ip string) error
	UpdatePasswordHash(ctx context.Context, id, expectedHash, newHash string) error
	StageTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id, secret string) error
	DisableTwoFactor(ctx context.Context, id, expectedHash string) error

	// MarkVerified and Deactivate are idempotent and report whether this call
	// changed the row.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
	Deactivate(ctx context.Context, id string) (bool, error)
}

type accountRepository struct {
	db DBTX
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, email, password_hash, first_name, last_name, phone, country_code, role, tenant_id,
        is_active, is_verified, email_verified_at, two_factor_enabled, two_factor_secret,
        last_login_at, last_login_ip, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (email, password_hash, first_name, last_name, phone, country_code, role, tenant_id,
            is_active, is_verified, two_factor_enabled)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		domain.NormalizeEmail(account.Email),
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Phone,
		account.CountryCode,
		string(account.Role),
		account.TenantID,
		account.Active,
		account.Verified,
		account.TwoFactorEnabled,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// RecordLogin stamps login bookkeeping while the account is still active and
// still holds the password hash the caller verified.
func (r *accountRepository) RecordLogin(ctx context.Context, id, expectedHash string, at time.Time, ip string) error {
	const query = `
        UPDATE accounts SET last_login_at=$2, last_login_ip=COALESCE($3, last_login_ip), updated_at=NOW()
        WHERE id=$1 AND is_active AND password_hash=$4`

	return expectOneRow(r.db.Exec(ctx, query, id, at.UTC(), nullableString(ip), expectedHash))
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id, expectedHash, newHash string) error {
	const query = `
        UPDATE accounts SET password_hash=$2, updated_at=NOW()
        WHERE id=$1 AND password_hash=$3`

	return expectOneRow(r.db.Exec(ctx, query, id, newHash, expectedHash))
}

func (r *accountRepository) StageTwoFactorSecret(ctx context.Context, id, secret string) error {
	const query = `
        UPDATE accounts SET two_factor_secret=$2, updated_at=NOW()
        WHERE id=$1 AND NOT two_factor_enabled`

	return expectOneRow(r.db.Exec(ctx, query, id, secret))
}

func (r *accountRepository) EnableTwoFactor(ctx context.Context, id, secret string) error {
	const query = `
        UPDATE accounts SET two_factor_enabled=TRUE, updated_at=NOW()
        WHERE id=$1 AND NOT two_factor_enabled AND two_factor_secret=$2`

	return expectOneRow(r.db.Exec(ctx, query, id, secret))
}

func (r *accountRepository) DisableTwoFactor(ctx context.Context, id, expectedHash string) error {
	const query = `
        UPDATE accounts SET two_factor_enabled=FALSE, two_factor_secret=NULL, updated_at=NOW()
        WHERE id=$1 AND password_hash=$2`

	return expectOneRow(r.db.Exec(ctx, query, id, expectedHash))
}

func (r *accountRepository) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE accounts SET is_verified=TRUE, email_verified_at=$2, updated_at=NOW()
        WHERE id=$1 AND NOT is_verified`

	cmd, err := r.db.Exec(ctx, query, id, at.UTC())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *accountRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE accounts SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND is_active`

	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	return scanAccount(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		role    string
	)
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Phone,
		&account.CountryCode,
		&role,
		&account.TenantID,
		&account.Active,
		&account.Verified,
		&account.EmailVerifiedAt,
		&account.TwoFactorEnabled,
		&account.TwoFactorSecret,
		&account.LastLoginAt,
		&account.LastLoginIP,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	account.Role = domain.Role(role)
	return &account, nil
}
