package postgres

import (
	"context"
	"errors"
	"fmt"

	"moneyflow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// AccountRepo implements ports.AccountRepository.
// Balance writes are optimistic: the version column is the CAS token.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, account_key, balance, version, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.Key, a.Balance, a.Version, a.Currency, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByKey fetches an account by its business key.
func (r *AccountRepo) GetByKey(ctx context.Context, key string) (*domain.Account, error) {
	query := `SELECT id, account_key, balance::text, version, currency, created_at, updated_at
		FROM accounts WHERE account_key = $1`

	var balance string
	a := &domain.Account{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&a.ID, &a.Key, &balance, &a.Version, &a.Currency, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by key: %w", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance of account %s: %w", key, err)
	}
	return a, nil
}

// CompareAndSwapBalance writes newBalance only if the stored version equals
// expectedVersion, and bumps the version in the same statement.
func (r *AccountRepo) CompareAndSwapBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	query := `UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`

	tag, err := r.pool.Exec(ctx, query, newBalance, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update account balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
