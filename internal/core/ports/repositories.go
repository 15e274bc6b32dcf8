package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"moneyflow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OutboxRepository defines persistence operations for outbox records.
// Methods accepting pgx.Tx run inside the caller's transaction.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *domain.OutboxRecord) error
	// Save inserts outside any transaction. Used on failure paths where no
	// local record accompanies the event.
	Save(ctx context.Context, rec *domain.OutboxRecord) error
	// ClaimNew locks up to limit NEW records with SKIP LOCKED, oldest first.
	ClaimNew(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error)
	// MarkStatus moves a NEW record to a terminal status.
	// Returns domain.ErrOutboxTransitionInvalid if the record is no longer NEW.
	MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OutboxStatus) error
	// DeleteTerminalBefore removes PROCESSED and FAILED records created before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (*domain.OutboxStats, error)
}

// LedgerRepository persists completed transfers.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
}

// CashOperationRepository persists completed cash operations.
type CashOperationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *domain.CashOperationRecord) error
}

// AccountRepository defines persistence operations for balance accounts.
// Writes use a version compare-and-swap instead of row locks.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	// GetByKey returns nil, nil when the account does not exist.
	GetByKey(ctx context.Context, key string) (*domain.Account, error)
	// CompareAndSwapBalance writes newBalance and bumps the version only if the
	// stored version still equals expectedVersion. Returns false on a mismatch.
	CompareAndSwapBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
