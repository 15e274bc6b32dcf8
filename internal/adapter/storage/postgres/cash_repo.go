package postgres

import (
	"context"
	"fmt"

	"moneyflow/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CashOperationRepo implements ports.CashOperationRepository.
type CashOperationRepo struct {
	pool Pool
}

// NewCashOperationRepo creates a new CashOperationRepo.
func NewCashOperationRepo(pool Pool) *CashOperationRepo {
	return &CashOperationRepo{pool: pool}
}

// Create inserts a cash operation within a database transaction.
func (r *CashOperationRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.CashOperationRecord) error {
	query := `INSERT INTO cash_operations (id, subject_key, signed_amount, operation_kind, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, rec.ID, rec.SubjectKey, rec.SignedAmount, rec.Kind, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cash operation: %w", err)
	}
	return nil
}
