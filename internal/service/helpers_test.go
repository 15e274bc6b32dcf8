package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing. Commit can be made to fail.
// Begin opens a savepoint recorded in savepoints.
type mockTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
	savepoints []*mockTx
}

func (m *mockTx) Begin(_ context.Context) (pgx.Tx, error) {
	sp := &mockTx{}
	m.savepoints = append(m.savepoints, sp)
	return sp, nil
}

func (m *mockTx) Rollback(_ context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

func (m *mockTx) Commit(_ context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}

// decimalEq matches a decimal.Decimal by numeric value.
type decimalEq struct{ want decimal.Decimal }

func decEq(s string) gomock.Matcher {
	return decimalEq{want: decimal.RequireFromString(s)}
}

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string {
	return fmt.Sprintf("is decimal %s", m.want)
}
