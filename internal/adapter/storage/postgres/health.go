package postgres

import (
	"context"
	"fmt"
)

// Tables owned by each process. The schema is migrated externally, so the
// health check reports a missing table instead of failing on first use.
var (
	CoreTables    = []string{"outbox", "ledger_entries", "cash_operations"}
	BalanceTables = []string{"accounts"}
)

// HealthCheck implements ports.HealthChecker for PostgreSQL.
type HealthCheck struct {
	pool   Pool
	tables []string
}

// NewHealthCheck creates a checker that pings the server and then probes tables.
func NewHealthCheck(pool Pool, tables ...string) *HealthCheck {
	return &HealthCheck{pool: pool, tables: tables}
}

// Ping checks connectivity and that every required table exists.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	for _, table := range h.tables {
		var exists bool
		if err := h.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("probe table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s does not exist", table)
		}
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "postgresql"
}
