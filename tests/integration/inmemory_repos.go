package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"moneyflow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var errInjected = errors.New("injected storage failure")

// --- In-Memory Transactor ---

// memTx buffers writes and applies them on Commit, so a rolled back saga
// commit leaves no ledger row and no outbox record behind. A memTx with a
// parent is a savepoint: Commit hands its writes to the parent.
type memTx struct {
	mu      sync.Mutex
	pending []func()
	done    bool
	parent  *memTx
}

func (t *memTx) stage(op func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, op)
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return &memTx{parent: t}, nil }

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	for _, op := range t.pending {
		if t.parent != nil {
			t.parent.stage(op)
		} else {
			op()
		}
	}
	t.pending = nil
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.pending = nil
	t.done = true
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{}, nil
}

func asMemTx(tx pgx.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok {
		return nil, fmt.Errorf("unexpected transaction type %T", tx)
	}
	return mt, nil
}

// --- In-Memory Outbox Repo ---

type inMemoryOutboxRepo struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*domain.OutboxRecord
	failMark map[uuid.UUID]bool
}

func newInMemoryOutboxRepo() *inMemoryOutboxRepo {
	return &inMemoryOutboxRepo{
		records:  make(map[uuid.UUID]*domain.OutboxRecord),
		failMark: make(map[uuid.UUID]bool),
	}
}

// failNextMark makes the next MarkStatus for id fail.
func (r *inMemoryOutboxRepo) failNextMark(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failMark[id] = true
}

func (r *inMemoryOutboxRepo) put(rec *domain.OutboxRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
}

func (r *inMemoryOutboxRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.OutboxRecord) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	mt.stage(func() { r.put(rec) })
	return nil
}

func (r *inMemoryOutboxRepo) Save(ctx context.Context, rec *domain.OutboxRecord) error {
	r.put(rec)
	return nil
}

func (r *inMemoryOutboxRepo) ClaimNew(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.OutboxRecord
	for _, rec := range r.records {
		if rec.Status == domain.OutboxStatusNew {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryOutboxRepo) MarkStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OutboxStatus) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	rec, ok := r.records[id]
	isNew := ok && rec.Status == domain.OutboxStatusNew
	fail := r.failMark[id]
	delete(r.failMark, id)
	r.mu.Unlock()
	if fail {
		return fmt.Errorf("update outbox status: %w", errInjected)
	}
	if !isNew {
		return fmt.Errorf("%w: record %s is not NEW", domain.ErrOutboxTransitionInvalid, id)
	}
	mt.stage(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.records[id].Status = status
	})
	return nil
}

func (r *inMemoryOutboxRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.Status.IsTerminal() && rec.CreatedAt.Before(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *inMemoryOutboxRepo) CountByStatus(ctx context.Context) (*domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.OutboxStats{}
	for _, rec := range r.records {
		switch rec.Status {
		case domain.OutboxStatusNew:
			stats.New++
		case domain.OutboxStatusProcessed:
			stats.Processed++
		case domain.OutboxStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// all returns a snapshot of every record, oldest first.
func (r *inMemoryOutboxRepo) all() []domain.OutboxRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// age moves every record's creation time back by d.
func (r *inMemoryOutboxRepo) age(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		rec.CreatedAt = rec.CreatedAt.Add(-d)
	}
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	failing bool
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return fmt.Errorf("insert ledger entry: %w", errInjected)
	}
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	mt.stage(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = append(r.entries, *entry)
	})
	return nil
}

func (r *inMemoryLedgerRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

func (r *inMemoryLedgerRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// --- In-Memory Cash Operation Repo ---

type inMemoryCashRepo struct {
	mu      sync.Mutex
	records []domain.CashOperationRecord
	failing bool
}

func newInMemoryCashRepo() *inMemoryCashRepo {
	return &inMemoryCashRepo{}
}

func (r *inMemoryCashRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.CashOperationRecord) error {
	r.mu.Lock()
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return fmt.Errorf("insert cash operation: %w", errInjected)
	}
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	mt.stage(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.records = append(r.records, *rec)
	})
	return nil
}

func (r *inMemoryCashRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

func (r *inMemoryCashRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.Key]; ok {
		return domain.ErrAccountExists
	}
	cp := *account
	r.accounts[account.Key] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByKey(ctx context.Context, key string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[key]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) CompareAndSwapBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID != id {
			continue
		}
		if a.Version != expectedVersion {
			return false, nil
		}
		a.Balance = newBalance
		a.Version++
		a.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (r *inMemoryAccountRepo) balance(key string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[key]; ok {
		return a.Balance
	}
	return decimal.Zero
}
