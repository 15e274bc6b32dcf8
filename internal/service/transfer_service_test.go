package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/internal/core/ports/mocks"
	"moneyflow/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transferTestDeps struct {
	svc        *TransferServiceImpl
	mutator    *mocks.MockBalanceMutator
	ledgerRepo *mocks.MockLedgerRepository
	outboxRepo *mocks.MockOutboxRepository
	transactor *mocks.MockDBTransactor
	idempCache *mocks.MockIdempotencyCache
	ctrl       *gomock.Controller
}

func setupTransferService(t *testing.T) *transferTestDeps {
	ctrl := gomock.NewController(t)
	d := &transferTestDeps{
		mutator:    mocks.NewMockBalanceMutator(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		outboxRepo: mocks.NewMockOutboxRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewTransferService(d.mutator, d.ledgerRepo, d.outboxRepo, d.transactor, d.idempCache, nil, zerolog.Nop())
	return d
}

func transferReq() ports.TransferRequest {
	return ports.TransferRequest{
		SenderKey:    "alice",
		RecipientKey: "bob",
		Amount:       decimal.RequireFromString("100.00"),
	}
}

func failed(code domain.ErrorCode, msg string) domain.MutationResult {
	return domain.MutationFailed(code, msg)
}

// expectEvent captures a standalone outbox event.
func expectEvent(d *transferTestDeps, got **domain.OutboxRecord) {
	d.outboxRepo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec *domain.OutboxRecord) error {
		*got = rec
		return nil
	})
}

func TestProcessTransfer_Success(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	tx := &mockTx{}

	var (
		entry *domain.LedgerEntry
		event *domain.OutboxRecord
	)
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).Return(domain.MutationOK()),
		d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil),
		d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			entry = e
			return nil
		}),
		d.outboxRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(func(_ context.Context, _ pgx.Tx, rec *domain.OutboxRecord) error {
			event = rec
			return nil
		}),
	)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.TransferCommitted, result.State)
	require.NotNil(t, entry)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, "alice", entry.SenderKey)
	assert.Equal(t, "bob", entry.RecipientKey)
	assert.Equal(t, entry.ID.String(), result.ReferenceID)

	require.NotNil(t, event)
	assert.Equal(t, domain.EventTypeTransfer, event.EventType)
	assert.Equal(t, domain.EventStatusSuccess, event.Payload.Status)
	assert.Equal(t, "alice", event.Payload.Username)
	assert.Equal(t, domain.OutboxStatusNew, event.Status)
	assert.True(t, tx.committed)
}

func TestProcessTransfer_WithdrawRejected(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()

	// No deposit, no compensation, no ledger entry, no event.
	d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).
		Return(failed(domain.ErrCodeInsufficientFunds, "balance 10.00 cannot cover -100.00"))

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeInsufficientFunds, result.ErrorCode)
	assert.Equal(t, domain.TransferWithdrawFailed, result.State)
	assert.Contains(t, result.Message, "withdraw failed")
}

func TestProcessTransfer_DepositFailed_Compensated(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()

	var event *domain.OutboxRecord
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).
			Return(failed(domain.ErrCodeServiceError, "balance service unavailable")),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).Return(domain.MutationOK()),
	)
	expectEvent(d, &event)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeServiceError, result.ErrorCode)
	assert.Equal(t, domain.TransferCompensated, result.State)
	assert.Contains(t, result.Message, "funds returned")

	require.NotNil(t, event)
	assert.Equal(t, domain.EventTypeTransfer, event.EventType)
	assert.Equal(t, domain.EventStatusFailure, event.Payload.Status)
	assert.Equal(t, "alice", event.Payload.Username)
}

func TestProcessTransfer_DepositFailed_CompensationFailed(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()

	var event *domain.OutboxRecord
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).
			Return(failed(domain.ErrCodeAccountNotFound, "account bob not found")),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).
			Return(failed(domain.ErrCodeServiceError, "timeout")),
	)
	expectEvent(d, &event)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeAccountNotFound, result.ErrorCode, "primary failure classification is preserved")
	assert.Equal(t, domain.TransferCompensationFailed, result.State)
	assert.Contains(t, result.Message, "could not be restored")
	assert.True(t, result.ReconciliationRequired)

	require.NotNil(t, event)
	assert.Equal(t, domain.EventStatusCompensationFailure, event.Payload.Status)
}

func TestProcessTransfer_CommitFailed_CompensatesBothLegs(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	tx := &mockTx{commitErr: errors.New("connection lost")}

	var event *domain.OutboxRecord
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).Return(domain.MutationOK()),
		d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil),
		d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil),
		d.outboxRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).Return(domain.MutationOK()),
	)
	expectEvent(d, &event)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeLocalPersistenceError, result.ErrorCode)
	assert.Equal(t, domain.TransferCompensated, result.State)
	assert.True(t, tx.rolledBack)

	require.NotNil(t, event)
	assert.Equal(t, domain.EventStatusFailure, event.Payload.Status)
}

func TestProcessTransfer_LedgerWriteFailed_SenderRefundFails(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	tx := &mockTx{}

	var event *domain.OutboxRecord
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).Return(domain.MutationOK()),
		d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil),
		d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(errors.New("disk full")),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).
			Return(failed(domain.ErrCodeConflict, "modified concurrently")),
	)
	expectEvent(d, &event)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeLocalPersistenceError, result.ErrorCode)
	assert.Equal(t, domain.TransferCompensationFailed, result.State)
	require.NotNil(t, event)
	assert.Equal(t, domain.EventStatusCompensationFailure, event.Payload.Status)
}

func TestProcessTransfer_BeginFailed_RecipientReversalFails(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()

	var event *domain.OutboxRecord
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).Return(domain.MutationOK()),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).Return(domain.MutationOK()),
		d.transactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool exhausted")),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("-100.00")).
			Return(failed(domain.ErrCodeInsufficientFunds, "bob already spent it")),
		// The sender refund is still attempted.
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).Return(domain.MutationOK()),
	)
	expectEvent(d, &event)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)

	assert.Equal(t, domain.TransferCompensationFailed, result.State)
	assert.Equal(t, domain.EventStatusCompensationFailure, event.Payload.Status)
}

func TestProcessTransfer_OutboxSaveFailure_KeepsResult(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()

	d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", gomock.Any()).Return(domain.MutationOK())
	d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", gomock.Any()).Return(failed(domain.ErrCodeServiceError, "down"))
	d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("100.00")).Return(domain.MutationOK())
	d.outboxRepo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.TransferCompensated, result.State)
}

func TestProcessTransfer_Validation(t *testing.T) {
	tests := []struct {
		name     string
		req      ports.TransferRequest
		wantCode string
	}{
		{"zero amount", ports.TransferRequest{SenderKey: "alice", RecipientKey: "bob", Amount: decimal.Zero}, "VAL_002"},
		{"negative amount", ports.TransferRequest{SenderKey: "alice", RecipientKey: "bob", Amount: decimal.NewFromInt(-5)}, "VAL_002"},
		{"same party", ports.TransferRequest{SenderKey: "alice", RecipientKey: "alice", Amount: decimal.NewFromInt(5)}, "VAL_003"},
		{"missing recipient", ports.TransferRequest{SenderKey: "alice", Amount: decimal.NewFromInt(5)}, "VAL_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupTransferService(t)

			result, err := d.svc.ProcessTransfer(context.Background(), tt.req)
			assert.Nil(t, result)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestProcessTransfer_IdempotentReplay(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	req := transferReq()
	req.IdempotencyKey = "req-1"

	cached, err := json.Marshal(domain.Succeeded("transferred 100.00 to bob", "ref-1"))
	require.NoError(t, err)
	d.idempCache.EXPECT().Get(ctx, "alice:transfer:req-1").Return(cached, nil)

	result, err := d.svc.ProcessTransfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ref-1", result.ReferenceID)
}

func TestProcessTransfer_IdempotencyInProgress(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	req := transferReq()
	req.IdempotencyKey = "req-1"

	d.idempCache.EXPECT().Get(ctx, "alice:transfer:req-1").Return(nil, nil)
	d.idempCache.EXPECT().Reserve(ctx, "alice:transfer:req-1", reservationTTL).Return(false, nil)

	result, err := d.svc.ProcessTransfer(ctx, req)
	assert.Nil(t, result)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "IDEM_001", appErr.Code)
}

func TestProcessTransfer_IdempotencyStoresResult(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	req := transferReq()
	req.IdempotencyKey = "req-2"
	key := "alice:transfer:req-2"

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.idempCache.EXPECT().Reserve(ctx, key, reservationTTL).Return(true, nil)
	d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", gomock.Any()).
		Return(failed(domain.ErrCodeInsufficientFunds, "no funds"))
	d.idempCache.EXPECT().Set(gomock.Any(), key, gomock.Any(), idempotencyTTL).DoAndReturn(
		func(_ context.Context, _ string, body []byte, _ time.Duration) error {
			var stored domain.OperationResult
			require.NoError(t, json.Unmarshal(body, &stored))
			assert.Equal(t, domain.ErrCodeInsufficientFunds, stored.ErrorCode)
			return nil
		})
	d.idempCache.EXPECT().Release(gomock.Any(), key).Return(nil)

	result, err := d.svc.ProcessTransfer(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestProcessTransfer_IdempotencyCacheDown(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	req := transferReq()
	req.IdempotencyKey = "req-3"
	key := "alice:transfer:req-3"

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, errors.New("redis down"))
	d.idempCache.EXPECT().Reserve(ctx, key, reservationTTL).Return(false, errors.New("redis down"))
	d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", gomock.Any()).
		Return(failed(domain.ErrCodeAccountNotFound, "account alice not found"))
	d.idempCache.EXPECT().Set(gomock.Any(), key, gomock.Any(), idempotencyTTL).Return(errors.New("redis down"))

	result, err := d.svc.ProcessTransfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrCodeAccountNotFound, result.ErrorCode)
}

func TestProcessTransfer_CallerCancelledAfterWithdraw(t *testing.T) {
	d := setupTransferService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tx := &mockTx{}

	live := func(stepCtx context.Context) {
		assert.NoError(t, stepCtx.Err(), "saga step ran on a cancelled context")
	}
	gomock.InOrder(
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", decEq("-100.00")).DoAndReturn(
			func(context.Context, string, decimal.Decimal) domain.MutationResult {
				cancel()
				return domain.MutationOK()
			}),
		d.mutator.EXPECT().MutateBalance(gomock.Any(), "bob", decEq("100.00")).DoAndReturn(
			func(stepCtx context.Context, _ string, _ decimal.Decimal) domain.MutationResult {
				live(stepCtx)
				return domain.MutationOK()
			}),
		d.transactor.EXPECT().Begin(gomock.Any()).DoAndReturn(func(stepCtx context.Context) (pgx.Tx, error) {
			live(stepCtx)
			return tx, nil
		}),
		d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil),
		d.outboxRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil),
	)

	result, err := d.svc.ProcessTransfer(ctx, transferReq())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.TransferCommitted, result.State)
	assert.True(t, tx.committed)
}

func TestProcessTransfer_IdempotencyResultStoredWhileReserving(t *testing.T) {
	d := setupTransferService(t)
	ctx := context.Background()
	req := transferReq()
	req.IdempotencyKey = "req-4"
	key := "alice:transfer:req-4"

	// A duplicate finishes between the first lookup and the reservation.
	cached, err := json.Marshal(domain.Succeeded("transferred 100.00 to bob", "ref-dup"))
	require.NoError(t, err)
	gomock.InOrder(
		d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil),
		d.idempCache.EXPECT().Reserve(ctx, key, reservationTTL).Return(true, nil),
		d.idempCache.EXPECT().Get(ctx, key).Return(cached, nil),
		d.idempCache.EXPECT().Release(gomock.Any(), key).Return(nil),
	)

	result, err := d.svc.ProcessTransfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ref-dup", result.ReferenceID)
}

func TestProcessTransfer_IdempotencySkipsTransientFailures(t *testing.T) {
	tests := []struct {
		name string
		code domain.ErrorCode
	}{
		{"service error", domain.ErrCodeServiceError},
		{"conflict", domain.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupTransferService(t)
			ctx := context.Background()
			req := transferReq()
			req.IdempotencyKey = "req-5"
			key := "alice:transfer:req-5"

			d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
			d.idempCache.EXPECT().Reserve(ctx, key, reservationTTL).Return(true, nil)
			d.mutator.EXPECT().MutateBalance(gomock.Any(), "alice", gomock.Any()).Return(failed(tt.code, "try again"))
			d.idempCache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			d.idempCache.EXPECT().Release(gomock.Any(), key).Return(nil)

			result, err := d.svc.ProcessTransfer(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, tt.code, result.ErrorCode)
		})
	}
}
