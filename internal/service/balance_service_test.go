package service

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"testing"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports/mocks"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type balanceTestDeps struct {
	svc         *BalanceServiceImpl
	accountRepo *mocks.MockAccountRepository
	ctrl        *gomock.Controller
}

func setupBalanceService(t *testing.T) *balanceTestDeps {
	ctrl := gomock.NewController(t)
	d := &balanceTestDeps{
		accountRepo: mocks.NewMockAccountRepository(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewBalanceService(d.accountRepo, 3, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	return d
}

func account(key, balance string, version int64) *domain.Account {
	return &domain.Account{
		ID:       uuid.New(),
		Key:      key,
		Balance:  decimal.RequireFromString(balance),
		Version:  version,
		Currency: "USD",
	}
}

func TestBalanceService_MutateBalance_Deposit(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()
	acct := account("alice", "10.00", 4)

	d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(acct, nil)
	d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, acct.ID, int64(4), decEq("110.00")).Return(true, nil)

	res := d.svc.MutateBalance(ctx, "alice", decimal.RequireFromString("100.00"))
	assert.True(t, res.Success)
	assert.Empty(t, res.ErrorCode)
}

func TestBalanceService_MutateBalance_InsufficientFunds_NoWrite(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()

	// Balance 10.00, withdraw 20.00: rejected, CompareAndSwapBalance never called.
	d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(account("alice", "10.00", 1), nil)

	res := d.svc.MutateBalance(ctx, "alice", decimal.RequireFromString("-20.00"))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrCodeInsufficientFunds, res.ErrorCode)
	assert.Contains(t, res.Message, "10.00")
}

func TestBalanceService_MutateBalance_NeverWritesNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		d := setupBalanceService(t)
		ctx := context.Background()

		balance := decimal.New(rng.Int63n(100_000), -2)
		delta := decimal.New(rng.Int63n(200_000)-100_000, -2)
		acct := account("bob", balance.String(), 1)

		d.accountRepo.EXPECT().GetByKey(ctx, "bob").Return(acct, nil)
		if !balance.Add(delta).IsNegative() {
			d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, acct.ID, int64(1), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ uuid.UUID, _ int64, next decimal.Decimal) (bool, error) {
					assert.False(t, next.IsNegative())
					return true, nil
				})
		}

		res := d.svc.MutateBalance(ctx, "bob", delta)
		if balance.Add(delta).IsNegative() {
			require.False(t, res.Success)
			require.Equal(t, domain.ErrCodeInsufficientFunds, res.ErrorCode)
		} else {
			require.True(t, res.Success)
		}
	}
}

func TestBalanceService_MutateBalance_AccountNotFound(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByKey(ctx, "ghost").Return(nil, nil)

	res := d.svc.MutateBalance(ctx, "ghost", decimal.NewFromInt(5))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrCodeAccountNotFound, res.ErrorCode)
}

func TestBalanceService_MutateBalance_EmptyKey(t *testing.T) {
	d := setupBalanceService(t)

	res := d.svc.MutateBalance(context.Background(), "  ", decimal.NewFromInt(5))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrCodeAccountNotFound, res.ErrorCode)
}

func TestBalanceService_MutateBalance_RetriesOnStaleVersion(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()
	first := account("alice", "50.00", 1)
	second := account("alice", "70.00", 2)
	second.ID = first.ID

	gomock.InOrder(
		d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(first, nil),
		d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, first.ID, int64(1), decEq("40.00")).Return(false, nil),
		d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(second, nil),
		d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, first.ID, int64(2), decEq("60.00")).Return(true, nil),
	)

	res := d.svc.MutateBalance(ctx, "alice", decimal.RequireFromString("-10.00"))
	assert.True(t, res.Success)
}

func TestBalanceService_MutateBalance_ConflictAfterRetries(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()
	acct := account("alice", "50.00", 1)

	d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(acct, nil).Times(3)
	d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, acct.ID, int64(1), gomock.Any()).Return(false, nil).Times(3)

	res := d.svc.MutateBalance(ctx, "alice", decimal.RequireFromString("-10.00"))
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrCodeConflict, res.ErrorCode, "stale version must not be reported as insufficient funds")
}

func TestBalanceService_MutateBalance_RepositoryFaults(t *testing.T) {
	t.Run("read fails", func(t *testing.T) {
		d := setupBalanceService(t)
		ctx := context.Background()
		d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(nil, errors.New("connection reset"))

		res := d.svc.MutateBalance(ctx, "alice", decimal.NewFromInt(1))
		assert.Equal(t, domain.ErrCodeServiceError, res.ErrorCode)
	})

	t.Run("write fails", func(t *testing.T) {
		d := setupBalanceService(t)
		ctx := context.Background()
		acct := account("alice", "5.00", 1)
		d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(acct, nil)
		d.accountRepo.EXPECT().CompareAndSwapBalance(ctx, acct.ID, int64(1), gomock.Any()).Return(false, errors.New("timeout"))

		res := d.svc.MutateBalance(ctx, "alice", decimal.NewFromInt(1))
		assert.Equal(t, domain.ErrCodeServiceError, res.ErrorCode)
	})
}

func TestBalanceService_MutateBalance_CanceledContext(t *testing.T) {
	d := setupBalanceService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.svc.MutateBalance(ctx, "alice", decimal.NewFromInt(1))
	assert.Equal(t, domain.ErrCodeServiceError, res.ErrorCode)
}

func TestBalanceService_OpenAccount(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, a *domain.Account) error {
		assert.Equal(t, "alice", a.Key)
		assert.Equal(t, "USD", a.Currency)
		assert.Equal(t, int64(0), a.Version)
		return nil
	})

	acct, err := d.svc.OpenAccount(ctx, " alice ", "usd", decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("25")))
}

func TestBalanceService_OpenAccount_Errors(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()

	_, err := d.svc.OpenAccount(ctx, "", "USD", decimal.Zero)
	assert.Error(t, err)

	_, err = d.svc.OpenAccount(ctx, "alice", "USD", decimal.NewFromInt(-1))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	d.accountRepo.EXPECT().Create(ctx, gomock.Any()).Return(domain.ErrAccountExists)
	_, err = d.svc.OpenAccount(ctx, "alice", "USD", decimal.Zero)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ACC_002", appErr.Code)
}

func TestBalanceService_GetAccount(t *testing.T) {
	d := setupBalanceService(t)
	ctx := context.Background()

	d.accountRepo.EXPECT().GetByKey(ctx, "alice").Return(account("alice", "1.00", 1), nil)
	acct, err := d.svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Key)

	d.accountRepo.EXPECT().GetByKey(ctx, "ghost").Return(nil, nil)
	_, err = d.svc.GetAccount(ctx, "ghost")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
}
