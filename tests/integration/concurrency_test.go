package integration

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/service"
	"moneyflow/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentMutations drives the compare-and-swap path from many
// goroutines. Every accepted delta must be reflected exactly once and the
// balance must never go negative.
func TestConcurrentMutations(t *testing.T) {
	accounts := newInMemoryAccountRepo()
	log := logger.New("moneyflow-test", "error", false)
	svc := service.NewBalanceService(accounts, 1000, nil, log)

	ctx := context.Background()
	_, err := svc.OpenAccount(ctx, "alice", "USD", decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	const workers = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = decimal.Zero
		rejected int32
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			// Deltas in [-60.00, +40.00] so withdrawals regularly overdraw.
			delta := decimal.New(rng.Int63n(10_001)-6_000, -2)

			res := svc.MutateBalance(ctx, "alice", delta)
			if res.Success {
				mu.Lock()
				accepted = accepted.Add(delta)
				mu.Unlock()
				return
			}
			assert.Equal(t, domain.ErrCodeInsufficientFunds, res.ErrorCode)
			atomic.AddInt32(&rejected, 1)
		}(int64(i))
	}
	wg.Wait()

	final := accounts.balance("alice")
	assert.True(t, final.Equal(decimal.RequireFromString("100.00").Add(accepted)),
		"final=%s accepted=%s", final, accepted)
	assert.False(t, final.IsNegative())

	acct, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(workers-int(rejected)), acct.Version)
}

// TestConcurrentTransfers_NoOverdraft fires more transfers than the sender
// can cover. Exactly the affordable ones succeed and money is conserved.
func TestConcurrentTransfers_NoOverdraft(t *testing.T) {
	app := newTestApp(t)
	app.openAccount(t, "alice", "500.00")
	app.openAccount(t, "bob", "0")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		succeeded int32
		declined  int32
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, env := app.transfer(t, "bob", "100.00")
			switch status {
			case http.StatusCreated:
				atomic.AddInt32(&succeeded, 1)
			case http.StatusPaymentRequired:
				assert.Equal(t, string(domain.ErrCodeInsufficientFunds), env.Data.ErrorCode)
				atomic.AddInt32(&declined, 1)
			default:
				t.Errorf("unexpected status %d: %+v", status, env.Data)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded)
	assert.Equal(t, int32(5), declined)
	assertBalance(t, app, "alice", "0")
	assertBalance(t, app, "bob", "500.00")
	assert.Equal(t, 5, app.ledger.count())
	assert.Len(t, app.outbox.all(), 5)
}

// TestConcurrentIdempotency sends the same keyed cash request in parallel.
// The deposit is applied once; the rest replay or are told to retry.
func TestConcurrentIdempotency(t *testing.T) {
	app := newTestApp(t)
	app.openAccount(t, "alice", "0")

	const attempts = 8
	var (
		wg      sync.WaitGroup
		created int32
	)
	payload := map[string]string{"operation": "deposit", "amount": "25.00"}

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, env := app.post(t, "/api/v1/cash", payload, "dep-1")
			switch status {
			case http.StatusCreated:
				atomic.AddInt32(&created, 1)
			case http.StatusConflict:
				assert.Equal(t, "IDEM_001", env.ErrorCode)
			default:
				t.Errorf("unexpected status %d", status)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, created, int32(1))
	assertBalance(t, app, "alice", "25.00")
	assert.Equal(t, 1, app.cashOps.count())
	assert.Len(t, app.outbox.all(), 1)
}
