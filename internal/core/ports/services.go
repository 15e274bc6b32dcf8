package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"moneyflow/internal/core/domain"

	"github.com/shopspring/decimal"
)

// BalanceMutator applies a signed delta to an account balance atomically.
// Every outcome, including transport faults, is reported in the result.
type BalanceMutator interface {
	MutateBalance(ctx context.Context, accountKey string, signedDelta decimal.Decimal) domain.MutationResult
}

// NotificationSink receives outbox payloads. Any returned error is a
// delivery failure.
type NotificationSink interface {
	Deliver(ctx context.Context, event domain.NotificationEvent) error
	Name() string
}

// SignatureService signs notification bodies with a timestamp so receivers
// can authenticate them and reject replays.
type SignatureService interface {
	// Sign returns the signature header value for body sent at ts.
	Sign(secretKey string, ts time.Time, body []byte) string
	// Verify returns nil when header matches body and its timestamp is
	// within tolerance of now.
	Verify(secretKey, header string, body []byte, now time.Time) error
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(username string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Username string
}

// IdempotencyCache stores saga results keyed by a client idempotency key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Reserve marks key as in flight. Returns false if another request holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// TransferService moves money between two accounts.
type TransferService interface {
	ProcessTransfer(ctx context.Context, req TransferRequest) (*domain.OperationResult, error)
}

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	SenderKey      string
	RecipientKey   string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// CashService deposits to or withdraws from a single account.
type CashService interface {
	ProcessCashOperation(ctx context.Context, req CashRequest) (*domain.OperationResult, error)
}

// CashRequest holds validated input for a cash operation.
type CashRequest struct {
	SubjectKey     string
	Amount         decimal.Decimal
	Operation      domain.OperationKind
	IdempotencyKey string
}

// BalanceService owns account balances on the balance side.
type BalanceService interface {
	BalanceMutator
	OpenAccount(ctx context.Context, key, currency string, initial decimal.Decimal) (*domain.Account, error)
	GetAccount(ctx context.Context, key string) (*domain.Account, error)
}

// OutboxMonitor exposes outbox counters for operators.
type OutboxMonitor interface {
	Stats(ctx context.Context) (*domain.OutboxStats, error)
}
