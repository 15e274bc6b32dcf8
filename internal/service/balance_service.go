package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultCASAttempts = 3

// BalanceServiceImpl implements ports.BalanceService with optimistic
// concurrency: read, compute, then compare-and-swap on the version.
type BalanceServiceImpl struct {
	accountRepo ports.AccountRepository
	casAttempts int
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewBalanceService creates a new BalanceServiceImpl. casAttempts <= 0 falls
// back to 3.
func NewBalanceService(
	accountRepo ports.AccountRepository,
	casAttempts int,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BalanceServiceImpl {
	if casAttempts <= 0 {
		casAttempts = defaultCASAttempts
	}
	return &BalanceServiceImpl{
		accountRepo: accountRepo,
		casAttempts: casAttempts,
		metrics:     m,
		log:         log,
	}
}

// MutateBalance applies signedDelta to the account identified by accountKey.
// A negative resulting balance is rejected without writing. A stale version
// is retried up to casAttempts times and then reported as CONFLICT.
func (s *BalanceServiceImpl) MutateBalance(ctx context.Context, accountKey string, signedDelta decimal.Decimal) domain.MutationResult {
	result := s.mutate(ctx, accountKey, signedDelta)
	if result.Success {
		s.metrics.BalanceMutation("ok")
	} else {
		s.metrics.BalanceMutation(string(result.ErrorCode))
	}
	return result
}

func (s *BalanceServiceImpl) mutate(ctx context.Context, accountKey string, signedDelta decimal.Decimal) domain.MutationResult {
	if strings.TrimSpace(accountKey) == "" {
		return domain.MutationFailed(domain.ErrCodeAccountNotFound, domain.ErrEmptyAccountKey.Error())
	}

	for attempt := 1; attempt <= s.casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.MutationFailed(domain.ErrCodeServiceError, err.Error())
		}

		account, err := s.accountRepo.GetByKey(ctx, accountKey)
		if err != nil {
			s.log.Error().Err(err).Str("account_key", accountKey).Msg("load account failed")
			return domain.MutationFailed(domain.ErrCodeServiceError, "failed to load account")
		}
		if account == nil {
			return domain.MutationFailed(domain.ErrCodeAccountNotFound, fmt.Sprintf("account %s not found", accountKey))
		}

		next, err := account.ApplyDelta(signedDelta)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.MutationFailed(domain.ErrCodeInsufficientFunds,
				fmt.Sprintf("balance %s cannot cover %s", account.Balance.StringFixed(2), signedDelta.StringFixed(2)))
		}

		swapped, err := s.accountRepo.CompareAndSwapBalance(ctx, account.ID, account.Version, next)
		if err != nil {
			s.log.Error().Err(err).Str("account_key", accountKey).Msg("write balance failed")
			return domain.MutationFailed(domain.ErrCodeServiceError, "failed to write balance")
		}
		if swapped {
			s.log.Info().
				Str("account_key", accountKey).
				Str("delta", signedDelta.String()).
				Int64("version", account.Version+1).
				Msg("balance mutated")
			return domain.MutationOK()
		}

		s.metrics.CASRetry()
		s.log.Debug().
			Str("account_key", accountKey).
			Int64("expected_version", account.Version).
			Int("attempt", attempt).
			Msg("balance version changed, retrying")
	}

	s.log.Warn().Str("account_key", accountKey).Int("attempts", s.casAttempts).Msg("balance update conflict")
	return domain.MutationFailed(domain.ErrCodeConflict,
		fmt.Sprintf("account %s was modified concurrently, retry later", accountKey))
}

// OpenAccount creates an account with an initial non-negative balance.
func (s *BalanceServiceImpl) OpenAccount(ctx context.Context, key, currency string, initial decimal.Decimal) (*domain.Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperror.Validation(domain.ErrEmptyAccountKey.Error())
	}
	if initial.IsNegative() {
		return nil, apperror.Validation("initial balance must not be negative")
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:        uuid.New(),
		Key:       key,
		Balance:   initial,
		Version:   0,
		Currency:  strings.ToUpper(currency),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return nil, apperror.ErrAccountExists()
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().Str("account_key", key).Str("currency", account.Currency).Msg("account opened")
	return account, nil
}

// GetAccount returns the account identified by key.
func (s *BalanceServiceImpl) GetAccount(ctx context.Context, key string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByKey(ctx, key)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	return account, nil
}
