package service

import (
	"context"
	"encoding/json"
	"time"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour
	// reservationTTL bounds how long a crashed request can hold its key.
	reservationTTL = time.Minute
)

type sagaFunc func(ctx context.Context) *domain.OperationResult

// runIdempotent replays a cached result for key or runs fn exactly once while
// holding a reservation. Only replayable results are stored. Cache faults
// never block the operation.
func runIdempotent(
	ctx context.Context,
	cache ports.IdempotencyCache,
	log zerolog.Logger,
	key string,
	fn sagaFunc,
) (*domain.OperationResult, error) {
	if cache == nil || key == "" {
		return fn(ctx), nil
	}

	if result, ok := replay(ctx, cache, log, key); ok {
		return result, nil
	}

	reserved, err := cache.Reserve(ctx, key, reservationTTL)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("idempotency reservation failed, continuing without lock")
	case !reserved:
		return nil, apperror.ErrRequestInProgress()
	default:
		defer func() {
			if err := cache.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency reservation")
			}
		}()
		// A duplicate may have stored its result and released the key
		// between the lookup above and the reservation.
		if result, ok := replay(ctx, cache, log, key); ok {
			return result, nil
		}
	}

	result := fn(ctx)
	if !result.Replayable() {
		return result, nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to encode result for idempotency cache")
		return result, nil
	}
	if err := cache.Set(context.WithoutCancel(ctx), key, body, idempotencyTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
	return result, nil
}

func replay(ctx context.Context, cache ports.IdempotencyCache, log zerolog.Logger, key string) (*domain.OperationResult, bool) {
	cached, err := cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, continuing without cache")
		return nil, false
	}
	if cached == nil {
		return nil, false
	}
	var result domain.OperationResult
	if err := json.Unmarshal(cached, &result); err != nil {
		log.Warn().Str("key", key).Msg("discarding undecodable idempotency entry")
		return nil, false
	}
	log.Info().Str("key", key).Msg("idempotent replay")
	return &result, true
}
