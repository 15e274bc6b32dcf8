package service

import (
	"context"
	"fmt"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const cashSagaName = "cash"

// CashServiceImpl implements ports.CashService: a single remote leg followed
// by a local record, compensated if the local write fails.
type CashServiceImpl struct {
	mutator    ports.BalanceMutator
	cashRepo   ports.CashOperationRepository
	outboxRepo ports.OutboxRepository
	transactor ports.DBTransactor
	idempCache ports.IdempotencyCache
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewCashService creates a new CashServiceImpl. idempCache may be nil.
func NewCashService(
	mutator ports.BalanceMutator,
	cashRepo ports.CashOperationRepository,
	outboxRepo ports.OutboxRepository,
	transactor ports.DBTransactor,
	idempCache ports.IdempotencyCache,
	m *metrics.Metrics,
	log zerolog.Logger,
) *CashServiceImpl {
	return &CashServiceImpl{
		mutator:    mutator,
		cashRepo:   cashRepo,
		outboxRepo: outboxRepo,
		transactor: transactor,
		idempCache: idempCache,
		metrics:    m,
		log:        log,
	}
}

// ProcessCashOperation deposits to or withdraws from req.SubjectKey.
func (s *CashServiceImpl) ProcessCashOperation(ctx context.Context, req ports.CashRequest) (*domain.OperationResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.SubjectKey == "" {
		return nil, apperror.Validation(domain.ErrEmptyAccountKey.Error())
	}
	signedDelta, err := req.Operation.SignedDelta(req.Amount)
	if err != nil {
		return nil, apperror.ErrInvalidOperation(string(req.Operation))
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.SubjectKey, domain.EventTypeCash, req.IdempotencyKey)
	}

	return runIdempotent(ctx, s.idempCache, s.log, idempKey, func(ctx context.Context) *domain.OperationResult {
		return s.run(ctx, req.SubjectKey, req.Operation, signedDelta)
	})
}

func (s *CashServiceImpl) run(ctx context.Context, subject string, kind domain.OperationKind, signedDelta decimal.Decimal) *domain.OperationResult {
	// Detached for the same reason as the transfer saga.
	ctx = context.WithoutCancel(ctx)

	log := s.log.With().
		Str("subject", subject).
		Str("operation", string(kind)).
		Str("signed_amount", signedDelta.String()).
		Logger()

	mutation := s.mutator.MutateBalance(ctx, subject, signedDelta)
	if !mutation.Success {
		s.metrics.SagaOutcome(cashSagaName, metrics.OutcomeRejected)
		log.Info().Str("error_code", string(mutation.ErrorCode)).Msg("cash operation rejected")
		return domain.Failed(mutation.ErrorCode, mutation.Message)
	}

	rec := domain.NewCashOperationRecord(subject, signedDelta, kind)
	if err := s.commit(ctx, rec); err != nil {
		log.Error().Err(err).Msg("cash local persistence failed, compensating")
		return s.compensate(ctx, log, subject, signedDelta)
	}

	s.metrics.SagaOutcome(cashSagaName, metrics.OutcomeSuccess)
	log.Info().Str("cash_operation_id", rec.ID.String()).Msg("cash operation committed")
	return domain.Succeeded(cashMessage(kind, signedDelta), rec.ID.String())
}

func (s *CashServiceImpl) commit(ctx context.Context, rec *domain.CashOperationRecord) error {
	event, err := domain.NewOutboxRecord(domain.EventTypeCash, rec.SubjectKey, domain.EventStatusSuccess,
		cashMessage(rec.Kind, rec.SignedAmount))
	if err != nil {
		return err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.cashRepo.Create(ctx, dbTx, rec); err != nil {
		return fmt.Errorf("create cash operation: %w", err)
	}
	if err := s.outboxRepo.Create(ctx, dbTx, event); err != nil {
		return fmt.Errorf("create outbox event: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cash operation: %w", err)
	}
	return nil
}

func (s *CashServiceImpl) compensate(ctx context.Context, log zerolog.Logger, subject string, signedDelta decimal.Decimal) *domain.OperationResult {
	reverse := s.mutator.MutateBalance(ctx, subject, signedDelta.Neg())
	if !reverse.Success {
		s.metrics.SagaOutcome(cashSagaName, metrics.OutcomeCompensationFailed)
		s.metrics.CompensationFailed(cashSagaName)
		log.Error().
			Bool("reconciliation_required", true).
			Str("error_code", string(reverse.ErrorCode)).
			Str("reason", reverse.Message).
			Msg("cash compensation failed")
		msg := fmt.Sprintf("cash operation could not be recorded and %s could not be reversed", signedDelta.StringFixed(2))
		saveOutboxEvent(ctx, s.outboxRepo, log, domain.EventTypeCash, subject, domain.EventStatusCompensationFailure, msg)
		return domain.Unreconciled(domain.ErrCodeLocalPersistenceError, msg)
	}

	s.metrics.SagaOutcome(cashSagaName, metrics.OutcomeCompensated)
	log.Info().Msg("cash operation compensated")
	msg := "cash operation could not be recorded, balance restored"
	saveOutboxEvent(ctx, s.outboxRepo, log, domain.EventTypeCash, subject, domain.EventStatusFailure, msg)
	return domain.Failed(domain.ErrCodeLocalPersistenceError, msg)
}

func cashMessage(kind domain.OperationKind, signedDelta decimal.Decimal) string {
	switch kind {
	case domain.OperationWithdraw:
		return fmt.Sprintf("withdrew %s", signedDelta.Neg().StringFixed(2))
	default:
		return fmt.Sprintf("deposited %s", signedDelta.StringFixed(2))
	}
}
