package service

import (
	"context"
	"errors"
	"fmt"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/metrics"

	"github.com/rs/zerolog"
)

const transferSagaName = "transfer"

// TransferServiceImpl implements ports.TransferService as a two-leg saga
// against the Balance Mutator with compensating calls on failure.
type TransferServiceImpl struct {
	mutator    ports.BalanceMutator
	ledgerRepo ports.LedgerRepository
	outboxRepo ports.OutboxRepository
	transactor ports.DBTransactor
	idempCache ports.IdempotencyCache
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl. idempCache may be nil.
func NewTransferService(
	mutator ports.BalanceMutator,
	ledgerRepo ports.LedgerRepository,
	outboxRepo ports.OutboxRepository,
	transactor ports.DBTransactor,
	idempCache ports.IdempotencyCache,
	m *metrics.Metrics,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		mutator:    mutator,
		ledgerRepo: ledgerRepo,
		outboxRepo: outboxRepo,
		transactor: transactor,
		idempCache: idempCache,
		metrics:    m,
		log:        log,
	}
}

// ProcessTransfer moves req.Amount from the sender to the recipient.
// Invalid input is returned as an *apperror.AppError; every saga outcome,
// including business rejections, is returned as an OperationResult.
func (s *TransferServiceImpl) ProcessTransfer(ctx context.Context, req ports.TransferRequest) (*domain.OperationResult, error) {
	saga, err := domain.NewTransferSaga(req.SenderKey, req.RecipientKey, req.Amount)
	if err != nil {
		return nil, transferValidationError(err)
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.SenderKey, domain.EventTypeTransfer, req.IdempotencyKey)
	}

	return runIdempotent(ctx, s.idempCache, s.log, idempKey, func(ctx context.Context) *domain.OperationResult {
		result := s.run(ctx, saga)
		result.State = saga.State
		return result
	})
}

func transferValidationError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNonPositiveAmount):
		return apperror.ErrInvalidAmount()
	case errors.Is(err, domain.ErrSameParty):
		return apperror.ErrSameAccount()
	default:
		return apperror.Validation(err.Error())
	}
}

func (s *TransferServiceImpl) run(ctx context.Context, saga *domain.TransferSaga) *domain.OperationResult {
	// Once a leg is dispatched the saga must reach a terminal state, so
	// caller cancellation stops at this point. Each remote call is still
	// bounded by the balance client's transport timeout.
	ctx = context.WithoutCancel(ctx)

	log := s.log.With().
		Str("saga_id", saga.ID.String()).
		Str("sender", saga.Sender).
		Str("recipient", saga.Recipient).
		Str("amount", saga.Amount.String()).
		Logger()

	// Step 1: withdraw from sender. Nothing to undo on failure.
	withdraw := s.mutator.MutateBalance(ctx, saga.Sender, saga.Amount.Neg())
	if !withdraw.Success {
		s.advance(log, saga, domain.TransferWithdrawFailed)
		s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeRejected)
		log.Info().Str("error_code", string(withdraw.ErrorCode)).Msg("transfer withdraw rejected")
		return domain.Failed(withdraw.ErrorCode, "withdraw failed: "+withdraw.Message)
	}
	s.advance(log, saga, domain.TransferWithdrawn)

	// Step 2: deposit to recipient. Refund the sender on failure.
	deposit := s.mutator.MutateBalance(ctx, saga.Recipient, saga.Amount)
	if !deposit.Success {
		s.advance(log, saga, domain.TransferDepositFailed)
		log.Warn().Str("error_code", string(deposit.ErrorCode)).Msg("transfer deposit failed, compensating sender")
		return s.compensateDeposit(ctx, log, saga, deposit)
	}
	s.advance(log, saga, domain.TransferDeposited)

	// Step 3: ledger entry and SUCCESS event in one local transaction.
	entry, err := s.commit(ctx, saga)
	if err != nil {
		log.Error().Err(err).Msg("transfer local persistence failed, compensating both legs")
		return s.compensateBoth(ctx, log, saga)
	}

	s.advance(log, saga, domain.TransferCommitted)
	s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeSuccess)
	log.Info().Str("ledger_entry_id", entry.ID.String()).Msg("transfer committed")
	return domain.Succeeded(
		fmt.Sprintf("transferred %s to %s", saga.Amount.StringFixed(2), saga.Recipient),
		entry.ID.String(),
	)
}

func (s *TransferServiceImpl) commit(ctx context.Context, saga *domain.TransferSaga) (*domain.LedgerEntry, error) {
	entry, err := domain.NewLedgerEntry(saga.Sender, saga.Recipient, saga.Amount)
	if err != nil {
		return nil, err
	}
	event, err := domain.NewOutboxRecord(domain.EventTypeTransfer, saga.Sender, domain.EventStatusSuccess,
		fmt.Sprintf("transferred %s to %s", saga.Amount.StringFixed(2), saga.Recipient))
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledgerRepo.Create(ctx, dbTx, entry); err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}
	if err := s.outboxRepo.Create(ctx, dbTx, event); err != nil {
		return nil, fmt.Errorf("create outbox event: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return entry, nil
}

// compensateDeposit refunds the sender after a failed deposit leg.
func (s *TransferServiceImpl) compensateDeposit(
	ctx context.Context,
	log zerolog.Logger,
	saga *domain.TransferSaga,
	deposit domain.MutationResult,
) *domain.OperationResult {
	s.advance(log, saga, domain.TransferCompensating)

	refund := s.mutator.MutateBalance(ctx, saga.Sender, saga.Amount)
	if !refund.Success {
		s.advance(log, saga, domain.TransferCompensationFailed)
		s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeCompensationFailed)
		s.reportCompensationFailure(log, refund, "sender")
		msg := fmt.Sprintf("deposit failed and %s could not be restored to %s: %s",
			saga.Amount.StringFixed(2), saga.Sender, deposit.Message)
		s.saveEvent(ctx, log, saga.Sender, domain.EventStatusCompensationFailure, msg)
		return domain.Unreconciled(deposit.ErrorCode, msg)
	}

	s.advance(log, saga, domain.TransferCompensated)
	s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeCompensated)
	log.Info().Msg("transfer compensated")
	msg := "deposit failed, funds returned: " + deposit.Message
	s.saveEvent(ctx, log, saga.Sender, domain.EventStatusFailure, msg)
	return domain.Failed(deposit.ErrorCode, msg)
}

// compensateBoth reverses both legs in reverse order after the local commit
// failed. The sender refund is attempted even if the recipient reversal fails.
func (s *TransferServiceImpl) compensateBoth(ctx context.Context, log zerolog.Logger, saga *domain.TransferSaga) *domain.OperationResult {
	s.advance(log, saga, domain.TransferCompensating)

	reverse := s.mutator.MutateBalance(ctx, saga.Recipient, saga.Amount.Neg())
	if !reverse.Success {
		s.reportCompensationFailure(log, reverse, "recipient")
	}
	refund := s.mutator.MutateBalance(ctx, saga.Sender, saga.Amount)
	if !refund.Success {
		s.reportCompensationFailure(log, refund, "sender")
	}

	if !reverse.Success || !refund.Success {
		s.advance(log, saga, domain.TransferCompensationFailed)
		s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeCompensationFailed)
		msg := fmt.Sprintf("transfer could not be recorded and %s could not be restored between %s and %s",
			saga.Amount.StringFixed(2), saga.Sender, saga.Recipient)
		s.saveEvent(ctx, log, saga.Sender, domain.EventStatusCompensationFailure, msg)
		return domain.Unreconciled(domain.ErrCodeLocalPersistenceError, msg)
	}

	s.advance(log, saga, domain.TransferCompensated)
	s.metrics.SagaOutcome(transferSagaName, metrics.OutcomeCompensated)
	msg := "transfer could not be recorded, funds returned"
	s.saveEvent(ctx, log, saga.Sender, domain.EventStatusFailure, msg)
	return domain.Failed(domain.ErrCodeLocalPersistenceError, msg)
}

func (s *TransferServiceImpl) reportCompensationFailure(log zerolog.Logger, res domain.MutationResult, leg string) {
	s.metrics.CompensationFailed(transferSagaName)
	log.Error().
		Bool("reconciliation_required", true).
		Str("leg", leg).
		Str("error_code", string(res.ErrorCode)).
		Str("reason", res.Message).
		Msg("transfer compensation failed")
}

// saveEvent writes a standalone outbox event. A failed write is logged; the
// caller's result does not change.
func (s *TransferServiceImpl) saveEvent(ctx context.Context, log zerolog.Logger, username string, status domain.EventStatus, msg string) {
	saveOutboxEvent(ctx, s.outboxRepo, log, domain.EventTypeTransfer, username, status, msg)
}

func (s *TransferServiceImpl) advance(log zerolog.Logger, saga *domain.TransferSaga, next domain.TransferState) {
	if err := saga.Advance(next); err != nil {
		log.Error().Err(err).Msg("saga state machine violation")
	}
}

func saveOutboxEvent(
	ctx context.Context,
	repo ports.OutboxRepository,
	log zerolog.Logger,
	eventType domain.EventType,
	username string,
	status domain.EventStatus,
	msg string,
) {
	event, err := domain.NewOutboxRecord(eventType, username, status, msg)
	if err == nil {
		err = repo.Save(ctx, event)
	}
	if err != nil {
		log.Error().Err(err).
			Bool("reconciliation_required", status == domain.EventStatusCompensationFailure).
			Str("event_status", string(status)).
			Msg("failed to write outbox event")
	}
}
