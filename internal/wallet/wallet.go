package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Den-m1985/wallet/internal/interfaces"
	"github.com/Den-m1985/wallet/internal/metrics"
	"github.com/Den-m1985/wallet/internal/models"
	"github.com/Den-m1985/wallet/internal/models/events"
	"github.com/Den-m1985/wallet/pkg/retrier"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config bounds the retry policy for mutating operations.
type Config struct {
	MaxAttempts int           // total attempts per operation, first one included
	BaseDelay   time.Duration // delay before the first retry, doubled after each failure
	Multiplier  float64
}

// DefaultConfig matches the service's historical retry parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
	}
}

// Engine orchestrates balance mutations against an AccountStore. It holds no
// shared mutable state of its own; all coordination lives in the store's
// row-scoped exclusive locks, so a single Engine is safe for concurrent use.
type Engine struct {
	store   interfaces.AccountStore
	events  interfaces.EventPublisher
	retrier *retrier.Retrier
	log     *zap.Logger
}

// NewEngine creates an engine on top of the given store. The publisher may be
// nil when no event sink is configured.
func NewEngine(store interfaces.AccountStore, events interfaces.EventPublisher, log *zap.Logger, cfg Config) *Engine {
	if cfg.MaxAttempts < 1 {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:  store,
		events: events,
		retrier: retrier.New(
			retrier.WithMaxRetries(cfg.MaxAttempts-1),
			retrier.WithInitialInterval(cfg.BaseDelay),
			retrier.WithMultiplier(cfg.Multiplier),
			retrier.WithRetryIf(IsRetryable),
		),
		log: log,
	}
}

// ApplyOperation deposits to or withdraws from a single account and returns
// the post-operation balance. Exactly one ledger entry is appended in the
// same unit of work as the balance write.
func (e *Engine) ApplyOperation(ctx context.Context, accountID uuid.UUID, kind models.OperationKind, amount decimal.Decimal) (decimal.Decimal, error) {
	start := time.Now()
	op := strings.ToLower(string(kind))

	balance, err := e.applyOperation(ctx, accountID, kind, amount, op)

	metrics.OperationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return balance, err
}

func (e *Engine) applyOperation(ctx context.Context, accountID uuid.UUID, kind models.OperationKind, amount decimal.Decimal, op string) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown operation kind %q", ErrInvalidAmount, kind)
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}

	// Cheap existence check before any lock attempt.
	if _, err := e.store.Read(ctx, accountID); err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	attempts := 0
	balance, err := retrier.DoWithData(e.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		attempts++
		return e.applyOnce(ctx, accountID, kind, amount)
	})
	if attempts > 1 {
		metrics.RetriesTotal.WithLabelValues(op).Add(float64(attempts - 1))
	}
	if err != nil {
		return decimal.Zero, exhausted(err)
	}

	e.log.Info("operation applied",
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", balance.StringFixed(2)))
	return balance, nil
}

// applyOnce is a single attempt: lock, re-read, validate, write, append, commit.
func (e *Engine) applyOnce(ctx context.Context, accountID uuid.UUID, kind models.OperationKind, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback()
		}
	}()

	account, err := uow.LockAndRead(ctx, accountID)
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}

	switch kind {
	case models.Deposit:
		account.Balance = account.Balance.Add(amount)
	case models.Withdraw:
		if account.Balance.LessThan(amount) {
			return decimal.Zero, &InsufficientFundsError{
				AccountID: accountID,
				Balance:   account.Balance,
				Requested: amount,
			}
		}
		account.Balance = account.Balance.Sub(amount)
	}

	if err = uow.Write(ctx, account); err != nil {
		return decimal.Zero, err
	}
	if err = uow.AppendEntry(ctx, newEntry(accountID, kind, amount)); err != nil {
		return decimal.Zero, err
	}
	if err = uow.Commit(); err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Transfer moves amount from one account to another. Locks are taken in
// canonical order (smaller account ID first, regardless of direction), which
// rules out circular waits between opposing transfers by construction. The
// two balance writes and two ledger entries commit as one unit of work.
func (e *Engine) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error {
	start := time.Now()
	err := e.transfer(ctx, fromID, toID, amount)

	metrics.OperationsTotal.WithLabelValues("transfer", statusLabel(err)).Inc()
	metrics.OperationDuration.WithLabelValues("transfer").Observe(time.Since(start).Seconds())
	return err
}

func (e *Engine) transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error {
	if fromID == toID {
		return fmt.Errorf("%w: %s", ErrSameAccount, fromID)
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	attempts := 0
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		return e.transferOnce(ctx, fromID, toID, amount)
	})
	if attempts > 1 {
		metrics.RetriesTotal.WithLabelValues("transfer").Add(float64(attempts - 1))
	}
	if err != nil {
		return exhausted(err)
	}

	e.publishTransfer(ctx, fromID, toID, amount)
	return nil
}

// transferOnce is a single attempt of the whole transfer. Any failure rolls
// the unit of work back, leaving both balances and the entry history untouched.
func (e *Engine) transferOnce(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) (err error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = uow.Rollback()
		}
	}()

	firstID, secondID := orderPair(fromID, toID)

	first, err := uow.LockAndRead(ctx, firstID)
	if err != nil {
		return mapStoreErr(err)
	}
	second, err := uow.LockAndRead(ctx, secondID)
	if err != nil {
		return mapStoreErr(err)
	}

	source, dest := &first, &second
	if second.ID == fromID {
		source, dest = &second, &first
	}

	if source.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			AccountID: source.ID,
			Balance:   source.Balance,
			Requested: amount,
		}
	}

	source.Balance = source.Balance.Sub(amount)
	dest.Balance = dest.Balance.Add(amount)

	if err = uow.Write(ctx, *source); err != nil {
		return err
	}
	if err = uow.Write(ctx, *dest); err != nil {
		return err
	}
	if err = uow.AppendEntry(ctx, newEntry(source.ID, models.Withdraw, amount)); err != nil {
		return err
	}
	if err = uow.AppendEntry(ctx, newEntry(dest.ID, models.Deposit, amount)); err != nil {
		return err
	}
	return uow.Commit()
}

// GetBalance returns the account's current balance without locking.
func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := e.store.Read(ctx, accountID)
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}
	return account.Balance, nil
}

// Entries returns the account's ledger history in insertion order.
func (e *Engine) Entries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	if _, err := e.store.Read(ctx, accountID); err != nil {
		return nil, mapStoreErr(err)
	}
	entries, err := e.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return entries, nil
}

func (e *Engine) publishTransfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) {
	transferID := uuid.New()
	e.log.Info("transfer committed",
		zap.String("transfer_id", transferID.String()),
		zap.String("from_account", fromID.String()),
		zap.String("to_account", toID.String()),
		zap.String("amount", amount.StringFixed(2)))

	if e.events == nil {
		return
	}
	event := events.TransferCompleted{
		TransferID:  transferID.String(),
		FromAccount: fromID.String(),
		ToAccount:   toID.String(),
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
	}
	// Best effort: the transfer already committed, a broker outage must not
	// fail the call.
	if err := e.events.Publish(ctx, event); err != nil {
		e.log.Warn("failed to publish transfer event",
			zap.String("transfer_id", event.TransferID), zap.Error(err))
	}
}

func newEntry(accountID uuid.UUID, kind models.OperationKind, amount decimal.Decimal) models.LedgerEntry {
	return models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
}

// orderPair returns the two account IDs in canonical lock order, independent
// of transfer direction.
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) < 0 {
		return a, b
	}
	return b, a
}

func mapStoreErr(err error) error {
	if errors.Is(err, interfaces.ErrAccountNotFound) {
		return ErrNotFound
	}
	return err
}

// exhausted converts a transient conflict that survived the retry budget into
// the caller-facing Conflict error.
func exhausted(err error) error {
	if IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSameAccount):
		return "same_account"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		var insufficient *InsufficientFundsError
		if errors.As(err, &insufficient) {
			return "insufficient_funds"
		}
		return "error"
	}
}
