package wallet

import (
	"errors"
	"fmt"

	"github.com/Den-m1985/wallet/internal/interfaces"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Terminal failure classes. These are never retried and always leave state
// unchanged; the request layer maps them to response codes.
var (
	// ErrNotFound is returned when the target account does not exist.
	ErrNotFound = errors.New("wallet: account not found")

	// ErrSameAccount is returned when a transfer names the same account on
	// both sides.
	ErrSameAccount = errors.New("wallet: source and destination are the same account")

	// ErrInvalidAmount is returned for non-positive amounts, amounts with
	// more than two fractional digits, or amounts outside the allowed range.
	ErrInvalidAmount = errors.New("wallet: invalid amount")

	// ErrConflict is returned after lock contention exhausted the retry
	// budget. The caller may retry the whole operation.
	ErrConflict = errors.New("wallet: operation aborted due to concurrent access")
)

// InsufficientFundsError is returned when a withdraw or transfer exceeds the
// source account's balance.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("wallet: insufficient funds in account %s: balance %s, requested %s",
		e.AccountID, e.Balance.StringFixed(2), e.Requested.StringFixed(2))
}

// IsRetryable reports whether the error is a transient storage conflict
// (lock-wait timeout or detected deadlock) worth a fresh attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, interfaces.ErrLockTimeout) || errors.Is(err, interfaces.ErrDeadlock)
}
