package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationKind tags a ledger entry as money entering or leaving an account.
type OperationKind string

const (
	Deposit  OperationKind = "DEPOSIT"
	Withdraw OperationKind = "WITHDRAW"
)

// Valid reports whether the kind is one of the two known operation kinds.
func (k OperationKind) Valid() bool {
	return k == Deposit || k == Withdraw
}

// LedgerEntry is an immutable record of a single balance-changing event.
// Amount is always positive; the direction is carried by Kind.
type LedgerEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Kind      OperationKind
	Amount    decimal.Decimal
	CreatedAt time.Time
}
