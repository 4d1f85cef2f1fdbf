package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account holds the current balance of a single wallet.
// The balance is a fixed-point decimal with two fractional digits and must
// never go below zero. Version is bumped by the store on every write; the
// pessimistic path does not consult it, it exists for future lock-free reads.
type Account struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
