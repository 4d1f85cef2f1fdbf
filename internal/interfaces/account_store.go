package interfaces

import (
	"context"
	"errors"

	"github.com/Den-m1985/wallet/internal/models"
	"github.com/google/uuid"
)

// Storage-level failure classes. The engine treats ErrLockTimeout and
// ErrDeadlock as transient and retries the whole operation; everything else
// is surfaced as-is.
var (
	ErrAccountNotFound = errors.New("store: account not found")
	ErrLockTimeout     = errors.New("store: lock wait timeout")
	ErrDeadlock        = errors.New("store: deadlock detected")
)

// AccountStore is the durable home of accounts and their ledger history.
type AccountStore interface {
	// Begin opens a unit of work. Every lock acquired through it is held
	// until Commit or Rollback.
	Begin(ctx context.Context) (UnitOfWork, error)

	// Read returns the account without taking its lock. The returned
	// balance may be mid-flight relative to concurrent writers.
	Read(ctx context.Context, id uuid.UUID) (models.Account, error)

	// EntriesByAccount returns the account's ledger history in insertion
	// order, without locking.
	EntriesByAccount(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error)
}

// UnitOfWork is a span of writes that commits or rolls back atomically.
// Implementations must guarantee that a Rollback (or a crash before Commit)
// leaves every touched account and the entry history untouched.
type UnitOfWork interface {
	// LockAndRead blocks until the account's exclusive lock is granted or
	// the lock-wait timeout expires (ErrLockTimeout). The lock is scoped
	// to this unit of work.
	LockAndRead(ctx context.Context, id uuid.UUID) (models.Account, error)

	// Write persists a balance change. Valid only while this unit of work
	// holds the account's lock.
	Write(ctx context.Context, account models.Account) error

	// AppendEntry stages an immutable ledger entry.
	AppendEntry(ctx context.Context, entry models.LedgerEntry) error

	Commit() error
	Rollback() error
}
