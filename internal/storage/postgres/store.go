package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Den-m1985/wallet/internal/interfaces"
	"github.com/Den-m1985/wallet/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const defaultLockTimeout = 3 * time.Second

// Store implements interfaces.AccountStore on PostgreSQL. Exclusive account
// locks are row locks taken with SELECT ... FOR UPDATE inside the unit of
// work's transaction; the lock wait is bounded with a per-transaction
// lock_timeout so contention surfaces as an error instead of a hang.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// Open connects to PostgreSQL with sane pool settings and verifies the
// connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return db, nil
}

// NewStore wraps an open connection pool. A non-positive lockTimeout falls
// back to the default.
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{db: db, lockTimeout: lockTimeout}
}

// EnsureSchema creates the tables if they are missing. Bootstrap convenience
// for fresh databases, not a migration mechanism.
func (s *Store) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL,
			balance NUMERIC(19,2) NOT NULL CHECK (balance >= 0),
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			seq BIGSERIAL PRIMARY KEY,
			id UUID NOT NULL UNIQUE,
			account_id UUID NOT NULL REFERENCES accounts(id),
			kind TEXT NOT NULL,
			amount NUMERIC(19,2) NOT NULL CHECK (amount > 0),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_id ON ledger_entries(account_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "failed to ensure schema")
		}
	}
	return nil
}

func (s *Store) Read(ctx context.Context, id uuid.UUID) (models.Account, error) {
	const query = `SELECT id, owner_id, balance, version, created_at, updated_at
	FROM accounts WHERE id = $1`

	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) EntriesByAccount(ctx context.Context, id uuid.UUID) ([]models.LedgerEntry, error) {
	const query = `SELECT id, account_id, kind, amount, created_at
	FROM ledger_entries WHERE account_id = $1 ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query ledger entries")
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Kind, &entry.Amount, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan ledger entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Begin(ctx context.Context) (interfaces.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	// SET LOCAL scopes the lock wait bound to this transaction.
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "failed to set lock timeout")
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) LockAndRead(ctx context.Context, id uuid.UUID) (models.Account, error) {
	const query = `SELECT id, owner_id, balance, version, created_at, updated_at
	FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(u.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Account{}, classify(err)
	}
	return account, nil
}

func (u *unitOfWork) Write(ctx context.Context, account models.Account) error {
	const query = `UPDATE accounts
	SET balance = $2, version = version + 1, updated_at = now()
	WHERE id = $1`

	res, err := u.tx.ExecContext(ctx, query, account.ID, account.Balance)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrAccountNotFound
	}
	return nil
}

func (u *unitOfWork) AppendEntry(ctx context.Context, entry models.LedgerEntry) error {
	const query = `INSERT INTO ledger_entries (id, account_id, kind, amount, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	_, err := u.tx.ExecContext(ctx, query,
		entry.ID, entry.AccountID, string(entry.Kind), entry.Amount, entry.CreatedAt)
	return classify(err)
}

func (u *unitOfWork) Commit() error {
	return classify(u.tx.Commit())
}

func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func scanAccount(row *sql.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.OwnerID, &account.Balance,
		&account.Version, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, errors.Wrap(err, "failed to scan account")
	}
	return account, nil
}

// classify maps PostgreSQL failure codes onto the store's transient error
// classes. Lock waits bounded by lock_timeout raise 55P03; the server's own
// deadlock detector raises 40P01, which can still fire despite canonical
// lock ordering when internal locking differs from row order. Serialization
// failures (40001) are equally transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03":
			return fmt.Errorf("%w: %v", interfaces.ErrLockTimeout, err)
		case "40P01", "40001":
			return fmt.Errorf("%w: %v", interfaces.ErrDeadlock, err)
		}
	}
	return err
}

var _ interfaces.AccountStore = (*Store)(nil)
