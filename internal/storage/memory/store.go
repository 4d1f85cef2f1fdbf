package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Den-m1985/wallet/internal/interfaces"
	"github.com/Den-m1985/wallet/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 3 * time.Second

// accountState pairs an account with its exclusive lock. The lock is a
// one-slot channel so acquisition can be bounded by a timeout.
type accountState struct {
	lock    chan struct{}
	account models.Account
}

// Store is an in-memory implementation of interfaces.AccountStore. It is the
// development and test double for the postgres store: per-account exclusive
// locks with a wait timeout, and unit-of-work semantics where writes and
// entries are staged and only become visible on Commit.
type Store struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]*accountState
	entries     []models.LedgerEntry
	lockTimeout time.Duration
}

// NewStore creates an empty store. A non-positive lockTimeout falls back to
// the default.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Store{
		accounts:    make(map[uuid.UUID]*accountState),
		lockTimeout: lockTimeout,
	}
}

// CreateAccount registers an account with an opening balance. Bootstrap
// helper for development and tests; onboarding proper lives outside this
// service.
func (s *Store) CreateAccount(ownerID uuid.UUID, balance decimal.Decimal) models.Account {
	now := time.Now().UTC()
	account := models.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = &accountState{
		lock:    make(chan struct{}, 1),
		account: account,
	}
	return account
}

func (s *Store) Read(_ context.Context, id uuid.UUID) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.accounts[id]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return state.account, nil
}

func (s *Store) EntriesByAccount(_ context.Context, id uuid.UUID) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == id {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *Store) Begin(_ context.Context) (interfaces.UnitOfWork, error) {
	return &unitOfWork{
		store:  s,
		locked: make(map[uuid.UUID]*accountState),
		writes: make(map[uuid.UUID]models.Account),
	}, nil
}

func (s *Store) state(id uuid.UUID) (*accountState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.accounts[id]
	return state, ok
}

// unitOfWork stages writes and appended entries; nothing is visible to
// readers until Commit. Locks acquired through it are held until Commit or
// Rollback.
type unitOfWork struct {
	store  *Store
	locked map[uuid.UUID]*accountState
	writes map[uuid.UUID]models.Account
	staged []models.LedgerEntry
	closed bool
}

func (u *unitOfWork) LockAndRead(ctx context.Context, id uuid.UUID) (models.Account, error) {
	state, ok := u.store.state(id)
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}

	if _, held := u.locked[id]; !held {
		select {
		case state.lock <- struct{}{}:
			u.locked[id] = state
		case <-ctx.Done():
			return models.Account{}, ctx.Err()
		case <-time.After(u.store.lockTimeout):
			return models.Account{}, interfaces.ErrLockTimeout
		}
	}

	if staged, ok := u.writes[id]; ok {
		return staged, nil
	}
	return state.account, nil
}

func (u *unitOfWork) Write(_ context.Context, account models.Account) error {
	if _, held := u.locked[account.ID]; !held {
		return fmt.Errorf("memory: write to account %s without holding its lock", account.ID)
	}
	account.Version++
	account.UpdatedAt = time.Now().UTC()
	u.writes[account.ID] = account
	return nil
}

func (u *unitOfWork) AppendEntry(_ context.Context, entry models.LedgerEntry) error {
	if u.closed {
		return fmt.Errorf("memory: unit of work already closed")
	}
	u.staged = append(u.staged, entry)
	return nil
}

func (u *unitOfWork) Commit() error {
	if u.closed {
		return nil
	}

	u.store.mu.Lock()
	for id, account := range u.writes {
		u.locked[id].account = account
	}
	u.store.entries = append(u.store.entries, u.staged...)
	u.store.mu.Unlock()

	u.release()
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.closed {
		return nil
	}
	u.release()
	return nil
}

func (u *unitOfWork) release() {
	for _, state := range u.locked {
		<-state.lock
	}
	u.locked = make(map[uuid.UUID]*accountState)
	u.writes = make(map[uuid.UUID]models.Account)
	u.staged = nil
	u.closed = true
}

var _ interfaces.AccountStore = (*Store)(nil)
