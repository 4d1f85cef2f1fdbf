package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Den-m1985/wallet/internal/interfaces"
	"github.com/Den-m1985/wallet/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadUnknownAccount(t *testing.T) {
	store := NewStore(0)

	_, err := store.Read(context.Background(), uuid.New())
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)
}

func TestStore_CommitMakesWritesVisible(t *testing.T) {
	store := NewStore(0)
	account := store.CreateAccount(uuid.New(), decimal.NewFromInt(100))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)

	locked, err := uow.LockAndRead(context.Background(), account.ID)
	require.NoError(t, err)

	locked.Balance = decimal.NewFromInt(150)
	require.NoError(t, uow.Write(context.Background(), locked))
	require.NoError(t, uow.AppendEntry(context.Background(), models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: account.ID,
		Kind:      models.Deposit,
		Amount:    decimal.NewFromInt(50),
		CreatedAt: time.Now().UTC(),
	}))

	// Staged state is invisible to readers until commit.
	current, err := store.Read(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, uow.Commit())

	current, err = store.Read(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, int64(1), current.Version)

	entries, err := store.EntriesByAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_RollbackDiscardsEverything(t *testing.T) {
	store := NewStore(0)
	account := store.CreateAccount(uuid.New(), decimal.NewFromInt(100))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)

	locked, err := uow.LockAndRead(context.Background(), account.ID)
	require.NoError(t, err)
	locked.Balance = decimal.NewFromInt(999)
	require.NoError(t, uow.Write(context.Background(), locked))
	require.NoError(t, uow.AppendEntry(context.Background(), models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: account.ID,
		Kind:      models.Deposit,
		Amount:    decimal.NewFromInt(899),
	}))

	require.NoError(t, uow.Rollback())

	current, err := store.Read(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(0), current.Version)

	entries, err := store.EntriesByAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_LockWaitTimeout(t *testing.T) {
	store := NewStore(50 * time.Millisecond)
	account := store.CreateAccount(uuid.New(), decimal.NewFromInt(100))

	holder, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = holder.LockAndRead(context.Background(), account.ID)
	require.NoError(t, err)

	waiter, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = waiter.LockAndRead(context.Background(), account.ID)
	assert.ErrorIs(t, err, interfaces.ErrLockTimeout)

	require.NoError(t, waiter.Rollback())
	require.NoError(t, holder.Rollback())

	// The lock is free again after release.
	next, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = next.LockAndRead(context.Background(), account.ID)
	require.NoError(t, err)
	require.NoError(t, next.Rollback())
}

func TestStore_WriteWithoutLockFails(t *testing.T) {
	store := NewStore(0)
	account := store.CreateAccount(uuid.New(), decimal.NewFromInt(100))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	account.Balance = decimal.NewFromInt(0)
	assert.Error(t, uow.Write(context.Background(), account))
}

func TestStore_LockSerializesWriters(t *testing.T) {
	store := NewStore(5 * time.Second)
	account := store.CreateAccount(uuid.New(), decimal.Zero)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			uow, err := store.Begin(context.Background())
			if !assert.NoError(t, err) {
				return
			}

			locked, err := uow.LockAndRead(context.Background(), account.ID)
			if !assert.NoError(t, err) {
				uow.Rollback()
				return
			}

			locked.Balance = locked.Balance.Add(decimal.NewFromInt(1))
			assert.NoError(t, uow.Write(context.Background(), locked))
			assert.NoError(t, uow.Commit())
		}()
	}
	wg.Wait()

	current, err := store.Read(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, current.Balance.Equal(decimal.NewFromInt(workers)), "got %s", current.Balance)
	assert.Equal(t, int64(workers), current.Version)
}

func TestStore_EntriesByAccountFilters(t *testing.T) {
	store := NewStore(0)
	a := store.CreateAccount(uuid.New(), decimal.NewFromInt(10))
	b := store.CreateAccount(uuid.New(), decimal.NewFromInt(10))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	_, err = uow.LockAndRead(context.Background(), a.ID)
	require.NoError(t, err)
	require.NoError(t, uow.AppendEntry(context.Background(), models.LedgerEntry{
		ID: uuid.New(), AccountID: a.ID, Kind: models.Deposit, Amount: decimal.NewFromInt(1),
	}))
	require.NoError(t, uow.Commit())

	entries, err := store.EntriesByAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = store.EntriesByAccount(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
