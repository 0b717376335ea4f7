package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zentum/internal/model"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookStore wraps the memory driver so tests can fail or stall commits.
type hookStore struct {
	*storage.Memory
	commits  atomic.Int32
	onCommit func(ctx context.Context, call int32) error
}

func (h *hookStore) CommitAccount(ctx context.Context, id string, expected int64, patch model.AccountPatch) (model.Account, error) {
	call := h.commits.Add(1)
	if h.onCommit != nil {
		if err := h.onCommit(ctx, call); err != nil {
			return model.Account{}, err
		}
	}
	return h.Memory.CommitAccount(ctx, id, expected, patch)
}

func newStore(t *testing.T, balance int64) *hookStore {
	t.Helper()
	m := storage.NewMemory()
	require.NoError(t, m.CreateAccount(context.Background(), model.Account{
		ID:           "acc",
		Email:        "acc@example.com",
		Role:         types.RoleUser,
		ForexBalance: decimal.NewFromInt(balance),
	}))
	return &hookStore{Memory: m}
}

func addForex(delta int64) MutateFunc {
	return func(acc model.Account) (model.AccountPatch, error) {
		return model.AccountPatch{}.WithForexBalance(acc.ForexBalance.Add(decimal.NewFromInt(delta))), nil
	}
}

func TestCommitUpdatesCacheAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	s := NewSynchronizer(store, Options{})

	var seen []int64
	cancel := s.Subscribe(func(acc model.Account) { seen = append(seen, acc.Version) })
	defer cancel()

	acc, err := s.Account(ctx, "acc")
	require.NoError(t, err)

	next, err := s.Commit(ctx, "acc", acc.Version, model.AccountPatch{}.WithForexBalance(decimal.NewFromInt(1010)))
	require.NoError(t, err)

	cached, ok := s.Cache().Get("acc")
	require.True(t, ok)
	assert.Equal(t, next.Version, cached.Version)
	assert.True(t, decimal.NewFromInt(1010).Equal(cached.ForexBalance))
	assert.Equal(t, []int64{next.Version}, seen)
}

func TestFailedCommitDoesNotTouchCache(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	boom := errors.New("connection reset")
	store.onCommit = func(context.Context, int32) error { return boom }
	s := NewSynchronizer(store, Options{})

	notified := false
	s.Subscribe(func(model.Account) { notified = true })

	acc, err := s.Account(ctx, "acc")
	require.NoError(t, err)
	_, err = s.Commit(ctx, "acc", acc.Version, model.AccountPatch{}.WithForexBalance(decimal.NewFromInt(5)))

	require.ErrorIs(t, err, ErrCommitFailed)
	require.ErrorIs(t, err, boom)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Timeout())
	assert.Equal(t, []string{"forex_balance"}, ce.Fields)

	_, cached := s.Cache().Get("acc")
	assert.False(t, cached, "failed commit must drop the cached copy")
	assert.False(t, notified)

	fresh, err := s.Account(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(fresh.ForexBalance))
}

func TestCommitTimeoutIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	store.onCommit = func(ctx context.Context, _ int32) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := NewSynchronizer(store, Options{CommitTimeout: 20 * time.Millisecond, MaxConflictRetries: 3})

	_, err := s.Update(ctx, "acc", addForex(10))
	require.ErrorIs(t, err, ErrCommitFailed)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout())
	assert.EqualValues(t, 1, store.commits.Load())
}

func TestUpdateRecomputesAfterConflict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	store.onCommit = func(ctx context.Context, call int32) error {
		if call == 1 {
			// Another process lands a deposit between our read and commit.
			acc, err := store.Memory.GetAccount(ctx, "acc")
			if err != nil {
				return err
			}
			_, err = store.Memory.CommitAccount(ctx, "acc", acc.Version, model.AccountPatch{}.WithForexBalance(acc.ForexBalance.Add(decimal.NewFromInt(500))))
			if err != nil {
				return err
			}
		}
		return nil
	}
	s := NewSynchronizer(store, Options{MaxConflictRetries: 2})

	var calls int
	acc, err := s.Update(ctx, "acc", func(acc model.Account) (model.AccountPatch, error) {
		calls++
		return addForex(10)(acc)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, decimal.NewFromInt(1510).Equal(acc.ForexBalance), "got %s", acc.ForexBalance)
}

func TestUpdateConflictWithoutRetries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	store.onCommit = func(ctx context.Context, call int32) error {
		if call == 1 {
			return storage.ErrVersionConflict
		}
		return nil
	}
	s := NewSynchronizer(store, Options{MaxConflictRetries: 0})

	_, err := s.Update(ctx, "acc", addForex(10))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.NotErrorIs(t, err, ErrCommitFailed)
}

func TestUpdateAbortsOnMutateError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1000)
	s := NewSynchronizer(store, Options{})
	sentinel := errors.New("rejected")

	_, err := s.Update(ctx, "acc", func(model.Account) (model.AccountPatch, error) {
		return model.AccountPatch{}, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.EqualValues(t, 0, store.commits.Load())
}

func TestUpdateUnknownAccount(t *testing.T) {
	s := NewSynchronizer(storage.NewMemory(), Options{})
	_, err := s.Update(context.Background(), "nope", addForex(1))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 0)
	s := NewSynchronizer(store, Options{})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "acc", addForex(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := s.Refresh(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(workers).Equal(acc.ForexBalance), "got %s", acc.ForexBalance)
	assert.EqualValues(t, workers, acc.Version)
}

func TestCacheNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	c := NewCache()
	assert.True(t, c.Put(model.Account{ID: "a", Version: 3}))
	assert.False(t, c.Put(model.Account{ID: "a", Version: 2}))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.EqualValues(t, 3, got.Version)

	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestLockHonorsContext(t *testing.T) {
	t.Parallel()
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
	assert.Empty(t, k.entries)
}
