// Package ledger is the only writer of account balances, open positions,
// holdings and trade history. Every change is expressed as an AccountPatch and
// committed to the store in one durable write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zentum/internal/model"
	"zentum/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrCommitFailed    = errors.New("commit failed")
	ErrAccountNotFound = errors.New("account not found")
)

// CommitError reports a durable write that failed or timed out. After a
// timeout the outcome is unknown; callers must re-read before retrying.
type CommitError struct {
	AccountID string
	Fields    []string
	Err       error
	timeout   bool
}

func (e *CommitError) Error() string {
	if e.timeout {
		return fmt.Sprintf("commit account %s timed out: %v", e.AccountID, e.Err)
	}
	return fmt.Sprintf("commit account %s: %v", e.AccountID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

func (e *CommitError) Is(target error) bool { return target == ErrCommitFailed }

func (e *CommitError) Timeout() bool { return e.timeout }

type Store interface {
	GetAccount(ctx context.Context, id string) (model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	CommitAccount(ctx context.Context, id string, expected int64, patch model.AccountPatch) (model.Account, error)
}

// MutateFunc computes a patch from the freshest account state. Returning an
// error aborts the update without writing anything.
type MutateFunc func(acc model.Account) (model.AccountPatch, error)

type Options struct {
	CommitTimeout      time.Duration
	MaxConflictRetries int
	Logger             *zap.Logger
}

type Synchronizer struct {
	store   Store
	cache   *Cache
	locks   *keyedMutex
	timeout time.Duration
	retries int
	log     *zap.Logger

	subMu   sync.RWMutex
	subs    map[int]func(model.Account)
	nextSub int
}

func NewSynchronizer(store Store, opts Options) *Synchronizer {
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = 5 * time.Second
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Synchronizer{
		store:   store,
		cache:   NewCache(),
		locks:   newKeyedMutex(),
		timeout: opts.CommitTimeout,
		retries: opts.MaxConflictRetries,
		log:     opts.Logger.Named("ledger"),
		subs:    make(map[int]func(model.Account)),
	}
}

func (s *Synchronizer) Cache() *Cache { return s.cache }

// Subscribe registers fn to receive every committed account. Callbacks run on
// the committing goroutine in commit order and must not block.
func (s *Synchronizer) Subscribe(fn func(model.Account)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Account returns the cached record, reading through to the store on a miss.
func (s *Synchronizer) Account(ctx context.Context, id string) (model.Account, error) {
	if acc, ok := s.cache.Get(id); ok {
		return acc, nil
	}
	return s.Refresh(ctx, id)
}

// Refresh reads the record from the store and replaces the cached copy.
func (s *Synchronizer) Refresh(ctx context.Context, id string) (model.Account, error) {
	acc, err := s.read(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	s.cache.Put(acc)
	return acc, nil
}

func (s *Synchronizer) Accounts(ctx context.Context) ([]model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListAccounts(ctx)
}

// Commit applies patch to the account if it is still at version. It is never
// retried here: a timeout is reported as a CommitError and the cache entry is
// dropped so the next read goes to the store.
func (s *Synchronizer) Commit(ctx context.Context, accountID string, version int64, patch model.AccountPatch) (model.Account, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	acc, err := s.store.CommitAccount(cctx, accountID, version, patch)
	if err != nil {
		s.cache.Invalidate(accountID)
		return model.Account{}, s.commitErr(ctx, accountID, patch, err)
	}
	s.cache.Put(acc)
	s.log.Debug("account committed",
		zap.String("account_id", accountID),
		zap.Int64("version", acc.Version),
		zap.Strings("fields", patch.Fields()),
		zap.Bool("settlement", patch.Settlement != nil),
	)
	s.notify(acc)
	return acc, nil
}

// Update serializes mutations of one account within this process, re-reads
// the record from the store, lets fn compute the patch from that state and
// commits it against the version read. If another process committed in
// between, nothing was written, so the read and fn run again.
func (s *Synchronizer) Update(ctx context.Context, accountID string, fn MutateFunc) (model.Account, error) {
	unlock, err := s.locks.Lock(ctx, accountID)
	if err != nil {
		return model.Account{}, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		acc, err := s.read(ctx, accountID)
		if err != nil {
			return model.Account{}, err
		}
		patch, err := fn(acc.Clone())
		if err != nil {
			return model.Account{}, err
		}
		if patch.Empty() {
			s.cache.Put(acc)
			return acc, nil
		}
		next, err := s.Commit(ctx, accountID, acc.Version, patch)
		if errors.Is(err, storage.ErrVersionConflict) && attempt < s.retries {
			s.log.Info("account version moved, recomputing",
				zap.String("account_id", accountID),
				zap.Int64("read_version", acc.Version),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return next, err
	}
}

func (s *Synchronizer) read(ctx context.Context, id string) (model.Account, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	acc, err := s.store.GetAccount(rctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("read account %s: %w", id, err)
	}
	return acc, nil
}

func (s *Synchronizer) commitErr(parent context.Context, accountID string, patch model.AccountPatch, err error) error {
	switch {
	case errors.Is(err, storage.ErrVersionConflict), errors.Is(err, storage.ErrRequestNotPending):
		return err
	case errors.Is(err, storage.ErrNotFound):
		if patch.Settlement != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	ce := &CommitError{AccountID: accountID, Fields: patch.Fields(), Err: err}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		ce.timeout = true
	}
	s.log.Error("account commit failed",
		zap.String("account_id", accountID),
		zap.Strings("fields", ce.Fields),
		zap.Bool("timeout", ce.timeout),
		zap.Error(err),
	)
	return ce
}

func (s *Synchronizer) notify(acc model.Account) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(acc.Clone())
	}
}
