package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"zentum/internal/model"
	"zentum/internal/types"
)

type Memory struct {
	mu          sync.RWMutex
	accounts    map[string]model.Account
	requests    map[string]model.FundingRequest
	credentials map[string]Credential
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]model.Account),
		requests:    make(map[string]model.FundingRequest),
		credentials: make(map[string]Credential),
		now:         time.Now,
	}
}

func (m *Memory) CreateAccount(ctx context.Context, acc model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acc.ID]; ok {
		return ErrDuplicate
	}
	now := m.now().UTC()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	m.accounts[acc.ID] = acc.Clone()
	return nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acc.Clone(), nil
}

func (m *Memory) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CommitAccount applies patch if the stored version still equals expected.
// The settlement, if any, is checked and applied under the same lock.
func (m *Memory) CommitAccount(ctx context.Context, id string, expected int64, patch model.AccountPatch) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	if acc.Version != expected {
		return model.Account{}, ErrVersionConflict
	}
	var settled model.FundingRequest
	if s := patch.Settlement; s != nil {
		req, ok := m.requests[s.RequestID]
		if !ok || req.Header().AccountID != id {
			return model.Account{}, ErrNotFound
		}
		if req.Header().Status != types.RequestStatusPending {
			return model.Account{}, ErrRequestNotPending
		}
		settled = model.Settle(req, *s)
	}
	next := patch.Apply(acc, m.now())
	m.accounts[id] = next
	if settled != nil {
		m.requests[settled.Header().ID] = settled
	}
	return next.Clone(), nil
}

func (m *Memory) CreateRequest(ctx context.Context, req model.FundingRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := req.Header()
	if _, ok := m.requests[h.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.accounts[h.AccountID]; !ok {
		return ErrNotFound
	}
	m.requests[h.ID] = req
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (model.FundingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

func (m *Memory) ListRequests(ctx context.Context, f RequestFilter) ([]model.FundingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]model.FundingRequest, 0)
	for _, req := range m.requests {
		h := req.Header()
		if f.AccountID != "" && h.AccountID != f.AccountID {
			continue
		}
		if f.Kind != "" && req.Kind() != f.Kind {
			continue
		}
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		out = append(out, req)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Header(), out[j].Header()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// SettleRequest moves a pending request to a terminal status without touching any balance.
func (m *Memory) SettleRequest(ctx context.Context, s model.Settlement) (model.FundingRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[s.RequestID]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Header().Status != types.RequestStatusPending {
		return nil, ErrRequestNotPending
	}
	settled := model.Settle(req, s)
	m.requests[s.RequestID] = settled
	return settled, nil
}

// Register creates the account together with its login credential.
func (m *Memory) Register(ctx context.Context, acc model.Account, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := normalizeEmail(acc.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credentials[email]; ok {
		return ErrDuplicate
	}
	if _, ok := m.accounts[acc.ID]; ok {
		return ErrDuplicate
	}
	now := m.now().UTC()
	acc.Email = email
	acc.CreatedAt = now
	acc.UpdatedAt = now
	m.accounts[acc.ID] = acc.Clone()
	m.credentials[email] = Credential{AccountID: acc.ID, Email: email, PasswordHash: passwordHash}
	return nil
}

func (m *Memory) Credential(ctx context.Context, email string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[normalizeEmail(email)]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
