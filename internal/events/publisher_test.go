package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"zentum/internal/model"
	"zentum/internal/types"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestPublisherWritesEnvelopes(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.AccountCommitted(model.Account{
		ID:           "acc-1",
		Version:      4,
		ForexBalance: decimal.NewFromInt(1010),
		History:      []model.ClosedTradeRecord{{ID: "pos-1", Symbol: "EURUSD", Profit: decimal.NewFromInt(10)}},
	})
	p.RequestChanged(model.DepositRequest{RequestHeader: model.RequestHeader{
		ID: "req-1", AccountID: "acc-1", Amount: decimal.NewFromInt(100), Status: types.RequestStatusApproved,
	}})

	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	assert.Equal(t, "acc-1", string(w.msgs[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, TypeAccountCommitted, env.Type)
	var snap AccountSnapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.EqualValues(t, 4, snap.Version)
	require.NotNil(t, snap.LastTrade)
	assert.Equal(t, "pos-1", snap.LastTrade.ID)

	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &env))
	assert.Equal(t, TypeFundingRequest, env.Type)
	var rc RequestChange
	require.NoError(t, json.Unmarshal(env.Payload, &rc))
	assert.Equal(t, types.RequestKindDeposit, rc.Kind)
	assert.Equal(t, types.RequestStatusApproved, rc.Status)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(&fakeWriter{}, 1, nil)
	p.AccountCommitted(model.Account{ID: "a"})
	p.AccountCommitted(model.Account{ID: "a"})
	p.AccountCommitted(model.Account{ID: "a"})
	assert.EqualValues(t, 2, p.Dropped())
}

func TestPublisherFlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, 8, nil)
	p.AccountCommitted(model.Account{ID: "a"})
	p.AccountCommitted(model.Account{ID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	// Run may pick the queue or the cancelled ctx first; either way nothing is lost.
	assert.Equal(t, 2, w.count())
}

func TestPublisherKeepsRunningOnWriteError(t *testing.T) {
	w := &fakeWriter{fail: errors.New("broker down")}
	p := NewPublisher(w, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.AccountCommitted(model.Account{ID: "a"})
	time.Sleep(20 * time.Millisecond)
	w.mu.Lock()
	w.fail = nil
	w.mu.Unlock()
	p.AccountCommitted(model.Account{ID: "b"})

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.msgs) > 0 && string(w.msgs[len(w.msgs)-1].Key) == "b"
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
