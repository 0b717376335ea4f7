// Package events streams committed account state and funding request changes
// to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"zentum/internal/model"
	"zentum/internal/types"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TypeAccountCommitted = "account.committed"
	TypeFundingRequest   = "funding.request"
)

type Envelope struct {
	Type      string          `json:"type"`
	AccountID string          `json:"account_id"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

type AccountSnapshot struct {
	AccountID     string                   `json:"account_id"`
	Version       int64                    `json:"version"`
	ForexBalance  decimal.Decimal          `json:"forex_balance"`
	CryptoBalance decimal.Decimal          `json:"crypto_balance"`
	OpenPositions int                      `json:"open_positions"`
	OpenHoldings  int                      `json:"open_holdings"`
	LastTrade     *model.ClosedTradeRecord `json:"last_trade,omitempty"`
}

type RequestChange struct {
	RequestID string              `json:"request_id"`
	Kind      types.RequestKind   `json:"kind"`
	Status    types.RequestStatus `json:"status"`
	Amount    decimal.Decimal     `json:"amount"`
}

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
		// Keyed by account so one account's events stay on one partition.
		Balancer:     &kafka.Hash{},
		Dialer:       dialer,
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
	})
}

// Publisher buffers events from commit callbacks and writes them from its own
// goroutine. When the buffer is full the event is dropped and counted.
type Publisher struct {
	w       Writer
	queue   chan kafka.Message
	maxB    int
	now     func() time.Time
	log     *zap.Logger
	dropped atomic.Int64
}

func NewPublisher(w Writer, buffer int, log *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		w:     w,
		queue: make(chan kafka.Message, buffer),
		maxB:  100,
		now:   time.Now,
		log:   log.Named("events"),
	}
}

func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) AccountCommitted(acc model.Account) {
	snap := AccountSnapshot{
		AccountID:     acc.ID,
		Version:       acc.Version,
		ForexBalance:  acc.ForexBalance,
		CryptoBalance: acc.CryptoBalance,
		OpenPositions: len(acc.ForexPositions),
		OpenHoldings:  len(acc.CryptoHoldings),
	}
	if len(acc.History) > 0 {
		last := acc.History[0]
		snap.LastTrade = &last
	}
	p.enqueue(TypeAccountCommitted, acc.ID, snap)
}

func (p *Publisher) RequestChanged(req model.FundingRequest) {
	h := req.Header()
	p.enqueue(TypeFundingRequest, h.AccountID, RequestChange{
		RequestID: h.ID,
		Kind:      req.Kind(),
		Status:    h.Status,
		Amount:    h.Amount,
	})
}

func (p *Publisher) enqueue(typ, accountID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event payload", zap.String("type", typ), zap.Error(err))
		return
	}
	at := p.now().UTC()
	b, err := json.Marshal(Envelope{Type: typ, AccountID: accountID, At: at, Payload: raw})
	if err != nil {
		p.log.Error("marshal event", zap.String("type", typ), zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(accountID), Value: b, Time: at}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		p.log.Warn("event queue full, dropping", zap.String("type", typ), zap.String("account_id", accountID))
	}
}

// Run writes queued events in batches until ctx is done, then flushes what is
// left and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if err := p.w.Close(); err != nil {
			p.log.Warn("close kafka writer", zap.Error(err))
		}
	}()
	batch := make([]kafka.Message, 0, p.maxB)
	for {
		select {
		case <-ctx.Done():
			p.drain(batch)
			return nil
		case msg := <-p.queue:
			batch = append(batch[:0], msg)
		fill:
			for len(batch) < p.maxB {
				select {
				case m := <-p.queue:
					batch = append(batch, m)
				default:
					break fill
				}
			}
			if err := p.w.WriteMessages(ctx, batch...); err != nil && ctx.Err() == nil {
				p.log.Error("write events", zap.Int("count", len(batch)), zap.Error(err))
			}
		}
	}
}

func (p *Publisher) drain(batch []kafka.Message) {
	batch = batch[:0]
loop:
	for {
		select {
		case m := <-p.queue:
			batch = append(batch, m)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, batch...); err != nil {
		p.log.Error("flush events on shutdown", zap.Int("count", len(batch)), zap.Error(err))
	}
}
