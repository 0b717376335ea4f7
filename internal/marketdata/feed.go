package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// Source fetches the current price of every instrument it covers.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Quote, error)
}

// Feed holds the last known quote per instrument. A symbol that has never
// been quoted, or whose quote is older than the staleness limit, is not
// ready; callers must not treat that as a zero price.
type Feed struct {
	mu     sync.RWMutex
	quotes map[string]Quote

	subMu   sync.RWMutex
	subs    map[int]func(Quote)
	nextSub int

	bus        *Bus
	staleAfter time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewFeed(bus *Bus, staleAfter time.Duration, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{
		quotes:     make(map[string]Quote),
		subs:       make(map[int]func(Quote)),
		bus:        bus,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log.Named("feed"),
	}
}

func (f *Feed) Quote(symbol string) (Quote, bool) {
	f.mu.RLock()
	q, ok := f.quotes[NormalizeSymbol(symbol)]
	f.mu.RUnlock()
	if !ok {
		return Quote{}, false
	}
	if f.staleAfter > 0 && f.now().Sub(q.Timestamp) > f.staleAfter {
		return Quote{}, false
	}
	return q, true
}

// Price is a margin.QuoteFunc.
func (f *Feed) Price(symbol string) (decimal.Decimal, bool) {
	q, ok := f.Quote(symbol)
	return q.Price, ok
}

func (f *Feed) Snapshot() []Quote {
	f.mu.RLock()
	out := make([]Quote, 0, len(f.quotes))
	for _, q := range f.quotes {
		out = append(out, q)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Set stores q and delivers it to subscribers. Non-positive prices are ignored.
func (f *Feed) Set(q Quote) {
	q.Symbol = NormalizeSymbol(q.Symbol)
	if q.Symbol == "" || q.Price.LessThanOrEqual(decimal.Zero) {
		return
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = f.now().UTC()
	}
	f.mu.Lock()
	f.quotes[q.Symbol] = q
	f.mu.Unlock()

	f.subMu.RLock()
	for _, fn := range f.subs {
		fn(q)
	}
	f.subMu.RUnlock()
	if f.bus != nil {
		f.bus.Publish(Event{Type: EventQuote, Data: q})
	}
}

// Subscribe registers fn for every new quote. It runs on the poller goroutine.
func (f *Feed) Subscribe(fn func(Quote)) func() {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()
	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

// Run polls src every interval until ctx is done. A failed poll keeps the
// previous quotes.
func (f *Feed) Run(ctx context.Context, src Source, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	f.log.Info("poller started", zap.String("source", src.Name()), zap.Duration("interval", interval))
	f.poll(ctx, src, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.log.Info("poller stopped", zap.String("source", src.Name()))
			return nil
		case <-ticker.C:
			f.poll(ctx, src, interval)
		}
	}
}

func (f *Feed) poll(ctx context.Context, src Source, interval time.Duration) {
	pctx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	quotes, err := src.Fetch(pctx)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("poll failed", zap.String("source", src.Name()), zap.Error(err))
		}
		return
	}
	for _, q := range quotes {
		if q.Source == "" {
			q.Source = src.Name()
		}
		f.Set(q)
	}
}
