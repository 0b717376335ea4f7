package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

const (
	DefaultFXEndpoint     = "https://api.exchangerate-api.com/v4/latest/USD"
	DefaultCryptoEndpoint = "https://min-api.cryptocompare.com/data/pricemulti"
)

// FXSource derives pair prices from a USD based rate table.
type FXSource struct {
	endpoint string
	client   *http.Client
	pairs    []Instrument
	now      func() time.Time
}

func NewFXSource(endpoint string, client *http.Client, catalog *Catalog) *FXSource {
	if endpoint == "" {
		endpoint = DefaultFXEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &FXSource{endpoint: endpoint, client: client, pairs: catalog.ByMarket(types.MarketForex), now: time.Now}
}

func (s *FXSource) Name() string { return "fx" }

type fxRatesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *FXSource) Fetch(ctx context.Context) ([]Quote, error) {
	var body fxRatesResponse
	if err := getJSON(ctx, s.client, s.endpoint, &body); err != nil {
		return nil, err
	}
	ts := s.now().UTC()
	out := make([]Quote, 0, len(s.pairs))
	for _, it := range s.pairs {
		price, ok := crossRate(body.Rates, it.Base(), it.Quote())
		if !ok {
			continue
		}
		out = append(out, Quote{Symbol: it.Symbol, Price: price, Timestamp: ts})
	}
	return out, nil
}

// crossRate prices base in quote units from rates expressed per one USD.
func crossRate(rates map[string]decimal.Decimal, base, quote string) (decimal.Decimal, bool) {
	perUSD := func(ccy string) (decimal.Decimal, bool) {
		if ccy == "USD" {
			return decimal.NewFromInt(1), true
		}
		r, ok := rates[ccy]
		if !ok || r.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, false
		}
		return r, true
	}
	b, ok := perUSD(base)
	if !ok {
		return decimal.Zero, false
	}
	q, ok := perUSD(quote)
	if !ok {
		return decimal.Zero, false
	}
	return q.DivRound(b, 8), true
}

// CryptoSource reads USD prices for every crypto instrument in one request.
type CryptoSource struct {
	endpoint string
	client   *http.Client
	coins    []Instrument
	now      func() time.Time
}

func NewCryptoSource(endpoint string, client *http.Client, catalog *Catalog) *CryptoSource {
	if endpoint == "" {
		endpoint = DefaultCryptoEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &CryptoSource{endpoint: endpoint, client: client, coins: catalog.ByMarket(types.MarketCrypto), now: time.Now}
}

func (s *CryptoSource) Name() string { return "crypto" }

func (s *CryptoSource) Fetch(ctx context.Context) ([]Quote, error) {
	syms := make([]string, 0, len(s.coins))
	for _, it := range s.coins {
		syms = append(syms, it.Symbol)
	}
	q := url.Values{}
	q.Set("fsyms", strings.Join(syms, ","))
	q.Set("tsyms", "USD")
	var body map[string]map[string]decimal.Decimal
	if err := getJSON(ctx, s.client, s.endpoint+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	ts := s.now().UTC()
	out := make([]Quote, 0, len(body))
	for _, it := range s.coins {
		px, ok := body[it.Symbol]["USD"]
		if !ok {
			continue
		}
		out = append(out, Quote{Symbol: it.Symbol, Price: px, Timestamp: ts})
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// SimSource random-walks every instrument from its seed price. It backs the
// offline simulator mode and tests.
type SimSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
	order  []string
	vol    float64
	now    func() time.Time
}

func NewSimSource(catalog *Catalog, seed int64, vol float64) *SimSource {
	if vol <= 0 {
		vol = 0.0002
	}
	s := &SimSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]decimal.Decimal),
		vol:    vol,
		now:    time.Now,
	}
	for _, it := range catalog.All() {
		if it.SeedPrice.LessThanOrEqual(decimal.Zero) {
			continue
		}
		s.prices[it.Symbol] = it.SeedPrice
		s.order = append(s.order, it.Symbol)
	}
	return s
}

func (s *SimSource) Name() string { return "sim" }

// SetVolatility changes the per-tick standard deviation of the random walk.
func (s *SimSource) SetVolatility(vol float64) {
	if vol <= 0 {
		return
	}
	s.mu.Lock()
	s.vol = vol
	s.mu.Unlock()
}

func (s *SimSource) Fetch(ctx context.Context) ([]Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC()
	out := make([]Quote, 0, len(s.order))
	for _, sym := range s.order {
		step := decimal.NewFromFloat(1 + s.rng.NormFloat64()*s.vol)
		next := s.prices[sym].Mul(step).Round(8)
		if next.LessThanOrEqual(decimal.Zero) {
			next = s.prices[sym]
		}
		s.prices[sym] = next
		out = append(out, Quote{Symbol: sym, Price: next, Timestamp: ts})
	}
	return out, nil
}
