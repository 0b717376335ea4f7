package marketdata

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"zentum/internal/margin"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Instrument struct {
	Symbol       string          `yaml:"symbol" json:"symbol"`
	Name         string          `yaml:"name" json:"name"`
	Market       types.Market    `yaml:"market" json:"market"`
	ContractSize decimal.Decimal `yaml:"contract_size" json:"contract_size"`
	// SeedPrice starts the simulated source and is never served as a live quote.
	SeedPrice decimal.Decimal `yaml:"seed_price" json:"-"`
}

// Base and Quote split a six letter pair such as EURUSD.
func (i Instrument) Base() string {
	if len(i.Symbol) < 6 {
		return i.Symbol
	}
	return i.Symbol[:3]
}

func (i Instrument) Quote() string {
	if len(i.Symbol) < 6 {
		return "USD"
	}
	return i.Symbol[3:]
}

type Catalog struct {
	bySymbol map[string]Instrument
	ordered  []Instrument
}

func NewCatalog(items []Instrument) (*Catalog, error) {
	c := &Catalog{bySymbol: make(map[string]Instrument, len(items))}
	for _, it := range items {
		it.Symbol = NormalizeSymbol(it.Symbol)
		if it.Symbol == "" {
			return nil, fmt.Errorf("instrument without symbol")
		}
		if it.Market != types.MarketForex && it.Market != types.MarketCrypto {
			return nil, fmt.Errorf("instrument %s: unknown market %q", it.Symbol, it.Market)
		}
		if _, dup := c.bySymbol[it.Symbol]; dup {
			return nil, fmt.Errorf("instrument %s listed twice", it.Symbol)
		}
		if it.ContractSize.LessThanOrEqual(decimal.Zero) {
			if it.Market == types.MarketForex {
				it.ContractSize = margin.ContractSize(it.Symbol)
			} else {
				it.ContractSize = decimal.NewFromInt(1)
			}
		}
		if it.Name == "" {
			it.Name = it.Symbol
		}
		c.bySymbol[it.Symbol] = it
		c.ordered = append(c.ordered, it)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool {
		if c.ordered[i].Market != c.ordered[j].Market {
			return c.ordered[i].Market == types.MarketForex
		}
		return false
	})
	return c, nil
}

type catalogFile struct {
	Instruments []Instrument `yaml:"instruments"`
}

// LoadCatalog reads an instrument list from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("%s: no instruments", path)
	}
	return NewCatalog(f.Instruments)
}

func (c *Catalog) Lookup(symbol string) (Instrument, bool) {
	it, ok := c.bySymbol[NormalizeSymbol(symbol)]
	return it, ok
}

func (c *Catalog) All() []Instrument {
	return append([]Instrument(nil), c.ordered...)
}

func (c *Catalog) ByMarket(m types.Market) []Instrument {
	out := make([]Instrument, 0, len(c.ordered))
	for _, it := range c.ordered {
		if it.Market == m {
			out = append(out, it)
		}
	}
	return out
}

// ContractSize is a margin.ContractSizeFunc backed by the catalog.
func (c *Catalog) ContractSize(symbol string) decimal.Decimal {
	if it, ok := c.Lookup(symbol); ok {
		return it.ContractSize
	}
	return margin.ContractSize(symbol)
}

// NormalizeSymbol maps "EUR/USD", "btc/usdt" and "BTC" style input to catalog keys.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "/USDT")
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

func forex(symbol, name, seed string) Instrument {
	return Instrument{Symbol: symbol, Name: name, Market: types.MarketForex, SeedPrice: decimal.RequireFromString(seed)}
}

func crypto(symbol, name, seed string) Instrument {
	return Instrument{Symbol: symbol, Name: name, Market: types.MarketCrypto, SeedPrice: decimal.RequireFromString(seed)}
}

func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Instrument{
		forex("EURUSD", "Euro vs US Dollar", "1.0850"),
		forex("GBPUSD", "British Pound vs US Dollar", "1.2650"),
		forex("USDJPY", "US Dollar vs Japanese Yen", "151.20"),
		forex("AUDUSD", "Australian Dollar vs US Dollar", "0.6550"),
		forex("USDCAD", "US Dollar vs Canadian Dollar", "1.3550"),
		forex("USDCHF", "US Dollar vs Swiss Franc", "0.9050"),
		forex("NZDUSD", "New Zealand Dollar vs US Dollar", "0.6050"),
		forex("EURJPY", "Euro vs Japanese Yen", "164.10"),
		forex("XAUUSD", "Gold vs US Dollar", "2035.50"),
		crypto("BTC", "Bitcoin", "62450.20"),
		crypto("ETH", "Ethereum", "3450.15"),
		crypto("SOL", "Solana", "134.20"),
		crypto("BNB", "Binance Coin", "412.50"),
		crypto("XRP", "Ripple", "0.5842"),
		crypto("ADA", "Cardano", "0.584"),
		crypto("AVAX", "Avalanche", "38.45"),
		crypto("DOT", "Polkadot", "8.42"),
		crypto("LINK", "Chainlink", "19.45"),
		crypto("DOGE", "Dogecoin", "0.1245"),
		crypto("TRX", "Tron", "0.1425"),
		crypto("LTC", "Litecoin", "74.21"),
		crypto("BCH", "Bitcoin Cash", "302.45"),
	})
	if err != nil {
		panic(err)
	}
	return c
}
