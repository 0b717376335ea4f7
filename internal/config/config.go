package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	DBDSN       string `env:"DB_DSN"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"zentum"`
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	InternalToken   string  `env:"INTERNAL_API_TOKEN"`
	WebSocketOrigin string  `env:"WS_ORIGIN" envDefault:"*"`
	RateLimitRPS    float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst  int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	Leverage           decimal.Decimal `env:"LEVERAGE" envDefault:"5000"`
	CommitTimeout      time.Duration   `env:"COMMIT_TIMEOUT" envDefault:"5s"`
	MaxConflictRetries int             `env:"MAX_CONFLICT_RETRIES" envDefault:"3"`
	WithdrawalPolicy   string          `env:"WITHDRAWAL_POLICY" envDefault:"reject"`

	QuoteSource     string        `env:"QUOTE_SOURCE" envDefault:"live"`
	FXEndpoint      string        `env:"FX_ENDPOINT" envDefault:"https://api.exchangerate-api.com/v4/latest/USD"`
	CryptoEndpoint  string        `env:"CRYPTO_ENDPOINT" envDefault:"https://min-api.cryptocompare.com/data/pricemulti"`
	FXInterval      time.Duration `env:"FX_POLL_INTERVAL" envDefault:"1s"`
	CryptoInterval  time.Duration `env:"CRYPTO_POLL_INTERVAL" envDefault:"2s"`
	SimInterval     time.Duration `env:"SIM_POLL_INTERVAL" envDefault:"1s"`
	SimSeed         int64         `env:"SIM_SEED" envDefault:"1"`
	QuoteStaleAfter time.Duration `env:"QUOTE_STALE_AFTER" envDefault:"30s"`
	InstrumentsFile string        `env:"INSTRUMENTS_FILE"`

	ForexOpen     string   `env:"FOREX_OPEN" envDefault:"Sun 22:00"`
	ForexClose    string   `env:"FOREX_CLOSE" envDefault:"Fri 22:00"`
	ForexHolidays []string `env:"FOREX_HOLIDAYS" envSeparator:","`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"zentum.accounts"`

	AdminEmail        string `env:"ADMIN_EMAIL"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

func (c Config) Production() bool { return c.AppEnv == "production" }

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return c, err
	}
	c.normalize()
	return c, c.validate()
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.QuoteSource = strings.ToLower(strings.TrimSpace(c.QuoteSource))
	c.WithdrawalPolicy = strings.ToLower(strings.TrimSpace(c.WithdrawalPolicy))
	c.KafkaBrokers = compact(c.KafkaBrokers)
	c.ForexHolidays = compact(c.ForexHolidays)
}

func (c Config) validate() error {
	var problems []string
	if c.AppEnv != "development" && c.AppEnv != "production" {
		problems = append(problems, "APP_ENV must be development or production")
	}
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DBDSN == "" {
			problems = append(problems, "DB_DSN is required with STORE_DRIVER=postgres")
		}
	default:
		problems = append(problems, "STORE_DRIVER must be memory or postgres")
	}
	if c.Production() && c.StoreDriver != "postgres" {
		problems = append(problems, "production requires STORE_DRIVER=postgres")
	}
	if c.Production() && len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters in production")
	}
	if c.JWTTTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	if !c.Leverage.IsPositive() {
		problems = append(problems, "LEVERAGE must be positive")
	}
	if c.CommitTimeout <= 0 {
		problems = append(problems, "COMMIT_TIMEOUT must be positive")
	}
	if c.MaxConflictRetries < 0 {
		problems = append(problems, "MAX_CONFLICT_RETRIES must not be negative")
	}
	switch c.WithdrawalPolicy {
	case "reject", "clamp", "allow":
	default:
		problems = append(problems, "WITHDRAWAL_POLICY must be reject, clamp or allow")
	}
	switch c.QuoteSource {
	case "live", "sim":
	default:
		problems = append(problems, "QUOTE_SOURCE must be live or sim")
	}
	if c.FXInterval <= 0 || c.CryptoInterval <= 0 || c.SimInterval <= 0 {
		problems = append(problems, "poll intervals must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		problems = append(problems, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if (c.AdminEmail == "") != (c.AdminPasswordHash == "") {
		problems = append(problems, "ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
