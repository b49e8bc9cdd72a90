// Package config loads service configuration from an optional YAML file,
// a .env file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver      string `yaml:"driver"`
		DatabaseURL string `yaml:"database_url"`
		SQLitePath  string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Reservations struct {
		HoldTTL      time.Duration `yaml:"hold_ttl"`
		ReapInterval time.Duration `yaml:"reap_interval"`
		ReapBatch    int           `yaml:"reap_batch"`
	} `yaml:"reservations"`

	Idempotency struct {
		ClaimLease time.Duration `yaml:"claim_lease"`
	} `yaml:"idempotency"`

	Gateways struct {
		PaymentsURL    string          `yaml:"payments_url"`
		PaymentsAPIKey string          `yaml:"payments_api_key"`
		WalletURL      string          `yaml:"wallet_url"`
		QuotesURL      string          `yaml:"quotes_url"`
		QuoteRate      decimal.Decimal `yaml:"quote_rate"`
		Timeout        time.Duration   `yaml:"timeout"`
		Retries        int             `yaml:"retries"`
	} `yaml:"gateways"`

	Bank struct {
		IBAN string `yaml:"iban"`
		BIC  string `yaml:"bic"`
	} `yaml:"bank"`

	Events struct {
		OutboxDir     string        `yaml:"outbox_dir"`
		KafkaBrokers  []string      `yaml:"kafka_brokers"`
		Topic         string        `yaml:"topic"`
		RelayInterval time.Duration `yaml:"relay_interval"`
	} `yaml:"events"`

	Tracing struct {
		Endpoint   string `yaml:"endpoint"`
		URLPath    string `yaml:"url_path"`
		AuthHeader string `yaml:"auth_header"`
		Insecure   bool   `yaml:"insecure"`
	} `yaml:"tracing"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`

	Catalog struct {
		Tokens []TokenSeed `yaml:"tokens"`
	} `yaml:"catalog"`
}

// TokenSeed is a catalog entry inserted at startup when absent.
type TokenSeed struct {
	Symbol          string          `yaml:"symbol"`
	Network         string          `yaml:"network"`
	Name            string          `yaml:"name"`
	PriceFiat       decimal.Decimal `yaml:"price_fiat"`
	FiatCurrency    string          `yaml:"fiat_currency"`
	Decimals        int             `yaml:"decimals"`
	ContractAddress string          `yaml:"contract_address"`
	Inventory       decimal.Decimal `yaml:"inventory"`
	Disabled        bool            `yaml:"disabled"`
}

func (s TokenSeed) Token() domain.Token {
	return domain.Token{
		Symbol:          s.Symbol,
		Network:         s.Network,
		Name:            s.Name,
		PriceFiat:       s.PriceFiat,
		FiatCurrency:    s.FiatCurrency,
		Decimals:        s.Decimals,
		ContractAddress: s.ContractAddress,
		Inventory:       s.Inventory,
		Reserved:        decimal.Zero,
		Enabled:         !s.Disabled,
	}
}

func Default() Config {
	var c Config
	c.Server.Port = "3000"
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Storage.Driver = DriverSQLite
	c.Storage.SQLitePath = "data/onramp.db"
	c.Reservations.HoldTTL = 10 * time.Minute
	c.Reservations.ReapInterval = 30 * time.Second
	c.Reservations.ReapBatch = 500
	c.Idempotency.ClaimLease = 2 * time.Minute
	c.Gateways.QuoteRate = decimal.RequireFromString("1.05")
	c.Gateways.Timeout = 10 * time.Second
	c.Gateways.Retries = 3
	c.Bank.IBAN = "DE89370400440532013000"
	c.Bank.BIC = "COBADEFFXXX"
	c.Events.OutboxDir = "data/outbox"
	c.Events.Topic = "sell-orders"
	c.Events.RelayInterval = time.Second
	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
	return c
}

// Load reads path over the defaults, then applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := overrideWithEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Reservations.HoldTTL <= 0 {
		return errors.New("reservations.hold_ttl must be positive")
	}
	if c.Reservations.ReapInterval <= 0 {
		return errors.New("reservations.reap_interval must be positive")
	}
	if c.Reservations.ReapBatch <= 0 {
		return errors.New("reservations.reap_batch must be positive")
	}
	if c.Idempotency.ClaimLease <= 0 {
		return errors.New("idempotency.claim_lease must be positive")
	}
	if !c.Gateways.QuoteRate.IsPositive() {
		return errors.New("gateways.quote_rate must be positive")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.OutboxDir == "" {
		return errors.New("events.outbox_dir is required when kafka brokers are set")
	}

	for i, t := range c.Catalog.Tokens {
		if t.Symbol == "" || t.Network == "" || t.FiatCurrency == "" {
			return fmt.Errorf("catalog.tokens[%d]: symbol, network and fiat_currency are required", i)
		}
		if t.Inventory.IsNegative() {
			return fmt.Errorf("catalog.tokens[%d]: inventory must not be negative", i)
		}
		if t.PriceFiat.IsNegative() {
			return fmt.Errorf("catalog.tokens[%d]: price_fiat must not be negative", i)
		}
	}
	return nil
}

func overrideWithEnv(cfg *Config) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.File, "LOG_FILE")
	setString(&cfg.Gateways.PaymentsURL, "PAYMENTS_URL")
	setString(&cfg.Gateways.PaymentsAPIKey, "PAYMENTS_API_KEY")
	setString(&cfg.Gateways.WalletURL, "WALLET_URL")
	setString(&cfg.Gateways.QuotesURL, "QUOTES_URL")
	setString(&cfg.Events.OutboxDir, "OUTBOX_DIR")
	setString(&cfg.Tracing.Endpoint, "OTEL_ENDPOINT")
	setString(&cfg.Tracing.AuthHeader, "OTEL_AUTH_HEADER")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = ParseCSV(v)
	}
	if v := os.Getenv("HOLD_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HOLD_TTL: %w", err)
		}
		cfg.Reservations.HoldTTL = d
	}
	return nil
}

// ParseCSV splits a comma separated list, dropping empty items.
func ParseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
