package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const MaxPageSize = 1000

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DefaultPaymentsTable is used when PAYMENTS_TABLE is unset.
const DefaultPaymentsTable = "pft_transactions"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// NormalizeDriver maps a STORE_DRIVER value onto one of the Driver constants.
func NormalizeDriver(name string) (string, error) {
	switch driver := strings.ToLower(strings.TrimSpace(name)); driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return driver, nil
	}
	return "", fmt.Errorf("unsupported store driver %q", name)
}

// ValidateTable rejects names that cannot be interpolated into SQL safely.
func ValidateTable(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("invalid payments table name %q", table)
	}
	return nil
}

type Config struct {
	RPCURL     string        `env:"RPC_URL" envDefault:"https://s1.ripple.com:51234/"`
	RPCTimeout time.Duration `env:"RPC_TIMEOUT" envDefault:"20s"`
	PageSize   int           `env:"PAGE_SIZE" envDefault:"1000"`

	CurrencyCode  string `env:"CURRENCY_CODE" envDefault:"PFT"`
	IssuerAddress string `env:"ISSUER_ADDRESS" envDefault:"rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW"`
	// Account is the address whose history is paged. Empty means the issuer.
	Account string `env:"ACCOUNT"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DBDSN         string `env:"DB_DSN"`
	PaymentsTable string `env:"PAYMENTS_TABLE" envDefault:"pft_transactions"`

	HTTPAddr  string        `env:"HTTP_ADDR" envDefault:":8080"`
	RedisAddr string        `env:"REDIS_ADDR"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"1m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"paysync-payments"`

	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
	OtelEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// SyncAccount is the account passed to account_tx.
func (c Config) SyncAccount() string {
	if c.Account != "" {
		return c.Account
	}
	return c.IssuerAddress
}

type EnvSource interface {
	Environ() map[string]string
}

type EnvMap map[string]string

func (e EnvMap) Environ() map[string]string {
	return e
}

func FromEnviron() EnvSource {
	return EnvMap(env.ToMap(os.Environ()))
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: source.Environ()}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.RPCURL = strings.TrimSpace(c.RPCURL)
	c.Account = strings.TrimSpace(c.Account)
	if driver, err := NormalizeDriver(c.StoreDriver); err == nil {
		c.StoreDriver = driver
	}
	c.RedisAddr = strings.TrimSpace(c.RedisAddr)
	c.OtelEndpoint = strings.TrimSpace(c.OtelEndpoint)
	c.PushgatewayURL = strings.TrimSpace(c.PushgatewayURL)

	brokers := c.KafkaBrokers[:0]
	for _, broker := range c.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.KafkaBrokers = brokers
}

func (c Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("RPC_URL is required")
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC_TIMEOUT must be positive, got %s", c.RPCTimeout)
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, c.PageSize)
	}
	if c.CurrencyCode == "" {
		return errors.New("CURRENCY_CODE is required")
	}
	if c.IssuerAddress == "" {
		return errors.New("ISSUER_ADDRESS is required")
	}
	if _, err := NormalizeDriver(c.StoreDriver); err != nil {
		return fmt.Errorf("STORE_DRIVER: %w", err)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return errors.New("DB_DSN is required")
	}
	if err := ValidateTable(c.PaymentsTable); err != nil {
		return fmt.Errorf("PAYMENTS_TABLE: %w", err)
	}
	return nil
}
