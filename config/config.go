package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Minio     MinioConfig     `yaml:"minio"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Payment   PaymentConfig   `yaml:"payment"`
	DocuSeal  DocuSealConfig  `yaml:"docuseal"`
	BoldSign  BoldSignConfig  `yaml:"boldsign"`
	Signing   SigningConfig   `yaml:"signing"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigin string `yaml:"allowed_origin"`
}

type SessionConfig struct {
	Secret       string `yaml:"secret"`
	ExpireDays   int    `yaml:"expire_days"`
	FlowTTLHours int    `yaml:"flow_ttl_hours"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverMinio    = "minio"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver       string `yaml:"driver"`
	KeyPrefix    string `yaml:"key_prefix"`
	MaxContracts int    `yaml:"max_contracts"` // Per device, 0 = unlimited
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type LedgerConfig struct {
	Driver         string `yaml:"driver"`
	RetentionHours int    `yaml:"retention_hours"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	Amount                    string `yaml:"amount"`
	Currency                  string `yaml:"currency"`
	Description               string `yaml:"description"`
	ProductName               string `yaml:"product_name"`
	StatementDescriptor       string `yaml:"statement_descriptor"`
	StatementDescriptorSuffix string `yaml:"statement_descriptor_suffix"`
}

type DocuSealConfig struct {
	APIURL    string `yaml:"api_url"`
	AuthToken string `yaml:"auth_token"`
}

type BoldSignConfig struct {
	APIURL        string `yaml:"api_url"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// Signing providers
const (
	SigningDocuSeal = "docuseal"
	SigningBoldSign = "boldsign"
)

type SigningConfig struct {
	Provider            string `yaml:"provider"` // Service that creates new signing requests
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	ProviderOrigin      string `yaml:"provider_origin"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands ${VAR} references from the environment, decodes the YAML,
// applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:5173"
	}
	if c.CORS.AllowedOrigin == "" {
		c.CORS.AllowedOrigin = c.Server.PublicURL
	}
	if c.Session.ExpireDays == 0 {
		c.Session.ExpireDays = 7
	}
	if c.Session.FlowTTLHours == 0 {
		c.Session.FlowTTLHours = 12
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "agreement"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DriverMemory
	}
	if c.Ledger.RetentionHours == 0 {
		c.Ledger.RetentionHours = 72
	}
	if c.Payment.Amount == "" {
		c.Payment.Amount = "2.99"
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "usd"
	}
	if c.Payment.Description == "" {
		c.Payment.Description = "Vehicle Sales Agreement Digital Signing Service"
	}
	if c.Payment.ProductName == "" {
		c.Payment.ProductName = "Vehicle Sales Agreement Signing Service"
	}
	if c.DocuSeal.APIURL == "" {
		c.DocuSeal.APIURL = "https://api.docuseal.com"
	}
	if c.BoldSign.APIURL == "" {
		c.BoldSign.APIURL = "https://api.boldsign.com"
	}
	if c.Signing.Provider == "" {
		c.Signing.Provider = SigningDocuSeal
	}
	if c.Signing.PollIntervalSeconds == 0 {
		c.Signing.PollIntervalSeconds = 5
	}
	if c.Signing.ProviderOrigin == "" {
		c.Signing.ProviderOrigin = "https://docuseal.com"
		if c.Signing.Provider == SigningBoldSign {
			c.Signing.ProviderOrigin = "https://app.boldsign.com"
		}
	}
}

// Validate fails on any missing credential the service cannot start without.
// Signing provider credentials are checked per endpoint instead.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Stripe.SecretKey) == "" {
		errs = append(errs, errors.New("stripe.secret_key is required"))
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		errs = append(errs, errors.New("stripe.webhook_secret is required"))
	}
	if strings.TrimSpace(c.Session.Secret) == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	if _, err := c.Payment.MinorUnits(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for storage driver redis"))
		}
	case DriverMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucket are required for storage driver minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for ledger driver redis"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for ledger driver postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver))
	}

	switch c.Signing.Provider {
	case SigningDocuSeal, SigningBoldSign:
	default:
		errs = append(errs, fmt.Errorf("unknown signing.provider %q", c.Signing.Provider))
	}

	return errors.Join(errs...)
}

// MinorUnits converts the configured decimal amount into the smallest
// currency unit, e.g. "2.99" -> 299.
func (p PaymentConfig) MinorUnits() (int64, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return 0, fmt.Errorf("payment.amount %q is not a decimal: %w", p.Amount, err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("payment.amount must be positive, got %s", p.Amount)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

// MinioEnabled reports whether object storage is configured at all.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != "" && c.Minio.Bucket != ""
}
