package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	platformstrings "mailomat/pkg/platform/strings"
)

// Config is the full application configuration. Values are layered:
// defaults, then the YAML file named by CONFIG_FILE, then MAILOMAT_* environment variables.
type Config struct {
	Server       Server       `yaml:"server"`
	Database     Database     `yaml:"database"`
	Redis        RedisConfig  `yaml:"redis"`
	Email        Email        `yaml:"email"`
	Operator     Operator     `yaml:"operator"`
	Subscription Subscription `yaml:"subscription"`
	Dispatch     Dispatch     `yaml:"dispatch"`
	Audit        Audit        `yaml:"audit"`
	Log          Log          `yaml:"log"`
	Tracing      Tracing      `yaml:"tracing"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// Database selects Postgres when URL is set; otherwise stores are in memory.
type Database struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig enables the Redis idempotency store when URL is set.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Email configures the outbound transport. Provider is one of postmark, ses, resend.
type Email struct {
	Provider           string        `yaml:"provider"`
	BaseURL            string        `yaml:"base_url"`
	Sender             string        `yaml:"sender"`
	AuthToken          string        `yaml:"auth_token"`
	Timeout            time.Duration `yaml:"timeout"`
	AWSRegion          string        `yaml:"aws_region"`
	AWSAccessKeyID     string        `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string        `yaml:"aws_secret_access_key"`
}

// Operator is the credential seeded into the operator store at startup.
type Operator struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Subscription struct {
	ResendCooldown time.Duration `yaml:"resend_cooldown"`
}

// Dispatch tunes newsletter fan-out. Timeout replaces the server request timeout on
// POST /newsletters, which runs for as long as the recipient list takes.
type Dispatch struct {
	Concurrency    int           `yaml:"concurrency"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Audit publishes to Kafka when brokers are listed, else to the log.
type Audit struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

const (
	ProviderPostmark = "postmark"
	ProviderSES      = "ses"
	ProviderResend   = "resend"
)

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			BaseURL:         "http://127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Database: Database{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Email: Email{
			Provider: ProviderPostmark,
			BaseURL:  "http://127.0.0.1:3000",
			Sender:   "newsletter@mailomat.dev",
			Timeout:  10 * time.Second,
		},
		Subscription: Subscription{ResendCooldown: 10 * time.Minute},
		Dispatch: Dispatch{
			Concurrency:    8,
			IdempotencyTTL: 24 * time.Hour,
			Timeout:        30 * time.Minute,
		},
		Audit:   Audit{KafkaTopic: "mailomat.audit"},
		Log:     Log{Level: "info"},
		Tracing: Tracing{ServiceName: "mailomat"},
	}
}

// Load builds and validates the configuration so main stays lean.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "MAILOMAT_ADDR")
	setString(&c.Server.BaseURL, "MAILOMAT_BASE_URL")
	setString(&c.Database.URL, "MAILOMAT_DATABASE_URL")
	setString(&c.Redis.URL, "MAILOMAT_REDIS_URL")
	setString(&c.Email.Provider, "MAILOMAT_EMAIL_PROVIDER")
	setString(&c.Email.BaseURL, "MAILOMAT_EMAIL_BASE_URL")
	setString(&c.Email.Sender, "MAILOMAT_EMAIL_SENDER")
	setString(&c.Email.AuthToken, "MAILOMAT_EMAIL_AUTH_TOKEN")
	setString(&c.Email.AWSRegion, "MAILOMAT_AWS_REGION")
	setString(&c.Email.AWSAccessKeyID, "MAILOMAT_AWS_ACCESS_KEY_ID")
	setString(&c.Email.AWSSecretAccessKey, "MAILOMAT_AWS_SECRET_ACCESS_KEY")
	setString(&c.Operator.Username, "MAILOMAT_OPERATOR_USERNAME")
	setString(&c.Operator.Password, "MAILOMAT_OPERATOR_PASSWORD")
	setString(&c.Audit.KafkaTopic, "MAILOMAT_AUDIT_KAFKA_TOPIC")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("MAILOMAT_AUDIT_KAFKA_BROKERS"); v != "" {
		c.Audit.KafkaBrokers = platformstrings.SplitList(v)
	}
	if v := os.Getenv("MAILOMAT_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = v == "true"
	}

	var errs []error
	errs = append(errs,
		setDuration(&c.Email.Timeout, "MAILOMAT_EMAIL_TIMEOUT"),
		setDuration(&c.Subscription.ResendCooldown, "MAILOMAT_RESEND_COOLDOWN"),
		setDuration(&c.Dispatch.IdempotencyTTL, "MAILOMAT_IDEMPOTENCY_TTL"),
		setDuration(&c.Dispatch.Timeout, "MAILOMAT_DISPATCH_TIMEOUT"),
		setInt(&c.Dispatch.Concurrency, "MAILOMAT_DISPATCH_CONCURRENCY"),
	)
	return errors.Join(errs...)
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url %q is not an absolute URL", c.Server.BaseURL))
	}
	if !govalidator.IsEmail(c.Email.Sender) {
		errs = append(errs, fmt.Errorf("email.sender %q is not a valid email address", c.Email.Sender))
	}
	switch c.Email.Provider {
	case ProviderPostmark:
		if _, err := url.ParseRequestURI(c.Email.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("email.base_url %q is invalid", c.Email.BaseURL))
		}
	case ProviderSES:
		if c.Email.AWSRegion == "" {
			errs = append(errs, errors.New("email.aws_region is required for the ses provider"))
		}
	case ProviderResend:
		if c.Email.AuthToken == "" {
			errs = append(errs, errors.New("email.auth_token is required for the resend provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown email.provider %q", c.Email.Provider))
	}
	if c.Email.Timeout <= 0 {
		errs = append(errs, errors.New("email.timeout must be positive"))
	}
	if c.Operator.Username == "" || c.Operator.Password == "" {
		errs = append(errs, errors.New("operator.username and operator.password are required"))
	}
	if c.Dispatch.Concurrency < 1 {
		errs = append(errs, errors.New("dispatch.concurrency must be at least 1"))
	}
	if c.Dispatch.Timeout <= 0 {
		errs = append(errs, errors.New("dispatch.timeout must be positive"))
	}
	if c.Subscription.ResendCooldown < 0 {
		errs = append(errs, errors.New("subscription.resend_cooldown must not be negative"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
