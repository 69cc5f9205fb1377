// Package config loads runtime configuration: defaults, then an optional YAML
// file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "numcheck/pkg/platform/strings"
)

const configPathEnv = "NUMCHECK_CONFIG"

// Ledger drivers.
const (
	LedgerDriverFile     = "file"
	LedgerDriverSQLite   = "sqlite"
	LedgerDriverPostgres = "postgres"
	LedgerDriverRedis    = "redis"
)

// Verification backends.
const (
	BackendStub    = "stub"
	BackendNetwork = "network"
)

// Config is the full runtime configuration.
type Config struct {
	Server       Server       `yaml:"server"`
	Log          Log          `yaml:"log"`
	Phone        Phone        `yaml:"phone"`
	Verification Verification `yaml:"verification"`
	Ledger       Ledger       `yaml:"ledger"`
	Batch        Batch        `yaml:"batch"`
	Export       Export       `yaml:"export"`
	Redis        RedisConfig  `yaml:"redis"`
	Kafka        Kafka        `yaml:"kafka"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Phone is the numbering region used by the normalizer.
type Phone struct {
	CountryCode string `yaml:"countryCode"`
	TrunkPrefix string `yaml:"trunkPrefix"`
}

// Verification selects and tunes the verification backend.
type Verification struct {
	Backend         string        `yaml:"backend"`
	MinInterval     time.Duration `yaml:"minInterval"`
	StubLatency     time.Duration `yaml:"stubLatency"`
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"apiKey"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
}

// Ledger configures status ledger persistence.
type Ledger struct {
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	DSN           string        `yaml:"dsn"`
	RedisKey      string        `yaml:"redisKey"`
	FlushEvery    int           `yaml:"flushEvery"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// Batch holds the batch runner's adjustable constants.
type Batch struct {
	ProgressEvery     int `yaml:"progressEvery"`
	MinRetryHours     int `yaml:"minRetryHours"`
	MaxRetryHours     int `yaml:"maxRetryHours"`
	DefaultRetryHours int `yaml:"defaultRetryHours"`
}

type Export struct {
	TempDir        string `yaml:"tempDir"`
	OutputDir      string `yaml:"outputDir"`
	FilenamePrefix string `yaml:"filenamePrefix"`
	Format         string `yaml:"format"`
}

// RedisConfig configures the optional Redis connection.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"poolSize"`
	MinIdleConns int           `yaml:"minIdleConns"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// Kafka configures run-completed event publishing. No brokers disables it.
// PublishTimeout bounds topic setup and each event delivery.
type Kafka struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replicationFactor"`
	PublishTimeout    time.Duration `yaml:"publishTimeout"`
}

// Enabled reports whether event publishing is configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:    Log{Level: "info", Format: "text"},
		Phone:  Phone{CountryCode: "234", TrunkPrefix: "0"},
		Verification: Verification{
			Backend:         BackendStub,
			MinInterval:     500 * time.Millisecond,
			StubLatency:     500 * time.Millisecond,
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Ledger: Ledger{
			Driver:        LedgerDriverFile,
			Path:          "data.json",
			RedisKey:      "numcheck:ledger",
			FlushEvery:    10,
			FlushInterval: time.Minute,
		},
		Batch: Batch{
			ProgressEvery:     5,
			MinRetryHours:     1,
			MaxRetryHours:     168,
			DefaultRetryHours: 24,
		},
		Export: Export{FilenamePrefix: "numbers", Format: "csv", OutputDir: "."},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "numcheck.runs", Partitions: 1, ReplicationFactor: 1, PublishTimeout: 5 * time.Second},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// NUMCHECK_CONFIG (if set), then environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		// Unmarshalling onto the defaults keeps every field the file omits.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Batch.MinRetryHours < 1 || c.Batch.MaxRetryHours < c.Batch.MinRetryHours {
		errs = append(errs, fmt.Errorf("batch retry bounds [%d,%d] are invalid", c.Batch.MinRetryHours, c.Batch.MaxRetryHours))
	}
	if c.Batch.DefaultRetryHours < c.Batch.MinRetryHours || c.Batch.DefaultRetryHours > c.Batch.MaxRetryHours {
		errs = append(errs, fmt.Errorf("default retry hours %d outside [%d,%d]", c.Batch.DefaultRetryHours, c.Batch.MinRetryHours, c.Batch.MaxRetryHours))
	}
	if c.Batch.ProgressEvery < 1 {
		errs = append(errs, errors.New("batch progressEvery must be >= 1"))
	}
	if c.Ledger.FlushEvery < 1 {
		errs = append(errs, errors.New("ledger flushEvery must be >= 1"))
	}
	switch c.Ledger.Driver {
	case LedgerDriverFile:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger path is required for the file driver"))
		}
	case LedgerDriverSQLite, LedgerDriverPostgres:
		if c.Ledger.DSN == "" {
			errs = append(errs, fmt.Errorf("ledger dsn is required for the %s driver", c.Ledger.Driver))
		}
	case LedgerDriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis url is required for the redis ledger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver))
	}
	switch c.Verification.Backend {
	case BackendStub:
	case BackendNetwork:
		if c.Verification.Endpoint == "" {
			errs = append(errs, errors.New("verification endpoint is required for the network backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown verification backend %q", c.Verification.Backend))
	}
	if c.Verification.MinInterval < 0 {
		errs = append(errs, errors.New("verification minInterval cannot be negative"))
	}
	if c.Kafka.Enabled() && c.Kafka.PublishTimeout <= 0 {
		errs = append(errs, errors.New("kafka publishTimeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("NUMCHECK_ADDR", &c.Server.Addr)
	str("NUMCHECK_LOG_LEVEL", &c.Log.Level)
	str("NUMCHECK_LOG_FORMAT", &c.Log.Format)
	str("NUMCHECK_COUNTRY_CODE", &c.Phone.CountryCode)
	str("NUMCHECK_TRUNK_PREFIX", &c.Phone.TrunkPrefix)

	str("NUMCHECK_BACKEND", &c.Verification.Backend)
	str("NUMCHECK_BACKEND_URL", &c.Verification.Endpoint)
	str("NUMCHECK_BACKEND_API_KEY", &c.Verification.APIKey)
	dur("NUMCHECK_BACKEND_TIMEOUT", &c.Verification.Timeout)
	dur("NUMCHECK_MIN_INTERVAL", &c.Verification.MinInterval)
	dur("NUMCHECK_STUB_LATENCY", &c.Verification.StubLatency)

	str("NUMCHECK_LEDGER_DRIVER", &c.Ledger.Driver)
	str("NUMCHECK_LEDGER_PATH", &c.Ledger.Path)
	str("NUMCHECK_LEDGER_DSN", &c.Ledger.DSN)
	num("NUMCHECK_FLUSH_EVERY", &c.Ledger.FlushEvery)
	dur("NUMCHECK_FLUSH_INTERVAL", &c.Ledger.FlushInterval)

	num("NUMCHECK_PROGRESS_EVERY", &c.Batch.ProgressEvery)
	num("NUMCHECK_MIN_RETRY_HOURS", &c.Batch.MinRetryHours)
	num("NUMCHECK_MAX_RETRY_HOURS", &c.Batch.MaxRetryHours)
	num("NUMCHECK_DEFAULT_RETRY_HOURS", &c.Batch.DefaultRetryHours)

	str("NUMCHECK_EXPORT_DIR", &c.Export.OutputDir)
	str("NUMCHECK_EXPORT_FORMAT", &c.Export.Format)

	str("REDIS_URL", &c.Redis.URL)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = pstrings.SplitList(v, ",")
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	dur("KAFKA_PUBLISH_TIMEOUT", &c.Kafka.PublishTimeout)

	return errors.Join(errs...)
}
