// Package config loads the seeder's runtime settings and scenario plans.
//
// Runtime settings (where the destination lives, credentials, logging,
// metrics, idempotency and export sinks) come from seeder.yaml and SEEDER_
// environment variables. The scenario plan (targets, counts, ratios) is a
// separate YAML document, see plan.go.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when settings or a plan fail validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when an explicitly named file is missing.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Config holds all runtime settings
type Config struct {
	Target      TargetConfig
	Auth        AuthConfig
	Upload      UploadConfig
	Idempotency IdempotencyConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Export      ExportConfig
	Sandbox     SandboxConfig
}

// TargetConfig describes the destination system
type TargetConfig struct {
	BaseURL       string        `validate:"required,url"`
	Timeout       time.Duration `validate:"gt=0"`
	TLSSkipVerify bool
	UserAgent     string
}

// AuthConfig holds the login credentials. They are only ever read from the
// environment, .env or the settings file.
type AuthConfig struct {
	Username  string `validate:"required"`
	Password  string `validate:"required"`
	TokenPath string `validate:"required"` // JSON path of the token in the login response
}

// UploadConfig holds batch upload tuning
type UploadConfig struct {
	ChunkSize       int           `validate:"gte=1"`
	InterBatchDelay time.Duration `validate:"gte=0"`
	PhaseDelay      time.Duration `validate:"gte=0"`
	PageSize        int           `validate:"gte=1"` // read-back page size
	Retry           RetryConfig
}

// RetryConfig bounds per-chunk retries
type RetryConfig struct {
	MaxAttempts    int           `validate:"gte=1"`
	InitialBackoff time.Duration `validate:"gte=0"`
	MaxBackoff     time.Duration `validate:"gte=0"`
	Multiplier     float64       `validate:"gte=1"`
}

// IdempotencyConfig selects where delivered batch keys are remembered
type IdempotencyConfig struct {
	Backend string        `validate:"oneof=none memory redis"`
	TTL     time.Duration `validate:"gte=0"`
	Redis   RedisConfig
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=json console"`
	Output string
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// ExportConfig controls where the run summary goes
type ExportConfig struct {
	XLSXPath string
	S3       S3Config
}

// S3Config holds settings for S3-compatible object storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Enabled reports whether a bucket was configured
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// SandboxConfig configures the local destination used for dry runs
type SandboxConfig struct {
	Addr      string
	DSN       string
	Username  string
	Password  string
	JWTSecret string

	// ImportInterval is the minimum spacing the sandbox enforces between
	// imports; faster callers get 429. Zero disables the limit.
	ImportInterval time.Duration `validate:"gte=0"`
}

// Load loads settings. Priority (highest to lowest):
// 1. Environment variables with SEEDER_ prefix (e.g., SEEDER_AUTH_PASSWORD)
// 2. .env in the working directory
// 3. the settings file (path, or seeder.yaml in the usual places)
// 4. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("seeder")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SEEDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL:       v.GetString("target.base_url"),
			Timeout:       v.GetDuration("target.timeout"),
			TLSSkipVerify: v.GetBool("target.tls_skip_verify"),
			UserAgent:     v.GetString("target.user_agent"),
		},
		Auth: AuthConfig{
			Username:  v.GetString("auth.username"),
			Password:  v.GetString("auth.password"),
			TokenPath: v.GetString("auth.token_path"),
		},
		Upload: UploadConfig{
			ChunkSize:       v.GetInt("upload.chunk_size"),
			InterBatchDelay: v.GetDuration("upload.inter_batch_delay"),
			PhaseDelay:      v.GetDuration("upload.phase_delay"),
			PageSize:        v.GetInt("upload.page_size"),
			Retry: RetryConfig{
				MaxAttempts:    v.GetInt("upload.retry.max_attempts"),
				InitialBackoff: v.GetDuration("upload.retry.initial_backoff"),
				MaxBackoff:     v.GetDuration("upload.retry.max_backoff"),
				Multiplier:     v.GetFloat64("upload.retry.multiplier"),
			},
		},
		Idempotency: IdempotencyConfig{
			Backend: v.GetString("idempotency.backend"),
			TTL:     v.GetDuration("idempotency.ttl"),
			Redis: RedisConfig{
				Addr:      v.GetString("idempotency.redis.addr"),
				Password:  v.GetString("idempotency.redis.password"),
				DB:        v.GetInt("idempotency.redis.db"),
				KeyPrefix: v.GetString("idempotency.redis.key_prefix"),
			},
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Addr:    v.GetString("metrics.addr"),
		},
		Export: ExportConfig{
			XLSXPath: v.GetString("export.xlsx_path"),
			S3: S3Config{
				Bucket:          v.GetString("export.s3.bucket"),
				Region:          v.GetString("export.s3.region"),
				Endpoint:        v.GetString("export.s3.endpoint"),
				Prefix:          v.GetString("export.s3.prefix"),
				AccessKeyID:     v.GetString("export.s3.access_key_id"),
				SecretAccessKey: v.GetString("export.s3.secret_access_key"),
				UsePathStyle:    v.GetBool("export.s3.use_path_style"),
			},
		},
		Sandbox: SandboxConfig{
			Addr:      v.GetString("sandbox.addr"),
			DSN:       v.GetString("sandbox.dsn"),
			Username:  v.GetString("sandbox.username"),
			Password:  v.GetString("sandbox.password"),
			JWTSecret: v.GetString("sandbox.jwt_secret"),

			ImportInterval: v.GetDuration("sandbox.import_interval"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Target.BaseURL == "" {
		cfg.Target.BaseURL = "http://localhost:3000/api"
	}
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = 30 * time.Second
	}
	if cfg.Target.UserAgent == "" {
		cfg.Target.UserAgent = "ERP-Seeder/1.0"
	}
	if cfg.Auth.TokenPath == "" {
		cfg.Auth.TokenPath = "$.token"
	}
	if cfg.Upload.ChunkSize == 0 {
		cfg.Upload.ChunkSize = 20
	}
	if cfg.Upload.InterBatchDelay == 0 {
		cfg.Upload.InterBatchDelay = 300 * time.Millisecond
	}
	if cfg.Upload.PhaseDelay == 0 {
		cfg.Upload.PhaseDelay = 2 * time.Second
	}
	if cfg.Upload.PageSize == 0 {
		cfg.Upload.PageSize = 100
	}
	if cfg.Upload.Retry.MaxAttempts == 0 {
		cfg.Upload.Retry.MaxAttempts = 1
	}
	if cfg.Upload.Retry.InitialBackoff == 0 {
		cfg.Upload.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Upload.Retry.MaxBackoff == 0 {
		cfg.Upload.Retry.MaxBackoff = 10 * time.Second
	}
	if cfg.Upload.Retry.Multiplier == 0 {
		cfg.Upload.Retry.Multiplier = 2.0
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 7 * 24 * time.Hour
	}
	if cfg.Idempotency.Redis.Addr == "" {
		cfg.Idempotency.Redis.Addr = "localhost:6379"
	}
	if cfg.Idempotency.Redis.KeyPrefix == "" {
		cfg.Idempotency.Redis.KeyPrefix = "seeder:batch:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9464"
	}
	if cfg.Export.S3.Region == "" {
		cfg.Export.S3.Region = "us-east-1"
	}
	if cfg.Sandbox.Addr == "" {
		cfg.Sandbox.Addr = ":8088"
	}
	if cfg.Sandbox.DSN == "" {
		cfg.Sandbox.DSN = "file::memory:?cache=shared"
	}
	if cfg.Sandbox.Username == "" {
		cfg.Sandbox.Username = cfg.Auth.Username
	}
	if cfg.Sandbox.Password == "" {
		cfg.Sandbox.Password = cfg.Auth.Password
	}
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describe(err))
	}
	if c.Upload.Retry.MaxBackoff < c.Upload.Retry.InitialBackoff {
		return fmt.Errorf("%w: upload.retry.max_backoff (%s) is below initial_backoff (%s)",
			ErrInvalidConfig, c.Upload.Retry.MaxBackoff, c.Upload.Retry.InitialBackoff)
	}
	if c.Idempotency.Backend == "redis" && c.Idempotency.Redis.Addr == "" {
		return fmt.Errorf("%w: idempotency.redis.addr is required for the redis backend", ErrInvalidConfig)
	}
	return nil
}

// describe flattens validator errors into "Field: tag" pairs
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
