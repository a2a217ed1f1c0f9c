package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/cost-reconciler/internal/matching"
	"github.com/garyjia/cost-reconciler/pkg/utils"
)

// Lock backends
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Matching MatchingConfig `mapstructure:"matching"`
	Lock     LockConfig     `mapstructure:"lock"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded migrations
}

// OpenAIConfig holds assisted classification configuration. An empty APIKey
// disables the classifier and matching runs heuristic-only.
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url" validate:"omitempty,url"`
	Model       string `mapstructure:"model"`
	PromptsPath string `mapstructure:"prompts_path"`
}

// Enabled reports whether an API key is configured
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// MatchingConfig holds matcher thresholds and batch settings
type MatchingConfig struct {
	Floor               float64       `mapstructure:"floor"`
	AutoAccept          float64       `mapstructure:"auto_accept"`
	ShortlistSize       int           `mapstructure:"shortlist_size"`
	AmountPenaltyWeight float64       `mapstructure:"amount_penalty_weight"`
	BatchSize           int           `mapstructure:"batch_size" validate:"min=1"`
	ItemTimeout         time.Duration `mapstructure:"item_timeout" validate:"gt=0"`
	TotalTolerance      string        `mapstructure:"total_tolerance"`
}

// Thresholds converts the matching section to matcher thresholds
func (c MatchingConfig) Thresholds() matching.Thresholds {
	return matching.Thresholds{
		Floor:               c.Floor,
		AutoAccept:          c.AutoAccept,
		ShortlistSize:       c.ShortlistSize,
		AmountPenaltyWeight: c.AmountPenaltyWeight,
	}
}

// Tolerance parses TotalTolerance
func (c MatchingConfig) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.TotalTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("matching.total_tolerance %q is not a decimal: %w", c.TotalTolerance, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("matching.total_tolerance must be >= 0, got %s", d)
	}
	return d, nil
}

// LockConfig selects how mapping writes are serialized
type LockConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// WorkerConfig holds background auto-matching configuration
type WorkerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval" validate:"required_if=Enabled true"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// RetryUnmatchedAfter is how long an item left unmatched by a pass is
	// skipped by later passes; 0 retries on every pass
	RetryUnmatchedAfter time.Duration `mapstructure:"retry_unmatched_after" validate:"gte=0"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
}

// Load loads configuration from an optional YAML file, a .env file in the
// working directory and environment variables, in increasing precedence
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/reconciler.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.prompts_path", "")

	// Matching defaults
	t := matching.DefaultThresholds()
	v.SetDefault("matching.floor", t.Floor)
	v.SetDefault("matching.auto_accept", t.AutoAccept)
	v.SetDefault("matching.shortlist_size", t.ShortlistSize)
	v.SetDefault("matching.amount_penalty_weight", t.AmountPenaltyWeight)
	v.SetDefault("matching.batch_size", 5)
	v.SetDefault("matching.item_timeout", 30*time.Second)
	v.SetDefault("matching.total_tolerance", "0.01")

	// Lock defaults
	v.SetDefault("lock.backend", LockBackendMemory)
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.key_prefix", "reconciler:")
	v.SetDefault("lock.ttl", 30*time.Second)

	// Worker defaults
	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.run_timeout", 10*time.Minute)
	v.SetDefault("worker.retry_unmatched_after", time.Hour)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars maps RECONCILER_<SECTION>_<KEY> onto every key, plus the
// conventional names for credentials
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("openai.api_key", "RECONCILER_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "RECONCILER_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("lock.redis_addr", "RECONCILER_LOCK_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("lock.redis_password", "RECONCILER_LOCK_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	thresholds := c.Matching.Thresholds()
	if err := thresholds.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	if _, err := c.Matching.Tolerance(); err != nil {
		return err
	}

	return nil
}
