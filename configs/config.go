// config.go - Configuration loaded from .env, an optional config file and environment variables

package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service and the CLI
type Config struct {
	AI           AIConfig           `mapstructure:"ai"`
	Gemini       ModelConfig        `mapstructure:"gemini"`
	OpenAI       ModelConfig        `mapstructure:"openai"`
	Reference    ReferenceConfig    `mapstructure:"reference"`
	Google       GoogleConfig       `mapstructure:"google"`
	Municipality MunicipalityConfig `mapstructure:"municipality"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	History      HistoryConfig      `mapstructure:"history"`
	Log          LogConfig          `mapstructure:"log"`

	MaxConcurrentGroups int `mapstructure:"max_concurrent_groups"`

	// Image preprocessing settings
	EnableImagePreprocessing bool `mapstructure:"enable_image_preprocessing"`
	MaxImageDimension        int  `mapstructure:"max_image_dimension"`

	// Pricing per 1M tokens in USD
	InputPricePerMillion  float64 `mapstructure:"input_price_per_million"`
	OutputPricePerMillion float64 `mapstructure:"output_price_per_million"`
	USDToJPY              float64 `mapstructure:"usd_to_jpy"`

	Port           string `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// AIConfig selects the provider and how calls are paced
type AIConfig struct {
	Provider          string `mapstructure:"provider"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

type ModelConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ReferenceConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GoogleConfig points at a service account key used for Drive and Sheets
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type MunicipalityConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	Range         string `mapstructure:"range"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"db_name"`
}

// HistoryConfig configures where execution logs go besides MongoDB
type HistoryConfig struct {
	SQLitePath    string `mapstructure:"sqlite_path"`
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	Sheet         string `mapstructure:"sheet"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads .env (if present) and then the environment. Nested keys map to
// upper-case env names with underscores, e.g. ai.max_attempts -> AI_MAX_ATTEMPTS.
func Load(configFile string) (*Config, error) {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.max_attempts", 1)
	v.SetDefault("ai.requests_per_minute", 0)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o")

	v.SetDefault("reference.base_url", "https://n2.steamship.co.jp")
	v.SetDefault("reference.user", "")
	v.SetDefault("reference.password", "")
	v.SetDefault("reference.timeout", "10s")

	v.SetDefault("google.credentials_file", "")
	v.SetDefault("municipality.spreadsheet_id", "")
	v.SetDefault("municipality.range", "自治体DB!A2:B")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db_name", "product_ocr")
	v.SetDefault("history.sqlite_path", "reconcile_history.db")
	v.SetDefault("history.spreadsheet_id", "")
	v.SetDefault("history.sheet", "logs")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("max_concurrent_groups", 25)
	v.SetDefault("enable_image_preprocessing", true)
	v.SetDefault("max_image_dimension", 2000)

	// gpt-4o list price, 1 USD = 150 JPY
	v.SetDefault("input_price_per_million", 2.50)
	v.SetDefault("output_price_per_million", 10.00)
	v.SetDefault("usd_to_jpy", 150.0)

	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origins", "*")
}

// Validate checks values that have no usable fallback
func (c *Config) Validate() error {
	var errs []error
	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be 'gemini' or 'openai', got: %q", c.AI.Provider))
	}
	if c.AI.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1, got: %d", c.AI.MaxAttempts))
	}
	if c.AI.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("AI_REQUESTS_PER_MINUTE must not be negative"))
	}
	if c.MaxConcurrentGroups < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_GROUPS must be at least 1, got: %d", c.MaxConcurrentGroups))
	}
	if c.Reference.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("REFERENCE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the key of the selected provider
func (c *Config) APIKey() string {
	if c.AI.Provider == "gemini" {
		return c.Gemini.APIKey
	}
	return c.OpenAI.APIKey
}
