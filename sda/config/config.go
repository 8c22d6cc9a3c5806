package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/sports-data-agent/sda"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or SDA_* environment variables.
type Config struct {
	Model      ModelConfig      `mapstructure:"model"`
	Harness    HarnessConfig    `mapstructure:"harness"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	UI         UIConfig         `mapstructure:"ui"`
	Data       DataConfig       `mapstructure:"data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

// ModelConfig selects and tunes the chat model backend.
type ModelConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai", "anthropic"
	Name        string        `mapstructure:"name"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"` // optional, for compatible gateways
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// HarnessConfig stores agent loop configurations.
type HarnessConfig struct {
	TokenBudget   int           `mapstructure:"token_budget"`    // history budget per model call
	MaxToolRounds int           `mapstructure:"max_tool_rounds"` // tool rounds per turn
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	Tokenizer     string        `mapstructure:"tokenizer"` // "heuristic", "tiktoken"
	TopK          int           `mapstructure:"top_k"`     // default row limit suggested to the model
	Dialect       string        `mapstructure:"dialect"`

	// Safety and validation
	AllowedTools       []string `mapstructure:"allowed_tools"` // empty means all
	ParseTextToolCalls bool     `mapstructure:"parse_text_tool_calls"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`

	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`
}

// ToolsConfig stores SQL tool limits.
type ToolsConfig struct {
	MaxRows     int `mapstructure:"max_rows"`
	SampleRows  int `mapstructure:"sample_rows"`
	MaxCellSize int `mapstructure:"max_cell_size"` // bytes per cell before truncation
}

// UIConfig stores terminal rendering preferences.
type UIConfig struct {
	ShowThoughtProcess bool `mapstructure:"show_thought_process"`
	WordWrap           int  `mapstructure:"word_wrap"`
}

// DataConfig stores CSV ingestion settings.
type DataConfig struct {
	Folder            string        `mapstructure:"folder"`
	Ignore            []string      `mapstructure:"ignore"` // gitignore patterns
	Watch             bool          `mapstructure:"watch"`
	WatchDebounce     time.Duration `mapstructure:"watch_debounce"`
	IngestConcurrency int           `mapstructure:"ingest_concurrency"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "libsql", "sqlite"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// CheckpointConfig enables durable thread checkpoints.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"` // empty reuses database.dsn
}

// AuthConfig points at the credentials file.
type AuthConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console", "json"
}

// LoadConfig reads configuration from file or environment variables.
// An explicit configPath must exist; otherwise a missing config file just means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("/etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()
	// harness.token_budget becomes SDA_HARNESS_TOKEN_BUDGET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("model.provider", internal.DefaultModelProvider)
	v.SetDefault("model.name", internal.DefaultModelName)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.timeout", "60s")

	// Harness defaults
	v.SetDefault("harness.token_budget", 4000)
	v.SetDefault("harness.max_tool_rounds", 10)
	v.SetDefault("harness.tool_timeout", "30s")
	v.SetDefault("harness.tokenizer", "heuristic")
	v.SetDefault("harness.top_k", 5)
	v.SetDefault("harness.dialect", "SQLite")
	v.SetDefault("harness.allowed_tools", []string{})
	v.SetDefault("harness.parse_text_tool_calls", false)
	v.SetDefault("harness.enable_tracing", true)
	v.SetDefault("harness.cache_enabled", true)
	v.SetDefault("harness.cache_capacity", 256)
	v.SetDefault("harness.cache_ttl_seconds", 3600)
	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_capacity", 10)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")

	// Tool limits
	v.SetDefault("tools.max_rows", 100)
	v.SetDefault("tools.sample_rows", 3)
	v.SetDefault("tools.max_cell_size", 200)

	// UI defaults
	v.SetDefault("ui.show_thought_process", true)
	v.SetDefault("ui.word_wrap", 100)

	// Data defaults
	v.SetDefault("data.folder", internal.DefaultDataFolder)
	v.SetDefault("data.ignore", []string{})
	v.SetDefault("data.watch", false)
	v.SetDefault("data.watch_debounce", "500ms")
	v.SetDefault("data.ingest_concurrency", 4)

	// Database defaults
	v.SetDefault("database.driver", internal.DefaultDatabaseDriver)
	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.busy_timeout", "5s")

	v.SetDefault("checkpoint.enabled", false)
	v.SetDefault("checkpoint.dsn", "file:sda_checkpoints.db")

	v.SetDefault("auth.credentials_file", internal.DefaultCredentials)
	v.SetDefault("auth.max_attempts", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider %q is not supported (openai, anthropic)", c.Model.Provider)
	}
	switch c.Database.Driver {
	case "libsql", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported (libsql, sqlite)", c.Database.Driver)
	}
	switch c.Harness.Tokenizer {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("harness.tokenizer %q is not supported (heuristic, tiktoken)", c.Harness.Tokenizer)
	}
	if c.Harness.TokenBudget <= 0 {
		return fmt.Errorf("harness.token_budget must be positive, got %d", c.Harness.TokenBudget)
	}
	if c.Harness.MaxToolRounds <= 0 {
		return fmt.Errorf("harness.max_tool_rounds must be positive, got %d", c.Harness.MaxToolRounds)
	}
	return nil
}

// CheckpointDSN returns the checkpoint database, defaulting to the main one.
func (c *Config) CheckpointDSN() string {
	if c.Checkpoint.DSN != "" {
		return c.Checkpoint.DSN
	}
	return c.Database.DSN
}
