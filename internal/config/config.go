package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Plaid    PlaidConfig
	LLM      LLMConfig
	Sync     SyncConfig
	Policy   PolicyConfig
	Secrets  SecretsConfig
	Events   EventsConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// PlaidConfig holds aggregation provider credentials.
type PlaidConfig struct {
	ClientID    string `mapstructure:"client_id"`
	Secret      string
	Environment string
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider     string
	APIKeyEnv    string `mapstructure:"api_key_env"`
	APIKey       string `mapstructure:"api_key"`
	Model        string
	MaxTokens    int32         `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
}

// SyncConfig bounds the incremental fetch loop.
type SyncConfig struct {
	MaxPages       int           `mapstructure:"max_pages"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	AutoCategorize bool          `mapstructure:"auto_categorize"`
}

// PolicyConfig carries the matching tolerances used by the store.
type PolicyConfig struct {
	AmountTolerance          float64 `mapstructure:"amount_tolerance"`
	TransferTolerance        float64 `mapstructure:"transfer_tolerance"`
	TransferWindowDays       int     `mapstructure:"transfer_window_days"`
	TransferMaxResults       int     `mapstructure:"transfer_max_results"`
	PromptTransferCandidates int     `mapstructure:"prompt_transfer_candidates"`
	DuplicateWindowDays      int     `mapstructure:"duplicate_window_days"`
	DuplicateMaxDistance     float64 `mapstructure:"duplicate_max_distance"`
}

// SecretsConfig controls at-rest sealing of access credentials.
type SecretsConfig struct {
	Passphrase string
}

// EventsConfig enables publishing sync results to an AMQP broker.
type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string
	RoutingKey string `mapstructure:"routing_key"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERSYNC_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERSYNC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgersync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.LLM.APIKey == "" && c.LLM.APIKeyEnv != "" {
		c.LLM.APIKey = os.Getenv(c.LLM.APIKeyEnv)
	}
	return c, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgersync", "ledgersync.db"))

	v.SetDefault("plaid.client_id", "")
	v.SetDefault("plaid.secret", "")
	v.SetDefault("plaid.environment", "sandbox")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.request_delay", "500ms")

	v.SetDefault("sync.max_pages", 50)
	v.SetDefault("sync.min_interval", "5m")
	v.SetDefault("sync.auto_categorize", false)

	v.SetDefault("policy.amount_tolerance", 0.001)
	v.SetDefault("policy.transfer_tolerance", 0.01)
	v.SetDefault("policy.transfer_window_days", 3)
	v.SetDefault("policy.transfer_max_results", 5)
	v.SetDefault("policy.prompt_transfer_candidates", 3)
	v.SetDefault("policy.duplicate_window_days", 3)
	v.SetDefault("policy.duplicate_max_distance", 0.4)

	v.SetDefault("secrets.passphrase", "")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "ledgersync")
	v.SetDefault("events.routing_key", "sync.completed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Plaid.Environment {
	case "sandbox", "production":
	default:
		errs = append(errs, fmt.Errorf("plaid.environment must be sandbox or production, got %q", c.Plaid.Environment))
	}
	if c.Sync.MaxPages <= 0 {
		errs = append(errs, errors.New("sync.max_pages must be positive"))
	}
	if c.Sync.MinInterval < 0 {
		errs = append(errs, errors.New("sync.min_interval must not be negative"))
	}
	if c.LLM.RequestDelay < 0 {
		errs = append(errs, errors.New("llm.request_delay must not be negative"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.Policy.AmountTolerance < 0 || c.Policy.TransferTolerance < 0 {
		errs = append(errs, errors.New("policy tolerances must not be negative"))
	}
	if c.Policy.TransferWindowDays < 0 || c.Policy.DuplicateWindowDays < 0 {
		errs = append(errs, errors.New("policy windows must not be negative"))
	}
	if c.Policy.TransferMaxResults <= 0 {
		errs = append(errs, errors.New("policy.transfer_max_results must be positive"))
	}
	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		errs = append(errs, errors.New("events.exchange is required when events.amqp_url is set"))
	}
	return errors.Join(errs...)
}
