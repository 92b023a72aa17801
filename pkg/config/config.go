// Package config loads nodewatch settings from a YAML file, defaults and
// NODEWATCH_* environment variables. Map keys such as discord.users are
// lowercased by viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NODEWATCH_LEDGER_ENDPOINT
const EnvPrefix = "NODEWATCH"

// Config is the root configuration struct
type Config struct {
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Storage   StorageConfig   `mapstructure:"storage"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Discord   DiscordConfig   `mapstructure:"discord"`
}

// LedgerConfig holds indexer connection settings
type LedgerConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	JobLimit int           `mapstructure:"jobLimit"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retry    RetryConfig   `mapstructure:"retry"`
}

// RetryConfig holds the retry policy for transient ledger failures
type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	MaxDelay time.Duration `mapstructure:"maxDelay"`
}

// ReconcileConfig holds batch scheduling settings
type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	// LowBalanceSOL flags nodes whose SOL balance drops below it
	LowBalanceSOL float64 `mapstructure:"lowBalanceSOL"`
}

// StorageConfig selects the registry backend
type StorageConfig struct {
	Driver  string `mapstructure:"driver"`
	DataDir string `mapstructure:"dataDir"`
}

// APIConfig holds the HTTP listener settings
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DiscordConfig enables Discord delivery when Token and ChannelID are set
type DiscordConfig struct {
	Token     string            `mapstructure:"token"`
	ChannelID string            `mapstructure:"channelID"`
	Users     map[string]string `mapstructure:"users"` // owner -> Discord user ID
}

// Enabled reports whether Discord delivery is configured
func (d DiscordConfig) Enabled() bool {
	return strings.TrimSpace(d.Token) != "" && strings.TrimSpace(d.ChannelID) != ""
}

// RetryPolicy converts the retry settings for the ledger client
func (l LedgerConfig) RetryPolicy() ledger.RetryPolicy {
	return ledger.RetryPolicy{
		Attempts: l.Retry.Attempts,
		Delay:    l.Retry.Delay,
		MaxDelay: l.Retry.MaxDelay,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ledger.endpoint", "https://indexer.nosana.io")
	v.SetDefault("ledger.jobLimit", ledger.DefaultJobLimit)
	v.SetDefault("ledger.timeout", 15*time.Second)
	v.SetDefault("ledger.retry.attempts", 3)
	v.SetDefault("ledger.retry.delay", 500*time.Millisecond)
	v.SetDefault("ledger.retry.maxDelay", 5*time.Second)
	v.SetDefault("reconcile.interval", 30*time.Second)
	v.SetDefault("reconcile.concurrency", 8)
	v.SetDefault("reconcile.lowBalanceSOL", 0.006)
	v.SetDefault("storage.driver", "bolt")
	v.SetDefault("storage.dataDir", "./nodewatch-data")
	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channelID", "")
}

// Load reads configuration from file and environment. An empty cfgFile
// searches for nodewatch.yaml in ./configs, /etc/nodewatch and the working
// directory; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("nodewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nodewatch")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Ledger.Endpoint) == "" {
		errs = append(errs, errors.New("ledger.endpoint is required"))
	}
	if c.Ledger.JobLimit <= 0 {
		errs = append(errs, fmt.Errorf("ledger.jobLimit must be positive, got %d", c.Ledger.JobLimit))
	}
	if c.Ledger.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ledger.timeout must be positive, got %s", c.Ledger.Timeout))
	}
	if c.Ledger.Retry.Attempts < 1 {
		errs = append(errs, errors.New("ledger.retry.attempts must be at least 1"))
	}
	if c.Ledger.Retry.Delay < 0 || c.Ledger.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("ledger.retry delays must not be negative"))
	}
	if c.Reconcile.Interval <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.interval must be positive, got %s", c.Reconcile.Interval))
	}
	if c.Reconcile.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.concurrency must be positive, got %d", c.Reconcile.Concurrency))
	}
	if c.Reconcile.LowBalanceSOL <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.lowBalanceSOL must be positive, got %g", c.Reconcile.LowBalanceSOL))
	}
	switch c.Storage.Driver {
	case "bolt", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be bolt or sqlite, got %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, errors.New("storage.dataDir is required"))
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		errs = append(errs, errors.New("discord.token and discord.channelID must be set together"))
	}
	return errors.Join(errs...)
}
