// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Selector SelectorConfig `mapstructure:"selector"`
	Alerts   AlertConfig    `mapstructure:"alerts"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LedgerConfig contains ledger JSON-RPC connection configuration
type LedgerConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// IndexerConfig contains the third-party trade-indexing API configuration.
// The indexer is optional; when BaseURL is empty the watchers poll the ledger
// directly with no fallback source.
type IndexerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageSize       int           `mapstructure:"page_size"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// WatcherConfig contains event watcher configuration. EventTypes maps an
// event kind (buy, sell, stake, unstake) to the ledger event type the
// corresponding watcher subscribes to.
type WatcherConfig struct {
	PollInterval    time.Duration     `mapstructure:"poll_interval"`
	RefreshInterval time.Duration     `mapstructure:"refresh_interval"`
	PollLimit       int               `mapstructure:"poll_limit"`
	SeedLimit       int               `mapstructure:"seed_limit"`
	FailureLimit    int               `mapstructure:"failure_limit"`
	ProbeChance     float64           `mapstructure:"probe_chance"`
	EventTypes      map[string]string `mapstructure:"event_types"`
}

// ClassifyConfig contains swap classifier configuration
type ClassifyConfig struct {
	ExchangePackages []string `mapstructure:"exchange_packages"`
}

// WorkerConfig contains allocation worker configuration
type WorkerConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// SelectorConfig contains winner selection configuration. OracleURL is the
// optional verifiable-randomness service; when unset every draw is
// client-side.
type SelectorConfig struct {
	OracleURL      string        `mapstructure:"oracle_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertConfig contains operational alerting configuration
type AlertConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("RAFFLE_ENGINE")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if nodeURL := os.Getenv("LEDGER_NODE_URL"); nodeURL != "" {
		config.Ledger.NodeURL = nodeURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "raffle-engine")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Ledger defaults
	viper.SetDefault("ledger.node_url", "http://localhost:9000")
	viper.SetDefault("ledger.request_timeout", "30s")
	viper.SetDefault("ledger.retry_attempts", 3)
	viper.SetDefault("ledger.retry_delay", "5s")

	// Indexer defaults
	viper.SetDefault("indexer.base_url", "")
	viper.SetDefault("indexer.request_timeout", "15s")
	viper.SetDefault("indexer.page_size", 50)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/raffle.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Watcher defaults
	viper.SetDefault("watcher.poll_interval", "10s")
	viper.SetDefault("watcher.refresh_interval", "30s")
	viper.SetDefault("watcher.poll_limit", 100)
	viper.SetDefault("watcher.seed_limit", 50)
	viper.SetDefault("watcher.failure_limit", 3)
	viper.SetDefault("watcher.probe_chance", 0.1)
	viper.SetDefault("watcher.event_types", map[string]string{
		"buy":     "0x2::coin::DepositEvent",
		"sell":    "0x2::coin::WithdrawEvent",
		"stake":   "0x3::staking_pool::StakeRequestEvent",
		"unstake": "0x3::staking_pool::UnstakeRequestEvent",
	})

	// Worker defaults
	viper.SetDefault("worker.workers", 4)
	viper.SetDefault("worker.queue_size", 1000)

	// Selector defaults
	viper.SetDefault("selector.oracle_url", "")
	viper.SetDefault("selector.request_timeout", "20s")

	// Alert defaults
	viper.SetDefault("alerts.enabled", true)
	viper.SetDefault("alerts.timeout", "10s")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ledger.NodeURL == "" {
		return fmt.Errorf("ledger node URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher poll interval must be positive")
	}
	if c.Watcher.FailureLimit <= 0 {
		return fmt.Errorf("watcher failure limit must be positive")
	}
	if c.Worker.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Watcher.ProbeChance < 0 || c.Watcher.ProbeChance > 1 {
		return fmt.Errorf("watcher probe chance must be within [0,1]")
	}
	return nil
}
