// File: cmd/engine/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raffleworks/raffle-engine/internal/classify"
	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/indexer"
	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/notification"
	"github.com/raffleworks/raffle-engine/internal/queue"
	"github.com/raffleworks/raffle-engine/internal/selector"
	"github.com/raffleworks/raffle-engine/internal/server"
	"github.com/raffleworks/raffle-engine/internal/storage"
	"github.com/raffleworks/raffle-engine/internal/watcher"
	"github.com/raffleworks/raffle-engine/internal/worker"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config        *config.Config
	logger        *logrus.Logger
	metrics       *metrics.Manager
	storage       storage.Storage
	ledger        ledger.Client
	indexer       indexer.Client
	classifier    classify.Classifier
	queue         *queue.MemoryQueue
	workers       *worker.Pool
	selector      *selector.Selector
	notifications *notification.Manager
	watchers      *watcher.Manager
	server        *server.HTTPServer
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()
	prom := app.metrics.GetPrometheusMetrics()

	// Storage
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}
	app.storage = store

	// Ledger RPC client, plus the optional trade-indexer fallback pair.
	app.ledger = ledger.NewRPCClient(&app.config.Ledger)
	if app.config.Indexer.BaseURL != "" {
		app.indexer = indexer.NewHTTPClient(&app.config.Indexer)
	}

	app.classifier = classify.NewSwapClassifier(app.ledger, app.config.Classify.ExchangePackages)

	app.queue = queue.NewMemoryQueue(app.config.Worker.QueueSize)
	app.workers = worker.NewPool(app.storage, app.queue.Jobs(), app.config.Worker.Workers, prom)

	app.notifications = notification.NewManager(&app.config.Alerts, prom)

	var oracle selector.RandomnessOracle
	if app.config.Selector.OracleURL != "" {
		oracle = selector.NewHTTPOracle(&app.config.Selector)
	}
	app.selector = selector.NewSelector(app.storage, oracle, prom)

	app.watchers = watcher.NewManager(watcher.ManagerOptions{
		Config:     app.config,
		Ledger:     app.ledger,
		Indexer:    app.indexer,
		Classifier: app.classifier,
		Queue:      app.queue,
		Raffles:    app.storage,
		Decider:    app.selector,
		Alerter:    app.notifications,
		Metrics:    prom,
	})

	app.server = server.NewHTTPServer(&app.config.Server, app.storage,
		app.watchers, app.notifications, app.metrics)

	app.logger.Info("All components initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting raffle engine")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.workers.Start(app.ctx)

	if err := app.watchers.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start watcher manager: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"ledger_node":    app.config.Ledger.NodeURL,
		"indexer":        app.config.Indexer.BaseURL != "",
		"storage":        app.config.Storage.Type,
	}).Info("Raffle engine started successfully")

	return nil
}

// Stop stops the application gracefully. Watchers stop first so no new jobs
// are enqueued, then the queue drains through the worker pool before storage
// closes.
func (app *Application) Stop() error {
	app.logger.Info("Stopping raffle engine")

	app.cancel()

	if app.watchers != nil {
		app.watchers.Stop()
	}

	if app.queue != nil {
		if err := app.queue.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close job queue")
		}
	}

	if app.workers != nil {
		app.workers.Stop()
	}

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.ledger != nil {
		if err := app.ledger.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close ledger client")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Raffle engine stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "raffle-engine",
	Short:   "Raffle ticket engine",
	Long:    `Watches ledger trade and staking events for a meme-coin raffle, allocates tickets, and selects winners with verifiable randomness.`,
	Version: AppVersion,
	RunE:    runEngine,
}

// runEngine is the main command to run the engine
func runEngine(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("raffle-engine %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Ledger node: %s\n", cfg.Ledger.NodeURL)
		fmt.Printf("Indexer configured: %t\n", cfg.Indexer.BaseURL != "")
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Watched event kinds: %d\n", len(cfg.Watcher.EventTypes))

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing raffle engine connectivity...")

		fmt.Printf("Testing ledger connection to %s...\n", cfg.Ledger.NodeURL)
		client := ledger.NewRPCClient(&cfg.Ledger)
		if err := client.HealthCheck(context.Background()); err != nil {
			return fmt.Errorf("failed to reach ledger node: %w", err)
		}
		defer client.Close()
		fmt.Println("Ledger connection successful")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("Storage connection successful")

		fmt.Println("\nAll connectivity tests passed!")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
