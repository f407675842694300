package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/meterhub/meterhub/pkg/config"
	"github.com/meterhub/meterhub/pkg/executor"
	"github.com/meterhub/meterhub/pkg/exposition"
	"github.com/meterhub/meterhub/pkg/metrics"
	"github.com/meterhub/meterhub/pkg/timing"
	"github.com/meterhub/meterhub/pkg/tracing"
)

var (
	// Global flags
	configFile string
	logLevel   string
	logFormat  string
	address    string
	port       int

	// Build info (set by build system)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meterhubd",
		Short: "MeterHub metrics daemon",
		Long: `MeterHub aggregates observations into named metric families and serves
them over HTTP in Prometheus text format, as JSON, and as a live
WebSocket stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runServer,
	}

	// Add flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "f", "", "log format (json, text, console)")
	rootCmd.PersistentFlags().StringVarP(&address, "addr", "a", "", "listen address")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "listen port")

	// Add subcommands
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override config with command line flags
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	// Setup logging
	logger, err := setupLogging(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", date).
		Str("namespace", cfg.Metrics.Namespace).
		Msg("Starting MeterHub daemon")

	// Create necessary directories
	if err := cfg.CreateDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Metric registry with built-in collectors
	registry := metrics.NewRegistry(cfg.Metrics.Namespace)
	if cfg.Metrics.RuntimeCollectors {
		registry.RegisterCollector(metrics.NewGoCollector())
	}
	if cfg.Metrics.ProcessCollectors {
		registry.RegisterCollector(metrics.NewProcessCollector())
	}
	registry.RegisterCollector(metrics.NewBuildInfoCollector(version, commit, date))

	// Tracing
	tracer, err := tracing.NewManager(cfg.Tracing, version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Request timing for the daemon's own endpoints
	requestTiming, err := timing.NewMiddleware(registry, "http_request_duration",
		metrics.WithQuantiles(cfg.Metrics.DefaultQuantiles...),
		metrics.WithQuantileWindow(cfg.Metrics.QuantileWindow))
	if err != nil {
		return fmt.Errorf("failed to set up request timing: %w", err)
	}

	// Worker pool backing the stream broadcasts, bound so its lifecycle
	// counters surface through the registry
	pool, err := executor.NewWorkerPool("stream", 2, 16)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	binder := executor.NewBinder(registry)
	if err := binder.Bind("stream_pool", pool); err != nil {
		return fmt.Errorf("failed to bind worker pool: %w", err)
	}

	// Exposition server
	server := exposition.NewServer(exposition.ServerConfig{
		Address:        cfg.Server.Address,
		Port:           cfg.Server.Port,
		Path:           cfg.Server.Path,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		StreamInterval: cfg.Server.StreamInterval,
	}, registry,
		mux.MiddlewareFunc(tracer.Middleware()),
		mux.MiddlewareFunc(requestTiming.Handler),
	)
	server.UseTaskRunner(func(fn func()) error { return pool.Submit(fn) })

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()

		// Give server time to shutdown gracefully
		select {
		case <-time.After(10 * time.Second):
			logger.Warn().Msg("Graceful shutdown timeout, forcing exit")
		case err := <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("Server shutdown with error")
			}
		}

	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server error")
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Worker pool shutdown failed")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Tracing shutdown failed")
	}

	logger.Info().Msg("Server shutdown complete")
	return nil
}

func setupLogging(cfg config.LoggingConfig) (zerolog.Logger, error) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	// Setup output
	var output *os.File
	if cfg.OutputFile != "" {
		// Create log directory if it doesn't exist
		logDir := filepath.Dir(cfg.OutputFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
	} else {
		output = os.Stderr
	}

	// Setup logger based on format
	var logger zerolog.Logger
	switch cfg.Format {
	case "console":
		logger = log.Output(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339})
	case "text":
		logger = zerolog.New(output).With().Timestamp().Logger()
	case "json":
		fallthrough
	default:
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	log.Logger = logger
	return logger, nil
}

func newConfigCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	// Generate default config
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()

			if outputPath == "" {
				outputPath = "meterhubd.yaml"
			}

			if err := cfg.SaveConfig(outputPath); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("Generated default configuration: %s\n", outputPath)
			return nil
		},
	}
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")

	// Validate config
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Printf("Configuration is valid\n")
			fmt.Printf("Listen: %s:%d%s\n", cfg.Server.Address, cfg.Server.Port, cfg.Server.Path)
			fmt.Printf("Namespace: %s\n", cfg.Metrics.Namespace)
			fmt.Printf("Tracing: %v\n", cfg.Tracing.Enabled)

			return nil
		},
	}

	cmd.AddCommand(generateCmd)
	cmd.AddCommand(validateCmd)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MeterHub\n")
			fmt.Printf("Version: %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", date)
		},
	}
}
