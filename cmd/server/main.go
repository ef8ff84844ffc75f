package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sitetrace/backend/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sitetrace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override environment
	pflag.StringVarP(&cfg.Server.Port, "port", "p", cfg.Server.Port, "Server port")
	pflag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	pflag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (debug logs, gin debug)")
	pflag.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format: json, console or line")
	pflag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level")
	pflag.BoolVar(&cfg.OTel.Enabled, "otel", cfg.OTel.Enabled, "Forward finished spans over OTLP")
	pflag.Parse()

	if cfg.Logging.Development && !pflag.CommandLine.Changed("log-level") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return err
	}

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Close(closeCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
