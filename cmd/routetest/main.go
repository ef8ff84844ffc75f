package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/sitetrace/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/sitetrace/backend/internal/probe"
)

// errRoutesFailed signals a completed run with failing routes
var errRoutesFailed = errors.New("route test failed")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errRoutesFailed) {
			fmt.Fprintf(os.Stderr, "routetest: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg := probe.DefaultConfig()

	pflag.StringVarP(&cfg.BaseURL, "base-url", "u", cfg.BaseURL, "Base URL of the portal dev server")
	routesFile := pflag.StringP("routes", "r", "", "Route list (.yaml, .yml or .toml); built-in routes when empty")
	asJSON := pflag.Bool("json", false, "Print the report as JSON")
	traceOut := pflag.String("trace-out", "", "Write the recorded trace export to this file")
	pflag.StringVar(&cfg.TenantID, "tenant", "", "Tenant ID sent with every request")
	pflag.StringVar(&cfg.UserID, "user", "", "User ID sent with every request")
	pflag.IntVar(&cfg.Retries, "retries", cfg.Retries, "Retries per route on transport errors and 5xx")
	pflag.Float64Var(&cfg.RequestsPerSecond, "rps", 0, "Maximum requests per second (0 = unlimited)")
	pflag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	pflag.Uint32Var(&cfg.BreakerThreshold, "threshold", cfg.BreakerThreshold, "Consecutive transport failures before remaining routes are skipped")
	otel := pflag.Bool("otel", false, "Forward probe spans over OTLP")
	verbose := pflag.BoolP("verbose", "v", false, "Log each probe")
	pflag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = logging.FormatLine
	logCfg.Level = "warn"
	logCfg.OutputPaths = []string{"stderr"}
	if *verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	routes := probe.DefaultRoutes()
	if *routesFile != "" {
		if routes, err = probe.LoadRoutes(*routesFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []tracing.Option
	if *otel {
		fwd, err := tracing.NewOTLPForwarder(ctx, "sitetrace-routetest")
		if err != nil {
			return fmt.Errorf("failed to start otel forwarding: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := fwd.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to flush otel spans", zap.Error(err))
			}
		}()
		opts = append(opts, tracing.WithExporter(fwd))
	}
	tracer := tracing.New("sitetrace-routetest", logger.Logger, opts...)

	prober, err := probe.NewProber(cfg, tracer, logger.Logger)
	if err != nil {
		return err
	}

	report := prober.Run(ctx, routes)

	if *asJSON {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else if err := report.Print(os.Stdout); err != nil {
		return err
	}

	if *traceOut != "" {
		export, err := tracer.ExportTrace(report.TraceID)
		if err != nil {
			return err
		}
		data, err := export.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*traceOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	if !report.OK() {
		return errRoutesFailed
	}
	return nil
}
