// Command imggateway serves image generation over HTTP at /imagePrompt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/arloliu/imgpool/gateway"
	"github.com/arloliu/imgpool/internal/appconfig"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	port := flag.Int("port", 0, "HTTP port (default 3000)")
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imggateway: %v\n", err)
		return 2
	}
	if *port > 0 {
		cfg.Gateway.Addr = fmt.Sprintf(":%d", *port)
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imggateway: %v\n", err)
		return 2
	}
	defer func() { _ = closeLog() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg, "imgpool")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := appconfig.BuildBackend(ctx, cfg.Backend, logger, collector)
	if err != nil {
		logger.Error("failed to create backend", "error", err)
		return 1
	}
	defer func() { _ = closeBackend() }()

	srv, err := gateway.New(&cfg.Gateway, backend,
		gateway.WithLogger(logger),
		gateway.WithMetrics(collector),
		gateway.WithGatherer(reg),
	)
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		return 1
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("gateway failed", "error", err)
			return 1
		}

		return 0
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway shutdown failed", "error", err)
		return 1
	}

	return 0
}
