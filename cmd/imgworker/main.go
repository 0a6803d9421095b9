// Command imgworker runs one member of the image generation pool.
//
// The worker joins queue group "workers" on subject "img_gen" and answers every
// job with exactly one reply. SIGINT, SIGTERM or, with --interactive, the Enter
// key start a graceful drain. The process exits 1 when it cannot reach the bus,
// loses the bus while running or fails to drain in time.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/arloliu/imgpool"
	"github.com/arloliu/imgpool/internal/appconfig"
	"github.com/arloliu/imgpool/internal/bus"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	natsAddr := flag.String("nats_server_address", "", "NATS server address (default "+appconfig.DefaultNATSURL+")")
	configPath := flag.String("config", "", "Path to YAML configuration file")
	interactive := flag.Bool("interactive", false, "Drain and exit when Enter is pressed")
	metricsAddr := flag.String("metrics_addr", "", "Serve /metrics and /healthz on this address")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imgworker: %v\n", err)
		return 2
	}
	if *natsAddr != "" {
		cfg.NATS.URL = *natsAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imgworker: %v\n", err)
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
	defer func() {
		if err := closeBackend(); err != nil {
			logger.Warn("failed to release backend", "error", err)
		}
	}()

	nc, err := bus.Dial(cfg.NATS.URL, cfg.NATS.DialOptions(cfg.Worker.DrainTimeout))
	if err != nil {
		logger.Error("failed to connect to NATS", "url", cfg.NATS.URL, "error", err)
		return 1
	}

	worker, err := imgpool.NewWorker(&cfg.Worker, nc, backend,
		imgpool.WithLogger(logger),
		imgpool.WithMetrics(collector),
	)
	if err != nil {
		nc.Close()
		logger.Error("failed to create worker", "error", err)
		return 1
	}

	logger.Info("worker spun up", "worker_id", worker.ID(), "nats", cfg.NATS.URL)
	if err := worker.Start(ctx); err != nil {
		nc.Close()
		logger.Error("failed to start worker", "error", err)
		return 1
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg, func() bool {
			return worker.State() == imgpool.StateRunning
		}, logger)
		srv.Start()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	enter := make(chan struct{})
	if *interactive {
		fmt.Fprintln(os.Stderr, "Press [Enter] to close worker and exit")
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()
	}

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-enter:
		logger.Info("enter pressed")
	case <-worker.Done():
		logger.Error("worker closed unexpectedly")
		code = 1
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.DrainTimeout)
	defer cancel()

	if err := worker.Stop(stopCtx); err != nil {
		logger.Error("worker did not drain cleanly", "error", err)
		return 1
	}

	return code
}
