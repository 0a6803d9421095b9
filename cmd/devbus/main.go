// Command devbus runs a local NATS server with JetStream for development.
//
// It listens on 127.0.0.1:4223 by default, the address imgworker and imgctl use
// when none is configured.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Listen host")
	port := flag.Int("port", 4223, "Listen port")
	storeDir := flag.String("store_dir", "", "JetStream storage directory (default: a temporary directory removed on exit)")
	verbose := flag.Bool("v", false, "Log server activity")
	flag.Parse()

	dir := *storeDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("imgpool-devbus-%d", os.Getpid()))
		defer func() { _ = os.RemoveAll(dir) }()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "devbus: create store dir: %v\n", err)
		os.Exit(1)
	}

	opts := &server.Options{
		ServerName: "imgpool-devbus",
		Host:       *host,
		Port:       *port,
		JetStream:  true,
		StoreDir:   dir,
		NoLog:      !*verbose,
		NoSigs:     true,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devbus: %v\n", err)
		os.Exit(1) //nolint:gocritic // temp dir is best effort
	}
	if *verbose {
		srv.ConfigureLogger()
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		fmt.Fprintln(os.Stderr, "devbus: server not ready within timeout")
		os.Exit(1)
	}

	fmt.Printf("NATS_URL=%s\n", srv.ClientURL())
	fmt.Fprintf(os.Stderr, "devbus listening on %s:%d (JetStream store %s)\n", *host, *port, dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stderr, "devbus shutting down...")
	srv.Shutdown()
	srv.WaitForShutdown()
}
