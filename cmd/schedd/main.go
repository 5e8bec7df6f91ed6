// schedd hosts the scheduling core behind the REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/kernel"
	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/internal/server"
	"github.com/me/gosched/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text, json (overrides config)")
	dbPath := flag.String("db", "", "Accounting database path, :memory: for ephemeral (overrides config)")
	noStore := flag.Bool("no-store", false, "Disable accounting persistence entirely")
	tickInterval := flag.Duration("tick-interval", 0, "Advance the scheduler clock on this wall-clock period (0 = only via API)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Open store and run migrations.
	var st store.Store
	if !*noStore {
		sqlStore, err := store.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		if err := sqlStore.Migrate(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
			os.Exit(1)
		}
		logger.Info("accounting database ready", "path", cfg.DBPath)
		st = sqlStore
	}

	k, err := kernel.New(&cfg, st, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init kernel: %v\n", err)
		os.Exit(1)
	}
	logger.Info("kernel ready",
		"algorithm", cfg.Algorithm, "cpus", cfg.CPUCount, "quantum", cfg.DefaultQuantum)

	srv := server.New(k, logger)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional wall-clock tick driver. Without it, time moves only when
	// a client posts to /scheduler/tick.
	if *tickInterval > 0 {
		go func() {
			ticker := time.NewTicker(*tickInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					k.Clock().Advance(1)
				}
			}
		}()
		logger.Info("tick driver started", "interval", *tickInterval)
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
