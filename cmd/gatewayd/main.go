package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axelar-network/solana-gateway-core/pkg/config"
	"github.com/axelar-network/solana-gateway-core/pkg/eventlog"
	"github.com/axelar-network/solana-gateway-core/pkg/events"
	"github.com/axelar-network/solana-gateway-core/pkg/metrics"
	"github.com/axelar-network/solana-gateway-core/pkg/server"
	"github.com/axelar-network/solana-gateway-core/pkg/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var configPath = flag.String("config", "", "optional YAML config overlay path")
	flag.Parse()

	log.Printf("starting gatewayd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	log.Printf("store ready (in_memory=%v data_dir=%s)", cfg.InMemoryStore, cfg.DataDir)

	sink, closeSink := openSink(cfg)
	defer closeSink()

	metricsReg := metrics.NewRegistry()

	logger := log.New(log.Writer(), "[gatewayd] ", log.LstdFlags)
	srv := server.New(kv, sink, metricsReg, logger)

	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metricsReg.Gatherer(), promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		log.Printf("gateway API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway API server: %v", err)
		}
	}()
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down gatewayd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway API shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	log.Printf("gatewayd stopped")
}

func openStore(cfg *config.Config) (store.KV, error) {
	if cfg.InMemoryStore {
		return store.NewMemory(), nil
	}
	return store.OpenLevelDB("gatewayd", cfg.DataDir)
}

// openSink wires the Postgres event log when DATABASE_URL is set, running
// migrations before returning. An empty DatabaseURL falls back to
// events.NoopSink, matching pkg/session/pkg/approval/pkg/rotation's
// never-require-a-sink contract. The returned close func is always safe
// to defer, even on the no-op path.
func openSink(cfg *config.Config) (events.Sink, func()) {
	if cfg.DatabaseURL == "" {
		log.Printf("DATABASE_URL not set, event log disabled")
		return events.NoopSink{}, func() {}
	}

	client, err := eventlog.NewClient(cfg.DatabaseURL, cfg.DatabaseMaxOpenConns, cfg.DatabaseMaxIdleConns, cfg.DatabaseConnMaxLifetime)
	if err != nil {
		log.Printf("event log disabled, connecting to postgres failed: %v", err)
		return events.NoopSink{}, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.MigrateUp(ctx); err != nil {
		log.Printf("event log migrations failed: %v", err)
		client.Close()
		return events.NoopSink{}, func() {}
	}

	log.Printf("event log connected to postgres")
	return eventlog.NewPostgresSink(client), func() { client.Close() }
}
