// cmd/chartd serves chart sessions to the dashboard over WebSocket.
//
// Price history comes from the dashboard backend, with Redis as a
// cache-aside layer and SQLite as the archive used when the backend is
// unreachable. Every bar the backend returns is archived.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"marketchart/config"
	"marketchart/internal/chart"
	"marketchart/internal/gateway"
	"marketchart/internal/logger"
	"marketchart/internal/metrics"
	"marketchart/internal/model"
	"marketchart/internal/source"
	redisstore "marketchart/internal/store/redis"
	sqlitestore "marketchart/internal/store/sqlite"
	"marketchart/pkg/backend"
)

var processStart = time.Now()

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[chartd] starting...")

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("[chartd] %v", err)
	}
	cfg := config.Load()
	slogger := logger.Init("chartd", logger.ParseLevel(cfg.LogLevel))

	defaults, err := config.LoadDefaults(cfg.DefaultsPath)
	if err != nil {
		log.Fatalf("[chartd] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()

	// SQLite archive
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[chartd] create data dir: %v", err)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[chartd] sqlite writer: %v", err)
	}
	defer writer.Close()
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[chartd] sqlite reader: %v", err)
	}
	defer reader.Close()

	barCh := make(chan sqlitestore.BarBatch, 64)
	writerDone := make(chan struct{})
	go func() {
		writer.Run(ctx, barCh)
		close(writerDone)
	}()

	// Dashboard backend
	client := backend.New(backend.Config{
		BaseURL:    cfg.BackendURL,
		User:       cfg.BackendUser,
		Password:   cfg.BackendPassword,
		TOTPSecret: cfg.BackendTOTPSecret,
	})
	client.SessionExpiryHook = func() {
		log.Println("[chartd] backend session expired, logging in again")
	}
	if cfg.BackendUser != "" {
		if err := client.Login(ctx); err != nil {
			log.Printf("[chartd] WARNING: backend login failed, serving from archive: %v", err)
			health.SetBackendOK(false)
		}
	}

	chain := &source.Chain{
		Prices:      client,
		Events:      client,
		Archive:     reader,
		BarSink:     barCh,
		EventWriter: writer,
		Health:      health,
	}

	// Redis is optional: without it there is no price cache and layouts
	// are not persisted.
	var prices model.PriceSource = chain
	var layouts gateway.LayoutStore
	var rdb *goredis.Client
	if cfg.CacheEnabled {
		rdb, err = redisstore.NewClient(redisstore.ClientConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[chartd] WARNING: redis unavailable, running without cache: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			prices = redisstore.NewPriceCache(rdb, chain, cb, m)
			layouts = redisstore.NewLayoutStore(rdb)
		}
	}

	health.CheckSQLite(ctx, reader.DB())
	if rdb != nil {
		health.CheckRedis(ctx, rdb)
	}
	health.StartLivenessChecker(ctx, rdb, reader.DB(), 15*time.Second)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	hub := gateway.NewHub(gateway.HubConfig{
		Prices:   prices,
		Events:   chain,
		Layouts:  layouts,
		Defaults: defaults,
		Session: chart.SessionConfig{
			FetchTimeout:     cfg.FetchTimeout,
			ComparisonColors: defaults.ComparisonColors,
		},
		Metrics: m,
		Logger:  slogger,
	})

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, defaults, processStart)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[chartd] serving at http://localhost%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[chartd] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[chartd] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	hub.Close()
	metricsSrv.Stop(shutdownCtx)
	if cfg.BackendUser != "" {
		if err := client.Logout(shutdownCtx); err != nil {
			log.Printf("[chartd] backend logout: %v", err)
		}
	}

	// Stop the writer last so bars fetched by closing sessions are flushed.
	cancel()
	<-writerDone
	log.Println("[chartd] stopped")
}
