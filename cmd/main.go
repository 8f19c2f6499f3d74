package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sungli01/stock-bot-sub000/internal/backtest"
	"github.com/sungli01/stock-bot-sub000/internal/config"
	"github.com/sungli01/stock-bot-sub000/internal/db"
	"github.com/sungli01/stock-bot-sub000/internal/feed"
	"github.com/sungli01/stock-bot-sub000/internal/live"
	"github.com/sungli01/stock-bot-sub000/internal/notifier"
	"github.com/sungli01/stock-bot-sub000/internal/utils"
)

func main() {
	utils.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Starting stock bot in mode:", cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	storage, err := newStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer storage.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	var n notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		n = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotificationRetries, cfg.NotificationDelay)
	}

	switch cfg.Mode {
	case "backtest":
		if _, err := backtest.Run(ctx, cfg, storage, storage); err != nil {
			log.Fatalf("Backtest failed: %v", err)
		}
	case "live":
		runner := live.NewRunner(cfg, feed.NewWSFeed(cfg.FeedURL), storage, n)
		if err := runner.Run(ctx); err != nil {
			log.Fatalf("Live run failed: %v", err)
		}
	default:
		log.Fatalf("Unsupported mode: %s", cfg.Mode)
	}

	log.Println("Shutdown complete")
}

// newStorage picks Postgres when a connection string is configured and
// falls back to the in-memory store otherwise.
func newStorage(cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr != "" {
		pg, err := db.NewPostgres(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to Postgres")
		return pg, nil
	}
	log.Println("No DB configured, using in-memory storage")
	return db.NewMemory(), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server stopped: %v", err)
	}
}
