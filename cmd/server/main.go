package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"leadharvest/internal/ai"
	"leadharvest/internal/api"
	"leadharvest/internal/auth"
	"leadharvest/internal/browser"
	"leadharvest/internal/config"
	"leadharvest/internal/core"
	"leadharvest/internal/httpx"
	"leadharvest/internal/scraper"
	"leadharvest/internal/store"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations("internal/store/schema.sql"); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	go pruneSessions(context.Background(), st)

	httpOpts := []httpx.Option{}
	if cfg.Scrape.HTTPRetries > 0 {
		httpOpts = append(httpOpts, httpx.WithRetries(cfg.Scrape.HTTPRetries))
	}
	if cfg.Scrape.RetryDelaySeconds > 0 {
		httpOpts = append(httpOpts, httpx.WithRetryDelay(time.Duration(cfg.Scrape.RetryDelaySeconds)*time.Second))
	}
	if cfg.Scrape.TimeoutSeconds > 0 {
		httpOpts = append(httpOpts, httpx.WithTimeout(time.Duration(cfg.Scrape.TimeoutSeconds)*time.Second))
	}
	if cfg.Scrape.UserAgent != "" {
		httpOpts = append(httpOpts, httpx.WithUserAgent(cfg.Scrape.UserAgent))
	}

	deps := scraper.Deps{
		HTTP: httpx.NewClient(httpOpts...),
		BrowserConfig: browser.Config{
			NavTimeout:  time.Duration(cfg.Scrape.Browser.NavTimeoutSeconds) * time.Second,
			Settle:      time.Duration(cfg.Scrape.Browser.SettleSeconds) * time.Second,
			CardWait:    time.Duration(cfg.Scrape.Browser.CardWaitSeconds) * time.Second,
			UserDataDir: cfg.Scrape.Browser.UserDataDir,
		},
	}

	runner := core.NewRunner(deps, cfg.PageDelay())
	batch := core.NewBatch(runner, cfg.JobDelay())
	prep := core.NewPrepService(ai.NewClient())
	authSvc := auth.NewService(st)

	server := api.NewServer(st, authSvc, runner, batch, prep)

	addr := ":" + cfg.Server.Port
	slog.Info("Starting server", "addr", addr)
	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// pruneSessions sweeps expired sessions hourly so the table does not grow
// without bound.
func pruneSessions(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := st.DeleteExpiredSessions(ctx); err != nil {
				slog.Warn("Session cleanup failed", "error", err)
			} else if n > 0 {
				slog.Info("Expired sessions removed", "count", n)
			}
		}
	}
}
