// Package main implements the listing notifier service: a webhook-driven
// configuration surface plus per-tenant polling loops that push a LINE
// message when the newest listing on a monitored page changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"listing-notifier/extract"
	"listing-notifier/fetch"
	"listing-notifier/monitor"
	"listing-notifier/notify"
	"listing-notifier/server"
	"listing-notifier/store"
)

const (
	fetchTimeout  = 10 * time.Second
	notifyTimeout = 15 * time.Second

	defaultBaseOrigin = "https://jmty.jp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage backend: a Cloud Storage bucket, or a local directory for
	// development (the default when no bucket is configured).
	bucket := os.Getenv("STORAGE_BUCKET")
	localPath := os.Getenv("LOCAL_STORAGE")
	if bucket == "" && localPath == "" {
		localPath = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local storage", "path", localPath)
	}

	var gcsClient *gcs.Client
	if localPath != "" {
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			return fmt.Errorf("create local storage directory: %w", err)
		}
	} else {
		var err error
		gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init storage client: %w", err)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	// Notification transport: the LINE Messaging API, or a mock when no
	// channel token is configured.
	var provider notify.Provider
	if token := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); token != "" {
		provider = notify.NewLineProvider(token, &http.Client{Timeout: notifyTimeout}, logger)
	} else {
		logger.Info("Mock notification mode enabled (no LINE_CHANNEL_ACCESS_TOKEN)")
		provider = notify.NewMockProvider(logger)
	}
	sender := notify.New(provider, os.Getenv("OPERATOR_ID"), logger)

	st := store.New(gcsClient, bucket, localPath, sender.Alert, logger)

	base, err := url.Parse(envOrDefault("EXTRACT_BASE_URL", defaultBaseOrigin))
	if err != nil {
		return fmt.Errorf("parse EXTRACT_BASE_URL: %w", err)
	}
	extractor := extract.New(envOrDefault("EXTRACT_SELECTOR", extract.DefaultQuery), base, logger)

	fetcher := fetch.New(&http.Client{Timeout: fetchTimeout}, logger)

	mon := monitor.New(monitor.Config{
		Fetcher:       fetcher,
		Extractor:     extractor,
		Notifier:      sender,
		Store:         st,
		Logger:        logger,
		ReconcileTick: reconcileTick(logger),
		NotifyOnFirst: envBool("NOTIFY_ON_FIRST", true),
	})

	srv := &http.Server{
		Addr:              ":" + envOrDefault("PORT", "8080"),
		Handler:           server.New(st, sender, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return mon.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func reconcileTick(logger *slog.Logger) time.Duration {
	raw := os.Getenv("RECONCILE_INTERVAL")
	if raw == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("Invalid RECONCILE_INTERVAL, using default", "value", raw)
		return time.Minute
	}
	return d
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
