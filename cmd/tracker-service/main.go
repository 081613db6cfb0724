package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker-service/internal/backfill"
	"tracker-service/internal/cache"
	"tracker-service/internal/config"
	"tracker-service/internal/httpapi"
	"tracker-service/internal/ingest"
	"tracker-service/internal/notifier"
	"tracker-service/internal/realtime"
	"tracker-service/internal/store"
	"tracker-service/internal/tracker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := store.Connect(connectCtx, cfg.MongoURI)
	connectCancel()
	if err != nil {
		slog.Error("store connect failed", "error", err)
		os.Exit(1)
	}
	repo := store.NewRepo(client, cfg.MongoDB)

	var live *cache.LiveCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		live = cache.New(rdb)
	}

	hub := realtime.NewHub()
	svc := tracker.New(repo)
	srv := httpapi.NewServer(repo, svc, hub, liveReader(live))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv.Register(r)

	if live != nil {
		if seeded, err := backfill.RunOnce(ctx, repo, live, cfg.DisplayZone); err != nil {
			slog.Warn("live cache backfill failed", "error", err)
		} else {
			slog.Info("live cache backfilled", "trackers", seeded)
		}
	}

	var liveSink notifier.LiveSink
	if live != nil {
		liveSink = live
	}
	n := notifier.New(repo, hub, liveSink, cfg.DisplayZone)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		n.Run(ctx)
	}()

	if cfg.IngestEnabled && cfg.MQTTBrokerURL != "" {
		if _, err := ingest.Start(ctx, repo, cfg.MQTTBrokerURL); err != nil {
			slog.Error("telemetry ingest start failed", "error", err)
		}
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("tracker-service started", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	<-notifierDone
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
	_ = client.Disconnect(shutdownCtx)

	slog.Info("tracker-service stopped")
}

// liveReader keeps a nil *LiveCache from becoming a non-nil interface.
func liveReader(live *cache.LiveCache) httpapi.LiveReader {
	if live == nil {
		return nil
	}
	return live
}
