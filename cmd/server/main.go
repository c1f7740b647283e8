// Command server runs the Warlock game server: a websocket endpoint for
// game traffic, a health probe and a Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/auth"
	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/config"
	"github.com/warlockgg/warlock-server/internal/observability"
	"github.com/warlockgg/warlock-server/internal/room"
	"github.com/warlockgg/warlock-server/internal/socket"
	"github.com/warlockgg/warlock-server/internal/store"
	"github.com/warlockgg/warlock-server/internal/taskq"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Error("configuration invalid", zap.Error(err))
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Error("logger setup failed", zap.Error(err))
		return err
	}
	defer logger.Sync()

	tracer, shutdownTracing, err := observability.SetupTracing(cfg.TracingEnabled)
	if err != nil {
		logger.Error("tracing setup failed", zap.Error(err))
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	snapshots, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("snapshot store setup failed", zap.Error(err))
		return err
	}
	defer snapshots.Close()

	archive, err := taskq.NewPublisher(cfg.AMQPURL, cfg.ArchiveQueue, logger)
	if err != nil {
		logger.Error("archive queue setup failed", zap.Error(err))
		return err
	}
	defer archive.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := room.NewManager(ctx, room.Deps{
		Logger:    logger,
		Metrics:   metrics,
		Config:    cfg,
		Catalog:   catalog.MustStatic(),
		Snapshots: snapshots,
		Archive:   archive,
		Sessions:  auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL),
		Tracer:    tracer,
	}, time.Now().UnixNano())
	defer manager.Close()

	hub := socket.NewHub(logger, metrics)
	router := socket.NewRouter(hub, manager, cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		socket.ServeWS(hub, router, w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}

// openStore picks MySQL persistence when a DSN is configured, the
// in-process store otherwise.
func openStore(cfg config.Config, logger *zap.Logger) (store.SnapshotStore, error) {
	if cfg.MySQLDSN == "" {
		logger.Info("snapshots in memory only")
		return store.NewMemory(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("snapshots in mysql")
	s, err := store.OpenMySQL(ctx, cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}
