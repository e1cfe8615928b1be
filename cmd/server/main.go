package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playback-session/internal/backend"
	"playback-session/internal/platform/config"
	"playback-session/internal/platform/logger"
	"playback-session/internal/platform/metrics"
	"playback-session/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	backendURL := config.GetEnv("BACKEND_BASE_URL", "http://localhost:9090")
	backendTimeout := time.Duration(config.GetEnvInt("BACKEND_TIMEOUT_SECONDS", 10)) * time.Second

	cfg := session.DefaultConfig()
	cfg.WriteInterval = time.Duration(config.GetEnvInt("POSITION_WRITE_INTERVAL_SECONDS", 5)) * time.Second
	cfg.MinProgress = config.GetEnvFloat("MIN_PROGRESS_RATIO", cfg.MinProgress)
	cfg.SlowResolveAfter = time.Duration(config.GetEnvInt("RESOLVE_SLOW_AFTER_SECONDS", 3)) * time.Second

	log := logger.New(logLevel, logFormat)

	api := backend.New(backendURL, backendTimeout, log)
	met := metrics.New()
	mgr := session.NewManager(api, log, met, cfg)
	h := session.NewHandler(mgr, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(httprate.LimitByIP(300, time.Minute))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(mgr.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"backend_base_url", backendURL,
		"position_write_interval", cfg.WriteInterval.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	mgr.DisposeAll()
	log.Info("server stopped")
}
