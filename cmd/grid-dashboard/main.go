package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"grid-dashboard/internal/config"
	"grid-dashboard/internal/metrics"
	"grid-dashboard/internal/realtime"
	"grid-dashboard/internal/restapi"
	"grid-dashboard/internal/server"
	"grid-dashboard/internal/sound"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("grid-dashboard starting",
		slog.Int("port", cfg.Port),
		slog.String("backend_ws_url", cfg.BackendWSURL),
		slog.String("backend_api_url", cfg.BackendAPIURL),
		slog.String("symbols", strings.Join(cfg.DefaultSymbols, ",")),
	)

	m := metrics.New()

	// Sounds / hashed URLs
	snd, err := sound.NewLibrary(cfg.Sounds)
	if err != nil {
		logger.Warn("sound library init", slog.String("err", err.Error()))
	}

	api := restapi.NewClient(cfg.BackendAPIURL, cfg.RequestTimeout(), m, logger)

	policy := realtime.Policy{
		BaseDelay:    cfg.ReconnectInterval(),
		MaxAttempts:  uint(cfg.MaxReconnectAttempts),
		PingInterval: cfg.PingInterval(),
	}
	rt := realtime.NewClient(realtime.Options{
		URL:              cfg.BackendWSURL,
		Policy:           policy,
		EventLogCapacity: cfg.EventLogCapacity,
		Symbols:          cfg.DefaultSymbols,
		Metrics:          m,
	}, logger)

	// HTTP server + WS hub
	srv := server.NewHTTPServer(cfg, rt, api, snd, m, logger)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Run(ctx)

	if err := rt.Start(ctx); err != nil {
		logger.Error("realtime client start", slog.String("err", err.Error()))
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	if err := rt.Close(); err != nil {
		logger.Warn("realtime client close", slog.String("err", err.Error()))
	}
	cancel()
	<-done
	logger.Info("bye")
}
