package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lasersell-stream/internal/config"
	"lasersell-stream/internal/logging"
	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/mock"
	"lasersell-stream/internal/proto"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional .env file with deployment overrides")
	fixturePath := flag.String("fixture", "", "json-lines file of server events to replay (overrides mock.fixture)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	path := cfg.Mock.Fixture
	if *fixturePath != "" {
		path = *fixturePath
	}
	var fixture []proto.ServerMessage
	if path != "" {
		fixture, err = mock.LoadFixture(path)
		if err != nil {
			log.Error("failed to load fixture", zap.String("path", path), zap.Error(err))
			os.Exit(1)
		}
		log.Info("fixture loaded", zap.String("path", path), zap.Int("events", len(fixture)))
	}

	m := metrics.NewNoop()
	mux := http.NewServeMux()
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux.Handle("/metrics", prom.Handler())
	}
	mux.Handle("/", mock.NewServer(cfg.Mock.Limits.Limits(), fixture, cfg.Mock.FixtureInterval, cfg.Mock.SessionID, log, m))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: cfg.Mock.Addr, Handler: mux}
	go func() {
		log.Info("mock stream listening", zap.String("addr", cfg.Mock.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("mock server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("mock server shutdown", zap.Error(err))
	}
	log.Info("mock stream stopped")
}
