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

	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/auth"
	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/config"
	"github.com/mjohnson139/MobileApi-sub000/metrics"
	"github.com/mjohnson139/MobileApi-sub000/ratelimit"
	"github.com/mjohnson139/MobileApi-sub000/server"
	"github.com/mjohnson139/MobileApi-sub000/state"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *debugFlag {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	credentials, err := auth.NewDemoCredentials(cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("building credential table: %w", err)
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL())
	if err != nil {
		return fmt.Errorf("building token service: %w", err)
	}

	store := state.NewDemoStore()
	dispatcher := command.NewDispatcher(store, logger)

	srv := server.New(server.Options{
		Store:               store,
		Dispatcher:          dispatcher,
		Credentials:         credentials,
		Tokens:              tokens,
		Metrics:             metrics.NewCollector(),
		Limiter:             ratelimit.NewSlidingWindow(cfg.RateLimit.MaxRequests, cfg.RateLimitWindow()),
		Logger:              logger,
		Port:                cfg.Server.Port,
		CORSOrigin:          cfg.Server.CORSOrigin,
		RequestTimeout:      cfg.RequestTimeout(),
		MetricsPushInterval: cfg.MetricsPushInterval(),
	})

	// Shut down on SIGINT/SIGTERM.
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	startOpts := server.StartOptions{Addr: cfg.Addr()}
	if cfg.TLS.Enabled {
		startOpts.CertFile = cfg.TLS.CertFile
		startOpts.KeyFile = cfg.TLS.KeyFile
	}

	logger.Info("starting mobile API control server",
		zap.String("addr", cfg.Addr()),
		zap.Bool("tls", cfg.TLS.Enabled))

	err = srv.Start(startOpts)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
