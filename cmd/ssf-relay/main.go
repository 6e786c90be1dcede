package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/franksrp-ld/ssf/internal/config"
	"github.com/franksrp-ld/ssf/internal/delivery"
	"github.com/franksrp-ld/ssf/internal/handlers"
	"github.com/franksrp-ld/ssf/internal/logging"
	"github.com/franksrp-ld/ssf/internal/lookout"
	"github.com/franksrp-ld/ssf/internal/poller"
	"github.com/franksrp-ld/ssf/internal/risk"
	"github.com/franksrp-ld/ssf/internal/server"
	"github.com/franksrp-ld/ssf/internal/service"
	"github.com/franksrp-ld/ssf/internal/set"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logger.Info("starting ssf-relay",
		"port", cfg.Server.Port,
		"issuer", cfg.Transmitter.Issuer,
	)

	// Signing key material is mandatory: the relay cannot run in a
	// degraded mode without it.
	signer := set.NewSigner(set.Config{
		Issuer:   cfg.Transmitter.Issuer,
		Audience: cfg.Transmitter.OrgURL,
		KeyFile:  cfg.Transmitter.SigningKeyFile,
		KeyID:    cfg.Transmitter.SigningKeyID,
	})
	if err := signer.Load(); err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	store, closeStore, err := newRiskStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize risk store: %v", err)
	}
	defer closeStore()

	deliverer := delivery.New(cfg.Transmitter.OrgURL, cfg.Transmitter.DeliveryTimeout)
	relay := service.NewRelay(signer, deliverer, logger)

	upstream := lookout.New(lookout.Config{
		AppKey:         cfg.Lookout.AppKey,
		BaseURL:        cfg.Lookout.BaseURL,
		TokenURL:       cfg.Lookout.TokenURL,
		EnterpriseGUID: cfg.Lookout.EnterpriseGUID,
		Timeout:        cfg.Lookout.RequestTimeout,
	})

	devicePoller := poller.New(upstream, store, relay, logger, poller.Config{
		Enabled:      cfg.PollingEnabled(),
		Interval:     cfg.Lookout.PollInterval,
		SinceMinutes: cfg.Lookout.SinceMinutes,
	})

	handler := handlers.New(relay, devicePoller.Heartbeat(),
		cfg.Transmitter.Issuer, cfg.Transmitter.JWKSFile, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := devicePoller.Start(ctx); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}

	// Start server in goroutine
	go func() {
		logger.Info("ssf-relay listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	devicePoller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server stopped")
}

func newRiskStore(cfg *config.Config) (risk.Store, func(), error) {
	switch cfg.RiskStore.Backend {
	case "redis":
		store, err := risk.NewRedisStore(risk.RedisConfig{
			Addr:      cfg.RiskStore.RedisAddr,
			Password:  cfg.RiskStore.RedisPassword,
			DB:        cfg.RiskStore.RedisDB,
			KeyPrefix: cfg.RiskStore.RedisPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return risk.NewMemoryStore(), func() {}, nil
	}
}
