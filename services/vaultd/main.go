package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	genesisconfig "stakevault/config"
	"stakevault/observability/logging"
	telemetry "stakevault/observability/otel"
	"stakevault/services/vaultd/config"
	"stakevault/services/vaultd/journal"
	"stakevault/services/vaultd/server"
	vaultstate "stakevault/state/vault"
	"stakevault/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/vaultd/config.yaml", "path to vaultd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser := logging.SetupWithConfig(logging.Config{
		Service:    "vaultd",
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: "vaultd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	store, err := openStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := applyGenesis(store, cfg.GenesisFile); err != nil {
		log.Fatalf("apply genesis: %v", err)
	}

	events, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer func() { _ = events.Close() }()

	service, err := server.New(server.Config{
		Store:   store,
		Journal: events,
		Logger:  logger,
		Auth: server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           service.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "address", cfg.ListenAddress)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err.Error())
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}
}

func openStore(dataDir string) (*vaultstate.Store, error) {
	var db storage.Database
	if dataDir == "" {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(dataDir)
		if err != nil {
			return nil, err
		}
		db = ldb
	}
	return vaultstate.NewStore(db)
}

// applyGenesis seeds an empty store. A store that already holds a vault is
// left untouched.
func applyGenesis(store *vaultstate.Store, path string) error {
	raw, err := genesisconfig.LoadGenesis(path)
	if err != nil {
		return err
	}
	genesis, err := raw.ToVault(uint64(time.Now().Unix()))
	if err != nil {
		return err
	}
	err = store.Update(func(tx *vaultstate.Tx) error {
		return vaultstate.ApplyGenesis(tx, genesis)
	})
	if errors.Is(err, vaultstate.ErrGenesisApplied) {
		return nil
	}
	return err
}
