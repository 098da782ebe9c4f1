// Command watchtower runs the central liveness monitor: it accepts
// signed heartbeats from registered parties, sweeps records against the
// recency thresholds, and serves signed log commitments for audit.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/watchberry/config"
	"github.com/blockberries/watchberry/internal/telemetry"
	"github.com/blockberries/watchberry/keystore"
	"github.com/blockberries/watchberry/registry"
	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/watchtower"
	"github.com/blockberries/watchberry/wtdb"
)

func main() {
	configPath := flag.String("config", "watchtower.toml", "path to TOML config file")
	genKey := flag.Bool("gen-key", false, "generate the watchtower key file and exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadWatchtowerConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if *genKey {
		if _, err := keystore.GenerateIdentity(cfg.KeyFile); err != nil {
			logger.Fatal("failed to generate key", zap.Error(err))
		}
		logger.Info("generated watchtower key", zap.String("path", cfg.KeyFile))
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("watchtower failed", zap.Error(err))
	}
}

func run(cfg config.WatchtowerConfig, logger *zap.Logger) error {
	identity, err := keystore.LoadIdentity(cfg.KeyFile)
	if err != nil {
		return err
	}
	roster, err := keystore.LoadRoster(cfg.RosterFile)
	if err != nil {
		return err
	}
	logger.Info("roster loaded", zap.Int("parties", roster.Size()))

	auditLog, err := wtdb.Open(cfg.DBPath, types.Epoch(cfg.Epoch))
	if err != nil {
		return err
	}
	defer auditLog.Close()

	reg, err := registry.New(registry.Config{
		Epoch:             types.Epoch(cfg.Epoch),
		SuspectAfter:      cfg.SuspectAfter.Duration,
		DeadAfter:         cfg.DeadAfter.Duration,
		SweepInterval:     cfg.SweepInterval.Duration,
		AllowProvisioning: cfg.AllowProvisioning,
		Roster:            roster,
		AuditLog:          auditLog,
		Signer:            identity,
		Logger:            logger.Named("registry"),
	})
	if err != nil {
		return err
	}

	if err := reg.StartSweeper(); err != nil {
		return err
	}
	defer reg.StopSweeper()

	server, err := watchtower.New(watchtower.Config{
		BindAddr: cfg.BindAddr,
		Registry: reg,
		Logger:   logger.Named("server"),
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	if cfg.AdminAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.MetricsHandler())
		admin := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin endpoint listening", zap.String("addr", cfg.AdminAddr))
			if err := admin.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("admin endpoint failed", zap.Error(err))
			}
		}()
		defer admin.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
	return nil
}
