// Command party runs one monitored party's heartbeat agent: it sends
// signed, strictly-sequenced heartbeats to the watchtower and persists
// acknowledged progress across restarts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/blockberries/watchberry/agent"
	"github.com/blockberries/watchberry/config"
	"github.com/blockberries/watchberry/keystore"
	"github.com/blockberries/watchberry/state"
	"github.com/blockberries/watchberry/types"
)

func main() {
	configPath := flag.String("config", "party.toml", "path to TOML config file")
	genKey := flag.Bool("gen-key", false, "generate the party key file and exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadPartyConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if *genKey {
		id, err := keystore.GenerateIdentity(cfg.KeyFile)
		if err != nil {
			logger.Fatal("failed to generate key", zap.Error(err))
		}
		logger.Info("generated party key",
			zap.String("path", cfg.KeyFile),
			zap.String("pub_key", fmt.Sprintf("%x", id.PubKey().Data)))
		return
	}

	identity, err := keystore.LoadIdentity(cfg.KeyFile)
	if err != nil {
		logger.Fatal("failed to load key", zap.Error(err))
	}

	a, err := agent.New(agent.Config{
		WatchtowerAddr: cfg.WatchtowerAddr,
		Epoch:          types.Epoch(cfg.Epoch),
		PartyID:        types.PartyID(cfg.PartyID),
		Interval:       cfg.Interval.Duration,
		Timeout:        cfg.Timeout.Duration,
		Identity:       identity,
		Store:          state.NewStore(cfg.StateFile),
		Logger:         logger.Named("agent"),
	})
	if err != nil {
		logger.Fatal("failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		logger.Fatal("agent failed", zap.Error(err))
	}
}
