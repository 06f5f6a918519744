package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/moonwatch/signalrun/internal/config"
	"github.com/moonwatch/signalrun/internal/deadtoken"
	"github.com/moonwatch/signalrun/internal/httpapi"
	"github.com/moonwatch/signalrun/internal/metrics"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/providers"
	"github.com/moonwatch/signalrun/internal/queue"
	"github.com/moonwatch/signalrun/internal/reputation"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve /health, /metrics and /status over the data directory without ingesting",
		RunE:  runMonitor,
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repDir := filepath.Join(cfg.Data.Dir, "reputation")
	store, err := outcome.NewStore(repDir)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	rep, err := reputation.NewEngine(filepath.Join(repDir, "channels.json"), cfg.Reputation.TDUpdate)
	if err != nil {
		return fmt.Errorf("open reputation store: %w", err)
	}
	blacklist, err := deadtoken.NewBlacklist(filepath.Join(cfg.Data.Dir, "dead_tokens_blacklist.json"))
	if err != nil {
		return fmt.Errorf("open blacklist: %w", err)
	}

	server := httpapi.New(cfg.Monitor.ListenAddr, &statusSource{
		queue:     queue.New(0, nil),
		engine:    providers.NewEngine(providers.EngineDeps{}),
		store:     store,
		rep:       rep,
		blacklist: blacklist,
	}, metrics.New())
	server.Start()
	log.Info().Str("addr", cfg.Monitor.ListenAddr).Msg("monitor-only mode")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
