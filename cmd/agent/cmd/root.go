// Package cmd implements the agent's command-line surface: a single root
// command that loads a config file and runs the engine until it's signalled
// to stop.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/api"
	"github.com/mcastellin/uptime-gossip/internal/clusterstore"
	"github.com/mcastellin/uptime-gossip/internal/config"
	"github.com/mcastellin/uptime-gossip/internal/engine"
	"github.com/mcastellin/uptime-gossip/internal/node"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "uptime-gossip",
	Short: "A gossip-replicated uptime monitoring agent",
	Long: `uptime-gossip runs configured uptime probes, replicates their results
to peer agents via a gossip anti-entropy protocol, and optionally serves a
read-only dashboard over the merged cluster state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the agent's YAML config file (required)")
	rootCmd.MarkPersistentFlagRequired("config")
}

// Execute runs the root command, exiting the process with a non-zero code
// on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(path string) error {
	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()
	logger.Info("agent starting", zap.String("config", path))

	watcher, err := config.NewWatcher(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := watcher.Current()

	store, err := clusterstore.Open(cfg.State, node.NewID())
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	var server engine.Server
	if cfg.UI.Enabled {
		server = api.New(cfg.UI.Listen, store, api.Config{
			Title:   cfg.UI.Title,
			Notices: cfg.UI.Notices,
		}, logger)
	}

	e := engine.New(store, watcher, server, logger)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watcherCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	go watcher.Run(watcherCtx)

	if err := e.Run(ctx); err != nil {
		return fmt.Errorf("engine stopped: %w", err)
	}

	logger.Info("agent stopped cleanly")
	return nil
}
