// Command grocer is the offline-first shopping list sync engine CLI.
//
// It keeps a durable local copy of a household's shopping lists, queues
// writes made while offline, and replays them against the backend when
// connectivity returns.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/grocersync/grocer/internal/config"
	"github.com/grocersync/grocer/internal/engine"
	"github.com/grocersync/grocer/internal/kv"
	"github.com/grocersync/grocer/internal/netmon"
	"github.com/grocersync/grocer/internal/remote"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "grocer",
	Short: "Offline-first shopping list sync engine",
	Long: `Grocer keeps a durable local copy of your household's shopping lists.

Writes made while offline are queued durably and replayed automatically when
connectivity returns; reads are served from the local cache whenever the
backend is unreachable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.grocer.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger: rotated file output when log_file is
// configured, stderr otherwise.
func newLogger() *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	return log.New(out, "[grocer] ", log.LstdFlags)
}

// openEngine assembles the full engine from configuration. The caller owns
// the returned store and must close it.
func openEngine(logger *log.Logger) (*engine.Engine, *kv.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := kv.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	client := remote.NewClient(cfg.RemoteURL, cfg.AuthToken)
	feed := remote.NewFeed(cfg.RemoteURL, cfg.AuthToken, logger)
	monitor := netmon.New(netmon.Config{
		ProbeAddr:       cfg.ProbeAddr,
		PollInterval:    cfg.ProbeInterval,
		ReconnectWindow: cfg.ReconnectWindow,
		OverrideFile:    cfg.OverrideFile,
	}, logger)

	e := engine.New(store, client, feed, monitor, engine.Config{
		HouseholdID:   cfg.HouseholdID,
		RemoteTimeout: cfg.RemoteTimeout,
		Logger:        logger,
	})
	return e, store, nil
}
