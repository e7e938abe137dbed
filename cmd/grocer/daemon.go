package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine in the foreground",
	Long: `Run the sync engine until interrupted.

The daemon:
  1. Monitors backend connectivity
  2. Replays queued mutations when connectivity returns
  3. Keeps the local cache updated from the live subscription

Touch the configured override file to force offline mode while testing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := e.Start(ctx); err != nil {
			return fmt.Errorf("failed to start engine: %w", err)
		}

		fmt.Printf("%s grocer daemon running\n", ui.RenderAccent("▶"))
		fmt.Printf("   Store: %s\n", cfg.DBPath)
		fmt.Printf("   Backend: %s\n", cfg.RemoteURL)
		fmt.Printf("\nPress Ctrl+C to stop\n")

		<-ctx.Done()
		e.Stop()
		fmt.Printf("\n%s grocer daemon stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
