package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued mutations now",
	Long: `Run one drain pass over the mutation queue.

Mutations are executed strictly in the order they were enqueued. A mutation
that keeps failing is retried on later passes and dropped after three
attempts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		pending := e.Pending()
		if len(pending) == 0 {
			fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
			return nil
		}

		// Probe before draining: an unreachable backend would fail every
		// mutation and burn its retry budget for nothing.
		if state := e.CheckConnectivity(context.Background()); !state.Connected {
			fmt.Printf("%s Backend unreachable, keeping %d mutations queued\n",
				ui.RenderWarn("⚠"), len(pending))
			return nil
		}

		fmt.Printf("%s Syncing %d queued mutations...\n", ui.RenderAccent("🔄"), len(pending))
		start := time.Now()

		result := e.DrainNow(context.Background())
		elapsed := time.Since(start).Round(time.Millisecond)

		if result.Failed > 0 {
			fmt.Printf("%s Sync finished in %v: %d succeeded, %d dropped\n",
				ui.RenderWarn("⚠"), elapsed, result.Success, result.Failed)
		} else {
			fmt.Printf("%s Sync complete in %v: %d succeeded\n",
				ui.RenderPass("✓"), elapsed, result.Success)
		}
		if remaining := len(e.Pending()); remaining > 0 {
			fmt.Printf("   %d mutations still queued for retry\n", remaining)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
