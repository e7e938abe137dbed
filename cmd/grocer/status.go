package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync and connectivity status",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		snap := e.Status()

		fmt.Printf("\n%s Grocer Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Store: %s\n", cfg.DBPath)
		fmt.Printf("Backend: %s\n", cfg.RemoteURL)
		fmt.Printf("Sync: %s\n", ui.RenderStatus(snap.Status))
		fmt.Printf("Queued mutations: %d\n", snap.PendingCount)
		if snap.LastResult != nil {
			fmt.Printf("Last pass: %d succeeded, %d dropped\n",
				snap.LastResult.Success, snap.LastResult.Failed)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
