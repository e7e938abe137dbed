package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline mutation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		pending := e.Pending()
		if len(pending) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return nil
		}

		fmt.Printf("\n%s %d queued mutations\n\n", ui.RenderAccent("📋"), len(pending))
		for i, m := range pending {
			argsJSON, err := json.Marshal(m.Args)
			if err != nil {
				argsJSON = []byte("{}")
			}
			retries := ""
			if m.RetryCount > 0 {
				retries = ui.RenderWarn(fmt.Sprintf(" (retried %d)", m.RetryCount))
			}
			fmt.Printf("%2d. %s %s%s\n", i+1, ui.RenderAccent(m.Kind.String()), argsJSON, retries)
			fmt.Printf("    %s enqueued %s\n", ui.RenderMuted(m.ID), m.EnqueuedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		return nil
	},
}

var queueFlushForce bool

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Discard all queued mutations",
	Long: `Discard every queued mutation without replaying it.

This permanently drops offline changes that have not reached the backend.
Optimistic entries in the local cache are removed along with the queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		pending := e.Pending()
		if len(pending) == 0 {
			fmt.Printf("%s Queue is already empty\n", ui.RenderPass("✓"))
			return nil
		}

		if !queueFlushForce {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Discard %d queued mutations?", len(pending))).
					Description("Offline changes that have not synced will be lost.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return fmt.Errorf("failed to read confirmation: %w", err)
			}
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}
		}

		n := e.FlushQueue()
		fmt.Printf("%s Discarded %d mutations\n", ui.RenderPass("✓"), n)
		return nil
	},
}

func init() {
	queueFlushCmd.Flags().BoolVarP(&queueFlushForce, "force", "f", false, "skip the confirmation prompt")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueFlushCmd)
	rootCmd.AddCommand(queueCmd)
}
