package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/ui"
)

var (
	addQuantity int
	addNote     string
)

var addCmd = &cobra.Command{
	Use:   "add <list-id> <name>",
	Short: "Add an item to a list",
	Long: `Add an item to a list.

Online, the item is created on the backend immediately. Offline, the write
is queued and the item appears locally with a temporary ID until it syncs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := e.CreateItem(context.Background(), queue.CreateItemArgs{
			ListID:   args[0],
			Name:     args[1],
			Quantity: addQuantity,
			Note:     addNote,
		}); err != nil {
			return err
		}

		if pending := len(e.Pending()); pending > 0 {
			fmt.Printf("%s Added %q (queued, %d pending)\n", ui.RenderWarn("*"), args[1], pending)
		} else {
			fmt.Printf("%s Added %q\n", ui.RenderPass("✓"), args[1])
		}
		return nil
	},
}

var checkValue bool

var checkCmd = &cobra.Command{
	Use:   "check <list-id> <item-id>",
	Short: "Check or uncheck an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := e.ToggleItem(context.Background(), queue.ToggleItemArgs{
			ListID:  args[0],
			ItemID:  args[1],
			Checked: checkValue,
		}); err != nil {
			return err
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), args[1])
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <list-id> <item-id>",
	Short: "Remove an item from a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := e.DeleteItem(context.Background(), queue.DeleteItemArgs{
			ListID: args[0],
			ItemID: args[1],
		}); err != nil {
			return err
		}
		fmt.Printf("%s Removed %s\n", ui.RenderPass("✓"), args[1])
		return nil
	},
}

func init() {
	addCmd.Flags().IntVarP(&addQuantity, "quantity", "q", 1, "item quantity")
	addCmd.Flags().StringVarP(&addNote, "note", "n", "", "optional note")
	checkCmd.Flags().BoolVar(&checkValue, "checked", true, "checked state to set")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(removeCmd)
}
