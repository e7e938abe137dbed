package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grocersync/grocer/internal/ui"
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the household's shopping lists",
	Long: `Show the household's shopping lists.

Online, the backend is fetched and the cache refreshed; offline, the last
cached copy is shown regardless of age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		lists, err := e.Lists(context.Background())
		if err != nil {
			return err
		}
		if len(lists) == 0 {
			fmt.Println("No lists")
			return nil
		}

		fmt.Println()
		for _, l := range lists {
			marker := " "
			if l.PendingSync {
				marker = ui.RenderWarn("*")
			}
			name := l.Name
			if l.Archived {
				name = ui.RenderMuted(name + " (archived)")
			}
			fmt.Printf("%s %s  %s\n", marker, name, ui.RenderMuted(l.ID))
		}
		fmt.Println()
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items <list-id>",
	Short: "Show the items on a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		e, store, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := e.Items(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No items")
			return nil
		}

		fmt.Println()
		for _, item := range items {
			box := "[ ]"
			if item.Checked {
				box = ui.RenderPass("[x]")
			}
			line := item.Name
			if item.Quantity > 1 {
				line = fmt.Sprintf("%s ×%d", line, item.Quantity)
			}
			if item.Note != "" {
				line = fmt.Sprintf("%s %s", line, ui.RenderMuted("("+item.Note+")"))
			}
			if item.PendingSync {
				line += ui.RenderWarn(" *")
			}
			fmt.Printf("%s %s\n", box, line)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(itemsCmd)
}
