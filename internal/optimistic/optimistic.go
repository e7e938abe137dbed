// Package optimistic applies a queued mutation's intended effect to cached
// collections so the UI reflects the change before the network round-trip.
//
// All transforms are pure: they return a new collection and never mutate
// their input. Affected records are tagged pending-sync with the queued
// mutation's ID as a correlation handle. Records created offline get a
// temporary identifier (reserved "temp_" prefix) so they can be displayed
// until the server assigns a real one; once the queue empties they are
// removed, superseded by the record arriving through the live subscription.
package optimistic

import (
	"time"

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/schema"
)

// ApplyItems returns the item collection with the mutation's intended
// effect applied. Mutations that target lists leave the collection
// unchanged.
func ApplyItems(items []schema.Item, m queue.Mutation) []schema.Item {
	switch args := m.Args.(type) {
	case queue.CreateItemArgs:
		now := time.Now()
		out := cloneItems(items)
		return append(out, schema.Item{
			ID:                schema.NewTempID(),
			ListID:            args.ListID,
			Name:              args.Name,
			Quantity:          args.Quantity,
			Note:              args.Note,
			CreatedAt:         now,
			UpdatedAt:         now,
			PendingSync:       true,
			PendingMutationID: m.ID,
		})

	case queue.ToggleItemArgs:
		out := cloneItems(items)
		for i := range out {
			if out[i].ID == args.ItemID {
				out[i].Checked = args.Checked
				out[i].UpdatedAt = time.Now()
				out[i].PendingSync = true
				out[i].PendingMutationID = m.ID
			}
		}
		return out

	case queue.UpdateItemArgs:
		out := cloneItems(items)
		for i := range out {
			if out[i].ID == args.ItemID {
				out[i].Name = args.Name
				out[i].Quantity = args.Quantity
				out[i].Note = args.Note
				out[i].UpdatedAt = time.Now()
				out[i].PendingSync = true
				out[i].PendingMutationID = m.ID
			}
		}
		return out

	case queue.DeleteItemArgs:
		out := make([]schema.Item, 0, len(items))
		for _, item := range items {
			if item.ID != args.ItemID {
				out = append(out, item)
			}
		}
		return out

	default:
		return items
	}
}

// ApplyLists returns the list collection with the mutation's intended
// effect applied. Mutations that target items leave the collection
// unchanged.
func ApplyLists(lists []schema.List, m queue.Mutation) []schema.List {
	switch args := m.Args.(type) {
	case queue.CreateListArgs:
		now := time.Now()
		out := cloneLists(lists)
		return append(out, schema.List{
			ID:                schema.NewTempID(),
			HouseholdID:       args.HouseholdID,
			Name:              args.Name,
			Color:             args.Color,
			CreatedAt:         now,
			UpdatedAt:         now,
			PendingSync:       true,
			PendingMutationID: m.ID,
		})

	case queue.ArchiveListArgs:
		out := cloneLists(lists)
		for i := range out {
			if out[i].ID == args.ListID {
				out[i].Archived = true
				out[i].UpdatedAt = time.Now()
				out[i].PendingSync = true
				out[i].PendingMutationID = m.ID
			}
		}
		return out

	case queue.UpdateListArgs:
		out := cloneLists(lists)
		for i := range out {
			if out[i].ID == args.ListID {
				out[i].Name = args.Name
				out[i].Color = args.Color
				out[i].UpdatedAt = time.Now()
				out[i].PendingSync = true
				out[i].PendingMutationID = m.ID
			}
		}
		return out

	default:
		return lists
	}
}

// ClearPendingItems strips pending-sync tags from all items and drops any
// record still carrying a temporary identifier. Called once the queue has
// emptied entirely; temp records are superseded by the real records arriving
// through the live subscription.
func ClearPendingItems(items []schema.Item) []schema.Item {
	out := make([]schema.Item, 0, len(items))
	for _, item := range items {
		if schema.IsTempID(item.ID) {
			continue
		}
		item.PendingSync = false
		item.PendingMutationID = ""
		out = append(out, item)
	}
	return out
}

// ClearPendingLists strips pending-sync tags from all lists and drops any
// record still carrying a temporary identifier.
func ClearPendingLists(lists []schema.List) []schema.List {
	out := make([]schema.List, 0, len(lists))
	for _, list := range lists {
		if schema.IsTempID(list.ID) {
			continue
		}
		list.PendingSync = false
		list.PendingMutationID = ""
		out = append(out, list)
	}
	return out
}

func cloneItems(items []schema.Item) []schema.Item {
	return append([]schema.Item(nil), items...)
}

func cloneLists(lists []schema.List) []schema.List {
	return append([]schema.List(nil), lists...)
}
