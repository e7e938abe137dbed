// Package remote defines the boundary to the backend data service and
// provides its HTTP and websocket client implementations.
//
// The sync engine is a client of whatever protocol the backend speaks; this
// package only fixes the call contract: one typed call per mutation kind,
// each completing or returning an error, plus fetch calls and a
// subscription feed that delivers authoritative collection snapshots.
package remote

import (
	"context"

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/schema"
)

// Service is the typed surface of the remote data service.
//
// Mutation calls either complete or return an error; the orchestrator
// treats any error as a transient failure subject to the retry policy.
// Fetch calls return the authoritative current collection state, which is
// what ultimately supersedes optimistic entries.
type Service interface {
	// CreateItem adds a new item to a list.
	CreateItem(ctx context.Context, args queue.CreateItemArgs) error

	// ToggleItem flips an item's checked state.
	ToggleItem(ctx context.Context, args queue.ToggleItemArgs) error

	// UpdateItem rewrites an item's content fields.
	UpdateItem(ctx context.Context, args queue.UpdateItemArgs) error

	// DeleteItem removes an item from its list.
	DeleteItem(ctx context.Context, args queue.DeleteItemArgs) error

	// CreateList creates a new list in a household.
	CreateList(ctx context.Context, args queue.CreateListArgs) error

	// ArchiveList archives a list.
	ArchiveList(ctx context.Context, args queue.ArchiveListArgs) error

	// UpdateList rewrites a list's content fields.
	UpdateList(ctx context.Context, args queue.UpdateListArgs) error

	// FetchItems returns the authoritative items for a list, in server order.
	FetchItems(ctx context.Context, listID string) ([]schema.Item, error)

	// FetchLists returns the authoritative lists for a household, in server order.
	FetchLists(ctx context.Context, householdID string) ([]schema.List, error)
}
