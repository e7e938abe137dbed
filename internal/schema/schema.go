// Package schema provides the data structures for shopping lists and items.
//
// These mirror the server-shaped records delivered by the remote service,
// plus two ephemeral sync fields (PendingSync, PendingMutationID) that tag a
// record whose latest change has not yet been confirmed remotely.
package schema

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// TempIDPrefix marks locally generated identifiers for records created while
// offline. A record carrying a temp ID is superseded by the server-assigned
// record once the live subscription delivers it.
const TempIDPrefix = "temp_"

// List represents a shopping list shared within a household.
type List struct {
	// ===== Core Identification =====
	ID          string `json:"id"`
	HouseholdID string `json:"household_id"`

	// ===== Content =====
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`

	// ===== State =====
	Archived bool `json:"archived"`

	// ===== Timestamps (last-write-wins conflict resolution) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ===== Ephemeral sync state =====
	PendingSync       bool   `json:"is_pending_sync,omitempty"`
	PendingMutationID string `json:"pending_mutation_id,omitempty"`
}

// Validate checks if the List has valid field values.
func (l *List) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.HouseholdID == "" {
		return fmt.Errorf("household_id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(l.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(l.Name))
	}
	return nil
}

// Item represents a single entry on a shopping list.
type Item struct {
	// ===== Core Identification =====
	ID     string `json:"id"`
	ListID string `json:"list_id"`

	// ===== Content =====
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Note     string `json:"note,omitempty"`

	// ===== State =====
	Checked bool `json:"checked"`

	// ===== Timestamps (last-write-wins conflict resolution) =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ===== Ephemeral sync state =====
	PendingSync       bool   `json:"is_pending_sync,omitempty"`
	PendingMutationID string `json:"pending_mutation_id,omitempty"`
}

// Validate checks if the Item has valid field values.
func (i *Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.ListID == "" {
		return fmt.Errorf("list_id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(i.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(i.Name))
	}
	if i.Quantity < 0 {
		return fmt.Errorf("quantity must be non-negative (got %d)", i.Quantity)
	}
	return nil
}

// NewTempID generates a local placeholder identifier for a record created
// while offline. The reserved prefix keeps it distinguishable from
// server-assigned IDs.
func NewTempID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the
		// clock so ID generation cannot abort a write.
		return fmt.Sprintf("%s%d", TempIDPrefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%d_%s", TempIDPrefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// IsTempID reports whether id is a locally generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ItemsKey returns the cache collection key for a list's items.
func ItemsKey(listID string) string {
	return "items:" + listID
}

// ListsKey returns the cache collection key for a household's lists.
func ListsKey(householdID string) string {
	return "lists:" + householdID
}
