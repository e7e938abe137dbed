// Package cache provides the per-collection entity cache over the durable
// key-value store.
//
// Each logical collection (e.g. "items:<listID>", "lists:<householdID>") is
// stored wholesale under a data key with a companion freshness timestamp.
// Collections are replaced, never merged: every successful remote fetch
// overwrites the previous payload entirely.
//
// Read policy is chosen by the caller through maxAge: offline callers pass
// NoExpiry so the last cached payload is always served regardless of age;
// online callers use the cache purely as a placeholder while a fresh fetch
// is outstanding.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/grocersync/grocer/internal/kv"
)

// NoExpiry disables the freshness check in ReadIfFresh.
// Used for offline reads, where any cached payload beats no payload.
const NoExpiry time.Duration = 0

// Manager stores and retrieves cached collections with TTL-based freshness.
type Manager struct {
	store *kv.Store
}

// New creates a cache manager over the given store.
func New(store *kv.Store) *Manager {
	return &Manager{store: store}
}

// dataKey returns the KV key holding a collection's payload.
// A collection key "items:L1" maps to "cache:items:L1".
func dataKey(collectionKey string) string {
	return "cache:" + collectionKey
}

// timestampKey returns the KV key holding a collection's fetch timestamp.
// A collection key "items:L1" maps to "cache:items:timestamp:L1".
func timestampKey(collectionKey string) string {
	kind, id, found := strings.Cut(collectionKey, ":")
	if !found {
		return "cache:" + collectionKey + ":timestamp"
	}
	return fmt.Sprintf("cache:%s:timestamp:%s", kind, id)
}

// Put stores the payload under the collection key along with the current
// timestamp. The previous payload, if any, is replaced wholesale.
func (m *Manager) Put(collectionKey string, payload any) error {
	if err := m.store.Set(dataKey(collectionKey), payload); err != nil {
		return fmt.Errorf("failed to cache %q: %w", collectionKey, err)
	}
	if err := m.store.Set(timestampKey(collectionKey), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to record cache timestamp for %q: %w", collectionKey, err)
	}
	return nil
}

// ReadIfFresh reads the cached payload into dest if it exists and is no
// older than maxAge. Returns false on a miss: no payload, no timestamp, or
// age exceeded. Pass NoExpiry to disable the age check entirely.
func (m *Manager) ReadIfFresh(collectionKey string, maxAge time.Duration, dest any) (bool, error) {
	var fetchedAt int64
	found, err := m.store.Get(timestampKey(collectionKey), &fetchedAt)
	if err != nil {
		return false, fmt.Errorf("failed to read cache timestamp for %q: %w", collectionKey, err)
	}
	if !found {
		return false, nil
	}

	if maxAge != NoExpiry {
		age := time.Since(time.UnixMilli(fetchedAt))
		if age > maxAge {
			return false, nil
		}
	}

	found, err = m.store.Get(dataKey(collectionKey), dest)
	if err != nil {
		return false, fmt.Errorf("failed to read cache for %q: %w", collectionKey, err)
	}
	return found, nil
}

// Invalidate removes both the payload and timestamp for a collection.
func (m *Manager) Invalidate(collectionKey string) error {
	if err := m.store.Remove(dataKey(collectionKey)); err != nil {
		return fmt.Errorf("failed to invalidate %q: %w", collectionKey, err)
	}
	if err := m.store.Remove(timestampKey(collectionKey)); err != nil {
		return fmt.Errorf("failed to invalidate timestamp for %q: %w", collectionKey, err)
	}
	return nil
}
