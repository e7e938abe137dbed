package queue

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/grocersync/grocer/internal/kv"
)

// StorageKey is the single KV key holding the JSON array of all queued
// mutations. The key is absent entirely, not an empty array, when the queue
// is empty.
const StorageKey = "offline:queue"

// Queue is the ordered, durable log of pending write operations.
//
// Every change is persisted to the key-value store. Persist failures are
// logged and swallowed: the in-memory state continues to serve best-effort
// until the next successful write. Reads of the durable snapshot (PeekAll)
// go to the store, not memory, so callers always see the durable truth.
type Queue struct {
	store  *kv.Store
	logger *log.Logger

	mu        sync.Mutex
	mutations []Mutation
}

// New creates a mutation queue over the given store, seeding the in-memory
// list from any previously persisted queue.
//
// If logger is nil, a default logger writing to stderr is used.
func New(store *kv.Store, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}

	q := &Queue{
		store:  store,
		logger: logger,
	}

	var persisted []Mutation
	found, err := store.Get(StorageKey, &persisted)
	if err != nil {
		logger.Printf("Warning: failed to load persisted queue: %v", err)
	}
	if found {
		sortByEnqueuedAt(persisted)
		q.mutations = persisted
	}

	return q
}

// Enqueue constructs a mutation with a fresh unique ID and the current
// timestamp, inserts it, and persists the full queue. The returned ID is the
// correlation handle for optimistic entities.
//
// Enqueue never fails from the caller's perspective: persistence errors are
// logged and the in-memory queue continues best-effort.
func (q *Queue) Enqueue(kind Kind, args Args) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Mutation{
		ID:         newMutationID(),
		Kind:       kind,
		Args:       args,
		EnqueuedAt: time.Now(),
	}

	q.reloadLocked()
	q.mutations = append(q.mutations, m)
	// Insertion order should already match, but processing order is defined
	// by EnqueuedAt, not storage order.
	sortByEnqueuedAt(q.mutations)
	q.persistLocked()

	q.logger.Printf("Enqueued %s mutation %s (%d pending)", m.Kind, m.ID, len(q.mutations))
	return m.ID
}

// Remove filters the mutation with the given ID out of the queue and
// persists the result. The durable snapshot is re-read first so mutations
// enqueued by other writers of the same store are never clobbered.
// Removing an unknown ID is a no-op.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reloadLocked()
	kept := q.mutations[:0]
	for _, m := range q.mutations {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	q.mutations = kept
	q.persistLocked()
}

// IncrementRetry bumps the retry count of the mutation with the given ID in
// place and persists. Operates on the durable snapshot, so a mutation
// enqueued by another writer of the same store is found and counted.
// Returns the new count, or -1 if the ID is no longer in the queue.
func (q *Queue) IncrementRetry(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reloadLocked()
	for i := range q.mutations {
		if q.mutations[i].ID == id {
			q.mutations[i].RetryCount++
			q.persistLocked()
			return q.mutations[i].RetryCount
		}
	}
	return -1
}

// Clear discards all queued mutations and removes the persisted key.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.mutations = nil
	q.persistLocked()
}

// ReplaceAll swaps the entire queue contents for the given mutations and
// persists. Used by the drain pass to keep only retryable mutations.
func (q *Queue) ReplaceAll(mutations []Mutation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.mutations = append([]Mutation(nil), mutations...)
	sortByEnqueuedAt(q.mutations)
	q.persistLocked()
}

// PeekAll returns the current durable snapshot in ascending EnqueuedAt
// order, read fresh from the store so the result is always the durable
// truth rather than a possibly drifted in-memory copy.
func (q *Queue) PeekAll() []Mutation {
	var persisted []Mutation
	found, err := q.store.Get(StorageKey, &persisted)
	if err != nil {
		q.logger.Printf("Warning: failed to read persisted queue: %v", err)
		return nil
	}
	if !found {
		return nil
	}
	sortByEnqueuedAt(persisted)
	return persisted
}

// Len returns the number of mutations in the durable queue.
func (q *Queue) Len() int {
	return len(q.PeekAll())
}

// reloadLocked refreshes the in-memory list from the durable snapshot, so a
// following modification starts from the store's truth rather than a
// possibly drifted copy. On a read error the in-memory list is kept.
// Callers must hold q.mu.
func (q *Queue) reloadLocked() {
	var persisted []Mutation
	found, err := q.store.Get(StorageKey, &persisted)
	if err != nil {
		q.logger.Printf("Warning: failed to reload persisted queue: %v", err)
		return
	}
	if !found {
		q.mutations = nil
		return
	}
	sortByEnqueuedAt(persisted)
	q.mutations = persisted
}

// persistLocked writes the queue to the store, or removes the key entirely
// when the queue is empty (an absent key, not an empty-array sentinel,
// represents the empty queue). Callers must hold q.mu.
func (q *Queue) persistLocked() {
	if len(q.mutations) == 0 {
		if err := q.store.Remove(StorageKey); err != nil {
			q.logger.Printf("Warning: failed to clear persisted queue: %v", err)
		}
		return
	}

	if err := q.store.Set(StorageKey, q.mutations); err != nil {
		q.logger.Printf("Warning: failed to persist queue: %v", err)
	}
}

// sortByEnqueuedAt sorts mutations in ascending enqueue order. The sort is
// stable so same-timestamp mutations keep their insertion order.
func sortByEnqueuedAt(mutations []Mutation) {
	sort.SliceStable(mutations, func(i, j int) bool {
		return mutations[i].EnqueuedAt.Before(mutations[j].EnqueuedAt)
	})
}
