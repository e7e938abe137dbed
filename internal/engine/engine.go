// Package engine wires the offline-first pieces together: durable cache,
// mutation queue, network monitor, sync orchestrator, and the remote
// service boundary.
//
// A write first attempts direct execution against the remote service when
// online; when offline (or when the direct call fails) it is appended to
// the mutation queue and simultaneously applied optimistically to the
// cached collection, so callers see the change immediately. The network
// monitor's reconnect signal triggers a queue drain, and authoritative
// snapshots arriving through the live subscription replace cached
// collections wholesale.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grocersync/grocer/internal/cache"
	"github.com/grocersync/grocer/internal/kv"
	"github.com/grocersync/grocer/internal/netmon"
	"github.com/grocersync/grocer/internal/optimistic"
	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/remote"
	"github.com/grocersync/grocer/internal/schema"
	"github.com/grocersync/grocer/internal/status"
	"github.com/grocersync/grocer/internal/syncer"
)

// Config holds engine configuration.
type Config struct {
	// HouseholdID scopes the lists collection.
	HouseholdID string

	// RemoteTimeout bounds each remote call during drain passes.
	RemoteTimeout time.Duration

	// Logger for engine activity.
	Logger *log.Logger
}

// Engine coordinates local durable state with the remote data service.
type Engine struct {
	store       *kv.Store
	cache       *cache.Manager
	queue       *queue.Queue
	monitor     *netmon.Monitor
	broadcaster *status.Broadcaster
	syncer      *syncer.Syncer
	remote      remote.Service
	feed        *remote.Feed
	householdID string
	logger      *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine over an opened store and the given collaborators.
//
// The feed may be nil, in which case no live subscription is opened and
// cached collections are refreshed only by explicit fetches. If the config
// logger is nil, a default logger writing to stderr is used.
func New(store *kv.Store, svc remote.Service, feed *remote.Feed, monitor *netmon.Monitor, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	q := queue.New(store, logger)
	b := status.New()
	s := syncer.New(q, svc, b, logger)
	if cfg.RemoteTimeout > 0 {
		s.SetCallTimeout(cfg.RemoteTimeout)
	}

	e := &Engine{
		store:       store,
		cache:       cache.New(store),
		queue:       q,
		monitor:     monitor,
		broadcaster: b,
		syncer:      s,
		remote:      svc,
		feed:        feed,
		householdID: cfg.HouseholdID,
		logger:      logger,
	}

	b.SetPendingCount(q.Len())
	return e
}

// Start begins background operation: connectivity monitoring, reconnect
// triggered drains, and the live subscription for the household's lists.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	if err := e.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start network monitor: %w", err)
	}

	// Reconnect edge: drain whatever queued up while offline. The drain runs
	// on its own goroutine because monitor callbacks must stay re-entrancy
	// free.
	e.monitor.Subscribe(func(s netmon.State) {
		if s.JustReconnected && e.queue.Len() > 0 {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.DrainNow(ctx)
			}()
		}
	})

	if e.feed != nil && e.householdID != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runFeed(ctx, schema.ListsKey(e.householdID))
		}()
	}

	e.logger.Println("Engine started")
	return nil
}

// Stop halts background goroutines and the network monitor. The store is
// owned by the caller and stays open.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.monitor.Stop()
	e.wg.Wait()
	e.logger.Println("Engine stopped")
}

// Status returns the current sync status snapshot.
func (e *Engine) Status() status.Snapshot {
	return e.broadcaster.Current()
}

// SubscribeStatus registers an observer for sync status transitions.
func (e *Engine) SubscribeStatus(fn func(status.Snapshot)) func() {
	return e.broadcaster.Subscribe(fn)
}

// Network returns the current connectivity state.
func (e *Engine) Network() netmon.State {
	return e.monitor.Current()
}

// CheckConnectivity runs one synchronous probe and returns the result.
// One-shot commands call it before draining so an unreachable backend does
// not burn retry budget.
func (e *Engine) CheckConnectivity(ctx context.Context) netmon.State {
	return e.monitor.ProbeOnce(ctx)
}

// Pending returns the durable queue snapshot, oldest first.
func (e *Engine) Pending() []queue.Mutation {
	return e.queue.PeekAll()
}

// FlushQueue discards all pending mutations and returns how many were
// dropped. Destructive; exposed for the CLI's queue management.
func (e *Engine) FlushQueue() int {
	snapshot := e.queue.PeekAll()
	e.queue.Clear()
	e.broadcaster.SetPendingCount(0)
	e.clearPending(e.affectedCollections(snapshot))
	return len(snapshot)
}

// DrainNow runs one drain pass and reconciles pending-sync tags afterwards.
// The collections to reconcile are derived from the drained mutations
// themselves, so reconciliation works even when the drain runs in a fresh
// process over a queue persisted by an earlier one.
func (e *Engine) DrainNow(ctx context.Context) status.Result {
	snapshot := e.queue.PeekAll()
	result := e.syncer.Drain(ctx)
	if len(snapshot) > 0 && e.queue.Len() == 0 {
		e.clearPending(e.affectedCollections(snapshot))
	}
	return result
}

// ===== Write path =====
//
// Writes never fail from the caller's perspective once they fall through to
// the queue: the mutation is durable and will be replayed on reconnect.

// CreateItem adds an item to a list, online or offline.
func (e *Engine) CreateItem(ctx context.Context, args queue.CreateItemArgs) error {
	if e.tryDirect(queue.KindCreateItem, func() error { return e.remote.CreateItem(ctx, args) }) {
		return nil
	}
	e.queueItemMutation(queue.KindCreateItem, args, args.ListID)
	return nil
}

// ToggleItem flips an item's checked state, online or offline.
func (e *Engine) ToggleItem(ctx context.Context, args queue.ToggleItemArgs) error {
	if e.tryDirect(queue.KindToggleItem, func() error { return e.remote.ToggleItem(ctx, args) }) {
		return nil
	}
	e.queueItemMutation(queue.KindToggleItem, args, args.ListID)
	return nil
}

// UpdateItem rewrites an item's content fields, online or offline.
func (e *Engine) UpdateItem(ctx context.Context, args queue.UpdateItemArgs) error {
	if e.tryDirect(queue.KindUpdateItem, func() error { return e.remote.UpdateItem(ctx, args) }) {
		return nil
	}
	e.queueItemMutation(queue.KindUpdateItem, args, args.ListID)
	return nil
}

// DeleteItem removes an item, online or offline.
func (e *Engine) DeleteItem(ctx context.Context, args queue.DeleteItemArgs) error {
	if e.tryDirect(queue.KindDeleteItem, func() error { return e.remote.DeleteItem(ctx, args) }) {
		return nil
	}
	e.queueItemMutation(queue.KindDeleteItem, args, args.ListID)
	return nil
}

// CreateList creates a list in the household, online or offline.
func (e *Engine) CreateList(ctx context.Context, args queue.CreateListArgs) error {
	if e.tryDirect(queue.KindCreateList, func() error { return e.remote.CreateList(ctx, args) }) {
		return nil
	}
	e.queueListMutation(queue.KindCreateList, args)
	return nil
}

// ArchiveList archives a list, online or offline.
func (e *Engine) ArchiveList(ctx context.Context, args queue.ArchiveListArgs) error {
	if e.tryDirect(queue.KindArchiveList, func() error { return e.remote.ArchiveList(ctx, args) }) {
		return nil
	}
	e.queueListMutation(queue.KindArchiveList, args)
	return nil
}

// UpdateList rewrites a list's content fields, online or offline.
func (e *Engine) UpdateList(ctx context.Context, args queue.UpdateListArgs) error {
	if e.tryDirect(queue.KindUpdateList, func() error { return e.remote.UpdateList(ctx, args) }) {
		return nil
	}
	e.queueListMutation(queue.KindUpdateList, args)
	return nil
}

// ===== Read path =====

// Items returns the items of a list. Online, a fresh fetch is preferred and
// the cache replaced wholesale; the cache serves as fallback when the fetch
// fails. Offline, the last cached payload is returned regardless of age.
func (e *Engine) Items(ctx context.Context, listID string) ([]schema.Item, error) {
	key := schema.ItemsKey(listID)

	if e.online() {
		items, err := e.remote.FetchItems(ctx, listID)
		if err == nil {
			if cacheErr := e.cache.Put(key, items); cacheErr != nil {
				e.logger.Printf("WARNING: failed to refresh items cache: %v", cacheErr)
			}
			return items, nil
		}
		e.logger.Printf("WARNING: items fetch failed, serving cache: %v", err)
	}

	var cached []schema.Item
	found, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &cached)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached items: %w", err)
	}
	if !found {
		return nil, nil
	}
	return cached, nil
}

// Lists returns the household's lists with the same read policy as Items.
func (e *Engine) Lists(ctx context.Context) ([]schema.List, error) {
	key := schema.ListsKey(e.householdID)

	if e.online() {
		lists, err := e.remote.FetchLists(ctx, e.householdID)
		if err == nil {
			if cacheErr := e.cache.Put(key, lists); cacheErr != nil {
				e.logger.Printf("WARNING: failed to refresh lists cache: %v", cacheErr)
			}
			return lists, nil
		}
		e.logger.Printf("WARNING: lists fetch failed, serving cache: %v", err)
	}

	var cached []schema.List
	found, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &cached)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached lists: %w", err)
	}
	if !found {
		return nil, nil
	}
	return cached, nil
}

// ===== Internals =====

// online reports whether writes should attempt direct remote execution.
func (e *Engine) online() bool {
	return e.monitor.Current().Connected
}

// tryDirect attempts a direct remote call when online. Returns true when
// the call succeeded; a failure falls through to the queue path.
func (e *Engine) tryDirect(kind queue.Kind, call func() error) bool {
	if !e.online() {
		return false
	}
	if err := call(); err != nil {
		e.logger.Printf("WARNING: direct %s failed, queueing: %v", kind, err)
		return false
	}
	return true
}

// queueItemMutation enqueues an item mutation and applies it optimistically
// to the list's cached collection.
func (e *Engine) queueItemMutation(kind queue.Kind, args queue.Args, listID string) {
	id := e.queue.Enqueue(kind, args)
	e.broadcaster.SetPendingCount(e.queue.Len())

	key := schema.ItemsKey(listID)

	var items []schema.Item
	if _, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &items); err != nil {
		e.logger.Printf("WARNING: failed to read cache for optimistic apply: %v", err)
		return
	}

	applied := optimistic.ApplyItems(items, queue.Mutation{ID: id, Kind: kind, Args: args})
	if err := e.cache.Put(key, applied); err != nil {
		e.logger.Printf("WARNING: failed to write optimistic items: %v", err)
	}
}

// queueListMutation enqueues a list mutation and applies it optimistically
// to the household's cached collection.
func (e *Engine) queueListMutation(kind queue.Kind, args queue.Args) {
	id := e.queue.Enqueue(kind, args)
	e.broadcaster.SetPendingCount(e.queue.Len())

	key := schema.ListsKey(e.householdID)

	var lists []schema.List
	if _, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &lists); err != nil {
		e.logger.Printf("WARNING: failed to read cache for optimistic apply: %v", err)
		return
	}

	applied := optimistic.ApplyLists(lists, queue.Mutation{ID: id, Kind: kind, Args: args})
	if err := e.cache.Put(key, applied); err != nil {
		e.logger.Printf("WARNING: failed to write optimistic lists: %v", err)
	}
}

// affectedCollections returns the distinct collection keys the given
// mutations were applied to, derived from the mutations' own arguments.
// Deriving from the queue snapshot rather than in-memory bookkeeping keeps
// reconciliation correct across process restarts.
func (e *Engine) affectedCollections(mutations []queue.Mutation) []string {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(mutations))
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	for _, m := range mutations {
		switch args := m.Args.(type) {
		case queue.CreateItemArgs:
			add(schema.ItemsKey(args.ListID))
		case queue.ToggleItemArgs:
			add(schema.ItemsKey(args.ListID))
		case queue.UpdateItemArgs:
			add(schema.ItemsKey(args.ListID))
		case queue.DeleteItemArgs:
			add(schema.ItemsKey(args.ListID))
		case queue.CreateListArgs:
			add(schema.ListsKey(args.HouseholdID))
		default:
			add(schema.ListsKey(e.householdID))
		}
	}
	return keys
}

// clearPending strips pending-sync tags and temp records from the given
// collections, now that the queue has emptied entirely. Temp records are
// superseded by the next authoritative fetch or feed snapshot.
func (e *Engine) clearPending(keys []string) {
	for _, key := range keys {
		if strings.HasPrefix(key, "items:") {
			var items []schema.Item
			found, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &items)
			if err != nil || !found {
				continue
			}
			if err := e.cache.Put(key, optimistic.ClearPendingItems(items)); err != nil {
				e.logger.Printf("WARNING: failed to clear pending items for %q: %v", key, err)
			}
			continue
		}

		var lists []schema.List
		found, err := e.cache.ReadIfFresh(key, cache.NoExpiry, &lists)
		if err != nil || !found {
			continue
		}
		if err := e.cache.Put(key, optimistic.ClearPendingLists(lists)); err != nil {
			e.logger.Printf("WARNING: failed to clear pending lists for %q: %v", key, err)
		}
	}
}

// runFeed keeps a live subscription open for a collection, replacing the
// cached payload wholesale on each snapshot. Reconnects with a short pause
// until the context is cancelled.
func (e *Engine) runFeed(ctx context.Context, collectionKey string) {
	for ctx.Err() == nil {
		if !e.online() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		snapshots, err := e.feed.Subscribe(ctx, collectionKey)
		if err != nil {
			e.logger.Printf("WARNING: subscription for %q failed, retrying: %v", collectionKey, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for snap := range snapshots {
			e.applySnapshot(snap)
		}
	}
}

// applySnapshot overwrites the cached collection with authoritative server
// state, discarding any optimistic entries for that collection.
func (e *Engine) applySnapshot(snap remote.Snapshot) {
	if err := e.cache.Put(snap.Collection, snap.Payload); err != nil {
		e.logger.Printf("WARNING: failed to apply snapshot for %q: %v", snap.Collection, err)
		return
	}
	e.logger.Printf("Applied snapshot for %q", snap.Collection)
}
