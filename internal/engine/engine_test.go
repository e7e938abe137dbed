package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/grocersync/grocer/internal/cache"
	"github.com/grocersync/grocer/internal/kv"
	"github.com/grocersync/grocer/internal/netmon"
	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/schema"
)

// fakeRemote records write calls and serves canned fetch results.
type fakeRemote struct {
	mu         sync.Mutex
	calls      []string
	failWrites bool
	fetchItems []schema.Item
	fetchLists []schema.List
	fetchErr   error
}

func (f *fakeRemote) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failWrites {
		return errors.New("remote rejected " + name)
	}
	return nil
}

func (f *fakeRemote) CreateItem(ctx context.Context, args queue.CreateItemArgs) error {
	return f.record("create:" + args.Name)
}
func (f *fakeRemote) ToggleItem(ctx context.Context, args queue.ToggleItemArgs) error {
	return f.record("toggle:" + args.ItemID)
}
func (f *fakeRemote) UpdateItem(ctx context.Context, args queue.UpdateItemArgs) error {
	return f.record("update:" + args.ItemID)
}
func (f *fakeRemote) DeleteItem(ctx context.Context, args queue.DeleteItemArgs) error {
	return f.record("delete:" + args.ItemID)
}
func (f *fakeRemote) CreateList(ctx context.Context, args queue.CreateListArgs) error {
	return f.record("create-list:" + args.Name)
}
func (f *fakeRemote) ArchiveList(ctx context.Context, args queue.ArchiveListArgs) error {
	return f.record("archive-list:" + args.ListID)
}
func (f *fakeRemote) UpdateList(ctx context.Context, args queue.UpdateListArgs) error {
	return f.record("update-list:" + args.ListID)
}

func (f *fakeRemote) FetchItems(ctx context.Context, listID string) ([]schema.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]schema.Item(nil), f.fetchItems...), nil
}

func (f *fakeRemote) FetchLists(ctx context.Context, householdID string) ([]schema.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]schema.List(nil), f.fetchLists...), nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// flippableProbe simulates connectivity under test control.
type flippableProbe struct {
	mu sync.Mutex
	ok bool
}

func (p *flippableProbe) set(ok bool) {
	p.mu.Lock()
	p.ok = ok
	p.mu.Unlock()
}

func (p *flippableProbe) probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ok {
		return errors.New("no route to host")
	}
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

// setupTestEngine builds an engine over a temp store with a controllable
// probe. The monitor is not started; tests that need connectivity start it
// (or the engine) themselves.
func setupTestEngine(t *testing.T, remote *fakeRemote) (*Engine, *kv.Store, *flippableProbe, *netmon.Monitor) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := kv.Open(dbPath, testLogger())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	probe := &flippableProbe{}
	monitor := netmon.New(netmon.Config{
		PollInterval:    10 * time.Millisecond,
		ReconnectWindow: 50 * time.Millisecond,
		Probe:           probe.probe,
	}, testLogger())

	e := New(store, remote, nil, monitor, Config{
		HouseholdID: "H1",
		Logger:      testLogger(),
	})
	return e, store, probe, monitor
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOfflineWriteQueuesAndAppliesOptimistically(t *testing.T) {
	remote := &fakeRemote{}
	e, store, _, _ := setupTestEngine(t, remote)

	// Monitor never started: the engine is offline.
	if err := e.CreateItem(context.Background(), queue.CreateItemArgs{ListID: "L1", Name: "Milk", Quantity: 2}); err != nil {
		t.Fatalf("offline write must not fail: %v", err)
	}

	if len(remote.callLog()) != 0 {
		t.Error("offline write must not reach the remote service")
	}

	pending := e.Pending()
	if len(pending) != 1 || pending[0].Kind != queue.KindCreateItem {
		t.Fatalf("expected one queued create-item, got %+v", pending)
	}

	var items []schema.Item
	c := cache.New(store)
	found, err := c.ReadIfFresh(schema.ItemsKey("L1"), cache.NoExpiry, &items)
	if err != nil || !found {
		t.Fatalf("expected optimistic items in cache: found=%v err=%v", found, err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one optimistic item, got %d", len(items))
	}
	if !schema.IsTempID(items[0].ID) {
		t.Errorf("offline-created item must carry a temp ID, got %q", items[0].ID)
	}
	if !items[0].PendingSync || items[0].PendingMutationID != pending[0].ID {
		t.Errorf("optimistic item must be tagged with the queued mutation: %+v", items[0])
	}
}

func TestOnlineWriteGoesDirect(t *testing.T) {
	remote := &fakeRemote{}
	e, _, probe, monitor := setupTestEngine(t, remote)

	probe.set(true)
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("failed to start monitor: %v", err)
	}
	t.Cleanup(monitor.Stop)
	waitFor(t, 2*time.Second, func() bool { return e.Network().Connected })

	if err := e.CreateItem(context.Background(), queue.CreateItemArgs{ListID: "L1", Name: "Milk"}); err != nil {
		t.Fatalf("online write failed: %v", err)
	}

	calls := remote.callLog()
	if len(calls) != 1 || calls[0] != "create:Milk" {
		t.Errorf("expected direct remote call, got %v", calls)
	}
	if len(e.Pending()) != 0 {
		t.Error("successful direct write must not be queued")
	}
}

func TestOnlineWriteFallsBackToQueue(t *testing.T) {
	remote := &fakeRemote{failWrites: true}
	e, _, probe, monitor := setupTestEngine(t, remote)

	probe.set(true)
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("failed to start monitor: %v", err)
	}
	t.Cleanup(monitor.Stop)
	waitFor(t, 2*time.Second, func() bool { return e.Network().Connected })

	if err := e.ToggleItem(context.Background(), queue.ToggleItemArgs{ListID: "L1", ItemID: "I1", Checked: true}); err != nil {
		t.Fatalf("write must not surface the remote failure: %v", err)
	}

	pending := e.Pending()
	if len(pending) != 1 || pending[0].Kind != queue.KindToggleItem {
		t.Fatalf("failed direct write must fall back to the queue, got %+v", pending)
	}
}

func TestItemsOfflineServesCacheRegardlessOfAge(t *testing.T) {
	remote := &fakeRemote{}
	e, store, _, _ := setupTestEngine(t, remote)

	c := cache.New(store)
	stale := []schema.Item{{ID: "I1", ListID: "L1", Name: "Bread"}}
	if err := c.Put(schema.ItemsKey("L1"), stale); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	// Backdate the fetch timestamp well past any reasonable TTL.
	if err := store.Set("cache:items:timestamp:L1", time.Now().Add(-24*time.Hour).UnixMilli()); err != nil {
		t.Fatalf("failed to backdate timestamp: %v", err)
	}

	items, err := e.Items(context.Background(), "L1")
	if err != nil {
		t.Fatalf("offline read failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Bread" {
		t.Errorf("offline read must serve the stale cache, got %+v", items)
	}
}

func TestItemsOnlineRefreshesCacheWholesale(t *testing.T) {
	remote := &fakeRemote{fetchItems: []schema.Item{
		{ID: "I1", ListID: "L1", Name: "Eggs"},
		{ID: "I2", ListID: "L1", Name: "Butter"},
	}}
	e, store, probe, monitor := setupTestEngine(t, remote)

	c := cache.New(store)
	if err := c.Put(schema.ItemsKey("L1"), []schema.Item{{ID: "OLD", ListID: "L1", Name: "Old"}}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	probe.set(true)
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("failed to start monitor: %v", err)
	}
	t.Cleanup(monitor.Stop)
	waitFor(t, 2*time.Second, func() bool { return e.Network().Connected })

	items, err := e.Items(context.Background(), "L1")
	if err != nil {
		t.Fatalf("online read failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected fresh fetch result, got %+v", items)
	}

	var cached []schema.Item
	found, err := c.ReadIfFresh(schema.ItemsKey("L1"), cache.NoExpiry, &cached)
	if err != nil || !found {
		t.Fatalf("expected refreshed cache: found=%v err=%v", found, err)
	}
	if len(cached) != 2 || cached[0].ID != "I1" {
		t.Errorf("cache must be replaced wholesale with the fetch result, got %+v", cached)
	}
}

func TestItemsOnlineFetchFailureServesCache(t *testing.T) {
	remote := &fakeRemote{fetchErr: errors.New("backend down")}
	e, store, probe, monitor := setupTestEngine(t, remote)

	c := cache.New(store)
	if err := c.Put(schema.ItemsKey("L1"), []schema.Item{{ID: "I1", ListID: "L1", Name: "Bread"}}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	probe.set(true)
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("failed to start monitor: %v", err)
	}
	t.Cleanup(monitor.Stop)
	waitFor(t, 2*time.Second, func() bool { return e.Network().Connected })

	items, err := e.Items(context.Background(), "L1")
	if err != nil {
		t.Fatalf("read must fall back to cache, not fail: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Bread" {
		t.Errorf("expected cached fallback, got %+v", items)
	}
}

func TestReconnectDrainsQueueAndClearsPending(t *testing.T) {
	remote := &fakeRemote{}
	e, store, probe, _ := setupTestEngine(t, remote)

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	t.Cleanup(e.Stop)

	// Offline: the write queues and shows up optimistically.
	waitFor(t, 2*time.Second, func() bool { return e.Network().Reachable == netmon.ReachNo })
	if err := e.CreateItem(ctx, queue.CreateItemArgs{ListID: "L1", Name: "Milk"}); err != nil {
		t.Fatalf("offline write failed: %v", err)
	}
	if len(e.Pending()) != 1 {
		t.Fatal("expected one queued mutation while offline")
	}

	// Reconnect: the edge triggers a drain that empties the queue.
	probe.set(true)
	waitFor(t, 2*time.Second, func() bool { return len(e.Pending()) == 0 })

	calls := remote.callLog()
	if len(calls) != 1 || calls[0] != "create:Milk" {
		t.Errorf("queued mutation must replay on reconnect, got %v", calls)
	}

	// The optimistic temp record is gone and no pending tags remain.
	waitFor(t, 2*time.Second, func() bool {
		var items []schema.Item
		found, err := cache.New(store).ReadIfFresh(schema.ItemsKey("L1"), cache.NoExpiry, &items)
		if err != nil || !found {
			return false
		}
		for _, item := range items {
			if item.PendingSync || schema.IsTempID(item.ID) {
				return false
			}
		}
		return true
	})
}

func TestFlushQueueDiscardsPendingMutations(t *testing.T) {
	remote := &fakeRemote{}
	e, store, _, _ := setupTestEngine(t, remote)

	ctx := context.Background()
	if err := e.CreateItem(ctx, queue.CreateItemArgs{ListID: "L1", Name: "Milk"}); err != nil {
		t.Fatalf("offline write failed: %v", err)
	}
	if err := e.CreateItem(ctx, queue.CreateItemArgs{ListID: "L1", Name: "Eggs"}); err != nil {
		t.Fatalf("offline write failed: %v", err)
	}

	if n := e.FlushQueue(); n != 2 {
		t.Errorf("expected 2 flushed mutations, got %d", n)
	}
	if len(e.Pending()) != 0 {
		t.Error("queue must be empty after flush")
	}

	// Flush also drops the optimistic temp records.
	var items []schema.Item
	found, err := cache.New(store).ReadIfFresh(schema.ItemsKey("L1"), cache.NoExpiry, &items)
	if err != nil || !found {
		t.Fatalf("expected cached collection: found=%v err=%v", found, err)
	}
	if len(items) != 0 {
		t.Errorf("flushed temp records must be removed, got %+v", items)
	}
}

func TestDrainAfterRestartClearsPendingTags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	remote := &fakeRemote{}

	newEngine := func() (*Engine, *kv.Store) {
		store, err := kv.Open(dbPath, testLogger())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		monitor := netmon.New(netmon.Config{
			PollInterval:    10 * time.Millisecond,
			ReconnectWindow: 50 * time.Millisecond,
			Probe:           (&flippableProbe{}).probe,
		}, testLogger())
		return New(store, remote, nil, monitor, Config{HouseholdID: "H1", Logger: testLogger()}), store
	}

	// First process: queue a write offline, then exit.
	e1, store1 := newEngine()
	if err := e1.CreateItem(context.Background(), queue.CreateItemArgs{ListID: "L1", Name: "Milk"}); err != nil {
		t.Fatalf("offline write failed: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Second process over the same database drains the persisted queue.
	e2, store2 := newEngine()
	t.Cleanup(func() { store2.Close() })

	if len(e2.Pending()) != 1 {
		t.Fatal("queued mutation must survive the restart")
	}
	result := e2.DrainNow(context.Background())
	if result.Success != 1 || len(e2.Pending()) != 0 {
		t.Fatalf("drain after restart must replay the mutation: %+v", result)
	}

	// The optimistic temp record from the first process is reconciled even
	// though this process never applied it.
	var items []schema.Item
	found, err := cache.New(store2).ReadIfFresh(schema.ItemsKey("L1"), cache.NoExpiry, &items)
	if err != nil || !found {
		t.Fatalf("expected cached collection: found=%v err=%v", found, err)
	}
	for _, item := range items {
		if item.PendingSync || schema.IsTempID(item.ID) {
			t.Errorf("record still pending after queue emptied: %+v", item)
		}
	}
}

func TestFlushQueueAfterRestartClearsPendingTags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	remote := &fakeRemote{}

	open := func() (*Engine, *kv.Store) {
		store, err := kv.Open(dbPath, testLogger())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		monitor := netmon.New(netmon.Config{Probe: (&flippableProbe{}).probe}, testLogger())
		return New(store, remote, nil, monitor, Config{HouseholdID: "H1", Logger: testLogger()}), store
	}

	e1, store1 := open()
	if err := e1.CreateList(context.Background(), queue.CreateListArgs{HouseholdID: "H1", Name: "Hardware"}); err != nil {
		t.Fatalf("offline write failed: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	e2, store2 := open()
	t.Cleanup(func() { store2.Close() })

	if n := e2.FlushQueue(); n != 1 {
		t.Fatalf("expected 1 flushed mutation, got %d", n)
	}

	var lists []schema.List
	found, err := cache.New(store2).ReadIfFresh(schema.ListsKey("H1"), cache.NoExpiry, &lists)
	if err != nil || !found {
		t.Fatalf("expected cached collection: found=%v err=%v", found, err)
	}
	if len(lists) != 0 {
		t.Errorf("flush after restart must drop the temp record, got %+v", lists)
	}
}
