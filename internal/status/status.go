// Package status broadcasts the sync engine's state to any number of
// observers.
//
// The broadcaster is a small state machine (idle -> syncing -> synced/error
// -> idle) decoupled from the orchestrator's call stack: transitions are
// published facts, not return values, so UI layers can show banners and
// toasts without holding a reference into a drain pass.
package status

import (
	"sync"
	"time"
)

// Status is the current phase of the sync engine.
type Status int

const (
	// Idle means no drain is running and no result is being displayed.
	Idle Status = iota
	// Syncing means a drain pass is executing.
	Syncing
	// Synced means the last drain pass completed with at least one success.
	Synced
	// Error means the last drain pass completed with zero successes and at
	// least one failure.
	Error
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Result aggregates the outcome of one drain pass.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Snapshot is the externally visible state of the broadcaster.
type Snapshot struct {
	Status       Status
	PendingCount int
	LastResult   *Result
}

// ResetDelay is how long a terminal synced/error state is displayed before
// the broadcaster returns to idle.
const ResetDelay = 2500 * time.Millisecond

// Broadcaster publishes sync state transitions to subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	status      Status
	pending     int
	lastResult  *Result
	subscribers map[int]func(Snapshot)
	nextSubID   int
	resetTimer  *time.Timer
	resetDelay  time.Duration
}

// New creates an idle broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]func(Snapshot)),
		resetDelay:  ResetDelay,
	}
}

// Current returns the current snapshot.
func (b *Broadcaster) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Subscribe registers a callback invoked on every state change and returns
// an unsubscribe function. The callback is invoked synchronously with the
// snapshot at transition time and must not call back into the broadcaster.
func (b *Broadcaster) Subscribe(fn func(Snapshot)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// StartSyncing transitions to the syncing state with the given number of
// pending mutations.
func (b *Broadcaster) StartSyncing(pending int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelResetLocked()
	b.status = Syncing
	b.pending = pending
	b.publishLocked()
}

// FinishSyncing records the drain result and transitions to synced or
// error. Error is reserved for a pass with zero successes and at least one
// failure. The terminal state auto-resets to idle after ResetDelay.
func (b *Broadcaster) FinishSyncing(result Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelResetLocked()
	r := result
	b.lastResult = &r
	if result.Success == 0 && result.Failed > 0 {
		b.status = Error
	} else {
		b.status = Synced
	}
	b.publishLocked()

	b.resetTimer = time.AfterFunc(b.resetDelay, b.resetToIdle)
}

// SetPendingCount publishes the number of mutations currently waiting in
// the queue, without changing the status.
func (b *Broadcaster) SetPendingCount(pending int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == pending {
		return
	}
	b.pending = pending
	b.publishLocked()
}

// resetToIdle returns the broadcaster to idle once the display window for a
// terminal state has elapsed.
func (b *Broadcaster) resetToIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Synced && b.status != Error {
		return
	}
	b.status = Idle
	b.publishLocked()
}

// cancelResetLocked stops a pending auto-reset. Callers must hold b.mu.
func (b *Broadcaster) cancelResetLocked() {
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
}

// snapshotLocked builds a snapshot of the current state. Callers must hold b.mu.
func (b *Broadcaster) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       b.status,
		PendingCount: b.pending,
	}
	if b.lastResult != nil {
		r := *b.lastResult
		snap.LastResult = &r
	}
	return snap
}

// publishLocked delivers the current snapshot to all subscribers.
// Callers must hold b.mu.
func (b *Broadcaster) publishLocked() {
	snap := b.snapshotLocked()
	for _, fn := range b.subscribers {
		fn(snap)
	}
}
