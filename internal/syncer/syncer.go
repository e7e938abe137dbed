// Package syncer drains the offline mutation queue against the remote data
// service.
//
// A drain pass executes queued mutations strictly in enqueue order,
// sequentially: a later mutation never starts before an earlier one's
// outcome is recorded, which is what makes last-write-wins tie-breaking
// meaningful. At most one drain runs at a time; concurrent requests are
// no-ops. Individual mutation failures never abort the rest of the pass:
// they are retried on later passes up to the retry ceiling, then dropped
// and reported only through the aggregate sync status.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/remote"
	"github.com/grocersync/grocer/internal/status"
)

// RetryCeiling is the number of failed attempts after which a mutation is
// dropped from the queue and counted as a failure, never retried again.
const RetryCeiling = 3

// DefaultCallTimeout bounds each remote call during a drain pass so a
// hanging call cannot stall the pass indefinitely.
const DefaultCallTimeout = 30 * time.Second

// Syncer drains the mutation queue when connectivity allows.
type Syncer struct {
	queue       *queue.Queue
	remote      remote.Service
	broadcaster *status.Broadcaster
	logger      *log.Logger
	callTimeout time.Duration

	mu       sync.Mutex
	draining bool
}

// New creates a Syncer.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	s := syncer.New(q, client, broadcaster, nil)
//	result := s.Drain(ctx)
func New(q *queue.Queue, svc remote.Service, broadcaster *status.Broadcaster, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	return &Syncer{
		queue:       q,
		remote:      svc,
		broadcaster: broadcaster,
		logger:      logger,
		callTimeout: DefaultCallTimeout,
	}
}

// SetCallTimeout overrides the per-mutation remote call timeout.
func (s *Syncer) SetCallTimeout(d time.Duration) {
	if d > 0 {
		s.callTimeout = d
	}
}

// Drain executes one pass over the current durable queue snapshot.
//
// Single-flight: if a pass is already running, Drain returns a zero result
// immediately. An empty queue also returns a zero result, without touching
// the status broadcaster. Mutations enqueued while the pass is running are
// not part of its snapshot; they are picked up by the next triggered drain.
func (s *Syncer) Drain(ctx context.Context) status.Result {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return status.Result{}
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	snapshot := s.queue.PeekAll()
	if len(snapshot) == 0 {
		return status.Result{}
	}

	s.logger.Printf("Draining %d queued mutations", len(snapshot))
	s.broadcaster.StartSyncing(len(snapshot))

	var result status.Result
	for _, m := range snapshot {
		if err := s.dispatch(ctx, m); err != nil {
			newCount := s.queue.IncrementRetry(m.ID)
			if newCount < 0 {
				// Removed from the durable queue by another writer while
				// this pass was running; nothing left to retry.
				s.logger.Printf("WARNING: %s mutation %s gone from queue after failure: %v", m.Kind, m.ID, err)
				continue
			}
			if newCount >= RetryCeiling {
				// Permanent drop: out of the queue, counted once, never
				// retried again.
				s.queue.Remove(m.ID)
				result.Failed++
				s.logger.Printf("Dropping %s mutation %s after %d attempts: %v", m.Kind, m.ID, newCount, err)
			} else {
				s.logger.Printf("WARNING: %s mutation %s failed (attempt %d/%d): %v", m.Kind, m.ID, newCount, RetryCeiling, err)
			}
			continue
		}

		s.queue.Remove(m.ID)
		result.Success++
		s.logger.Printf("Synced %s mutation %s", m.Kind, m.ID)
	}

	s.broadcaster.SetPendingCount(s.queue.Len())
	s.broadcaster.FinishSyncing(result)
	s.logger.Printf("Drain complete: success=%d, failed=%d", result.Success, result.Failed)

	return result
}

// dispatch routes one mutation to its typed remote call. The set of kinds
// is closed; an unhandled args type here is a programming error surfaced as
// a normal failure.
func (s *Syncer) dispatch(ctx context.Context, m queue.Mutation) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	switch args := m.Args.(type) {
	case queue.CreateItemArgs:
		return s.remote.CreateItem(ctx, args)
	case queue.ToggleItemArgs:
		return s.remote.ToggleItem(ctx, args)
	case queue.UpdateItemArgs:
		return s.remote.UpdateItem(ctx, args)
	case queue.DeleteItemArgs:
		return s.remote.DeleteItem(ctx, args)
	case queue.CreateListArgs:
		return s.remote.CreateList(ctx, args)
	case queue.ArchiveListArgs:
		return s.remote.ArchiveList(ctx, args)
	case queue.UpdateListArgs:
		return s.remote.UpdateList(ctx, args)
	default:
		return fmt.Errorf("no remote call for mutation kind %s", m.Kind)
	}
}
