// Package netmon observes device connectivity and publishes transitions.
//
// The monitor polls a reachability probe (a TCP dial by default) and derives
// an edge-triggered "just reconnected" signal from offline-to-online
// transitions. The signal auto-clears after a fixed window so that exactly
// one reconnect window is visible to consumers even when in-store Wi-Fi
// flaps rapidly.
//
// For development and tests an override file can force the monitor offline:
// while the file exists the monitor reports disconnected regardless of what
// the probe says. The file is watched with fsnotify so toggling takes
// effect immediately.
package netmon

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reachability is the tri-state answer to "can we reach the backend".
type Reachability int

const (
	// ReachUnknown means no probe has completed yet.
	ReachUnknown Reachability = iota
	// ReachYes means the last probe succeeded.
	ReachYes
	// ReachNo means the last probe failed.
	ReachNo
)

// String returns a human-readable representation of the reachability.
func (r Reachability) String() string {
	switch r {
	case ReachUnknown:
		return "unknown"
	case ReachYes:
		return "reachable"
	case ReachNo:
		return "unreachable"
	default:
		return "invalid"
	}
}

// State is the current connectivity picture.
type State struct {
	// Connected reports whether the device currently has connectivity.
	Connected bool
	// Reachable is the tri-state backend reachability.
	Reachable Reachability
	// JustReconnected is true only in the window immediately following an
	// offline-to-online transition; it auto-resets after the configured
	// reconnect window.
	JustReconnected bool
}

// Prober checks connectivity. It returns nil when the probe target is
// reachable.
type Prober func(ctx context.Context) error

// Config configures the network monitor.
type Config struct {
	// ProbeAddr is the host:port dialed by the default prober.
	ProbeAddr string

	// PollInterval is how often the probe runs (default: 5s).
	PollInterval time.Duration

	// ReconnectWindow is how long JustReconnected stays set after an
	// offline-to-online transition (default: 3s).
	ReconnectWindow time.Duration

	// OverrideFile, if non-empty, forces the monitor offline while the file
	// exists.
	OverrideFile string

	// Probe overrides the default TCP dial prober (used by tests).
	Probe Prober
}

// Monitor polls connectivity and publishes state transitions.
type Monitor struct {
	cfg    Config
	logger *log.Logger

	mu            sync.Mutex
	state         State
	forcedOffline bool
	lastProbeOK   bool
	probed        bool
	subscribers   map[int]func(State)
	nextSubID     int
	windowTimer   *time.Timer

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	watcher *fsnotify.Watcher
}

// New creates a network monitor. Call Start to begin polling.
//
// If logger is nil, a default logger writing to stderr is used.
func New(cfg Config, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ReconnectWindow == 0 {
		cfg.ReconnectWindow = 3 * time.Second
	}
	if cfg.Probe == nil {
		addr := cfg.ProbeAddr
		cfg.Probe = func(ctx context.Context) error {
			d := net.Dialer{Timeout: 2 * time.Second}
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			return conn.Close()
		}
	}

	return &Monitor{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[int]func(State)),
	}
}

// Start begins polling connectivity. It returns immediately; polling stops
// when Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.OverrideFile != "" {
		if err := m.watchOverrideFile(ctx); err != nil {
			return err
		}
		m.refreshOverride()
	}

	m.wg.Add(1)
	go m.pollLoop(ctx)
	return nil
}

// Stop halts polling, the override watcher, and any pending reconnect
// window timer, so subscribers see no publishes after Stop returns.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		_ = m.watcher.Close()
	}

	m.mu.Lock()
	if m.windowTimer != nil {
		m.windowTimer.Stop()
		m.windowTimer = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
}

// ProbeOnce runs a single probe synchronously and returns the resulting
// state. One-shot commands use it to get a connectivity answer without a
// running poll loop.
func (m *Monitor) ProbeOnce(ctx context.Context) State {
	if m.cfg.OverrideFile != "" {
		m.refreshOverride()
	}
	m.runProbe(ctx)
	return m.Current()
}

// Current returns the current network state.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a callback invoked on every state change and returns
// an unsubscribe function. The callback must not call back into the
// monitor.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// pollLoop runs the probe on each tick until the context is cancelled.
func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	// Probe once up front so consumers aren't stuck on unknown for a full
	// interval.
	m.runProbe(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

// runProbe executes one probe and feeds the result into the state machine.
func (m *Monitor) runProbe(ctx context.Context) {
	err := m.cfg.Probe(ctx)

	m.mu.Lock()
	m.probed = true
	m.lastProbeOK = err == nil
	m.recomputeLocked()
	m.mu.Unlock()
}

// refreshOverride re-checks the override file and recomputes state.
func (m *Monitor) refreshOverride() {
	_, err := os.Stat(m.cfg.OverrideFile)
	forced := err == nil

	m.mu.Lock()
	if m.forcedOffline != forced {
		m.forcedOffline = forced
		if forced {
			m.logger.Printf("Override file present, forcing offline: %s", m.cfg.OverrideFile)
		} else {
			m.logger.Printf("Override file removed: %s", m.cfg.OverrideFile)
		}
		m.recomputeLocked()
	}
	m.mu.Unlock()
}

// recomputeLocked derives the externally visible state from the last probe
// and the override flag, detecting the offline-to-online edge. Callers must
// hold m.mu.
func (m *Monitor) recomputeLocked() {
	wasConnected := m.state.Connected

	connected := m.lastProbeOK && !m.forcedOffline
	reachable := ReachUnknown
	if m.probed {
		if m.lastProbeOK {
			reachable = ReachYes
		} else {
			reachable = ReachNo
		}
	}

	next := State{
		Connected:       connected,
		Reachable:       reachable,
		JustReconnected: m.state.JustReconnected,
	}

	// Edge: we were offline, now we're online. Open the reconnect window
	// once; a window already in progress is not re-triggered by flapping.
	if !wasConnected && connected && !m.state.JustReconnected {
		next.JustReconnected = true
		m.windowTimer = time.AfterFunc(m.cfg.ReconnectWindow, m.closeReconnectWindow)
	}

	if next != m.state {
		m.state = next
		m.publishLocked()
	}
}

// closeReconnectWindow clears the edge-triggered flag once the window has
// elapsed.
func (m *Monitor) closeReconnectWindow() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.JustReconnected {
		return
	}
	m.state.JustReconnected = false
	m.windowTimer = nil
	m.publishLocked()
}

// publishLocked delivers the current state to all subscribers.
// Callers must hold m.mu.
func (m *Monitor) publishLocked() {
	for _, fn := range m.subscribers {
		fn(m.state)
	}
}

// watchOverrideFile watches the override file's directory for the file
// appearing or disappearing.
func (m *Monitor) watchOverrideFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create override watcher: %w", err)
	}

	dir := filepath.Dir(m.cfg.OverrideFile)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch override directory %s: %w", dir, err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.cfg.OverrideFile {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				m.refreshOverride()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Printf("Override watcher error: %v", err)
			}
		}
	}()

	return nil
}
