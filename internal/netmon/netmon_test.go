package netmon

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// flippableProbe is a prober whose result can be toggled between polls.
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
	if p.ok {
		return nil
	}
	return errors.New("probe target unreachable")
}

func newTestMonitor(t *testing.T, probe *flippableProbe, window time.Duration) *Monitor {
	t.Helper()

	m := New(Config{
		PollInterval:    10 * time.Millisecond,
		ReconnectWindow: window,
		Probe:           probe.probe,
	}, log.New(os.Stderr, "[test] ", 0))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

// waitFor polls until the predicate holds or the deadline expires.
func waitFor(t *testing.T, what string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitialStateUnknownUntilProbed(t *testing.T) {
	m := New(Config{Probe: func(ctx context.Context) error { return nil }}, nil)

	state := m.Current()
	if state.Reachable != ReachUnknown {
		t.Errorf("expected unknown reachability before first probe, got %s", state.Reachable)
	}
	if state.Connected {
		t.Error("expected disconnected before first probe")
	}
}

func TestProbeSuccessMarksConnected(t *testing.T) {
	probe := &flippableProbe{ok: true}
	m := newTestMonitor(t, probe, time.Second)

	waitFor(t, "connected state", func() bool { return m.Current().Connected })
	if got := m.Current().Reachable; got != ReachYes {
		t.Errorf("expected reachable, got %s", got)
	}
}

func TestReconnectEdgeIsEdgeTriggered(t *testing.T) {
	probe := &flippableProbe{ok: false}
	m := newTestMonitor(t, probe, 80*time.Millisecond)

	waitFor(t, "offline state", func() bool { return m.Current().Reachable == ReachNo })

	// Flip online: the edge opens the reconnect window.
	probe.set(true)
	waitFor(t, "reconnect edge", func() bool { return m.Current().JustReconnected })

	// The window auto-clears while connectivity stays up.
	waitFor(t, "window to close", func() bool {
		s := m.Current()
		return s.Connected && !s.JustReconnected
	})
}

func TestSubscribeSeesTransitions(t *testing.T) {
	probe := &flippableProbe{ok: false}
	m := newTestMonitor(t, probe, 50*time.Millisecond)

	var mu sync.Mutex
	var reconnects int
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if s.JustReconnected {
			reconnects++
		}
	})
	defer unsubscribe()

	waitFor(t, "offline state", func() bool { return m.Current().Reachable == ReachNo })
	probe.set(true)
	waitFor(t, "reconnect edge", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconnects >= 1
	})
}

func TestOverrideFileForcesOffline(t *testing.T) {
	overrideFile := filepath.Join(t.TempDir(), "force-offline")
	probe := &flippableProbe{ok: true}

	m := New(Config{
		PollInterval:    10 * time.Millisecond,
		ReconnectWindow: 50 * time.Millisecond,
		OverrideFile:    overrideFile,
		Probe:           probe.probe,
	}, log.New(os.Stderr, "[test] ", 0))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(m.Stop)

	waitFor(t, "connected state", func() bool { return m.Current().Connected })

	// Touch the override file: the monitor goes offline even though the
	// probe still succeeds.
	if err := os.WriteFile(overrideFile, nil, 0644); err != nil {
		t.Fatalf("failed to create override file: %v", err)
	}
	waitFor(t, "forced offline", func() bool { return !m.Current().Connected })

	// Removing it restores connectivity and fires the reconnect edge.
	if err := os.Remove(overrideFile); err != nil {
		t.Fatalf("failed to remove override file: %v", err)
	}
	waitFor(t, "reconnect after override removed", func() bool {
		return m.Current().Connected
	})
}

func TestStopCancelsReconnectWindowTimer(t *testing.T) {
	probe := &flippableProbe{}
	m := newTestMonitor(t, probe, 200*time.Millisecond)

	waitFor(t, "offline baseline", func() bool { return m.Current().Reachable == ReachNo })
	probe.set(true)
	waitFor(t, "reconnect edge", func() bool { return m.Current().JustReconnected })

	var after int
	var mu sync.Mutex
	m.Subscribe(func(State) {
		mu.Lock()
		after++
		mu.Unlock()
	})

	// Stop while the reconnect window is still open.
	m.Stop()
	mu.Lock()
	atStop := after
	mu.Unlock()

	// Sleep past the window; the cancelled timer must not publish.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if after != atStop {
		t.Errorf("subscriber published after Stop: %d -> %d", atStop, after)
	}
}

func TestProbeOnceWithoutPollLoop(t *testing.T) {
	probe := &flippableProbe{}
	m := New(Config{Probe: probe.probe}, log.New(os.Stderr, "[test] ", 0))

	state := m.ProbeOnce(context.Background())
	if state.Connected || state.Reachable != ReachNo {
		t.Errorf("failed probe must report unreachable, got %+v", state)
	}

	probe.set(true)
	state = m.ProbeOnce(context.Background())
	if !state.Connected || state.Reachable != ReachYes {
		t.Errorf("successful probe must report connected, got %+v", state)
	}
}

func TestProbeOnceHonorsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "offline")
	if err := os.WriteFile(override, nil, 0o644); err != nil {
		t.Fatalf("failed to create override file: %v", err)
	}

	probe := &flippableProbe{}
	probe.set(true)
	m := New(Config{Probe: probe.probe, OverrideFile: override}, log.New(os.Stderr, "[test] ", 0))

	if state := m.ProbeOnce(context.Background()); state.Connected {
		t.Errorf("override file must force offline, got %+v", state)
	}
}
