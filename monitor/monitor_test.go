package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMonitor(clock *fakeClock) *Monitor {
	return New(Options{
		ServiceName:    "toolhub-test",
		ServiceVersion: "0.0.0",
		DependencyTTL:  30 * time.Second,
		Now:            clock.Now,
	})
}

func TestSessionLifecycle(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	id := m.RecordSessionConnected("sess-1")
	if id != "sess-1" {
		t.Fatalf("resolved id = %q", id)
	}

	snap := m.Snapshot()
	if len(snap.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(snap.Sessions))
	}
	connectedAt := snap.Sessions[0].ConnectedAt

	// Reconnecting an existing id only bumps LastSeenAt.
	clock.Advance(time.Minute)
	m.RecordSessionConnected("sess-1")
	snap = m.Snapshot()
	if len(snap.Sessions) != 1 {
		t.Fatalf("reconnect duplicated the session: %d records", len(snap.Sessions))
	}
	if !snap.Sessions[0].ConnectedAt.Equal(connectedAt) {
		t.Fatal("reconnect rewrote ConnectedAt")
	}
	if !snap.Sessions[0].LastSeenAt.After(connectedAt) {
		t.Fatal("reconnect did not bump LastSeenAt")
	}

	m.RecordSessionDisconnected("sess-1")
	if n := len(m.Snapshot().Sessions); n != 0 {
		t.Fatalf("sessions after disconnect = %d", n)
	}
}

func TestAnonymousSessionIDs(t *testing.T) {
	m := newTestMonitor(newFakeClock())

	first := m.RecordSessionConnected("")
	second := m.RecordSessionConnected("")
	if first != "anonymous-1" || second != "anonymous-2" {
		t.Fatalf("anonymous ids = %q, %q", first, second)
	}
}

func TestDisconnectUnknownSessionIsNoOp(t *testing.T) {
	m := newTestMonitor(newFakeClock())
	m.RecordSessionConnected("sess-1")

	m.RecordSessionDisconnected("never-seen")
	m.RecordSessionDisconnected("")
	if n := len(m.Snapshot().Sessions); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
}

func TestTouchSession(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)
	m.RecordSessionConnected("sess-1")

	clock.Advance(time.Second)
	m.TouchSession("sess-1")
	m.TouchSession("unknown") // ignored

	snap := m.Snapshot()
	if snap.Sessions[0].TotalExecutions != 1 {
		t.Fatalf("executions = %d", snap.Sessions[0].TotalExecutions)
	}
	if !snap.Sessions[0].LastSeenAt.After(snap.Sessions[0].ConnectedAt) {
		t.Fatal("touch did not bump LastSeenAt")
	}
}

func TestAnnotateSession(t *testing.T) {
	m := newTestMonitor(newFakeClock())
	m.RecordSessionConnected("sess-1")

	m.AnnotateSession("sess-1", "pro", "u-1", "o-1")
	m.AnnotateSession("unknown", "ultra", "", "") // ignored

	rec := m.Snapshot().Sessions[0]
	if rec.Tier != "pro" || rec.UserID != "u-1" || rec.OrgID != "o-1" {
		t.Fatalf("annotated record = %+v", rec)
	}
}

func TestRunningAverageIsExact(t *testing.T) {
	m := newTestMonitor(newFakeClock())

	for _, d := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond} {
		m.RecordToolStart("lookup")
		m.RecordToolSuccess("lookup", d)
	}

	stats := m.Snapshot().Tools["lookup"]
	if stats.Invocations != 3 || stats.Successes != 3 || stats.Failures != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AverageDurationMs != 200 {
		t.Fatalf("average = %v ms, want exactly 200", stats.AverageDurationMs)
	}
	if stats.TotalDurationMs != 600 {
		t.Fatalf("total = %v ms, want 600", stats.TotalDurationMs)
	}
}

func TestFailuresFoldIntoAverageAndLastError(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	m.RecordToolStart("lookup")
	m.RecordToolSuccess("lookup", 100*time.Millisecond)
	m.RecordToolStart("lookup")
	m.RecordToolFailure("lookup", 300*time.Millisecond, errors.New("boom"))

	snap := m.Snapshot()
	stats := snap.Tools["lookup"]
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.AverageDurationMs != 200 {
		t.Fatalf("average = %v ms, want 200 (failures count toward the mean)", stats.AverageDurationMs)
	}
	if stats.LastError == nil || stats.LastError.Message != "boom" {
		t.Fatalf("tool last error = %+v", stats.LastError)
	}
	if snap.LastError == nil || snap.LastError.Tool != "lookup" {
		t.Fatalf("global last error = %+v", snap.LastError)
	}
}

func TestInFlightTracksOpenInvocations(t *testing.T) {
	m := newTestMonitor(newFakeClock())

	m.RecordToolStart("a")
	m.RecordToolStart("b")
	if got := m.Snapshot().InFlight; got != 2 {
		t.Fatalf("in flight = %d, want 2", got)
	}

	m.RecordToolSuccess("a", time.Millisecond)
	if got := m.Snapshot().InFlight; got != 1 {
		t.Fatalf("in flight = %d, want 1", got)
	}

	// A spurious completion clamps at zero instead of going negative.
	m.RecordToolSuccess("a", time.Millisecond)
	m.RecordToolSuccess("a", time.Millisecond)
	if got := m.Snapshot().InFlight; got != 0 {
		t.Fatalf("in flight = %d, want 0", got)
	}
}

func TestDisconnectDoesNotAlterToolStats(t *testing.T) {
	m := newTestMonitor(newFakeClock())
	m.RecordSessionConnected("sess-1")
	m.RecordToolStart("lookup")
	m.RecordToolSuccess("lookup", 50*time.Millisecond)

	m.RecordSessionDisconnected("sess-1")

	stats := m.Snapshot().Tools["lookup"]
	if stats.Invocations != 1 || stats.Successes != 1 {
		t.Fatalf("stats changed after disconnect: %+v", stats)
	}
}

func TestDependencyResultsAreCachedWithinTTL(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	probeCalls := 0
	m.RegisterDependency("db", func(ctx context.Context) (DependencyResult, error) {
		probeCalls++
		return DependencyResult{Status: StatusUp}, nil
	})

	ctx := context.Background()
	m.EvaluateDependencies(ctx, false)
	clock.Advance(10 * time.Second)
	results := m.EvaluateDependencies(ctx, false)
	if probeCalls != 1 {
		t.Fatalf("probe ran %d times within the TTL, want 1", probeCalls)
	}
	if results["db"].Status != StatusUp {
		t.Fatalf("result = %+v", results["db"])
	}

	// Past the TTL the probe runs again.
	clock.Advance(30 * time.Second)
	m.EvaluateDependencies(ctx, false)
	if probeCalls != 2 {
		t.Fatalf("probe ran %d times past the TTL, want 2", probeCalls)
	}

	// Force bypasses the TTL.
	m.EvaluateDependencies(ctx, true)
	if probeCalls != 3 {
		t.Fatalf("probe ran %d times after force, want 3", probeCalls)
	}
}

func TestDependencyProbeErrorYieldsDownResult(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	m.RegisterDependency("redis", func(ctx context.Context) (DependencyResult, error) {
		return DependencyResult{}, errors.New("dial tcp: connection refused")
	})

	results := m.EvaluateDependencies(context.Background(), true)
	res := results["redis"]
	if res.Status != StatusDown {
		t.Fatalf("status = %q, want down", res.Status)
	}
	if res.Error == "" {
		t.Fatal("error text missing from down result")
	}
	if !res.CheckedAt.Equal(clock.Now()) {
		t.Fatalf("CheckedAt = %v, want %v (re-stamped on every outcome)", res.CheckedAt, clock.Now())
	}
}

func TestDependencyProbePanicYieldsDownResult(t *testing.T) {
	m := newTestMonitor(newFakeClock())

	m.RegisterDependency("flaky", func(ctx context.Context) (DependencyResult, error) {
		panic("nil map write")
	})
	m.RegisterDependency("stable", func(ctx context.Context) (DependencyResult, error) {
		return DependencyResult{Status: StatusUp}, nil
	})

	results := m.EvaluateDependencies(context.Background(), true)
	if results["flaky"].Status != StatusDown {
		t.Fatalf("flaky status = %q, want down", results["flaky"].Status)
	}
	if results["stable"].Status != StatusUp {
		t.Fatalf("a panicking probe affected its sibling: %+v", results["stable"])
	}
}

func TestReRegisterDependencyDropsCachedResult(t *testing.T) {
	m := newTestMonitor(newFakeClock())

	m.RegisterDependency("db", func(ctx context.Context) (DependencyResult, error) {
		return DependencyResult{Status: StatusDown}, nil
	})
	m.EvaluateDependencies(context.Background(), true)

	replacementCalls := 0
	m.RegisterDependency("db", func(ctx context.Context) (DependencyResult, error) {
		replacementCalls++
		return DependencyResult{Status: StatusUp}, nil
	})

	results := m.EvaluateDependencies(context.Background(), false)
	if replacementCalls != 1 {
		t.Fatalf("replacement probe ran %d times, want 1 (stale result must be dropped)", replacementCalls)
	}
	if results["db"].Status != StatusUp {
		t.Fatalf("result = %+v", results["db"])
	}
}

func TestSnapshotIsIsolatedFromLaterMutation(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	m.RecordToolStart("lookup")
	m.RecordToolSuccess("lookup", 100*time.Millisecond)
	snap := m.Snapshot()

	m.RecordToolStart("lookup")
	m.RecordToolFailure("lookup", 100*time.Millisecond, errors.New("later"))

	if snap.Tools["lookup"].Failures != 0 {
		t.Fatal("snapshot shares state with the live monitor")
	}
	if snap.LastError != nil {
		t.Fatal("snapshot picked up an error recorded after it was taken")
	}
}

func TestUptime(t *testing.T) {
	clock := newFakeClock()
	m := newTestMonitor(clock)

	clock.Advance(90 * time.Second)
	snap := m.Snapshot()
	if snap.UptimeSeconds != 90 {
		t.Fatalf("uptime = %v, want 90", snap.UptimeSeconds)
	}
	if !snap.StartTime.Equal(m.StartTime()) {
		t.Fatal("snapshot start time mismatch")
	}
}
