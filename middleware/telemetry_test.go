package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu        sync.Mutex
	starts    []string
	successes map[string]time.Duration
	failures  map[string]time.Duration
	touched   []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		successes: make(map[string]time.Duration),
		failures:  make(map[string]time.Duration),
	}
}

func (r *fakeRecorder) RecordToolStart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, name)
}

func (r *fakeRecorder) RecordToolSuccess(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[name] = d
}

func (r *fakeRecorder) RecordToolFailure(name string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = d
}

func (r *fakeRecorder) TouchSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, id)
}

func TestTelemetryMeasuresAroundInnerStages(t *testing.T) {
	rec := newFakeRecorder()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		now = now.Add(250 * time.Millisecond)
		return "ok", nil
	}
	// The inner stage's latency must be included in the measurement.
	slowInner := func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		now = now.Add(50 * time.Millisecond)
		return next(ctx)
	}

	handler := Compose("lookup", terminal, Telemetry(rec, clock), slowInner)
	if _, err := handler(context.Background(), &ToolCall{Name: "lookup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.starts) != 1 || rec.starts[0] != "lookup" {
		t.Fatalf("starts = %v", rec.starts)
	}
	if got := rec.successes["lookup"]; got != 300*time.Millisecond {
		t.Fatalf("measured duration = %v, want 300ms", got)
	}
}

func TestTelemetryReportsFailures(t *testing.T) {
	rec := newFakeRecorder()
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return "", errors.New("boom")
	}

	handler := Compose("lookup", terminal, Telemetry(rec, nil))
	if _, err := handler(context.Background(), &ToolCall{Name: "lookup"}); err == nil {
		t.Fatal("expected the error to propagate")
	}

	if _, ok := rec.failures["lookup"]; !ok {
		t.Fatalf("failure not recorded: %v", rec.failures)
	}
	if _, ok := rec.successes["lookup"]; ok {
		t.Fatal("failed call also recorded as success")
	}
}

func TestTelemetryTouchesSessionAndFinalizesProgress(t *testing.T) {
	rec := newFakeRecorder()
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return "ok", nil
	}

	var progress []float64
	session := &Session{
		ID: "sess-1",
		Progress: func(fraction float64, message string) {
			progress = append(progress, fraction)
		},
	}

	handler := Compose("lookup", terminal, Telemetry(rec, nil))
	if _, err := handler(context.Background(), &ToolCall{Name: "lookup", Session: session}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.touched) != 1 || rec.touched[0] != "sess-1" {
		t.Fatalf("touched = %v", rec.touched)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Fatalf("progress not finalized: %v", progress)
	}
}
