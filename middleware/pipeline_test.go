package middleware

import (
	"context"
	"errors"
	"testing"
)

func TestComposeRunsStagesInOrder(t *testing.T) {
	var order []string

	stage := func(name string) Stage {
		return func(ctx context.Context, call *ToolCall, next Next) (string, error) {
			order = append(order, name+":in")
			result, err := next(ctx)
			order = append(order, name+":out")
			return result, err
		}
	}

	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		order = append(order, "terminal")
		return "done", nil
	}

	handler := Compose("demo", terminal, stage("a"), stage("b"), stage("c"))
	result, err := handler(context.Background(), &ToolCall{Name: "demo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Fatalf("result = %q, want %q", result, "done")
	}

	want := []string{"a:in", "b:in", "c:in", "terminal", "c:out", "b:out", "a:out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, order[i], want[i], order)
		}
	}
}

func TestComposeFillsCallName(t *testing.T) {
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return call.Name, nil
	}
	handler := Compose("fallback", terminal)

	result, err := handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fallback" {
		t.Fatalf("call name = %q, want %q", result, "fallback")
	}
}

func TestStageShortCircuitSkipsTerminal(t *testing.T) {
	terminalRan := false
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		terminalRan = true
		return "from terminal", nil
	}

	shortCircuit := func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		return "from stage", nil
	}

	handler := Compose("demo", terminal, shortCircuit)
	result, err := handler(context.Background(), &ToolCall{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from stage" {
		t.Fatalf("result = %q, want %q", result, "from stage")
	}
	if terminalRan {
		t.Fatal("terminal handler ran despite short-circuit")
	}
}

func TestDoubleNextPanicsWithInternalError(t *testing.T) {
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return "", nil
	}
	bad := func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		if _, err := next(ctx); err != nil {
			return "", err
		}
		return next(ctx)
	}

	handler := Compose("demo", terminal, bad)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic from the second next() call")
		}
		ie, ok := r.(*InternalError)
		if !ok {
			t.Fatalf("panic value = %T, want *InternalError", r)
		}
		if ie.Message != "next() called multiple times" {
			t.Fatalf("panic message = %q", ie.Message)
		}
	}()
	_, _ = handler(context.Background(), &ToolCall{})
}

func TestErrorBoundaryPassesUserErrorUnchanged(t *testing.T) {
	want := NewUserError("quota exceeded")
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return "", want
	}

	handler := Compose("demo", terminal, ErrorBoundary(nil))
	_, err := handler(context.Background(), &ToolCall{Name: "demo"})

	ue, ok := AsUserError(err)
	if !ok {
		t.Fatalf("error = %v, want a *UserError", err)
	}
	if ue != want {
		t.Fatalf("user error was rewritten: got %q, want %q", ue.Message, want.Message)
	}
}

func TestErrorBoundaryNormalizesInternalFailures(t *testing.T) {
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		return "", errors.New("pq: connection refused on 10.0.0.5")
	}

	handler := Compose("lookup_user", terminal, ErrorBoundary(nil))
	_, err := handler(context.Background(), &ToolCall{Name: "lookup_user"})

	ue, ok := AsUserError(err)
	if !ok {
		t.Fatalf("error = %v, want a *UserError", err)
	}
	if ue.Message != `The tool "lookup_user" failed unexpectedly. Please try again.` {
		t.Fatalf("message = %q", ue.Message)
	}
}

func TestErrorBoundaryDoesNotRecoverInternalErrorPanic(t *testing.T) {
	terminal := func(ctx context.Context, call *ToolCall) (string, error) {
		panic(&InternalError{Message: "next() called multiple times"})
	}
	handler := Compose("demo", terminal, ErrorBoundary(nil))

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected the InternalError panic to propagate through the boundary")
		}
	}()
	_, _ = handler(context.Background(), &ToolCall{})
}
