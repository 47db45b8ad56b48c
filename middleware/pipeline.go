// Package middleware implements the tool-invocation pipeline: an ordered,
// reversible chain of stages wrapping a terminal handler. Stages run in
// registration order going in and unwind in reverse coming out, so a stage
// may run code both before and after next().
package middleware

import (
	"context"

	"toolhub/logger"
)

// Session describes the caller of a tool invocation. All fields are
// optional; a missing tier is treated as the baseline tier.
type Session struct {
	ID     string
	Tier   Tier
	UserID string
	OrgID  string

	Logger logger.Logger

	// Progress, when set, receives completion updates for long-running
	// tools. fraction is in [0,1].
	Progress func(fraction float64, message string)
}

// ToolCall is the ephemeral per-invocation context threaded through the
// stage chain.
type ToolCall struct {
	Name    string
	Args    map[string]any
	Session *Session
}

// Log returns the session logger, or a no-op logger when the call carries
// none.
func (c *ToolCall) Log() logger.Logger {
	if c.Session != nil && c.Session.Logger != nil {
		return c.Session.Logger
	}
	return logger.NewNoop()
}

// Handler executes a tool call and returns its rendered result.
type Handler func(ctx context.Context, call *ToolCall) (string, error)

// Next advances the chain to the following stage (or the terminal handler).
// A stage may call it zero times to short-circuit, or exactly once. Calling
// it twice is a programming error and panics with *InternalError.
type Next func(ctx context.Context) (string, error)

// Stage is one link of the chain.
type Stage func(ctx context.Context, call *ToolCall, next Next) (string, error)

// Compose wires stages around a terminal handler. The name is carried on
// every ToolCall so stages can identify the tool they are wrapping.
func Compose(name string, terminal Handler, stages ...Stage) Handler {
	return func(ctx context.Context, call *ToolCall) (string, error) {
		if call == nil {
			call = &ToolCall{}
		}
		if call.Name == "" {
			call.Name = name
		}
		return run(ctx, call, terminal, stages)
	}
}

// run consumes the stage list head-first. Each stage receives a
// continuation over the tail, guarded by an explicit consumed flag so that
// re-invoking an already-consumed continuation fails loudly instead of
// re-entering the chain.
func run(ctx context.Context, call *ToolCall, terminal Handler, stages []Stage) (string, error) {
	if len(stages) == 0 {
		return terminal(ctx, call)
	}

	head, tail := stages[0], stages[1:]
	consumed := false
	next := func(ctx context.Context) (string, error) {
		if consumed {
			panic(&InternalError{Message: "next() called multiple times"})
		}
		consumed = true
		return run(ctx, call, terminal, tail)
	}
	return head(ctx, call, next)
}
