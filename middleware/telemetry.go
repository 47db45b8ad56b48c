package middleware

import (
	"context"
	"time"
)

// Recorder receives per-call execution telemetry. toolhub's status monitor
// satisfies this; recording must never fail the caller's business result.
type Recorder interface {
	RecordToolStart(name string)
	RecordToolSuccess(name string, d time.Duration)
	RecordToolFailure(name string, d time.Duration, err error)
	TouchSession(id string)
}

// Telemetry measures each invocation and reports it to rec. The duration is
// taken around next(), so the measurement covers every inner stage and the
// terminal handler. On success the caller's progress callback, if any, is
// finalized.
func Telemetry(rec Recorder, now func() time.Time) Stage {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		rec.RecordToolStart(call.Name)
		if call.Session != nil && call.Session.ID != "" {
			rec.TouchSession(call.Session.ID)
		}

		start := now()
		result, err := next(ctx)
		elapsed := now().Sub(start)

		if err != nil {
			rec.RecordToolFailure(call.Name, elapsed, err)
			return result, err
		}
		rec.RecordToolSuccess(call.Name, elapsed)
		if call.Session != nil && call.Session.Progress != nil {
			call.Session.Progress(1, "completed")
		}
		return result, nil
	}
}
