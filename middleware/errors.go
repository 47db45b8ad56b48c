package middleware

import (
	"context"
	"errors"
	"fmt"

	"toolhub/logger"
)

// UserError carries a message that is safe to surface to the caller. It
// never wraps raw peer payloads, stack traces, or credentials.
type UserError struct {
	Message string
	Extras  map[string]any
}

func (e *UserError) Error() string {
	return e.Message
}

// NewUserError creates a UserError with a plain message.
func NewUserError(msg string) *UserError {
	return &UserError{Message: msg}
}

// NewUserErrorf creates a UserError with a formatted message.
func NewUserErrorf(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// AsUserError unwraps err into a *UserError if it carries one.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// InternalError marks a programming error inside the pipeline itself, such
// as a stage advancing the chain twice. It is raised via panic and must
// never be recovered by ErrorBoundary.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}

// ErrorBoundary normalizes all inner errors into exactly one UserError. It
// must be the outermost registered stage. A pre-normalized UserError passes
// through unchanged; anything else is logged with its original cause and
// replaced by a generic user-facing message.
func ErrorBoundary(log logger.Logger) Stage {
	if log == nil {
		log = logger.NewNoop()
	}
	return func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		result, err := next(ctx)
		if err == nil {
			return result, nil
		}
		if ue, ok := AsUserError(err); ok {
			return "", ue
		}
		log.Error("tool execution failed", err, logger.String("tool", call.Name))
		return "", NewUserErrorf("The tool %q failed unexpectedly. Please try again.", call.Name)
	}
}
