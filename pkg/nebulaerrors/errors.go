// Package nebulaerrors provides structured error handling for nebulaflow with
// error categorization, stage tagging, and stack capture. It defines the error
// taxonomy shared by connectors, the run orchestrator, and the scheduler.
//
// # Overview
//
// The package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Stage labels for pipeline execution failures
//   - Automatic stack trace capture
//   - Flattening of a whole causal chain into one readable message
//
// # Basic Usage
//
//	if err := reader.Read(ctx, cfg, nil); err != nil {
//	    return nebulaerrors.ExecutionError(nebulaerrors.StageSourceRead, err)
//	}
//
//	// Store a debugger-free summary on the run log
//	msg := nebulaerrors.Flatten(err)
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Use WithDetail before
// sharing an error across goroutines.
package nebulaerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error, used for error handling strategies,
// run log reporting, and monitoring.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents malformed mapping or configuration
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing pipelines or run logs
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents engine configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeUnknownConnector represents a type token with no registered implementation
	ErrorTypeUnknownConnector ErrorType = "unknown_connector"
	// ErrorTypeConnector represents an I/O failure inside a reader or writer
	ErrorTypeConnector ErrorType = "connector"
	// ErrorTypeExecution represents a stage-tagged pipeline execution failure
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeConcurrentRun represents a violated per-pipeline exclusivity
	ErrorTypeConcurrentRun ErrorType = "concurrent_run"
	// ErrorTypeCancelled represents a run aborted by a cancellation signal
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Stage identifies one of the four execution phases of a pipeline run.
type Stage string

const (
	StageSourceRead       Stage = "SourceRead"
	StageMapping          Stage = "Mapping"
	StageTransform        Stage = "Transform"
	StageDestinationWrite Stage = "DestinationWrite"
)

// ChainSeparator joins the messages of a flattened error chain.
const ChainSeparator = " --> "

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Stage: Execution stage for ErrorTypeExecution errors
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Stage   Stage
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning the error type, message, and
// cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the call
// stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the original
// error as the cause. If the error is already a structured Error, its stack
// trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// UnknownConnectorType reports a type token with no registered implementation.
func UnknownConnectorType(role, token string) *Error {
	return New(ErrorTypeUnknownConnector, fmt.Sprintf("no %s connector registered for type %q", role, token)).
		WithDetail("type", token)
}

// ConnectorError wraps an I/O failure raised inside a reader or writer.
func ConnectorError(provider, operation string, cause error) *Error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	return Wrap(cause, ErrorTypeConnector, fmt.Sprintf("%s %s failed", provider, operation)).
		WithDetail("provider", provider).
		WithDetail("operation", operation)
}

// ExecutionError tags a failure with the pipeline stage it occurred in.
func ExecutionError(stage Stage, cause error) *Error {
	e := Wrap(cause, ErrorTypeExecution, fmt.Sprintf("%s stage failed", stage))
	if e == nil {
		e = New(ErrorTypeExecution, fmt.Sprintf("%s stage failed", stage))
	}
	e.Stage = stage
	return e
}

// ValidationError reports malformed mapping or configuration.
func ValidationError(format string, args ...interface{}) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// ConcurrentRunRejected reports a second trigger for a pipeline that already
// has a run in flight.
func ConcurrentRunRejected(pipelineID string) *Error {
	return New(ErrorTypeConcurrentRun, fmt.Sprintf("pipeline %s already has a run in progress", pipelineID)).
		WithDetail("pipeline_id", pipelineID)
}

// Cancelled reports a run aborted by its cancellation signal.
func Cancelled(cause error) *Error {
	return Wrap(cause, ErrorTypeCancelled, "run cancelled")
}

// NotFound reports a missing entity.
func NotFound(kind, id string) *Error {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s %s not found", kind, id)).
		WithDetail("id", id)
}

// IsType checks whether any error in the chain is of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// StageOf returns the stage of the outermost execution error in the chain.
func StageOf(err error) (Stage, bool) {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return "", false
		}
		if e.Type == ErrorTypeExecution && e.Stage != "" {
			return e.Stage, true
		}
		err = e.Cause
	}
	return "", false
}

// Flatten walks the full causal chain and joins each non-empty message with
// ChainSeparator. Messages already contained in their parent are emitted once.
//
//	DestinationWrite stage failed --> postgresql write failed --> connection refused
func Flatten(err error) string {
	if err == nil {
		return ""
	}

	var parts []string
	appendPart := func(msg string) {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return
		}
		if len(parts) > 0 && parts[len(parts)-1] == msg {
			return
		}
		parts = append(parts, msg)
	}

	var walk func(error)
	walk = func(err error) {
		for err != nil {
			switch e := err.(type) {
			case *Error:
				appendPart(e.Message)
				err = e.Cause
				continue
			case interface{ Unwrap() []error }:
				appendPart(ownMessage(err, nil))
				for _, inner := range e.Unwrap() {
					walk(inner)
				}
				return
			}

			next := errors.Unwrap(err)
			appendPart(ownMessage(err, next))
			err = next
		}
	}
	walk(err)

	return strings.Join(parts, ChainSeparator)
}

// ownMessage strips the text contributed by the wrapped cause from err's
// message, so fmt.Errorf("read rows: %w", cause) yields "read rows".
func ownMessage(err, cause error) string {
	msg := err.Error()
	if cause == nil {
		if _, joined := err.(interface{ Unwrap() []error }); joined {
			return ""
		}
		return msg
	}
	causeMsg := cause.Error()
	if trimmed, ok := strings.CutSuffix(msg, causeMsg); ok {
		return strings.TrimRight(strings.TrimSpace(trimmed), ":")
	}
	return msg
}

// captureStack captures the current call stack, skipping the given number of
// frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
