// Package errors provides structured error handling for seisflow.
// It implements coded errors with context and stack traces, and encodes the
// fatal vs record-local taxonomy used throughout the pruning run.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx) - all fatal to the run
	CodeFileNotFound   Code = "E101"
	CodeFileRead       Code = "E102"
	CodeFileSeek       Code = "E103"
	CodeFilePermission Code = "E104"
	CodeBadRecord      Code = "E105"
	CodeBadSelection   Code = "E106"

	// Prune/repack errors (2xx) - record-local unless noted
	CodeBadTrimBoundary     Code = "E201"
	CodeUnsupportedEncoding Code = "E202"
	CodeFullyTrimmed        Code = "E203"
	CodeDecodeFailed        Code = "E204"
	CodeInvariantViolated   Code = "E205" // fatal

	// Output errors (3xx) - all fatal
	CodeWriteFailed Code = "E301"
	CodeMkdirFailed Code = "E302"
	CodeBadTemplate Code = "E303"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeConfig          Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all seisflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on the error code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// BadTrimBoundary creates a clip-window validation error for one record.
func BadTrimBoundary(identity string, offset int64) *Error {
	return New(CodeBadTrimBoundary, "bad trim boundary").
		WithContext("identity", identity).
		WithContext("offset", offset)
}

// UnsupportedEncoding signals that a record's sample encoding cannot be
// repacked; the record is emitted untrimmed rather than failing.
func UnsupportedEncoding(encoding uint8) *Error {
	return New(CodeUnsupportedEncoding, "encoding not supported for repack").
		WithContext("encoding", encoding)
}

// FullyTrimmed signals that a clip would drop every sample of a record.
func FullyTrimmed(identity string, offset int64) *Error {
	return New(CodeFullyTrimmed, "all samples trimmed").
		WithContext("identity", identity).
		WithContext("offset", offset)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var sfErr *Error
	if errors.As(err, &sfErr) {
		return sfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var sfErr *Error
	if errors.As(err, &sfErr) {
		return sfErr.Code
	}
	return CodeUnknown
}

// IsRecordLocal reports whether the error is recoverable for a single
// record: the record is skipped or passed through and the run continues.
func IsRecordLocal(err error) bool {
	switch GetCode(err) {
	case CodeBadTrimBoundary, CodeUnsupportedEncoding, CodeFullyTrimmed, CodeDecodeFailed:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must abort the whole run.
func IsFatal(err error) bool {
	return err != nil && !IsRecordLocal(err)
}
