// Package errors classifies the failures a status bar runs into so callers
// can decide between retrying, skipping and stopping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
)

// ErrorClass says what a caller should do about an error
type ErrorClass int

const (
	// ErrorTransient failures go away on their own: a source that is down,
	// a bus that restarted. Modules retry them with backoff.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid failures come from bad input: an undecodable click line,
	// a response of the wrong shape. Retrying the same input cannot help.
	ErrorInvalid
	// ErrorFatal failures end the work they belong to: a module out of
	// attempts, a host that stopped reading the bar.
	ErrorFatal
)

// String returns the class name used in logs and metric labels
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels shared by the bar's packages
var (
	// Sources and buses
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrUnexpectedStatus   = errors.New("unexpected response status")

	// Payloads
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Module retry policy
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError carries a class alongside the wrapped error. Component
// and Operation name where it was raised.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// transientHints are substrings of unclassified errors, mostly from
// net/http and os/exec, that point at a passing condition
var transientHints = []string{
	"timeout",
	"connection",
	"network",
	"temporary",
	"unavailable",
	"busy",
}

// IsBrokenPipe reports whether err means the reader on the other end of a
// pipe has gone away. For the bar that is the host closing its stdout.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe)
}

// IsTransient reports whether err is worth retrying. The outermost
// ClassifiedError decides; otherwise the sentinels and hints above do.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	if IsBrokenPipe(err) {
		return false
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should stop whatever produced it
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return IsBrokenPipe(err) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrMaxRetriesExceeded)
}

// IsInvalid reports whether err comes from bad input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) || errors.Is(err, ErrParsingFailed)
}

// Classify returns the class of err. Errors nothing recognises are treated
// as transient so a module keeps trying.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap adds context in the form "component.method: action failed: err"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err and marks it retryable
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err and marks it as ending the caller's work
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err and marks it as caused by bad input
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}
