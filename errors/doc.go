// Package errors provides standardized error handling patterns for swaybar.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// Modules use the classification to decide between retrying with backoff and
// switching to a permanent error block. The protocol layer uses it to tell a
// malformed click line (invalid, skipped) from a broken output pipe (fatal).
// IsBrokenPipe recognises the host closing its end of stdout, which is
// fatal even when nothing classified it on the way up.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	component.method: action failed: underlying error
//
// For example:
//
//	return errors.WrapTransient(err, "Poll", "fetch", "http request")
//	// Poll.fetch: http request failed: context deadline exceeded
//
// Classified errors keep the chain intact, so errors.Is and errors.As continue
// to work against the standard sentinels (ErrInvalidConfig, ErrConnectionLost, ...).
package errors
