package errors

// Crawl semantics: which failures end a run and which only end an item

import (
	"context"
	stderrs "errors"
)

// Retryable reports whether a later attempt at the same remote call may succeed
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	default:
		return false
	}
}

// Fatal reports whether err must abort the whole stage rather than a single item.
// Auth failures, malformed inputs, local IO failures and cancellation are fatal
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		// a per-request timeout surfaces as Unavailable; a bare context error means the run was stopped
		if _, ours := As(err); !ours {
			return true
		}
	}
	switch CodeOf(err) {
	case ErrorCodeUnauthorized, ErrorCodeValidation, ErrorCodeJSON, ErrorCodeIO,
		ErrorCodeInvalidArgument, ErrorCodeCanceled:
		return true
	default:
		return false
	}
}

// Permanent reports whether an item failure will not change on a later run,
// so the item can be recorded and skipped from now on
func Permanent(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeForbidden, ErrorCodeNotFound:
		return true
	default:
		return false
	}
}

// IsMalformed reports whether err describes structurally invalid input
func IsMalformed(err error) bool {
	c := CodeOf(err)
	return c == ErrorCodeValidation || c == ErrorCodeJSON
}
