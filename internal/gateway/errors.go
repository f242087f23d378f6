package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/compresr-ai/semantic-gateway/internal/upstream"
)

// ErrorClass partitions adapter failures so each transport can decide
// whether to raise a protocol error (validation, not_found) or return an
// error-flagged result (everything else).
type ErrorClass string

const (
	ClassValidation  ErrorClass = "validation"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassAuth        ErrorClass = "auth"
	ClassServer      ErrorClass = "server"
	ClassNetwork     ErrorClass = "network"
	ClassShape       ErrorClass = "shape"
	ClassNotFound    ErrorClass = "not_found"
)

// OpError is the adapter's error type. Message is safe to return to the
// caller; Err retains the underlying cause for logging.
type OpError struct {
	Class      ErrorClass
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *OpError) Error() string { return e.Message }

func (e *OpError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *OpError {
	return &OpError{Class: ClassValidation, Message: fmt.Sprintf(format, args...)}
}

// classifyUpstream maps a failed upstream call onto an error class with a
// human-readable message.
func classifyUpstream(err error) *OpError {
	var serr *upstream.StatusError
	if errors.As(err, &serr) {
		switch {
		case upstream.IsRateLimited(err):
			hint := serr.RetryAfter()
			msg := "analysis service is rate limited"
			if hint > 0 {
				msg = fmt.Sprintf("analysis service is rate limited, retry after %s", hint)
			}
			return &OpError{Class: ClassRateLimited, Message: msg, RetryAfter: hint, Err: err}
		case upstream.IsAuthError(err):
			return &OpError{
				Class:   ClassAuth,
				Message: fmt.Sprintf("authentication with the analysis service failed (status %d), check the API key", serr.Status),
				Err:     err,
			}
		default:
			return &OpError{
				Class:   ClassServer,
				Message: fmt.Sprintf("analysis service error (status %d)", serr.Status),
				Err:     err,
			}
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &OpError{
			Class:   ClassServer,
			Message: "analysis service is unavailable, requests temporarily suspended",
			Err:     err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &OpError{Class: ClassNetwork, Message: "request canceled", Err: err}
	}
	return &OpError{
		Class:   ClassNetwork,
		Message: fmt.Sprintf("could not reach the analysis service: %v", err),
		Err:     err,
	}
}
