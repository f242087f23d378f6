package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// StatusError is returned when the analysis service responds with a
// non-2xx status. It carries the full response so callers can classify
// the failure and surface upstream detail.
type StatusError struct {
	Status int
	Body   []byte
	Header http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned status %d", e.Status)
}

// StatusCode reports the HTTP status of the failed response.
func (e *StatusError) StatusCode() int { return e.Status }

// RetryAfter reads the retry-delay hint from a rate-limited response.
// It checks the Retry-After header first, then a retry_after field in the
// JSON body. Returns 0 when no hint is present.
func (e *StatusError) RetryAfter() time.Duration {
	if v := e.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	for _, path := range []string{"retry_after", "retry_after_seconds"} {
		if v := gjson.GetBytes(e.Body, path); v.Exists() {
			if secs := v.Float(); secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Status == http.StatusTooManyRequests
}

// IsAuthError reports whether err is an upstream 401 or 403. These are
// never retried.
func IsAuthError(err error) bool {
	var serr *StatusError
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Status == http.StatusUnauthorized || serr.Status == http.StatusForbidden
}

// IsServerError reports whether err is an upstream 5xx.
func IsServerError(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Status >= 500
}

// retryableStatus lists the statuses the retry loop treats as transient.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
