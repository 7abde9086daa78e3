package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// Transient reports whether the status is worth retrying (5xx).
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= 500
}

// Permanent reports whether the status must fail immediately without
// consuming retry budget. Auth rejections are the canonical case.
func (e *HTTPError) Permanent() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsPermanent reports whether err is a non-retryable upstream rejection.
func IsPermanent(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Permanent()
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an
// HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
