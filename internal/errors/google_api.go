package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dl-alexandre/icdl/internal/session"
	"google.golang.org/api/googleapi"
)

// FromGoogleAPI maps a Drive API error onto the session error contract.
// Non-API errors are returned unchanged.
func FromGoogleAPI(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return err
	}

	code := apiErr.Code
	if code == http.StatusForbidden {
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = http.StatusTooManyRequests
			}
		}
	}

	statusErr := &session.StatusError{
		Code:       code,
		Op:         op,
		Message:    apiErr.Message,
		RetryAfter: parseRetryAfter(apiErr.Header),
	}
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", session.ErrAuthExpired, statusErr.Error())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", session.ErrNotFound, statusErr.Error())
	}
	return statusErr
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// ParseRetryAfter is exported for backends that read raw HTTP responses
func ParseRetryAfter(h http.Header) time.Duration {
	return parseRetryAfter(h)
}
