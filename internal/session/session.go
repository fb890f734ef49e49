// Package session defines the remote-store contract the download engine
// consumes. Concrete backends live in subpackages; authentication happens
// before a Session is constructed and is never visible here.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// Session is an authenticated handle to a remote drive/photos store.
// Implementations must be safe for concurrent use.
type Session interface {
	DriveRoot(ctx context.Context) (types.RemoteEntry, error)
	PhotosRoot(ctx context.Context) (types.RemoteEntry, error)
	ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error)
	FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error)
	// FetchRange streams bytes [offset, end). It returns ErrRangeUnsupported
	// when the remote refuses or ignores the range.
	FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error)
	ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error)
}

var (
	ErrRangeUnsupported = errors.New("range requests not supported")
	ErrAuthExpired      = errors.New("session authentication expired")
	ErrNotFound         = errors.New("remote entry not found")
)

// StatusError is a transport-level failure carrying the remote status code
type StatusError struct {
	Code       int
	Op         string
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

// Is lets 401 and 404 match the session sentinels
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.Code == http.StatusUnauthorized
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return true
	}
	return false
}

// IsRetryable classifies err for the retry decorator. Auth, range and
// not-found errors are never retried, nor is context cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrRangeUnsupported) || errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// RetryAfter returns the server-requested delay carried by err, if any
func RetryAfter(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}
