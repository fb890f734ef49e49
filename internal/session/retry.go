package session

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// RetryConfig controls the retrying decorator
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig mirrors the utils retry constants
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: utils.DefaultMaxRetries,
		BaseDelay:  time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(utils.MaxRetryDelayMs) * time.Millisecond,
	}
}

type retrySession struct {
	inner  Session
	cfg    RetryConfig
	logger logging.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps s so that every call is retried with exponential backoff
// on transient failures. Only the opening of a fetch is retried; a stream
// that breaks mid-transfer surfaces to the caller.
func WithRetry(s Session, cfg RetryConfig, logger logging.Logger) Session {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Duration(utils.DefaultRetryDelayMs) * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	}
	return &retrySession{inner: s, cfg: cfg, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func executeWithRetry[T any](ctx context.Context, r *retrySession, op string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := r.logger.WithContext(ctx)
	start := time.Now()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				logger.Debug("Session call recovered",
					logging.F("op", op),
					logging.F("attempts", attempt+1),
					logging.F("duration_ms", time.Since(start).Milliseconds()),
				)
			}
			return result, nil
		}

		if !IsRetryable(lastErr) {
			return result, lastErr
		}

		if attempt < r.cfg.MaxRetries {
			delay := r.backoff(attempt, lastErr)
			logger.Warn("Session call failed (retryable)",
				logging.F("op", op),
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			if err := r.sleep(ctx, delay); err != nil {
				return result, err
			}
		}
	}

	logger.Error("Session call failed after max retries",
		logging.F("op", op),
		logging.F("attempts", r.cfg.MaxRetries+1),
		logging.F("error", lastErr.Error()),
	)
	return result, lastErr
}

// backoff is base * 2^attempt capped at MaxDelay with ±25% jitter; a
// Retry-After from the server wins over the computed delay.
func (r *retrySession) backoff(attempt int, err error) time.Duration {
	if d, ok := RetryAfter(err); ok {
		if d > r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
		return d
	}

	delay := r.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}

	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay += jitter
	}
	if delay < 0 {
		delay = r.cfg.BaseDelay
	}
	return delay
}

func (r *retrySession) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	return executeWithRetry(ctx, r, "drive-root", func() (types.RemoteEntry, error) {
		return r.inner.DriveRoot(ctx)
	})
}

func (r *retrySession) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	return executeWithRetry(ctx, r, "photos-root", func() (types.RemoteEntry, error) {
		return r.inner.PhotosRoot(ctx)
	})
}

func (r *retrySession) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	return executeWithRetry(ctx, r, "list", func() ([]types.RemoteEntry, error) {
		return r.inner.ListChildren(ctx, entryID)
	})
}

func (r *retrySession) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	return executeWithRetry(ctx, r, "fetch", func() (io.ReadCloser, error) {
		return r.inner.FetchFull(ctx, entryID)
	})
}

func (r *retrySession) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	return executeWithRetry(ctx, r, "fetch-range", func() (io.ReadCloser, error) {
		return r.inner.FetchRange(ctx, entryID, offset)
	})
}

func (r *retrySession) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	return executeWithRetry(ctx, r, "resolve-album", func() (types.RemoteEntry, error) {
		return r.inner.ResolveAlbum(ctx, nameOrID)
	})
}
