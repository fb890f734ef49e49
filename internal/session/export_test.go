package session

import (
	"context"
	"time"
)

// WithRetryNoSleep is WithRetry with the backoff sleep recorded instead of
// slept.
func WithRetryNoSleep(s Session, cfg RetryConfig, delays *[]time.Duration) Session {
	r := WithRetry(s, cfg, nil).(*retrySession)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return r
}
