// Package errors converts session and local failures into the CLI error
// taxonomy carried by utils.AppError.
package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/dl-alexandre/icdl/internal/session"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// Classify converts err into an *utils.AppError. Errors that already are
// AppErrors pass through. The original error stays reachable via Unwrap so
// errors.Is works against the session sentinels.
func Classify(err error, ctxFields map[string]interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	builder := utils.NewCLIError(codeFor(err), err.Error()).WithCause(err)
	for k, v := range ctxFields {
		builder.WithContext(k, v)
	}

	var statusErr *session.StatusError
	if stderrors.As(err, &statusErr) {
		builder.WithHTTPStatus(statusErr.Code).WithRetryable(statusErr.Retryable())
		if statusErr.Code >= 500 {
			builder.WithContext("serverError", true)
		}
	}

	switch codeFor(err) {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "refresh the session token with 'icdl auth set-token'")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retry later")
	case utils.ErrCodeNetworkError:
		builder.WithRetryable(true)
	}

	return builder.Err()
}

func codeFor(err error) string {
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return utils.ErrCodeCancelled
	case stderrors.Is(err, session.ErrAuthExpired):
		return utils.ErrCodeAuthExpired
	case stderrors.Is(err, session.ErrNotFound):
		return utils.ErrCodeFileNotFound
	case stderrors.Is(err, session.ErrRangeUnsupported):
		return utils.ErrCodeRangeUnsupported
	}

	var statusErr *session.StatusError
	if stderrors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusForbidden:
			return utils.ErrCodePermissionDenied
		case http.StatusTooManyRequests:
			return utils.ErrCodeRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return utils.ErrCodeTimeout
		case http.StatusBadRequest:
			return utils.ErrCodeInvalidArgument
		}
		if statusErr.Code >= 500 {
			return utils.ErrCodeNetworkError
		}
		return utils.ErrCodeUnknown
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return utils.ErrCodeTimeout
		}
		return utils.ErrCodeNetworkError
	}
	return utils.ErrCodeUnknown
}

// TransferIO wraps a local or stream failure during a transfer
func TransferIO(path string, err error) error {
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Classify(err, map[string]interface{}{"path": path})
	}
	return utils.NewCLIError(utils.ErrCodeTransferIO, err.Error()).
		WithContext("path", path).
		WithCause(err).
		Err()
}
