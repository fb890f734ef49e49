package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/dl-alexandre/icdl/internal/session"
)

// FromAWS maps an S3 error onto the session error contract
func FromAWS(op string, err error) error {
	if err == nil {
		return nil
	}

	var awsErr awserr.Error
	if !stderrors.As(err, &awsErr) {
		return err
	}

	switch awsErr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return fmt.Errorf("%w: %s: %s", session.ErrNotFound, op, awsErr.Message())
	case "ExpiredToken", "ExpiredTokenException", "InvalidToken", "TokenRefreshRequired":
		return fmt.Errorf("%w: %s: %s", session.ErrAuthExpired, op, awsErr.Message())
	case request.CanceledErrorCode:
		return fmt.Errorf("%s: %w", op, awsErr)
	}

	var reqErr awserr.RequestFailure
	if stderrors.As(err, &reqErr) {
		code := reqErr.StatusCode()
		if code == http.StatusForbidden && awsErr.Code() == "SlowDown" {
			code = http.StatusServiceUnavailable
		}
		return &session.StatusError{Code: code, Op: op, Message: awsErr.Message()}
	}
	return fmt.Errorf("%s: %w", op, awsErr)
}
