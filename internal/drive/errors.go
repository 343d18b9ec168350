// Package drive wraps the Google Drive v3 API client with normalized types
// and error classification. The heavy lifting (request construction, JSON
// decoding, media download) is delegated to google.golang.org/api/drive/v3.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for API error classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest       = errors.New("drive: bad request")
	ErrUnauthorized     = errors.New("drive: unauthorized")
	ErrPermissionDenied = errors.New("drive: permission denied")
	ErrNotFound         = errors.New("drive: not found")
	ErrRateLimited      = errors.New("drive: rate limited")
	ErrServerError      = errors.New("drive: server error")
)

// ErrLocalWrite marks a failure of the caller-supplied destination writer
// during Download or Export. The remote stream was fine; retrying cannot
// help a full disk or an unwritable destination.
var ErrLocalWrite = errors.New("drive: destination write failed")

// APIError wraps a sentinel error with the HTTP status code and the API's
// reason string for debugging.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("drive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// rateLimitReasons are 403 reason codes the Drive API uses for quota
// exhaustion. These are transient, unlike ordinary permission 403s.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":         true,
	"userRateLimitExceeded":     true,
	"dailyLimitExceeded":        true,
	"sharingRateLimitExceeded":  true,
	"quotaExceeded":             true,
	"fileAccessRateLimitExceed": true,
}

// classifyStatus maps an HTTP status code plus reason to a sentinel error.
func classifyStatus(code int, reason string) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if rateLimitReasons[reason] {
			return ErrRateLimited
		}

		return ErrPermissionDenied
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrBadRequest
	}
}

// wrapErr converts errors returned by the API client into APIError with a
// classified sentinel. Non-API errors (transport failures) pass through.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	reason := ""
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}

	return &APIError{
		StatusCode: gerr.Code,
		Reason:     reason,
		Message:    gerr.Message,
		Err:        classifyStatus(gerr.Code, reason),
	}
}

// IsRetryable reports whether an operation that failed with err should be
// retried. Rate limits and server errors are transient; so are transport
// errors without an HTTP response. Classified client errors and context
// cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrLocalWrite) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errors.Is(apiErr, ErrRateLimited) || errors.Is(apiErr, ErrServerError)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return IsRetryable(wrapErr(gerr))
	}

	// No HTTP response at all — connection reset, DNS failure, timeout.
	return true
}
