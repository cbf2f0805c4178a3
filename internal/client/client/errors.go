package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	ErrRateLimited = errors.New("rate limited")
	// ErrUnexpectedResponse is returned for statuses the API never sends.
	ErrUnexpectedResponse = errors.New("unexpected server response")
)

// lifecycleErrors are matched by message because the server reports 410
// with the sentinel text only.
var lifecycleErrors = []error{
	common.ErrFileExpired,
	common.ErrFileDeleted,
	common.ErrDownloadLimitExceeded,
	common.ErrCannotExtendDeletedFile,
}

// statusError turns an error response into the error the server side
// started from, so callers can use errors.Is / errors.As as they would on
// the server.
func statusError(status int, fileID, message string) error {
	switch status {
	case http.StatusBadRequest:
		return common.NewValidationError("", "%s", message)
	case http.StatusRequestEntityTooLarge:
		return common.NewValidationError("file", "rejected by server as too large")
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusGone:
		for _, e := range lifecycleErrors {
			if e.Error() == message {
				return &common.LifecycleError{FileID: fileID, Err: e}
			}
		}
		return &common.LifecycleError{FileID: fileID, Err: common.ErrFileExpired}
	case http.StatusUnauthorized:
		return common.ErrTokenExpired
	case http.StatusForbidden:
		return common.ErrInvalidToken
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if status >= 500 {
		return fmt.Errorf("%w: %d %s", ErrUnavailable, status, message)
	}
	return fmt.Errorf("%w: %d", ErrUnexpectedResponse, status)
}
