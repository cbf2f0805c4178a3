package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

// errorStatus maps a service error to a status code and a message that is
// safe to return. Storage and unknown errors get a generic message.
func errorStatus(err error) (int, string) {
	var (
		ve  *common.ValidationError
		le  *common.LifecycleError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, common.ErrPrivacyViolation):
		return http.StatusBadRequest, "request refused"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "file not found"
	case errors.As(err, &le):
		return http.StatusGone, le.Err.Error()
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "manage token expired"
	case errors.Is(err, common.ErrInvalidToken):
		return http.StatusForbidden, "invalid manage token"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
