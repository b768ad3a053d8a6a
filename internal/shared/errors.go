package shared

import (
	"errors"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// UserSafeMessage returns an error message that can be shown to API clients.
// Infrastructure errors are replaced with a generic text.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrConflict),
		errors.Is(err, httpx.ErrDuplicate):
		return err.Error()
	default:
		return "internal error"
	}
}
