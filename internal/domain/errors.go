package domain

import "github.com/cockroachdb/errors"

// Error taxonomy shared by services, the dispatcher, and the API layer.
// Wrap with errors.Wrapf or errors.Mark; classify with errors.Is.
var (
	ErrTenantMismatch = errors.New("resource belongs to another tenant")
	ErrNotFound       = errors.New("not found")
	ErrQuotaExceeded  = errors.New("message quota exceeded")
	ErrPairingExpired = errors.New("pairing code expired")
	ErrAuthFailed     = errors.New("channel credential rejected")
	ErrDataError      = errors.New("invalid data for calculation")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrUnauthorized   = errors.New("unauthorized")
)

// NotFoundf returns an ErrNotFound-marked error with a specific message.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Validationf returns an ErrValidation-marked error with a specific message.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// DataErrorf returns an ErrDataError-marked error with a specific message.
func DataErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDataError)
}
