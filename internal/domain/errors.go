package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrLicenseNotFound distinguishes an unknown key from other missing
	// resources so clients get a stable machine-readable reason.
	ErrLicenseNotFound = errors.New("license not found")
	// ErrActivationNotFound signals a deactivation request for a machine
	// that holds no active slot on the license.
	ErrActivationNotFound = errors.New("activation not found")
	// ErrProductMismatch is returned when the caller pins a product id and
	// the key was issued for a different product.
	ErrProductMismatch       = errors.New("license issued for a different product")
	ErrLicenseRevoked        = errors.New("license revoked")
	ErrLicenseSuspended      = errors.New("license suspended")
	ErrLicenseExpired        = errors.New("license expired")
	ErrMaxActivationsReached = errors.New("maximum activations reached")
	// ErrInvalidStateTransition guards the admin lifecycle; revoked is terminal.
	ErrInvalidStateTransition = errors.New("invalid license state transition")
	// ErrKeyspaceExhausted means the bounded collision retry loop ran out.
	// This is an operational alarm, not a user error.
	ErrKeyspaceExhausted = errors.New("key generation attempts exhausted")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")

	ErrUnsupportedEventClass = errors.New("unsupported event class")
	ErrUnsupportedEventType  = errors.New("unsupported event type")
)
