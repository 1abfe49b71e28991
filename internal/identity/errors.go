package identity

import "errors"

var (
	ErrDuplicateEmail    = errors.New("Email already registered")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	// ErrOTPRejected is deliberately generic: it must not reveal whether the
	// email exists.
	ErrOTPRejected    = errors.New("Invalid verification code")
	ErrOTPAlreadySent = errors.New("A code was already sent recently")
	ErrNotConfirmed   = errors.New("Email not confirmed")
	// ErrProvisioning covers provider-side trigger/database failures during
	// signup where the identity may have been partially created.
	ErrProvisioning = errors.New("Provider provisioning error")
)
