package registration

import "errors"

// ValidationError is a client-side constraint violation. It never reaches
// the identity provider and is rendered as inline field feedback.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var (
	// ErrDuplicateEmail steers the user toward sign-in rather than retrying
	// registration with different input.
	ErrDuplicateEmail = errors.New("This email is already registered. Please use a different email or sign in.")
	// ErrProvisioning is deliberately reassuring: the identity may have been
	// partially created, so the user should try signing in, not re-register.
	ErrProvisioning = errors.New("There was an error creating your account. The profile may still be creating. Please wait a moment and try signing in, or contact support if the problem persists.")
)
