package identity

import (
	"context"

	"mci-backend/internal/domain"
)

// SignUpInput carries the attributes for identity creation. Metadata travels
// with the identity so the provider-side signup trigger can see the invite
// token and display attributes.
type SignUpInput struct {
	Email    string
	Password string
	Phone    string
	Metadata map[string]any
}

// SignUpResult is the outcome of identity creation. Session is nil when the
// provider requires out-of-band confirmation before issuing one.
type SignUpResult struct {
	Identity domain.Identity
	Session  *domain.Session
}

// Provider is the hosted auth service boundary. Every call is a network
// round trip and may fail with transient or permanent errors; callers map
// the sentinel errors below to their own failure taxonomy.
type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	// SendOTP (re)issues a signup confirmation code. Safe to call repeatedly;
	// providers that throttle return ErrOTPAlreadySent.
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	// AdminCreateUser creates a pre-confirmed identity without the invite or
	// OTP flow. Used by operator tooling only.
	AdminCreateUser(ctx context.Context, in SignUpInput) (*domain.Identity, error)
}
