package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mci-backend/internal/application/invites"
	"mci-backend/internal/domain"
	"mci-backend/internal/identity"
	"mci-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service orchestrates invite-gated account creation: input validation,
// identity creation, atomic token consumption and OTP hand-off.
type Service struct {
	Invites     *invites.Service
	Provider    identity.Provider
	Pending     *PendingStore
	EmailDomain string
}

// RegisterInput is the signup form. Email is collected as a local part only;
// the corporate domain is appended server-side.
type RegisterInput struct {
	Token           string `json:"token"`
	FullName        string `json:"full_name"`
	Phone           string `json:"phone"`
	EmailLocalPart  string `json:"email_local_part"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// RegisterResult reports the created identity. NeedsConfirmation is true
// when the provider returned no session and an OTP was issued instead.
type RegisterResult struct {
	Identity          domain.Identity `json:"identity"`
	Session           *domain.Session `json:"session,omitempty"`
	Email             string          `json:"email"`
	NeedsConfirmation bool            `json:"needs_confirmation"`
}

// Register runs the full submit path. Identity creation completes (or
// definitively fails) before any OTP is issued; token consumption is the
// atomic single-use gate.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	// Advisory re-check so used/expired invites fail before an identity is
	// created. The atomic claim below is still the authority.
	check, err := s.Invites.Validate(ctx, in.Token)
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, inviteError(check.Reason)
	}

	email := s.FullEmail(in.EmailLocalPart)
	phone := validation.NormalizePhone(in.Phone)
	fullName := strings.TrimSpace(in.FullName)

	result, err := s.Provider.SignUp(ctx, identity.SignUpInput{
		Email:    email,
		Password: in.Password,
		Phone:    phone,
		Metadata: map[string]any{
			"full_name":    fullName,
			"phone":        phone,
			"invite_token": in.Token,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, identity.ErrProvisioning):
			return nil, ErrProvisioning
		default:
			return nil, err
		}
	}

	identityID, err := uuid.Parse(result.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("provider returned malformed identity id: %w", err)
	}
	if err := s.Invites.Consume(ctx, in.Token, identityID); err != nil {
		// Lost the redemption race after identity creation; the identity
		// stays unconfirmed and unprovisioned.
		return nil, err
	}

	out := &RegisterResult{Identity: result.Identity, Session: result.Session, Email: email}
	if result.Session != nil {
		return out, nil
	}

	// No session: confirmation required. Re-issue the code explicitly; a
	// throttled "already sent" is fine, the signup send already went out.
	out.NeedsConfirmation = true
	if err := s.Provider.SendOTP(ctx, email); err != nil && !errors.Is(err, identity.ErrOTPAlreadySent) {
		log.Warn().Err(err).Str("email", email).Msg("could not resend confirmation code")
	}

	if err := s.Pending.Put(ctx, PendingRegistration{Email: email, FullName: fullName, Phone: phone}); err != nil {
		return nil, err
	}
	return out, nil
}

// FullEmail synthesizes the corporate address from a local part. Input that
// already carries a domain passes through unchanged.
func (s *Service) FullEmail(localPart string) string {
	localPart = strings.TrimSpace(localPart)
	if strings.Contains(localPart, "@") {
		return localPart
	}
	return localPart + "@" + s.EmailDomain
}

// CheckPassword validates a candidate password against the account policy.
func CheckPassword(pw string) *ValidationError {
	if !validation.IsValidPassword(pw) {
		return &ValidationError{Field: "password", Message: "Password does not meet requirements"}
	}
	return nil
}

func (s *Service) validate(in RegisterInput) error {
	if !validation.IsValidFullName(in.FullName) {
		return &ValidationError{Field: "full_name", Message: "Full name is required"}
	}
	if !validation.IsValidEmailLocalPart(in.EmailLocalPart) {
		return &ValidationError{Field: "email_local_part", Message: "Email is required"}
	}
	if !validation.IsValidPassword(in.Password) {
		return &ValidationError{Field: "password", Message: "Password does not meet requirements"}
	}
	if in.Password != in.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: "Passwords do not match"}
	}
	if in.Token == "" {
		return &ValidationError{Field: "token", Message: "Invalid invitation. Please use a valid invitation link."}
	}
	return nil
}

func inviteError(reason string) error {
	switch reason {
	case invites.ErrInviteUsed.Error():
		return invites.ErrInviteUsed
	case invites.ErrInviteExpired.Error():
		return invites.ErrInviteExpired
	default:
		return invites.ErrInviteNotFound
	}
}
