package confirmation

import (
	"context"
	"errors"

	"mci-backend/internal/application/provisioning"
	"mci-backend/internal/application/registration"
	"mci-backend/internal/application/session"
	"mci-backend/internal/domain"
	"mci-backend/internal/identity"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoPending: the transient registration state is gone (abandoned flow
	// or a late response after completion). The user starts over.
	ErrNoPending = errors.New("Signup session expired. Please start over.")
	// ErrCodeRejected never reveals whether the email exists.
	ErrCodeRejected = errors.New("Invalid verification code. Please try again.")
)

// Service finalizes account activation: verifies the out-of-band code, runs
// the provisioning reconciler to completion, clears the transient carrier
// and hands the fresh session to the role resolver.
type Service struct {
	Provider   identity.Provider
	Pending    *registration.PendingStore
	Reconciler *provisioning.Reconciler
	Resolver   *session.Resolver
}

// Confirm verifies the 8-digit code for email. The reconciler finishes
// (success or logged failure) before the resolver's first attempt, shrinking
// the trigger-latency window it is the fallback for.
func (s *Service) Confirm(ctx context.Context, email, code string) (*domain.Session, error) {
	pending, err := s.Pending.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrNoPending
	}

	sess, err := s.Provider.VerifyOTP(ctx, email, code)
	if err != nil {
		if errors.Is(err, identity.ErrOTPRejected) {
			return nil, ErrCodeRejected
		}
		return nil, err
	}

	// The flow may have been abandoned while the verify call was in flight;
	// without the marker the late response is discarded.
	if pending, err = s.Pending.Get(ctx, email); err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrNoPending
	}

	if identityID, perr := uuid.Parse(sess.Identity.ID); perr == nil {
		s.Reconciler.Reconcile(ctx, provisioning.Input{
			IdentityID: identityID,
			FullName:   pending.FullName,
			Email:      pending.Email,
			Phone:      pending.Phone,
		})
	} else {
		log.Warn().Str("identity_id", sess.Identity.ID).Msg("skipping reconcile: malformed identity id")
	}

	if err := s.Pending.Clear(ctx, email); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("could not clear pending registration")
	}

	s.Resolver.Invalidate(sess.Identity.ID)
	s.Resolver.Resolve(ctx, sess.Identity)
	return sess, nil
}

// Resend issues a fresh deliverable code. Safe to call repeatedly: a
// provider-side "already sent" throttle reads as success to the user.
func (s *Service) Resend(ctx context.Context, email string) error {
	err := s.Provider.SendOTP(ctx, email)
	if errors.Is(err, identity.ErrOTPAlreadySent) {
		return nil
	}
	return err
}
