package signup

import (
	"context"
	"errors"
	"strings"

	"mci-backend/internal/application/confirmation"
	"mci-backend/internal/application/emails"
	"mci-backend/internal/application/invites"
	"mci-backend/internal/application/registration"
	"mci-backend/internal/domain"
	"mci-backend/internal/middleware"
	"mci-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds dependencies for the registration and confirmation flow.
type Handlers struct {
	Registrator *registration.Service
	Confirmer   *confirmation.Service
	Emails      emails.Sender
	Rdb         *redis.Client
	Config      middleware.SessionConfig
}

// Register POST /api/v1/signup/register — invite-gated account creation.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req registration.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	result, err := h.Registrator.Register(c.Context(), req)
	if err != nil {
		var verr *registration.ValidationError
		switch {
		case errors.As(err, &verr):
			return response.Error(c, verr.Message, fiber.StatusBadRequest, fiber.Map{"field": verr.Field})
		case errors.Is(err, invites.ErrInviteNotFound),
			errors.Is(err, invites.ErrInviteUsed),
			errors.Is(err, invites.ErrInviteExpired):
			return response.Error(c, err.Error(), fiber.StatusForbidden, nil)
		case errors.Is(err, registration.ErrDuplicateEmail):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		case errors.Is(err, registration.ErrProvisioning):
			return response.Error(c, err.Error(), fiber.StatusBadGateway, nil)
		default:
			log.Error().Err(err).Msg("registration failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	return response.SuccessCreated(c, "Account created. Check your email for a verification code.", fiber.Map{
		"email":              result.Email,
		"needs_confirmation": result.NeedsConfirmation,
	}, nil)
}

// VerifyRequest body for code confirmation.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyCode POST /api/v1/signup/verify — confirm the 8-digit code, finish
// provisioning and open a session.
func (h *Handlers) VerifyCode(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return response.Error(c, "Email and code are required", fiber.StatusBadRequest, nil)
	}
	if len(req.Code) != confirmation.CodeLength {
		return response.Error(c, "Invalid verification code. Please try again.", fiber.StatusBadRequest, nil)
	}
	email := h.Registrator.FullEmail(req.Email)

	sess, err := h.Confirmer.Confirm(c.Context(), email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, confirmation.ErrNoPending):
			return response.Error(c, err.Error(), fiber.StatusGone, nil)
		case errors.Is(err, confirmation.ErrCodeRejected):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		default:
			log.Error().Err(err).Msg("verification failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	// Welcome email is best effort; account activation never waits on it.
	if h.Emails != nil {
		go func(to, name string) {
			if err := h.Emails.SendWelcome(context.Background(), to, name); err != nil {
				log.Warn().Err(err).Str("email", to).Msg("welcome email failed")
			}
		}(sess.Identity.Email, firstName(sess.Identity))
	}

	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		IdentityID:  sess.Identity.ID,
		Email:       sess.Identity.Email,
		AccessToken: sess.AccessToken,
	})
	if err := h.Rdb.SAdd(context.Background(), userSessionsPrefix+sess.Identity.ID, sessionID).Err(); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)

	return response.Success(c, "Email verified", fiber.Map{
		"user": fiber.Map{
			"identity_id": sess.Identity.ID,
			"email":       sess.Identity.Email,
		},
	}, nil)
}

// ResendRequest body.
type ResendRequest struct {
	Email string `json:"email"`
}

// ResendCode POST /api/v1/signup/resend — reissue the confirmation code.
func (h *Handlers) ResendCode(c *fiber.Ctx) error {
	var req ResendRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return response.Error(c, "Email is required", fiber.StatusBadRequest, nil)
	}
	email := h.Registrator.FullEmail(req.Email)
	if err := h.Confirmer.Resend(c.Context(), email); err != nil {
		log.Error().Err(err).Msg("resend failed")
		return response.Error(c, "Could not resend the code. Please try again.", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Verification code sent", nil, nil)
}

func firstName(ident domain.Identity) string {
	full, _ := ident.Metadata["full_name"].(string)
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	return strings.Fields(full)[0]
}
