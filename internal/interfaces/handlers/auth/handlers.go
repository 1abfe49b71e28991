package auth

import (
	"context"
	"errors"

	"mci-backend/internal/application/registration"
	sessionsvc "mci-backend/internal/application/session"
	"mci-backend/internal/identity"
	"mci-backend/internal/middleware"
	"mci-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	Provider    identity.Provider
	Resolver    *sessionsvc.Resolver
	Registrator *registration.Service
	Rdb         *redis.Client
	Config      middleware.SessionConfig
	ResetURL    string
}

// LoginRequest body. Email may be the bare corporate local part.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login POST /api/v1/auth/login — authenticate against the identity
// provider, create a cookie session and kick off role resolution.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	email := h.Registrator.FullEmail(req.Email)

	sess, err := h.Provider.SignInWithPassword(c.Context(), email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			return response.Error(c, "Invalid email or password", fiber.StatusUnauthorized, nil)
		case errors.Is(err, identity.ErrNotConfirmed):
			return response.Error(c, "Please verify your email before signing in", fiber.StatusUnauthorized, nil)
		default:
			log.Error().Err(err).Msg("login failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}

	// Fresh sign-in invalidates any cached role state for this identity.
	h.Resolver.Invalidate(sess.Identity.ID)
	state := h.Resolver.Resolve(c.Context(), sess.Identity)

	sessionID := middleware.RegenerateSessionID(c)
	fullName := ""
	if state.Profile != nil {
		fullName = state.Profile.FullName
	}
	middleware.SetSessionUser(c, middleware.SessionUser{
		IdentityID:  sess.Identity.ID,
		Email:       sess.Identity.Email,
		FullName:    fullName,
		AccessToken: sess.AccessToken,
	})

	ctx := context.Background()
	if err := h.Rdb.SAdd(ctx, userSessionsPrefix+sess.Identity.ID, sessionID).Err(); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)

	return response.Success(c, "Login successful", fiber.Map{
		"user": userPayload(sess.Identity.ID, sess.Identity.Email, state),
	}, nil)
}

// Me GET /api/v1/auth/me — return the current session user with resolved
// role state.
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	user := middleware.GetSessionUser(c)

	if sessionID == "" {
		cookieVal := c.Cookies(middleware.SessionCookieName)
		log.Info().Str("path", "/auth/me").
			Bool("cookie_present", cookieVal != "").
			Msg("auth/me: no session id")
	}
	if user == nil {
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}

	state := h.Resolver.Snapshot(user.IdentityID)
	return response.Success(c, "Authenticated", fiber.Map{
		"user": userPayload(user.IdentityID, user.Email, state),
	}, nil)
}

// Logout DELETE /api/v1/auth/logout — invalidate provider session, drop
// Redis keys, clear the cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	user := middleware.GetSessionUser(c)

	ctx := context.Background()
	if user != nil {
		if err := h.Resolver.SignOut(ctx, user.IdentityID, user.AccessToken); err != nil {
			log.Warn().Err(err).Msg("provider sign-out failed")
		}
		if sessionID != "" {
			_ = h.Rdb.SRem(ctx, userSessionsPrefix+user.IdentityID, sessionID).Err()
		}
	}
	if sessionID != "" {
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}

	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	if h.Config.IsProduction && !h.Config.AllowCrossSiteDev {
		cookie.Domain = ".wearemci.com"
	}
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}

// ForgotPasswordRequest body.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword POST /api/v1/auth/forgot-password — request a provider
// reset email. Always answers the same way to avoid leaking which addresses
// exist.
func (h *Handlers) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return response.Error(c, "Email is required", fiber.StatusBadRequest, nil)
	}
	email := h.Registrator.FullEmail(req.Email)
	if err := h.Provider.RequestPasswordReset(c.Context(), email, h.ResetURL); err != nil {
		log.Warn().Err(err).Msg("password reset request failed")
	}
	return response.Success(c, "If that account exists, a reset email has been sent", nil, nil)
}

// ResetPasswordRequest body. The access token comes from the provider's
// reset link.
type ResetPasswordRequest struct {
	AccessToken string `json:"access_token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword POST /api/v1/auth/reset-password.
func (h *Handlers) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.AccessToken == "" || req.NewPassword == "" {
		return response.Error(c, "Access token and new password are required", fiber.StatusBadRequest, nil)
	}
	if verr := registration.CheckPassword(req.NewPassword); verr != nil {
		return response.Error(c, verr.Message, fiber.StatusBadRequest, fiber.Map{"field": verr.Field})
	}
	if err := h.Provider.UpdatePassword(c.Context(), req.AccessToken, req.NewPassword); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return response.Error(c, "Reset link is invalid or expired", fiber.StatusUnauthorized, nil)
		}
		log.Error().Err(err).Msg("password update failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Password updated successfully", nil, nil)
}

func userPayload(identityID, email string, state sessionsvc.State) fiber.Map {
	out := fiber.Map{
		"identity_id": identityID,
		"email":       email,
		"app_role":    state.AppRole,
		"is_admin":    state.IsAdmin(),
		"loading":     state.Loading,
	}
	if state.Profile != nil {
		out["full_name"] = state.Profile.FullName
		out["role"] = state.Profile.Role
	}
	return out
}
