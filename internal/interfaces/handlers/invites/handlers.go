package invites

import (
	"context"
	"errors"

	"mci-backend/internal/application/emails"
	invsvc "mci-backend/internal/application/invites"
	"mci-backend/internal/domain"
	"mci-backend/internal/middleware"
	"mci-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers holds dependencies for invite management endpoints.
type Handlers struct {
	Invites      *invsvc.Service
	Emails       emails.Sender
	IsProduction bool
}

// CreateRequest body. ExpirationDays 0 means the invite never expires.
type CreateRequest struct {
	ExpirationDays uint   `json:"expiration_days"`
	RecipientEmail string `json:"recipient_email"`
}

// Create POST /api/v1/invites — issue a new invite for the signed-in admin.
// When a recipient email is given the invitation email is sent best effort.
func (h *Handlers) Create(c *fiber.Ctx) error {
	user := middleware.GetSessionUser(c)
	if user == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	issuer, err := uuid.Parse(user.IdentityID)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	inv, err := h.Invites.Issue(c.Context(), invsvc.IssueInput{
		Issuer:         issuer,
		ExpirationDays: req.ExpirationDays,
		RecipientEmail: req.RecipientEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("invite creation failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	link := h.Invites.InviteURL(inv.Token)
	if h.Emails != nil && req.RecipientEmail != "" {
		inviter := user.FullName
		if inviter == "" {
			inviter = "A team member"
		}
		go func(to, link, inviter string) {
			if err := h.Emails.SendInvite(context.Background(), to, link, inviter); err != nil {
				log.Warn().Err(err).Str("email", to).Msg("invite email failed")
			}
		}(req.RecipientEmail, link, inviter)
	}

	return response.SuccessCreated(c, "Invite created", fiber.Map{
		"invite": invitePayload(inv),
		"link":   link,
	}, nil)
}

// List GET /api/v1/invites — the signed-in admin's invites, newest first.
func (h *Handlers) List(c *fiber.Ctx) error {
	user := middleware.GetSessionUser(c)
	if user == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	issuer, err := uuid.Parse(user.IdentityID)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	list, err := h.Invites.ListByIssuer(c.Context(), issuer)
	if err != nil {
		log.Error().Err(err).Msg("invite listing failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	out := make([]fiber.Map, 0, len(list))
	for i := range list {
		m := invitePayload(&list[i])
		m["link"] = h.Invites.InviteURL(list[i].Token)
		out = append(out, m)
	}
	return response.Success(c, "Invites retrieved", fiber.Map{"invites": out}, nil)
}

// Revoke DELETE /api/v1/invites/:id — delete one of the admin's own invites.
func (h *Handlers) Revoke(c *fiber.Ctx) error {
	user := middleware.GetSessionUser(c)
	if user == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	issuer, err := uuid.Parse(user.IdentityID)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid invite id", fiber.StatusBadRequest, nil)
	}

	if err := h.Invites.Revoke(c.Context(), id, issuer); err != nil {
		if errors.Is(err, invsvc.ErrInviteNotFound) {
			return response.NotFound(c, err.Error())
		}
		log.Error().Err(err).Msg("invite revocation failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Invite revoked", nil, nil)
}

// CheckToken GET /api/v1/invites/check/:token — public advisory validation
// for the signup screen. Never reveals issuer identifiers, only the display
// name.
func (h *Handlers) CheckToken(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return response.Error(c, "Token is required", fiber.StatusBadRequest, nil)
	}
	result, err := h.Invites.Validate(c.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("invite validation failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Invite checked", fiber.Map{
		"valid":        result.Valid,
		"reason":       result.Reason,
		"inviter_name": result.InviterName,
	}, nil)
}

// CreateTest POST /api/v1/invites/test — mint a system invite with no
// issuer and no expiry. Refused in production.
func (h *Handlers) CreateTest(c *fiber.Ctx) error {
	if h.IsProduction {
		return response.NotFound(c, "Not Found")
	}
	inv, err := h.Invites.IssueTest(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("test invite creation failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Test invite created", fiber.Map{
		"invite": invitePayload(inv),
		"link":   h.Invites.InviteURL(inv.Token),
	}, nil)
}

func invitePayload(inv *domain.Invite) fiber.Map {
	return fiber.Map{
		"id":         inv.ID,
		"token":      inv.Token,
		"email":      inv.Email,
		"used":       inv.Used,
		"used_at":    inv.UsedAt,
		"expires_at": inv.ExpiresAt,
		"created_at": inv.CreatedAt,
	}
}
