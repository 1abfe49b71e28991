package invites

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"mci-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInviteNotFound = errors.New("Invitation not found")
	ErrInviteUsed     = errors.New("This invitation has already been used")
	ErrInviteExpired  = errors.New("This invitation has expired")
)

// Inviter display names when the issuer cannot be resolved.
const (
	systemInviterName  = "the MCI Analytics team"
	unknownInviterName = "a team member"
)

type Service struct {
	DB      *gorm.DB
	BaseURL string
}

type IssueInput struct {
	Issuer         uuid.UUID
	ExpirationDays uint // 0 = never expires
	RecipientEmail string
}

// Issue creates a new invite for the issuing user and returns the record.
// The token is 32 hex characters from crypto/rand.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*domain.Invite, error) {
	inv := &domain.Invite{
		Token:     randomHex(16),
		InvitedBy: &in.Issuer,
	}
	if in.ExpirationDays > 0 {
		t := time.Now().Add(time.Duration(in.ExpirationDays) * 24 * time.Hour)
		inv.ExpiresAt = &t
	}
	if in.RecipientEmail != "" {
		email := in.RecipientEmail
		inv.Email = &email
	}
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// IssueTest creates a system invite with no issuer and no expiry. Gated to
// non-production environments by the handler.
func (s *Service) IssueTest(ctx context.Context) (*domain.Invite, error) {
	inv := &domain.Invite{Token: randomHex(16)}
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// InviteURL builds the shareable signup link embedding the token.
func (s *Service) InviteURL(token string) string {
	return fmt.Sprintf("%s/signup?token=%s", s.BaseURL, token)
}

// ListByIssuer returns the issuer's invites, newest first. Test invites
// (no issuer) are never listed.
func (s *Service) ListByIssuer(ctx context.Context, issuer uuid.UUID) ([]domain.Invite, error) {
	var invites []domain.Invite
	if err := s.DB.WithContext(ctx).
		Where("invited_by = ?", issuer).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, err
	}
	return invites, nil
}

// Revoke deletes one of the issuer's invites. Deleting a used invite is
// permitted cleanup; it does not touch access already granted through it.
func (s *Service) Revoke(ctx context.Context, id, issuer uuid.UUID) error {
	result := s.DB.WithContext(ctx).
		Where("id = ? AND invited_by = ?", id, issuer).
		Delete(&domain.Invite{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// ValidateResult is the advisory pre-registration check. Reason priority:
// not found, then already used, then expired.
type ValidateResult struct {
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason,omitempty"`
	InviterName string `json:"inviter_name,omitempty"`
}

// Validate checks whether a token is usable and resolves the inviter's
// display name for the registration screen. Advisory only: single-use is
// enforced atomically in Consume.
func (s *Service) Validate(ctx context.Context, token string) (*ValidateResult, error) {
	var inv domain.Invite
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ValidateResult{Reason: ErrInviteNotFound.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	if inv.Used {
		return &ValidateResult{Reason: ErrInviteUsed.Error()}, nil
	}
	if inv.Expired(time.Now()) {
		return &ValidateResult{Reason: ErrInviteExpired.Error()}, nil
	}
	return &ValidateResult{Valid: true, InviterName: s.inviterName(ctx, &inv)}, nil
}

// inviterName resolves the issuer's display name through the service's
// privileged DB access; registering clients never read profiles directly.
func (s *Service) inviterName(ctx context.Context, inv *domain.Invite) string {
	if inv.InvitedBy == nil {
		return systemInviterName
	}
	var p domain.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", *inv.InvitedBy).First(&p).Error; err != nil {
		return unknownInviterName
	}
	if p.FullName == "" {
		return unknownInviterName
	}
	return p.FullName
}

// Consume marks the token used, atomically recording used_at/used_by.
// Exactly one concurrent redeemer wins; everyone else observes
// ErrInviteUsed (or expired/not-found). The transition is one-way.
func (s *Service) Consume(ctx context.Context, token string, identityID uuid.UUID) error {
	now := time.Now()
	result := s.DB.WithContext(ctx).Model(&domain.Invite{}).
		Where("token = ? AND used = ? AND (expires_at IS NULL OR expires_at > ?)", token, false, now).
		Updates(map[string]interface{}{
			"used":    true,
			"used_at": now,
			"used_by": identityID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var inv domain.Invite
	err := s.DB.WithContext(ctx).Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInviteNotFound
	}
	if err != nil {
		return err
	}
	if inv.Used {
		return ErrInviteUsed
	}
	return ErrInviteExpired
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
