package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invite is a single-use signup token (invites table).
// expires_at NULL means the invite never expires; invited_by NULL marks a
// system-generated test invite.
type Invite struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Token     string     `gorm:"column:token;not null;uniqueIndex" json:"token"`
	InvitedBy *uuid.UUID `gorm:"column:invited_by;type:uuid" json:"invited_by"`
	Email     *string    `gorm:"column:email" json:"email"`
	Used      bool       `gorm:"column:used;not null;default:false" json:"used"`
	UsedAt    *time.Time `gorm:"column:used_at" json:"used_at"`
	UsedBy    *uuid.UUID `gorm:"column:used_by;type:uuid" json:"used_by"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Invite) TableName() string {
	return "invites"
}

func (i *Invite) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the invite's validity window has passed at t.
// An invite without expires_at never expires, regardless of used.
func (i *Invite) Expired(t time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(t)
}
