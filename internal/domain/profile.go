package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the primary authorization record (profiles table). Exactly one
// per confirmed identity; id equals the identity id. Created by the signup
// trigger or, as a fallback, by the provisioning reconciler.
type Profile struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Role      Role       `gorm:"column:role;not null;default:client" json:"role"`
	ClientID  *uuid.UUID `gorm:"column:client_id;type:uuid" json:"client_id"`
	FullName  string     `gorm:"column:full_name" json:"full_name"`
	Email     string     `gorm:"column:email" json:"email"`
	Phone     *string    `gorm:"column:phone" json:"phone"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// UserRecord is the denormalized display/role record (clients table). Same
// id and single-record invariant as Profile.
type UserRecord struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Email     string    `gorm:"column:email" json:"email"`
	Phone     *string   `gorm:"column:phone" json:"phone"`
	AppRole   AppRole   `gorm:"column:app_role;not null;default:Viewer" json:"app_role"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRecord) TableName() string {
	return "clients"
}
