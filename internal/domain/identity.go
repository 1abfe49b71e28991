package domain

import "time"

// Identity is the auth-provider-owned account. This service only reacts to
// its state; it never stores passwords or confirmation status itself.
type Identity struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Confirmed bool           `json:"confirmed"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is an authenticated provider session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
}
