package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mci-backend/internal/domain"
	"mci-backend/internal/identity"
)

// Client is the hosted GoTrue auth client. BaseURL is the project URL
// (e.g. https://xyz.supabase.co); SecretKey must be the service_role key.
type Client struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	return c.HTTP
}

type gotrueUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

type gotrueError struct {
	Code             string `json:"error_code"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e *gotrueError) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.ErrorDescription
}

func (u gotrueUser) toDomain() domain.Identity {
	return domain.Identity{
		ID:        u.ID,
		Email:     u.Email,
		Confirmed: u.EmailConfirmedAt != "",
		Metadata:  u.UserMetadata,
	}
}

func (s *gotrueSession) toDomain() *domain.Session {
	return &domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(s.ExpiresIn) * time.Second),
		Identity:     s.User.toDomain(),
	}
}

func (c *Client) SignUp(ctx context.Context, in identity.SignUpInput) (*identity.SignUpResult, error) {
	body := map[string]any{
		"email":    in.Email,
		"password": in.Password,
		"data":     in.Metadata,
	}
	if in.Phone != "" {
		body["phone"] = in.Phone
	}

	var resp struct {
		gotrueUser
		Session *gotrueSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &resp); err != nil {
		return nil, err
	}
	out := &identity.SignUpResult{Identity: resp.gotrueUser.toDomain()}
	if resp.Session != nil && resp.Session.AccessToken != "" {
		out.Session = resp.Session.toDomain()
	}
	return out, nil
}

// AdminCreateUser provisions a confirmed identity through the admin API.
func (c *Client) AdminCreateUser(ctx context.Context, in identity.SignUpInput) (*domain.Identity, error) {
	body := map[string]any{
		"email":         in.Email,
		"password":      in.Password,
		"email_confirm": true,
		"user_metadata": in.Metadata,
	}
	if in.Phone != "" {
		body["phone"] = in.Phone
	}
	var user gotrueUser
	if err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", "", body, &user); err != nil {
		return nil, err
	}
	out := user.toDomain()
	out.Confirmed = true
	return &out, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var sess gotrueSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]any{"email": email, "password": password}, &sess)
	if err != nil {
		return nil, err
	}
	return sess.toDomain(), nil
}

func (c *Client) SendOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/resend", "",
		map[string]any{"type": "signup", "email": email}, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*domain.Session, error) {
	var sess gotrueSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/verify", "",
		map[string]any{"type": "signup", "email": email, "token": code}, &sess)
	if err != nil {
		return nil, err
	}
	return sess.toDomain(), nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, map[string]any{}, nil)
}

func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken,
		map[string]any{"password": newPassword}, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]any{"email": email}, nil)
}

// do sends one GoTrue request. The apikey header always carries the service
// key; bearer defaults to it unless a user access token is given.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	if bearer == "" {
		bearer = c.SecretKey
	}
	req.Header.Set("apikey", c.SecretKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var ge gotrueError
	_ = json.NewDecoder(resp.Body).Decode(&ge)
	return mapError(resp.StatusCode, &ge)
}

// mapError translates GoTrue failures into the provider error taxonomy.
func mapError(status int, ge *gotrueError) error {
	msg := ge.message()
	switch {
	case ge.Code == "user_already_exists" || strings.Contains(msg, "already registered"):
		return identity.ErrDuplicateEmail
	case ge.Code == "otp_expired" || ge.Code == "otp_disabled":
		return identity.ErrOTPRejected
	case ge.Code == "email_not_confirmed" || strings.Contains(msg, "not confirmed"):
		return identity.ErrNotConfirmed
	case ge.Code == "invalid_credentials" || strings.Contains(msg, "Invalid login credentials"):
		return identity.ErrInvalidCredentials
	case status == http.StatusTooManyRequests:
		return identity.ErrOTPAlreadySent
	case strings.Contains(msg, "Database error"):
		return identity.ErrProvisioning
	case status == http.StatusForbidden:
		return identity.ErrOTPRejected
	}
	if msg == "" {
		msg = "unexpected response"
	}
	return fmt.Errorf("auth provider: %s (status %d)", msg, status)
}
