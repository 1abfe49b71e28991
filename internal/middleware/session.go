package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionConfig for the Redis-backed session layer.
type SessionConfig struct {
	Secret            string
	RedisURL          string
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	sessionCookieName  = "mci.sid"
	SessionCookieName  = "mci.sid" // exported for logout (clear cookie)
	sessionPrefix      = "session:"
	SessionRedisPrefix = "session:" // exported for logout (Del key)
	sessionMaxAge      = 24 * time.Hour
)

// SessionUser is the shape stored in the session under "user". AccessToken is
// the provider token needed for provider-side sign-out and password changes.
type SessionUser struct {
	IdentityID  string `json:"identity_id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	AccessToken string `json:"access_token"`
}

// Session returns a Fiber middleware that loads/saves session state from
// Redis. Cookie "mci.sid" carries "s:"+id; Redis keys are "session:"+id.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)

	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(sessionCookieName)
		if strings.HasPrefix(sessionID, "s:") {
			parts := strings.SplitN(sessionID[2:], ".", 2)
			sessionID = parts[0]
		}
		key := sessionPrefix + sessionID

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(context.Background(), key).Bytes()
			if err == nil {
				_ = json.Unmarshal(b, &data)
			}
		}
		if data == nil {
			data = make(map[string]interface{})
		}

		c.Locals("session_data", data)
		if u, ok := data["user"]; ok {
			c.Locals("user", u)
		} else {
			c.Locals("user", nil)
		}
		c.Locals("session_id", sessionID)

		err := c.Next()
		if err != nil {
			return err
		}

		// Persist if we have a session id (e.g. after login)
		if sid, _ := c.Locals("session_id").(string); sid != "" {
			updated, _ := c.Locals("session_data").(map[string]interface{})
			if updated != nil {
				b, _ := json.Marshal(updated)
				rdb.Set(context.Background(), sessionPrefix+sid, b, sessionMaxAge)
			}
		}
		return nil
	}, rdb, nil
}

// GetSessionID returns the current session ID from context (for login/logout).
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals("session_id").(string)
	return sid
}

// SetSessionUser sets the user in the session and marks it for save.
// Call after login/confirmation; use RegenerateSessionID first to get a new id.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals("session_data").(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"identity_id":  user.IdentityID,
		"email":        user.Email,
		"full_name":    user.FullName,
		"access_token": user.AccessToken,
	}
	c.Locals("session_data", data)
	c.Locals("user", data["user"])
}

// GetSessionUser returns the typed session user, or nil when signed out.
func GetSessionUser(c *fiber.Ctx) *SessionUser {
	m, ok := c.Locals("user").(map[string]interface{})
	if !ok {
		return nil
	}
	u := &SessionUser{}
	u.IdentityID, _ = m["identity_id"].(string)
	u.Email, _ = m["email"].(string)
	u.FullName, _ = m["full_name"].(string)
	u.AccessToken, _ = m["access_token"].(string)
	if u.IdentityID == "" {
		return nil
	}
	return u
}

// RegenerateSessionID creates a new session ID and sets it in Locals (cookie
// set by handler). Cookie value should be "s:"+returned ID.
func RegenerateSessionID(c *fiber.Ctx) string {
	newID := uuid.New().String()
	c.Locals("session_id", newID)
	return newID
}

// DestroySession clears user and session data from Locals; caller must clear
// cookie and Redis.
func DestroySession(c *fiber.Ctx) {
	c.Locals("session_data", make(map[string]interface{}))
	c.Locals("user", nil)
}

// SessionCookieConfig returns cookie options (for SetCookie/ClearCookie).
func SessionCookieConfig(cfg SessionConfig) fiber.Cookie {
	sameSite := "Lax"
	if cfg.AllowCrossSiteDev {
		sameSite = "None"
	}
	secure := cfg.IsProduction && cfg.AllowCrossSiteDev
	return fiber.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
