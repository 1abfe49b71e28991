package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mci-backend/internal/application/registration"
	sessionsvc "mci-backend/internal/application/session"
	"mci-backend/internal/domain"
	"mci-backend/internal/identity"
	"mci-backend/internal/infrastructure/localauth"
	"mci-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type authFixture struct {
	app      *fiber.App
	provider *localauth.Provider
	db       *gorm.DB
}

func setupAuthTest(t *testing.T) *authFixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invite{}, &domain.Profile{}, &domain.UserRecord{}))
	require.NoError(t, localauth.Migrate(db))

	provider := localauth.New(db)
	sessionCfg := middleware.SessionConfig{RedisURL: "redis://" + mr.Addr()}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	resolver := sessionsvc.NewResolver(&sessionsvc.GormStore{DB: db}, provider)
	resolver.RetryDelay = 10 * time.Millisecond

	h := &Handlers{
		Provider:    provider,
		Resolver:    resolver,
		Registrator: &registration.Service{EmailDomain: "wearemci.com"},
		Rdb:         rdb,
		Config:      sessionCfg,
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(sessionHandler)
	app.Post("/auth/login", h.Login)
	app.Get("/auth/me", h.Me)
	app.Delete("/auth/logout", h.Logout)
	app.Post("/auth/forgot-password", h.ForgotPassword)
	return &authFixture{app: app, provider: provider, db: db}
}

// createAccount provisions a confirmed identity with matching profile rows.
func (f *authFixture) createAccount(t *testing.T, email string, role domain.Role) string {
	ident, err := f.provider.AdminCreateUser(context.Background(), identity.SignUpInput{
		Email:    email,
		Password: "Passw0rd!",
		Metadata: map[string]any{"full_name": "Jane Doe"},
	})
	require.NoError(t, err)
	id := uuid.MustParse(ident.ID)
	require.NoError(t, f.db.Create(&domain.Profile{ID: id, Role: role, FullName: "Jane Doe", Email: email}).Error)
	require.NoError(t, f.db.Create(&domain.UserRecord{ID: id, Name: "Jane Doe", Email: email, AppRole: domain.AppRoleEditor}).Error)
	return ident.ID
}

func (f *authFixture) request(t *testing.T, method, path string, body interface{}, cookie string) (int, string, http.Header) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out), resp.Header
}

func sessionCookie(header http.Header) string {
	for _, c := range header.Values("Set-Cookie") {
		if strings.HasPrefix(c, "mci.sid=") {
			return strings.SplitN(c, ";", 2)[0]
		}
	}
	return ""
}

func TestLogin_Success(t *testing.T) {
	f := setupAuthTest(t)
	f.createAccount(t, "jane.doe@wearemci.com", domain.RoleAdmin)

	// Bare local part works; the corporate domain is appended server-side.
	status, body, header := f.request(t, "POST", "/auth/login", map[string]string{
		"email": "jane.doe", "password": "Passw0rd!",
	}, "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotEmpty(t, sessionCookie(header))

	var out struct {
		Data struct {
			User struct {
				Email   string `json:"email"`
				IsAdmin bool   `json:"is_admin"`
				AppRole string `json:"app_role"`
			} `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "jane.doe@wearemci.com", out.Data.User.Email)
	assert.True(t, out.Data.User.IsAdmin)
	assert.Equal(t, "Editor", out.Data.User.AppRole)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupAuthTest(t)
	f.createAccount(t, "jane.doe@wearemci.com", domain.RoleClient)

	status, body, _ := f.request(t, "POST", "/auth/login", map[string]string{
		"email": "jane.doe", "password": "Wrong1!x",
	}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid email or password")

	status, _, _ = f.request(t, "POST", "/auth/login", map[string]string{"email": "jane.doe"}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMe_AndLogout(t *testing.T) {
	f := setupAuthTest(t)
	f.createAccount(t, "jane.doe@wearemci.com", domain.RoleClient)

	status, _, _ := f.request(t, "GET", "/auth/me", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	_, body, header := f.request(t, "POST", "/auth/login", map[string]string{
		"email": "jane.doe", "password": "Passw0rd!",
	}, "")
	cookie := sessionCookie(header)
	require.NotEmpty(t, cookie, body)

	status, body, _ = f.request(t, "GET", "/auth/me", nil, cookie)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, "jane.doe@wearemci.com")
	assert.Contains(t, body, `"is_admin":false`)

	status, _, _ = f.request(t, "DELETE", "/auth/logout", nil, cookie)
	require.Equal(t, fiber.StatusOK, status)

	// The session is gone server-side even if the client replays the cookie.
	status, _, _ = f.request(t, "GET", "/auth/me", nil, cookie)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestForgotPassword_NeverLeaksAccounts(t *testing.T) {
	f := setupAuthTest(t)
	f.createAccount(t, "jane.doe@wearemci.com", domain.RoleClient)

	status, body, _ := f.request(t, "POST", "/auth/forgot-password", map[string]string{"email": "jane.doe"}, "")
	require.Equal(t, fiber.StatusOK, status)

	status2, body2, _ := f.request(t, "POST", "/auth/forgot-password", map[string]string{"email": "ghost"}, "")
	require.Equal(t, fiber.StatusOK, status2)
	assert.Equal(t, body, body2)
}
