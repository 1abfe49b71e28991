package invites

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	invsvc "mci-backend/internal/application/invites"
	sessionsvc "mci-backend/internal/application/session"
	"mci-backend/internal/domain"
	"mci-backend/internal/infrastructure/localauth"
	"mci-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type invitesFixture struct {
	app *fiber.App
	rdb *redis.Client
	db  *gorm.DB
}

func setupInvitesTest(t *testing.T, isProduction bool) *invitesFixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invite{}, &domain.Profile{}, &domain.UserRecord{}))
	require.NoError(t, localauth.Migrate(db))

	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	resolver := sessionsvc.NewResolver(&sessionsvc.GormStore{DB: db}, localauth.New(db))
	resolver.RetryDelay = 10 * time.Millisecond

	h := &Handlers{
		Invites:      &invsvc.Service{DB: db, BaseURL: "https://analytics.wearemci.com"},
		IsProduction: isProduction,
	}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(sessionHandler)
	app.Get("/invites/check/:token", h.CheckToken)
	app.Post("/invites/test", h.CreateTest)
	grp := app.Group("/invites", middleware.RequireAuth(), middleware.RequireAdmin(resolver))
	grp.Post("/", h.Create)
	grp.Get("/", h.List)
	grp.Delete("/:id", h.Revoke)

	return &invitesFixture{app: app, rdb: rdb, db: db}
}

// seedUser writes a profile row and a ready-made Redis session, returning the
// cookie that authenticates as that user.
func (f *invitesFixture) seedUser(t *testing.T, role domain.Role) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	email := "admin@wearemci.com"
	require.NoError(t, f.db.Create(&domain.Profile{ID: id, Role: role, FullName: "Sam Admin", Email: email}).Error)

	sid := uuid.New().String()
	payload, err := json.Marshal(map[string]interface{}{
		"user": map[string]interface{}{
			"identity_id":  id.String(),
			"email":        email,
			"full_name":    "Sam Admin",
			"access_token": "tok",
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.rdb.Set(context.Background(), middleware.SessionRedisPrefix+sid, payload, time.Hour).Err())
	return id, middleware.SessionCookieName + "=s:" + sid
}

func (f *invitesFixture) request(t *testing.T, method, path string, body interface{}, cookie string) (int, string) {
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
	return resp.StatusCode, string(out)
}

func TestCreateListRevokeFlow(t *testing.T) {
	f := setupInvitesTest(t, false)
	_, cookie := f.seedUser(t, domain.RoleAdmin)

	status, body := f.request(t, "POST", "/invites/", map[string]interface{}{
		"expiration_days": 7,
	}, cookie)
	require.Equal(t, fiber.StatusCreated, status, body)

	var created struct {
		Data struct {
			Invite struct {
				ID    uuid.UUID `json:"id"`
				Token string    `json:"token"`
			} `json:"invite"`
			Link string `json:"link"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Len(t, created.Data.Invite.Token, 32)
	assert.Contains(t, created.Data.Link, "/signup?token="+created.Data.Invite.Token)

	status, body = f.request(t, "GET", "/invites/", nil, cookie)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, created.Data.Invite.Token)

	status, _ = f.request(t, "DELETE", "/invites/"+created.Data.Invite.ID.String(), nil, cookie)
	require.Equal(t, fiber.StatusOK, status)

	status, body = f.request(t, "GET", "/invites/", nil, cookie)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, body, created.Data.Invite.Token)
}

func TestCreate_RequiresAuthAndAdmin(t *testing.T) {
	f := setupInvitesTest(t, false)

	status, _ := f.request(t, "POST", "/invites/", map[string]interface{}{}, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	_, cookie := f.seedUser(t, domain.RoleClient)
	status, body := f.request(t, "POST", "/invites/", map[string]interface{}{}, cookie)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Contains(t, body, "Forbidden")
}

func TestRevoke_UnknownInvite(t *testing.T) {
	f := setupInvitesTest(t, false)
	_, cookie := f.seedUser(t, domain.RoleAdmin)

	status, _ := f.request(t, "DELETE", "/invites/"+uuid.New().String(), nil, cookie)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.request(t, "DELETE", "/invites/not-a-uuid", nil, cookie)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCheckToken_Public(t *testing.T) {
	f := setupInvitesTest(t, false)
	issuerID, _ := f.seedUser(t, domain.RoleAdmin)

	svc := &invsvc.Service{DB: f.db, BaseURL: "https://analytics.wearemci.com"}
	inv, err := svc.Issue(context.Background(), invsvc.IssueInput{Issuer: issuerID})
	require.NoError(t, err)

	// No cookie needed.
	status, body := f.request(t, "GET", "/invites/check/"+inv.Token, nil, "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, `"valid":true`)
	assert.Contains(t, body, "Sam Admin")

	status, body = f.request(t, "GET", "/invites/check/nope", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"valid":false`)
	assert.Contains(t, body, invsvc.ErrInviteNotFound.Error())
}

func TestCreateTest_BlockedInProduction(t *testing.T) {
	prod := setupInvitesTest(t, true)
	status, _ := prod.request(t, "POST", "/invites/test", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)

	dev := setupInvitesTest(t, false)
	status, body := dev.request(t, "POST", "/invites/test", nil, "")
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Contains(t, body, "token")
}
