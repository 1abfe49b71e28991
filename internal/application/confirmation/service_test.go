package confirmation

import (
	"context"
	"testing"
	"time"

	"mci-backend/internal/application/invites"
	"mci-backend/internal/application/provisioning"
	"mci-backend/internal/application/registration"
	"mci-backend/internal/application/session"
	"mci-backend/internal/domain"
	"mci-backend/internal/infrastructure/localauth"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type confirmFixture struct {
	svc      *Service
	reg      *registration.Service
	provider *localauth.Provider
	db       *gorm.DB
}

func setupConfirmTest(t *testing.T) *confirmFixture {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invite{}, &domain.Profile{}, &domain.UserRecord{}))
	require.NoError(t, localauth.Migrate(db))

	provider := localauth.New(db)
	pending := &registration.PendingStore{Rdb: rdb}
	resolver := session.NewResolver(&session.GormStore{DB: db}, provider)
	resolver.RetryDelay = 10 * time.Millisecond

	reg := &registration.Service{
		Invites:     &invites.Service{DB: db, BaseURL: "https://analytics.wearemci.com"},
		Provider:    provider,
		Pending:     pending,
		EmailDomain: "wearemci.com",
	}
	svc := &Service{
		Provider:   provider,
		Pending:    pending,
		Reconciler: &provisioning.Reconciler{Store: &provisioning.Store{DB: db}},
		Resolver:   resolver,
	}
	return &confirmFixture{svc: svc, reg: reg, provider: provider, db: db}
}

func (f *confirmFixture) register(t *testing.T) string {
	ctx := context.Background()
	inv, err := f.reg.Invites.Issue(ctx, invites.IssueInput{Issuer: uuid.New()})
	require.NoError(t, err)
	result, err := f.reg.Register(ctx, registration.RegisterInput{
		Token:           inv.Token,
		FullName:        "Jane Doe",
		Phone:           "15551234567",
		EmailLocalPart:  "jane.doe",
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	})
	require.NoError(t, err)
	return result.Email
}

func TestConfirm_ProvisionsAndResolves(t *testing.T) {
	f := setupConfirmTest(t)
	ctx := context.Background()
	email := f.register(t)

	code, err := f.provider.CurrentCode(ctx, email)
	require.NoError(t, err)

	sess, err := f.svc.Confirm(ctx, email, code)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEmpty(t, sess.AccessToken)
	assert.True(t, sess.Identity.Confirmed)

	// Both provisioning rows exist before Confirm returns.
	id := uuid.MustParse(sess.Identity.ID)
	var p domain.Profile
	require.NoError(t, f.db.First(&p, "id = ?", id).Error)
	assert.Equal(t, "Jane Doe", p.FullName)
	assert.Equal(t, domain.RoleClient, p.Role)
	var u domain.UserRecord
	require.NoError(t, f.db.First(&u, "id = ?", id).Error)
	assert.Equal(t, domain.AppRoleViewer, u.AppRole)

	// Pending marker is gone: the flow cannot complete twice.
	pending, err := f.svc.Pending.Get(ctx, email)
	require.NoError(t, err)
	assert.Nil(t, pending)

	// The resolver ended up with the resolved, non-admin state.
	state := f.svc.Resolver.Snapshot(sess.Identity.ID)
	assert.False(t, state.Loading)
	require.NotNil(t, state.Profile)
	assert.False(t, state.IsAdmin())
}

func TestConfirm_RejectsWrongCode(t *testing.T) {
	f := setupConfirmTest(t)
	ctx := context.Background()
	email := f.register(t)

	_, err := f.svc.Confirm(ctx, email, "00000000")
	assert.ErrorIs(t, err, ErrCodeRejected)

	// Rejection leaves the flow alive for a retry.
	pending, err := f.svc.Pending.Get(ctx, email)
	require.NoError(t, err)
	assert.NotNil(t, pending)
}

func TestConfirm_NoPending(t *testing.T) {
	f := setupConfirmTest(t)

	_, err := f.svc.Confirm(context.Background(), "ghost@wearemci.com", "12345678")
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestConfirm_AbandonedFlowDiscarded(t *testing.T) {
	f := setupConfirmTest(t)
	ctx := context.Background()
	email := f.register(t)

	code, err := f.provider.CurrentCode(ctx, email)
	require.NoError(t, err)

	// The pending marker disappears while the verify call is in flight
	// (abandoned or completed elsewhere). First Confirm wins, the marker is
	// cleared, and a replay of the same request reads as expired.
	sess, err := f.svc.Confirm(ctx, email, code)
	require.NoError(t, err)
	require.NotNil(t, sess)

	_, err = f.svc.Confirm(ctx, email, code)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestResend(t *testing.T) {
	f := setupConfirmTest(t)
	ctx := context.Background()
	email := f.register(t)

	// Provider-side throttle reads as success.
	require.NoError(t, f.svc.Resend(ctx, email))

	// Unknown addresses are silently accepted; no account probing.
	require.NoError(t, f.svc.Resend(ctx, "nobody@wearemci.com"))
}
