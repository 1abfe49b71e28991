package invites

import (
	"context"
	"testing"
	"time"

	"mci-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupInvitesTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invite{}, &domain.Profile{}))
	return &Service{DB: db, BaseURL: "https://analytics.wearemci.com"}, db
}

func TestIssue(t *testing.T) {
	svc, _ := setupInvitesTest(t)
	issuer := uuid.New()

	inv, err := svc.Issue(context.Background(), IssueInput{Issuer: issuer, ExpirationDays: 7})
	require.NoError(t, err)
	assert.Len(t, inv.Token, 32)
	assert.Equal(t, issuer, *inv.InvitedBy)
	assert.False(t, inv.Used)
	require.NotNil(t, inv.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *inv.ExpiresAt, time.Minute)

	assert.Equal(t, "https://analytics.wearemci.com/signup?token="+inv.Token, svc.InviteURL(inv.Token))
}

func TestIssue_NoExpiry(t *testing.T) {
	svc, _ := setupInvitesTest(t)

	inv, err := svc.Issue(context.Background(), IssueInput{Issuer: uuid.New(), ExpirationDays: 0})
	require.NoError(t, err)
	assert.Nil(t, inv.ExpiresAt)
	assert.False(t, inv.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestValidate_UnknownToken(t *testing.T) {
	svc, _ := setupInvitesTest(t)

	result, err := svc.Validate(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ErrInviteNotFound.Error(), result.Reason)
}

func TestValidate_UsedBeforeExpired(t *testing.T) {
	svc, db := setupInvitesTest(t)
	past := time.Now().Add(-time.Hour)
	issuer := uuid.New()
	inv := &domain.Invite{Token: "usedandexpired", InvitedBy: &issuer, Used: true, ExpiresAt: &past}
	require.NoError(t, db.Create(inv).Error)

	// Used wins over expired in the reason ordering.
	result, err := svc.Validate(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ErrInviteUsed.Error(), result.Reason)
}

func TestValidate_Expired(t *testing.T) {
	svc, db := setupInvitesTest(t)
	past := time.Now().Add(-time.Minute)
	issuer := uuid.New()
	require.NoError(t, db.Create(&domain.Invite{Token: "expired1", InvitedBy: &issuer, ExpiresAt: &past}).Error)

	result, err := svc.Validate(context.Background(), "expired1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ErrInviteExpired.Error(), result.Reason)
}

func TestValidate_InviterNames(t *testing.T) {
	svc, db := setupInvitesTest(t)
	ctx := context.Background()

	// Issuer with a profile: full name surfaces.
	issuer := uuid.New()
	require.NoError(t, db.Create(&domain.Profile{ID: issuer, Role: domain.RoleAdmin, FullName: "Dana Admin", Email: "dana@wearemci.com"}).Error)
	inv, err := svc.Issue(ctx, IssueInput{Issuer: issuer})
	require.NoError(t, err)

	result, err := svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Dana Admin", result.InviterName)

	// Issuer without a profile row: placeholder, never an error.
	orphan, err := svc.Issue(ctx, IssueInput{Issuer: uuid.New()})
	require.NoError(t, err)
	result, err = svc.Validate(ctx, orphan.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "a team member", result.InviterName)

	// System invite (no issuer): team placeholder.
	sys, err := svc.IssueTest(ctx)
	require.NoError(t, err)
	result, err = svc.Validate(ctx, sys.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "the MCI Analytics team", result.InviterName)
}

func TestConsume_SingleUse(t *testing.T) {
	svc, db := setupInvitesTest(t)
	ctx := context.Background()
	inv, err := svc.Issue(ctx, IssueInput{Issuer: uuid.New()})
	require.NoError(t, err)

	winner := uuid.New()
	require.NoError(t, svc.Consume(ctx, inv.Token, winner))

	var stored domain.Invite
	require.NoError(t, db.Where("token = ?", inv.Token).First(&stored).Error)
	assert.True(t, stored.Used)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, winner, *stored.UsedBy)
	require.NotNil(t, stored.UsedAt)

	// Second redeemer loses, and the first redeemer's attribution stays.
	err = svc.Consume(ctx, inv.Token, uuid.New())
	assert.ErrorIs(t, err, ErrInviteUsed)
	require.NoError(t, db.Where("token = ?", inv.Token).First(&stored).Error)
	assert.Equal(t, winner, *stored.UsedBy)
}

func TestConsume_ExpiredAndUnknown(t *testing.T) {
	svc, db := setupInvitesTest(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	issuer := uuid.New()
	require.NoError(t, db.Create(&domain.Invite{Token: "tooold", InvitedBy: &issuer, ExpiresAt: &past}).Error)

	assert.ErrorIs(t, svc.Consume(ctx, "tooold", uuid.New()), ErrInviteExpired)
	assert.ErrorIs(t, svc.Consume(ctx, "missing", uuid.New()), ErrInviteNotFound)
}

func TestRevoke(t *testing.T) {
	svc, _ := setupInvitesTest(t)
	ctx := context.Background()
	issuer := uuid.New()
	inv, err := svc.Issue(ctx, IssueInput{Issuer: issuer})
	require.NoError(t, err)

	// A different admin cannot revoke someone else's invite.
	assert.ErrorIs(t, svc.Revoke(ctx, inv.ID, uuid.New()), ErrInviteNotFound)

	require.NoError(t, svc.Revoke(ctx, inv.ID, issuer))
	assert.ErrorIs(t, svc.Revoke(ctx, inv.ID, issuer), ErrInviteNotFound)
}

func TestListByIssuer(t *testing.T) {
	svc, db := setupInvitesTest(t)
	ctx := context.Background()
	issuer := uuid.New()

	older, err := svc.Issue(ctx, IssueInput{Issuer: issuer})
	require.NoError(t, err)
	require.NoError(t, db.Model(older).Update("created_at", time.Now().Add(-time.Hour)).Error)
	newer, err := svc.Issue(ctx, IssueInput{Issuer: issuer})
	require.NoError(t, err)

	// Another admin's invite and a system invite stay out of the listing.
	_, err = svc.Issue(ctx, IssueInput{Issuer: uuid.New()})
	require.NoError(t, err)
	_, err = svc.IssueTest(ctx)
	require.NoError(t, err)

	list, err := svc.ListByIssuer(ctx, issuer)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}
