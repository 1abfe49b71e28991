package provisioning

import (
	"context"
	"testing"

	"mci-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupReconcilerTest(t *testing.T) (*Reconciler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Profile{}, &domain.UserRecord{}))
	return &Reconciler{Store: &Store{DB: db}}, db
}

func TestReconcile_InsertsBothRows(t *testing.T) {
	r, db := setupReconcilerTest(t)
	id := uuid.New()

	rep := r.Reconcile(context.Background(), Input{
		IdentityID: id,
		FullName:   "Jane Doe",
		Email:      "jane.doe@wearemci.com",
		Phone:      "15550001111",
	})
	require.NoError(t, rep.ProfileErr)
	require.NoError(t, rep.UserRecordErr)
	assert.Equal(t, Inserted, rep.Profile)
	assert.Equal(t, Inserted, rep.UserRecord)

	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	assert.Equal(t, domain.RoleClient, p.Role)
	assert.Equal(t, "Jane Doe", p.FullName)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "15550001111", *p.Phone)

	var u domain.UserRecord
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	assert.Equal(t, domain.AppRoleViewer, u.AppRole)
	assert.Equal(t, "Jane Doe", u.Name)
}

func TestReconcile_ExistingRowsAreSuccess(t *testing.T) {
	r, db := setupReconcilerTest(t)
	id := uuid.New()

	// The signup trigger beat the reconciler to both rows.
	require.NoError(t, db.Create(&domain.Profile{ID: id, Role: domain.RoleAdmin, FullName: "Trigger Won", Email: "t@wearemci.com"}).Error)
	require.NoError(t, db.Create(&domain.UserRecord{ID: id, Name: "Trigger Won", Email: "t@wearemci.com", AppRole: domain.AppRoleEditor}).Error)

	rep := r.Reconcile(context.Background(), Input{IdentityID: id, FullName: "Late", Email: "t@wearemci.com"})
	require.NoError(t, rep.ProfileErr)
	require.NoError(t, rep.UserRecordErr)
	assert.Equal(t, AlreadyExists, rep.Profile)
	assert.Equal(t, AlreadyExists, rep.UserRecord)

	// Existing rows are untouched.
	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	assert.Equal(t, domain.RoleAdmin, p.Role)
	assert.Equal(t, "Trigger Won", p.FullName)
}

func TestReconcile_PartialState(t *testing.T) {
	r, db := setupReconcilerTest(t)
	id := uuid.New()

	// Only the profile exists; the reconciler fills in the missing record.
	require.NoError(t, db.Create(&domain.Profile{ID: id, FullName: "Half", Email: "h@wearemci.com"}).Error)

	rep := r.Reconcile(context.Background(), Input{IdentityID: id, FullName: "Half", Email: "h@wearemci.com"})
	assert.Equal(t, AlreadyExists, rep.Profile)
	assert.Equal(t, Inserted, rep.UserRecord)

	var count int64
	db.Model(&domain.UserRecord{}).Where("id = ?", id).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestReconcile_RoleOverrides(t *testing.T) {
	r, db := setupReconcilerTest(t)
	id := uuid.New()

	r.Reconcile(context.Background(), Input{
		IdentityID: id,
		FullName:   "Op Admin",
		Email:      "op@wearemci.com",
		Role:       domain.RoleAdmin,
		AppRole:    domain.AppRoleAdmin,
	})

	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	assert.Equal(t, domain.RoleAdmin, p.Role)
	var u domain.UserRecord
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	assert.Equal(t, domain.AppRoleAdmin, u.AppRole)
}
