package database

import (
	"mci-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
// TranslateError lets callers detect unique violations as gorm.ErrDuplicatedKey,
// which the provisioning reconciler relies on.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// AutoMigrate runs migrations for the provisioning tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Invite{}, &domain.Profile{}, &domain.UserRecord{})
}
