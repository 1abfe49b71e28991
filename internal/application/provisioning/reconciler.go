package provisioning

import (
	"context"
	"errors"

	"mci-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// InsertOutcome distinguishes a fresh insert from a row the signup trigger
// already created. AlreadyExists is a success, not an error.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	AlreadyExists
)

// Store wraps the best-effort inserts. Unique violations are detected via
// gorm.ErrDuplicatedKey (the DB is opened with TranslateError), never by
// matching error strings.
type Store struct {
	DB *gorm.DB
}

func (s *Store) InsertProfile(ctx context.Context, p *domain.Profile) (InsertOutcome, error) {
	err := s.DB.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return AlreadyExists, nil
	}
	if err != nil {
		return Inserted, err
	}
	return Inserted, nil
}

func (s *Store) InsertUserRecord(ctx context.Context, u *domain.UserRecord) (InsertOutcome, error) {
	err := s.DB.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return AlreadyExists, nil
	}
	if err != nil {
		return Inserted, err
	}
	return Inserted, nil
}

// Reconciler closes the race between client-visible confirmation and the
// provider-side signup trigger: it ensures the profile and user record exist
// for a newly confirmed identity without blocking on the trigger.
type Reconciler struct {
	Store *Store
}

// Input for one reconciliation. Zero Role/AppRole default to the signup
// values (client / Viewer); the provisioning CLI overrides them.
type Input struct {
	IdentityID uuid.UUID
	FullName   string
	Email      string
	Phone      string
	Role       domain.Role
	AppRole    domain.AppRole
}

// Report records the per-row outcome, for callers that surface warnings
// (the provisioning CLI). Errors here never block the user's progress.
type Report struct {
	Profile       InsertOutcome
	ProfileErr    error
	UserRecord    InsertOutcome
	UserRecordErr error
}

// Reconcile inserts both rows best-effort. A row already created by the
// trigger counts as success; any other failure is logged and reported but
// not returned — the role resolver's retry is the second safety net.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) Report {
	if in.Role == "" {
		in.Role = domain.RoleClient
	}
	if in.AppRole == "" {
		in.AppRole = domain.AppRoleViewer
	}
	var phone *string
	if in.Phone != "" {
		phone = &in.Phone
	}

	var rep Report
	rep.Profile, rep.ProfileErr = r.Store.InsertProfile(ctx, &domain.Profile{
		ID:       in.IdentityID,
		Role:     in.Role,
		FullName: in.FullName,
		Email:    in.Email,
		Phone:    phone,
	})
	if rep.ProfileErr != nil {
		log.Warn().Err(rep.ProfileErr).Str("identity_id", in.IdentityID.String()).
			Msg("profile fallback insert failed")
	}

	rep.UserRecord, rep.UserRecordErr = r.Store.InsertUserRecord(ctx, &domain.UserRecord{
		ID:      in.IdentityID,
		Name:    in.FullName,
		Email:   in.Email,
		Phone:   phone,
		AppRole: in.AppRole,
	})
	if rep.UserRecordErr != nil {
		log.Warn().Err(rep.UserRecordErr).Str("identity_id", in.IdentityID.String()).
			Msg("user record fallback insert failed")
	}
	return rep
}
