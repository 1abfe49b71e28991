package localauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"mci-backend/internal/domain"
	"mci-backend/internal/identity"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	otpTTL        = 10 * time.Minute
	otpResendGap  = 60 * time.Second
	sessionTTL    = 24 * time.Hour
	bcryptCost    = 10
)

// Identity is the locally stored account (auth_identities table). Metadata
// mirrors the hosted provider's raw_user_meta_data jsonb column.
type Identity struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email        string         `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash string         `gorm:"column:password_hash;not null"`
	Phone        *string        `gorm:"column:phone"`
	Confirmed    bool           `gorm:"column:confirmed;not null;default:false"`
	OTPCode      string         `gorm:"column:otp_code"`
	OTPIssuedAt  *time.Time     `gorm:"column:otp_issued_at"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time
}

func (Identity) TableName() string {
	return "auth_identities"
}

func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *Identity) toDomain() domain.Identity {
	out := domain.Identity{ID: i.ID.String(), Email: i.Email, Confirmed: i.Confirmed}
	if len(i.Metadata) > 0 {
		_ = json.Unmarshal(i.Metadata, &out.Metadata)
	}
	return out
}

// Provider is the development/test stand-in for the hosted auth service:
// bcrypt password hashes, 8-digit codes logged instead of emailed, and
// in-memory access-token sessions. Behaviour mirrors the hosted provider's
// error taxonomy so callers cannot tell them apart.
type Provider struct {
	DB *gorm.DB

	mu       sync.Mutex
	sessions map[string]sessionInfo
}

type sessionInfo struct {
	identityID uuid.UUID
	expiresAt  time.Time
}

func New(db *gorm.DB) *Provider {
	return &Provider{DB: db, sessions: make(map[string]sessionInfo)}
}

// Migrate creates the local identity table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Identity{})
}

func (p *Provider) SignUp(ctx context.Context, in identity.SignUpInput) (*identity.SignUpResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, err
	}

	rec := &Identity{
		Email:        in.Email,
		PasswordHash: string(hash),
		Metadata:     datatypes.JSON(meta),
	}
	if in.Phone != "" {
		phone := in.Phone
		rec.Phone = &phone
	}
	p.issueCode(rec)

	if err := p.DB.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, identity.ErrDuplicateEmail
		}
		return nil, err
	}
	log.Info().Str("email", rec.Email).Str("code", rec.OTPCode).Msg("localauth: confirmation code issued")
	return &identity.SignUpResult{Identity: rec.toDomain()}, nil
}

// AdminCreateUser creates a confirmed identity directly; no code is issued.
func (p *Provider) AdminCreateUser(ctx context.Context, in identity.SignUpInput) (*domain.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, err
	}
	rec := &Identity{
		Email:        in.Email,
		PasswordHash: string(hash),
		Confirmed:    true,
		Metadata:     datatypes.JSON(meta),
	}
	if in.Phone != "" {
		phone := in.Phone
		rec.Phone = &phone
	}
	if err := p.DB.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, identity.ErrDuplicateEmail
		}
		return nil, err
	}
	out := rec.toDomain()
	return &out, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	var rec Identity
	if err := p.DB.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	if !rec.Confirmed {
		return nil, identity.ErrNotConfirmed
	}
	return p.newSession(&rec), nil
}

// SendOTP regenerates the confirmation code. Unknown emails are silently
// accepted so the endpoint does not reveal which addresses exist.
func (p *Provider) SendOTP(ctx context.Context, email string) error {
	var rec Identity
	if err := p.DB.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if rec.Confirmed {
		return nil
	}
	if rec.OTPIssuedAt != nil && time.Since(*rec.OTPIssuedAt) < otpResendGap {
		return identity.ErrOTPAlreadySent
	}
	p.issueCode(&rec)
	if err := p.DB.WithContext(ctx).Save(&rec).Error; err != nil {
		return err
	}
	log.Info().Str("email", rec.Email).Str("code", rec.OTPCode).Msg("localauth: confirmation code reissued")
	return nil
}

func (p *Provider) VerifyOTP(ctx context.Context, email, code string) (*domain.Session, error) {
	var rec Identity
	if err := p.DB.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrOTPRejected
		}
		return nil, err
	}
	if rec.OTPCode == "" || rec.OTPCode != code {
		return nil, identity.ErrOTPRejected
	}
	if rec.OTPIssuedAt == nil || time.Since(*rec.OTPIssuedAt) > otpTTL {
		return nil, identity.ErrOTPRejected
	}

	rec.Confirmed = true
	rec.OTPCode = ""
	rec.OTPIssuedAt = nil
	if err := p.DB.WithContext(ctx).Save(&rec).Error; err != nil {
		return nil, err
	}
	return p.newSession(&rec), nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	delete(p.sessions, accessToken)
	p.mu.Unlock()
	return nil
}

func (p *Provider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	p.mu.Lock()
	info, ok := p.sessions[accessToken]
	p.mu.Unlock()
	if !ok || time.Now().After(info.expiresAt) {
		return identity.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	return p.DB.WithContext(ctx).Model(&Identity{}).
		Where("id = ?", info.identityID).
		Update("password_hash", string(hash)).Error
}

func (p *Provider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	log.Info().Str("email", email).Str("redirect_to", redirectTo).
		Msg("localauth: password reset requested")
	return nil
}

// CurrentCode exposes the pending confirmation code for dev tooling and
// tests; the hosted provider delivers it by email instead.
func (p *Provider) CurrentCode(ctx context.Context, email string) (string, error) {
	var rec Identity
	if err := p.DB.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		return "", err
	}
	return rec.OTPCode, nil
}

func (p *Provider) newSession(rec *Identity) *domain.Session {
	token := randomHex(24)
	p.mu.Lock()
	p.sessions[token] = sessionInfo{identityID: rec.ID, expiresAt: time.Now().Add(sessionTTL)}
	p.mu.Unlock()
	return &domain.Session{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(sessionTTL),
		Identity:    rec.toDomain(),
	}
}

func (p *Provider) issueCode(rec *Identity) {
	rec.OTPCode = randomCode()
	now := time.Now()
	rec.OTPIssuedAt = &now
}

// randomCode returns an 8-digit numeric code from crypto/rand.
func randomCode() string {
	b := make([]byte, 8)
	rand.Read(b)
	code := make([]byte, 8)
	for i, v := range b {
		code[i] = '0' + v%10
	}
	return string(code)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

var _ identity.Provider = (*Provider)(nil)
