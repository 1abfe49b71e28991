package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"mci-backend/internal/domain"
	"mci-backend/internal/identity"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultRetryDelay = 2 * time.Second

// State is the resolved authorization state for one identity. Loading stays
// true until a resolution attempt has completed or no session exists.
type State struct {
	Identity   *domain.Identity `json:"identity"`
	Profile    *domain.Profile  `json:"profile"`
	AppRole    domain.AppRole   `json:"app_role"`
	Loading    bool             `json:"loading"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// IsAdmin derives admin access from the profile role alone; AppRole is a
// display signal and never grants it.
func (s State) IsAdmin() bool {
	return s.Profile != nil && s.Profile.Role == domain.RoleAdmin
}

// Store looks up the two denormalized authorization rows. Implementations
// report a missing row as gorm.ErrRecordNotFound so the resolver can tell
// "not provisioned yet" apart from real failures.
type Store interface {
	ProfileByID(ctx context.Context, id string) (*domain.Profile, error)
	UserRecordByID(ctx context.Context, id string) (*domain.UserRecord, error)
}

// GormStore is the production Store.
type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) ProfileByID(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) UserRecordByID(ctx context.Context, id string) (*domain.UserRecord, error) {
	var u domain.UserRecord
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Resolver owns per-identity session state for the whole process. It is the
// only writer of that state; handlers read snapshots. A profile row that is
// not found on the first attempt gets exactly one retry after RetryDelay
// (the trigger-latency race), then the resolver gives up with profile=nil
// rather than polling.
type Resolver struct {
	Store      Store
	Provider   identity.Provider
	RetryDelay time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	state State
	gen   uint64
	done  chan struct{} // non-nil while a resolution is in flight
}

func NewResolver(store Store, provider identity.Provider) *Resolver {
	return &Resolver{
		Store:      store,
		Provider:   provider,
		RetryDelay: defaultRetryDelay,
		entries:    make(map[string]*entry),
	}
}

// Resolve returns the identity's resolved state, starting a resolution if
// none has run. A request for an identity already being resolved joins the
// in-flight attempt instead of launching a duplicate fetch; the bounded
// retry inside that attempt is its continuation, not a new one.
func (r *Resolver) Resolve(ctx context.Context, ident domain.Identity) State {
	r.mu.Lock()
	e, ok := r.entries[ident.ID]
	if !ok {
		e = &entry{}
		r.entries[ident.ID] = e
	}
	if e.done != nil {
		ch := e.done
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		return r.Snapshot(ident.ID)
	}
	if !e.state.ResolvedAt.IsZero() {
		st := e.state
		r.mu.Unlock()
		return st
	}
	done := make(chan struct{})
	e.done = done
	e.state = State{Identity: &ident, Loading: true}
	gen := e.gen
	r.mu.Unlock()

	// Detached context: the resolution (and its single retry) outlives the
	// request that happened to trigger it.
	go r.resolve(context.Background(), ident, gen, done)

	select {
	case <-done:
	case <-ctx.Done():
	}
	return r.Snapshot(ident.ID)
}

// Snapshot returns the current state without triggering resolution.
// Unknown identities read as signed out.
func (r *Resolver) Snapshot(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.state
	}
	return State{AppRole: domain.AppRoleViewer}
}

// Invalidate drops the cached state so the next Resolve refetches. Called
// on session changes (sign-in, confirmation, token refresh). A resolution
// already in flight is left to finish; its result is discarded.
func (r *Resolver) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.gen++
		e.state = State{}
		if e.done == nil {
			delete(r.entries, id)
		}
	}
}

// SignOut invalidates the provider session and synchronously resets local
// state to signed-out defaults. Any in-flight resolution for the identity
// is discarded when it completes.
func (r *Resolver) SignOut(ctx context.Context, id, accessToken string) error {
	var provErr error
	if r.Provider != nil && accessToken != "" {
		provErr = r.Provider.SignOut(ctx, accessToken)
	}
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.gen++
		e.state = State{AppRole: domain.AppRoleViewer}
		if e.done == nil {
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	return provErr
}

func (r *Resolver) retryDelay() time.Duration {
	if r.RetryDelay > 0 {
		return r.RetryDelay
	}
	return defaultRetryDelay
}

func (r *Resolver) resolve(ctx context.Context, ident domain.Identity, gen uint64, done chan struct{}) {
	prof, rec, profErr := r.fetch(ctx, ident.ID)

	if errors.Is(profErr, gorm.ErrRecordNotFound) {
		// The signup trigger may still be running; retry the profile lookup
		// exactly once, then settle.
		log.Info().Str("identity_id", ident.ID).Msg("profile not found yet, retrying once after delay")
		time.Sleep(r.retryDelay())
		prof, profErr = r.Store.ProfileByID(ctx, ident.ID)
	}
	if profErr != nil {
		if !errors.Is(profErr, gorm.ErrRecordNotFound) {
			log.Error().Err(profErr).Str("identity_id", ident.ID).Msg("profile lookup failed")
		}
		prof = nil
	}

	appRole := domain.AppRoleViewer
	if rec != nil && rec.AppRole.Valid() {
		appRole = rec.AppRole
	}

	r.mu.Lock()
	e := r.entries[ident.ID]
	if e != nil && e.gen == gen {
		e.state = State{
			Identity:   &ident,
			Profile:    prof,
			AppRole:    appRole,
			Loading:    false,
			ResolvedAt: time.Now(),
		}
	}
	if e != nil && e.done == done {
		e.done = nil
	}
	r.mu.Unlock()
	close(done)
}

// fetch runs the profile and user-record lookups concurrently; they have no
// ordering dependency. Only the profile error matters for the retry policy;
// a failed record lookup just falls back to Viewer.
func (r *Resolver) fetch(ctx context.Context, id string) (*domain.Profile, *domain.UserRecord, error) {
	var (
		prof *domain.Profile
		rec  *domain.UserRecord
		g    errgroup.Group
	)
	g.Go(func() error {
		p, err := r.Store.ProfileByID(ctx, id)
		if err != nil {
			return err
		}
		prof = p
		return nil
	})
	g.Go(func() error {
		u, err := r.Store.UserRecordByID(ctx, id)
		if err == nil {
			rec = u
		}
		return nil
	})
	err := g.Wait()
	return prof, rec, err
}
