package registration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingPrefix = "signup_pending:"
const defaultPendingTTL = time.Hour

// PendingRegistration ferries display attributes from the registration step
// to the confirmation step. Its presence is also the liveness marker for the
// flow: once cleared, late responses for it are discarded.
type PendingRegistration struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// PendingStore is the Redis-backed transient carrier between the register
// and confirm steps. Entries expire on their own if the flow is abandoned.
type PendingStore struct {
	Rdb *redis.Client
	TTL time.Duration
}

func (s *PendingStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultPendingTTL
}

func (s *PendingStore) Put(ctx context.Context, p PendingRegistration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Rdb.Set(ctx, pendingPrefix+p.Email, b, s.ttl()).Err()
}

// Get returns the pending registration for email, or nil if the flow was
// abandoned or already completed.
func (s *PendingStore) Get(ctx context.Context, email string) (*PendingRegistration, error) {
	b, err := s.Rdb.Get(ctx, pendingPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p PendingRegistration
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PendingStore) Clear(ctx context.Context, email string) error {
	return s.Rdb.Del(ctx, pendingPrefix+email).Err()
}
