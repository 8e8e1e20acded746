// Package sessionmemory keeps sessions in process memory. Sessions are lost
// on restart and are not shared between replicas.
package sessionmemory

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

var errExpired = errors.New("session already expired")

type Repository struct {
	cache *cache.Cache
	now   func() time.Time
}

var _ session.Repository = (*Repository)(nil)

// NewRepository returns a repository dropping expired sessions every
// cleanupInterval.
func NewRepository(cleanupInterval time.Duration) *Repository {
	return &Repository{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (session.Data, error) {
	v, ok := r.cache.Get(sessionID)
	if !ok {
		return session.Data{}, serviceerr.ErrNotFound
	}

	return v.(session.Data), nil
}

func (r *Repository) StoreSession(_ context.Context, s session.Data) error {
	ttl := s.Expiry.Sub(r.now())
	if ttl <= 0 {
		return errExpired
	}

	r.cache.Set(s.ID, s, ttl)

	return nil
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}

// Len returns the number of sessions held, including expired ones not yet
// cleaned up.
func (r *Repository) Len() int {
	return r.cache.ItemCount()
}

// DeleteExpired drops expired sessions without waiting for the cleanup
// interval and returns how many were dropped.
func (r *Repository) DeleteExpired() int {
	before := r.cache.ItemCount()
	r.cache.DeleteExpired()

	return max(before-r.cache.ItemCount(), 0)
}
