// Package sessionmock provides an in-memory session repository with error
// injection for tests.
package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu       sync.Mutex
	sessions map[string]session.Data

	loadSessionErr, storeSessionErr error
}

var _ session.Repository = (*Repository)(nil)

func WithSession(data session.Data) RepositoryOption {
	return func(r *Repository) { r.sessions[data.ID] = data }
}

func WithLoadSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.loadSessionErr = err }
}

func WithStoreSessionError(err error) RepositoryOption {
	return func(r *Repository) { r.storeSessionErr = err }
}

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		sessions: make(map[string]session.Data),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (session.Data, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadSessionErr != nil {
		return session.Data{}, r.loadSessionErr
	}

	if s, ok := r.sessions[sessionID]; ok {
		return s, nil
	}

	return session.Data{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreSession(_ context.Context, data session.Data) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeSessionErr != nil {
		return r.storeSessionErr
	}

	r.sessions[data.ID] = data

	return nil
}

// Sessions returns a snapshot of the stored sessions.
func (r *Repository) Sessions() map[string]session.Data {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]session.Data, len(r.sessions))
	for k, v := range r.sessions {
		out[k] = v
	}

	return out
}
