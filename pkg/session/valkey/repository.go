// Package sessionvalkey keeps sessions in valkey. Each session expires
// together with its key.
package sessionvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/storyblok-proxy/pkg/session"
)

const objectTypeSession = "session"

type Repository struct {
	store *store
	now   func() time.Time
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
		now:   time.Now,
	}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (s session.Data, _ error) {
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &s); err != nil {
		return session.Data{}, fmt.Errorf("getting session from store: %w", err)
	}

	return s, nil
}

func (r *Repository) StoreSession(ctx context.Context, s session.Data) error {
	if err := r.store.Set(ctx, objectTypeSession, s.ID, s, s.Expiry.Sub(r.now())); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.store.Destroy(ctx, objectTypeSession, sessionID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	return nil
}

// ListSessions returns the sessions that have not expired yet.
func (r *Repository) ListSessions(ctx context.Context) ([]session.Data, error) {
	sessions, err := scan[session.Data](ctx, r.store, objectTypeSession)
	if err != nil {
		return nil, fmt.Errorf("getting sessions from store: %w", err)
	}

	return sessions, nil
}
