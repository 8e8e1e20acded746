// Package session keeps the per-browser state of the proxy: the tokens
// obtained from the content API and the authorization in progress.
//
// The Manager middleware loads the session of every request and places a
// *Handle in the request context. Handlers read and mutate the session
// through the Handle and persist it with Manager.Commit.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/config"
	"github.com/openkcm/storyblok-proxy/internal/middleware/responsewriter"
	"github.com/openkcm/storyblok-proxy/internal/pkce"
	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

type ctxKey string

const handleKey ctxKey = "session"

var ErrNoSession = errors.New("no session in context")

type Manager struct {
	store    Store
	cookie   config.CookieTemplate
	duration time.Duration
	ids      pkce.Source
	now      func() time.Time
}

func NewManager(store Store, cfg config.Sessions) *Manager {
	duration := cfg.Duration
	if duration <= 0 {
		duration = 24 * time.Hour
	}

	return &Manager{
		store:    store,
		cookie:   cfg.Cookie,
		duration: duration,
		now:      time.Now,
	}
}

// Middleware loads the session named by the request cookie, or starts a new
// one, and exposes it through FromContext.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		h, err := m.load(ctx, r)
		if err != nil {
			serviceerr.Respond(ctx, w, fmt.Errorf("loading session: %w", err))
			return
		}

		ctx = slogctx.With(ctx, "session_id", h.data.ID)
		ctx = context.WithValue(ctx, handleKey, h)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) load(ctx context.Context, r *http.Request) (*Handle, error) {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil || cookie.Value == "" {
		return m.newHandle(), nil
	}

	data, err := m.store.Load(ctx, cookie.Value)
	if errors.Is(err, serviceerr.ErrNotFound) {
		slogctx.Debug(ctx, "Discarding unknown session", "error", err)
		return m.newHandle(), nil
	}

	if err != nil {
		return nil, err
	}

	return &Handle{data: data}, nil
}

func (m *Manager) newHandle() *Handle {
	now := m.now()

	return &Handle{
		data: Data{
			ID:        m.ids.SessionID(),
			CreatedAt: now,
			Expiry:    now.Add(m.duration),
		},
		isNew: true,
	}
}

// Commit persists the session of ctx when it changed and sets the cookie on
// the response. It must run before the response header is written.
func (m *Manager) Commit(ctx context.Context) error {
	h, err := FromContext(ctx)
	if err != nil {
		return err
	}

	if !h.dirty {
		return nil
	}

	rw, err := responsewriter.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("committing session: %w", err)
	}

	h.data.Expiry = m.now().Add(m.duration)

	value, err := m.store.Save(ctx, h.data)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	http.SetCookie(rw, m.cookie.ToExpiringCookie(value, h.data.Expiry))
	h.dirty = false
	h.isNew = false

	slogctx.Debug(ctx, "Session committed")

	return nil
}

// FromContext returns the session handle placed by Middleware.
func FromContext(ctx context.Context) (*Handle, error) {
	h, ok := ctx.Value(handleKey).(*Handle)
	if !ok {
		return nil, ErrNoSession
	}

	return h, nil
}
