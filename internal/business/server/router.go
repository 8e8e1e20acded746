package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openkcm/storyblok-proxy/internal/config"
	"github.com/openkcm/storyblok-proxy/internal/grant"
	"github.com/openkcm/storyblok-proxy/internal/middleware/responsewriter"
	"github.com/openkcm/storyblok-proxy/internal/oauth"
	"github.com/openkcm/storyblok-proxy/internal/upstream"
	"github.com/openkcm/storyblok-proxy/internal/web"
	"github.com/openkcm/storyblok-proxy/pkg/fingerprint"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

const ConnectPath = "/connect/storyblok"

// Exchanger trades a grant for tokens at the token endpoint.
type Exchanger interface {
	Exchange(ctx context.Context, tokenURL string, grant oauth.Grant) (oauth.Tokens, error)
}

// Deps are the collaborators of the proxy handlers.
type Deps struct {
	Grant    *grant.Config
	Tokens   Exchanger
	Upstream *upstream.Factory
	Sessions *session.Manager
}

type proxyServer struct {
	grant    *grant.Config
	tokens   Exchanger
	upstream *upstream.Factory
	sessions *session.Manager
	now      func() time.Time
}

// NewRouter returns the HTTP surface of the proxy.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) (http.Handler, error) {
	m, err := initMeters(ctx, cfg)
	if err != nil {
		return nil, err
	}
	traced := m.traceMiddleware(cfg)

	s := &proxyServer{
		grant:    deps.Grant,
		tokens:   deps.Tokens,
		upstream: deps.Upstream,
		sessions: deps.Sessions,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static", web.Static()))
	r.Handle("/app.js", web.Static())

	r.Group(func(r chi.Router) {
		r.Use(responsewriter.Middleware, fingerprint.Middleware, deps.Sessions.Middleware)

		r.With(traced("Home")).Get("/", s.Home)
		r.With(traced("Connect")).Get(ConnectPath, s.Connect)
		r.With(traced("Callback")).Get(deps.Grant.CallbackPath(), s.Callback)
		r.With(traced("Refresh")).Get("/refresh", s.Refresh)

		r.Route("/explore/{space_id}/{resource}", func(r chi.Router) {
			r.Use(traced("Explore"))
			r.Get("/", s.Explore)
			r.Post("/", s.Explore)
			r.Get("/{id}", s.Explore)
			r.Put("/{id}", s.Explore)
			r.Delete("/{id}", s.Explore)
		})
	})

	return r, nil
}
