package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/internal/upstream"
	"github.com/openkcm/storyblok-proxy/internal/web"
	"github.com/openkcm/storyblok-proxy/pkg/fingerprint"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

// Home renders the home page.
func (s *proxyServer) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	spaceID := r.URL.Query().Get("space_id")

	slogctx.Debug(ctx, "Home() called", "space_id", spaceID)
	defer slogctx.Debug(ctx, "Home() completed")

	h, err := session.FromContext(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = web.RenderHome(w, web.HomeData{
		SpaceID:    spaceID,
		Connected:  h.AccessToken() != "",
		ConnectURL: ConnectPath,
		RefreshURL: homeURL("/refresh", spaceID),
	})
	if err != nil {
		serviceerr.Respond(ctx, w, err)
	}
}

// Connect starts an authorization and sends the browser to the provider.
func (s *proxyServer) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slogctx.Debug(ctx, "Connect() called")
	defer slogctx.Debug(ctx, "Connect() completed")

	fp, err := fingerprint.ExtractFingerprint(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, fmt.Errorf("extracting fingerprint: %w", err))
		return
	}

	h, err := session.FromContext(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	auth := s.grant.NewAuthorization(s.now())
	h.BeginAuthorization(session.Authorization{
		State:       auth.State,
		Verifier:    auth.Verifier,
		Fingerprint: fp,
		Expiry:      auth.Expiry,
	})

	if err := s.sessions.Commit(ctx); err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	http.Redirect(w, r, auth.URL, http.StatusFound)
}

// Callback completes the authorization started by Connect.
func (s *proxyServer) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	spaceID := q.Get("space_id")

	slogctx.Debug(ctx, "Callback() called", "space_id", spaceID)
	defer slogctx.Debug(ctx, "Callback() completed")

	h, err := session.FromContext(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	// The pending authorization is single use, whatever the outcome.
	pending, ok := h.TakeAuthorization()
	fail := func(err error) {
		if ok {
			s.commitQuietly(ctx)
		}
		serviceerr.Respond(ctx, w, err)
	}

	if providerErr := q.Get("error"); providerErr != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = providerErr
		}
		fail(serviceerr.AccessDenied(desc))
		return
	}

	if !ok {
		fail(serviceerr.ErrStateMismatch)
		return
	}

	code := q.Get("code")
	if code == "" {
		fail(serviceerr.InvalidRequest("missing code"))
		return
	}

	fp, err := fingerprint.ExtractFingerprint(ctx)
	if err != nil {
		fail(fmt.Errorf("extracting fingerprint: %w", err))
		return
	}

	if err := pending.Validate(q.Get("state"), fp, s.now()); err != nil {
		fail(err)
		return
	}

	tokens, err := s.tokens.Exchange(ctx, s.grant.TokenURL(), s.grant.AuthorizationCodeGrant(code, pending.Verifier))
	if err != nil {
		fail(err)
		return
	}

	h.SetApplicationCode(code)
	h.SetTokens(tokens.AccessToken, tokens.RefreshToken)

	if err := s.sessions.Commit(ctx); err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	slogctx.Info(ctx, "Connected session", "space_id", spaceID)
	http.Redirect(w, r, homeURL("/", spaceID), http.StatusFound)
}

// Refresh renews the tokens of the session with its refresh token.
func (s *proxyServer) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	spaceID := r.URL.Query().Get("space_id")

	slogctx.Debug(ctx, "Refresh() called", "space_id", spaceID)
	defer slogctx.Debug(ctx, "Refresh() completed")

	h, err := session.FromContext(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	if h.RefreshToken() == "" {
		serviceerr.Respond(ctx, w, serviceerr.ErrNoRefreshToken)
		return
	}

	tokens, err := s.tokens.Exchange(ctx, s.grant.TokenURL(), s.grant.RefreshTokenGrant(h.RefreshToken()))
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	h.SetTokens(tokens.AccessToken, tokens.RefreshToken)

	if err := s.sessions.Commit(ctx); err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	http.Redirect(w, r, homeURL("/", spaceID), http.StatusFound)
}

// Explore forwards the request to the resource of the space, with the
// access token of the session.
func (s *proxyServer) Explore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	spaceID := pathParam(r, "space_id")
	resource := pathParam(r, "resource")
	id := pathParam(r, "id")

	slogctx.Debug(ctx, "Explore() called", "method", r.Method, "space_id", spaceID, "resource", resource, "id", id)
	defer slogctx.Debug(ctx, "Explore() completed")

	path, err := upstream.ResourcePath(spaceID, resource, id)
	if err != nil {
		serviceerr.Respond(ctx, w, serviceerr.InvalidRequest(err.Error()))
		return
	}

	h, err := session.FromContext(ctx)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	req := upstream.Request{
		Method: r.Method,
		Path:   path,
		Query:  r.URL.Query(),
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		req.Body = r.Body
		req.ContentType = r.Header.Get("Content-Type")
	}

	resp, err := s.upstream.MakeClient(h.AccessToken()).Do(ctx, req)
	if err != nil {
		serviceerr.Respond(ctx, w, err)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		slogctx.Error(ctx, "Failed to relay upstream response", "error", err)
	}
}

func (s *proxyServer) commitQuietly(ctx context.Context) {
	if err := s.sessions.Commit(ctx); err != nil {
		slogctx.Error(ctx, "Failed to commit session", "error", err)
	}
}

// homeURL returns path with the space_id query parameter when set.
func homeURL(path, spaceID string) string {
	if spaceID == "" {
		return path
	}

	return path + "?" + url.Values{"space_id": {spaceID}}.Encode()
}

// pathParam returns the unescaped route parameter. chi matches on the raw
// path when the request has one.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}

	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}

	return v
}
