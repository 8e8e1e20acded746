package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/storyblok-proxy/internal/config"
	"github.com/openkcm/storyblok-proxy/internal/grant"
	"github.com/openkcm/storyblok-proxy/internal/oauth"
	"github.com/openkcm/storyblok-proxy/internal/pkce"
	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/internal/upstream"
	"github.com/openkcm/storyblok-proxy/pkg/session"
	sessionmemory "github.com/openkcm/storyblok-proxy/pkg/session/memory"
)

const (
	validCode    = "valid-code"
	validRT      = "valid-refresh-token"
	spaceID      = "42"
	cookieName   = "sb_session"
	testSecret   = "0123456789abcdef0123456789abcdef"
	clientID     = "client-id"
	clientSecret = "client-secret"
)

// fakeProvider is the token endpoint of the OAuth provider.
type fakeProvider struct {
	mu    sync.Mutex
	forms []url.Values
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.forms = append(p.forms, r.PostForm)
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") == validCode:
		_, _ = io.WriteString(w, `{"access_token":"access-1","refresh_token":"`+validRT+`","token_type":"bearer"}`)
	case r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") == validRT:
		_, _ = io.WriteString(w, `{"access_token":"access-2","refresh_token":"refresh-2"}`)
	case r.PostForm.Get("grant_type") == "refresh_token":
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"The refresh token is invalid"}`)
	default:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"The authorization code is invalid"}`)
	}
}

func (p *fakeProvider) lastForm() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.forms) == 0 {
		return nil
	}

	return p.forms[len(p.forms)-1]
}

type upstreamCall struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	ContentType   string
	Body          string
}

// fakeUpstream is the management API.
type fakeUpstream struct {
	mu    sync.Mutex
	calls []upstreamCall
}

func (u *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	u.mu.Lock()
	u.calls = append(u.calls, upstreamCall{
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		Query:         r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          string(body),
	})
	u.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer access-1" && r.Header.Get("Authorization") != "Bearer access-2" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized"}`)
		return
	}

	switch {
	case r.URL.Path == "/v1/spaces/42/missing":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"This record could not be found"}`)
	case r.Method == http.MethodPost:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"stories":[{"id":1,"name":"Home","slug":"home"}]}`)
	}
}

func (u *fakeUpstream) lastCall() upstreamCall {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.calls[len(u.calls)-1]
}

type testEnv struct {
	deps     Deps
	provider *fakeProvider
	upstream *fakeUpstream
	repo     *sessionmemory.Repository
	proxy    *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := &fakeProvider{}
	providerSrv := httptest.NewServer(provider)
	t.Cleanup(providerSrv.Close)

	api := &fakeUpstream{}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	grantCfg, err := grant.BuildConfig(config.Grant{
		AuthorizeURL: providerSrv.URL + "/oauth/authorize",
		TokenURL:     providerSrv.URL + "/oauth/token",
		Scope:        "read_content write_content",
		CallbackPath: "/callback",
		StateTTL:     time.Minute,
	}, config.Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  "http://localhost:3000/callback",
	})
	require.NoError(t, err)

	factory, err := upstream.NewFactory(apiSrv.URL+"/v1/", http.DefaultTransport)
	require.NoError(t, err)

	repo := sessionmemory.NewRepository(time.Minute)
	store, err := session.NewServerSideStore(repo, []byte(testSecret))
	require.NoError(t, err)

	env := &testEnv{
		deps: Deps{
			Grant:    grantCfg,
			Tokens:   oauth.NewClient(http.DefaultClient),
			Upstream: factory,
			Sessions: session.NewManager(store, config.Sessions{
				Duration: time.Hour,
				Cookie: config.CookieTemplate{
					Name:     cookieName,
					Path:     "/",
					HTTPOnly: true,
					SameSite: config.CookieSameSiteLax,
				},
			}),
		},
		provider: provider,
		upstream: api,
		repo:     repo,
	}

	router, err := NewRouter(t.Context(), testConfig(), env.deps)
	require.NoError(t, err)

	env.proxy = httptest.NewServer(router)
	t.Cleanup(env.proxy.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, e.proxy.URL+path, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil)
}

// connect runs the authorization start and returns the state sent to the
// provider.
func (e *testEnv) connect(t *testing.T) url.Values {
	t.Helper()

	resp := e.get(t, ConnectPath)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	return location.Query()
}

// login runs the whole authorization for spaceID.
func (e *testEnv) login(t *testing.T) {
	t.Helper()

	params := e.connect(t)
	resp := e.get(t, "/callback?"+url.Values{
		"space_id": {spaceID},
		"code":     {validCode},
		"state":    {params.Get("state")},
	}.Encode())
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

func decodeEnvelope(t *testing.T, resp *http.Response) serviceerr.Envelope {
	t.Helper()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var env serviceerr.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Error)

	return env
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(b)
}

func TestHome(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/?space_id="+spaceID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body := readBody(t, resp)
	assert.Contains(t, body, ConnectPath)
	assert.Equal(t, 0, env.repo.Len(), "visiting does not create sessions")

	env.login(t)

	body = readBody(t, env.get(t, "/?space_id="+spaceID))
	assert.Contains(t, body, "/static/app.js")
	assert.NotContains(t, body, "access-1", "tokens are never rendered")
}

func TestConnect(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, ConnectPath)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)

	q := location.Query()
	assert.Equal(t, "/oauth/authorize", location.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, clientID, q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read_content write_content", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))

	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, cookieName, resp.Cookies()[0].Name)

	second := env.connect(t)
	assert.NotEqual(t, q.Get("state"), second.Get("state"), "every authorization gets its own state")
}

func TestCallback_Success(t *testing.T) {
	env := newTestEnv(t)

	params := env.connect(t)
	resp := env.get(t, "/callback?"+url.Values{
		"space_id": {spaceID},
		"code":     {validCode},
		"state":    {params.Get("state")},
	}.Encode())

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?space_id=42", resp.Header.Get("Location"))

	form := env.provider.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, validCode, form.Get("code"))
	assert.Equal(t, clientID, form.Get("client_id"))
	assert.Equal(t, clientSecret, form.Get("client_secret"))
	assert.Equal(t, "http://localhost:3000/callback", form.Get("redirect_uri"))
	assert.Equal(t, params.Get("code_challenge"), pkce.Challenge(form.Get("code_verifier")))

	// The session now carries the tokens and forwards them upstream.
	resp = env.get(t, "/explore/42/stories")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer access-1", env.upstream.lastCall().Authorization)

	// The authorization cannot be replayed.
	resp = env.get(t, "/callback?"+url.Values{
		"space_id": {spaceID},
		"code":     {validCode},
		"state":    {params.Get("state")},
	}.Encode())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name        string
		connect     bool
		query       func(state string) url.Values
		wantStatus  int
		wantMessage string
	}{
		{
			name:    "state mismatch",
			connect: true,
			query: func(string) url.Values {
				return url.Values{"space_id": {spaceID}, "code": {validCode}, "state": {"forged"}}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: serviceerr.ErrStateMismatch.Description,
		},
		{
			name:    "no authorization started",
			connect: false,
			query: func(string) url.Values {
				return url.Values{"space_id": {spaceID}, "code": {validCode}, "state": {"any"}}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: serviceerr.ErrStateMismatch.Description,
		},
		{
			name:    "provider refused",
			connect: true,
			query: func(state string) url.Values {
				return url.Values{"error": {"access_denied"}, "error_description": {"The user denied access"}, "state": {state}}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "The user denied access",
		},
		{
			name:    "missing code",
			connect: true,
			query: func(state string) url.Values {
				return url.Values{"space_id": {spaceID}, "state": {state}}
			},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "missing code",
		},
		{
			name:    "code rejected upstream",
			connect: true,
			query: func(state string) url.Values {
				return url.Values{"space_id": {spaceID}, "code": {"bad-code"}, "state": {state}}
			},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "The authorization code is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			var state string
			if tt.connect {
				state = env.connect(t).Get("state")
			}

			resp := env.get(t, "/callback?"+tt.query(state).Encode())
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			envelope := decodeEnvelope(t, resp)
			assert.Equal(t, tt.wantMessage, envelope.Message)

			// Nothing was stored.
			resp = env.get(t, "/?space_id="+spaceID)
			assert.Contains(t, readBody(t, resp), ConnectPath)
		})
	}
}

func TestCallback_TokenEndpointUnreachable(t *testing.T) {
	env := newTestEnv(t)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	grantCfg, err := grant.BuildConfig(config.Grant{
		AuthorizeURL: down.URL + "/oauth/authorize",
		TokenURL:     down.URL + "/oauth/token",
		CallbackPath: "/callback",
	}, config.Credentials{ClientID: clientID, ClientSecret: clientSecret, RedirectURI: "http://localhost:3000/callback"})
	require.NoError(t, err)

	env.deps.Grant = grantCfg
	router, err := NewRouter(t.Context(), testConfig(), env.deps)
	require.NoError(t, err)
	env.proxy = httptest.NewServer(router)
	t.Cleanup(env.proxy.Close)

	state := env.connect(t).Get("state")
	resp := env.get(t, "/callback?"+url.Values{"code": {validCode}, "state": {state}}.Encode())

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	decodeEnvelope(t, resp)
}

func TestRefresh(t *testing.T) {
	t.Run("without refresh token", func(t *testing.T) {
		env := newTestEnv(t)

		resp := env.get(t, "/refresh?space_id="+spaceID)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, serviceerr.ErrNoRefreshToken.Description, decodeEnvelope(t, resp).Message)
	})

	t.Run("rotates tokens", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t)

		resp := env.get(t, "/refresh?space_id="+spaceID)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/?space_id=42", resp.Header.Get("Location"))

		form := env.provider.lastForm()
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, validRT, form.Get("refresh_token"))
		assert.Equal(t, clientID, form.Get("client_id"))
		assert.Equal(t, clientSecret, form.Get("client_secret"))
		assert.Equal(t, "http://localhost:3000/callback", form.Get("redirect_uri"))

		env.get(t, "/explore/42/stories")
		assert.Equal(t, "Bearer access-2", env.upstream.lastCall().Authorization)

		// refresh-2 is unknown to the provider.
		resp = env.get(t, "/refresh?space_id="+spaceID)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "The refresh token is invalid", decodeEnvelope(t, resp).Message)
	})
}

func TestExplore(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	t.Run("list with query", func(t *testing.T) {
		resp := env.get(t, "/explore/42/stories?page=2&per_page=5")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"stories":[{"id":1,"name":"Home","slug":"home"}]}`, readBody(t, resp))

		call := env.upstream.lastCall()
		assert.Equal(t, http.MethodGet, call.Method)
		assert.Equal(t, "/v1/spaces/42/stories", call.Path)
		assert.Equal(t, "page=2&per_page=5", call.Query)
	})

	t.Run("get by id", func(t *testing.T) {
		resp := env.get(t, "/explore/42/stories/7")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/v1/spaces/42/stories/7", env.upstream.lastCall().Path)
	})

	t.Run("create", func(t *testing.T) {
		payload := `{"story":{"name":"New","slug":"new"}}`
		resp := env.do(t, http.MethodPost, "/explore/42/stories", strings.NewReader(payload))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.JSONEq(t, payload, readBody(t, resp))

		call := env.upstream.lastCall()
		assert.Equal(t, http.MethodPost, call.Method)
		assert.Equal(t, "application/json", call.ContentType)
		assert.Equal(t, payload, call.Body)
	})

	t.Run("update", func(t *testing.T) {
		payload := `{"story":{"id":7,"name":"Renamed"}}`
		resp := env.do(t, http.MethodPut, "/explore/42/stories/7", strings.NewReader(payload))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		call := env.upstream.lastCall()
		assert.Equal(t, http.MethodPut, call.Method)
		assert.Equal(t, "/v1/spaces/42/stories/7", call.Path)
		assert.Equal(t, payload, call.Body)
	})

	t.Run("delete", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/explore/42/stories/7", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, http.MethodDelete, env.upstream.lastCall().Method)
	})

	t.Run("upstream error", func(t *testing.T) {
		resp := env.get(t, "/explore/42/missing")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "This record could not be found", decodeEnvelope(t, resp).Message)
	})

	t.Run("escaped segments", func(t *testing.T) {
		resp := env.get(t, "/explore/42/stories/a%20b")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/v1/spaces/42/stories/a%20b", env.upstream.lastCall().Path)
	})

	t.Run("traversal", func(t *testing.T) {
		resp := env.get(t, "/explore/42/stories/%2E%2E")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		decodeEnvelope(t, resp)
	})

	t.Run("unsupported method", func(t *testing.T) {
		resp := env.do(t, http.MethodPatch, "/explore/42/stories/7", strings.NewReader("{}"))
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestExplore_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/explore/42/stories")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decodeEnvelope(t, resp).Message)
	assert.Equal(t, "Bearer", strings.TrimSpace(env.upstream.lastCall().Authorization))
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/app.js", "/static/app.js", "/static/app.css"} {
		resp := env.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
