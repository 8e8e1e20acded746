// Package grant builds the OAuth client configuration of the proxy once per
// process and derives the per-request authorization data from it.
package grant

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/openkcm/storyblok-proxy/internal/config"
	"github.com/openkcm/storyblok-proxy/internal/oauth"
	"github.com/openkcm/storyblok-proxy/internal/pkce"
)

var ErrInvalidConfig = errors.New("invalid grant configuration")

// Config is the read-only OAuth configuration. It is safe for concurrent use.
type Config struct {
	oauth        oauth2.Config
	origin       string
	callbackPath string
	stateTTL     time.Duration
	pkce         pkce.Source
}

// Authorization is the data of one authorization request. State and
// Verifier must be kept until the callback.
type Authorization struct {
	URL      string
	State    string
	Verifier string
	Expiry   time.Time
}

// BuildConfig validates the settings and credentials and builds the
// configuration.
func BuildConfig(settings config.Grant, creds config.Credentials) (*Config, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RedirectURI == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, config.ErrMissingCredentials)
	}

	for name, raw := range map[string]string{
		"authorize url": settings.AuthorizeURL,
		"token url":     settings.TokenURL,
		"redirect uri":  creds.RedirectURI,
	} {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
	}

	callbackPath := settings.CallbackPath
	if callbackPath == "" {
		callbackPath = "/callback"
	}

	stateTTL := settings.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}

	return &Config{
		oauth: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       strings.Fields(settings.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   settings.AuthorizeURL,
				TokenURL:  settings.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		origin:       strings.TrimSuffix(settings.Origin, "/"),
		callbackPath: callbackPath,
		stateTTL:     stateTTL,
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute url", raw)
	}

	return nil
}

func (c *Config) ClientID() string     { return c.oauth.ClientID }
func (c *Config) RedirectURI() string  { return c.oauth.RedirectURL }
func (c *Config) AuthorizeURL() string { return c.oauth.Endpoint.AuthURL }
func (c *Config) TokenURL() string     { return c.oauth.Endpoint.TokenURL }
func (c *Config) Scope() string        { return strings.Join(c.oauth.Scopes, " ") }
func (c *Config) Origin() string       { return c.origin }
func (c *Config) CallbackPath() string { return c.callbackPath }

// NewAuthorization generates a fresh state and PKCE pair and the provider
// URL the browser is sent to.
func (c *Config) NewAuthorization(now time.Time) Authorization {
	state := c.pkce.State()
	p := c.pkce.PKCE()

	return Authorization{
		URL: c.oauth.AuthCodeURL(state,
			oauth2.SetAuthURLParam("code_challenge", p.Challenge),
			oauth2.SetAuthURLParam("code_challenge_method", p.Method),
		),
		State:    state,
		Verifier: p.Verifier,
		Expiry:   now.Add(c.stateTTL),
	}
}

// AuthorizationCodeGrant returns the payload exchanging code.
func (c *Config) AuthorizationCodeGrant(code, verifier string) oauth.AuthorizationCode {
	return oauth.AuthorizationCode{
		Code:         code,
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		RedirectURI:  c.oauth.RedirectURL,
		CodeVerifier: verifier,
	}
}

// RefreshTokenGrant returns the payload renewing the tokens.
func (c *Config) RefreshTokenGrant(refreshToken string) oauth.RefreshToken {
	return oauth.RefreshToken{
		RefreshToken: refreshToken,
		ClientID:     c.oauth.ClientID,
		ClientSecret: c.oauth.ClientSecret,
		RedirectURI:  c.oauth.RedirectURL,
	}
}
