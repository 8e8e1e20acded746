// Package oauth talks to the token endpoint of the OAuth provider.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

// maxErrorBody limits how much of a failed response is read.
const maxErrorBody = 64 << 10

// Tokens is the successful answer of the token endpoint.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

var errNoAccessToken = errors.New("token response without access_token")

type Client struct {
	httpClient *http.Client
}

// NewClient returns a token exchange client. A nil httpClient is replaced by
// an instrumented default client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{httpClient: httpClient}
}

// Exchange posts grant to tokenURL. A non-2xx answer yields an
// *serviceerr.UpstreamAuthError and a failed round trip a
// *serviceerr.NetworkError. The request is sent once.
func (c *Client) Exchange(ctx context.Context, tokenURL string, grant Grant) (Tokens, error) {
	slogctx.Debug(ctx, "Exchanging grant", "grant_type", grant.GrantType(), "token_url", tokenURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(grant.values().Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Tokens{}, &serviceerr.NetworkError{Op: "token exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Tokens{}, &serviceerr.UpstreamAuthError{
			StatusCode:  resp.StatusCode,
			Description: describe(resp.StatusCode, body),
		}
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, fmt.Errorf("decoding token response: %w", err)
	}

	if tokens.AccessToken == "" {
		return Tokens{}, errNoAccessToken
	}

	return tokens, nil
}

// describe picks the most specific message of an OAuth error body.
func describe(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error_description", "error", "message"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}

	return http.StatusText(status)
}
