// Package upstream is the client of the content management API the proxy
// forwards to.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

var ErrInvalidPath = errors.New("invalid resource path")

// Factory produces bearer-authenticated clients for one base URL.
type Factory struct {
	baseURL *url.URL
	base    http.RoundTripper
}

// NewFactory parses baseURL. A nil transport is replaced by an instrumented
// default transport.
func NewFactory(baseURL string, transport http.RoundTripper) (*Factory, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream base url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base url %q is not absolute", baseURL)
	}

	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	return &Factory{baseURL: u, base: transport}, nil
}

// MakeClient returns a client sending accessToken as bearer token. The
// token is not refreshed.
func (f *Factory) MakeClient(accessToken string) *Client {
	return &Client{
		baseURL: f.baseURL,
		http: &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{
					AccessToken: accessToken,
					TokenType:   "Bearer",
				}),
				Base: f.base,
			},
		},
	}
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Request describes one call relative to the base URL. Path is already
// escaped.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
}

// Response is a completed 2xx answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends req. A non-2xx answer yields a *serviceerr.UpstreamAPIError and
// a failed round trip a *serviceerr.NetworkError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		httpReq.Header.Set("Content-Type", contentType)
	}

	slogctx.Debug(ctx, "Calling upstream", "method", req.Method, "path", target.Path)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &serviceerr.NetworkError{Op: req.Method + " " + req.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &serviceerr.NetworkError{Op: "reading upstream response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &serviceerr.UpstreamAPIError{
			StatusCode: resp.StatusCode,
			Message:    describe(resp.StatusCode, body),
			Body:       body,
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body io.Reader) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// ResourcePath builds spaces/{spaceID}/{resource}[/{id}] with every segment
// escaped. Empty, "." and ".." segments are rejected.
func ResourcePath(spaceID, resource, id string) (string, error) {
	segments := []string{"spaces", spaceID, resource}
	if id != "" {
		segments = append(segments, id)
	}

	for i, s := range segments {
		switch s {
		case "", ".", "..":
			return "", fmt.Errorf("%w: segment %q", ErrInvalidPath, s)
		}
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/"), nil
}

// describe extracts a message from an upstream error body.
func describe(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"error", "message", "error_description"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}

	var list []string
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return strings.Join(list, ", ")
	}

	return http.StatusText(status)
}
