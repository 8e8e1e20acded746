// Package storyclient drives the story endpoints of a running proxy, the
// same way the browser client does.
package storyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

// Story is the subset of a story the client edits. Unknown fields are kept
// in Extra and sent back on update.
type Story struct {
	ID    int64                      `json:"id,omitempty"`
	Name  string                     `json:"name"`
	Slug  string                     `json:"slug"`
	Extra map[string]json.RawMessage `json:"-"`
}

func (s Story) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.ID != 0 {
		out["id"] = s.ID
	}
	out["name"] = s.Name
	out["slug"] = s.Slug

	return json.Marshal(out)
}

func (s *Story) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	var p Story
	for key, dst := range map[string]any{"id": &p.ID, "name": &p.Name, "slug": &p.Slug} {
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, dst); err != nil {
				return fmt.Errorf("decoding story %s: %w", key, err)
			}
			delete(fields, key)
		}
	}

	if len(fields) > 0 {
		p.Extra = fields
	}
	*s = p

	return nil
}

// APIError is a failed answer of the proxy.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client calls /explore/{space}/stories on a proxy. The http client must
// carry the session cookie of the proxy.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the space on the proxy at proxyURL. A nil
// httpClient is replaced by an instrumented default client.
func New(proxyURL, spaceID string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q is not absolute", proxyURL)
	}

	if spaceID == "" {
		return nil, errors.New("space id is required")
	}

	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		base: u.JoinPath("explore", spaceID, "stories"),
		http: httpClient,
	}, nil
}

type storyEnvelope struct {
	Story Story `json:"story"`
}

func (c *Client) List(ctx context.Context) ([]Story, error) {
	var out struct {
		Stories []Story `json:"stories"`
	}
	if err := c.do(ctx, http.MethodGet, "", nil, &out); err != nil {
		return nil, err
	}

	return out.Stories, nil
}

func (c *Client) Create(ctx context.Context, s Story) (Story, error) {
	var out storyEnvelope
	if err := c.do(ctx, http.MethodPost, "", storyEnvelope{Story: s}, &out); err != nil {
		return Story{}, err
	}

	return out.Story, nil
}

func (c *Client) Update(ctx context.Context, s Story) (Story, error) {
	if s.ID == 0 {
		return Story{}, errors.New("story without id")
	}

	var out storyEnvelope
	if err := c.do(ctx, http.MethodPut, strconv.FormatInt(s.ID, 10), storyEnvelope{Story: s}, &out); err != nil {
		return Story{}, err
	}

	return out.Story, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) do(ctx context.Context, method, id string, in, out any) error {
	target := c.base
	if id != "" {
		target = target.JoinPath(id)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

		var env serviceerr.Envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
		}

		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
