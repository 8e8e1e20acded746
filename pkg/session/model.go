package session

import (
	"crypto/subtle"
	"time"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

// Data is the state kept per browser session.
type Data struct {
	ID              string         `json:"id"`                         // Session ID in our system
	ApplicationCode string         `json:"application_code,omitempty"` // Authorization code last exchanged
	AccessToken     string         `json:"access_token,omitempty"`     // Access token of the content API
	RefreshToken    string         `json:"refresh_token,omitempty"`    // Refresh token of the content API
	Pending         *Authorization `json:"pending,omitempty"`          // Authorization awaiting its callback
	CreatedAt       time.Time      `json:"created_at"`
	Expiry          time.Time      `json:"expiry"`
}

// Authorization aligns an authorization request with its callback.
type Authorization struct {
	State       string    `json:"state"`       // State sent to the provider
	Verifier    string    `json:"verifier"`    // PKCE verifier of the challenge sent to the provider
	Fingerprint string    `json:"fingerprint"` // Fingerprint of the client that started the authorization
	Expiry      time.Time `json:"expiry"`      // Expiry of the authorization request
}

// Validate checks a callback against the pending authorization.
func (a Authorization) Validate(state, fingerprint string, now time.Time) error {
	if state == "" || subtle.ConstantTimeCompare([]byte(a.State), []byte(state)) != 1 {
		return serviceerr.ErrStateMismatch
	}

	if now.After(a.Expiry) {
		return serviceerr.ErrStateExpired
	}

	if a.Fingerprint != fingerprint {
		return serviceerr.ErrFingerprintMismatch
	}

	return nil
}
