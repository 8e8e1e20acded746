package config

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const MinSecretLength = 32

var ErrSecretTooShort = fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)

// LoadSessionSecret resolves the session secret. The second return value
// reports whether the secret was generated because no source is configured.
func LoadSessionSecret(s Sessions) ([]byte, bool, error) {
	if s.Secret.Source == "" {
		secret := make([]byte, MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, false, fmt.Errorf("generating session secret: %w", err)
		}

		return secret, true, nil
	}

	secret, err := commoncfg.LoadValueFromSourceRef(s.Secret)
	if err != nil {
		return nil, false, fmt.Errorf("loading session secret: %w", err)
	}

	if len(secret) < MinSecretLength {
		return nil, false, ErrSecretTooShort
	}

	return secret, false, nil
}

var errUnknownBackend = errors.New("unknown session backend")

// Validate checks the parts of the configuration that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case SessionBackendCookie, SessionBackendMemory, SessionBackendValKey, SessionBackendPostgres:
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, c.Sessions.Backend)
	}

	if c.Sessions.Cookie.Name == "" {
		return errors.New("session cookie name must not be empty")
	}

	return nil
}
