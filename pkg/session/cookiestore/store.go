// Package cookiestore keeps the whole session in the cookie value, as a
// JWT signed with HS256. Nothing is stored on the server.
package cookiestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/pkg/session"
)

const MinSecretLength = 32

var ErrSecretTooShort = fmt.Errorf("cookie secret too short (need >=%d bytes)", MinSecretLength)

type payload struct {
	Session session.Data `json:"ses"`
}

type Store struct {
	key    []byte
	signer jose.Signer
	issuer string
	now    func() time.Time
}

var _ session.Store = (*Store)(nil)

type Option func(*Store)

// WithIssuer sets the iss claim written and expected by the store.
func WithIssuer(issuer string) Option {
	return func(s *Store) { s.issuer = issuer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(secret []byte, opts ...Option) (*Store, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	s := &Store{key: secret, signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) Save(_ context.Context, data session.Data) (string, error) {
	if data.ID == "" {
		return "", errors.New("session without id")
	}

	claims := jwt.Claims{
		ID:       data.ID,
		Issuer:   s.issuer,
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	if !data.Expiry.IsZero() {
		claims.Expiry = jwt.NewNumericDate(data.Expiry)
	}

	raw, err := jwt.Signed(s.signer).Claims(claims).Claims(payload{Session: data}).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}

	return raw, nil
}

// Load verifies the signature and the expiry of value. Every failure is
// reported as serviceerr.ErrNotFound, so that the caller starts over.
func (s *Store) Load(_ context.Context, value string) (session.Data, error) {
	tok, err := jwt.ParseSigned(value, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return session.Data{}, errors.Join(serviceerr.ErrNotFound, err)
	}

	var (
		claims jwt.Claims
		p      payload
	)
	if err := tok.Claims(s.key, &claims, &p); err != nil {
		return session.Data{}, errors.Join(serviceerr.ErrNotFound, err)
	}

	expected := jwt.Expected{Time: s.now(), Issuer: s.issuer}
	if err := claims.ValidateWithLeeway(expected, 0); err != nil {
		return session.Data{}, errors.Join(serviceerr.ErrNotFound, err)
	}

	if claims.ID != p.Session.ID {
		return session.Data{}, fmt.Errorf("%w: session id does not match token id", serviceerr.ErrNotFound)
	}

	return p.Session, nil
}
