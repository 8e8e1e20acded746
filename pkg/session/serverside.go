package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
)

const minSecretLength = 32

var errSecretTooShort = fmt.Errorf("session secret too short (need >=%d bytes)", minSecretLength)

// ServerSideStore keeps the session data in a Repository. The cookie only
// carries the session ID and its HMAC.
type ServerSideStore struct {
	repo   Repository
	secret []byte
	now    func() time.Time
}

var _ Store = (*ServerSideStore)(nil)

func NewServerSideStore(repo Repository, secret []byte) (*ServerSideStore, error) {
	if len(secret) < minSecretLength {
		return nil, errSecretTooShort
	}

	return &ServerSideStore{repo: repo, secret: secret, now: time.Now}, nil
}

func (s *ServerSideStore) Load(ctx context.Context, value string) (Data, error) {
	id, ok := verifyID(value, s.secret)
	if !ok {
		return Data{}, fmt.Errorf("%w: invalid session id signature", serviceerr.ErrNotFound)
	}

	data, err := s.repo.LoadSession(ctx, id)
	if err != nil {
		return Data{}, fmt.Errorf("loading session: %w", err)
	}

	if !data.Expiry.IsZero() && s.now().After(data.Expiry) {
		return Data{}, fmt.Errorf("%w: session expired", serviceerr.ErrNotFound)
	}

	return data, nil
}

func (s *ServerSideStore) Save(ctx context.Context, data Data) (string, error) {
	if data.ID == "" {
		return "", errors.New("session without id")
	}

	if err := s.repo.StoreSession(ctx, data); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	return signID(data.ID, s.secret), nil
}

func mac(id string, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(fmt.Appendf(nil, "%d!%s", len(id), id))

	return h.Sum(nil)
}

// signID returns id.signature with the signature in base64url.
func signID(id string, secret []byte) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(mac(id, secret))
}

func verifyID(value string, secret []byte) (string, bool) {
	dot := strings.LastIndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return "", false
	}

	id := value[:dot]
	sig, err := base64.RawURLEncoding.DecodeString(value[dot+1:])
	if err != nil {
		return "", false
	}

	return id, hmac.Equal(sig, mac(id, secret))
}
