package cookiestore_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/storyblok-proxy/internal/serviceerr"
	"github.com/openkcm/storyblok-proxy/pkg/session"
	"github.com/openkcm/storyblok-proxy/pkg/session/cookiestore"
)

var secret = []byte(strings.Repeat("c", cookiestore.MinSecretLength))

func TestNew(t *testing.T) {
	_, err := cookiestore.New([]byte("short"))
	require.ErrorIs(t, err, cookiestore.ErrSecretTooShort)

	_, err = cookiestore.New(secret)
	require.NoError(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	store, err := cookiestore.New(secret, cookiestore.WithIssuer("storyblok-proxy"))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	want := session.Data{
		ID:              "s1",
		ApplicationCode: "code",
		AccessToken:     "access",
		RefreshToken:    "refresh",
		Pending: &session.Authorization{
			State:       "state",
			Verifier:    "verifier",
			Fingerprint: "fp",
			Expiry:      now.Add(10 * time.Minute),
		},
		CreatedAt: now,
		Expiry:    now.Add(time.Hour),
	}

	value, err := store.Save(t.Context(), want)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(value, "."), "compact JWS")

	got, err := store.Load(t.Context(), value)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestStore_Load_Rejects(t *testing.T) {
	now := time.Now()
	store, err := cookiestore.New(secret, cookiestore.WithIssuer("storyblok-proxy"))
	require.NoError(t, err)

	valid, err := store.Save(t.Context(), session.Data{ID: "s1", Expiry: now.Add(time.Hour)})
	require.NoError(t, err)

	otherKey, err := cookiestore.New([]byte(strings.Repeat("o", cookiestore.MinSecretLength)), cookiestore.WithIssuer("storyblok-proxy"))
	require.NoError(t, err)
	forged, err := otherKey.Save(t.Context(), session.Data{ID: "s1", Expiry: now.Add(time.Hour)})
	require.NoError(t, err)

	otherIssuer, err := cookiestore.New(secret, cookiestore.WithIssuer("someone-else"))
	require.NoError(t, err)
	foreign, err := otherIssuer.Save(t.Context(), session.Data{ID: "s1", Expiry: now.Add(time.Hour)})
	require.NoError(t, err)

	expired, err := store.Save(t.Context(), session.Data{ID: "s1", Expiry: now.Add(-time.Minute)})
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"garbage":        "not-a-jwt",
		"other key":      forged,
		"other issuer":   foreign,
		"expired":        expired,
		"tampered claim": tampered,
	}

	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(t.Context(), value)
			assert.ErrorIs(t, err, serviceerr.ErrNotFound)
		})
	}
}

func TestStore_Save_RequiresID(t *testing.T) {
	store, err := cookiestore.New(secret)
	require.NoError(t, err)

	_, err = store.Save(t.Context(), session.Data{})
	assert.Error(t, err, "sessions need an id")
}
