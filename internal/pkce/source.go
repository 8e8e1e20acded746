// Package pkce generates the per-authorization secrets of the OAuth
// authorization code flow: state values, PKCE verifiers (RFC 7636) and
// session identifiers.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
)

const MethodS256 = "S256"

// PKCE is a verifier and the challenge derived from it.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Challenge derives the S256 code challenge of a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Source produces random values from crypto/rand.
type Source struct{}

func (Source) randString(n int) string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

// PKCE returns a fresh verifier of 43 characters with its S256 challenge.
func (Source) PKCE() PKCE {
	verifier := rand.Text() + rand.Text()[:17]

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}
}

// State returns an opaque value correlating an authorization request with
// its callback.
func (p Source) State() string {
	return p.randString(48)
}

func (p Source) SessionID() string {
	return p.randString(32) // 32 * log2(63) = 191.3 bits
}
