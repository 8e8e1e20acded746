package oauth

import "net/url"

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Grant is a token endpoint request payload.
type Grant interface {
	GrantType() string
	values() url.Values
}

// AuthorizationCode exchanges the code received on the callback.
type AuthorizationCode struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// CodeVerifier is sent when the authorization used PKCE.
	CodeVerifier string
}

func (AuthorizationCode) GrantType() string { return GrantTypeAuthorizationCode }

func (g AuthorizationCode) values() url.Values {
	v := url.Values{}
	v.Set("grant_type", GrantTypeAuthorizationCode)
	v.Set("code", g.Code)
	v.Set("client_id", g.ClientID)
	v.Set("client_secret", g.ClientSecret)
	v.Set("redirect_uri", g.RedirectURI)
	if g.CodeVerifier != "" {
		v.Set("code_verifier", g.CodeVerifier)
	}

	return v
}

// RefreshToken obtains a new token pair. The redirect URI is part of the
// payload because the provider requires it on both grants.
type RefreshToken struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (RefreshToken) GrantType() string { return GrantTypeRefreshToken }

func (g RefreshToken) values() url.Values {
	v := url.Values{}
	v.Set("grant_type", GrantTypeRefreshToken)
	v.Set("refresh_token", g.RefreshToken)
	v.Set("client_id", g.ClientID)
	v.Set("client_secret", g.ClientSecret)
	v.Set("redirect_uri", g.RedirectURI)

	return v
}
