package config

import (
	"net/http"
	"time"
)

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

// CookieTemplate describes the attributes of the session cookie.
type CookieTemplate struct {
	Name     string         `yaml:"name" default:"storyblok_proxy_session"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
}

func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
}

// ToExpiringCookie returns the cookie bound to the given expiry. A configured
// MaxAge takes precedence.
func (ct *CookieTemplate) ToExpiringCookie(value string, expiry time.Time) *http.Cookie {
	c := ct.ToCookie(value)
	if c.MaxAge == 0 && !expiry.IsZero() {
		c.Expires = expiry.UTC()
	}

	return c
}
