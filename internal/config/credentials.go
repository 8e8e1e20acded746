package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials are the confidential OAuth client credentials. They never live
// in the config file.
type Credentials struct {
	ClientID     string `env:"CONFIDENTIAL_CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"CONFIDENTIAL_CLIENT_SECRET,required,notEmpty"`
	RedirectURI  string `env:"CONFIDENTIAL_CLIENT_REDIRECT_URI,required,notEmpty"`
}

var ErrMissingCredentials = errors.New("missing confidential client credentials")

// LoadCredentials reads the client credentials from the process environment.
func LoadCredentials() (Credentials, error) {
	return parseCredentials(env.Options{})
}

func parseCredentials(opts env.Options) (Credentials, error) {
	creds, err := env.ParseAsWithOptions[Credentials](opts)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}

	return creds, nil
}
