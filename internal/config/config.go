// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP     HTTPServer `yaml:"http"`
	Grant    Grant      `yaml:"grant"`
	Upstream Upstream   `yaml:"upstream"`
	Sessions Sessions   `yaml:"sessions"`

	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Housekeeper Housekeeper `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":3000"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

// Grant holds the public part of the OAuth provider configuration.
// The client credentials are read from the environment, see Credentials.
type Grant struct {
	Origin       string `yaml:"origin" default:"http://localhost:3000"`
	AuthorizeURL string `yaml:"authorizeURL" default:"https://app.storyblok.com/oauth/authorize"`
	TokenURL     string `yaml:"tokenURL" default:"https://app.storyblok.com/oauth/token"`
	Scope        string `yaml:"scope" default:"read_content write_content"`
	CallbackPath string `yaml:"callbackPath" default:"/callback"`
	// StateTTL bounds the time between starting the authorization and the callback.
	StateTTL time.Duration `yaml:"stateTTL" default:"10m"`
}

type Upstream struct {
	BaseURL string `yaml:"baseURL" default:"https://mapi.storyblok.com/v1/"`
}

type SessionBackend string

const (
	SessionBackendCookie   SessionBackend = "cookie"
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendValKey   SessionBackend = "valkey"
	SessionBackendPostgres SessionBackend = "postgres"
)

type Sessions struct {
	Backend  SessionBackend `yaml:"backend" default:"cookie"`
	Duration time.Duration  `yaml:"duration" default:"24h"`
	// Secret signs the session cookie. It must be at least 32 bytes long.
	// A random secret is generated on start when no source is configured.
	Secret commoncfg.SourceRef `yaml:"secret"`
	Cookie CookieTemplate      `yaml:"cookie"`
}

// Database is the PostgreSQL session store. SSLMode is passed to libpq as
// is and left out when empty.
type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"storyblok-proxy"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"1h"`
}
