package nextgen

import (
	"net/url"
	"time"
)

// GrantType is the OAuth2 grant used against the token endpoint.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
)

const (
	DefaultBaseURL        = "https://nativeapi.nextgen.com/nge/prod/nge-api/api"
	DefaultTokenURL       = "https://nativeapi.nextgen.com/nge/prod/nge-oauth/token"
	DefaultTimeout        = 30 * time.Second
	DefaultUserAgent      = "NextGenAPI-Go/1.0.0"
	DefaultAccept         = "*/*"
	DefaultAcceptEncoding = "gzip, deflate, br"
	DefaultConnection     = "keep-alive"

	// SessionIDHeader carries the optional NextGen session identifier.
	SessionIDHeader = "x-ng-sessionid"

	maxRedirects = 10
)

// Credentials identify the application (and optionally a user) to the token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	SiteID       string
	GrantType    GrantType
	// Username and Password are sent only for GrantPassword.
	Username string
	Password string
}

// Config is the complete client configuration. It is passed by value and
// never mutated after New.
type Config struct {
	Credentials

	BaseURL  string
	TokenURL string
	// SessionID, when set, is sent as the x-ng-sessionid header.
	SessionID string

	Timeout            time.Duration
	InsecureSkipVerify bool
	DisableRedirects   bool

	UserAgent      string
	Accept         string
	AcceptEncoding string
	Connection     string

	// RateLimitRequests per RateLimitPeriod paces outgoing calls. Zero disables pacing.
	RateLimitRequests int
	RateLimitPeriod   time.Duration
}

// DefaultConfig returns a Config with the production NextGen endpoints and
// default request settings. Credentials still need to be filled in.
func DefaultConfig() Config {
	return Config{
		Credentials:       Credentials{GrantType: GrantClientCredentials},
		BaseURL:           DefaultBaseURL,
		TokenURL:          DefaultTokenURL,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		Accept:            DefaultAccept,
		AcceptEncoding:    DefaultAcceptEncoding,
		Connection:        DefaultConnection,
		RateLimitRequests: 100,
		RateLimitPeriod:   time.Minute,
	}
}

// withDefaults fills optional fields left empty.
func (c Config) withDefaults() Config {
	if c.GrantType == "" {
		c.GrantType = GrantClientCredentials
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}
	if c.AcceptEncoding == "" {
		c.AcceptEncoding = DefaultAcceptEncoding
	}
	if c.Connection == "" {
		c.Connection = DefaultConnection
	}
	if c.RateLimitRequests > 0 && c.RateLimitPeriod == 0 {
		c.RateLimitPeriod = time.Minute
	}
	return c
}

// Validate reports the first configuration problem as a KindConfiguration error.
func (c Config) Validate() error {
	switch {
	case c.ClientID == "":
		return newError(KindConfiguration, "client_id is required")
	case c.ClientSecret == "":
		return newError(KindConfiguration, "client_secret is required")
	case c.SiteID == "":
		return newError(KindConfiguration, "site_id is required")
	case c.BaseURL == "":
		return newError(KindConfiguration, "base_url is required")
	case c.TokenURL == "":
		return newError(KindConfiguration, "token_url is required")
	}

	for name, raw := range map[string]string{"base_url": c.BaseURL, "token_url": c.TokenURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return newError(KindConfiguration, "%s must be an absolute URL, got %q", name, raw)
		}
	}

	switch c.GrantType {
	case "", GrantClientCredentials:
	case GrantPassword:
		if c.Username == "" || c.Password == "" {
			return newError(KindConfiguration, "username and password are required for the password grant")
		}
	default:
		return newError(KindConfiguration, "unsupported grant_type %q", c.GrantType)
	}

	if c.Timeout < 0 {
		return newError(KindConfiguration, "timeout must not be negative")
	}
	if c.RateLimitRequests < 0 || c.RateLimitPeriod < 0 {
		return newError(KindConfiguration, "rate limit settings must not be negative")
	}
	return nil
}
