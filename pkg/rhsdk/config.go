package rhsdk

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/rhsession/pkg/slogx"
)

const (
	// DefaultBaseURL is the provider's API root.
	DefaultBaseURL = "https://api.robinhood.com"

	// DefaultClientID is the client id the provider's own apps authenticate with.
	DefaultClientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

	// DefaultExpiresIn is the token lifetime requested on login and refresh.
	DefaultExpiresIn = 86400

	// DefaultTimeout bounds every request made through the transport.
	DefaultTimeout = 15 * time.Second

	// MaxMFAAttempts is the number of TOTP codes tried before giving up. The
	// provider's mfa response carries no retry budget, so the cap is local.
	MaxMFAAttempts = 3

	oauthScope = "internal"
)

// Config holds everything a SessionManager needs. Only Username and Password
// are required; the rest falls back to defaults.
type Config struct {
	Username string
	Password string

	// MFASecret is an optional base32 TOTP seed. When set, mfa codes are
	// generated locally instead of prompting.
	MFASecret string

	// ChallengeType is the preferred channel for challenge codes (default: email)
	ChallengeType ChallengeType

	BaseURL   string // Optional: API root (default: DefaultBaseURL)
	ClientID  string // Optional: OAuth2 client id (default: DefaultClientID)
	ExpiresIn int    // Optional: requested token lifetime in seconds (default: 86400)

	// Headers replaces the default request headers when non-nil.
	Headers http.Header

	// Proxy selects a proxy per request (default: http.ProxyFromEnvironment)
	Proxy func(*http.Request) (*url.URL, error)

	// RootCAs overrides the system certificate pool.
	RootCAs *x509.CertPool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Timeout is the fixed per-request timeout (default: 15s)
	Timeout time.Duration

	// HTTPClient replaces the client built from Proxy, RootCAs, InsecureSkipVerify
	// and Timeout. Mostly useful in tests.
	HTTPClient *http.Client

	// Prompter reads challenge and mfa codes (default: stdin/stdout)
	Prompter Prompter

	// Events receives session lifecycle events (optional)
	Events EventPublisher

	Logger *slog.Logger

	// Now is the clock used for expiry decisions (default: time.Now)
	Now func() time.Time
}

// withDefaults returns a copy of cfg with every optional field filled in.
func (cfg Config) withDefaults() Config {
	if cfg.ChallengeType == "" {
		cfg.ChallengeType = ChallengeEmail
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = DefaultExpiresIn
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	} else {
		cfg.Headers = cfg.Headers.Clone()
	}
	if cfg.Proxy == nil {
		cfg.Proxy = http.ProxyFromEnvironment
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Prompter == nil {
		cfg.Prompter = NewTerminalPrompter()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// httpClient builds the pooled client used for every request of a manager.
func (cfg Config) httpClient() *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = cfg.Proxy
	base.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            cfg.RootCAs,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for intercepting proxies
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: slogx.Transport(base, cfg.Logger),
	}
}
