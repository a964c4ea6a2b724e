package rhsdk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/rhsession/pkg/cryptox"
)

// SessionManager holds a credential for one account and authorizes every
// request made through it. Expired or revoked credentials are renewed on
// demand; there is no background refresh.
//
// Login, refresh, relogin and logout are serialized, so a SessionManager can
// be shared between goroutines. Two callers that hit a 401 at the same time
// trigger a single refresh.
type SessionManager struct {
	cfg       Config
	flow      *authFlow
	transport *transport
	logger    *slog.Logger
	events    EventPublisher
	now       func() time.Time

	// authMu serializes every credential change
	authMu sync.Mutex

	mu            sync.RWMutex
	username      string
	password      string
	mfaSecret     string
	challengeType ChallengeType
	deviceToken   string
	credential    Credential
	expiresAt     time.Time
	state         State
}

// NewSessionManager creates an unauthenticated manager with a fresh device
// token. No request is made until Login, Get or Post is called.
func NewSessionManager(cfg Config) (*SessionManager, error) {
	if cfg.ChallengeType != "" {
		if _, err := ParseChallengeType(string(cfg.ChallengeType)); err != nil {
			return nil, err
		}
	}
	if cfg.MFASecret != "" {
		if err := ValidateMFASecret(cfg.MFASecret); err != nil {
			return nil, err
		}
	}

	return newSessionManager(cfg.withDefaults(), uuid.NewString()), nil
}

func newSessionManager(cfg Config, deviceToken string) *SessionManager {
	tr := newTransport(cfg.httpClient(), cfg.BaseURL, cfg.Headers)

	m := &SessionManager{
		cfg:           cfg,
		transport:     tr,
		logger:        cfg.Logger.With("component", "rhsdk", "username", cfg.Username),
		events:        cfg.Events,
		now:           cfg.Now,
		username:      cfg.Username,
		password:      cfg.Password,
		mfaSecret:     cfg.MFASecret,
		challengeType: cfg.ChallengeType,
		deviceToken:   deviceToken,
		expiresAt:     time.Unix(0, 0).UTC(),
	}

	m.flow = &authFlow{
		transport:     tr,
		prompter:      cfg.Prompter,
		logger:        m.logger,
		now:           cfg.Now,
		username:      cfg.Username,
		password:      cfg.Password,
		mfaSecret:     cfg.MFASecret,
		clientID:      cfg.ClientID,
		expiresIn:     cfg.ExpiresIn,
		challengeType: cfg.ChallengeType,
		deviceToken:   deviceToken,
		onState:       m.setState,
	}

	return m
}

// String identifies the manager by account without exposing secrets.
func (m *SessionManager) String() string {
	return fmt.Sprintf("SessionManager<%s>", m.Username())
}

// Username returns the account this manager logs in as.
func (m *SessionManager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.username
}

// DeviceToken returns the per-manager device id sent with every login.
func (m *SessionManager) DeviceToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deviceToken
}

// Credential returns the current credential, empty when logged out.
func (m *SessionManager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credential
}

// ExpiresAt returns when the current access token expires (UTC).
func (m *SessionManager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiresAt
}

// State returns the last state the login state machine reached.
func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *SessionManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// TokenExpired reports whether the access token is past its expiry.
func (m *SessionManager) TokenExpired() bool {
	return !m.now().Before(m.ExpiresAt())
}

// Authenticated reports whether requests are authorized right now: an
// Authorization header is set and the token has not expired.
func (m *SessionManager) Authenticated() bool {
	return m.transport.hasAuthorization() && !m.TokenExpired()
}

// LoginOption adjusts a Login call.
type LoginOption func(*loginOptions)

type loginOptions struct {
	forceRefresh bool
	forceLogin   bool
}

// ForceRefresh refreshes a valid credential even if it has not expired.
func ForceRefresh() LoginOption {
	return func(o *loginOptions) { o.forceRefresh = true }
}

// ForceLogin drops the current credential and runs the full login. Use it
// after a refresh failed with ErrRefreshRejected. The device token is kept,
// so the provider sees the same device as before.
func ForceLogin() LoginOption {
	return func(o *loginOptions) { o.forceLogin = true }
}

// Login makes sure the manager holds a usable credential.
//
// Without an Authorization header, or when ForceLogin is given, the full
// login runs, prompting for a challenge or mfa code when the provider asks
// for one. With a valid credential that has expired, or when ForceRefresh is
// given, the refresh token is exchanged. Otherwise Login does nothing.
func (m *SessionManager) Login(ctx context.Context, opts ...LoginOption) error {
	var lo loginOptions
	for _, opt := range opts {
		opt(&lo)
	}

	m.authMu.Lock()
	defer m.authMu.Unlock()

	if lo.forceLogin {
		m.reset()
	}

	return m.loginLocked(ctx, lo.forceRefresh)
}

func (m *SessionManager) loginLocked(ctx context.Context, forceRefresh bool) error {
	if !m.transport.hasAuthorization() {
		cred, err := m.flow.login(ctx)
		if err != nil {
			m.logger.Warn("login failed", "error", err)
			m.publish(ctx, EventLoginFailed, err)
			return err
		}

		m.configure(cred)
		m.logger.Info("logged in",
			"expires_at", m.ExpiresAt(),
			"token_fp", cryptox.Fingerprint(cred.AccessToken),
		)
		m.publish(ctx, EventLogin, nil)
		return nil
	}

	cred := m.Credential()
	if cred.Valid() && (forceRefresh || m.TokenExpired()) {
		return m.refreshLocked(ctx, cred)
	}

	return nil
}

// refreshLocked swaps the credential for a refreshed one. On failure the
// stale credential and header stay in place so the caller can decide whether
// to start a fresh login.
func (m *SessionManager) refreshLocked(ctx context.Context, cred Credential) error {
	next, err := m.flow.refresh(ctx, cred)
	if err != nil {
		m.setState(StateAuthenticated)
		m.logger.Warn("token refresh failed", "error", err)
		return err
	}

	m.configure(next)
	m.logger.Info("token refreshed",
		"expires_at", m.ExpiresAt(),
		"token_fp", cryptox.Fingerprint(next.AccessToken),
		"previous_fp", cryptox.Fingerprint(cred.AccessToken),
	)
	m.publish(ctx, EventRefresh, nil)
	return nil
}

// relogin renews the credential after a request carrying staleAuth was
// rejected. If another caller already renewed it, the new header is reused
// instead of spending the rotated refresh token a second time.
func (m *SessionManager) relogin(ctx context.Context, staleAuth string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if current := m.transport.authorization(); current != "" && current != staleAuth {
		m.logger.Debug("credential renewed by a concurrent request")
		return nil
	}

	m.logger.Info("request unauthorized, renewing credential")
	return m.loginLocked(ctx, true)
}

// configure stores a freshly issued credential and authorizes the transport.
func (m *SessionManager) configure(cred Credential) {
	m.mu.Lock()
	m.credential = cred
	m.expiresAt = cred.Expiry(m.now())
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.transport.setAuthorization(cred.authorizationValue())
}

// reset forgets the credential and removes the Authorization header.
func (m *SessionManager) reset() {
	m.mu.Lock()
	m.credential = Credential{}
	m.expiresAt = time.Unix(0, 0).UTC()
	m.state = StateUnauthenticated
	m.mu.Unlock()

	m.transport.clearAuthorization()
}

// Logout revokes the refresh token. On success the credential is cleared and
// the Authorization header removed; on failure nothing changes.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if err := m.flow.revoke(ctx, m.Credential()); err != nil {
		m.logger.Warn("logout failed", "error", err)
		return err
	}

	m.publish(ctx, EventLogout, nil)
	m.reset()
	m.logger.Info("logged out")
	return nil
}
